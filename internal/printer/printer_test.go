package printer

import (
	"math/big"
	"testing"

	"github.com/smile-lang/smile/internal/object"
	"github.com/smile-lang/smile/internal/symbol"
)

func TestScalars(t *testing.T) {
	syms := symbol.New()
	p := New(syms)

	tests := []struct {
		value object.Value
		want  string
	}{
		{object.Null, "[]"},
		{object.Bool(true), "true"},
		{object.Bool(false), "false"},
		{object.Byte(7), "7x"},
		{object.Int16(7), "7h"},
		{object.Int32(42), "42"},
		{object.Int64(42), "42L"},
		{object.Int128(big.NewInt(9)), "9LL"},
		{object.BigInt(big.NewInt(9)), "9t"},
		{object.Real64(1.5), "1.5"},
		{object.Real64(2), "2.0"},
		{object.Float64(2), "2.0f"},
		{object.Char('a'), "'a'"},
		{object.Uni('é'), "'\\u00E9'"},
		{object.Str("hi"), `"hi"`},
		{object.Str("a\"b\n{"), `"a\"b\n\{"`},
	}
	for _, tt := range tests {
		if got := p.Print(tt.value); got != tt.want {
			t.Errorf("expected %s, got %s", tt.want, got)
		}
	}
}

func TestSymbolsPrintTheirNames(t *testing.T) {
	syms := symbol.New()
	p := New(syms)
	s := syms.Intern("get-member")
	if got := p.Print(object.Sym(s)); got != "get-member" {
		t.Errorf("expected get-member, got %s", got)
	}
}

func TestListsAndPairs(t *testing.T) {
	syms := symbol.New()
	p := New(syms)
	plus := syms.Intern("+")

	list := object.List(object.Int32(1), object.Int32(2), object.Int32(3))
	if got := p.Print(list); got != "[1 2 3]" {
		t.Errorf("list: got %s", got)
	}

	pair := object.MakePair(object.Int32(1), object.Sym(plus))
	if got := p.Print(pair); got != "(1 . +)" {
		t.Errorf("pair: got %s", got)
	}

	dotted := object.Cons(object.Int32(1), object.Int32(2))
	if got := p.Print(dotted); got != "[1 . 2]" {
		t.Errorf("dotted: got %s", got)
	}

	nested := object.List(pair, object.Int32(10))
	if got := p.Print(nested); got != "[(1 . +) 10]" {
		t.Errorf("nested: got %s", got)
	}
}
