package external

import (
	"strings"
	"testing"

	"github.com/smile-lang/smile/internal/object"
)

func TestCheckArgCount(t *testing.T) {
	f := &Function{Name: "f", MinArgs: 1, MaxArgs: 2}

	if err := f.Check(nil); err == nil {
		t.Errorf("too few arguments must fail")
	}
	if err := f.Check([]object.Value{object.Int32(1)}); err != nil {
		t.Errorf("one argument must pass: %v", err)
	}
	if err := f.Check([]object.Value{object.Int32(1), object.Int32(2), object.Int32(3)}); err == nil {
		t.Errorf("too many arguments must fail")
	}
}

func TestMaxArgsZeroMeansUnbounded(t *testing.T) {
	f := &Function{Name: "f", MinArgs: 0, MaxArgs: 0}
	args := make([]object.Value, 100)
	for i := range args {
		args[i] = object.Null
	}
	if err := f.Check(args); err != nil {
		t.Errorf("unbounded function must take any count: %v", err)
	}

	min, max := f.Arity()
	if min != 0 || max != -1 {
		t.Errorf("Arity for unbounded: got (%d, %d)", min, max)
	}
}

func TestCheckTypes(t *testing.T) {
	f := &Function{
		Name:       "f",
		MinArgs:    2,
		MaxArgs:    2,
		CheckTypes: true,
		ArgChecks: []ArgCheck{
			{KindMask: MaskOf(object.KindInt32, object.KindInt64), Expected: object.KindInt32},
			{}, // empty mask: any kind
		},
	}

	if err := f.Check([]object.Value{object.Int32(1), object.Str("x")}); err != nil {
		t.Errorf("matching kinds must pass: %v", err)
	}
	err := f.Check([]object.Value{object.Str("x"), object.Str("y")})
	if err == nil {
		t.Fatalf("kind mismatch must fail")
	}
	if !strings.Contains(err.Error(), "argument 1") {
		t.Errorf("error must name the position: %v", err)
	}
}

func TestChecksSkippedWithoutFlag(t *testing.T) {
	f := &Function{
		Name:      "f",
		MinArgs:   1,
		MaxArgs:   1,
		ArgChecks: []ArgCheck{{KindMask: MaskOf(object.KindInt32), Expected: object.KindInt32}},
	}
	if err := f.Check([]object.Value{object.Str("x")}); err != nil {
		t.Errorf("type checks must be off without CheckTypes: %v", err)
	}
}
