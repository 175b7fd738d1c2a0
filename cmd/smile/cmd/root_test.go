package cmd

import (
	"testing"

	"github.com/smile-lang/smile/internal/object"
)

func TestParseLiteral(t *testing.T) {
	tests := []struct {
		raw  string
		kind object.Kind
	}{
		{"true", object.KindBool},
		{"false", object.KindBool},
		{"null", object.KindNull},
		{"42", object.KindInt32},
		{"0x10", object.KindInt32},
		{"5000000000", object.KindInt64},
		{"1.5", object.KindReal64},
		{`"quoted"`, object.KindString},
		{"bare-text", object.KindString},
	}
	for _, tt := range tests {
		v, err := parseLiteral(tt.raw)
		if err != nil {
			t.Fatalf("%q: %v", tt.raw, err)
		}
		if v.Kind != tt.kind {
			t.Errorf("%q: expected %s, got %s", tt.raw, tt.kind, v.Kind)
		}
	}

	if v, _ := parseLiteral(`"quoted"`); v.Data.(*object.SmileString).String() != "quoted" {
		t.Errorf("quotes must be stripped")
	}
	if v, _ := parseLiteral("0x10"); v.Data.(int32) != 16 {
		t.Errorf("hex literals must decode")
	}
}
