package diagnostics

import (
	"strings"
	"testing"

	"github.com/smile-lang/smile/internal/lexer"
)

func TestDiagnostic_Format(t *testing.T) {
	d := New(Error, lexer.Position{File: "test.sm", Line: 2, Column: 5}, "unterminated string literal")
	d.Source = "x = 1\ny = \"oops\n"

	got := d.Format(false)
	want := "Error in test.sm:2:5\n   2 | y = \"oops\n           ^\nunterminated string literal"
	if got != want {
		t.Errorf("Format mismatch.\nExpected:\n%s\nGot:\n%s", want, got)
	}
}

func TestDiagnostic_FormatWithContext(t *testing.T) {
	d := New(Warning, lexer.Position{Line: 3, Column: 1}, "unused variable 'y'")
	d.Source = "a\nb\nvar y = 1\nc\nd"

	got := d.FormatWithContext(1, false)
	for _, fragment := range []string{"Warning at line 3:1", "   2 | b", "   3 | var y = 1", "   4 | c", "^", "unused variable 'y'"} {
		if !strings.Contains(got, fragment) {
			t.Errorf("context output missing %q:\n%s", fragment, got)
		}
	}
}

func TestList_HasErrors(t *testing.T) {
	var l List
	l.AddWarning(lexer.Position{Line: 1, Column: 1}, "unused variable %s", "x")

	if l.HasErrors(false) {
		t.Errorf("warnings alone should not count as errors")
	}
	if !l.HasErrors(true) {
		t.Errorf("warnings should count as errors under warnings-as-errors")
	}

	l.AddError(lexer.Position{Line: 2, Column: 1}, "expected ']'")
	if !l.HasErrors(false) {
		t.Errorf("error diagnostics must be reported by HasErrors")
	}
}

func TestList_FormatAllNumbersMultipleErrors(t *testing.T) {
	var l List
	l.AddError(lexer.Position{Line: 1, Column: 1}, "first")
	l.AddError(lexer.Position{Line: 2, Column: 1}, "second")

	got := l.FormatAll(false)
	if !strings.Contains(got, "[1/2]") || !strings.Contains(got, "[2/2]") {
		t.Errorf("multi-error output must be numbered:\n%s", got)
	}
}
