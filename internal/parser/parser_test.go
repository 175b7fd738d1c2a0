package parser

import (
	"strings"
	"testing"

	"github.com/smile-lang/smile/internal/lexer"
	"github.com/smile-lang/smile/internal/object"
	"github.com/smile-lang/smile/internal/printer"
	"github.com/smile-lang/smile/internal/symbol"
)

type fixture struct {
	symbols *symbol.Table
	known   *symbol.Known
	parser  *Parser
}

func parse(t *testing.T, source string) (object.Value, *fixture) {
	t.Helper()
	symbols := symbol.New()
	known := symbol.NewKnown(symbols)
	lx := lexer.New(source)
	p := New(lx, symbols, known)
	raw := p.Parse()
	return raw, &fixture{symbols: symbols, known: known, parser: p}
}

// parseOK asserts a clean parse and returns the raw form's stable printed
// representation.
func parseOK(t *testing.T, source string) string {
	t.Helper()
	raw, fx := parse(t, source)
	if fx.parser.Diagnostics().HasErrors(false) {
		t.Fatalf("parse of %q failed:\n%s", source, fx.parser.Diagnostics().FormatAll(false))
	}
	return printer.New(fx.symbols).Print(raw)
}

func TestLiteralSequence(t *testing.T) {
	got := parseOK(t, `12 12345 45 0x10 0x2B "or not" 0x2B`)
	want := `[$progn 12 12345 45 16 43 "or not" 43]`
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestComparisonChainsAndAnd(t *testing.T) {
	got := parseOK(t, `1 < 10 and 0 == 0 and 15 >= 8`)
	want := `[$and [(1 . <) 10] [(0 . ==) 0] [(15 . >=) 8]]`
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestIfThenElse(t *testing.T) {
	got := parseOK(t, `if 1 < 2 then 10 else 20`)
	want := `[$if [(1 . <) 2] 10 20]`
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestLambda(t *testing.T) {
	got := parseOK(t, `|x y| x * y + 1`)
	want := `[$fn [x y] [([(x . *) y] . +) 1]]`
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestPrecedence(t *testing.T) {
	tests := []struct{ source, want string }{
		{`1 + 2 * 3`, `[(1 . +) [(2 . *) 3]]`},
		{`not 1 and 2`, `[$and [$not 1] 2]`},
		{`1 or 2 or 3`, `[$or 1 2 3]`},
		{`1 === 2`, `[$eq 1 2]`},
		{`1 !== 2`, `[$ne 1 2]`},
		{`1 is 2`, `[$is 1 2]`},
		{`typeof 1`, `[$typeof 1]`},
		{`1 ## 2 ## 3`, `[(1 . ##) [(2 . ##) 3]]`},
		{`1 .. 3`, `[(1 . range-to) 3]`},
		{`- 5`, `[(5 . -)]`},
	}
	for _, tt := range tests {
		if got := parseOK(t, tt.source); got != tt.want {
			t.Errorf("%q: expected %s, got %s", tt.source, tt.want, got)
		}
	}
}

func TestAssignmentForms(t *testing.T) {
	tests := []struct{ source, want string }{
		{`var x = 1`, `[$set x 1]`},
		{`var x = 1; x = 2`, `[$progn [$set x 1] [$set x 2]]`},
		{`var x = 1; x += 3`, `[$progn [$set x 1] [$opset + x 3]]`},
		{`var o = null; o.f = 1`, `[$progn [$set o []] [$set (o . f) 1]]`},
		{`var m = null; m:1 = 2`, `[$progn [$set m []] [$set [$index m 1] 2]]`},
	}
	for _, tt := range tests {
		if got := parseOK(t, tt.source); got != tt.want {
			t.Errorf("%q: expected %s, got %s", tt.source, tt.want, got)
		}
	}
}

func TestWhileShapes(t *testing.T) {
	tests := []struct{ source, want string }{
		{`while 1 < 2 do 3`, `[$while [] [(1 . <) 2] 3]`},
		{`do 3 while 1 < 2`, `[$while 3 [(1 . <) 2] []]`},
		{`do 3 while 1 < 2 then 4`, `[$while 3 [(1 . <) 2] 4]`},
	}
	for _, tt := range tests {
		if got := parseOK(t, tt.source); got != tt.want {
			t.Errorf("%q: expected %s, got %s", tt.source, tt.want, got)
		}
	}
}

func TestTillForm(t *testing.T) {
	got := parseOK(t, `till done, quit do done when done 5`)
	want := `[$till [done quit] done [[done 5]]]`
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestTryCatch(t *testing.T) {
	got := parseOK(t, `try 1 catch |e| e`)
	want := `[$catch 1 [$fn [e] e]]`
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestScopeBlockAndReturn(t *testing.T) {
	got := parseOK(t, `|x| { var y = 1; return y }`)
	want := `[$fn [x] [$scope [y] [$set y 1] [$return y]]]`
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestNewForm(t *testing.T) {
	got := parseOK(t, `new null { a: 1, b: 2 }`)
	want := `[$new [] [[a 1] [b 2]]]`
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestQuoteTemplate(t *testing.T) {
	got := parseOK(t, "`[a b 42]")
	want := `[$quote [a b 42]]`
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestDynamicStringBecomesJoinCall(t *testing.T) {
	got := parseOK(t, `"n={1}!"`)
	want := `[("n=" . join) 1 "!"]`
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestUnknownNameIsError(t *testing.T) {
	_, fx := parse(t, `my-if 1 < 2 then 10`)
	if !fx.parser.Diagnostics().HasErrors(false) {
		t.Errorf("an undeclared keyword-like statement must be a parse error")
	}
}

func TestSyntaxRuleMatches(t *testing.T) {
	got := parseOK(t, "#syntax STMT: [my-if [EXPR x] then [STMT y]] => `[$if (x) (y)]\n"+
		"my-if 1 < 2 then 10")
	want := `[$if [(1 . <) 2] 10]`
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestSyntaxRuleLongestMatchWins(t *testing.T) {
	got := parseOK(t, "#syntax STMT: [when-big [EXPR x]] => `[$quote short]\n"+
		"#syntax STMT: [when-big [EXPR x] really] => `[$quote long]\n"+
		"when-big 5 really")
	want := `[$quote long]`
	if got != want {
		t.Errorf("expected the longer match: got %s", got)
	}
}

func TestSyntaxRuleTieBreaksByDeclarationOrder(t *testing.T) {
	got := parseOK(t, "#syntax STMT: [pick [EXPR x]] => `[$quote first]\n"+
		"#syntax STMT: [pick [ADDEXPR y]] => `[$quote second]\n"+
		"pick 5")
	want := `[$quote first]`
	if got != want {
		t.Errorf("expected the earliest-declared rule on a tie: got %s", got)
	}
}

func TestSyntaxRuleWithRepetition(t *testing.T) {
	got := parseOK(t, "#syntax STMT: [list-of [EXPR+ xs ,]] => `[$quote [@@xs]]\n"+
		"list-of 1, 2, 3")
	want := `[$quote [1 2 3]]`
	if got != want {
		t.Errorf("expected spliced captures: got %s", got)
	}
}

func TestSyntaxRuleRevertsAtScopeExit(t *testing.T) {
	source := "{ #syntax STMT: [loud [EXPR x]] => `[$quote (x)]\nloud 5 }"
	raw, fx := parse(t, source)
	if fx.parser.Diagnostics().HasErrors(false) {
		t.Fatalf("in-scope use must parse:\n%s", fx.parser.Diagnostics().FormatAll(false))
	}
	got := printer.New(fx.symbols).Print(raw)
	if got != `[$scope [] [$quote 5]]` {
		t.Errorf("unexpected raw form %s", got)
	}

	// Outside the brace scope the rule is gone.
	_, fx2 := parse(t, source+"\nloud 6")
	if !fx2.parser.Diagnostics().HasErrors(false) {
		t.Errorf("the rule must not survive its declaring scope")
	}
}

func TestSyntaxTablePointerRestoredAfterScope(t *testing.T) {
	symbols := symbol.New()
	known := symbol.NewKnown(symbols)
	lx := lexer.New("{ #syntax STMT: [loud [EXPR x]] => `[$quote (x)]\nloud 5 }")
	p := New(lx, symbols, known)
	before := p.SyntaxTable()
	p.Parse()
	if p.SyntaxTable() != before {
		t.Errorf("a scoped rule must leave the outer table identical")
	}
}

func TestDuplicateSyntaxRuleReported(t *testing.T) {
	_, fx := parse(t, "#syntax STMT: [loud [EXPR x]] => `[$quote (x)]\n"+
		"#syntax STMT: [loud [EXPR x]] => `[$quote (x)]")
	if !fx.parser.Diagnostics().HasErrors(false) {
		t.Errorf("duplicate rules must be rejected")
	}
}

func TestParserRecoversAfterError(t *testing.T) {
	raw, fx := parse(t, "unknown-thing 1\n2 + 3")
	if !fx.parser.Diagnostics().HasErrors(false) {
		t.Fatalf("expected an error for the first statement")
	}
	got := printer.New(fx.symbols).Print(raw)
	if !strings.Contains(got, `[(2 . +) 3]`) {
		t.Errorf("parser must recover and parse the next statement: %s", got)
	}
}

func TestNewlineEndsExpression(t *testing.T) {
	// A binary operator at line start outside brackets ends the previous
	// expression, so this is two statements, the second an error.
	_, fx := parse(t, "1\n* 2")
	if !fx.parser.Diagnostics().HasErrors(false) {
		t.Errorf("an operator at line start must not continue the expression")
	}

	// Inside parens the same operator wraps.
	got := parseOK(t, "(1\n+ 2)")
	if got != `[(1 . +) 2]` {
		t.Errorf("operators must wrap inside brackets: %s", got)
	}
}

func TestRoundTripStableForms(t *testing.T) {
	// parse(stringify(e)) must reproduce e for syntax-extension-free raw
	// forms (spec.md 8).
	sources := []string{
		`[$progn 12 "x" [$if [(1 . <) 2] 10 20]]`,
		`[$fn [$a $b] [($a . +) $b]]`,
		`[$quote [1 2 [3]]]`,
	}
	for _, src := range sources {
		first := parseOK(t, src)
		second := parseOK(t, first)
		if first != second {
			t.Errorf("round trip diverged:\n%s\n%s", first, second)
		}
	}
}
