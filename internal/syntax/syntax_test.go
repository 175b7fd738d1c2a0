package syntax

import (
	"testing"

	"github.com/smile-lang/smile/internal/object"
	"github.com/smile-lang/smile/internal/symbol"
)

func setup() (*symbol.Table, *symbol.Known, *Table) {
	syms := symbol.New()
	known := symbol.NewKnown(syms)
	return syms, known, NewTable(known)
}

func terminal(syms *symbol.Table, name string) PatternElement {
	return PatternElement{Terminal: syms.Intern(name)}
}

func nonterm(class, variable symbol.Symbol, repeat object.RepeatKind) PatternElement {
	return PatternElement{Nonterm: &object.Nonterminal{Class: class, Variable: variable, Repeat: repeat}}
}

func TestAddRuleAndLookup(t *testing.T) {
	syms, known, tbl := setup()
	rule := Rule{
		Class: known.Stmt,
		Pattern: []PatternElement{
			terminal(syms, "my-if"),
			nonterm(known.Expr, syms.Intern("x"), object.RepeatNone),
		},
		Replacement: object.List(object.Sym(known.IfForm)),
	}

	out, err := AddRule(tbl, known, rule)
	if err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	if out != tbl {
		t.Fatalf("unshared table must mutate in place")
	}

	root := out.Lookup(known.Stmt)
	node, ok := root.NextTerminal(syms.Intern("my-if"))
	if !ok {
		t.Fatalf("terminal edge missing")
	}
	edges := node.NextNonterminals()
	if len(edges) != 1 || edges[0].Descriptor.Class != known.Expr {
		t.Fatalf("nonterminal edge missing: %v", edges)
	}
	if !edges[0].Next.IsAccepting() {
		t.Errorf("pattern end must accept")
	}
}

func TestValidationErrors(t *testing.T) {
	syms, known, tbl := setup()
	repl := object.List(object.Sym(known.IfForm))

	tests := []struct {
		name string
		rule Rule
	}{
		{"empty pattern", Rule{Class: known.Stmt, Replacement: repl}},
		{"null replacement", Rule{
			Class:       known.Stmt,
			Pattern:     []PatternElement{terminal(syms, "kw")},
			Replacement: object.Null,
		}},
		{"optional initial nonterminal", Rule{
			Class:       syms.Intern("MYCLASS"),
			Pattern:     []PatternElement{nonterm(known.Expr, syms.Intern("x"), object.RepeatOpt)},
			Replacement: repl,
		}},
		{"starred initial nonterminal", Rule{
			Class:       syms.Intern("MYCLASS"),
			Pattern:     []PatternElement{nonterm(known.Expr, syms.Intern("x"), object.RepeatStar)},
			Replacement: repl,
		}},
		{"restricted class starting with a foreign nonterminal", Rule{
			Class:       known.Stmt,
			Pattern:     []PatternElement{nonterm(known.Expr, syms.Intern("x"), object.RepeatNone)},
			Replacement: repl,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := AddRule(tbl, known, tt.rule); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestDuplicatePatternRejected(t *testing.T) {
	syms, known, tbl := setup()
	rule := Rule{
		Class:       known.Stmt,
		Pattern:     []PatternElement{terminal(syms, "loud")},
		Replacement: object.List(object.Sym(known.QuoteForm)),
	}
	tbl, err := AddRule(tbl, known, rule)
	if err != nil {
		t.Fatalf("first add: %v", err)
	}

	rule.Replacement = object.List(object.Sym(known.IfForm))
	if _, err := AddRule(tbl, known, rule); err == nil {
		t.Errorf("duplicate pattern must be rejected regardless of replacement")
	}
}

func TestCopyOnWriteLeavesParentUntouched(t *testing.T) {
	syms, known, tbl := setup()

	shared := tbl.Retain()
	rule := Rule{
		Class:       known.Stmt,
		Pattern:     []PatternElement{terminal(syms, "loud")},
		Replacement: object.List(object.Sym(known.QuoteForm)),
	}
	child, err := AddRule(shared, known, rule)
	if err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	if child == tbl {
		t.Fatalf("mutating a shared table must clone")
	}

	if _, ok := tbl.Lookup(known.Stmt).NextTerminal(syms.Intern("loud")); ok {
		t.Errorf("parent table must be unaffected by the child's rule")
	}
	if _, ok := child.Lookup(known.Stmt).NextTerminal(syms.Intern("loud")); !ok {
		t.Errorf("child table must hold the rule")
	}
}

func TestLeftRecursiveSelfReferenceAllowed(t *testing.T) {
	syms, known, tbl := setup()
	rule := Rule{
		Class: known.CmpExpr,
		Pattern: []PatternElement{
			nonterm(known.CmpExpr, syms.Intern("x"), object.RepeatNone),
			terminal(syms, "between"),
			nonterm(known.AddExpr, syms.Intern("lo"), object.RepeatNone),
		},
		Replacement: object.List(object.Sym(known.AndForm)),
	}
	if _, err := AddRule(tbl, known, rule); err != nil {
		t.Errorf("left-recursive self-reference must be accepted: %v", err)
	}
}
