// Package syntax implements Smile's user-declarable grammar store (spec.md
// 3, 4.4): a trie of SyntaxClass nodes per nonterminal, mutated at parse
// time by `#syntax` declarations and consulted by the parser for
// speculative rule matching.
package syntax

import (
	"fmt"

	"github.com/smile-lang/smile/internal/object"
	"github.com/smile-lang/smile/internal/symbol"
)

// edgeKey is a trie edge: either a terminal symbol or a nonterminal class
// (with its captured-variable/repeat/separator annotation).
type edgeKey struct {
	terminal    symbol.Symbol // valid when !isNonterminal
	class       symbol.Symbol // valid when isNonterminal
	variable    symbol.Symbol
	repeat      object.RepeatKind
	separator   symbol.Symbol
	isNonterminal bool
}

// Class is one node of the grammar trie for a single nonterminal (spec.md
// 4.4): outgoing edges keyed by the next pattern element, and — on an
// accepting node — the replacement template.
type Class struct {
	nextTerminals    map[symbol.Symbol]*Class
	nextNonterminals map[edgeKey]*Class
	replacement      *object.Value // nil unless accepting
	seq              int           // declaration order of the accepting rule
	refcount         int
}

func newClass() *Class {
	return &Class{
		nextTerminals:    make(map[symbol.Symbol]*Class),
		nextNonterminals: make(map[edgeKey]*Class),
	}
}

// Table maps nonterminal class symbols to their Class trie root. It is
// reference-counted and copy-on-write: AddRule clones the table (and its
// Class tries) the first time it is called on a table shared
// with a parent scope, per spec.md 4.4.
type Table struct {
	classes  map[symbol.Symbol]*Class
	refcount int
}

// NewTable creates an empty syntax table, pre-seeded with empty Class roots
// for the predeclared precedence-chain nonterminals (spec.md 4.5).
func NewTable(k *symbol.Known) *Table {
	t := &Table{classes: make(map[symbol.Symbol]*Class), refcount: 1}
	for _, c := range []symbol.Symbol{
		k.Stmt, k.Expr, k.OrExpr, k.AndExpr, k.NotExpr, k.CmpExpr,
		k.AddExpr, k.MulExpr, k.BinaryExpr, k.ColonExpr, k.RangeExpr,
		k.PrefixExpr, k.ConsExpr, k.DotExpr, k.Term,
	} {
		t.classes[c] = newClass()
	}
	return t
}

// Retain increments the table's reference count; call this whenever a
// child parse scope begins sharing its parent's table unmodified.
func (t *Table) Retain() *Table {
	t.refcount++
	return t
}

// Release drops one reference taken by Retain. Call when the sharing scope
// closes while still holding the shared table (if the scope mutated it, cow
// already decremented the shared count and the clone is released instead).
func (t *Table) Release() {
	if t.refcount > 0 {
		t.refcount--
	}
}

// cow returns a table safe to mutate in place: itself if refcount == 1,
// otherwise a clone of the class map and of every Class trie in it, so no
// node reachable from the shared table is mutated (copy-on-write, spec.md
// 4.4).
func (t *Table) cow() *Table {
	if t.refcount <= 1 {
		return t
	}
	t.refcount--
	clone := &Table{classes: make(map[symbol.Symbol]*Class, len(t.classes)), refcount: 1}
	var copyClass func(c *Class) *Class
	copyClass = func(c *Class) *Class {
		n := newClass()
		n.replacement, n.seq, n.refcount = c.replacement, c.seq, c.refcount
		for k, v := range c.nextTerminals {
			n.nextTerminals[k] = copyClass(v)
		}
		for k, v := range c.nextNonterminals {
			n.nextNonterminals[k] = copyClass(v)
		}
		return n
	}
	for sym, cls := range t.classes {
		clone.classes[sym] = copyClass(cls)
	}
	return clone
}

func (t *Table) classFor(sym symbol.Symbol) *Class {
	if c, ok := t.classes[sym]; ok {
		return c
	}
	return nil
}

// PatternElement is one element of a rule's pattern: either a bare terminal
// symbol or a Nonterminal descriptor (spec.md 3, 4.4).
type PatternElement struct {
	Terminal    symbol.Symbol // valid when Nonterm == nil
	Nonterm     *object.Nonterminal
}

// Rule is the full shape handed to AddRule: which class it extends, its
// pattern, its replacement template, and its declaration sequence number
// (used for earliest-declared-wins tie-breaking during speculative
// matching).
type Rule struct {
	Class       symbol.Symbol
	Pattern     []PatternElement
	Replacement object.Value
	Seq         int
}

// restrictedStart is the set of classes whose rules must begin with a
// keyword (a terminal) except for the documented left-recursive extension
// shape (spec.md 4.4).
func restrictedStart(k *symbol.Known, class symbol.Symbol) bool {
	switch class {
	case k.Stmt, k.Expr, k.CmpExpr, k.AddExpr, k.MulExpr, k.BinaryExpr,
		k.PrefixExpr, k.Term:
		return true
	}
	return false
}

// AddRule validates and inserts rule, returning the (possibly
// copy-on-write-cloned) table to use from this point in the parse scope
// onward. An error is returned without mutating t on any validation
// failure (spec.md 4.4).
func AddRule(t *Table, k *symbol.Known, rule Rule) (*Table, error) {
	if len(rule.Pattern) == 0 {
		return t, fmt.Errorf("syntax rule for class %d: empty pattern", rule.Class)
	}
	if rule.Replacement.Kind == object.KindNull {
		return t, fmt.Errorf("syntax rule for class %d: null replacement is rejected", rule.Class)
	}

	first := rule.Pattern[0]
	if first.Nonterm != nil {
		if first.Nonterm.Repeat == object.RepeatOpt || first.Nonterm.Repeat == object.RepeatStar {
			return t, fmt.Errorf("syntax rule for class %d: cannot start with an optional/repeated nonterminal", rule.Class)
		}
		if restrictedStart(k, rule.Class) && first.Nonterm.Class != rule.Class {
			return t, fmt.Errorf("syntax rule for class %d: must begin with a keyword or left-recursive self-reference", rule.Class)
		}
	}

	out := t.cow()
	root, ok := out.classes[rule.Class]
	if !ok {
		root = newClass()
		out.classes[rule.Class] = root
	}

	node := root
	for _, elem := range rule.Pattern {
		if elem.Nonterm != nil {
			key := edgeKey{
				isNonterminal: true,
				class:         elem.Nonterm.Class,
				variable:      elem.Nonterm.Variable,
				repeat:        elem.Nonterm.Repeat,
				separator:     elem.Nonterm.Separator,
			}
			next, ok := node.nextNonterminals[key]
			if !ok {
				next = newClass()
				node.nextNonterminals[key] = next
			}
			node = next
		} else {
			next, ok := node.nextTerminals[elem.Terminal]
			if !ok {
				next = newClass()
				node.nextTerminals[elem.Terminal] = next
			}
			node = next
		}
	}

	if node.replacement != nil {
		return t, fmt.Errorf("syntax rule for class %d: duplicate pattern", rule.Class)
	}
	repl := rule.Replacement
	node.replacement = &repl
	node.seq = rule.Seq
	return out, nil
}

// Lookup returns the Class trie root for a nonterminal class, or nil if no
// rules target it.
func (t *Table) Lookup(class symbol.Symbol) *Class {
	return t.classFor(class)
}

// NextTerminal follows a terminal-symbol edge from c.
func (c *Class) NextTerminal(sym symbol.Symbol) (*Class, bool) {
	n, ok := c.nextTerminals[sym]
	return n, ok
}

// NonterminalEdge is one outgoing nonterminal-keyed edge, exposed for the
// parser's speculative matching loop.
type NonterminalEdge struct {
	Descriptor *object.Nonterminal
	Next       *Class
}

// NextNonterminals returns every outgoing nonterminal edge from c, in
// pattern-declaration order is not guaranteed (map iteration) — the parser
// is responsible for earliest-declared-wins tie-breaking using the rule
// registration order it tracks separately.
func (c *Class) NextNonterminals() []NonterminalEdge {
	edges := make([]NonterminalEdge, 0, len(c.nextNonterminals))
	for key, next := range c.nextNonterminals {
		d := &object.Nonterminal{Class: key.class, Variable: key.variable, Repeat: key.repeat, Separator: key.separator}
		edges = append(edges, NonterminalEdge{Descriptor: d, Next: next})
	}
	return edges
}

// Replacement returns this node's template if it is an accepting node.
func (c *Class) Replacement() (object.Value, bool) {
	if c.replacement == nil {
		return object.Null, false
	}
	return *c.replacement, true
}

// IsAccepting reports whether c terminates a rule.
func (c *Class) IsAccepting() bool { return c.replacement != nil }

// Seq returns the declaration sequence number of the rule accepted at c.
func (c *Class) Seq() int { return c.seq }

// HasRules reports whether any edge leaves c, i.e. whether speculative
// matching can make progress from here at all.
func (c *Class) HasRules() bool {
	return len(c.nextTerminals) > 0 || len(c.nextNonterminals) > 0
}
