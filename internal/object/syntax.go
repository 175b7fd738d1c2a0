package object

import "github.com/smile-lang/smile/internal/symbol"

// RepeatKind is how many times a Nonterminal pattern element may match
// (spec.md 3).
type RepeatKind byte

const (
	RepeatNone RepeatKind = iota // exactly one
	RepeatOpt                    // ?
	RepeatStar                   // *
	RepeatPlus                   // +
)

// Nonterminal is a pattern-element descriptor inside a syntax rule: which
// grammar class to recurse into, what name captures the match, how many
// times it may repeat, and (for */+) what separates repetitions (spec.md 3).
type Nonterminal struct {
	Class      symbol.Symbol
	Variable   symbol.Symbol
	Repeat     RepeatKind
	Separator  symbol.Symbol
}

func MakeNonterminal(n *Nonterminal) Value {
	return Value{Kind: KindNonterminal, Data: n}
}

// Syntax is a single parsed grammar rule: the nonterminal class it extends,
// its pattern (a mix of literal terminal symbols and Nonterminal elements),
// and the backquote-templated replacement raw form (spec.md 3, 4.4).
type Syntax struct {
	Class       symbol.Symbol
	Pattern     []Value // each element is either Value{Kind:KindSymbol} (terminal) or Value{Kind:KindNonterminal}
	Replacement Value
}

func MakeSyntax(s *Syntax) Value {
	return Value{Kind: KindSyntax, Data: s}
}
