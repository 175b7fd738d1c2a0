// Package parsescope implements Smile's lexical declaration tracking during
// parsing (spec.md 3, 4.3): a chain of symbol->declaration maps consulted
// by the parser to decide whether a name is a bound variable, an argument,
// a till-flag, or unknown (and therefore possibly an operator candidate via
// the syntax table).
package parsescope

import (
	"github.com/smile-lang/smile/internal/lexer"
	"github.com/smile-lang/smile/internal/symbol"
)

// DeclKind is the kind of binding a name has in a ParseScope.
type DeclKind byte

const (
	DeclGlobal DeclKind = iota
	DeclArgument
	DeclVariable
	DeclTillFlag
	DeclConst
	DeclSyntaxNonterminal
)

// ScopeKind distinguishes a function-boundary scope (where `declare` — as
// opposed to `declareHere` — comes to rest) from an ordinary block scope
// (spec.md 4.3).
type ScopeKind byte

const (
	ScopeRoot ScopeKind = iota
	ScopeFunction
	ScopeBlock
	ScopeTill
)

// Declaration records how and where a symbol was bound.
type Declaration struct {
	Symbol symbol.Symbol
	Kind   DeclKind
	Pos    lexer.Position
	// ConstValue holds the compile-time substitution value for DeclConst
	// bindings; nil otherwise.
	ConstValue interface{}
}

// Scope is one lexical region's declaration table, linked to its parent.
type Scope struct {
	parent *Scope
	kind   ScopeKind
	decls  map[symbol.Symbol]*Declaration
	// depth counts function-scope nesting from the root, used by the
	// compiler to compute functionDepth for lexical variable access
	// (spec.md 4.6).
	depth int
}

// CreateRoot creates the outermost scope (the global/REPL scope).
func CreateRoot() *Scope {
	return &Scope{kind: ScopeRoot, decls: make(map[symbol.Symbol]*Declaration)}
}

// CreateChild creates a nested scope of the given kind under parent.
func CreateChild(parent *Scope, kind ScopeKind) *Scope {
	depth := parent.depth
	if kind == ScopeFunction {
		depth++
	}
	return &Scope{parent: parent, kind: kind, decls: make(map[symbol.Symbol]*Declaration), depth: depth}
}

// Depth is this scope's function-nesting depth from the root.
func (s *Scope) Depth() int { return s.depth }

// Parent returns the enclosing scope, or nil for the root.
func (s *Scope) Parent() *Scope { return s.parent }

// Kind reports this scope's kind.
func (s *Scope) Kind() ScopeKind { return s.kind }

// FindHere looks up sym only in this scope, not its ancestors.
func (s *Scope) FindHere(sym symbol.Symbol) (*Declaration, bool) {
	d, ok := s.decls[sym]
	return d, ok
}

// Find walks from this scope to the root looking for sym.
func (s *Scope) Find(sym symbol.Symbol) (*Declaration, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if d, ok := cur.decls[sym]; ok {
			return d, true
		}
	}
	return nil, false
}

// nearestFunctionScope walks up to (and including) the nearest function or
// root scope, which is where `declare` (as opposed to `declareHere`) comes
// to rest (spec.md 4.3).
func (s *Scope) nearestFunctionScope() *Scope {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.kind == ScopeFunction || cur.kind == ScopeRoot {
			return cur
		}
	}
	return s
}

// DeclareHere binds sym in exactly this scope. It fails if sym is already
// declared here, whatever the kinds, except that a DeclGlobal re-assertion
// of an existing DeclGlobal binding is allowed (spec.md 4.3).
func (s *Scope) DeclareHere(sym symbol.Symbol, kind DeclKind, pos lexer.Position) (*Declaration, bool) {
	if existing, ok := s.decls[sym]; ok {
		if existing.Kind == DeclGlobal && kind == DeclGlobal {
			return existing, true
		}
		return existing, false
	}
	d := &Declaration{Symbol: sym, Kind: kind, Pos: pos}
	s.decls[sym] = d
	return d, true
}

// Declare binds sym at the nearest enclosing function (or root) scope.
func (s *Scope) Declare(sym symbol.Symbol, kind DeclKind, pos lexer.Position) (*Declaration, bool) {
	return s.nearestFunctionScope().DeclareHere(sym, kind, pos)
}

// DeclareVariablesFromNames bulk-imports a set of names as globals, used to
// seed a REPL scope from the persistent global closure's known variable set
// (spec.md 4.3, "declareVariablesFromClosureInfo").
func (s *Scope) DeclareVariablesFromNames(names []symbol.Symbol) {
	for _, n := range names {
		s.DeclareHere(n, DeclGlobal, lexer.Position{})
	}
}
