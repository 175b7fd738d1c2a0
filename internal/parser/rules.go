package parser

import (
	"github.com/smile-lang/smile/internal/lexer"
	"github.com/smile-lang/smile/internal/object"
	"github.com/smile-lang/smile/internal/parsescope"
	"github.com/smile-lang/smile/internal/symbol"
	"github.com/smile-lang/smile/internal/syntax"
)

// parserState snapshots everything speculative matching may disturb: the
// lexer, the consumed-token counter, and the diagnostics high-water mark
// (spec.md 4.5: "snapshotting lexer + scope state, rolling back on
// failure").
type parserState struct {
	lex      lexer.LexerState
	consumed int
	diags    int
}

func (p *Parser) snapshot() parserState {
	return parserState{
		lex:      p.lx.SaveState(),
		consumed: p.consumed,
		diags:    p.diags.Len(),
	}
}

func (p *Parser) restore(s parserState) {
	p.lx.RestoreState(s.lex)
	p.consumed = s.consumed
	if len(p.diags.Items) > s.diags {
		p.diags.Items = p.diags.Items[:s.diags]
	}
}

// matchResult is one successful speculative match: where it ended, what it
// captured, and which rule accepted it.
type matchResult struct {
	state       parserState
	bindings    map[symbol.Symbol]object.Value
	replacement object.Value
	seq         int
}

// tryUserRule speculatively matches the user-declared rules for class at
// the current position. The third result reports whether a rule matched at
// all; when it is false the caller proceeds with its built-in logic.
// The longest successful match wins; on ties, the earliest-declared rule
// (spec.md 4.5).
func (p *Parser) tryUserRule(class symbol.Symbol) (object.Value, bool, bool) {
	root := p.table.Lookup(class)
	if root == nil || !root.HasRules() {
		return object.Null, false, false
	}

	g := ruleGuard{class: class, offset: p.consumed}
	if p.guards[g] {
		return object.Null, false, false
	}
	p.guards[g] = true
	defer delete(p.guards, g)

	start := p.snapshot()
	var best *matchResult
	p.matchNode(root, map[symbol.Symbol]object.Value{}, &best)

	if best == nil || best.state.consumed == start.consumed {
		p.restore(start)
		return object.Null, false, false
	}

	p.restore(best.state)
	return p.applyTemplate(best.replacement, best.bindings), true, true
}

// matchNode walks the syntax trie from node, trying every viable edge and
// recording each accepting node reached in best. Backtracking is bounded
// by the trie depth: every recursion either consumes a token (terminal
// edge) or descends one trie level (nonterminal edge).
func (p *Parser) matchNode(node *syntax.Class, bindings map[symbol.Symbol]object.Value, best **matchResult) {
	if repl, ok := node.Replacement(); ok {
		cand := &matchResult{
			state:       p.snapshot(),
			bindings:    copyBindings(bindings),
			replacement: repl,
			seq:         node.Seq(),
		}
		cur := *best
		if cur == nil ||
			cand.state.consumed > cur.state.consumed ||
			(cand.state.consumed == cur.state.consumed && cand.seq < cur.seq) {
			*best = cand
		}
	}

	if ts, ok := terminalSymbolOf(p.cur(), p.symbols); ok {
		if next, found := node.NextTerminal(ts); found {
			save := p.snapshot()
			p.next()
			p.matchNode(next, bindings, best)
			p.restore(save)
		}
	}

	for _, edge := range node.NextNonterminals() {
		save := p.snapshot()
		captured, ok := p.matchNonterminalEdge(edge.Descriptor)
		if ok {
			b2 := copyBindings(bindings)
			b2[edge.Descriptor.Variable] = captured
			p.matchNode(edge.Next, b2, best)
		}
		p.restore(save)
	}
}

// matchNonterminalEdge parses one captured nonterminal, honoring its repeat
// kind and separator. For `*` and `?`, a failed parse still matches (with
// an empty capture); for `+`, at least one item is required.
func (p *Parser) matchNonterminalEdge(d *object.Nonterminal) (object.Value, bool) {
	switch d.Repeat {
	case object.RepeatNone:
		return p.parseClassBySymbol(d.Class)

	case object.RepeatOpt:
		save := p.snapshot()
		v, ok := p.parseClassBySymbol(d.Class)
		if !ok {
			p.restore(save)
			return object.Null, true
		}
		return v, true

	default: // RepeatStar, RepeatPlus
		var items []object.Value
		for {
			save := p.snapshot()
			v, ok := p.parseClassBySymbol(d.Class)
			if !ok {
				p.restore(save)
				break
			}
			items = append(items, v)
			if d.Separator != symbol.Invalid {
				ts, isTerm := terminalSymbolOf(p.cur(), p.symbols)
				if !isTerm || ts != d.Separator {
					break
				}
				p.next()
			}
		}
		if d.Repeat == object.RepeatPlus && len(items) == 0 {
			return object.Null, false
		}
		return object.List(items...), true
	}
}

// parseClassBySymbol dispatches a nonterminal class to its precedence-chain
// parse function; unknown classes are user-defined and parse only via their
// own rules.
func (p *Parser) parseClassBySymbol(class symbol.Symbol) (object.Value, bool) {
	k := p.known
	switch class {
	case k.Stmt:
		return p.parseStmt()
	case k.Expr:
		return p.parseExpr()
	case k.OrExpr:
		return p.parseOrExpr()
	case k.AndExpr:
		return p.parseAndExpr()
	case k.NotExpr:
		return p.parseNotExpr()
	case k.CmpExpr:
		return p.parseCmpExpr()
	case k.AddExpr:
		return p.parseAddExpr()
	case k.MulExpr:
		return p.parseMulExpr()
	case k.BinaryExpr:
		return p.parseBinaryExpr()
	case k.ColonExpr:
		return p.parseColonExpr()
	case k.RangeExpr:
		return p.parseRangeExpr()
	case k.PrefixExpr:
		return p.parsePrefixExpr()
	case k.ConsExpr:
		return p.parseConsExpr()
	case k.DotExpr:
		return p.parseDotExpr()
	case k.Term:
		return p.parseTerm()
	}

	v, ok, matched := p.tryUserRule(class)
	if !matched {
		p.errorAt(p.cur().Pos, "no rule for syntax class '%s' matches here", p.symbols.Name(class))
		return object.Null, false
	}
	return v, ok
}

// terminalSymbolOf maps a token usable as a rule terminal to its symbol.
func terminalSymbolOf(tok lexer.Token, symbols *symbol.Table) (symbol.Symbol, bool) {
	switch tok.Kind {
	case lexer.AlphaName, lexer.PunctName:
		return symbols.Intern(tok.Text), true
	case lexer.Comma:
		return symbols.Intern(","), true
	case lexer.Colon:
		return symbols.Intern(":"), true
	case lexer.Dot:
		return symbols.Intern("."), true
	case lexer.Semicolon:
		return symbols.Intern(";"), true
	}
	return symbol.Invalid, false
}

func copyBindings(b map[symbol.Symbol]object.Value) map[symbol.Symbol]object.Value {
	out := make(map[symbol.Symbol]object.Value, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// ---- #syntax declarations ----

// parseSyntaxDecl parses
//
//	#syntax CLASS: [pattern-elem ...] => `template
//
// where a pattern element is either a bare terminal name or a bracketed
// nonterminal [CLASS var], [CLASS? var], [CLASS* var sep], [CLASS+ var sep]
// (spec.md 4.4). The rule is validated and added to the active syntax
// table, copy-on-write if the table is shared with an enclosing scope. The
// returned KindSyntax value is a marker the statement loop drops.
func (p *Parser) parseSyntaxDecl() (object.Value, bool) {
	start := p.next() // #syntax

	classTok := p.cur()
	if classTok.Kind != lexer.AlphaName {
		p.errorAt(classTok.Pos, "expected a syntax class name after '#syntax'")
		return object.Null, false
	}
	p.next()
	classSym := p.intern(classTok.Text)
	if _, found := p.scope.Find(classSym); !found {
		p.scope.DeclareHere(classSym, parsescope.DeclSyntaxNonterminal, classTok.Pos)
	}

	if p.cur().Kind != lexer.Colon {
		p.errorAt(p.cur().Pos, "expected ':' after syntax class name")
		return object.Null, false
	}
	p.next()

	if p.cur().Kind != lexer.LeftBracket {
		p.errorAt(p.cur().Pos, "expected '[' to open the syntax pattern")
		return object.Null, false
	}
	p.next()

	var pattern []syntax.PatternElement
	for {
		tok := p.cur()
		if tok.Kind == lexer.RightBracket {
			p.next()
			break
		}
		if tok.Kind == lexer.EOI {
			p.errorAt(start.Pos, "unterminated syntax pattern")
			return object.Null, false
		}
		if tok.Kind == lexer.LeftBracket {
			elem, ok := p.parseNonterminalElement()
			if !ok {
				return object.Null, false
			}
			pattern = append(pattern, elem)
			continue
		}
		ts, ok := terminalSymbolOf(tok, p.symbols)
		if !ok {
			p.errorAt(tok.Pos, "'%s' cannot appear in a syntax pattern", tok.Text)
			return object.Null, false
		}
		p.next()
		pattern = append(pattern, syntax.PatternElement{Terminal: ts})
	}

	if t := p.cur(); t.Kind != lexer.PunctName || t.Text != "=>" {
		p.errorAt(t.Pos, "expected '=>' between pattern and replacement")
		return object.Null, false
	}
	p.next()

	if p.cur().Kind != lexer.Backtick {
		p.errorAt(p.cur().Pos, "expected a backquote template as the replacement")
		return object.Null, false
	}
	p.next()
	tmpl, ok := p.parseTemplate()
	if !ok {
		return object.Null, false
	}

	rule := syntax.Rule{
		Class:       classSym,
		Pattern:     pattern,
		Replacement: tmpl,
		Seq:         p.ruleSeq,
	}
	p.ruleSeq++

	newTable, err := syntax.AddRule(p.table, p.known, rule)
	if err != nil {
		p.errorAt(start.Pos, "%v", err)
		return object.Null, false
	}
	p.table = newTable

	var patternValues []object.Value
	for _, elem := range pattern {
		if elem.Nonterm != nil {
			patternValues = append(patternValues, object.MakeNonterminal(elem.Nonterm))
		} else {
			patternValues = append(patternValues, object.Sym(elem.Terminal))
		}
	}
	return object.MakeSyntax(&object.Syntax{
		Class:       classSym,
		Pattern:     patternValues,
		Replacement: tmpl,
	}), true
}

func (p *Parser) parseNonterminalElement() (syntax.PatternElement, bool) {
	p.next() // [

	classTok := p.cur()
	if classTok.Kind != lexer.AlphaName {
		p.errorAt(classTok.Pos, "expected a nonterminal class name")
		return syntax.PatternElement{}, false
	}
	p.next()
	ntClass := p.intern(classTok.Text)

	repeat := object.RepeatNone
	if t := p.cur(); t.Kind == lexer.PunctName {
		switch t.Text {
		case "?":
			repeat = object.RepeatOpt
			p.next()
		case "*":
			repeat = object.RepeatStar
			p.next()
		case "+":
			repeat = object.RepeatPlus
			p.next()
		}
	}

	varTok := p.cur()
	if varTok.Kind != lexer.AlphaName {
		p.errorAt(varTok.Pos, "expected a capture variable name")
		return syntax.PatternElement{}, false
	}
	p.next()
	variable := p.intern(varTok.Text)

	separator := symbol.Invalid
	if p.cur().Kind != lexer.RightBracket {
		ts, ok := terminalSymbolOf(p.cur(), p.symbols)
		if !ok {
			p.errorAt(p.cur().Pos, "expected a separator or ']'")
			return syntax.PatternElement{}, false
		}
		p.next()
		separator = ts
	}

	if p.cur().Kind != lexer.RightBracket {
		p.errorAt(p.cur().Pos, "expected ']' to close the nonterminal element")
		return syntax.PatternElement{}, false
	}
	p.next()

	return syntax.PatternElement{
		Nonterm: &object.Nonterminal{
			Class:     ntClass,
			Variable:  variable,
			Repeat:    repeat,
			Separator: separator,
		},
	}, true
}
