package parser

import (
	"math/big"

	"github.com/smile-lang/smile/internal/lexer"
	"github.com/smile-lang/smile/internal/object"
	"github.com/smile-lang/smile/internal/symbol"
)

// parseTemplate parses the body of a backquote form (spec.md 4.5.1): a
// literal list/pair tree in which `(expr)` marks an unquote, `@(expr)` an
// unquote-splice, and `@@name` a splice of the captured list `name`. The
// markers are recorded as [$unquote x] / [$splice x] sub-forms and resolved
// by applyTemplate when a syntax rule fires; inside a plain runtime $quote
// they are inert.
func (p *Parser) parseTemplate() (object.Value, bool) {
	tok := p.cur()
	switch tok.Kind {
	case lexer.LeftBracket:
		return p.parseTemplateList()

	case lexer.LeftParen:
		p.next()
		p.bracketDepth++
		p.inTemplate++
		e, ok := p.parseExpr()
		p.inTemplate--
		p.bracketDepth--
		if !ok {
			return object.Null, false
		}
		if p.cur().Kind != lexer.RightParen {
			p.errorAt(p.cur().Pos, "expected ')' to close the unquote")
			return object.Null, false
		}
		p.next()
		return object.List(object.Sym(p.known.UnquoteForm), e), true

	case lexer.At:
		p.next()
		if p.cur().Kind != lexer.LeftParen {
			p.errorAt(p.cur().Pos, "expected '(' after '@'")
			return object.Null, false
		}
		p.next()
		p.bracketDepth++
		p.inTemplate++
		e, ok := p.parseExpr()
		p.inTemplate--
		p.bracketDepth--
		if !ok {
			return object.Null, false
		}
		if p.cur().Kind != lexer.RightParen {
			p.errorAt(p.cur().Pos, "expected ')' to close the splice")
			return object.Null, false
		}
		p.next()
		return object.List(object.Sym(p.known.SpliceForm), e), true

	case lexer.DoubleAt:
		p.next()
		name := p.cur()
		if name.Kind != lexer.AlphaName {
			p.errorAt(name.Pos, "expected a name after '@@'")
			return object.Null, false
		}
		p.next()
		return object.List(object.Sym(p.known.SpliceForm),
			object.Sym(p.intern(name.Text))), true

	case lexer.Backtick:
		p.next()
		t, ok := p.parseTemplate()
		if !ok {
			return object.Null, false
		}
		return object.List(object.Sym(p.known.QuoteForm), t), true

	case lexer.AlphaName, lexer.PunctName:
		p.next()
		return object.Sym(p.intern(tok.Text)), true

	case lexer.Comma:
		p.next()
		return object.Sym(p.intern(",")), true

	case lexer.Colon:
		p.next()
		return object.Sym(p.intern(":")), true
	}

	if v, ok := literalFromToken(tok); ok {
		p.next()
		return v, true
	}

	p.errorAt(tok.Pos, "unexpected '%s' in template", tok.Text)
	return object.Null, false
}

func (p *Parser) parseTemplateList() (object.Value, bool) {
	open := p.next() // [
	p.bracketDepth++
	defer func() { p.bracketDepth-- }()

	var elems []object.Value
	tail := object.Null
	for {
		tok := p.cur()
		switch tok.Kind {
		case lexer.RightBracket:
			p.next()
			return listWithTail(elems, tail), true
		case lexer.EOI:
			p.errorAt(open.Pos, "unterminated '[' in template")
			return object.Null, false
		case lexer.Dot:
			p.next()
			t, ok := p.parseTemplate()
			if !ok {
				return object.Null, false
			}
			tail = t
			if p.cur().Kind != lexer.RightBracket {
				p.errorAt(p.cur().Pos, "expected ']' after dotted template tail")
				return object.Null, false
			}
			p.next()
			return listWithTail(elems, tail), true
		}
		t, ok := p.parseTemplate()
		if !ok {
			return object.Null, false
		}
		elems = append(elems, t)
	}
}

func listWithTail(elems []object.Value, tail object.Value) object.Value {
	out := tail
	for i := len(elems) - 1; i >= 0; i-- {
		out = object.Cons(elems[i], out)
	}
	return out
}

// literalFromToken converts a literal-valued token into its Value, shared
// by term parsing and template parsing.
func literalFromToken(tok lexer.Token) (object.Value, bool) {
	switch tok.Kind {
	case lexer.Byte:
		return object.Byte(byte(tok.Int)), true
	case lexer.Int16:
		return object.Int16(int16(tok.Int)), true
	case lexer.Int32:
		return object.Int32(int32(tok.Int)), true
	case lexer.Int64:
		return object.Int64(tok.Int), true
	case lexer.Int128:
		return object.Int128(bigFromLiteral(tok.Text)), true
	case lexer.BigIntLit:
		return object.BigInt(bigFromLiteral(tok.Text)), true
	case lexer.Real32:
		return object.Real32(float32(tok.Float)), true
	case lexer.Real64:
		return object.Real64(tok.Float), true
	case lexer.Real128:
		return object.Real128(big.NewFloat(tok.Float)), true
	case lexer.Float32:
		return object.Float32(float32(tok.Float)), true
	case lexer.Float64:
		return object.Float64(tok.Float), true
	case lexer.CharLit:
		return object.Char(byte(decodeCharLiteral(tok.Text))), true
	case lexer.UniLit:
		return object.Uni(decodeCharLiteral(tok.Text)), true
	case lexer.RawString, lexer.DynString:
		return object.Str(tok.Text), true
	}
	return object.Null, false
}

// applyTemplate instantiates a syntax rule's replacement template against
// the variables captured during the match: [$unquote v] becomes the bound
// value, [$splice v] flattens the bound list in place. Unbound markers are
// left verbatim.
func (p *Parser) applyTemplate(tmpl object.Value, bindings map[symbol.Symbol]object.Value) object.Value {
	switch tmpl.Kind {
	case object.KindList:
		if v, ok := p.unquoteValue(tmpl, bindings); ok {
			return v
		}

		var elems []object.Value
		tail := object.Null
		cur := tmpl
		for cur.Kind == object.KindList {
			cell := cur.Data.(*object.Cell)
			if spliced, ok := p.spliceValue(cell.Head, bindings); ok {
				elems = append(elems, spliced...)
			} else {
				elems = append(elems, p.applyTemplate(cell.Head, bindings))
			}
			cur = cell.Tail
		}
		if cur.Kind != object.KindNull {
			tail = p.applyTemplate(cur, bindings)
		}
		return listWithTail(elems, tail)

	case object.KindPair:
		pair := tmpl.Data.(*object.SmilePair)
		return object.MakePair(
			p.applyTemplate(pair.Left, bindings),
			p.applyTemplate(pair.Right, bindings))

	default:
		return tmpl
	}
}

// unquoteValue recognizes [$unquote x] with x a bound variable.
func (p *Parser) unquoteValue(v object.Value, bindings map[symbol.Symbol]object.Value) (object.Value, bool) {
	arg, ok := markerArg(v, p.known.UnquoteForm)
	if !ok || arg.Kind != object.KindSymbol {
		return object.Null, false
	}
	bound, found := bindings[arg.Data.(symbol.Symbol)]
	if !found {
		return object.Null, false
	}
	return bound, true
}

// spliceValue recognizes [$splice x] with x a bound variable, returning
// the bound list's elements.
func (p *Parser) spliceValue(v object.Value, bindings map[symbol.Symbol]object.Value) ([]object.Value, bool) {
	arg, ok := markerArg(v, p.known.SpliceForm)
	if !ok || arg.Kind != object.KindSymbol {
		return nil, false
	}
	bound, found := bindings[arg.Data.(symbol.Symbol)]
	if !found {
		return nil, false
	}
	var elems []object.Value
	for bound.Kind == object.KindList {
		cell := bound.Data.(*object.Cell)
		elems = append(elems, cell.Head)
		bound = cell.Tail
	}
	if bound.Kind != object.KindNull {
		elems = append(elems, bound)
	}
	return elems, true
}

// markerArg matches a two-element list [marker arg] and returns arg.
func markerArg(v object.Value, marker symbol.Symbol) (object.Value, bool) {
	if v.Kind != object.KindList {
		return object.Null, false
	}
	cell := v.Data.(*object.Cell)
	if cell.Head.Kind != object.KindSymbol || cell.Head.Data.(symbol.Symbol) != marker {
		return object.Null, false
	}
	if cell.Tail.Kind != object.KindList {
		return object.Null, false
	}
	second := cell.Tail.Data.(*object.Cell)
	if second.Tail.Kind != object.KindNull {
		return object.Null, false
	}
	return second.Head, true
}
