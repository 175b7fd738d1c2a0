// Package parser implements Smile's extensible recursive-descent parser
// (spec.md 4.5): a precedence chain from STMT down to TERM, with a
// user-declarable grammar consulted speculatively before each well-known
// precedence class, and backquote templates for syntax-rule replacements.
//
// The output of parsing is a "raw form": a tree of object.Values consisting
// entirely of lists, pairs, symbols, and literals, rooted at the documented
// special forms ($if, $fn, $set, ...).
package parser

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/smile-lang/smile/internal/diagnostics"
	"github.com/smile-lang/smile/internal/lexer"
	"github.com/smile-lang/smile/internal/object"
	"github.com/smile-lang/smile/internal/parsescope"
	"github.com/smile-lang/smile/internal/symbol"
	"github.com/smile-lang/smile/internal/syntax"
)

// Parser turns a token stream into raw-form expression trees.
type Parser struct {
	lx      *lexer.Lexer
	symbols *symbol.Table
	known   *symbol.Known
	scope   *parsescope.Scope
	table   *syntax.Table
	diags   *diagnostics.List
	tracing bool

	// bracketDepth counts open parens/brackets within the current
	// expression; binary operators may wrap across newlines only when it
	// is nonzero (spec.md 4.5).
	bracketDepth int

	// localsStack collects variable names declared inside each open brace
	// scope, innermost last, to populate the $scope form's locals list.
	localsStack [][]symbol.Symbol

	// consumed counts tokens taken from the lexer, giving speculative
	// matching a monotonic progress measure.
	consumed int

	// guards breaks left-recursive user rules: a (class, token-offset)
	// pair currently being speculated on is not re-entered.
	guards map[ruleGuard]bool

	// inTemplate is nonzero while parsing inside a backquote template,
	// where names bind at substitution time rather than in the current
	// scope.
	inTemplate int

	ruleSeq int
}

type ruleGuard struct {
	class  symbol.Symbol
	offset int
}

// Option configures a Parser at construction time.
type Option func(*Parser)

// WithTracing enables debug tracing of parsing decisions.
func WithTracing(trace bool) Option {
	return func(p *Parser) { p.tracing = trace }
}

// WithScope parses against an existing root scope (REPL continuation).
func WithScope(s *parsescope.Scope) Option {
	return func(p *Parser) { p.scope = s }
}

// WithSyntaxTable parses against an existing syntax table (REPL
// continuation); the table is retained for the duration of the parse.
func WithSyntaxTable(t *syntax.Table) Option {
	return func(p *Parser) { p.table = t }
}

// New creates a Parser over lx using the given symbol table and known set.
func New(lx *lexer.Lexer, symbols *symbol.Table, known *symbol.Known, opts ...Option) *Parser {
	p := &Parser{
		lx:      lx,
		symbols: symbols,
		known:   known,
		diags:   &diagnostics.List{},
		guards:  make(map[ruleGuard]bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.scope == nil {
		p.scope = parsescope.CreateRoot()
	}
	if p.table == nil {
		p.table = syntax.NewTable(known)
	}
	return p
}

// Diagnostics returns the parse messages accumulated so far.
func (p *Parser) Diagnostics() *diagnostics.List { return p.diags }

// Scope returns the parser's current (usually root) parse scope.
func (p *Parser) Scope() *parsescope.Scope { return p.scope }

// SyntaxTable returns the syntax table effective after parsing.
func (p *Parser) SyntaxTable() *syntax.Table { return p.table }

func (p *Parser) cur() lexer.Token  { return p.lx.Peek(0) }
func (p *Parser) peek() lexer.Token { return p.lx.Peek(1) }

func (p *Parser) next() lexer.Token {
	p.consumed++
	return p.lx.Next()
}

func (p *Parser) errorAt(pos lexer.Position, format string, args ...any) {
	p.diags.AddError(pos, format, args...)
}

func (p *Parser) intern(name string) symbol.Symbol {
	return p.symbols.Intern(name)
}

// keywords that may not be used as a bare term.
var keywords = map[string]bool{
	"var": true, "if": true, "then": true, "else": true,
	"while": true, "do": true, "till": true, "when": true,
	"try": true, "catch": true, "return": true, "new": true,
	"and": true, "or": true, "not": true, "is": true, "typeof": true,
}

func isKeyword(tok lexer.Token, text string) bool {
	return tok.Kind == lexer.AlphaName && tok.Text == text
}

// form builds a special-form list [head elems...] carrying pos on its first
// cell.
func (p *Parser) form(head symbol.Symbol, pos lexer.Position, elems ...object.Value) object.Value {
	all := append([]object.Value{object.Sym(head)}, elems...)
	v := object.List(all...)
	if v.Kind == object.KindList {
		v.Data.(*object.Cell).Pos = &object.Pos{File: pos.File, Line: pos.Line, Column: pos.Column}
	}
	return v
}

// methodCall builds the [(recv.name) args...] raw form the built-in binary
// and unary operators lower to (spec.md 8, scenario 2).
func methodCall(recv object.Value, name symbol.Symbol, args ...object.Value) object.Value {
	all := append([]object.Value{object.MakePair(recv, object.Sym(name))}, args...)
	return object.List(all...)
}

// Parse parses a whole program: a sequence of statements separated by
// semicolons or newlines. A single statement is returned bare; several are
// wrapped in [$progn ...] (spec.md 8, scenario 1).
func (p *Parser) Parse() object.Value {
	var stmts []object.Value
	for p.cur().Kind != lexer.EOI {
		if p.cur().Kind == lexer.Semicolon {
			p.next()
			continue
		}
		before := p.consumed
		v, ok := p.parseStmt()
		if !ok {
			// A statement that failed on its first token consumed nothing;
			// skip that token so recovery always makes progress.
			if p.consumed == before {
				p.next()
			}
			p.synchronize()
			continue
		}
		// #syntax declarations mutate the table and contribute no
		// expression.
		if v.Kind == object.KindSyntax {
			continue
		}
		stmts = append(stmts, v)
	}

	switch len(stmts) {
	case 0:
		return object.Null
	case 1:
		return stmts[0]
	default:
		return p.form(p.known.PrognForm, lexer.Position{Line: 1, Column: 1}, stmts...)
	}
}

// synchronize advances past a malformed form to the next statement
// boundary: a semicolon, a close bracket, a line break, or end of input
// (spec.md 7).
func (p *Parser) synchronize() {
	for {
		tok := p.cur()
		switch tok.Kind {
		case lexer.EOI:
			return
		case lexer.Semicolon:
			p.next()
			return
		case lexer.RightBracket, lexer.RightBrace, lexer.RightParen:
			p.next()
			return
		}
		if tok.AfterNewline {
			return
		}
		p.next()
	}
}

// ---- statements ----

func (p *Parser) parseStmt() (object.Value, bool) {
	if v, ok, matched := p.tryUserRule(p.known.Stmt); matched {
		return v, ok
	}

	tok := p.cur()
	if tok.Kind == lexer.AlphaName {
		switch tok.Text {
		case "var":
			return p.parseVar()
		case "if":
			return p.parseIf()
		case "while":
			return p.parseWhile()
		case "do":
			return p.parseDoWhile()
		case "till":
			return p.parseTill()
		case "try":
			return p.parseTry()
		case "return":
			return p.parseReturn()
		case "#syntax":
			return p.parseSyntaxDecl()
		}
	}
	return p.parseAssignment()
}

func (p *Parser) parseVar() (object.Value, bool) {
	start := p.next() // var
	var stmts []object.Value
	for {
		nameTok := p.cur()
		if nameTok.Kind != lexer.AlphaName {
			p.errorAt(nameTok.Pos, "expected a variable name after 'var'")
			return object.Null, false
		}
		p.next()
		sym := p.intern(nameTok.Text)
		if _, ok := p.scope.DeclareHere(sym, parsescope.DeclVariable, nameTok.Pos); !ok {
			p.errorAt(nameTok.Pos, "'%s' is already declared in this scope", nameTok.Text)
		}
		p.collectLocal(sym)

		init := object.Null
		if t := p.cur(); t.Kind == lexer.PunctName && t.Text == "=" {
			p.next()
			v, ok := p.parseExpr()
			if !ok {
				return object.Null, false
			}
			init = v
		}
		stmts = append(stmts, p.form(p.known.SetForm, nameTok.Pos, object.Sym(sym), init))

		if p.cur().Kind == lexer.Comma {
			p.next()
			continue
		}
		break
	}
	if len(stmts) == 1 {
		return stmts[0], true
	}
	return p.form(p.known.PrognForm, start.Pos, stmts...), true
}

func (p *Parser) collectLocal(sym symbol.Symbol) {
	if n := len(p.localsStack); n > 0 {
		p.localsStack[n-1] = append(p.localsStack[n-1], sym)
	}
}

func (p *Parser) expectKeyword(text string) bool {
	tok := p.cur()
	if !isKeyword(tok, text) {
		p.errorAt(tok.Pos, "expected '%s', found '%s'", text, tok.Text)
		return false
	}
	p.next()
	return true
}

func (p *Parser) parseIf() (object.Value, bool) {
	start := p.next() // if
	cond, ok := p.parseExpr()
	if !ok {
		return object.Null, false
	}
	if !p.expectKeyword("then") {
		return object.Null, false
	}
	then, ok := p.parseStmt()
	if !ok {
		return object.Null, false
	}
	if isKeyword(p.cur(), "else") {
		p.next()
		els, ok := p.parseStmt()
		if !ok {
			return object.Null, false
		}
		return p.form(p.known.IfForm, start.Pos, cond, then, els), true
	}
	return p.form(p.known.IfForm, start.Pos, cond, then), true
}

// parseWhile handles the bare shape `while cond do body`, producing
// [$while pre cond post] with a Null pre (spec.md 4.5.2).
func (p *Parser) parseWhile() (object.Value, bool) {
	start := p.next() // while
	cond, ok := p.parseExpr()
	if !ok {
		return object.Null, false
	}
	if !p.expectKeyword("do") {
		return object.Null, false
	}
	body, ok := p.parseStmt()
	if !ok {
		return object.Null, false
	}
	return p.form(p.known.WhileForm, start.Pos, object.Null, cond, body), true
}

// parseDoWhile handles `do body while cond` and `do body while cond then
// post` (spec.md 4.5.2's other two $while shapes).
func (p *Parser) parseDoWhile() (object.Value, bool) {
	start := p.next() // do
	body, ok := p.parseStmt()
	if !ok {
		return object.Null, false
	}
	if !p.expectKeyword("while") {
		return object.Null, false
	}
	cond, ok := p.parseExpr()
	if !ok {
		return object.Null, false
	}
	if isKeyword(p.cur(), "then") {
		p.next()
		post, ok := p.parseStmt()
		if !ok {
			return object.Null, false
		}
		return p.form(p.known.WhileForm, start.Pos, body, cond, post), true
	}
	return p.form(p.known.WhileForm, start.Pos, body, cond, object.Null), true
}

// parseTill handles `till flag, flag do body [when flag stmt]...`,
// producing [$till [flags...] body [[flag stmt]...]?] (spec.md 4.5.2).
func (p *Parser) parseTill() (object.Value, bool) {
	start := p.next() // till

	var flagSyms []object.Value
	tillScope := parsescope.CreateChild(p.scope, parsescope.ScopeTill)
	for {
		tok := p.cur()
		if tok.Kind != lexer.AlphaName {
			p.errorAt(tok.Pos, "expected a till-flag name, found '%s'", tok.Text)
			return object.Null, false
		}
		p.next()
		sym := p.intern(tok.Text)
		if _, ok := tillScope.DeclareHere(sym, parsescope.DeclTillFlag, tok.Pos); !ok {
			p.errorAt(tok.Pos, "duplicate till-flag '%s'", tok.Text)
		}
		flagSyms = append(flagSyms, object.Sym(sym))
		if p.cur().Kind == lexer.Comma {
			p.next()
			continue
		}
		break
	}
	if !p.expectKeyword("do") {
		return object.Null, false
	}

	saved := p.scope
	p.scope = tillScope
	body, ok := p.parseStmt()
	p.scope = saved
	if !ok {
		return object.Null, false
	}

	var whens []object.Value
	for isKeyword(p.cur(), "when") {
		p.next()
		flagTok := p.cur()
		if flagTok.Kind != lexer.AlphaName {
			p.errorAt(flagTok.Pos, "expected a till-flag name after 'when'")
			return object.Null, false
		}
		p.next()
		flag := p.intern(flagTok.Text)
		if _, found := tillScope.FindHere(flag); !found {
			p.errorAt(flagTok.Pos, "'%s' is not a flag of this till loop", flagTok.Text)
		}
		stmt, ok := p.parseStmt()
		if !ok {
			return object.Null, false
		}
		whens = append(whens, object.List(object.Sym(flag), stmt))
	}

	if len(whens) > 0 {
		return p.form(p.known.TillForm, start.Pos,
			object.List(flagSyms...), body, object.List(whens...)), true
	}
	return p.form(p.known.TillForm, start.Pos, object.List(flagSyms...), body), true
}

func (p *Parser) parseTry() (object.Value, bool) {
	start := p.next() // try
	body, ok := p.parseStmt()
	if !ok {
		return object.Null, false
	}
	if !p.expectKeyword("catch") {
		return object.Null, false
	}
	handler, ok := p.parseStmt()
	if !ok {
		return object.Null, false
	}
	return p.form(p.known.CatchForm, start.Pos, body, handler), true
}

func (p *Parser) parseReturn() (object.Value, bool) {
	start := p.next() // return
	tok := p.cur()
	if tok.Kind == lexer.EOI || tok.Kind == lexer.Semicolon ||
		tok.Kind == lexer.RightBrace || tok.AfterNewline {
		return p.form(p.known.ReturnForm, start.Pos), true
	}
	v, ok := p.parseExpr()
	if !ok {
		return object.Null, false
	}
	return p.form(p.known.ReturnForm, start.Pos, v), true
}

// parseAssignment parses `lvalue = expr` and the op-assign forms
// (`lvalue += expr` etc.), right-associatively; anything without an
// assignment operator falls through as a bare expression statement.
func (p *Parser) parseAssignment() (object.Value, bool) {
	lhs, ok := p.parseExpr()
	if !ok {
		return object.Null, false
	}
	tok := p.cur()
	if tok.Kind != lexer.PunctName || p.binOpBlocked(tok) {
		return lhs, true
	}

	if tok.Text == "=" {
		p.next()
		p.autoDeclareLValue(lhs, tok.Pos)
		rhs, ok := p.parseAssignment()
		if !ok {
			return object.Null, false
		}
		return p.form(p.known.SetForm, tok.Pos, lhs, rhs), true
	}

	if op, isOpAssign := splitOpAssign(tok.Text); isOpAssign {
		p.next()
		rhs, ok := p.parseAssignment()
		if !ok {
			return object.Null, false
		}
		return p.form(p.known.OpSetForm, tok.Pos,
			object.Sym(p.intern(op)), lhs, rhs), true
	}

	return lhs, true
}

// autoDeclareLValue declares a previously-unbound simple name being
// assigned at statement level, the way the REPL's top level behaves.
func (p *Parser) autoDeclareLValue(lhs object.Value, pos lexer.Position) {
	if lhs.Kind != object.KindSymbol {
		return
	}
	sym := lhs.Data.(symbol.Symbol)
	if _, found := p.scope.Find(sym); !found {
		p.scope.Declare(sym, parsescope.DeclVariable, pos)
		p.collectLocal(sym)
	}
}

// splitOpAssign reports whether text is an op-assign like "+=" and returns
// the operator part. The comparison spellings that merely end in '=' are
// not op-assigns.
func splitOpAssign(text string) (string, bool) {
	switch text {
	case "=", "==", "!=", "<=", ">=", "===", "!==", "=>":
		return "", false
	}
	if len(text) >= 2 && strings.HasSuffix(text, "=") {
		return text[:len(text)-1], true
	}
	return "", false
}

// ---- the precedence chain ----

// binOpBlocked implements the line-wrapping rule: a binary operator token
// beginning a new line ends the expression unless the parser is inside a
// balanced paren/bracket pair (spec.md 4.5).
func (p *Parser) binOpBlocked(tok lexer.Token) bool {
	return tok.AfterNewline && p.bracketDepth == 0
}

func (p *Parser) parseExpr() (object.Value, bool) {
	if v, ok, matched := p.tryUserRule(p.known.Expr); matched {
		return v, ok
	}
	return p.parseOrExpr()
}

func (p *Parser) parseOrExpr() (object.Value, bool) {
	first, ok := p.parseAndExpr()
	if !ok {
		return object.Null, false
	}
	operands := []object.Value{first}
	for isKeyword(p.cur(), "or") && !p.binOpBlocked(p.cur()) {
		p.next()
		v, ok := p.parseAndExpr()
		if !ok {
			return object.Null, false
		}
		operands = append(operands, v)
	}
	if len(operands) == 1 {
		return first, true
	}
	return p.form(p.known.OrForm, p.cur().Pos, operands...), true
}

func (p *Parser) parseAndExpr() (object.Value, bool) {
	first, ok := p.parseNotExpr()
	if !ok {
		return object.Null, false
	}
	operands := []object.Value{first}
	for isKeyword(p.cur(), "and") && !p.binOpBlocked(p.cur()) {
		p.next()
		v, ok := p.parseNotExpr()
		if !ok {
			return object.Null, false
		}
		operands = append(operands, v)
	}
	if len(operands) == 1 {
		return first, true
	}
	return p.form(p.known.AndForm, p.cur().Pos, operands...), true
}

func (p *Parser) parseNotExpr() (object.Value, bool) {
	if tok := p.cur(); isKeyword(tok, "not") {
		p.next()
		v, ok := p.parseNotExpr()
		if !ok {
			return object.Null, false
		}
		return p.form(p.known.NotForm, tok.Pos, v), true
	}
	return p.parseCmpExpr()
}

var cmpOps = map[string]bool{
	"<": true, ">": true, "<=": true, ">=": true, "==": true, "!=": true,
}

func (p *Parser) parseCmpExpr() (object.Value, bool) {
	if v, ok, matched := p.tryUserRule(p.known.CmpExpr); matched {
		return v, ok
	}
	left, ok := p.parseAddExpr()
	if !ok {
		return object.Null, false
	}
	for {
		tok := p.cur()
		if p.binOpBlocked(tok) {
			return left, true
		}
		switch {
		case tok.Kind == lexer.PunctName && cmpOps[tok.Text]:
			p.next()
			right, ok := p.parseAddExpr()
			if !ok {
				return object.Null, false
			}
			left = methodCall(left, p.intern(tok.Text), right)
		case tok.Kind == lexer.PunctName && tok.Text == "===":
			p.next()
			right, ok := p.parseAddExpr()
			if !ok {
				return object.Null, false
			}
			left = p.form(p.known.EqForm, tok.Pos, left, right)
		case tok.Kind == lexer.PunctName && tok.Text == "!==":
			p.next()
			right, ok := p.parseAddExpr()
			if !ok {
				return object.Null, false
			}
			left = p.form(p.known.NeForm, tok.Pos, left, right)
		case isKeyword(tok, "is"):
			p.next()
			right, ok := p.parseAddExpr()
			if !ok {
				return object.Null, false
			}
			left = p.form(p.known.IsForm, tok.Pos, left, right)
		default:
			return left, true
		}
	}
}

func (p *Parser) parseAddExpr() (object.Value, bool) {
	if v, ok, matched := p.tryUserRule(p.known.AddExpr); matched {
		return v, ok
	}
	left, ok := p.parseMulExpr()
	if !ok {
		return object.Null, false
	}
	for {
		tok := p.cur()
		if tok.Kind != lexer.PunctName || (tok.Text != "+" && tok.Text != "-") || p.binOpBlocked(tok) {
			return left, true
		}
		p.next()
		right, ok := p.parseMulExpr()
		if !ok {
			return object.Null, false
		}
		left = methodCall(left, p.intern(tok.Text), right)
	}
}

func (p *Parser) parseMulExpr() (object.Value, bool) {
	if v, ok, matched := p.tryUserRule(p.known.MulExpr); matched {
		return v, ok
	}
	left, ok := p.parseBinaryExpr()
	if !ok {
		return object.Null, false
	}
	for {
		tok := p.cur()
		if tok.Kind != lexer.PunctName || (tok.Text != "*" && tok.Text != "/") || p.binOpBlocked(tok) {
			return left, true
		}
		p.next()
		right, ok := p.parseBinaryExpr()
		if !ok {
			return object.Null, false
		}
		left = methodCall(left, p.intern(tok.Text), right)
	}
}

// parseBinaryExpr handles the open-ended set of punctuation-named binary
// operators (`%`, `^`, `&`, user spellings) as left-associative method
// calls on the left operand.
func (p *Parser) parseBinaryExpr() (object.Value, bool) {
	if v, ok, matched := p.tryUserRule(p.known.BinaryExpr); matched {
		return v, ok
	}
	left, ok := p.parseColonExpr()
	if !ok {
		return object.Null, false
	}
	for {
		tok := p.cur()
		if tok.Kind != lexer.PunctName || p.binOpBlocked(tok) || !isGenericBinaryOp(tok.Text) {
			return left, true
		}
		p.next()
		right, ok := p.parseColonExpr()
		if !ok {
			return object.Null, false
		}
		left = methodCall(left, p.intern(tok.Text), right)
	}
}

// isGenericBinaryOp excludes the spellings claimed by tighter or looser
// levels: assignment, op-assign, comparisons, +,-,*,/ and the range
// operator.
func isGenericBinaryOp(text string) bool {
	switch text {
	case "=", "=>", "..", "+", "-", "*", "/",
		"<", ">", "<=", ">=", "==", "!=", "===", "!==":
		return false
	}
	if _, isOpAssign := splitOpAssign(text); isOpAssign {
		return false
	}
	return true
}

func (p *Parser) parseColonExpr() (object.Value, bool) {
	left, ok := p.parseRangeExpr()
	if !ok {
		return object.Null, false
	}
	for {
		tok := p.cur()
		if tok.Kind != lexer.Colon || p.binOpBlocked(tok) {
			return left, true
		}
		p.next()
		right, ok := p.parseRangeExpr()
		if !ok {
			return object.Null, false
		}
		left = p.form(p.known.IndexForm, tok.Pos, left, right)
	}
}

func (p *Parser) parseRangeExpr() (object.Value, bool) {
	left, ok := p.parsePrefixExpr()
	if !ok {
		return object.Null, false
	}
	tok := p.cur()
	if tok.Kind == lexer.PunctName && tok.Text == ".." && !p.binOpBlocked(tok) {
		p.next()
		right, ok := p.parsePrefixExpr()
		if !ok {
			return object.Null, false
		}
		return methodCall(left, p.known.RangeTo, right), true
	}
	return left, true
}

func (p *Parser) parsePrefixExpr() (object.Value, bool) {
	if v, ok, matched := p.tryUserRule(p.known.PrefixExpr); matched {
		return v, ok
	}
	tok := p.cur()
	if tok.Kind == lexer.PunctName {
		switch tok.Text {
		case "-", "+", "!", "~":
			p.next()
			v, ok := p.parsePrefixExpr()
			if !ok {
				return object.Null, false
			}
			return methodCall(v, p.intern(tok.Text)), true
		}
	}
	if isKeyword(tok, "typeof") {
		p.next()
		v, ok := p.parsePrefixExpr()
		if !ok {
			return object.Null, false
		}
		return p.form(p.known.TypeofForm, tok.Pos, v), true
	}
	return p.parseConsExpr()
}

func (p *Parser) parseConsExpr() (object.Value, bool) {
	left, ok := p.parseDotExpr()
	if !ok {
		return object.Null, false
	}
	tok := p.cur()
	if tok.Kind == lexer.DoubleHash && !p.binOpBlocked(tok) {
		p.next()
		right, ok := p.parseConsExpr() // right-associative
		if !ok {
			return object.Null, false
		}
		return methodCall(left, p.known.ConsOp, right), true
	}
	return left, true
}

func (p *Parser) parseDotExpr() (object.Value, bool) {
	left, ok := p.parseTerm()
	if !ok {
		return object.Null, false
	}
	for {
		tok := p.cur()
		if tok.Kind != lexer.Dot || p.binOpBlocked(tok) {
			return left, true
		}
		p.next()
		member := p.cur()
		if member.Kind != lexer.AlphaName && member.Kind != lexer.PunctName {
			p.errorAt(member.Pos, "expected a member name after '.'")
			return object.Null, false
		}
		p.next()
		left = object.MakePair(left, object.Sym(p.intern(member.Text)))
	}
}

// ---- terms ----

func (p *Parser) parseTerm() (object.Value, bool) {
	if v, ok, matched := p.tryUserRule(p.known.Term); matched {
		return v, ok
	}

	tok := p.cur()
	switch tok.Kind {
	case lexer.Byte:
		p.next()
		return object.Byte(byte(tok.Int)), true
	case lexer.Int16:
		p.next()
		return object.Int16(int16(tok.Int)), true
	case lexer.Int32:
		p.next()
		return object.Int32(int32(tok.Int)), true
	case lexer.Int64:
		p.next()
		return object.Int64(tok.Int), true
	case lexer.Int128:
		p.next()
		return object.Int128(bigFromLiteral(tok.Text)), true
	case lexer.BigIntLit:
		p.next()
		return object.BigInt(bigFromLiteral(tok.Text)), true
	case lexer.Real32:
		p.next()
		return object.Real32(float32(tok.Float)), true
	case lexer.Real64:
		p.next()
		return object.Real64(tok.Float), true
	case lexer.Real128:
		p.next()
		return object.Real128(big.NewFloat(tok.Float)), true
	case lexer.Float32:
		p.next()
		return object.Float32(float32(tok.Float)), true
	case lexer.Float64:
		p.next()
		return object.Float64(tok.Float), true
	case lexer.CharLit:
		p.next()
		return object.Char(byte(decodeCharLiteral(tok.Text))), true
	case lexer.UniLit:
		p.next()
		return object.Uni(decodeCharLiteral(tok.Text)), true
	case lexer.RawString, lexer.DynString:
		p.next()
		return object.Str(tok.Text), true
	case lexer.DynStringBegin:
		return p.parseDynamicString()
	case lexer.AlphaName:
		return p.parseNameTerm()
	case lexer.LeftParen:
		p.next()
		p.bracketDepth++
		v, ok := p.parseExpr()
		p.bracketDepth--
		if !ok {
			return object.Null, false
		}
		if p.cur().Kind != lexer.RightParen {
			p.errorAt(p.cur().Pos, "expected ')'")
			return object.Null, false
		}
		p.next()
		return v, true
	case lexer.LeftBracket:
		return p.parseListTerm()
	case lexer.LeftBrace:
		return p.parseScopeBlock()
	case lexer.Bar:
		return p.parseLambda()
	case lexer.Backtick:
		p.next()
		t, ok := p.parseTemplate()
		if !ok {
			return object.Null, false
		}
		return p.form(p.known.QuoteForm, tok.Pos, t), true
	}

	p.errorAt(tok.Pos, "unexpected '%s'", tok.Text)
	return object.Null, false
}

func (p *Parser) parseNameTerm() (object.Value, bool) {
	tok := p.next()
	switch tok.Text {
	case "true":
		return object.Bool(true), true
	case "false":
		return object.Bool(false), true
	case "null":
		return object.Null, true
	case "new":
		return p.parseNew(tok.Pos)
	}
	if keywords[tok.Text] {
		p.errorAt(tok.Pos, "unexpected keyword '%s'", tok.Text)
		return object.Null, false
	}

	sym := p.intern(tok.Text)
	if _, found := p.scope.Find(sym); !found && !strings.HasPrefix(tok.Text, "$") && p.inTemplate == 0 {
		// An undeclared name in term position may only appear via a user
		// syntax rule, which would have matched above.
		p.errorAt(tok.Pos, "unknown name '%s'", tok.Text)
		return object.Null, false
	}
	return object.Sym(sym), true
}

// parseListTerm parses `[expr expr ...]`, the call/list form: a raw list of
// the element expressions. `[]` is Null, the empty list.
func (p *Parser) parseListTerm() (object.Value, bool) {
	open := p.next() // [
	p.bracketDepth++
	defer func() { p.bracketDepth-- }()

	var elems []object.Value
	for {
		tok := p.cur()
		if tok.Kind == lexer.RightBracket {
			p.next()
			break
		}
		if tok.Kind == lexer.EOI {
			p.errorAt(open.Pos, "unterminated '['")
			return object.Null, false
		}
		v, ok := p.parseExpr()
		if !ok {
			return object.Null, false
		}
		elems = append(elems, v)
	}
	if len(elems) == 0 {
		return object.Null, true
	}
	v := object.List(elems...)
	v.Data.(*object.Cell).Pos = &object.Pos{File: open.Pos.File, Line: open.Pos.Line, Column: open.Pos.Column}
	return v, true
}

// parseScopeBlock parses `{ stmt; stmt; ... }` into
// [$scope [locals...] stmt...] with a child block scope and its own
// retained syntax table (so #syntax declarations inside revert at '}', per
// spec.md 4.4).
func (p *Parser) parseScopeBlock() (object.Value, bool) {
	open := p.next() // {

	savedScope := p.scope
	savedTable := p.table
	p.scope = parsescope.CreateChild(savedScope, parsescope.ScopeBlock)
	p.table = savedTable.Retain()
	p.localsStack = append(p.localsStack, nil)

	defer func() {
		p.scope = savedScope
		if p.table != savedTable {
			// A #syntax inside the block cloned the table; dropping back
			// to the parent reverts the block's rules.
			p.table = savedTable
		} else {
			p.table.Release()
		}
		p.localsStack = p.localsStack[:len(p.localsStack)-1]
	}()

	var stmts []object.Value
	for {
		tok := p.cur()
		if tok.Kind == lexer.RightBrace {
			p.next()
			break
		}
		if tok.Kind == lexer.EOI {
			p.errorAt(open.Pos, "unterminated '{'")
			return object.Null, false
		}
		if tok.Kind == lexer.Semicolon {
			p.next()
			continue
		}
		v, ok := p.parseStmt()
		if !ok {
			return object.Null, false
		}
		if v.Kind == object.KindSyntax {
			continue
		}
		stmts = append(stmts, v)
	}

	var locals []object.Value
	for _, sym := range p.localsStack[len(p.localsStack)-1] {
		locals = append(locals, object.Sym(sym))
	}
	all := append([]object.Value{object.List(locals...)}, stmts...)
	return p.form(p.known.ScopeForm, open.Pos, all...), true
}

// parseLambda parses `|arg arg| body` into [$fn [args...] body].
func (p *Parser) parseLambda() (object.Value, bool) {
	open := p.next() // |

	fnScope := parsescope.CreateChild(p.scope, parsescope.ScopeFunction)
	var args []object.Value
	for {
		tok := p.cur()
		if tok.Kind == lexer.Bar {
			p.next()
			break
		}
		if tok.Kind != lexer.AlphaName {
			p.errorAt(tok.Pos, "expected an argument name or '|', found '%s'", tok.Text)
			return object.Null, false
		}
		p.next()
		sym := p.intern(tok.Text)
		if _, ok := fnScope.DeclareHere(sym, parsescope.DeclArgument, tok.Pos); !ok {
			p.errorAt(tok.Pos, "duplicate argument '%s'", tok.Text)
		}
		args = append(args, object.Sym(sym))
	}

	saved := p.scope
	p.scope = fnScope
	body, ok := p.parseExpr()
	p.scope = saved
	if !ok {
		return object.Null, false
	}
	return p.form(p.known.FnForm, open.Pos, object.List(args...), body), true
}

// parseNew parses `new base { name: expr, ... }` into
// [$new base [[sym expr]...]] (spec.md 4.5.2).
func (p *Parser) parseNew(pos lexer.Position) (object.Value, bool) {
	base, ok := p.parseTerm()
	if !ok {
		return object.Null, false
	}
	if p.cur().Kind != lexer.LeftBrace {
		p.errorAt(p.cur().Pos, "expected '{' after 'new' base")
		return object.Null, false
	}
	p.next()
	p.bracketDepth++
	defer func() { p.bracketDepth-- }()

	var members []object.Value
	for {
		tok := p.cur()
		if tok.Kind == lexer.RightBrace {
			p.next()
			break
		}
		if tok.Kind == lexer.Comma || tok.Kind == lexer.Semicolon {
			p.next()
			continue
		}
		if tok.Kind != lexer.AlphaName {
			p.errorAt(tok.Pos, "expected a member name in 'new' body, found '%s'", tok.Text)
			return object.Null, false
		}
		p.next()
		if p.cur().Kind != lexer.Colon {
			p.errorAt(p.cur().Pos, "expected ':' after member name '%s'", tok.Text)
			return object.Null, false
		}
		p.next()
		v, ok := p.parseExpr()
		if !ok {
			return object.Null, false
		}
		members = append(members, object.List(object.Sym(p.intern(tok.Text)), v))
	}
	return p.form(p.known.NewForm, pos, base, object.List(members...)), true
}

// parseDynamicString reassembles a `"...{expr}..."` dynamic string into a
// join method call on its parts (spec.md 4.2).
func (p *Parser) parseDynamicString() (object.Value, bool) {
	tok := p.next() // DynStringBegin
	var parts []object.Value
	if tok.Text != "" {
		parts = append(parts, object.Str(tok.Text))
	}

	for {
		expr, ok := p.parseExpr()
		if !ok {
			return object.Null, false
		}
		parts = append(parts, expr)

		if p.cur().Kind != lexer.RightBrace {
			p.errorAt(p.cur().Pos, "expected '}' to close the embedded expression")
			return object.Null, false
		}
		p.next() // consume '}' so the lexer can resume the literal

		seg := p.lx.ResumeDynString()
		if seg.Text != "" {
			parts = append(parts, object.Str(seg.Text))
		}
		if seg.Kind == lexer.DynStringEnd {
			break
		}
	}

	if len(parts) == 1 {
		return parts[0], true
	}
	return methodCall(parts[0], p.known.Join, parts[1:]...), true
}

// ---- literal decoding helpers ----

// decodeCharLiteral resolves the escape text inside 'x' / '\n' / '\uNNNN'
// literals.
func decodeCharLiteral(text string) rune {
	if !strings.HasPrefix(text, "\\") {
		for _, r := range text {
			return r
		}
		return 0
	}
	body := text[1:]
	if body == "" {
		return 0
	}
	switch body[0] {
	case 'a':
		return 7
	case 'b':
		return 8
	case 'e':
		return 27
	case 'f':
		return 12
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'v':
		return 11
	case '0':
		return 0
	case '\\':
		return '\\'
	case '\'':
		return '\''
	case 'x', 'u':
		if v, err := strconv.ParseUint(body[1:], 16, 32); err == nil {
			return rune(v)
		}
		return 0
	}
	return rune(body[0])
}

// bigFromLiteral re-derives the big integer value of an Int128/BigInt
// literal from its source spelling (prefix, underscores, suffix).
func bigFromLiteral(text string) *big.Int {
	base := 10
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		base, text = 16, text[2:]
	} else if strings.HasPrefix(text, "0o") || strings.HasPrefix(text, "0O") {
		base, text = 8, text[2:]
	} else if strings.HasPrefix(text, "0b") || strings.HasPrefix(text, "0B") {
		base, text = 2, text[2:]
	}
	text = strings.ReplaceAll(text, "_", "")
	text = strings.TrimRight(text, "LlTtXxHh")
	v, ok := new(big.Int).SetString(text, base)
	if !ok {
		return big.NewInt(0)
	}
	return v
}
