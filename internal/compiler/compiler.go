// Package compiler lowers raw-form expression trees to bytecode segments
// (spec.md 4.6): special-form dispatch, lexical scope resolution across
// nested closures, branch back-patching with paired Label pseudo-ops, and
// peephole fusion of store/pop pairs.
package compiler

import (
	"github.com/smile-lang/smile/internal/bytecode"
	"github.com/smile-lang/smile/internal/diagnostics"
	"github.com/smile-lang/smile/internal/lexer"
	"github.com/smile-lang/smile/internal/object"
	"github.com/smile-lang/smile/internal/symbol"
)

// Compiler turns raw forms into ClosureInfos. One Compiler accumulates
// compile messages and a shared source-location table across every
// function it compiles.
type Compiler struct {
	symbols *symbol.Table
	known   *symbol.Known
	diags   *diagnostics.List
	locs    *bytecode.LocationTable
	tracing bool
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithTracing enables debug tracing of emission decisions.
func WithTracing(trace bool) Option {
	return func(c *Compiler) { c.tracing = trace }
}

// New creates a Compiler against the given symbol table and known set.
func New(symbols *symbol.Table, known *symbol.Known, opts ...Option) *Compiler {
	c := &Compiler{
		symbols: symbols,
		known:   known,
		diags:   &diagnostics.List{},
		locs:    &bytecode.LocationTable{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Diagnostics returns the compile messages accumulated so far.
func (c *Compiler) Diagnostics() *diagnostics.List { return c.diags }

// Locations returns the source-location table shared by all compiled
// segments.
func (c *Compiler) Locations() *bytecode.LocationTable { return c.locs }

// Compile lowers a top-level raw form into a zero-argument function. Free
// variables resolve against the global closure at runtime via LdX/StX, so
// top-level variables become globals.
func (c *Compiler) Compile(expr object.Value, name string) *bytecode.ClosureInfo {
	f := newFnCompiler(c, name, nil)
	f.compileExpr(expr)
	f.emitIns(bytecode.OpRet, 0, 0, -1, 0)
	return f.finish()
}

// ---- per-function compilation state ----

// cvar records where a resolved name lives.
type cvar struct {
	isArg bool
	index int
}

type label struct {
	at    int // index of the Label instruction, -1 while unbound
	jumps []int
}

type tillContext struct {
	entryDepth int
	tmpSlot    int
	flags      map[symbol.Symbol]*label
}

type fnCompiler struct {
	c      *Compiler
	info   *bytecode.ClosureInfo
	parent *fnCompiler

	// scopes is the stack of block scopes within this function; names
	// resolve innermost first, then through parent functions.
	scopes []map[symbol.Symbol]cvar

	curDepth int
	maxDepth int

	// lastBarrier is the instruction index below which the peephole pass
	// may not delete or rewrite: anything at or before a branch, label, or
	// Ret may be a jump target.
	lastBarrier int

	tillStack []*tillContext
}

func newFnCompiler(c *Compiler, name string, parent *fnCompiler) *fnCompiler {
	var parentInfo *bytecode.ClosureInfo
	if parent != nil {
		parentInfo = parent.info
	}
	return &fnCompiler{
		c:      c,
		info:   bytecode.NewClosureInfo(name, parentInfo),
		parent: parent,
		scopes: []map[symbol.Symbol]cvar{make(map[symbol.Symbol]cvar)},
	}
}

func (f *fnCompiler) finish() *bytecode.ClosureInfo {
	f.info.StackSize = f.maxDepth
	return f.info
}

func (f *fnCompiler) seg() *bytecode.ByteCodeSegment { return f.info.Segment }

func (f *fnCompiler) emitIns(op bytecode.OpCode, a, b int32, delta int, locID int) int {
	idx := f.seg().Emit(bytecode.MakeAB(op, a, b), locID)
	f.curDepth += delta
	if f.curDepth > f.maxDepth {
		f.maxDepth = f.curDepth
	}
	return idx
}

func (f *fnCompiler) barrier() {
	f.lastBarrier = len(f.seg().Code)
}

// ---- labels and branches ----

func newLabel() *label { return &label{at: -1} }

// jumpTo emits a branch to l, patched immediately when l is already bound
// or recorded for back-patching otherwise (spec.md 4.6).
func (f *fnCompiler) jumpTo(op bytecode.OpCode, l *label, delta int, locID int) {
	idx := f.emitIns(op, 0, 0, delta, locID)
	f.barrier()
	if l.at >= 0 {
		f.seg().Code[idx].A = int32(l.at - idx)
		if f.seg().Code[l.at].A == 0 {
			f.seg().Code[l.at].A = int32(idx - l.at)
		}
		return
	}
	l.jumps = append(l.jumps, idx)
}

// bind places l here: one Label pseudo-op per recorded branch, each
// patched with the forward displacement on the branch and the inverse
// displacement on the Label (spec.md 4.6).
func (f *fnCompiler) bind(l *label, locID int) {
	if len(l.jumps) == 0 {
		l.at = f.emitIns(bytecode.OpLabel, 0, 0, 0, locID)
		f.barrier()
		return
	}
	for _, j := range l.jumps {
		at := f.emitIns(bytecode.OpLabel, 0, 0, 0, locID)
		f.seg().Code[j].A = int32(at - j)
		f.seg().Code[at].A = int32(j - at)
		l.at = at
	}
	l.jumps = nil
	f.barrier()
}

// ---- scope handling ----

func (f *fnCompiler) declareArg(sym symbol.Symbol) {
	idx := len(f.info.Args)
	f.info.Args = append(f.info.Args, sym)
	f.info.Vars[sym] = bytecode.VarInfo{Symbol: sym, IsArgument: true, Index: idx}
	f.scopes[len(f.scopes)-1][sym] = cvar{isArg: true, index: idx}
}

func (f *fnCompiler) declareLocal(sym symbol.Symbol) int {
	idx := len(f.info.Locals)
	f.info.Locals = append(f.info.Locals, sym)
	f.info.Vars[sym] = bytecode.VarInfo{Symbol: sym, IsArgument: false, Index: idx}
	f.scopes[len(f.scopes)-1][sym] = cvar{isArg: false, index: idx}
	return idx
}

func (f *fnCompiler) pushScope() { f.scopes = append(f.scopes, make(map[symbol.Symbol]cvar)) }
func (f *fnCompiler) popScope()  { f.scopes = f.scopes[:len(f.scopes)-1] }

// resolve walks block scopes innermost-out, then enclosing functions,
// returning the variable and its lexical function depth (spec.md 4.6).
func (f *fnCompiler) resolve(sym symbol.Symbol) (cvar, int, bool) {
	depth := 0
	for fn := f; fn != nil; fn = fn.parent {
		for i := len(fn.scopes) - 1; i >= 0; i-- {
			if v, ok := fn.scopes[i][sym]; ok {
				return v, depth, true
			}
		}
		depth++
	}
	return cvar{}, 0, false
}

// ---- diagnostics ----

func (f *fnCompiler) errorAt(v object.Value, format string, args ...any) {
	f.c.diags.AddError(posOf(v), format, args...)
}

func posOf(v object.Value) lexer.Position {
	if v.Kind == object.KindList {
		if p := v.Data.(*object.Cell).Pos; p != nil {
			return lexer.Position{File: p.File, Line: p.Line, Column: p.Column}
		}
	}
	return lexer.Position{}
}

func (f *fnCompiler) locOf(v object.Value) int {
	pos := posOf(v)
	if pos.Line == 0 {
		return 0
	}
	return f.c.locs.Add(pos)
}

// listElems flattens a proper list into a slice; a dotted tail is
// appended as a final element.
func listElems(v object.Value) []object.Value {
	var out []object.Value
	for v.Kind == object.KindList {
		cell := v.Data.(*object.Cell)
		out = append(out, cell.Head)
		v = cell.Tail
	}
	if v.Kind != object.KindNull {
		out = append(out, v)
	}
	return out
}

func headSymbol(v object.Value) (symbol.Symbol, bool) {
	if v.Kind != object.KindList {
		return symbol.Invalid, false
	}
	head := v.Data.(*object.Cell).Head
	if head.Kind != object.KindSymbol {
		return symbol.Invalid, false
	}
	return head.Data.(symbol.Symbol), true
}

// ---- expression compilation ----

func (f *fnCompiler) compileExpr(v object.Value) {
	loc := f.locOf(v)
	switch v.Kind {
	case object.KindNull:
		f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
	case object.KindBool:
		a := int32(0)
		if v.Data.(bool) {
			a = 1
		}
		f.emitIns(bytecode.OpLdBool, a, 0, 1, loc)
	case object.KindByte:
		f.emitIns(bytecode.OpLd8, int32(v.Data.(byte)), 0, 1, loc)
	case object.KindInt16:
		f.emitIns(bytecode.OpLd16, int32(v.Data.(int16)), 0, 1, loc)
	case object.KindInt32:
		f.emitIns(bytecode.OpLd32, v.Data.(int32), 0, 1, loc)
	case object.KindInt64:
		n := v.Data.(int64)
		f.emitIns(bytecode.OpLd64, int32(n&0xFFFFFFFF), int32(n>>32), 1, loc)
	case object.KindInt128:
		f.emitIns(bytecode.OpLd128, int32(f.seg().AddConstant(v)), 0, 1, loc)
	case object.KindBigInt:
		f.emitIns(bytecode.OpLdObj, int32(f.seg().AddConstant(v)), 0, 1, loc)
	case object.KindReal32, object.KindReal64, object.KindReal128:
		f.emitIns(bytecode.OpLdRealPool, int32(f.seg().AddConstant(v)), 0, 1, loc)
	case object.KindFloat32, object.KindFloat64:
		f.emitIns(bytecode.OpLdFloatPool, int32(f.seg().AddConstant(v)), 0, 1, loc)
	case object.KindChar:
		f.emitIns(bytecode.OpLdCh, int32(v.Data.(byte)), 0, 1, loc)
	case object.KindUni:
		f.emitIns(bytecode.OpLdUCh, v.Data.(rune), 0, 1, loc)
	case object.KindString:
		f.emitIns(bytecode.OpLdStr, int32(f.seg().AddConstant(v)), 0, 1, loc)
	case object.KindSymbol:
		f.compileNameRef(v.Data.(symbol.Symbol), v, loc)
	case object.KindPair:
		pair := v.Data.(*object.SmilePair)
		f.compileExpr(pair.Left)
		if pair.Right.Kind != object.KindSymbol {
			f.errorAt(v, "the right side of a property pair must be a symbol")
			f.emitIns(bytecode.OpPop1, 0, 0, -1, loc)
			f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
			return
		}
		f.emitLdProp(pair.Right.Data.(symbol.Symbol), loc)
	case object.KindList:
		f.compileListForm(v, loc)
	default:
		// Pre-built values (functions, handles) embedded by the host.
		f.emitIns(bytecode.OpLdObj, int32(f.seg().AddConstant(v)), 0, 1, loc)
	}
}

// compileNameRef resolves a bare symbol: a till flag, a local/argument at
// some lexical depth, or a free variable against the global closure.
func (f *fnCompiler) compileNameRef(sym symbol.Symbol, v object.Value, loc int) {
	for i := len(f.tillStack) - 1; i >= 0; i-- {
		ctx := f.tillStack[i]
		if l, ok := ctx.flags[sym]; ok {
			f.compileFlagJump(ctx, l, loc)
			return
		}
	}

	cv, depth, found := f.resolve(sym)
	if !found {
		f.emitIns(bytecode.OpLdX, int32(sym), 0, 1, loc)
		return
	}
	if cv.isArg {
		if op, ok := bytecode.ShortArgLoad(depth); ok {
			f.emitIns(op, int32(cv.index), 0, 1, loc)
		} else {
			f.emitIns(bytecode.OpLdArgN, int32(depth), int32(cv.index), 1, loc)
		}
		return
	}
	if op, ok := bytecode.ShortLocLoad(depth); ok {
		f.emitIns(op, int32(cv.index), 0, 1, loc)
	} else {
		f.emitIns(bytecode.OpLdLocN, int32(depth), int32(cv.index), 1, loc)
	}
}

// compileFlagJump lowers a till-flag reference: discard any partial values
// above the loop's entry depth and jump to the flag's exit label.
func (f *fnCompiler) compileFlagJump(ctx *tillContext, l *label, loc int) {
	before := f.curDepth
	if n := f.curDepth - ctx.entryDepth; n > 0 {
		switch n {
		case 1:
			f.emitIns(bytecode.OpPop1, 0, 0, -1, loc)
		case 2:
			f.emitIns(bytecode.OpPop2, 0, 0, -2, loc)
		default:
			f.emitIns(bytecode.OpPopN, int32(n), 0, -n, loc)
		}
	}
	f.jumpTo(bytecode.OpJmp, l, 0, loc)
	// The jump never falls through; account the expression slot so the
	// enclosing form's arithmetic stays balanced.
	f.curDepth = before + 1
	if f.curDepth > f.maxDepth {
		f.maxDepth = f.curDepth
	}
}

func (f *fnCompiler) emitLdProp(sym symbol.Symbol, loc int) {
	k := f.c.known
	var op bytecode.OpCode
	switch sym {
	case k.PropA:
		op = bytecode.OpLdA
	case k.PropD:
		op = bytecode.OpLdD
	case k.PropLeft:
		op = bytecode.OpLdLeft
	case k.PropRight:
		op = bytecode.OpLdRight
	case k.PropStart:
		op = bytecode.OpLdStart
	case k.PropEnd:
		op = bytecode.OpLdEnd
	case k.PropCount:
		op = bytecode.OpLdCount
	case k.PropLength:
		op = bytecode.OpLdLength
	default:
		f.emitIns(bytecode.OpLdProp, int32(sym), 0, 0, loc)
		return
	}
	f.emitIns(op, 0, 0, 0, loc)
}

func (f *fnCompiler) compileListForm(v object.Value, loc int) {
	k := f.c.known
	head, ok := headSymbol(v)
	if ok {
		elems := listElems(v)
		switch head {
		case k.SetForm:
			f.compileSet(v, elems, loc)
			return
		case k.OpSetForm:
			f.compileOpSet(v, elems, loc)
			return
		case k.IfForm:
			f.compileIf(v, elems, loc)
			return
		case k.WhileForm:
			f.compileWhile(v, elems, loc)
			return
		case k.TillForm:
			f.compileTill(v, elems, loc)
			return
		case k.CatchForm:
			f.compileCatch(v, elems, loc)
			return
		case k.ReturnForm:
			f.compileReturn(elems, loc)
			return
		case k.FnForm:
			f.compileFn(v, elems, loc)
			return
		case k.QuoteForm:
			if len(elems) != 2 {
				f.errorAt(v, "$quote takes exactly one argument")
				f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
				return
			}
			f.emitIns(bytecode.OpLdObj, int32(f.seg().AddConstant(elems[1])), 0, 1, loc)
			return
		case k.PrognForm:
			f.compileBody(elems[1:], loc)
			return
		case k.ScopeForm:
			f.compileScope(v, elems, loc)
			return
		case k.NewForm:
			f.compileNew(v, elems, loc)
			return
		case k.IsForm:
			f.compileBinOp(v, elems, bytecode.OpIs, "$is", loc)
			return
		case k.TypeofForm:
			if len(elems) != 2 {
				f.errorAt(v, "$typeof takes exactly one argument")
				f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
				return
			}
			f.compileExpr(elems[1])
			f.emitIns(bytecode.OpTypeOf, 0, 0, 0, loc)
			return
		case k.EqForm:
			f.compileBinOp(v, elems, bytecode.OpSuperEq, "$eq", loc)
			return
		case k.NeForm:
			f.compileBinOp(v, elems, bytecode.OpSuperNe, "$ne", loc)
			return
		case k.AndForm:
			f.compileAndOr(elems[1:], true, loc)
			return
		case k.OrForm:
			f.compileAndOr(elems[1:], false, loc)
			return
		case k.NotForm:
			if len(elems) != 2 {
				f.errorAt(v, "$not takes exactly one argument")
				f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
				return
			}
			f.compileExpr(elems[1])
			f.emitIns(bytecode.OpNot, 0, 0, 0, loc)
			return
		case k.IndexForm:
			if len(elems) != 3 {
				f.errorAt(v, "$index takes a collection and a key")
				f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
				return
			}
			f.compileExpr(elems[1])
			f.compileExpr(elems[2])
			f.emitIns(bytecode.OpLdMember, 0, 0, -1, loc)
			return
		case k.DotForm:
			if len(elems) != 3 || elems[2].Kind != object.KindSymbol {
				f.errorAt(v, "$dot takes an object and a member symbol")
				f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
				return
			}
			f.compileExpr(elems[1])
			f.emitLdProp(elems[2].Data.(symbol.Symbol), loc)
			return
		}
	}
	f.compileCall(v, loc)
}

func (f *fnCompiler) compileBinOp(v object.Value, elems []object.Value, op bytecode.OpCode, name string, loc int) {
	if len(elems) != 3 {
		f.errorAt(v, "%s takes exactly two arguments", name)
		f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
		return
	}
	f.compileExpr(elems[1])
	f.compileExpr(elems[2])
	f.emitIns(op, 0, 0, -1, loc)
}

// compileCall lowers a list as application: [(recv.m) args...] fuses into
// the Met opcodes; anything else is callee evaluation plus Call (spec.md
// 4.7).
func (f *fnCompiler) compileCall(v object.Value, loc int) {
	elems := listElems(v)
	callee := elems[0]
	args := elems[1:]

	if callee.Kind == object.KindPair {
		pair := callee.Data.(*object.SmilePair)
		if pair.Right.Kind == object.KindSymbol {
			f.compileExpr(pair.Left)
			for _, a := range args {
				f.compileExpr(a)
			}
			f.emitMet(pair.Right.Data.(symbol.Symbol), len(args), loc)
			return
		}
	}

	f.compileExpr(callee)
	for _, a := range args {
		f.compileExpr(a)
	}
	f.emitIns(bytecode.OpCall, int32(len(args)), 0, -len(args), loc)
	f.barrier()
}

func (f *fnCompiler) emitMet(sym symbol.Symbol, argc int, loc int) {
	if op, ok := bytecode.ShortMet(argc); ok {
		f.emitIns(op, int32(sym), 0, -argc, loc)
	} else {
		f.emitIns(bytecode.OpMet, int32(argc), int32(sym), -argc, loc)
	}
	f.barrier()
}

// compileBody compiles a statement sequence, discarding every value but
// the last through the peephole pop (spec.md 4.6).
func (f *fnCompiler) compileBody(stmts []object.Value, loc int) {
	if len(stmts) == 0 {
		f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
		return
	}
	for i, s := range stmts {
		f.compileExpr(s)
		if i < len(stmts)-1 {
			f.emitPop(f.locOf(s))
		}
	}
}

// ---- the special forms ----

func (f *fnCompiler) compileSet(v object.Value, elems []object.Value, loc int) {
	if len(elems) != 3 {
		f.errorAt(v, "$set takes an lvalue and a value")
		f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
		return
	}
	lv, val := elems[1], elems[2]

	switch {
	case lv.Kind == object.KindSymbol:
		f.compileExpr(val)
		f.emitStore(lv.Data.(symbol.Symbol), loc)

	case lv.Kind == object.KindPair:
		pair := lv.Data.(*object.SmilePair)
		if pair.Right.Kind != object.KindSymbol {
			f.errorAt(v, "cannot assign through a non-symbol property")
			f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
			return
		}
		f.compileExpr(pair.Left)
		f.compileExpr(val)
		f.emitIns(bytecode.OpStProp, int32(pair.Right.Data.(symbol.Symbol)), 0, -1, loc)

	case isForm(lv, f.c.known.IndexForm):
		ie := listElems(lv)
		if len(ie) != 3 {
			f.errorAt(v, "malformed $index lvalue")
			f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
			return
		}
		f.compileExpr(ie[1])
		f.compileExpr(ie[2])
		f.compileExpr(val)
		f.emitIns(bytecode.OpStMember, 0, 0, -2, loc)

	case isForm(lv, f.c.known.DotForm):
		de := listElems(lv)
		if len(de) != 3 || de[2].Kind != object.KindSymbol {
			f.errorAt(v, "malformed $dot lvalue")
			f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
			return
		}
		f.compileExpr(de[1])
		f.compileExpr(val)
		f.emitIns(bytecode.OpStProp, int32(de[2].Data.(symbol.Symbol)), 0, -1, loc)

	default:
		f.errorAt(v, "invalid assignment target")
		f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
	}
}

// emitStore writes top-of-stack into sym, leaving the value on the stack.
func (f *fnCompiler) emitStore(sym symbol.Symbol, loc int) {
	cv, depth, found := f.resolve(sym)
	if !found {
		f.emitIns(bytecode.OpStX, int32(sym), 0, 0, loc)
		return
	}
	if cv.isArg {
		if op, ok := bytecode.ShortArgStore(depth); ok {
			f.emitIns(op, int32(cv.index), 0, 0, loc)
		} else {
			f.emitIns(bytecode.OpStArgN, int32(depth), int32(cv.index), 0, loc)
		}
		return
	}
	if op, ok := bytecode.ShortLocStore(depth); ok {
		f.emitIns(op, int32(cv.index), 0, 0, loc)
	} else {
		f.emitIns(bytecode.OpStLocN, int32(depth), int32(cv.index), 0, loc)
	}
}

func (f *fnCompiler) compileOpSet(v object.Value, elems []object.Value, loc int) {
	if len(elems) != 4 || elems[1].Kind != object.KindSymbol {
		f.errorAt(v, "$opset takes an operator, an lvalue, and a value")
		f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
		return
	}
	op := elems[1].Data.(symbol.Symbol)
	lv, val := elems[2], elems[3]

	switch {
	case lv.Kind == object.KindSymbol:
		sym := lv.Data.(symbol.Symbol)
		f.compileNameRef(sym, lv, loc)
		f.compileExpr(val)
		f.emitMet(op, 1, loc)
		f.emitStore(sym, loc)

	case lv.Kind == object.KindPair:
		pair := lv.Data.(*object.SmilePair)
		if pair.Right.Kind != object.KindSymbol {
			f.errorAt(v, "cannot assign through a non-symbol property")
			f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
			return
		}
		prop := pair.Right.Data.(symbol.Symbol)
		f.compileExpr(pair.Left)
		f.emitIns(bytecode.OpDup, 0, 0, 1, loc)
		f.emitLdProp(prop, loc)
		f.compileExpr(val)
		f.emitMet(op, 1, loc)
		f.emitIns(bytecode.OpStProp, int32(prop), 0, -1, loc)

	case isForm(lv, f.c.known.IndexForm):
		ie := listElems(lv)
		if len(ie) != 3 {
			f.errorAt(v, "malformed $index lvalue")
			f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
			return
		}
		f.compileExpr(ie[1])
		f.compileExpr(ie[2])
		f.emitIns(bytecode.OpDup2, 0, 0, 2, loc)
		f.emitIns(bytecode.OpLdMember, 0, 0, -1, loc)
		f.compileExpr(val)
		f.emitMet(op, 1, loc)
		f.emitIns(bytecode.OpStMember, 0, 0, -2, loc)

	default:
		f.errorAt(v, "invalid op-assignment target")
		f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
	}
}

// compileIf strips an even number of $not wrappers off the condition (an
// odd number strips and swaps the branches), then emits the classic
// cond/Bf/then/Jmp/else diamond (spec.md 4.6).
func (f *fnCompiler) compileIf(v object.Value, elems []object.Value, loc int) {
	if len(elems) < 3 || len(elems) > 4 {
		f.errorAt(v, "$if takes a condition, a then, and an optional else")
		f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
		return
	}
	cond := elems[1]
	thenBranch := elems[2]
	elseBranch := object.Null
	hasElse := len(elems) == 4
	if hasElse {
		elseBranch = elems[3]
	}

	swapped := false
	for {
		if !isForm(cond, f.c.known.NotForm) {
			break
		}
		ne := listElems(cond)
		if len(ne) != 2 {
			break
		}
		cond = ne[1]
		swapped = !swapped
	}
	if swapped {
		thenBranch, elseBranch = elseBranch, thenBranch
	}

	f.compileExpr(cond)
	elseL, endL := newLabel(), newLabel()
	f.jumpTo(bytecode.OpBf, elseL, -1, loc)

	base := f.curDepth
	f.compileExpr(thenBranch)
	f.jumpTo(bytecode.OpJmp, endL, 0, loc)

	f.curDepth = base
	f.bind(elseL, loc)
	if elseBranch.Kind == object.KindNull && !hasElse && !swapped {
		f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
	} else {
		f.compileExpr(elseBranch)
	}
	f.bind(endL, loc)
}

// compileWhile lowers the three $while shapes (spec.md 4.5.2, 4.6). The
// form always carries [pre cond post] with Null marking an absent part;
// each lowering leaves exactly one value on the stack.
func (f *fnCompiler) compileWhile(v object.Value, elems []object.Value, loc int) {
	if len(elems) != 4 {
		f.errorAt(v, "$while takes a pre-body, a condition, and a post-body")
		f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
		return
	}
	pre, cond, post := elems[1], elems[2], elems[3]
	hasPre := pre.Kind != object.KindNull
	hasPost := post.Kind != object.KindNull

	start, end := newLabel(), newLabel()

	switch {
	case !hasPre:
		// while cond do post
		f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
		f.bind(start, loc)
		f.compileExpr(cond)
		f.jumpTo(bytecode.OpBf, end, -1, loc)
		f.emitIns(bytecode.OpPop1, 0, 0, -1, loc)
		f.compileExpr(post)
		f.jumpTo(bytecode.OpJmp, start, 0, loc)
		f.bind(end, loc)

	case !hasPost:
		// do pre while cond
		f.bind(start, loc)
		f.compileExpr(pre)
		f.compileExpr(cond)
		f.jumpTo(bytecode.OpBf, end, -1, loc)
		f.emitIns(bytecode.OpPop1, 0, 0, -1, loc)
		f.jumpTo(bytecode.OpJmp, start, 0, loc)
		f.curDepth++ // the loop exit arrives holding the pre value
		f.bind(end, loc)

	default:
		// do pre while cond then post
		f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
		f.bind(start, loc)
		f.compileExpr(pre)
		f.emitPop(loc)
		f.compileExpr(cond)
		f.jumpTo(bytecode.OpBf, end, -1, loc)
		f.emitIns(bytecode.OpPop1, 0, 0, -1, loc)
		f.compileExpr(post)
		f.jumpTo(bytecode.OpJmp, start, 0, loc)
		f.bind(end, loc)
	}
}

// compileTill allocates a hidden result slot and a named exit label per
// flag; flag references in the body jump to their label, when-clauses run
// after the loop tail (spec.md 4.6).
func (f *fnCompiler) compileTill(v object.Value, elems []object.Value, loc int) {
	if len(elems) < 3 || len(elems) > 4 {
		f.errorAt(v, "$till takes a flag list, a body, and optional when clauses")
		f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
		return
	}

	var flagSyms []symbol.Symbol
	for _, fv := range listElems(elems[1]) {
		if fv.Kind != object.KindSymbol {
			f.errorAt(v, "$till flags must be symbols")
			f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
			return
		}
		flagSyms = append(flagSyms, fv.Data.(symbol.Symbol))
	}
	if len(flagSyms) == 0 {
		f.errorAt(v, "$till needs at least one flag")
		f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
		return
	}

	f.pushScope()
	tmp := f.declareLocal(f.c.symbols.Intern("$till-value"))
	f.emitIns(bytecode.OpLAlloc, 1, 0, 0, loc)

	ctx := &tillContext{
		entryDepth: f.curDepth,
		tmpSlot:    tmp,
		flags:      make(map[symbol.Symbol]*label),
	}
	for _, sym := range flagSyms {
		ctx.flags[sym] = newLabel()
	}
	f.tillStack = append(f.tillStack, ctx)

	start, end := newLabel(), newLabel()
	f.bind(start, loc)
	f.compileExpr(elems[2])
	stp, _ := bytecode.ShortStpLoc(0)
	f.emitIns(stp, int32(tmp), 0, -1, loc)
	f.jumpTo(bytecode.OpJmp, start, 0, loc)

	// When clauses, keyed by flag symbol.
	whens := make(map[symbol.Symbol]object.Value)
	if len(elems) == 4 {
		for _, wv := range listElems(elems[3]) {
			we := listElems(wv)
			if len(we) != 2 || we[0].Kind != object.KindSymbol {
				f.errorAt(v, "malformed $till when clause")
				continue
			}
			whens[we[0].Data.(symbol.Symbol)] = we[1]
		}
	}

	for _, sym := range flagSyms {
		f.curDepth = ctx.entryDepth
		f.bind(ctx.flags[sym], loc)
		if body, ok := whens[sym]; ok {
			f.compileExpr(body)
			f.emitIns(stp, int32(tmp), 0, -1, loc)
		}
		f.jumpTo(bytecode.OpJmp, end, 0, loc)
	}

	f.tillStack = f.tillStack[:len(f.tillStack)-1]

	f.curDepth = ctx.entryDepth
	f.bind(end, loc)
	ld, _ := bytecode.ShortLocLoad(0)
	f.emitIns(ld, int32(tmp), 0, 1, loc)
	f.emitIns(bytecode.OpLFree, 1, 0, 0, loc)
	f.popScope()
}

// compileCatch evaluates the handler into a hidden slot and registers the
// protected range on the ClosureInfo; the VM consults the range table when
// an exception unwinds (spec.md 4.6, 4.7).
func (f *fnCompiler) compileCatch(v object.Value, elems []object.Value, loc int) {
	if len(elems) != 3 {
		f.errorAt(v, "$catch takes a body and a handler")
		f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
		return
	}

	f.pushScope()
	slot := f.declareLocal(f.c.symbols.Intern("$catch-handler"))
	f.emitIns(bytecode.OpLAlloc, 1, 0, 0, loc)

	f.compileExpr(elems[2])
	stp, _ := bytecode.ShortStpLoc(0)
	f.emitIns(stp, int32(slot), 0, -1, loc)
	f.barrier()

	start := len(f.seg().Code)
	depth := f.curDepth
	f.compileExpr(elems[1])
	end := len(f.seg().Code)
	f.barrier()

	f.info.Handlers = append(f.info.Handlers, bytecode.HandlerRange{
		StartPC:           start,
		EndPC:             end,
		HandlerSlot:       slot,
		StackDepthAtEntry: depth,
	})

	f.emitIns(bytecode.OpLFree, 1, 0, 0, loc)
	f.popScope()
}

func (f *fnCompiler) compileReturn(elems []object.Value, loc int) {
	if len(elems) > 1 {
		f.compileExpr(elems[1])
	} else {
		f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
	}
	f.emitIns(bytecode.OpRet, 0, 0, -1, loc)
	f.barrier()
	// Account the unreachable expression slot for the enclosing form.
	f.curDepth++
	if f.curDepth > f.maxDepth {
		f.maxDepth = f.curDepth
	}
}

// compileFn opens a nested function compiler, declares the arguments,
// compiles the body, and emits NewFn in the outer function (spec.md 4.6).
func (f *fnCompiler) compileFn(v object.Value, elems []object.Value, loc int) {
	if len(elems) < 3 {
		f.errorAt(v, "$fn takes an argument list and a body")
		f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
		return
	}

	child := newFnCompiler(f.c, "<fn>", f)
	for _, av := range listElems(elems[1]) {
		if av.Kind != object.KindSymbol {
			f.errorAt(v, "$fn arguments must be symbols")
			continue
		}
		child.declareArg(av.Data.(symbol.Symbol))
	}

	child.emitIns(bytecode.OpArgs, int32(len(child.info.Args)), 0, 0, loc)
	child.compileBody(elems[2:], loc)
	child.emitIns(bytecode.OpRet, 0, 0, -1, loc)

	idx := f.seg().AddFunction(child.finish())
	f.emitIns(bytecode.OpNewFn, int32(idx), 0, 1, loc)
}

func (f *fnCompiler) compileScope(v object.Value, elems []object.Value, loc int) {
	if len(elems) < 2 {
		f.errorAt(v, "$scope takes a locals list and a body")
		f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
		return
	}

	f.pushScope()
	n := 0
	for _, lv := range listElems(elems[1]) {
		if lv.Kind != object.KindSymbol {
			f.errorAt(v, "$scope locals must be symbols")
			continue
		}
		f.declareLocal(lv.Data.(symbol.Symbol))
		n++
	}
	if n > 0 {
		f.emitIns(bytecode.OpLAlloc, int32(n), 0, 0, loc)
	}

	f.compileBody(elems[2:], loc)

	if n > 0 {
		f.emitIns(bytecode.OpLFree, int32(n), 0, 0, loc)
	}
	f.popScope()
}

// compileNew pushes the base, then sym/value pairs, then NewObj n, which
// pops 2n+1 values and pushes the constructed object (spec.md 4.6).
func (f *fnCompiler) compileNew(v object.Value, elems []object.Value, loc int) {
	if len(elems) != 3 {
		f.errorAt(v, "$new takes a base and a member list")
		f.emitIns(bytecode.OpLdNull, 0, 0, 1, loc)
		return
	}
	f.compileExpr(elems[1])

	members := listElems(elems[2])
	for _, mv := range members {
		me := listElems(mv)
		if len(me) != 2 || me[0].Kind != object.KindSymbol {
			f.errorAt(v, "$new members must be [symbol value] pairs")
			continue
		}
		f.emitIns(bytecode.OpLdSym, int32(me[0].Data.(symbol.Symbol)), 0, 1, loc)
		f.compileExpr(me[1])
	}
	f.emitIns(bytecode.OpNewObj, int32(len(members)), 0, -2*len(members), loc)
}

// compileAndOr lowers $and/$or with short-circuit branches to a single
// Bool result.
func (f *fnCompiler) compileAndOr(operands []object.Value, isAnd bool, loc int) {
	if len(operands) == 0 {
		f.emitIns(bytecode.OpLdBool, boolOperand(isAnd), 0, 1, loc)
		return
	}

	shortL, endL := newLabel(), newLabel()
	branchOp := bytecode.OpBf
	if !isAnd {
		branchOp = bytecode.OpBt
	}

	for _, operand := range operands {
		f.compileExpr(operand)
		f.jumpTo(branchOp, shortL, -1, loc)
	}
	f.emitIns(bytecode.OpLdBool, boolOperand(isAnd), 0, 1, loc)
	f.jumpTo(bytecode.OpJmp, endL, 0, loc)

	f.curDepth--
	f.bind(shortL, loc)
	f.emitIns(bytecode.OpLdBool, boolOperand(!isAnd), 0, 1, loc)
	f.bind(endL, loc)
}

func boolOperand(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func isForm(v object.Value, form symbol.Symbol) bool {
	head, ok := headSymbol(v)
	return ok && head == form
}

// ---- peephole pop fusion ----

// emitPop discards the top of stack as cheaply as possible (spec.md 4.6):
// deleting pure loads, unwinding property loads onto their object, merging
// consecutive pops, and rewriting stores to their store-and-pop variants.
func (f *fnCompiler) emitPop(loc int) {
	seg := f.seg()
	n := len(seg.Code)
	if n > f.lastBarrier {
		last := seg.Code[n-1]

		if bytecode.IsPureLoad(last.Op) {
			seg.Code = seg.Code[:n-1]
			f.curDepth--
			return
		}

		switch last.Op {
		case bytecode.OpLdProp, bytecode.OpLdA, bytecode.OpLdD,
			bytecode.OpLdLeft, bytecode.OpLdRight, bytecode.OpLdStart,
			bytecode.OpLdEnd, bytecode.OpLdCount, bytecode.OpLdLength:
			seg.Code = seg.Code[:n-1]
			f.emitPop(loc)
			return

		case bytecode.OpLdMember:
			seg.Code = seg.Code[:n-1]
			f.curDepth++
			f.emitPop(loc)
			f.emitPop(loc)
			return

		case bytecode.OpPop1:
			seg.Code = seg.Code[:n-1]
			f.emitIns(bytecode.OpPop2, 0, 0, -1, loc)
			return

		case bytecode.OpPop2:
			seg.Code = seg.Code[:n-1]
			f.emitIns(bytecode.OpPopN, 3, 0, -1, loc)
			return

		case bytecode.OpPopN:
			seg.Code[n-1].A++
			f.curDepth--
			return
		}

		if stp, ok := bytecode.StoreToStp(last.Op); ok {
			seg.Code[n-1].Op = stp
			f.curDepth--
			return
		}
	}

	f.emitIns(bytecode.OpPop1, 0, 0, -1, loc)
}
