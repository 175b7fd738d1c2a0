package compiler

import (
	"testing"

	"github.com/smile-lang/smile/internal/bytecode"
	"github.com/smile-lang/smile/internal/object"
	"github.com/smile-lang/smile/internal/symbol"
)

type fixture struct {
	symbols *symbol.Table
	known   *symbol.Known
	c       *Compiler
}

func newFixture() *fixture {
	symbols := symbol.New()
	known := symbol.NewKnown(symbols)
	return &fixture{symbols: symbols, known: known, c: New(symbols, known)}
}

func (fx *fixture) form(head symbol.Symbol, elems ...object.Value) object.Value {
	return object.List(append([]object.Value{object.Sym(head)}, elems...)...)
}

func opcodes(info *bytecode.ClosureInfo) []bytecode.OpCode {
	ops := make([]bytecode.OpCode, len(info.Segment.Code))
	for i, ins := range info.Segment.Code {
		ops[i] = ins.Op
	}
	return ops
}

func TestPrognFusesAwayPureLoads(t *testing.T) {
	fx := newFixture()
	// [$progn 1 2 3]: the discarded loads are deleted, not popped.
	expr := fx.form(fx.known.PrognForm, object.Int32(1), object.Int32(2), object.Int32(3))
	info := fx.c.Compile(expr, "test")

	want := []bytecode.OpCode{bytecode.OpLd32, bytecode.OpRet}
	got := opcodes(info)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if info.Segment.Code[0].A != 3 {
		t.Errorf("the surviving load must be the last value")
	}
}

func TestStorePopFusion(t *testing.T) {
	fx := newFixture()
	x := fx.symbols.Intern("x")
	// [$progn [$set x 1] 2]: the discarded store becomes its
	// store-and-pop variant.
	expr := fx.form(fx.known.PrognForm,
		fx.form(fx.known.SetForm, object.Sym(x), object.Int32(1)),
		object.Int32(2))
	info := fx.c.Compile(expr, "test")

	found := false
	for _, ins := range info.Segment.Code {
		if ins.Op == bytecode.OpStpX {
			found = true
		}
		if ins.Op == bytecode.OpStX {
			t.Errorf("plain store must have been rewritten to StpX")
		}
		if ins.Op == bytecode.OpPop1 {
			t.Errorf("no plain pop should survive store fusion")
		}
	}
	if !found {
		t.Errorf("expected a StpX in %v", opcodes(info))
	}
}

func TestPopsDoNotMergeAcrossCalls(t *testing.T) {
	fx := newFixture()
	// A call result is not erasable and a call is a merge barrier, so each
	// call's result gets its own Pop1.
	call := object.List(object.Sym(fx.symbols.Intern("$f")))
	expr := fx.form(fx.known.PrognForm, call, call, object.Int32(1))
	info := fx.c.Compile(expr, "test")

	pop1s := 0
	for _, ins := range info.Segment.Code {
		if ins.Op == bytecode.OpPop1 {
			pop1s++
		}
	}
	if pop1s != 2 {
		// Each call result is popped right after its call; they cannot
		// merge across the intervening call, so two Pop1s is the cheapest
		// correct shape.
		t.Errorf("expected 2 Pop1s, got %d in %v", pop1s, opcodes(info))
	}
}

func TestIfStripsNotWrappers(t *testing.T) {
	fx := newFixture()
	x := fx.symbols.Intern("$x")
	cond := fx.form(fx.known.NotForm, fx.form(fx.known.NotForm, object.Sym(x)))
	expr := fx.form(fx.known.IfForm, cond, object.Int32(1), object.Int32(2))
	info := fx.c.Compile(expr, "test")

	for _, ins := range info.Segment.Code {
		if ins.Op == bytecode.OpNot {
			t.Errorf("double $not must be stripped: %v", opcodes(info))
		}
	}
}

func TestBranchLabelPairing(t *testing.T) {
	fx := newFixture()
	x := fx.symbols.Intern("$x")
	expr := fx.form(fx.known.WhileForm,
		object.Null,
		object.Sym(x),
		fx.form(fx.known.IfForm, object.Sym(x), object.Int32(1), object.Int32(2)))
	info := fx.c.Compile(expr, "test")

	code := info.Segment.Code
	for i, ins := range code {
		switch ins.Op {
		case bytecode.OpJmp, bytecode.OpBf, bytecode.OpBt:
			target := i + int(ins.A)
			if target < 0 || target >= len(code) {
				t.Fatalf("branch at %d jumps out of range (%+d)", i, ins.A)
			}
			if code[target].Op != bytecode.OpLabel {
				t.Errorf("branch at %d must land on a Label, got %s", i, code[target].Op)
			}
		case bytecode.OpLabel:
			if ins.A != 0 {
				src := i + int(ins.A)
				switch code[src].Op {
				case bytecode.OpJmp, bytecode.OpBf, bytecode.OpBt:
				default:
					t.Errorf("Label at %d has inverse displacement to non-branch %s", i, code[src].Op)
				}
			}
		}
	}
}

func TestStackSizeAccounting(t *testing.T) {
	fx := newFixture()
	x, y := fx.symbols.Intern("x"), fx.symbols.Intern("y")
	// |x y| x * y + 1
	body := object.List(
		object.MakePair(
			object.List(object.MakePair(object.Sym(x), object.Sym(fx.symbols.Intern("*"))), object.Sym(y)),
			object.Sym(fx.symbols.Intern("+"))),
		object.Int32(1))
	fn := fx.form(fx.known.FnForm, object.List(object.Sym(x), object.Sym(y)), body)
	info := fx.c.Compile(fn, "test")

	if len(info.Segment.Functions) != 1 {
		t.Fatalf("expected one nested function")
	}
	child := info.Segment.Functions[0]
	if len(child.Args) != 2 {
		t.Errorf("expected 2 args, got %d", len(child.Args))
	}
	if child.StackSize != 2 {
		t.Errorf("expected stack size 2, got %d", child.StackSize)
	}
	if info.StackSize != 1 {
		t.Errorf("outer function needs exactly the NewFn slot, got %d", info.StackSize)
	}
}

func TestShortAndIndexedLocalOpcodes(t *testing.T) {
	fx := newFixture()
	v := fx.symbols.Intern("v")
	inner := fx.form(fx.known.FnForm, object.List(), object.Sym(v))
	outer := fx.form(fx.known.ScopeForm, object.List(object.Sym(v)),
		fx.form(fx.known.SetForm, object.Sym(v), object.Int32(1)),
		inner)
	info := fx.c.Compile(outer, "test")

	sawDepth0Store := false
	for _, ins := range info.Segment.Code {
		if ins.Op == bytecode.OpStLoc0 || ins.Op == bytecode.OpStpLoc0 {
			sawDepth0Store = true
		}
	}
	if !sawDepth0Store {
		t.Errorf("same-function local access must use the depth-0 short form: %v", opcodes(info))
	}

	child := info.Segment.Functions[0]
	sawDepth1Load := false
	for _, ins := range child.Segment.Code {
		if ins.Op == bytecode.OpLdLoc1 {
			sawDepth1Load = true
		}
	}
	if !sawDepth1Load {
		t.Errorf("enclosing-function local access must use the depth-1 short form: %v", opcodes(child))
	}
}

func TestCatchRegistersHandlerRange(t *testing.T) {
	fx := newFixture()
	handler := fx.form(fx.known.FnForm, object.List(object.Sym(fx.symbols.Intern("e"))), object.Int32(0))
	expr := fx.form(fx.known.CatchForm, object.Int32(1), handler)
	info := fx.c.Compile(expr, "test")

	if len(info.Handlers) != 1 {
		t.Fatalf("expected one handler range, got %d", len(info.Handlers))
	}
	h := info.Handlers[0]
	if h.StartPC >= h.EndPC {
		t.Errorf("empty protected range [%d, %d)", h.StartPC, h.EndPC)
	}
	if h.StackDepthAtEntry != 0 {
		t.Errorf("expected entry depth 0, got %d", h.StackDepthAtEntry)
	}
}

func TestMalformedFormsReportCompileMessages(t *testing.T) {
	fx := newFixture()
	expr := fx.form(fx.known.SetForm) // [$set] with no operands
	fx.c.Compile(expr, "test")
	if !fx.c.Diagnostics().HasErrors(false) {
		t.Errorf("malformed $set must produce a compile message")
	}
}

func TestIndexLowersToMemberOpcodes(t *testing.T) {
	fx := newFixture()
	m := fx.symbols.Intern("$m")
	// [$index $m 1] loads, [$set [$index $m 1] 2] stores.
	load := fx.form(fx.known.IndexForm, object.Sym(m), object.Int32(1))
	info := fx.c.Compile(load, "test")
	if ops := opcodes(info); ops[2] != bytecode.OpLdMember {
		t.Errorf("$index must lower to LdMember: %v", ops)
	}

	store := fx.form(fx.known.SetForm, load, object.Int32(2))
	info = fx.c.Compile(store, "test")
	found := false
	for _, ins := range info.Segment.Code {
		if ins.Op == bytecode.OpStMember {
			found = true
		}
	}
	if !found {
		t.Errorf("$index assignment must lower to StMember: %v", opcodes(info))
	}
}

func TestIndexStorePopFusion(t *testing.T) {
	fx := newFixture()
	m := fx.symbols.Intern("$m")
	// A discarded $index store rewrites to StpMember.
	set := fx.form(fx.known.SetForm,
		fx.form(fx.known.IndexForm, object.Sym(m), object.Int32(1)),
		object.Int32(2))
	expr := fx.form(fx.known.PrognForm, set, object.Int32(3))
	info := fx.c.Compile(expr, "test")

	sawStp := false
	for _, ins := range info.Segment.Code {
		if ins.Op == bytecode.OpStpMember {
			sawStp = true
		}
		if ins.Op == bytecode.OpStMember || ins.Op == bytecode.OpPop1 {
			t.Errorf("discarded member store must fuse: %v", opcodes(info))
		}
	}
	if !sawStp {
		t.Errorf("expected a StpMember in %v", opcodes(info))
	}
}

func TestIndexLoadPopFusion(t *testing.T) {
	fx := newFixture()
	m := fx.symbols.Intern("$m")
	// A discarded member load unwinds onto the collection and key loads,
	// which then erase entirely.
	expr := fx.form(fx.known.PrognForm,
		fx.form(fx.known.IndexForm, object.Sym(m), object.Int32(1)),
		object.Int32(3))
	info := fx.c.Compile(expr, "test")

	want := []bytecode.OpCode{bytecode.OpLd32, bytecode.OpRet}
	got := opcodes(info)
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("expected the whole load to erase, got %v", got)
	}
}

func TestMetFusionForPairHeads(t *testing.T) {
	fx := newFixture()
	lt := fx.symbols.Intern("<")
	// [(1 . <) 10] must fuse into a single Met1.
	expr := object.List(object.MakePair(object.Int32(1), object.Sym(lt)), object.Int32(10))
	info := fx.c.Compile(expr, "test")

	sawMet1, sawCall := false, false
	for _, ins := range info.Segment.Code {
		if ins.Op == bytecode.OpMet1 {
			sawMet1 = true
		}
		if ins.Op == bytecode.OpCall {
			sawCall = true
		}
	}
	if !sawMet1 || sawCall {
		t.Errorf("pair-headed call must fuse to Met1: %v", opcodes(info))
	}
}
