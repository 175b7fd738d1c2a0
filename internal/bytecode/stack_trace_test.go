package bytecode

import (
	"testing"

	"github.com/smile-lang/smile/internal/lexer"
	"github.com/smile-lang/smile/internal/object"
	"github.com/smile-lang/smile/internal/symbol"
)

// traceStrings flattens the stack-trace list off a thrown exception.
func traceStrings(t *testing.T, known *symbol.Known, exc object.Value) []string {
	t.Helper()
	obj := exc.Data.(*object.UserObject)
	trace, ok := obj.Get(known.ExcStackTrace)
	if !ok || trace.Kind != object.KindList {
		t.Fatalf("exception must carry a stack-trace list, got %v", trace)
	}
	var out []string
	for cur := trace; cur.Kind == object.KindList; cur = cur.Data.(*object.Cell).Tail {
		out = append(out, cur.Data.(*object.Cell).Head.Data.(*object.SmileString).String())
	}
	return out
}

func TestThrownExceptionStackTrace(t *testing.T) {
	syms := symbol.New()
	known := symbol.NewKnown(syms)
	locs := &LocationTable{}
	locInner := locs.Add(lexer.Position{File: "t.sm", Line: 3, Column: 5})
	locOuter := locs.Add(lexer.Position{File: "t.sm", Line: 9, Column: 1})

	// inner calls a non-function, raising eval-error mid-segment.
	inner := NewClosureInfo("inner", nil)
	inner.StackSize = 1
	inner.Segment.Emit(Make(OpLd32, 1), locInner)
	inner.Segment.Emit(Make(OpCall, 0), locInner)
	inner.Segment.Emit(MakeSimple(OpRet), locInner)

	outer := NewClosureInfo("<main>", nil)
	outer.StackSize = 1
	idx := outer.Segment.AddFunction(inner)
	outer.Segment.Emit(Make(OpNewFn, int32(idx)), locOuter)
	outer.Segment.Emit(Make(OpCall, 0), locOuter)
	outer.Segment.Emit(MakeSimple(OpRet), locOuter)

	vm := NewVM(syms, known, WithLocations(locs))
	res := vm.Run(outer)
	if res.Kind != ResultException {
		t.Fatalf("expected an exception, got %v", res.Kind)
	}

	frames := traceStrings(t, known, res.Exception)
	want := []string{
		"inner [line: 3, column: 5]",
		"<main> [line: 9, column: 1]",
	}
	if len(frames) != len(want) {
		t.Fatalf("expected %d frames, got %v", len(want), frames)
	}
	for i := range want {
		if frames[i] != want[i] {
			t.Errorf("frame %d: expected %q, got %q", i, want[i], frames[i])
		}
	}
}

func TestStackTraceWithoutLocationsFallsBackToNames(t *testing.T) {
	syms := symbol.New()
	known := symbol.NewKnown(syms)

	// No location ids tagged, no location table attached: frames render
	// as bare ClosureInfo names.
	info := assemble("bare", 1,
		Make(OpLd32, 1),
		Make(OpCall, 0),
		MakeSimple(OpRet))

	vm := NewVM(syms, known)
	res := vm.Run(info)
	if res.Kind != ResultException {
		t.Fatalf("expected an exception, got %v", res.Kind)
	}

	frames := traceStrings(t, known, res.Exception)
	if len(frames) != 1 || frames[0] != "bare" {
		t.Errorf("expected the bare closure name, got %v", frames)
	}
}

func TestCaptureStackTraceOrderAndString(t *testing.T) {
	syms := symbol.New()
	known := symbol.NewKnown(syms)
	locs := &LocationTable{}
	loc := locs.Add(lexer.Position{Line: 2, Column: 1})

	callee := NewClosureInfo("callee", nil)
	callee.StackSize = 1
	callee.Segment.Emit(Make(OpLd32, 1), loc)
	callee.Segment.Emit(MakeSimple(OpBrk), loc)
	callee.Segment.Emit(MakeSimple(OpRet), loc)

	caller := NewClosureInfo("caller", nil)
	caller.StackSize = 1
	idx := caller.Segment.AddFunction(callee)
	caller.Segment.Emit(Make(OpNewFn, int32(idx)), loc)
	caller.Segment.Emit(Make(OpCall, 0), loc)
	caller.Segment.Emit(MakeSimple(OpRet), loc)

	vm := NewVM(syms, known, WithLocations(locs))
	if res := vm.Run(caller); res.Kind != ResultBreak {
		t.Fatalf("expected a breakpoint, got %v", res.Kind)
	}

	// At the breakpoint both activations are live; the capture walks
	// newest first and each frame resolves through the location map.
	trace := vm.CaptureStackTrace()
	if len(trace) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(trace))
	}
	if trace[0].Info.Name != "callee" || trace[1].Info.Name != "caller" {
		t.Errorf("frames must be newest first: %s", trace.String())
	}
	if trace[0].Position.Line != 2 {
		t.Errorf("frame position must come from the location map: %v", trace[0].Position)
	}
	wantStr := "callee [line: 2, column: 1]\ncaller [line: 2, column: 1]"
	if trace.String() != wantStr {
		t.Errorf("expected %q, got %q", wantStr, trace.String())
	}

	if final := vm.Continue(); final.Kind != ResultValue {
		t.Errorf("resume after capture must complete: %v", final)
	}
}
