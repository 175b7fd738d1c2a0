package bytecode

import (
	"fmt"
	"strings"

	"github.com/smile-lang/smile/internal/lexer"
	"github.com/smile-lang/smile/internal/object"
)

// Frame is one live activation captured at throw time: the closure's
// static metadata plus the instruction it was executing, resolved to a
// source position through the segment's run-length location map. These
// frames back the `stack-trace` list on thrown exception objects.
type Frame struct {
	Info     *ClosureInfo
	PC       int
	Position lexer.Position
}

// frameOf snapshots closure c mid-instruction. c.PC points one past the
// faulting instruction.
func frameOf(c *Closure, locs *LocationTable) Frame {
	pc := c.PC - 1
	if pc < 0 {
		pc = 0
	}
	var pos lexer.Position
	if locs != nil {
		pos = locs.At(c.Info.Segment.LocationAt(pc))
	}
	return Frame{Info: c.Info, PC: pc, Position: pos}
}

// String renders "name [line: N, column: M]", or the bare function name
// when the segment carries no location for the frame's PC.
func (f Frame) String() string {
	if f.Position.Line == 0 {
		return f.Info.Name
	}
	return fmt.Sprintf("%s [line: %d, column: %d]",
		f.Info.Name, f.Position.Line, f.Position.Column)
}

// StackTrace is the whole activation stack at throw time, newest frame
// first.
type StackTrace []Frame

// CaptureStackTrace snapshots the VM's live activations, newest first.
func (vm *VM) CaptureStackTrace() StackTrace {
	trace := make(StackTrace, 0, len(vm.frames))
	for i := len(vm.frames) - 1; i >= 0; i-- {
		trace = append(trace, frameOf(vm.frames[i], vm.locs))
	}
	return trace
}

// String renders one frame per line, newest first.
func (st StackTrace) String() string {
	var sb strings.Builder
	for i, f := range st {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(f.String())
	}
	return sb.String()
}

// Value renders the trace as the `stack-trace` list carried by exception
// objects: one descriptor string per frame, newest first.
func (st StackTrace) Value() object.Value {
	frames := make([]object.Value, len(st))
	for i, f := range st {
		frames[i] = object.Str(f.String())
	}
	return object.List(frames...)
}
