package bytecode

import (
	"fmt"
	"io"

	"github.com/smile-lang/smile/internal/symbol"
)

// Disassembler provides human-readable segment listings for debugging.
type Disassembler struct {
	writer  io.Writer
	info    *ClosureInfo
	symbols *symbol.Table
}

// NewDisassembler creates a disassembler for the given compiled function.
func NewDisassembler(info *ClosureInfo, symbols *symbol.Table, writer io.Writer) *Disassembler {
	return &Disassembler{
		writer:  writer,
		info:    info,
		symbols: symbols,
	}
}

// Disassemble prints the complete listing: header, constants pool,
// bytecode, and every nested function.
func (d *Disassembler) Disassemble() {
	seg := d.info.Segment
	fmt.Fprintf(d.writer, "== %s ==\n", d.info.Name)
	fmt.Fprintf(d.writer, "Args: %d, Locals: %d, Stack: %d, Instructions: %d\n\n",
		len(d.info.Args), len(d.info.Locals), d.info.StackSize, len(seg.Code))

	if len(seg.Constants) > 0 {
		fmt.Fprintf(d.writer, "Constants Pool:\n")
		for i, constant := range seg.Constants {
			fmt.Fprintf(d.writer, "  [%04d] %s\n", i, constant.String())
		}
		fmt.Fprintf(d.writer, "\n")
	}

	if len(d.info.Handlers) > 0 {
		fmt.Fprintf(d.writer, "Handlers:\n")
		for _, h := range d.info.Handlers {
			fmt.Fprintf(d.writer, "  [%04d-%04d] slot %d depth %d\n",
				h.StartPC, h.EndPC, h.HandlerSlot, h.StackDepthAtEntry)
		}
		fmt.Fprintf(d.writer, "\n")
	}

	fmt.Fprintf(d.writer, "Bytecode:\n")
	for offset := 0; offset < len(seg.Code); offset++ {
		d.DisassembleInstruction(offset)
	}
	fmt.Fprintf(d.writer, "\n")

	for _, fn := range seg.Functions {
		sub := NewDisassembler(fn, d.symbols, d.writer)
		sub.Disassemble()
	}
}

// DisassembleInstruction prints a single instruction at the given offset.
func (d *Disassembler) DisassembleInstruction(offset int) {
	seg := d.info.Segment
	if offset < 0 || offset >= len(seg.Code) {
		fmt.Fprintf(d.writer, "Invalid offset: %d\n", offset)
		return
	}

	ins := seg.Code[offset]
	d.printInstructionHeader(offset)

	switch {
	case d.trySimpleOp(ins):
	case d.tryConstantOp(ins):
	case d.tryVarOp(ins):
	case d.tryJumpOp(ins, offset):
	case d.tryCallOp(ins):
	case d.trySymbolOp(ins):
	default:
		fmt.Fprintf(d.writer, "%s %d %d\n", ins.Op, ins.A, ins.B)
	}
}

// printInstructionHeader prints the offset and location-id prefix,
// collapsing runs of the same location.
func (d *Disassembler) printInstructionHeader(offset int) {
	seg := d.info.Segment
	loc := seg.LocationAt(offset)
	if offset > 0 && loc == seg.LocationAt(offset-1) {
		fmt.Fprintf(d.writer, "%04d    | ", offset)
	} else {
		fmt.Fprintf(d.writer, "%04d %4d ", offset, loc)
	}
}

func (d *Disassembler) trySimpleOp(ins Instruction) bool {
	switch ins.Op {
	case OpLdNull, OpDup, OpDup1, OpDup2, OpPop1, OpPop2, OpRep1, OpRep2,
		OpLdA, OpLdD, OpLdLeft, OpLdRight, OpLdStart, OpLdEnd, OpLdCount,
		OpLdLength, OpLdMember, OpStMember, OpStpMember,
		OpIs, OpTypeOf, OpSuperEq, OpSuperNe, OpNot, OpRet, OpLabel, OpBrk:
		fmt.Fprintf(d.writer, "%s\n", ins.Op)
		return true
	}
	return false
}

func (d *Disassembler) tryConstantOp(ins Instruction) bool {
	seg := d.info.Segment
	switch ins.Op {
	case OpLd128, OpLdRealPool, OpLdFloatPool, OpLdStr, OpLdObj:
		if int(ins.A) < len(seg.Constants) {
			fmt.Fprintf(d.writer, "%s [%d] ; %s\n", ins.Op, ins.A, seg.Constants[ins.A].String())
		} else {
			fmt.Fprintf(d.writer, "%s [%d]\n", ins.Op, ins.A)
		}
		return true
	case OpLd8, OpLd16, OpLd32, OpLdBool, OpLdCh, OpLdUCh, OpPopN, OpRepN,
		OpLAlloc, OpLFree:
		fmt.Fprintf(d.writer, "%s %d\n", ins.Op, ins.A)
		return true
	case OpLd64:
		fmt.Fprintf(d.writer, "%s %d\n", ins.Op, int64(uint32(ins.A))|int64(ins.B)<<32)
		return true
	}
	return false
}

func (d *Disassembler) tryVarOp(ins Instruction) bool {
	op := ins.Op
	switch {
	case op >= OpLdArg0 && op <= OpLdArg7:
		fmt.Fprintf(d.writer, "LdArg%d %d\n", op-OpLdArg0, ins.A)
	case op >= OpStArg0 && op <= OpStArg7:
		fmt.Fprintf(d.writer, "StArg%d %d\n", op-OpStArg0, ins.A)
	case op >= OpStpArg0 && op <= OpStpArg7:
		fmt.Fprintf(d.writer, "StpArg%d %d\n", op-OpStpArg0, ins.A)
	case op >= OpLdLoc0 && op <= OpLdLoc7:
		fmt.Fprintf(d.writer, "LdLoc%d %d\n", op-OpLdLoc0, ins.A)
	case op >= OpStLoc0 && op <= OpStLoc7:
		fmt.Fprintf(d.writer, "StLoc%d %d\n", op-OpStLoc0, ins.A)
	case op >= OpStpLoc0 && op <= OpStpLoc7:
		fmt.Fprintf(d.writer, "StpLoc%d %d\n", op-OpStpLoc0, ins.A)
	case op == OpLdArgN || op == OpStArgN || op == OpStpArgN ||
		op == OpLdLocN || op == OpStLocN || op == OpStpLocN:
		fmt.Fprintf(d.writer, "%s %d %d\n", op, ins.A, ins.B)
	default:
		return false
	}
	return true
}

func (d *Disassembler) tryJumpOp(ins Instruction, offset int) bool {
	switch ins.Op {
	case OpJmp, OpBf, OpBt:
		fmt.Fprintf(d.writer, "%s %+d -> %04d\n", ins.Op, ins.A, offset+int(ins.A))
		return true
	}
	return false
}

func (d *Disassembler) tryCallOp(ins Instruction) bool {
	switch {
	case ins.Op == OpCall:
		fmt.Fprintf(d.writer, "Call %d\n", ins.A)
	case ins.Op == OpMet:
		fmt.Fprintf(d.writer, "Met %d %s\n", ins.A, d.symName(symbol.Symbol(ins.B)))
	case ins.Op >= OpMet0 && ins.Op <= OpMet7:
		fmt.Fprintf(d.writer, "Met%d %s\n", ins.Op-OpMet0, d.symName(symbol.Symbol(ins.A)))
	case ins.Op == OpNewFn:
		fmt.Fprintf(d.writer, "NewFn %d\n", ins.A)
	case ins.Op == OpNewObj:
		fmt.Fprintf(d.writer, "NewObj %d\n", ins.A)
	case ins.Op == OpArgs:
		fmt.Fprintf(d.writer, "Args %d\n", ins.A)
	default:
		return false
	}
	return true
}

func (d *Disassembler) trySymbolOp(ins Instruction) bool {
	switch ins.Op {
	case OpLdSym, OpLdX, OpStX, OpStpX, OpLdProp, OpStProp, OpStpProp:
		fmt.Fprintf(d.writer, "%s %s\n", ins.Op, d.symName(symbol.Symbol(ins.A)))
		return true
	}
	return false
}

func (d *Disassembler) symName(sym symbol.Symbol) string {
	if name := d.symbols.Name(sym); name != "" {
		return name
	}
	return fmt.Sprintf("#%d", sym)
}
