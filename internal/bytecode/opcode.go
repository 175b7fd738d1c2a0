// Package bytecode implements Smile's compiled representation (ClosureInfo,
// Closure, ByteCodeSegment) and the stack-based VM that executes it
// (spec.md 3, 4.6, 4.7). Instruction encoding follows the teacher's fixed
// [opcode][A][B] shape, widened here to a pool-indexed operand model since
// Smile constants (strings, symbols, bignums) don't fit 16 bits.
package bytecode

// OpCode identifies one VM instruction. Grouped per spec.md 4.7's table.
type OpCode byte

const (
	// Load immediate / pool-indexed constants.
	OpLd8 OpCode = iota
	OpLd16
	OpLd32
	OpLd64
	OpLd128 // pool-indexed *big.Int
	OpLdRealPool
	OpLdFloatPool
	OpLdBool
	OpLdNull
	OpLdCh
	OpLdUCh
	OpLdStr // pool-indexed string
	OpLdObj // pool-indexed literal raw-form value (e.g. a quoted list)
	OpLdSym // pool-indexed symbol

	// Stack shuffling.
	OpDup
	OpDup1
	OpDup2
	OpPop1
	OpPop2
	OpPopN
	OpRep1
	OpRep2
	OpRepN

	// Locals/args: short forms for depth<=7 and the general indexed forms.
	OpLdArg0
	OpLdArg1
	OpLdArg2
	OpLdArg3
	OpLdArg4
	OpLdArg5
	OpLdArg6
	OpLdArg7
	OpLdArgN
	OpStArg0
	OpStArg1
	OpStArg2
	OpStArg3
	OpStArg4
	OpStArg5
	OpStArg6
	OpStArg7
	OpStArgN
	OpStpArg0
	OpStpArg1
	OpStpArg2
	OpStpArg3
	OpStpArg4
	OpStpArg5
	OpStpArg6
	OpStpArg7
	OpStpArgN

	OpLdLoc0
	OpLdLoc1
	OpLdLoc2
	OpLdLoc3
	OpLdLoc4
	OpLdLoc5
	OpLdLoc6
	OpLdLoc7
	OpLdLocN
	OpStLoc0
	OpStLoc1
	OpStLoc2
	OpStLoc3
	OpStLoc4
	OpStLoc5
	OpStLoc6
	OpStLoc7
	OpStLocN
	OpStpLoc0
	OpStpLoc1
	OpStpLoc2
	OpStpLoc3
	OpStpLoc4
	OpStpLoc5
	OpStpLoc6
	OpStpLoc7
	OpStpLocN

	OpLdX  // load free variable by symbol, resolved against the global closure
	OpStX
	OpStpX

	// Allocation.
	OpLAlloc
	OpLFree

	// Properties.
	OpLdProp
	OpStProp
	OpStpProp
	OpLdMember
	OpStMember
	OpStpMember
	OpLdA
	OpLdD
	OpLdLeft
	OpLdRight
	OpLdStart
	OpLdEnd
	OpLdCount
	OpLdLength

	// Calls.
	OpCall
	OpMet
	OpMet0
	OpMet1
	OpMet2
	OpMet3
	OpMet4
	OpMet5
	OpMet6
	OpMet7
	OpNewFn
	OpNewObj
	OpArgs
	OpRet

	// Control.
	OpJmp
	OpBf
	OpBt
	OpLabel
	OpIs
	OpTypeOf
	OpSuperEq
	OpSuperNe
	OpNot

	// Breakpoints.
	OpBrk

	opCodeCount
)

var opCodeNames = [opCodeCount]string{
	OpLd8: "Ld8", OpLd16: "Ld16", OpLd32: "Ld32", OpLd64: "Ld64", OpLd128: "Ld128",
	OpLdRealPool: "LdReal", OpLdFloatPool: "LdFloat", OpLdBool: "LdBool", OpLdNull: "LdNull",
	OpLdCh: "LdCh", OpLdUCh: "LdUCh", OpLdStr: "LdStr", OpLdObj: "LdObj", OpLdSym: "LdSym",
	OpDup: "Dup", OpDup1: "Dup1", OpDup2: "Dup2", OpPop1: "Pop1", OpPop2: "Pop2", OpPopN: "PopN",
	OpRep1: "Rep1", OpRep2: "Rep2", OpRepN: "RepN",
	OpLdArgN: "LdArg", OpStArgN: "StArg", OpStpArgN: "StpArg",
	OpLdLocN: "LdLoc", OpStLocN: "StLoc", OpStpLocN: "StpLoc",
	OpLdX: "LdX", OpStX: "StX", OpStpX: "StpX",
	OpLAlloc: "LAlloc", OpLFree: "LFree",
	OpLdProp: "LdProp", OpStProp: "StProp", OpStpProp: "StpProp",
	OpLdMember: "LdMember", OpStMember: "StMember", OpStpMember: "StpMember",
	OpLdA: "LdA", OpLdD: "LdD", OpLdLeft: "LdLeft", OpLdRight: "LdRight",
	OpLdStart: "LdStart", OpLdEnd: "LdEnd", OpLdCount: "LdCount", OpLdLength: "LdLength",
	OpCall: "Call", OpMet: "Met",
	OpMet0: "Met0", OpMet1: "Met1", OpMet2: "Met2", OpMet3: "Met3",
	OpMet4: "Met4", OpMet5: "Met5", OpMet6: "Met6", OpMet7: "Met7",
	OpNewFn: "NewFn", OpNewObj: "NewObj", OpArgs: "Args", OpRet: "Ret",
	OpJmp: "Jmp", OpBf: "Bf", OpBt: "Bt", OpLabel: "Label",
	OpIs: "Is", OpTypeOf: "TypeOf", OpSuperEq: "SuperEq", OpSuperNe: "SuperNe", OpNot: "Not",
	OpBrk: "Brk",
}

func (op OpCode) String() string {
	if int(op) < len(opCodeNames) && opCodeNames[op] != "" {
		return opCodeNames[op]
	}
	return "???"
}

// The short local/argument opcodes encode the lexical function depth
// (0..7) in the opcode itself and carry only the slot index as an operand;
// deeper accesses use the two-operand indexed forms (spec.md 4.6).

// ShortArgLoad returns the depth-specialized argument load opcode.
func ShortArgLoad(depth int) (OpCode, bool) {
	if depth < 0 || depth > 7 {
		return 0, false
	}
	return OpLdArg0 + OpCode(depth), true
}

// ShortArgStore returns the depth-specialized argument store opcode.
func ShortArgStore(depth int) (OpCode, bool) {
	if depth < 0 || depth > 7 {
		return 0, false
	}
	return OpStArg0 + OpCode(depth), true
}

// ShortLocLoad returns the depth-specialized local load opcode.
func ShortLocLoad(depth int) (OpCode, bool) {
	if depth < 0 || depth > 7 {
		return 0, false
	}
	return OpLdLoc0 + OpCode(depth), true
}

// ShortLocStore returns the depth-specialized local store opcode.
func ShortLocStore(depth int) (OpCode, bool) {
	if depth < 0 || depth > 7 {
		return 0, false
	}
	return OpStLoc0 + OpCode(depth), true
}

// ShortStpArg / ShortStpLoc return the depth-specialized store-and-pop
// variants the peephole pass rewrites plain stores into (spec.md 4.6).
func ShortStpArg(depth int) (OpCode, bool) {
	if depth < 0 || depth > 7 {
		return 0, false
	}
	return OpStpArg0 + OpCode(depth), true
}

func ShortStpLoc(depth int) (OpCode, bool) {
	if depth < 0 || depth > 7 {
		return 0, false
	}
	return OpStpLoc0 + OpCode(depth), true
}

// ShortMet returns the arg-count-specialized method-call opcode for argc
// 0..7 (spec.md 4.7).
func ShortMet(argc int) (OpCode, bool) {
	if argc < 0 || argc > 7 {
		return 0, false
	}
	return OpMet0 + OpCode(argc), true
}

// StoreToStp maps a plain store opcode to its store-and-pop variant, used
// by the peephole pop fusion (spec.md 4.6). The bool is false when op is
// not a plain store.
func StoreToStp(op OpCode) (OpCode, bool) {
	switch {
	case op >= OpStArg0 && op <= OpStArg7:
		return op - OpStArg0 + OpStpArg0, true
	case op == OpStArgN:
		return OpStpArgN, true
	case op >= OpStLoc0 && op <= OpStLoc7:
		return op - OpStLoc0 + OpStpLoc0, true
	case op == OpStLocN:
		return OpStpLocN, true
	case op == OpStX:
		return OpStpX, true
	case op == OpStProp:
		return OpStpProp, true
	case op == OpStMember:
		return OpStpMember, true
	}
	return op, false
}

// IsPureLoad reports whether op only pushes a value computed from no
// stack inputs, making a following pop erasable (spec.md 4.6).
func IsPureLoad(op OpCode) bool {
	switch op {
	case OpLd8, OpLd16, OpLd32, OpLd64, OpLd128, OpLdRealPool, OpLdFloatPool,
		OpLdBool, OpLdNull, OpLdCh, OpLdUCh, OpLdStr, OpLdObj, OpLdSym,
		OpLdArgN, OpLdLocN, OpLdX, OpDup, OpDup1, OpDup2:
		return true
	}
	if op >= OpLdArg0 && op <= OpLdArg7 {
		return true
	}
	if op >= OpLdLoc0 && op <= OpLdLoc7 {
		return true
	}
	return false
}
