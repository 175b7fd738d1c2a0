package bytecode

import (
	"github.com/smile-lang/smile/internal/lexer"
	"github.com/smile-lang/smile/internal/object"
	"github.com/smile-lang/smile/internal/symbol"
)

// LocationTable maps the integer source-location ids carried by LineInfo
// records back to file/line/column positions, shared by every segment a
// single Compiler produces.
type LocationTable struct {
	Positions []lexer.Position
}

// Add interns pos and returns its id. Id 0 is the unknown position.
func (t *LocationTable) Add(pos lexer.Position) int {
	if len(t.Positions) == 0 {
		t.Positions = append(t.Positions, lexer.Position{})
	}
	t.Positions = append(t.Positions, pos)
	return len(t.Positions) - 1
}

// At returns the position for id, or the zero Position if out of range.
func (t *LocationTable) At(id int) lexer.Position {
	if id <= 0 || id >= len(t.Positions) {
		return lexer.Position{}
	}
	return t.Positions[id]
}

// Instruction is one opcode with two 32-bit operands, A and B. Operands are
// pool indices, local slots, jump displacements, counts or immediates; Ld64
// splits its 64-bit immediate across A (low half) and B (high half).
type Instruction struct {
	Op  OpCode
	A   int32 // primary operand: local index, jump displacement, pool index, arg count...
	B   int32 // secondary operand, used by e.g. NewObj's pair count or Met's symbol
}

func Make(op OpCode, a int32) Instruction           { return Instruction{Op: op, A: a} }
func MakeAB(op OpCode, a, b int32) Instruction       { return Instruction{Op: op, A: a, B: b} }
func MakeSimple(op OpCode) Instruction               { return Instruction{Op: op} }

// LineInfo run-length encodes instruction-index -> source-location id,
// following the teacher's Chunk.Lines design exactly (internal/bytecode/
// bytecode.go).
type LineInfo struct {
	InstructionOffset int
	LocationID        int
}

// ByteCodeSegment is a dense array of instructions plus its parallel
// source-location run-length map (spec.md 3). Functions holds the
// ClosureInfos of nested $fn definitions, indexed by NewFn's operand.
type ByteCodeSegment struct {
	Code      []Instruction
	Lines     []LineInfo
	Constants []object.Value
	Functions []*ClosureInfo
}

// AddFunction registers a nested compiled function and returns its NewFn
// index.
func (s *ByteCodeSegment) AddFunction(info *ClosureInfo) int {
	s.Functions = append(s.Functions, info)
	return len(s.Functions) - 1
}

func NewSegment() *ByteCodeSegment {
	return &ByteCodeSegment{
		Code:      make([]Instruction, 0, 64),
		Lines:     make([]LineInfo, 0, 16),
		Constants: make([]object.Value, 0, 16),
	}
}

// Emit appends an instruction tagged with the given source-location id and
// returns its index.
func (s *ByteCodeSegment) Emit(ins Instruction, locationID int) int {
	idx := len(s.Code)
	s.Code = append(s.Code, ins)
	s.addLine(idx, locationID)
	return idx
}

func (s *ByteCodeSegment) addLine(idx, locationID int) {
	if len(s.Lines) == 0 || s.Lines[len(s.Lines)-1].LocationID != locationID {
		s.Lines = append(s.Lines, LineInfo{InstructionOffset: idx, LocationID: locationID})
	}
}

// LocationAt binary-searches the run-length map for the location id
// governing instruction idx, mirroring the teacher's Chunk.GetLine.
func (s *ByteCodeSegment) LocationAt(idx int) int {
	if len(s.Lines) == 0 {
		return 0
	}
	lo, hi, result := 0, len(s.Lines)-1, 0
	for lo <= hi {
		mid := (lo + hi) / 2
		if s.Lines[mid].InstructionOffset <= idx {
			result = s.Lines[mid].LocationID
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return result
}

// AddConstant interns a constant into the pool, deduplicating simple scalar
// kinds (spec.md's compiler emits LdStr/LdObj/LdSym/Ld128/LdReal/LdFloat
// against this pool).
func (s *ByteCodeSegment) AddConstant(v object.Value) int {
	for i, existing := range s.Constants {
		if simpleEqual(existing, v) {
			return i
		}
	}
	idx := len(s.Constants)
	s.Constants = append(s.Constants, v)
	return idx
}

func simpleEqual(a, b object.Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case object.KindNull:
		return true
	case object.KindBool, object.KindByte, object.KindInt16, object.KindInt32,
		object.KindInt64, object.KindReal32, object.KindReal64, object.KindFloat32,
		object.KindFloat64, object.KindChar, object.KindUni, object.KindSymbol:
		return a.Data == b.Data
	case object.KindString:
		return a.Data.(*object.SmileString).String() == b.Data.(*object.SmileString).String()
	default:
		return false
	}
}

// HandlerRange is a single $catch protected range registered on a
// ClosureInfo. The handler function is evaluated at catch entry into a
// hidden local slot; on a throw inside [StartPC, EndPC) the VM truncates
// the working stack to StackDepthAtEntry, calls the function in
// HandlerSlot with the exception object, and resumes at EndPC with the
// handler's result as the $catch value.
type HandlerRange struct {
	StartPC, EndPC    int
	HandlerSlot       int // local slot holding the handler function
	StackDepthAtEntry int
}

// VarInfo records where a declared name lives within a ClosureInfo: as an
// argument slot, a local slot, or (implicitly, absent from this map) a free
// variable resolved at runtime against the global closure (spec.md 3).
type VarInfo struct {
	Symbol    symbol.Symbol
	IsArgument bool
	Index     int
}

// ClosureInfo is the static, per-compiled-function metadata shared by all
// activations (spec.md 3).
type ClosureInfo struct {
	Name        string
	Args        []symbol.Symbol
	Locals      []symbol.Symbol
	Parent      *ClosureInfo
	Global      *ClosureInfo // the outermost (global) ClosureInfo, for free-variable resolution
	Depth       int
	StackSize   int
	Segment     *ByteCodeSegment
	Vars        map[symbol.Symbol]VarInfo
	Handlers    []HandlerRange
}

func NewClosureInfo(name string, parent *ClosureInfo) *ClosureInfo {
	ci := &ClosureInfo{
		Name:    name,
		Parent:  parent,
		Segment: NewSegment(),
		Vars:    make(map[symbol.Symbol]VarInfo),
	}
	if parent != nil {
		ci.Global = parent.Global
		ci.Depth = parent.Depth + 1
	} else {
		ci.Global = ci
		ci.Depth = 0
	}
	return ci
}

// Closure is a single dynamic activation of a ClosureInfo (spec.md 3): its
// variable slots (args followed by locals), a bounded working stack, and a
// parent link forming the lexical environment chain.
type Closure struct {
	Info   *ClosureInfo
	Slots  []object.Value
	Stack  []object.Value
	Parent *Closure
	PC     int
	// ArgCount is the number of arguments actually passed to this
	// activation, checked by the Args opcode.
	ArgCount int
}

func NewClosure(info *ClosureInfo, parent *Closure) *Closure {
	return &Closure{
		Info:   info,
		Slots:  make([]object.Value, len(info.Args)+len(info.Locals)),
		Stack:  make([]object.Value, 0, maxInt(info.StackSize, 8)),
		Parent: parent,
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Arity implements object.Function.
func (c *Closure) Arity() (min, max int) {
	n := len(c.Info.Args)
	return n, n
}

// FunctionName implements object.Function.
func (c *Closure) FunctionName() string { return c.Info.Name }

// Ancestor walks `depth` parent links up from c, used to resolve a lexical
// variable reference compiled with a nonzero functionDepth (spec.md 4.6).
func (c *Closure) Ancestor(depth int) *Closure {
	cur := c
	for i := 0; i < depth && cur != nil; i++ {
		cur = cur.Parent
	}
	return cur
}
