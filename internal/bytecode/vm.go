package bytecode

import (
	"fmt"

	"github.com/smile-lang/smile/internal/external"
	"github.com/smile-lang/smile/internal/object"
	"github.com/smile-lang/smile/internal/symbol"
)

// EvalResultKind classifies how an evaluation ended.
type EvalResultKind int

const (
	ResultValue EvalResultKind = iota
	ResultException
	ResultBreak
)

// EvalResult is what Run/Continue returns: a value, an uncaught exception
// object, or a breakpoint suspension with enough state to resume
// (spec.md 4.7).
type EvalResult struct {
	Kind      EvalResultKind
	Value     object.Value
	Exception object.Value

	// Breakpoint state.
	Closure    *Closure
	Segment    *ByteCodeSegment
	Offset     int
	LocationID int
}

// FunctionValue is a compiled closure value: static metadata plus the
// captured lexical environment. Produced by NewFn (spec.md 4.6).
type FunctionValue struct {
	Info *ClosureInfo
	Env  *Closure
}

// Arity implements object.Function.
func (f *FunctionValue) Arity() (min, max int) {
	n := len(f.Info.Args)
	return n, n
}

// FunctionName implements object.Function.
func (f *FunctionValue) FunctionName() string { return f.Info.Name }

// machineState tracks one in-flight state-machine external (spec.md 4.8):
// the external itself, its opaque state, and which frame it runs under.
type machineState struct {
	fn         *external.Function
	state      any
	frameDepth int
}

// VM is the stack machine executing ByteCodeSegments (spec.md 4.7). It is
// a synchronous, single-threaded interpreter; suspension points are
// external calls and Brk instructions (spec.md 5).
type VM struct {
	symbols *symbol.Table
	known   *symbol.Known
	locs    *LocationTable

	// globals is the global closure's variable store, resolved by
	// LdX/StX at runtime.
	globals map[symbol.Symbol]object.Value

	// protos maps primitive value kinds to their intrinsic method
	// objects, installed by the host through RegisterProto. Method
	// dispatch on non-UserObject receivers looks here (spec.md 1:
	// the standard library is external, plugged in uniformly).
	protos map[object.Kind]*object.UserObject

	frames   []*Closure
	machines []*machineState

	tracing bool
}

// Option configures a VM.
type Option func(*VM)

// WithTracing enables instruction tracing.
func WithTracing(trace bool) Option {
	return func(vm *VM) { vm.tracing = trace }
}

// WithLocations attaches the compiler's source-location table so stack
// traces carry positions.
func WithLocations(locs *LocationTable) Option {
	return func(vm *VM) { vm.locs = locs }
}

// WithGlobal predeclares a global variable (the CLI's -D flag).
func WithGlobal(sym symbol.Symbol, v object.Value) Option {
	return func(vm *VM) { vm.globals[sym] = v }
}

// NewVM creates a VM bound to a symbol table and known set.
func NewVM(symbols *symbol.Table, known *symbol.Known, opts ...Option) *VM {
	vm := &VM{
		symbols: symbols,
		known:   known,
		locs:    &LocationTable{},
		globals: make(map[symbol.Symbol]object.Value),
		protos:  make(map[object.Kind]*object.UserObject),
	}
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

// SetGlobalVariable writes a global closure variable (spec.md 6).
func (vm *VM) SetGlobalVariable(sym symbol.Symbol, v object.Value) {
	vm.globals[sym] = v
}

// GetGlobalVariable reads a global closure variable (spec.md 6).
func (vm *VM) GetGlobalVariable(sym symbol.Symbol) object.Value {
	if v, ok := vm.globals[sym]; ok {
		return v
	}
	return object.Null
}

// GlobalNames lists every bound global, used to seed a REPL parse scope.
func (vm *VM) GlobalNames() []symbol.Symbol {
	names := make([]symbol.Symbol, 0, len(vm.globals))
	for sym := range vm.globals {
		names = append(names, sym)
	}
	return names
}

// RegisterProto installs the intrinsic method object for a primitive kind.
func (vm *VM) RegisterProto(kind object.Kind, proto *object.UserObject) {
	vm.protos[kind] = proto
}

// Run executes a compiled top-level function to completion, an uncaught
// exception, or a breakpoint.
func (vm *VM) Run(info *ClosureInfo) EvalResult {
	vm.frames = vm.frames[:0]
	vm.machines = vm.machines[:0]
	root := NewClosure(info, nil)
	vm.frames = append(vm.frames, root)
	return vm.dispatch()
}

// Continue resumes execution after a breakpoint suspension.
func (vm *VM) Continue() EvalResult {
	if len(vm.frames) == 0 {
		return EvalResult{Kind: ResultValue, Value: object.Null}
	}
	return vm.dispatch()
}

// ---- stack helpers ----

func (fr *Closure) push(v object.Value) { fr.Stack = append(fr.Stack, v) }

func (fr *Closure) pop() object.Value {
	n := len(fr.Stack) - 1
	v := fr.Stack[n]
	fr.Stack = fr.Stack[:n]
	return v
}

func (fr *Closure) peekAt(n int) object.Value { return fr.Stack[len(fr.Stack)-1-n] }

// Push implements external.StackAccess on the closure's working stack.
func (fr *Closure) Push(v object.Value) { fr.push(v) }

// Pop implements external.StackAccess.
func (fr *Closure) Pop() object.Value { return fr.pop() }

func (fr *Closure) localSlot(idx int) int { return len(fr.Info.Args) + idx }

// thrown is the sentinel dispatch uses to route a raised exception into
// the unwinder.
type thrown struct {
	exception object.Value
}

// ---- the dispatch loop ----

func (vm *VM) dispatch() EvalResult {
	for {
		if len(vm.frames) == 0 {
			return EvalResult{Kind: ResultValue, Value: object.Null}
		}
		fr := vm.frames[len(vm.frames)-1]
		code := fr.Info.Segment.Code

		if fr.PC >= len(code) {
			// Implicit return null at segment end.
			if res, done := vm.returnValue(object.Null); done {
				return res
			}
			continue
		}

		idx := fr.PC
		ins := code[idx]
		fr.PC++

		if vm.tracing {
			fmt.Printf("[vm] %s %04d %s %d %d\n", fr.Info.Name, idx, ins.Op, ins.A, ins.B)
		}

		var err *thrown
		var result *EvalResult
		result, err = vm.exec(fr, ins, idx)
		if err != nil {
			if res, uncaught := vm.unwind(err.exception); uncaught {
				return res
			}
			continue
		}
		if result != nil {
			return *result
		}
	}
}

// exec executes one instruction. A non-nil EvalResult ends the run (final
// return or breakpoint); a non-nil thrown routes to the unwinder.
func (vm *VM) exec(fr *Closure, ins Instruction, idx int) (*EvalResult, *thrown) {
	seg := fr.Info.Segment

	switch ins.Op {
	// -- loads --
	case OpLd8:
		fr.push(object.Byte(byte(ins.A)))
	case OpLd16:
		fr.push(object.Int16(int16(ins.A)))
	case OpLd32:
		fr.push(object.Int32(ins.A))
	case OpLd64:
		fr.push(object.Int64(int64(uint32(ins.A)) | int64(ins.B)<<32))
	case OpLd128, OpLdRealPool, OpLdFloatPool, OpLdStr, OpLdObj:
		fr.push(seg.Constants[ins.A])
	case OpLdBool:
		fr.push(object.Bool(ins.A != 0))
	case OpLdNull:
		fr.push(object.Null)
	case OpLdCh:
		fr.push(object.Char(byte(ins.A)))
	case OpLdUCh:
		fr.push(object.Uni(rune(ins.A)))
	case OpLdSym:
		fr.push(object.Sym(symbol.Symbol(ins.A)))

	// -- stack shuffling --
	case OpDup:
		fr.push(fr.peekAt(0))
	case OpDup1:
		fr.push(fr.peekAt(1))
	case OpDup2:
		a, b := fr.peekAt(1), fr.peekAt(0)
		fr.push(a)
		fr.push(b)
	case OpPop1:
		fr.pop()
	case OpPop2:
		fr.pop()
		fr.pop()
	case OpPopN:
		for i := int32(0); i < ins.A; i++ {
			fr.pop()
		}
	case OpRep1:
		top := fr.pop()
		fr.pop()
		fr.push(top)
	case OpRep2:
		top := fr.pop()
		fr.pop()
		fr.pop()
		fr.push(top)
	case OpRepN:
		top := fr.pop()
		for i := int32(0); i < ins.A; i++ {
			fr.pop()
		}
		fr.push(top)

	// -- locals and arguments --
	case OpLdArg0, OpLdArg1, OpLdArg2, OpLdArg3, OpLdArg4, OpLdArg5, OpLdArg6, OpLdArg7:
		target := fr.Ancestor(int(ins.Op - OpLdArg0))
		fr.push(target.Slots[ins.A])
	case OpLdArgN:
		target := fr.Ancestor(int(ins.A))
		fr.push(target.Slots[ins.B])
	case OpStArg0, OpStArg1, OpStArg2, OpStArg3, OpStArg4, OpStArg5, OpStArg6, OpStArg7:
		target := fr.Ancestor(int(ins.Op - OpStArg0))
		target.Slots[ins.A] = fr.peekAt(0)
	case OpStArgN:
		target := fr.Ancestor(int(ins.A))
		target.Slots[ins.B] = fr.peekAt(0)
	case OpStpArg0, OpStpArg1, OpStpArg2, OpStpArg3, OpStpArg4, OpStpArg5, OpStpArg6, OpStpArg7:
		target := fr.Ancestor(int(ins.Op - OpStpArg0))
		target.Slots[ins.A] = fr.pop()
	case OpStpArgN:
		target := fr.Ancestor(int(ins.A))
		target.Slots[ins.B] = fr.pop()

	case OpLdLoc0, OpLdLoc1, OpLdLoc2, OpLdLoc3, OpLdLoc4, OpLdLoc5, OpLdLoc6, OpLdLoc7:
		target := fr.Ancestor(int(ins.Op - OpLdLoc0))
		fr.push(target.Slots[target.localSlot(int(ins.A))])
	case OpLdLocN:
		target := fr.Ancestor(int(ins.A))
		fr.push(target.Slots[target.localSlot(int(ins.B))])
	case OpStLoc0, OpStLoc1, OpStLoc2, OpStLoc3, OpStLoc4, OpStLoc5, OpStLoc6, OpStLoc7:
		target := fr.Ancestor(int(ins.Op - OpStLoc0))
		target.Slots[target.localSlot(int(ins.A))] = fr.peekAt(0)
	case OpStLocN:
		target := fr.Ancestor(int(ins.A))
		target.Slots[target.localSlot(int(ins.B))] = fr.peekAt(0)
	case OpStpLoc0, OpStpLoc1, OpStpLoc2, OpStpLoc3, OpStpLoc4, OpStpLoc5, OpStpLoc6, OpStpLoc7:
		target := fr.Ancestor(int(ins.Op - OpStpLoc0))
		target.Slots[target.localSlot(int(ins.A))] = fr.pop()
	case OpStpLocN:
		target := fr.Ancestor(int(ins.A))
		target.Slots[target.localSlot(int(ins.B))] = fr.pop()

	case OpLdX:
		fr.push(vm.GetGlobalVariable(symbol.Symbol(ins.A)))
	case OpStX:
		vm.globals[symbol.Symbol(ins.A)] = fr.peekAt(0)
	case OpStpX:
		vm.globals[symbol.Symbol(ins.A)] = fr.pop()

	// -- allocation --
	case OpLAlloc, OpLFree:
		// Slots are sized up front from the ClosureInfo; these remain as
		// scope markers for the disassembler.

	// -- properties --
	case OpLdProp:
		obj := fr.pop()
		fr.push(vm.getProperty(obj, symbol.Symbol(ins.A)))
	case OpLdMember:
		key := fr.pop()
		obj := fr.pop()
		v, err := vm.getMember(obj, key)
		if err != nil {
			return nil, err
		}
		fr.push(v)
	case OpStProp, OpStpProp:
		val := fr.pop()
		obj := fr.pop()
		if err := vm.setProperty(obj, symbol.Symbol(ins.A), val); err != nil {
			return nil, err
		}
		if ins.Op == OpStProp {
			fr.push(val)
		}
	case OpStMember, OpStpMember:
		val := fr.pop()
		key := fr.pop()
		obj := fr.pop()
		if err := vm.setMember(obj, key, val); err != nil {
			return nil, err
		}
		if ins.Op == OpStMember {
			fr.push(val)
		}

	case OpLdA:
		fr.push(listHead(fr.pop()))
	case OpLdD:
		fr.push(listTail(fr.pop()))
	case OpLdLeft:
		fr.push(pairSide(fr.pop(), true))
	case OpLdRight:
		fr.push(pairSide(fr.pop(), false))
	case OpLdStart:
		obj := fr.pop()
		fr.push(vm.getProperty(obj, vm.known.PropStart))
	case OpLdEnd:
		obj := fr.pop()
		fr.push(vm.getProperty(obj, vm.known.PropEnd))
	case OpLdCount:
		fr.push(object.Int32(int32(listLength(fr.pop()))))
	case OpLdLength:
		obj := fr.pop()
		if obj.Kind == object.KindString {
			fr.push(object.Int32(int32(obj.Data.(*object.SmileString).Len())))
		} else {
			fr.push(object.Int32(int32(listLength(obj))))
		}

	// -- calls --
	case OpCall:
		argc := int(ins.A)
		args := make([]object.Value, argc)
		for i := argc - 1; i >= 0; i-- {
			args[i] = fr.pop()
		}
		callee := fr.pop()
		return nil, vm.callValue(callee, args)

	case OpMet, OpMet0, OpMet1, OpMet2, OpMet3, OpMet4, OpMet5, OpMet6, OpMet7:
		var argc int
		var sym symbol.Symbol
		if ins.Op == OpMet {
			argc = int(ins.A)
			sym = symbol.Symbol(ins.B)
		} else {
			argc = int(ins.Op - OpMet0)
			sym = symbol.Symbol(ins.A)
		}
		args := make([]object.Value, argc)
		for i := argc - 1; i >= 0; i-- {
			args[i] = fr.pop()
		}
		recv := fr.pop()
		return nil, vm.callMethod(recv, sym, args)

	case OpNewFn:
		fn := &FunctionValue{Info: seg.Functions[ins.A], Env: fr}
		fr.push(object.MakeFunction(fn))

	case OpNewObj:
		n := int(ins.A)
		props := make([]object.Value, 2*n)
		for i := 2*n - 1; i >= 0; i-- {
			props[i] = fr.pop()
		}
		baseVal := fr.pop()
		var base *object.UserObject
		if baseVal.Kind == object.KindUserObject {
			base = baseVal.Data.(*object.UserObject)
		}
		obj := object.NewUserObject(symbol.Invalid, base)
		for i := 0; i < n; i++ {
			key := props[2*i]
			if key.Kind != object.KindSymbol {
				return nil, vm.throw(vm.known.KindEvalError, "object member name must be a symbol")
			}
			obj.Set(key.Data.(symbol.Symbol), props[2*i+1])
		}
		fr.push(object.MakeUserObject(obj))

	case OpArgs:
		if fr.ArgCount != int(ins.A) {
			return nil, vm.throw(vm.known.KindEvalError,
				fmt.Sprintf("%s expects %d argument(s), got %d", fr.Info.Name, ins.A, fr.ArgCount))
		}

	case OpRet:
		result := fr.pop()
		if res, done := vm.returnValue(result); done {
			return &res, nil
		}

	// -- control --
	case OpJmp:
		fr.PC = idx + int(ins.A)
	case OpBf:
		if !fr.pop().IsTruthy() {
			fr.PC = idx + int(ins.A)
		}
	case OpBt:
		if fr.pop().IsTruthy() {
			fr.PC = idx + int(ins.A)
		}
	case OpLabel:
		// pseudo-op

	case OpIs:
		y := fr.pop()
		x := fr.pop()
		fr.push(object.Bool(vm.isRelated(x, y)))
	case OpTypeOf:
		x := fr.pop()
		fr.push(object.Sym(vm.typeSymbol(x)))
	case OpSuperEq:
		y := fr.pop()
		x := fr.pop()
		fr.push(object.Bool(superEqual(x, y)))
	case OpSuperNe:
		y := fr.pop()
		x := fr.pop()
		fr.push(object.Bool(!superEqual(x, y)))
	case OpNot:
		fr.push(object.Bool(!fr.pop().IsTruthy()))

	case OpBrk:
		return &EvalResult{
			Kind:       ResultBreak,
			Closure:    fr,
			Segment:    seg,
			Offset:     fr.PC,
			LocationID: seg.LocationAt(idx),
		}, nil

	default:
		return nil, vm.throw(vm.known.KindUnknownError,
			fmt.Sprintf("corrupt bytecode: opcode %d", ins.Op))
	}

	return nil, nil
}

// returnValue pops the current frame and delivers result to the caller;
// done is true when the outermost frame returned. A state machine waiting
// on this frame's completion is re-driven first (spec.md 4.8).
func (vm *VM) returnValue(result object.Value) (EvalResult, bool) {
	vm.frames = vm.frames[:len(vm.frames)-1]
	if len(vm.frames) == 0 {
		return EvalResult{Kind: ResultValue, Value: result}, true
	}
	caller := vm.frames[len(vm.frames)-1]
	caller.push(result)

	for len(vm.machines) > 0 {
		m := vm.machines[len(vm.machines)-1]
		if m.frameDepth != len(vm.frames) {
			break
		}
		n := m.fn.Body(caller, m.state)
		if n < 0 {
			vm.machines = vm.machines[:len(vm.machines)-1]
			continue
		}
		if err := vm.machineStep(caller, m, n); err != nil {
			if res, uncaught := vm.unwind(err.exception); uncaught {
				return res, true
			}
		}
		break
	}
	return EvalResult{}, false
}

// ---- calling ----

// callValue invokes callee with args: compiled closures push a new
// activation, externals run natively, and a non-function object falls back
// to obj.fn, then obj.does-not-understand (spec.md 4.7).
func (vm *VM) callValue(callee object.Value, args []object.Value) *thrown {
	fr := vm.frames[len(vm.frames)-1]

	if callee.Kind == object.KindFunction {
		switch fn := callee.Data.(object.Function).(type) {
		case *FunctionValue:
			act := NewClosure(fn.Info, fn.Env)
			act.ArgCount = len(args)
			for i, a := range args {
				if i < len(act.Slots) {
					act.Slots[i] = a
				}
			}
			vm.frames = append(vm.frames, act)
			return nil

		case *external.Function:
			return vm.callExternal(fr, fn, args)
		}
	}

	// Non-function callee: rewrite to obj.fn(...), then
	// obj.does-not-understand(`fn, ...).
	if v := vm.getProperty(callee, vm.known.Fn); v.Kind == object.KindFunction {
		return vm.callValue(v, append([]object.Value{callee}, args...))
	}
	if v := vm.getProperty(callee, vm.known.Does); v.Kind == object.KindFunction {
		dnuArgs := append([]object.Value{callee, object.Sym(vm.known.Fn)}, args...)
		return vm.callValue(v, dnuArgs)
	}
	return vm.throw(vm.known.KindEvalError,
		fmt.Sprintf("value of type %s is not callable", callee.Kind))
}

// callMethod implements Met: look up recv.sym and call it with recv
// prepended (spec.md 4.7).
func (vm *VM) callMethod(recv object.Value, sym symbol.Symbol, args []object.Value) *thrown {
	method := vm.getProperty(recv, sym)
	if method.Kind != object.KindFunction {
		return vm.throw(vm.known.KindNativeMethodError,
			fmt.Sprintf("no method '%s' on %s", vm.symbols.Name(sym), recv.Kind))
	}
	return vm.callValue(method, append([]object.Value{recv}, args...))
}

func (vm *VM) callExternal(fr *Closure, fn *external.Function, args []object.Value) *thrown {
	if err := fn.Check(args); err != nil {
		return vm.throw(vm.known.KindNativeMethodError, err.Error())
	}

	if !fn.StateMachine {
		result, err := fn.Fn(args, fn.Param)
		if err != nil {
			return vm.throw(vm.known.KindNativeMethodError, err.Error())
		}
		fr.push(result)
		return nil
	}

	state, n := fn.Start(fr, args, fn.Param)
	if n < 0 {
		// Finished immediately; the machine left its result on the stack.
		return nil
	}
	m := &machineState{fn: fn, state: state, frameDepth: len(vm.frames)}
	vm.machines = append(vm.machines, m)
	return vm.machineStep(fr, m, n)
}

// machineStep performs the call a state machine pushed: n arguments on top
// of a callee. Externals complete inline and re-drive Body; a compiled
// closure pushes a frame and the machine resumes from returnValue.
func (vm *VM) machineStep(fr *Closure, m *machineState, n int) *thrown {
	for {
		args := make([]object.Value, n)
		for i := n - 1; i >= 0; i-- {
			args[i] = fr.pop()
		}
		callee := fr.pop()

		if callee.Kind == object.KindFunction {
			if _, isClosure := callee.Data.(object.Function).(*FunctionValue); isClosure {
				return vm.callValue(callee, args)
			}
		}

		if err := vm.callValue(callee, args); err != nil {
			return err
		}
		n = m.fn.Body(fr, m.state)
		if n < 0 {
			vm.machines = vm.machines[:len(vm.machines)-1]
			return nil
		}
	}
}

// ---- properties and dispatch ----

// getProperty resolves obj.sym across the kinds: user objects walk their
// base chain, handles consult their vtable, everything else falls back to
// the kind's intrinsic proto object.
func (vm *VM) getProperty(obj object.Value, sym symbol.Symbol) object.Value {
	switch obj.Kind {
	case object.KindUserObject:
		if v, ok := obj.Data.(*object.UserObject).Get(sym); ok {
			return v
		}
	case object.KindHandle:
		h := obj.Data.(*object.Handle)
		if h.VTable != nil && h.VTable.GetProperty != nil {
			if v, ok := h.VTable.GetProperty(h, sym); ok {
				return v
			}
		}
	case object.KindList:
		switch sym {
		case vm.known.PropA:
			return listHead(obj)
		case vm.known.PropD:
			return listTail(obj)
		}
	case object.KindPair:
		switch sym {
		case vm.known.PropLeft:
			return pairSide(obj, true)
		case vm.known.PropRight:
			return pairSide(obj, false)
		}
	}
	if proto, ok := vm.protos[obj.Kind]; ok {
		if v, found := proto.Get(sym); found {
			return v
		}
	}
	return object.Null
}

// getMember implements $index (LdMember): lists and strings index by
// integer position, everything else looks up a symbol key as a property.
func (vm *VM) getMember(obj, key object.Value) (object.Value, *thrown) {
	switch obj.Kind {
	case object.KindList:
		if n, ok := intKey(key); ok {
			for cur := obj; cur.Kind == object.KindList; cur = cur.Data.(*object.Cell).Tail {
				if n == 0 {
					return cur.Data.(*object.Cell).Head, nil
				}
				n--
			}
			return object.Null, vm.throw(vm.known.KindEvalError, "list index out of range")
		}
	case object.KindString:
		if n, ok := intKey(key); ok {
			bytes := obj.Data.(*object.SmileString).Bytes
			if n < 0 || n >= int64(len(bytes)) {
				return object.Null, vm.throw(vm.known.KindEvalError, "string index out of range")
			}
			return object.Char(bytes[n]), nil
		}
	}
	if key.Kind == object.KindSymbol {
		return vm.getProperty(obj, key.Data.(symbol.Symbol)), nil
	}
	return object.Null, vm.throw(vm.known.KindEvalError,
		fmt.Sprintf("cannot index %s with %s", obj.Kind, key.Kind))
}

// setMember implements $index assignment (StMember): symbol keys on user
// objects; lists and strings are immutable (spec.md 3).
func (vm *VM) setMember(obj, key, val object.Value) *thrown {
	if key.Kind != object.KindSymbol {
		return vm.throw(vm.known.KindEvalError,
			fmt.Sprintf("cannot assign into %s with a %s key", obj.Kind, key.Kind))
	}
	return vm.setProperty(obj, key.Data.(symbol.Symbol), val)
}

func intKey(v object.Value) (int64, bool) {
	switch v.Kind {
	case object.KindByte:
		return int64(v.Data.(byte)), true
	case object.KindInt16:
		return int64(v.Data.(int16)), true
	case object.KindInt32:
		return int64(v.Data.(int32)), true
	case object.KindInt64:
		return v.Data.(int64), true
	}
	return 0, false
}

func (vm *VM) setProperty(obj object.Value, sym symbol.Symbol, val object.Value) *thrown {
	if obj.Kind != object.KindUserObject {
		return vm.throw(vm.known.KindEvalError,
			fmt.Sprintf("cannot set property '%s' on %s", vm.symbols.Name(sym), obj.Kind))
	}
	obj.Data.(*object.UserObject).Set(sym, val)
	return nil
}

// isRelated implements $is: base-chain membership for user objects, type
// symbol match when the right side is a symbol, kind equality otherwise.
func (vm *VM) isRelated(x, y object.Value) bool {
	if x.Kind == object.KindUserObject && y.Kind == object.KindUserObject {
		target := y.Data.(*object.UserObject)
		for cur := x.Data.(*object.UserObject); cur != nil; cur = cur.Base {
			if cur == target {
				return true
			}
		}
		return false
	}
	if y.Kind == object.KindSymbol {
		return vm.typeSymbol(x) == y.Data.(symbol.Symbol)
	}
	return x.Kind == y.Kind
}

var kindTypeNames = map[object.Kind]string{
	object.KindNull: "null", object.KindBool: "bool", object.KindByte: "byte",
	object.KindInt16: "int16", object.KindInt32: "int32", object.KindInt64: "int64",
	object.KindInt128: "int128", object.KindBigInt: "bigint",
	object.KindReal32: "real32", object.KindReal64: "real64", object.KindReal128: "real128",
	object.KindFloat32: "float32", object.KindFloat64: "float64",
	object.KindChar: "char", object.KindUni: "uni", object.KindSymbol: "symbol",
	object.KindString: "string", object.KindList: "list", object.KindPair: "pair",
	object.KindUserObject: "object", object.KindFunction: "fn", object.KindHandle: "handle",
	object.KindSyntax: "syntax", object.KindNonterminal: "nonterminal",
}

func (vm *VM) typeSymbol(v object.Value) symbol.Symbol {
	name, ok := kindTypeNames[v.Kind]
	if !ok {
		name = "unknown"
	}
	return vm.symbols.Intern(name)
}

// superEqual is $eq: identity for heap kinds, value equality for scalars.
func superEqual(x, y object.Value) bool {
	if x.Kind != y.Kind {
		return false
	}
	switch x.Kind {
	case object.KindNull:
		return true
	case object.KindBool, object.KindByte, object.KindInt16, object.KindInt32,
		object.KindInt64, object.KindReal32, object.KindReal64,
		object.KindFloat32, object.KindFloat64, object.KindChar, object.KindUni,
		object.KindSymbol:
		return x.Data == y.Data
	default:
		return x.Data == y.Data // pointer identity
	}
}

func listHead(v object.Value) object.Value {
	if v.Kind == object.KindList {
		return v.Data.(*object.Cell).Head
	}
	return object.Null
}

func listTail(v object.Value) object.Value {
	if v.Kind == object.KindList {
		return v.Data.(*object.Cell).Tail
	}
	return object.Null
}

func pairSide(v object.Value, left bool) object.Value {
	if v.Kind == object.KindPair {
		p := v.Data.(*object.SmilePair)
		if left {
			return p.Left
		}
		return p.Right
	}
	return object.Null
}

func listLength(v object.Value) int {
	n := 0
	for v.Kind == object.KindList {
		n++
		v = v.Data.(*object.Cell).Tail
	}
	return n
}

// ---- exceptions ----

// ThrowException builds the user-visible exception object carrying kind,
// message, and stack-trace (spec.md 7).
func (vm *VM) ThrowException(kind symbol.Symbol, message string) object.Value {
	obj := object.NewUserObject(kind, nil)
	obj.Set(vm.known.ExcKind, object.Sym(kind))
	obj.Set(vm.known.ExcMessage, object.Str(message))
	obj.Set(vm.known.ExcStackTrace, vm.CaptureStackTrace().Value())
	return object.MakeUserObject(obj)
}

func (vm *VM) throw(kind symbol.Symbol, message string) *thrown {
	return &thrown{exception: vm.ThrowException(kind, message)}
}

// unwind walks the frame stack for a $catch handler range covering the
// faulting PC; each unwound step truncates the working stack to the
// handler's recorded depth (spec.md 4.7). uncaught is true when no handler
// exists and the result carries the exception.
func (vm *VM) unwind(exception object.Value) (EvalResult, bool) {
	for len(vm.frames) > 0 {
		fr := vm.frames[len(vm.frames)-1]
		pc := fr.PC - 1

		if h, ok := innermostHandler(fr.Info.Handlers, pc); ok {
			// Drop state machines pinned to deeper frames.
			for len(vm.machines) > 0 && vm.machines[len(vm.machines)-1].frameDepth > len(vm.frames) {
				vm.machines = vm.machines[:len(vm.machines)-1]
			}

			fr.Stack = fr.Stack[:h.StackDepthAtEntry]
			fr.PC = h.EndPC
			handler := fr.Slots[fr.localSlot(h.HandlerSlot)]
			if err := vm.callValue(handler, []object.Value{exception}); err != nil {
				// The handler itself is broken; keep unwinding with the
				// original exception.
				vm.frames = vm.frames[:len(vm.frames)-1]
				continue
			}
			return EvalResult{}, false
		}

		vm.frames = vm.frames[:len(vm.frames)-1]
	}
	return EvalResult{Kind: ResultException, Exception: exception}, true
}

// innermostHandler selects the covering range with the greatest StartPC.
func innermostHandler(handlers []HandlerRange, pc int) (HandlerRange, bool) {
	best := -1
	for i, h := range handlers {
		if pc >= h.StartPC && pc < h.EndPC {
			if best < 0 || h.StartPC > handlers[best].StartPC {
				best = i
			}
		}
	}
	if best < 0 {
		return HandlerRange{}, false
	}
	return handlers[best], true
}
