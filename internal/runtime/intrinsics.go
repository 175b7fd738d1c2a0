package runtime

import (
	"fmt"
	"strings"

	"github.com/smile-lang/smile/internal/external"
	"github.com/smile-lang/smile/internal/object"
)

// installIntrinsics wires the minimal intrinsic method set onto the
// primitive kinds through the external-function bridge: arithmetic and
// comparison on the integer/real towers, string concatenation and join,
// cons, and the iterator state machines on lists. The full standard
// library is an external collaborator (spec.md 1); this set is what the
// core itself and its tests exercise.
func installIntrinsics(e *Environment) {
	numericKinds := []object.Kind{
		object.KindByte, object.KindInt16, object.KindInt32, object.KindInt64,
		object.KindReal32, object.KindReal64, object.KindFloat32, object.KindFloat64,
	}
	numericMask := external.MaskOf(numericKinds...)

	binOp := func(name string, f func(a, b int64) (int64, error), g func(a, b float64) float64) object.Value {
		fn := &external.Function{
			Name:       name,
			MinArgs:    2,
			MaxArgs:    2,
			CheckTypes: true,
			ArgChecks: []external.ArgCheck{
				{KindMask: numericMask, Expected: object.KindInt64},
				{KindMask: numericMask, Expected: object.KindInt64},
			},
			Fn: func(args []object.Value, _ any) (object.Value, error) {
				if isRealKind(args[0].Kind) || isRealKind(args[1].Kind) {
					return object.Real64(g(asFloat(args[0]), asFloat(args[1]))), nil
				}
				r, err := f(asInt(args[0]), asInt(args[1]))
				if err != nil {
					return object.Null, err
				}
				return makeIntLike(widerKind(args[0].Kind, args[1].Kind), r), nil
			},
		}
		return fn.Value()
	}

	cmpOp := func(name string, f func(c int) bool) object.Value {
		fn := &external.Function{
			Name:       name,
			MinArgs:    2,
			MaxArgs:    2,
			CheckTypes: true,
			ArgChecks: []external.ArgCheck{
				{KindMask: numericMask, Expected: object.KindInt64},
				{KindMask: numericMask, Expected: object.KindInt64},
			},
			Fn: func(args []object.Value, _ any) (object.Value, error) {
				return object.Bool(f(compareNumeric(args[0], args[1]))), nil
			},
		}
		return fn.Value()
	}

	numProto := object.NewUserObject(e.Symbols.Intern("number"), nil)
	numProto.Set(e.Symbols.Intern("+"), binOp("+", func(a, b int64) (int64, error) { return a + b, nil }, func(a, b float64) float64 { return a + b }))
	numProto.Set(e.Symbols.Intern("*"), binOp("*", func(a, b int64) (int64, error) { return a * b, nil }, func(a, b float64) float64 { return a * b }))
	numProto.Set(e.Symbols.Intern("/"), binOp("/", func(a, b int64) (int64, error) {
		if b == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return a / b, nil
	}, func(a, b float64) float64 { return a / b }))
	numProto.Set(e.Symbols.Intern("%"), binOp("%", func(a, b int64) (int64, error) {
		if b == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return a % b, nil
	}, func(a, b float64) float64 { return 0 }))
	numProto.Set(e.Symbols.Intern("<"), cmpOp("<", func(c int) bool { return c < 0 }))
	numProto.Set(e.Symbols.Intern(">"), cmpOp(">", func(c int) bool { return c > 0 }))
	numProto.Set(e.Symbols.Intern("<="), cmpOp("<=", func(c int) bool { return c <= 0 }))
	numProto.Set(e.Symbols.Intern(">="), cmpOp(">=", func(c int) bool { return c >= 0 }))

	// Binary minus doubles as unary negation when called with the
	// receiver alone (the prefix form compiles to a zero-argument method
	// call).
	minus := &external.Function{
		Name:    "-",
		MinArgs: 1,
		MaxArgs: 2,
		Fn: func(args []object.Value, _ any) (object.Value, error) {
			if len(args) == 1 {
				if isRealKind(args[0].Kind) {
					return object.Real64(-asFloat(args[0])), nil
				}
				return makeIntLike(args[0].Kind, -asInt(args[0])), nil
			}
			if isRealKind(args[0].Kind) || isRealKind(args[1].Kind) {
				return object.Real64(asFloat(args[0]) - asFloat(args[1])), nil
			}
			return makeIntLike(widerKind(args[0].Kind, args[1].Kind), asInt(args[0])-asInt(args[1])), nil
		},
	}
	numProto.Set(e.Symbols.Intern("-"), minus.Value())

	// range-to builds the inclusive integer range list for `a..b`.
	rangeTo := &external.Function{
		Name:    "range-to",
		MinArgs: 2,
		MaxArgs: 2,
		Fn: func(args []object.Value, _ any) (object.Value, error) {
			lo, hi := asInt(args[0]), asInt(args[1])
			var elems []object.Value
			for i := lo; i <= hi; i++ {
				elems = append(elems, object.Int64(i))
			}
			return object.List(elems...), nil
		},
	}
	numProto.Set(e.Symbols.Intern("range-to"), rangeTo.Value())

	eqFn := &external.Function{
		Name:    "==",
		MinArgs: 2,
		MaxArgs: 2,
		Fn: func(args []object.Value, _ any) (object.Value, error) {
			return object.Bool(valueEqual(args[0], args[1])), nil
		},
	}
	neFn := &external.Function{
		Name:    "!=",
		MinArgs: 2,
		MaxArgs: 2,
		Fn: func(args []object.Value, _ any) (object.Value, error) {
			return object.Bool(!valueEqual(args[0], args[1])), nil
		},
	}
	consFn := &external.Function{
		Name:    "##",
		MinArgs: 2,
		MaxArgs: 2,
		Fn: func(args []object.Value, _ any) (object.Value, error) {
			return object.Cons(args[0], args[1]), nil
		},
	}

	strProto := object.NewUserObject(e.Symbols.Intern("string"), nil)
	concat := &external.Function{
		Name:    "+",
		MinArgs: 2,
		MaxArgs: 2,
		Fn: func(args []object.Value, _ any) (object.Value, error) {
			return object.Str(stringify(args[0]) + stringify(args[1])), nil
		},
	}
	strProto.Set(e.Symbols.Intern("+"), concat.Value())
	join := &external.Function{
		Name:    "join",
		MinArgs: 1,
		Fn: func(args []object.Value, _ any) (object.Value, error) {
			var sb strings.Builder
			for _, a := range args {
				sb.WriteString(stringify(a))
			}
			return object.Str(sb.String()), nil
		},
	}
	strProto.Set(e.Symbols.Intern("join"), join.Value())

	listProto := object.NewUserObject(e.Symbols.Intern("list"), nil)
	listProto.Set(e.Symbols.Intern("each"), eachMachine().Value())
	listProto.Set(e.Symbols.Intern("map"), mapMachine().Value())
	listProto.Set(e.Symbols.Intern("where"), whereMachine().Value())
	listProto.Set(e.Symbols.Intern("count"), countMachine().Value())

	allKinds := []object.Kind{
		object.KindNull, object.KindBool, object.KindByte, object.KindInt16,
		object.KindInt32, object.KindInt64, object.KindInt128, object.KindBigInt,
		object.KindReal32, object.KindReal64, object.KindReal128,
		object.KindFloat32, object.KindFloat64, object.KindChar, object.KindUni,
		object.KindSymbol, object.KindString, object.KindList, object.KindPair,
		object.KindUserObject, object.KindFunction, object.KindHandle,
	}
	shared := object.NewUserObject(e.Symbols.Intern("value"), nil)
	shared.Set(e.Symbols.Intern("=="), eqFn.Value())
	shared.Set(e.Symbols.Intern("!="), neFn.Value())
	shared.Set(e.Symbols.Intern("##"), consFn.Value())

	for _, k := range allKinds {
		switch k {
		case object.KindByte, object.KindInt16, object.KindInt32, object.KindInt64,
			object.KindReal32, object.KindReal64, object.KindFloat32, object.KindFloat64:
			numProto.Base = shared
			e.VM.RegisterProto(k, numProto)
		case object.KindString:
			strProto.Base = shared
			e.VM.RegisterProto(k, strProto)
		case object.KindList, object.KindNull:
			listProto.Base = shared
			e.VM.RegisterProto(k, listProto)
		default:
			e.VM.RegisterProto(k, shared)
		}
	}
}

// ---- iterator state machines (spec.md 4.8) ----

// iterState is the per-invocation state of a list iterator external.
type iterState struct {
	fn   object.Value
	rest object.Value
	acc  []object.Value
	n    int64
	cur  object.Value
}

func pushCall(sa external.StackAccess, fn, arg object.Value) int {
	sa.Push(fn)
	sa.Push(arg)
	return 1
}

// eachMachine calls fn on every element and yields the list itself.
func eachMachine() *external.Function {
	f := &external.Function{Name: "each", MinArgs: 2, MaxArgs: 2, StateMachine: true}
	f.Start = func(sa external.StackAccess, args []object.Value, _ any) (any, int) {
		st := &iterState{fn: args[1], rest: args[0], cur: args[0]}
		if st.rest.Kind != object.KindList {
			sa.Push(args[0])
			return nil, -1
		}
		cell := st.rest.Data.(*object.Cell)
		st.rest = cell.Tail
		return st, pushCall(sa, st.fn, cell.Head)
	}
	f.Body = func(sa external.StackAccess, state any) int {
		st := state.(*iterState)
		sa.Pop() // discard the callback's result
		if st.rest.Kind != object.KindList {
			sa.Push(st.cur)
			return -1
		}
		cell := st.rest.Data.(*object.Cell)
		st.rest = cell.Tail
		return pushCall(sa, st.fn, cell.Head)
	}
	return f
}

// mapMachine builds a new list of fn applied to every element.
func mapMachine() *external.Function {
	f := &external.Function{Name: "map", MinArgs: 2, MaxArgs: 2, StateMachine: true}
	f.Start = func(sa external.StackAccess, args []object.Value, _ any) (any, int) {
		st := &iterState{fn: args[1], rest: args[0]}
		if st.rest.Kind != object.KindList {
			sa.Push(object.Null)
			return nil, -1
		}
		cell := st.rest.Data.(*object.Cell)
		st.rest = cell.Tail
		return st, pushCall(sa, st.fn, cell.Head)
	}
	f.Body = func(sa external.StackAccess, state any) int {
		st := state.(*iterState)
		st.acc = append(st.acc, sa.Pop())
		if st.rest.Kind != object.KindList {
			sa.Push(object.List(st.acc...))
			return -1
		}
		cell := st.rest.Data.(*object.Cell)
		st.rest = cell.Tail
		return pushCall(sa, st.fn, cell.Head)
	}
	return f
}

// whereMachine keeps the elements fn maps to a truthy value.
func whereMachine() *external.Function {
	f := &external.Function{Name: "where", MinArgs: 2, MaxArgs: 2, StateMachine: true}
	f.Start = func(sa external.StackAccess, args []object.Value, _ any) (any, int) {
		st := &iterState{fn: args[1], rest: args[0]}
		if st.rest.Kind != object.KindList {
			sa.Push(object.Null)
			return nil, -1
		}
		cell := st.rest.Data.(*object.Cell)
		st.cur = cell.Head
		st.rest = cell.Tail
		return st, pushCall(sa, st.fn, cell.Head)
	}
	f.Body = func(sa external.StackAccess, state any) int {
		st := state.(*iterState)
		if sa.Pop().IsTruthy() {
			st.acc = append(st.acc, st.cur)
		}
		if st.rest.Kind != object.KindList {
			sa.Push(object.List(st.acc...))
			return -1
		}
		cell := st.rest.Data.(*object.Cell)
		st.cur = cell.Head
		st.rest = cell.Tail
		return pushCall(sa, st.fn, cell.Head)
	}
	return f
}

// countMachine counts the elements fn maps to a truthy value; with one
// argument it counts the whole list without calling back.
func countMachine() *external.Function {
	f := &external.Function{Name: "count", MinArgs: 1, MaxArgs: 2, StateMachine: true}
	f.Start = func(sa external.StackAccess, args []object.Value, _ any) (any, int) {
		if len(args) == 1 {
			n := int64(0)
			for v := args[0]; v.Kind == object.KindList; v = v.Data.(*object.Cell).Tail {
				n++
			}
			sa.Push(object.Int64(n))
			return nil, -1
		}
		st := &iterState{fn: args[1], rest: args[0]}
		if st.rest.Kind != object.KindList {
			sa.Push(object.Int64(0))
			return nil, -1
		}
		cell := st.rest.Data.(*object.Cell)
		st.rest = cell.Tail
		return st, pushCall(sa, st.fn, cell.Head)
	}
	f.Body = func(sa external.StackAccess, state any) int {
		st := state.(*iterState)
		if sa.Pop().IsTruthy() {
			st.n++
		}
		if st.rest.Kind != object.KindList {
			sa.Push(object.Int64(st.n))
			return -1
		}
		cell := st.rest.Data.(*object.Cell)
		st.rest = cell.Tail
		return pushCall(sa, st.fn, cell.Head)
	}
	return f
}

// ---- numeric helpers ----

func isRealKind(k object.Kind) bool {
	switch k {
	case object.KindReal32, object.KindReal64, object.KindFloat32, object.KindFloat64:
		return true
	}
	return false
}

func asInt(v object.Value) int64 {
	switch v.Kind {
	case object.KindByte:
		return int64(v.Data.(byte))
	case object.KindInt16:
		return int64(v.Data.(int16))
	case object.KindInt32:
		return int64(v.Data.(int32))
	case object.KindInt64:
		return v.Data.(int64)
	}
	return 0
}

func asFloat(v object.Value) float64 {
	switch v.Kind {
	case object.KindReal32:
		return float64(v.Data.(float32))
	case object.KindReal64:
		return v.Data.(float64)
	case object.KindFloat32:
		return float64(v.Data.(float32))
	case object.KindFloat64:
		return v.Data.(float64)
	}
	return float64(asInt(v))
}

var intKindRank = map[object.Kind]int{
	object.KindByte: 0, object.KindInt16: 1, object.KindInt32: 2, object.KindInt64: 3,
}

func widerKind(a, b object.Kind) object.Kind {
	if intKindRank[a] >= intKindRank[b] {
		return a
	}
	return b
}

func makeIntLike(kind object.Kind, v int64) object.Value {
	switch kind {
	case object.KindByte:
		return object.Byte(byte(v))
	case object.KindInt16:
		return object.Int16(int16(v))
	case object.KindInt32:
		return object.Int32(int32(v))
	default:
		return object.Int64(v)
	}
}

func compareNumeric(a, b object.Value) int {
	if isRealKind(a.Kind) || isRealKind(b.Kind) {
		x, y := asFloat(a), asFloat(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	x, y := asInt(a), asInt(b)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

// valueEqual is the virtual `==`: numeric comparison across the tower,
// content equality for strings and lists, identity elsewhere.
func valueEqual(a, b object.Value) bool {
	numeric := func(k object.Kind) bool {
		return intKindRank[k] > 0 || k == object.KindByte || isRealKind(k)
	}
	if numeric(a.Kind) && numeric(b.Kind) {
		return compareNumeric(a, b) == 0
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case object.KindNull:
		return true
	case object.KindString:
		return a.Data.(*object.SmileString).String() == b.Data.(*object.SmileString).String()
	case object.KindList:
		ac, bc := a.Data.(*object.Cell), b.Data.(*object.Cell)
		return valueEqual(ac.Head, bc.Head) && valueEqual(ac.Tail, bc.Tail)
	case object.KindBool, object.KindChar, object.KindUni, object.KindSymbol:
		return a.Data == b.Data
	default:
		return a.Data == b.Data
	}
}

func stringify(v object.Value) string {
	return v.String()
}
