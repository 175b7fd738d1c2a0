// Package object implements Smile's tagged Value model (spec.md 3): the
// dynamically-typed data every stage after the lexer operates on — parsed
// raw forms, compiled constants, and runtime values are all the same Value
// type. The tagged-struct shape (a Kind byte plus an interface{} payload)
// follows the teacher bytecode package's own Value{Type, Data} design.
package object

import (
	"fmt"
	"math/big"

	"github.com/smile-lang/smile/internal/symbol"
)

// Kind discriminates the variant a Value holds.
type Kind byte

const (
	KindNull Kind = iota
	KindBool
	KindByte
	KindInt16
	KindInt32
	KindInt64
	KindInt128
	KindBigInt
	KindReal32
	KindReal64
	KindReal128
	KindFloat32
	KindFloat64
	KindChar
	KindUni
	KindSymbol
	KindString
	KindList
	KindPair
	KindUserObject
	KindFunction
	KindHandle
	KindSyntax
	KindNonterminal
)

var kindNames = [...]string{
	KindNull: "Null", KindBool: "Bool", KindByte: "Byte", KindInt16: "Int16",
	KindInt32: "Int32", KindInt64: "Int64", KindInt128: "Int128", KindBigInt: "BigInt",
	KindReal32: "Real32", KindReal64: "Real64", KindReal128: "Real128",
	KindFloat32: "Float32", KindFloat64: "Float64", KindChar: "Char", KindUni: "Uni",
	KindSymbol: "Symbol", KindString: "String", KindList: "List", KindPair: "Pair",
	KindUserObject: "UserObject", KindFunction: "Function", KindHandle: "Handle",
	KindSyntax: "Syntax", KindNonterminal: "Nonterminal",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// Pos is advisory source-position metadata carried by a List cell. It never
// affects equality (spec.md 3).
type Pos struct {
	File   string
	Line   int
	Column int
}

// Value is the single tagged-union type flowing through every stage of the
// pipeline: lexing produces literal Values, parsing assembles them into
// List/Pair raw forms, compiling embeds them as constants, and the VM
// produces and consumes them at runtime.
type Value struct {
	Kind Kind
	Data interface{}
}

// Null is the singleton empty-list/nil value (spec.md 3: "The empty list is
// the Null singleton, not a distinct object").
var Null = Value{Kind: KindNull}

func Bool(b bool) Value      { return Value{Kind: KindBool, Data: b} }
func Byte(v byte) Value      { return Value{Kind: KindByte, Data: v} }
func Int16(v int16) Value    { return Value{Kind: KindInt16, Data: v} }
func Int32(v int32) Value    { return Value{Kind: KindInt32, Data: v} }
func Int64(v int64) Value    { return Value{Kind: KindInt64, Data: v} }
func Int128(v *big.Int) Value { return Value{Kind: KindInt128, Data: v} }
func BigInt(v *big.Int) Value { return Value{Kind: KindBigInt, Data: v} }
func Real32(v float32) Value { return Value{Kind: KindReal32, Data: v} }
func Real64(v float64) Value { return Value{Kind: KindReal64, Data: v} }
func Real128(v *big.Float) Value { return Value{Kind: KindReal128, Data: v} }
func Float32(v float32) Value { return Value{Kind: KindFloat32, Data: v} }
func Float64(v float64) Value { return Value{Kind: KindFloat64, Data: v} }
func Char(v byte) Value      { return Value{Kind: KindChar, Data: v} }
func Uni(v rune) Value       { return Value{Kind: KindUni, Data: v} }
func Sym(s symbol.Symbol) Value { return Value{Kind: KindSymbol, Data: s} }
func Str(s string) Value     { return Value{Kind: KindString, Data: &SmileString{Bytes: []byte(s)}} }

// SmileString is an immutable UTF-8 byte vector with a precomputed length
// (spec.md 3).
type SmileString struct {
	Bytes []byte
}

func (s *SmileString) String() string { return string(s.Bytes) }
func (s *SmileString) Len() int       { return len(s.Bytes) }

// Cell is a cons cell: (head, tail). The tail may be any Value, including
// another Cell (a proper list) or a non-Null, non-Cell value (a dotted
// pair), per spec.md 3.
type Cell struct {
	Head Value
	Tail Value
	Pos  *Pos // advisory, may be nil
}

// List builds a proper list terminated by Null from elems, right to left.
func List(elems ...Value) Value {
	tail := Null
	for i := len(elems) - 1; i >= 0; i-- {
		tail = Value{Kind: KindList, Data: &Cell{Head: elems[i], Tail: tail}}
	}
	return tail
}

// Cons builds a single cell (head . tail).
func Cons(head, tail Value) Value {
	return Value{Kind: KindList, Data: &Cell{Head: head, Tail: tail}}
}

// Pair is the object.property expression form left.right (spec.md 3).
type SmilePair struct {
	Left, Right Value
}

func MakePair(left, right Value) Value {
	return Value{Kind: KindPair, Data: &SmilePair{Left: left, Right: right}}
}

// UserObject is a property bag keyed by symbol with a base link forming an
// inheritance chain (spec.md 3).
type UserObject struct {
	Kind  symbol.Symbol // the object's "class" symbol, used by $typeof/$is
	Base  *UserObject
	Props map[symbol.Symbol]Value
}

func NewUserObject(kind symbol.Symbol, base *UserObject) *UserObject {
	return &UserObject{Kind: kind, Base: base, Props: make(map[symbol.Symbol]Value)}
}

func (o *UserObject) Get(sym symbol.Symbol) (Value, bool) {
	for cur := o; cur != nil; cur = cur.Base {
		if v, ok := cur.Props[sym]; ok {
			return v, true
		}
	}
	return Null, false
}

func (o *UserObject) Set(sym symbol.Symbol, v Value) {
	o.Props[sym] = v
}

func MakeUserObject(o *UserObject) Value {
	return Value{Kind: KindUserObject, Data: o}
}

// Handle is an opaque native resource with a vtable, e.g. an open file or a
// compiled regex (spec.md 3).
type HandleVTable struct {
	End             func(h *Handle)
	ToBool          func(h *Handle) bool
	ToString        func(h *Handle) string
	GetProperty     func(h *Handle, sym symbol.Symbol) (Value, bool)
	HasProperty     func(h *Handle, sym symbol.Symbol) bool
	GetPropertyNames func(h *Handle) []symbol.Symbol
}

type Handle struct {
	Kind   string
	Native interface{}
	VTable *HandleVTable
	ended  bool
}

// Close invokes the handle's End hook exactly once (spec.md 5: "must be
// idempotent").
func (h *Handle) Close() {
	if h.ended {
		return
	}
	h.ended = true
	if h.VTable != nil && h.VTable.End != nil {
		h.VTable.End(h)
	}
}

func MakeHandle(h *Handle) Value { return Value{Kind: KindHandle, Data: h} }

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%v", v.Data)
	case KindString:
		return v.Data.(*SmileString).String()
	case KindSymbol:
		return fmt.Sprintf("#%d", v.Data.(symbol.Symbol))
	default:
		return fmt.Sprintf("%v", v.Data)
	}
}

// IsTruthy implements Smile's boolean coercion: Null, a false Bool, and
// numeric zero are falsy; everything else is truthy.
func (v Value) IsTruthy() bool {
	switch v.Kind {
	case KindNull:
		return false
	case KindBool:
		return v.Data.(bool)
	case KindByte:
		return v.Data.(byte) != 0
	case KindInt16:
		return v.Data.(int16) != 0
	case KindInt32:
		return v.Data.(int32) != 0
	case KindInt64:
		return v.Data.(int64) != 0
	case KindInt128, KindBigInt:
		return v.Data.(*big.Int).Sign() != 0
	case KindReal32, KindFloat32:
		return v.Data.(float32) != 0
	case KindReal64, KindFloat64:
		return v.Data.(float64) != 0
	default:
		return true
	}
}
