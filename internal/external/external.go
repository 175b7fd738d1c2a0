// Package external implements the native-callout bridge (spec.md 4.8):
// argument-count and positional-type checking, plus the state-machine
// protocol that lets iterator-like natives (map, each, where, count) call
// back into Smile functions without growing the host stack.
package external

import (
	"fmt"

	"github.com/smile-lang/smile/internal/object"
)

// ArgCheck is one positional type check: a bitmask of acceptable value
// kinds and the kind named in the error message when the check fails.
type ArgCheck struct {
	KindMask uint32
	Expected object.Kind
}

// MaskOf builds a KindMask accepting exactly the given kinds.
func MaskOf(kinds ...object.Kind) uint32 {
	var m uint32
	for _, k := range kinds {
		m |= 1 << uint(k)
	}
	return m
}

// StackAccess is the slice of the VM the bridge exposes to state-machine
// externals: the current closure's working stack.
type StackAccess interface {
	Push(v object.Value)
	Pop() object.Value
}

// Function is a native function value. Non-state-machine functions supply
// Fn; state machines supply Start and Body instead and are driven by the
// VM (spec.md 4.8).
type Function struct {
	Name    string
	MinArgs int
	// MaxArgs of 0 means unbounded (spec.md 4.8).
	MaxArgs int

	CheckTypes bool
	ArgChecks  []ArgCheck

	// Param is the private data pointer handed back on every invocation.
	Param any

	Fn func(args []object.Value, param any) (object.Value, error)

	// StateMachine marks an iterator-like external. Start receives the
	// arguments and either pushes a callee plus n arguments onto the
	// stack and returns n, or finishes immediately with a negative
	// return after pushing its result. Body is re-invoked with the
	// callee's result on the stack and follows the same contract. The
	// state value Start returns is threaded through every Body call, so
	// each invocation of the external carries its own iteration state.
	StateMachine bool
	Start        func(sa StackAccess, args []object.Value, param any) (state any, pushback int)
	Body         func(sa StackAccess, state any) (pushback int)
}

// Arity implements object.Function; max is -1 when unbounded.
func (f *Function) Arity() (min, max int) {
	if f.MaxArgs == 0 {
		return f.MinArgs, -1
	}
	return f.MinArgs, f.MaxArgs
}

// FunctionName implements object.Function.
func (f *Function) FunctionName() string { return f.Name }

// Check validates argument count and, when CheckTypes is set, the
// positional kind masks.
func (f *Function) Check(args []object.Value) error {
	if len(args) < f.MinArgs {
		return fmt.Errorf("%s needs at least %d argument(s), got %d", f.Name, f.MinArgs, len(args))
	}
	if f.MaxArgs != 0 && len(args) > f.MaxArgs {
		return fmt.Errorf("%s takes at most %d argument(s), got %d", f.Name, f.MaxArgs, len(args))
	}
	if !f.CheckTypes {
		return nil
	}
	for i, check := range f.ArgChecks {
		if i >= len(args) {
			break
		}
		if check.KindMask == 0 {
			continue
		}
		if (1<<uint(args[i].Kind))&check.KindMask == 0 {
			return fmt.Errorf("%s: argument %d must be %s, got %s",
				f.Name, i+1, check.Expected, args[i].Kind)
		}
	}
	return nil
}

// Value wraps f as a callable object.Value.
func (f *Function) Value() object.Value {
	return object.MakeFunction(f)
}
