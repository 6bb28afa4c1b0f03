package vm

import "github.com/chazu/sjsrt/vm/types"

// Env is the captured environment of a closure. Target is set on
// trampolines: the type the wrapped closure was coerced to, or exported
// from.
type Env struct {
	Slots  []Value
	Target *types.Tag
}

// Code is the body of a closure.
//
// Typed closures use one of the arity-specialised shapes Code0..Code4: the
// code receives its environment, the receiver (Undefined for plain
// functions) and a fixed number of explicit arguments. Untyped closures use
// UntypedCode and the argument stack instead.
type Code interface {
	// Arity returns the number of explicit arguments, or -1 for untyped
	// code.
	Arity() int
}

// Code0 is typed code taking no explicit arguments.
type Code0 func(rt *Runtime, env *Env, recv Value) Value

// Code1 is typed code taking one argument.
type Code1 func(rt *Runtime, env *Env, recv, a0 Value) Value

// Code2 is typed code taking two arguments.
type Code2 func(rt *Runtime, env *Env, recv, a0, a1 Value) Value

// Code3 is typed code taking three arguments.
type Code3 func(rt *Runtime, env *Env, recv, a0, a1, a2 Value) Value

// Code4 is typed code taking four arguments.
type Code4 func(rt *Runtime, env *Env, recv, a0, a1, a2, a3 Value) Value

// UntypedCode pops its receiver and then its arguments from the runtime's
// argument stack and reports its result with SetReturn.
type UntypedCode func(rt *Runtime, env *Env)

func (Code0) Arity() int       { return 0 }
func (Code1) Arity() int       { return 1 }
func (Code2) Arity() int       { return 2 }
func (Code3) Arity() int       { return 3 }
func (Code4) Arity() int       { return 4 }
func (UntypedCode) Arity() int { return -1 }

// MaxArity is the largest number of explicit arguments typed code accepts.
const MaxArity = 4

// invoke runs typed code with exactly code.Arity() arguments.
func invoke(rt *Runtime, code Code, env *Env, recv Value, args []Value) Value {
	switch c := code.(type) {
	case Code0:
		return c(rt, env, recv)
	case Code1:
		return c(rt, env, recv, args[0])
	case Code2:
		return c(rt, env, recv, args[0], args[1])
	case Code3:
		return c(rt, env, recv, args[0], args[1], args[2])
	case Code4:
		return c(rt, env, recv, args[0], args[1], args[2], args[3])
	}
	panic("vm.invoke: untyped code")
}
