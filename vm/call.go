package vm

import (
	"fmt"

	"github.com/chazu/sjsrt/vm/types"
)

// ---------------------------------------------------------------------------
// Closure allocation
// ---------------------------------------------------------------------------

func checkTypedCode(t *types.Tag, code Code) {
	if _, ok := code.(UntypedCode); ok || code == nil {
		panic("vm: typed closure needs Code0..Code4")
	}
	if code.Arity() != t.ExplicitArgs() {
		panic(fmt.Sprintf("vm: code takes %d arguments, type %v takes %d", code.Arity(), t, t.ExplicitArgs()))
	}
}

// NewClosure allocates a typed function or method closure.
func (rt *Runtime) NewClosure(t *types.Tag, code Code, env *Env) Value {
	if t == nil || t.Kind != types.KindClosure || t.Sig.Code == types.Constructor {
		panic("Runtime.NewClosure: need a function or method type")
	}
	checkTypedCode(t, code)
	return rt.alloc(&Record{Kind: KindClosure, tag: t, code: code, env: env}).Value()
}

// NewUntypedClosure allocates a closure for dynamic code.
func (rt *Runtime) NewUntypedClosure(code UntypedCode, env *Env) Value {
	if code == nil {
		panic("Runtime.NewUntypedClosure: nil code")
	}
	return rt.alloc(&Record{Kind: KindUntypedClosure, code: code, env: env}).Value()
}

// NewConstructor allocates a constructor whose instances inherit from
// prototype. A nil t makes an untyped constructor, which must use
// UntypedCode.
func (rt *Runtime) NewConstructor(t *types.Tag, prototype Value, code Code, env *Env) Value {
	if t != nil {
		if t.Kind != types.KindClosure || t.Sig.Code != types.Constructor {
			panic("Runtime.NewConstructor: need a constructor type")
		}
		checkTypedCode(t, code)
	} else if _, ok := code.(UntypedCode); !ok {
		panic("Runtime.NewConstructor: untyped constructor needs UntypedCode")
	}
	r := &Record{Kind: KindConstructor, tag: t, code: code, env: env}
	if !prototype.IsNull() {
		r.prototype = rt.propRecord("constructor prototype", prototype)
	}
	return rt.alloc(r).Value()
}

// ConstructorPrototype returns the prototype given to a constructor's
// instances, or Null.
func (rt *Runtime) ConstructorPrototype(ctor Value) Value {
	r := rt.callable(ctor)
	if r.Kind != KindConstructor || r.prototype == nil {
		return Null
	}
	return r.prototype.Value()
}

// ---------------------------------------------------------------------------
// Argument stack
// ---------------------------------------------------------------------------

// PushArg pushes an argument for an untyped call. Callers push arguments
// last to first and the receiver last of all.
func (rt *Runtime) PushArg(v Value) {
	if len(rt.args) >= rt.opts.ArgStack {
		rt.violate(ReasonCapacity, "argument stack overflow (%d)", rt.opts.ArgStack)
	}
	rt.args = append(rt.args, v)
}

// PopArg pops the next argument. Untyped code pops its receiver first.
func (rt *Runtime) PopArg() Value {
	n := len(rt.args)
	if n == 0 {
		rt.violate(ReasonArity, "argument stack underflow")
	}
	v := rt.args[n-1]
	rt.args = rt.args[:n-1]
	return v
}

// ClearArgs empties the argument stack.
func (rt *Runtime) ClearArgs() { rt.args = rt.args[:0] }

// NumArgs returns the number of pushed arguments.
func (rt *Runtime) NumArgs() int { return len(rt.args) }

// LastReturn returns the result of the most recent untyped call.
func (rt *Runtime) LastReturn() Value { return rt.lastReturn }

// SetReturn stores the result of untyped code.
func (rt *Runtime) SetReturn(v Value) { rt.lastReturn = v }

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func (rt *Runtime) callable(fn Value) *Record {
	if fn.IsClosure() {
		if r := rt.record(fn); r.Kind.IsCallable() {
			return r
		}
	}
	rt.violate(ReasonNotCallable, "call of %s", rt.describe(fn))
	return nil
}

// Call invokes fn with the typed convention: a receiver (Undefined for
// plain functions) and a fixed number of arguments. Arguments are not
// coerced; the caller is typed code. Untyped closures are called through
// the argument stack.
func (rt *Runtime) Call(fn, recv Value, args ...Value) Value {
	return rt.callRecord(rt.callable(fn), recv, args)
}

func (rt *Runtime) callRecord(r *Record, recv Value, args []Value) Value {
	if uc, ok := r.code.(UntypedCode); ok {
		return rt.callUntypedCode(uc, r.env, recv, args)
	}
	if len(args) != r.code.Arity() {
		rt.violate(ReasonArity, "%s called with %d arguments, wants %d", rt.describe(r.Value()), len(args), r.code.Arity())
	}
	return invoke(rt, r.code, r.env, recv, args)
}

// callUntypedCode pushes args and recv, runs uc, and drops whatever
// arguments it left unconsumed.
func (rt *Runtime) callUntypedCode(uc UntypedCode, env *Env, recv Value, args []Value) Value {
	base := len(rt.args)
	for i := len(args) - 1; i >= 0; i-- {
		rt.PushArg(args[i])
	}
	rt.PushArg(recv)
	rt.lastReturn = Undefined
	uc(rt, env)
	if len(rt.args) > base {
		rt.args = rt.args[:base]
	}
	return rt.lastReturn
}

// CallUntyped invokes fn with the untyped convention: the receiver and
// arguments are already on the argument stack and the result is left in
// LastReturn. Typed closures are entered through a call trampoline that
// coerces each argument to its declared type.
func (rt *Runtime) CallUntyped(fn Value) {
	r := rt.callable(fn)
	if uc, ok := r.code.(UntypedCode); ok {
		rt.lastReturn = Undefined
		uc(rt, r.env)
		return
	}
	rt.lastReturn = rt.enterTyped(r)
}

// CallUntypedWith pushes recv and args, calls fn with the untyped
// convention and returns LastReturn.
func (rt *Runtime) CallUntypedWith(fn, recv Value, args ...Value) Value {
	base := len(rt.args)
	for i := len(args) - 1; i >= 0; i-- {
		rt.PushArg(args[i])
	}
	rt.PushArg(recv)
	rt.CallUntyped(fn)
	if len(rt.args) > base {
		rt.args = rt.args[:base]
	}
	return rt.lastReturn
}

// Construct allocates an object inheriting from ctor's prototype, runs the
// constructor with it as receiver and returns it. A typed constructor whose
// receiver is an object type gets its instance migrated to that type.
func (rt *Runtime) Construct(ctor Value, args ...Value) Value {
	r := rt.callable(ctor)
	if r.Kind != KindConstructor {
		rt.violate(ReasonNotCallable, "%s is not a constructor", rt.describe(ctor))
	}
	obj := rt.NewObject(0)
	rt.record(obj).proto = r.prototype
	rt.callRecord(r, obj, args)
	if r.tag != nil {
		if recv := r.tag.Receiver(); recv != nil && recv.Kind == types.KindObject {
			rt.Coerce(obj, recv)
		}
	}
	return obj
}
