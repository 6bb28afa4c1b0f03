package vm

import (
	"github.com/chazu/sjsrt/vm/types"
)

// ---------------------------------------------------------------------------
// Return trampolines: untyped closures seen from typed code
// ---------------------------------------------------------------------------

// Return trampolines, indexed by explicit argument count. Each pushes its
// arguments onto the argument stack, calls the wrapped untyped closure held
// in env.Slots[0] and coerces the result to the return type of env.Target.
var returnTrampolines [MaxArity + 1]Code

func init() {
	returnTrampolines = [MaxArity + 1]Code{
		Code0(func(rt *Runtime, env *Env, recv Value) Value {
			return rt.bounce(env, recv, nil)
		}),
		Code1(func(rt *Runtime, env *Env, recv, a0 Value) Value {
			return rt.bounce(env, recv, []Value{a0})
		}),
		Code2(func(rt *Runtime, env *Env, recv, a0, a1 Value) Value {
			return rt.bounce(env, recv, []Value{a0, a1})
		}),
		Code3(func(rt *Runtime, env *Env, recv, a0, a1, a2 Value) Value {
			return rt.bounce(env, recv, []Value{a0, a1, a2})
		}),
		Code4(func(rt *Runtime, env *Env, recv, a0, a1, a2, a3 Value) Value {
			return rt.bounce(env, recv, []Value{a0, a1, a2, a3})
		}),
	}
}

func (rt *Runtime) bounce(env *Env, recv Value, args []Value) Value {
	r := rt.record(env.Slots[0])
	res := rt.callUntypedCode(r.code.(UntypedCode), r.env, recv, args)
	return rt.Coerce(res, env.Target.Sig.Ret)
}

// returnTrampoline wraps the untyped closure r as a typed closure of type t.
// r itself is left untouched, so it can be coerced to other types too.
func (rt *Runtime) returnTrampoline(r *Record, t *types.Tag) Value {
	n := t.ExplicitArgs()
	if n > MaxArity {
		rt.violate(ReasonArity, "no return trampoline for %d arguments (%s)", n, rt.FormatTag(t))
	}
	tr := rt.alloc(&Record{
		Kind: KindClosure,
		tag:  t,
		code: returnTrampolines[n],
		env:  &Env{Slots: []Value{r.Value()}, Target: t},
	})
	rt.log.Debug("return trampoline",
		"session", rt.session,
		"closure", uint64(r.ref),
		"trampoline", uint64(tr.ref),
		"type", rt.FormatTag(t))
	return tr.Value()
}

// ---------------------------------------------------------------------------
// Call trampolines: typed closures seen from untyped code
// ---------------------------------------------------------------------------

// Export wraps a typed closure for untyped callers. The wrapper pops its
// receiver and arguments from the argument stack, coerces each to the
// declared type, calls the typed code and stores the result with
// SetReturn. Untyped closures are returned unchanged.
func (rt *Runtime) Export(fn Value) Value {
	r := rt.callable(fn)
	if r.tag == nil {
		return fn
	}
	w := rt.alloc(&Record{
		Kind: KindUntypedClosure,
		code: UntypedCode(exported),
		env:  &Env{Slots: []Value{fn}, Target: r.tag},
	})
	rt.log.Debug("call trampoline",
		"session", rt.session,
		"closure", uint64(r.ref),
		"trampoline", uint64(w.ref),
		"type", rt.FormatTag(r.tag))
	return w.Value()
}

func exported(rt *Runtime, env *Env) {
	rt.SetReturn(rt.enterTyped(rt.record(env.Slots[0])))
}

// enterTyped pops a receiver and arguments for the typed closure r, coerces
// them to its signature and runs it.
func (rt *Runtime) enterTyped(r *Record) Value {
	t := r.tag
	recv := rt.PopArg()
	if want := t.Receiver(); want != nil {
		recv = rt.Coerce(recv, want)
	}
	args := make([]Value, t.ExplicitArgs())
	for i := range args {
		args[i] = rt.Coerce(rt.PopArg(), t.ExplicitArg(i))
	}
	return invoke(rt, r.code, r.env, recv, args)
}

// ---------------------------------------------------------------------------
// Boxed imports
// ---------------------------------------------------------------------------

// AccessUntyped reads a box written by untyped code as a value of type t.
// The coerced value is written back so later reads are already typed.
func (rt *Runtime) AccessUntyped(box Value, t *types.Tag) Value {
	v := rt.BoxGet(box)
	nv := rt.Coerce(v, t)
	if nv != v {
		rt.BoxSet(box, nv)
	}
	return nv
}

// AccessInt reads a box written by untyped code as an int.
func (rt *Runtime) AccessInt(box Value) int32 {
	v := rt.AccessUntyped(box, types.Int)
	if !v.IsInt() {
		rt.mismatch(v, types.Int)
	}
	return v.AsInt()
}
