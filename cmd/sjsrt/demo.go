package main

import (
	"fmt"

	"github.com/chazu/sjsrt/vm"
	"github.com/chazu/sjsrt/vm/types"
)

// demo walks typed code through the main coercions on a scratch runtime:
// a return trampoline, an object migration, a recursive migration and an
// exported typed closure. The last step trips a violation on purpose.
func (c *cli) demo() error {
	opts, err := c.m.RuntimeOptions()
	if err != nil {
		return err
	}
	props := vm.NewPropTable("x", "y", "next")
	opts.Props = props
	rt := vm.New(opts)
	x, _ := props.Lookup("x")
	y, _ := props.Lookup("y")
	next, _ := props.Lookup("next")
	say := func(format string, args ...any) { fmt.Fprintf(c.out, format+"\n", args...) }

	say("session %s", rt.Session())

	// Untyped identity, seen from typed code as int -> int.
	id := rt.NewUntypedClosure(func(rt *vm.Runtime, env *vm.Env) {
		rt.PopArg()
		rt.SetReturn(rt.PopArg())
	}, nil)
	intToInt := types.NewFunction(types.Int, types.Int)
	g := rt.Coerce(id, intToInt)
	say("coerce %v to %s -> %v", id, rt.FormatTag(intToInt), g)
	say("  g(5) = %v", rt.Call(g, vm.Undefined, vm.FromInt(5)))

	// Untyped object migrated to a point type.
	point := types.NewObject(types.RW(x, types.Int), types.RW(y, types.Int))
	p := rt.NewObject(0)
	rt.Set(p, x, vm.FromInt(3))
	rt.Set(p, y, vm.FromInt(4))
	rt.Coerce(p, point)
	lay := rt.Record(p).Layout()
	say("migrate %v to %s", p, rt.FormatTag(point))
	say("  slots x=%d y=%d, published=%v", lay.Lookup(x), lay.Lookup(y), lay.Published())

	// A two-node cycle migrated to a recursive type.
	ring := types.Fix(func(self *types.Tag) *types.Tag {
		return types.NewObject(types.RW(x, types.Int), types.RW(next, self))
	})
	a, b := rt.NewObject(0), rt.NewObject(0)
	rt.Set(a, x, vm.FromInt(1))
	rt.Set(a, next, b)
	rt.Set(b, x, vm.FromInt(2))
	rt.Set(b, next, a)
	rt.Coerce(a, ring)
	say("migrate cycle %v <-> %v to %s", a, b, rt.FormatTag(ring))
	say("  both typed: %v", rt.TagOf(a) == ring && rt.TagOf(b) == ring)

	// A typed closure called from untyped code.
	norm := rt.NewClosure(types.NewFunction(types.Int, point), vm.Code1(
		func(rt *vm.Runtime, env *vm.Env, recv, q vm.Value) vm.Value {
			dx, dy := rt.Get(q, x).AsInt(), rt.Get(q, y).AsInt()
			return vm.FromInt(dx*dx + dy*dy)
		}), nil)
	ex := rt.Export(norm)
	say("export %v -> %v", norm, ex)
	say("  norm2(p) = %v", rt.CallUntypedWith(ex, vm.Undefined, p))

	// Now break the promise: the untyped identity returns a string.
	err = rt.Protect(func() { rt.Call(g, vm.Undefined, rt.NewString("five")) })
	if tv, ok := vm.AsViolation(err); ok {
		say("g(\"five\"): %v", tv)
	}
	say("fail-stop flag: %v", rt.Dirty())
	say("heap: %d records (%d objects, %d closures)",
		rt.Heap().Len(), rt.Heap().Count(vm.KindObject), rt.Heap().Count(vm.KindClosure))
	return nil
}
