package vm

import (
	"errors"
	"testing"

	"github.com/chazu/sjsrt/vm/types"
)

// mustViolate runs fn and fails unless it raised a violation with reason.
func mustViolate(t *testing.T, rt *Runtime, reason Reason, fn func()) {
	t.Helper()
	err := rt.Protect(fn)
	tv, ok := AsViolation(err)
	if !ok {
		t.Fatalf("no type violation (err = %v), want %v", err, reason)
	}
	if tv.Reason != reason {
		t.Fatalf("violation %v, want %v", tv, reason)
	}
	if !rt.Dirty() {
		t.Fatal("violation did not set the fail-stop flag")
	}
}

// ---------------------------------------------------------------------------
// Primitives
// ---------------------------------------------------------------------------

func TestCoercePrimitives(t *testing.T) {
	rt := newTestRuntime(t)
	str := rt.NewString("s")
	ok := []struct {
		v   Value
		tag *types.Tag
	}{
		{FromInt(1), types.Int},
		{FromDouble(1), types.Float},
		{FromBool(true), types.Bool},
		{str, types.String},
		{FromInt(1), types.Top},
		{str, types.Top},
		{Undefined, types.Void},
		{Undefined, types.Int},
		{Undefined, types.NewObject(types.RW(propA, types.Int))},
	}
	for _, tt := range ok {
		if got := rt.Coerce(tt.v, tt.tag); got != tt.v {
			t.Errorf("Coerce(%v, %v) = %v, want unchanged", tt.v, tt.tag, got)
		}
	}
	if rt.Dirty() {
		t.Fatal("successful coercions set the fail-stop flag")
	}
}

func TestCoercePrimitiveMismatch(t *testing.T) {
	bad := []struct {
		v   func(*Runtime) Value
		tag *types.Tag
	}{
		{func(*Runtime) Value { return FromInt(1) }, types.Float},
		{func(*Runtime) Value { return FromDouble(1) }, types.Int},
		{func(*Runtime) Value { return FromInt(0) }, types.Bool},
		{func(rt *Runtime) Value { return rt.NewString("1") }, types.Int},
		{func(*Runtime) Value { return FromInt(0) }, types.Void},
		{func(*Runtime) Value { return Null }, types.Int},
	}
	for _, tt := range bad {
		rt := newTestRuntime(t)
		mustViolate(t, rt, ReasonTagMismatch, func() { rt.Coerce(tt.v(rt), tt.tag) })
	}
}

func TestFailStopIsSticky(t *testing.T) {
	rt := newTestRuntime(t)
	if _, err := rt.TryCoerce(FromBool(true), types.Int); err == nil {
		t.Fatal("TryCoerce accepted a bool as int")
	}
	if _, err := rt.TryCoerce(FromInt(1), types.Int); err != nil {
		t.Fatalf("TryCoerce: %v", err)
	}
	if !rt.Dirty() {
		t.Error("fail-stop flag was cleared by a later success")
	}
}

func TestProtectPassesOtherPanics(t *testing.T) {
	rt := newTestRuntime(t)
	defer func() {
		if r := recover(); r != "boom" {
			t.Errorf("recovered %v, want boom", r)
		}
	}()
	rt.Protect(func() { panic("boom") })
	t.Error("Protect swallowed a foreign panic")
}

// ---------------------------------------------------------------------------
// Object migration
// ---------------------------------------------------------------------------

func TestMigrateObject(t *testing.T) {
	rt := newTestRuntime(t)
	shape := types.NewObject(types.RW(propA, types.Int), types.RW(propB, types.Bool))
	obj := rt.NewObject(0)
	rt.Set(obj, propA, FromInt(1))
	rt.Set(obj, propB, FromBool(true))
	rt.Set(obj, propC, FromInt(3))
	if rt.Record(obj).Layout() != nil {
		t.Fatal("untyped object should keep its properties dynamic")
	}

	if got := rt.Coerce(obj, shape); got != obj {
		t.Fatalf("migration returned a different value")
	}
	r := rt.Record(obj)
	if r.Tag() != shape {
		t.Error("tag not installed")
	}
	if !r.Layout().Published() {
		t.Error("layout not published after migration")
	}
	if r.Layout().Lookup(propA) != 0 || r.Layout().Lookup(propB) != 1 || r.Layout().Len() != 2 {
		t.Error("required properties not in the first fixed slots")
	}
	if r.dyn.Contains("a") || r.dyn.Contains("b") {
		t.Error("migrated keys left in the dynamic store")
	}
	if !r.dyn.Contains("c") {
		t.Error("extra property should stay dynamic")
	}
	if rt.Get(obj, propA) != FromInt(1) || rt.Get(obj, propB) != FromBool(true) || rt.Get(obj, propC) != FromInt(3) {
		t.Error("values changed by migration")
	}
}

func TestMigrateMissingProperty(t *testing.T) {
	rt := newTestRuntime(t)
	shape := types.NewObject(types.RW(propA, types.Int))
	obj := rt.NewObject(0)
	rt.Set(obj, propB, FromInt(1))
	mustViolate(t, rt, ReasonMissingProperty, func() { rt.Coerce(obj, shape) })
}

func TestMigrateWrongPropertyType(t *testing.T) {
	rt := newTestRuntime(t)
	shape := types.NewObject(types.RW(propA, types.Int))
	obj := rt.NewObject(0)
	rt.Set(obj, propA, FromBool(false))
	mustViolate(t, rt, ReasonTagMismatch, func() { rt.Coerce(obj, shape) })
}

func shapeWith(n int) *types.Tag {
	props := make([]types.Prop, n)
	for i := range props {
		props[i] = types.RW(types.PropID(i), types.Int)
	}
	return types.NewObject(props...)
}

func populated(rt *Runtime, n int) Value {
	obj := rt.NewObject(0)
	for i := 0; i < n; i++ {
		rt.Set(obj, types.PropID(i), FromInt(int32(i)))
	}
	return obj
}

func TestMigrationSlotAccounting(t *testing.T) {
	rt := newTestRuntime(t)
	budget := rt.Options().ConversionSlots

	obj := populated(rt, budget)
	rt.Coerce(obj, shapeWith(budget))
	r := rt.Record(obj)
	if r.dyn.Len() != 0 {
		t.Errorf("%d properties left in the dynamic store", r.dyn.Len())
	}
	for i := 0; i < budget; i++ {
		slot := r.Layout().Lookup(types.PropID(i))
		if slot < 0 {
			t.Fatalf("property %d has no fixed slot", i)
		}
		if got := rt.readSlot(r, slot); got != FromInt(int32(i)) {
			t.Errorf("slot of property %d = %v", i, got)
		}
	}

	over := populated(rt, budget+1)
	mustViolate(t, rt, ReasonSlotBudget, func() { rt.Coerce(over, shapeWith(budget+1)) })
}

func TestCoerceIdempotent(t *testing.T) {
	rt := newTestRuntime(t)
	shape := types.NewObject(types.RW(propA, types.Int))
	obj := rt.NewObject(0)
	rt.Set(obj, propA, FromInt(4))

	first := rt.Coerce(obj, shape)
	lay := rt.Record(first).Layout()
	second := rt.Coerce(first, shape)
	if first != second {
		t.Errorf("second coercion returned %v, want %v", second, first)
	}
	if rt.Record(second).Layout() != lay {
		t.Error("second coercion replaced the layout")
	}

	fn := rt.NewUntypedClosure(func(rt *Runtime, env *Env) {}, nil)
	sig := types.NewFunction(types.Void)
	g := rt.Coerce(fn, sig)
	if rt.Coerce(g, sig) != g {
		t.Error("coercing a trampoline to its own type should return it")
	}

	arr := rt.NewArray(FromInt(1))
	at := types.NewArray(types.Int)
	if rt.Coerce(rt.Coerce(arr, at), at) != arr {
		t.Error("array coercion not idempotent")
	}
}

func TestCoerceTypedObject(t *testing.T) {
	rt := newTestRuntime(t)
	wide := types.NewObject(types.RW(propA, types.Int), types.RW(propB, types.Bool))
	narrow := types.NewObject(types.RW(propA, types.Int))
	obj := rt.NewObjectLiteral(wide, FromInt(1), FromBool(true))
	if rt.Coerce(obj, narrow) != obj {
		t.Error("wide typed object should pass as narrow")
	}
	if rt.TagOf(obj) != wide {
		t.Error("subtype check must not retag")
	}

	small := rt.NewObjectLiteral(narrow, FromInt(1))
	mustViolate(t, rt, ReasonTagMismatch, func() { rt.Coerce(small, wide) })
}

func TestCoerceNullObject(t *testing.T) {
	rt := newTestRuntime(t)
	shape := types.NewObject(types.RW(propA, types.Int))
	if rt.Coerce(Null, shape) != Null {
		t.Error("null should pass as an object")
	}
	if rt.Coerce(Null, types.NewFunction(types.Int)) != Null {
		t.Error("null should pass as a closure")
	}
}

func TestMigrateCyclicGraph(t *testing.T) {
	rt := newTestRuntime(t)
	list := types.Fix(func(self *types.Tag) *types.Tag {
		return types.NewObject(types.RW(propA, types.Int), types.RW(propNext, self))
	})
	a := rt.NewObject(0)
	b := rt.NewObject(0)
	rt.Set(a, propA, FromInt(1))
	rt.Set(a, propNext, b)
	rt.Set(b, propA, FromInt(2))
	rt.Set(b, propNext, a)

	rt.Coerce(a, list)
	if rt.TagOf(a) != list || rt.TagOf(b) != list {
		t.Error("both nodes of the cycle should carry the list type")
	}
	if rt.Get(rt.Get(a, propNext), propNext) != a {
		t.Error("cycle broken by migration")
	}
}

func TestMigrateNested(t *testing.T) {
	rt := newTestRuntime(t)
	inner := types.NewObject(types.RW(propA, types.Int))
	outer := types.NewObject(types.RW(propB, inner))
	in := rt.NewObject(0)
	rt.Set(in, propA, FromInt(1))
	out := rt.NewObject(0)
	rt.Set(out, propB, in)

	rt.Coerce(out, outer)
	if rt.TagOf(in) != inner {
		t.Error("nested object not migrated")
	}
}

func TestCoerceDepthBound(t *testing.T) {
	opts := DefaultOptions()
	opts.CoerceDepth = 8
	opts.Props = NewPropTable("a")
	rt := New(opts)

	// A chain of 20 distinct types forces 20 nested coercions.
	tag := types.Int
	for i := 0; i < 20; i++ {
		tag = types.NewObject(types.RW(0, tag))
	}
	v := FromInt(0)
	for i := 0; i < 20; i++ {
		obj := rt.NewObject(0)
		rt.Set(obj, 0, v)
		v = obj
	}
	mustViolate(t, rt, ReasonCapacity, func() { rt.Coerce(v, tag) })
}

// ---------------------------------------------------------------------------
// Read-only properties
// ---------------------------------------------------------------------------

func TestReadOnlyForwardsToPrototype(t *testing.T) {
	rt := newTestRuntime(t)
	protoShape := types.NewObject(types.RO(propA, types.Int))
	proto := rt.NewObjectLiteral(protoShape, FromInt(42))

	shape := types.NewObject(types.RW(propB, types.Bool), types.RO(propA, types.Int))
	obj := rt.NewObject(0)
	rt.SetPrototype(obj, proto)
	rt.Set(obj, propB, FromBool(true))

	rt.Coerce(obj, shape)
	r := rt.Record(obj)
	slot := r.Layout().Lookup(propA)
	if slot < 0 {
		t.Fatal("read-only property got no slot")
	}
	if !r.slots[slot].IsAliased() {
		t.Fatal("read-only property should forward to the prototype")
	}
	owner, idx := r.slots[slot].Target()
	if owner != rt.Record(proto).Ref() || idx != 0 {
		t.Errorf("alias target = %d/%d", owner, idx)
	}
	if rt.Get(obj, propA) != FromInt(42) {
		t.Error("aliased read wrong")
	}
	if !rt.Record(proto).Layout().Published() {
		t.Error("forwarded-to layout must be published")
	}
	// Read-write entries are placed before read-only ones.
	if r.Layout().Lookup(propB) != 0 || slot != 1 {
		t.Errorf("slots: b=%d a=%d, want b=0 a=1", r.Layout().Lookup(propB), slot)
	}
}

func TestReadOnlyFromAncestorDynamicStore(t *testing.T) {
	rt := newTestRuntime(t)
	grand := rt.NewObject(0)
	rt.Set(grand, propA, FromInt(5))
	parent := rt.NewObject(0)
	rt.SetPrototype(parent, grand)
	obj := rt.NewObject(0)
	rt.SetPrototype(obj, parent)

	shape := types.NewObject(types.RO(propA, types.Int))
	rt.Coerce(obj, shape)
	if rt.Record(obj).Layout().Lookup(propA) >= 0 {
		t.Error("property inherited from further up should not be copied")
	}
	if rt.Get(obj, propA) != FromInt(5) {
		t.Error("inherited read wrong")
	}
}

func TestReadOnlyConvertedInAncestor(t *testing.T) {
	rt := newTestRuntime(t)
	proto := rt.NewObject(0)
	fn := rt.NewUntypedClosure(func(rt *Runtime, env *Env) { rt.SetReturn(FromInt(1)) }, nil)
	rt.Set(proto, propA, fn)
	obj := rt.NewObject(0)
	rt.SetPrototype(obj, proto)

	sig := types.NewFunction(types.Int)
	rt.Coerce(obj, types.NewObject(types.RO(propA, sig)))
	got := rt.Get(obj, propA)
	if rt.TagOf(got) != sig {
		t.Fatalf("inherited closure not converted: %v", rt.describe(got))
	}
	if rt.Call(got, Undefined) != FromInt(1) {
		t.Error("converted closure returned the wrong value")
	}
}

func TestReadWriteNotInherited(t *testing.T) {
	rt := newTestRuntime(t)
	proto := rt.NewObject(0)
	rt.Set(proto, propA, FromInt(1))
	obj := rt.NewObject(0)
	rt.SetPrototype(obj, proto)
	mustViolate(t, rt, ReasonMissingProperty, func() {
		rt.Coerce(obj, types.NewObject(types.RW(propA, types.Int)))
	})
}

// ---------------------------------------------------------------------------
// Containers
// ---------------------------------------------------------------------------

func TestCoerceArray(t *testing.T) {
	rt := newTestRuntime(t)
	arr := rt.NewArray(FromInt(1), FromInt(2))
	at := types.NewArray(types.Int)
	rt.Coerce(arr, at)
	if rt.TagOf(arr) != at {
		t.Error("array tag not installed")
	}
	if rt.Coerce(arr, types.NewArray(types.Int)) != arr {
		t.Error("structurally equal array type rejected")
	}
	mustViolate(t, rt, ReasonTagMismatch, func() { rt.Coerce(arr, types.NewArray(types.Float)) })
}

func TestCoerceArrayElements(t *testing.T) {
	rt := newTestRuntime(t)
	mixed := rt.NewArray(FromInt(1), FromBool(true))
	mustViolate(t, rt, ReasonTagMismatch, func() { rt.Coerce(mixed, types.NewArray(types.Int)) })

	rt2 := newTestRuntime(t)
	fn := rt2.NewUntypedClosure(func(rt *Runtime, env *Env) { rt.SetReturn(FromInt(3)) }, nil)
	fns := rt2.NewArray(fn)
	sig := types.NewFunction(types.Int)
	rt2.Coerce(fns, types.NewArray(sig))
	if rt2.TagOf(rt2.ArrayGet(fns, 0)) != sig {
		t.Error("array element not converted in place")
	}
}

func TestCoerceMap(t *testing.T) {
	rt := newTestRuntime(t)
	m := rt.NewObject(0)
	rt.Set(m, propA, FromInt(1))
	rt.Set(m, propB, FromInt(2))
	mt := types.NewMap(types.Int)
	rt.Coerce(m, mt)
	if rt.TagOf(m) != mt {
		t.Error("map tag not installed")
	}
	if rt.Get(m, propB) != FromInt(2) {
		t.Error("map entries changed")
	}
	mustViolate(t, rt, ReasonTagMismatch, func() { rt.Coerce(m, types.NewMap(types.Bool)) })

	rt2 := newTestRuntime(t)
	bad := rt2.NewObject(0)
	rt2.Set(bad, propA, rt2.NewString("x"))
	mustViolate(t, rt2, ReasonTagMismatch, func() { rt2.Coerce(bad, types.NewMap(types.Int)) })
}

func TestViolationError(t *testing.T) {
	rt := newTestRuntime(t)
	_, err := rt.TryCoerce(FromInt(1), types.Bool)
	var tv *TypeViolation
	if !errors.As(err, &tv) {
		t.Fatalf("err = %v, want *TypeViolation", err)
	}
	if tv.Error() == "" || tv.Reason.String() != "tag mismatch" {
		t.Errorf("violation = %q (%v)", tv.Error(), tv.Reason)
	}
}
