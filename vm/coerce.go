package vm

import (
	"github.com/chazu/sjsrt/vm/types"
)

// Coerce converts v, which may come from untyped code, into a value typed
// code can use as t.
//
// Primitives are checked, never converted. Typed records must already be
// subtypes of t. Untyped objects and arrays are migrated in place: they get
// t as their tag and, for objects, a fixed layout holding the properties t
// requires. Untyped closures are wrapped in a return trampoline. Undefined
// passes for every target.
//
// Any failure is a type violation: the fail-stop flag is set and Coerce
// panics with *TypeViolation. Coercing a value that already succeeded for t
// returns it unchanged.
func (rt *Runtime) Coerce(v Value, t *types.Tag) Value {
	if t == nil {
		panic("Runtime.Coerce: nil type")
	}
	rt.depth++
	defer func() { rt.depth-- }()
	if rt.depth > rt.opts.CoerceDepth {
		rt.violate(ReasonCapacity, "coercion nested deeper than %d", rt.opts.CoerceDepth)
	}

	if v.IsUndefined() {
		return v
	}
	switch t.Kind {
	case types.KindTop:
		return v
	case types.KindInt:
		if v.IsInt() {
			return v
		}
	case types.KindFloat:
		if v.IsDouble() {
			return v
		}
	case types.KindBool:
		if v.IsBool() {
			return v
		}
	case types.KindString:
		if v.IsString() {
			return v
		}
	case types.KindClosure:
		return rt.coerceClosure(v, t)
	case types.KindObject:
		return rt.coerceObject(v, t)
	case types.KindArray:
		return rt.coerceArray(v, t)
	case types.KindMap:
		return rt.coerceMap(v, t)
	}
	rt.mismatch(v, t)
	return v
}

func (rt *Runtime) mismatch(v Value, t *types.Tag) {
	rt.violate(ReasonTagMismatch, "%s is not %s", rt.describe(v), rt.FormatTag(t))
}

func (rt *Runtime) subtype(sub, sup *types.Tag) bool {
	ok, err := rt.checker.Subtype(sub, sup)
	if err != nil {
		rt.violate(ReasonCapacity, "%v checking %s <: %s", err, rt.FormatTag(sub), rt.FormatTag(sup))
	}
	return ok
}

func (rt *Runtime) equal(a, b *types.Tag) bool {
	ok, err := rt.checker.Equal(a, b)
	if err != nil {
		rt.violate(ReasonCapacity, "%v checking %s = %s", err, rt.FormatTag(a), rt.FormatTag(b))
	}
	return ok
}

// ---------------------------------------------------------------------------
// Closures
// ---------------------------------------------------------------------------

func (rt *Runtime) coerceClosure(v Value, t *types.Tag) Value {
	if v.IsNull() {
		return v
	}
	if !v.IsClosure() {
		rt.mismatch(v, t)
	}
	r := rt.record(v)
	if r.tag != nil {
		if r.tag == t || rt.subtype(r.tag, t) {
			return v
		}
		rt.mismatch(v, t)
	}
	// Untyped code can stand in for a function or method, but it cannot
	// promise the prototype a constructor type requires.
	if t.Sig.Code == types.Constructor {
		rt.mismatch(v, t)
	}
	return rt.returnTrampoline(r, t)
}

// ---------------------------------------------------------------------------
// Objects
// ---------------------------------------------------------------------------

func (rt *Runtime) coerceObject(v Value, t *types.Tag) Value {
	if v.IsNull() {
		return v
	}
	if !v.IsObject() && !v.IsClosure() {
		rt.mismatch(v, t)
	}
	r := rt.record(v)
	if r.tag != nil {
		if r.tag == t || rt.subtype(r.tag, t) {
			return v
		}
		rt.mismatch(v, t)
	}
	if r.Kind != KindObject {
		rt.mismatch(v, t)
	}
	rt.migrate(r, t)
	return v
}

// migrate gives an untyped object the fixed layout of t. Untyped objects
// keep every property in the dynamic store, so the layout starts empty. The
// tag goes on first, so a cycle leading back to r sees it as already typed.
func (rt *Runtime) migrate(r *Record, t *types.Tag) {
	r.tag = t
	r.layout = NewLayout()
	rt.log.Debug("migrating object",
		"session", rt.session,
		"ref", uint64(r.ref),
		"type", rt.FormatTag(t))

	r.migrating = true
	for _, p := range t.ReadWrite() {
		rt.migrateProp(r, p)
	}
	for _, p := range t.ReadOnlyProps() {
		rt.migrateProp(r, p)
	}
	r.migrating = false
	r.layout.Publish()
}

func (rt *Runtime) migrateProp(r *Record, p types.Prop) {
	name := rt.propName(p.ID)
	if r.dyn != nil {
		if v, ok := r.dyn.Get(name); ok {
			slot := rt.nextSlot(r, name)
			r.slots[slot] = Local(rt.Coerce(v, p.Type))
			r.layout.Install(p.ID, slot)
			r.dyn.Delete(name)
			return
		}
	}
	if p.ReadOnly && rt.inherit(r, p, name) {
		return
	}
	rt.violate(ReasonMissingProperty, "%s has no property %q of type %s", r.Value(), name, rt.FormatTag(p.Type))
}

func (rt *Runtime) nextSlot(r *Record, name string) int {
	slot := r.layout.Len()
	if slot >= len(r.slots) {
		rt.violate(ReasonSlotBudget, "%s has %d fixed slots, no room for %q", r.Value(), len(r.slots), name)
	}
	return slot
}

// inherit satisfies a read-only property from the prototype chain. A fixed
// slot on the immediate prototype is shared through a forwarding slot;
// anything further up is left where it is.
func (rt *Runtime) inherit(r *Record, p types.Prop, name string) bool {
	for q := r.proto; q != nil; q = q.proto {
		if slot := q.layout.Lookup(p.ID); slot >= 0 {
			rt.coerceSlot(q, slot, p)
			if q == r.proto && !q.migrating {
				own := rt.nextSlot(r, name)
				q.layout.Publish()
				r.slots[own] = Aliased(q.ref, slot)
				r.layout.Install(p.ID, own)
			}
			return true
		}
		if q.dyn != nil {
			if v, ok := q.dyn.Get(name); ok {
				q.dyn.Put(name, rt.Coerce(v, p.Type))
				return true
			}
		}
	}
	return false
}

// coerceSlot checks the value in a fixed slot against p. A converted value
// is written back only into a local slot of an untyped record; typed
// records already promise a type for the slot.
func (rt *Runtime) coerceSlot(owner *Record, slot int, p types.Prop) {
	if !owner.migrating && owner.tag != nil && owner.tag.Kind == types.KindObject {
		if q, ok := owner.tag.Prop(p.ID); ok && rt.equal(q.Type, p.Type) {
			return
		}
	}
	v := rt.readSlot(owner, slot)
	nv := rt.Coerce(v, p.Type)
	if nv == v {
		return
	}
	if owner.slots[slot].IsAliased() || (owner.tag != nil && !owner.migrating) {
		rt.violate(ReasonTagMismatch, "property %q of %s needs conversion to %s",
			rt.propName(p.ID), owner.Value(), rt.FormatTag(p.Type))
	}
	owner.slots[slot] = Local(nv)
}

// ---------------------------------------------------------------------------
// Containers
// ---------------------------------------------------------------------------

func (rt *Runtime) coerceArray(v Value, t *types.Tag) Value {
	if v.IsNull() {
		return v
	}
	r := rt.Record(v)
	if r == nil || r.Kind != KindArray {
		rt.mismatch(v, t)
	}
	if r.tag != nil {
		if r.tag == t || rt.equal(r.tag, t) {
			return v
		}
		rt.mismatch(v, t)
	}
	r.tag = t
	a := r.array
	for i := 0; i < a.Len(); i++ {
		a.Put(i, rt.Coerce(a.Get(i), t.Elem))
	}
	return v
}

func (rt *Runtime) coerceMap(v Value, t *types.Tag) Value {
	if v.IsNull() {
		return v
	}
	if !v.IsObject() {
		rt.mismatch(v, t)
	}
	r := rt.record(v)
	if r.tag != nil {
		if r.tag == t || rt.equal(r.tag, t) {
			return v
		}
		rt.mismatch(v, t)
	}
	if r.Kind != KindObject {
		rt.mismatch(v, t)
	}
	r.tag = t
	if r.dyn == nil {
		return v
	}
	var keys []string
	for k := range r.dyn.Keys() {
		keys = append(keys, k)
	}
	for _, k := range keys {
		if ev, ok := r.dyn.Get(k); ok {
			r.dyn.Put(k, rt.Coerce(ev, t.Elem))
		}
	}
	return v
}
