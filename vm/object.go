package vm

import (
	"fmt"

	"github.com/chazu/sjsrt/vm/types"
)

// RecordKind discriminates heap records.
type RecordKind uint8

const (
	KindObject RecordKind = iota
	KindClosure
	KindUntypedClosure
	KindConstructor
	KindArray
	KindString
	KindBox

	numRecordKinds
)

var recordKindNames = [...]string{
	KindObject:         "object",
	KindClosure:        "closure",
	KindUntypedClosure: "untyped closure",
	KindConstructor:    "constructor",
	KindArray:          "array",
	KindString:         "string",
	KindBox:            "box",
}

func (k RecordKind) String() string {
	if int(k) < len(recordKindNames) {
		return recordKindNames[k]
	}
	return fmt.Sprintf("recordkind(%d)", k)
}

// IsCallable reports whether records of this kind carry code.
func (k RecordKind) IsCallable() bool {
	return k == KindClosure || k == KindUntypedClosure || k == KindConstructor
}

// Record is a heap-allocated runtime entity.
//
// Every record shares the object prefix (layout, proto, dyn, tag) so
// property lookup works uniformly on objects, closures, constructors and
// arrays. The trailing fields depend on Kind.
type Record struct {
	Kind RecordKind
	ref  Ref

	layout *Layout       // nil: no fixed layout
	proto  *Record       // lookup only
	dyn    PropertyStore // created on first dynamic write
	tag    *types.Tag    // nil: untyped

	migrating bool

	slots []Slot // KindObject

	env  *Env // closures and constructors
	code Code

	prototype *Record // KindConstructor: prototype of constructed objects

	array *ArrayStore // KindArray
	str   string      // KindString
	box   Value       // KindBox
}

// Ref returns the record's heap handle.
func (r *Record) Ref() Ref { return r.ref }

// Tag returns the record's type tag, or nil if it is untyped.
func (r *Record) Tag() *types.Tag { return r.tag }

// Layout returns the record's indirection table, or nil.
func (r *Record) Layout() *Layout { return r.layout }

// Proto returns the prototype record, or nil.
func (r *Record) Proto() *Record { return r.proto }

// NumSlots returns the number of fixed slots.
func (r *Record) NumSlots() int { return len(r.slots) }

// Env returns the captured environment of a closure.
func (r *Record) Env() *Env { return r.env }

// Value returns a reference to r tagged for its kind.
func (r *Record) Value() Value {
	switch r.Kind {
	case KindClosure, KindUntypedClosure, KindConstructor:
		return FromClosureRef(r.ref)
	case KindString:
		return FromStringRef(r.ref)
	case KindBox:
		return FromBoxRef(r.ref)
	}
	return FromObjectRef(r.ref)
}

// ---------------------------------------------------------------------------
// Slots
// ---------------------------------------------------------------------------

// Slot is the storage of one fixed property: either a local value or a
// forwarding reference to a slot of another record.
type Slot struct {
	value Value
	owner Ref // non-zero: aliased
	index int
}

// Local returns a slot holding v.
func Local(v Value) Slot { return Slot{value: v} }

// Aliased returns a slot forwarding to slot index of owner.
func Aliased(owner Ref, index int) Slot {
	if owner == 0 {
		panic("vm.Aliased: null owner")
	}
	return Slot{owner: owner, index: index}
}

// IsAliased reports whether s forwards to another record.
func (s Slot) IsAliased() bool { return s.owner != 0 }

// Target returns the owner and slot index of an aliased slot.
func (s Slot) Target() (Ref, int) { return s.owner, s.index }

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

func (rt *Runtime) alloc(r *Record) *Record {
	rt.heap.Alloc(r)
	return r
}

// record returns the record behind a reference.
// Panics on non-reference values.
func (rt *Runtime) record(v Value) *Record {
	d := v.Decode()
	if !d.Kind.IsPointer() {
		panic(fmt.Sprintf("vm: %s is not a heap reference", d.Kind))
	}
	return rt.heap.Record(d.Ref)
}

// Record returns the record behind v, or nil if v is not a heap reference.
func (rt *Runtime) Record(v Value) *Record {
	if !v.IsPointer() {
		return nil
	}
	return rt.record(v)
}

// NewObject allocates an untyped object with n fixed slots, all empty.
// A non-positive n uses the configured conversion slot budget.
func (rt *Runtime) NewObject(n int) Value {
	if n <= 0 {
		n = rt.opts.ConversionSlots
	}
	r := &Record{Kind: KindObject, slots: make([]Slot, n)}
	for i := range r.slots {
		r.slots[i] = Local(Undefined)
	}
	return rt.alloc(r).Value()
}

// NewObjectLiteral allocates an object of type t with vals in the fixed
// slots, one per property in declaration order. All objects of the same
// tag share one published layout.
func (rt *Runtime) NewObjectLiteral(t *types.Tag, vals ...Value) Value {
	if t.Kind != types.KindObject {
		panic("Runtime.NewObjectLiteral: not an object type")
	}
	if len(vals) != len(t.Props) {
		panic(fmt.Sprintf("Runtime.NewObjectLiteral: %d values for %d properties", len(vals), len(t.Props)))
	}
	lay, ok := rt.literalLayouts[t]
	if !ok {
		lay = layoutFor(t)
		rt.literalLayouts[t] = lay
	}
	r := &Record{Kind: KindObject, layout: lay, tag: t, slots: make([]Slot, len(vals))}
	for i, v := range vals {
		r.slots[i] = Local(v)
	}
	return rt.alloc(r).Value()
}

// ---------------------------------------------------------------------------
// Property access
// ---------------------------------------------------------------------------

func (rt *Runtime) propRecord(op string, obj Value) *Record {
	if !obj.IsObject() && !obj.IsClosure() {
		rt.violate(ReasonTagMismatch, "%s on %s", op, obj.Kind())
	}
	return rt.record(obj)
}

// readSlot resolves forwarding references and returns the value of slot i.
func (rt *Runtime) readSlot(r *Record, i int) Value {
	s := r.slots[i]
	for s.IsAliased() {
		s = rt.heap.Record(s.owner).slots[s.index]
	}
	return s.value
}

// lookupOwn returns an own property of r: fixed slot first, then the
// dynamic store.
func (rt *Runtime) lookupOwn(r *Record, id types.PropID) (Value, bool) {
	if slot := r.layout.Lookup(id); slot >= 0 {
		return rt.readSlot(r, slot), true
	}
	if r.dyn != nil {
		return r.dyn.Get(rt.propName(id))
	}
	return Undefined, false
}

// Get reads property id of obj, walking the prototype chain. Returns
// Undefined if no record on the chain has the property.
func (rt *Runtime) Get(obj Value, id types.PropID) Value {
	for r := rt.propRecord("property read", obj); r != nil; r = r.proto {
		if v, ok := rt.lookupOwn(r, id); ok {
			return v
		}
	}
	return Undefined
}

// Set writes property id of obj. A fixed slot is written in place; an
// aliased slot is replaced by a local value, shadowing the inherited one.
// Anything else goes to the dynamic store. Set never touches prototypes.
func (rt *Runtime) Set(obj Value, id types.PropID, v Value) {
	if v.IsBox() {
		panic("Runtime.Set: boxes are not first-class values")
	}
	r := rt.propRecord("property write", obj)
	if slot := r.layout.Lookup(id); slot >= 0 {
		r.slots[slot] = Local(v)
		return
	}
	if r.dyn == nil {
		r.dyn = NewHashStore(0)
	}
	r.dyn.Put(rt.propName(id), v)
}

// GetByName reads a property by name.
func (rt *Runtime) GetByName(obj Value, name string) Value {
	return rt.Get(obj, rt.props.Intern(name))
}

// SetByName writes a property by name.
func (rt *Runtime) SetByName(obj Value, name string, v Value) {
	rt.Set(obj, rt.props.Intern(name), v)
}

// HasOwn reports whether obj itself has property id.
func (rt *Runtime) HasOwn(obj Value, id types.PropID) bool {
	_, ok := rt.lookupOwn(rt.propRecord("property test", obj), id)
	return ok
}

// Delete removes a dynamic property. Fixed slots cannot be removed; Delete
// reports false for them and for absent properties.
func (rt *Runtime) Delete(obj Value, id types.PropID) bool {
	r := rt.propRecord("property delete", obj)
	if r.dyn == nil || r.layout.Lookup(id) >= 0 {
		return false
	}
	return r.dyn.Delete(rt.propName(id))
}

// Keys returns the names of obj's own properties: fixed slots in layout
// order, then dynamic entries.
func (rt *Runtime) Keys(obj Value) []string {
	r := rt.propRecord("key listing", obj)
	var keys []string
	r.layout.Each(func(id types.PropID, _ int) {
		keys = append(keys, rt.propName(id))
	})
	if r.dyn != nil {
		for k := range r.dyn.Keys() {
			keys = append(keys, k)
		}
	}
	return keys
}

// SetPrototype links obj to proto. Null clears the link.
func (rt *Runtime) SetPrototype(obj, proto Value) {
	r := rt.propRecord("prototype write", obj)
	if proto.IsNull() {
		r.proto = nil
		return
	}
	p := rt.propRecord("prototype link", proto)
	for q := p; q != nil; q = q.proto {
		if q == r {
			rt.violate(ReasonTagMismatch, "prototype cycle through %s", obj)
		}
	}
	r.proto = p
}

// Prototype returns obj's prototype, or Null.
func (rt *Runtime) Prototype(obj Value) Value {
	r := rt.propRecord("prototype read", obj)
	if r.proto == nil {
		return Null
	}
	return r.proto.Value()
}

// TagOf returns the type tag of a heap value, or nil for untyped records and
// immediates.
func (rt *Runtime) TagOf(v Value) *types.Tag {
	if r := rt.Record(v); r != nil {
		return r.tag
	}
	return nil
}

// ---------------------------------------------------------------------------
// Strings and boxes
// ---------------------------------------------------------------------------

// NewString allocates a string record.
func (rt *Runtime) NewString(s string) Value {
	return rt.alloc(&Record{Kind: KindString, str: s}).Value()
}

// StringOf returns the contents of a string value.
// Panics if v is not a string.
func (rt *Runtime) StringOf(v Value) string {
	if !v.IsString() {
		panic("Runtime.StringOf: not a string")
	}
	return rt.record(v).str
}

// NewBox allocates a box holding v. Boxes give closures a shared binding
// for captured locals.
func (rt *Runtime) NewBox(v Value) Value {
	if v.IsBox() {
		panic("Runtime.NewBox: nested box")
	}
	return rt.alloc(&Record{Kind: KindBox, box: v}).Value()
}

// BoxGet returns the contents of a box.
func (rt *Runtime) BoxGet(b Value) Value {
	if !b.IsBox() {
		panic("Runtime.BoxGet: not a box")
	}
	return rt.record(b).box
}

// BoxSet replaces the contents of a box.
func (rt *Runtime) BoxSet(b, v Value) {
	if !b.IsBox() {
		panic("Runtime.BoxSet: not a box")
	}
	if v.IsBox() {
		panic("Runtime.BoxSet: nested box")
	}
	rt.record(b).box = v
}
