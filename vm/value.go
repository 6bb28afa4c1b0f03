package vm

import (
	"fmt"
	"math"
	"strconv"
)

// Value is a runtime value packed into one 64-bit word using NaN-boxing.
//
// Doubles are stored offset by 1<<48 so that no double ever has an all-zero
// or all-one top 16 bits. Those two regions are reserved for heap references
// and immediates respectively:
//
//	Pointer   0000:hhhh:hhhh:hhht  (t = pointer tag, h = heap handle << 3)
//	Double    0001:....  to  FFFE:....
//	Int       FFFF:0000:iiii:iiii
//	Bool      FFFF:0001:0000:000b
//	Undefined FFFF:0007:0000:0000
//	Null      0000:0000:0000:0000
//
// Only encode and decode look at the bits. Everything else works on the
// Decoded form or the accessor methods.
type Value uint64

// ValueKind identifies the logical variant of a Value.
type ValueKind uint8

const (
	IntValue ValueKind = iota + 1
	DoubleValue
	BoolValue
	UndefinedValue
	NullValue
	ObjectValue
	StringValue
	ClosureValue
	BoxValue
)

var valueKindNames = [...]string{
	IntValue:       "int",
	DoubleValue:    "double",
	BoolValue:      "bool",
	UndefinedValue: "undefined",
	NullValue:      "null",
	ObjectValue:    "object",
	StringValue:    "string",
	ClosureValue:   "closure",
	BoxValue:       "box",
}

func (k ValueKind) String() string {
	if int(k) < len(valueKindNames) && valueKindNames[k] != "" {
		return valueKindNames[k]
	}
	return fmt.Sprintf("valuekind(%d)", k)
}

// IsPointer reports whether values of this kind reference a heap record.
func (k ValueKind) IsPointer() bool {
	return k >= ObjectValue
}

// Ref is a heap handle. The zero Ref is the null reference.
type Ref uint64

// MaxRef is the largest handle that fits in a pointer payload.
const MaxRef Ref = 1<<45 - 1

// Decoded is the unpacked form of a Value. Only the field matching Kind is
// meaningful.
type Decoded struct {
	Kind   ValueKind
	Int    int32
	Double float64
	Bool   bool
	Ref    Ref
}

// Value packs d.
func (d Decoded) Value() Value { return encode(d) }

// Decode unpacks v.
func (v Value) Decode() Decoded { return decode(v) }

// ---------------------------------------------------------------------------
// Bit layout
// ---------------------------------------------------------------------------

const (
	doubleShift  uint64 = 1 << 48
	canonicalNaN uint64 = 0x7FF8000000000000

	immediateTag uint64 = 0xFFFF000000000000
	intTag       uint64 = 0xFFFF000000000000
	boolTag      uint64 = 0xFFFF000100000000
	undefBits    uint64 = 0xFFFF000700000000

	ptrTagMask uint64 = 0x7
	ptrObject  uint64 = 0
	ptrBox     uint64 = 2
	ptrString  uint64 = 4
	ptrClosure uint64 = 6
)

func encode(d Decoded) Value {
	switch d.Kind {
	case IntValue:
		return Value(intTag | uint64(uint32(d.Int)))
	case DoubleValue:
		bits := math.Float64bits(d.Double)
		if math.IsNaN(d.Double) {
			bits = canonicalNaN
		}
		return Value(bits + doubleShift)
	case BoolValue:
		if d.Bool {
			return Value(boolTag | 1)
		}
		return Value(boolTag)
	case UndefinedValue:
		return Value(undefBits)
	case NullValue:
		return 0
	case ObjectValue, StringValue, ClosureValue, BoxValue:
		if d.Ref == 0 {
			return 0
		}
		if d.Ref > MaxRef {
			panic("vm.encode: heap handle out of range")
		}
		return Value(uint64(d.Ref)<<3 | pointerTag(d.Kind))
	}
	panic(fmt.Sprintf("vm.encode: invalid kind %v", d.Kind))
}

func pointerTag(k ValueKind) uint64 {
	switch k {
	case BoxValue:
		return ptrBox
	case StringValue:
		return ptrString
	case ClosureValue:
		return ptrClosure
	}
	return ptrObject
}

func decode(v Value) Decoded {
	bits := uint64(v)
	switch bits >> 48 {
	case 0:
		ref := Ref(bits >> 3)
		if ref == 0 {
			return Decoded{Kind: NullValue}
		}
		switch bits & ptrTagMask {
		case ptrObject:
			return Decoded{Kind: ObjectValue, Ref: ref}
		case ptrBox:
			return Decoded{Kind: BoxValue, Ref: ref}
		case ptrString:
			return Decoded{Kind: StringValue, Ref: ref}
		case ptrClosure:
			return Decoded{Kind: ClosureValue, Ref: ref}
		}
	case immediateTag >> 48:
		switch bits >> 32 {
		case intTag >> 32:
			return Decoded{Kind: IntValue, Int: int32(uint32(bits))}
		case boolTag >> 32:
			if bits&^1 == boolTag {
				return Decoded{Kind: BoolValue, Bool: bits&1 == 1}
			}
		case undefBits >> 32:
			if bits == undefBits {
				return Decoded{Kind: UndefinedValue}
			}
		}
	default:
		return Decoded{Kind: DoubleValue, Double: math.Float64frombits(bits - doubleShift)}
	}
	panic(fmt.Sprintf("vm.decode: malformed value %#016x", bits))
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// Undefined is the undefined value.
const Undefined = Value(undefBits)

// Null is the null reference.
const Null Value = 0

// FromInt creates an int value.
func FromInt(n int32) Value { return encode(Decoded{Kind: IntValue, Int: n}) }

// FromDouble creates a double value. Every NaN is stored as the canonical
// quiet NaN.
func FromDouble(f float64) Value { return encode(Decoded{Kind: DoubleValue, Double: f}) }

// FromBool creates a bool value.
func FromBool(b bool) Value { return encode(Decoded{Kind: BoolValue, Bool: b}) }

// FromObjectRef creates an object reference.
func FromObjectRef(r Ref) Value { return encode(Decoded{Kind: ObjectValue, Ref: r}) }

// FromStringRef creates a string reference.
func FromStringRef(r Ref) Value { return encode(Decoded{Kind: StringValue, Ref: r}) }

// FromClosureRef creates a closure reference.
func FromClosureRef(r Ref) Value { return encode(Decoded{Kind: ClosureValue, Ref: r}) }

// FromBoxRef creates a box reference.
func FromBoxRef(r Ref) Value { return encode(Decoded{Kind: BoxValue, Ref: r}) }

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// Kind returns the variant of v.
func (v Value) Kind() ValueKind { return decode(v).Kind }

func (v Value) IsInt() bool       { return v.Kind() == IntValue }
func (v Value) IsDouble() bool    { return v.Kind() == DoubleValue }
func (v Value) IsBool() bool      { return v.Kind() == BoolValue }
func (v Value) IsUndefined() bool { return v == Undefined }
func (v Value) IsNull() bool      { return v.Kind() == NullValue }
func (v Value) IsObject() bool    { return v.Kind() == ObjectValue }
func (v Value) IsString() bool    { return v.Kind() == StringValue }
func (v Value) IsClosure() bool   { return v.Kind() == ClosureValue }
func (v Value) IsBox() bool       { return v.Kind() == BoxValue }

// IsPointer reports whether v is a non-null heap reference.
func (v Value) IsPointer() bool { return v.Kind().IsPointer() }

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// AsInt returns v as an int32.
// Panics if v is not an int.
func (v Value) AsInt() int32 {
	d := decode(v)
	if d.Kind != IntValue {
		panic("Value.AsInt: not an int")
	}
	return d.Int
}

// AsDouble returns v as a float64.
// Panics if v is not a double.
func (v Value) AsDouble() float64 {
	d := decode(v)
	if d.Kind != DoubleValue {
		panic("Value.AsDouble: not a double")
	}
	return d.Double
}

// AsBool returns v as a bool.
// Panics if v is not a bool.
func (v Value) AsBool() bool {
	d := decode(v)
	if d.Kind != BoolValue {
		panic("Value.AsBool: not a bool")
	}
	return d.Bool
}

// AsRef returns the heap handle of a reference. Null yields the zero Ref.
// Panics if v is not a reference.
func (v Value) AsRef() Ref {
	d := decode(v)
	if d.Kind != NullValue && !d.Kind.IsPointer() {
		panic("Value.AsRef: not a reference")
	}
	return d.Ref
}

// ---------------------------------------------------------------------------
// Truthiness
// ---------------------------------------------------------------------------

// IsFalsy reports whether v is false in a condition: undefined, int zero,
// false and null. Every double, NaN and zero included, is truthy.
func (v Value) IsFalsy() bool {
	d := decode(v)
	switch d.Kind {
	case UndefinedValue, NullValue:
		return true
	case IntValue:
		return d.Int == 0
	case BoolValue:
		return !d.Bool
	}
	return false
}

// String formats v for diagnostics.
func (v Value) String() string {
	d := decode(v)
	switch d.Kind {
	case IntValue:
		return strconv.FormatInt(int64(d.Int), 10)
	case DoubleValue:
		return strconv.FormatFloat(d.Double, 'g', -1, 64)
	case BoolValue:
		return strconv.FormatBool(d.Bool)
	case UndefinedValue, NullValue:
		return d.Kind.String()
	}
	return fmt.Sprintf("%s#%d", d.Kind, d.Ref)
}
