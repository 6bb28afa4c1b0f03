// Package types describes static types as tag graphs and decides structural
// equality and subtyping over them.
//
// Tags are built once (by a tag table loader or by hand) and never mutated
// afterwards. A tag graph may be cyclic: an object type may refer to itself
// through a property, and a closure type through its arguments. Equality and
// subtyping are structural; two tags with the same shape are interchangeable
// regardless of pointer identity.
package types

import (
	"fmt"
	"sort"
	"strings"
)

// Kind is the variant of a Tag.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindVoid
	KindTop
	KindClosure
	KindObject
	KindArray
	KindMap
)

var kindNames = [...]string{
	KindInvalid: "invalid",
	KindInt:     "int",
	KindFloat:   "float",
	KindBool:    "bool",
	KindString:  "string",
	KindVoid:    "void",
	KindTop:     "top",
	KindClosure: "closure",
	KindObject:  "object",
	KindArray:   "array",
	KindMap:     "map",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// IsPrimitive reports whether k carries no substructure.
func (k Kind) IsPrimitive() bool {
	return k >= KindInt && k <= KindTop
}

// CodeKind distinguishes plain functions, methods and constructors.
type CodeKind uint8

const (
	Function CodeKind = iota + 1
	Method
	Constructor
)

func (c CodeKind) String() string {
	switch c {
	case Function:
		return "fn"
	case Method:
		return "method"
	case Constructor:
		return "ctor"
	}
	return fmt.Sprintf("code(%d)", c)
}

// PropID is a logical property identifier: an index into the property name
// table shared by the tag table and the runtime.
type PropID uint32

// Prop is one entry of an object shape.
type Prop struct {
	ID       PropID
	Type     *Tag
	ReadOnly bool
}

// Sig is the signature of a closure type. For methods and constructors
// Args[0] is the receiver type; functions have no receiver entry.
type Sig struct {
	Code  CodeKind
	Args  []*Tag
	Ret   *Tag
	Proto *Tag // constructors only: type of the constructed prototype
}

// Tag is a node in a type graph.
type Tag struct {
	Kind  Kind
	Sig   *Sig   // KindClosure
	Props []Prop // KindObject
	Elem  *Tag   // KindArray, KindMap
}

// Primitive tags. They are shared singletons so identity checks hit the fast
// path, but structural comparison treats any primitive tag of the same kind as
// equal.
var (
	Int    = &Tag{Kind: KindInt}
	Float  = &Tag{Kind: KindFloat}
	Bool   = &Tag{Kind: KindBool}
	String = &Tag{Kind: KindString}
	Void   = &Tag{Kind: KindVoid}
	Top    = &Tag{Kind: KindTop}
)

// Primitive returns the shared tag for a primitive kind, or nil.
func Primitive(k Kind) *Tag {
	switch k {
	case KindInt:
		return Int
	case KindFloat:
		return Float
	case KindBool:
		return Bool
	case KindString:
		return String
	case KindVoid:
		return Void
	case KindTop:
		return Top
	}
	return nil
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// NewFunction returns the type of a receiver-less function.
func NewFunction(ret *Tag, args ...*Tag) *Tag {
	return newClosure(&Sig{Code: Function, Args: args, Ret: ret})
}

// NewMethod returns the type of a method taking recv as its receiver.
func NewMethod(recv, ret *Tag, args ...*Tag) *Tag {
	all := append([]*Tag{recv}, args...)
	return newClosure(&Sig{Code: Method, Args: all, Ret: ret})
}

// NewConstructor returns the type of a constructor whose instances inherit
// from a prototype of type proto.
func NewConstructor(proto, recv, ret *Tag, args ...*Tag) *Tag {
	if proto == nil {
		panic("types.NewConstructor: nil prototype type")
	}
	all := append([]*Tag{recv}, args...)
	return newClosure(&Sig{Code: Constructor, Args: all, Ret: ret, Proto: proto})
}

func newClosure(sig *Sig) *Tag {
	if sig.Ret == nil {
		panic("types: closure signature without return type")
	}
	for i, a := range sig.Args {
		if a == nil {
			panic(fmt.Sprintf("types: closure argument %d has nil type", i))
		}
	}
	return &Tag{Kind: KindClosure, Sig: sig}
}

// NewObject returns an object shape. Property ids must be distinct.
func NewObject(props ...Prop) *Tag {
	seen := make(map[PropID]bool, len(props))
	for _, p := range props {
		if seen[p.ID] {
			panic(fmt.Sprintf("types.NewObject: duplicate property id %d", p.ID))
		}
		seen[p.ID] = true
	}
	return &Tag{Kind: KindObject, Props: props}
}

// RW declares a read-write property.
func RW(id PropID, t *Tag) Prop { return Prop{ID: id, Type: t} }

// RO declares a read-only property.
func RO(id PropID, t *Tag) Prop { return Prop{ID: id, Type: t, ReadOnly: true} }

// NewArray returns the type of arrays of elem.
func NewArray(elem *Tag) *Tag { return &Tag{Kind: KindArray, Elem: elem} }

// NewMap returns the type of string-keyed maps of elem.
func NewMap(elem *Tag) *Tag { return &Tag{Kind: KindMap, Elem: elem} }

// Fix builds a recursive tag. The function receives the tag being defined and
// returns its body; the body is copied into the self node so references to
// self inside the body close the cycle.
//
//	list := types.Fix(func(self *types.Tag) *types.Tag {
//		return types.NewObject(types.RW(next, self))
//	})
func Fix(body func(self *Tag) *Tag) *Tag {
	self := &Tag{}
	t := body(self)
	if t == nil || t == self {
		panic("types.Fix: body must return a fresh tag")
	}
	*self = *t
	return self
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Prop returns the entry for id in an object shape.
func (t *Tag) Prop(id PropID) (Prop, bool) {
	for _, p := range t.Props {
		if p.ID == id {
			return p, true
		}
	}
	return Prop{}, false
}

// ReadWrite returns the read-write entries of an object shape, in order.
func (t *Tag) ReadWrite() []Prop {
	var out []Prop
	for _, p := range t.Props {
		if !p.ReadOnly {
			out = append(out, p)
		}
	}
	return out
}

// ReadOnlyProps returns the read-only entries of an object shape, in order.
func (t *Tag) ReadOnlyProps() []Prop {
	var out []Prop
	for _, p := range t.Props {
		if p.ReadOnly {
			out = append(out, p)
		}
	}
	return out
}

// ExplicitArgs is the number of arguments a closure of this type receives
// after its receiver.
func (t *Tag) ExplicitArgs() int {
	if t.Kind != KindClosure {
		panic("types.Tag.ExplicitArgs: not a closure type")
	}
	if t.Sig.Code == Function {
		return len(t.Sig.Args)
	}
	return len(t.Sig.Args) - 1
}

// ExplicitArg returns the type of the i-th argument after the receiver.
func (t *Tag) ExplicitArg(i int) *Tag {
	if t.Sig.Code == Function {
		return t.Sig.Args[i]
	}
	return t.Sig.Args[i+1]
}

// Receiver returns the receiver type, or nil for functions.
func (t *Tag) Receiver() *Tag {
	if t.Kind != KindClosure || t.Sig.Code == Function || len(t.Sig.Args) == 0 {
		return nil
	}
	return t.Sig.Args[0]
}

// ---------------------------------------------------------------------------
// Printing
// ---------------------------------------------------------------------------

// String renders the tag. Back references in cyclic graphs print as the
// label of the node being defined (#0, #1, ...). Property ids print as p<N>;
// use Format to resolve names.
func (t *Tag) String() string {
	return Format(t, nil)
}

// Format renders the tag, resolving property ids through names when given.
func Format(t *Tag, names func(PropID) string) string {
	p := printer{names: names, labels: map[*Tag]int{}, open: map[*Tag]bool{}, cyclic: map[*Tag]bool{}}
	for _, n := range reachable(t) {
		p.cyclic[n] = reaches(children(n), n)
	}
	p.write(t)
	return p.sb.String()
}

type printer struct {
	sb     strings.Builder
	names  func(PropID) string
	labels map[*Tag]int
	open   map[*Tag]bool
	cyclic map[*Tag]bool
	next   int
}

// reachable lists every node reachable from t, t included.
func reachable(t *Tag) []*Tag {
	var out []*Tag
	seen := map[*Tag]bool{}
	var walk func(*Tag)
	walk = func(n *Tag) {
		if n == nil || seen[n] {
			return
		}
		seen[n] = true
		out = append(out, n)
		for _, c := range children(n) {
			walk(c)
		}
	}
	walk(t)
	return out
}

func reaches(from []*Tag, target *Tag) bool {
	seen := map[*Tag]bool{}
	stack := append([]*Tag(nil), from...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nil || seen[n] {
			continue
		}
		if n == target {
			return true
		}
		seen[n] = true
		stack = append(stack, children(n)...)
	}
	return false
}

func children(t *Tag) []*Tag {
	switch t.Kind {
	case KindClosure:
		out := append([]*Tag{t.Sig.Ret}, t.Sig.Args...)
		if t.Sig.Proto != nil {
			out = append(out, t.Sig.Proto)
		}
		return out
	case KindObject:
		out := make([]*Tag, len(t.Props))
		for i, pr := range t.Props {
			out[i] = pr.Type
		}
		return out
	case KindArray, KindMap:
		return []*Tag{t.Elem}
	}
	return nil
}

func (p *printer) propName(id PropID) string {
	if p.names != nil {
		if n := p.names(id); n != "" {
			return n
		}
	}
	return fmt.Sprintf("p%d", id)
}

func (p *printer) write(t *Tag) {
	if t == nil {
		p.sb.WriteString("<nil>")
		return
	}
	if t.Kind.IsPrimitive() {
		p.sb.WriteString(t.Kind.String())
		return
	}
	if p.open[t] {
		fmt.Fprintf(&p.sb, "#%d", p.labels[t])
		return
	}
	if p.cyclic[t] {
		p.labels[t] = p.next
		fmt.Fprintf(&p.sb, "#%d=", p.next)
		p.next++
	}
	p.open[t] = true
	defer delete(p.open, t)

	switch t.Kind {
	case KindClosure:
		p.sb.WriteString(t.Sig.Code.String())
		p.sb.WriteByte('(')
		for i, a := range t.Sig.Args {
			if i > 0 {
				p.sb.WriteString(", ")
			}
			p.write(a)
		}
		p.sb.WriteString(") -> ")
		p.write(t.Sig.Ret)
		if t.Sig.Proto != nil {
			p.sb.WriteString(" proto ")
			p.write(t.Sig.Proto)
		}
	case KindObject:
		props := append([]Prop(nil), t.Props...)
		sort.SliceStable(props, func(i, j int) bool { return props[i].ID < props[j].ID })
		p.sb.WriteByte('{')
		for i, pr := range props {
			if i > 0 {
				p.sb.WriteString(", ")
			}
			if pr.ReadOnly {
				p.sb.WriteString("ro ")
			}
			p.sb.WriteString(p.propName(pr.ID))
			p.sb.WriteString(": ")
			p.write(pr.Type)
		}
		p.sb.WriteByte('}')
	case KindArray:
		p.sb.WriteByte('[')
		p.write(t.Elem)
		p.sb.WriteByte(']')
	case KindMap:
		p.sb.WriteString("map<")
		p.write(t.Elem)
		p.sb.WriteByte('>')
	default:
		p.sb.WriteString(t.Kind.String())
	}
}
