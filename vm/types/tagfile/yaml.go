package tagfile

import (
	"errors"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/chazu/sjsrt/vm/types"
)

// Document is the YAML authoring format.
//
//	props: [x, y]
//	tags:
//	  Point:
//	    kind: object
//	    props:
//	      - {name: x, type: int}
//	      - {name: y, type: int, readonly: true}
//	  Norm:
//	    kind: method
//	    recv: Point
//	    ret: float
//	  Points:
//	    kind: array
//	    elem: Point
//
// Props pins the ids of the listed names; property names used by tags but
// not listed are interned afterwards, in tag name order.
type Document struct {
	Props []string           `yaml:"props,omitempty"`
	Tags  map[string]*TagDef `yaml:"tags"`
}

// TagDef describes one tag. Kind is a primitive name or one of object,
// function, method, constructor, array and map.
type TagDef struct {
	Kind  string     `yaml:"kind"`
	Props []PropDef  `yaml:"props,omitempty"`
	Recv  *TypeExpr  `yaml:"recv,omitempty"`
	Args  []TypeExpr `yaml:"args,omitempty"`
	Ret   *TypeExpr  `yaml:"ret,omitempty"`
	Proto *TypeExpr  `yaml:"proto,omitempty"`
	Elem  *TypeExpr  `yaml:"elem,omitempty"`
}

// PropDef is one property of an object tag.
type PropDef struct {
	Name     string   `yaml:"name"`
	Type     TypeExpr `yaml:"type"`
	ReadOnly bool     `yaml:"readonly,omitempty"`
}

// TypeExpr is a reference to a tag: either a name (primitive or defined in
// the same document) or an inline TagDef.
type TypeExpr struct {
	Ref    string
	Inline *TagDef
}

// UnmarshalYAML accepts a scalar name or an inline mapping.
func (e *TypeExpr) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		return n.Decode(&e.Ref)
	}
	e.Inline = new(TagDef)
	return n.Decode(e.Inline)
}

// MarshalYAML writes names as scalars and inline tags as mappings.
func (e TypeExpr) MarshalYAML() (any, error) {
	if e.Inline != nil {
		return e.Inline, nil
	}
	return e.Ref, nil
}

// ParseYAML builds a table from the authoring format.
func ParseYAML(data []byte) (*Table, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("tagfile: %w", err)
	}
	return doc.Table()
}

// Table resolves the document. Every named tag is allocated before any is
// built, so references between them may form cycles.
func (d *Document) Table() (*Table, error) {
	if len(d.Tags) == 0 {
		return nil, errors.New("tagfile: document defines no tags")
	}
	b := &builder{tbl: New(d.Props...), named: make(map[string]*types.Tag, len(d.Tags))}
	names := make([]string, 0, len(d.Tags))
	for name := range d.Tags {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if primitiveByName(name) != nil {
			return nil, fmt.Errorf("tagfile: %q is a primitive type name", name)
		}
		b.named[name] = new(types.Tag)
	}
	for _, name := range names {
		def := d.Tags[name]
		if def == nil {
			return nil, fmt.Errorf("tagfile: tag %q: empty definition", name)
		}
		tag, err := b.build(def, name)
		if err != nil {
			return nil, err
		}
		*b.named[name] = *tag
	}
	for _, name := range names {
		if err := b.tbl.Define(name, b.named[name]); err != nil {
			return nil, err
		}
	}
	return b.tbl, nil
}

type builder struct {
	tbl   *Table
	named map[string]*types.Tag
}

func (b *builder) ref(e *TypeExpr, where string) (*types.Tag, error) {
	if e == nil {
		return nil, fmt.Errorf("tagfile: %s: missing type", where)
	}
	if e.Inline != nil {
		return b.build(e.Inline, where)
	}
	if p := primitiveByName(e.Ref); p != nil {
		return p, nil
	}
	if t, ok := b.named[e.Ref]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("tagfile: %s: unknown type %q", where, e.Ref)
}

func (b *builder) build(d *TagDef, where string) (*types.Tag, error) {
	if p := primitiveByName(d.Kind); p != nil {
		return p, nil
	}
	switch d.Kind {
	case "object":
		props := make([]types.Prop, 0, len(d.Props))
		seen := make(map[string]bool, len(d.Props))
		for _, p := range d.Props {
			if p.Name == "" {
				return nil, fmt.Errorf("tagfile: %s: property without name", where)
			}
			if seen[p.Name] {
				return nil, fmt.Errorf("tagfile: %s: duplicate property %q", where, p.Name)
			}
			seen[p.Name] = true
			pt, err := b.ref(&p.Type, where+"."+p.Name)
			if err != nil {
				return nil, err
			}
			props = append(props, types.Prop{ID: b.tbl.Intern(p.Name), Type: pt, ReadOnly: p.ReadOnly})
		}
		return types.NewObject(props...), nil
	case "function", "method", "constructor":
		return b.buildClosure(d, where)
	case "array", "map":
		elem, err := b.ref(d.Elem, where+" elem")
		if err != nil {
			return nil, err
		}
		if d.Kind == "array" {
			return types.NewArray(elem), nil
		}
		return types.NewMap(elem), nil
	case "":
		return nil, fmt.Errorf("tagfile: %s: missing kind", where)
	}
	return nil, fmt.Errorf("tagfile: %s: unknown kind %q", where, d.Kind)
}

func (b *builder) buildClosure(d *TagDef, where string) (*types.Tag, error) {
	ret, err := b.ref(d.Ret, where+" ret")
	if err != nil {
		return nil, err
	}
	args := make([]*types.Tag, len(d.Args))
	for i := range d.Args {
		if args[i], err = b.ref(&d.Args[i], fmt.Sprintf("%s arg %d", where, i)); err != nil {
			return nil, err
		}
	}
	if d.Kind == "function" {
		if d.Recv != nil || d.Proto != nil {
			return nil, fmt.Errorf("tagfile: %s: functions take no recv or proto", where)
		}
		return types.NewFunction(ret, args...), nil
	}
	recv, err := b.ref(d.Recv, where+" recv")
	if err != nil {
		return nil, err
	}
	if d.Kind == "method" {
		if d.Proto != nil {
			return nil, fmt.Errorf("tagfile: %s: methods take no proto", where)
		}
		return types.NewMethod(recv, ret, args...), nil
	}
	proto, err := b.ref(d.Proto, where+" proto")
	if err != nil {
		return nil, err
	}
	return types.NewConstructor(proto, recv, ret, args...), nil
}
