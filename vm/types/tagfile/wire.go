package tagfile

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/sjsrt/vm/types"
)

// cborEncMode uses canonical mode so equal tables encode to equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("tagfile: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// wireVersion is bumped whenever the compiled layout changes.
const wireVersion = 1

// wireTable is the compiled form. Tags are flattened into Nodes; every
// reference is an index into Nodes, with -1 for none.
type wireTable struct {
	Version byte       `cbor:"1,keyasint"`
	Props   []string   `cbor:"2,keyasint"`
	Names   []wireName `cbor:"3,keyasint"`
	Nodes   []wireNode `cbor:"4,keyasint"`
}

type wireName struct {
	Name string `cbor:"1,keyasint"`
	Node int    `cbor:"2,keyasint"`
}

type wireNode struct {
	Kind  uint8      `cbor:"1,keyasint"`
	Code  uint8      `cbor:"2,keyasint,omitempty"`
	Args  []int      `cbor:"3,keyasint,omitempty"`
	Ret   int        `cbor:"4,keyasint"`
	Proto int        `cbor:"5,keyasint"`
	Props []wireProp `cbor:"6,keyasint,omitempty"`
	Elem  int        `cbor:"7,keyasint"`
}

type wireProp struct {
	ID       uint32 `cbor:"1,keyasint"`
	Type     int    `cbor:"2,keyasint"`
	ReadOnly bool   `cbor:"3,keyasint,omitempty"`
}

// Marshal returns the compiled form of the table. Nodes are numbered in
// depth-first order from the sorted names, so the encoding depends only on
// the shape of the table.
func (t *Table) Marshal() ([]byte, error) {
	e := &encoder{index: make(map[*types.Tag]int)}
	w := wireTable{Version: wireVersion, Props: t.props}
	for _, name := range t.Names() {
		w.Names = append(w.Names, wireName{Name: name, Node: e.node(t.tags[name])})
	}
	for _, n := range e.nodes {
		for _, p := range n.Props {
			if int(p.ID) >= len(t.props) {
				return nil, fmt.Errorf("tagfile: property id %d outside the table", p.ID)
			}
		}
	}
	w.Nodes = e.nodes
	return cborEncMode.Marshal(&w)
}

type encoder struct {
	index map[*types.Tag]int
	nodes []wireNode
}

func (e *encoder) node(t *types.Tag) int {
	// Unmarshal restores every primitive as its singleton; encode them the
	// same way so a round trip keeps the node table, and the digest, intact.
	if t.Kind.IsPrimitive() {
		t = types.Primitive(t.Kind)
	}
	if i, ok := e.index[t]; ok {
		return i
	}
	i := len(e.nodes)
	e.index[t] = i
	e.nodes = append(e.nodes, wireNode{})

	n := wireNode{Kind: uint8(t.Kind), Ret: -1, Proto: -1, Elem: -1}
	switch t.Kind {
	case types.KindClosure:
		n.Code = uint8(t.Sig.Code)
		n.Args = make([]int, len(t.Sig.Args))
		for j, a := range t.Sig.Args {
			n.Args[j] = e.node(a)
		}
		n.Ret = e.node(t.Sig.Ret)
		if t.Sig.Proto != nil {
			n.Proto = e.node(t.Sig.Proto)
		}
	case types.KindObject:
		n.Props = make([]wireProp, len(t.Props))
		for j, p := range t.Props {
			n.Props[j] = wireProp{ID: uint32(p.ID), Type: e.node(p.Type), ReadOnly: p.ReadOnly}
		}
	case types.KindArray, types.KindMap:
		n.Elem = e.node(t.Elem)
	}
	e.nodes[i] = n
	return i
}

// Unmarshal decodes a compiled table.
func Unmarshal(data []byte) (*Table, error) {
	var w wireTable
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("tagfile: unmarshal table: %w", err)
	}
	if w.Version != wireVersion {
		return nil, fmt.Errorf("tagfile: compiled table version %d, want %d", w.Version, wireVersion)
	}

	tags := make([]*types.Tag, len(w.Nodes))
	for i, n := range w.Nodes {
		k := types.Kind(n.Kind)
		switch {
		case k.IsPrimitive():
			tags[i] = types.Primitive(k)
		case k >= types.KindClosure && k <= types.KindMap:
			tags[i] = &types.Tag{Kind: k}
		default:
			return nil, fmt.Errorf("tagfile: node %d: bad kind %d", i, n.Kind)
		}
	}
	ref := func(i, j int, what string) (*types.Tag, error) {
		if j < 0 || j >= len(tags) {
			return nil, fmt.Errorf("tagfile: node %d: %s refers to node %d", i, what, j)
		}
		return tags[j], nil
	}

	tbl := New(w.Props...)
	if len(tbl.props) != len(w.Props) {
		return nil, fmt.Errorf("tagfile: duplicate property names")
	}
	var err error
	for i, n := range w.Nodes {
		t := tags[i]
		switch t.Kind {
		case types.KindClosure:
			code := types.CodeKind(n.Code)
			if code < types.Function || code > types.Constructor {
				return nil, fmt.Errorf("tagfile: node %d: bad code %d", i, n.Code)
			}
			sig := &types.Sig{Code: code, Args: make([]*types.Tag, len(n.Args))}
			for j, a := range n.Args {
				if sig.Args[j], err = ref(i, a, "argument"); err != nil {
					return nil, err
				}
			}
			if sig.Ret, err = ref(i, n.Ret, "return"); err != nil {
				return nil, err
			}
			if sig.Code == types.Constructor {
				if sig.Proto, err = ref(i, n.Proto, "prototype"); err != nil {
					return nil, err
				}
			}
			if sig.Code != types.Function && len(sig.Args) == 0 {
				return nil, fmt.Errorf("tagfile: node %d: %v without receiver", i, sig.Code)
			}
			t.Sig = sig
		case types.KindObject:
			seen := make(map[uint32]bool, len(n.Props))
			t.Props = make([]types.Prop, len(n.Props))
			for j, p := range n.Props {
				if int(p.ID) >= len(w.Props) || seen[p.ID] {
					return nil, fmt.Errorf("tagfile: node %d: bad property id %d", i, p.ID)
				}
				seen[p.ID] = true
				pt, err := ref(i, p.Type, "property")
				if err != nil {
					return nil, err
				}
				t.Props[j] = types.Prop{ID: types.PropID(p.ID), Type: pt, ReadOnly: p.ReadOnly}
			}
		case types.KindArray, types.KindMap:
			if t.Elem, err = ref(i, n.Elem, "element"); err != nil {
				return nil, err
			}
		}
	}
	for _, wn := range w.Names {
		t, err := ref(-1, wn.Node, "name "+wn.Name)
		if err != nil {
			return nil, err
		}
		if err := tbl.Define(wn.Name, t); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}
