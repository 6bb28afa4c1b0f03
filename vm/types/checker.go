package types

import (
	"errors"
	"fmt"
)

// ErrHypothesisOverflow is returned when a check needs more nested
// hypotheses than the checker's depth bound allows.
var ErrHypothesisOverflow = errors.New("types: hypothesis depth exceeded")

// DefaultMaxDepth bounds the number of nested hypotheses a single check may
// hold open.
const DefaultMaxDepth = 50

// Variance selects how closure argument types are compared.
type Variance uint8

const (
	// Covariant compares arguments in the same direction as the closure
	// types. This is the historical behaviour of the runtime.
	Covariant Variance = iota
	// Contravariant applies the classical function subtyping rule.
	Contravariant
)

func (v Variance) String() string {
	if v == Contravariant {
		return "contravariant"
	}
	return "covariant"
}

// ParseVariance parses "covariant" or "contravariant".
func ParseVariance(s string) (Variance, error) {
	switch s {
	case "", "covariant":
		return Covariant, nil
	case "contravariant":
		return Contravariant, nil
	}
	return Covariant, fmt.Errorf("types: unknown argument variance %q", s)
}

// Relation names a relation the checker decides.
type Relation uint8

const (
	RelSubtype Relation = iota + 1
	RelEqual
)

func (r Relation) String() string {
	if r == RelEqual {
		return "eq"
	}
	return "sub"
}

// Oracle answers relation queries from precomputed results. Lookup returns
// ok=false when it has no answer for the pair.
type Oracle interface {
	Lookup(rel Relation, a, b *Tag) (result, ok bool)
}

// Checker decides structural subtyping and equality. The zero value is not
// usable; construct with NewChecker. A Checker holds no per-query state and
// may be shared between goroutines.
type Checker struct {
	MaxDepth int
	Variance Variance
	Oracle   Oracle
}

// NewChecker returns a checker with the default depth bound and covariant
// argument comparison.
func NewChecker() *Checker {
	return &Checker{MaxDepth: DefaultMaxDepth}
}

// hypothesis is one assumed-true goal. The chain is immutable: recursing
// pushes a new head and returning simply drops it.
type hypothesis struct {
	rel   Relation
	a, b  *Tag
	next  *hypothesis
	depth int
}

func (h *hypothesis) holds(rel Relation, a, b *Tag) bool {
	for ; h != nil; h = h.next {
		if h.rel == rel && h.a == a && h.b == b {
			return true
		}
	}
	return false
}

func (c *Checker) assume(h *hypothesis, rel Relation, a, b *Tag) (*hypothesis, error) {
	depth := 1
	if h != nil {
		depth = h.depth + 1
	}
	if depth > c.MaxDepth {
		return nil, ErrHypothesisOverflow
	}
	return &hypothesis{rel: rel, a: a, b: b, next: h, depth: depth}, nil
}

// ---------------------------------------------------------------------------
// Subtyping
// ---------------------------------------------------------------------------

// Subtype reports whether sub <: sup.
func (c *Checker) Subtype(sub, sup *Tag) (bool, error) {
	return c.subtype(sub, sup, nil)
}

func (c *Checker) subtype(sub, sup *Tag, seen *hypothesis) (bool, error) {
	if sub == nil || sup == nil {
		panic("types.Checker.Subtype: nil tag")
	}
	if sub == sup || seen.holds(RelSubtype, sub, sup) {
		return true, nil
	}
	if c.Oracle != nil {
		if r, ok := c.Oracle.Lookup(RelSubtype, sub, sup); ok {
			return r, nil
		}
	}

	switch sub.Kind {
	case KindClosure:
		if sup.Kind != KindClosure {
			return false, nil
		}
		return c.subtypeClosure(sub, sup, seen)

	case KindObject:
		if sup.Kind != KindObject {
			return false, nil
		}
		seen, err := c.assume(seen, RelSubtype, sub, sup)
		if err != nil {
			return false, err
		}
		// Width only: every property of sup must appear in sub with an
		// identical type.
		for _, want := range sup.Props {
			have, ok := sub.Prop(want.ID)
			if !ok {
				return false, nil
			}
			eq, err := c.equal(have.Type, want.Type, seen)
			if err != nil || !eq {
				return false, err
			}
		}
		return true, nil

	case KindArray, KindMap:
		if sup.Kind != sub.Kind {
			return false, nil
		}
		seen, err := c.assume(seen, RelSubtype, sub, sup)
		if err != nil {
			return false, err
		}
		return c.equal(sub.Elem, sup.Elem, seen)

	case KindInt:
		return sup.Kind == KindInt || sup.Kind == KindFloat, nil

	case KindFloat, KindBool, KindString, KindVoid, KindTop:
		return sub.Kind == sup.Kind, nil
	}
	return false, nil
}

func (c *Checker) subtypeClosure(sub, sup *Tag, seen *hypothesis) (bool, error) {
	a, b := sub.Sig, sup.Sig

	// A plain function may stand in for a method; the receiver is simply
	// never passed to it.
	promote := false
	if a.Code != b.Code {
		if a.Code != Function || b.Code != Method {
			return false, nil
		}
		promote = true
	}
	offset := 0
	if promote {
		offset = 1
	}
	if len(a.Args)+offset != len(b.Args) {
		return false, nil
	}

	seen, err := c.assume(seen, RelSubtype, sub, sup)
	if err != nil {
		return false, err
	}
	if ok, err := c.subtype(a.Ret, b.Ret, seen); err != nil || !ok {
		return false, err
	}
	for i, x := range a.Args {
		y := b.Args[i+offset]
		var ok bool
		if c.Variance == Contravariant {
			ok, err = c.subtype(y, x, seen)
		} else {
			ok, err = c.subtype(x, y, seen)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	if a.Code == Constructor {
		return c.equalProto(a.Proto, b.Proto, seen)
	}
	return true, nil
}

// ---------------------------------------------------------------------------
// Equality
// ---------------------------------------------------------------------------

// Equal reports whether a and b describe the same type.
func (c *Checker) Equal(a, b *Tag) (bool, error) {
	return c.equal(a, b, nil)
}

func (c *Checker) equal(a, b *Tag, seen *hypothesis) (bool, error) {
	if a == nil || b == nil {
		panic("types.Checker.Equal: nil tag")
	}
	if a == b || seen.holds(RelEqual, a, b) || seen.holds(RelEqual, b, a) {
		return true, nil
	}
	if a.Kind != b.Kind {
		return false, nil
	}
	if a.Kind.IsPrimitive() {
		return true, nil
	}
	if c.Oracle != nil {
		if r, ok := c.Oracle.Lookup(RelEqual, a, b); ok {
			return r, nil
		}
	}

	seen, err := c.assume(seen, RelEqual, a, b)
	if err != nil {
		return false, err
	}

	switch a.Kind {
	case KindClosure:
		x, y := a.Sig, b.Sig
		if x.Code != y.Code || len(x.Args) != len(y.Args) {
			return false, nil
		}
		if x.Code == Constructor {
			if ok, err := c.equalProto(x.Proto, y.Proto, seen); err != nil || !ok {
				return false, err
			}
		}
		if ok, err := c.equal(x.Ret, y.Ret, seen); err != nil || !ok {
			return false, err
		}
		for i := range x.Args {
			if ok, err := c.equal(x.Args[i], y.Args[i], seen); err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case KindObject:
		if len(a.Props) != len(b.Props) {
			return false, nil
		}
		for _, p := range a.Props {
			q, ok := b.Prop(p.ID)
			if !ok || q.ReadOnly != p.ReadOnly {
				return false, nil
			}
			if ok, err := c.equal(p.Type, q.Type, seen); err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case KindArray, KindMap:
		return c.equal(a.Elem, b.Elem, seen)
	}
	return false, nil
}

func (c *Checker) equalProto(a, b *Tag, seen *hypothesis) (bool, error) {
	if a == nil || b == nil {
		return a == b, nil
	}
	return c.equal(a, b, seen)
}
