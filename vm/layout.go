package vm

import (
	"fmt"

	"github.com/chazu/sjsrt/vm/types"
)

// Layout is an indirection table: it maps logical property ids to physical
// slot numbers of a record.
//
// A layout is append-only. Once published it is frozen, because other
// records may hold forwarding references into slots it describes or cache
// slot numbers read from it. Typed object literals share one published
// layout per type tag.
type Layout struct {
	slots     map[types.PropID]int
	order     []types.PropID
	published bool
}

// NewLayout creates an empty, unpublished layout.
func NewLayout() *Layout {
	return &Layout{slots: make(map[types.PropID]int)}
}

// Lookup returns the slot for id, or -1 if the layout has no entry.
func (l *Layout) Lookup(id types.PropID) int {
	if l == nil {
		return -1
	}
	if slot, ok := l.slots[id]; ok {
		return slot
	}
	return -1
}

// Install adds an entry. Panics if the layout is published or id already
// has a slot.
func (l *Layout) Install(id types.PropID, slot int) {
	if l.published {
		panic(fmt.Sprintf("Layout.Install: layout is published (property %d)", id))
	}
	if _, ok := l.slots[id]; ok {
		panic(fmt.Sprintf("Layout.Install: property %d already has a slot", id))
	}
	l.slots[id] = slot
	l.order = append(l.order, id)
}

// Publish freezes the layout.
func (l *Layout) Publish() { l.published = true }

// Published reports whether the layout is frozen.
func (l *Layout) Published() bool { return l != nil && l.published }

// Len returns the number of entries.
func (l *Layout) Len() int {
	if l == nil {
		return 0
	}
	return len(l.order)
}

// Each calls fn for every entry in installation order.
func (l *Layout) Each(fn func(id types.PropID, slot int)) {
	if l == nil {
		return
	}
	for _, id := range l.order {
		fn(id, l.slots[id])
	}
}

// layoutFor returns the shared layout of an object type: properties in
// declaration order occupy slots 0..n-1.
func layoutFor(t *types.Tag) *Layout {
	l := NewLayout()
	for i, p := range t.Props {
		l.Install(p.ID, i)
	}
	l.Publish()
	return l
}
