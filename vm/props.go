package vm

import (
	"slices"
	"sync"

	"github.com/chazu/sjsrt/vm/types"
)

// PropTable maps property names to the dense ids type tags use. Ids are
// handed out in first-seen order and never reused. Runtimes sharing tags
// must share the table, so it is guarded by a mutex.
type PropTable struct {
	mu    sync.Mutex
	ids   map[string]types.PropID
	names []string
}

// NewPropTable creates a table whose first ids name the given properties.
func NewPropTable(names ...string) *PropTable {
	pt := &PropTable{ids: make(map[string]types.PropID, len(names))}
	for _, n := range names {
		pt.Intern(n)
	}
	return pt
}

// Intern returns the id of name, issuing one on first use.
func (pt *PropTable) Intern(name string) types.PropID {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	id, ok := pt.ids[name]
	if !ok {
		id = types.PropID(len(pt.names))
		pt.ids[name] = id
		pt.names = append(pt.names, name)
	}
	return id
}

// Lookup is Intern without issuing.
func (pt *PropTable) Lookup(name string) (types.PropID, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	id, ok := pt.ids[name]
	return id, ok
}

// Name returns "" for ids the table never issued.
func (pt *PropTable) Name(id types.PropID) string {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if int(id) < len(pt.names) {
		return pt.names[id]
	}
	return ""
}

func (pt *PropTable) Len() int {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return len(pt.names)
}

// All lists the names by id.
func (pt *PropTable) All() []string {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return slices.Clone(pt.names)
}
