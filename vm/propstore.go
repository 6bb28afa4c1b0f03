package vm

import (
	"iter"

	"github.com/zeebo/xxh3"
)

// PropertyStore is the dynamic property store of a record: properties that
// have no fixed slot.
type PropertyStore interface {
	Get(key string) (Value, bool)
	// Put stores v under key and returns v.
	Put(key string, v Value) Value
	Len() int
	Contains(key string) bool
	Delete(key string) bool
	Keys() iter.Seq[string]
}

// ---------------------------------------------------------------------------
// HashStore: chained hash table
// ---------------------------------------------------------------------------

type hashEntry struct {
	key  string
	hash uint64
	val  Value
	next *hashEntry
}

// HashStore is a PropertyStore using separate chaining over a power-of-two
// bucket array. It doubles when the entry count exceeds the bucket count.
type HashStore struct {
	buckets []*hashEntry
	mask    uint64
	n       int
}

// NewHashStore creates a store sized for about hint entries.
func NewHashStore(hint int) *HashStore {
	nb := 8
	for nb < hint {
		nb <<= 1
	}
	return &HashStore{buckets: make([]*hashEntry, nb), mask: uint64(nb - 1)}
}

func (h *HashStore) find(key string, hash uint64) *hashEntry {
	for e := h.buckets[hash&h.mask]; e != nil; e = e.next {
		if e.hash == hash && e.key == key {
			return e
		}
	}
	return nil
}

func (h *HashStore) Get(key string) (Value, bool) {
	if e := h.find(key, xxh3.HashString(key)); e != nil {
		return e.val, true
	}
	return Undefined, false
}

func (h *HashStore) Put(key string, v Value) Value {
	hash := xxh3.HashString(key)
	if e := h.find(key, hash); e != nil {
		e.val = v
		return v
	}
	b := hash & h.mask
	h.buckets[b] = &hashEntry{key: key, hash: hash, val: v, next: h.buckets[b]}
	h.n++
	if h.n > len(h.buckets) {
		h.grow()
	}
	return v
}

func (h *HashStore) Len() int { return h.n }

func (h *HashStore) Contains(key string) bool {
	return h.find(key, xxh3.HashString(key)) != nil
}

func (h *HashStore) Delete(key string) bool {
	hash := xxh3.HashString(key)
	for p := &h.buckets[hash&h.mask]; *p != nil; p = &(*p).next {
		if e := *p; e.hash == hash && e.key == key {
			*p = e.next
			h.n--
			return true
		}
	}
	return false
}

// Keys yields every key once, in bucket order.
func (h *HashStore) Keys() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, e := range h.buckets {
			for ; e != nil; e = e.next {
				if !yield(e.key) {
					return
				}
			}
		}
	}
}

func (h *HashStore) grow() {
	nb := make([]*hashEntry, 2*len(h.buckets))
	mask := uint64(len(nb) - 1)
	for _, e := range h.buckets {
		for e != nil {
			next := e.next
			b := e.hash & mask
			e.next = nb[b]
			nb[b] = e
			e = next
		}
	}
	h.buckets, h.mask = nb, mask
}
