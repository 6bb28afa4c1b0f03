package vm

import "fmt"

// ---------------------------------------------------------------------------
// Heap: handle registry for records
// ---------------------------------------------------------------------------

// Heap maps handles to records. Pointer values carry a handle rather than a
// machine address, so the registry is what keeps records reachable for the
// Go collector. Handle 0 is never issued; it decodes as null.
//
// Records are never freed individually. A Heap belongs to one Runtime and
// is not safe for concurrent use.
type Heap struct {
	records []*Record
	byKind  [numRecordKinds]int
}

// NewHeap creates an empty heap.
func NewHeap() *Heap {
	return &Heap{records: make([]*Record, 1, 256)}
}

// Alloc registers r and returns its handle.
func (h *Heap) Alloc(r *Record) Ref {
	if r.ref != 0 {
		panic("Heap.Alloc: record already allocated")
	}
	ref := Ref(len(h.records))
	if ref > MaxRef {
		panic("Heap.Alloc: handle space exhausted")
	}
	h.records = append(h.records, r)
	h.byKind[r.Kind]++
	r.ref = ref
	return ref
}

// Record returns the record for a handle.
// Panics on null or unknown handles.
func (h *Heap) Record(ref Ref) *Record {
	if ref == 0 || int(ref) >= len(h.records) {
		panic(fmt.Sprintf("Heap.Record: invalid handle %d", ref))
	}
	return h.records[ref]
}

// Len returns the number of live records.
func (h *Heap) Len() int {
	return len(h.records) - 1
}

// Count returns the number of records of kind k.
func (h *Heap) Count(k RecordKind) int {
	return h.byKind[k]
}
