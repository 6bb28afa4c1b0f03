package vm

// ---------------------------------------------------------------------------
// ArrayStore: double-ended array backing
// ---------------------------------------------------------------------------

// ArrayStore holds the elements of an array record.
//
// Removing from the front advances an offset into the backing slice instead
// of copying, so Shift is O(1) and never reallocates. The unadvanced base
// slice is kept so the headroom can be reused by Unshift.
type ArrayStore struct {
	base []Value
	off  int
	n    int
}

const minArrayCap = 4

func newArrayStore(capacity int) *ArrayStore {
	if capacity < minArrayCap {
		capacity = minArrayCap
	}
	return &ArrayStore{base: make([]Value, capacity)}
}

// Len returns the number of elements.
func (a *ArrayStore) Len() int { return a.n }

// Cap returns the number of elements that fit without reallocating,
// counting from the current front.
func (a *ArrayStore) Cap() int { return len(a.base) - a.off }

// Headroom returns the number of free slots in front of the first element.
func (a *ArrayStore) Headroom() int { return a.off }

// Get returns element i, or Undefined when i is out of range.
func (a *ArrayStore) Get(i int) Value {
	if i < 0 || i >= a.n {
		return Undefined
	}
	return a.base[a.off+i]
}

// Put stores v at i. Writing past the end grows the array; the gap is
// filled with Undefined.
func (a *ArrayStore) Put(i int, v Value) Value {
	if i < 0 {
		panic("ArrayStore.Put: negative index")
	}
	if i >= a.n {
		a.reserve(i + 1)
		for j := a.n; j < i; j++ {
			a.base[a.off+j] = Undefined
		}
		a.n = i + 1
	}
	a.base[a.off+i] = v
	return v
}

// Push appends v and returns the new length.
func (a *ArrayStore) Push(v Value) int {
	a.Put(a.n, v)
	return a.n
}

// Pop removes and returns the last element, or Undefined if empty.
func (a *ArrayStore) Pop() Value {
	if a.n == 0 {
		return Undefined
	}
	a.n--
	v := a.base[a.off+a.n]
	a.base[a.off+a.n] = Undefined
	return v
}

// Shift removes and returns the first element, or Undefined if empty.
func (a *ArrayStore) Shift() Value {
	if a.n == 0 {
		return Undefined
	}
	v := a.base[a.off]
	a.base[a.off] = Undefined
	a.off++
	a.n--
	return v
}

// Unshift prepends v and returns the new length. Headroom left by Shift is
// reused before reallocating.
func (a *ArrayStore) Unshift(v Value) int {
	if a.off == 0 {
		head := a.n
		if head < minArrayCap {
			head = minArrayCap
		}
		nb := make([]Value, head+len(a.base))
		copy(nb[head:], a.base[:a.n])
		a.base, a.off = nb, head
	}
	a.off--
	a.base[a.off] = v
	a.n++
	return a.n
}

// Values returns a copy of the elements.
func (a *ArrayStore) Values() []Value {
	out := make([]Value, a.n)
	copy(out, a.base[a.off:a.off+a.n])
	return out
}

// reserve makes room for n elements from the current front.
func (a *ArrayStore) reserve(n int) {
	if n <= a.Cap() {
		return
	}
	c := 2 * len(a.base)
	if c < n {
		c = n
	}
	nb := make([]Value, c)
	copy(nb, a.base[a.off:a.off+a.n])
	a.base, a.off = nb, 0
}

// ---------------------------------------------------------------------------
// Array records
// ---------------------------------------------------------------------------

// NewArray allocates an untyped array holding elems.
func (rt *Runtime) NewArray(elems ...Value) Value {
	st := newArrayStore(len(elems))
	for _, v := range elems {
		st.Push(v)
	}
	return rt.alloc(&Record{Kind: KindArray, array: st}).Value()
}

// Array returns the element store of an array value.
func (rt *Runtime) Array(v Value) *ArrayStore {
	if v.IsObject() {
		if r := rt.record(v); r.Kind == KindArray {
			return r.array
		}
	}
	rt.violate(ReasonTagMismatch, "array operation on %s", rt.describe(v))
	return nil
}

func (rt *Runtime) ArrayGet(arr Value, i int) Value    { return rt.Array(arr).Get(i) }
func (rt *Runtime) ArrayPut(arr Value, i int, v Value) { rt.Array(arr).Put(i, v) }
func (rt *Runtime) ArrayPush(arr, v Value) int         { return rt.Array(arr).Push(v) }
func (rt *Runtime) ArrayPop(arr Value) Value           { return rt.Array(arr).Pop() }
func (rt *Runtime) ArrayShift(arr Value) Value         { return rt.Array(arr).Shift() }
func (rt *Runtime) ArrayUnshift(arr, v Value) int      { return rt.Array(arr).Unshift(v) }
func (rt *Runtime) ArrayLen(arr Value) int             { return rt.Array(arr).Len() }
func (rt *Runtime) ArrayCap(arr Value) int             { return rt.Array(arr).Cap() }
