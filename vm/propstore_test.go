package vm

import (
	"fmt"
	"testing"
)

func TestHashStoreBasics(t *testing.T) {
	h := NewHashStore(0)
	if _, ok := h.Get("x"); ok {
		t.Error("empty store has x")
	}
	if got := h.Put("x", FromInt(1)); got != FromInt(1) {
		t.Errorf("Put returned %v, want 1", got)
	}
	h.Put("x", FromInt(2))
	if h.Len() != 1 {
		t.Errorf("Len = %d after overwrite, want 1", h.Len())
	}
	if v, ok := h.Get("x"); !ok || v != FromInt(2) {
		t.Errorf("Get(x) = %v, %v", v, ok)
	}
	if !h.Contains("x") || h.Contains("y") {
		t.Error("Contains wrong")
	}
	if !h.Delete("x") || h.Delete("x") {
		t.Error("Delete should succeed once")
	}
	if h.Len() != 0 {
		t.Errorf("Len = %d after delete, want 0", h.Len())
	}
}

func TestHashStoreGrows(t *testing.T) {
	h := NewHashStore(0)
	const n = 1000
	for i := 0; i < n; i++ {
		h.Put(fmt.Sprintf("k%d", i), FromInt(int32(i)))
	}
	if h.Len() != n {
		t.Fatalf("Len = %d, want %d", h.Len(), n)
	}
	if len(h.buckets) < n {
		t.Errorf("buckets = %d, load factor above 1", len(h.buckets))
	}
	if len(h.buckets)&(len(h.buckets)-1) != 0 {
		t.Errorf("bucket count %d is not a power of two", len(h.buckets))
	}
	for i := 0; i < n; i += 97 {
		if v, ok := h.Get(fmt.Sprintf("k%d", i)); !ok || v.AsInt() != int32(i) {
			t.Errorf("k%d = %v, %v", i, v, ok)
		}
	}

	seen := map[string]bool{}
	for k := range h.Keys() {
		if seen[k] {
			t.Fatalf("key %q yielded twice", k)
		}
		seen[k] = true
	}
	if len(seen) != n {
		t.Errorf("Keys yielded %d keys, want %d", len(seen), n)
	}
}

func TestHashStoreKeysStopsEarly(t *testing.T) {
	h := NewHashStore(0)
	for i := 0; i < 10; i++ {
		h.Put(fmt.Sprint(i), Undefined)
	}
	count := 0
	for range h.Keys() {
		count++
		if count == 3 {
			break
		}
	}
	if count != 3 {
		t.Errorf("iterated %d keys, want 3", count)
	}
}
