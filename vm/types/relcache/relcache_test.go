package relcache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/chazu/sjsrt/vm/types"
	"github.com/chazu/sjsrt/vm/types/tagfile"
)

const shapes = `
tags:
  Point:
    kind: object
    props:
      - {name: x, type: int}
  Point3:
    kind: object
    props:
      - {name: x, type: int}
      - {name: z, type: int}
  Node:
    kind: object
    props:
      - {name: next, type: Node}
  GetX:
    kind: method
    recv: Point
    ret: int
`

func loadShapes(t *testing.T) *tagfile.Table {
	t.Helper()
	tbl, err := tagfile.ParseYAML([]byte(shapes))
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func openCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "rel.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPrecomputeAndLoad(t *testing.T) {
	ctx := context.Background()
	c := openCache(t)
	tbl := loadShapes(t)

	n, err := c.Precompute(ctx, tbl, types.NewChecker())
	if err != nil {
		t.Fatalf("Precompute: %v", err)
	}
	want := 2 * tbl.Len() * tbl.Len()
	if n != want {
		t.Errorf("stored %d rows, want %d", n, want)
	}
	if got, _ := c.Count(ctx, tbl, types.Covariant); got != want {
		t.Errorf("Count = %d, want %d", got, want)
	}

	o, err := c.Oracle(ctx, tbl, types.Covariant)
	if err != nil {
		t.Fatalf("Oracle: %v", err)
	}
	p, _ := tbl.Tag("Point")
	p3, _ := tbl.Tag("Point3")
	if r, ok := o.Lookup(types.RelSubtype, p3, p); !ok || !r {
		t.Errorf("Point3 <: Point = %v, %v; want true, true", r, ok)
	}
	if r, ok := o.Lookup(types.RelSubtype, p, p3); !ok || r {
		t.Errorf("Point <: Point3 = %v, %v; want false, true", r, ok)
	}
	if r, ok := o.Lookup(types.RelEqual, p, p); !ok || !r {
		t.Error("Point = Point not cached")
	}
	if _, ok := o.Lookup(types.RelSubtype, types.Int, p); ok {
		t.Error("uncached pair answered")
	}
}

func TestPrecomputeReplacesRows(t *testing.T) {
	ctx := context.Background()
	c := openCache(t)
	tbl := loadShapes(t)
	chk := types.NewChecker()
	first, _ := c.Precompute(ctx, tbl, chk)
	second, err := c.Precompute(ctx, tbl, chk)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := c.Count(ctx, tbl, types.Covariant); got != first || second != first {
		t.Errorf("rows after recompute = %d, want %d", got, first)
	}
}

func TestOracleDrivesChecker(t *testing.T) {
	ctx := context.Background()
	c := openCache(t)
	tbl := loadShapes(t)
	if _, err := c.Precompute(ctx, tbl, types.NewChecker()); err != nil {
		t.Fatal(err)
	}
	o, err := c.Oracle(ctx, tbl, types.Covariant)
	if err != nil {
		t.Fatal(err)
	}
	chk := types.NewChecker()
	chk.Oracle = o
	plain := types.NewChecker()
	for _, a := range tbl.Names() {
		ta, _ := tbl.Tag(a)
		for _, b := range tbl.Names() {
			tb, _ := tbl.Tag(b)
			got, err1 := chk.Subtype(ta, tb)
			want, err2 := plain.Subtype(ta, tb)
			if err1 != nil || err2 != nil || got != want {
				t.Errorf("%s <: %s: cached %v, computed %v", a, b, got, want)
			}
		}
	}
}

func TestOracleMissingTable(t *testing.T) {
	c := openCache(t)
	_, err := c.Oracle(context.Background(), loadShapes(t), types.Covariant)
	if !errors.Is(err, ErrNotCached) {
		t.Errorf("err = %v, want ErrNotCached", err)
	}
}

func TestCacheSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rel.db")
	tbl := loadShapes(t)

	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	n, err := c.Precompute(ctx, tbl, types.NewChecker())
	if err != nil {
		t.Fatal(err)
	}
	c.Close()

	c, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	o, err := c.Oracle(ctx, tbl, types.Covariant)
	if err != nil {
		t.Fatal(err)
	}
	if o.Len() != n {
		t.Errorf("reloaded %d rows, want %d", o.Len(), n)
	}
}

func TestPrecomputeCancelled(t *testing.T) {
	c := openCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Precompute(ctx, loadShapes(t), types.NewChecker()); err == nil {
		t.Error("Precompute ignored a cancelled context")
	}
}

const closures = `
tags:
  IntFn:
    kind: function
    args: [int]
    ret: int
  FloatFn:
    kind: function
    args: [float]
    ret: int
`

func TestOracleKeyedByVariance(t *testing.T) {
	ctx := context.Background()
	c := openCache(t)
	tbl, err := tagfile.ParseYAML([]byte(closures))
	if err != nil {
		t.Fatal(err)
	}
	intFn, _ := tbl.Tag("IntFn")
	floatFn, _ := tbl.Tag("FloatFn")

	if _, err := c.Precompute(ctx, tbl, types.NewChecker()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Oracle(ctx, tbl, types.Contravariant); !errors.Is(err, ErrNotCached) {
		t.Fatalf("contravariant oracle err = %v, want ErrNotCached", err)
	}

	contra := types.NewChecker()
	contra.Variance = types.Contravariant
	if _, err := c.Precompute(ctx, tbl, contra); err != nil {
		t.Fatal(err)
	}
	o, err := c.Oracle(ctx, tbl, types.Contravariant)
	if err != nil {
		t.Fatal(err)
	}
	contra.Oracle = o
	if ok, err := contra.Subtype(intFn, floatFn); err != nil || ok {
		t.Errorf("contravariant IntFn <: FloatFn = %v, %v; want false", ok, err)
	}
	if ok, err := contra.Subtype(floatFn, intFn); err != nil || !ok {
		t.Errorf("contravariant FloatFn <: IntFn = %v, %v; want true", ok, err)
	}

	// The covariant rows are still there and still covariant.
	co, err := c.Oracle(ctx, tbl, types.Covariant)
	if err != nil {
		t.Fatal(err)
	}
	if r, ok := co.Lookup(types.RelSubtype, intFn, floatFn); !ok || !r {
		t.Errorf("covariant IntFn <: FloatFn = %v, %v; want true, true", r, ok)
	}
	if n, _ := c.Count(ctx, tbl, types.Covariant); n != 8 {
		t.Errorf("covariant rows = %d, want 8", n)
	}
}
