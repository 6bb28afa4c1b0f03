// Package relcache stores precomputed subtype and equality results for the
// named tags of a tag table in SQLite.
//
// Rows are keyed by the table digest, the checker's argument variance and
// the tag names, so a cache file can hold results for several tables and
// both variance rules, and stale rows are never consulted for a changed
// table. The loaded relation serves as a types.Oracle: the checker
// consults it before running its own algorithm.
package relcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/sjsrt/vm/types"
	"github.com/chazu/sjsrt/vm/types/tagfile"

	_ "modernc.org/sqlite"
)

// ErrNotCached is returned by Oracle when the cache has no rows for a
// table.
var ErrNotCached = errors.New("relcache: table not precomputed")

var log = commonlog.GetLogger("sjsrt.cache")

// Cache is an open relation cache.
type Cache struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens (creating if needed) the cache database at path. ":memory:"
// opens a private in-memory cache.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("relcache: opening database: %w", err)
	}
	// One connection keeps in-memory databases alive and writes ordered.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("relcache: setting busy timeout: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS relations (
		digest   TEXT NOT NULL,
		variance INTEGER NOT NULL,
		sub      TEXT NOT NULL,
		sup      TEXT NOT NULL,
		rel      INTEGER NOT NULL,
		result   INTEGER NOT NULL,
		PRIMARY KEY (digest, variance, sub, sup, rel)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("relcache: creating table: %w", err)
	}
	return &Cache{db: db, path: path}, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Path returns the path the cache was opened with.
func (c *Cache) Path() string { return c.path }

// Precompute decides both relations for every ordered pair of named tags in
// tbl and replaces the table's rows for chk's argument variance. Pairs the checker gives up on (depth
// overflow) are left out. chk should not itself consult this cache. It
// returns the number of rows stored.
func (c *Cache) Precompute(ctx context.Context, tbl *tagfile.Table, chk *types.Checker) (int, error) {
	digest, err := tbl.DigestHex()
	if err != nil {
		return 0, err
	}
	names := tbl.Names()
	variance := int(chk.Variance)

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("relcache: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, "DELETE FROM relations WHERE digest = ? AND variance = ?", digest, variance)
	if err != nil {
		return 0, fmt.Errorf("relcache: clearing rows: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO relations (digest, variance, sub, sup, rel, result) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return 0, fmt.Errorf("relcache: prepare: %w", err)
	}
	defer stmt.Close()

	stored, skipped := 0, 0
	for _, a := range names {
		ta, _ := tbl.Tag(a)
		for _, b := range names {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			tb, _ := tbl.Tag(b)
			for _, rel := range []types.Relation{types.RelSubtype, types.RelEqual} {
				var ok bool
				var err error
				if rel == types.RelSubtype {
					ok, err = chk.Subtype(ta, tb)
				} else {
					ok, err = chk.Equal(ta, tb)
				}
				if errors.Is(err, types.ErrHypothesisOverflow) {
					skipped++
					continue
				} else if err != nil {
					return 0, err
				}
				if _, err := stmt.ExecContext(ctx, digest, variance, a, b, int(rel), ok); err != nil {
					return 0, fmt.Errorf("relcache: storing %s %v %s: %w", a, rel, b, err)
				}
				stored++
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("relcache: commit: %w", err)
	}
	log.Info("precomputed relations",
		"digest", digest,
		"variance", chk.Variance.String(),
		"tags", len(names),
		"stored", stored,
		"skipped", skipped)
	return stored, nil
}

// Count returns the number of rows stored for tbl under variance v.
func (c *Cache) Count(ctx context.Context, tbl *tagfile.Table, v types.Variance) (int, error) {
	digest, err := tbl.DigestHex()
	if err != nil {
		return 0, err
	}
	var n int
	err = c.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM relations WHERE digest = ? AND variance = ?", digest, int(v)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("relcache: counting rows: %w", err)
	}
	return n, nil
}

// Oracle loads the rows for tbl that were computed under variance v. The
// oracle must only drive a checker using the same variance. Rows naming tags
// tbl no longer defines are ignored.
func (c *Cache) Oracle(ctx context.Context, tbl *tagfile.Table, v types.Variance) (*Oracle, error) {
	digest, err := tbl.DigestHex()
	if err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx,
		"SELECT sub, sup, rel, result FROM relations WHERE digest = ? AND variance = ?", digest, int(v))
	if err != nil {
		return nil, fmt.Errorf("relcache: querying relations: %w", err)
	}
	defer rows.Close()

	o := &Oracle{rels: make(map[key]bool)}
	for rows.Next() {
		var sub, sup string
		var rel int
		var result bool
		if err := rows.Scan(&sub, &sup, &rel, &result); err != nil {
			return nil, fmt.Errorf("relcache: scanning row: %w", err)
		}
		a, okA := tbl.Tag(sub)
		b, okB := tbl.Tag(sup)
		if !okA || !okB {
			continue
		}
		o.rels[key{types.Relation(rel), a, b}] = result
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("relcache: reading relations: %w", err)
	}
	if len(o.rels) == 0 {
		return nil, fmt.Errorf("%w (digest %s, %s)", ErrNotCached, digest, v)
	}
	log.Debug("loaded relations", "digest", digest, "variance", v.String(), "rows", len(o.rels))
	return o, nil
}

// ---------------------------------------------------------------------------
// Oracle
// ---------------------------------------------------------------------------

type key struct {
	rel  types.Relation
	a, b *types.Tag
}

// Oracle answers relation queries for the tag nodes of one loaded table.
// It is read-only after loading and safe for concurrent use.
type Oracle struct {
	rels map[key]bool
}

// Lookup implements types.Oracle.
func (o *Oracle) Lookup(rel types.Relation, a, b *types.Tag) (result, ok bool) {
	result, ok = o.rels[key{rel, a, b}]
	return result, ok
}

// Len returns the number of cached results.
func (o *Oracle) Len() int { return len(o.rels) }
