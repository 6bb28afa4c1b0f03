// Package tagfile reads and writes tables of named type tags.
//
// A table has two parts: the property names of a program, where the index
// of a name is its PropID, and a set of named tags. Named tags may refer to
// each other and to themselves, so a table can describe recursive types.
//
// Tables are authored in YAML and compiled to canonical CBOR. The SHA-256
// of the compiled form is the table's digest; it identifies the table in
// the relation cache.
package tagfile

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/chazu/sjsrt/vm/types"
)

// ErrUnknownFormat is returned by Load for files with an unrecognised
// extension.
var ErrUnknownFormat = errors.New("tagfile: unknown file format")

// Table is a set of named tags over one property table.
type Table struct {
	props   []string
	propIDs map[string]types.PropID
	tags    map[string]*types.Tag
}

// New returns an empty table with the given property names interned in
// order.
func New(props ...string) *Table {
	t := &Table{
		propIDs: make(map[string]types.PropID),
		tags:    make(map[string]*types.Tag),
	}
	for _, p := range props {
		t.Intern(p)
	}
	return t
}

// Intern returns the PropID for name, adding it if needed.
func (t *Table) Intern(name string) types.PropID {
	if id, ok := t.propIDs[name]; ok {
		return id
	}
	id := types.PropID(len(t.props))
	t.props = append(t.props, name)
	t.propIDs[name] = id
	return id
}

// PropID returns the id of a property name.
func (t *Table) PropID(name string) (types.PropID, bool) {
	id, ok := t.propIDs[name]
	return id, ok
}

// PropName returns the name of id, or "" if the table has no such id.
func (t *Table) PropName(id types.PropID) string {
	if int(id) < len(t.props) {
		return t.props[id]
	}
	return ""
}

// Props returns the property names in id order.
func (t *Table) Props() []string {
	return slices.Clone(t.props)
}

// Define adds a named tag. Names are unique and may not shadow a
// primitive type name.
func (t *Table) Define(name string, tag *types.Tag) error {
	if name == "" {
		return errors.New("tagfile: empty tag name")
	}
	if primitiveByName(name) != nil {
		return fmt.Errorf("tagfile: %q is a primitive type name", name)
	}
	if _, ok := t.tags[name]; ok {
		return fmt.Errorf("tagfile: tag %q defined twice", name)
	}
	if tag == nil {
		return fmt.Errorf("tagfile: tag %q is nil", name)
	}
	t.tags[name] = tag
	return nil
}

// Tag returns a named tag. Primitive type names resolve to the shared
// primitive tags.
func (t *Table) Tag(name string) (*types.Tag, bool) {
	if p := primitiveByName(name); p != nil {
		return p, true
	}
	tag, ok := t.tags[name]
	return tag, ok
}

// Names returns the defined tag names, sorted.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.tags))
	for n := range t.tags {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of named tags.
func (t *Table) Len() int { return len(t.tags) }

// Format renders tag with this table's property names.
func (t *Table) Format(tag *types.Tag) string {
	return types.Format(tag, t.PropName)
}

// Digest returns the SHA-256 of the table's compiled form.
func (t *Table) Digest() ([32]byte, error) {
	data, err := t.Marshal()
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

// DigestHex returns Digest as a lower-case hex string.
func (t *Table) DigestHex() (string, error) {
	d, err := t.Digest()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(d[:]), nil
}

// ---------------------------------------------------------------------------
// Files
// ---------------------------------------------------------------------------

// Load reads a table from path. Files ending in .yaml or .yml are parsed as
// the authoring format; .cbor and .sjt files as the compiled format.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tagfile: %w", err)
	}
	var tbl *Table
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		tbl, err = ParseYAML(data)
	case ".cbor", ".sjt":
		tbl, err = Unmarshal(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tbl, nil
}

// Save writes the compiled form of the table to path.
func (t *Table) Save(path string) error {
	data, err := t.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("tagfile: %w", err)
	}
	return nil
}

func primitiveByName(name string) *types.Tag {
	switch name {
	case "int":
		return types.Int
	case "float":
		return types.Float
	case "bool":
		return types.Bool
	case "string":
		return types.String
	case "void":
		return types.Void
	case "top":
		return types.Top
	}
	return nil
}
