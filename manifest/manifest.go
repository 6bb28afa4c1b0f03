// Package manifest handles sjsrt.toml runtime configuration.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/sjsrt/vm"
	"github.com/chazu/sjsrt/vm/types"
)

// FileName is the name of the configuration file.
const FileName = "sjsrt.toml"

// Manifest represents an sjsrt.toml configuration.
type Manifest struct {
	Project Project       `toml:"project"`
	Runtime RuntimeConfig `toml:"runtime"`
	Types   TypesConfig   `toml:"types"`
	Log     LogConfig     `toml:"log"`
	Cache   CacheConfig   `toml:"cache"`

	// Dir is the directory containing the sjsrt.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name string `toml:"name"`
}

// RuntimeConfig sets the limits of a vm.Runtime. Zero values take the
// defaults of vm.DefaultOptions.
type RuntimeConfig struct {
	ConversionSlots int    `toml:"conversion-slots"`
	CoerceDepth     int    `toml:"coerce-depth"`
	SubtypeDepth    int    `toml:"subtype-depth"`
	ArgStack        int    `toml:"arg-stack"`
	ArgVariance     string `toml:"arg-variance"`
}

// TypesConfig locates the tag table.
type TypesConfig struct {
	Table string `toml:"table"`
}

// LogConfig configures logging.
// Verbosity 0 logs notices and worse, 1 adds info, 2 adds debug; negative
// values silence levels down to -4 (nothing).
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// CacheConfig locates the relation cache.
type CacheConfig struct {
	Path string `toml:"path"`
}

// Default returns the configuration used when no sjsrt.toml exists.
func Default() *Manifest {
	opts := vm.DefaultOptions()
	return &Manifest{
		Runtime: RuntimeConfig{
			ConversionSlots: opts.ConversionSlots,
			CoerceDepth:     opts.CoerceDepth,
			SubtypeDepth:    opts.SubtypeDepth,
			ArgStack:        opts.ArgStack,
			ArgVariance:     opts.ArgVariance.String(),
		},
		Cache: CacheConfig{Path: filepath.Join(".sjsrt", "relations.db")},
	}
}

// Load parses a sjsrt.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m := Default()
	if _, err := toml.Decode(string(data), m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find a sjsrt.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Validate checks the configured limits.
func (m *Manifest) Validate() error {
	var errs []error
	r := m.Runtime
	for _, lim := range []struct {
		name string
		n    int
	}{
		{"conversion-slots", r.ConversionSlots},
		{"coerce-depth", r.CoerceDepth},
		{"subtype-depth", r.SubtypeDepth},
		{"arg-stack", r.ArgStack},
	} {
		if lim.n < 0 {
			errs = append(errs, fmt.Errorf("runtime.%s must not be negative (got %d)", lim.name, lim.n))
		}
	}
	if _, err := types.ParseVariance(r.ArgVariance); err != nil {
		errs = append(errs, fmt.Errorf("runtime.arg-variance: %w", err))
	}
	if m.Log.Verbosity < -4 || m.Log.Verbosity > 2 {
		errs = append(errs, fmt.Errorf("log.verbosity must be -4..2 (got %d)", m.Log.Verbosity))
	}
	return errors.Join(errs...)
}

// RuntimeOptions converts the [runtime] section to vm.Options.
func (m *Manifest) RuntimeOptions() (vm.Options, error) {
	opts := vm.DefaultOptions()
	r := m.Runtime
	if r.ConversionSlots > 0 {
		opts.ConversionSlots = r.ConversionSlots
	}
	if r.CoerceDepth > 0 {
		opts.CoerceDepth = r.CoerceDepth
	}
	if r.SubtypeDepth > 0 {
		opts.SubtypeDepth = r.SubtypeDepth
	}
	if r.ArgStack > 0 {
		opts.ArgStack = r.ArgStack
	}
	v, err := types.ParseVariance(r.ArgVariance)
	if err != nil {
		return opts, err
	}
	opts.ArgVariance = v
	return opts, nil
}

// Resolve returns p relative to the manifest directory unless it is
// already absolute or empty.
func (m *Manifest) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// TablePath returns the path of the tag table, or "" if none is set.
func (m *Manifest) TablePath() string { return m.Resolve(m.Types.Table) }

// CachePath returns the path of the relation cache.
func (m *Manifest) CachePath() string { return m.Resolve(m.Cache.Path) }

// LogFile returns the log file path, or nil to log to stderr.
func (m *Manifest) LogFile() *string {
	if m.Log.File == "" {
		return nil
	}
	p := m.Resolve(m.Log.File)
	return &p
}
