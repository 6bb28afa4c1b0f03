package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/sjsrt/vm"
	"github.com/chazu/sjsrt/vm/types"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "shapes"

[runtime]
conversion-slots = 16
coerce-depth = 64
subtype-depth = 20
arg-stack = 32
arg-variance = "contravariant"

[types]
table = "types/shapes.yaml"

[log]
verbosity = 2
file = "sjsrt.log"

[cache]
path = "/var/cache/rel.db"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Project.Name != "shapes" {
		t.Errorf("project name = %q, want shapes", m.Project.Name)
	}
	if m.Runtime.ConversionSlots != 16 || m.Runtime.CoerceDepth != 64 {
		t.Errorf("runtime = %+v", m.Runtime)
	}
	if got := m.TablePath(); got != filepath.Join(m.Dir, "types", "shapes.yaml") {
		t.Errorf("TablePath() = %q", got)
	}
	if got := m.CachePath(); got != "/var/cache/rel.db" {
		t.Errorf("CachePath() = %q, want absolute path unchanged", got)
	}
	if f := m.LogFile(); f == nil || *f != filepath.Join(m.Dir, "sjsrt.log") {
		t.Errorf("LogFile() = %v", f)
	}

	opts, err := m.RuntimeOptions()
	if err != nil {
		t.Fatalf("RuntimeOptions: %v", err)
	}
	if opts.ConversionSlots != 16 || opts.CoerceDepth != 64 || opts.SubtypeDepth != 20 || opts.ArgStack != 32 {
		t.Errorf("options = %+v", opts)
	}
	if opts.ArgVariance != types.Contravariant {
		t.Errorf("ArgVariance = %v, want contravariant", opts.ArgVariance)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	opts, err := m.RuntimeOptions()
	if err != nil {
		t.Fatal(err)
	}
	def := vm.DefaultOptions()
	if opts.ConversionSlots != def.ConversionSlots || opts.CoerceDepth != def.CoerceDepth ||
		opts.ArgStack != def.ArgStack || opts.ArgVariance != def.ArgVariance {
		t.Errorf("options = %+v, want defaults %+v", opts, def)
	}
	if m.TablePath() != "" {
		t.Errorf("TablePath() = %q, want empty", m.TablePath())
	}
	if m.LogFile() != nil {
		t.Error("LogFile() should be nil by default")
	}
	if !strings.HasSuffix(m.CachePath(), filepath.Join(".sjsrt", "relations.db")) {
		t.Errorf("CachePath() = %q", m.CachePath())
	}
}

func TestLoadManifestInvalid(t *testing.T) {
	tests := []struct {
		name, content, want string
	}{
		{"negative slots", "[runtime]\nconversion-slots = -1\n", "conversion-slots"},
		{"variance", "[runtime]\narg-variance = \"sideways\"\n", "arg-variance"},
		{"verbosity", "[log]\nverbosity = 9\n", "verbosity"},
		{"syntax", "[runtime\n", "parse error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tt.content)
			_, err := Load(dir)
			if err == nil {
				t.Fatal("Load succeeded")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	// Create nested directory structure
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, `[project]
name = "found-project"
`)

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no sjsrt.toml exists")
	}
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
	if p := Default().Resolve("x"); p != "x" {
		t.Errorf("Resolve without Dir = %q, want x", p)
	}
}
