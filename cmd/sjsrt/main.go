// sjsrt CLI - inspects tag tables and exercises the gradual-typing runtime
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"

	"github.com/chazu/sjsrt/manifest"
	"github.com/chazu/sjsrt/vm/types"
	"github.com/chazu/sjsrt/vm/types/relcache"
	"github.com/chazu/sjsrt/vm/types/tagfile"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("sjsrt.cli")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// cli holds what every command needs.
type cli struct {
	out, errOut io.Writer
	m           *manifest.Manifest
	tablePath   string
	cachePath   string
	cached      bool
	color       bool
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sjsrt", flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.Bool("v", false, "Verbose output (debug logging)")
	configDir := fs.String("config", "", "Directory containing sjsrt.toml (default: search upward from .)")
	table := fs.String("table", "", "Tag table (.yaml or .sjt); overrides [types] table")
	cache := fs.String("cache", "", "Relation cache database; overrides [cache] path")
	cached := fs.Bool("cached", false, "Answer check/eq from the relation cache where possible")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: sjsrt [options] <command> [args...]\n\n")
		fmt.Fprintf(stderr, "Commands:\n")
		fmt.Fprintf(stderr, "  check A B         Decide A <: B for tags of the table\n")
		fmt.Fprintf(stderr, "  eq A B            Decide structural equality of A and B\n")
		fmt.Fprintf(stderr, "  dump [names...]   Print tags and the table digest\n")
		fmt.Fprintf(stderr, "  pack OUT          Compile the table to OUT (.sjt)\n")
		fmt.Fprintf(stderr, "  precompute        Fill the relation cache for the table\n")
		fmt.Fprintf(stderr, "  demo              Run coercions on a scratch runtime\n")
		fmt.Fprintf(stderr, "\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  sjsrt -table shapes.yaml check Point3 Point\n")
		fmt.Fprintf(stderr, "  sjsrt -table shapes.yaml pack shapes.sjt\n")
		fmt.Fprintf(stderr, "  sjsrt -table shapes.sjt precompute && sjsrt -cached check Point3 Point\n")
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	m, err := loadManifest(*configDir)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	verbosity := m.Log.Verbosity
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, m.LogFile())

	c := &cli{
		out:       stdout,
		errOut:    stderr,
		m:         m,
		tablePath: m.TablePath(),
		cachePath: m.CachePath(),
		cached:    *cached,
	}
	if f, ok := stdout.(*os.File); ok {
		c.color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	if *table != "" {
		c.tablePath = *table
	}
	if *cache != "" {
		c.cachePath = *cache
	}

	ctx := context.Background()
	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "check", "eq":
		err = c.relate(ctx, cmd, rest)
	case "dump":
		err = c.dump(rest)
	case "pack":
		err = c.pack(rest)
	case "precompute":
		err = c.precompute(ctx)
	case "demo":
		err = c.demo()
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	var failed errFailed
	switch {
	case errors.As(err, &failed):
		return 1
	case err != nil:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// errFailed reports a negative answer that was already printed.
type errFailed struct{}

func (errFailed) Error() string { return "failed" }

func loadManifest(dir string) (*manifest.Manifest, error) {
	if dir != "" {
		return manifest.Load(dir)
	}
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
	}
	return m, nil
}

func (c *cli) table() (*tagfile.Table, error) {
	if c.tablePath == "" {
		return nil, errors.New("no tag table: pass -table or set [types] table in sjsrt.toml")
	}
	tbl, err := tagfile.Load(c.tablePath)
	if err != nil {
		return nil, err
	}
	log.Debug("loaded tag table", "path", c.tablePath, "tags", tbl.Len())
	return tbl, nil
}

func (c *cli) checker(ctx context.Context, tbl *tagfile.Table) (*types.Checker, error) {
	opts, err := c.m.RuntimeOptions()
	if err != nil {
		return nil, err
	}
	chk := types.NewChecker()
	chk.MaxDepth = opts.SubtypeDepth
	chk.Variance = opts.ArgVariance
	if !c.cached {
		return chk, nil
	}
	cache, err := relcache.Open(c.cachePath)
	if err != nil {
		return nil, err
	}
	defer cache.Close()
	o, err := cache.Oracle(ctx, tbl, chk.Variance)
	switch {
	case errors.Is(err, relcache.ErrNotCached):
		log.Warning("relation cache empty for table, computing directly",
			"cache", c.cachePath, "variance", chk.Variance.String())
	case err != nil:
		return nil, err
	default:
		chk.Oracle = o
	}
	return chk, nil
}

func (c *cli) verdict(ok bool) string {
	switch {
	case ok && c.color:
		return "\x1b[32mtrue\x1b[0m"
	case c.color:
		return "\x1b[31mfalse\x1b[0m"
	}
	return fmt.Sprint(ok)
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func (c *cli) relate(ctx context.Context, cmd string, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%s needs two tag names", cmd)
	}
	tbl, err := c.table()
	if err != nil {
		return err
	}
	a, ok := tbl.Tag(args[0])
	if !ok {
		return fmt.Errorf("unknown tag %q", args[0])
	}
	b, ok := tbl.Tag(args[1])
	if !ok {
		return fmt.Errorf("unknown tag %q", args[1])
	}
	chk, err := c.checker(ctx, tbl)
	if err != nil {
		return err
	}

	var result bool
	op := "<:"
	if cmd == "eq" {
		op = "="
		result, err = chk.Equal(a, b)
	} else {
		result, err = chk.Subtype(a, b)
	}
	if err != nil {
		return fmt.Errorf("%s %s %s: %w", args[0], op, args[1], err)
	}
	fmt.Fprintf(c.out, "%s %s %s: %s\n", args[0], op, args[1], c.verdict(result))
	if !result {
		return errFailed{}
	}
	return nil
}

func (c *cli) dump(names []string) error {
	tbl, err := c.table()
	if err != nil {
		return err
	}
	digest, err := tbl.DigestHex()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "# %s\n", filepath.Base(c.tablePath))
	fmt.Fprintf(c.out, "# digest %s\n", digest)
	fmt.Fprintf(c.out, "# %d properties, %d tags\n", len(tbl.Props()), tbl.Len())
	if len(names) == 0 {
		names = tbl.Names()
	}
	for _, name := range names {
		t, ok := tbl.Tag(name)
		if !ok {
			return fmt.Errorf("unknown tag %q", name)
		}
		fmt.Fprintf(c.out, "%s = %s\n", name, tbl.Format(t))
	}
	return nil
}

func (c *cli) pack(args []string) error {
	if len(args) != 1 {
		return errors.New("pack needs an output path")
	}
	tbl, err := c.table()
	if err != nil {
		return err
	}
	if err := tbl.Save(args[0]); err != nil {
		return err
	}
	digest, _ := tbl.DigestHex()
	fmt.Fprintf(c.out, "wrote %s (%d tags, digest %s)\n", args[0], tbl.Len(), digest[:12])
	return nil
}

func (c *cli) precompute(ctx context.Context) error {
	tbl, err := c.table()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(c.cachePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating cache directory: %w", err)
		}
	}
	cache, err := relcache.Open(c.cachePath)
	if err != nil {
		return err
	}
	defer cache.Close()

	saved := c.cached
	c.cached = false
	chk, err := c.checker(ctx, tbl)
	c.cached = saved
	if err != nil {
		return err
	}
	n, err := cache.Precompute(ctx, tbl, chk)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "stored %d relations for %d tags in %s\n", n, tbl.Len(), c.cachePath)
	return nil
}
