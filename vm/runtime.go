package vm

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/sjsrt/vm/types"
)

// Options configures a Runtime.
type Options struct {
	// ConversionSlots is the number of fixed slots given to untyped objects,
	// and so the most properties a migration can place.
	ConversionSlots int
	// CoerceDepth bounds nested coercions.
	CoerceDepth int
	// SubtypeDepth bounds nested subtyping hypotheses.
	SubtypeDepth int
	// ArgStack is the capacity of the untyped argument stack.
	ArgStack int
	// ArgVariance selects how closure argument types are compared.
	ArgVariance types.Variance
	// Oracle, if set, answers subtyping queries from precomputed results.
	Oracle types.Oracle
	// Props is the property name table. A fresh table is created if nil.
	Props *PropTable
}

// DefaultOptions returns the standard limits.
func DefaultOptions() Options {
	return Options{
		ConversionSlots: 10,
		CoerceDepth:     128,
		SubtypeDepth:    types.DefaultMaxDepth,
		ArgStack:        100,
		ArgVariance:     types.Covariant,
	}
}

// Runtime holds all mutable state of one execution: the heap, the untyped
// calling convention registers and the fail-stop flag. A Runtime is not
// safe for concurrent use; independent Runtimes may run in parallel.
type Runtime struct {
	opts    Options
	heap    *Heap
	props   *PropTable
	checker *types.Checker

	session string
	log     commonlog.Logger

	// fail-stop flag, set by the first type violation and never cleared
	dirty bool

	args       []Value
	lastReturn Value

	depth int // nested coercions in progress

	literalLayouts map[*types.Tag]*Layout
}

// New creates a runtime. Zero option fields take their defaults.
func New(opts Options) *Runtime {
	def := DefaultOptions()
	if opts.ConversionSlots <= 0 {
		opts.ConversionSlots = def.ConversionSlots
	}
	if opts.CoerceDepth <= 0 {
		opts.CoerceDepth = def.CoerceDepth
	}
	if opts.SubtypeDepth <= 0 {
		opts.SubtypeDepth = def.SubtypeDepth
	}
	if opts.ArgStack <= 0 {
		opts.ArgStack = def.ArgStack
	}
	if opts.Props == nil {
		opts.Props = NewPropTable()
	}

	rt := &Runtime{
		opts:  opts,
		heap:  NewHeap(),
		props: opts.Props,
		checker: &types.Checker{
			MaxDepth: opts.SubtypeDepth,
			Variance: opts.ArgVariance,
			Oracle:   opts.Oracle,
		},
		session:        uuid.New().String(),
		log:            commonlog.GetLogger("sjsrt.coerce"),
		args:           make([]Value, 0, opts.ArgStack),
		lastReturn:     Undefined,
		literalLayouts: make(map[*types.Tag]*Layout),
	}
	commonlog.GetLogger("sjsrt.heap").Debug("runtime created",
		"session", rt.session,
		"conversion-slots", opts.ConversionSlots,
		"arg-variance", opts.ArgVariance.String())
	return rt
}

// Options returns the effective options.
func (rt *Runtime) Options() Options { return rt.opts }

// Heap returns the runtime's record registry.
func (rt *Runtime) Heap() *Heap { return rt.heap }

// Props returns the property name table.
func (rt *Runtime) Props() *PropTable { return rt.props }

// Checker returns the subtyping engine used by coercions.
func (rt *Runtime) Checker() *types.Checker { return rt.checker }

// Session returns the id that tags this runtime's log lines.
func (rt *Runtime) Session() string { return rt.session }

// Dirty reports whether a type violation has occurred. Once set it stays
// set: typed code can no longer rely on its invariants.
func (rt *Runtime) Dirty() bool { return rt.dirty }

func (rt *Runtime) propName(id types.PropID) string {
	name := rt.props.Name(id)
	if name == "" {
		panic(fmt.Sprintf("vm: unknown property id %d", id))
	}
	return name
}

// FormatTag renders t with property names from the runtime's table.
func (rt *Runtime) FormatTag(t *types.Tag) string {
	return types.Format(t, rt.props.Name)
}
