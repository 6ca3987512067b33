// Package engine wires the lifter and the interprocedural points-to
// engine together into the one entry point a caller actually drives:
// supply a root method and a symbol model, get back a call graph.
package engine

import (
	"github.com/go-kit/log"

	"github.com/tiandiyixian/bytecode-analysis/callgraph"
	"github.com/tiandiyixian/bytecode-analysis/symbols"
)

// Info is the per-method analysis state accumulated across an Analyze
// run: each reachable method's CFG, its fixed-point input/output PTGs,
// and the Analysis object driving it. It is defined concretely in
// package callgraph, owned by callgraph.Driver, and re-exported here so
// callers needn't import callgraph directly just to read back
// per-method state after Analyze returns.
type Info = callgraph.Info

// Entry is the per-method record within an Info, re-exported for the
// same reason.
type Entry = callgraph.Entry

// Options configures an Engine: a plain struct of tunables passed once
// at construction, not a builder.
type Options struct {
	// LiftCacheCapacity bounds the lifter's per-method TAC cache; 0
	// selects lift.Cache's default.
	LiftCacheCapacity int
	// Platform supplies the primitive TypeRefs numeric conversions
	// lower against.
	Platform symbols.Platform
	// Sources optionally maps local-variable indices to source names;
	// nil falls back to raw metadata names.
	Sources symbols.SourceLocationProvider
	// Logger receives structured diagnostics from both the lifter and
	// the call-graph driver. A nil Logger is replaced with a no-op.
	Logger log.Logger
	// Hooks overrides the three extension callbacks; nil installs
	// DefaultHooks over a lifter built from the other options.
	Hooks callgraph.Hooks
}

// Engine is the top-level façade: one Lifter, one Driver, one run.
type Engine struct {
	driver *callgraph.Driver
}

// New constructs an Engine from opts.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	hooks := opts.Hooks
	if hooks == nil {
		lifter := newLifter(opts, logger)
		hooks = NewDefaultHooks(lifter, logger)
	}

	return &Engine{driver: callgraph.NewDriver(hooks, logger)}
}

// Analyze runs the interprocedural fixed point from root and returns
// the resulting call graph.
func (e *Engine) Analyze(root symbols.MethodRef) (*callgraph.Graph, error) {
	return e.driver.Analyze(root)
}

// Info exposes the per-method analysis records Analyze accumulated,
// for callers that want to inspect a specific method's CFG or final
// PTG after the run.
func (e *Engine) Info() *Info {
	return e.driver.Info
}
