package engine

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/tiandiyixian/bytecode-analysis/lift"
	"github.com/tiandiyixian/bytecode-analysis/pta"
	"github.com/tiandiyixian/bytecode-analysis/ptg"
	"github.com/tiandiyixian/bytecode-analysis/symbols"
	"github.com/tiandiyixian/bytecode-analysis/tac"
)

// DefaultHooks implements callgraph.Hooks with the conservative default
// behavior for the three callbacks: lift and build a CFG for every
// reachable method, never opt an unknown callee in, and treat an
// opted-in unknown callee's effect as identity.
type DefaultHooks struct {
	Lifter *lift.Lifter
	Logger log.Logger
}

// NewDefaultHooks returns hooks backed by lifter. A nil logger becomes
// a no-op logger.
func NewDefaultHooks(lifter *lift.Lifter, logger log.Logger) *DefaultHooks {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &DefaultHooks{Lifter: lifter, Logger: logger}
}

func newLifter(opts Options, logger log.Logger) *lift.Lifter {
	l := lift.NewLifter(opts.LiftCacheCapacity, opts.Platform, logger)
	l.Sources = opts.Sources
	return l
}

// OnReachableMethodFound lifts method (from cache, if a previous
// Analyze already lifted it) and builds the CFG the points-to engine
// drives over: a CFG built straight from the lifted TAC's own branch
// targets, with no additional inference.
func (h *DefaultHooks) OnReachableMethodFound(method symbols.MethodRef) (pta.ControlFlowGraph, error) {
	res, err := h.Lifter.Lift(method)
	if err != nil {
		return nil, errors.Wrapf(err, "lifting %s", method.Name())
	}
	for _, d := range res.Diagnostics {
		level.Warn(h.Logger).Log("msg", "lift diagnostic", "method", method.Name(),
			"offset", d.Offset, "kind", d.Kind, "detail", d.Message)
	}
	return buildCFG(res.Body.Instrs), nil
}

// OnUnknownMethodFound defaults to false, so unknown callees are
// skipped rather than approximated.
func (h *DefaultHooks) OnUnknownMethodFound(callee symbols.MethodRef) bool {
	return false
}

// ProcessUnknownMethod defaults to identity. It is only reached when a
// caller overrides OnUnknownMethodFound to opt a callee in without also
// overriding this method.
func (h *DefaultHooks) ProcessUnknownMethod(callee, caller symbols.MethodRef, call tac.TacInstr, gen *ptg.NodeIDGen, input *ptg.Graph) *ptg.Graph {
	return input
}
