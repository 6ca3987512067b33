package callgraph

import (
	"github.com/tiandiyixian/bytecode-analysis/pta"
	"github.com/tiandiyixian/bytecode-analysis/ptg"
	"github.com/tiandiyixian/bytecode-analysis/symbols"
	"github.com/tiandiyixian/bytecode-analysis/tac"
)

// Hooks is the three-callback extension surface callers override
// before calling Driver.Analyze.
type Hooks interface {
	// OnReachableMethodFound lifts (if needed), runs the external
	// control-flow/web/type-inference passes, and returns the
	// resulting CFG to cache under Entry.CFG.
	OnReachableMethodFound(method symbols.MethodRef) (pta.ControlFlowGraph, error)
	// OnUnknownMethodFound reports whether an unresolved or external
	// callee should still be processed (with a synthesized parameter
	// list) rather than skipped outright.
	OnUnknownMethodFound(callee symbols.MethodRef) bool
	// ProcessUnknownMethod computes the effect of calling callee when
	// OnUnknownMethodFound approved it.
	ProcessUnknownMethod(callee, caller symbols.MethodRef, call tac.TacInstr, gen *ptg.NodeIDGen, input *ptg.Graph) *ptg.Graph
}
