package callgraph

import (
	"github.com/tiandiyixian/bytecode-analysis/pta"
	"github.com/tiandiyixian/bytecode-analysis/ptg"
	"github.com/tiandiyixian/bytecode-analysis/symbols"
)

// Entry is the per-method analysis record: a struct with named, typed
// fields rather than a string-keyed heterogeneous map.
type Entry struct {
	CFG       pta.ControlFlowGraph
	PTA       *pta.Analysis
	PTG       *ptg.Graph
	InputPTG  *ptg.Graph
	OutputPTG *ptg.Graph

	// InProgress is set while this method's PTA is mid-Analyze further
	// up the Go call stack. A call that recurses back into a method
	// with InProgress set must not re-enter that same *pta.Analysis --
	// its inputs/outputs maps are only safe for one in-flight Analyze
	// call at a time.
	InProgress bool
}

// Info is the single-writer per-method analysis store, owned
// exclusively by Driver for the duration of one Analyze call.
type Info struct {
	entries map[symbols.MethodRef]*Entry
}

// NewInfo returns an empty Info.
func NewInfo() *Info {
	return &Info{entries: make(map[symbols.MethodRef]*Entry)}
}

// Entry returns the record for m, creating an empty one on first
// access.
func (i *Info) Entry(m symbols.MethodRef) *Entry {
	e, ok := i.entries[m]
	if !ok {
		e = &Entry{}
		i.entries[m] = e
	}
	return e
}

// Lookup returns the record for m without creating one.
func (i *Info) Lookup(m symbols.MethodRef) (*Entry, bool) {
	e, ok := i.entries[m]
	return e, ok
}

// Snapshot returns each known method's current OutputPTG, keyed by
// method. Driver compares two Snapshots taken around a sweep to detect
// when a recursive cycle has stopped refining.
func (i *Info) Snapshot() map[symbols.MethodRef]*ptg.Graph {
	out := make(map[symbols.MethodRef]*ptg.Graph, len(i.entries))
	for m, e := range i.entries {
		out[m] = e.OutputPTG
	}
	return out
}

// ResetInputMemo clears every entry's cached input summary, forcing
// the next sweep to recompute each reachable method from scratch
// rather than trust a memoized InputPTG that predates a refined
// approximation for a still-recursive callee.
func (i *Info) ResetInputMemo() {
	for _, e := range i.entries {
		e.InputPTG = nil
		e.PTA = nil
	}
}
