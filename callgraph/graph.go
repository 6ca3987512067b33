// Package callgraph implements the interprocedural analysis driver: a
// worklist fixed point over a growing call graph, devirtualizing calls
// against the current points-to graph and re-analyzing a callee
// whenever its input PTG strictly grows. A call site is keyed by
// caller plus label, resolving to a set of callee nodes, with
// per-call-site frame binding driving a per-method online fixed point
// rather than whole-program offline constraint generation.
package callgraph

import "github.com/tiandiyixian/bytecode-analysis/symbols"

// Site identifies one call instruction: the method it appears in, and
// its offset within that method, stable and unique as a call-site
// label.
type Site struct {
	Caller symbols.MethodRef
	Label  uint32
}

// Graph is the call graph: method nodes, and edges from a call site to
// every method it may invoke. Edges are only ever added, never
// removed or rewritten.
type Graph struct {
	methods map[symbols.MethodRef]struct{}
	edges   map[Site]map[symbols.MethodRef]struct{}
}

// NewGraph returns an empty call graph.
func NewGraph() *Graph {
	return &Graph{
		methods: make(map[symbols.MethodRef]struct{}),
		edges:   make(map[Site]map[symbols.MethodRef]struct{}),
	}
}

// AddMethod registers m as a node, a no-op if already present.
func (g *Graph) AddMethod(m symbols.MethodRef) {
	g.methods[m] = struct{}{}
}

// AddEdge records that site may invoke callee. Monotone: calling this
// twice with the same arguments leaves the graph unchanged.
func (g *Graph) AddEdge(site Site, callee symbols.MethodRef) {
	g.AddMethod(site.Caller)
	g.AddMethod(callee)
	if g.edges[site] == nil {
		g.edges[site] = make(map[symbols.MethodRef]struct{})
	}
	g.edges[site][callee] = struct{}{}
}

// Callees returns every method site may invoke, per the edges recorded
// so far.
func (g *Graph) Callees(site Site) []symbols.MethodRef {
	out := make([]symbols.MethodRef, 0, len(g.edges[site]))
	for m := range g.edges[site] {
		out = append(out, m)
	}
	return out
}

// Methods returns every node in the graph.
func (g *Graph) Methods() []symbols.MethodRef {
	out := make([]symbols.MethodRef, 0, len(g.methods))
	for m := range g.methods {
		out = append(out, m)
	}
	return out
}

// EdgeCount reports the total number of (site, callee) pairs recorded,
// used by tests to observe monotonicity directly.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, callees := range g.edges {
		n += len(callees)
	}
	return n
}
