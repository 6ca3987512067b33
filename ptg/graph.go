package ptg

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/tiandiyixian/bytecode-analysis/symbols"
	"github.com/tiandiyixian/bytecode-analysis/tac"
)

// NodeSet is a may-set of abstract nodes.
type NodeSet map[NodeID]struct{}

func newSet(ids ...NodeID) NodeSet {
	s := make(NodeSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s NodeSet) union(other NodeSet) {
	for id := range other {
		s[id] = struct{}{}
	}
}

func setEqual(a, b NodeSet) bool {
	if len(a) != len(b) {
		return false
	}
	ak, bk := maps.Keys(a), maps.Keys(b)
	slices.Sort(ak)
	slices.Sort(bk)
	return slices.Equal(ak, bk)
}

// edgeKey names one field-edge source: a heap node plus a field name.
type edgeKey struct {
	Node  NodeID
	Field string
}

// frame is one entry of the PTG's frame stack: the variable-root map
// as it stood before a newFrame call, and the allocation-site context
// tag that was active, restored verbatim by the matching RestoreFrame.
type frame struct {
	saved    map[tac.Variable]NodeSet
	savedTag string
}

// Graph is one points-to graph: node identity lives in the shared
// NodeIDGen; a Graph only owns the variable-root map, the field-edge
// map, and its frame stack. This is what clone/union copy — the arena
// itself is never duplicated, since its identities must stay
// comparable across every PTG in the run.
type Graph struct {
	gen      *NodeIDGen
	rootMap  map[tac.Variable]NodeSet
	edgeMap  map[edgeKey]NodeSet
	frames   []frame
	frameTag string
}

// New returns an empty PTG rooted in the shared generator gen, with no
// frame pushed (the outermost, "global" frame).
func New(gen *NodeIDGen) *Graph {
	return &Graph{
		gen:     gen,
		rootMap: make(map[tac.Variable]NodeSet),
		edgeMap: make(map[edgeKey]NodeSet),
	}
}

// GetTargets returns the roots of v in the current frame.
func (g *Graph) GetTargets(v tac.Variable) NodeSet {
	return cloneSet(g.rootMap[v])
}

// Allocate returns the node for a fresh object created at offset of
// static type typ, idempotent within the current caller frame (two
// Allocate calls with the same offset/type while frameTag is unchanged
// return the same NodeID).
func (g *Graph) Allocate(offset uint32, typ symbols.TypeRef) NodeID {
	return g.gen.AllocSite(offset, typ, g.frameTag)
}

// ParamEntry returns the node standing for method's idx-th parameter's
// initial value, used to seed a root method's entry PTG.
func (g *Graph) ParamEntry(method symbols.MethodRef, idx int, typ symbols.TypeRef) NodeID {
	return g.gen.ParamEntry(method, idx, typ)
}

// SetRoots replaces v's root set outright (used to seed parameters and
// to bind a fresh allocation's destination).
func (g *Graph) SetRoots(v tac.Variable, ids NodeSet) {
	g.rootMap[v] = cloneSet(ids)
}

// AddRoots unions ids into v's existing root set.
func (g *Graph) AddRoots(v tac.Variable, ids NodeSet) {
	if g.rootMap[v] == nil {
		g.rootMap[v] = make(NodeSet)
	}
	g.rootMap[v].union(ids)
}

// Assign implements the Move transfer: dst's roots become exactly
// src's roots at this program point (flow-sensitive strong update for
// a direct variable-to-variable copy).
func (g *Graph) Assign(dst, src tac.Variable) {
	g.rootMap[dst] = cloneSet(g.rootMap[src])
}

// LoadField implements `dst = obj.field`: dst's roots become the union,
// over every target node of obj, of that node's field edge set.
func (g *Graph) LoadField(dst, obj tac.Variable, field string) {
	result := make(NodeSet)
	for node := range g.rootMap[obj] {
		result.union(g.edgeMap[edgeKey{node, field}])
	}
	g.rootMap[dst] = result
}

// StoreField implements `obj.field = src`: src's roots are unioned into
// the field edge set of every target node of obj (weak update, since
// obj may refer to more than one abstract object).
func (g *Graph) StoreField(obj tac.Variable, field string, src tac.Variable) {
	srcRoots := g.rootMap[src]
	for node := range g.rootMap[obj] {
		key := edgeKey{node, field}
		if g.edgeMap[key] == nil {
			g.edgeMap[key] = make(NodeSet)
		}
		g.edgeMap[key].union(srcRoots)
	}
}

// staticEdgeField is the synthetic field name used to thread a static
// field's current value through the global static node's edge set.
const staticEdgeField = "value"

// StoreStatic implements `Type::field = src`.
func (g *Graph) StoreStatic(typ symbols.TypeRef, field string, src tac.Variable) {
	node := g.gen.GlobalStatic(typ, field)
	key := edgeKey{node, staticEdgeField}
	if g.edgeMap[key] == nil {
		g.edgeMap[key] = make(NodeSet)
	}
	g.edgeMap[key].union(g.rootMap[src])
}

// LoadStatic implements `dst = Type::field`.
func (g *Graph) LoadStatic(dst tac.Variable, typ symbols.TypeRef, field string) {
	node := g.gen.GlobalStatic(typ, field)
	g.rootMap[dst] = cloneSet(g.edgeMap[edgeKey{node, staticEdgeField}])
}

// Clone performs the deep copy required before every propagation: the
// returned Graph shares the generator (node identities must stay
// global) but owns independent root/edge maps and frame stack.
func (g *Graph) Clone() *Graph {
	ng := &Graph{gen: g.gen, frameTag: g.frameTag}
	ng.rootMap = cloneRootMap(g.rootMap)
	ng.edgeMap = cloneEdgeMap(g.edgeMap)
	ng.frames = make([]frame, len(g.frames))
	for i, f := range g.frames {
		ng.frames[i] = frame{saved: cloneRootMap(f.saved), savedTag: f.savedTag}
	}
	return ng
}

// Union merges other's roots and edges into g, per-root and per-edge
// set union. g and other must share the same generator.
func (g *Graph) Union(other *Graph) {
	for v, ids := range other.rootMap {
		g.AddRoots(v, ids)
	}
	for k, ids := range other.edgeMap {
		if g.edgeMap[k] == nil {
			g.edgeMap[k] = make(NodeSet)
		}
		g.edgeMap[k].union(ids)
	}
}

// GraphEquals is the fixed-point criterion: structural equality of the
// root map and the edge map. Frame stacks and frame tags are not
// compared; at processMethodCall's INPUT_PTG check both graphs have
// just had the callee's frame pushed, so only the current frame's roots
// and the shared edges take part.
func (g *Graph) GraphEquals(other *Graph) bool {
	if len(g.rootMap) != len(other.rootMap) || len(g.edgeMap) != len(other.edgeMap) {
		return false
	}
	for v, ids := range g.rootMap {
		if !setEqual(ids, other.rootMap[v]) {
			return false
		}
	}
	for k, ids := range g.edgeMap {
		if !setEqual(ids, other.edgeMap[k]) {
			return false
		}
	}
	return true
}

// NewFrame pushes the current variable-root map and installs a fresh
// one seeded by binding: each callee parameter inherits its caller
// argument's current roots. frameTag identifies this call site for
// Allocate's per-call-site distinction (there is no flow-sensitive
// heap cloning beyond per-call-site frames: this tag is the entirety
// of that context). The returned mark is passed to
// RestoreFrame to pop back to exactly this point.
func (g *Graph) NewFrame(binding map[tac.Variable]tac.Variable, frameTag string) int {
	g.frames = append(g.frames, frame{saved: g.rootMap, savedTag: g.frameTag})
	mark := len(g.frames) - 1

	next := make(map[tac.Variable]NodeSet, len(binding))
	for calleeParam, callerArg := range binding {
		next[calleeParam] = cloneSet(g.rootMap[callerArg])
	}
	g.rootMap = next
	g.frameTag = frameTag
	return mark
}

// RestoreFrame pops back to the frame recorded at mark, then applies
// binding (calleeReturnVar → callerResultVar) to propagate the
// returning frame's result roots into the restored one.
func (g *Graph) RestoreFrame(mark int, binding map[tac.Variable]tac.Variable) {
	exiting := g.rootMap
	f := g.frames[mark]
	g.frames = g.frames[:mark]
	g.rootMap = f.saved
	g.frameTag = f.savedTag

	for calleeVar, callerVar := range binding {
		g.AddRoots(callerVar, exiting[calleeVar])
	}
}

func cloneSet(s NodeSet) NodeSet {
	if s == nil {
		return nil
	}
	return NodeSet(maps.Clone(map[NodeID]struct{}(s)))
}

func cloneRootMap(m map[tac.Variable]NodeSet) map[tac.Variable]NodeSet {
	out := make(map[tac.Variable]NodeSet, len(m))
	for v, ids := range m {
		out[v] = cloneSet(ids)
	}
	return out
}

func cloneEdgeMap(m map[edgeKey]NodeSet) map[edgeKey]NodeSet {
	out := make(map[edgeKey]NodeSet, len(m))
	for k, ids := range m {
		out[k] = cloneSet(ids)
	}
	return out
}
