// Package ptg implements a points-to graph: an arena of abstract heap
// nodes plus two side tables (variable roots, field edges) and a frame
// stack for per-call-site variable scoping.
//
// The arena shape (a flat node slice indexed by id, interned by key)
// supports a flow-sensitive solve rather than an offline Andersen-style
// one: this graph is built incrementally per method, and its node
// identities are shared globally across the whole interprocedural run
// through NodeIDGen so that allocation-site nodes discovered from two
// different PTGs for the same call still compare equal.
package ptg

import "github.com/tiandiyixian/bytecode-analysis/symbols"

// NodeID indexes into a NodeIDGen's arena. The zero value is always the
// null node.
type NodeID int

// NodeKind discriminates the four node shapes of the NodeId disjoint
// union.
type NodeKind int

const (
	NullNode NodeKind = iota
	ParamEntryNode
	AllocSiteNode
	GlobalStaticNode
)

// NodeData describes one interned node. Only the fields relevant to
// Kind are meaningful.
type NodeData struct {
	Kind       NodeKind
	Method     symbols.MethodRef // ParamEntryNode
	ParamIndex int               // ParamEntryNode
	SiteOffset uint32            // AllocSiteNode
	FrameTag   string            // AllocSiteNode: distinguishes per-call-site frames
	FieldName  string            // GlobalStaticNode
	Type       symbols.TypeRef   // ParamEntryNode, AllocSiteNode, GlobalStaticNode
}

// nodeKey is the comparable interning key. symbols.MethodRef and
// symbols.TypeRef implementations are documented as comparable, so a
// plain struct works as a map key.
type nodeKey struct {
	kind       NodeKind
	method     symbols.MethodRef
	paramIndex int
	siteOffset uint32
	frameTag   string
	field      string
	typ        symbols.TypeRef
}

// NodeIDGen is the single shared arena for one interprocedural run.
// Every ptg.Graph produced during an analyze() call references the
// same generator, so allocate() calls
// made from unrelated PTGs for the same (site, type, frame) agree on
// the NodeID -- the property union/graphEquals depend on.
type NodeIDGen struct {
	nodes []NodeData
	index map[nodeKey]NodeID
}

// NewNodeIDGen returns a generator pre-seeded with the null node at id 0.
func NewNodeIDGen() *NodeIDGen {
	g := &NodeIDGen{index: make(map[nodeKey]NodeID)}
	g.intern(nodeKey{kind: NullNode})
	return g
}

// Null returns the singleton null node.
func (g *NodeIDGen) Null() NodeID { return 0 }

// ParamEntry interns the node representing method's idx-th formal
// parameter's initial abstract value.
func (g *NodeIDGen) ParamEntry(method symbols.MethodRef, idx int, typ symbols.TypeRef) NodeID {
	return g.intern(nodeKey{kind: ParamEntryNode, method: method, paramIndex: idx, typ: typ})
}

// AllocSite interns the node for one allocation instruction executing
// within the call-site context identified by frameTag.
func (g *NodeIDGen) AllocSite(offset uint32, typ symbols.TypeRef, frameTag string) NodeID {
	return g.intern(nodeKey{kind: AllocSiteNode, siteOffset: offset, typ: typ, frameTag: frameTag})
}

// GlobalStatic interns the single node representing the given static
// field, shared by every frame.
func (g *NodeIDGen) GlobalStatic(typ symbols.TypeRef, field string) NodeID {
	return g.intern(nodeKey{kind: GlobalStaticNode, typ: typ, field: field})
}

// Describe returns the metadata recorded for id.
func (g *NodeIDGen) Describe(id NodeID) NodeData { return g.nodes[id] }

func (g *NodeIDGen) intern(k nodeKey) NodeID {
	if id, ok := g.index[k]; ok {
		return id
	}
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, NodeData{
		Kind: k.kind, Method: k.method, ParamIndex: k.paramIndex,
		SiteOffset: k.siteOffset, FrameTag: k.frameTag, FieldName: k.field, Type: k.typ,
	})
	g.index[k] = id
	return id
}
