package ptg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiandiyixian/bytecode-analysis/symbols"
	"github.com/tiandiyixian/bytecode-analysis/tac"
)

type testType struct{ name string }

func (t testType) Kind() symbols.TypeKind { return symbols.KindReference }
func (t testType) String() string         { return t.name }

type testMethod struct{ name string }

func (m testMethod) Name() string                       { return m.name }
func (m testMethod) IsStatic() bool                      { return false }
func (m testMethod) ContainingType() symbols.TypeRef     { return testType{"T"} }
func (m testMethod) Parameters() []symbols.ParamInfo     { return nil }
func (m testMethod) ReturnType() symbols.TypeRef         { return nil }
func (m testMethod) Body() (symbols.MethodBody, bool)    { return symbols.MethodBody{}, false }

var (
	x = tac.Local{Name: "x"}
	y = tac.Local{Name: "y"}
)

func TestAllocateIsIdempotentWithinAFrame(t *testing.T) {
	gen := NewNodeIDGen()
	g := New(gen)
	a := g.Allocate(10, testType{"C"})
	b := g.Allocate(10, testType{"C"})
	assert.Equal(t, a, b)
}

func TestAllocateDiffersAcrossFrames(t *testing.T) {
	gen := NewNodeIDGen()
	g := New(gen)
	outer := g.Allocate(10, testType{"C"})

	g.NewFrame(map[tac.Variable]tac.Variable{}, "call@1")
	inner := g.Allocate(10, testType{"C"})
	assert.NotEqual(t, outer, inner, "same offset under a different frame tag is a distinct node")
}

func TestAssignStrongUpdate(t *testing.T) {
	gen := NewNodeIDGen()
	g := New(gen)
	n := g.Allocate(1, testType{"C"})
	g.SetRoots(x, NodeSet{n: {}})
	g.Assign(y, x)
	assert.Equal(t, NodeSet{n: {}}, g.GetTargets(y))
}

func TestStoreFieldThenLoadField(t *testing.T) {
	gen := NewNodeIDGen()
	g := New(gen)
	obj := g.Allocate(1, testType{"Obj"})
	val := g.Allocate(2, testType{"Val"})
	g.SetRoots(x, NodeSet{obj: {}})
	g.SetRoots(y, NodeSet{val: {}})

	g.StoreField(x, "f", y)

	var dst tac.Variable = tac.Local{Name: "dst"}
	g.LoadField(dst, x, "f")
	assert.Equal(t, NodeSet{val: {}}, g.GetTargets(dst))
}

func TestUnionMergesRootsAndEdges(t *testing.T) {
	gen := NewNodeIDGen()
	a := New(gen)
	b := New(gen)

	n1 := a.Allocate(1, testType{"C"})
	a.SetRoots(x, NodeSet{n1: {}})

	n2 := b.Allocate(2, testType{"C"})
	b.SetRoots(x, NodeSet{n2: {}})

	a.Union(b)
	targets := a.GetTargets(x)
	assert.Len(t, targets, 2)
	_, hasN1 := targets[n1]
	_, hasN2 := targets[n2]
	assert.True(t, hasN1)
	assert.True(t, hasN2)
}

func TestGraphEqualsReflectsStructuralEquality(t *testing.T) {
	gen := NewNodeIDGen()
	a := New(gen)
	b := New(gen)
	assert.True(t, a.GraphEquals(b))

	n := a.Allocate(1, testType{"C"})
	a.SetRoots(x, NodeSet{n: {}})
	assert.False(t, a.GraphEquals(b))

	b.SetRoots(x, NodeSet{n: {}})
	assert.True(t, a.GraphEquals(b))
}

func TestCloneIsIndependentOfOriginal(t *testing.T) {
	gen := NewNodeIDGen()
	g := New(gen)
	n := g.Allocate(1, testType{"C"})
	g.SetRoots(x, NodeSet{n: {}})

	clone := g.Clone()
	clone.SetRoots(y, NodeSet{n: {}})

	assert.Empty(t, g.GetTargets(y))
	assert.NotEmpty(t, clone.GetTargets(y))
}

func TestNewFrameBindsCalleeParamsThenRestoreFramePropagatesResult(t *testing.T) {
	gen := NewNodeIDGen()
	g := New(gen)
	n := g.Allocate(1, testType{"C"})
	callerArg := tac.Local{Name: "callerArg"}
	g.SetRoots(callerArg, NodeSet{n: {}})

	calleeParam := tac.Param{Index: 0}
	mark := g.NewFrame(map[tac.Variable]tac.Variable{calleeParam: callerArg}, "call@7")
	require.Equal(t, NodeSet{n: {}}, g.GetTargets(calleeParam))

	resultNode := g.Allocate(2, testType{"R"})
	var calleeResult tac.Variable = tac.Local{Name: "$result"}
	g.SetRoots(calleeResult, NodeSet{resultNode: {}})

	callerResult := tac.Local{Name: "callerResult"}
	g.RestoreFrame(mark, map[tac.Variable]tac.Variable{calleeResult: callerResult})

	assert.Equal(t, NodeSet{n: {}}, g.GetTargets(callerArg), "caller's own roots survive the frame pop")
	assert.Equal(t, NodeSet{resultNode: {}}, g.GetTargets(callerResult))
	assert.Empty(t, g.GetTargets(calleeParam), "callee-frame variable is gone after restore")
}

func TestParamEntrySharedAcrossGraphsForSameMethod(t *testing.T) {
	gen := NewNodeIDGen()
	g1 := New(gen)
	g2 := New(gen)
	m := testMethod{"M"}
	a := g1.ParamEntry(m, 0, testType{"C"})
	b := g2.ParamEntry(m, 0, testType{"C"})
	assert.Equal(t, a, b, "ParamEntry nodes are interned by the shared arena, not per-graph")
}
