package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiandiyixian/bytecode-analysis/symbols"
	"github.com/tiandiyixian/bytecode-analysis/tac"
)

type engType struct{ name string }

func (t engType) Kind() symbols.TypeKind { return symbols.KindReference }
func (t engType) String() string         { return t.name }

// engMethod is a comparable symbols.MethodRef test double: Body is
// held by pointer so that the struct itself, and not just its fields,
// stays comparable (required since it's used as a map key throughout
// the lift cache and the callgraph Info table).
type engMethod struct {
	name       string
	static     bool
	paramCount int
	ret        symbols.TypeRef
	body       *symbols.MethodBody
}

func (m engMethod) Name() string                   { return m.name }
func (m engMethod) IsStatic() bool                  { return m.static }
func (m engMethod) ContainingType() symbols.TypeRef { return engType{"T"} }
func (m engMethod) ReturnType() symbols.TypeRef     { return m.ret }

func (m engMethod) Parameters() []symbols.ParamInfo {
	out := make([]symbols.ParamInfo, m.paramCount)
	for i := range out {
		out[i] = symbols.ParamInfo{Index: i, Type: engType{"int"}}
	}
	return out
}

func (m engMethod) Body() (symbols.MethodBody, bool) {
	if m.body == nil {
		return symbols.MethodBody{}, false
	}
	return *m.body, true
}

func TestEngineAnalyzeLiftsAndFollowsADirectCall(t *testing.T) {
	calleeBody := &symbols.MethodBody{MaxStack: 1, Operations: []symbols.RawOp{{Offset: 0, Opcode: symbols.OpRet}}}
	callee := engMethod{name: "Callee", static: true, body: calleeBody}

	rootBody := &symbols.MethodBody{
		MaxStack: 1,
		Operations: []symbols.RawOp{
			{Offset: 0, Opcode: symbols.OpCall, Operand: symbols.OpValue{Kind: symbols.ValMethodRef, Method: callee}},
			{Offset: 1, Opcode: symbols.OpRet},
		},
	}
	root := engMethod{name: "Root", static: true, body: rootBody}

	e := New(Options{})
	g, err := e.Analyze(root)
	require.NoError(t, err)

	assert.Contains(t, g.Methods(), symbols.MethodRef(root))
	assert.Contains(t, g.Methods(), symbols.MethodRef(callee))

	entry, ok := e.Info().Lookup(callee)
	require.True(t, ok, "the called method reaches the interprocedural fixed point and gets an Info entry")
	assert.NotNil(t, entry.OutputPTG)
}

func TestEngineDefaultHooksSkipUnknownCallees(t *testing.T) {
	external := engMethod{name: "External.M", static: true} // no body

	rootBody := &symbols.MethodBody{
		MaxStack: 1,
		Operations: []symbols.RawOp{
			{Offset: 0, Opcode: symbols.OpCall, Operand: symbols.OpValue{Kind: symbols.ValMethodRef, Method: external}},
			{Offset: 1, Opcode: symbols.OpRet},
		},
	}
	root := engMethod{name: "Root", static: true, body: rootBody}

	e := New(Options{})
	g, err := e.Analyze(root)
	require.NoError(t, err)

	assert.Contains(t, g.Methods(), symbols.MethodRef(external), "the static edge is recorded even though the callee is skipped")
	_, ok := e.Info().Lookup(external)
	assert.False(t, ok, "DefaultHooks.OnUnknownMethodFound defaults to false, so no Info entry is produced")
}

func TestBuildCFGSingleBlockForACallFollowedByReturn(t *testing.T) {
	instrs := []tac.TacInstr{
		tac.Call{Base: tac.At(0), Callee: engMethod{name: "Callee", static: true}},
		tac.Return{Base: tac.At(1)},
	}
	cfg := buildCFG(instrs)
	require.Len(t, cfg.Blocks(), 1, "a call does not end a basic block")
	assert.Empty(t, cfg.Successors(cfg.Entry()))
}

func TestBuildCFGSplitsAtBranchTargetAndFallThrough(t *testing.T) {
	instrs := []tac.TacInstr{
		tac.CondBranch{Base: tac.At(0), Target: 5},
		tac.Nop{Base: tac.At(1)},
		tac.Return{Base: tac.At(2)},
		tac.Nop{Base: tac.At(5)},
		tac.Return{Base: tac.At(6)},
	}
	cfg := buildCFG(instrs)
	require.Len(t, cfg.Blocks(), 3, "entry, its fall-through, and the branch target each get their own block")
	assert.Len(t, cfg.Successors(cfg.Entry()), 2, "CondBranch both falls through and branches")
}
