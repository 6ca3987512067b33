package lift

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

// fakeMethod is a comparable symbols.MethodRef test double. Body is
// held by pointer rather than by value so that fakeMethod itself stays
// comparable (a MethodBody's Operations slice is not), matching the
// interning the lru cache and the Info table both rely on.
type fakeMethod struct {
	name       string
	static     bool
	paramCount int
	ret        symbols.TypeRef
	body       *symbols.MethodBody
}

func (m fakeMethod) Name() string                   { return m.name }
func (m fakeMethod) IsStatic() bool                  { return m.static }
func (m fakeMethod) ContainingType() symbols.TypeRef { return testType{"T"} }
func (m fakeMethod) ReturnType() symbols.TypeRef     { return m.ret }

func (m fakeMethod) Parameters() []symbols.ParamInfo {
	out := make([]symbols.ParamInfo, m.paramCount)
	for i := range out {
		out[i] = symbols.ParamInfo{Index: i, Type: testType{"int"}}
	}
	return out
}

func (m fakeMethod) Body() (symbols.MethodBody, bool) {
	if m.body == nil {
		return symbols.MethodBody{}, false
	}
	return *m.body, true
}

func ldarg(off uint32, idx int) symbols.RawOp {
	return symbols.RawOp{Offset: off, Opcode: symbols.OpLdarg, Operand: symbols.OpValue{Kind: symbols.ValParamRef, ParamIndex: idx}}
}

func add(off uint32) symbols.RawOp {
	return symbols.RawOp{Offset: off, Opcode: symbols.OpAdd}
}

func ret(off uint32) symbols.RawOp {
	return symbols.RawOp{Offset: off, Opcode: symbols.OpRet}
}

func platform() symbols.Platform {
	return symbols.Platform{
		Int8:    testType{"int8"},
		Int32:   testType{"int32"},
		Float64: testType{"float64"},
	}
}

func TestLiftStraightLineArithmetic(t *testing.T) {
	body := &symbols.MethodBody{
		MaxStack: 2,
		Operations: []symbols.RawOp{
			ldarg(0, 0), ldarg(1, 1), add(2), ret(3),
		},
	}
	method := fakeMethod{name: "Add", static: true, paramCount: 2, ret: testType{"int32"}, body: body}

	l := NewLifter(0, platform(), nil)
	res, err := l.Lift(method)
	require.NoError(t, err)
	require.Len(t, res.Body.Instrs, 4)

	_, isLoad0 := res.Body.Instrs[0].(tac.Load)
	_, isLoad1 := res.Body.Instrs[1].(tac.Load)
	binop, isBinOp := res.Body.Instrs[2].(tac.BinOp)
	_, isReturn := res.Body.Instrs[3].(tac.Return)
	assert.True(t, isLoad0)
	assert.True(t, isLoad1)
	require.True(t, isBinOp)
	assert.Equal(t, tac.Add, binop.Op)
	assert.True(t, isReturn)

	assert.True(t, res.Body.Has(tac.Param{Index: 0}))
	assert.True(t, res.Body.Has(tac.Param{Index: 1}))
}

func TestLiftIsIdempotentAcrossRepeatedCalls(t *testing.T) {
	body := &symbols.MethodBody{
		MaxStack:   1,
		Operations: []symbols.RawOp{ret(0)},
	}
	method := fakeMethod{name: "Noop", static: true, body: body}

	l := NewLifter(0, platform(), nil)
	first, err := l.Lift(method)
	require.NoError(t, err)
	second, err := l.Lift(method)
	require.NoError(t, err)

	assert.Same(t, first.Body, second.Body, "a cache hit returns the exact same MethodBody, not a recomputed equal one")
	assert.Empty(t, second.Diagnostics, "a cache hit never re-runs symbolic execution, so it has nothing to report")
}

func TestLiftBranchSplitsIntoTwoReturningBlocks(t *testing.T) {
	// 0: ldarg 0 ; 1: brtrue -> 4 ; 2: ldarg 0 ; 3: ret ; 4: ldarg 1 ; 5: ret
	body := &symbols.MethodBody{
		MaxStack: 1,
		Operations: []symbols.RawOp{
			ldarg(0, 0),
			{Offset: 1, Opcode: symbols.OpBrtrue, Operand: symbols.OpValue{Kind: symbols.ValBranchTarget, BranchTarget: 4}},
			ldarg(2, 0),
			ret(3),
			ldarg(4, 1),
			ret(5),
		},
	}
	method := fakeMethod{name: "Branchy", static: true, paramCount: 2, ret: testType{"int32"}, body: body}

	l := NewLifter(0, platform(), nil)
	res, err := l.Lift(method)
	require.NoError(t, err)

	returns := 0
	for _, in := range res.Body.Instrs {
		if _, ok := in.(tac.Return); ok {
			returns++
		}
	}
	assert.Equal(t, 2, returns, "both arms of the conditional lift to their own Return")
}

func TestLiftStackUnderflowIsFatal(t *testing.T) {
	body := &symbols.MethodBody{
		MaxStack:   1,
		Operations: []symbols.RawOp{ret(0)}, // pops a value with nothing pushed, and ReturnType is non-void
	}
	method := fakeMethod{name: "Bad", static: true, ret: testType{"int32"}, body: body}

	l := NewLifter(0, platform(), nil)
	_, err := l.Lift(method)
	require.Error(t, err)
	lerr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, StackUnderflow, lerr.Kind)
	assert.True(t, lerr.Kind.Fatal())
}

func TestLiftUnknownOpcodeIsRecoverableAndRecordsADiagnostic(t *testing.T) {
	body := &symbols.MethodBody{
		MaxStack: 1,
		Operations: []symbols.RawOp{
			{Offset: 0, Opcode: symbols.OpTail},
			ret(1),
		},
	}
	method := fakeMethod{name: "HasTailPrefix", static: true, body: body}

	l := NewLifter(0, platform(), nil)
	res, err := l.Lift(method)
	require.NoError(t, err, "an UnknownOpcode is recorded as a diagnostic, not a fatal error")
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, UnknownOpcode, res.Diagnostics[0].Kind)

	_, isReturn := res.Body.Instrs[len(res.Body.Instrs)-1].(tac.Return)
	assert.True(t, isReturn, "lifting continues past the skipped opcode")
}

func TestLiftCallLowersReceiverAsFirstArgument(t *testing.T) {
	calleeBody := &symbols.MethodBody{MaxStack: 1, Operations: []symbols.RawOp{ret(0)}}
	callee := fakeMethod{name: "Callee", paramCount: 1, ret: testType{"int32"}, body: calleeBody}

	body := &symbols.MethodBody{
		MaxStack: 2,
		Operations: []symbols.RawOp{
			ldarg(0, 0), // this
			ldarg(1, 1), // one declared parameter
			{Offset: 2, Opcode: symbols.OpCallvirt, Operand: symbols.OpValue{Kind: symbols.ValMethodRef, Method: callee}},
			{Offset: 3, Opcode: symbols.OpPop},
			ret(4),
		},
	}
	caller := fakeMethod{name: "Caller", paramCount: 1, body: body}

	l := NewLifter(0, platform(), nil)
	res, err := l.Lift(caller)
	require.NoError(t, err)

	var call tac.Call
	found := false
	for _, in := range res.Body.Instrs {
		if c, ok := in.(tac.Call); ok {
			call, found = c, true
		}
	}
	require.True(t, found)
	assert.True(t, call.Virtual)
	require.Len(t, call.Args, 2)
}

func TestLiftConvWithNoEmbeddedTypeFallsBackToOpcodeImpliedPrimitive(t *testing.T) {
	body := &symbols.MethodBody{
		MaxStack: 1,
		Operations: []symbols.RawOp{
			ldarg(0, 0),
			{Offset: 1, Opcode: symbols.OpConvI1}, // no Operand.Type: must resolve via the opcode
			{Offset: 2, Opcode: symbols.OpConvR8}, // different width: must resolve to a different primitive
			ret(3),
		},
	}
	method := fakeMethod{name: "Narrow", static: true, paramCount: 1, ret: testType{"float64"}, body: body}

	l := NewLifter(0, platform(), nil)
	res, err := l.Lift(method)
	require.NoError(t, err)

	var conversions []tac.Convert
	for _, in := range res.Body.Instrs {
		if c, ok := in.(tac.Convert); ok {
			conversions = append(conversions, c)
		}
	}
	require.Len(t, conversions, 2)
	assert.Equal(t, testType{"int8"}, conversions[0].Type, "conv.i1 with no embedded type resolves to the int8 primitive")
	assert.Equal(t, testType{"float64"}, conversions[1].Type, "conv.r8 with no embedded type resolves to the float64 primitive, not the same fallback as conv.i1")
}

func TestLiftMethodWithNoBodyErrors(t *testing.T) {
	method := fakeMethod{name: "Abstract.M", static: true}
	l := NewLifter(0, platform(), nil)
	_, err := l.Lift(method)
	assert.Error(t, err)
}

func TestLiftTryCatchEmitsMarkersInOrder(t *testing.T) {
	body := &symbols.MethodBody{
		MaxStack: 1,
		Operations: []symbols.RawOp{
			ldarg(0, 0),
			{Offset: 1, Opcode: symbols.OpPop},
			{Offset: 2, Opcode: symbols.OpLeave, Operand: symbols.OpValue{Kind: symbols.ValBranchTarget, BranchTarget: 10}},
			ret(5), // handler body: just return
			ret(10),
		},
		OperationExceptionInfo: []symbols.ExceptionInfo{
			{TryStartOffset: 0, TryEndOffset: 3, HandlerKind: symbols.Catch, HandlerStartOffset: 5, HandlerEndOffset: 10, ExceptionType: testType{"Exception"}},
		},
	}
	method := fakeMethod{name: "TryCatch", static: true, paramCount: 1, body: body}

	l := NewLifter(0, platform(), nil)
	res, err := l.Lift(method)
	require.NoError(t, err)

	var sawTry, sawCatch bool
	for _, in := range res.Body.Instrs {
		switch in.(type) {
		case tac.Try:
			sawTry = true
		case tac.Catch:
			sawCatch = true
			assert.True(t, sawTry, "Try must be emitted before its Catch marker")
		}
	}
	assert.True(t, sawTry)
	assert.True(t, sawCatch)
}
