package blocks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiandiyixian/bytecode-analysis/symbols"
)

func br(off uint32, target uint32) symbols.RawOp {
	return symbols.RawOp{
		Offset: off, Opcode: symbols.OpBr,
		Operand: symbols.OpValue{Kind: symbols.ValBranchTarget, BranchTarget: target},
	}
}

func nop(off uint32) symbols.RawOp {
	return symbols.RawOp{Offset: off, Opcode: symbols.OpNop}
}

func ret(off uint32) symbols.RawOp {
	return symbols.RawOp{Offset: off, Opcode: symbols.OpRet}
}

func TestRecognizeSeedsEntryLeader(t *testing.T) {
	ops := []symbols.RawOp{nop(0), ret(1)}
	leaders := Recognize(ops)
	require.Len(t, leaders, 1)
	assert.Equal(t, uint32(0), leaders[0].Offset)
	assert.False(t, leaders[0].CanFallThrough)
}

func TestRecognizeSplitsAtBranchTargetAndFallThrough(t *testing.T) {
	// 0: br -> 5 ; 5: nop ; 6: ret
	ops := []symbols.RawOp{br(0, 5), nop(5), ret(6)}
	leaders := Recognize(ops)

	offsets := make([]uint32, len(leaders))
	for i, l := range leaders {
		offsets[i] = l.Offset
	}
	assert.ElementsMatch(t, []uint32{0, 5}, offsets)

	// Nothing precedes the entry leader, so nothing falls into it.
	for _, l := range leaders {
		if l.Offset == 0 && l.CanFallThrough {
			t.Fatalf("offset 0 is the entry leader, not itself a fall-through successor")
		}
	}
}

func TestRecognizeMarksFallThroughAfterTerminator(t *testing.T) {
	ops := []symbols.RawOp{ret(0), nop(1)}
	leaders := Recognize(ops)
	require.Len(t, leaders, 2)
	var second Leader
	for _, l := range leaders {
		if l.Offset == 1 {
			second = l
		}
	}
	assert.False(t, second.CanFallThrough, "nothing falls into the block after a Ret")
}

func TestExceptionIndexEnclosingClassifiesTryHandlerFinally(t *testing.T) {
	table := []symbols.ExceptionInfo{
		{TryStartOffset: 0, TryEndOffset: 10, HandlerKind: symbols.Catch, HandlerStartOffset: 10, HandlerEndOffset: 15},
		{TryStartOffset: 0, TryEndOffset: 10, HandlerKind: symbols.Finally, HandlerStartOffset: 15, HandlerEndOffset: 20},
	}
	idx := Build(table)

	kind, tryBegin, handlers, finallyBegin, finallyEnd, hasFinally := idx.Enclosing(5)
	assert.Equal(t, InTryBody, kind)
	assert.Equal(t, uint32(0), tryBegin)
	require.Len(t, handlers, 1)
	assert.Equal(t, uint32(10), handlers[0].BeginOffset)
	assert.True(t, hasFinally)
	assert.Equal(t, uint32(15), finallyBegin)
	assert.Equal(t, uint32(20), finallyEnd)

	kind, _, _, _, _, _ = idx.Enclosing(12)
	assert.Equal(t, InHandlerBody, kind)

	kind, _, _, _, _, _ = idx.Enclosing(17)
	assert.Equal(t, InFinallyBody, kind)

	kind, _, _, _, _, _ = idx.Enclosing(100)
	assert.Equal(t, NoRegion, kind)
}

func TestExceptionIndexTryStartingAt(t *testing.T) {
	table := []symbols.ExceptionInfo{
		{TryStartOffset: 0, TryEndOffset: 10, HandlerKind: symbols.Catch, HandlerStartOffset: 10, HandlerEndOffset: 15},
	}
	idx := Build(table)
	begin, handlers, hasFinally, ok := idx.TryStartingAt(0)
	require.True(t, ok)
	assert.Equal(t, uint32(0), begin)
	assert.Len(t, handlers, 1)
	assert.False(t, hasFinally)

	_, _, _, ok = idx.TryStartingAt(3)
	assert.False(t, ok)
}
