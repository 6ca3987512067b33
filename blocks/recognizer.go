// Package blocks implements the basic-block recognizer and the
// exception-region index: both are single forward, table-driven
// passes over a RawOp sequence.
package blocks

import (
	"sort"

	"github.com/tiandiyixian/bytecode-analysis/symbols"
	"github.com/tiandiyixian/bytecode-analysis/tac"
)

// Leader records where a basic block starts and whether the
// instruction immediately preceding it falls through into it.
type Leader struct {
	Offset         uint32
	CanFallThrough bool
}

// Recognize scans ops once and returns the sorted leader offsets: a
// new block starts at offset 0, at any branch target, and at the
// instruction following a terminator.
func Recognize(ops []symbols.RawOp) []Leader {
	if len(ops) == 0 {
		return nil
	}
	leaders := map[uint32]*Leader{}
	mark := func(off uint32, fallsThrough bool) {
		if l, ok := leaders[off]; ok {
			// A later leader falling into a block that was
			// previously only reached by branch keeps whichever
			// fall-through status is true: a branch-created target
			// defaults to true unless overwritten by a later leader
			// that falls into it.
			if fallsThrough {
				l.CanFallThrough = true
			}
			return
		}
		leaders[off] = &Leader{Offset: off, CanFallThrough: fallsThrough}
	}

	mark(ops[0].Offset, false)

	for i, op := range ops {
		for _, t := range op.Targets() {
			// A leader first created as a branch target is seeded
			// with canFallThrough=true. mark() only ever raises the
			// flag, never lowers it, so a later terminator whose
			// successor is this offset leaves the true in place.
			if _, ok := leaders[t]; !ok {
				leaders[t] = &Leader{Offset: t, CanFallThrough: true}
			}
		}
		if op.IsTerminator() && i+1 < len(ops) {
			mark(ops[i+1].Offset, op.FallsThrough())
		}
	}

	out := make([]Leader, 0, len(leaders))
	for _, l := range leaders {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

// Split partitions ops into BasicBlocks at the given leader offsets.
// Each returned block has Status == tac.None and Instrs == nil; the
// lifter driver fills them in.
func Split(ops []symbols.RawOp, leaders []Leader) map[uint32]*tac.BasicBlock {
	blocksByOffset := make(map[uint32]*tac.BasicBlock, len(leaders))
	for _, l := range leaders {
		blocksByOffset[l.Offset] = &tac.BasicBlock{
			Offset:         l.Offset,
			CanFallThrough: l.CanFallThrough,
		}
	}
	return blocksByOffset
}

// OpsOf returns the RawOps belonging to the block starting at
// `start`, given the full op list and the sorted leader offsets. It
// is a convenience for callers that want a slice view instead of
// driving symbolic execution offset-by-offset.
func OpsOf(ops []symbols.RawOp, leaders []Leader, start uint32) []symbols.RawOp {
	offsets := make([]uint32, len(leaders))
	for i, l := range leaders {
		offsets[i] = l.Offset
	}
	lo := sort.Search(len(ops), func(i int) bool { return ops[i].Offset >= start })
	idx := sort.Search(len(offsets), func(i int) bool { return offsets[i] > start })
	var hi int
	if idx < len(offsets) {
		next := offsets[idx]
		hi = sort.Search(len(ops), func(i int) bool { return ops[i].Offset >= next })
	} else {
		hi = len(ops)
	}
	return ops[lo:hi]
}
