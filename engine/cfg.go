package engine

import (
	"sort"

	"github.com/tiandiyixian/bytecode-analysis/pta"
	"github.com/tiandiyixian/bytecode-analysis/tac"
)

// instrCFG adapts a lifted tac.MethodBody's flat, offset-addressed
// instruction stream into the pta.ControlFlowGraph the points-to
// engine drives over. It finds block leaders the same way
// blocks.Recognize does over raw bytecode, just one level higher in the
// pipeline: leaders here are TAC offsets, not RawOp offsets, and a new
// block starts at every branch target and after every instruction that
// branches or terminates. Only Branch/Return/Throw lack a fall-through
// edge (CondBranch, ExcBranch, and Switch all fall through in addition
// to branching, since the lifter never omits the fall-through case for
// those).
type instrCFG struct {
	order  []pta.BlockID
	instrs map[pta.BlockID][]tac.TacInstr
	succs  map[pta.BlockID][]pta.BlockID
	entry  pta.BlockID
}

func buildCFG(instrs []tac.TacInstr) *instrCFG {
	cfg := &instrCFG{
		instrs: make(map[pta.BlockID][]tac.TacInstr),
		succs:  make(map[pta.BlockID][]pta.BlockID),
	}
	if len(instrs) == 0 {
		return cfg
	}

	leaders := map[uint32]bool{instrs[0].Off(): true}
	for i, in := range instrs {
		for _, t := range targetsOf(in) {
			leaders[t] = true
		}
		if (isTerminal(in) || len(targetsOf(in)) > 0) && i+1 < len(instrs) {
			leaders[instrs[i+1].Off()] = true
		}
	}

	offsets := make([]uint32, 0, len(leaders))
	for off := range leaders {
		offsets = append(offsets, off)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	blockOf := make(map[uint32]pta.BlockID, len(offsets))
	for i, off := range offsets {
		id := pta.BlockID(i)
		blockOf[off] = id
		cfg.order = append(cfg.order, id)
	}
	cfg.entry = blockOf[instrs[0].Off()]

	cur := cfg.entry
	for i, in := range instrs {
		if id, ok := blockOf[in.Off()]; ok {
			cur = id
		}
		cfg.instrs[cur] = append(cfg.instrs[cur], in)

		for _, t := range targetsOf(in) {
			cfg.succs[cur] = appendUniqueBlock(cfg.succs[cur], blockOf[t])
		}
		if !isTerminal(in) && i+1 < len(instrs) {
			if next, ok := blockOf[instrs[i+1].Off()]; ok {
				cfg.succs[cur] = appendUniqueBlock(cfg.succs[cur], next)
			}
		}
	}
	return cfg
}

func targetsOf(in tac.TacInstr) []uint32 {
	switch t := in.(type) {
	case tac.Branch:
		return []uint32{t.Target}
	case tac.CondBranch:
		return []uint32{t.Target}
	case tac.ExcBranch:
		return []uint32{t.Target}
	case tac.Switch:
		return append([]uint32(nil), t.Targets...)
	default:
		return nil
	}
}

func isTerminal(in tac.TacInstr) bool {
	switch in.(type) {
	case tac.Branch, tac.Return, tac.Throw:
		return true
	default:
		return false
	}
}

func appendUniqueBlock(list []pta.BlockID, id pta.BlockID) []pta.BlockID {
	for _, x := range list {
		if x == id {
			return list
		}
	}
	return append(list, id)
}

func (c *instrCFG) Entry() pta.BlockID               { return c.entry }
func (c *instrCFG) Blocks() []pta.BlockID            { return c.order }
func (c *instrCFG) Instructions(b pta.BlockID) []tac.TacInstr { return c.instrs[b] }
func (c *instrCFG) Successors(b pta.BlockID) []pta.BlockID    { return c.succs[b] }
