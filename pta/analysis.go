package pta

import (
	"github.com/tiandiyixian/bytecode-analysis/ptg"
	"github.com/tiandiyixian/bytecode-analysis/symbols"
	"github.com/tiandiyixian/bytecode-analysis/tac"
)

// ResultVariable is the synthetic place a method's Return statement
// writes its value's roots into, so callgraph.Driver can read it back
// out of the exit PTG as the callee side of a restoreFrame binding.
var ResultVariable tac.Variable = tac.Local{Name: "$result"}

const (
	arrayElemField = "[]"
	derefField     = "*"
)

// ProcessCall is the callback an Analysis delegates every Call and
// IndirectCall to; NewObj only allocates and is not delegated. It
// receives the call instruction and the PTG as it stands immediately
// before the call, and returns the PTG as it stands immediately after.
type ProcessCall func(call tac.TacInstr, input *ptg.Graph) *ptg.Graph

// Analysis runs the forward points-to dataflow over one method's CFG.
type Analysis struct {
	CFG      ControlFlowGraph
	Method   symbols.MethodRef
	Gen      *ptg.NodeIDGen
	OnCall   ProcessCall

	inputs  map[BlockID]*ptg.Graph
	outputs map[BlockID]*ptg.Graph
}

// NewAnalysis returns an Analysis ready to run over cfg.
func NewAnalysis(cfg ControlFlowGraph, method symbols.MethodRef, gen *ptg.NodeIDGen, onCall ProcessCall) *Analysis {
	return &Analysis{
		CFG: cfg, Method: method, Gen: gen, OnCall: onCall,
		inputs:  make(map[BlockID]*ptg.Graph),
		outputs: make(map[BlockID]*ptg.Graph),
	}
}

// Output returns the dataflow result stored for block b after Analyze
// has run, or nil if b was never reached.
func (a *Analysis) Output(b BlockID) *ptg.Graph { return a.outputs[b] }

// Analyze runs the worklist to a fixed point starting from entry as
// the method's entry-block input, and returns the union of every exit
// block's Output -- the whole method's summarized effect on the heap.
func (a *Analysis) Analyze(entry *ptg.Graph) *ptg.Graph {
	start := a.CFG.Entry()
	a.inputs[start] = entry.Clone()

	worklist := []BlockID{start}
	queued := map[BlockID]bool{start: true}

	for len(worklist) > 0 {
		b := worklist[0]
		worklist = worklist[1:]
		queued[b] = false

		in := a.inputs[b]
		if in == nil {
			in = ptg.New(a.Gen)
		}
		out := a.run(b, in.Clone())
		a.outputs[b] = out

		for _, succ := range a.CFG.Successors(b) {
			next, seen := a.inputs[succ]
			if !seen {
				next = out.Clone()
				a.inputs[succ] = next
			}
			before := next.Clone()
			next.Union(out)
			if (!seen || !next.GraphEquals(before)) && !queued[succ] {
				worklist = append(worklist, succ)
				queued[succ] = true
			}
		}
	}

	var result *ptg.Graph
	for _, b := range exitBlocks(a.CFG) {
		if out := a.outputs[b]; out != nil {
			if result == nil {
				result = out.Clone()
			}
			result.Union(out)
		}
	}
	if result == nil {
		result = a.outputs[start].Clone()
	}
	return result
}

// run applies every instruction in block b's straight-line body to g in
// order, threading the (possibly replaced, on a call) graph through.
func (a *Analysis) run(b BlockID, g *ptg.Graph) *ptg.Graph {
	for _, instr := range a.CFG.Instructions(b) {
		g = a.transfer(g, instr)
	}
	return g
}

func (a *Analysis) transfer(g *ptg.Graph, instr tac.TacInstr) *ptg.Graph {
	switch in := instr.(type) {
	case tac.Load:
		move(g, in.Dst, in.Src)
	case tac.Store:
		move(g, in.Dst, in.Src)
	case tac.NewObj:
		node := g.Allocate(in.Off(), containingTypeOf(in.Ctor))
		writeDst(g, in.Dst, ptg.NodeSet{node: {}})
	case tac.NewArray:
		node := g.Allocate(in.Off(), in.ElemType)
		writeDst(g, in.Dst, ptg.NodeSet{node: {}})
	case tac.Call:
		if a.OnCall != nil {
			g = a.OnCall(in, g)
		}
	case tac.IndirectCall:
		if a.OnCall != nil {
			g = a.OnCall(in, g)
		}
	case tac.Return:
		if v, ok := in.Value.(tac.Var); ok {
			g.Assign(ResultVariable, v.V)
		}
	case tac.BinOp, tac.UnOp, tac.Convert, tac.Branch, tac.CondBranch, tac.ExcBranch,
		tac.Switch, tac.Throw, tac.Try, tac.Catch, tac.Finally, tac.Sizeof,
		tac.LocalAlloc, tac.CopyMem, tac.CopyObj, tac.InitMem, tac.InitObj,
		tac.LoadToken, tac.Nop, tac.Breakpoint:
		// Identity on the graph: none of these touch points-to state.
	}
	return g
}

func move(g *ptg.Graph, dst tac.Place, src tac.TacOperand) {
	switch d := dst.(type) {
	case tac.Var:
		writeDst(g, dst, readSource(g, src))
	case tac.InstField:
		if v, ok := src.(tac.Var); ok {
			g.StoreField(d.Obj, d.Name, v.V)
		}
	case tac.StaticField:
		if v, ok := src.(tac.Var); ok {
			g.StoreStatic(d.Type, d.Name, v.V)
		}
	case tac.ArrayElem:
		if v, ok := src.(tac.Var); ok {
			g.StoreField(d.Array, arrayElemField, v.V)
		}
	case tac.Deref:
		if v, ok := src.(tac.Var); ok {
			g.StoreField(d.Addr, derefField, v.V)
		}
	}
}

// readSource resolves the points-to set an operand contributes when it
// is read into a plain variable, chasing one level of Field/ArrayElem/
// Deref indirection.
func readSource(g *ptg.Graph, src tac.TacOperand) ptg.NodeSet {
	switch s := src.(type) {
	case tac.Var:
		return g.GetTargets(s.V)
	case tac.InstField:
		tmp := tac.Local{Name: "$tmp"}
		g.LoadField(tmp, s.Obj, s.Name)
		return g.GetTargets(tmp)
	case tac.StaticField:
		tmp := tac.Local{Name: "$tmp"}
		g.LoadStatic(tmp, s.Type, s.Name)
		return g.GetTargets(tmp)
	case tac.ArrayElem:
		tmp := tac.Local{Name: "$tmp"}
		g.LoadField(tmp, s.Array, arrayElemField)
		return g.GetTargets(tmp)
	case tac.Deref:
		tmp := tac.Local{Name: "$tmp"}
		g.LoadField(tmp, s.Addr, derefField)
		return g.GetTargets(tmp)
	default: // Const, Ref, MethodPtr: no heap targets tracked
		return nil
	}
}

func writeDst(g *ptg.Graph, dst tac.Place, roots ptg.NodeSet) {
	if v, ok := dst.(tac.Var); ok {
		g.SetRoots(v.V, roots)
		return
	}
	// A Place destination that isn't a plain Var only reaches here via
	// NewObj/NewArray's dst, which the lifter always emits as a Var.
}

func containingTypeOf(ctor symbols.MethodRef) symbols.TypeRef {
	return ctor.ContainingType()
}
