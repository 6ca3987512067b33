package callgraph

import (
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/tiandiyixian/bytecode-analysis/pta"
	"github.com/tiandiyixian/bytecode-analysis/ptg"
	"github.com/tiandiyixian/bytecode-analysis/symbols"
	"github.com/tiandiyixian/bytecode-analysis/tac"
)

// maxSweeps bounds the number of top-level re-analyses of root that
// Analyze will run to resolve recursive call cycles. Each additional
// sweep only refines an existing approximation (the node arena is
// finite and PTG growth within it is monotone), so convergence happens
// in far fewer sweeps in practice; this is a backstop against a
// driver or hook bug that would otherwise loop forever.
const maxSweeps = 64

// Driver runs the interprocedural fixed point. It owns the call graph,
// the shared node arena, and the single-writer Info store for the
// duration of one Analyze call.
type Driver struct {
	Graph  *Graph
	Info   *Info
	Gen    *ptg.NodeIDGen
	Hooks  Hooks
	Logger log.Logger

	// recursionApproximated is set during a sweep whenever a call edge
	// had to fall back to a not-yet-current summary because its callee
	// was already mid-analysis higher up the call stack. Analyze
	// re-sweeps while this keeps happening so later sweeps pick up the
	// refined summaries left behind by earlier ones.
	recursionApproximated bool
}

// NewDriver returns a Driver ready to analyze from some root method. A
// nil logger becomes a no-op logger, matching lift.NewLifter's
// convention of threading a logger through the constructor.
func NewDriver(hooks Hooks, logger log.Logger) *Driver {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Driver{
		Graph:  NewGraph(),
		Info:   NewInfo(),
		Gen:    ptg.NewNodeIDGen(),
		Hooks:  hooks,
		Logger: logger,
	}
}

// Analyze is the entry point: add root to the call graph, ensure its
// CFG is cached, run its intraprocedural points-to analysis to a fixed
// point (recursively pulling in every reachable callee along the way),
// and return the call graph. When a call cycle forces an intermediate
// sweep to approximate a still-running callee, Analyze re-sweeps root,
// clearing memoized inputs so the next sweep recomputes every
// reachable method against the refined summaries the previous sweep
// left behind, until two consecutive sweeps agree.
func (d *Driver) Analyze(root symbols.MethodRef) (*Graph, error) {
	d.Graph.AddMethod(root)

	var prev map[symbols.MethodRef]*ptg.Graph
	for sweep := 0; sweep < maxSweeps; sweep++ {
		d.recursionApproximated = false
		if err := d.analyzeSweep(root); err != nil {
			return nil, err
		}
		if !d.recursionApproximated {
			break
		}
		next := d.Info.Snapshot()
		if prev != nil && snapshotsEqual(prev, next) {
			break
		}
		prev = next
		d.Info.ResetInputMemo()
	}

	return d.Graph, nil
}

// snapshotsEqual reports whether two Info.Snapshot results agree on
// every method's summarized output.
func snapshotsEqual(a, b map[symbols.MethodRef]*ptg.Graph) bool {
	if len(a) != len(b) {
		return false
	}
	for m, ga := range a {
		gb, ok := b[m]
		if !ok {
			return false
		}
		if ga == nil || gb == nil {
			if ga != gb {
				return false
			}
			continue
		}
		if !ga.GraphEquals(gb) {
			return false
		}
	}
	return true
}

// analyzeSweep runs one full top-level pass of root's intraprocedural
// points-to analysis, recursively pulling in reachable callees.
func (d *Driver) analyzeSweep(root symbols.MethodRef) error {
	entry := d.Info.Entry(root)
	if entry.CFG == nil {
		cfg, err := d.Hooks.OnReachableMethodFound(root)
		if err != nil {
			return err
		}
		entry.CFG = cfg
	}
	entry.PTA = pta.NewAnalysis(entry.CFG, root, d.Gen, d.makeCallHook(root))

	seed := ptg.New(d.Gen)
	if !root.IsStatic() {
		node := seed.ParamEntry(root, -1, root.ContainingType())
		seed.SetRoots(tac.ThisParam{}, ptg.NodeSet{node: {}})
	}
	for _, p := range root.Parameters() {
		node := seed.ParamEntry(root, p.Index, p.Type)
		seed.SetRoots(tac.Param{Index: p.Index}, ptg.NodeSet{node: {}})
	}

	entry.InputPTG = seed.Clone()
	entry.InProgress = true
	out := entry.PTA.Analyze(seed)
	entry.InProgress = false
	entry.PTG = out
	entry.OutputPTG = out

	return nil
}

func (d *Driver) makeCallHook(caller symbols.MethodRef) pta.ProcessCall {
	return func(call tac.TacInstr, input *ptg.Graph) *ptg.Graph {
		return d.processMethodCall(caller, call, input)
	}
}

// processMethodCall resolves callees (devirtualizing a Callvirt
// against the receiver's current points-to set), records call-graph
// edges, then folds every callee's effect into one output PTG.
func (d *Driver) processMethodCall(caller symbols.MethodRef, call tac.TacInstr, input *ptg.Graph) *ptg.Graph {
	staticCallee, virtual, args, dst, label, ok := decodeCall(call)
	if !ok {
		return input
	}

	site := Site{Caller: caller, Label: label}
	d.Graph.AddEdge(site, staticCallee)

	callees := []symbols.MethodRef{staticCallee}
	if virtual {
		for _, impl := range d.devirtualize(staticCallee, args, input) {
			if impl == staticCallee {
				continue
			}
			d.Graph.AddEdge(site, impl)
			callees = append(callees, impl)
		}
	}

	var output *ptg.Graph
	processed := false
	for _, callee := range callees {
		out := d.processCallee(caller, callee, call, args, dst, label, input)
		if out == nil {
			continue
		}
		if !processed {
			output, processed = out, true
			continue
		}
		output.Union(out)
	}
	if !processed {
		return input
	}
	return output
}

// devirtualize resolves a virtual call's receiver targets against
// their concrete types.
func (d *Driver) devirtualize(staticCallee symbols.MethodRef, args []tac.TacOperand, input *ptg.Graph) []symbols.MethodRef {
	if len(args) == 0 {
		return nil
	}
	recv, ok := argVar(args[0])
	if !ok {
		return nil
	}
	seen := make(map[symbols.MethodRef]struct{})
	var out []symbols.MethodRef
	for id := range input.GetTargets(recv) {
		data := d.Gen.Describe(id)
		if data.Type == nil {
			continue
		}
		ibt, ok := data.Type.(symbols.IBasicType)
		if !ok {
			continue
		}
		impl, ok := ibt.FindMethodImplementation(staticCallee)
		if !ok {
			continue
		}
		if _, dup := seen[impl]; dup {
			continue
		}
		seen[impl] = struct{}{}
		out = append(out, impl)
	}
	return out
}

// processCallee runs the per-callee clone/bind/memoize/restore
// pipeline that keeps the callee's recorded input PTG monotone and
// only re-runs a callee's dataflow when its input strictly grew.
func (d *Driver) processCallee(caller, callee symbols.MethodRef, call tac.TacInstr, args []tac.TacOperand, dst tac.Place, label uint32, input *ptg.Graph) *ptg.Graph {
	unknown := d.isUnknown(callee)
	if unknown && !d.Hooks.OnUnknownMethodFound(callee) {
		return nil
	}

	binding, ok := d.buildBinding(callee, unknown, args)
	if !ok {
		level.Warn(d.Logger).Log("msg", "argument count mismatch, skipping callee",
			"caller", caller.Name(), "callee", callee.Name(), "offset", label)
		return nil
	}

	working := input.Clone()
	frameTag := fmt.Sprintf("%s#%d->%s", caller.Name(), label, callee.Name())
	mark := working.NewFrame(binding, frameTag)

	entry := d.Info.Entry(callee)

	if !unknown && entry.InProgress {
		// callee is already mid-Analyze further up the Go call stack
		// (direct or mutual recursion). Reusing entry.PTA here would
		// have this call mutate the very inputs/outputs maps the
		// suspended outer call is reading. Fall back to the best
		// summary already on record for this sweep; Analyze re-sweeps
		// root whenever this happens, so the next sweep sees whatever
		// this call contributes once the outer call finishes.
		d.recursionApproximated = true
		result := working.Clone()
		if entry.OutputPTG != nil {
			result.Union(entry.OutputPTG)
		}
		resultBinding := make(map[tac.Variable]tac.Variable, 1)
		if v, ok := dst.(tac.Var); ok {
			resultBinding[pta.ResultVariable] = v.V
		}
		result.RestoreFrame(mark, resultBinding)
		return result
	}

	changed := entry.InputPTG == nil
	if !changed {
		changed = !working.GraphEquals(entry.InputPTG)
		if changed {
			working.Union(entry.InputPTG)
			changed = !working.GraphEquals(entry.InputPTG)
		}
	}

	var out *ptg.Graph
	switch {
	case changed:
		entry.InputPTG = working.Clone()
		if unknown {
			out = d.Hooks.ProcessUnknownMethod(callee, caller, call, d.Gen, working)
		} else if reached, ok := d.analyzeReachable(callee, working); ok {
			out = reached
		} else {
			// A fatal lifter error aborts the current method; the
			// interprocedural driver treats an aborted lifting as an
			// unknown method.
			if !d.Hooks.OnUnknownMethodFound(callee) {
				return nil
			}
			out = d.Hooks.ProcessUnknownMethod(callee, caller, call, d.Gen, working)
		}
	case entry.OutputPTG != nil:
		out = entry.OutputPTG
	default:
		out = working
	}
	entry.OutputPTG = out.Clone()

	result := out.Clone()
	resultBinding := make(map[tac.Variable]tac.Variable, 1)
	if v, ok := dst.(tac.Var); ok {
		resultBinding[pta.ResultVariable] = v.V
	}
	result.RestoreFrame(mark, resultBinding)
	return result
}

// analyzeReachable lifts/caches the CFG for a known callee (via the
// OnReachableMethodFound hook) and runs its intraprocedural analysis.
// ok is false when the hook itself failed (a fatal lift abort), which
// the caller folds back into the unknown-method path.
func (d *Driver) analyzeReachable(callee symbols.MethodRef, input *ptg.Graph) (out *ptg.Graph, ok bool) {
	entry := d.Info.Entry(callee)
	if entry.CFG == nil {
		cfg, err := d.Hooks.OnReachableMethodFound(callee)
		if err != nil {
			level.Warn(d.Logger).Log("msg", "failed to reach method, treating as unknown", "method", callee.Name(), "err", err)
			return nil, false
		}
		entry.CFG = cfg
	}
	if entry.PTA == nil {
		entry.PTA = pta.NewAnalysis(entry.CFG, callee, d.Gen, d.makeCallHook(callee))
	}
	entry.InProgress = true
	out = entry.PTA.Analyze(input)
	entry.InProgress = false
	entry.PTG = out
	return out, true
}

func (d *Driver) isUnknown(callee symbols.MethodRef) bool {
	if callee == nil {
		return true
	}
	_, ok := callee.Body()
	return !ok
}

// buildBinding assembles the calleeParam -> callerArg map, length-
// checking the synthesized or declared parameter list against the
// call's actual argument list.
func (d *Driver) buildBinding(callee symbols.MethodRef, unknown bool, args []tac.TacOperand) (map[tac.Variable]tac.Variable, bool) {
	var params []tac.Variable
	if unknown {
		params = syntheticParams(callee)
	} else {
		params = declaredParams(callee)
	}
	if len(params) != len(args) {
		return nil, false
	}
	binding := make(map[tac.Variable]tac.Variable, len(args))
	for i, a := range args {
		if v, ok := argVar(a); ok {
			binding[params[i]] = v
		}
	}
	return binding, true
}

func declaredParams(callee symbols.MethodRef) []tac.Variable {
	var out []tac.Variable
	if !callee.IsStatic() {
		out = append(out, tac.ThisParam{})
	}
	for _, p := range callee.Parameters() {
		out = append(out, tac.Param{Index: p.Index})
	}
	return out
}

// syntheticParams builds the placeholder parameter list for an unknown
// callee: a fresh this local (if non-static), then p1..pN locals
// standing in for its declared parameters.
func syntheticParams(callee symbols.MethodRef) []tac.Variable {
	var out []tac.Variable
	if !callee.IsStatic() {
		out = append(out, tac.Local{Name: "this"})
	}
	for i := range callee.Parameters() {
		out = append(out, tac.Local{Name: fmt.Sprintf("p%d", i+1)})
	}
	return out
}

func argVar(op tac.TacOperand) (tac.Variable, bool) {
	v, ok := op.(tac.Var)
	if !ok {
		return nil, false
	}
	return v.V, true
}

func decodeCall(call tac.TacInstr) (callee symbols.MethodRef, virtual bool, args []tac.TacOperand, dst tac.Place, label uint32, ok bool) {
	switch c := call.(type) {
	case tac.Call:
		return c.Callee, c.Virtual, c.Args, c.Dst, c.Off(), true
	default:
		return nil, false, nil, nil, 0, false
	}
}
