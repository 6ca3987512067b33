package lift

import (
	"github.com/tiandiyixian/bytecode-analysis/blocks"
	"github.com/tiandiyixian/bytecode-analysis/symbols"
	"github.com/tiandiyixian/bytecode-analysis/tac"
)

// liftLeave lowers Leave. Leaving a try body may first reach any of
// its catch handlers (the runtime unwinds through them even though
// leave itself cannot throw, so the lifter keeps the edges
// conservative). If the region has a finally and no catch handlers,
// control passes through the finally before the textual target —
// modelled as the trailing FinallyEntry sentinel on Branch rather than
// a direct jump, since the real destination is only known once the
// finally runs. Otherwise the Branch goes to the textual target.
func (d *driver) liftLeave(at tac.Base, op symbols.RawOp) error {
	target := op.Operand.BranchTarget
	kind, _, handlers, finallyBegin, _, hasFinally := d.excIdx.Enclosing(op.Offset)
	d.st.Clear()

	if kind == blocks.InTryBody {
		for _, h := range handlers {
			d.body.Append(tac.ExcBranch{Base: at, Target: h.BeginOffset, ExcType: h.ExcType})
			if err := d.addPending(h.BeginOffset, uint16(d.st.Size())); err != nil {
				return err
			}
		}
	}

	if hasFinally && len(handlers) == 0 {
		d.body.Append(tac.Branch{Base: at, Target: finallyBegin, FinallyEntry: true})
		return d.addPending(finallyBegin, uint16(d.st.Size()))
	}

	d.body.Append(tac.Branch{Base: at, Target: target})
	return d.addPending(target, uint16(d.st.Size()))
}

// liftEndFinally lowers EndFinally and EndFilter: control resumes just
// past the finally block that is currently executing. With no
// enclosing finally recorded (a malformed or filter-only region), the
// instruction has nowhere defined to resume and is lowered to a nop.
func (d *driver) liftEndFinally(at tac.Base, op symbols.RawOp) error {
	_, _, _, _, finallyEnd, hasFinally := d.excIdx.Enclosing(op.Offset)
	d.st.Clear()
	if !hasFinally {
		d.body.Append(tac.Nop{Base: at})
		return nil
	}
	d.body.Append(tac.Branch{Base: at, Target: finallyEnd})
	return d.addPending(finallyEnd, uint16(d.st.Size()))
}
