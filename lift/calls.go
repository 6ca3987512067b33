package lift

import (
	"github.com/tiandiyixian/bytecode-analysis/symbols"
	"github.com/tiandiyixian/bytecode-analysis/tac"
)

// liftCall lowers Call and Callvirt. The callee's own signature, not
// the runtime operand count, fixes how many arguments are popped
// (ArgumentCountMismatch is a mismatch against that signature, not
// against the stack). The receiver, if any, is popped last (IL pushes
// "this" first) and becomes Args[0]; resolving Callvirt's virtual
// target against the receiver's concrete type is left to the
// call-graph stage, so the lifter always names the statically
// declared callee.
func (d *driver) liftCall(at tac.Base, op symbols.RawOp, virtual bool) error {
	callee := op.Operand.Method
	if callee == nil {
		return newError(ArgumentCountMismatch, d.method, op.Offset, errNoCalleeSymbol)
	}
	args, err := d.popArgs(callee.Parameters())
	if err != nil {
		return err
	}
	if !callee.IsStatic() {
		recv, e := d.pop()
		if e != nil {
			return e
		}
		args = append([]tac.TacOperand{tac.Var{V: recv}}, args...)
	}
	dst, err := d.pushResult(callee.ReturnType())
	if err != nil {
		return err
	}
	d.body.Append(tac.Call{Base: at, Dst: dst, Callee: callee, Args: args, Virtual: virtual && !callee.IsStatic()})
	return nil
}

// liftCalli lowers an indirect call through a function pointer already
// on the stack. Sig is the call-site signature carried by the operand;
// with no MethodRef to consult for a parameter list, the argument
// count is taken from Sig's captured arity via the operand's
// ParamIndex field, which decoders are expected to repurpose here to
// record calli's argument count since OpValue has no dedicated slot.
func (d *driver) liftCalli(at tac.Base, op symbols.RawOp) error {
	argc := op.Operand.ParamIndex
	args := make([]tac.TacOperand, argc)
	for i := argc - 1; i >= 0; i-- {
		t, e := d.pop()
		if e != nil {
			return e
		}
		args[i] = tac.Var{V: t}
	}
	fnPtr, e := d.pop()
	if e != nil {
		return e
	}
	sig := op.Operand.Type
	var dst tac.Place
	if sig == nil || sig.Kind() != symbols.KindVoid {
		t, e := d.push()
		if e != nil {
			return e
		}
		dst = tac.Var{V: t}
	}
	d.body.Append(tac.IndirectCall{Base: at, Dst: dst, FnPtr: fnPtr, Sig: sig, Args: args})
	return nil
}

// liftNewobj lowers object construction: pop the constructor's
// arguments (excluding the implicit, not-yet-existent "this"), push
// the freshly allocated result.
func (d *driver) liftNewobj(at tac.Base, op symbols.RawOp) error {
	ctor := op.Operand.Method
	if ctor == nil {
		return newError(ArgumentCountMismatch, d.method, op.Offset, errNoCalleeSymbol)
	}
	args, err := d.popArgs(ctor.Parameters())
	if err != nil {
		return err
	}
	dst, err := d.push()
	if err != nil {
		return err
	}
	d.body.Append(tac.NewObj{Base: at, Dst: tac.Var{V: dst}, Ctor: ctor, Args: args})
	return nil
}

// liftJmp lowers a tail-jump to another method with the same
// signature: it forwards the current method's own parameters rather
// than popping anything, since Jmp replaces the current activation
// record in place.
func (d *driver) liftJmp(at tac.Base, op symbols.RawOp) error {
	target := op.Operand.Method
	if target == nil {
		return newError(ArgumentCountMismatch, d.method, op.Offset, errNoCalleeSymbol)
	}
	params := d.method.Parameters()
	args := make([]tac.TacOperand, len(params))
	for _, p := range params {
		args[p.Index] = tac.Var{V: tac.Param{Index: p.Index}}
	}
	d.body.Append(tac.Call{Base: at, Callee: target, Args: args})
	return nil
}

func (d *driver) popArgs(params []symbols.ParamInfo) ([]tac.TacOperand, error) {
	args := make([]tac.TacOperand, len(params))
	for i := len(params) - 1; i >= 0; i-- {
		t, e := d.pop()
		if e != nil {
			return nil, e
		}
		args[i] = tac.Var{V: t}
	}
	return args, nil
}

func (d *driver) pushResult(ret symbols.TypeRef) (tac.Place, error) {
	if ret == nil || ret.Kind() == symbols.KindVoid {
		return nil, nil
	}
	t, e := d.push()
	if e != nil {
		return nil, e
	}
	return tac.Var{V: t}, nil
}

var errNoCalleeSymbol = plainError("call site carries no resolved method symbol")
