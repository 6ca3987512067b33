package lift

import (
	"github.com/tiandiyixian/bytecode-analysis/symbols"
	"github.com/tiandiyixian/bytecode-analysis/tac"
)

// liftOp executes one raw operation against the driver's operand
// stack and appends the TAC it lowers to. It returns terminal=true
// when op does not fall through to the next offset in program order
// (Return, unconditional Br/Leave, EndFinally/EndFilter, Throw,
// Rethrow), so processBlock knows to stop scanning rather than treat
// the next offset as a fall-through successor.
func (d *driver) liftOp(blk *tac.BasicBlock, op symbols.RawOp) (terminal bool, err error) {
	at := tac.At(op.Offset)
	d.curOffset = op.Offset

	pop := func() (tac.Temp, error) { return d.pop() }
	push := func() (tac.Temp, error) { return d.push() }
	v := func(t tac.Temp) tac.TacOperand { return tac.Var{V: t} }

	switch op.Opcode {

	// ---------- stack manipulation ----------
	case symbols.OpNop:
		d.body.Append(tac.Nop{Base: at})
		return false, nil

	case symbols.OpBreakpoint:
		d.body.Append(tac.Breakpoint{Base: at})
		return false, nil

	case symbols.OpDup:
		top, e := pop()
		if e != nil {
			return false, e
		}
		if _, e := push(); e != nil { // restore the popped value's slot
			return false, e
		}
		dst, e := push()
		if e != nil {
			return false, e
		}
		d.body.Append(tac.Load{Base: at, Dst: tac.Var{V: dst}, Src: v(top)})
		return false, nil

	case symbols.OpPop:
		if _, e := pop(); e != nil {
			return false, e
		}
		return false, nil

	// ---------- constant loads ----------
	case symbols.OpLdcI4:
		return false, d.loadConst(at, op.Operand.I32, push)
	case symbols.OpLdcI8:
		return false, d.loadConst(at, op.Operand.I64, push)
	case symbols.OpLdcR4:
		return false, d.loadConst(at, op.Operand.F32, push)
	case symbols.OpLdcR8:
		return false, d.loadConst(at, op.Operand.F64, push)
	case symbols.OpLdstr:
		return false, d.loadConst(at, op.Operand.Str, push)
	case symbols.OpLdnull:
		return false, d.loadConst(at, nil, push)

	// ---------- argument access ----------
	case symbols.OpLdarg:
		pv := d.paramVariable(op.Operand.ParamIndex)
		dst, e := push()
		if e != nil {
			return false, e
		}
		d.body.Append(tac.Load{Base: at, Dst: tac.Var{V: dst}, Src: tac.Var{V: pv}})
		return false, nil

	case symbols.OpStarg:
		src, e := pop()
		if e != nil {
			return false, e
		}
		pv := d.paramVariable(op.Operand.ParamIndex)
		// Starg is the universal move instruction running in reverse:
		// modelled as Load(Param, pop).
		d.body.Append(tac.Load{Base: at, Dst: tac.Var{V: pv}, Src: v(src)})
		return false, nil

	case symbols.OpLdarga:
		pv := d.paramVariable(op.Operand.ParamIndex)
		dst, e := push()
		if e != nil {
			return false, e
		}
		d.body.Append(tac.Load{Base: at, Dst: tac.Var{V: dst}, Src: tac.Ref{Of: tac.Var{V: pv}}})
		return false, nil

	// ---------- local access ----------
	case symbols.OpLdloc:
		lv := d.localVariable(op.Operand.LocalIndex)
		dst, e := push()
		if e != nil {
			return false, e
		}
		d.body.Append(tac.Load{Base: at, Dst: tac.Var{V: dst}, Src: tac.Var{V: lv}})
		return false, nil

	case symbols.OpStloc:
		src, e := pop()
		if e != nil {
			return false, e
		}
		lv := d.localVariable(op.Operand.LocalIndex)
		d.body.Append(tac.Store{Base: at, Dst: tac.Var{V: lv}, Src: v(src)})
		return false, nil

	case symbols.OpLdloca:
		lv := d.localVariable(op.Operand.LocalIndex)
		dst, e := push()
		if e != nil {
			return false, e
		}
		d.body.Append(tac.Load{Base: at, Dst: tac.Var{V: dst}, Src: tac.Ref{Of: tac.Var{V: lv}}})
		return false, nil

	// ---------- indirect access ----------
	case symbols.OpLdind:
		addr, e := pop()
		if e != nil {
			return false, e
		}
		dst, e := push()
		if e != nil {
			return false, e
		}
		d.body.Append(tac.Load{Base: at, Dst: tac.Var{V: dst}, Src: tac.Deref{Addr: addr}})
		return false, nil

	case symbols.OpStind:
		val, e := pop()
		if e != nil {
			return false, e
		}
		addr, e := pop()
		if e != nil {
			return false, e
		}
		d.body.Append(tac.Store{Base: at, Dst: tac.Deref{Addr: addr}, Src: v(val)})
		return false, nil

	// ---------- field access ----------
	case symbols.OpLdfld:
		obj, e := pop()
		if e != nil {
			return false, e
		}
		dst, e := push()
		if e != nil {
			return false, e
		}
		d.body.Append(tac.Load{Base: at, Dst: tac.Var{V: dst}, Src: tac.InstField{Obj: obj, Name: op.Operand.Field.Name}})
		return false, nil

	case symbols.OpStfld:
		val, e := pop()
		if e != nil {
			return false, e
		}
		obj, e := pop()
		if e != nil {
			return false, e
		}
		d.body.Append(tac.Store{Base: at, Dst: tac.InstField{Obj: obj, Name: op.Operand.Field.Name}, Src: v(val)})
		return false, nil

	case symbols.OpLdflda:
		obj, e := pop()
		if e != nil {
			return false, e
		}
		dst, e := push()
		if e != nil {
			return false, e
		}
		d.body.Append(tac.Load{Base: at, Dst: tac.Var{V: dst}, Src: tac.Ref{Of: tac.InstField{Obj: obj, Name: op.Operand.Field.Name}}})
		return false, nil

	case symbols.OpLdsfld:
		dst, e := push()
		if e != nil {
			return false, e
		}
		d.body.Append(tac.Load{Base: at, Dst: tac.Var{V: dst}, Src: tac.StaticField{Type: op.Operand.Type, Name: op.Operand.Field.Name}})
		return false, nil

	case symbols.OpStsfld:
		val, e := pop()
		if e != nil {
			return false, e
		}
		d.body.Append(tac.Store{Base: at, Dst: tac.StaticField{Type: op.Operand.Type, Name: op.Operand.Field.Name}, Src: v(val)})
		return false, nil

	case symbols.OpLdsflda:
		dst, e := push()
		if e != nil {
			return false, e
		}
		d.body.Append(tac.Load{Base: at, Dst: tac.Var{V: dst}, Src: tac.Ref{Of: tac.StaticField{Type: op.Operand.Type, Name: op.Operand.Field.Name}}})
		return false, nil

	// ---------- arrays ----------
	case symbols.OpNewarr:
		size, e := pop()
		if e != nil {
			return false, e
		}
		dst, e := push()
		if e != nil {
			return false, e
		}
		d.body.Append(tac.NewArray{
			Base: at, Dst: tac.Var{V: dst}, ElemType: op.Operand.Type, Rank: 1,
			Sizes: []tac.TacOperand{v(size)},
		})
		return false, nil

	case symbols.OpLdlen:
		arr, e := pop()
		if e != nil {
			return false, e
		}
		dst, e := push()
		if e != nil {
			return false, e
		}
		d.body.Append(tac.Load{Base: at, Dst: tac.Var{V: dst}, Src: tac.InstField{Obj: arr, Name: "Length"}})
		return false, nil

	case symbols.OpLdelem:
		idx, e := pop()
		if e != nil {
			return false, e
		}
		arr, e := pop()
		if e != nil {
			return false, e
		}
		dst, e := push()
		if e != nil {
			return false, e
		}
		d.body.Append(tac.Load{Base: at, Dst: tac.Var{V: dst}, Src: tac.ArrayElem{Array: arr, Index: idx}})
		return false, nil

	case symbols.OpStelem:
		val, e := pop()
		if e != nil {
			return false, e
		}
		idx, e := pop()
		if e != nil {
			return false, e
		}
		arr, e := pop()
		if e != nil {
			return false, e
		}
		d.body.Append(tac.Store{Base: at, Dst: tac.ArrayElem{Array: arr, Index: idx}, Src: v(val)})
		return false, nil

	case symbols.OpLdelema:
		idx, e := pop()
		if e != nil {
			return false, e
		}
		arr, e := pop()
		if e != nil {
			return false, e
		}
		dst, e := push()
		if e != nil {
			return false, e
		}
		d.body.Append(tac.Load{Base: at, Dst: tac.Var{V: dst}, Src: tac.Ref{Of: tac.ArrayElem{Array: arr, Index: idx}}})
		return false, nil

	// ---------- binary arithmetic / logical / shift / compare ----------
	case symbols.OpAdd, symbols.OpSub, symbols.OpMul, symbols.OpDiv, symbols.OpRem,
		symbols.OpAnd, symbols.OpOr, symbols.OpXor, symbols.OpShl, symbols.OpShr,
		symbols.OpCeq, symbols.OpCgt, symbols.OpClt:
		right, e := pop()
		if e != nil {
			return false, e
		}
		left, e := pop()
		if e != nil {
			return false, e
		}
		dst, e := push()
		if e != nil {
			return false, e
		}
		d.body.Append(tac.BinOp{Base: at, Dst: tac.Var{V: dst}, Left: v(left), Op: binOpKind(op.Opcode), Right: v(right)})
		return false, nil

	// ---------- unary ----------
	case symbols.OpNeg, symbols.OpNot:
		src, e := pop()
		if e != nil {
			return false, e
		}
		dst, e := push()
		if e != nil {
			return false, e
		}
		k := tac.Neg
		if op.Opcode == symbols.OpNot {
			k = tac.Not
		}
		d.body.Append(tac.UnOp{Base: at, Dst: tac.Var{V: dst}, Src: v(src), Op: k})
		return false, nil

	// ---------- conversions ----------
	case symbols.OpConvI1, symbols.OpConvI2, symbols.OpConvI4, symbols.OpConvI8,
		symbols.OpConvU1, symbols.OpConvU2, symbols.OpConvU4, symbols.OpConvU8,
		symbols.OpConvI, symbols.OpConvU, symbols.OpConvR4, symbols.OpConvR8:
		src, e := pop()
		if e != nil {
			return false, e
		}
		dst, e := push()
		if e != nil {
			return false, e
		}
		target := op.Operand.Type
		if target == nil {
			target = d.platformConvTarget(op.Opcode)
		}
		d.body.Append(tac.Convert{Base: at, Dst: tac.Var{V: dst}, Type: target, Src: v(src)})
		return false, nil

	case symbols.OpIsinst, symbols.OpCastclass, symbols.OpBox, symbols.OpUnbox:
		src, e := pop()
		if e != nil {
			return false, e
		}
		dst, e := push()
		if e != nil {
			return false, e
		}
		// These carry a reference type, always supplied explicitly by
		// the decoder -- there is no opcode-implied fallback for them.
		d.body.Append(tac.Convert{Base: at, Dst: tac.Var{V: dst}, Type: op.Operand.Type, Src: v(src)})
		return false, nil

	// ---------- calls ----------
	case symbols.OpCall, symbols.OpCallvirt:
		return false, d.liftCall(at, op, op.Opcode == symbols.OpCallvirt)

	case symbols.OpCalli:
		return false, d.liftCalli(at, op)

	case symbols.OpNewobj:
		return false, d.liftNewobj(at, op)

	case symbols.OpJmp:
		return false, d.liftJmp(at, op)

	// ---------- branches ----------
	case symbols.OpBr:
		d.body.Append(tac.Branch{Base: at, Target: op.Operand.BranchTarget})
		return true, d.addPending(op.Operand.BranchTarget, uint16(d.st.Size()))

	case symbols.OpBrtrue, symbols.OpBrfalse:
		val, e := pop()
		if e != nil {
			return false, e
		}
		want := op.Opcode == symbols.OpBrtrue
		d.body.Append(tac.CondBranch{Base: at, Left: v(val), Cmp: tac.CmpEq, Right: tac.Const{Value: want}, Target: op.Operand.BranchTarget})
		return false, d.addPending(op.Operand.BranchTarget, uint16(d.st.Size()))

	case symbols.OpBeq, symbols.OpBne, symbols.OpBlt, symbols.OpBle, symbols.OpBgt, symbols.OpBge:
		right, e := pop()
		if e != nil {
			return false, e
		}
		left, e := pop()
		if e != nil {
			return false, e
		}
		d.body.Append(tac.CondBranch{Base: at, Left: v(left), Cmp: cmpKind(op.Opcode), Right: v(right), Target: op.Operand.BranchTarget})
		return false, d.addPending(op.Operand.BranchTarget, uint16(d.st.Size()))

	case symbols.OpSwitch:
		operand, e := pop()
		if e != nil {
			return false, e
		}
		d.body.Append(tac.Switch{Base: at, Operand: v(operand), Targets: op.Operand.SwitchTargets})
		for _, t := range op.Operand.SwitchTargets {
			if e := d.addPending(t, uint16(d.st.Size())); e != nil {
				return false, e
			}
		}
		return false, nil

	// ---------- exception flow ----------
	case symbols.OpLeave:
		return true, d.liftLeave(at, op)

	case symbols.OpEndfinally, symbols.OpEndfilter:
		return true, d.liftEndFinally(at, op)

	case symbols.OpThrow:
		exc, e := pop()
		if e != nil {
			return false, e
		}
		d.st.Clear()
		d.body.Append(tac.Throw{Base: at, Exc: v(exc)})
		return true, nil

	case symbols.OpRethrow:
		d.st.Clear()
		d.body.Append(tac.Throw{Base: at})
		return true, nil

	// ---------- returns ----------
	case symbols.OpRet:
		sig := d.method.ReturnType()
		var val tac.TacOperand
		if sig != nil && sig.Kind() != symbols.KindVoid {
			t, e := pop()
			if e != nil {
				return false, e
			}
			val = v(t)
		}
		d.body.Append(tac.Return{Base: at, Value: val})
		return true, nil

	// ---------- misc ----------
	case symbols.OpSizeof:
		dst, e := push()
		if e != nil {
			return false, e
		}
		d.body.Append(tac.Sizeof{Base: at, Dst: tac.Var{V: dst}, Type: op.Operand.Type})
		return false, nil

	case symbols.OpLocalloc:
		size, e := pop()
		if e != nil {
			return false, e
		}
		dst, e := push()
		if e != nil {
			return false, e
		}
		d.body.Append(tac.LocalAlloc{Base: at, Dst: tac.Var{V: dst}, Size: v(size)})
		return false, nil

	case symbols.OpCpblk:
		size, e := pop()
		if e != nil {
			return false, e
		}
		src, e := pop()
		if e != nil {
			return false, e
		}
		dst, e := pop()
		if e != nil {
			return false, e
		}
		d.body.Append(tac.CopyMem{Base: at, Dst: v(dst), Src: v(src), Size: v(size)})
		return false, nil

	case symbols.OpCpobj:
		src, e := pop()
		if e != nil {
			return false, e
		}
		dst, e := pop()
		if e != nil {
			return false, e
		}
		d.body.Append(tac.CopyObj{Base: at, Dst: v(dst), Src: v(src), Type: op.Operand.Type})
		return false, nil

	case symbols.OpInitblk:
		size, e := pop()
		if e != nil {
			return false, e
		}
		_, e = pop() // fill value: not modelled as a distinct field
		if e != nil {
			return false, e
		}
		dst, e := pop()
		if e != nil {
			return false, e
		}
		d.body.Append(tac.InitMem{Base: at, Dst: v(dst), Size: v(size)})
		return false, nil

	case symbols.OpInitobj:
		dst, e := pop()
		if e != nil {
			return false, e
		}
		d.body.Append(tac.InitObj{Base: at, Dst: v(dst), Type: op.Operand.Type})
		return false, nil

	case symbols.OpLdtoken:
		if op.Operand.Type == nil {
			return false, newError(NullTypeToken, d.method, op.Offset, errNullTypeToken)
		}
		dst, e := push()
		if e != nil {
			return false, e
		}
		d.body.Append(tac.LoadToken{Base: at, Dst: tac.Var{V: dst}, Type: op.Operand.Type})
		return false, nil

	// ---------- deliberately unsupported ----------
	case symbols.OpArglist, symbols.OpCkfinite, symbols.OpReadonly, symbols.OpRefanytype,
		symbols.OpRefanyval, symbols.OpMkrefany, symbols.OpTail, symbols.OpUnaligned, symbols.OpVolatile:
		return false, newError(UnknownOpcode, d.method, op.Offset, errUnsupportedOpcode)

	default:
		return false, newError(UnknownOpcode, d.method, op.Offset, errUnsupportedOpcode)
	}
}

func (d *driver) loadConst(at tac.Base, value interface{}, push func() (tac.Temp, error)) error {
	dst, e := push()
	if e != nil {
		return e
	}
	d.body.Append(tac.Load{Base: at, Dst: tac.Var{V: dst}, Src: tac.Const{Value: value}})
	return nil
}

func (d *driver) paramVariable(ilIndex int) tac.Variable {
	if !d.method.IsStatic() {
		if ilIndex == 0 {
			return tac.ThisParam{}
		}
		return tac.Param{Index: ilIndex - 1}
	}
	return tac.Param{Index: ilIndex}
}

func (d *driver) localVariable(index int) tac.Variable {
	for _, lv := range d.raw.LocalVariables {
		if lv.Index == index {
			return tac.Local{Name: d.localName(lv)}
		}
	}
	return tac.Local{Name: d.localName(symbols.LocalInfo{Index: index})}
}

// platformConvTarget maps a Conv_* opcode to the platform primitive it
// implies, for decoders that leave Operand.Type unset on the (common)
// assumption that the opcode alone already determines the target.
func (d *driver) platformConvTarget(op symbols.OpKind) symbols.TypeRef {
	switch op {
	case symbols.OpConvI1:
		return d.platform.Int8
	case symbols.OpConvI2:
		return d.platform.Int16
	case symbols.OpConvI4:
		return d.platform.Int32
	case symbols.OpConvI8:
		return d.platform.Int64
	case symbols.OpConvU1:
		return d.platform.UInt8
	case symbols.OpConvU2:
		return d.platform.UInt16
	case symbols.OpConvU4:
		return d.platform.UInt32
	case symbols.OpConvU8:
		return d.platform.UInt64
	case symbols.OpConvI:
		return d.platform.IntPtr
	case symbols.OpConvU:
		return d.platform.UIntPtr
	case symbols.OpConvR4:
		return d.platform.Float32
	case symbols.OpConvR8:
		return d.platform.Float64
	default:
		return d.platform.Int32
	}
}

var (
	errNullTypeToken    = plainError("ldtoken with no type reference")
	errUnsupportedOpcode = plainError("opcode has no transfer rule")
)

type plainError string

func (e plainError) Error() string { return string(e) }

func binOpKind(op symbols.OpKind) tac.BinOpKind {
	switch op {
	case symbols.OpAdd:
		return tac.Add
	case symbols.OpSub:
		return tac.Sub
	case symbols.OpMul:
		return tac.Mul
	case symbols.OpDiv:
		return tac.Div
	case symbols.OpRem:
		return tac.Rem
	case symbols.OpAnd:
		return tac.And
	case symbols.OpOr:
		return tac.Or
	case symbols.OpXor:
		return tac.Xor
	case symbols.OpShl:
		return tac.Shl
	case symbols.OpShr:
		return tac.Shr
	case symbols.OpCeq:
		return tac.Eq
	case symbols.OpCgt:
		return tac.Gt
	case symbols.OpClt:
		return tac.Lt
	default:
		return tac.Add
	}
}

func cmpKind(op symbols.OpKind) tac.CmpKind {
	switch op {
	case symbols.OpBeq:
		return tac.CmpEq
	case symbols.OpBne:
		return tac.CmpNe
	case symbols.OpBlt:
		return tac.CmpLt
	case symbols.OpBle:
		return tac.CmpLe
	case symbols.OpBgt:
		return tac.CmpGt
	case symbols.OpBge:
		return tac.CmpGe
	default:
		return tac.CmpEq
	}
}
