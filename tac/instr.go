package tac

import (
	"fmt"
	"strings"

	"github.com/tiandiyixian/bytecode-analysis/symbols"
)

// BinOpKind enumerates the abstract binary operators. Overflow-checked
// and unsigned variants of the same operation collapse to one kind
// here: dataflow consumers only see the abstract op.
type BinOpKind int

const (
	Add BinOpKind = iota
	Sub
	Mul
	Div
	Rem
	And
	Or
	Xor
	Shl
	Shr
	Eq
	Gt
	Lt
)

func (k BinOpKind) String() string {
	return [...]string{"add", "sub", "mul", "div", "rem", "and", "or", "xor", "shl", "shr", "eq", "gt", "lt"}[k]
}

// UnOpKind enumerates the abstract unary operators.
type UnOpKind int

const (
	Neg UnOpKind = iota
	Not
)

func (k UnOpKind) String() string {
	return [...]string{"neg", "not"}[k]
}

// TacInstr is the tagged instruction variant. Every case carries its
// source offset (field Offset) so diagnostics and the exception-region
// index can relate TAC back to the raw bytecode it came from.
type TacInstr interface {
	isTacInstr()
	Off() uint32
	String() string
}

type Base struct{ Offset uint32 }

func (b Base) Off() uint32 { return b.Offset }

type Load struct {
	Base
	Dst Place
	Src TacOperand
}

func (Load) isTacInstr() {}
func (i Load) String() string {
	return fmt.Sprintf("%s = %s", i.Dst, i.Src)
}

type Store struct {
	Base
	Dst Place
	Src TacOperand
}

func (Store) isTacInstr() {}
func (i Store) String() string {
	return fmt.Sprintf("%s := %s", i.Dst, i.Src)
}

type BinOp struct {
	Base
	Dst         Place
	Left, Right TacOperand
	Op          BinOpKind
}

func (BinOp) isTacInstr() {}
func (i BinOp) String() string {
	return fmt.Sprintf("%s = %s %s %s", i.Dst, i.Left, i.Op, i.Right)
}

type UnOp struct {
	Base
	Dst Place
	Src TacOperand
	Op  UnOpKind
}

func (UnOp) isTacInstr() {}
func (i UnOp) String() string {
	return fmt.Sprintf("%s = %s %s", i.Dst, i.Op, i.Src)
}

type Convert struct {
	Base
	Dst  Place
	Type symbols.TypeRef
	Src  TacOperand
}

func (Convert) isTacInstr() {}
func (i Convert) String() string {
	return fmt.Sprintf("%s = convert<%s>(%s)", i.Dst, i.Type, i.Src)
}

// Branch is an unconditional transfer. FinallyEntry marks the
// trailing-sentinel case for Leave inside a finally-only (no catch)
// region: Target is the finally's begin offset rather than the
// textual leave target.
type Branch struct {
	Base
	Target       uint32
	FinallyEntry bool
}

func (Branch) isTacInstr() {}
func (i Branch) String() string {
	if i.FinallyEntry {
		return fmt.Sprintf("goto L%d (finally)", i.Target)
	}
	return fmt.Sprintf("goto L%d", i.Target)
}

type CmpKind int

const (
	CmpEq CmpKind = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
)

func (k CmpKind) String() string {
	return [...]string{"==", "!=", "<", "<=", ">", ">="}[k]
}

type CondBranch struct {
	Base
	Left, Right TacOperand
	Cmp         CmpKind
	Target      uint32
}

func (CondBranch) isTacInstr() {}
func (i CondBranch) String() string {
	return fmt.Sprintf("if %s %s %s goto L%d", i.Left, i.Cmp, i.Right, i.Target)
}

// ExcBranch models a potential transfer to a catch handler, emitted
// while lowering Leave inside a try region.
type ExcBranch struct {
	Base
	Target  uint32
	ExcType symbols.TypeRef
}

func (ExcBranch) isTacInstr() {}
func (i ExcBranch) String() string {
	return fmt.Sprintf("catch<%s> goto L%d", i.ExcType, i.Target)
}

type Switch struct {
	Base
	Operand TacOperand
	Targets []uint32
}

func (Switch) isTacInstr() {}
func (i Switch) String() string {
	ls := make([]string, len(i.Targets))
	for j, t := range i.Targets {
		ls[j] = fmt.Sprintf("L%d", t)
	}
	return fmt.Sprintf("switch %s [%s]", i.Operand, strings.Join(ls, ", "))
}

// Call is a direct or virtual call. Virtual marks a Callvirt lowering
// on a non-static callee, so the call-graph stage knows to devirtualize
// against the receiver's points-to set in addition to recording the
// static edge to Callee: Args[0] is the receiver for any non-static
// Callee, virtual or not.
type Call struct {
	Base
	Dst     Place // nil if void
	Callee  symbols.MethodRef
	Args    []TacOperand
	Virtual bool
}

func (Call) isTacInstr() {}
func (i Call) String() string {
	pre := ""
	if i.Dst != nil {
		pre = i.Dst.String() + " = "
	}
	tag := "call"
	if i.Virtual {
		tag = "callvirt"
	}
	name := "?"
	if i.Callee != nil {
		name = i.Callee.Name()
	}
	return fmt.Sprintf("%s%s %s(%s)", pre, tag, name, joinOperands(i.Args))
}

type IndirectCall struct {
	Base
	Dst   Place
	FnPtr Variable
	Sig   symbols.TypeRef
	Args  []TacOperand
}

func (IndirectCall) isTacInstr() {}
func (i IndirectCall) String() string {
	pre := ""
	if i.Dst != nil {
		pre = i.Dst.String() + " = "
	}
	return fmt.Sprintf("%scalli %s(%s)", pre, i.FnPtr, joinOperands(i.Args))
}

type NewObj struct {
	Base
	Dst  Place
	Ctor symbols.MethodRef
	Args []TacOperand
}

func (NewObj) isTacInstr() {}
func (i NewObj) String() string {
	return fmt.Sprintf("%s = new %s(%s)", i.Dst, i.Ctor.ContainingType(), joinOperands(i.Args))
}

type NewArray struct {
	Base
	Dst         Place
	ElemType    symbols.TypeRef
	Rank        int
	LowerBounds []TacOperand
	Sizes       []TacOperand
}

func (NewArray) isTacInstr() {}
func (i NewArray) String() string {
	return fmt.Sprintf("%s = newarray<%s>[%s]", i.Dst, i.ElemType, joinOperands(i.Sizes))
}

type Return struct {
	Base
	Value TacOperand // nil for void
}

func (Return) isTacInstr() {}
func (i Return) String() string {
	if i.Value == nil {
		return "return"
	}
	return "return " + i.Value.String()
}

type Throw struct {
	Base
	Exc TacOperand // nil for Rethrow
}

func (Throw) isTacInstr() {}
func (i Throw) String() string {
	if i.Exc == nil {
		return "rethrow"
	}
	return "throw " + i.Exc.String()
}

type Try struct {
	Base
}

func (Try) isTacInstr()      {}
func (i Try) String() string { return fmt.Sprintf("try:") }

type Catch struct {
	Base
	ExcVar  Variable
	ExcType symbols.TypeRef
}

func (Catch) isTacInstr() {}
func (i Catch) String() string {
	return fmt.Sprintf("catch (%s %s):", i.ExcType, i.ExcVar)
}

type Finally struct {
	Base
}

func (Finally) isTacInstr()      {}
func (i Finally) String() string { return "finally:" }

type Sizeof struct {
	Base
	Dst  Place
	Type symbols.TypeRef
}

func (Sizeof) isTacInstr() {}
func (i Sizeof) String() string {
	return fmt.Sprintf("%s = sizeof(%s)", i.Dst, i.Type)
}

type LocalAlloc struct {
	Base
	Dst  Place
	Size TacOperand
}

func (LocalAlloc) isTacInstr() {}
func (i LocalAlloc) String() string {
	return fmt.Sprintf("%s = localloc(%s)", i.Dst, i.Size)
}

type CopyMem struct {
	Base
	Dst, Src, Size TacOperand
}

func (CopyMem) isTacInstr() {}
func (i CopyMem) String() string {
	return fmt.Sprintf("cpblk(%s, %s, %s)", i.Dst, i.Src, i.Size)
}

type CopyObj struct {
	Base
	Dst, Src TacOperand
	Type     symbols.TypeRef
}

func (CopyObj) isTacInstr() {}
func (i CopyObj) String() string {
	return fmt.Sprintf("cpobj<%s>(%s, %s)", i.Type, i.Dst, i.Src)
}

type InitMem struct {
	Base
	Dst, Size TacOperand
}

func (InitMem) isTacInstr() {}
func (i InitMem) String() string {
	return fmt.Sprintf("initblk(%s, %s)", i.Dst, i.Size)
}

type InitObj struct {
	Base
	Dst  TacOperand
	Type symbols.TypeRef
}

func (InitObj) isTacInstr() {}
func (i InitObj) String() string {
	return fmt.Sprintf("initobj<%s>(%s)", i.Type, i.Dst)
}

type LoadToken struct {
	Base
	Dst  Place
	Type symbols.TypeRef
}

func (LoadToken) isTacInstr() {}
func (i LoadToken) String() string {
	return fmt.Sprintf("%s = ldtoken(%s)", i.Dst, i.Type)
}

type Nop struct{ Base }

func (Nop) isTacInstr()      {}
func (i Nop) String() string { return "nop" }

type Breakpoint struct{ Base }

func (Breakpoint) isTacInstr()      {}
func (i Breakpoint) String() string { return "breakpoint" }

func joinOperands(ops []TacOperand) string {
	ss := make([]string, len(ops))
	for i, o := range ops {
		ss[i] = o.String()
	}
	return strings.Join(ss, ", ")
}

// At constructs the embeddable Base for a TAC instruction at the given
// source offset: tac.Load{Base: tac.At(off), Dst: d, Src: s}.
func At(off uint32) Base { return Base{Offset: off} }
