package tac

import "github.com/tiandiyixian/bytecode-analysis/symbols"

// BlockStatus is the worklist status of a BasicBlock during lifting.
type BlockStatus int

const (
	None BlockStatus = iota
	Pending
	Processed
)

// BasicBlock is a maximal straight-line run of TAC instructions, one
// per leader offset discovered by the basic-block recognizer.
type BasicBlock struct {
	Offset           uint32
	CanFallThrough   bool
	StackSizeAtEntry uint16
	Status           BlockStatus
	Instrs           []TacInstr
}

// CatchInfo describes one catch handler registered against a try
// region.
type CatchInfo struct {
	BeginOffset uint32
	EndOffset   uint32
	ExcType     symbols.TypeRef
}

// FinallyInfo describes the finally block of a try region, if any.
type FinallyInfo struct {
	BeginOffset uint32
	EndOffset   uint32
}

// TryRegion is one try block and its attached handlers, keyed by its
// begin offset in the exception-region index.
type TryRegion struct {
	BeginOffset uint32
	EndOffset   uint32
	Handlers    map[uint32]CatchInfo // keyed by handler begin offset
	Finally     *FinallyInfo
}

// MethodBody is the lifted three-address-code representation of one
// method: every Variable referenced by Instrs is present in Variables,
// and every Temp(i) satisfies i < maxStack because Variables is seeded
// with every stack slot up front.
type MethodBody struct {
	Variables map[Variable]struct{}
	Instrs    []TacInstr
}

// NewMethodBody returns an empty body ready for the lifter to
// populate.
func NewMethodBody() *MethodBody {
	return &MethodBody{Variables: make(map[Variable]struct{})}
}

// Declare registers v as live in the body so any instruction that
// subsequently references it finds it present in Variables.
func (b *MethodBody) Declare(v Variable) {
	b.Variables[v] = struct{}{}
}

// Has reports whether v was declared in this body.
func (b *MethodBody) Has(v Variable) bool {
	_, ok := b.Variables[v]
	return ok
}

// Append adds instr to the body's instruction stream in order.
func (b *MethodBody) Append(instr TacInstr) {
	b.Instrs = append(b.Instrs, instr)
}
