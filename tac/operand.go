package tac

import (
	"fmt"

	"github.com/tiandiyixian/bytecode-analysis/symbols"
)

// Place is anything addressable: a Variable, a field access, or an
// array element. It is the subset of TacOperand that may appear as a
// store destination.
type Place interface {
	TacOperand
	isPlace()
}

// TacOperand is the tagged operand variant.
type TacOperand interface {
	isTacOperand()
	String() string
}

// Var wraps a Variable as an operand.
type Var struct{ V Variable }

func (Var) isTacOperand()   {}
func (Var) isPlace()        {}
func (o Var) String() string { return o.V.String() }

// Const is a literal value. Value holds the Go-native representation
// (int32, int64, float32, float64, string, nil, or bool) chosen by
// the lowering rule that produced it.
type Const struct{ Value interface{} }

func (Const) isTacOperand() {}
func (c Const) String() string {
	if c.Value == nil {
		return "null"
	}
	return fmt.Sprintf("%v", c.Value)
}

// Ref takes the address of a Place.
type Ref struct{ Of Place }

func (Ref) isTacOperand()   {}
func (r Ref) String() string { return "&" + r.Of.String() }

// Deref dereferences an address held in Variable.
type Deref struct{ Addr Variable }

func (Deref) isTacOperand()   {}
func (Deref) isPlace()        {}
func (d Deref) String() string { return "*" + d.Addr.String() }

// InstField accesses an instance field by name on Obj.
type InstField struct {
	Obj  Variable
	Name string
}

func (InstField) isTacOperand()   {}
func (InstField) isPlace()        {}
func (f InstField) String() string { return fmt.Sprintf("%s.%s", f.Obj, f.Name) }

// StaticField accesses a static field of Type by name.
type StaticField struct {
	Type symbols.TypeRef
	Name string
}

func (StaticField) isTacOperand() {}
func (StaticField) isPlace()      {}
func (f StaticField) String() string {
	return fmt.Sprintf("%s::%s", f.Type, f.Name)
}

// ArrayElem accesses Array[Index].
type ArrayElem struct {
	Array Variable
	Index Variable
}

func (ArrayElem) isTacOperand()   {}
func (ArrayElem) isPlace()        {}
func (a ArrayElem) String() string { return fmt.Sprintf("%s[%s]", a.Array, a.Index) }

// MethodPtr denotes a function pointer, optionally bound to a
// receiver (virtual dispatch target / delegate creation).
type MethodPtr struct {
	Method   symbols.MethodRef
	Receiver Variable // nil if none
}

func (MethodPtr) isTacOperand() {}
func (m MethodPtr) String() string {
	if m.Receiver != nil {
		return fmt.Sprintf("&%s::%s", m.Receiver, m.Method.Name())
	}
	return "&" + m.Method.Name()
}
