// Package stack implements the fixed-capacity operand-stack model used
// during bytecode lifting: a pre-allocated array of Temp variables
// indexed 0..cap-1, with a top cursor. The slots are an arena grown
// once and referenced by index thereafter, fixed-size because maxStack
// is known up front from the method header.
package stack

import (
	"github.com/pkg/errors"
	"github.com/tiandiyixian/bytecode-analysis/tac"
)

// ErrOverflow and ErrUnderflow are the bare sentinels; the lifter wraps
// them with lift.ErrorKind StackOverflow/StackUnderflow plus the
// offset/method context that raised them.
var (
	ErrOverflow  = errors.New("operand stack overflow")
	ErrUnderflow = errors.New("operand stack underflow")
)

// OperandStack is the symbolic execution stack used while lifting one
// method. Its slots are the Temp(0..cap-1) variables that later
// dataflow passes need stable identities for: the set of all temps,
// not just the live ones, must be registered in the body's variable
// set.
type OperandStack struct {
	slots []tac.Temp
	top   int
}

// New returns an operand stack with the given fixed capacity
// (maxStack from the method header).
func New(capacity uint16) *OperandStack {
	slots := make([]tac.Temp, capacity)
	for i := range slots {
		slots[i] = tac.Temp{Index: i}
	}
	return &OperandStack{slots: slots}
}

// Cap returns the stack's fixed capacity.
func (s *OperandStack) Cap() int { return len(s.slots) }

// Size returns the current number of live slots.
func (s *OperandStack) Size() int { return s.top }

// SetSize forcibly sets the cursor, used when a block's recorded
// stackSizeAtEntry is restored at the start of symbolic execution.
func (s *OperandStack) SetSize(n uint16) { s.top = int(n) }

// Push returns the next Temp slot and advances the cursor.
func (s *OperandStack) Push() (tac.Temp, error) {
	if s.top >= len(s.slots) {
		return tac.Temp{}, ErrOverflow
	}
	t := s.slots[s.top]
	s.top++
	return t, nil
}

// Pop retreats the cursor and returns the Temp slot it vacated.
func (s *OperandStack) Pop() (tac.Temp, error) {
	if s.top == 0 {
		return tac.Temp{}, ErrUnderflow
	}
	s.top--
	return s.slots[s.top], nil
}

// Peek returns the top Temp slot without moving the cursor.
func (s *OperandStack) Peek() (tac.Temp, error) {
	if s.top == 0 {
		return tac.Temp{}, ErrUnderflow
	}
	return s.slots[s.top-1], nil
}

// Clear resets the cursor to empty, used at exception-region
// boundaries (Leave, EndFinally, Throw).
func (s *OperandStack) Clear() { s.top = 0 }

// AllTemps returns every pre-allocated Temp, live or not, for
// registration in MethodBody.Variables up front so later passes never
// see a reference to an undeclared Temp.
func (s *OperandStack) AllTemps() []tac.Temp {
	out := make([]tac.Temp, len(s.slots))
	copy(out, s.slots)
	return out
}
