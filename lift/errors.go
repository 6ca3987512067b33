package lift

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/tiandiyixian/bytecode-analysis/symbols"
)

// ErrorKind enumerates the lift error taxonomy.
type ErrorKind int

const (
	StackOverflow ErrorKind = iota
	StackUnderflow
	StackSizeMismatch
	ArgumentCountMismatch
	UnknownOpcode
	NullTypeToken
)

func (k ErrorKind) String() string {
	switch k {
	case StackOverflow:
		return "stack overflow"
	case StackUnderflow:
		return "stack underflow"
	case StackSizeMismatch:
		return "stack size mismatch"
	case ArgumentCountMismatch:
		return "argument count mismatch"
	case UnknownOpcode:
		return "unknown opcode"
	case NullTypeToken:
		return "null type token"
	default:
		return "lift error"
	}
}

// Fatal reports whether errors of this kind abort the lift of the
// current method outright, versus being recorded as a Diagnostic and
// skipped. Only UnknownOpcode is recoverable.
func (k ErrorKind) Fatal() bool { return k != UnknownOpcode }

// Error is the concrete error type for every lift failure. It wraps
// its cause with github.com/pkg/errors so a "%+v" format in
// development builds carries a stack trace back to the call that
// raised it.
type Error struct {
	Kind   ErrorKind
	Method symbols.MethodRef
	Offset uint32
	cause  error
}

func newError(kind ErrorKind, method symbols.MethodRef, offset uint32, cause error) *Error {
	return &Error{Kind: kind, Method: method, Offset: offset, cause: errors.WithStack(cause)}
}

func (e *Error) Error() string {
	name := "?"
	if e.Method != nil {
		name = e.Method.Name()
	}
	return fmt.Sprintf("%s: %s at offset %d: %v", name, e.Kind, e.Offset, e.cause)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// Diagnostic is a non-fatal finding recorded during a lift:
// UnknownOpcode does not abort the method, it is appended here and
// lifting continues.
type Diagnostic struct {
	Offset  uint32
	Kind    ErrorKind
	Message string
}
