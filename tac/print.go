package tac

// This file implements a WriteTo dumper for MethodBody: a textual
// per-instruction disassembly of the lifted three-address code.

import (
	"fmt"
	"io"
	"strings"
)

// WriteTo writes a disassembly-style listing of the body's
// instructions, one per line, labelled by offset.
func (b *MethodBody) WriteTo(w io.Writer) (int64, error) {
	var n int
	for _, instr := range b.Instrs {
		m, err := fmt.Fprintf(w, "%5d: %s\n", instr.Off(), instr)
		n += m
		if err != nil {
			return int64(n), err
		}
	}
	return int64(n), nil
}

func (b *MethodBody) String() string {
	var sb strings.Builder
	b.WriteTo(&sb)
	return sb.String()
}
