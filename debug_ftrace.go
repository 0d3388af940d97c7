// debug_ftrace.go - Function call/return tracer fed by jal/jalr commits

package main

import (
	"fmt"
	"io"
)

// isLinkReg reports whether a register index is one of the RISC-V link
// registers (ra or t0).
func isLinkReg(n int) bool {
	return n == 1 || n == 5
}

// FuncTracer classifies committed jumps as calls or returns from their
// link-register pattern and prints each with the ELF symbol containing
// the destination.
type FuncTracer struct {
	w       io.Writer
	symbols *SymbolTable
}

// NewFuncTracer builds a tracer writing to w with symbols for
// destination lookup.
func NewFuncTracer(w io.Writer, symbols *SymbolTable) *FuncTracer {
	return &FuncTracer{w: w, symbols: symbols}
}

// Trace inspects one committed jal/jalr. rd is the destination register
// index and rs1 the source (0 for direct jumps). A link destination marks
// a call, a link source marks a return; when both are link registers the
// same-register form is a call (e.g. recursing through ra) and the
// mixed form a return.
func (ft *FuncTracer) Trace(pc, dnpc uint32, rd, rs1 int) {
	var kind string
	switch {
	case isLinkReg(rs1) && isLinkReg(rd) && rs1 == rd:
		kind = "call"
	case isLinkReg(rs1) && isLinkReg(rd):
		kind = "ret"
	case isLinkReg(rs1):
		kind = "ret"
	case isLinkReg(rd):
		kind = "call"
	default:
		return
	}
	fmt.Fprintf(ft.w, "cur pc :%x %s %x go :%s\n", pc, kind, dnpc, ft.symbols.PCToName(dnpc))
}
