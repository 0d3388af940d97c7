// cpu_rv32.go - RV32I architectural state

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/intuitionamiga/RV32Engine
License: GPLv3 or later
*/

package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// CSR numbers recognised by the Zicsr handlers. Anything else reads zero
// and drops writes.
const (
	CSR_MSTATUS = 0x300
	CSR_MTVEC   = 0x305
	CSR_MEPC    = 0x341
	CSR_MCAUSE  = 0x342
)

// MSTATUS_RESET is the machine-mode reset value (MPP = 11).
const MSTATUS_RESET = 0x1800

// CSRFile holds the four control/status registers the core models.
type CSRFile struct {
	Mstatus uint32
	Mtvec   uint32
	Mepc    uint32
	Mcause  uint32
}

// CPUState is the architectural state of the RV32 core: 32 general
// registers, the program counter and the CSR file. Register x0 is
// hardwired to zero through Reg/SetReg; the backing slot is never written.
type CPUState struct {
	gpr [32]uint32
	pc  uint32
	csr CSRFile
}

// regNames lists the RV32I ABI register names in index order. Index 0 is
// spelled "$0" to match the debugger's register syntax.
var regNames = [32]string{
	"$0", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

// Reset restores the power-on state: PC at the image base, machine-mode
// mstatus, everything else zero.
func (c *CPUState) Reset() {
	*c = CPUState{}
	c.pc = PMEM_BASE
	c.csr.Mstatus = MSTATUS_RESET
}

// Reg reads general register i; x0 always reads zero.
func (c *CPUState) Reg(i int) uint32 {
	if i == 0 {
		return 0
	}
	return c.gpr[i]
}

// SetReg writes general register i; writes to x0 are dropped.
func (c *CPUState) SetReg(i int, v uint32) {
	if i != 0 {
		c.gpr[i] = v
	}
}

// PC returns the program counter.
func (c *CPUState) PC() uint32 { return c.pc }

// SetPC sets the program counter.
func (c *CPUState) SetPC(v uint32) { c.pc = v }

// RegByName resolves a register reference from the debugger: an exact ABI
// name, the literal "pc", or a numeric xN alias. A leading '$' sigil is
// tolerated so "$0" and "0" both name the zero register.
func (c *CPUState) RegByName(name string) (uint32, bool) {
	if name == "pc" {
		return c.pc, true
	}
	for i, rn := range regNames {
		if name == rn || name == strings.TrimPrefix(rn, "$") {
			return c.Reg(i), true
		}
	}
	if strings.HasPrefix(name, "x") {
		if n, err := strconv.Atoi(name[1:]); err == nil && n >= 0 && n < 32 {
			return c.Reg(n), true
		}
	}
	return 0, false
}

// CSRRead reads a CSR by number. Unknown numbers read zero.
func (c *CPUState) CSRRead(num uint32) uint32 {
	switch num {
	case CSR_MSTATUS:
		return c.csr.Mstatus
	case CSR_MTVEC:
		return c.csr.Mtvec
	case CSR_MEPC:
		return c.csr.Mepc
	case CSR_MCAUSE:
		return c.csr.Mcause
	}
	return 0
}

// CSRWrite writes a CSR by number. Unknown numbers drop the write.
func (c *CPUState) CSRWrite(num uint32, v uint32) {
	switch num {
	case CSR_MSTATUS:
		c.csr.Mstatus = v
	case CSR_MTVEC:
		c.csr.Mtvec = v
	case CSR_MEPC:
		c.csr.Mepc = v
	case CSR_MCAUSE:
		c.csr.Mcause = v
	}
}

// Display dumps the register file, PC and CSRs to w, one per line.
func (c *CPUState) Display(w io.Writer) {
	for i, rn := range regNames {
		fmt.Fprintf(w, "%-4s 0x%08x\n", rn, c.Reg(i))
	}
	fmt.Fprintf(w, "%-4s 0x%08x\n", "pc", c.pc)
	fmt.Fprintf(w, "%-8s 0x%08x\n", "mstatus", c.csr.Mstatus)
	fmt.Fprintf(w, "%-8s 0x%08x\n", "mtvec", c.csr.Mtvec)
	fmt.Fprintf(w, "%-8s 0x%08x\n", "mepc", c.csr.Mepc)
	fmt.Fprintf(w, "%-8s 0x%08x\n", "mcause", c.csr.Mcause)
}
