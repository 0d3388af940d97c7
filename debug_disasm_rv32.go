// debug_disasm_rv32.go - Compact RV32 disassembler for trace output

package main

import "fmt"

// disasmRV32 renders a decoded instruction as one line of assembly. The
// output feeds the instruction ring, the itrace log and the si echo; it
// favours readability over round-trip fidelity.
func disasmRV32(s *Decode) string {
	rd := regNames[s.rd]
	rs1 := regNames[s.rs1n]
	rs2 := regNames[s.rs2n]
	imm := int32(s.imm)

	switch s.format {
	case formatR:
		return fmt.Sprintf("%s %s, %s, %s", s.mnemonic, rd, rs1, rs2)
	case formatI:
		switch s.handler {
		case instLB, instLH, instLW, instLBU, instLHU:
			return fmt.Sprintf("%s %s, %d(%s)", s.mnemonic, rd, imm, rs1)
		case instJALR:
			return fmt.Sprintf("%s %s, %d(%s)", s.mnemonic, rd, imm, rs1)
		case instCSRRW, instCSRRS, instCSRRC:
			return fmt.Sprintf("%s %s, %s, %s", s.mnemonic, rd, csrName(s.imm&0xfff), rs1)
		case instCSRRWI, instCSRRSI, instCSRRCI:
			return fmt.Sprintf("%s %s, %s, %d", s.mnemonic, rd, csrName(s.imm&0xfff), s.rs1n)
		case instSLLI, instSRLI, instSRAI:
			return fmt.Sprintf("%s %s, %s, %d", s.mnemonic, rd, rs1, imm&0x1f)
		}
		return fmt.Sprintf("%s %s, %s, %d", s.mnemonic, rd, rs1, imm)
	case formatS:
		return fmt.Sprintf("%s %s, %d(%s)", s.mnemonic, rs2, imm, rs1)
	case formatB:
		return fmt.Sprintf("%s %s, %s, 0x%x", s.mnemonic, rs1, rs2, s.pc+s.imm)
	case formatU:
		return fmt.Sprintf("%s %s, 0x%x", s.mnemonic, rd, s.imm>>12)
	case formatJ:
		return fmt.Sprintf("%s %s, 0x%x", s.mnemonic, rd, s.pc+s.imm)
	}
	return s.mnemonic
}

func csrName(num uint32) string {
	switch num {
	case CSR_MSTATUS:
		return "mstatus"
	case CSR_MTVEC:
		return "mtvec"
	case CSR_MEPC:
		return "mepc"
	case CSR_MCAUSE:
		return "mcause"
	}
	return fmt.Sprintf("0x%x", num)
}
