// cpu_decode.go - Pattern-table instruction decoder for the RV32 core

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/intuitionamiga/RV32Engine
License: GPLv3 or later
*/

package main

import (
	"fmt"
	"strings"
)

// Instruction formats. The format tag drives operand and immediate
// extraction; formatN covers the no-operand system instructions.
type instFormat int

const (
	formatR instFormat = iota
	formatI
	formatS
	formatB
	formatU
	formatJ
	formatN
)

// Handler identifiers, one per instruction the core implements.
type instHandler int

const (
	instLUI instHandler = iota
	instAUIPC
	instJAL
	instJALR
	instBEQ
	instBNE
	instBLT
	instBGE
	instBLTU
	instBGEU
	instLB
	instLH
	instLW
	instLBU
	instLHU
	instSB
	instSH
	instSW
	instADDI
	instSLTI
	instSLTIU
	instXORI
	instORI
	instANDI
	instSLLI
	instSRLI
	instSRAI
	instADD
	instSUB
	instSLL
	instSLT
	instSLTU
	instXOR
	instSRL
	instSRA
	instOR
	instAND
	instECALL
	instEBREAK
	instMRET
	instCSRRW
	instCSRRS
	instCSRRC
	instCSRRWI
	instCSRRSI
	instCSRRCI
)

// instPattern is one row of the static decode table: a 32-character bit
// pattern over {0,1,?} (spaces are cosmetic), the instruction format and
// the handler it selects. Patterns are tried in table order; the first
// match wins.
type instPattern struct {
	bits     string
	format   instFormat
	handler  instHandler
	mnemonic string
}

var instTable = []instPattern{
	{"??????? ????? ????? ??? ????? 0110111", formatU, instLUI, "lui"},
	{"??????? ????? ????? ??? ????? 0010111", formatU, instAUIPC, "auipc"},
	{"??????? ????? ????? ??? ????? 1101111", formatJ, instJAL, "jal"},
	{"??????? ????? ????? 000 ????? 1100111", formatI, instJALR, "jalr"},

	{"??????? ????? ????? 000 ????? 1100011", formatB, instBEQ, "beq"},
	{"??????? ????? ????? 001 ????? 1100011", formatB, instBNE, "bne"},
	{"??????? ????? ????? 100 ????? 1100011", formatB, instBLT, "blt"},
	{"??????? ????? ????? 101 ????? 1100011", formatB, instBGE, "bge"},
	{"??????? ????? ????? 110 ????? 1100011", formatB, instBLTU, "bltu"},
	{"??????? ????? ????? 111 ????? 1100011", formatB, instBGEU, "bgeu"},

	{"??????? ????? ????? 000 ????? 0000011", formatI, instLB, "lb"},
	{"??????? ????? ????? 001 ????? 0000011", formatI, instLH, "lh"},
	{"??????? ????? ????? 010 ????? 0000011", formatI, instLW, "lw"},
	{"??????? ????? ????? 100 ????? 0000011", formatI, instLBU, "lbu"},
	{"??????? ????? ????? 101 ????? 0000011", formatI, instLHU, "lhu"},

	{"??????? ????? ????? 000 ????? 0100011", formatS, instSB, "sb"},
	{"??????? ????? ????? 001 ????? 0100011", formatS, instSH, "sh"},
	{"??????? ????? ????? 010 ????? 0100011", formatS, instSW, "sw"},

	{"??????? ????? ????? 000 ????? 0010011", formatI, instADDI, "addi"},
	{"??????? ????? ????? 010 ????? 0010011", formatI, instSLTI, "slti"},
	{"??????? ????? ????? 011 ????? 0010011", formatI, instSLTIU, "sltiu"},
	{"??????? ????? ????? 100 ????? 0010011", formatI, instXORI, "xori"},
	{"??????? ????? ????? 110 ????? 0010011", formatI, instORI, "ori"},
	{"??????? ????? ????? 111 ????? 0010011", formatI, instANDI, "andi"},
	{"0000000 ????? ????? 001 ????? 0010011", formatI, instSLLI, "slli"},
	{"0000000 ????? ????? 101 ????? 0010011", formatI, instSRLI, "srli"},
	{"0100000 ????? ????? 101 ????? 0010011", formatI, instSRAI, "srai"},

	{"0000000 ????? ????? 000 ????? 0110011", formatR, instADD, "add"},
	{"0100000 ????? ????? 000 ????? 0110011", formatR, instSUB, "sub"},
	{"0000000 ????? ????? 001 ????? 0110011", formatR, instSLL, "sll"},
	{"0000000 ????? ????? 010 ????? 0110011", formatR, instSLT, "slt"},
	{"0000000 ????? ????? 011 ????? 0110011", formatR, instSLTU, "sltu"},
	{"0000000 ????? ????? 100 ????? 0110011", formatR, instXOR, "xor"},
	{"0000000 ????? ????? 101 ????? 0110011", formatR, instSRL, "srl"},
	{"0100000 ????? ????? 101 ????? 0110011", formatR, instSRA, "sra"},
	{"0000000 ????? ????? 110 ????? 0110011", formatR, instOR, "or"},
	{"0000000 ????? ????? 111 ????? 0110011", formatR, instAND, "and"},

	{"0000000 00000 00000 000 00000 1110011", formatN, instECALL, "ecall"},
	{"0000000 00001 00000 000 00000 1110011", formatN, instEBREAK, "ebreak"},
	{"0011000 00010 00000 000 00000 1110011", formatN, instMRET, "mret"},

	{"??????? ????? ????? 001 ????? 1110011", formatI, instCSRRW, "csrrw"},
	{"??????? ????? ????? 010 ????? 1110011", formatI, instCSRRS, "csrrs"},
	{"??????? ????? ????? 011 ????? 1110011", formatI, instCSRRC, "csrrc"},
	{"??????? ????? ????? 101 ????? 1110011", formatI, instCSRRWI, "csrrwi"},
	{"??????? ????? ????? 110 ????? 1110011", formatI, instCSRRSI, "csrrsi"},
	{"??????? ????? ????? 111 ????? 1110011", formatI, instCSRRCI, "csrrci"},
}

// decodeEntry is a compiled table row: the pattern's fixed bits reduced to
// a mask/match pair.
type decodeEntry struct {
	mask     uint32
	match    uint32
	format   instFormat
	handler  instHandler
	mnemonic string
}

var decodeTable []decodeEntry

// initDecoder compiles the 0/1/? pattern strings into mask/match pairs.
// Called once from the monitor before the first fetch.
func initDecoder() error {
	decodeTable = make([]decodeEntry, 0, len(instTable))
	for _, p := range instTable {
		bits := strings.ReplaceAll(p.bits, " ", "")
		if len(bits) != 32 {
			return fmt.Errorf("decode pattern %q for %s is %d bits", p.bits, p.mnemonic, len(bits))
		}
		var mask, match uint32
		for _, ch := range bits {
			mask <<= 1
			match <<= 1
			switch ch {
			case '0':
				mask |= 1
			case '1':
				mask |= 1
				match |= 1
			case '?':
			default:
				return fmt.Errorf("decode pattern %q for %s has bad character %q", p.bits, p.mnemonic, ch)
			}
		}
		decodeTable = append(decodeTable, decodeEntry{
			mask:     mask,
			match:    match,
			format:   p.format,
			handler:  p.handler,
			mnemonic: p.mnemonic,
		})
	}
	return nil
}

// Decode carries one instruction from fetch to commit. snpc is the static
// fall-through PC; dnpc starts equal to snpc and is overwritten by branch,
// jump and trap handlers.
type Decode struct {
	pc   uint32
	snpc uint32
	dnpc uint32
	inst uint32

	handler  instHandler
	format   instFormat
	mnemonic string

	rd   int
	rs1n int
	rs2n int
	rs1  uint32 // value of rs1, already read
	rs2  uint32 // value of rs2, already read
	imm  uint32 // sign-extended per format
}

// signExtend sign-extends the low bits of v to 32 bits.
func signExtend(v uint32, bits int) uint32 {
	sh := 32 - bits
	return uint32(int32(v<<sh) >> sh)
}

// decodeInst matches inst against the pattern table and extracts operand
// fields per the matched format. Source register values are read from cpu
// at decode time. An unmatched word is a fatal invalid encoding.
func decodeInst(cpu *CPUState, s *Decode) error {
	inst := s.inst
	for _, e := range decodeTable {
		if inst&e.mask != e.match {
			continue
		}
		s.handler = e.handler
		s.format = e.format
		s.mnemonic = e.mnemonic
		s.rd = int(inst >> 7 & 0x1f)
		s.rs1n = int(inst >> 15 & 0x1f)
		s.rs2n = int(inst >> 20 & 0x1f)
		s.rs1 = cpu.Reg(s.rs1n)
		s.rs2 = cpu.Reg(s.rs2n)
		switch e.format {
		case formatI:
			s.imm = signExtend(inst>>20, 12)
		case formatS:
			s.imm = signExtend(inst>>25<<5|inst>>7&0x1f, 12)
		case formatB:
			s.imm = signExtend(inst>>31<<12|(inst>>7&1)<<11|(inst>>25&0x3f)<<5|(inst>>8&0xf)<<1, 13)
		case formatU:
			s.imm = inst & 0xfffff000
		case formatJ:
			s.imm = signExtend(inst>>31<<20|(inst>>12&0xff)<<12|(inst>>20&1)<<11|(inst>>21&0x3ff)<<1, 21)
		}
		return nil
	}
	return fmt.Errorf("invalid instruction encoding 0x%08x at pc = 0x%08x", inst, s.pc)
}
