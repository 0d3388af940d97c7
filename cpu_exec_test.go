// cpu_exec_test.go - Executor and run-state tests over hand-assembled images

package main

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Instruction encoders
// ---------------------------------------------------------------------------

func encR(f7, rs2, rs1, f3, rd, op uint32) uint32 {
	return f7<<25 | rs2<<20 | rs1<<15 | f3<<12 | rd<<7 | op
}

func encI(imm int32, rs1, f3, rd, op uint32) uint32 {
	return (uint32(imm)&0xfff)<<20 | rs1<<15 | f3<<12 | rd<<7 | op
}

func encS(imm int32, rs2, rs1, f3 uint32) uint32 {
	ui := uint32(imm) & 0xfff
	return (ui>>5)<<25 | rs2<<20 | rs1<<15 | f3<<12 | (ui&0x1f)<<7 | 0x23
}

func encB(imm int32, rs2, rs1, f3 uint32) uint32 {
	ui := uint32(imm) & 0x1fff
	return (ui>>12&1)<<31 | (ui>>5&0x3f)<<25 | rs2<<20 | rs1<<15 | f3<<12 |
		(ui>>1&0xf)<<8 | (ui>>11&1)<<7 | 0x63
}

func encU(imm20, rd, op uint32) uint32 {
	return imm20<<12 | rd<<7 | op
}

func encJ(imm int32, rd uint32) uint32 {
	ui := uint32(imm) & 0x1fffff
	return (ui>>20&1)<<31 | (ui>>1&0x3ff)<<21 | (ui>>11&1)<<20 | (ui>>12&0xff)<<12 | rd<<7 | 0x6f
}

func iADDI(rd, rs1 uint32, imm int32) uint32 { return encI(imm, rs1, 0, rd, 0x13) }
func iADD(rd, rs1, rs2 uint32) uint32        { return encR(0, rs2, rs1, 0, rd, 0x33) }
func iSUB(rd, rs1, rs2 uint32) uint32        { return encR(0x20, rs2, rs1, 0, rd, 0x33) }
func iSRAI(rd, rs1 uint32, sh int32) uint32  { return encR(0x20, uint32(sh), rs1, 5, rd, 0x13) }
func iLUI(rd, imm20 uint32) uint32           { return encU(imm20, rd, 0x37) }
func iAUIPC(rd, imm20 uint32) uint32         { return encU(imm20, rd, 0x17) }
func iJAL(rd uint32, imm int32) uint32       { return encJ(imm, rd) }
func iJALR(rd, rs1 uint32, imm int32) uint32 { return encI(imm, rs1, 0, rd, 0x67) }
func iBEQ(rs1, rs2 uint32, imm int32) uint32 { return encB(imm, rs2, rs1, 0) }
func iLW(rd, rs1 uint32, imm int32) uint32   { return encI(imm, rs1, 2, rd, 0x03) }
func iLB(rd, rs1 uint32, imm int32) uint32   { return encI(imm, rs1, 0, rd, 0x03) }
func iSW(rs2, rs1 uint32, imm int32) uint32  { return encS(imm, rs2, rs1, 2) }
func iSB(rs2, rs1 uint32, imm int32) uint32  { return encS(imm, rs2, rs1, 0) }
func iCSRRW(rd, csr, rs1 uint32) uint32      { return encI(int32(csr), rs1, 1, rd, 0x73) }
func iCSRRS(rd, csr, rs1 uint32) uint32      { return encI(int32(csr), rs1, 2, rd, 0x73) }
func iCSRRWI(rd, csr, zimm uint32) uint32    { return encI(int32(csr), zimm, 5, rd, 0x73) }

const (
	instECALLWord  = 0x00000073
	instEBREAKWord = 0x00100073
	instMRETWord   = 0x30200073
)

// ---------------------------------------------------------------------------
// Test harness
// ---------------------------------------------------------------------------

func testMachine(t *testing.T, words ...uint32) *Machine {
	t.Helper()
	if err := initExprRules(); err != nil {
		t.Fatalf("initExprRules: %v", err)
	}
	if err := initDecoder(); err != nil {
		t.Fatalf("initDecoder: %v", err)
	}
	bus := NewSystemBus()
	m := NewMachine(bus)
	m.out = &bytes.Buffer{}
	for i, w := range words {
		bus.Write(PMEM_BASE+uint32(i)*WORD_SIZE, WORD_SIZE, w)
	}
	return m
}

func checkReg(t *testing.T, m *Machine, idx int, want uint32) {
	t.Helper()
	if got := m.cpu.Reg(idx); got != want {
		t.Errorf("x%d = 0x%x, expected 0x%x", idx, got, want)
	}
}

// ---------------------------------------------------------------------------
// Seed scenarios
// ---------------------------------------------------------------------------

func TestAddiChain(t *testing.T) {
	m := testMachine(t,
		iADDI(1, 0, 5),
		iADDI(2, 1, 3),
		iADD(3, 1, 2),
		instEBREAKWord,
	)
	m.Execute(^uint64(0))

	checkReg(t, m, 1, 5)
	checkReg(t, m, 2, 8)
	checkReg(t, m, 3, 13)
	if m.state != simEnd {
		t.Fatalf("state = %v, expected simEnd", m.state)
	}
	if m.haltRet != 0 {
		t.Fatalf("halt return = %d, expected 0", m.haltRet)
	}
	if !m.GoodTrap() {
		t.Fatal("clean ebreak with a0 == 0 must be a good trap")
	}
}

func TestBranchTaken(t *testing.T) {
	m := testMachine(t,
		iADDI(1, 0, 1),
		iBEQ(0, 0, 8), // skips the next addi
		iADDI(2, 0, 2),
		iADDI(3, 0, 3),
		instEBREAKWord,
	)
	m.Execute(^uint64(0))

	checkReg(t, m, 1, 1)
	checkReg(t, m, 2, 0)
	checkReg(t, m, 3, 3)
	if m.nrInst != 4 {
		t.Errorf("committed %d instructions, expected 4", m.nrInst)
	}
}

func TestStoreLoadForward(t *testing.T) {
	m := testMachine(t,
		iLUI(5, 0x80000), // x5 = PMEM_BASE
		iADDI(6, 0, 0x7f),
		iSW(6, 5, 0x100),
		iLW(7, 5, 0x100),
		instEBREAKWord,
	)
	m.Execute(^uint64(0))

	checkReg(t, m, 7, 0x7f)
	if m.state != simEnd {
		t.Fatalf("state = %v, expected simEnd", m.state)
	}
}

func TestRegisterZeroStaysZero(t *testing.T) {
	m := testMachine(t,
		iADDI(0, 0, 5),
		instEBREAKWord,
	)
	m.Execute(^uint64(0))
	checkReg(t, m, 0, 0)
}

func TestPCFallThrough(t *testing.T) {
	m := testMachine(t, iADDI(1, 0, 1), iADDI(2, 0, 2), instEBREAKWord)
	m.Execute(1)
	if got := m.cpu.PC(); got != PMEM_BASE+4 {
		t.Fatalf("pc after one step = 0x%08x, expected 0x%08x", got, uint32(PMEM_BASE+4))
	}
	if m.state != simStopped {
		t.Fatalf("state after si = %v, expected simStopped", m.state)
	}
}

func TestJalJalr(t *testing.T) {
	// jal links the fall-through and jumps; jalr returns through it.
	m := testMachine(t,
		iJAL(1, 12), // to +12, ra = base+4
		iADDI(2, 0, 2),
		instEBREAKWord,
		iADDI(3, 0, 3),
		iJALR(0, 1, 0), // back to base+4
	)
	m.Execute(^uint64(0))

	checkReg(t, m, 1, PMEM_BASE+4)
	checkReg(t, m, 2, 2)
	checkReg(t, m, 3, 3)
}

func TestArithmeticEdges(t *testing.T) {
	m := testMachine(t,
		iADDI(1, 0, -8),
		iSRAI(2, 1, 1),        // arithmetic shift keeps the sign
		iADDI(3, 0, -1),       // 0xffffffff
		iADDI(4, 0, 1),
		iADD(5, 3, 4),         // wraps to 0
		encR(0, 4, 3, 3, 6, 0x33), // sltu x6, x3, x4 -> 0
		encR(0, 4, 3, 2, 7, 0x33), // slt  x7, x3, x4 -> 1 (signed)
		instEBREAKWord,
	)
	m.Execute(^uint64(0))

	checkReg(t, m, 2, 0xFFFFFFFC)
	checkReg(t, m, 5, 0)
	checkReg(t, m, 6, 0)
	checkReg(t, m, 7, 1)
}

func TestSignExtendingLoads(t *testing.T) {
	m := testMachine(t,
		iLUI(5, 0x80000),
		iADDI(6, 0, -1), // 0xff in the low byte
		iSB(6, 5, 0x100),
		iLB(7, 5, 0x100),               // sign-extends to -1
		encI(0x100, 5, 4, 8, 0x03),     // lbu x8 zero-extends
		instEBREAKWord,
	)
	m.Execute(^uint64(0))

	checkReg(t, m, 7, 0xFFFFFFFF)
	checkReg(t, m, 8, 0xFF)
}

func TestEcallMret(t *testing.T) {
	base := uint32(PMEM_BASE)
	m := testMachine(t,
		iAUIPC(1, 0),        // x1 = base
		iADDI(1, 1, 20),     // x1 = base+20 (trap handler)
		iCSRRW(0, CSR_MTVEC, 1),
		instECALLWord,       // pc 12: mepc <- pc, jump to mtvec
		instEBREAKWord,      // pc 16: skipped
		iADDI(2, 0, 7),      // pc 20: handler body
		instEBREAKWord,
	)
	m.Execute(^uint64(0))

	checkReg(t, m, 2, 7)
	if got := m.cpu.csr.Mepc; got != base+12 {
		t.Fatalf("mepc = 0x%08x, expected 0x%08x", got, base+12)
	}
}

func TestMretReturnsToMepc(t *testing.T) {
	m := testMachine(t,
		iAUIPC(1, 0),
		iADDI(1, 1, 16),     // x1 = base+16
		iCSRRW(0, CSR_MEPC, 1),
		instMRETWord,        // jumps to base+16
		iADDI(2, 0, 9),      // base+16
		instEBREAKWord,
	)
	m.Execute(^uint64(0))
	checkReg(t, m, 2, 9)
}

func TestCSRRoundTrip(t *testing.T) {
	m := testMachine(t,
		iADDI(1, 0, 0x5),
		iCSRRW(2, CSR_MSTATUS, 1), // old mstatus -> x2, mstatus = 5
		iADDI(3, 0, 0x10),
		iCSRRS(4, CSR_MSTATUS, 3), // old (5) -> x4, mstatus = 0x15
		iCSRRS(5, CSR_MSTATUS, 0), // rs1 = x0: read without write
		iCSRRWI(6, CSR_MSTATUS, 0x1f),
		instEBREAKWord,
	)
	m.Execute(^uint64(0))

	checkReg(t, m, 2, MSTATUS_RESET)
	checkReg(t, m, 4, 0x5)
	checkReg(t, m, 5, 0x15)
	checkReg(t, m, 6, 0x15)
	if got := m.cpu.csr.Mstatus; got != 0x1f {
		t.Fatalf("mstatus = 0x%x, expected 0x1f", got)
	}
}

func TestInvalidEncodingAborts(t *testing.T) {
	m := testMachine(t, 0xFFFFFFFF)
	m.Execute(1)

	if m.state != simAbort {
		t.Fatalf("state = %v, expected simAbort", m.state)
	}
	if m.haltPC != PMEM_BASE {
		t.Fatalf("halt pc = 0x%08x, expected 0x%08x", m.haltPC, uint32(PMEM_BASE))
	}
	out := m.out.(*bytes.Buffer).String()
	if !strings.Contains(out, "invalid instruction encoding") {
		t.Fatalf("abort output missing reason: %q", out)
	}
}

func TestWatchpointStopsExecution(t *testing.T) {
	m := testMachine(t,
		iADDI(1, 0, 42),
		iADDI(2, 0, 1),
		instEBREAKWord,
	)
	id, err := m.watch.Add("$x1")
	if err != nil {
		t.Fatalf("add watchpoint: %v", err)
	}

	m.Execute(^uint64(0))
	if m.state != simStopped {
		t.Fatalf("state = %v, expected simStopped after watchpoint change", m.state)
	}
	if val, ok := m.watch.LastValue(id); !ok || val != 42 {
		t.Fatalf("watchpoint value = %d (%v), expected 42", val, ok)
	}
	// Only the triggering instruction committed.
	if m.nrInst != 1 {
		t.Fatalf("committed %d instructions, expected 1", m.nrInst)
	}
}

// ---------------------------------------------------------------------------
// Ring buffer
// ---------------------------------------------------------------------------

func TestRingBufferEviction(t *testing.T) {
	var rb IRingBuf
	for i := 0; i < IRINGBUF_SIZE; i++ {
		rb.Add(uint32(i), fmt.Sprintf("entry %d", i))
	}

	// One slot is the head/tail separator, so the first entry has just
	// been evicted.
	if got := rb.Len(); got != IRINGBUF_SIZE-1 {
		t.Fatalf("ring length = %d, expected %d", got, IRINGBUF_SIZE-1)
	}
	var out bytes.Buffer
	rb.Dump(&out)
	if strings.Contains(out.String(), "entry 0\n") {
		t.Fatal("oldest entry should have been evicted")
	}
	if !strings.Contains(out.String(), fmt.Sprintf("entry %d", IRINGBUF_SIZE-1)) {
		t.Fatal("newest entry missing from dump")
	}
}

func TestRingBufferCountsUpToCapacity(t *testing.T) {
	var rb IRingBuf
	for i := 0; i < 5; i++ {
		rb.Add(uint32(i), "x")
		if got := rb.Len(); got != i+1 {
			t.Fatalf("length after %d enqueues = %d", i+1, got)
		}
	}
}
