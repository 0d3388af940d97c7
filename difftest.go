// difftest.go - Differential testing against a peer ISS shared library

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/intuitionamiga/RV32Engine
License: GPLv3 or later
*/

package main

import (
	"fmt"
	"io"
	"unsafe"

	"github.com/ebitengine/purego"
)

// Direction flag for the peer's memcpy/regcpy ABI.
const (
	difftestToDut = false
	difftestToRef = true
)

// difftestRegs mirrors the architectural-state struct shared with the
// peer: 32 general registers, the PC, then the CSRs in mstatus, mtvec,
// mepc, mcause order. The layout must match the C side byte for byte.
type difftestRegs struct {
	gpr     [32]uint32
	pc      uint32
	mstatus uint32
	mtvec   uint32
	mepc    uint32
	mcause  uint32
}

// peerFuncs holds the four C-linkage entry points of the peer ISS. The
// driver only ever talks to the peer through this capability handle, so
// tests can substitute an in-process stub.
type peerFuncs struct {
	init   func(port int32)
	memcpy func(addr uint32, buf unsafe.Pointer, n uint64, toRef bool)
	regcpy func(regs unsafe.Pointer, toRef bool)
	exec   func(n uint64)
}

// dlopenPeer loads the peer shared library and binds its four entry
// points.
func dlopenPeer(path string) (funcs *peerFuncs, err error) {
	defer func() {
		// purego panics on a missing symbol; surface that as an error.
		if r := recover(); r != nil {
			funcs = nil
			err = fmt.Errorf("peer library %s: %v", path, r)
		}
	}()

	handle, err := purego.Dlopen(path, purego.RTLD_LAZY|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("dlopen %s: %w", path, err)
	}
	p := &peerFuncs{}
	purego.RegisterLibFunc(&p.init, handle, "difftest_init")
	purego.RegisterLibFunc(&p.memcpy, handle, "difftest_memcpy")
	purego.RegisterLibFunc(&p.regcpy, handle, "difftest_regcpy")
	purego.RegisterLibFunc(&p.exec, handle, "difftest_exec")
	return p, nil
}

// Difftest steps a peer ISS in lockstep with the local core and compares
// architectural state after every non-skipped instruction. MMIO and timer
// accesses raise the skip counter: those cycles push local state into the
// peer instead of stepping it, because the peer cannot reproduce the
// side effect.
type Difftest struct {
	m     *Machine
	funcs *peerFuncs
	skip  int
}

// NewDifftest loads the peer library, seeds it with the guest image and
// the current architectural state, and attaches the driver to m.
func NewDifftest(m *Machine, soPath string, port int) (*Difftest, error) {
	funcs, err := dlopenPeer(soPath)
	if err != nil {
		return nil, err
	}
	d := &Difftest{m: m, funcs: funcs}
	d.funcs.init(int32(port))

	pmem := m.bus.Pmem()
	d.funcs.memcpy(PMEM_BASE, unsafe.Pointer(&pmem[0]), uint64(len(pmem)), difftestToRef)
	d.pushState()
	return d, nil
}

// newDifftestWithPeer wires an in-process peer; used by tests.
func newDifftestWithPeer(m *Machine, funcs *peerFuncs) *Difftest {
	return &Difftest{m: m, funcs: funcs}
}

// SkipRef marks the current instruction as unverifiable by the peer.
func (d *Difftest) SkipRef() {
	d.skip++
}

func (d *Difftest) localRegs() difftestRegs {
	var r difftestRegs
	for i := 0; i < 32; i++ {
		r.gpr[i] = d.m.cpu.Reg(i)
	}
	r.pc = d.m.cpu.PC()
	r.mstatus = d.m.cpu.csr.Mstatus
	r.mtvec = d.m.cpu.csr.Mtvec
	r.mepc = d.m.cpu.csr.Mepc
	r.mcause = d.m.cpu.csr.Mcause
	return r
}

// pushState copies the local architectural state into the peer.
func (d *Difftest) pushState() {
	regs := d.localRegs()
	d.funcs.regcpy(unsafe.Pointer(&regs), difftestToRef)
}

// Step is called after every local commit. Skipped cycles resynchronise
// the peer from local state; all others step the peer once and diff.
func (d *Difftest) Step(pc uint32) {
	if d.skip > 0 {
		d.pushState()
		d.skip--
		return
	}
	d.funcs.exec(1)
	var ref difftestRegs
	d.funcs.regcpy(unsafe.Pointer(&ref), difftestToDut)
	if d.m.state == simEnd {
		return
	}
	cur := d.localRegs()
	if cur == ref {
		return
	}
	d.m.state = simAbort
	d.m.haltPC = pc
	fmt.Fprintf(d.m.out, "difftest mismatch after pc = 0x%08x\n", pc)
	displayDifftest(d.m.out, &cur, &ref)
}

// displayDifftest dumps the local and reference states side by side,
// flagging every differing field.
func displayDifftest(w io.Writer, cur, ref *difftestRegs) {
	mark := func(a, b uint32) string {
		if a != b {
			return " <--"
		}
		return ""
	}
	for i := 0; i < 32; i++ {
		fmt.Fprintf(w, "%-4s cur: 0x%08x ref: 0x%08x%s\n",
			regNames[i], cur.gpr[i], ref.gpr[i], mark(cur.gpr[i], ref.gpr[i]))
	}
	fmt.Fprintf(w, "%-4s cur: 0x%08x ref: 0x%08x%s\n", "pc", cur.pc, ref.pc, mark(cur.pc, ref.pc))
	fmt.Fprintf(w, "%-8s cur: 0x%08x ref: 0x%08x%s\n", "mstatus", cur.mstatus, ref.mstatus, mark(cur.mstatus, ref.mstatus))
	fmt.Fprintf(w, "%-8s cur: 0x%08x ref: 0x%08x%s\n", "mtvec", cur.mtvec, ref.mtvec, mark(cur.mtvec, ref.mtvec))
	fmt.Fprintf(w, "%-8s cur: 0x%08x ref: 0x%08x%s\n", "mepc", cur.mepc, ref.mepc, mark(cur.mepc, ref.mepc))
	fmt.Fprintf(w, "%-8s cur: 0x%08x ref: 0x%08x%s\n", "mcause", cur.mcause, ref.mcause, mark(cur.mcause, ref.mcause))
}
