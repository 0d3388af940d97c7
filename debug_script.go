// debug_script.go - Lua scripting bridge for the debugger shell

package main

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// RunLuaScript executes a debugger script with a small guest-inspection
// API bound into the Lua state:
//
//	reg(name)   -> register value ("a0", "pc", "x5", ...)
//	mem(addr)   -> machine word at addr
//	eval(expr)  -> debugger expression value
//	step(n)     -> execute n instructions
//	state()     -> "running", "stopped", "ended", "aborted" or "quit"
//
// Scripts see the same values the expr command does; stepping goes
// through the normal executor, so watchpoints and the differential
// driver stay live.
func (m *Machine) RunLuaScript(path string) error {
	L := lua.NewState()
	defer L.Close()

	L.SetGlobal("reg", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		v, ok := m.cpu.RegByName(name)
		if !ok {
			L.RaiseError("%q is not a register", name)
			return 0
		}
		L.Push(lua.LNumber(v))
		return 1
	}))

	L.SetGlobal("mem", L.NewFunction(func(L *lua.LState) int {
		addr := uint32(L.CheckNumber(1))
		L.Push(lua.LNumber(m.bus.Read(addr, WORD_SIZE)))
		return 1
	}))

	L.SetGlobal("eval", L.NewFunction(func(L *lua.LState) int {
		val, err := m.expr.Eval(L.CheckString(1))
		if err != nil {
			L.RaiseError("eval: %v", err)
			return 0
		}
		L.Push(lua.LNumber(val))
		return 1
	}))

	L.SetGlobal("step", L.NewFunction(func(L *lua.LState) int {
		n := uint64(L.OptNumber(1, 1))
		m.Execute(n)
		return 0
	}))

	L.SetGlobal("state", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(m.stateName()))
		return 1
	}))

	if err := L.DoFile(path); err != nil {
		return fmt.Errorf("script %s: %w", path, err)
	}
	return nil
}

func (m *Machine) stateName() string {
	switch m.state {
	case simRunning:
		return "running"
	case simStopped:
		return "stopped"
	case simEnd:
		return "ended"
	case simAbort:
		return "aborted"
	case simQuit:
		return "quit"
	}
	return "unknown"
}
