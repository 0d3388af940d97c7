// debug_shell.go - Line-oriented debugger shell

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/intuitionamiga/RV32Engine
License: GPLv3 or later
*/

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// Shell is the debugger REPL. Each line is split on whitespace; the first
// token selects a command from the table and the rest of the line is
// passed through as the argument string. In batch mode the shell issues a
// single `c` and returns.
type Shell struct {
	m     *Machine
	batch bool

	// in overrides stdin for tests. When nil and stdin is a terminal,
	// the shell reads through a raw-mode line editor with history.
	in  io.Reader
	out io.Writer

	exprTestFile string
}

// NewShell creates a shell over m.
func NewShell(m *Machine, batch bool) *Shell {
	return &Shell{
		m:            m,
		batch:        batch,
		out:          m.out,
		exprTestFile: "tools/gen-expr/input",
	}
}

type shellCommand struct {
	name        string
	description string
	handler     func(sh *Shell, args string) int // < 0 exits the REPL
}

var cmdTable []shellCommand

func init() {
	cmdTable = []shellCommand{
		{"help", "Display information about all supported commands", cmdHelp},
		{"c", "Continue the execution of the program", cmdC},
		{"q", "Exit the simulator", cmdQ},
		{"si", "Step N instructions (default 1)", cmdSi},
		{"info", "info r: register dump, info w: active watchpoints", cmdInfo},
		{"x", "x N ADDR: print N words starting at hex ADDR", cmdX},
		{"expr", "Evaluate and print an expression", cmdExpr},
		{"expr_test", "Run the expression test file", cmdExprTest},
		{"w", "Add a watchpoint on an expression", cmdW},
		{"d", "Delete a watchpoint by id", cmdD},
		{"lua", "Run a debugger script: lua FILE", cmdLua},
	}
}

// Run executes the REPL until quit, EOF or a batch-mode `c` completes.
func (sh *Shell) Run() {
	if sh.batch {
		cmdC(sh, "")
		return
	}

	fd := int(os.Stdin.Fd())
	interactive := sh.in == nil && term.IsTerminal(fd)

	var t *term.Terminal
	var scanner *bufio.Scanner
	if interactive {
		t = term.NewTerminal(struct {
			io.Reader
			io.Writer
		}{os.Stdin, os.Stdout}, "(nemu) ")
	} else {
		in := sh.in
		if in == nil {
			in = os.Stdin
		}
		scanner = bufio.NewScanner(in)
	}

	for {
		var line string
		if interactive {
			// Raw mode only around the read so command output keeps
			// normal line discipline.
			oldState, err := term.MakeRaw(fd)
			if err != nil {
				return
			}
			line, err = t.ReadLine()
			term.Restore(fd, oldState)
			if err != nil {
				return
			}
		} else {
			fmt.Fprint(sh.out, "(nemu) ")
			if !scanner.Scan() {
				return
			}
			line = scanner.Text()
		}
		if sh.Dispatch(line) < 0 {
			return
		}
	}
}

// Dispatch runs one command line. Returns the handler's status, or 0 for
// blank and unknown input.
func (sh *Shell) Dispatch(line string) int {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0
	}
	name := line
	args := ""
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		name = line[:i]
		args = strings.TrimSpace(line[i+1:])
	}
	for _, cmd := range cmdTable {
		if cmd.name == name {
			return cmd.handler(sh, args)
		}
	}
	fmt.Fprintf(sh.out, "Unknown command '%s'\n", name)
	return 0
}

func cmdHelp(sh *Shell, args string) int {
	if args == "" {
		for _, cmd := range cmdTable {
			fmt.Fprintf(sh.out, "%s - %s\n", cmd.name, cmd.description)
		}
		return 0
	}
	for _, cmd := range cmdTable {
		if cmd.name == args {
			fmt.Fprintf(sh.out, "%s - %s\n", cmd.name, cmd.description)
			return 0
		}
	}
	fmt.Fprintf(sh.out, "Unknown command '%s'\n", args)
	return 0
}

func cmdC(sh *Shell, args string) int {
	sh.m.Execute(^uint64(0))
	return 0
}

func cmdQ(sh *Shell, args string) int {
	// A quit after a bad trap or an abort keeps that verdict for the
	// exit code.
	switch sh.m.state {
	case simEnd, simAbort:
	default:
		sh.m.state = simQuit
		sh.m.statistic()
	}
	return -1
}

func cmdSi(sh *Shell, args string) int {
	n := uint64(1)
	if args != "" {
		v, err := strconv.ParseUint(args, 10, 64)
		if err != nil {
			fmt.Fprintf(sh.out, "si: bad instruction count %q\n", args)
			return 0
		}
		n = v
	}
	sh.m.Execute(n)
	return 0
}

func cmdInfo(sh *Shell, args string) int {
	switch args {
	case "r":
		sh.m.cpu.Display(sh.out)
	case "w":
		sh.m.watch.Display(sh.out)
	default:
		fmt.Fprintln(sh.out, "info: expected 'r' or 'w'")
	}
	return 0
}

func cmdX(sh *Shell, args string) int {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		fmt.Fprintln(sh.out, "x: expected N ADDR")
		return 0
	}
	n, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		fmt.Fprintf(sh.out, "x: bad word count %q\n", fields[0])
		return 0
	}
	addrStr := strings.TrimPrefix(strings.TrimPrefix(fields[1], "0x"), "0X")
	addr, err := strconv.ParseUint(addrStr, 16, 32)
	if err != nil {
		fmt.Fprintf(sh.out, "x: bad address %q\n", fields[1])
		return 0
	}
	for i := uint64(0); i < n; i++ {
		a := uint32(addr + i*WORD_SIZE)
		fmt.Fprintf(sh.out, "0x%08x: 0x%08x\n", a, sh.m.bus.Read(a, WORD_SIZE))
	}
	return 0
}

func cmdExpr(sh *Shell, args string) int {
	val, err := sh.m.expr.Eval(args)
	if err != nil {
		fmt.Fprintf(sh.out, "expr: %v\n", err)
		return 0
	}
	fmt.Fprintf(sh.out, "%d\n", val)
	return 0
}

// cmdExprTest replays a generated test file: each line holds an expected
// decimal value followed by an expression.
func cmdExprTest(sh *Shell, args string) int {
	path := sh.exprTestFile
	if args != "" {
		path = args
	}
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(sh.out, "expr_test: %v\n", err)
		return 0
	}
	defer f.Close()

	total, failed := 0, 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		i := strings.IndexAny(line, " \t")
		if i < 0 {
			fmt.Fprintf(sh.out, "expr_test: malformed line %q\n", line)
			failed++
			continue
		}
		want, err := strconv.ParseUint(line[:i], 10, 64)
		if err != nil {
			fmt.Fprintf(sh.out, "expr_test: bad expected value in %q\n", line)
			failed++
			continue
		}
		e := strings.TrimSpace(line[i+1:])
		total++
		got, err := sh.m.expr.Eval(e)
		if err != nil {
			fmt.Fprintf(sh.out, "expr_test: %s: %v\n", e, err)
			failed++
			continue
		}
		if got != uint32(want) {
			fmt.Fprintf(sh.out, "%s\nexpected: %d, got: %d\n", e, uint32(want), got)
			failed++
		}
	}
	if failed == 0 {
		fmt.Fprintf(sh.out, "expr test pass (%d cases)\n", total)
	} else {
		fmt.Fprintf(sh.out, "expr test: %d of %d cases failed\n", failed, total)
	}
	return 0
}

func cmdW(sh *Shell, args string) int {
	id, err := sh.m.watch.Add(args)
	if err != nil {
		// Pool exhaustion is fatal per the error taxonomy; a bad
		// expression is not.
		if sh.m.watch.FreeCount() == 0 {
			sh.m.abortf(sh.m.cpu.PC(), "w: %v", err)
			return -1
		}
		fmt.Fprintf(sh.out, "w: %v\n", err)
		return 0
	}
	fmt.Fprintf(sh.out, "watchpoint %d: %s\n", id, args)
	return 0
}

func cmdD(sh *Shell, args string) int {
	id, err := strconv.Atoi(args)
	if err != nil {
		fmt.Fprintf(sh.out, "d: bad watchpoint id %q\n", args)
		return 0
	}
	if err := sh.m.watch.Delete(id); err != nil {
		fmt.Fprintf(sh.out, "d: %v\n", err)
	}
	return 0
}

func cmdLua(sh *Shell, args string) int {
	if args == "" {
		fmt.Fprintln(sh.out, "lua: expected a script path")
		return 0
	}
	if err := sh.m.RunLuaScript(args); err != nil {
		fmt.Fprintf(sh.out, "lua: %v\n", err)
	}
	return 0
}
