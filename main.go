// main.go - Entry point for the RV32Engine instruction-set simulator

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/intuitionamiga/RV32Engine
License: GPLv3 or later
*/

package main

import (
	"fmt"
	"os"
)

func boilerPlate() {
	fmt.Println("RV32Engine - RV32I instruction-set simulator and debugger")
	fmt.Println("(c) 2025 - 2026 Zayn Otley")
	fmt.Println("https://github.com/intuitionamiga/RV32Engine")
	fmt.Println("License: GPLv3 or later")
}

func main() {
	args, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		usage(os.Args[0])
		os.Exit(1)
	}
	if args.help {
		usage(os.Args[0])
		return
	}

	boilerPlate()

	m, err := initMonitor(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	NewShell(m, args.batch).Run()

	if !m.GoodTrap() {
		os.Exit(1)
	}
}
