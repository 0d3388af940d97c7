// monitor.go - Argument parsing, image loading and subsystem bring-up

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/intuitionamiga/RV32Engine
License: GPLv3 or later
*/

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// monitorArgs is the parsed command-line surface.
type monitorArgs struct {
	batch   bool
	logFile string
	diffSo  string
	port    int
	elfFile string
	imgFile string
	help    bool
}

const defaultDifftestPort = 1234

// parseArgs walks argv. Value flags accept both `-l FILE` and
// `--log=FILE` spellings; the single positional argument is the raw
// image path.
func parseArgs(argv []string) (*monitorArgs, error) {
	args := &monitorArgs{port: defaultDifftestPort}

	takeValue := func(i *int, inline string, name string) (string, error) {
		if inline != "" {
			return inline, nil
		}
		*i++
		if *i >= len(argv) {
			return "", fmt.Errorf("flag %s needs a value", name)
		}
		return argv[*i], nil
	}

	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		name := arg
		inline := ""
		if strings.HasPrefix(arg, "--") {
			if j := strings.IndexByte(arg, '='); j >= 0 {
				name = arg[:j]
				inline = arg[j+1:]
			}
		}
		switch name {
		case "-b", "--batch":
			args.batch = true
		case "-h", "--help":
			args.help = true
		case "-l", "--log":
			v, err := takeValue(&i, inline, name)
			if err != nil {
				return nil, err
			}
			args.logFile = v
		case "-d", "--diff":
			v, err := takeValue(&i, inline, name)
			if err != nil {
				return nil, err
			}
			args.diffSo = v
		case "-e", "--elf":
			v, err := takeValue(&i, inline, name)
			if err != nil {
				return nil, err
			}
			args.elfFile = v
		case "-p", "--port":
			v, err := takeValue(&i, inline, name)
			if err != nil {
				return nil, err
			}
			p, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("bad port %q", v)
			}
			args.port = p
		default:
			if strings.HasPrefix(arg, "-") {
				return nil, fmt.Errorf("unknown flag %s", arg)
			}
			args.imgFile = arg
		}
	}
	return args, nil
}

func usage(prog string) {
	fmt.Printf("Usage: %s [OPTION...] IMAGE\n\n", prog)
	fmt.Printf("\t-b,--batch              run with batch mode\n")
	fmt.Printf("\t-l,--log=FILE           output trace log to FILE\n")
	fmt.Printf("\t-d,--diff=REF_SO        run DiffTest with reference REF_SO\n")
	fmt.Printf("\t-p,--port=PORT          run DiffTest with port PORT\n")
	fmt.Printf("\t-e,--elf=FILE           load ELF symbols from FILE\n")
	fmt.Printf("\n")
}

// builtinImg is the fallback image used when no file is given: a trap
// round trip followed by a load and a clean halt.
var builtinImg = []uint32{
	0x00000073, // ecall
	0x30200073, // mret
	0x000a2103, // lw
	0x00100073, // ebreak
}

// loadBuiltinImg places the fallback image at the base of guest memory.
func loadBuiltinImg(bus *SystemBus) int64 {
	for i, word := range builtinImg {
		bus.Write(PMEM_BASE+uint32(i)*WORD_SIZE, WORD_SIZE, word)
	}
	return int64(len(builtinImg) * WORD_SIZE)
}

// loadImage reads the raw little-endian image into guest memory at
// PMEM_BASE, overwriting the built-in image, and returns its size.
func loadImage(bus *SystemBus, path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if len(data) > PMEM_SIZE {
		return 0, fmt.Errorf("image %s (%d bytes) does not fit in guest memory", path, len(data))
	}
	copy(bus.Pmem(), data)
	return int64(len(data)), nil
}

// initMonitor parses nothing itself: it takes the parsed args, builds
// the bus, devices and machine, loads the image, and initialises the
// subsystems in dependency order.
func initMonitor(args *monitorArgs) (*Machine, error) {
	if err := initExprRules(); err != nil {
		return nil, err
	}
	if err := initDecoder(); err != nil {
		return nil, err
	}

	bus := NewSystemBus()
	m := NewMachine(bus)

	serial := NewSerialPort(os.Stdout, m.skipRef)
	bus.MapIO(SERIAL_PORT, SERIAL_PORT, nil, serial.HandleWrite)

	rtc := NewRTCDevice(m.skipRef)
	bus.MapIO(RTC_PORT_LO, RTC_PORT_HI+WORD_SIZE-1, rtc.HandleRead, nil)

	size := loadBuiltinImg(bus)
	if args.imgFile == "" {
		fmt.Println("No image is given. Use the default built-in image.")
	} else {
		var err error
		size, err = loadImage(bus, args.imgFile)
		if err != nil {
			return nil, err
		}
		fmt.Printf("The image is %s, size = %d\n", args.imgFile, size)
	}

	if args.logFile != "" {
		f, err := os.OpenFile(args.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log %s: %w", args.logFile, err)
		}
		m.traceLog = f
	}

	if args.elfFile != "" {
		symbols, err := LoadELFSymbols(args.elfFile)
		if err != nil {
			return nil, err
		}
		m.ftrace = NewFuncTracer(m.out, symbols)
	}

	if args.diffSo != "" {
		diff, err := NewDifftest(m, args.diffSo, args.port)
		if err != nil {
			return nil, err
		}
		m.diff = diff
		fmt.Printf("Differential testing: ON (%s)\n", args.diffSo)
	}

	return m, nil
}
