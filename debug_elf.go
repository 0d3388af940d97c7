// debug_elf.go - ELF function-symbol map for the call tracer

package main

import (
	"debug/elf"
	"fmt"
)

// FuncSymbol is one function symbol from the guest ELF image.
type FuncSymbol struct {
	Name string
	Addr uint32
	Size uint32
}

// SymbolTable maps guest PCs to the function containing them. Loaded once
// at startup, immutable afterwards. Lookup is a linear scan; the symbol
// count of the bare-metal test programs is small.
type SymbolTable struct {
	funcs []FuncSymbol
}

// LoadELFSymbols reads every function symbol (name, value, size) from the
// ELF image at path.
func LoadELFSymbols(path string) (*SymbolTable, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open elf %s: %w", path, err)
	}
	defer f.Close()

	syms, err := f.Symbols()
	if err != nil {
		return nil, fmt.Errorf("read elf symbols from %s: %w", path, err)
	}

	st := &SymbolTable{}
	for _, sym := range syms {
		if elf.ST_TYPE(sym.Info) != elf.STT_FUNC {
			continue
		}
		st.funcs = append(st.funcs, FuncSymbol{
			Name: sym.Name,
			Addr: uint32(sym.Value),
			Size: uint32(sym.Size),
		})
	}
	return st, nil
}

// PCToName returns the name of the first function whose [addr, addr+size)
// range contains pc, or "" when none does.
func (st *SymbolTable) PCToName(pc uint32) string {
	for _, fn := range st.funcs {
		if pc-fn.Addr < fn.Size {
			return fn.Name
		}
	}
	return ""
}
