// Package loader lays a parsed assembly program out in the TEEM
// address space and resolves label references.
//
// The layout is fixed: .text at TextBase holds decoded instructions
// keyed by address (immutable, 4 bytes apart), .data at DataBase
// followed by .bss, and a stack region of the configured size below the
// initial stack pointer, plus one page above it. Text is not
// byte-addressable; data reads from
// text addresses fault like any other unmapped access.
package loader

import (
	"fmt"

	"github.com/teem-cpu/teem/asm"
	"github.com/teem-cpu/teem/emu"
	"github.com/teem-cpu/teem/insts"
)

// Section base addresses.
const (
	TextBase uint32 = 0x0001_0000
	DataBase uint32 = 0x1000_0000
)

// Program is a loaded guest: everything the engine consumes.
type Program struct {
	// Text maps instruction addresses to decoded instructions.
	Text map[uint32]insts.Instruction

	// Entry is the first instruction to fetch.
	Entry uint32

	// Memory is the initial memory image: data, bss, stack.
	Memory *emu.Memory

	// Labels maps label names to absolute addresses, for breakpoints
	// and diagnostics.
	Labels map[string]uint32

	// InitialSP is the starting stack pointer.
	InitialSP uint32
}

// Load resolves labels and builds the memory image. Unresolved labels
// are load errors; duplicate labels were already rejected by the
// parser.
func Load(src *asm.Program, initialSP, stackSize uint32) (*Program, error) {
	bssBase := DataBase + roundUp(uint32(len(src.Data)), 4)

	addrOf := func(sym asm.Symbol) uint32 {
		switch sym.Section {
		case asm.SecText:
			return TextBase + sym.Offset
		case asm.SecData:
			return DataBase + sym.Offset
		default:
			return bssBase + sym.Offset
		}
	}

	labels := make(map[string]uint32, len(src.Labels))
	for name, sym := range src.Labels {
		labels[name] = addrOf(sym)
	}

	// Patch label words embedded in the data section.
	data := make([]byte, len(src.Data))
	copy(data, src.Data)
	for _, fix := range src.DataFixups {
		addr, ok := labels[fix.Label]
		if !ok {
			return nil, fmt.Errorf("line %d: unresolved label %q", fix.Line, fix.Label)
		}
		for i := 0; i < 4; i++ {
			data[fix.Offset+uint32(i)] = byte(addr >> (8 * i))
		}
	}

	// Resolve instruction label references and key by address.
	text := make(map[uint32]insts.Instruction, len(src.Insts))
	for idx, si := range src.Insts {
		inst := si.Inst
		if si.LabelRef != "" {
			addr, ok := labels[si.LabelRef]
			if !ok {
				return nil, fmt.Errorf("line %d: unresolved label %q", si.Line, si.LabelRef)
			}
			switch inst.Kind {
			case insts.KindBranch, insts.KindJAL:
				inst.Target = addr
			default:
				inst.Imm = int32(addr)
			}
		}
		text[TextBase+uint32(idx)*4] = inst
	}

	memory := emu.NewMemory()
	if size := uint32(len(data)) + src.BSSSize; size > 0 {
		memory.Map(DataBase, size)
		for i, b := range data {
			memory.Write8(DataBase+uint32(i), b)
		}
	}
	if stackSize > 0 {
		memory.Map(initialSP-stackSize, stackSize+emu.PageSize)
	}

	entry := TextBase
	if addr, ok := labels["_start"]; ok {
		entry = addr
	} else if addr, ok := labels["main"]; ok {
		entry = addr
	}

	return &Program{
		Text:      text,
		Entry:     entry,
		Memory:    memory,
		Labels:    labels,
		InitialSP: initialSP,
	}, nil
}

// LoadFile parses and loads an assembly source file.
func LoadFile(path string, initialSP, stackSize uint32) (*Program, error) {
	src, err := asm.ParseFile(path)
	if err != nil {
		return nil, err
	}
	return Load(src, initialSP, stackSize)
}

// roundUp rounds v up to a multiple of align.
func roundUp(v, align uint32) uint32 {
	rem := v % align
	if rem == 0 {
		return v
	}
	return v + align - rem
}
