// Package asm parses the TEEM assembly dialect into a symbolic
// program: decoded instructions, data bytes, and a label table. The
// loader assigns addresses and resolves label references.
//
// Lines have the form
//
//	[label:] mnemonic-or-directive [arg, arg, ...]   # comment
//
// Comments start with '#' or '//'. Arguments are signed integers
// (decimal or 0x hex), label names, register names (x0..x31 or ABI),
// memory references off(rm) with either part optional, or strings
// (directives only). Immediates are 32-bit values and are not
// range-checked beyond that.
package asm

import "github.com/teem-cpu/teem/insts"

// Section identifies where a symbol or emission lands.
type Section uint8

// Sections.
const (
	SecText Section = iota
	SecData
	SecBSS
)

// String returns the section's directive name.
func (s Section) String() string {
	switch s {
	case SecText:
		return ".text"
	case SecData:
		return ".data"
	case SecBSS:
		return ".bss"
	}
	return ".?"
}

// Symbol is a label definition: a section and a byte offset within it.
type Symbol struct {
	Section Section
	Offset  uint32
}

// SourceInst is one parsed instruction, possibly still referring to a
// label the loader must resolve.
type SourceInst struct {
	Inst insts.Instruction

	// LabelRef names the label whose resolved address belongs in the
	// instruction: into Target for branches and jal, into Imm for
	// address-forming ALU immediates (la). Empty if none.
	LabelRef string

	// Line is the 1-based source line, for load-error reporting.
	Line int
}

// DataFixup is a label reference inside the data section: the resolved
// address is patched over 4 bytes at Offset.
type DataFixup struct {
	Offset uint32
	Label  string
	Line   int
}

// Program is the parser's output: section contents plus symbols.
type Program struct {
	// Insts are the text-section instructions in emission order; each
	// occupies 4 bytes of text address space.
	Insts []SourceInst

	// Data holds the initialized data section.
	Data []byte

	// BSSSize is the size of the zero-initialized section.
	BSSSize uint32

	// Labels maps each defined label to its section-relative location.
	Labels map[string]Symbol

	// DataFixups are label references embedded in Data.
	DataFixups []DataFixup
}
