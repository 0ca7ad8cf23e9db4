// Package emu provides the functional RV32 model.
package emu

import "github.com/teem-cpu/teem/insts"

// RegFile is the architectural register file: 32 general-purpose
// registers and the program counter. x0 always reads zero and silently
// discards writes.
type RegFile struct {
	// X holds x0-x31. X[0] is kept at zero by WriteReg.
	X [insts.NumRegs]uint32

	// PC is the architectural program counter.
	PC uint32
}

// ReadReg reads a register value. x0 reads as 0.
func (r *RegFile) ReadReg(reg uint8) uint32 {
	if reg == 0 || int(reg) >= insts.NumRegs {
		return 0
	}
	return r.X[reg]
}

// WriteReg writes a value to a register. Writes to x0 are dropped.
func (r *RegFile) WriteReg(reg uint8, value uint32) {
	if reg == 0 || int(reg) >= insts.NumRegs {
		return
	}
	r.X[reg] = value
}
