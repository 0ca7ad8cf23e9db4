// Package insts provides RV32IM instruction definitions for TEEM.
//
// Programs arrive as text assembly, so instructions live as decoded
// structures from the moment the parser emits them. An Instruction is a
// tagged variant: Kind selects the operand fields that are meaningful,
// and execution is a switch over Op. There is no binary encoding.
//
// Usage:
//
//	inst := insts.Instruction{Op: insts.OpADDI, Kind: insts.KindALUImm, Rd: 10, Rs1: 0, Imm: 42}
//	fmt.Println(inst.String()) // "addi a0, zero, 42"
package insts

// Op identifies an RV32IM operation, plus the TEEM extensions.
type Op uint8

// Operations.
const (
	OpUnknown Op = iota

	// RV32I register-register arithmetic.
	OpADD
	OpSUB
	OpSLL
	OpSLT
	OpSLTU
	OpXOR
	OpSRL
	OpSRA
	OpOR
	OpAND

	// RV32I register-immediate arithmetic.
	OpADDI
	OpSLTI
	OpSLTIU
	OpXORI
	OpORI
	OpANDI
	OpSLLI
	OpSRLI
	OpSRAI

	// Upper-immediate.
	OpLUI
	OpAUIPC

	// M extension.
	OpMUL
	OpMULH
	OpMULHSU
	OpMULHU
	OpDIV
	OpDIVU
	OpREM
	OpREMU

	// Loads and stores.
	OpLB
	OpLH
	OpLW
	OpLBU
	OpLHU
	OpSB
	OpSH
	OpSW

	// Control flow.
	OpBEQ
	OpBNE
	OpBLT
	OpBGE
	OpBLTU
	OpBGEU
	OpJAL
	OpJALR

	// TEEM specials.
	OpRDCYCLE  // rdcycle rd - read the simulated cycle counter
	OpFENCEI   // fence.i - drain the pipeline before further fetch
	OpECALL    // ecall - emulator syscall
	OpEBREAK   // ebreak - pause into the REPL
	OpCBOFLUSH // cbo.flush off(rs1) - invalidate one cache line
	OpFLUSHALL // x.flushall / th.dcache.ciall - invalidate the whole cache
)

// Kind selects which Instruction fields are meaningful.
type Kind uint8

// Instruction kinds.
const (
	KindUnknown Kind = iota
	KindALUReg       // Op Rd, Rs1, Rs2
	KindALUImm       // Op Rd, Rs1, Imm
	KindUpperImm     // LUI/AUIPC Rd, Imm (Imm is the pre-shift 20-bit value)
	KindLoad         // Op Rd, Imm(Rs1); Width and Unsigned apply
	KindStore        // Op Rs2, Imm(Rs1); Width applies
	KindBranch       // Op Rs1, Rs2, Target
	KindJAL          // JAL Rd, Target
	KindJALR         // JALR Rd, Imm(Rs1)
	KindSpecial      // rdcycle, fence.i, ecall, ebreak, cbo.flush, flushall
)

// Instruction is a single decoded RV32IM operation.
//
// Immediates are full 32-bit values and are not range-checked beyond
// that; the assembler dialect deliberately deviates from the encodable
// ranges of the binary ISA.
type Instruction struct {
	Op   Op
	Kind Kind

	// Register operands. For KindStore, Rs2 holds the value register.
	Rd  uint8
	Rs1 uint8
	Rs2 uint8

	// Imm is the immediate operand: the offset of loads, stores, and
	// jalr, the full value of ALU immediates, the pre-shift value of
	// lui/auipc.
	Imm int32

	// Target is the absolute address of a branch or jal destination,
	// resolved by the loader from the label the parser recorded.
	Target uint32

	// Width is the access size in bytes for loads and stores (1, 2, 4).
	Width uint8

	// Unsigned marks zero-extending loads (lbu, lhu).
	Unsigned bool
}

// IsBranch reports whether the instruction is a conditional branch.
func (i Instruction) IsBranch() bool {
	return i.Kind == KindBranch
}

// IsLoad reports whether the instruction reads memory.
func (i Instruction) IsLoad() bool {
	return i.Kind == KindLoad
}

// IsStore reports whether the instruction writes memory.
func (i Instruction) IsStore() bool {
	return i.Kind == KindStore
}

// IsCall reports whether the instruction pushes a return address: a
// jal or jalr that links through ra.
func (i Instruction) IsCall() bool {
	return (i.Op == OpJAL || i.Op == OpJALR) && i.Rd == RegRA
}

// IsRet reports whether the instruction is a return: jalr reading ra
// without linking.
func (i Instruction) IsRet() bool {
	return i.Op == OpJALR && i.Rs1 == RegRA && i.Rd == RegZero && i.Imm == 0
}

// WritesReg reports whether the instruction produces a register result.
// Writes to x0 do not count: they are silently discarded.
func (i Instruction) WritesReg() bool {
	switch i.Kind {
	case KindALUReg, KindALUImm, KindUpperImm, KindLoad, KindJAL, KindJALR:
		return i.Rd != RegZero
	case KindSpecial:
		return i.Op == OpRDCYCLE && i.Rd != RegZero
	}
	return false
}

// ReadsRegs returns the registers the instruction sources. Unused
// slots are returned as x0, which is always ready.
func (i Instruction) ReadsRegs() (rs1, rs2 uint8) {
	switch i.Kind {
	case KindALUReg, KindBranch, KindStore:
		return i.Rs1, i.Rs2
	case KindALUImm, KindLoad, KindJALR:
		return i.Rs1, RegZero
	case KindSpecial:
		if i.Op == OpCBOFLUSH {
			return i.Rs1, RegZero
		}
	}
	return RegZero, RegZero
}
