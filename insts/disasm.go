// Package insts provides RV32IM instruction definitions for TEEM.
package insts

import (
	"fmt"
	"strconv"
)

// mnemonics maps each operation to its canonical mnemonic.
var mnemonics = map[Op]string{
	OpADD: "add", OpSUB: "sub", OpSLL: "sll", OpSLT: "slt", OpSLTU: "sltu",
	OpXOR: "xor", OpSRL: "srl", OpSRA: "sra", OpOR: "or", OpAND: "and",
	OpADDI: "addi", OpSLTI: "slti", OpSLTIU: "sltiu", OpXORI: "xori",
	OpORI: "ori", OpANDI: "andi", OpSLLI: "slli", OpSRLI: "srli", OpSRAI: "srai",
	OpLUI: "lui", OpAUIPC: "auipc",
	OpMUL: "mul", OpMULH: "mulh", OpMULHSU: "mulhsu", OpMULHU: "mulhu",
	OpDIV: "div", OpDIVU: "divu", OpREM: "rem", OpREMU: "remu",
	OpLB: "lb", OpLH: "lh", OpLW: "lw", OpLBU: "lbu", OpLHU: "lhu",
	OpSB: "sb", OpSH: "sh", OpSW: "sw",
	OpBEQ: "beq", OpBNE: "bne", OpBLT: "blt", OpBGE: "bge",
	OpBLTU: "bltu", OpBGEU: "bgeu",
	OpJAL: "jal", OpJALR: "jalr",
	OpRDCYCLE: "rdcycle", OpFENCEI: "fence.i", OpECALL: "ecall",
	OpEBREAK: "ebreak", OpCBOFLUSH: "cbo.flush", OpFLUSHALL: "x.flushall",
}

// Mnemonic returns the canonical mnemonic for an operation.
func (op Op) Mnemonic() string {
	if m, ok := mnemonics[op]; ok {
		return m
	}
	return "unknown"
}

// String renders the instruction in canonical assembly: ABI register
// names, decimal immediates, hexadecimal absolute targets. Reassembling
// the output reproduces the instruction (alias-normalized).
func (i Instruction) String() string {
	m := i.Op.Mnemonic()

	switch i.Kind {
	case KindALUReg:
		return fmt.Sprintf("%s %s, %s, %s", m, RegName(i.Rd), RegName(i.Rs1), RegName(i.Rs2))
	case KindALUImm:
		return fmt.Sprintf("%s %s, %s, %d", m, RegName(i.Rd), RegName(i.Rs1), i.Imm)
	case KindUpperImm:
		return fmt.Sprintf("%s %s, %d", m, RegName(i.Rd), i.Imm)
	case KindLoad:
		return fmt.Sprintf("%s %s, %d(%s)", m, RegName(i.Rd), i.Imm, RegName(i.Rs1))
	case KindStore:
		return fmt.Sprintf("%s %s, %d(%s)", m, RegName(i.Rs2), i.Imm, RegName(i.Rs1))
	case KindBranch:
		return fmt.Sprintf("%s %s, %s, 0x%x", m, RegName(i.Rs1), RegName(i.Rs2), i.Target)
	case KindJAL:
		return fmt.Sprintf("%s %s, 0x%x", m, RegName(i.Rd), i.Target)
	case KindJALR:
		return fmt.Sprintf("%s %s, %d(%s)", m, RegName(i.Rd), i.Imm, RegName(i.Rs1))
	case KindSpecial:
		switch i.Op {
		case OpRDCYCLE:
			return "rdcycle " + RegName(i.Rd)
		case OpCBOFLUSH:
			return fmt.Sprintf("cbo.flush %d(%s)", i.Imm, RegName(i.Rs1))
		default:
			return m
		}
	}
	return "unknown " + strconv.Itoa(int(i.Op))
}
