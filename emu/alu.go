// Package emu provides the functional RV32 model.
package emu

import "github.com/teem-cpu/teem/insts"

// ALUOp computes an RV32IM arithmetic result. Register-immediate forms
// reuse the register-register cases with the immediate passed as b.
// All arithmetic wraps in 32 bits; shifts use only the low 5 bits of
// the shift amount.
func ALUOp(op insts.Op, a, b uint32) uint32 {
	switch op {
	case insts.OpADD, insts.OpADDI:
		return a + b
	case insts.OpSUB:
		return a - b
	case insts.OpSLL, insts.OpSLLI:
		return a << (b & 31)
	case insts.OpSLT, insts.OpSLTI:
		if int32(a) < int32(b) {
			return 1
		}
		return 0
	case insts.OpSLTU, insts.OpSLTIU:
		if a < b {
			return 1
		}
		return 0
	case insts.OpXOR, insts.OpXORI:
		return a ^ b
	case insts.OpSRL, insts.OpSRLI:
		return a >> (b & 31)
	case insts.OpSRA, insts.OpSRAI:
		return uint32(int32(a) >> (b & 31))
	case insts.OpOR, insts.OpORI:
		return a | b
	case insts.OpAND, insts.OpANDI:
		return a & b

	case insts.OpMUL:
		return a * b
	case insts.OpMULH:
		return uint32((int64(int32(a)) * int64(int32(b))) >> 32)
	case insts.OpMULHSU:
		return uint32((int64(int32(a)) * int64(b)) >> 32)
	case insts.OpMULHU:
		return uint32((uint64(a) * uint64(b)) >> 32)

	case insts.OpDIV:
		return divSigned(a, b)
	case insts.OpDIVU:
		if b == 0 {
			return 0xFFFFFFFF
		}
		return a / b
	case insts.OpREM:
		return remSigned(a, b)
	case insts.OpREMU:
		if b == 0 {
			return a
		}
		return a % b
	}
	return 0
}

// divSigned implements RISC-V signed division: division by zero yields
// -1, and INT_MIN / -1 yields the dividend.
func divSigned(a, b uint32) uint32 {
	sa, sb := int32(a), int32(b)
	if sb == 0 {
		return 0xFFFFFFFF
	}
	if sa == -2147483648 && sb == -1 {
		return a
	}
	return uint32(sa / sb)
}

// remSigned implements RISC-V signed remainder: remainder by zero
// yields the dividend, and INT_MIN % -1 yields zero.
func remSigned(a, b uint32) uint32 {
	sa, sb := int32(a), int32(b)
	if sb == 0 {
		return a
	}
	if sa == -2147483648 && sb == -1 {
		return 0
	}
	return uint32(sa % sb)
}

// BranchTaken evaluates a conditional branch over its two sources.
func BranchTaken(op insts.Op, a, b uint32) bool {
	switch op {
	case insts.OpBEQ:
		return a == b
	case insts.OpBNE:
		return a != b
	case insts.OpBLT:
		return int32(a) < int32(b)
	case insts.OpBGE:
		return int32(a) >= int32(b)
	case insts.OpBLTU:
		return a < b
	case insts.OpBGEU:
		return a >= b
	}
	return false
}
