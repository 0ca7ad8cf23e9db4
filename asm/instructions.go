// Package asm parses the TEEM assembly dialect.
package asm

import (
	"fmt"

	"github.com/teem-cpu/teem/insts"
)

// Regular instruction families, keyed by mnemonic.
var aluRegOps = map[string]insts.Op{
	"add": insts.OpADD, "sub": insts.OpSUB, "sll": insts.OpSLL,
	"slt": insts.OpSLT, "sltu": insts.OpSLTU, "xor": insts.OpXOR,
	"srl": insts.OpSRL, "sra": insts.OpSRA, "or": insts.OpOR, "and": insts.OpAND,
	"mul": insts.OpMUL, "mulh": insts.OpMULH, "mulhsu": insts.OpMULHSU,
	"mulhu": insts.OpMULHU, "div": insts.OpDIV, "divu": insts.OpDIVU,
	"rem": insts.OpREM, "remu": insts.OpREMU,
}

var aluImmOps = map[string]insts.Op{
	"addi": insts.OpADDI, "slti": insts.OpSLTI, "sltiu": insts.OpSLTIU,
	"xori": insts.OpXORI, "ori": insts.OpORI, "andi": insts.OpANDI,
	"slli": insts.OpSLLI, "srli": insts.OpSRLI, "srai": insts.OpSRAI,
}

var loadOps = map[string]struct {
	op       insts.Op
	width    uint8
	unsigned bool
}{
	"lb":  {insts.OpLB, 1, false},
	"lh":  {insts.OpLH, 2, false},
	"lw":  {insts.OpLW, 4, false},
	"lbu": {insts.OpLBU, 1, true},
	"lhu": {insts.OpLHU, 2, true},
}

var storeOps = map[string]struct {
	op    insts.Op
	width uint8
}{
	"sb": {insts.OpSB, 1},
	"sh": {insts.OpSH, 2},
	"sw": {insts.OpSW, 4},
}

var branchOps = map[string]insts.Op{
	"beq": insts.OpBEQ, "bne": insts.OpBNE, "blt": insts.OpBLT,
	"bge": insts.OpBGE, "bltu": insts.OpBLTU, "bgeu": insts.OpBGEU,
}

// Branch pseudos comparing against zero: mnemonic -> op and whether the
// register supplies rs1 (otherwise rs2).
var branchZeroOps = map[string]struct {
	op      insts.Op
	regIsR1 bool
}{
	"beqz": {insts.OpBEQ, true},
	"bnez": {insts.OpBNE, true},
	"bltz": {insts.OpBLT, true},
	"bgez": {insts.OpBGE, true},
	"blez": {insts.OpBGE, false}, // 0 >= rs
	"bgtz": {insts.OpBLT, false}, // 0 < rs
}

// Swapped-operand branch pseudos.
var branchSwapOps = map[string]insts.Op{
	"bgt": insts.OpBLT, "ble": insts.OpBGE,
	"bgtu": insts.OpBLTU, "bleu": insts.OpBGEU,
}

// parseInstruction decodes one mnemonic line and appends the result.
func (p *parser) parseInstruction(mnemonic, argText string, col int) error {
	if p.section != SecText {
		return p.errf(col, "instruction outside .text")
	}

	args := splitArgs(argText)
	inst, labelRef, err := p.decode(mnemonic, args)
	if err != nil {
		return p.errf(col, "%s: %v", mnemonic, err)
	}

	p.prog.Insts = append(p.prog.Insts, SourceInst{
		Inst:     inst,
		LabelRef: labelRef,
		Line:     p.line,
	})
	return nil
}

// decode maps a mnemonic and its arguments to an Instruction, possibly
// with a pending label reference.
func (p *parser) decode(m string, args []string) (insts.Instruction, string, error) {
	var none insts.Instruction

	if op, ok := aluRegOps[m]; ok {
		rd, rs1, rs2, err := threeRegs(args)
		if err != nil {
			return none, "", err
		}
		return insts.Instruction{Op: op, Kind: insts.KindALUReg, Rd: rd, Rs1: rs1, Rs2: rs2}, "", nil
	}

	if op, ok := aluImmOps[m]; ok {
		if len(args) != 3 {
			return none, "", fmt.Errorf("expected rd, rs1, imm")
		}
		rd, err := reg(args[0])
		if err != nil {
			return none, "", err
		}
		rs1, err := reg(args[1])
		if err != nil {
			return none, "", err
		}
		imm, err := parseInt(args[2])
		if err != nil {
			return none, "", err
		}
		return insts.Instruction{Op: op, Kind: insts.KindALUImm, Rd: rd, Rs1: rs1, Imm: imm}, "", nil
	}

	if spec, ok := loadOps[m]; ok {
		if len(args) != 2 {
			return none, "", fmt.Errorf("expected rd, off(rs1)")
		}
		rd, err := reg(args[0])
		if err != nil {
			return none, "", err
		}
		imm, rs1, label, err := memRef(args[1])
		if err != nil {
			return none, "", err
		}
		return insts.Instruction{
			Op: spec.op, Kind: insts.KindLoad, Rd: rd, Rs1: rs1,
			Imm: imm, Width: spec.width, Unsigned: spec.unsigned,
		}, label, nil
	}

	if spec, ok := storeOps[m]; ok {
		if len(args) != 2 {
			return none, "", fmt.Errorf("expected rs2, off(rs1)")
		}
		rs2, err := reg(args[0])
		if err != nil {
			return none, "", err
		}
		imm, rs1, label, err := memRef(args[1])
		if err != nil {
			return none, "", err
		}
		return insts.Instruction{
			Op: spec.op, Kind: insts.KindStore, Rs1: rs1, Rs2: rs2,
			Imm: imm, Width: spec.width,
		}, label, nil
	}

	if op, ok := branchOps[m]; ok {
		if len(args) != 3 {
			return none, "", fmt.Errorf("expected rs1, rs2, target")
		}
		rs1, err := reg(args[0])
		if err != nil {
			return none, "", err
		}
		rs2, err := reg(args[1])
		if err != nil {
			return none, "", err
		}
		label, target, err := targetArg(args[2])
		if err != nil {
			return none, "", err
		}
		return insts.Instruction{Op: op, Kind: insts.KindBranch, Rs1: rs1, Rs2: rs2, Target: target}, label, nil
	}

	if spec, ok := branchZeroOps[m]; ok {
		if len(args) != 2 {
			return none, "", fmt.Errorf("expected rs, target")
		}
		rs, err := reg(args[0])
		if err != nil {
			return none, "", err
		}
		label, target, err := targetArg(args[1])
		if err != nil {
			return none, "", err
		}
		inst := insts.Instruction{Op: spec.op, Kind: insts.KindBranch, Target: target}
		if spec.regIsR1 {
			inst.Rs1 = rs
		} else {
			inst.Rs2 = rs
		}
		return inst, label, nil
	}

	if op, ok := branchSwapOps[m]; ok {
		if len(args) != 3 {
			return none, "", fmt.Errorf("expected rs1, rs2, target")
		}
		rs1, err := reg(args[0])
		if err != nil {
			return none, "", err
		}
		rs2, err := reg(args[1])
		if err != nil {
			return none, "", err
		}
		label, target, err := targetArg(args[2])
		if err != nil {
			return none, "", err
		}
		return insts.Instruction{Op: op, Kind: insts.KindBranch, Rs1: rs2, Rs2: rs1, Target: target}, label, nil
	}

	return p.decodeIrregular(m, args)
}

// decodeIrregular covers jumps, upper immediates, specials, and the
// remaining pseudo-instructions.
func (p *parser) decodeIrregular(m string, args []string) (insts.Instruction, string, error) {
	var none insts.Instruction

	switch m {
	case "lui", "auipc":
		if len(args) != 2 {
			return none, "", fmt.Errorf("expected rd, imm")
		}
		rd, err := reg(args[0])
		if err != nil {
			return none, "", err
		}
		imm, err := parseInt(args[1])
		if err != nil {
			return none, "", err
		}
		op := insts.OpLUI
		if m == "auipc" {
			op = insts.OpAUIPC
		}
		return insts.Instruction{Op: op, Kind: insts.KindUpperImm, Rd: rd, Imm: imm}, "", nil

	case "jal":
		// Both "jal target" (rd = ra) and "jal rd, target".
		rd := insts.RegRA
		targetStr := ""
		switch len(args) {
		case 1:
			targetStr = args[0]
		case 2:
			r, err := reg(args[0])
			if err != nil {
				return none, "", err
			}
			rd = r
			targetStr = args[1]
		default:
			return none, "", fmt.Errorf("expected [rd,] target")
		}
		label, target, err := targetArg(targetStr)
		if err != nil {
			return none, "", err
		}
		return insts.Instruction{Op: insts.OpJAL, Kind: insts.KindJAL, Rd: rd, Target: target}, label, nil

	case "jalr":
		// "jalr rs1", "jalr rd, off(rs1)", "jalr rd, rs1, imm".
		switch len(args) {
		case 1:
			rs1, err := reg(args[0])
			if err != nil {
				return none, "", err
			}
			return insts.Instruction{Op: insts.OpJALR, Kind: insts.KindJALR, Rd: insts.RegRA, Rs1: rs1}, "", nil
		case 2:
			rd, err := reg(args[0])
			if err != nil {
				return none, "", err
			}
			imm, rs1, label, err := memRef(args[1])
			if err != nil {
				return none, "", err
			}
			if label != "" {
				return none, "", fmt.Errorf("jalr target must be a register")
			}
			return insts.Instruction{Op: insts.OpJALR, Kind: insts.KindJALR, Rd: rd, Rs1: rs1, Imm: imm}, "", nil
		case 3:
			rd, err := reg(args[0])
			if err != nil {
				return none, "", err
			}
			rs1, err := reg(args[1])
			if err != nil {
				return none, "", err
			}
			imm, err := parseInt(args[2])
			if err != nil {
				return none, "", err
			}
			return insts.Instruction{Op: insts.OpJALR, Kind: insts.KindJALR, Rd: rd, Rs1: rs1, Imm: imm}, "", nil
		}
		return none, "", fmt.Errorf("expected rd, off(rs1)")

	case "rdcycle":
		if len(args) != 1 {
			return none, "", fmt.Errorf("expected rd")
		}
		rd, err := reg(args[0])
		if err != nil {
			return none, "", err
		}
		return insts.Instruction{Op: insts.OpRDCYCLE, Kind: insts.KindSpecial, Rd: rd}, "", nil

	case "fence.i":
		return insts.Instruction{Op: insts.OpFENCEI, Kind: insts.KindSpecial}, "", nil
	case "ecall":
		return insts.Instruction{Op: insts.OpECALL, Kind: insts.KindSpecial}, "", nil
	case "ebreak":
		return insts.Instruction{Op: insts.OpEBREAK, Kind: insts.KindSpecial}, "", nil

	case "cbo.flush":
		if len(args) != 1 {
			return none, "", fmt.Errorf("expected off(rs1)")
		}
		imm, rs1, label, err := memRef(args[0])
		if err != nil {
			return none, "", err
		}
		if label != "" {
			return none, "", fmt.Errorf("cbo.flush needs a register base")
		}
		return insts.Instruction{Op: insts.OpCBOFLUSH, Kind: insts.KindSpecial, Rs1: rs1, Imm: imm}, "", nil

	case "x.flushall", "th.dcache.ciall":
		return insts.Instruction{Op: insts.OpFLUSHALL, Kind: insts.KindSpecial}, "", nil

	// Pseudo-instructions. Immediates being full 32-bit words lets
	// li and la stay single addi emissions.
	case "nop":
		return insts.Instruction{Op: insts.OpADDI, Kind: insts.KindALUImm}, "", nil

	case "mv":
		rd, rs, err := twoRegs(args)
		if err != nil {
			return none, "", err
		}
		return insts.Instruction{Op: insts.OpADDI, Kind: insts.KindALUImm, Rd: rd, Rs1: rs}, "", nil

	case "li":
		if len(args) != 2 {
			return none, "", fmt.Errorf("expected rd, imm")
		}
		rd, err := reg(args[0])
		if err != nil {
			return none, "", err
		}
		imm, err := parseInt(args[1])
		if err != nil {
			return none, "", err
		}
		return insts.Instruction{Op: insts.OpADDI, Kind: insts.KindALUImm, Rd: rd, Imm: imm}, "", nil

	case "la":
		if len(args) != 2 {
			return none, "", fmt.Errorf("expected rd, label")
		}
		rd, err := reg(args[0])
		if err != nil {
			return none, "", err
		}
		if !isIdent(args[1]) || looksNumeric(args[1]) {
			return none, "", fmt.Errorf("expected a label, got %q", args[1])
		}
		return insts.Instruction{Op: insts.OpADDI, Kind: insts.KindALUImm, Rd: rd}, args[1], nil

	case "not":
		rd, rs, err := twoRegs(args)
		if err != nil {
			return none, "", err
		}
		return insts.Instruction{Op: insts.OpXORI, Kind: insts.KindALUImm, Rd: rd, Rs1: rs, Imm: -1}, "", nil

	case "neg":
		rd, rs, err := twoRegs(args)
		if err != nil {
			return none, "", err
		}
		return insts.Instruction{Op: insts.OpSUB, Kind: insts.KindALUReg, Rd: rd, Rs2: rs}, "", nil

	case "seqz":
		rd, rs, err := twoRegs(args)
		if err != nil {
			return none, "", err
		}
		return insts.Instruction{Op: insts.OpSLTIU, Kind: insts.KindALUImm, Rd: rd, Rs1: rs, Imm: 1}, "", nil

	case "snez":
		rd, rs, err := twoRegs(args)
		if err != nil {
			return none, "", err
		}
		return insts.Instruction{Op: insts.OpSLTU, Kind: insts.KindALUReg, Rd: rd, Rs2: rs}, "", nil

	case "sltz":
		rd, rs, err := twoRegs(args)
		if err != nil {
			return none, "", err
		}
		return insts.Instruction{Op: insts.OpSLT, Kind: insts.KindALUReg, Rd: rd, Rs1: rs}, "", nil

	case "sgtz":
		rd, rs, err := twoRegs(args)
		if err != nil {
			return none, "", err
		}
		return insts.Instruction{Op: insts.OpSLT, Kind: insts.KindALUReg, Rd: rd, Rs2: rs}, "", nil

	case "j":
		if len(args) != 1 {
			return none, "", fmt.Errorf("expected target")
		}
		label, target, err := targetArg(args[0])
		if err != nil {
			return none, "", err
		}
		return insts.Instruction{Op: insts.OpJAL, Kind: insts.KindJAL, Target: target}, label, nil

	case "jr":
		if len(args) != 1 {
			return none, "", fmt.Errorf("expected rs")
		}
		rs, err := reg(args[0])
		if err != nil {
			return none, "", err
		}
		return insts.Instruction{Op: insts.OpJALR, Kind: insts.KindJALR, Rs1: rs}, "", nil

	case "ret":
		return insts.Instruction{Op: insts.OpJALR, Kind: insts.KindJALR, Rs1: insts.RegRA}, "", nil

	case "call":
		if len(args) != 1 {
			return none, "", fmt.Errorf("expected target")
		}
		label, target, err := targetArg(args[0])
		if err != nil {
			return none, "", err
		}
		return insts.Instruction{Op: insts.OpJAL, Kind: insts.KindJAL, Rd: insts.RegRA, Target: target}, label, nil
	}

	return none, "", fmt.Errorf("unknown mnemonic")
}

// reg resolves one register argument.
func reg(s string) (uint8, error) {
	r, ok := insts.ParseReg(s)
	if !ok {
		return 0, fmt.Errorf("bad register %q", s)
	}
	return r, nil
}

// twoRegs parses "rd, rs".
func twoRegs(args []string) (rd, rs uint8, err error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("expected rd, rs")
	}
	if rd, err = reg(args[0]); err != nil {
		return
	}
	rs, err = reg(args[1])
	return
}

// threeRegs parses "rd, rs1, rs2".
func threeRegs(args []string) (rd, rs1, rs2 uint8, err error) {
	if len(args) != 3 {
		return 0, 0, 0, fmt.Errorf("expected rd, rs1, rs2")
	}
	if rd, err = reg(args[0]); err != nil {
		return
	}
	if rs1, err = reg(args[1]); err != nil {
		return
	}
	rs2, err = reg(args[2])
	return
}

// memRef parses "off(rm)" with either part optional, or a bare label
// whose address resolves into the offset.
func memRef(s string) (imm int32, rs1 uint8, label string, err error) {
	if s == "" {
		return 0, 0, "", fmt.Errorf("empty memory reference")
	}
	open := -1
	for i := 0; i < len(s); i++ {
		if s[i] == '(' {
			open = i
			break
		}
	}
	if open < 0 {
		if looksNumeric(s) {
			imm, err = parseInt(s)
			return imm, 0, "", err
		}
		if isIdent(s) {
			return 0, 0, s, nil
		}
		return 0, 0, "", fmt.Errorf("bad memory reference %q", s)
	}
	if s[len(s)-1] != ')' {
		return 0, 0, "", fmt.Errorf("unterminated memory reference %q", s)
	}
	offPart := s[:open]
	regPart := s[open+1 : len(s)-1]
	if regPart == "" {
		return 0, 0, "", fmt.Errorf("missing base register in %q", s)
	}
	if rs1, err = reg(regPart); err != nil {
		return 0, 0, "", err
	}
	if offPart != "" {
		if looksNumeric(offPart) {
			if imm, err = parseInt(offPart); err != nil {
				return 0, 0, "", err
			}
		} else if isIdent(offPart) {
			label = offPart
		} else {
			return 0, 0, "", fmt.Errorf("bad offset %q", offPart)
		}
	}
	return imm, rs1, label, nil
}

// targetArg parses a branch/jump destination: a label or an absolute
// integer address.
func targetArg(s string) (label string, target uint32, err error) {
	if looksNumeric(s) {
		v, err := parseInt(s)
		if err != nil {
			return "", 0, err
		}
		return "", uint32(v), nil
	}
	if !isIdent(s) {
		return "", 0, fmt.Errorf("bad target %q", s)
	}
	return s, 0, nil
}
