// Package asm parses the TEEM assembly dialect.
package asm

import (
	"fmt"

	"github.com/teem-cpu/teem/insts"
)

// ignoredDirectives are accepted for compiler-output compatibility and
// consume their arguments without effect.
var ignoredDirectives = map[string]bool{
	".file": true, ".globl": true, ".weak": true, ".local": true,
	".ident": true, ".type": true, ".size": true, ".attribute": true,
	".addrsig": true, ".addrsig_sym": true,
}

// parseDirective handles one directive line.
func (p *parser) parseDirective(name, argText string, col int) error {
	if ignoredDirectives[name] {
		return nil
	}

	args := splitArgs(argText)

	switch name {
	case ".text":
		p.section = SecText
	case ".data":
		p.section = SecData
	case ".bss":
		p.section = SecBSS
	case ".section":
		if len(args) < 1 {
			return p.errf(col, ".section requires a name")
		}
		switch args[0] {
		case ".text":
			p.section = SecText
		case ".data", ".rodata":
			p.section = SecData
		case ".bss":
			p.section = SecBSS
		default:
			return p.errf(col, "unknown section %q", args[0])
		}

	case ".asciz", ".string":
		return p.emitString(args, col, true)
	case ".ascii":
		return p.emitString(args, col, false)

	case ".byte":
		return p.emitInts(args, col, 1)
	case ".short", ".half", ".2byte":
		return p.emitInts(args, col, 2)
	case ".long", ".word", ".4byte":
		return p.emitInts(args, col, 4)
	case ".quad", ".dword", ".8byte":
		return p.emitInts(args, col, 8)

	case ".zero":
		if len(args) != 1 {
			return p.errf(col, ".zero requires a size")
		}
		n, err := parseInt(args[0])
		if err != nil || n < 0 {
			return p.errf(col, ".zero: bad size %q", args[0])
		}
		return p.emitZero(uint32(n), col)

	case ".comm":
		return p.parseComm(args, col)

	case ".p2align":
		if len(args) < 1 {
			return p.errf(col, ".p2align requires an exponent")
		}
		n, err := parseInt(args[0])
		if err != nil || n < 0 || n > 20 {
			return p.errf(col, ".p2align: bad exponent %q", args[0])
		}
		return p.alignTo(uint32(1)<<uint(n), col)

	case ".balign":
		if len(args) < 1 {
			return p.errf(col, ".balign requires an alignment")
		}
		n, err := parseInt(args[0])
		if err != nil || n <= 0 {
			return p.errf(col, ".balign: bad alignment %q", args[0])
		}
		return p.alignTo(uint32(n), col)

	default:
		return p.errf(col, "unknown directive %q", name)
	}
	return nil
}

// emitString emits one or more string literals into the data section.
func (p *parser) emitString(args []string, col int, nulTerminate bool) error {
	if p.section != SecData {
		return p.errf(col, "string data not allowed in %s", p.section)
	}
	if len(args) == 0 {
		return p.errf(col, "missing string argument")
	}
	for _, a := range args {
		s, err := unquote(a)
		if err != nil {
			return p.errf(col, "%v", err)
		}
		p.prog.Data = append(p.prog.Data, s...)
		if nulTerminate {
			p.prog.Data = append(p.prog.Data, 0)
		}
	}
	return nil
}

// emitInts emits integer (or, for 4-byte emission, label) values.
func (p *parser) emitInts(args []string, col int, size int) error {
	if p.section != SecData {
		return p.errf(col, "initialized data not allowed in %s", p.section)
	}
	if len(args) == 0 {
		return p.errf(col, "missing value")
	}
	for _, a := range args {
		if !looksNumeric(a) && isIdent(a) {
			if size != 4 {
				return p.errf(col, "label value %q needs a 4-byte slot", a)
			}
			p.prog.DataFixups = append(p.prog.DataFixups, DataFixup{
				Offset: uint32(len(p.prog.Data)),
				Label:  a,
				Line:   p.line,
			})
			p.prog.Data = append(p.prog.Data, 0, 0, 0, 0)
			continue
		}
		v, err := parseInt(a)
		if err != nil {
			return p.errf(col, "%v", err)
		}
		u := uint64(uint32(v))
		if size == 8 && v < 0 {
			u = uint64(int64(v)) // sign-extend into the high word
		}
		for i := 0; i < size; i++ {
			p.prog.Data = append(p.prog.Data, byte(u>>(8*i)))
		}
	}
	return nil
}

// emitZero reserves n zero bytes in .data or .bss.
func (p *parser) emitZero(n uint32, col int) error {
	switch p.section {
	case SecData:
		p.prog.Data = append(p.prog.Data, make([]byte, n)...)
	case SecBSS:
		p.prog.BSSSize += n
	default:
		return p.errf(col, ".zero not allowed in %s", p.section)
	}
	return nil
}

// parseComm handles ".comm name, size[, align]": a BSS allocation with
// its own label, regardless of the current section.
func (p *parser) parseComm(args []string, col int) error {
	if len(args) < 2 {
		return p.errf(col, ".comm requires name and size")
	}
	name := args[0]
	if !isIdent(name) {
		return p.errf(col, ".comm: bad name %q", name)
	}
	size, err := parseInt(args[1])
	if err != nil || size < 0 {
		return p.errf(col, ".comm: bad size %q", args[1])
	}
	align := uint32(4)
	if len(args) >= 3 {
		a, err := parseInt(args[2])
		if err != nil || a <= 0 {
			return p.errf(col, ".comm: bad alignment %q", args[2])
		}
		align = uint32(a)
	}
	p.prog.BSSSize = roundUp(p.prog.BSSSize, align)
	if _, exists := p.prog.Labels[name]; exists {
		return p.errf(col, "duplicate label %q", name)
	}
	p.prog.Labels[name] = Symbol{Section: SecBSS, Offset: p.prog.BSSSize}
	p.prog.BSSSize += uint32(size)
	return nil
}

// alignTo pads the current section to the given byte alignment. Text
// padding is nop instructions.
func (p *parser) alignTo(align uint32, col int) error {
	if align == 0 {
		return nil
	}
	switch p.section {
	case SecText:
		if align%4 != 0 && align > 1 && align != 2 {
			return p.errf(col, "text alignment %d is not instruction-granular", align)
		}
		for uint32(len(p.prog.Insts))*4%align != 0 {
			p.prog.Insts = append(p.prog.Insts, SourceInst{
				Inst: insts.Instruction{Op: insts.OpADDI, Kind: insts.KindALUImm},
				Line: p.line,
			})
		}
	case SecData:
		for uint32(len(p.prog.Data))%align != 0 {
			p.prog.Data = append(p.prog.Data, 0)
		}
	case SecBSS:
		p.prog.BSSSize = roundUp(p.prog.BSSSize, align)
	}
	return nil
}

// roundUp rounds v up to a multiple of align.
func roundUp(v, align uint32) uint32 {
	if align == 0 {
		return v
	}
	rem := v % align
	if rem == 0 {
		return v
	}
	return v + align - rem
}

// unquote decodes a quoted or unquoted string argument. Escapes
// \n \t \r \0 \\ \" \' and \xNN are recognized.
func unquote(s string) ([]byte, error) {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') {
		if s[len(s)-1] != s[0] {
			return nil, fmt.Errorf("unterminated string %s", s)
		}
		s = s[1 : len(s)-1]
	}
	var out []byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			out = append(out, c)
			continue
		}
		i++
		if i >= len(s) {
			return nil, fmt.Errorf("dangling escape in string")
		}
		switch s[i] {
		case 'n':
			out = append(out, '\n')
		case 't':
			out = append(out, '\t')
		case 'r':
			out = append(out, '\r')
		case '0':
			out = append(out, 0)
		case '\\', '"', '\'':
			out = append(out, s[i])
		case 'x':
			if i+2 >= len(s) {
				return nil, fmt.Errorf("truncated \\x escape")
			}
			var v byte
			for k := 0; k < 2; k++ {
				i++
				v <<= 4
				d := s[i]
				switch {
				case d >= '0' && d <= '9':
					v |= d - '0'
				case d >= 'a' && d <= 'f':
					v |= d - 'a' + 10
				case d >= 'A' && d <= 'F':
					v |= d - 'A' + 10
				default:
					return nil, fmt.Errorf("bad hex digit %q", string(d))
				}
			}
			out = append(out, v)
		default:
			return nil, fmt.Errorf("unknown escape \\%s", string(s[i]))
		}
	}
	return out, nil
}
