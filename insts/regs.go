// Package insts provides RV32IM instruction definitions for TEEM.
package insts

import "strconv"

// Well-known register numbers.
const (
	RegZero uint8 = 0  // x0, hardwired zero
	RegRA   uint8 = 1  // x1, return address
	RegSP   uint8 = 2  // x2, stack pointer
	RegA0   uint8 = 10 // x10, first argument / return value
	RegA7   uint8 = 17 // x17, syscall selector
)

// NumRegs is the number of architectural registers.
const NumRegs = 32

// abiNames maps register numbers to their ABI names.
var abiNames = [NumRegs]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

// regByName maps every accepted spelling to a register number.
var regByName = func() map[string]uint8 {
	m := make(map[string]uint8, NumRegs*2+1)
	for i := 0; i < NumRegs; i++ {
		m[abiNames[i]] = uint8(i)
		m["x"+strconv.Itoa(i)] = uint8(i)
	}
	m["fp"] = 8 // frame pointer alias for s0
	return m
}()

// RegName returns the canonical ABI name of a register.
func RegName(r uint8) string {
	if int(r) >= NumRegs {
		return "x?" + strconv.Itoa(int(r))
	}
	return abiNames[r]
}

// ParseReg resolves a register name, systematic (x0..x31) or ABI.
func ParseReg(name string) (uint8, bool) {
	r, ok := regByName[name]
	return r, ok
}
