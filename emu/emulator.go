// Package emu provides the functional RV32 model.
package emu

import (
	"fmt"
	"io"
	"os"

	"github.com/teem-cpu/teem/insts"
)

// StepResult reports the outcome of executing a single instruction.
type StepResult struct {
	// Exited is true if the guest terminated via the exit syscall.
	Exited bool

	// ExitCode is the exit status if Exited is true.
	ExitCode int32

	// Paused is true after an ebreak.
	Paused bool

	// Err is set if a fault was raised.
	Err error
}

// Emulator is the in-order reference interpreter: it executes one
// instruction per step with no speculation and no cache. It defines the
// architectural semantics the speculative engine must retire to.
type Emulator struct {
	regFile *RegFile
	memory  *Memory
	text    map[uint32]insts.Instruction

	syscallHandler SyscallHandler
	stdin          io.Reader
	stdout         io.Writer

	instructionCount uint64
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithStdout sets the console output writer.
func WithStdout(w io.Writer) EmulatorOption {
	return func(e *Emulator) {
		e.stdout = w
	}
}

// WithStdin sets the console input reader.
func WithStdin(r io.Reader) EmulatorOption {
	return func(e *Emulator) {
		e.stdin = r
	}
}

// WithSyscallHandler sets a custom syscall handler.
func WithSyscallHandler(handler SyscallHandler) EmulatorOption {
	return func(e *Emulator) {
		e.syscallHandler = handler
	}
}

// WithStackPointer sets the initial stack pointer.
func WithStackPointer(sp uint32) EmulatorOption {
	return func(e *Emulator) {
		e.regFile.WriteReg(insts.RegSP, sp)
	}
}

// NewEmulator creates a reference interpreter over the given text
// section, memory image, and entry point.
func NewEmulator(text map[uint32]insts.Instruction, memory *Memory, entry uint32, opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		regFile: &RegFile{PC: entry},
		memory:  memory,
		text:    text,
		stdout:  os.Stdout,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.syscallHandler == nil {
		e.syscallHandler = NewConsoleHandler(e.regFile, e.memory, e.stdin, e.stdout)
	}

	return e
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile {
	return e.regFile
}

// Memory returns the emulator's memory.
func (e *Emulator) Memory() *Memory {
	return e.memory
}

// InstructionCount returns the number of instructions executed.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// Step executes a single instruction.
func (e *Emulator) Step() StepResult {
	inst, ok := e.text[e.regFile.PC]
	if !ok {
		return StepResult{Err: &Fault{Kind: FaultBadFetch, Addr: e.regFile.PC, PC: e.regFile.PC}}
	}

	result := e.execute(inst)
	e.instructionCount++
	return result
}

// Run executes instructions until the guest exits or faults. ebreak
// pauses are reported through onPause when non-nil, then execution
// continues. Returns the exit code, -1 on fault.
func (e *Emulator) Run(onPause func(pc uint32)) int32 {
	for {
		result := e.Step()
		if result.Exited {
			return result.ExitCode
		}
		if result.Err != nil {
			fmt.Fprintf(os.Stderr, "emulation fault: %v\n", result.Err)
			return -1
		}
		if result.Paused && onPause != nil {
			onPause(e.regFile.PC)
		}
	}
}

// execute dispatches one decoded instruction.
func (e *Emulator) execute(inst insts.Instruction) StepResult {
	pc := e.regFile.PC
	next := pc + 4

	switch inst.Kind {
	case insts.KindALUReg:
		a := e.regFile.ReadReg(inst.Rs1)
		b := e.regFile.ReadReg(inst.Rs2)
		e.regFile.WriteReg(inst.Rd, ALUOp(inst.Op, a, b))

	case insts.KindALUImm:
		a := e.regFile.ReadReg(inst.Rs1)
		e.regFile.WriteReg(inst.Rd, ALUOp(inst.Op, a, uint32(inst.Imm)))

	case insts.KindUpperImm:
		v := uint32(inst.Imm) << 12
		if inst.Op == insts.OpAUIPC {
			v += pc
		}
		e.regFile.WriteReg(inst.Rd, v)

	case insts.KindLoad:
		addr := e.regFile.ReadReg(inst.Rs1) + uint32(inst.Imm)
		if !e.memory.Mapped(addr, int(inst.Width)) {
			return StepResult{Err: &Fault{Kind: FaultMemAccess, Addr: addr, PC: pc}}
		}
		e.regFile.WriteReg(inst.Rd, e.memory.ReadData(addr, inst.Width, inst.Unsigned))

	case insts.KindStore:
		addr := e.regFile.ReadReg(inst.Rs1) + uint32(inst.Imm)
		if !e.memory.Mapped(addr, int(inst.Width)) {
			return StepResult{Err: &Fault{Kind: FaultMemAccess, Addr: addr, PC: pc}}
		}
		e.memory.WriteData(addr, inst.Width, e.regFile.ReadReg(inst.Rs2))

	case insts.KindBranch:
		a := e.regFile.ReadReg(inst.Rs1)
		b := e.regFile.ReadReg(inst.Rs2)
		if BranchTaken(inst.Op, a, b) {
			next = inst.Target
		}

	case insts.KindJAL:
		e.regFile.WriteReg(inst.Rd, next)
		next = inst.Target

	case insts.KindJALR:
		target := (e.regFile.ReadReg(inst.Rs1) + uint32(inst.Imm)) &^ 1
		e.regFile.WriteReg(inst.Rd, next)
		next = target

	case insts.KindSpecial:
		switch inst.Op {
		case insts.OpRDCYCLE:
			// The reference interpreter counts one cycle per
			// instruction.
			e.regFile.WriteReg(inst.Rd, uint32(e.instructionCount))
		case insts.OpECALL:
			e.regFile.PC = next
			r := e.syscallHandler.Handle()
			return StepResult{Exited: r.Exited, ExitCode: r.ExitCode}
		case insts.OpEBREAK:
			e.regFile.PC = next
			return StepResult{Paused: true}
		case insts.OpFENCEI, insts.OpCBOFLUSH, insts.OpFLUSHALL:
			// No cache in the functional model.
		}
	}

	e.regFile.PC = next
	return StepResult{}
}
