// Package emu provides the functional RV32 model.
package emu

import (
	"bufio"
	"io"

	"github.com/teem-cpu/teem/insts"
)

// TEEM syscall selectors, placed in a7 as signed values.
const (
	SyscallExit  int32 = -1 // exit(status)
	SyscallWrite int32 = -2 // write(buf_ptr, size) -> size
	SyscallRead  int32 = -3 // read(buf_ptr, size) -> bytes read
)

// SyscallResult reports the outcome of a syscall.
type SyscallResult struct {
	// Exited is true if the guest terminated.
	Exited bool

	// ExitCode is the guest's exit status if Exited is true.
	ExitCode int32
}

// SyscallHandler executes the syscall selected by the register file
// state: selector in a7, arguments in a0.., result in a0.
type SyscallHandler interface {
	Handle() SyscallResult
}

// ConsoleHandler implements the three TEEM syscalls against a console:
// write is non-blocking, read blocks for input and buffers any excess
// for the next call.
type ConsoleHandler struct {
	regFile *RegFile
	memory  *Memory
	stdin   *bufio.Reader
	stdout  io.Writer
}

// NewConsoleHandler creates a console syscall handler. A nil stdin
// makes every read return 0 (EOF).
func NewConsoleHandler(regFile *RegFile, memory *Memory, stdin io.Reader, stdout io.Writer) *ConsoleHandler {
	h := &ConsoleHandler{
		regFile: regFile,
		memory:  memory,
		stdout:  stdout,
	}
	if stdin != nil {
		h.stdin = bufio.NewReader(stdin)
	}
	return h
}

// Handle dispatches on a7.
func (h *ConsoleHandler) Handle() SyscallResult {
	switch int32(h.regFile.ReadReg(insts.RegA7)) {
	case SyscallExit:
		return SyscallResult{
			Exited:   true,
			ExitCode: int32(h.regFile.ReadReg(insts.RegA0)),
		}
	case SyscallWrite:
		h.handleWrite()
	case SyscallRead:
		h.handleRead()
	default:
		// Unknown selector: report failure in a0.
		h.regFile.WriteReg(insts.RegA0, ^uint32(0))
	}
	return SyscallResult{}
}

// handleWrite copies size bytes at buf_ptr to the console.
func (h *ConsoleHandler) handleWrite() {
	bufPtr := h.regFile.ReadReg(insts.RegA0)
	size := h.regFile.ReadReg(insts.RegA0 + 1)

	buf := make([]byte, size)
	for i := uint32(0); i < size; i++ {
		buf[i] = h.memory.Read8(bufPtr + i)
	}
	if h.stdout != nil {
		_, _ = h.stdout.Write(buf)
	}
	h.regFile.WriteReg(insts.RegA0, size)
}

// handleRead reads up to size bytes into buf_ptr. It blocks until at
// least one byte is available; bytes beyond size stay buffered for the
// next read. EOF returns 0.
func (h *ConsoleHandler) handleRead() {
	bufPtr := h.regFile.ReadReg(insts.RegA0)
	size := h.regFile.ReadReg(insts.RegA0 + 1)

	if h.stdin == nil || size == 0 {
		h.regFile.WriteReg(insts.RegA0, 0)
		return
	}

	first, err := h.stdin.ReadByte()
	if err != nil {
		h.regFile.WriteReg(insts.RegA0, 0)
		return
	}
	h.memory.Write8(bufPtr, first)

	n := uint32(1)
	for n < size && h.stdin.Buffered() > 0 {
		b, err := h.stdin.ReadByte()
		if err != nil {
			break
		}
		h.memory.Write8(bufPtr+n, b)
		n++
	}
	h.regFile.WriteReg(insts.RegA0, n)
}
