// Package core implements the TEEM speculative out-of-order engine:
// rename, reorder buffer, load-store queue, predictors, retire, and
// rollback.
//
// The engine is single-threaded and cooperative. Each StepCycle runs
// the fixed phase order retire -> writeback -> issue -> dispatch ->
// fetch over exclusively-owned state; the REPL drives it between
// cycles. Architectural state (register file and memory) reflects only
// retired micro-ops; the data cache deliberately does not - fills made
// by transient loads survive every flush.
package core

import (
	"fmt"
	"io"
	"os"

	"github.com/teem-cpu/teem/config"
	"github.com/teem-cpu/teem/emu"
	"github.com/teem-cpu/teem/insts"
	"github.com/teem-cpu/teem/loader"
	"github.com/teem-cpu/teem/timing/cache"
	"github.com/teem-cpu/teem/timing/predictor"
)

// deadlockLimit is the number of consecutive cycles without a retire,
// with work in flight, after which the engine declares itself wedged.
// Resource deadlock is impossible by construction; this is the abort
// diagnostic for the impossible case.
const deadlockLimit = 100000

// Stats holds engine performance counters.
type Stats struct {
	// Cycles is the number of simulated cycles.
	Cycles uint64
	// Retired is the number of micro-ops retired.
	Retired uint64
	// Flushes is the total number of pipeline flushes.
	Flushes uint64
	// BranchMispredicts counts flushes caused by branch resolution.
	BranchMispredicts uint64
	// MemOrderViolations counts flushes caused by load-store aliasing.
	MemOrderViolations uint64
	// Syscalls is the number of ecalls performed.
	Syscalls uint64
}

// FlushInfo describes the most recent flush, for the UI.
type FlushInfo struct {
	Cycle  uint64
	Reason string
	PC     uint32
}

// fetchedOp is the single-entry buffer between fetch and dispatch.
type fetchedOp struct {
	pc         uint32
	inst       insts.Instruction
	predicted  bool
	predTaken  bool
	predTarget uint32
	fault      *emu.Fault
}

// Engine is the speculative out-of-order core. All mutable state is
// confined here and passed explicitly to the subsystems; syscalls
// receive the engine's I/O handles.
type Engine struct {
	cfg  *config.Config
	text map[uint32]insts.Instruction

	arch   *emu.RegFile
	memory *emu.Memory
	dcache *cache.Cache
	bp     *predictor.BranchPredictor
	ras    *predictor.ReturnAddressStack

	pool   *tagPool
	rename renameTable
	rob    *rob
	lsq    *lsq

	syscallHandler emu.SyscallHandler
	stdin          io.Reader
	stdout         io.Writer

	fetchPC    uint32
	fetchBuf   *fetchedOp
	fetchStall bool
	drainFence bool

	cycle       uint64
	seqCounter  uint64
	idleCycles  uint64
	halted      bool
	exitCode    int32
	paused      bool
	pauseReason string
	faultErr    error

	breakpoints  map[uint32]bool
	lastBreakSeq uint64

	stats       Stats
	lastFlush   FlushInfo
	lastSyscall string
}

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithStdout sets the console output writer.
func WithStdout(w io.Writer) Option {
	return func(e *Engine) {
		e.stdout = w
	}
}

// WithStdin sets the console input reader.
func WithStdin(r io.Reader) Option {
	return func(e *Engine) {
		e.stdin = r
	}
}

// WithSyscallHandler sets a custom syscall handler.
func WithSyscallHandler(h emu.SyscallHandler) Option {
	return func(e *Engine) {
		e.syscallHandler = h
	}
}

// New creates an engine over a loaded program. Resources are pre-sized
// from the configuration.
func New(prog *loader.Program, cfg *config.Config, opts ...Option) *Engine {
	arch := &emu.RegFile{PC: prog.Entry}
	arch.WriteReg(insts.RegSP, prog.InitialSP)

	e := &Engine{
		cfg:         cfg,
		text:        prog.Text,
		arch:        arch,
		memory:      prog.Memory,
		dcache:      cache.New(cfg.Cache),
		bp:          predictor.New(cfg.Predictor),
		ras:         predictor.NewRAS(cfg.RASDepth),
		pool:        newTagPool(cfg.TagPoolSize),
		rename:      newRenameTable(),
		rob:         newROB(cfg.ROBDepth),
		lsq:         newLSQ(cfg.LSQDepth),
		fetchPC:     prog.Entry,
		breakpoints: make(map[uint32]bool),
		stdout:      os.Stdout,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.syscallHandler == nil {
		e.syscallHandler = emu.NewConsoleHandler(arch, prog.Memory, e.stdin, e.stdout)
	}

	return e
}

// StepCycle advances the machine by one cycle in the fixed phase
// order. It is the only mutation entry point.
func (e *Engine) StepCycle() {
	if e.halted {
		return
	}
	e.cycle++
	e.stats.Cycles = e.cycle

	before := e.stats.Retired
	e.retire()
	if !e.halted {
		e.writeback()
		e.issue()
		e.dispatch()
		e.fetch()
	}

	if e.stats.Retired == before && !e.rob.empty() {
		e.idleCycles++
		if e.idleCycles > deadlockLimit {
			e.halted = true
			e.exitCode = -1
			e.faultErr = fmt.Errorf(
				"engine wedged: no retire for %d cycles (rob head pc=0x%x %s)",
				deadlockLimit, e.rob.head().PC, e.rob.head().Inst)
		}
	} else {
		e.idleCycles = 0
	}
}

// Run steps until the guest halts, pauses, or maxCycles elapse
// (0 = unbounded). Returns true while the guest can still make
// progress.
func (e *Engine) Run(maxCycles uint64) bool {
	for n := uint64(0); !e.halted && !e.paused; n++ {
		if maxCycles != 0 && n >= maxCycles {
			break
		}
		e.StepCycle()
	}
	return !e.halted
}

// Halted reports whether the guest exited or faulted.
func (e *Engine) Halted() bool {
	return e.halted
}

// ExitCode returns the guest exit status once halted.
func (e *Engine) ExitCode() int32 {
	return e.exitCode
}

// FaultError returns the fault that halted the engine, if any.
func (e *Engine) FaultError() error {
	return e.faultErr
}

// Paused reports whether the engine stopped at an ebreak or
// breakpoint.
func (e *Engine) Paused() bool {
	return e.paused
}

// PauseReason describes why the engine paused.
func (e *Engine) PauseReason() string {
	return e.pauseReason
}

// Resume clears the paused state.
func (e *Engine) Resume() {
	e.paused = false
	e.pauseReason = ""
}

// Cycle returns the simulated cycle count.
func (e *Engine) Cycle() uint64 {
	return e.cycle
}

// Stats returns the engine performance counters.
func (e *Engine) Stats() Stats {
	return e.stats
}

// RegFile returns the architectural register file.
func (e *Engine) RegFile() *emu.RegFile {
	return e.arch
}

// Memory returns the guest memory.
func (e *Engine) Memory() *emu.Memory {
	return e.memory
}

// Cache returns the data cache.
func (e *Engine) Cache() *cache.Cache {
	return e.dcache
}

// AddBreakpoint pauses the engine just before the instruction at addr
// retires.
func (e *Engine) AddBreakpoint(addr uint32) {
	e.breakpoints[addr] = true
}

// srcReady reports whether source n of the entry has its value.
func (e *Engine) srcReady(entry *ROBEntry, n int) bool {
	tag := entry.Src1Tag
	if n == 2 {
		tag = entry.Src2Tag
	}
	return tag == noTag || e.pool.ready[tag]
}

// srcVal reads source n of the entry. Only valid once srcReady.
func (e *Engine) srcVal(entry *ROBEntry, n int) uint32 {
	tag, val := entry.Src1Tag, entry.Src1Val
	if n == 2 {
		tag, val = entry.Src2Tag, entry.Src2Val
	}
	if tag == noTag {
		return val
	}
	return e.pool.value[tag]
}

// releaseTag folds a committed value into every consumer still
// polling the tag, patches live checkpoints, and frees the tag. The
// walk over the fixed-size window replaces per-tag dependent lists.
func (e *Engine) releaseTag(t int, v uint32) {
	for _, entry := range e.rob.entries {
		if entry.Src1Tag == t {
			entry.Src1Tag = noTag
			entry.Src1Val = v
		}
		if entry.Src2Tag == t {
			entry.Src2Tag = noTag
			entry.Src2Val = v
		}
		if entry.Checkpoint != nil {
			for r := range entry.Checkpoint.rename {
				if entry.Checkpoint.rename[r] == t {
					entry.Checkpoint.rename[r] = noTag
				}
			}
		}
	}
	e.pool.release(t)
}
