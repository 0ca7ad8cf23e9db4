// Package core implements the TEEM speculative out-of-order engine.
package core

import (
	"github.com/teem-cpu/teem/insts"
	"github.com/teem-cpu/teem/timing/cache"
	"github.com/teem-cpu/teem/timing/predictor"
)

// ROBView is a read-only view of one in-flight micro-op.
type ROBView struct {
	Seq      uint64
	PC       uint32
	Disasm   string
	Executed bool
	// Speculative marks entries in the shadow of an unresolved
	// prediction; they may be flushed.
	Speculative bool
	Fault       string
}

// LSQView is a read-only view of one load-store-queue entry.
type LSQView struct {
	Seq           uint64
	Store         bool
	AddrKnown     bool
	Addr          uint32
	Size          uint8
	ValueKnown    bool
	Value         uint32
	ForwardedFrom uint64
	Bypassed      bool
}

// Snapshot is the engine's per-cycle observability record: every
// structure the UI can show, copied so the caller cannot perturb the
// machine.
type Snapshot struct {
	Cycle   uint64
	FetchPC uint32

	ROB []ROBView
	LSQ []LSQView

	// Rename holds the in-flight producer tag per architectural
	// register, -1 where the committed value is current.
	Rename [insts.NumRegs]int

	CacheLines []cache.Line
	CacheStats cache.Statistics

	Predictor predictor.Stats
	RAS       []uint32

	LastFlush   FlushInfo
	LastSyscall string
	Stats       Stats

	Halted   bool
	ExitCode int32
	Paused   bool
}

// Snapshot captures the current machine state.
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Cycle:       e.cycle,
		FetchPC:     e.fetchPC,
		Rename:      e.rename.tag,
		CacheLines:  e.dcache.Lines(),
		CacheStats:  e.dcache.Stats(),
		Predictor:   e.bp.Stats(),
		RAS:         e.ras.Entries(),
		LastFlush:   e.lastFlush,
		LastSyscall: e.lastSyscall,
		Stats:       e.stats,
		Halted:      e.halted,
		ExitCode:    e.exitCode,
		Paused:      e.paused,
	}

	speculative := false
	for _, entry := range e.rob.entries {
		v := ROBView{
			Seq:         entry.Seq,
			PC:          entry.PC,
			Disasm:      entry.Inst.String(),
			Executed:    entry.Executed,
			Speculative: speculative,
		}
		if entry.Fault != nil {
			v.Fault = entry.Fault.Error()
		}
		s.ROB = append(s.ROB, v)
		if entry.Checkpoint != nil {
			speculative = true
		}
	}

	for _, ls := range e.lsq.entries {
		s.LSQ = append(s.LSQ, LSQView{
			Seq:           ls.seq,
			Store:         ls.isStore,
			AddrKnown:     ls.addrReady,
			Addr:          ls.addr,
			Size:          ls.size,
			ValueKnown:    ls.valueReady,
			Value:         ls.value,
			ForwardedFrom: ls.forwardedFrom,
			Bypassed:      ls.bypassedUnknown,
		})
	}

	return s
}
