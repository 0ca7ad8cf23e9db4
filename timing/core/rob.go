// Package core implements the TEEM speculative out-of-order engine.
package core

import (
	"github.com/teem-cpu/teem/emu"
	"github.com/teem-cpu/teem/insts"
	"github.com/teem-cpu/teem/timing/predictor"
)

// Checkpoint is the restoration record taken when a prediction is
// made: a copy of the rename table, the return-address stack, and the
// position of the speculation point. Restoring one is a cheap array
// copy; no persistent data structures are involved.
type Checkpoint struct {
	rename [insts.NumRegs]int
	ras    predictor.RASSnapshot
	seq    uint64
}

// ROBEntry is one in-flight micro-op.
type ROBEntry struct {
	// Seq is the dispatch age; retire order equals Seq order.
	Seq uint64
	// PC is the instruction's address.
	PC uint32
	// Inst is the decoded operation.
	Inst insts.Instruction

	// Source operands: a pending tag, or a captured value once the
	// producer committed (tag == noTag).
	Src1Tag int
	Src1Val uint32
	Src2Tag int
	Src2Val uint32

	// DestTag is the allocated physical tag, noTag for none.
	DestTag int
	// Result is the value to commit at retire.
	Result uint32

	// Executed is set once the micro-op has produced its result (or,
	// for stores, once address and value are both known).
	Executed bool

	// memPending marks a load whose access is in flight; the result
	// becomes visible at CompleteAt (the cache-latency side channel).
	memPending bool
	// CompleteAt is the cycle the pending load completes.
	CompleteAt uint64

	// Branch bookkeeping. Predictions are recorded at fetch and
	// verified at retire.
	Predicted    bool
	PredTaken    bool
	PredTarget   uint32
	TakenActual  bool
	TargetActual uint32
	// Checkpoint restores rename/RAS state on misprediction.
	Checkpoint *Checkpoint

	// LSQ links the entry to its load/store-queue slot.
	LSQ *lsqEntry

	// Fault travels with the entry and is raised only at retire.
	Fault *emu.Fault
}

// rob is the reorder buffer: a fixed-capacity FIFO of in-flight
// micro-ops. Entries enter at dispatch and leave, in order, at retire
// or flush.
type rob struct {
	entries []*ROBEntry
	cap     int
}

func newROB(depth int) *rob {
	return &rob{entries: make([]*ROBEntry, 0, depth), cap: depth}
}

func (r *rob) full() bool {
	return len(r.entries) >= r.cap
}

func (r *rob) empty() bool {
	return len(r.entries) == 0
}

func (r *rob) push(e *ROBEntry) {
	r.entries = append(r.entries, e)
}

func (r *rob) head() *ROBEntry {
	return r.entries[0]
}

func (r *rob) popHead() *ROBEntry {
	e := r.entries[0]
	r.entries = r.entries[1:]
	return e
}

// truncate removes every entry younger than boundSeq and returns the
// removed entries, oldest first.
func (r *rob) truncate(boundSeq uint64) []*ROBEntry {
	cut := len(r.entries)
	for cut > 0 && r.entries[cut-1].Seq > boundSeq {
		cut--
	}
	removed := r.entries[cut:]
	r.entries = r.entries[:cut]
	return removed
}
