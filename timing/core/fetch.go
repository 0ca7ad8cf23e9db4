// Package core implements the TEEM speculative out-of-order engine.
package core

import (
	"github.com/teem-cpu/teem/emu"
	"github.com/teem-cpu/teem/insts"
)

// dispatch renames the buffered instruction and pushes it into the
// window. Back-pressure is a stall: a full ROB, empty tag pool, or
// full LSQ leaves the buffer occupied, which in turn stalls fetch.
func (e *Engine) dispatch() {
	f := e.fetchBuf
	if f == nil {
		return
	}
	if e.rob.full() {
		return
	}
	if f.inst.WritesReg() && e.pool.available() == 0 {
		return
	}
	if (f.inst.IsLoad() || f.inst.IsStore()) && e.lsq.full() {
		return
	}

	e.seqCounter++
	entry := &ROBEntry{
		Seq:        e.seqCounter,
		PC:         f.pc,
		Inst:       f.inst,
		Src1Tag:    noTag,
		Src2Tag:    noTag,
		DestTag:    noTag,
		Predicted:  f.predicted,
		PredTaken:  f.predTaken,
		PredTarget: f.predTarget,
		Fault:      f.fault,
	}
	if entry.Fault != nil {
		entry.Executed = true
	}

	// Rename: read each source as an in-flight tag or a committed
	// value. x0 never carries a tag and always reads zero.
	rs1, rs2 := f.inst.ReadsRegs()
	entry.Src1Tag, entry.Src1Val = e.readSource(rs1)
	entry.Src2Tag, entry.Src2Val = e.readSource(rs2)

	if f.inst.WritesReg() {
		tag, _ := e.pool.alloc()
		entry.DestTag = tag
		e.rename.tag[f.inst.Rd] = tag
	}

	// A predicted control transfer gets a checkpoint: rename table
	// plus RAS, snapshotted after the instruction's own RAS effect.
	if f.predicted {
		entry.Checkpoint = &Checkpoint{
			rename: e.rename.snapshot(),
			ras:    e.ras.Snapshot(),
			seq:    entry.Seq,
		}
	}

	if f.inst.IsLoad() || f.inst.IsStore() {
		ls := &lsqEntry{
			seq:     entry.Seq,
			isStore: f.inst.IsStore(),
			rob:     entry,
			size:    f.inst.Width,
		}
		entry.LSQ = ls
		e.lsq.push(ls)
	}

	e.rob.push(entry)
	e.fetchBuf = nil
}

// readSource resolves a source register through the rename table.
func (e *Engine) readSource(reg uint8) (tag int, val uint32) {
	if reg == insts.RegZero {
		return noTag, 0
	}
	if t := e.rename.tag[reg]; t != noTag {
		return t, 0
	}
	return noTag, e.arch.ReadReg(reg)
}

// fetch reads the instruction at the fetch PC, consults the
// predictors for the next PC, and fills the dispatch buffer. Fetch
// stalls while the buffer is occupied, behind a fence.i, or after a
// bad fetch until a flush redirects it.
func (e *Engine) fetch() {
	if e.fetchBuf != nil || e.fetchStall || e.drainFence {
		return
	}

	pc := e.fetchPC
	inst, ok := e.text[pc]
	if !ok {
		// Fetch off the text section: carry the fault along and stop
		// fetching until retire raises it or a flush redirects.
		e.fetchBuf = &fetchedOp{
			pc:    pc,
			inst:  insts.Instruction{Op: insts.OpUnknown},
			fault: &emu.Fault{Kind: emu.FaultBadFetch, Addr: pc, PC: pc},
		}
		e.fetchStall = true
		return
	}

	f := &fetchedOp{pc: pc, inst: inst}
	next := pc + 4

	switch inst.Kind {
	case insts.KindBranch:
		f.predicted = true
		f.predTaken = e.bp.PredictDirection(pc)
		f.predTarget = inst.Target
		if f.predTaken {
			next = inst.Target
		}

	case insts.KindJAL:
		next = inst.Target
		if inst.IsCall() {
			e.ras.Push(pc + 4)
		}

	case insts.KindJALR:
		f.predicted = true
		if inst.IsRet() {
			if t, ok := e.ras.Pop(); ok {
				next = t
			} else if t, ok := e.bp.PredictTarget(pc); ok {
				next = t
			}
		} else {
			if t, ok := e.bp.PredictTarget(pc); ok {
				next = t
			}
			if inst.IsCall() {
				e.ras.Push(pc + 4)
			}
		}
		f.predTarget = next

	case insts.KindSpecial:
		if inst.Op == insts.OpFENCEI {
			// Stop fetching until the fence drains at retire.
			e.drainFence = true
		}
	}

	e.fetchBuf = f
	e.fetchPC = next
}
