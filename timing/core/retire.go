// Package core implements the TEEM speculative out-of-order engine.
package core

import (
	"fmt"

	"github.com/teem-cpu/teem/insts"
)

// retire commits up to RetireWidth executed micro-ops from the ROB
// head, in program order. Only this phase touches architectural state.
func (e *Engine) retire() {
	for n := 0; n < e.cfg.RetireWidth && !e.rob.empty(); n++ {
		entry := e.rob.head()

		if e.breakpoints[entry.PC] && e.lastBreakSeq != entry.Seq {
			e.lastBreakSeq = entry.Seq
			e.paused = true
			e.pauseReason = fmt.Sprintf("breakpoint at 0x%x", entry.PC)
			return
		}

		if !entry.Executed {
			return
		}

		if entry.Fault != nil {
			// A fault that reaches retire is architectural: flush
			// everything and halt with the diagnostic.
			e.rob.popHead()
			e.flushAfter(entry.Seq-1, entry.PC, nil, "fault")
			e.halted = true
			e.exitCode = -1
			e.faultErr = entry.Fault
			return
		}

		switch {
		case entry.Inst.IsBranch():
			e.rob.popHead()
			e.lsqRelease(entry)
			e.stats.Retired++
			if e.retireBranch(entry) {
				return // mispredicted: pipeline restarted
			}

		case entry.Inst.Op == insts.OpJALR:
			e.commitResult(entry)
			e.rob.popHead()
			e.stats.Retired++
			if e.retireJALR(entry) {
				return
			}

		case entry.Inst.IsStore():
			ls := entry.LSQ
			e.memory.WriteData(ls.addr, ls.size, ls.value)
			e.dcache.Write(ls.addr)
			e.rob.popHead()
			e.lsqRelease(entry)
			e.stats.Retired++

		case entry.Inst.Op == insts.OpECALL:
			e.rob.popHead()
			e.stats.Retired++
			e.retireEcall(entry)
			return

		case entry.Inst.Op == insts.OpEBREAK:
			e.rob.popHead()
			e.stats.Retired++
			e.flushAfter(entry.Seq, entry.PC+4, nil, "ebreak")
			e.paused = true
			e.pauseReason = fmt.Sprintf("ebreak at 0x%x", entry.PC)
			e.arch.PC = entry.PC + 4
			return

		case entry.Inst.Op == insts.OpFENCEI:
			// Fetch stalled behind the fence at dispatch; by the time
			// the fence reaches the head the window has drained.
			e.rob.popHead()
			e.stats.Retired++
			e.drainFence = false

		default:
			e.commitResult(entry)
			e.rob.popHead()
			e.lsqRelease(entry)
			e.stats.Retired++
		}

		if !e.halted && !e.paused {
			e.arch.PC = e.nextRetirePC(entry)
		}
	}
}

// nextRetirePC computes the architectural PC after a retired entry.
func (e *Engine) nextRetirePC(entry *ROBEntry) uint32 {
	switch {
	case entry.Inst.IsBranch():
		if entry.TakenActual {
			return entry.TargetActual
		}
		return entry.PC + 4
	case entry.Inst.Op == insts.OpJAL:
		return entry.Inst.Target
	case entry.Inst.Op == insts.OpJALR:
		return entry.TargetActual
	default:
		return entry.PC + 4
	}
}

// commitResult copies an entry's result into the architectural
// register file, clears its rename mapping, and recycles its tag.
func (e *Engine) commitResult(entry *ROBEntry) {
	if entry.DestTag == noTag {
		return
	}
	rd := entry.Inst.Rd
	e.arch.WriteReg(rd, entry.Result)
	if e.rename.tag[rd] == entry.DestTag {
		e.rename.tag[rd] = noTag
	}
	e.releaseTag(entry.DestTag, entry.Result)
}

// lsqRelease drops the entry's LSQ slot, if it has one.
func (e *Engine) lsqRelease(entry *ROBEntry) {
	if entry.LSQ != nil {
		e.lsq.popSeq(entry.Seq)
	}
}

// retireBranch verifies a conditional branch against its prediction.
// Returns true if the pipeline was flushed.
func (e *Engine) retireBranch(entry *ROBEntry) bool {
	e.bp.UpdateDirection(entry.PC, entry.TakenActual, entry.PredTaken)

	if entry.TakenActual == entry.PredTaken {
		return false
	}

	correct := entry.PC + 4
	if entry.TakenActual {
		correct = entry.TargetActual
	}
	e.stats.BranchMispredicts++
	e.flushAfter(entry.Seq, correct, entry.Checkpoint, "branch mispredict")
	e.arch.PC = correct
	return true
}

// retireJALR verifies an indirect jump's predicted target and trains
// the BTB. Returns true if the pipeline was flushed.
func (e *Engine) retireJALR(entry *ROBEntry) bool {
	e.bp.UpdateTarget(entry.PC, entry.TargetActual)

	if entry.TargetActual == entry.PredTarget {
		return false
	}

	e.stats.BranchMispredicts++
	e.flushAfter(entry.Seq, entry.TargetActual, entry.Checkpoint, "indirect target mispredict")
	e.arch.PC = entry.TargetActual
	return true
}

// retireEcall flushes the speculative shadow of the syscall, performs
// it synchronously, and restarts fetch after it.
func (e *Engine) retireEcall(entry *ROBEntry) {
	e.flushAfter(entry.Seq, entry.PC+4, nil, "ecall")
	e.arch.PC = entry.PC + 4

	result := e.syscallHandler.Handle()
	e.stats.Syscalls++
	e.lastSyscall = fmt.Sprintf("a7=%d at 0x%x", int32(e.arch.ReadReg(insts.RegA7)), entry.PC)

	if result.Exited {
		e.halted = true
		e.exitCode = result.ExitCode
	}
}

// flushAfter removes every micro-op younger than boundSeq, restores
// rename (and, for branch flushes, RAS) state, truncates the LSQ, and
// redirects fetch. Cache and memory are deliberately untouched: stores
// never got that far, and transient cache fills are kept.
func (e *Engine) flushAfter(boundSeq uint64, redirect uint32, cp *Checkpoint, reason string) {
	removed := e.rob.truncate(boundSeq)
	for _, entry := range removed {
		if entry.DestTag != noTag {
			e.pool.release(entry.DestTag)
		}
	}
	e.lsq.truncate(boundSeq)

	if cp != nil {
		e.rename.restore(cp.rename)
		e.ras.Restore(cp.ras)
	} else {
		e.rebuildRename()
	}

	e.fetchBuf = nil
	e.fetchStall = false
	e.fetchPC = redirect

	e.drainFence = false
	for _, entry := range e.rob.entries {
		if entry.Inst.Op == insts.OpFENCEI {
			e.drainFence = true
		}
	}

	e.stats.Flushes++
	e.lastFlush = FlushInfo{Cycle: e.cycle, Reason: reason, PC: redirect}
}

// rebuildRename reconstructs the rename table from the surviving
// window. Used at flush points that carry no branch checkpoint
// (memory-order violations, ecall, ebreak, faults).
func (e *Engine) rebuildRename() {
	e.rename = newRenameTable()
	for _, entry := range e.rob.entries {
		if entry.DestTag != noTag {
			e.rename.tag[entry.Inst.Rd] = entry.DestTag
		}
	}
}
