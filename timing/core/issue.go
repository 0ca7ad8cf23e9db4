// Package core implements the TEEM speculative out-of-order engine.
package core

import (
	"github.com/teem-cpu/teem/config"
	"github.com/teem-cpu/teem/emu"
	"github.com/teem-cpu/teem/insts"
)

// writeback completes in-flight loads whose latency has elapsed,
// broadcasting their results through the tag pool.
func (e *Engine) writeback() {
	for _, entry := range e.rob.entries {
		if entry.memPending && e.cycle >= entry.CompleteAt {
			entry.memPending = false
			entry.Executed = true
			if entry.DestTag != noTag {
				e.pool.markReady(entry.DestTag, entry.Result)
			}
		}
	}
}

// issue scans the window oldest to youngest and executes every
// micro-op whose operands are ready. Multiple micro-ops may execute in
// one cycle; only ordering is modeled, not functional-unit contention.
// Branches execute here but resolve at retire. Loads and stores go
// through the LSQ. A memory-ordering violation flushes mid-scan.
func (e *Engine) issue() {
	allOlderDone := true

	for _, entry := range e.rob.entries {
		if !entry.Executed && !entry.memPending {
			if e.issueOne(entry, allOlderDone) {
				return // flushed: the window changed under the scan
			}
		}
		if !entry.Executed {
			allOlderDone = false
		}
	}
}

// issueOne attempts to execute a single entry. Returns true if the
// attempt triggered a flush.
func (e *Engine) issueOne(entry *ROBEntry, oldest bool) bool {
	inst := entry.Inst

	switch inst.Kind {
	case insts.KindALUReg:
		if e.srcReady(entry, 1) && e.srcReady(entry, 2) {
			entry.Result = emu.ALUOp(inst.Op, e.srcVal(entry, 1), e.srcVal(entry, 2))
			e.finishExec(entry)
		}

	case insts.KindALUImm:
		if e.srcReady(entry, 1) {
			entry.Result = emu.ALUOp(inst.Op, e.srcVal(entry, 1), uint32(inst.Imm))
			e.finishExec(entry)
		}

	case insts.KindUpperImm:
		entry.Result = uint32(inst.Imm) << 12
		if inst.Op == insts.OpAUIPC {
			entry.Result += entry.PC
		}
		e.finishExec(entry)

	case insts.KindBranch:
		if e.srcReady(entry, 1) && e.srcReady(entry, 2) {
			entry.TakenActual = emu.BranchTaken(inst.Op, e.srcVal(entry, 1), e.srcVal(entry, 2))
			entry.TargetActual = inst.Target
			entry.Executed = true
		}

	case insts.KindJAL:
		entry.Result = entry.PC + 4
		entry.TargetActual = inst.Target
		e.finishExec(entry)

	case insts.KindJALR:
		if e.srcReady(entry, 1) {
			entry.TargetActual = (e.srcVal(entry, 1) + uint32(inst.Imm)) &^ 1
			entry.Result = entry.PC + 4
			e.finishExec(entry)
		}

	case insts.KindLoad:
		return e.issueLoad(entry)

	case insts.KindStore:
		return e.issueStore(entry)

	case insts.KindSpecial:
		switch inst.Op {
		case insts.OpRDCYCLE:
			// The cycle counter reads serialized: only once every
			// older micro-op has finished. Reordering it would let
			// the probe reads bracket nothing.
			if oldest {
				entry.Result = uint32(e.cycle)
				e.finishExec(entry)
			}
		case insts.OpCBOFLUSH:
			if e.srcReady(entry, 1) {
				// Cache invalidation executes transiently and is not
				// rolled back, like every cache effect.
				e.dcache.Invalidate(e.srcVal(entry, 1) + uint32(inst.Imm))
				entry.Executed = true
			}
		case insts.OpFLUSHALL:
			e.dcache.InvalidateAll()
			entry.Executed = true
		default:
			// ecall, ebreak, fence.i act at retire.
			entry.Executed = true
		}
	}

	return false
}

// finishExec publishes a same-cycle execution result.
func (e *Engine) finishExec(entry *ROBEntry) {
	entry.Executed = true
	if entry.DestTag != noTag {
		e.pool.markReady(entry.DestTag, entry.Result)
	}
}

// issueLoad resolves a load's address and walks the LSQ ordering
// rules. Returns true if an alias flush fired (never the case here;
// loads only consume).
func (e *Engine) issueLoad(entry *ROBEntry) bool {
	if !e.srcReady(entry, 1) {
		return false
	}

	ls := entry.LSQ
	if !ls.addrReady {
		ls.addr = e.srcVal(entry, 1) + uint32(entry.Inst.Imm)
		ls.addrReady = true
	}

	// Faulting loads complete with the configured sentinel so that
	// dependents keep running transiently; the fault raises at retire.
	if !e.memory.Mapped(ls.addr, int(ls.size)) {
		entry.Fault = &emu.Fault{Kind: emu.FaultMemAccess, Addr: ls.addr, PC: entry.PC}
		entry.Executed = true
		ls.executed = true
		if e.cfg.SpecFaultPolicy == config.SpecFaultSentinel && entry.DestTag != noTag {
			entry.Result = e.cfg.SpecFaultValue
			e.pool.markReady(entry.DestTag, entry.Result)
		}
		return false
	}

	idx := e.lsq.indexOf(entry.Seq)
	path, src := e.lsq.searchOlder(idx)

	switch path {
	case loadStall:
		return false

	case loadForward:
		entry.Result = extend(src.value, entry.Inst.Width, entry.Inst.Unsigned)
		entry.memPending = true
		entry.CompleteAt = e.cycle + e.cfg.Cache.HitLatency
		ls.executed = true
		ls.forwardedFrom = src.seq

	case loadMemory, loadBypass:
		entry.Result = e.memory.ReadData(ls.addr, entry.Inst.Width, entry.Inst.Unsigned)
		access := e.dcache.ReadRange(ls.addr, int(ls.size))
		entry.memPending = true
		entry.CompleteAt = e.cycle + access.Latency
		ls.executed = true
		ls.bypassedUnknown = path == loadBypass
	}

	return false
}

// issueStore captures a store's address and value as their producers
// complete. Address resolution re-checks younger loads that bypassed
// this store while its address was unknown; a conflict is a
// memory-ordering misspeculation and flushes from the load.
func (e *Engine) issueStore(entry *ROBEntry) bool {
	ls := entry.LSQ

	if !ls.addrReady && e.srcReady(entry, 1) {
		ls.addr = e.srcVal(entry, 1) + uint32(entry.Inst.Imm)
		ls.addrReady = true

		if !e.memory.Mapped(ls.addr, int(ls.size)) {
			entry.Fault = &emu.Fault{Kind: emu.FaultMemAccess, Addr: ls.addr, PC: entry.PC}
		}

		if victim := e.aliasedBypass(ls); victim != nil {
			e.stats.MemOrderViolations++
			e.flushAfter(victim.seq-1, victim.rob.PC, nil, "memory-order violation")
			return true
		}
	}

	if !ls.valueReady && e.srcReady(entry, 2) {
		ls.value = e.srcVal(entry, 2)
		ls.valueReady = true
	}

	if ls.addrReady && ls.valueReady {
		entry.Executed = true
	}
	return false
}

// aliasedBypass finds the oldest younger load that speculatively went
// to memory past this store and overlaps its freshly resolved address.
func (e *Engine) aliasedBypass(store *lsqEntry) *lsqEntry {
	for _, cand := range e.lsq.entries {
		if cand.seq <= store.seq || cand.isStore {
			continue
		}
		if cand.executed && cand.bypassedUnknown &&
			overlaps(store.addr, store.size, cand.addr, cand.size) {
			return cand
		}
	}
	return nil
}

// extend truncates a forwarded store value to the load width and
// applies the load's extension.
func extend(v uint32, width uint8, unsigned bool) uint32 {
	switch width {
	case 1:
		if unsigned {
			return v & 0xFF
		}
		return uint32(int32(int8(v)))
	case 2:
		if unsigned {
			return v & 0xFFFF
		}
		return uint32(int32(int16(v)))
	default:
		return v
	}
}
