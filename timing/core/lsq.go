// Package core implements the TEEM speculative out-of-order engine.
package core

// lsqEntry is one memory micro-op in program order. Store address and
// value become ready independently; loads record how they were
// satisfied so later store-address resolution can re-check aliasing.
type lsqEntry struct {
	seq     uint64
	isStore bool
	rob     *ROBEntry

	addr      uint32
	addrReady bool
	size      uint8

	// Store data.
	value      uint32
	valueReady bool

	// Load state.
	executed bool
	// bypassedUnknown marks a load that went to memory while an older
	// store's address was still unknown; it is the target of alias
	// re-checks.
	bypassedUnknown bool
	// forwardedFrom is the seq of the store that forwarded its value,
	// 0 if the load read memory.
	forwardedFrom uint64
}

// overlaps reports whether two byte ranges intersect.
func overlaps(a1 uint32, s1 uint8, a2 uint32, s2 uint8) bool {
	return a1 < a2+uint32(s2) && a2 < a1+uint32(s1)
}

// lsq is the load-store queue, ordered by program order.
type lsq struct {
	entries []*lsqEntry
	cap     int
}

func newLSQ(depth int) *lsq {
	return &lsq{entries: make([]*lsqEntry, 0, depth), cap: depth}
}

func (q *lsq) full() bool {
	return len(q.entries) >= q.cap
}

func (q *lsq) push(e *lsqEntry) {
	q.entries = append(q.entries, e)
}

// popSeq removes the front entry, which must belong to the retiring
// micro-op.
func (q *lsq) popSeq(seq uint64) {
	if len(q.entries) > 0 && q.entries[0].seq == seq {
		q.entries = q.entries[1:]
	}
}

// truncate drops every entry younger than boundSeq.
func (q *lsq) truncate(boundSeq uint64) {
	cut := len(q.entries)
	for cut > 0 && q.entries[cut-1].seq > boundSeq {
		cut--
	}
	q.entries = q.entries[:cut]
}

// indexOf locates an entry by seq, -1 if absent.
func (q *lsq) indexOf(seq uint64) int {
	for i, e := range q.entries {
		if e.seq == seq {
			return i
		}
	}
	return -1
}

// disambiguation outcomes for a load with a known address.
type loadPath uint8

const (
	loadStall   loadPath = iota // an older store blocks the load
	loadForward                 // satisfied from an older store's value
	loadMemory                  // clean memory/cache access
	loadBypass                  // memory access past an unknown store address
)

// searchOlder classifies how the load at index idx may proceed, per
// the ordering rules: the nearest older overlapping store decides, and
// forwarding additionally requires that no store with an unknown
// address lies between that store and the load.
func (q *lsq) searchOlder(idx int) (path loadPath, src *lsqEntry) {
	load := q.entries[idx]
	sawUnknown := false

	for i := idx - 1; i >= 0; i-- {
		s := q.entries[i]
		if !s.isStore {
			continue
		}
		if !s.addrReady {
			sawUnknown = true
			continue
		}
		if !overlaps(s.addr, s.size, load.addr, load.size) {
			continue
		}
		// Nearest older overlapping store.
		if sawUnknown {
			// A closer store might alias too; wait for it.
			return loadStall, nil
		}
		if !s.valueReady {
			return loadStall, nil
		}
		if s.addr == load.addr && s.size >= load.size {
			return loadForward, s
		}
		// Partial overlap: wait for the store to retire to memory.
		return loadStall, nil
	}

	if sawUnknown {
		return loadBypass, nil
	}
	return loadMemory, nil
}
