// Package core implements the TEEM speculative out-of-order engine.
package core

import "github.com/teem-cpu/teem/insts"

// noTag marks an absent tag: the source value is already captured or
// the entry has no destination.
const noTag = -1

// tagPool is the physical register file: a pre-sized pool of tags,
// each carrying a speculative value and a ready flag. Tags are small
// integers into fixed arrays; no dependent lists are kept. Consumers
// poll readiness during the issue scan.
type tagPool struct {
	value []uint32
	ready []bool
	free  []int
}

func newTagPool(size int) *tagPool {
	p := &tagPool{
		value: make([]uint32, size),
		ready: make([]bool, size),
		free:  make([]int, size),
	}
	for i := range p.free {
		p.free[i] = size - 1 - i
	}
	return p
}

// alloc takes a fresh, not-ready tag. Returns false when exhausted,
// which stalls dispatch.
func (p *tagPool) alloc() (int, bool) {
	if len(p.free) == 0 {
		return noTag, false
	}
	t := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.ready[t] = false
	return t, true
}

// release returns a tag to the pool.
func (p *tagPool) release(t int) {
	p.ready[t] = false
	p.free = append(p.free, t)
}

// markReady publishes a result, waking every entry polling the tag.
func (p *tagPool) markReady(t int, v uint32) {
	p.value[t] = v
	p.ready[t] = true
}

// available returns the number of free tags.
func (p *tagPool) available() int {
	return len(p.free)
}

// renameTable maps each architectural register to the tag of its most
// recent in-flight producer, or noTag when the committed value in the
// architectural register file is current. x0 is never renamed.
type renameTable struct {
	tag [insts.NumRegs]int
}

func newRenameTable() renameTable {
	var rt renameTable
	for i := range rt.tag {
		rt.tag[i] = noTag
	}
	return rt
}

// snapshot copies the table for a branch checkpoint.
func (rt *renameTable) snapshot() [insts.NumRegs]int {
	return rt.tag
}

// restore rewinds the table to a checkpointed copy.
func (rt *renameTable) restore(s [insts.NumRegs]int) {
	rt.tag = s
}

// clearTag removes any mapping to tag t (producer retired).
func (rt *renameTable) clearTag(t int) {
	for i := range rt.tag {
		if rt.tag[i] == t {
			rt.tag[i] = noTag
		}
	}
}
