// Package emu provides the functional RV32 model: word and memory
// semantics, the architectural register file, and an in-order
// reference interpreter.
package emu

// PageSize is the granularity of memory mapping.
const PageSize = 4096

// Memory is a sparse, byte-addressable 32-bit address space backed by
// 4 KiB pages. Unaligned access is permitted at no cost. Writes map
// pages on demand; reads of unmapped addresses return zero. Access
// validity is a separate concern: callers that must fault on wild
// addresses check Mapped first.
type Memory struct {
	pages map[uint32]*[PageSize]byte
}

// NewMemory creates an empty memory.
func NewMemory() *Memory {
	return &Memory{pages: make(map[uint32]*[PageSize]byte)}
}

// Map pre-allocates every page overlapping [addr, addr+size).
func (m *Memory) Map(addr, size uint32) {
	if size == 0 {
		return
	}
	first := addr / PageSize
	last := (addr + size - 1) / PageSize
	for p := first; ; p++ {
		if _, ok := m.pages[p]; !ok {
			m.pages[p] = new([PageSize]byte)
		}
		if p == last {
			break
		}
	}
}

// Mapped reports whether every byte of [addr, addr+size) lies on an
// allocated page. A false result is the out-of-range execution fault.
func (m *Memory) Mapped(addr uint32, size int) bool {
	if size <= 0 {
		return true
	}
	first := addr / PageSize
	last := (addr + uint32(size) - 1) / PageSize
	if last < first { // address space wrap
		return false
	}
	for p := first; ; p++ {
		if _, ok := m.pages[p]; !ok {
			return false
		}
		if p == last {
			break
		}
	}
	return true
}

// Read8 reads a byte. Unmapped addresses read as zero.
func (m *Memory) Read8(addr uint32) byte {
	page, ok := m.pages[addr/PageSize]
	if !ok {
		return 0
	}
	return page[addr%PageSize]
}

// Write8 writes a byte, mapping the page on demand.
func (m *Memory) Write8(addr uint32, value byte) {
	p := addr / PageSize
	page, ok := m.pages[p]
	if !ok {
		page = new([PageSize]byte)
		m.pages[p] = page
	}
	page[addr%PageSize] = value
}

// Read16 reads a little-endian halfword at any alignment.
func (m *Memory) Read16(addr uint32) uint16 {
	return uint16(m.Read8(addr)) | uint16(m.Read8(addr+1))<<8
}

// Write16 writes a little-endian halfword at any alignment.
func (m *Memory) Write16(addr uint32, value uint16) {
	m.Write8(addr, byte(value))
	m.Write8(addr+1, byte(value>>8))
}

// Read32 reads a little-endian word at any alignment.
func (m *Memory) Read32(addr uint32) uint32 {
	return uint32(m.Read8(addr)) |
		uint32(m.Read8(addr+1))<<8 |
		uint32(m.Read8(addr+2))<<16 |
		uint32(m.Read8(addr+3))<<24
}

// Write32 writes a little-endian word at any alignment.
func (m *Memory) Write32(addr uint32, value uint32) {
	m.Write8(addr, byte(value))
	m.Write8(addr+1, byte(value>>8))
	m.Write8(addr+2, byte(value>>16))
	m.Write8(addr+3, byte(value>>24))
}

// ReadData reads width bytes and extends to a word. Halfword and byte
// reads sign-extend unless unsigned is set.
func (m *Memory) ReadData(addr uint32, width uint8, unsigned bool) uint32 {
	switch width {
	case 1:
		b := m.Read8(addr)
		if unsigned {
			return uint32(b)
		}
		return uint32(int32(int8(b)))
	case 2:
		h := m.Read16(addr)
		if unsigned {
			return uint32(h)
		}
		return uint32(int32(int16(h)))
	default:
		return m.Read32(addr)
	}
}

// WriteData writes the low width bytes of value.
func (m *Memory) WriteData(addr uint32, width uint8, value uint32) {
	switch width {
	case 1:
		m.Write8(addr, byte(value))
	case 2:
		m.Write16(addr, uint16(value))
	default:
		m.Write32(addr, value)
	}
}
