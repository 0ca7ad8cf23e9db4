// Package cache models the TEEM data cache using Akita cache
// components for tag/state tracking and LRU victim selection.
//
// The cache is a timing structure, not a data store: stores write
// through to memory at retire and lines carry no dirty state, so the
// backing memory always holds the truth and the cache tracks only
// which lines are resident. Residency is the observable side channel:
// fills performed by speculative loads are never undone by a flush.
package cache

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/teem-cpu/teem/config"
)

// AccessResult reports one cache access.
type AccessResult struct {
	// Hit indicates the line was already resident.
	Hit bool
	// Latency is the load-to-use latency of this access in cycles.
	Latency uint64
}

// Statistics holds cache access counts.
type Statistics struct {
	Reads         uint64
	Writes        uint64
	Hits          uint64
	Misses        uint64
	Evictions     uint64
	Invalidations uint64
}

// Line describes one resident cache line for observability snapshots.
type Line struct {
	Set   int
	Way   int
	Tag   uint32
	Valid bool
}

// Cache is a set-associative, LRU-replaced data cache.
type Cache struct {
	cfg       config.CacheConfig
	directory *akitacache.DirectoryImpl
	stats     Statistics
}

// New creates a cache from the given geometry.
func New(cfg config.CacheConfig) *Cache {
	return &Cache{
		cfg: cfg,
		directory: akitacache.NewDirectory(
			cfg.Sets,
			cfg.Ways,
			cfg.LineSize,
			akitacache.NewLRUVictimFinder(),
		),
	}
}

// Config returns the cache geometry.
func (c *Cache) Config() config.CacheConfig {
	return c.cfg
}

// Stats returns access statistics.
func (c *Cache) Stats() Statistics {
	return c.stats
}

// ResetStats clears access statistics.
func (c *Cache) ResetStats() {
	c.stats = Statistics{}
}

// lineAddr aligns addr down to its cache line.
func (c *Cache) lineAddr(addr uint32) uint64 {
	return uint64(addr) / uint64(c.cfg.LineSize) * uint64(c.cfg.LineSize)
}

// Read performs a load access: the line is installed if missing and
// its LRU position refreshed. Returns hit/miss and the access latency.
func (c *Cache) Read(addr uint32) AccessResult {
	c.stats.Reads++
	return c.access(addr)
}

// ReadRange performs a load access covering [addr, addr+size), which
// may straddle a line boundary. The latency is the worst line's.
func (c *Cache) ReadRange(addr uint32, size int) AccessResult {
	result := c.Read(addr)
	if size > 0 {
		last := addr + uint32(size) - 1
		if c.lineAddr(last) != c.lineAddr(addr) {
			second := c.Read(last)
			if second.Latency > result.Latency {
				result.Latency = second.Latency
			}
			result.Hit = result.Hit && second.Hit
		}
	}
	return result
}

// Write performs a store access at retire. Stores write through to
// memory; the cache installs the line and refreshes LRU.
func (c *Cache) Write(addr uint32) AccessResult {
	c.stats.Writes++
	return c.access(addr)
}

// access looks up the line, installing it on a miss.
func (c *Cache) access(addr uint32) AccessResult {
	lineAddr := c.lineAddr(addr)

	block := c.directory.Lookup(0, lineAddr)
	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)
		return AccessResult{Hit: true, Latency: c.cfg.HitLatency}
	}

	c.stats.Misses++

	victim := c.directory.FindVictim(lineAddr)
	if victim == nil {
		return AccessResult{Hit: false, Latency: c.cfg.MissLatency}
	}
	if victim.IsValid {
		c.stats.Evictions++
	}
	victim.Tag = lineAddr
	victim.IsValid = true
	victim.IsDirty = false
	c.directory.Visit(victim)

	return AccessResult{Hit: false, Latency: c.cfg.MissLatency}
}

// Contains probes residency without disturbing LRU state or installing
// the line.
func (c *Cache) Contains(addr uint32) bool {
	block := c.directory.Lookup(0, c.lineAddr(addr))
	return block != nil && block.IsValid
}

// Invalidate drops the line containing addr. This implements
// cbo.flush; offsets beyond the line base are accepted even though the
// hardware extension forbids them (kept deviation).
func (c *Cache) Invalidate(addr uint32) {
	block := c.directory.Lookup(0, c.lineAddr(addr))
	if block != nil && block.IsValid {
		block.IsValid = false
		c.stats.Invalidations++
	}
}

// InvalidateAll drops every line. This implements x.flushall.
func (c *Cache) InvalidateAll() {
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid {
				block.IsValid = false
				c.stats.Invalidations++
			}
		}
	}
}

// Lines returns a snapshot of every resident line.
func (c *Cache) Lines() []Line {
	var lines []Line
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid {
				lines = append(lines, Line{
					Set:   block.SetID,
					Way:   block.WayID,
					Tag:   uint32(block.Tag),
					Valid: true,
				})
			}
		}
	}
	return lines
}
