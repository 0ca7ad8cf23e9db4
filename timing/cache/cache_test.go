package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/teem-cpu/teem/config"
	"github.com/teem-cpu/teem/timing/cache"
)

var _ = Describe("Cache", func() {
	var c *cache.Cache

	// Small cache: 4 sets, 2 ways, 64B lines.
	cfg := config.CacheConfig{
		Sets:        4,
		Ways:        2,
		LineSize:    64,
		HitLatency:  1,
		MissLatency: 30,
	}

	BeforeEach(func() {
		c = cache.New(cfg)
	})

	It("should miss cold and hit warm", func() {
		first := c.Read(0x1000)
		Expect(first.Hit).To(BeFalse())
		Expect(first.Latency).To(Equal(uint64(30)))

		second := c.Read(0x1000)
		Expect(second.Hit).To(BeTrue())
		Expect(second.Latency).To(Equal(uint64(1)))
	})

	It("should hit anywhere within an installed line", func() {
		c.Read(0x1000)
		Expect(c.Read(0x103F).Hit).To(BeTrue())
		Expect(c.Read(0x1040).Hit).To(BeFalse())
	})

	It("should track statistics", func() {
		c.Read(0x1000)
		c.Read(0x1000)
		c.Write(0x2000)
		stats := c.Stats()
		Expect(stats.Reads).To(Equal(uint64(2)))
		Expect(stats.Writes).To(Equal(uint64(1)))
		Expect(stats.Hits).To(Equal(uint64(1)))
		Expect(stats.Misses).To(Equal(uint64(2)))
	})

	It("should evict the least recently used way", func() {
		// Three lines mapping to the same set of a 4-set cache:
		// stride = sets * lineSize = 256.
		c.Read(0x0000)
		c.Read(0x0100)
		c.Read(0x0000) // refresh the first line
		c.Read(0x0200) // evicts 0x0100

		Expect(c.Contains(0x0000)).To(BeTrue())
		Expect(c.Contains(0x0100)).To(BeFalse())
		Expect(c.Contains(0x0200)).To(BeTrue())
		Expect(c.Stats().Evictions).To(Equal(uint64(1)))
	})

	Describe("Contains", func() {
		It("should probe without installing", func() {
			Expect(c.Contains(0x3000)).To(BeFalse())
			Expect(c.Contains(0x3000)).To(BeFalse())
			Expect(c.Stats().Reads).To(Equal(uint64(0)))
		})
	})

	Describe("Invalidate", func() {
		It("should drop the line containing the address", func() {
			c.Read(0x1000)
			c.Invalidate(0x1000)
			Expect(c.Contains(0x1000)).To(BeFalse())
		})

		It("should accept offsets within the line", func() {
			c.Read(0x1000)
			c.Invalidate(0x1020)
			Expect(c.Contains(0x1000)).To(BeFalse())
		})

		It("should ignore absent lines", func() {
			c.Invalidate(0x9000)
			Expect(c.Stats().Invalidations).To(Equal(uint64(0)))
		})
	})

	Describe("InvalidateAll", func() {
		It("should leave the cache empty", func() {
			c.Read(0x1000)
			c.Read(0x2000)
			c.Write(0x3000)
			c.InvalidateAll()
			Expect(c.Lines()).To(BeEmpty())
			Expect(c.Contains(0x1000)).To(BeFalse())
		})
	})

	Describe("ReadRange", func() {
		It("should touch both lines of a straddling access", func() {
			result := c.ReadRange(0x103E, 4)
			Expect(result.Hit).To(BeFalse())
			Expect(c.Contains(0x1000)).To(BeTrue())
			Expect(c.Contains(0x1040)).To(BeTrue())
		})

		It("should report the worst latency of the pair", func() {
			c.Read(0x1000)
			result := c.ReadRange(0x103E, 4)
			Expect(result.Latency).To(Equal(uint64(30)))
		})
	})

	It("should snapshot resident lines", func() {
		c.Read(0x1000)
		c.Read(0x2000)
		Expect(c.Lines()).To(HaveLen(2))
	})
})
