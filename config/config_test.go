package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/teem-cpu/teem/config"
)

var _ = Describe("Config", func() {
	It("should provide valid defaults", func() {
		cfg := config.Default()
		Expect(cfg.Validate()).To(Succeed())
		Expect(cfg.ROBDepth).To(Equal(64))
		Expect(cfg.TagPoolSize).To(BeNumerically(">=", cfg.ROBDepth))
		Expect(cfg.SpecFaultPolicy).To(Equal(config.SpecFaultSentinel))
	})

	Describe("Load", func() {
		writeConfig := func(content string) string {
			path := filepath.Join(GinkgoT().TempDir(), "config.yml")
			Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
			return path
		}

		It("should overlay YAML values on the defaults", func() {
			path := writeConfig(`
rob_depth: 16
tag_pool_size: 32
cache:
  sets: 8
  ways: 2
  line_size: 32
  hit_latency: 2
  miss_latency: 50
spec_fault_policy: suppress
`)
			cfg, err := config.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.ROBDepth).To(Equal(16))
			Expect(cfg.Cache.Sets).To(Equal(8))
			Expect(cfg.Cache.MissLatency).To(Equal(uint64(50)))
			Expect(cfg.SpecFaultPolicy).To(Equal(config.SpecFaultSuppress))
			// Untouched keys keep their defaults.
			Expect(cfg.LSQDepth).To(Equal(32))
			Expect(cfg.RetireWidth).To(Equal(4))
		})

		It("should reject malformed YAML", func() {
			path := writeConfig("rob_depth: [not a number\n")
			_, err := config.Load(path)
			Expect(err).To(HaveOccurred())
		})

		It("should reject invalid configurations", func() {
			path := writeConfig("rob_depth: 128\ntag_pool_size: 64\n")
			_, err := config.Load(path)
			Expect(err).To(MatchError(ContainSubstring("tag_pool_size")))
		})

		It("should reject missing files", func() {
			_, err := config.Load("/nonexistent/config.yml")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Validate", func() {
		It("should require power-of-two cache geometry", func() {
			cfg := config.Default()
			cfg.Cache.Sets = 48
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should require power-of-two predictor tables", func() {
			cfg := config.Default()
			cfg.Predictor.BHTSize = 1000
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject unknown fault policies", func() {
			cfg := config.Default()
			cfg.SpecFaultPolicy = "ignore"
			Expect(cfg.Validate()).NotTo(Succeed())
		})
	})

	It("should clone without sharing", func() {
		cfg := config.Default()
		clone := cfg.Clone()
		clone.ROBDepth = 1
		Expect(cfg.ROBDepth).To(Equal(64))
	})
})
