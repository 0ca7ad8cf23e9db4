// Package config loads TEEM engine configuration from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SpecFaultPolicy selects what a faulting speculative load delivers to
// its dependents while the fault waits for retire.
type SpecFaultPolicy string

// Speculative-fault policies.
const (
	// SpecFaultSentinel completes the load with SpecFaultValue so that
	// dependent micro-ops keep executing transiently.
	SpecFaultSentinel SpecFaultPolicy = "sentinel"
	// SpecFaultSuppress leaves the load's result unavailable; its
	// dependents never execute before the fault retires.
	SpecFaultSuppress SpecFaultPolicy = "suppress"
)

// CacheConfig holds data-cache geometry and timing.
type CacheConfig struct {
	// Sets is the number of cache sets. Must be a power of 2.
	Sets int `yaml:"sets"`
	// Ways is the associativity.
	Ways int `yaml:"ways"`
	// LineSize is the cache line size in bytes. Must be a power of 2.
	LineSize int `yaml:"line_size"`
	// HitLatency is the load-to-use latency in cycles on a hit.
	HitLatency uint64 `yaml:"hit_latency"`
	// MissLatency is the load-to-use latency in cycles on a miss.
	MissLatency uint64 `yaml:"miss_latency"`
}

// PredictorConfig holds branch-predictor table geometry.
type PredictorConfig struct {
	// BHTSize is the number of 2-bit direction counters. Power of 2.
	BHTSize uint32 `yaml:"bht_size"`
	// BTBSize is the number of branch-target-buffer entries. Power of 2.
	BTBSize uint32 `yaml:"btb_size"`
	// HistoryBits is the number of global history bits hashed into the
	// direction index. 0 disables history.
	HistoryBits uint32 `yaml:"history_bits"`
}

// Config holds every pre-sized resource of the engine.
type Config struct {
	// ROBDepth is the number of reorder-buffer entries.
	ROBDepth int `yaml:"rob_depth"`
	// TagPoolSize is the number of physical tags. Must be at least
	// ROBDepth or dispatch could deadlock.
	TagPoolSize int `yaml:"tag_pool_size"`
	// LSQDepth is the number of load-store-queue entries.
	LSQDepth int `yaml:"lsq_depth"`
	// RetireWidth is the maximum micro-ops retired per cycle.
	RetireWidth int `yaml:"retire_width"`
	// RASDepth is the return-address-stack depth.
	RASDepth int `yaml:"ras_depth"`

	Cache     CacheConfig     `yaml:"cache"`
	Predictor PredictorConfig `yaml:"predictor"`

	// SpecFaultPolicy selects the Meltdown modelling mode.
	SpecFaultPolicy SpecFaultPolicy `yaml:"spec_fault_policy"`
	// SpecFaultValue is the sentinel a faulting speculative load
	// returns under the sentinel policy.
	SpecFaultValue uint32 `yaml:"spec_fault_value"`

	// InitialSP is the starting stack pointer.
	InitialSP uint32 `yaml:"initial_sp"`
	// StackSize is the size of the mapped stack region in bytes.
	StackSize uint32 `yaml:"stack_size"`
}

// Default returns the documented default configuration.
func Default() *Config {
	return &Config{
		ROBDepth:    64,
		TagPoolSize: 96,
		LSQDepth:    32,
		RetireWidth: 4,
		RASDepth:    16,
		Cache: CacheConfig{
			Sets:        64,
			Ways:        4,
			LineSize:    64,
			HitLatency:  1,
			MissLatency: 30,
		},
		Predictor: PredictorConfig{
			BHTSize:     1024,
			BTBSize:     256,
			HistoryBits: 0,
		},
		SpecFaultPolicy: SpecFaultSentinel,
		SpecFaultValue:  0,
		InitialSP:       0x7FFF_FFF0,
		StackSize:       1 << 20,
	}
}

// Load reads a YAML configuration file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural constraints the engine relies on.
func (c *Config) Validate() error {
	if c.ROBDepth <= 0 {
		return fmt.Errorf("rob_depth must be > 0")
	}
	if c.TagPoolSize < c.ROBDepth {
		return fmt.Errorf("tag_pool_size must be >= rob_depth")
	}
	if c.LSQDepth <= 0 {
		return fmt.Errorf("lsq_depth must be > 0")
	}
	if c.RetireWidth <= 0 {
		return fmt.Errorf("retire_width must be > 0")
	}
	if c.RASDepth <= 0 {
		return fmt.Errorf("ras_depth must be > 0")
	}
	if c.Cache.Sets <= 0 || !isPowerOfTwo(uint64(c.Cache.Sets)) {
		return fmt.Errorf("cache.sets must be a power of 2")
	}
	if c.Cache.Ways <= 0 {
		return fmt.Errorf("cache.ways must be > 0")
	}
	if c.Cache.LineSize <= 0 || !isPowerOfTwo(uint64(c.Cache.LineSize)) {
		return fmt.Errorf("cache.line_size must be a power of 2")
	}
	if c.Predictor.BHTSize == 0 || !isPowerOfTwo(uint64(c.Predictor.BHTSize)) {
		return fmt.Errorf("predictor.bht_size must be a power of 2")
	}
	if c.Predictor.BTBSize == 0 || !isPowerOfTwo(uint64(c.Predictor.BTBSize)) {
		return fmt.Errorf("predictor.btb_size must be a power of 2")
	}
	switch c.SpecFaultPolicy {
	case SpecFaultSentinel, SpecFaultSuppress:
	default:
		return fmt.Errorf("spec_fault_policy must be %q or %q", SpecFaultSentinel, SpecFaultSuppress)
	}
	if c.StackSize == 0 {
		return fmt.Errorf("stack_size must be > 0")
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	out := *c
	return &out
}

// isPowerOfTwo reports whether v is a power of two.
func isPowerOfTwo(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}
