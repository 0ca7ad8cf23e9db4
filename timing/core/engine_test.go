package core_test

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/teem-cpu/teem/asm"
	"github.com/teem-cpu/teem/config"
	"github.com/teem-cpu/teem/emu"
	"github.com/teem-cpu/teem/loader"
	"github.com/teem-cpu/teem/timing/core"
)

// maxTestCycles bounds every test run; well-formed guests finish far
// below it.
const maxTestCycles = 200000

// build assembles a source string into an engine plus its program.
func build(src string, cfg *config.Config, opts ...core.Option) (*core.Engine, *loader.Program) {
	parsed, err := asm.Parse(strings.NewReader(src))
	Expect(err).NotTo(HaveOccurred())
	prog, err := loader.Load(parsed, cfg.InitialSP, cfg.StackSize)
	Expect(err).NotTo(HaveOccurred())
	return core.New(prog, cfg, opts...), prog
}

// runToHalt steps the engine, resuming through pauses, until it halts.
func runToHalt(e *core.Engine) {
	for i := 0; i < maxTestCycles && !e.Halted(); i++ {
		e.Resume()
		e.StepCycle()
	}
	Expect(e.Halted()).To(BeTrue(), "guest did not halt within the cycle budget")
}

// inorderExit runs the same program on the reference interpreter.
func inorderExit(src string, cfg *config.Config) int32 {
	parsed, err := asm.Parse(strings.NewReader(src))
	Expect(err).NotTo(HaveOccurred())
	prog, err := loader.Load(parsed, cfg.InitialSP, cfg.StackSize)
	Expect(err).NotTo(HaveOccurred())
	e := emu.NewEmulator(prog.Text, prog.Memory, prog.Entry,
		emu.WithStackPointer(prog.InitialSP))
	return e.Run(nil)
}

var _ = Describe("Engine", func() {
	var cfg *config.Config

	BeforeEach(func() {
		cfg = config.Default()
	})

	// expectSameAsInorder runs src on both cores and requires the same
	// exit status.
	expectSameAsInorder := func(src string, want int32) {
		engine, _ := build(src, cfg)
		runToHalt(engine)
		Expect(engine.ExitCode()).To(Equal(want))
		Expect(inorderExit(src, cfg.Clone())).To(Equal(want))
	}

	Describe("architectural equivalence", func() {
		It("should match the in-order core on straight-line arithmetic", func() {
			expectSameAsInorder(`
				_start:
					li t0, 6
					li t1, 7
					mul a0, t0, t1
					li a7, -1
					ecall
			`, 42)
		})

		It("should keep x0 at zero after writes", func() {
			expectSameAsInorder(`
				_start:
					li x0, 99
					mv a0, x0
					li a7, -1
					ecall
			`, 0)
		})

		It("should match the in-order core on a dependent chain", func() {
			expectSameAsInorder(`
				_start:
					li a0, 1
					add a0, a0, a0
					add a0, a0, a0
					add a0, a0, a0
					addi a0, a0, -3
					li a7, -1
					ecall
			`, 5)
		})

		It("should match the in-order core on loops", func() {
			expectSameAsInorder(`
				_start:
					li t0, 0
					li t1, 0
				loop:
					add t1, t1, t0
					addi t0, t0, 1
					li t2, 10
					blt t0, t2, loop
					mv a0, t1
					li a7, -1
					ecall
			`, 45)
		})

		It("should match the in-order core through calls and returns", func() {
			expectSameAsInorder(`
				_start:
					li a0, 3
					call inc
					call inc
					call inc
					li a7, -1
					ecall
				inc:
					addi a0, a0, 1
					ret
			`, 6)
		})

		It("should honor the signed division edge cases", func() {
			src := `
				_start:
					li t0, -2147483648
					li t1, -1
					div s2, t0, t1
					rem s3, t0, t1
					li t2, 0
					div s4, t0, t2
					rem s5, t0, t2
					li a0, 0
					li a7, -1
					ecall
			`
			engine, _ := build(src, cfg)
			runToHalt(engine)
			regs := engine.RegFile()
			Expect(regs.ReadReg(18)).To(Equal(uint32(0x80000000)), "INT_MIN / -1")
			Expect(regs.ReadReg(19)).To(Equal(uint32(0)), "INT_MIN %% -1")
			Expect(regs.ReadReg(20)).To(Equal(uint32(0xFFFFFFFF)), "division by zero")
			Expect(regs.ReadReg(21)).To(Equal(uint32(0x80000000)), "remainder by zero")
		})

		It("should handle unaligned words byte-exactly", func() {
			src := `
				.data
				buf: .zero 16
				.text
				_start:
					la t0, buf
					li t1, 0xDEADBEEF
					sw t1, 1(t0)
					lw a0, 1(t0)
					xor a0, a0, t1
					li a7, -1
					ecall
			`
			expectSameAsInorder(src, 0)
		})
	})

	Describe("syscalls", func() {
		It("should print hello world byte-exactly and exit 0", func() {
			stdout := &bytes.Buffer{}
			engine, _ := build(`
				.data
				msg: .asciz "Hello World!\n"
				.text
				_start:
					la a0, msg
					li a1, 13
					li a7, -2
					ecall
					li a0, 0
					li a7, -1
					ecall
			`, cfg, core.WithStdout(stdout))
			runToHalt(engine)
			Expect(engine.ExitCode()).To(Equal(int32(0)))
			Expect(stdout.String()).To(Equal("Hello World!\n"))
		})

		It("should perform write exactly once despite speculation", func() {
			stdout := &bytes.Buffer{}
			engine, _ := build(`
				.data
				msg: .ascii "x"
				.text
				_start:
					la a0, msg
					li a1, 1
					li a7, -2
					ecall
					li a0, 0
					li a7, -1
					ecall
			`, cfg, core.WithStdout(stdout))
			runToHalt(engine)
			Expect(stdout.String()).To(Equal("x"))
			Expect(engine.Stats().Syscalls).To(Equal(uint64(2)))
		})

		It("should block on read and return buffered input", func() {
			engine, prog := build(`
				.data
				buf: .zero 16
				.text
				_start:
					la a0, buf
					li a1, 16
					li a7, -3
					ecall
					li a7, -1
					ecall
			`, cfg, core.WithStdin(strings.NewReader("ok")))
			runToHalt(engine)
			Expect(engine.ExitCode()).To(Equal(int32(2)))
			Expect(prog.Memory.Read8(prog.Labels["buf"])).To(Equal(byte('o')))
		})
	})

	Describe("store-to-load forwarding", func() {
		It("should forward an in-flight store to a younger load", func() {
			engine, prog := build(`
				_start:
					li t0, 7
					sw t0, -4(sp)
					lw a0, -4(sp)
					li a7, -1
					ecall
			`, cfg)
			runToHalt(engine)
			Expect(engine.ExitCode()).To(Equal(int32(7)))
			// The retired state also shows the store.
			sp := prog.InitialSP
			Expect(prog.Memory.Read32(sp - 4)).To(Equal(uint32(7)))
			Expect(engine.Stats().MemOrderViolations).To(Equal(uint64(0)))
		})

		It("should extend forwarded bytes like a memory load", func() {
			expectSameAsInorder(`
				_start:
					li t0, 0x80
					sb t0, -8(sp)
					lb t1, -8(sp)
					lbu t2, -8(sp)
					sub a0, t2, t1
					srli a0, a0, 8
					li a7, -1
					ecall
			`, 1) // 0x80 - 0xFFFFFF80 = 0x100
		})
	})

	Describe("memory-ordering speculation", func() {
		It("should flush and recover when a bypassed store aliases", func() {
			engine, _ := build(`
				.data
				slot: .word buf
				.p2align 6
				buf: .word 0
				.text
				_start:
					li t3, 77
					la t0, buf
					la t1, slot
					lw t2, 0(t1)        # cold miss delays the store address
					sw t3, 0(t2)        # address unknown while the miss is in flight
					lw a0, 0(t0)        # speculatively bypasses the store
					li a7, -1
					ecall
			`, cfg)
			runToHalt(engine)
			Expect(engine.ExitCode()).To(Equal(int32(77)))
			Expect(engine.Stats().MemOrderViolations).To(BeNumerically(">=", 1))
		})

		It("should not flush when the bypassed store does not alias", func() {
			engine, _ := build(`
				.data
				slot: .word other
				.p2align 6
				buf: .word 55
				.p2align 6
				other: .word 0
				.text
				_start:
					li t3, 77
					la t0, buf
					la t1, slot
					lw t2, 0(t1)
					sw t3, 0(t2)        # resolves to other, not buf
					lw a0, 0(t0)
					li a7, -1
					ecall
			`, cfg)
			runToHalt(engine)
			Expect(engine.ExitCode()).To(Equal(int32(55)))
			Expect(engine.Stats().MemOrderViolations).To(Equal(uint64(0)))
		})
	})

	Describe("rollback", func() {
		rollbackSrc := `
			.data
			slot: .word 1
			.p2align 6
			probe: .zero 64
			.text
			_start:
				li x5, 7
				la t2, probe
				la t6, slot
				lw t1, 0(t6)
				beqz t1, transient
			after:
				mv a0, x5
				li a7, -1
				ecall
			transient:
				li x5, 42
				lw t3, 0(t2)
				j after
		`

		It("should discard transient register writes", func() {
			engine, _ := build(rollbackSrc, cfg)
			runToHalt(engine)
			Expect(engine.ExitCode()).To(Equal(int32(7)))
			Expect(engine.Stats().BranchMispredicts).To(BeNumerically(">=", 1))
		})

		It("should keep transient cache fills after the flush", func() {
			engine, prog := build(rollbackSrc, cfg)
			runToHalt(engine)
			Expect(engine.Cache().Contains(prog.Labels["probe"])).To(BeTrue(),
				"the wrong-path load's line must survive the rollback")
		})

		It("should flush only entries younger than the branch", func() {
			// The pre-branch store must survive the misprediction.
			engine, prog := build(`
				.data
				slot: .word 1
				keep: .word 0
				.text
				_start:
					li t0, 123
					la t4, keep
					sw t0, 0(t4)
					la t6, slot
					lw t1, 0(t6)
					beqz t1, wrong
				after:
					lw a0, 0(t4)
					li a7, -1
					ecall
				wrong:
					j after
			`, cfg)
			runToHalt(engine)
			Expect(engine.ExitCode()).To(Equal(int32(123)))
			Expect(prog.Memory.Read32(prog.Labels["keep"])).To(Equal(uint32(123)))
		})
	})

	Describe("speculative faults", func() {
		transientFaultSrc := `
			.data
			slot: .word 1
			.p2align 6
			probe: .zero 64
			.text
			_start:
				la t2, probe
				li t4, 0x40000000   # unmapped
				la t6, slot
				lw t1, 0(t6)
				beqz t1, transient
			after:
				li a0, 0
				li a7, -1
				ecall
			transient:
				lw t3, 0(t4)        # faults, but only transiently
				add t5, t2, t3
				lw t5, 0(t5)        # probes probe[sentinel]
				j after
		`

		It("should suppress faults raised only on the wrong path", func() {
			engine, _ := build(transientFaultSrc, cfg)
			runToHalt(engine)
			Expect(engine.ExitCode()).To(Equal(int32(0)))
			Expect(engine.FaultError()).To(BeNil())
		})

		It("should deliver the sentinel to transient dependents", func() {
			cfg.SpecFaultPolicy = config.SpecFaultSentinel
			cfg.SpecFaultValue = 0
			engine, prog := build(transientFaultSrc, cfg)
			runToHalt(engine)
			Expect(engine.Cache().Contains(prog.Labels["probe"])).To(BeTrue(),
				"dependents of the faulting load must keep executing")
		})

		It("should starve transient dependents under the suppress policy", func() {
			cfg.SpecFaultPolicy = config.SpecFaultSuppress
			engine, prog := build(transientFaultSrc, cfg)
			runToHalt(engine)
			Expect(engine.ExitCode()).To(Equal(int32(0)))
			Expect(engine.Cache().Contains(prog.Labels["probe"])).To(BeFalse(),
				"no value may reach the faulting load's dependents")
		})

		It("should raise architectural faults at retire", func() {
			engine, _ := build(`
				_start:
					li t0, 0x40000000
					lw a0, 0(t0)
					li a7, -1
					ecall
			`, cfg)
			runToHalt(engine)
			Expect(engine.FaultError()).To(HaveOccurred())
			Expect(engine.ExitCode()).To(Equal(int32(-1)))
		})
	})

	Describe("cache operations", func() {
		It("should leave the cache empty after x.flushall", func() {
			engine, _ := build(`
				.data
				a: .word 1
				.text
				_start:
					la t0, a
					lw t1, 0(t0)
					lw t2, 0(t0)
					x.flushall
					fence.i
					li a0, 0
					li a7, -1
					ecall
			`, cfg)
			runToHalt(engine)
			Expect(engine.Cache().Lines()).To(BeEmpty())
		})

		It("should invalidate a single line with cbo.flush, offset included", func() {
			engine, prog := build(`
				.data
				a: .word 1
				.p2align 6
				b: .word 2
				.text
				_start:
					la t0, a
					la t1, b
					lw t2, 0(t0)
					lw t3, 0(t1)
					fence.i
					cbo.flush 64(t0)    # nonzero offset reaches line b
					fence.i
					li a0, 0
					li a7, -1
					ecall
			`, cfg)
			runToHalt(engine)
			Expect(engine.Cache().Contains(prog.Labels["a"])).To(BeTrue())
			Expect(engine.Cache().Contains(prog.Labels["b"])).To(BeFalse())
		})

		It("should treat fence.i on a drained pipeline as cycle-only", func() {
			expectSameAsInorder(`
				_start:
					li a0, 11
					fence.i
					li a7, -1
					ecall
			`, 11)
		})
	})

	Describe("rdcycle timing", func() {
		It("should observe the hit/miss latency difference", func() {
			engine, _ := build(`
				.data
				.p2align 6
				hot: .word 1
				.p2align 6
				cold: .word 2
				.text
				_start:
					la s2, hot
					la s3, cold
					lw t0, 0(s2)       # warm the hot line
					fence.i

					rdcycle s4
					lw t1, 0(s2)       # hit
					rdcycle s5
					sub s4, s5, s4

					rdcycle s6
					lw t2, 0(s3)       # miss
					rdcycle s7
					sub s6, s7, s6

					sltu a0, s4, s6    # hit must be faster
					li a7, -1
					ecall
			`, cfg)
			runToHalt(engine)
			Expect(engine.ExitCode()).To(Equal(int32(1)))
		})

		It("should count only simulated cycles", func() {
			engine, _ := build(`
				_start:
					rdcycle a0
					li a7, -1
					ecall
			`, cfg)
			runToHalt(engine)
			Expect(uint64(uint32(engine.ExitCode()))).To(BeNumerically("<", engine.Cycle()))
		})
	})

	Describe("pausing", func() {
		It("should pause at ebreak and resume on command", func() {
			engine, _ := build(`
				_start:
					li a0, 9
					ebreak
					li a7, -1
					ecall
			`, cfg)
			for i := 0; i < maxTestCycles && !engine.Paused() && !engine.Halted(); i++ {
				engine.StepCycle()
			}
			Expect(engine.Paused()).To(BeTrue())
			Expect(engine.Halted()).To(BeFalse())
			Expect(engine.PauseReason()).To(ContainSubstring("ebreak"))

			runToHalt(engine)
			Expect(engine.ExitCode()).To(Equal(int32(9)))
		})

		It("should pause before a breakpointed instruction retires", func() {
			engine, prog := build(`
				_start:
					li a0, 1
				target:
					li a0, 2
					li a7, -1
					ecall
			`, cfg)
			engine.AddBreakpoint(prog.Labels["target"])
			for i := 0; i < maxTestCycles && !engine.Paused() && !engine.Halted(); i++ {
				engine.StepCycle()
			}
			Expect(engine.Paused()).To(BeTrue())
			Expect(engine.RegFile().ReadReg(10)).To(Equal(uint32(1)),
				"the breakpointed instruction must not have retired")

			runToHalt(engine)
			Expect(engine.ExitCode()).To(Equal(int32(2)))
		})
	})

	Describe("observability", func() {
		It("should expose consistent snapshots mid-flight", func() {
			engine, _ := build(`
				_start:
					li t0, 1
					li t1, 2
					add t2, t0, t1
					sw t2, -4(sp)
					lw a0, -4(sp)
					li a7, -1
					ecall
			`, cfg)
			for i := 0; i < 4; i++ {
				engine.StepCycle()
			}
			snap := engine.Snapshot()
			Expect(snap.Cycle).To(Equal(uint64(4)))
			Expect(snap.ROB).NotTo(BeEmpty())
			Expect(snap.ROB[0].Disasm).NotTo(BeEmpty())
			runToHalt(engine)
			final := engine.Snapshot()
			Expect(final.Halted).To(BeTrue())
			Expect(final.Stats.Retired).To(BeNumerically(">", 0))
		})
	})
})
