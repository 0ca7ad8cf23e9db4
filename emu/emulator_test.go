package emu_test

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/teem-cpu/teem/asm"
	"github.com/teem-cpu/teem/emu"
	"github.com/teem-cpu/teem/loader"
)

// load assembles a source string into a runnable program.
func load(src string) *loader.Program {
	parsed, err := asm.Parse(strings.NewReader(src))
	Expect(err).NotTo(HaveOccurred())
	prog, err := loader.Load(parsed, 0x7FFF_FFF0, 1<<20)
	Expect(err).NotTo(HaveOccurred())
	return prog
}

var _ = Describe("Emulator", func() {
	var stdout *bytes.Buffer

	BeforeEach(func() {
		stdout = &bytes.Buffer{}
	})

	newEmu := func(src string, opts ...emu.EmulatorOption) *emu.Emulator {
		prog := load(src)
		opts = append(opts,
			emu.WithStdout(stdout),
			emu.WithStackPointer(prog.InitialSP),
		)
		return emu.NewEmulator(prog.Text, prog.Memory, prog.Entry, opts...)
	}

	It("should execute straight-line arithmetic", func() {
		e := newEmu(`
			_start:
				li a0, 40
				addi a0, a0, 2
				li a7, -1
				ecall
		`)
		Expect(e.Run(nil)).To(Equal(int32(42)))
	})

	It("should keep x0 at zero after writes", func() {
		e := newEmu(`
			_start:
				li x0, 99
				addi x0, x0, 1
				mv a0, x0
				li a7, -1
				ecall
		`)
		Expect(e.Run(nil)).To(Equal(int32(0)))
	})

	It("should run loops with branches", func() {
		e := newEmu(`
			_start:
				li t0, 0
				li t1, 0
			loop:
				add t1, t1, t0
				addi t0, t0, 1
				li t2, 5
				blt t0, t2, loop
				mv a0, t1
				li a7, -1
				ecall
		`)
		Expect(e.Run(nil)).To(Equal(int32(10)))
	})

	It("should call and return through ra", func() {
		e := newEmu(`
			_start:
				li a0, 20
				call double
				li a7, -1
				ecall
			double:
				add a0, a0, a0
				ret
		`)
		Expect(e.Run(nil)).To(Equal(int32(40)))
	})

	It("should load and store through the stack", func() {
		e := newEmu(`
			_start:
				li t0, 7
				sw t0, -4(sp)
				lw a0, -4(sp)
				li a7, -1
				ecall
		`)
		Expect(e.Run(nil)).To(Equal(int32(7)))
	})

	It("should write bytes to the console", func() {
		e := newEmu(`
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
		`)
		Expect(e.Run(nil)).To(Equal(int32(0)))
		Expect(stdout.String()).To(Equal("Hello World!\n"))
	})

	It("should read console input into memory", func() {
		prog := load(`
			_start:
				li a0, 4096
				li a1, 8
				li a7, -3
				ecall
				li a7, -1
				ecall
		`)
		prog.Memory.Map(4096, 64)
		e := emu.NewEmulator(prog.Text, prog.Memory, prog.Entry,
			emu.WithStdin(strings.NewReader("hi\n")),
			emu.WithStdout(stdout),
		)
		Expect(e.Run(nil)).To(Equal(int32(3)))
		Expect(prog.Memory.Read8(4096)).To(Equal(byte('h')))
	})

	It("should fault on loads from unmapped memory", func() {
		e := newEmu(`
			_start:
				li t0, 0x40000000
				lw a0, 0(t0)
				li a7, -1
				ecall
		`)
		result := e.Step() // li
		Expect(result.Err).To(BeNil())
		result = e.Step() // faulting lw
		Expect(result.Err).To(HaveOccurred())
		var fault *emu.Fault
		Expect(result.Err).To(BeAssignableToTypeOf(fault))
	})

	It("should report ebreak as a pause and continue", func() {
		e := newEmu(`
			_start:
				li a0, 5
				ebreak
				li a7, -1
				ecall
		`)
		paused := false
		code := e.Run(func(pc uint32) { paused = true })
		Expect(paused).To(BeTrue())
		Expect(code).To(Equal(int32(5)))
	})

	It("should count instructions for rdcycle", func() {
		e := newEmu(`
			_start:
				nop
				nop
				rdcycle a0
				li a7, -1
				ecall
		`)
		Expect(e.Run(nil)).To(Equal(int32(2)))
	})
})
