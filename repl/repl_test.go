package repl_test

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/teem-cpu/teem/asm"
	"github.com/teem-cpu/teem/config"
	"github.com/teem-cpu/teem/loader"
	"github.com/teem-cpu/teem/repl"
	"github.com/teem-cpu/teem/timing/core"
)

// session runs the REPL over a program with a scripted command stream.
func session(src, commands string) (int32, string) {
	cfg := config.Default()
	parsed, err := asm.Parse(strings.NewReader(src))
	Expect(err).NotTo(HaveOccurred())
	prog, err := loader.Load(parsed, cfg.InitialSP, cfg.StackSize)
	Expect(err).NotTo(HaveOccurred())

	out := &bytes.Buffer{}
	engine := core.New(prog, cfg, core.WithStdout(out))
	shell := repl.New(engine, prog.Labels, strings.NewReader(commands), out)
	code := shell.Run()
	return code, out.String()
}

const countdown = `
_start:
	li a0, 3
loop:
	addi a0, a0, -1
	bnez a0, loop
	li a0, 5
	li a7, -1
	ecall
`

var _ = Describe("REPL", func() {
	It("should run to completion on continue and mirror the exit code", func() {
		code, out := session(countdown, "continue\n")
		Expect(code).To(Equal(int32(5)))
		Expect(out).To(ContainSubstring("exited with status 5"))
	})

	It("should step a bounded number of cycles", func() {
		code, out := session(countdown, "step 2\nquit\n")
		Expect(code).To(Equal(int32(0)))
		Expect(out).To(ContainSubstring("cycle 2"))
	})

	It("should print registers and memory", func() {
		_, out := session(countdown, "continue\nprint a0\n")
		// The guest halts during continue; print happens on a halted
		// machine but the session already returned its code.
		Expect(out).To(ContainSubstring("exited"))

		_, out = session(countdown, "print a0\nprint mem 0x7ffffff0\nquit\n")
		Expect(out).To(ContainSubstring("a0 = 0x0"))
		Expect(out).To(ContainSubstring("0x7ffffff0: 00 00 00 00"))
	})

	It("should pause at breakpoints set by label", func() {
		code, out := session(countdown, "break loop\ncontinue\nprint a0\ncontinue\ncontinue\ncontinue\n")
		Expect(out).To(ContainSubstring("breakpoint at"))
		Expect(out).To(ContainSubstring("paused"))
		Expect(code).To(Equal(int32(5)))
	})

	It("should render engine structures", func() {
		_, out := session(countdown, "step 3\nshow rob\nshow lsq\nshow cache\nshow predictor\nquit\n")
		Expect(out).To(ContainSubstring("rob:"))
		Expect(out).To(ContainSubstring("lsq:"))
		Expect(out).To(ContainSubstring("cache:"))
		Expect(out).To(ContainSubstring("predictor:"))
	})

	It("should reject unknown commands politely", func() {
		_, out := session(countdown, "bogus\nquit\n")
		Expect(out).To(ContainSubstring(`unknown command "bogus"`))
	})
})
