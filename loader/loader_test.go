package loader_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/teem-cpu/teem/asm"
	"github.com/teem-cpu/teem/insts"
	"github.com/teem-cpu/teem/loader"
)

const (
	testSP        = uint32(0x7FFF_FFF0)
	testStackSize = uint32(1 << 20)
)

// loadSrc parses and loads an assembly source string.
func loadSrc(src string) (*loader.Program, error) {
	parsed, err := asm.Parse(strings.NewReader(src))
	Expect(err).NotTo(HaveOccurred())
	return loader.Load(parsed, testSP, testStackSize)
}

var _ = Describe("Load", func() {
	It("should key text by address at 4-byte strides", func() {
		prog, err := loadSrc(`
			_start:
				nop
				addi a0, zero, 1
		`)
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Text).To(HaveLen(2))
		Expect(prog.Text).To(HaveKey(loader.TextBase))
		Expect(prog.Text).To(HaveKey(loader.TextBase + 4))
	})

	It("should pick _start as the entry point", func() {
		prog, err := loadSrc(`
			helper: nop
			_start: nop
		`)
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Entry).To(Equal(loader.TextBase + 4))
	})

	It("should fall back to main, then the text base", func() {
		prog, err := loadSrc("main: nop\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Entry).To(Equal(loader.TextBase))

		prog, err = loadSrc("nop\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Entry).To(Equal(loader.TextBase))
	})

	It("should place data at the data base", func() {
		prog, err := loadSrc(`
			.data
			val: .word 0x11223344
			.text
			nop
		`)
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Labels["val"]).To(Equal(loader.DataBase))
		Expect(prog.Memory.Read32(loader.DataBase)).To(Equal(uint32(0x11223344)))
	})

	It("should place bss after data, zeroed and mapped", func() {
		prog, err := loadSrc(`
			.data
			.byte 1
			.bss
			buf: .zero 16
			.text
			nop
		`)
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Labels["buf"]).To(Equal(loader.DataBase + 4))
		Expect(prog.Memory.Mapped(prog.Labels["buf"], 16)).To(BeTrue())
		Expect(prog.Memory.Read32(prog.Labels["buf"])).To(Equal(uint32(0)))
	})

	It("should resolve branch targets to absolute addresses", func() {
		prog, err := loadSrc(`
			_start:
				beq a0, a1, out
				nop
			out:
				nop
		`)
		Expect(err).NotTo(HaveOccurred())
		br := prog.Text[loader.TextBase]
		Expect(br.Target).To(Equal(loader.TextBase + 8))
	})

	It("should resolve la references into immediates", func() {
		prog, err := loadSrc(`
			.data
			msg: .byte 1
			.text
			_start:
				la a0, msg
		`)
		Expect(err).NotTo(HaveOccurred())
		la := prog.Text[loader.TextBase]
		Expect(la.Op).To(Equal(insts.OpADDI))
		Expect(uint32(la.Imm)).To(Equal(loader.DataBase))
	})

	It("should patch label words embedded in data", func() {
		prog, err := loadSrc(`
			.data
			ptr: .word msg
			msg: .byte 0xA5
			.text
			nop
		`)
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Memory.Read32(loader.DataBase)).To(Equal(loader.DataBase + 4))
	})

	It("should report unresolved labels as load errors", func() {
		_, err := loadSrc("j nowhere\n")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("unresolved label"))
	})

	It("should map the stack region below the initial SP", func() {
		prog, err := loadSrc("nop\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.InitialSP).To(Equal(testSP))
		Expect(prog.Memory.Mapped(testSP-4, 4)).To(BeTrue())
		Expect(prog.Memory.Mapped(testSP-testStackSize, 4)).To(BeTrue())
	})

	It("should not map text addresses as data", func() {
		prog, err := loadSrc("nop\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Memory.Mapped(loader.TextBase, 4)).To(BeFalse())
	})
})
