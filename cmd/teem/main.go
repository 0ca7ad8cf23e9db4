// Package main provides the TEEM command-line interface.
// TEEM is an educational RISC-V emulator with speculative out-of-order
// execution, built for studying transient-execution side channels.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/teem-cpu/teem/config"
	"github.com/teem-cpu/teem/emu"
	"github.com/teem-cpu/teem/loader"
	"github.com/teem-cpu/teem/repl"
	"github.com/teem-cpu/teem/timing/core"
)

var (
	configPath = flag.String("config", "", "Path to YAML configuration file")
	run        = flag.Bool("run", false, "Run to completion without the REPL")
	inorder    = flag.Bool("inorder", false, "Use the in-order reference interpreter")
	verbose    = flag.Bool("v", false, "Verbose output")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: teem [options] <program.s>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	programPath := flag.Arg(0)
	prog, err := loader.LoadFile(programPath, cfg.InitialSP, cfg.StackSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		fmt.Printf("Loaded: %s\n", programPath)
		fmt.Printf("Entry point: 0x%X\n", prog.Entry)
		fmt.Printf("Instructions: %d\n", len(prog.Text))
	}

	if *inorder {
		os.Exit(int(runInorder(prog)))
	}

	engine := core.New(prog, cfg, core.WithStdin(os.Stdin))

	if *run {
		for !engine.Halted() {
			engine.Resume()
			engine.Run(0)
		}
		report(engine)
		os.Exit(int(engine.ExitCode()))
	}

	shell := repl.New(engine, prog.Labels, os.Stdin, os.Stdout)
	code := shell.Run()
	if *verbose {
		report(engine)
	}
	os.Exit(int(code))
}

// runInorder executes the program on the reference interpreter.
func runInorder(prog *loader.Program) int32 {
	emulator := emu.NewEmulator(prog.Text, prog.Memory, prog.Entry,
		emu.WithStdin(os.Stdin),
		emu.WithStackPointer(prog.InitialSP),
	)
	code := emulator.Run(nil)
	if *verbose {
		fmt.Printf("\nInstructions executed: %d\n", emulator.InstructionCount())
	}
	return code
}

// report prints engine statistics.
func report(engine *core.Engine) {
	if !*verbose {
		return
	}
	stats := engine.Stats()
	fmt.Printf("\nCycles: %d\n", stats.Cycles)
	fmt.Printf("Retired: %d\n", stats.Retired)
	fmt.Printf("Flushes: %d (%d mispredicts, %d memory-order)\n",
		stats.Flushes, stats.BranchMispredicts, stats.MemOrderViolations)
	if err := engine.FaultError(); err != nil {
		fmt.Printf("Fault: %v\n", err)
	}
}
