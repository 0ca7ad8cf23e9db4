// Package repl provides the interactive driver for the TEEM engine.
//
// The REPL is a thin cooperative shell: it only ever calls StepCycle
// between cycles and reads engine snapshots, so the machine stays
// deterministic no matter how the user steps it.
package repl

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/teem-cpu/teem/insts"
	"github.com/teem-cpu/teem/timing/core"
)

// REPL drives an engine from a command stream.
type REPL struct {
	engine *core.Engine
	labels map[string]uint32
	in     *bufio.Scanner
	out    io.Writer
}

// New creates a REPL over an engine. labels resolves break targets.
func New(engine *core.Engine, labels map[string]uint32, in io.Reader, out io.Writer) *REPL {
	return &REPL{
		engine: engine,
		labels: labels,
		in:     bufio.NewScanner(in),
		out:    out,
	}
}

// Run reads commands until quit or guest exit. Returns the guest exit
// code (0 on quit before exit).
func (r *REPL) Run() int32 {
	fmt.Fprintln(r.out, "teem: step [N], continue, break <addr|label>, print <reg|mem addr [len]>, show <cache|rob|lsq|predictor>, quit")

	for {
		fmt.Fprintf(r.out, "(teem) ")
		if !r.in.Scan() {
			return r.exitCode()
		}
		fields := strings.Fields(r.in.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "step", "s":
			n := uint64(1)
			if len(fields) > 1 {
				v, err := strconv.ParseUint(fields[1], 0, 64)
				if err != nil {
					fmt.Fprintf(r.out, "bad count %q\n", fields[1])
					continue
				}
				n = v
			}
			r.engine.Resume()
			for i := uint64(0); i < n && !r.engine.Halted() && !r.engine.Paused(); i++ {
				r.engine.StepCycle()
			}
			r.status()

		case "continue", "c":
			r.engine.Resume()
			r.engine.Run(0)
			r.status()

		case "break", "b":
			if len(fields) < 2 {
				fmt.Fprintln(r.out, "break needs an address or label")
				continue
			}
			addr, ok := r.resolve(fields[1])
			if !ok {
				fmt.Fprintf(r.out, "unknown location %q\n", fields[1])
				continue
			}
			r.engine.AddBreakpoint(addr)
			fmt.Fprintf(r.out, "breakpoint at 0x%x\n", addr)

		case "print", "p":
			r.print(fields[1:])

		case "show":
			if len(fields) < 2 {
				fmt.Fprintln(r.out, "show what? cache, rob, lsq, predictor")
				continue
			}
			r.show(fields[1])

		case "quit", "q":
			return r.exitCode()

		default:
			fmt.Fprintf(r.out, "unknown command %q\n", fields[0])
		}

		if r.engine.Halted() {
			return r.exitCode()
		}
	}
}

// exitCode mirrors the guest's exit status.
func (r *REPL) exitCode() int32 {
	if r.engine.Halted() {
		return r.engine.ExitCode()
	}
	return 0
}

// resolve turns an address literal or label into an address.
func (r *REPL) resolve(s string) (uint32, bool) {
	if v, err := strconv.ParseUint(s, 0, 32); err == nil {
		return uint32(v), true
	}
	addr, ok := r.labels[s]
	return addr, ok
}

// status prints a one-line machine summary.
func (r *REPL) status() {
	switch {
	case r.engine.Halted():
		if err := r.engine.FaultError(); err != nil {
			fmt.Fprintf(r.out, "halted: %v\n", err)
		} else {
			fmt.Fprintf(r.out, "exited with status %d after %d cycles\n",
				r.engine.ExitCode(), r.engine.Cycle())
		}
	case r.engine.Paused():
		fmt.Fprintf(r.out, "paused: %s (cycle %d)\n", r.engine.PauseReason(), r.engine.Cycle())
	default:
		fmt.Fprintf(r.out, "cycle %d, pc=0x%x\n", r.engine.Cycle(), r.engine.RegFile().PC)
	}
}

// print handles "print <reg>" and "print mem <addr> [len]".
func (r *REPL) print(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(r.out, "print what?")
		return
	}

	if args[0] == "mem" {
		if len(args) < 2 {
			fmt.Fprintln(r.out, "print mem <addr> [len]")
			return
		}
		addr, ok := r.resolve(args[1])
		if !ok {
			fmt.Fprintf(r.out, "unknown location %q\n", args[1])
			return
		}
		length := uint32(4)
		if len(args) > 2 {
			if v, err := strconv.ParseUint(args[2], 0, 32); err == nil {
				length = uint32(v)
			}
		}
		mem := r.engine.Memory()
		for i := uint32(0); i < length; i++ {
			if i%16 == 0 {
				if i > 0 {
					fmt.Fprintln(r.out)
				}
				fmt.Fprintf(r.out, "0x%08x:", addr+i)
			}
			fmt.Fprintf(r.out, " %02x", mem.Read8(addr+i))
		}
		fmt.Fprintln(r.out)
		return
	}

	if args[0] == "pc" {
		fmt.Fprintf(r.out, "pc = 0x%x\n", r.engine.RegFile().PC)
		return
	}

	reg, ok := insts.ParseReg(args[0])
	if !ok {
		fmt.Fprintf(r.out, "unknown register %q\n", args[0])
		return
	}
	v := r.engine.RegFile().ReadReg(reg)
	fmt.Fprintf(r.out, "%s = 0x%x (%d)\n", insts.RegName(reg), v, int32(v))
}

// show renders one engine structure from a snapshot.
func (r *REPL) show(what string) {
	s := r.engine.Snapshot()

	switch what {
	case "cache":
		stats := s.CacheStats
		fmt.Fprintf(r.out, "cache: %d lines resident; reads=%d writes=%d hits=%d misses=%d\n",
			len(s.CacheLines), stats.Reads, stats.Writes, stats.Hits, stats.Misses)
		for _, line := range s.CacheLines {
			fmt.Fprintf(r.out, "  set %2d way %d: 0x%08x\n", line.Set, line.Way, line.Tag)
		}

	case "rob":
		fmt.Fprintf(r.out, "rob: %d in flight\n", len(s.ROB))
		for _, v := range s.ROB {
			flags := " "
			if v.Executed {
				flags = "X"
			}
			spec := " "
			if v.Speculative {
				spec = "?"
			}
			fmt.Fprintf(r.out, "  [%4d]%s%s 0x%08x  %s", v.Seq, flags, spec, v.PC, v.Disasm)
			if v.Fault != "" {
				fmt.Fprintf(r.out, "  !%s", v.Fault)
			}
			fmt.Fprintln(r.out)
		}

	case "lsq":
		fmt.Fprintf(r.out, "lsq: %d entries\n", len(s.LSQ))
		for _, v := range s.LSQ {
			kind := "load "
			if v.Store {
				kind = "store"
			}
			addr := "?"
			if v.AddrKnown {
				addr = fmt.Sprintf("0x%08x", v.Addr)
			}
			fmt.Fprintf(r.out, "  [%4d] %s %s/%d", v.Seq, kind, addr, v.Size)
			if v.Store && v.ValueKnown {
				fmt.Fprintf(r.out, " = 0x%x", v.Value)
			}
			if v.ForwardedFrom != 0 {
				fmt.Fprintf(r.out, " (forwarded from %d)", v.ForwardedFrom)
			}
			if v.Bypassed {
				fmt.Fprintf(r.out, " (bypassed unknown store)")
			}
			fmt.Fprintln(r.out)
		}

	case "predictor":
		p := s.Predictor
		fmt.Fprintf(r.out, "predictor: %d predictions, %.1f%% accurate, %d BTB hits, %d BTB misses\n",
			p.Predictions, p.Accuracy(), p.BTBHits, p.BTBMisses)
		fmt.Fprintf(r.out, "ras: %v\n", s.RAS)
		if s.LastFlush.Reason != "" {
			fmt.Fprintf(r.out, "last flush: %s at cycle %d (redirect 0x%x)\n",
				s.LastFlush.Reason, s.LastFlush.Cycle, s.LastFlush.PC)
		}

	default:
		fmt.Fprintf(r.out, "unknown structure %q\n", what)
	}
}
