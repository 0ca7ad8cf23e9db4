// Package main provides the entry point for TEEM.
// TEEM is an educational RISC-V emulator with transient execution.
//
// For the full CLI, use: go run ./cmd/teem
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("TEEM - Transient Execution Educational Machine")
	fmt.Println("")
	fmt.Println("Usage: teem [options] <program.s>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config    Path to YAML configuration file")
	fmt.Println("  -run       Run to completion without the REPL")
	fmt.Println("  -inorder   Use the in-order reference interpreter")
	fmt.Println("  -v         Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/teem' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/teem' instead.")
	}
}
