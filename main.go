// Package main provides a pointer to rvreplay's real entry point.
// rvreplay is a RISC-V trace-replay debug target speaking GDB RSP.
//
// For the full CLI, use: go run ./cmd/rvreplay
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("rvreplay - RISC-V trace-replay debug target")
	fmt.Println("")
	fmt.Println("Usage: rvreplay --elf <path> --ibex-trace <path> [options]")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  --elf <path>                required: ELF to load")
	fmt.Println("  --ibex-trace <path>         Ibex dialect trace file")
	fmt.Println("  --cheriot-ibex-trace <path> CHERIoT-Ibex dialect trace file")
	fmt.Println("  --listen <host:port>        TCP listen address (default 127.0.0.1:9001)")
	fmt.Println("  --uds <path>                Unix-domain socket path instead of TCP")
	fmt.Println("  --assume-access-size <n>    override missing memory-write sizes")
	fmt.Println("  --surfer <path>             enable wave-cursor adapter")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/rvreplay' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/rvreplay' instead.")
	}
}
