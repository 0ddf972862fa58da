// Package main provides the entry point for rvreplay.
// rvreplay is a RISC-V trace-replay debug target: it impersonates a hart
// over the GDB Remote Serial Protocol, answering a debugger's register
// and memory queries against a pre-recorded instruction trace rather
// than executing anything.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ibexdbg/rvreplay/loader"
	"github.com/ibexdbg/rvreplay/memory"
	"github.com/ibexdbg/rvreplay/regfile"
	"github.com/ibexdbg/rvreplay/replay"
	"github.com/ibexdbg/rvreplay/rsp"
	"github.com/ibexdbg/rvreplay/surfer"
	"github.com/ibexdbg/rvreplay/tracefmt"
)

const (
	exitOK            = 0
	exitBadArgs       = 1
	exitELFFailure    = 2
	exitTraceFailure  = 3
	exitSocketFailure = 4
)

var (
	elfPath          = flag.String("elf", "", "ELF binary to load (required)")
	ibexTracePath    = flag.String("ibex-trace", "", "Ibex dialect instruction trace")
	cheriotTrace     = flag.String("cheriot-ibex-trace", "", "CHERIoT-Ibex dialect instruction trace")
	listenAddr       = flag.String("listen", "127.0.0.1:9001", "TCP address to listen on")
	udsPath          = flag.String("uds", "", "Unix-domain socket path to listen on instead of --listen")
	assumeAccessSize = flag.Int("assume-access-size", 0, "assume this byte count for memory writes with no declared size")
	surferPath       = flag.String("surfer", "", "path to a waveform-viewer cursor file to drive")
	verbose          = flag.Bool("v", false, "verbose logging")
)

func main() {
	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	entry := logrus.NewEntry(log)

	tracePath, dialect, err := resolveTraceFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "rvreplay: %v\n", err)
		flag.Usage()
		os.Exit(exitBadArgs)
	}
	if *elfPath == "" {
		fmt.Fprintln(os.Stderr, "rvreplay: --elf is required")
		flag.Usage()
		os.Exit(exitBadArgs)
	}

	prog, err := loader.Load(*elfPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rvreplay: loading ELF: %v\n", err)
		os.Exit(exitELFFailure)
	}
	if *verbose {
		fmt.Printf("loaded %s: entry 0x%x, %d segment(s)\n",
			*elfPath, prog.EntryPoint, len(prog.Segments))
	}

	// The trace dialect is the single source of truth for CHERI mode:
	// it is what determines whether register writes carry capability
	// metadata, which is what regfile records. The ELF's own e_flags
	// CHERI bit is cross-checked only as a
	// diagnostic, since a mismatched binary/trace pairing is almost
	// always a mistake on the caller's part.
	cheri := dialect == tracefmt.DialectCHERIoTIbex
	if prog.CHERI != cheri {
		entry.WithFields(logrus.Fields{
			"elf_cheri": prog.CHERI, "trace_cheri": cheri,
		}).Warn("ELF CHERI flag and trace dialect disagree; trace dialect governs")
	}

	image := memory.NewImage()
	for _, seg := range prog.Segments {
		image.AddSegment(seg.VirtAddr, seg.Data)
	}
	mem := memory.NewStore(image)

	regs := regfile.New(cheri)
	regs.SetInitialPC(prog.EntryPoint)

	deltas, err := tracefmt.Parse(tracePath, tracefmt.Options{
		Dialect:          dialect,
		AssumeAccessSize: *assumeAccessSize,
		Log:              entry,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "rvreplay: parsing trace: %v\n", err)
		os.Exit(exitTraceFailure)
	}
	if *verbose {
		fmt.Printf("ingested %s: %d cycles, dialect %s\n", tracePath, len(deltas), dialect)
	}

	engine := replay.NewEngine(regs, mem, deltas)

	adapter, err := resolveAdapter()
	if err != nil {
		fmt.Fprintf(os.Stderr, "rvreplay: %v\n", err)
		os.Exit(exitBadArgs)
	}

	server := rsp.NewServer(engine, adapter, entry)

	ln, err := listen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "rvreplay: binding listener: %v\n", err)
		os.Exit(exitSocketFailure)
	}
	defer ln.Close()

	if *verbose {
		fmt.Printf("listening on %s\n", ln.Addr())
	}

	if err := server.Serve(ln); err != nil {
		fmt.Fprintf(os.Stderr, "rvreplay: %v\n", err)
		os.Exit(exitSocketFailure)
	}

	os.Exit(exitOK)
}

// resolveTraceFlags validates that exactly one of --ibex-trace /
// --cheriot-ibex-trace was given and returns its path and dialect.
func resolveTraceFlags() (path string, dialect tracefmt.Dialect, err error) {
	switch {
	case *ibexTracePath != "" && *cheriotTrace != "":
		return "", 0, fmt.Errorf("only one of --ibex-trace or --cheriot-ibex-trace may be given")
	case *ibexTracePath != "":
		return *ibexTracePath, tracefmt.DialectIbex, nil
	case *cheriotTrace != "":
		return *cheriotTrace, tracefmt.DialectCHERIoTIbex, nil
	default:
		return "", 0, fmt.Errorf("one of --ibex-trace or --cheriot-ibex-trace is required")
	}
}

func resolveAdapter() (surfer.Adapter, error) {
	if *surferPath == "" {
		return surfer.NullAdapter{}, nil
	}
	return surfer.NewFileAdapter(*surferPath)
}

func listen() (net.Listener, error) {
	if *udsPath != "" {
		return net.Listen("unix", *udsPath)
	}
	return net.Listen("tcp", *listenAddr)
}
