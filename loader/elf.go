// Package loader provides ELF binary loading for RISC-V targets.
package loader

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// SegmentFlags represents memory protection flags for a segment.
type SegmentFlags uint32

const (
	// SegmentFlagExecute indicates the segment is executable.
	SegmentFlagExecute SegmentFlags = 1 << iota
	// SegmentFlagWrite indicates the segment is writable.
	SegmentFlagWrite
	// SegmentFlagRead indicates the segment is readable.
	SegmentFlagRead
)

// Segment represents a loadable segment from an ELF binary.
type Segment struct {
	// VirtAddr is the virtual address where this segment should be loaded.
	VirtAddr uint64
	// Data contains the segment contents from the file.
	Data []byte
	// MemSize is the size in memory (may be larger than len(Data) for BSS).
	MemSize uint64
	// Flags contains the segment protection flags.
	Flags SegmentFlags
}

// Program represents a loaded ELF program ready for replay.
//
// Unlike a live loader, this one has no stack convention of its own: the
// replayed hart's stack pointer (x2) is just another general-purpose
// register, and its initial value comes from the trace's register
// defaults (zero) or the first delta that writes it, not from this loader.
type Program struct {
	// EntryPoint is the virtual address of the hart's initial PC.
	EntryPoint uint64
	// Segments contains all loadable segments from the ELF file.
	Segments []Segment
	// CHERI is true when the ELF's e_flags indicate a CHERIoT-Ibex
	// capability image rather than a plain 32-bit RISC-V one.
	CHERI bool
}

// Load parses a RISC-V ELF binary and returns a Program struct ready for
// loading into the hart's initial memory image.
func Load(path string) (*Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if f.Class != elf.ELFCLASS32 {
		return nil, fmt.Errorf("not a 32-bit ELF file (class: %v)", f.Class)
	}

	if f.Machine != elf.EM_RISCV {
		return nil, fmt.Errorf("not a RISC-V ELF file (machine type: %v)", f.Machine)
	}

	eFlags, err := readELFFlags(path, f.ByteOrder)
	if err != nil {
		return nil, fmt.Errorf("failed to read ELF flags: %w", err)
	}

	prog := &Program{
		EntryPoint: f.Entry,
		CHERI:      eFlags&riscvCheriABIFlag != 0,
	}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}

		data := make([]byte, phdr.Filesz)
		if phdr.Filesz > 0 {
			n, err := phdr.ReadAt(data, 0)
			if err != nil && err != io.EOF {
				return nil, fmt.Errorf("failed to read segment at 0x%x: %w", phdr.Vaddr, err)
			}
			if uint64(n) != phdr.Filesz {
				return nil, fmt.Errorf("short read for segment at 0x%x: got %d bytes, expected %d",
					phdr.Vaddr, n, phdr.Filesz)
			}
		}

		var flags SegmentFlags
		if phdr.Flags&elf.PF_X != 0 {
			flags |= SegmentFlagExecute
		}
		if phdr.Flags&elf.PF_W != 0 {
			flags |= SegmentFlagWrite
		}
		if phdr.Flags&elf.PF_R != 0 {
			flags |= SegmentFlagRead
		}

		prog.Segments = append(prog.Segments, Segment{
			VirtAddr: phdr.Vaddr,
			Data:     data,
			MemSize:  phdr.Memsz,
			Flags:    flags,
		})
	}

	return prog, nil
}

// riscvCheriABIFlag is the e_flags bit toolchains use to mark a RISC-V
// ELF as targeting a capability (CHERIoT) ABI. Treated as an opaque hint:
// this loader never interprets capability values, only whether the
// capability register dialect should be expected.
const riscvCheriABIFlag = 0x1000

// readELFFlags reads the e_flags field of a 32-bit ELF header directly,
// since debug/elf does not expose it through *elf.File.
func readELFFlags(path string, order binary.ByteOrder) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	// e_flags sits at offset 36 in the 32-bit ELF header.
	var buf [4]byte
	if _, err := f.ReadAt(buf[:], 36); err != nil {
		return 0, err
	}

	return order.Uint32(buf[:]), nil
}
