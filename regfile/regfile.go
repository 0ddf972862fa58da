// Package regfile provides a cycle-versioned RISC-V register file.
//
// Unlike a live emulator's register file, every write is retained rather
// than overwritten: a register's value at an arbitrary past cycle can be
// recovered without replaying anything, which is what makes reverse
// execution and arbitrary-cycle inspection cheap (see the memory package
// for the byte-addressable counterpart of the same idea).
package regfile

import "sort"

// NumGPR is the number of general-purpose registers (x0..x31).
const NumGPR = 32

// PC is the pseudo register slot index used for the program counter.
const PC = NumGPR

// numSlots is the total number of versioned slots: 32 GPRs plus PC.
const numSlots = NumGPR + 1

// CapMeta holds CHERI capability metadata attached to a register write,
// verbatim and uninterpreted: a validity tag plus an opaque encoded
// bounds/permissions blob. The core never decodes either field.
type CapMeta struct {
	Tag    bool
	Bounds uint64
}

type write struct {
	cycle  uint64
	value  uint64
	cap    CapMeta
	hasCap bool
}

// File is a cycle-versioned register file for one hart.
type File struct {
	cheri   bool
	initial [numSlots]uint64
	writes  [numSlots][]write
}

// New creates an empty register file. cheri selects whether capability
// metadata is expected on writes (purely informational bookkeeping; the
// storage itself is dialect-agnostic).
func New(cheri bool) *File {
	return &File{cheri: cheri}
}

// CHERI reports whether this file was created in capability mode.
func (f *File) CHERI() bool { return f.cheri }

// SetInitialPC sets the register file's cycle-0 PC value, i.e. the ELF
// entry point. Must be called before any writes are recorded.
func (f *File) SetInitialPC(pc uint64) {
	f.initial[PC] = pc
}

// Write records a write to reg at the given cycle. reg must be in
// [1, NumGPR-1] or PC; writes to x0 are silently dropped, matching RISC-V
// convention and the trace grammar (which never emits x0= writes).
func (f *File) Write(cycle uint64, reg int, value uint64, cap *CapMeta) {
	if reg == 0 {
		return
	}
	if reg < 0 || reg > PC {
		return
	}

	w := write{cycle: cycle, value: value}
	if cap != nil {
		w.cap = *cap
		w.hasCap = true
	}

	slot := &f.writes[reg]
	// Deltas are ingested in strictly increasing cycle order, so writes
	// to any one slot arrive already sorted; no insertion search needed.
	*slot = append(*slot, w)
}

// Read returns reg's value as of cycle: the value from the
// highest-cycle write with cycle <= the query cycle, or the initial
// value (0, except PC) if there is none.
func (f *File) Read(reg int, cycle uint64) uint64 {
	v, _ := f.ReadCap(reg, cycle)
	return v
}

// ReadCap is like Read but also returns the capability metadata attached
// to the resolving write, if any (nil when the write carried none, or
// when resolving to the initial value).
func (f *File) ReadCap(reg int, cycle uint64) (uint64, *CapMeta) {
	if reg == 0 {
		return 0, nil
	}
	if reg < 0 || reg > PC {
		return 0, nil
	}

	writes := f.writes[reg]
	idx := sort.Search(len(writes), func(i int) bool {
		return writes[i].cycle > cycle
	})
	if idx == 0 {
		return f.initial[reg], nil
	}

	w := writes[idx-1]
	if w.hasCap {
		cap := w.cap
		return w.value, &cap
	}
	return w.value, nil
}
