// Package hart composes the memory model and register file into the
// read-only, cycle-indexed view of machine state that the replay engine
// advances and the RSP server queries.
package hart

import (
	"github.com/ibexdbg/rvreplay/memory"
	"github.com/ibexdbg/rvreplay/regfile"
)

// Hart is the aggregate machine state: a register file and a memory
// store, plus the cursor and trace length the replay engine maintains.
// Every query method is read-only and referentially transparent in the
// cycle argument it's given — only CurrentCycle/SetCursor depend on
// mutable state, and that state is owned exclusively by whoever drives
// the engine.
type Hart struct {
	Regs *regfile.File
	Mem  *memory.Store

	cursor uint64
	total  uint64
}

// New creates a Hart over regs and mem, with total recorded as the
// highest cycle number the trace will ever reach.
func New(regs *regfile.File, mem *memory.Store, total uint64) *Hart {
	return &Hart{Regs: regs, Mem: mem, total: total}
}

// ReadReg returns the value of reg as of the hart's current cycle.
func (h *Hart) ReadReg(reg int) uint64 {
	return h.Regs.Read(reg, h.cursor)
}

// ReadRegAt returns the value of reg as of cycle, independent of the
// hart's current cursor.
func (h *Hart) ReadRegAt(reg int, cycle uint64) uint64 {
	return h.Regs.Read(reg, cycle)
}

// ReadRegCapAt returns the value and, if present, capability metadata
// of reg as of cycle.
func (h *Hart) ReadRegCapAt(reg int, cycle uint64) (uint64, *regfile.CapMeta) {
	return h.Regs.ReadCap(reg, cycle)
}

// PC returns the program counter as of the hart's current cycle.
func (h *Hart) PC() uint64 {
	return h.Regs.Read(regfile.PC, h.cursor)
}

// ReadMem returns size bytes at addr as of the hart's current cycle.
func (h *Hart) ReadMem(addr uint64, size int) ([]byte, error) {
	return h.Mem.Read(addr, size, h.cursor)
}

// ReadMemAt returns size bytes at addr as of cycle, independent of the
// hart's current cursor.
func (h *Hart) ReadMemAt(addr uint64, size int, cycle uint64) ([]byte, error) {
	return h.Mem.Read(addr, size, cycle)
}

// CurrentCycle returns the hart's current cursor.
func (h *Hart) CurrentCycle() uint64 {
	return h.cursor
}

// TotalCycles returns the highest cycle number reachable in this trace.
func (h *Hart) TotalCycles() uint64 {
	return h.total
}

// SetCursor moves the hart's current cycle cursor. It performs no
// validation beyond clamping into [0, total]; callers (the replay
// engine) are responsible for applying deltas in the right order before
// exposing a new cursor value to queries.
func (h *Hart) SetCursor(cycle uint64) {
	switch {
	case cycle > h.total:
		h.cursor = h.total
	default:
		h.cursor = cycle
	}
}
