// Package replay drives the hart's cycle cursor forward and backward
// through an ingested trace, evaluating breakpoint and watchpoint stop
// conditions along the way.
package replay

import (
	"sync/atomic"

	"github.com/ibexdbg/rvreplay/hart"
	"github.com/ibexdbg/rvreplay/memory"
	"github.com/ibexdbg/rvreplay/regfile"
	"github.com/ibexdbg/rvreplay/tracefmt"
)

// StopReason classifies why a continue_* call returned.
type StopReason int

const (
	// StopHalted means the cursor ran off the end (forward) or start
	// (backward) of the trace without any condition firing.
	StopHalted StopReason = iota
	StopBreakpoint
	StopWatchWrite
	StopWatchRead
	// StopInterrupt means an out-of-band interrupt was observed between
	// cycles; only produced by ContinueForward/ContinueBackward.
	StopInterrupt
)

// StopResult is the outcome of a continue_* call.
type StopResult struct {
	Reason StopReason
	Cycle  uint64
	// Addr is the triggering address for watchpoint stops.
	Addr uint64
}

// Watchpoint is an address range [Addr, Addr+Len).
type Watchpoint struct {
	Addr uint64
	Len  uint64
}

func (w Watchpoint) contains(addr uint64, size int) bool {
	end := addr + uint64(size)
	return addr < w.Addr+w.Len && end > w.Addr
}

// StopSet is the breakpoint/watchpoint table consulted by continue_*.
// ReadWatch is always empty in this build: the RSP server refuses to
// insert read watchpoints since recovering a load's address without
// decoding the instruction at that PC is not possible (see package rsp).
// It is kept here so the tie-break order stays expressible if a decoder
// is ever added.
type StopSet struct {
	Breakpoints []uint64
	WriteWatch  []Watchpoint
	ReadWatch   []Watchpoint
}

func (s StopSet) hasBreakpoint(pc uint64) bool {
	for _, bp := range s.Breakpoints {
		if bp == pc {
			return true
		}
	}
	return false
}

func (s StopSet) matchWriteWatch(mw tracefmt.MemWrite) (uint64, bool) {
	for _, w := range s.WriteWatch {
		if w.contains(mw.Addr, mw.Size) {
			return mw.Addr, true
		}
	}
	return 0, false
}

// Engine owns the hart and the materialized delta log, and exposes the
// forward/backward step and continue operations.
type Engine struct {
	Hart   *hart.Hart
	deltas []tracefmt.Delta // index i holds the delta for cycle i+1

	// Interrupt is polled by ContinueForward/ContinueBackward between
	// cycles, mirroring the single atomic flag the RSP server sets from
	// its interrupt-detection task.
	Interrupt atomic.Bool
}

// NewEngine ingests deltas into regs and mem (recording every write at
// its delta's cycle) and returns an Engine whose hart starts at cycle 0.
func NewEngine(regs *regfile.File, mem *memory.Store, deltas []tracefmt.Delta) *Engine {
	for _, d := range deltas {
		for _, rw := range d.RegWrites {
			var cap *regfile.CapMeta
			if rw.HasCap {
				cap = &regfile.CapMeta{Tag: rw.Tag, Bounds: rw.Bounds}
			}
			regs.Write(d.Cycle, rw.Reg, rw.Value, cap)
		}
		for _, mw := range d.MemWrites {
			mem.Write(d.Cycle, mw.Addr, mw.Bytes)
		}
		regs.Write(d.Cycle, regfile.PC, d.PC, nil)
	}

	total := uint64(len(deltas))
	return &Engine{Hart: hart.New(regs, mem, total), deltas: deltas}
}

func (e *Engine) deltaAt(cycle uint64) (tracefmt.Delta, bool) {
	if cycle == 0 || cycle > uint64(len(e.deltas)) {
		return tracefmt.Delta{}, false
	}
	return e.deltas[cycle-1], true
}

// RawCycleAt returns the trace file's own cycle/time column for the
// delta at the given ordinal cycle, or 0 at cycle 0 (before any delta).
// This is what the wave-cursor adapter is driven with, since a waveform
// viewer indexes by hardware cycles, not instruction ordinals.
func (e *Engine) RawCycleAt(cycle uint64) uint64 {
	d, ok := e.deltaAt(cycle)
	if !ok {
		return 0
	}
	return d.RawCycle
}

// StepForward advances the cursor by n cycles, clamped to total, and
// returns the new cursor. Reads at the new cursor see writes up through
// it purely because the register file and memory store are already
// versioned over the whole trace — no per-step mutation is needed.
func (e *Engine) StepForward(n uint64) uint64 {
	target := e.Hart.CurrentCycle() + n
	if target > e.Hart.TotalCycles() {
		target = e.Hart.TotalCycles()
	}
	e.Hart.SetCursor(target)
	return target
}

// StepBackward rewinds the cursor by n cycles, clamped to 0.
func (e *Engine) StepBackward(n uint64) uint64 {
	cur := e.Hart.CurrentCycle()
	var target uint64
	if n <= cur {
		target = cur - n
	}
	e.Hart.SetCursor(target)
	return target
}

// evaluateStop checks the conditions at cycle in tie-break priority
// order: PC breakpoint, write-watchpoint, read-watchpoint.
func (e *Engine) evaluateStop(stops StopSet, cycle uint64) (StopResult, bool) {
	d, ok := e.deltaAt(cycle)
	if !ok {
		return StopResult{}, false
	}

	if stops.hasBreakpoint(d.PC) {
		return StopResult{Reason: StopBreakpoint, Cycle: cycle}, true
	}

	for _, mw := range d.MemWrites {
		if addr, hit := stops.matchWriteWatch(mw); hit {
			return StopResult{Reason: StopWatchWrite, Cycle: cycle, Addr: addr}, true
		}
	}

	return StopResult{}, false
}

// ContinueForward advances cycle-by-cycle, checking Interrupt and every
// stop condition after each delta, until a condition fires or the trace
// is exhausted.
func (e *Engine) ContinueForward(stops StopSet) StopResult {
	total := e.Hart.TotalCycles()

	for c := e.Hart.CurrentCycle() + 1; c <= total; c++ {
		if e.Interrupt.Load() {
			e.Hart.SetCursor(c - 1)
			return StopResult{Reason: StopInterrupt, Cycle: c - 1}
		}

		e.Hart.SetCursor(c)

		if res, stopped := e.evaluateStop(stops, c); stopped {
			return res
		}
	}

	return StopResult{Reason: StopHalted, Cycle: total}
}

// ContinueBackward is the symmetric reverse of ContinueForward: at each
// cursor position c it checks the delta that produced the currently
// visible state (the delta at c) against the stop conditions before
// undoing it by moving the cursor to c-1. A hit leaves the cursor at c,
// so a breakpoint stop reads back exactly the PC that matched — the
// same invariant ContinueForward keeps by setting the cursor before
// evaluating.
func (e *Engine) ContinueBackward(stops StopSet) StopResult {
	for c := e.Hart.CurrentCycle(); c > 0; c-- {
		if e.Interrupt.Load() {
			e.Hart.SetCursor(c)
			return StopResult{Reason: StopInterrupt, Cycle: c}
		}

		if res, stopped := e.evaluateStop(stops, c); stopped {
			e.Hart.SetCursor(c)
			return res
		}

		e.Hart.SetCursor(c - 1)
	}

	return StopResult{Reason: StopHalted, Cycle: 0}
}
