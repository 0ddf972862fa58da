package rsp

import (
	"errors"

	"github.com/ibexdbg/rvreplay/replay"
)

// Breakpoint/watchpoint kinds as defined by the Z/z packets.
const (
	KindSoftwareBreakpoint = 0
	KindHardwareBreakpoint = 1
	KindWriteWatchpoint    = 2
	KindReadWatchpoint     = 3
	KindAccessWatchpoint   = 4
)

// ErrUnsupportedWatchpoint is returned for read and access watchpoint
// insertions: recovering a load's address from the trace would require
// decoding the instruction at that PC, which this build does not do.
var ErrUnsupportedWatchpoint = errors.New("read watchpoints are not supported")

type breakpointEntry struct {
	addr uint64
}

type watchEntry struct {
	addr uint64
	len  uint64
}

// Table is the server's Z/z insert/remove table, keyed by (kind, addr,
// length). Software and hardware breakpoints (kinds 0 and 1) are kept
// in the same list: the trace never distinguishes how a stop occurred.
type Table struct {
	breakpoints []breakpointEntry
	writeWatch  []watchEntry
}

// NewTable returns an empty breakpoint/watchpoint table.
func NewTable() *Table { return &Table{} }

// Insert adds an entry of the given kind. It returns
// ErrUnsupportedWatchpoint for kinds 3 and 4.
func (t *Table) Insert(kind int, addr, length uint64) error {
	switch kind {
	case KindSoftwareBreakpoint, KindHardwareBreakpoint:
		t.breakpoints = append(t.breakpoints, breakpointEntry{addr: addr})
		return nil
	case KindWriteWatchpoint:
		t.writeWatch = append(t.writeWatch, watchEntry{addr: addr, len: length})
		return nil
	case KindReadWatchpoint, KindAccessWatchpoint:
		return ErrUnsupportedWatchpoint
	default:
		return errors.New("unknown breakpoint/watchpoint kind")
	}
}

// Remove deletes a previously inserted entry of the given kind. It is a
// no-op if no matching entry exists.
func (t *Table) Remove(kind int, addr, length uint64) error {
	switch kind {
	case KindSoftwareBreakpoint, KindHardwareBreakpoint:
		for i, bp := range t.breakpoints {
			if bp.addr == addr {
				t.breakpoints = append(t.breakpoints[:i], t.breakpoints[i+1:]...)
				return nil
			}
		}
		return nil
	case KindWriteWatchpoint:
		for i, w := range t.writeWatch {
			if w.addr == addr && w.len == length {
				t.writeWatch = append(t.writeWatch[:i], t.writeWatch[i+1:]...)
				return nil
			}
		}
		return nil
	case KindReadWatchpoint, KindAccessWatchpoint:
		return ErrUnsupportedWatchpoint
	default:
		return errors.New("unknown breakpoint/watchpoint kind")
	}
}

// StopSet materializes the table into the form the replay engine
// consumes. ReadWatch is always empty (see replay.StopSet).
func (t *Table) StopSet() replay.StopSet {
	ss := replay.StopSet{}
	for _, bp := range t.breakpoints {
		ss.Breakpoints = append(ss.Breakpoints, bp.addr)
	}
	for _, w := range t.writeWatch {
		ss.WriteWatch = append(ss.WriteWatch, replay.Watchpoint{Addr: w.addr, Len: w.len})
	}
	return ss
}
