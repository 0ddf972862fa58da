// Package rsp implements a GDB Remote Serial Protocol server over the
// replay engine: framing and checksums (Transport), the breakpoint and
// watchpoint table, target description XML, and the packet dispatch
// loop itself.
package rsp

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ibexdbg/rvreplay/regfile"
	"github.com/ibexdbg/rvreplay/replay"
	"github.com/ibexdbg/rvreplay/surfer"
)

// Server dispatches RSP packets against a replay.Engine. One Server
// instance owns the engine exclusively and serves one connection at a
// time; on disconnect it loops back to accepting a fresh one rather
// than exiting.
type Server struct {
	engine  *replay.Engine
	table   *Table
	adapter surfer.Adapter
	log     *logrus.Entry

	lastStop replay.StopResult
}

// NewServer creates a Server over engine. adapter may be nil, in which
// case surfer.NullAdapter is used.
func NewServer(engine *replay.Engine, adapter surfer.Adapter, log *logrus.Entry) *Server {
	if adapter == nil {
		adapter = surfer.NullAdapter{}
	}
	return &Server{
		engine:  engine,
		table:   NewTable(),
		adapter: adapter,
		log:     log,
	}
}

// Serve accepts connections on ln, one at a time, forever (or until ln
// is closed).
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		s.log.WithField("remote", conn.RemoteAddr()).Info("debugger connected")
		s.handleConn(conn)
		s.log.Info("debugger disconnected, awaiting a new connection")
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	t := NewTransport(conn, s.log)

	for {
		pkt, err := t.ReadPacket()
		if err != nil {
			s.log.WithError(err).Debug("connection closed")
			return
		}

		detach, err := s.dispatch(t, pkt)
		if err != nil {
			s.log.WithError(err).WithField("packet", pkt).Debug("packet handling error")
		}
		if detach {
			return
		}
	}
}

// dispatch handles one packet. It returns detach=true when the
// connection should be torn down (D or k).
func (s *Server) dispatch(t *Transport, pkt string) (detach bool, err error) {
	switch {
	case pkt == "":
		return false, t.WritePacket("")

	case pkt == "?":
		return false, t.WritePacket(s.stopReply())

	case strings.HasPrefix(pkt, "qSupported"):
		return false, t.WritePacket("PacketSize=4000;swbreak+;hwbreak+;ReverseContinue+;ReverseStep+")

	case pkt == "QStartNoAckMode":
		t.DisableAck()
		return false, t.WritePacket("OK")

	case pkt == "qC":
		return false, t.WritePacket("QC1")

	case pkt == "qAttached":
		return false, t.WritePacket("1")

	case pkt == "qfThreadInfo":
		return false, t.WritePacket("m1")
	case pkt == "qsThreadInfo":
		return false, t.WritePacket("l")

	case strings.HasPrefix(pkt, "qXfer:features:read:target.xml:"):
		return false, s.sendTargetXML(t, pkt)

	case pkt == "g":
		return false, t.WritePacket(s.readAllRegisters())
	case strings.HasPrefix(pkt, "G"):
		return false, t.WritePacket("E01")

	case strings.HasPrefix(pkt, "p"):
		return false, s.readRegister(t, pkt[1:])
	case strings.HasPrefix(pkt, "P"):
		return false, t.WritePacket("E01")

	case strings.HasPrefix(pkt, "m"):
		return false, s.readMemory(t, pkt[1:])
	case strings.HasPrefix(pkt, "M"):
		return false, t.WritePacket("E01")

	case pkt == "c" || strings.HasPrefix(pkt, "c"):
		s.resume(t, true)
		return false, nil
	case pkt == "bc":
		s.resume(t, false)
		return false, nil

	case pkt == "s" || strings.HasPrefix(pkt, "s"):
		s.singleStep(t, true)
		return false, nil
	case pkt == "bs":
		s.singleStep(t, false)
		return false, nil

	case strings.HasPrefix(pkt, "Z"):
		return false, s.insertBreakpoint(t, pkt[1:])
	case strings.HasPrefix(pkt, "z"):
		return false, s.removeBreakpoint(t, pkt[1:])

	case pkt == "D":
		t.WritePacket("OK")
		return true, nil
	case pkt == "k":
		return true, nil

	default:
		return false, t.WritePacket("")
	}
}

func (s *Server) sendTargetXML(t *Transport, pkt string) error {
	xmlBody := TargetXML()
	// Not implementing qXfer's offset/length windowing beyond a single
	// response: the descriptions this server emits are small enough to
	// always fit in one packet, so every request gets the whole body
	// prefixed with 'l' (last chunk).
	return t.WritePacket("l" + xmlBody)
}

func (s *Server) readAllRegisters() string {
	var sb strings.Builder
	for i := 0; i < regfile.NumGPR; i++ {
		sb.WriteString(leReg32(s.engine.Hart.ReadReg(i)))
	}
	sb.WriteString(leReg32(s.engine.Hart.PC()))
	return sb.String()
}

func (s *Server) readRegister(t *Transport, arg string) error {
	n, err := parseHexUint(arg)
	if err != nil {
		return t.WritePacket("E01")
	}
	if int(n) > regfile.PC {
		return t.WritePacket("E01")
	}
	return t.WritePacket(leReg32(s.engine.Hart.ReadReg(int(n))))
}

func (s *Server) readMemory(t *Transport, arg string) error {
	addr, length, err := parseAddrLen(arg)
	if err != nil {
		return t.WritePacket("E01")
	}
	data, err := s.engine.Hart.ReadMem(addr, int(length))
	if err != nil {
		return t.WritePacket("E01")
	}
	return t.WritePacket(bytesToHex(data))
}

func (s *Server) insertBreakpoint(t *Transport, arg string) error {
	kind, addr, length, err := parseZPacket(arg)
	if err != nil {
		return t.WritePacket("E01")
	}
	if err := s.table.Insert(kind, addr, length); err != nil {
		return t.WritePacket("E01")
	}
	return t.WritePacket("OK")
}

func (s *Server) removeBreakpoint(t *Transport, arg string) error {
	kind, addr, length, err := parseZPacket(arg)
	if err != nil {
		return t.WritePacket("E01")
	}
	if err := s.table.Remove(kind, addr, length); err != nil {
		return t.WritePacket("E01")
	}
	return t.WritePacket("OK")
}

// resume drives a forward or backward continue, watching for the
// out-of-band interrupt byte on a second goroutine exactly as spec'd:
// its only interaction with the engine is the atomic Interrupt flag.
// Once the continue finishes, the connection's read deadline is bumped
// to unblock that goroutine's pending read before the next resume
// starts a new one, so no two watchers ever read the connection at
// once.
func (s *Server) resume(t *Transport, forward bool) {
	s.engine.Interrupt.Store(false)

	watcherDone := make(chan struct{})
	go s.watchInterrupt(t, watcherDone)

	stops := s.table.StopSet()
	var res replay.StopResult
	if forward {
		res = s.engine.ContinueForward(stops)
	} else {
		res = s.engine.ContinueBackward(stops)
	}

	t.conn.SetReadDeadline(time.Now())
	<-watcherDone
	t.conn.SetReadDeadline(time.Time{})

	s.engine.Interrupt.Store(false)
	s.afterStop(res)
	t.WritePacket(s.stopReply())
}

func (s *Server) singleStep(t *Transport, forward bool) {
	var cycle uint64
	if forward {
		cycle = s.engine.StepForward(1)
	} else {
		cycle = s.engine.StepBackward(1)
	}
	s.afterStop(replay.StopResult{Reason: replay.StopHalted, Cycle: cycle})
	t.WritePacket(s.stopReply())
}

func (s *Server) afterStop(res replay.StopResult) {
	s.lastStop = res
	if err := s.adapter.Update(s.engine.RawCycleAt(res.Cycle)); err != nil {
		s.log.WithError(err).Debug("wave-cursor adapter update failed")
	}
}

func (s *Server) watchInterrupt(t *Transport, done chan<- struct{}) {
	defer close(done)
	if err := ReadInterruptByte(t.rdr); err == nil {
		s.engine.Interrupt.Store(true)
	}
}

func (s *Server) stopReply() string {
	sig := signalTrap
	extra := ""

	switch s.lastStop.Reason {
	case replay.StopInterrupt:
		sig = signalInterrupt
	case replay.StopWatchWrite:
		extra = fmt.Sprintf("watch:%x;", s.lastStop.Addr)
	case replay.StopWatchRead:
		extra = fmt.Sprintf("rwatch:%x;", s.lastStop.Addr)
	}

	pcHex := leReg32(s.engine.Hart.ReadRegAt(regfile.PC, s.lastStop.Cycle))
	spHex := leReg32(s.engine.Hart.ReadRegAt(2, s.lastStop.Cycle))

	return fmt.Sprintf("T%02x%s%s:%s;%s:%s;",
		sig, extra, hexReg(regfile.PC), pcHex, hexReg(2), spHex)
}

func hexReg(n int) string { return fmt.Sprintf("%02x", n) }
