package rsp

import (
	"bufio"
	"fmt"
	"io"
	"net"

	"github.com/sirupsen/logrus"
)

// Transport frames GDB RSP packets over a single net.Conn (TCP or a
// Unix domain socket — both satisfy net.Conn identically from here).
// One Transport serves exactly one connection; the server creates a
// fresh one per accepted connection.
type Transport struct {
	conn net.Conn
	rdr  *bufio.Reader
	log  *logrus.Entry

	ackEnabled bool
}

// NewTransport wraps conn. Acks are enabled until the server disables
// them in response to QStartNoAckMode.
func NewTransport(conn net.Conn, log *logrus.Entry) *Transport {
	return &Transport{
		conn:       conn,
		rdr:        bufio.NewReader(conn),
		log:        log,
		ackEnabled: true,
	}
}

// DisableAck turns off ack/nak handshaking for the rest of the
// connection, per QStartNoAckMode.
func (t *Transport) DisableAck() { t.ackEnabled = false }

// Close closes the underlying connection.
func (t *Transport) Close() error { return t.conn.Close() }

// ReadInterruptByte reads and discards bytes from conn in a dedicated
// goroutine context until it observes the out-of-band interrupt byte
// (0x03) or the connection closes; used by the server's interrupt
// watcher while a continue_* is running.
func ReadInterruptByte(r io.Reader) error {
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if err != nil {
			return err
		}
		if n > 0 && buf[0] == 0x03 {
			return nil
		}
	}
}

// ReadPacket blocks for the next '$...#cs' packet and returns the
// decoded payload. While acks are enabled it verifies the checksum
// (retrying via nak on mismatch) and sends the ack; after DisableAck the
// checksum is not checked.
func (t *Transport) ReadPacket() (string, error) {
	for {
		if err := t.skipToDollar(); err != nil {
			return "", err
		}

		raw, err := t.rdr.ReadBytes('#')
		if err != nil {
			return "", err
		}
		payload := raw[:len(raw)-1]

		csBytes := make([]byte, 2)
		if _, err := io.ReadFull(t.rdr, csBytes); err != nil {
			return "", err
		}

		var want byte
		if _, err := fmt.Sscanf(string(csBytes), "%02x", &want); err != nil {
			if t.ackEnabled {
				t.sendAck(false)
			}
			continue
		}

		if t.ackEnabled {
			if checksum(payload) != want {
				t.log.WithField("payload", string(payload)).Debug("bad checksum, sending nak")
				t.sendAck(false)
				continue
			}
			t.sendAck(true)
		}

		decoded := decodePayload(payload)
		t.log.Debugf("-> $%s#..", string(decoded))
		return string(decoded), nil
	}
}

func (t *Transport) skipToDollar() error {
	for {
		b, err := t.rdr.ReadByte()
		if err != nil {
			return err
		}
		if b == 0x03 {
			// An interrupt arriving outside a Running phase; nothing to
			// do with it here but don't let it desync framing.
			continue
		}
		if b == '$' {
			return nil
		}
		// Anything else before '$' (stray acks, noise) is ignored.
	}
}

func (t *Transport) sendAck(ok bool) {
	c := byte('+')
	if !ok {
		c = '-'
	}
	t.conn.Write([]byte{c})
}

// WritePacket frames payload as '$<escaped payload>#<checksum>' and
// writes it, then (if acks are enabled) waits for the debugger's ack,
// retrying on nak.
func (t *Transport) WritePacket(payload string) error {
	encoded := encodePayload([]byte(payload))
	cs := checksum(encoded)

	framed := make([]byte, 0, len(encoded)+4)
	framed = append(framed, '$')
	framed = append(framed, encoded...)
	framed = append(framed, '#')
	framed = append(framed, []byte(fmt.Sprintf("%02x", cs))...)

	for {
		t.log.Debugf("<- $%s#..", payload)
		if _, err := t.conn.Write(framed); err != nil {
			return err
		}
		if !t.ackEnabled {
			return nil
		}

		b, err := t.rdr.ReadByte()
		if err != nil {
			return err
		}
		if b == '+' {
			return nil
		}
		// '-' (or anything else): retransmit.
	}
}
