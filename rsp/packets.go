package rsp

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

func bytesToHex(b []byte) string { return hex.EncodeToString(b) }

func hexToBytes(s string) ([]byte, error) { return hex.DecodeString(s) }

func parseHexUint(s string) (uint64, error) {
	return strconv.ParseUint(s, 16, 64)
}

// leReg32 encodes a 32-bit register value as little-endian hex, the
// wire format GDB expects for riscv:rv32 registers.
func leReg32(v uint64) string {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	return bytesToHex(buf[:])
}

func parseLEReg32(s string) (uint64, error) {
	b, err := hexToBytes(s)
	if err != nil || len(b) != 4 {
		return 0, fmt.Errorf("malformed register value %q", s)
	}
	return uint64(binary.LittleEndian.Uint32(b)), nil
}

// parseAddrLen parses "addr,len" as found in the 'm' memory-read packet.
func parseAddrLen(s string) (addr uint64, length uint64, err error) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected addr,len, got %q", s)
	}
	addr, err = parseHexUint(parts[0])
	if err != nil {
		return 0, 0, err
	}
	length, err = parseHexUint(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return addr, length, nil
}

// parseZPacket parses the body of a Z/z packet: "type,addr,kind".
func parseZPacket(s string) (kind int, addr uint64, length uint64, err error) {
	parts := strings.SplitN(s, ",", 3)
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("expected type,addr,kind, got %q", s)
	}
	k, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, 0, err
	}
	addr, err = parseHexUint(parts[1])
	if err != nil {
		return 0, 0, 0, err
	}
	length, err = parseHexUint(parts[2])
	if err != nil {
		return 0, 0, 0, err
	}
	return k, addr, length, nil
}

const (
	signalTrap      = 5
	signalInterrupt = 2
)
