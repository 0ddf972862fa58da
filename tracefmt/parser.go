package tracefmt

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options configures a Parse call.
type Options struct {
	Dialect Dialect

	// AssumeAccessSize, when > 0, is assumed for any memory write
	// clause that omits an explicit size. Zero means no override: such
	// a clause is a fatal UnknownAccessSizeError.
	AssumeAccessSize int

	// Log receives DialectMismatch warnings. A nil Log falls back to
	// logrus's standard logger.
	Log *logrus.Entry
}

// Parse reads the trace at path and returns its deltas in file order.
// Delta.Cycle is assigned as a sequential 1-based ordinal over record
// lines (blank lines, '#' comments and header rows whose first field is
// non-numeric are skipped); the file's own cycle column is kept on
// each delta as RawCycle and checked for strict monotonicity but is
// never used as the returned ordering.
func Parse(path string, opts Options) ([]Delta, error) {
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var deltas []Delta
	var prevRaw uint64
	haveRaw := false
	lineNo := 0
	var ordinal uint64

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)

		rawCycle, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			// Not a numeric leading field: treat as a header row and
			// skip it rather than failing ingestion outright.
			continue
		}

		if len(fields) < 3 {
			return nil, &MalformedRecordError{
				File: path, Line: lineNo,
				Err: fmt.Errorf("expected at least 3 fields, got %d", len(fields)),
			}
		}

		pc, err := parseHexU64(fields[1])
		if err != nil {
			return nil, &MalformedRecordError{
				File: path, Line: lineNo,
				Err: fmt.Errorf("parsing pc %q: %w", fields[1], err),
			}
		}

		if _, err := parseHexU64(fields[2]); err != nil {
			return nil, &MalformedRecordError{
				File: path, Line: lineNo,
				Err: fmt.Errorf("parsing instruction %q: %w", fields[2], err),
			}
		}

		if haveRaw && rawCycle <= prevRaw {
			return nil, &NonMonotonicCycleError{
				File: path, Line: lineNo,
				Previous: prevRaw, Got: rawCycle,
			}
		}
		prevRaw, haveRaw = rawCycle, true

		ordinal++
		delta := Delta{Cycle: ordinal, RawCycle: rawCycle, PC: pc}

		for _, tok := range fields[3:] {
			reg, mem, err := parseClause(tok, opts, opts.Log, path, lineNo)
			if err != nil {
				return nil, &MalformedRecordError{File: path, Line: lineNo, Err: err}
			}
			if reg != nil {
				delta.RegWrites = append(delta.RegWrites, *reg)
			}
			if mem != nil {
				delta.MemWrites = append(delta.MemWrites, *mem)
			}
		}

		deltas = append(deltas, delta)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return deltas, nil
}

func parseClause(tok string, opts Options, log *logrus.Entry, file string, lineNo int) (*RegWrite, *MemWrite, error) {
	switch {
	case strings.HasPrefix(tok, "PA:0x"):
		mw, err := parseMemClause(tok, opts.AssumeAccessSize, file, lineNo)
		return nil, mw, err
	case strings.HasPrefix(tok, "x"):
		rw, err := parseRegClause(tok, opts.Dialect, log, file, lineNo)
		return rw, nil, err
	default:
		return nil, nil, fmt.Errorf("unrecognized clause %q", tok)
	}
}

func parseRegClause(tok string, dialect Dialect, log *logrus.Entry, file string, lineNo int) (*RegWrite, error) {
	body := tok[len("x"):]
	nStr, rest, ok := strings.Cut(body, "=0x")
	if !ok {
		return nil, fmt.Errorf("register clause %q missing '=0x'", tok)
	}

	n, err := strconv.Atoi(nStr)
	if err != nil || n < 1 || n > 31 {
		return nil, fmt.Errorf("register clause %q has invalid register index", tok)
	}

	valueStr := rest
	var tag bool
	var bounds uint64
	hasCap := false

	if idx := strings.Index(rest, ":"); idx >= 0 {
		valueStr = rest[:idx]
		tail := rest[idx+1:]
		tagStr, boundsStr, ok := strings.Cut(tail, ":0x")
		if !ok {
			return nil, fmt.Errorf("capability clause %q missing ':0x' bounds", tok)
		}
		switch tagStr {
		case "0":
			tag = false
		case "1":
			tag = true
		default:
			return nil, fmt.Errorf("capability clause %q has invalid tag %q", tok, tagStr)
		}
		bounds, err = strconv.ParseUint(boundsStr, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("capability clause %q has invalid bounds: %w", tok, err)
		}
		hasCap = true
	}

	value, err := strconv.ParseUint(valueStr, 16, 64)
	if err != nil {
		return nil, fmt.Errorf("register clause %q has invalid value: %w", tok, err)
	}

	switch {
	case hasCap && dialect == DialectIbex:
		log.WithFields(logrus.Fields{
			"file": file, "line": lineNo, "reg": n,
		}).Warn("capability metadata present under ibex dialect; dropping")
		hasCap = false
	case !hasCap && dialect == DialectCHERIoTIbex:
		log.WithFields(logrus.Fields{
			"file": file, "line": lineNo, "reg": n,
		}).Warn("no capability metadata under cheriot-ibex dialect")
	}

	return &RegWrite{Reg: n, Value: value, HasCap: hasCap, Tag: tag, Bounds: bounds}, nil
}

func parseMemClause(tok string, assumeSize int, file string, lineNo int) (*MemWrite, error) {
	rest := tok[len("PA:0x"):]
	addrPart, bytesHex, ok := strings.Cut(rest, "=0x")
	if !ok {
		return nil, fmt.Errorf("memory clause %q missing '=0x'", tok)
	}

	addrStr := addrPart
	declaredSize := -1
	if idx := strings.Index(addrPart, ":"); idx >= 0 {
		addrStr = addrPart[:idx]
		sizeStr := addrPart[idx+1:]
		n, err := strconv.Atoi(sizeStr)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("memory clause %q has invalid size %q", tok, sizeStr)
		}
		declaredSize = n
	}

	addr, err := strconv.ParseUint(addrStr, 16, 64)
	if err != nil {
		return nil, fmt.Errorf("memory clause %q has invalid address: %w", tok, err)
	}

	if len(bytesHex)%2 != 0 {
		return nil, fmt.Errorf("memory clause %q has an odd number of byte-string hex digits", tok)
	}

	data := make([]byte, len(bytesHex)/2)
	for i := range data {
		b, err := strconv.ParseUint(bytesHex[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("memory clause %q has invalid byte string: %w", tok, err)
		}
		data[i] = byte(b)
	}

	size := declaredSize
	if size < 0 {
		if assumeSize <= 0 {
			return nil, &UnknownAccessSizeError{File: file, Line: lineNo, Addr: addr}
		}
		size = assumeSize
	}

	if len(data) != size {
		return nil, fmt.Errorf(
			"memory clause %q declares size %d but byte string has %d bytes",
			tok, size, len(data),
		)
	}

	return &MemWrite{Addr: addr, Size: size, Bytes: data}, nil
}

func parseHexU64(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	return strconv.ParseUint(s, 16, 64)
}
