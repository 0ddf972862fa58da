package tracefmt

import (
	"bufio"
	"fmt"
	"io"
)

// WriteCanonical serializes deltas back to the grammar Parse accepts.
// Re-parsing WriteCanonical's output with the same dialect reproduces
// the same deltas, modulo the synthetic instruction-word field (always
// written as 0, since the parser ignores it).
func WriteCanonical(w io.Writer, deltas []Delta) error {
	bw := bufio.NewWriter(w)

	for _, d := range deltas {
		if _, err := fmt.Fprintf(bw, "%d 0x%x 0x0", d.RawCycle, d.PC); err != nil {
			return err
		}

		for _, rw := range d.RegWrites {
			if rw.HasCap {
				tag := 0
				if rw.Tag {
					tag = 1
				}
				if _, err := fmt.Fprintf(bw, " x%d=0x%x:%d:0x%x", rw.Reg, rw.Value, tag, rw.Bounds); err != nil {
					return err
				}
				continue
			}
			if _, err := fmt.Fprintf(bw, " x%d=0x%x", rw.Reg, rw.Value); err != nil {
				return err
			}
		}

		for _, mw := range d.MemWrites {
			if _, err := fmt.Fprintf(bw, " PA:0x%x:%d=0x", mw.Addr, mw.Size); err != nil {
				return err
			}
			for _, b := range mw.Bytes {
				if _, err := fmt.Fprintf(bw, "%02x", b); err != nil {
					return err
				}
			}
		}

		if _, err := bw.WriteString("\n"); err != nil {
			return err
		}
	}

	return bw.Flush()
}
