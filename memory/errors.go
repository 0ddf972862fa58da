package memory

import "fmt"

// UnmappedError reports a read from an address with no initial image
// byte and no recorded write.
type UnmappedError struct {
	Addr uint64
}

func (e *UnmappedError) Error() string {
	return fmt.Sprintf("unmapped memory address 0x%x", e.Addr)
}
