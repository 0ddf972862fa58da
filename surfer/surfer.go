// Package surfer pushes cycle-cursor changes to an external waveform
// viewer. It is allowed to fail silently: replay correctness never
// depends on it.
package surfer

import (
	"fmt"
	"os"
)

// Adapter maps an engine cursor change to external simulation time.
type Adapter interface {
	Update(rawCycle uint64) error
}

// NullAdapter is the default adapter: it does nothing and never fails.
type NullAdapter struct{}

func (NullAdapter) Update(uint64) error { return nil }

// FileAdapter appends one "<rawCycle>\n" line per cursor-changing stop
// to a file, the minimal contract a waveform viewer's file-tail
// integration needs.
type FileAdapter struct {
	f *os.File
}

// NewFileAdapter opens (creating/truncating) path for appended updates.
func NewFileAdapter(path string) (*FileAdapter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening surfer adapter file: %w", err)
	}
	return &FileAdapter{f: f}, nil
}

func (a *FileAdapter) Update(rawCycle uint64) error {
	_, err := fmt.Fprintf(a.f, "%d\n", rawCycle)
	return err
}

// Close closes the underlying file.
func (a *FileAdapter) Close() error { return a.f.Close() }
