package memory

import "sort"

// segment is one immutable, contiguous range of the initial ELF image.
type segment struct {
	addr uint64
	data []byte
}

// Image is the immutable memory image produced by the ELF loader: a
// sparse mapping from address ranges to bytes. It never changes after
// construction, unlike the versioned write index layered in front of it
// by Store.
type Image struct {
	segments []segment
}

// NewImage creates an empty image.
func NewImage() *Image {
	return &Image{}
}

// AddSegment adds a loaded segment. Segments are expected not to overlap;
// callers (the loader) are responsible for that invariant.
func (im *Image) AddSegment(addr uint64, data []byte) {
	im.segments = append(im.segments, segment{addr: addr, data: data})
	sort.Slice(im.segments, func(i, j int) bool {
		return im.segments[i].addr < im.segments[j].addr
	})
}

// ReadByte returns the byte at addr and true, or (0, false) if addr falls
// outside every loaded segment.
func (im *Image) ReadByte(addr uint64) (byte, bool) {
	// Binary search for the last segment starting at or before addr.
	i := sort.Search(len(im.segments), func(i int) bool {
		return im.segments[i].addr > addr
	})
	if i == 0 {
		return 0, false
	}
	seg := im.segments[i-1]
	off := addr - seg.addr
	if off >= uint64(len(seg.data)) {
		return 0, false
	}
	return seg.data[off], true
}
