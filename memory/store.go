package memory

import "sort"

// PageSize is the granularity at which Store tracks write history and at
// which pageCache materializes resolved snapshots.
const PageSize = 4096

type byteWrite struct {
	cycle uint64
	value byte
}

// Store is the cycle-versioned memory model: an immutable initial Image
// overlaid by every byte ever written by a trace, each write tagged with
// the cycle it happened at. Reading at a given cycle returns the value
// of the highest-cycle write at or before that cycle, falling back to
// the initial image, and finally reporting UnmappedError.
//
// Writes are indexed per page, and within a page per byte offset, as a
// map rather than a fixed-size array: most pages only ever have a
// handful of distinct bytes written across a whole trace (stack slots,
// a few globals), so a sparse map costs far less than a dense 4 KiB
// array of slice headers per touched page.
type Store struct {
	image *Image
	pages map[uint64]map[uint32][]byteWrite
	cache *pageCache
}

// NewStore creates a Store backed by image.
func NewStore(image *Image) *Store {
	return &Store{
		image: image,
		pages: make(map[uint64]map[uint32][]byteWrite),
		cache: newPageCache(),
	}
}

func pageOf(addr uint64) (page uint64, offset uint32) {
	return addr &^ (PageSize - 1), uint32(addr & (PageSize - 1))
}

// Write records that addr..addr+len(data) held data as of cycle.
func (s *Store) Write(cycle uint64, addr uint64, data []byte) {
	for i, b := range data {
		a := addr + uint64(i)
		page, off := pageOf(a)
		p, ok := s.pages[page]
		if !ok {
			p = make(map[uint32][]byteWrite)
			s.pages[page] = p
		}
		p[off] = append(p[off], byteWrite{cycle: cycle, value: b})
	}
}

// ReadByte returns the value at addr as of cycle, i.e. the most recent
// write at or before cycle, or the initial image byte if addr was never
// written by that point, or an *UnmappedError if addr is unmapped.
func (s *Store) ReadByte(addr uint64, cycle uint64) (byte, error) {
	page, off := pageOf(addr)
	if p, ok := s.pages[page]; ok {
		if writes, ok := p[off]; ok {
			idx := sort.Search(len(writes), func(i int) bool {
				return writes[i].cycle > cycle
			})
			if idx > 0 {
				return writes[idx-1].value, nil
			}
		}
	}

	if b, ok := s.image.ReadByte(addr); ok {
		return b, nil
	}

	return 0, &UnmappedError{Addr: addr}
}

// Read returns the size bytes at addr as of cycle. It returns an
// *UnmappedError for the first byte in the range that is unmapped.
//
// Reads that stay within a single page are served through pageCache: the
// whole page is resolved once per query cycle and subsequent reads into
// it are a slice copy rather than per-byte binary searches. Reads
// spanning a page boundary, or into a page that is not fully mapped,
// fall back to ReadByte directly; this never changes the result, only
// whether the cache helps.
func (s *Store) Read(addr uint64, size int, cycle uint64) ([]byte, error) {
	out := make([]byte, size)

	page, off := pageOf(addr)
	if uint64(off)+uint64(size) <= PageSize {
		if resolved, err := s.resolvePage(page, cycle); err == nil {
			copy(out, resolved[off:uint64(off)+uint64(size)])
			return out, nil
		}
	}

	for i := 0; i < size; i++ {
		b, err := s.ReadByte(addr+uint64(i), cycle)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// resolvePage returns the full PageSize-byte snapshot of page as of
// cycle, consulting pageCache first.
//
// A page containing any unmapped byte is never cached: materializing it
// fully would require deciding a value for the unmapped byte, and the
// error path is rare enough that caching it buys nothing.
func (s *Store) resolvePage(page uint64, cycle uint64) ([]byte, error) {
	if cached, ok := s.cache.lookup(page, cycle); ok {
		return cached, nil
	}

	buf := make([]byte, PageSize)
	for off := uint32(0); off < PageSize; off++ {
		b, err := s.ReadByte(page+uint64(off), cycle)
		if err != nil {
			return nil, err
		}
		buf[off] = b
	}

	s.cache.insert(page, cycle, buf)
	return buf, nil
}
