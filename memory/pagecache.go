package memory

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// pageCache is a small LRU of fully materialized pages, keyed by page
// number, valid for exactly one query cycle at a time. It is a pure
// performance layer in front of Store's per-byte versioned resolution:
// debuggers repeatedly re-read the same stack/heap window (locals
// inspection, `x/32xw`, a watched range) at the same or a nearby cycle,
// and resolving a whole page once amortizes that.
//
// The directory/victim-finder composition mirrors the teacher-adjacent
// timing/cache package's Cache type, repurposed here: "backing store" is
// the Store's own per-byte resolver instead of a lower memory level, and
// the cache key is a page number instead of a cache-line-aligned address.
type pageCache struct {
	directory *akitacache.DirectoryImpl
	pages     [][]byte // parallel to the directory's block slots

	validCycle uint64
	hasCycle   bool
}

const (
	pageCacheSets = 64
	pageCacheWays = 4
)

func newPageCache() *pageCache {
	numBlocks := pageCacheSets * pageCacheWays
	pages := make([][]byte, numBlocks)
	for i := range pages {
		pages[i] = make([]byte, PageSize)
	}

	return &pageCache{
		directory: akitacache.NewDirectory(
			pageCacheSets,
			pageCacheWays,
			PageSize,
			akitacache.NewLRUVictimFinder(),
		),
		pages: pages,
	}
}

func (c *pageCache) blockIndex(block *akitacache.Block) int {
	return block.SetID*pageCacheWays + block.WayID
}

// lookup returns the materialized page bytes for pageAddr if it is
// cached and valid at cycle, else (nil, false).
func (c *pageCache) lookup(pageAddr uint64, cycle uint64) ([]byte, bool) {
	if !c.hasCycle || c.validCycle != cycle {
		return nil, false
	}

	block := c.directory.Lookup(0, pageAddr)
	if block == nil || !block.IsValid {
		return nil, false
	}

	c.directory.Visit(block)
	return c.pages[c.blockIndex(block)], true
}

// insert materializes page into the cache for pageAddr at cycle,
// invalidating the whole cache first if cycle has changed since the
// last insert (every cached page's contents are a function of the query
// cycle, so a cycle change invalidates all of them at once).
func (c *pageCache) insert(pageAddr uint64, cycle uint64, page []byte) {
	if !c.hasCycle || c.validCycle != cycle {
		c.directory.Reset()
		c.validCycle = cycle
		c.hasCycle = true
	}

	victim := c.directory.FindVictim(pageAddr)
	if victim == nil {
		return
	}

	victim.Tag = pageAddr
	victim.IsValid = true
	victim.IsDirty = false
	copy(c.pages[c.blockIndex(victim)], page)
	c.directory.Visit(victim)
}
