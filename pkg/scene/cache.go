package scene

import (
	"context"
	"hash/maphash"
	"sync"

	"github.com/menta2k/scene-enhancer/pkg/types"
)

type cacheKey struct {
	sum    uint64
	width  int
	height int
	layout types.Layout
	maxDim int
}

// Cache memoizes analyses by buffer content and working resolution. Cached
// analyses are shared and must be treated as read-only. The zero value is
// not usable; create one with NewCache.
type Cache struct {
	analyzer *Analyzer
	capacity int
	seed     maphash.Seed

	mu      sync.Mutex
	entries map[cacheKey]*Analysis
	order   []cacheKey
	hits    int
	misses  int
}

// NewCache wraps analyzer with a memo of at most capacity entries. Oldest
// entries are evicted first.
func NewCache(analyzer *Analyzer, capacity int) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		analyzer: analyzer,
		capacity: capacity,
		seed:     maphash.MakeSeed(),
		entries:  make(map[cacheKey]*Analysis),
	}
}

// AnalyzeAt returns the memoized analysis for buf at maxDim, computing it on
// a miss.
func (c *Cache) AnalyzeAt(ctx context.Context, buf *types.PixelBuffer, maxDim int) (*Analysis, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	key := cacheKey{
		sum:    maphash.Bytes(c.seed, buf.Pix),
		width:  buf.Width,
		height: buf.Height,
		layout: buf.Layout,
		maxDim: maxDim,
	}

	c.mu.Lock()
	if res, ok := c.entries[key]; ok {
		c.hits++
		c.mu.Unlock()
		return res, nil
	}
	c.misses++
	c.mu.Unlock()

	res, err := c.analyzer.AnalyzeAt(ctx, buf, maxDim)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		if len(c.order) >= c.capacity {
			delete(c.entries, c.order[0])
			c.order = c.order[1:]
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = res
	return res, nil
}

// Stats returns the hit and miss counts
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Len returns the number of cached analyses
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
