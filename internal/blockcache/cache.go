// Package blockcache implements a size-bounded LRU cache for decrypted
// plaintext blocks.
package blockcache

import (
	"math"
	"sync"

	"github.com/secstore/secstore/internal/debug"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Estimated per-entry bookkeeping overhead.
const overhead = 64

// Cache is a size-bounded LRU cache of plaintext blocks, keyed by block name.
// The cache bounds the sum of the capacities of the cached slices, since the
// capacity more reliably indicates the amount of memory kept alive.
type Cache struct {
	mu sync.Mutex

	c *simplelru.LRU[string, []byte]

	size, free int
}

// New creates a new block cache that keeps at most size bytes of block data.
func New(size int) *Cache {
	c := &Cache{
		size: size,
		free: size,
	}

	// NewLRU wants us to specify some max. number of entries, else it errors.
	// The actual maximum will be smaller than size/overhead, because we
	// evict entries (RemoveOldest in Add) to maintain our size bound.
	maxEntries := math.MaxInt
	lru, err := simplelru.NewLRU[string, []byte](maxEntries, c.evict)
	if err != nil {
		panic(err) // Can only be maxEntries <= 0.
	}
	c.c = lru

	return c
}

func (c *Cache) evict(key string, block []byte) {
	debug.Log("blockcache.Cache: evict %v, %d bytes", key, cap(block))
	c.free += cap(block) + overhead
}

// Add adds the block to the cache. It may become evicted immediately if the
// block is larger than the cache.
func (c *Cache) Add(key string, block []byte) {
	debug.Log("blockcache.Cache: add %v, %d bytes", key, cap(block))

	size := cap(block) + overhead
	if size > c.size {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// an existing entry must be released first to keep the size bookkeeping
	// correct
	c.c.Remove(key)

	var key2 string
	for size > c.free {
		key2, _, _ = c.c.RemoveOldest()
		debug.Log("blockcache.Cache: evict oldest %v", key2)
	}

	c.c.Add(key, block)
	c.free -= size
}

// Get returns the block with the given key, if cached.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	block, ok := c.c.Get(key)
	c.mu.Unlock()

	debug.Log("blockcache.Cache: get %v, hit %v", key, ok)

	return block, ok
}

// Remove drops the block with the given key from the cache.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	c.c.Remove(key)
	c.mu.Unlock()
}

// Len returns the number of cached blocks.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.c.Len()
}
