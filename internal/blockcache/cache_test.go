package blockcache

import (
	"testing"

	rtest "github.com/secstore/secstore/internal/test"
)

func TestCache(t *testing.T) {
	const (
		kiB       = 1 << 10
		cacheSize = 64*kiB + 3*overhead
	)

	c := New(cacheSize)

	addAndCheck := func(key string, exp []byte) {
		c.Add(key, exp)
		block, ok := c.Get(key)
		rtest.Assert(t, ok, "block %v added but not found in cache", key)
		rtest.Equals(t, &exp[0], &block[0])
		rtest.Equals(t, exp, block)
	}

	// The cache should check the cap of the slices, since it more reliably
	// indicates the amount of memory kept alive.
	addAndCheck("a", make([]byte, 1, 32*kiB))
	addAndCheck("b", make([]byte, 1, 30*kiB))
	addAndCheck("c", make([]byte, 1, 10*kiB))

	_, ok := c.Get("b")
	rtest.Assert(t, ok, "block b not present")
	_, ok = c.Get("a")
	rtest.Assert(t, !ok, "block a present, but should have been evicted")

	c.Add("a", make([]byte, 1+c.size))
	_, ok = c.Get("a")
	rtest.Assert(t, !ok, "block a too large but still added to cache")

	c.Remove("a")
	c.Remove("c")
	c.Remove("b")

	rtest.Equals(t, cacheSize, c.size)
	rtest.Equals(t, cacheSize, c.free)
	rtest.Equals(t, 0, c.Len())
}

func TestCacheReplace(t *testing.T) {
	c := New(64 << 10)

	c.Add("x", make([]byte, 1<<10))
	c.Add("x", make([]byte, 2<<10))

	block, ok := c.Get("x")
	rtest.Assert(t, ok, "replaced block not found")
	rtest.Equals(t, 2<<10, len(block))

	// replacing must not leak accounted bytes
	c.Remove("x")
	rtest.Equals(t, c.size, c.free)
}
