package lift

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tiandiyixian/bytecode-analysis/symbols"
	"github.com/tiandiyixian/bytecode-analysis/tac"
)

// DefaultCacheSize bounds the method-body cache. Lifting is a pure,
// idempotent function of the immutable raw body, so a bounded LRU is
// safe: an evicted method is simply re-lifted to an equal result on
// next request, trading a little recomputation for a bounded memory
// footprint instead of the unbounded map a naive cache would need.
const DefaultCacheSize = 4096

// Cache memoizes MethodBody: a MethodBody is created once per method
// on first lifting, and subsequent requests return the cached body.
type Cache struct {
	bodies *lru.Cache[symbols.MethodRef, *tac.MethodBody]
}

// NewCache returns a Cache with the given capacity, or
// DefaultCacheSize if capacity <= 0.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	c, err := lru.New[symbols.MethodRef, *tac.MethodBody](capacity)
	if err != nil {
		// Only fails for a non-positive size, which we've just ruled out.
		panic(err)
	}
	return &Cache{bodies: c}
}

// Get returns the cached body for m, if present.
func (c *Cache) Get(m symbols.MethodRef) (*tac.MethodBody, bool) {
	return c.bodies.Get(m)
}

// Put installs body as the cached result for m.
func (c *Cache) Put(m symbols.MethodRef, body *tac.MethodBody) {
	c.bodies.Add(m, body)
}
