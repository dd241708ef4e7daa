// Package cache contains caching helpers shared by the object stores
// and the pack generator
package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRU represents a LRU cache holding byte slices keyed by K
type LRU[K comparable] struct {
	cache *lru.Cache[K, []byte]

	budget int
	mu     sync.Mutex
}

// NewLRU creates a new LRU Cache bounded to maxEntries entries.
// Values bigger than budget bytes are never cached, so a single
// huge value cannot evict the entire working set
func NewLRU[K comparable](maxEntries, budget int) (*LRU[K], error) {
	cache, err := lru.New[K, []byte](maxEntries)
	if err != nil {
		return nil, err
	}
	return &LRU[K]{
		cache:  cache,
		budget: budget,
	}, nil
}

// Get looks up a key's value from the cache.
func (c *LRU[K]) Get(key K) (value []byte, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cache.Get(key)
}

// Add adds a value to the cache.
// Values bigger than the cache's budget are skipped
func (c *LRU[K]) Add(key K, value []byte) {
	if c.budget > 0 && len(value) > c.budget {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Add(key, value)
}

// Clear purges all stored items from the cache.
func (c *LRU[K]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Purge()
}

// Len returns the number of items in the cache.
func (c *LRU[K]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cache.Len()
}
