package store

import "sync"

// cache is a concurrent map with the three operations the write-through
// contract needs: get-or-miss, put-after-store-write, invalidate.
type cache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
}

func newCache[K comparable, V any]() *cache[K, V] {
	return &cache[K, V]{entries: make(map[K]V)}
}

func (c *cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// Find scans cached values. Used for lookups whose key is not the
// cache key by construction (user by mail).
func (c *cache[K, V]) Find(pred func(V) bool) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, v := range c.entries {
		if pred(v) {
			return v, true
		}
	}
	var zero V
	return zero, false
}

func (c *cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

func (c *cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}
