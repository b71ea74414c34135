package stash

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUCache holds decrypted documents by key. It is safe for concurrent use.
type LRUCache struct {
	entries *lru.Cache[string, []byte]
}

// NewLRUCache creates a cache holding up to capacity documents.
func NewLRUCache(capacity int) *LRUCache {
	if capacity <= 0 {
		capacity = 1
	}
	entries, err := lru.New[string, []byte](capacity)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &LRUCache{entries: entries}
}

// Get returns a copy of the cached document.
func (c *LRUCache) Get(key string) ([]byte, bool) {
	value, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	return append([]byte(nil), value...), true
}

// Put adds or replaces a document, evicting the least recently used one when
// full.
func (c *LRUCache) Put(key string, value []byte) {
	c.entries.Add(key, append([]byte(nil), value...))
}

// Delete removes a document.
func (c *LRUCache) Delete(key string) {
	c.entries.Remove(key)
}

// Clear removes every document.
func (c *LRUCache) Clear() {
	c.entries.Purge()
}

// Len returns the number of cached documents.
func (c *LRUCache) Len() int {
	return c.entries.Len()
}

// Keys returns the cached keys, oldest first.
func (c *LRUCache) Keys() []string {
	return c.entries.Keys()
}
