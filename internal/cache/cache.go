// Package cache provides a size-bounded TTL cache with stale-while-revalidate.
package cache

import (
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxEntries bounds a cache whose Config sets no MaxEntries.
const DefaultMaxEntries = 1024

// Config configures a Cache.
type Config[V any] struct {
	TTL        time.Duration
	MaxEntries int
	// OnEvict runs for entries pushed out by the size bound, removed with
	// Delete, or dropped by Purge. Replacing a key with Set does not call it.
	OnEvict func(key string, value V)
}

// Cache maps string keys to values with a TTL. Expired values keep being
// served until replaced, and exactly one reader per expiry is told to
// refresh. The least recently used entry is evicted once MaxEntries is
// reached.
type Cache[V any] struct {
	store *lru.Cache[string, *entry[V]]
	ttl   time.Duration
}

type entry[V any] struct {
	value      V
	expiresAt  time.Time
	refreshing atomic.Bool
}

// GetResult holds the result of a cache lookup.
type GetResult[V any] struct {
	Value        V
	Hit          bool // true if a value was found (fresh or stale)
	NeedsRefresh bool // expired; exactly one caller sees true per expiry
}

// New creates a cache.
func New[V any](cfg Config[V]) *Cache[V] {
	size := cfg.MaxEntries
	if size <= 0 {
		size = DefaultMaxEntries
	}

	var onEvict func(string, *entry[V])
	if cfg.OnEvict != nil {
		onEvict = func(key string, e *entry[V]) { cfg.OnEvict(key, e.value) }
	}
	// Only a non-positive size makes this fail.
	store, _ := lru.NewWithEvict[string, *entry[V]](size, onEvict)
	return &Cache[V]{store: store, ttl: cfg.TTL}
}

// Get performs a lookup. Expired entries are still returned, with
// NeedsRefresh set for the first caller to see them.
func (c *Cache[V]) Get(key string) GetResult[V] {
	e, ok := c.store.Get(key)
	if !ok {
		return GetResult[V]{}
	}

	if time.Now().Before(e.expiresAt) {
		return GetResult[V]{Value: e.value, Hit: true}
	}

	return GetResult[V]{
		Value:        e.value,
		Hit:          true,
		NeedsRefresh: e.refreshing.CompareAndSwap(false, true),
	}
}

// Set stores a value with a fresh TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.store.Add(key, &entry[V]{
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// Contains reports whether key is cached without touching its recency.
func (c *Cache[V]) Contains(key string) bool {
	return c.store.Contains(key)
}

// Delete removes an entry.
func (c *Cache[V]) Delete(key string) {
	c.store.Remove(key)
}

// Purge removes every entry.
func (c *Cache[V]) Purge() {
	c.store.Purge()
}

// Len returns the number of cached entries.
func (c *Cache[V]) Len() int {
	return c.store.Len()
}
