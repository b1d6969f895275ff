// Package cache provides a bounded TTL cache that is passed explicitly to
// its users instead of living in package state.
package cache

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Config holds the cache limits.
type Config struct {
	TTL        time.Duration
	MaxEntries int
}

// DefaultConfig caches results for one minute, up to 256 entries.
var DefaultConfig = Config{
	TTL:        time.Minute,
	MaxEntries: 256,
}

type entry[V any] struct {
	value      V
	expiresAt  time.Time
	accessedAt time.Time
}

// Cache maps string keys to values of type V. Expired entries are dropped
// on access and by Purge; when full, the least recently accessed entry is
// evicted. Safe for concurrent use.
type Cache[V any] struct {
	mu         sync.Mutex
	entries    map[string]*entry[V]
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// New creates a cache. Zero fields in cfg take DefaultConfig values.
func New[V any](cfg Config) *Cache[V] {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig.TTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultConfig.MaxEntries
	}
	return &Cache[V]{
		entries:    make(map[string]*entry[V]),
		ttl:        cfg.TTL,
		maxEntries: cfg.MaxEntries,
		now:        time.Now,
	}
}

// WithClock replaces the time source; used by tests.
func (c *Cache[V]) WithClock(now func() time.Time) *Cache[V] {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
	return c
}

// Key hashes parts into a fixed-size cache key.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Get returns the value stored under key if it has not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	now := c.now()
	if now.After(e.expiresAt) {
		delete(c.entries, key)
		return zero, false
	}
	e.accessedAt = now
	return e.value, true
}

// Set stores value under key.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key] = &entry[V]{value: value, expiresAt: now.Add(c.ttl), accessedAt: now}
	if len(c.entries) > c.maxEntries {
		c.evict(now)
	}
}

// Purge drops expired entries and returns how many were removed.
func (c *Cache[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropExpired(c.now())
}

// Clear removes every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*entry[V])
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[V]) dropExpired(now time.Time) int {
	removed := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *Cache[V]) evict(now time.Time) {
	c.dropExpired(now)
	if len(c.entries) <= c.maxEntries {
		return
	}
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.entries[keys[i]].accessedAt.Before(c.entries[keys[j]].accessedAt)
	})
	for _, k := range keys[:len(c.entries)-c.maxEntries] {
		delete(c.entries, k)
	}
}
