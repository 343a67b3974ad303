// Package cache provides a keyed freshness cache with a stale-serving
// window. An entry is fresh until its TTL elapses and then remains
// usable as a degraded fallback until its stale deadline passes.
// Staleness is evaluated lazily at read time; Sweep exists only to
// bound memory.
package cache

import (
	"sync"
	"time"
)

// entry stores one cached value with its freshness bookkeeping.
// Entries are immutable once stored and replaced wholesale on refresh.
type entry[V any] struct {
	value         V
	fetchedAt     time.Time
	expireAt      time.Time
	staleDeadline time.Time
}

// Cache caches values per key for a TTL, then serves them as stale
// fallbacks for an additional window. Safe for concurrent readers and
// writers; the coalescing layer above guarantees at most one writer
// per key at a time.
type Cache[V any] struct {
	// Now is the clock used for freshness checks. Tests override it.
	Now func() time.Time

	maxStale time.Duration

	mu    sync.RWMutex
	items map[string]entry[V]
}

// New returns a cache whose entries stay usable for maxStale past
// their expiry.
func New[V any](maxStale time.Duration) *Cache[V] {
	if maxStale < 0 {
		maxStale = 0
	}
	return &Cache[V]{
		Now:      time.Now,
		maxStale: maxStale,
		items:    make(map[string]entry[V]),
	}
}

// Set stores v under key, fresh for ttl and usable as a stale fallback
// for the cache's stale window beyond that. Any existing entry for key
// is overwritten.
func (c *Cache[V]) Set(key string, v V, ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	now := c.Now()
	e := entry[V]{
		value:         v,
		fetchedAt:     now,
		expireAt:      now.Add(ttl),
		staleDeadline: now.Add(ttl + c.maxStale),
	}
	c.mu.Lock()
	c.items[key] = e
	c.mu.Unlock()
}

// Get returns the value for key only while it is fresh. Expired
// entries are reported absent but not deleted; they may still serve
// GetWithStale.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || !c.Now().Before(e.expireAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// GetWithStale returns the value for key if it is fresh (stale=false)
// or expired but within both maxStale and the entry's stored stale
// window (stale=true). Otherwise ok is false.
func (c *Cache[V]) GetWithStale(key string, maxStale time.Duration) (v V, stale bool, ok bool) {
	c.mu.RLock()
	e, found := c.items[key]
	c.mu.RUnlock()
	if !found {
		return v, false, false
	}
	now := c.Now()
	if now.Before(e.expireAt) {
		return e.value, false, true
	}
	if now.Before(e.expireAt.Add(maxStale)) && now.Before(e.staleDeadline) {
		return e.value, true, true
	}
	return v, false, false
}

// Sweep removes entries past their stale deadline and reports how many
// were dropped.
func (c *Cache[V]) Sweep() int {
	now := c.Now()
	removed := 0
	c.mu.Lock()
	for k, e := range c.items {
		if !now.Before(e.staleDeadline) {
			delete(c.items, k)
			removed++
		}
	}
	c.mu.Unlock()
	return removed
}

// Len reports the number of entries, including expired ones not yet
// swept.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
