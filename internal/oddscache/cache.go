// Package oddscache implements the per-group bounded odds cache and the
// fingerprint gate sitting between a freshly computed payload and
// broadcast (spec.md §3 "OddsCacheEntry", §4.5).
package oddscache

import (
	"sort"
	"sync"
	"time"
)

// Entry is one game's cached odds (spec.md §3 "OddsCacheEntry").
type Entry struct {
	GameID       string
	Odds         []any
	MarketsCount int
	Fingerprint  string
	UpdatedAt    time.Time
}

// Cache is a per-group bounded, TTL-expiring map of Entry keyed by game id.
// Bounds are enforced opportunistically on each access, per spec.md §3
// invariant 4: entries older than TTL are dropped, and if still over
// MaxSize the oldest-by-update-time entries are dropped until at bound.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Entry
	maxSize int
	ttl     time.Duration
}

// New creates a Cache bounded at maxSize entries with the given TTL.
func New(maxSize int, ttl time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &Cache{entries: make(map[string]*Entry), maxSize: maxSize, ttl: ttl}
}

// Get returns the cached entry for gameID, if present and not expired.
func (c *Cache) Get(gameID string, now time.Time) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[gameID]
	if !ok {
		return nil, false
	}
	if now.Sub(e.UpdatedAt) > c.ttl {
		delete(c.entries, gameID)
		return nil, false
	}
	cp := *e
	return &cp, true
}

// Put inserts or refreshes an entry, then enforces TTL and size bounds.
func (c *Cache) Put(e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.GameID] = e
	c.evictLocked(e.UpdatedAt)
}

// Touch refreshes updatedAt for an unchanged entry so it ages correctly
// (spec.md §4.5: "refresh timestamp on unchanged so they age correctly").
func (c *Cache) Touch(gameID string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[gameID]; ok {
		e.UpdatedAt = now
	}
}

func (c *Cache) evictLocked(now time.Time) {
	for id, e := range c.entries {
		if now.Sub(e.UpdatedAt) > c.ttl {
			delete(c.entries, id)
		}
	}
	if len(c.entries) <= c.maxSize {
		return
	}
	type kv struct {
		id string
		at time.Time
	}
	all := make([]kv, 0, len(c.entries))
	for id, e := range c.entries {
		all = append(all, kv{id, e.UpdatedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	excess := len(c.entries) - c.maxSize
	for i := 0; i < excess; i++ {
		delete(c.entries, all[i].id)
	}
}

// Snapshot returns every live (non-expired) entry, used to rebuild the
// coalesced "attach replay" payload (spec.md §4.5 "Periodic full snapshot").
func (c *Cache) Snapshot(now time.Time) []*Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Entry, 0, len(c.entries))
	for id, e := range c.entries {
		if now.Sub(e.UpdatedAt) > c.ttl {
			delete(c.entries, id)
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GameID < out[j].GameID })
	return out
}

// Len reports the current entry count (test/metrics helper).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
