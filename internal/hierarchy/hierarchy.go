// Package hierarchy implements the process-local TTL cache of the
// sport/region/competition taxonomy with stale-while-revalidate refresh
// (spec.md §4.8).
package hierarchy

import (
	"context"
	"sync"
	"time"
)

// Document is the decoded taxonomy payload: a nested mapping of sports,
// regions and competitions, shaped the same as any other upstream payload
// (see internal/fingerprint).
type Document = map[string]any

// Fetcher performs the actual upstream round trip (spec.md §C.3: "it is
// itself an upstream request() call, cmd = get_hierarchy").
type Fetcher func(ctx context.Context) (Document, error)

// Cache is a TTL cache with stale-while-revalidate: if the cached value is
// expired but a refresh returns zero sports (a feed glitch), the previous
// value is retained instead of being replaced with an empty document.
type Cache struct {
	mu        sync.RWMutex
	doc       Document
	cachedAt  time.Time
	ttl       time.Duration
	fetch     Fetcher
	nameIndex map[string]string // derived: id -> display name
	aliasIdx  map[string]string // derived: alias -> canonical name
}

// New creates a Cache with the given TTL and Fetcher.
func New(ttl time.Duration, fetch Fetcher) *Cache {
	return &Cache{ttl: ttl, fetch: fetch}
}

// Get returns the cached document and whether it was served from cache
// (true) or freshly fetched (false), refreshing it if expired.
func (c *Cache) Get(ctx context.Context) (Document, bool, error) {
	c.mu.RLock()
	fresh := c.doc != nil && time.Since(c.cachedAt) < c.ttl
	doc := c.doc
	c.mu.RUnlock()
	if fresh {
		return doc, true, nil
	}
	return c.refresh(ctx)
}

// Refresh forces a refresh regardless of TTL (used by the /hierarchy
// endpoint's refresh=true query flag, spec.md §6).
func (c *Cache) Refresh(ctx context.Context) (Document, error) {
	doc, _, err := c.refresh(ctx)
	return doc, err
}

func (c *Cache) refresh(ctx context.Context) (Document, bool, error) {
	next, err := c.fetch(ctx)
	if err != nil {
		c.mu.RLock()
		prev := c.doc
		c.mu.RUnlock()
		if prev != nil {
			return prev, true, nil
		}
		return nil, false, err
	}

	sports, _ := next["sports"].([]any)
	if len(sports) == 0 {
		// Stale-while-revalidate: a zero-sport refresh looks like a feed
		// glitch, not a real empty taxonomy. Keep serving the prior value.
		c.mu.RLock()
		prev := c.doc
		c.mu.RUnlock()
		if prev != nil {
			return prev, true, nil
		}
	}

	c.mu.Lock()
	c.doc = next
	c.cachedAt = time.Now()
	c.nameIndex, c.aliasIdx = buildIndexes(next)
	c.mu.Unlock()
	return next, false, nil
}

// Name resolves a sport/region/competition id to its display name using
// the derived index, which is invalidated whenever the underlying
// document is replaced (spec.md §4.8).
func (c *Cache) Name(id string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.nameIndex[id]
	return name, ok
}

// Alias resolves an alias to its canonical name.
func (c *Cache) Alias(alias string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.aliasIdx[alias]
	return name, ok
}

func buildIndexes(doc Document) (map[string]string, map[string]string) {
	names := make(map[string]string)
	aliases := make(map[string]string)
	sports, _ := doc["sports"].([]any)
	for _, raw := range sports {
		sport, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		id, _ := sport["id"].(string)
		name, _ := sport["name"].(string)
		if id != "" && name != "" {
			names[id] = name
		}
		if alias, ok := sport["alias"].(string); ok && alias != "" {
			aliases[alias] = name
		}
	}
	return names, aliases
}
