package groups

import (
	"context"
	"sync"
	"time"

	"sporthub/internal/upstream"
)

// footballLikeFallback and defaultFallback are the static main-market
// priority lists named in spec.md §4.3. The dynamic, per-sport list (when
// available) is prepended and de-duplicated against these.
var (
	footballLikeFallback = []string{"P1XP2", "W1XW2", "1X2", "MATCH_RESULT", "MATCHRESULT"}
	defaultFallback      = []string{"P1P2", "P1XP2", "W1W2", "W1XW2"}
)

// footballLikeSports names the sport ids treated as "football-like" for
// main-market selection (spec.md §4.3). Exposed as a var, not a const, so
// a deployment can extend it without a code change.
var footballLikeSports = map[string]bool{
	"1": true, // football/soccer, by upstream convention
}

type priorityEntry struct {
	list      []string
	fetchedAt time.Time
}

// marketPriorityCache caches the dynamic, per-sport main-market priority
// list for marketPriorityTTL, falling back to the static list whenever the
// upstream has none configured (spec.md §9 "Dynamic market-type priority").
type marketPriorityCache struct {
	mu      sync.Mutex
	entries map[string]priorityEntry
	ttl     time.Duration
}

func newMarketPriorityCache(ttl time.Duration) *marketPriorityCache {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &marketPriorityCache{entries: make(map[string]priorityEntry), ttl: ttl}
}

// priorityFor returns the full ordered priority list for a sport: the
// cached/fetched dynamic list (deduplicated) followed by the static
// fallback appropriate to that sport.
func (c *marketPriorityCache) priorityFor(ctx context.Context, session *upstream.Session, sportID string) []string {
	fallback := defaultFallback
	if footballLikeSports[sportID] {
		fallback = footballLikeFallback
	}

	dynamic := c.dynamicFor(ctx, session, sportID)
	if len(dynamic) == 0 {
		return fallback
	}

	seen := make(map[string]bool, len(dynamic)+len(fallback))
	out := make([]string, 0, len(dynamic)+len(fallback))
	for _, m := range dynamic {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	for _, m := range fallback {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

func (c *marketPriorityCache) dynamicFor(ctx context.Context, session *upstream.Session, sportID string) []string {
	c.mu.Lock()
	entry, ok := c.entries[sportID]
	fresh := ok && time.Since(entry.fetchedAt) < c.ttl
	c.mu.Unlock()
	if fresh {
		return entry.list
	}

	reply, err := session.Request(ctx, "get_market_priority", map[string]any{"sport_id": sportID}, 15*time.Second)
	if err != nil {
		// The upstream's response may legitimately be empty or
		// unreachable; the caller falls back to the static list
		// (spec.md §9). The failure is cached as an empty list for the
		// full TTL, so this sport is not asked for again until it expires.
		c.mu.Lock()
		c.entries[sportID] = priorityEntry{list: nil, fetchedAt: time.Now()}
		c.mu.Unlock()
		return nil
	}

	raw, _ := reply["market_types"].([]any)
	list := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			list = append(list, s)
		}
	}

	c.mu.Lock()
	c.entries[sportID] = priorityEntry{list: list, fetchedAt: time.Now()}
	c.mu.Unlock()
	return list
}
