package groups

import (
	"context"
	"testing"
	"time"
)

func TestPriorityForUsesFootballFallbackForFootballSport(t *testing.T) {
	c := newMarketPriorityCache(time.Hour)
	// A fresh, empty cached dynamic list: the upstream has none configured,
	// and dynamicFor never reaches the (nil) session.
	c.entries["1"] = priorityEntry{fetchedAt: time.Now()}
	got := c.priorityFor(context.Background(), nil, "1")
	if len(got) == 0 || got[0] != footballLikeFallback[0] {
		t.Fatalf("priorityFor(sport=1) = %v, want football-like fallback", got)
	}
}

func TestPriorityForUsesDefaultFallbackForOtherSports(t *testing.T) {
	c := newMarketPriorityCache(time.Hour)
	c.entries["99"] = priorityEntry{fetchedAt: time.Now()}
	got := c.priorityFor(context.Background(), nil, "99")
	if len(got) == 0 || got[0] != defaultFallback[0] {
		t.Fatalf("priorityFor(sport=99) = %v, want default fallback", got)
	}
}

func TestPriorityForPrependsCachedDynamicListDeduped(t *testing.T) {
	c := newMarketPriorityCache(time.Hour)
	// Pre-seed a fresh cached dynamic list so dynamicFor never reaches the
	// upstream session (still nil here).
	c.entries["1"] = priorityEntry{
		list:      []string{"CUSTOM_MARKET", "1X2"}, // "1X2" also appears in the static fallback
		fetchedAt: time.Now(),
	}

	got := c.priorityFor(context.Background(), nil, "1")
	if got[0] != "CUSTOM_MARKET" {
		t.Fatalf("dynamic entry should be prioritized first, got %v", got)
	}
	count := 0
	for _, m := range got {
		if m == "1X2" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("1X2 should appear exactly once after dedup, got %d occurrences in %v", count, got)
	}
}

func TestDynamicForReturnsFreshCacheWithoutRefetch(t *testing.T) {
	c := newMarketPriorityCache(time.Hour)
	c.entries["1"] = priorityEntry{list: []string{"A"}, fetchedAt: time.Now()}
	got := c.dynamicFor(context.Background(), nil, "1")
	if len(got) != 1 || got[0] != "A" {
		t.Fatalf("dynamicFor = %v, want cached [A] without touching a nil session", got)
	}
}
