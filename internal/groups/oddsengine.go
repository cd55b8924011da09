package groups

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"sporthub/internal/fingerprint"
	"sporthub/internal/oddscache"
)

// OddsEntry is one priced outcome as carried on the wire (spec.md §6
// "odds" payload shape).
type OddsEntry struct {
	Label   string `json:"label"`
	Price   string `json:"price"`
	Blocked bool   `json:"blocked"`
}

// OddsUpdate is one game's changed odds within an "odds" event.
type OddsUpdate struct {
	GameID       string      `json:"gameId"`
	Odds         []OddsEntry `json:"odds"`
	MarketsCount int         `json:"markets_count"`
}

var labelOrder = map[string]int{"1": 0, "X": 1, "2": 2}

// selectMainMarket returns the first market whose type matches the
// priority list, in priority order (spec.md §4.3 "Main-market selection").
func selectMainMarket(markets []any, priority []string) map[string]any {
	for _, want := range priority {
		for _, raw := range markets {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if t, _ := m["type"].(string); t == want {
				return m
			}
		}
	}
	return nil
}

// buildOdds resolves each event's label per spec.md §4.3 "Label
// resolution" and returns them ordered {1, X, 2}.
func buildOdds(market map[string]any) []OddsEntry {
	events, _ := market["events"].([]any)
	out := make([]OddsEntry, 0, len(events))
	for i, raw := range events {
		e, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		label := resolveLabel(e, i, len(events))
		price := priceString(e["price"])
		blocked, _ := e["blocked"].(bool)
		out = append(out, OddsEntry{Label: label, Price: price, Blocked: blocked})
	}
	sort.SliceStable(out, func(i, j int) bool { return labelOrder[out[i].Label] < labelOrder[out[j].Label] })
	return out
}

func resolveLabel(e map[string]any, index, total int) string {
	switch t, _ := e["type"].(string); t {
	case "P1":
		return "1"
	case "P2":
		return "2"
	case "X":
		return "X"
	}
	name, _ := e["name"].(string)
	lname := strings.ToLower(name)
	if lname == "x" || strings.Contains(lname, "draw") {
		return "X"
	}
	switch index {
	case 0:
		return "1"
	case total - 1:
		return "2"
	default:
		return "X"
	}
}

func priceString(v any) string {
	switch p := v.(type) {
	case string:
		return p
	case float64:
		return strconv.FormatFloat(p, 'f', -1, 64)
	default:
		return ""
	}
}

// oddsEngine implements the shared sport-odds / competition-odds cache and
// emission logic described in spec.md §4.3 items 3 and 5, and the gate
// rules in §4.5.
type oddsEngine struct {
	g                *group
	cache            *oddscache.Cache
	priority         []string
	fullSnapshotTick time.Duration
	lastFullSnapshot time.Time
}

func newOddsEngine(g *group, cache *oddscache.Cache, tick time.Duration) *oddsEngine {
	return &oddsEngine{g: g, cache: cache, fullSnapshotTick: tick}
}

// Ingest processes a batch of games, updates the cache, and returns the
// set of per-game updates whose OddsFp or markets_count changed since last
// sent (spec.md §4.5 "Odds update").
func (e *oddsEngine) Ingest(games []map[string]any, now time.Time) []OddsUpdate {
	var updates []OddsUpdate
	for _, game := range games {
		gameID := gameIDOf(game)
		if gameID == "" {
			continue
		}
		markets, _ := game["markets"].([]any)
		marketsCount := len(markets)
		if mc, ok := game["markets_count"].(float64); ok {
			marketsCount = int(mc)
		}

		main := selectMainMarket(markets, e.priority)
		var fp string
		var odds []OddsEntry
		if main != nil {
			fp = fingerprint.OddsFp(main)
			odds = buildOdds(main)
		}

		cached, ok := e.cache.Get(gameID, now)
		changed := !ok || cached.Fingerprint != fp || cached.MarketsCount != marketsCount
		e.cache.Put(&oddscache.Entry{
			GameID: gameID, Odds: toAnySlice(odds), MarketsCount: marketsCount,
			Fingerprint: fp, UpdatedAt: now,
		})
		if !changed {
			e.cache.Touch(gameID, now)
			continue
		}
		updates = append(updates, OddsUpdate{GameID: gameID, Odds: odds, MarketsCount: marketsCount})
	}
	return updates
}

// MaybeFullSnapshot rebuilds a coalesced payload from the whole cache at
// most every fullSnapshotTick, bounding attach-replay size (spec.md §4.3
// item 3).
func (e *oddsEngine) MaybeFullSnapshot(now time.Time) ([]OddsUpdate, bool) {
	if now.Sub(e.lastFullSnapshot) < e.fullSnapshotTick {
		return nil, false
	}
	e.lastFullSnapshot = now
	entries := e.cache.Snapshot(now)
	out := make([]OddsUpdate, 0, len(entries))
	for _, en := range entries {
		out = append(out, OddsUpdate{GameID: en.GameID, Odds: fromAnySlice(en.Odds), MarketsCount: en.MarketsCount})
	}
	return out, true
}

func toAnySlice(odds []OddsEntry) []any {
	out := make([]any, len(odds))
	for i, o := range odds {
		out[i] = o
	}
	return out
}

func fromAnySlice(odds []any) []OddsEntry {
	out := make([]OddsEntry, 0, len(odds))
	for _, raw := range odds {
		if o, ok := raw.(OddsEntry); ok {
			out = append(out, o)
		}
	}
	return out
}

func gameIDOf(game map[string]any) string {
	switch v := game["id"].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	default:
		return ""
	}
}
