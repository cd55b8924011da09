package fingerprint

import (
	"fmt"
	"sort"
	"strings"
)

// CountEntry is one (sport name, game count) pair as carried in counts
// payloads (spec.md §6 "counts").
type CountEntry struct {
	Name  string
	Count int
}

func str(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return formatNumber(v)
	default:
		return ""
	}
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return itoa(int64(f))
	}
	return fmt.Sprintf("%g", f)
}

func num(m map[string]any, key string) float64 {
	if f, ok := m[key].(float64); ok {
		return f
	}
	return 0
}

// eventsConcat orders a market's events by (order asc, id lex) and joins
// each as "id:price:base", per spec.md §4.1.
func eventsConcat(market map[string]any) string {
	events, _ := market["events"].([]any)
	type ev struct {
		order float64
		id    string
		price string
		base  string
	}
	list := make([]ev, 0, len(events))
	for _, raw := range events {
		e, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		list = append(list, ev{
			order: num(e, "order"),
			id:    str(e, "id"),
			price: str(e, "price"),
			base:  str(e, "base"),
		})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].order != list[j].order {
			return list[i].order < list[j].order
		}
		return list[i].id < list[j].id
	})
	parts := make([]string, len(list))
	for i, e := range list {
		parts[i] = e.id + ":" + e.price + ":" + e.base
	}
	return strings.Join(parts, ",")
}

// marketOddsFp computes one market's fingerprint contribution.
func marketOddsFp(market map[string]any) string {
	return strings.Join([]string{
		str(market, "id"),
		str(market, "type"),
		str(market, "display_key"),
		eventsConcat(market),
	}, "|")
}

// OddsFp computes the fingerprint of a single market.
func OddsFp(market map[string]any) string {
	return marketOddsFp(market)
}

// GameFp computes a game's fingerprint: markets sorted by market id, each
// contributing "mid|id|type|display_key|eventsConcat", joined.
func GameFp(game map[string]any) string {
	markets, _ := game["markets"].([]any)
	contributions := make([]string, 0, len(markets))
	for _, raw := range markets {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		contributions = append(contributions, str(m, "id")+"|"+marketOddsFp(m))
	}
	sort.Strings(contributions)
	return strings.Join(contributions, ";")
}

// SportFp computes a sport-games snapshot's fingerprint over the supplied
// game list: per game (id|markets_count|text_info|score|phase|clock|added_minutes),
// sorted ascending, joined.
func SportFp(games []map[string]any) string {
	parts := make([]string, 0, len(games))
	for _, g := range games {
		parts = append(parts, strings.Join([]string{
			str(g, "id"),
			str(g, "markets_count"),
			str(g, "text_info"),
			str(g, "score"),
			str(g, "phase"),
			str(g, "clock"),
			str(g, "added_minutes"),
		}, "|"))
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}

// CountsFp computes a counts list's fingerprint: "(name:count)" entries
// sorted by name.
func CountsFp(entries []CountEntry) string {
	sorted := make([]CountEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	parts := make([]string, len(sorted))
	for i, e := range sorted {
		parts[i] = fmt.Sprintf("%s:%d", e.Name, e.Count)
	}
	return strings.Join(parts, ",")
}
