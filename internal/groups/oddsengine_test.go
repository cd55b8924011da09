package groups

import (
	"testing"
	"time"

	"sporthub/internal/oddscache"
)

func TestSelectMainMarketHonorsPriorityOrder(t *testing.T) {
	markets := []any{
		map[string]any{"type": "over_under"},
		map[string]any{"type": "1x2"},
	}
	got := selectMainMarket(markets, []string{"1x2", "over_under"})
	if got == nil || got["type"] != "1x2" {
		t.Fatalf("selectMainMarket = %v, want the 1x2 market", got)
	}
}

func TestSelectMainMarketReturnsNilWhenNoneMatch(t *testing.T) {
	markets := []any{map[string]any{"type": "handicap"}}
	if got := selectMainMarket(markets, []string{"1x2"}); got != nil {
		t.Fatalf("selectMainMarket = %v, want nil", got)
	}
}

func TestBuildOddsOrdersAndResolvesDirectLabels(t *testing.T) {
	market := map[string]any{"events": []any{
		map[string]any{"type": "P2", "price": 2.5},
		map[string]any{"type": "X", "price": "3.1"},
		map[string]any{"type": "P1", "price": 1.8, "blocked": true},
	}}
	out := buildOdds(market)
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	if out[0].Label != "1" || out[1].Label != "X" || out[2].Label != "2" {
		t.Fatalf("labels not ordered {1,X,2}: %+v", out)
	}
	if out[0].Price != "1.8" || !out[0].Blocked {
		t.Fatalf("unexpected first entry: %+v", out[0])
	}
}

func TestResolveLabelFallsBackToNameThenPosition(t *testing.T) {
	draw := map[string]any{"name": "Draw"}
	if got := resolveLabel(draw, 1, 3); got != "X" {
		t.Fatalf("resolveLabel(name=Draw) = %q, want X", got)
	}
	first := map[string]any{}
	if got := resolveLabel(first, 0, 3); got != "1" {
		t.Fatalf("resolveLabel(index=0) = %q, want 1", got)
	}
	last := map[string]any{}
	if got := resolveLabel(last, 2, 3); got != "2" {
		t.Fatalf("resolveLabel(index=last) = %q, want 2", got)
	}
	middle := map[string]any{}
	if got := resolveLabel(middle, 1, 3); got != "X" {
		t.Fatalf("resolveLabel(index=middle) = %q, want X", got)
	}
}

func TestPriceStringHandlesStringAndFloat(t *testing.T) {
	if got := priceString("1.95"); got != "1.95" {
		t.Fatalf("priceString(string) = %q", got)
	}
	if got := priceString(2.0); got != "2" {
		t.Fatalf("priceString(float64) = %q, want 2", got)
	}
	if got := priceString(nil); got != "" {
		t.Fatalf("priceString(nil) = %q, want empty", got)
	}
}

func TestOddsEngineIngestEmitsOnlyChangedGames(t *testing.T) {
	e := newOddsEngine(nil, oddscache.New(10, time.Hour), time.Hour)
	e.priority = []string{"1x2"}
	now := time.Now()

	game := func(id string, price float64) map[string]any {
		return map[string]any{
			"id": id,
			"markets": []any{
				map[string]any{"type": "1x2", "events": []any{
					map[string]any{"type": "P1", "price": price},
				}},
			},
		}
	}

	updates := e.Ingest([]map[string]any{game("1", 1.5)}, now)
	if len(updates) != 1 {
		t.Fatalf("first ingest: len = %d, want 1", len(updates))
	}

	updates = e.Ingest([]map[string]any{game("1", 1.5)}, now.Add(time.Second))
	if len(updates) != 0 {
		t.Fatalf("unchanged re-ingest: len = %d, want 0", len(updates))
	}

	updates = e.Ingest([]map[string]any{game("1", 1.6)}, now.Add(2*time.Second))
	if len(updates) != 1 {
		t.Fatalf("changed price re-ingest: len = %d, want 1", len(updates))
	}
}

func TestOddsEngineMaybeFullSnapshotRespectsTick(t *testing.T) {
	e := newOddsEngine(nil, oddscache.New(10, time.Hour), time.Minute)
	now := time.Now()

	if _, ok := e.MaybeFullSnapshot(now); !ok {
		t.Fatal("first call should always produce a snapshot")
	}
	if _, ok := e.MaybeFullSnapshot(now.Add(time.Second)); ok {
		t.Fatal("call within the tick window should be suppressed")
	}
	if _, ok := e.MaybeFullSnapshot(now.Add(2 * time.Minute)); !ok {
		t.Fatal("call past the tick window should produce a snapshot")
	}
}
