package fingerprint

import (
	"fmt"
	"testing"
)

func TestMergeDeltaDeletesOnNull(t *testing.T) {
	dst := map[string]any{"a": 1.0, "b": map[string]any{"c": 2.0}}
	delta := map[string]any{"a": nil}
	out := MergeDelta(dst, delta)
	if _, ok := out["a"]; ok {
		t.Fatalf("expected key a to be deleted, got %v", out)
	}
	if out["b"].(map[string]any)["c"] != 2.0 {
		t.Fatalf("expected nested map untouched, got %v", out["b"])
	}
}

func TestMergeDeltaIsIdempotent(t *testing.T) {
	dst := map[string]any{"a": 1.0, "nested": map[string]any{"x": "y"}}
	delta := map[string]any{"a": 1.0, "nested": map[string]any{"x": "y"}}
	before := fmtMap(dst)
	MergeDelta(dst, delta)
	if fmtMap(dst) != before {
		t.Fatalf("merge of identical delta changed state: before=%s after=%s", before, fmtMap(dst))
	}
}

// fmtMap renders the whole map; fmt prints map keys in sorted order, so equal
// maps render identically.
func fmtMap(m map[string]any) string {
	return fmt.Sprintf("%v", m)
}

func TestGameFpStableUnderReordering(t *testing.T) {
	game := map[string]any{
		"markets": []any{
			map[string]any{
				"id": "2", "type": "1X2", "display_key": "main",
				"events": []any{
					map[string]any{"id": "b", "order": 1.0, "price": "1.5", "base": "1"},
					map[string]any{"id": "a", "order": 0.0, "price": "2.0", "base": "1"},
				},
			},
			map[string]any{"id": "1", "type": "OU", "display_key": "totals", "events": []any{}},
		},
	}
	gameReordered := map[string]any{
		"markets": []any{
			map[string]any{"id": "1", "type": "OU", "display_key": "totals", "events": []any{}},
			map[string]any{
				"id": "2", "type": "1X2", "display_key": "main",
				"events": []any{
					map[string]any{"id": "a", "order": 0.0, "price": "2.0", "base": "1"},
					map[string]any{"id": "b", "order": 1.0, "price": "1.5", "base": "1"},
				},
			},
		},
	}
	if GameFp(game) != GameFp(gameReordered) {
		t.Fatalf("expected reordered markets/events to produce identical fingerprint")
	}
}

func TestGameFpChangesOnPriceMove(t *testing.T) {
	base := map[string]any{
		"markets": []any{
			map[string]any{
				"id": "2", "type": "1X2", "display_key": "main",
				"events": []any{
					map[string]any{"id": "a", "order": 0.0, "price": "1.50", "base": "1"},
				},
			},
		},
	}
	moved := map[string]any{
		"markets": []any{
			map[string]any{
				"id": "2", "type": "1X2", "display_key": "main",
				"events": []any{
					map[string]any{"id": "a", "order": 0.0, "price": "1.55", "base": "1"},
				},
			},
		},
	}
	if GameFp(base) == GameFp(moved) {
		t.Fatalf("expected price move to change fingerprint")
	}
}

func TestCountsFpSortedByName(t *testing.T) {
	a := CountsFp([]CountEntry{{Name: "tennis", Count: 3}, {Name: "football", Count: 5}})
	b := CountsFp([]CountEntry{{Name: "football", Count: 5}, {Name: "tennis", Count: 3}})
	if a != b {
		t.Fatalf("expected order-independent fingerprint, got %q vs %q", a, b)
	}
}

func TestUnwrapPeelsNestedData(t *testing.T) {
	payload := map[string]any{"data": map[string]any{"data": map[string]any{"sports": []any{}}}}
	got := Unwrap(payload)
	if _, ok := got["sports"]; !ok {
		t.Fatalf("expected double-unwrap to reach sports key, got %v", got)
	}
}

func TestExtractGamesFlatMap(t *testing.T) {
	doc := map[string]any{
		"games": map[string]any{
			"10": map[string]any{"id": "10"},
			"2":  map[string]any{"id": "2"},
		},
	}
	games := ExtractGames(doc)
	if len(games) != 2 {
		t.Fatalf("expected 2 games, got %d", len(games))
	}
}

func TestExtractGamesSequence(t *testing.T) {
	doc := map[string]any{
		"games": []any{
			map[string]any{"id": "1"},
			map[string]any{"id": "2"},
		},
	}
	games := ExtractGames(doc)
	if len(games) != 2 {
		t.Fatalf("expected 2 games, got %d", len(games))
	}
}
