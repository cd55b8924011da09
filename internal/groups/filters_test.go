package groups

import "testing"

func TestContainsFinishMarkerIsCaseInsensitive(t *testing.T) {
	if !containsFinishMarker("Match FINISHED") {
		t.Fatal("should match 'finished' case-insensitively")
	}
	if containsFinishMarker("in progress") {
		t.Fatal("should not match an unrelated phrase")
	}
}

func TestIsLiveGameRequiresTypeOneAndNotOutright(t *testing.T) {
	live := map[string]any{"type": 1.0}
	if !isLiveGame(live) {
		t.Fatal("type=1 game should be live")
	}

	outright := map[string]any{"type": 1.0, "is_outright": true}
	if isLiveGame(outright) {
		t.Fatal("an outright should never be considered live")
	}

	notLiveFlag := map[string]any{"type": 1.0, "is_live": false}
	if isLiveGame(notLiveFlag) {
		t.Fatal("is_live=false should exclude the game")
	}

	prematchType := map[string]any{"type": 0.0}
	if isLiveGame(prematchType) {
		t.Fatal("type=0 should never be live")
	}
}

func TestIsLiveGameExcludesFinishedByStateFields(t *testing.T) {
	finished := map[string]any{
		"type": 1.0,
		"info": map[string]any{"current_game_state": "Final"},
	}
	if isLiveGame(finished) {
		t.Fatal("a game whose state mentions 'Final' should not be live")
	}
}

func TestIsPrematchGameByVisibilityFlagOrType(t *testing.T) {
	byFlag := map[string]any{"visible_in_prematch": 1.0, "type": 1.0}
	if !isPrematchGame(byFlag) {
		t.Fatal("visible_in_prematch=1 should mark prematch regardless of type")
	}
	byType := map[string]any{"type": 2.0}
	if !isPrematchGame(byType) {
		t.Fatal("type=2 should be prematch")
	}
	neither := map[string]any{"type": 1.0}
	if isPrematchGame(neither) {
		t.Fatal("type=1 with no visibility flag should not be prematch")
	}
}

func TestStringFieldWalksNestedPath(t *testing.T) {
	m := map[string]any{"info": map[string]any{"current_game_state": "Live"}}
	if got := stringField(m, "info", "current_game_state"); got != "Live" {
		t.Fatalf("stringField = %q, want Live", got)
	}
	if got := stringField(m, "info", "missing"); got != "" {
		t.Fatalf("stringField for missing key = %q, want empty", got)
	}
}

func TestFilterGamesKeepsOnlyMatching(t *testing.T) {
	games := []map[string]any{
		{"id": "1", "type": 1.0},
		{"id": "2", "type": 0.0},
	}
	out := filterGames(games, isLiveGame)
	if len(out) != 1 || out[0]["id"] != "1" {
		t.Fatalf("filterGames result = %v, want only game 1", out)
	}
}
