package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Fatalf("Server.Host = %q, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Group.Grace != 30*time.Second {
		t.Fatalf("Group.Grace = %v, want 30s", cfg.Group.Grace)
	}
	if cfg.Upstream.RingCapacity != 2000 {
		t.Fatalf("Upstream.RingCapacity = %d, want 2000", cfg.Upstream.RingCapacity)
	}
	if !cfg.Metrics.Enabled {
		t.Fatal("Metrics.Enabled default should be true")
	}
}

func TestLoadOverridesFromBoundFlags(t *testing.T) {
	flags := Flags()
	if err := flags.Parse([]string{"--server.port=9999", "--upstream.feed_url=wss://override.example.com/ws"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cfg, err := Load(flags)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Fatalf("Server.Port = %d, want 9999 (flag override)", cfg.Server.Port)
	}
	if cfg.Upstream.FeedURL != "wss://override.example.com/ws" {
		t.Fatalf("Upstream.FeedURL = %q, want the overridden flag value", cfg.Upstream.FeedURL)
	}
}

func TestLoadFloorsNonPositiveGroupTunables(t *testing.T) {
	// With no key replacer, AutomaticEnv looks these keys up under their
	// dotted upper-case names.
	t.Setenv("SPORTHUB_GROUP.ODDS_MAX_CACHE", "0")
	t.Setenv("SPORTHUB_GROUP.ODDS_CURSOR_CHUNK", "-5")

	flags := Flags()
	cfg, err := Load(flags)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// The non-positive overrides must be floored to the documented values.
	if cfg.Group.OddsMaxCache != 1000 {
		t.Fatalf("OddsMaxCache = %d, want floor 1000", cfg.Group.OddsMaxCache)
	}
	if cfg.Group.OddsCursorChunk != 30 {
		t.Fatalf("OddsCursorChunk = %d, want floor 30", cfg.Group.OddsCursorChunk)
	}
}
