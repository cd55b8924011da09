// Package config loads runtime configuration for the hub from environment
// variables and an optional config file, the way go-server-3/internal/config
// loads its websocket server's configuration with viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the hub.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Upstream    UpstreamConfig    `mapstructure:"upstream"`
	LiveTracker LiveTrackerConfig `mapstructure:"live_tracker"`
	Group       GroupConfig       `mapstructure:"group"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig contains the HTTP/SSE edge's listener settings.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	CORSOrigin   string        `mapstructure:"cors_origin"`
}

// UpstreamConfig points at the sportsbook feed (spec §6 "environment knobs").
type UpstreamConfig struct {
	FeedURL        string        `mapstructure:"feed_url"`
	PartnerID      string        `mapstructure:"partner_id"`
	SiteID         string        `mapstructure:"site_id"`
	Language       string        `mapstructure:"language"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RingCapacity   int           `mapstructure:"ring_capacity"`
}

// LiveTrackerConfig points at the second, per-game animation feed (§4.6).
type LiveTrackerConfig struct {
	FeedURL   string `mapstructure:"feed_url"`
	PartnerID string `mapstructure:"partner_id"`
	SiteRef   string `mapstructure:"site_ref"`
}

// GroupConfig carries the tunable timers named in spec.md §5.
type GroupConfig struct {
	Grace            time.Duration `mapstructure:"grace"`
	Heartbeat        time.Duration `mapstructure:"heartbeat"`
	CountsWatchdog   time.Duration `mapstructure:"counts_watchdog"`
	PrematchPoll     time.Duration `mapstructure:"prematch_poll"`
	OddsCursorPoll   time.Duration `mapstructure:"odds_cursor_poll"`
	OddsCursorChunk  int           `mapstructure:"odds_cursor_chunk"`
	OddsEntryTTL     time.Duration `mapstructure:"odds_entry_ttl"`
	OddsMaxCache     int           `mapstructure:"odds_max_cache"`
	OddsStaleAfter   time.Duration `mapstructure:"odds_stale_after"`
	FullSnapshotTick time.Duration `mapstructure:"full_snapshot_tick"`
	HierarchyTTL     time.Duration `mapstructure:"hierarchy_ttl"`
	MarketPriorityTTL time.Duration `mapstructure:"market_priority_ttl"`
}

// MetricsConfig controls the Prometheus exposition endpoint and the
// opportunistic flush cadence of the rolling aggregator (§4.7).
type MetricsConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	ListenAddr string        `mapstructure:"listen_addr"`
	Endpoint   string        `mapstructure:"endpoint"`
	FlushEvery time.Duration `mapstructure:"flush_every"`
	StorePath  string        `mapstructure:"store_path"`
}

// LoggingConfig controls zap logger level/encoding.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load reads configuration from flags, environment variables (prefixed
// SPORTHUB_) and an optional config file named sporthub.{yaml,json,...}.
func Load(flags *pflag.FlagSet) (Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 0) // SSE responses are long-lived
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.cors_origin", "dob-edge*.pages.dev")

	v.SetDefault("upstream.feed_url", "wss://feed.example.com/ws")
	v.SetDefault("upstream.partner_id", "")
	v.SetDefault("upstream.site_id", "1")
	v.SetDefault("upstream.language", "en")
	v.SetDefault("upstream.connect_timeout", 15*time.Second)
	v.SetDefault("upstream.request_timeout", 60*time.Second)
	v.SetDefault("upstream.ring_capacity", 2000)

	v.SetDefault("live_tracker.feed_url", "wss://tracker.example.com/ws")
	v.SetDefault("live_tracker.partner_id", "")
	v.SetDefault("live_tracker.site_ref", "")

	v.SetDefault("group.grace", 30*time.Second)
	v.SetDefault("group.heartbeat", 15*time.Second)
	v.SetDefault("group.counts_watchdog", 15*time.Second)
	v.SetDefault("group.prematch_poll", 5*time.Second)
	v.SetDefault("group.odds_cursor_poll", 2500*time.Millisecond)
	v.SetDefault("group.odds_cursor_chunk", 30)
	v.SetDefault("group.odds_entry_ttl", time.Hour)
	v.SetDefault("group.odds_max_cache", 1000)
	v.SetDefault("group.odds_stale_after", 60*time.Second)
	v.SetDefault("group.full_snapshot_tick", 15*time.Second)
	v.SetDefault("group.hierarchy_ttl", 30*time.Minute)
	v.SetDefault("group.market_priority_ttl", 12*time.Hour)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen_addr", ":9090")
	v.SetDefault("metrics.endpoint", "/metrics")
	v.SetDefault("metrics.flush_every", 5*time.Second)
	v.SetDefault("metrics.store_path", "sporthub-metrics.json")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	v.SetConfigName("sporthub")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("SPORTHUB")
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
	}
	_ = v.ReadInConfig() // config file is optional

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config unmarshal: %w", err)
	}

	if cfg.Group.OddsMaxCache <= 0 {
		cfg.Group.OddsMaxCache = 1000
	}
	if cfg.Group.OddsCursorChunk <= 0 {
		cfg.Group.OddsCursorChunk = 30
	}
	if cfg.Upstream.RingCapacity <= 0 {
		cfg.Upstream.RingCapacity = 2000
	}

	return cfg, nil
}

// Flags registers the command-line flags Load will bind into viper.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("sporthub", pflag.ContinueOnError)
	fs.String("config", "", "path to a config file, read instead of the sporthub.* search")
	fs.Int("server.port", 8080, "HTTP/SSE listen port")
	fs.String("upstream.feed_url", "", "sportsbook upstream feed URL")
	return fs
}
