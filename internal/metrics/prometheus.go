// Package metrics implements the rolling counters, active-group leases and
// periodic persistence of spec.md §4.7, exposed both through the spec's own
// rollups and through a Prometheus registry, the way
// go-server-3/internal/metrics wires promauto collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromRegistry wraps the Prometheus collectors mirroring Aggregator's
// rollups, so an operator can scrape them from /metrics. The JSON /health
// endpoint does not include the rollups.
type PromRegistry struct {
	MessagesTotal     prometheus.Counter
	ParseErrorsTotal  prometheus.Counter
	ActiveGames       prometheus.Gauge
	ActiveSubscribers prometheus.Gauge
	UpstreamConnected prometheus.Gauge
	BroadcastDropped  prometheus.Counter
}

// NewPromRegistry creates Prometheus metrics collectors.
func NewPromRegistry() *PromRegistry {
	return &PromRegistry{
		MessagesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sporthub_upstream_messages_total",
			Help: "Total number of inbound upstream messages processed",
		}),
		ParseErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sporthub_upstream_parse_errors_total",
			Help: "Total number of inbound upstream frames that failed to decode",
		}),
		ActiveGames: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sporthub_live_tracker_active_games",
			Help: "Number of live-tracker games with at least one subscriber",
		}),
		ActiveSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sporthub_active_subscribers",
			Help: "Total SSE subscribers across all live-tracker leases",
		}),
		UpstreamConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sporthub_live_tracker_upstream_connected_games",
			Help: "Number of live-tracker games with a connected upstream feed",
		}),
		BroadcastDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sporthub_broadcast_dropped_total",
			Help: "Total number of broadcast frames dropped due to a full subscriber buffer",
		}),
	}
}

// Handler returns an HTTP handler exposing Prometheus metrics.
func (r *PromRegistry) Handler() http.Handler {
	return promhttp.Handler()
}
