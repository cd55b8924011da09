package metrics

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"sporthub/internal/store"
)

// HealthLease asserts that a live-tracker instance has active subscribers
// (spec.md §3 "HealthLease", §4.7).
type HealthLease struct {
	GameID            string    `json:"gameId"`
	SSEClients        int       `json:"sseClients"`
	UpstreamConnected bool      `json:"upstreamConnected"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

// Totals are the all-time counters named in spec.md §3 "UpstreamSession".
type Totals struct {
	Messages    uint64    `json:"messages"`
	ParseErrors uint64    `json:"parseErrors"`
	LastSeen    time.Time `json:"lastSeen"`
}

// Rollup is the computed summary spec.md §4.7 names: "active games (leases
// with clients > 0), active subscribers (sum), upstream-connected games".
type Rollup struct {
	ActiveGames           int `json:"activeGames"`
	ActiveSubscribers     int `json:"activeSubscribers"`
	UpstreamConnectedGames int `json:"upstreamConnectedGames"`
}

type snapshot struct {
	Totals  Totals                  `json:"totals"`
	Buckets []uint64                `json:"buckets"`
	Leases  map[string]*HealthLease `json:"leases"`
}

// Aggregator is the singleton metrics collector named in spec.md §4.7. It
// never returns an error from its recording methods: observability must
// remain fire-and-forget so a metrics failure can never break the hub
// (spec.md §9 "Observability").
type Aggregator struct {
	mu          sync.Mutex
	totals      Totals
	buckets     [60]uint64 // one bucket per second-of-minute, rolling
	bucketStamp [60]int64  // unix-second each bucket slot was last written
	leases      map[string]*HealthLease
	leaseTTL    time.Duration

	prom  *PromRegistry
	store store.Store
}

// NewAggregator creates an Aggregator. prom and st may both be nil in
// tests.
func NewAggregator(prom *PromRegistry, st store.Store, leaseTTL time.Duration) *Aggregator {
	if leaseTTL <= 0 {
		leaseTTL = 20 * time.Second
	}
	return &Aggregator{leases: make(map[string]*HealthLease), leaseTTL: leaseTTL, prom: prom, store: st}
}

// Report records n new messages and p new parse errors observed at now.
// Fire-and-forget: callers never check a return value.
func (a *Aggregator) Report(now time.Time, n, p uint64) {
	a.mu.Lock()
	a.totals.Messages += n
	a.totals.ParseErrors += p
	a.totals.LastSeen = now
	slot := int(now.Unix() % 60)
	if a.bucketStamp[slot] != now.Unix() {
		a.buckets[slot] = 0
		a.bucketStamp[slot] = now.Unix()
	}
	a.buckets[slot] += n
	a.mu.Unlock()

	if a.prom != nil {
		if n > 0 {
			a.prom.MessagesTotal.Add(float64(n))
		}
		if p > 0 {
			a.prom.ParseErrorsTotal.Add(float64(p))
		}
	}
}

// RecordDrop notes a broadcast frame dropped to a slow subscriber.
func (a *Aggregator) RecordDrop() {
	if a.prom != nil {
		a.prom.BroadcastDropped.Inc()
	}
}

// RenewLease upserts a live-tracker game's lease, extending its expiry.
func (a *Aggregator) RenewLease(gameID string, sseClients int, upstreamConnected bool, now time.Time) {
	a.mu.Lock()
	a.leases[gameID] = &HealthLease{
		GameID:            gameID,
		SSEClients:        sseClients,
		UpstreamConnected: upstreamConnected,
		ExpiresAt:         now.Add(a.leaseTTL),
	}
	a.mu.Unlock()
}

// pruneLocked removes expired leases. Caller must hold a.mu.
func (a *Aggregator) pruneLocked(now time.Time) {
	for id, l := range a.leases {
		if now.After(l.ExpiresAt) {
			delete(a.leases, id)
		}
	}
}

// Rollup computes the active-games/subscribers/upstream-connected summary,
// pruning expired leases first (spec.md §4.7: "Expired leases are pruned
// on every read").
func (a *Aggregator) Rollup(now time.Time) Rollup {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pruneLocked(now)

	var r Rollup
	for _, l := range a.leases {
		if l.SSEClients > 0 {
			r.ActiveGames++
			r.ActiveSubscribers += l.SSEClients
		}
		if l.UpstreamConnected {
			r.UpstreamConnectedGames++
		}
	}
	if a.prom != nil {
		a.prom.ActiveGames.Set(float64(r.ActiveGames))
		a.prom.ActiveSubscribers.Set(float64(r.ActiveSubscribers))
		a.prom.UpstreamConnected.Set(float64(r.UpstreamConnectedGames))
	}
	return r
}

// Totals returns the all-time counters.
func (a *Aggregator) Totals() Totals {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totals
}

// Flush persists a snapshot to the backing store. Errors are logged by the
// caller, never surfaced into the hub's control flow.
func (a *Aggregator) Flush() error {
	if a.store == nil {
		return nil
	}
	a.mu.Lock()
	snap := snapshot{
		Totals:  a.totals,
		Buckets: append([]uint64(nil), a.buckets[:]...),
		Leases:  cloneLeases(a.leases),
	}
	a.mu.Unlock()

	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return a.store.Put("metrics", raw)
}

func cloneLeases(in map[string]*HealthLease) map[string]*HealthLease {
	out := make(map[string]*HealthLease, len(in))
	for k, v := range in {
		cp := *v
		out[k] = &cp
	}
	return out
}

// RunFlushLoop persists the aggregator on a coalesced cadence until ctx is
// cancelled (spec.md §4.7 "Persistence is opportunistic").
func (a *Aggregator) RunFlushLoop(ctx context.Context, every time.Duration, onErr func(error)) {
	if every <= 0 {
		every = 5 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.Flush(); err != nil && onErr != nil {
				onErr(err)
			}
		}
	}
}
