package groups

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sporthub/internal/broadcast"
	"sporthub/internal/fingerprint"
)

// countsKey is the single counts group's key (spec.md §4.3 item 1:
// "Counts (singleton)").
const countsKey = "counts"

type countsPayload struct {
	Sports     []fingerprint.CountEntry `json:"sports"`
	TotalGames int                      `json:"total_games"`
}

// AttachCounts attaches client to the singleton counts group, creating and
// subscribing it on first use. The returned func detaches client; callers
// must invoke it once the client's connection ends (spec.md §4.9 "wires
// the request-cancelled signal to client removal").
func (m *Manager) AttachCounts(ctx context.Context, client *broadcast.Client) (func(), error) {
	g, created := m.getOrCreate(countsKey, func() *group {
		return m.newCountsGroup()
	})
	if created {
		g.ensureUpstream(ctx)
	}
	g.Attach(client)
	return func() { g.Detach(client.ID) }, nil
}

func (m *Manager) newCountsGroup() *group {
	g := newGroup(countsKey, KindCounts, m.cfg, m.logger, m.removeGroup)

	var watchdogCancel context.CancelFunc

	ensure := func(ctx context.Context) {
		liveSubID, err := m.requestSubscribe(ctx, "subscribe_live_counts", nil)
		if err != nil {
			g.emitError(err.Error())
		} else {
			g.addSubscription(liveSubID)
			m.reg.Create(liveSubID, nil, func(state map[string]any) {
				m.onCountsDelta(g, "live_counts", state)
			})
		}

		prematchSubID, err := m.requestSubscribe(ctx, "subscribe_prematch_counts", nil)
		if err != nil {
			g.emitError(err.Error())
		} else {
			g.addSubscription(prematchSubID)
			m.reg.Create(prematchSubID, nil, func(state map[string]any) {
				m.onCountsDelta(g, "prematch_counts", state)
			})
		}

		if watchdogCancel == nil {
			wctx, cancel := context.WithCancel(context.Background())
			watchdogCancel = cancel
			go m.countsWatchdog(wctx, g)
		}
	}

	g.ensureUpstream = ensure
	g.teardownUpstream = func() {
		for _, id := range g.SubscriptionIDs() {
			m.requestUnsubscribe(id)
		}
		if watchdogCancel != nil {
			watchdogCancel()
		}
	}
	return g
}

func (m *Manager) onCountsDelta(g *group, event string, state map[string]any) {
	payload := parseCountsPayload(state)
	fp := fingerprint.CountsFp(payload.Sports)
	if !g.gate.ShouldEmit(event + ":" + fp) {
		return
	}
	data := marshalOrNil(m.logger, payload)
	m.fanoutCounts(g, event, data)
}

// fanoutCounts writes to the counts group's own subscribers and, per
// spec.md §9's back-edge note, to every live sport-games group's
// subscribers too. This is a one-way iteration over the current group
// table; no group calls back into counts.
func (m *Manager) fanoutCounts(countsGrp *group, event string, data []byte) {
	countsGrp.emit(event, data)

	m.mu.Lock()
	targets := make([]*group, 0, len(m.groups))
	for _, other := range m.groups {
		if other.kind == KindSportGames && other != countsGrp {
			targets = append(targets, other)
		}
	}
	m.mu.Unlock()

	for _, t := range targets {
		sg, ok := t.extra.(*sportGamesExtra)
		if !ok || sg.mode != ModeLive {
			continue
		}
		t.emit(event, data)
	}
}

// countsWatchdog periodically re-issues a one-shot counts query to detect
// feed stagnation (spec.md §4.3 item 1).
func (m *Manager) countsWatchdog(ctx context.Context, g *group) {
	ticker := time.NewTicker(m.cfg.CountsWatchdog)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reply, err := m.session.Request(ctx, "get_counts", nil, 15*time.Second)
			if err != nil {
				continue // transient; the next tick tries again
			}
			m.onCountsDelta(g, "live_counts", reply)
		}
	}
}

func parseCountsPayload(state map[string]any) countsPayload {
	var out countsPayload
	if sports, ok := state["sports"].([]any); ok {
		for _, raw := range sports {
			s, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			name, _ := s["name"].(string)
			count := 0
			if c, ok := s["count"].(float64); ok {
				count = int(c)
			}
			out.Sports = append(out.Sports, fingerprint.CountEntry{Name: name, Count: count})
			out.TotalGames += count
		}
	}
	return out
}
