package groups

import (
	"context"
	"time"

	"sporthub/internal/broadcast"
	"sporthub/internal/fingerprint"
	"sporthub/internal/oddscache"
)

type competitionOddsExtra struct {
	mode          Mode
	competitionID string
	sportID       string
	sportName     string
	odds          *oddsEngine
}

type competitionOddsPayload struct {
	CompetitionID string       `json:"competitionId"`
	SportID       string       `json:"sportId"`
	Updates       []OddsUpdate `json:"updates"`
}

// AttachCompetitionOdds attaches client to the (mode, competitionID) odds
// group, creating and subscribing/polling it on first use (spec.md §4.3
// item 5). The returned func detaches client once its connection ends.
func (m *Manager) AttachCompetitionOdds(ctx context.Context, competitionID, sportID, sportName string, mode Mode, client *broadcast.Client) (func(), error) {
	key := "comp-odds:" + string(mode) + ":" + competitionID
	g, created := m.getOrCreate(key, func() *group {
		return m.newCompetitionOddsGroup(key, mode, competitionID, sportID, sportName)
	})
	if created {
		g.ensureUpstream(ctx)
	}
	g.Attach(client)
	return func() { g.Detach(client.ID) }, nil
}

func (m *Manager) newCompetitionOddsGroup(key string, mode Mode, competitionID, sportID, sportName string) *group {
	g := newGroup(key, KindCompetitionOdds, m.cfg, m.logger, m.removeGroup)
	extra := &competitionOddsExtra{mode: mode, competitionID: competitionID, sportID: sportID, sportName: sportName}
	g.extra = extra
	g.oddsCache = oddscache.New(m.cfg.OddsMaxCache, m.cfg.OddsEntryTTL)
	extra.odds = newOddsEngine(g, g.oddsCache, m.cfg.FullSnapshotTick)

	var pollCancel context.CancelFunc

	ensure := func(ctx context.Context) {
		extra.odds.priority = m.marketPriority.priorityFor(ctx, m.session, sportID)

		if mode == ModeLive {
			subID, err := m.requestSubscribe(ctx, "subscribe_competition_odds", map[string]any{
				"competition_id": competitionID, "market_types": extra.odds.priority,
			})
			if err != nil {
				g.emitError(err.Error())
				return
			}
			g.addSubscription(subID)
			m.reg.Create(subID, nil, func(state map[string]any) {
				m.onCompetitionOddsDelta(g, extra, state)
			})
			return
		}

		if pollCancel == nil {
			pctx, cancel := context.WithCancel(context.Background())
			pollCancel = cancel
			go m.competitionOddsCursor(pctx, g, extra)
		}
	}
	g.ensureUpstream = ensure
	g.teardownUpstream = func() {
		for _, id := range g.SubscriptionIDs() {
			m.requestUnsubscribe(id)
		}
		if pollCancel != nil {
			pollCancel()
		}
	}
	return g
}

func (m *Manager) competitionOddsCursor(ctx context.Context, g *group, extra *competitionOddsExtra) {
	ticker := time.NewTicker(m.cfg.OddsCursorPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		reply, err := m.session.Request(ctx, "get_competition_odds", map[string]any{
			"competition_id": extra.competitionID, "chunk": m.cfg.OddsCursorChunk,
		}, 15*time.Second)
		if err != nil {
			continue
		}
		m.onCompetitionOddsDelta(g, extra, reply)
	}
}

func (m *Manager) onCompetitionOddsDelta(g *group, extra *competitionOddsExtra, state map[string]any) {
	doc := fingerprint.Unwrap(state)
	games := fingerprint.ExtractGames(doc)
	now := time.Now()

	updates := extra.odds.Ingest(games, now)
	if len(updates) > 0 {
		g.emit("odds", marshalOrNil(m.logger, competitionOddsPayload{CompetitionID: extra.competitionID, SportID: extra.sportID, Updates: updates}))
	}
	if full, ok := extra.odds.MaybeFullSnapshot(now); ok && len(full) > 0 {
		g.emit("odds", marshalOrNil(m.logger, competitionOddsPayload{CompetitionID: extra.competitionID, SportID: extra.sportID, Updates: full}))
	}
}
