package groups

import (
	"context"
	"time"

	"sporthub/internal/broadcast"
	"sporthub/internal/fingerprint"
	"sporthub/internal/oddscache"
)

// sportGamesExtra carries the mode/sport identity a sport-games group was
// created for, looked up by the counts back-edge fanout (spec.md §9).
type sportGamesExtra struct {
	mode      Mode
	sportID   string
	sportName string
	odds      *oddsEngine
}

type gamesPayload struct {
	SportID     string           `json:"sportId"`
	SportName   string           `json:"sportName"`
	Data        []map[string]any `json:"data"`
	LastUpdated int64            `json:"last_updated"`
}

type oddsPayload struct {
	SportID string       `json:"sportId"`
	Updates []OddsUpdate `json:"updates"`
}

var gameFields = []string{
	"id", "sport_id", "type", "start_ts", "team1_name", "team2_name",
	"is_blocked", "info", "text_info", "markets_count",
	"competition_id", "region_id", "sport", "region", "competition",
	"score", "phase", "clock", "added_minutes", "is_live", "show_type", "last_event",
}

func pickFields(game map[string]any) map[string]any {
	out := make(map[string]any, len(gameFields))
	for _, f := range gameFields {
		if v, ok := game[f]; ok {
			out[f] = v
		}
	}
	return out
}

// AttachSportGames attaches client to the (mode, sportID) group, creating
// and subscribing/polling it on first use. The returned func detaches
// client once its connection ends.
func (m *Manager) AttachSportGames(ctx context.Context, mode Mode, sportID, sportName string, client *broadcast.Client) (func(), error) {
	key := string(mode) + ":" + sportID
	g, created := m.getOrCreate(key, func() *group {
		return m.newSportGamesGroup(key, mode, sportID, sportName)
	})
	if created {
		g.ensureUpstream(ctx)
	}
	g.Attach(client)
	return func() { g.Detach(client.ID) }, nil
}

func (m *Manager) newSportGamesGroup(key string, mode Mode, sportID, sportName string) *group {
	g := newGroup(key, KindSportGames, m.cfg, m.logger, m.removeGroup)
	extra := &sportGamesExtra{mode: mode, sportID: sportID, sportName: sportName}
	g.extra = extra
	g.oddsCache = oddscache.New(m.cfg.OddsMaxCache, m.cfg.OddsEntryTTL)
	extra.odds = newOddsEngine(g, g.oddsCache, m.cfg.FullSnapshotTick)

	var pollCancel context.CancelFunc

	ensure := func(ctx context.Context) {
		extra.odds.priority = m.marketPriority.priorityFor(ctx, m.session, sportID)

		if mode == ModeLive {
			m.ensureLiveSportGames(ctx, g, extra)
		} else {
			m.ensurePrematchSportGames(ctx, g, extra, &pollCancel)
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

func (m *Manager) ensureLiveSportGames(ctx context.Context, g *group, extra *sportGamesExtra) {
	gamesSubID, err := m.requestSubscribe(ctx, "subscribe_sport_games", map[string]any{"sport_id": extra.sportID, "live": true})
	if err != nil {
		g.emitError(err.Error())
	} else {
		g.addSubscription(gamesSubID)
		m.reg.Create(gamesSubID, nil, func(state map[string]any) {
			m.onSportGamesDelta(g, extra, state, isLiveGame)
		})
	}

	oddsSubID, err := m.requestSubscribe(ctx, "subscribe_sport_odds", map[string]any{
		"sport_id": extra.sportID, "market_types": extra.odds.priority,
	})
	if err != nil {
		g.emitError(err.Error())
		return
	}
	g.addSubscription(oddsSubID)
	m.reg.Create(oddsSubID, nil, func(state map[string]any) {
		m.onOddsDelta(g, extra, state)
	})
}

func (m *Manager) ensurePrematchSportGames(ctx context.Context, g *group, extra *sportGamesExtra, pollCancel *context.CancelFunc) {
	// Featured odds for near-kickoff games: a secondary subscription, kept
	// best-effort (spec.md §4.3 item 2: "prematch... opens a secondary
	// subscription for featured odds for near-kickoff games").
	if featuredSubID, err := m.requestSubscribe(ctx, "subscribe_featured_odds", map[string]any{"sport_id": extra.sportID}); err == nil {
		g.addSubscription(featuredSubID)
		m.reg.Create(featuredSubID, nil, func(state map[string]any) {
			m.onOddsDelta(g, extra, state)
		})
	}

	pctx, cancel := context.WithCancel(context.Background())
	*pollCancel = cancel
	go m.prematchGamesPoll(pctx, g, extra)
	go m.prematchOddsCursor(pctx, g, extra)
}

func (m *Manager) prematchGamesPoll(ctx context.Context, g *group, extra *sportGamesExtra) {
	ticker := time.NewTicker(m.cfg.PrematchPoll)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			return
		}
		reply, err := m.session.Request(ctx, "get_sport_games", map[string]any{"sport_id": extra.sportID, "prematch": true}, 20*time.Second)
		if err == nil {
			m.onSportGamesDelta(g, extra, reply, isPrematchGame)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// prematchOddsCursor polls odds for the group's known games in chunks,
// refreshing stale entries, per spec.md §4.3 item 3.
func (m *Manager) prematchOddsCursor(ctx context.Context, g *group, extra *sportGamesExtra) {
	ticker := time.NewTicker(m.cfg.OddsCursorPoll)
	defer ticker.Stop()
	cursor := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		ids := g.knownGameIDs()
		if len(ids) == 0 {
			continue
		}
		chunk, next := nextChunk(ids, cursor, m.cfg.OddsCursorChunk)
		cursor = next

		now := time.Now()
		stale := make([]string, 0, len(chunk))
		for _, id := range chunk {
			entry, ok := g.oddsCache.Get(id, now)
			if !ok || now.Sub(entry.UpdatedAt) >= m.cfg.OddsStaleAfter {
				stale = append(stale, id)
			}
		}
		if len(stale) == 0 {
			continue
		}

		reply, err := m.session.Request(ctx, "get_odds", map[string]any{"sport_id": extra.sportID, "game_ids": stale}, 15*time.Second)
		if err != nil {
			continue
		}
		m.onOddsDelta(g, extra, reply)
	}
}

func nextChunk(ids []string, cursor, size int) ([]string, int) {
	if size <= 0 {
		size = 30
	}
	if cursor >= len(ids) {
		cursor = 0
	}
	end := cursor + size
	if end > len(ids) {
		end = len(ids)
	}
	chunk := ids[cursor:end]
	next := end
	if next >= len(ids) {
		next = 0
	}
	return chunk, next
}

func (m *Manager) onSportGamesDelta(g *group, extra *sportGamesExtra, state map[string]any, keep func(map[string]any) bool) {
	doc := fingerprint.Unwrap(state)
	games := filterGames(fingerprint.ExtractGames(doc), keep)

	g.setKnownGameIDs(games)

	fp := fingerprint.SportFp(games)
	if !g.gate.ShouldEmit(fp) {
		return
	}

	slim := make([]map[string]any, len(games))
	for i, game := range games {
		slim[i] = pickFields(game)
	}
	payload := gamesPayload{SportID: extra.sportID, SportName: extra.sportName, Data: slim, LastUpdated: time.Now().UnixMilli()}
	g.emit("games", marshalOrNil(m.logger, payload))
}

func (m *Manager) onOddsDelta(g *group, extra *sportGamesExtra, state map[string]any) {
	doc := fingerprint.Unwrap(state)
	games := fingerprint.ExtractGames(doc)
	now := time.Now()

	updates := extra.odds.Ingest(games, now)
	if len(updates) > 0 {
		g.emit("odds", marshalOrNil(m.logger, oddsPayload{SportID: extra.sportID, Updates: updates}))
	}
	if full, ok := extra.odds.MaybeFullSnapshot(now); ok && len(full) > 0 {
		g.emit("odds", marshalOrNil(m.logger, oddsPayload{SportID: extra.sportID, Updates: full}))
	}
}
