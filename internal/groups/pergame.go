package groups

import (
	"context"
	"time"

	"sporthub/internal/broadcast"
	"sporthub/internal/fingerprint"
)

type gamePayload struct {
	GameID      string         `json:"gameId"`
	Data        map[string]any `json:"data"`
	LastUpdated int64          `json:"last_updated"`
}

// AttachPerGame attaches client to the per-game detail group for gameID,
// creating and subscribing it on first use (spec.md §4.3 item 4). The
// returned func detaches client once its connection ends.
func (m *Manager) AttachPerGame(ctx context.Context, gameID string, client *broadcast.Client) (func(), error) {
	key := "game:" + gameID
	g, created := m.getOrCreate(key, func() *group {
		return m.newPerGameGroup(key, gameID)
	})
	if created {
		g.ensureUpstream(ctx)
	}
	g.Attach(client)
	return func() { g.Detach(client.ID) }, nil
}

func (m *Manager) newPerGameGroup(key, gameID string) *group {
	g := newGroup(key, KindPerGame, m.cfg, m.logger, m.removeGroup)

	var pollCancel context.CancelFunc

	ensure := func(ctx context.Context) {
		subID, err := m.requestSubscribe(ctx, "subscribe_game", map[string]any{"game_id": gameID})
		if err != nil {
			// Fallback: poll every 5s when the subscription cannot be
			// established, per spec.md §4.3 item 4.
			g.logger.Debug("per-game subscribe failed, falling back to poll")
			if pollCancel == nil {
				pctx, cancel := context.WithCancel(context.Background())
				pollCancel = cancel
				go m.perGamePoll(pctx, g, gameID)
			}
			return
		}
		g.addSubscription(subID)
		m.reg.Create(subID, nil, func(state map[string]any) {
			m.onPerGameDelta(g, gameID, state)
		})
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

func (m *Manager) perGamePoll(ctx context.Context, g *group, gameID string) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		reply, err := m.session.Request(ctx, "get_game", map[string]any{"game_id": gameID}, 15*time.Second)
		if err != nil {
			continue
		}
		m.onPerGameDelta(g, gameID, reply)
	}
}

func (m *Manager) onPerGameDelta(g *group, gameID string, state map[string]any) {
	doc := fingerprint.Unwrap(state)
	fp := fingerprint.GameFp(doc)
	if !g.gate.ShouldEmit(fp) {
		return
	}
	payload := gamePayload{GameID: gameID, Data: doc, LastUpdated: time.Now().UnixMilli()}
	g.emit("game", marshalOrNil(m.logger, payload))
}
