// Package results implements the read-only results endpoint set named in
// spec.md §1 as explicitly out of scope for the real-time fan-out work but
// listed in its endpoint catalogue (see DESIGN.md, internal/results): a thin
// request/response pass-through to the upstream feed's settlement API,
// reusing the same upstream.Session used for live subscriptions rather
// than opening a second connection.
package results

import (
	"context"
	"time"

	"sporthub/internal/upstream"
)

// Client is a thin pass-through over the shared upstream session for the
// one-shot, non-streaming results queries.
type Client struct {
	session *upstream.Session
	timeout time.Duration
}

// New builds a results Client bound to session.
func New(session *upstream.Session) *Client {
	return &Client{session: session, timeout: 20 * time.Second}
}

// Competitions returns settled competitions in the optional [from, to]
// window.
func (c *Client) Competitions(ctx context.Context, from, to string) (any, error) {
	params := map[string]any{}
	if from != "" {
		params["from"] = from
	}
	if to != "" {
		params["to"] = to
	}
	if err := c.session.Ensure(ctx); err != nil {
		return nil, err
	}
	reply, err := c.session.Request(ctx, "get_results_competitions", params, c.timeout)
	if err != nil {
		return nil, err
	}
	return reply["data"], nil
}

// Games returns settled games for sportID in the optional [from, to]
// window.
func (c *Client) Games(ctx context.Context, sportID, from, to string) ([]any, error) {
	params := map[string]any{"sport_id": sportID}
	if from != "" {
		params["from"] = from
	}
	if to != "" {
		params["to"] = to
	}
	if err := c.session.Ensure(ctx); err != nil {
		return nil, err
	}
	reply, err := c.session.Request(ctx, "get_results_games", params, c.timeout)
	if err != nil {
		return nil, err
	}
	games, _ := reply["games"].([]any)
	return games, nil
}

// Game returns one settled game's settlements plus the raw upstream
// document, per spec.md §6 "/results/game/{gameId}".
func (c *Client) Game(ctx context.Context, gameID string) (any, any, error) {
	if err := c.session.Ensure(ctx); err != nil {
		return nil, nil, err
	}
	reply, err := c.session.Request(ctx, "get_results_game", map[string]any{"game_id": gameID}, c.timeout)
	if err != nil {
		return nil, nil, err
	}
	return reply["settlements"], reply["raw"], nil
}
