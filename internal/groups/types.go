// Package groups implements the five group kinds and their shared
// lifecycle (attach/detach, grace-period teardown, attach-time replay,
// upstream re-subscribe on reconnect), per spec.md §4.3 and §C5.
package groups

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"sporthub/internal/broadcast"
	"sporthub/internal/config"
	"sporthub/internal/oddscache"
)

// Kind enumerates the group kinds named in spec.md §4.3. There are four
// values: sport-odds has no Kind of its own and runs inside KindSportGames.
type Kind int

const (
	KindCounts Kind = iota
	KindSportGames
	KindPerGame
	KindCompetitionOdds
)

// Mode distinguishes live vs prematch groups (spec.md §4.3 "Sport-games").
type Mode string

const (
	ModeLive     Mode = "live"
	ModePrematch Mode = "prematch"
)

// group is the shared state every group kind embeds: subscriber set,
// upstream subscription ids, last-sent payloads, change-detection state,
// and the grace timer (spec.md §3 "Group").
type group struct {
	key  string
	kind Kind

	logger *zap.Logger
	cfg    config.GroupConfig

	bc *broadcast.Broadcaster

	mu            sync.Mutex
	subscriptions []string // upstream subscription ids this group holds
	lastPayloads  []replayFrame
	gate          *oddscache.Gate
	oddsCache     *oddscache.Cache

	graceTimer       *time.Timer
	stopPoll         context.CancelFunc
	knownGameIDsList []string

	// ensureUpstream (re)establishes this group's upstream subscription(s)
	// or polling loop. It is called once at creation and again after an
	// upstream reconnect for every group that still has subscribers
	// (spec.md §3 Lifecycles).
	ensureUpstream func(ctx context.Context)

	// teardownUpstream cancels this group's held upstream subscriptions.
	// Called when the grace period expires with no returning subscriber.
	teardownUpstream func()

	onRemove func(key string)

	// extra carries kind-specific state (e.g. *sportGamesExtra) so shared
	// helpers like the counts back-edge fanout can type-assert into it
	// without every kind needing its own manager map.
	extra any
}

// replayFrame is one frame retained for attach-time replay.
type replayFrame struct {
	name string // "" for an unnamed data event
	data []byte
}

func newGroup(key string, kind Kind, cfg config.GroupConfig, logger *zap.Logger, onRemove func(string)) *group {
	g := &group{
		key:      key,
		kind:     kind,
		cfg:      cfg,
		logger:   logger,
		gate:     &oddscache.Gate{},
		onRemove: onRemove,
	}
	g.bc = broadcast.New(logger, cfg.Heartbeat, g.onEmpty, g.onNonEmpty)
	return g
}

// onEmpty starts the grace timer when the last subscriber leaves.
func (g *group) onEmpty() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.graceTimer != nil {
		g.graceTimer.Stop()
	}
	g.graceTimer = time.AfterFunc(g.cfg.Grace, g.onGraceExpired)
}

// onNonEmpty cancels a running grace timer (spec.md §3 invariant 2: "A new
// subscriber arriving during grace cancels the timer").
func (g *group) onNonEmpty() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.graceTimer != nil {
		g.graceTimer.Stop()
		g.graceTimer = nil
	}
}

func (g *group) onGraceExpired() {
	g.mu.Lock()
	if g.bc.Count() > 0 {
		g.mu.Unlock()
		return // a subscriber slipped back in before the timer fired
	}
	teardown := g.teardownUpstream
	if g.stopPoll != nil {
		g.stopPoll()
	}
	g.mu.Unlock()

	if teardown != nil {
		teardown()
	}
	if g.onRemove != nil {
		g.onRemove(g.key)
	}
}

// Attach adds a subscriber and replays the group's retained frames in
// order: padding comment, ready comment, then the most recent payloads
// (spec.md §4.3 "Attach-time replay").
func (g *group) Attach(c *broadcast.Client) {
	g.bc.Attach(c)

	g.mu.Lock()
	frames := make([]replayFrame, len(g.lastPayloads))
	copy(frames, g.lastPayloads)
	g.mu.Unlock()

	g.bc.WriteTo(c.ID, broadcast.PaddingComment)
	g.bc.WriteTo(c.ID, broadcast.FormatComment("ready"))
	for _, f := range frames {
		if f.name == "" {
			g.bc.WriteTo(c.ID, broadcast.FormatData(f.data))
		} else {
			g.bc.WriteTo(c.ID, broadcast.FormatNamedEvent(f.name, f.data))
		}
	}
}

// Detach removes a subscriber.
func (g *group) Detach(clientID string) {
	g.bc.Detach(clientID)
}

// Subscribers reports the current subscriber count.
func (g *group) Subscribers() int {
	return g.bc.Count()
}

// emit broadcasts a named event and retains it as the group's replay
// payload for that event name, replacing any prior payload of the same
// name.
func (g *group) emit(name string, data []byte) {
	g.mu.Lock()
	g.setReplayLocked(name, data)
	g.mu.Unlock()
	g.bc.Broadcast(broadcast.FormatNamedEvent(name, data))
}

// emitError broadcasts an `error` SSE event without retaining it for
// replay (spec.md §7 propagation policy).
func (g *group) emitError(message string) {
	payload := []byte(`{"error":"` + jsonEscape(message) + `"}`)
	g.bc.Broadcast(broadcast.FormatNamedEvent("error", payload))
}

func (g *group) setReplayLocked(name string, data []byte) {
	for i, f := range g.lastPayloads {
		if f.name == name {
			g.lastPayloads[i].data = data
			return
		}
	}
	g.lastPayloads = append(g.lastPayloads, replayFrame{name: name, data: data})
}

// addSubscription records an upstream subscription id this group holds.
func (g *group) addSubscription(id string) {
	g.mu.Lock()
	g.subscriptions = append(g.subscriptions, id)
	g.mu.Unlock()
}

// setKnownGameIDs records the current game id set from the latest games
// snapshot, consulted by the prematch odds cursor poller.
func (g *group) setKnownGameIDs(games []map[string]any) {
	ids := make([]string, 0, len(games))
	for _, game := range games {
		if id := gameIDOf(game); id != "" {
			ids = append(ids, id)
		}
	}
	g.mu.Lock()
	g.knownGameIDsList = ids
	g.mu.Unlock()
}

// knownGameIDs returns the most recently recorded game id set.
func (g *group) knownGameIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.knownGameIDsList))
	copy(out, g.knownGameIDsList)
	return out
}

// SubscriptionIDs returns the upstream subscription ids currently held.
func (g *group) SubscriptionIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.subscriptions))
	copy(out, g.subscriptions)
	return out
}

func jsonEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}
