// Package broadcast implements the per-group subscriber set, SSE frame
// writing, liveness pings and dead-subscriber pruning (spec.md §4.4). It is
// grounded on the hazyhaar-GoSQLPage pkg/sse hub (channel-keyed client map
// feeding a per-request drain loop) and on go-server-3's non-blocking,
// never-retry send discipline from ws/internal/shared/broadcast.go.
package broadcast

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Broadcaster owns one group's subscriber set. Writes are serial per
// subscriber (spec.md §4.4 "Write policy"); a write failure removes the
// subscriber atomically so no further writes are attempted.
type Broadcaster struct {
	logger *zap.Logger

	mu      sync.Mutex
	clients map[string]*Client

	onTransitionEmpty    func()
	onTransitionNonEmpty func()

	heartbeatEvery time.Duration
	stopHeartbeat  chan struct{}
	heartbeatOnce  sync.Once
}

// New creates a Broadcaster. onEmpty fires when the last subscriber
// leaves (the group's grace timer should start); onNonEmpty fires when a
// subscriber attaches to a previously-empty group (the grace timer should
// be cancelled), per spec.md §3 invariant 2.
func New(logger *zap.Logger, heartbeatEvery time.Duration, onEmpty, onNonEmpty func()) *Broadcaster {
	return &Broadcaster{
		logger:               logger,
		clients:              make(map[string]*Client),
		onTransitionEmpty:    onEmpty,
		onTransitionNonEmpty: onNonEmpty,
		heartbeatEvery:       heartbeatEvery,
		stopHeartbeat:        make(chan struct{}),
	}
}

// Attach adds a subscriber. Starts the heartbeat loop on first attach.
func (b *Broadcaster) Attach(c *Client) {
	b.mu.Lock()
	wasEmpty := len(b.clients) == 0
	b.clients[c.ID] = c
	b.mu.Unlock()

	if wasEmpty {
		b.heartbeatOnce.Do(func() { go b.heartbeatLoop() })
		if b.onTransitionNonEmpty != nil {
			b.onTransitionNonEmpty()
		}
	}
}

// Detach removes a subscriber, closing its sink. If the group becomes
// empty the onEmpty callback fires so the caller can start its grace
// timer (spec.md §4.4 "Write policy").
func (b *Broadcaster) Detach(id string) {
	b.mu.Lock()
	c, ok := b.clients[id]
	if ok {
		delete(b.clients, id)
	}
	empty := len(b.clients) == 0
	b.mu.Unlock()

	if ok {
		c.Close()
	}
	if empty && ok && b.onTransitionEmpty != nil {
		b.onTransitionEmpty()
	}
}

// Count returns the current subscriber count.
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Broadcast writes frame to every current subscriber, removing any whose
// buffer is full (spec.md §3 invariant 7: one failing write never blocks
// or drops frames for the others).
func (b *Broadcaster) Broadcast(frame []byte) {
	b.mu.Lock()
	targets := make([]*Client, 0, len(b.clients))
	for _, c := range b.clients {
		targets = append(targets, c)
	}
	b.mu.Unlock()

	var dead []string
	for _, c := range targets {
		if !c.tryWrite(frame) {
			dead = append(dead, c.ID)
		}
	}
	for _, id := range dead {
		b.logger.Debug("dropping slow subscriber", zap.String("client_id", id))
		b.Detach(id)
	}
}

// WriteTo sends a frame to exactly one subscriber (used for attach-time
// replay), removing it immediately on failure.
func (b *Broadcaster) WriteTo(id string, frame []byte) {
	b.mu.Lock()
	c, ok := b.clients[id]
	b.mu.Unlock()
	if !ok {
		return
	}
	if !c.tryWrite(frame) {
		b.Detach(id)
	}
}

// Shutdown stops the heartbeat loop and detaches every subscriber.
func (b *Broadcaster) Shutdown() {
	close(b.stopHeartbeat)
	b.mu.Lock()
	ids := make([]string, 0, len(b.clients))
	for id := range b.clients {
		ids = append(ids, id)
	}
	b.mu.Unlock()
	for _, id := range ids {
		b.Detach(id)
	}
}

func (b *Broadcaster) heartbeatLoop() {
	ticker := time.NewTicker(b.heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopHeartbeat:
			return
		case <-ticker.C:
			if b.Count() == 0 {
				return
			}
			b.Broadcast(FormatComment("ping"))
		}
	}
}
