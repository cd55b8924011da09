// Package livetracker implements the per-game bridge to the second,
// dense-animation upstream feed (spec.md §4.6). It is grounded on
// internal/upstream's duplex-connection pattern (dial, correlate, read
// loop) adapted to a forward-everything proxy instead of a
// request/reply session, the way go-server-3/internal/transport splits
// connection plumbing from its consumers.
package livetracker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"sporthub/internal/broadcast"
	"sporthub/internal/config"
	"sporthub/internal/errs"
	"sporthub/internal/metrics"
)

// reportInterval batches metrics reports to the aggregator by time...
const reportInterval = 5 * time.Second

// ...or by message/parse-error count, whichever comes first (spec.md §4.6).
const reportEveryMessages = 50
const reportEveryParseErrors = 5

// instance is one per-game bridge: one upstream connection, one
// broadcaster, torn down when its last subscriber leaves.
type instance struct {
	gameID string
	cfg    config.LiveTrackerConfig
	logger *zap.Logger
	agg    *metrics.Aggregator

	bc *broadcast.Broadcaster

	cancel context.CancelFunc
	done   chan struct{}
}

// Hub owns the set of live per-game tracker instances, created lazily on
// first subscriber and removed once empty (spec.md §4.6).
type Hub struct {
	cfg    config.LiveTrackerConfig
	logger *zap.Logger
	agg    *metrics.Aggregator

	mu        sync.Mutex
	instances map[string]*instance
}

// New constructs a Hub. No upstream connection is made until a game is
// first subscribed.
func New(cfg config.LiveTrackerConfig, agg *metrics.Aggregator, logger *zap.Logger) *Hub {
	return &Hub{
		cfg:       cfg,
		agg:       agg,
		logger:    logger,
		instances: make(map[string]*instance),
	}
}

// Attach subscribes client to gameID's tracker, connecting upstream on
// first use. The returned func detaches client once its connection ends.
func (h *Hub) Attach(gameID string, client *broadcast.Client) func() {
	h.mu.Lock()
	inst, ok := h.instances[gameID]
	if !ok {
		inst = h.newInstance(gameID)
		h.instances[gameID] = inst
	}
	h.mu.Unlock()

	inst.bc.Attach(client)
	inst.bc.WriteTo(client.ID, broadcast.FormatNamedEvent("ready", []byte(`{}`)))
	return func() { inst.bc.Detach(client.ID) }
}

func (h *Hub) removeInstance(gameID string, inst *instance) {
	h.mu.Lock()
	if h.instances[gameID] == inst {
		delete(h.instances, gameID)
	}
	h.mu.Unlock()
}

func (h *Hub) newInstance(gameID string) *instance {
	ctx, cancel := context.WithCancel(context.Background())
	inst := &instance{
		gameID: gameID,
		cfg:    h.cfg,
		logger: h.logger.With(zap.String("game_id", gameID)),
		agg:    h.agg,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	inst.bc = broadcast.New(h.logger, 15*time.Second, func() {
		// Grace-free teardown: spec.md §4.6 disconnects "when the last
		// subscriber leaves and the heartbeat tick observes an empty
		// subscriber set" — watchEmpty polls the subscriber count on
		// its own 15s ticker and run tears the connection down once it
		// observes zero.
	}, func() {})

	go inst.run(ctx, func() { h.removeInstance(gameID, inst) })
	return inst
}

// run dials the tracker feed, subscribes for gameID, and forwards every
// inbound frame unchanged until the broadcaster's subscriber set goes
// empty or the connection fails.
func (i *instance) run(ctx context.Context, onDone func()) {
	defer close(i.done)
	defer onDone()

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, _, err := ws.Dialer{}.Dial(dialCtx, i.cfg.FeedURL)
	cancel()
	if err != nil {
		i.logger.Warn("live-tracker connect failed", zap.Error(err))
		i.bc.Broadcast(broadcast.FormatNamedEvent("error", []byte(fmt.Sprintf(`{"error":%q}`, errs.ErrConnectFailed.Error()))))
		return
	}
	defer conn.Close()

	sub := map[string]any{
		"game_id":   i.gameID,
		"feed_type": "live",
		"snapshot":  true,
		"partner":   i.cfg.PartnerID,
		"site_ref":  i.cfg.SiteRef,
	}
	payload, err := json.Marshal(sub)
	if err == nil {
		_ = wsutil.WriteClientMessage(conn, ws.OpText, payload)
	}

	emptyCh := make(chan struct{})
	go i.watchEmpty(ctx, emptyCh)

	var messages, parseErrors uint64
	lastReport := time.Now()
	i.agg.RenewLease(i.gameID, i.bc.Count(), true, time.Now())

	readErrs := make(chan error, 1)
	frames := make(chan []byte, 64)
	go func() {
		for {
			data, _, err := wsutil.ReadServerData(conn)
			if err != nil {
				readErrs <- err
				return
			}
			select {
			case frames <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			i.bc.Broadcast(broadcast.FormatNamedEvent("end", []byte(`{}`)))
			return
		case <-emptyCh:
			i.bc.Broadcast(broadcast.FormatNamedEvent("end", []byte(`{}`)))
			return
		case err := <-readErrs:
			if err != io.EOF {
				i.logger.Debug("live-tracker read error", zap.Error(err))
			}
			i.bc.Broadcast(broadcast.FormatNamedEvent("end", []byte(`{}`)))
			return
		case data := <-frames:
			if !json.Valid(data) {
				parseErrors++
			} else {
				messages++
				i.bc.Broadcast(broadcast.FormatData(data))
			}
			if messages >= reportEveryMessages || parseErrors >= reportEveryParseErrors || time.Since(lastReport) >= reportInterval {
				i.agg.Report(time.Now(), messages, parseErrors)
				i.agg.RenewLease(i.gameID, i.bc.Count(), true, time.Now())
				messages, parseErrors = 0, 0
				lastReport = time.Now()
			}
		}
	}
}

// watchEmpty polls the broadcaster's subscriber count on the heartbeat
// cadence and signals emptyCh once it observes zero, per spec.md §4.6
// ("disconnect... when the heartbeat tick observes an empty subscriber
// set").
func (i *instance) watchEmpty(ctx context.Context, emptyCh chan<- struct{}) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if i.bc.Count() == 0 {
				select {
				case emptyCh <- struct{}{}:
				case <-ctx.Done():
				}
				return
			}
		}
	}
}

// Shutdown cancels every running instance.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, inst := range h.instances {
		inst.cancel()
	}
}
