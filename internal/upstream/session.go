// Package upstream owns the single duplex connection to the sportsbook
// feed: handshake, request/response correlation, and delta routing, per
// spec.md §4.2. It is grounded on go-server-3/internal/transport's use of
// github.com/gobwas/ws for frame-level WebSocket handling, adapted from
// server-side upgrade to client-side dial.
package upstream

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"sporthub/internal/config"
	"sporthub/internal/errs"
	"sporthub/internal/ring"
)

type pendingRequest struct {
	reply chan map[string]any
	err   chan error
}

// Session is the process-wide singleton upstream connection. It is safe
// for concurrent use: Request may be called from any group's goroutine,
// but socket writes are serialised through s.writeMu and reads happen only
// in the single readLoop goroutine, per spec.md §5 ("send and recv are
// strictly serialised").
type Session struct {
	cfg    config.UpstreamConfig
	logger *zap.Logger

	connectMu sync.Mutex // held for a whole Ensure attempt
	writeMu   sync.Mutex // serialises socket writes

	mu         sync.Mutex
	conn       net.Conn
	sessionTok string
	connected  bool
	pending    map[string]*pendingRequest
	reqSeq     uint64

	ring          *ring.Counter
	totalMessages uint64
	parseErrors   uint64

	onDelta      func(subscriptionID string, delta map[string]any)
	onDisconnect func()

	backoff *rate.Limiter
}

// New constructs a Session. Connect happens lazily on the first Ensure.
func New(cfg config.UpstreamConfig, logger *zap.Logger) *Session {
	return &Session{
		cfg:     cfg,
		logger:  logger,
		pending: make(map[string]*pendingRequest),
		ring:    ring.NewCounter(cfg.RingCapacity),
		backoff: rate.NewLimiter(rate.Every(2*time.Second), 1),
	}
}

// OnDelta registers the callback invoked for every inbound delta frame.
// Must be called before the first Ensure.
func (s *Session) OnDelta(fn func(subscriptionID string, delta map[string]any)) {
	s.onDelta = fn
}

// OnDisconnect registers the callback invoked once the connection is lost,
// so the group manager can schedule re-subscribes (spec.md §3 Lifecycles).
func (s *Session) OnDisconnect(fn func()) {
	s.onDisconnect = fn
}

// Connected reports whether a handshake has completed and not yet failed.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Ensure idempotently establishes the upstream connection and handshake.
// Concurrent callers all block on the same attempt.
func (s *Session) Ensure(ctx context.Context) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.backoff.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrConnectFailed, err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	dialer := ws.Dialer{}
	conn, _, _, err := dialer.Dial(connectCtx, s.cfg.FeedURL)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrConnectFailed, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	go s.readLoop(conn)

	reply, err := s.Request(connectCtx, "request_session", map[string]any{
		"site_id":  s.cfg.SiteID,
		"language": s.cfg.Language,
		"partner":  s.cfg.PartnerID,
	}, s.cfg.ConnectTimeout)
	if err != nil {
		s.teardown(fmt.Errorf("%w: handshake: %v", errs.ErrConnectFailed, err))
		return fmt.Errorf("%w: handshake: %v", errs.ErrConnectFailed, err)
	}

	tok, _ := reply["session_id"].(string)
	if tok == "" {
		s.teardown(errs.ErrFatal)
		return fmt.Errorf("%w: empty session id in handshake reply", errs.ErrFatal)
	}

	s.mu.Lock()
	s.sessionTok = tok
	s.mu.Unlock()

	s.logger.Info("upstream session established", zap.String("session_id", tok))
	return nil
}

// Request sends a correlated command and blocks for its reply, bounded by
// timeout (spec.md §4.2 "request(cmd, params, timeoutMs)").
func (s *Session) Request(ctx context.Context, cmd string, params map[string]any, timeout time.Duration) (map[string]any, error) {
	s.mu.Lock()
	if !s.connected || s.conn == nil {
		s.mu.Unlock()
		return nil, errs.ErrUpstreamGone
	}
	s.reqSeq++
	id := fmt.Sprintf("%d-%s", s.reqSeq, randSuffix())
	p := &pendingRequest{reply: make(chan map[string]any, 1), err: make(chan error, 1)}
	s.pending[id] = p
	conn := s.conn
	s.mu.Unlock()

	payload, err := json.Marshal(frame{ID: id, Cmd: cmd, Params: params})
	if err != nil {
		s.dropPending(id)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	s.writeMu.Lock()
	err = wsutil.WriteClientMessage(conn, ws.OpText, payload)
	s.writeMu.Unlock()
	if err != nil {
		s.dropPending(id)
		return nil, fmt.Errorf("%w: write: %v", errs.ErrUpstreamGone, err)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case reply := <-p.reply:
		return reply, nil
	case err := <-p.err:
		return nil, err
	case <-deadline.C:
		s.dropPending(id)
		return nil, errs.ErrRequestTimeout
	case <-ctx.Done():
		s.dropPending(id)
		return nil, ctx.Err()
	}
}

func (s *Session) dropPending(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// Close tears down the connection deliberately (e.g. process shutdown).
func (s *Session) Close() {
	s.teardown(errs.ErrUpstreamGone)
}

func (s *Session) teardown(cause error) {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return
	}
	s.connected = false
	conn := s.conn
	s.conn = nil
	pending := s.pending
	s.pending = make(map[string]*pendingRequest)
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	for _, p := range pending {
		select {
		case p.err <- cause:
		default:
		}
	}

	if s.onDisconnect != nil {
		s.onDisconnect()
	}
}

func (s *Session) readLoop(conn net.Conn) {
	for {
		data, _, err := wsutil.ReadServerData(conn)
		if err != nil {
			if err != io.EOF {
				s.logger.Warn("upstream read error", zap.Error(err))
			}
			s.teardown(errs.ErrUpstreamGone)
			return
		}

		now := time.Now()
		s.ring.Record(now)

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.mu.Lock()
			s.parseErrors++
			s.mu.Unlock()
			s.logger.Debug("upstream parse error", zap.Error(err))
			continue // parse errors do not break the loop, per spec.md §4.2
		}

		s.mu.Lock()
		s.totalMessages++
		s.mu.Unlock()

		if f.ID == deltaCorrelationID {
			if s.onDelta != nil {
				s.onDelta(f.SubscriptionID, f.Delta)
			}
			continue
		}

		s.mu.Lock()
		p, ok := s.pending[f.ID]
		if ok {
			delete(s.pending, f.ID)
		}
		s.mu.Unlock()
		if !ok {
			continue
		}
		if f.Error != "" {
			select {
			case p.err <- fmt.Errorf("%w: %s", errs.ErrSubscribeFailed, f.Error):
			default:
			}
			continue
		}
		select {
		case p.reply <- f.Result:
		default:
		}
	}
}

// Stats returns the session's raw message counters. The metrics aggregator
// keeps its own totals and does not read these.
func (s *Session) Stats() (total uint64, parseErrors uint64, rolling60s int) {
	s.mu.Lock()
	total, parseErrors = s.totalMessages, s.parseErrors
	s.mu.Unlock()
	return total, parseErrors, s.ring.Count60s(time.Now())
}

func randSuffix() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("%x", b)
}
