package groups

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"sporthub/internal/broadcast"
	"sporthub/internal/config"
	"sporthub/internal/errs"
	"sporthub/internal/hierarchy"
	"sporthub/internal/metrics"
	"sporthub/internal/registry"
	"sporthub/internal/upstream"
)

// Manager owns the lifecycle of every group kind: creation/attach, upstream
// subscription ensuring, grace-period teardown, and re-subscribe scheduling
// on upstream reconnect (spec.md §C5).
type Manager struct {
	mu     sync.Mutex
	groups map[string]*group

	session *upstream.Session
	reg     *registry.Registry
	hier    *hierarchy.Cache
	agg     *metrics.Aggregator
	cfg     config.GroupConfig
	logger  *zap.Logger

	marketPriority *marketPriorityCache
}

// NewManager wires a Manager to the shared upstream session, subscription
// registry and hierarchy cache. It registers the registry's Dispatch as
// the session's delta callback and itself for the disconnect callback.
func NewManager(session *upstream.Session, reg *registry.Registry, hier *hierarchy.Cache, agg *metrics.Aggregator, cfg config.GroupConfig, logger *zap.Logger) *Manager {
	m := &Manager{
		groups:         make(map[string]*group),
		session:        session,
		reg:            reg,
		hier:           hier,
		agg:            agg,
		cfg:            cfg,
		logger:         logger,
		marketPriority: newMarketPriorityCache(cfg.MarketPriorityTTL),
	}
	session.OnDelta(reg.Dispatch)
	session.OnDisconnect(m.handleDisconnect)
	return m
}

// Hierarchy returns the shared taxonomy cache so the HTTP edge can serve
// /hierarchy directly without duplicating cache plumbing.
func (m *Manager) Hierarchy() *hierarchy.Cache {
	return m.hier
}

// Session returns the shared upstream session so the HTTP edge can report
// its connectivity on /health and issue one-shot results queries.
func (m *Manager) Session() *upstream.Session {
	return m.session
}

func (m *Manager) removeGroup(key string) {
	m.mu.Lock()
	delete(m.groups, key)
	m.mu.Unlock()
}

// handleDisconnect invalidates every subscription and schedules a
// re-subscribe for every group that still has subscribers, per spec.md §3
// Lifecycles.
func (m *Manager) handleDisconnect() {
	m.reg.Clear()

	m.mu.Lock()
	actives := make([]*group, 0, len(m.groups))
	for _, g := range m.groups {
		if g.Subscribers() > 0 {
			actives = append(actives, g)
		}
	}
	m.mu.Unlock()

	for _, g := range actives {
		g.mu.Lock()
		g.subscriptions = nil
		ensure := g.ensureUpstream
		g.mu.Unlock()
		g.gate.Reset()
		if ensure != nil {
			go ensure(context.Background())
		}
	}
}

func (m *Manager) getOrCreate(key string, build func() *group) (*group, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.groups[key]; ok {
		return g, false
	}
	g := build()
	m.groups[key] = g
	return g, true
}

func (m *Manager) lookup(key string) (*group, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[key]
	return g, ok
}

// requestSubscribe performs a correlated subscribe request and returns the
// subscription id the upstream issued.
func (m *Manager) requestSubscribe(ctx context.Context, cmd string, params map[string]any) (string, error) {
	if err := m.session.Ensure(ctx); err != nil {
		return "", err
	}
	reply, err := m.session.Request(ctx, cmd, params, m.cfg.Grace*2)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", errs.ErrSubscribeFailed, cmd, err)
	}
	subID, _ := reply["subscription_id"].(string)
	if subID == "" {
		return "", fmt.Errorf("%w: %s: empty subscription id", errs.ErrSubscribeFailed, cmd)
	}
	return subID, nil
}

// requestUnsubscribe best-effort cancels an upstream subscription. Errors
// are logged, never propagated: teardown must always proceed.
func (m *Manager) requestUnsubscribe(subID string) {
	m.reg.Remove(subID)
	if subID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := m.session.Request(ctx, "unsubscribe", map[string]any{"subscription_id": subID}, 5*time.Second); err != nil {
		m.logger.Debug("unsubscribe failed (ignored)", zap.String("subscription_id", subID), zap.Error(err))
	}
}

func marshalOrNil(logger *zap.Logger, v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Warn("marshal payload failed", zap.Error(err))
		return []byte("{}")
	}
	return data
}

// AttachPayload bundles a client's connection-scoped state so the HTTP
// edge can hand off an already-built broadcast.Client.
type AttachPayload struct {
	Client *broadcast.Client
}
