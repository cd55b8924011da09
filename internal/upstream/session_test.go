package upstream

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"sporthub/internal/config"
	"sporthub/internal/errs"
)

func newTestSession() *Session {
	return New(config.UpstreamConfig{RingCapacity: 10}, zap.NewNop())
}

func TestConnectedIsFalseBeforeEnsure(t *testing.T) {
	s := newTestSession()
	if s.Connected() {
		t.Fatal("a freshly constructed session should not be connected")
	}
}

func TestRequestFailsFastWhenNotConnected(t *testing.T) {
	s := newTestSession()
	_, err := s.Request(context.Background(), "get_hierarchy", nil, 0)
	if !errors.Is(err, errs.ErrUpstreamGone) {
		t.Fatalf("Request before Ensure = %v, want errs.ErrUpstreamGone", err)
	}
}

func TestCloseOnNeverConnectedSessionIsNoop(t *testing.T) {
	s := newTestSession()
	s.Close() // must not panic despite never having connected
	if s.Connected() {
		t.Fatal("Close should leave an unconnected session unconnected")
	}
}

func TestStatsStartAtZero(t *testing.T) {
	s := newTestSession()
	total, parseErrors, rolling := s.Stats()
	if total != 0 || parseErrors != 0 || rolling != 0 {
		t.Fatalf("Stats = (%d, %d, %d), want all zero", total, parseErrors, rolling)
	}
}

func TestRandSuffixProducesDistinctValues(t *testing.T) {
	a := randSuffix()
	b := randSuffix()
	if a == "" || b == "" {
		t.Fatal("randSuffix should never return an empty string")
	}
	if a == b {
		t.Fatal("two consecutive randSuffix calls collided; check the RNG source")
	}
}
