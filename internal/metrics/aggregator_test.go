package metrics

import (
	"encoding/json"
	"testing"
	"time"

	"sporthub/internal/store"
)

func TestReportAccumulatesTotals(t *testing.T) {
	a := NewAggregator(nil, nil, time.Minute)
	now := time.Now()
	a.Report(now, 5, 1)
	a.Report(now.Add(time.Second), 3, 0)

	tot := a.Totals()
	if tot.Messages != 8 {
		t.Fatalf("Messages = %d, want 8", tot.Messages)
	}
	if tot.ParseErrors != 1 {
		t.Fatalf("ParseErrors = %d, want 1", tot.ParseErrors)
	}
}

func TestRollupCountsOnlyLeasesWithClients(t *testing.T) {
	a := NewAggregator(nil, nil, time.Minute)
	now := time.Now()
	a.RenewLease("g1", 3, true, now)
	a.RenewLease("g2", 0, true, now)
	a.RenewLease("g3", 2, false, now)

	r := a.Rollup(now)
	if r.ActiveGames != 2 {
		t.Fatalf("ActiveGames = %d, want 2", r.ActiveGames)
	}
	if r.ActiveSubscribers != 5 {
		t.Fatalf("ActiveSubscribers = %d, want 5", r.ActiveSubscribers)
	}
	if r.UpstreamConnectedGames != 2 {
		t.Fatalf("UpstreamConnectedGames = %d, want 2", r.UpstreamConnectedGames)
	}
}

func TestRollupPrunesExpiredLeases(t *testing.T) {
	a := NewAggregator(nil, nil, time.Second)
	now := time.Now()
	a.RenewLease("g1", 2, true, now)

	r := a.Rollup(now.Add(5 * time.Second))
	if r.ActiveGames != 0 {
		t.Fatalf("ActiveGames = %d, want 0 (lease should have expired)", r.ActiveGames)
	}
}

func TestDefaultLeaseTTLAppliesWhenNonPositive(t *testing.T) {
	a := NewAggregator(nil, nil, 0)
	now := time.Now()
	a.RenewLease("g1", 1, true, now)
	r := a.Rollup(now.Add(19 * time.Second))
	if r.ActiveGames != 1 {
		t.Fatal("default 20s lease TTL should still cover a 19s-old lease")
	}
}

func TestFlushPersistsSnapshotToStore(t *testing.T) {
	st := store.NewFileStore("")
	a := NewAggregator(nil, st, time.Minute)
	a.Report(time.Now(), 7, 2)

	if err := a.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	raw, ok := st.Get("metrics")
	if !ok {
		t.Fatal("expected a metrics snapshot to be stored")
	}
	var decoded struct {
		Totals Totals `json:"totals"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if decoded.Totals.Messages != 7 {
		t.Fatalf("persisted Messages = %d, want 7", decoded.Totals.Messages)
	}
}

func TestFlushIsNoopWithoutStore(t *testing.T) {
	a := NewAggregator(nil, nil, time.Minute)
	if err := a.Flush(); err != nil {
		t.Fatalf("Flush with nil store should be a no-op, got %v", err)
	}
}
