package registry

import "testing"

func TestDispatchMergesAndInvokesCallback(t *testing.T) {
	r := New()
	var got map[string]any
	r.Create("sub-1", map[string]any{"a": 1.0}, func(state map[string]any) {
		got = state
	})

	r.Dispatch("sub-1", map[string]any{"b": 2.0})

	if got["a"] != 1.0 || got["b"] != 2.0 {
		t.Fatalf("unexpected merged state: %#v", got)
	}
}

func TestDispatchUnknownIDIsNoop(t *testing.T) {
	r := New()
	called := false
	r.Create("sub-1", nil, func(map[string]any) { called = true })

	r.Dispatch("sub-unknown", map[string]any{"x": 1.0})

	if called {
		t.Fatal("onChange fired for an unrelated subscription id")
	}
}

func TestClearRemovesAllSubscriptions(t *testing.T) {
	r := New()
	r.Create("a", nil, nil)
	r.Create("b", nil, nil)
	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2", r.Len())
	}
	r.Clear()
	if r.Len() != 0 {
		t.Fatalf("Len after Clear = %d, want 0", r.Len())
	}
}

func TestRemoveDropsOneSubscription(t *testing.T) {
	r := New()
	r.Create("a", nil, nil)
	r.Create("b", nil, nil)
	r.Remove("a")
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
	// Dispatch on the removed id must not panic or resurrect the entry.
	r.Dispatch("a", map[string]any{"x": 1.0})
	if r.Len() != 1 {
		t.Fatalf("Len after dispatch to removed id = %d, want 1", r.Len())
	}
}

func TestStateIsIndependentSnapshot(t *testing.T) {
	r := New()
	sub := r.Create("a", map[string]any{"nested": map[string]any{"v": 1.0}}, nil)
	snap := sub.State()
	nested := snap["nested"].(map[string]any)
	nested["v"] = 999.0

	snap2 := sub.State()
	nested2 := snap2["nested"].(map[string]any)
	if nested2["v"] != 1.0 {
		t.Fatalf("mutating a returned snapshot leaked into subsequent State(): got %v", nested2["v"])
	}
}
