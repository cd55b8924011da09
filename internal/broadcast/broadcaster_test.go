package broadcast

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func drainOne(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case frame := <-c.Send:
		return frame
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a frame")
		return nil
	}
}

func TestAttachDetachTransitionCallbacks(t *testing.T) {
	var emptyCalls, nonEmptyCalls int
	b := New(zap.NewNop(), time.Hour, func() { emptyCalls++ }, func() { nonEmptyCalls++ })

	c := NewClient("c1", 4)
	b.Attach(c)
	if nonEmptyCalls != 1 {
		t.Fatalf("onNonEmpty calls = %d, want 1", nonEmptyCalls)
	}
	if b.Count() != 1 {
		t.Fatalf("Count = %d, want 1", b.Count())
	}

	b.Detach(c.ID)
	if emptyCalls != 1 {
		t.Fatalf("onEmpty calls = %d, want 1", emptyCalls)
	}
	if b.Count() != 0 {
		t.Fatalf("Count after detach = %d, want 0", b.Count())
	}
	select {
	case <-c.Done():
	default:
		t.Fatal("detached client's Done() channel should be closed")
	}
}

func TestBroadcastDeliversToAllSubscribers(t *testing.T) {
	b := New(zap.NewNop(), time.Hour, nil, nil)
	c1 := NewClient("c1", 4)
	c2 := NewClient("c2", 4)
	b.Attach(c1)
	b.Attach(c2)

	b.Broadcast(FormatData([]byte(`{"x":1}`)))

	f1 := drainOne(t, c1)
	f2 := drainOne(t, c2)
	if string(f1) != `data: {"x":1}

` {
		t.Fatalf("unexpected frame for c1: %q", f1)
	}
	if string(f2) != string(f1) {
		t.Fatal("both subscribers should receive an identical frame")
	}
}

func TestBroadcastDropsSlowSubscriberWithoutBlockingOthers(t *testing.T) {
	b := New(zap.NewNop(), time.Hour, nil, nil)
	slow := NewClient("slow", 1)
	fast := NewClient("fast", 4)
	b.Attach(slow)
	b.Attach(fast)

	// Fill the slow client's buffer so the next write fails.
	slow.Send <- []byte("filler")

	b.Broadcast(FormatData([]byte("{}")))

	select {
	case <-slow.Done():
	default:
		t.Fatal("slow subscriber should have been detached after a failed write")
	}
	if b.Count() != 1 {
		t.Fatalf("Count = %d, want 1 (only the fast subscriber remains)", b.Count())
	}
	drainOne(t, fast)
}

func TestWriteToTargetsSingleSubscriber(t *testing.T) {
	b := New(zap.NewNop(), time.Hour, nil, nil)
	c1 := NewClient("c1", 4)
	c2 := NewClient("c2", 4)
	b.Attach(c1)
	b.Attach(c2)

	b.WriteTo(c1.ID, FormatComment("ready"))

	drainOne(t, c1)
	select {
	case <-c2.Send:
		t.Fatal("WriteTo should not deliver to other subscribers")
	default:
	}
}

func TestShutdownDetachesEveryone(t *testing.T) {
	b := New(zap.NewNop(), time.Hour, nil, nil)
	c1 := NewClient("c1", 4)
	c2 := NewClient("c2", 4)
	b.Attach(c1)
	b.Attach(c2)

	b.Shutdown()

	if b.Count() != 0 {
		t.Fatalf("Count after Shutdown = %d, want 0", b.Count())
	}
	select {
	case <-c1.Done():
	default:
		t.Fatal("c1 should be done after Shutdown")
	}
	select {
	case <-c2.Done():
	default:
		t.Fatal("c2 should be done after Shutdown")
	}
}
