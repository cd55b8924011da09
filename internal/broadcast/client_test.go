package broadcast

import "testing"

func TestNewClientDefaultsBufferSize(t *testing.T) {
	c := NewClient("c1", 0)
	if cap(c.Send) != 16 {
		t.Fatalf("default buffer size = %d, want 16", cap(c.Send))
	}
}

func TestTryWriteFailsOnceClosed(t *testing.T) {
	c := NewClient("c1", 4)
	c.Close()
	if c.tryWrite([]byte("x")) {
		t.Fatal("tryWrite on a closed client should fail")
	}
}

func TestTryWriteFailsWhenBufferFull(t *testing.T) {
	c := NewClient("c1", 1)
	if !c.tryWrite([]byte("a")) {
		t.Fatal("first write into an empty buffer should succeed")
	}
	if c.tryWrite([]byte("b")) {
		t.Fatal("write into a full buffer should fail, not block")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c := NewClient("c1", 4)
	c.Close()
	c.Close() // must not panic on double close
	select {
	case <-c.Done():
	default:
		t.Fatal("Done() channel should be closed")
	}
}
