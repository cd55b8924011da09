package store

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

func TestInMemoryStoreRoundTrip(t *testing.T) {
	s := NewFileStore("")
	if _, ok := s.Get("missing"); ok {
		t.Fatal("Get on an absent key should report ok=false")
	}

	if err := s.Put("k1", json.RawMessage(`{"a":1}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, ok := s.Get("k1")
	if !ok {
		t.Fatal("Get after Put should find the key")
	}
	if string(v) != `{"a":1}` {
		t.Fatalf("Get = %s, want {\"a\":1}", v)
	}
}

func TestFileStorePersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")

	s1 := NewFileStore(path)
	if err := s1.Put("k1", json.RawMessage(`"v1"`)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	s2 := NewFileStore(path)
	v, ok := s2.Get("k1")
	if !ok {
		t.Fatal("a freshly loaded store should see the previously persisted key")
	}
	if string(v) != `"v1"` {
		t.Fatalf("Get = %s, want \"v1\"", v)
	}
}

func TestNewFileStoreWithMissingPathStartsEmpty(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if _, ok := s.Get("anything"); ok {
		t.Fatal("a store backed by a nonexistent file should start empty, not error")
	}
}
