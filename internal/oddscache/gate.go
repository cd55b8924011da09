package oddscache

import "sync"

// Gate owns a group's last-sent fingerprint for non-odds payloads (games
// snapshots, per-game snapshots, counts) and decides whether a freshly
// computed payload should be broadcast, per spec.md §4.5 "Emission rules"
// and §3 invariant 3.
type Gate struct {
	mu     sync.Mutex
	lastFp string
	seen   bool
}

// ShouldEmit reports whether fp differs from the last emitted fingerprint,
// or this is the first payload since construction or Reset. On true, it records fp as
// the new baseline.
func (g *Gate) ShouldEmit(fp string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.seen || fp != g.lastFp {
		g.lastFp = fp
		g.seen = true
		return true
	}
	return false
}

// Reset clears the baseline, forcing the next payload to emit regardless
// of fingerprint (used when a group re-subscribes after upstream
// disconnect and must treat the next payload as a first payload).
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen = false
	g.lastFp = ""
}
