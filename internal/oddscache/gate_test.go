package oddscache

import "testing"

func TestGateEmitsFirstPayloadThenSuppressesDuplicates(t *testing.T) {
	g := &Gate{}
	if !g.ShouldEmit("fp-a") {
		t.Fatal("first payload after construction should always emit")
	}
	if g.ShouldEmit("fp-a") {
		t.Fatal("identical fingerprint should be suppressed")
	}
	if !g.ShouldEmit("fp-b") {
		t.Fatal("changed fingerprint should emit")
	}
}

func TestGateResetForcesNextEmit(t *testing.T) {
	g := &Gate{}
	g.ShouldEmit("fp-a")
	g.Reset()
	if !g.ShouldEmit("fp-a") {
		t.Fatal("after Reset, even a repeated fingerprint should emit as a first payload")
	}
}
