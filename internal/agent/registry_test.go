package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chadiek/hudlink/internal/config"
	"github.com/chadiek/hudlink/internal/state"
)

func testDeps() Deps {
	return Deps{
		Store:               state.NewStore(10 * time.Second),
		NewTranscriber:      func(string) Transcriber { return newFakeTranscriber() },
		Timing:              config.DefaultTiming(),
		Language:            "English",
		LanguageCode:        "en",
		DisplayLanguageCode: "en",
	}
}

func TestRegistry_OpenReplacesExisting(t *testing.T) {
	r := NewRegistry(testDeps())
	ctx := context.Background()
	first := r.Open(ctx, "u1", nil)
	second := r.Open(ctx, "u1", nil)
	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatalf("replaced session should end")
	}
	if got, ok := r.Get("u1"); !ok || got != second {
		t.Fatalf("registry should hold the new session")
	}
	if r.Count() != 1 {
		t.Fatalf("count = %d, want 1", r.Count())
	}
	r.CloseAll()
	if r.Count() != 0 {
		t.Fatalf("CloseAll should empty the registry")
	}
	select {
	case <-second.Done():
	default:
		t.Fatalf("CloseAll should wait for sessions to end")
	}
}

func TestRegistry_EnsureAndEnd(t *testing.T) {
	deps := testDeps()
	r := NewRegistry(deps)
	ctx := context.Background()
	s := r.Ensure(ctx, "u2")
	if again := r.Ensure(ctx, "u2"); again != s {
		t.Fatalf("Ensure should reuse the live session")
	}
	if e, ok := deps.Store.Get("u2"); !ok || e.LanguageCode != "en" {
		t.Fatalf("session should publish its language on open")
	}
	r.End("u2")
	if _, ok := r.Get("u2"); ok {
		t.Fatalf("End should remove the session")
	}
	if _, ok := deps.Store.Get("u2"); ok {
		t.Fatalf("End should remove shared state")
	}
	r.End("u2")
}

func TestRegistry_ContextCancelEndsSession(t *testing.T) {
	r := NewRegistry(testDeps())
	ctx, cancel := context.WithCancel(context.Background())
	s := r.Open(ctx, "u3", nil)
	cancel()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatalf("session should end with its context")
	}
	deadline := time.Now().Add(time.Second)
	for r.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if r.Count() != 0 {
		t.Fatalf("ended session should leave the registry")
	}
}

func TestRegistry_ConcurrentOpenKeepsSharedState(t *testing.T) {
	deps := testDeps()
	r := NewRegistry(deps)
	ctx := context.Background()

	var wg sync.WaitGroup
	opened := make(chan *Session, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			opened <- r.Open(ctx, "u4", nil)
		}()
	}
	wg.Wait()
	close(opened)

	live, ok := r.Get("u4")
	if !ok || r.Count() != 1 {
		t.Fatalf("exactly one live session expected, count=%d", r.Count())
	}
	for s := range opened {
		if s == live {
			continue
		}
		select {
		case <-s.Done():
		default:
			t.Fatalf("replaced sessions should have ended")
		}
	}
	if e, ok := deps.Store.Get("u4"); !ok || e.LanguageCode != "en" {
		t.Fatalf("a replaced session's cleanup wiped the live session's state: %+v ok=%v", e, ok)
	}
	r.CloseAll()
}
