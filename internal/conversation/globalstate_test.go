package conversation

import (
	"context"
	"testing"
)

func TestGlobalStatePersonaRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	g, err := LoadGlobalState(ctx, store, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := g.Persona("normal"); ok {
		t.Fatal("fresh state should have no personas")
	}
	if err := g.SetPersona(ctx, "normal", "asst-1"); err != nil {
		t.Fatalf("SetPersona() error = %v", err)
	}

	// SetPersona persists immediately; a reload sees the binding.
	reloaded, err := LoadGlobalState(ctx, store, nil)
	if err != nil {
		t.Fatal(err)
	}
	id, ok := reloaded.Persona("normal")
	if !ok || id != "asst-1" {
		t.Fatalf("persona after reload = %q, %v", id, ok)
	}
}

func TestGlobalStateCountersFlush(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	g, err := LoadGlobalState(ctx, store, nil)
	if err != nil {
		t.Fatal(err)
	}

	g.IncThreadsCreated()
	g.IncMessagesProcessed(3)
	g.IncModeSwitches()
	g.IncRuns()
	g.IncRuns()

	stats := g.Statistics()
	if stats.ThreadsCreated != 1 || stats.MessagesProcessed != 3 || stats.ModeSwitches != 1 || stats.Runs != 2 {
		t.Fatalf("stats = %+v", stats)
	}

	// Counters reach the store only on flush.
	snap, err := store.LoadGlobal(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap != nil && snap.Statistics.Runs != 0 {
		t.Fatalf("counters persisted before flush: %+v", snap)
	}
	if err := g.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	snap, err = store.LoadGlobal(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Statistics.Runs != 2 || snap.Statistics.LastUpdated.IsZero() {
		t.Fatalf("flushed stats = %+v", snap.Statistics)
	}
}
