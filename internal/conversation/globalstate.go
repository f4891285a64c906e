package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// GlobalState is the single process-wide state unit: the mode→persona
// cache and the observational statistics counters. Counter updates are
// in-memory and flushed periodically; persona bindings persist
// immediately because losing one would orphan a backend assistant.
//
// A persistence failure is logged and does not roll back the in-memory
// state; the next successful flush reconciles the stored copy.
type GlobalState struct {
	mu     sync.Mutex
	store  GlobalStore
	snap   GlobalSnapshot
	logger *slog.Logger
}

// LoadGlobalState restores the global state from store, starting fresh
// if nothing has been persisted yet.
func LoadGlobalState(ctx context.Context, store GlobalStore, logger *slog.Logger) (*GlobalState, error) {
	if logger == nil {
		logger = slog.Default()
	}
	g := &GlobalState{
		store:  store,
		logger: logger.With("component", "globalstate"),
		snap:   GlobalSnapshot{PersonaByMode: make(map[string]string)},
	}
	snap, err := store.LoadGlobal(ctx)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		g.snap = *snap
		if g.snap.PersonaByMode == nil {
			g.snap.PersonaByMode = make(map[string]string)
		}
	}
	return g, nil
}

// Persona returns the cached persona id for mode.
func (g *GlobalState) Persona(mode string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.snap.PersonaByMode[mode]
	return id, ok
}

// SetPersona binds mode to a backend persona id and persists the
// global state.
func (g *GlobalState) SetPersona(ctx context.Context, mode, personaID string) error {
	g.mu.Lock()
	g.snap.PersonaByMode[mode] = personaID
	g.mu.Unlock()
	return g.Flush(ctx)
}

// IncThreadsCreated bumps the thread-creation counter.
func (g *GlobalState) IncThreadsCreated() { g.inc(func(s *Statistics) { s.ThreadsCreated++ }) }

// IncMessagesProcessed bumps the message counter by n.
func (g *GlobalState) IncMessagesProcessed(n int64) {
	g.inc(func(s *Statistics) { s.MessagesProcessed += n })
}

// IncModeSwitches bumps the mode-switch counter.
func (g *GlobalState) IncModeSwitches() { g.inc(func(s *Statistics) { s.ModeSwitches++ }) }

// IncRuns bumps the run counter.
func (g *GlobalState) IncRuns() { g.inc(func(s *Statistics) { s.Runs++ }) }

func (g *GlobalState) inc(apply func(*Statistics)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	apply(&g.snap.Statistics)
}

// Statistics returns a copy of the current counters.
func (g *GlobalState) Statistics() Statistics {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snap.Statistics
}

// Flush persists the current state. Failures are logged, not fatal.
func (g *GlobalState) Flush(ctx context.Context) error {
	g.mu.Lock()
	g.snap.Statistics.LastUpdated = time.Now().UTC()
	snap := g.snap
	snap.PersonaByMode = make(map[string]string, len(g.snap.PersonaByMode))
	for k, v := range g.snap.PersonaByMode {
		snap.PersonaByMode[k] = v
	}
	g.mu.Unlock()

	if err := g.store.SaveGlobal(ctx, &snap); err != nil {
		g.logger.Error("global state flush failed", "error", err)
		return err
	}
	return nil
}
