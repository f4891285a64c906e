package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/loom/internal/chat"
	"github.com/haasonsaas/loom/internal/observability"
)

// PersonaResolver resolves a conversation mode to a backend persona.
// CanonicalMode maps unknown modes to the configured default so the
// stored record never carries an unrecognized mode.
type PersonaResolver interface {
	CanonicalMode(mode string) string
	Resolve(ctx context.Context, mode string) (string, error)
}

// SessionCreator creates a backend conversation session.
type SessionCreator interface {
	CreateSession(ctx context.Context) (string, error)
}

// Registry owns conversation record persistence.
//
// None of its per-thread operations take internal locks: they are only
// ever invoked from inside a serialized task for that thread, which
// guarantees single-writer access. Calling them concurrently for the
// same thread from outside that guarantee is not safe.
type Registry struct {
	store    Store
	global   *GlobalState
	personas PersonaResolver
	sessions SessionCreator
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewRegistry wires a registry. metrics may be nil.
func NewRegistry(store Store, global *GlobalState, personas PersonaResolver, sessions SessionCreator, metrics *observability.Metrics, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:    store,
		global:   global,
		personas: personas,
		sessions: sessions,
		metrics:  metrics,
		logger:   logger.With("component", "registry"),
	}
}

// Lookup returns the record for threadID without creating one.
func (r *Registry) Lookup(ctx context.Context, threadID string) (*Record, error) {
	return r.store.Load(ctx, threadID)
}

// GetOrCreate returns the existing record for threadID or creates one:
// resolve a persona for mode, create a backend session, persist. The
// session is created at most once per thread; on a later call with a
// different mode the existing record wins (use SetMode to change it).
func (r *Registry) GetOrCreate(ctx context.Context, threadID, mode string) (*Record, error) {
	rec, err := r.store.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}

	mode = r.personas.CanonicalMode(mode)
	personaID, err := r.personas.Resolve(ctx, mode)
	if err != nil {
		return nil, fmt.Errorf("resolve persona for mode %q: %w", mode, err)
	}
	sessionID, err := r.sessions.CreateSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("create backend session: %w", err)
	}

	now := time.Now().UTC()
	rec = &Record{
		ThreadID:    threadID,
		SessionID:   sessionID,
		PersonaID:   personaID,
		Mode:        mode,
		CreatedAt:   now,
		LastUpdated: now,
	}
	if err := r.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist thread record %s: %w", threadID, err)
	}

	r.global.IncThreadsCreated()
	if r.metrics != nil {
		r.metrics.ThreadsCreated.Inc()
	}
	r.logger.Info("conversation created", "thread_id", threadID, "session_id", sessionID, "mode", mode)
	return rec, nil
}

// SetMode switches the conversation to mode, rebinding the persona.
// A thread with no record yet is created directly in the new mode;
// that still counts as a switch.
func (r *Registry) SetMode(ctx context.Context, threadID, mode string) (*Record, error) {
	mode = r.personas.CanonicalMode(mode)
	rec, err := r.store.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec, err = r.GetOrCreate(ctx, threadID, mode)
		if err != nil {
			return nil, err
		}
		r.countModeSwitch(threadID, mode)
		return rec, nil
	}
	if rec.Mode == mode {
		return rec, nil
	}

	personaID, err := r.personas.Resolve(ctx, mode)
	if err != nil {
		return nil, fmt.Errorf("resolve persona for mode %q: %w", mode, err)
	}
	rec.Mode = mode
	rec.PersonaID = personaID
	rec.LastUpdated = time.Now().UTC()
	if err := r.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist mode switch for %s: %w", threadID, err)
	}

	r.countModeSwitch(threadID, mode)
	return rec, nil
}

func (r *Registry) countModeSwitch(threadID, mode string) {
	r.global.IncModeSwitches()
	if r.metrics != nil {
		r.metrics.ModeSwitches.Inc()
	}
	r.logger.Info("conversation mode switched", "thread_id", threadID, "mode", mode)
}

// AdvanceWatermark moves the watermark to ts, but only forward: a ts
// not strictly greater than the stored value is ignored, which keeps
// the watermark monotonic even if callers misbehave.
func (r *Registry) AdvanceWatermark(ctx context.Context, threadID, ts string) error {
	rec, err := r.store.Load(ctx, threadID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("advance watermark: unknown thread %s", threadID)
	}
	if !chat.TSAfter(ts, rec.Watermark) {
		return nil
	}
	rec.Watermark = ts
	rec.LastUpdated = time.Now().UTC()
	if err := r.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("persist watermark for %s: %w", threadID, err)
	}
	return nil
}
