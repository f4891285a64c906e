package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/haasonsaas/loom/internal/prompts"
)

// PersonaCache is the persisted mode→persona binding, implemented by
// the conversation global state.
type PersonaCache interface {
	Persona(mode string) (string, bool)
	SetPersona(ctx context.Context, mode, personaID string) error
}

// Resolver is the memoizing persona factory: the only place personas
// are created. Resolve is idempotent and safe for concurrent use from
// tasks of different conversation keys.
type Resolver struct {
	backend Backend
	cache   PersonaCache
	pack    *prompts.Pack
	logger  *slog.Logger

	// mu single-flights creation so two conversations hitting an
	// unbound mode at once don't register duplicate assistants.
	mu sync.Mutex
}

// NewResolver wires a resolver over the backend and persisted cache.
func NewResolver(backend Backend, cache PersonaCache, pack *prompts.Pack, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		backend: backend,
		cache:   cache,
		pack:    pack,
		logger:  logger.With("component", "personas"),
	}
}

// CanonicalMode maps an unrecognized mode to the configured default.
// It never fails: callers always get a usable mode.
func (r *Resolver) CanonicalMode(mode string) string {
	if _, ok := r.pack.Persona(mode); ok {
		return mode
	}
	return r.pack.DefaultMode()
}

// Resolve returns the backend persona id for mode, creating and
// persisting one if the cache is empty or the cached id no longer
// resolves on the backend.
func (r *Resolver) Resolve(ctx context.Context, mode string) (string, error) {
	mode = r.CanonicalMode(mode)

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.cache.Persona(mode); ok {
		err := r.backend.GetPersona(ctx, id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrPersonaNotFound) {
			return "", fmt.Errorf("verify persona %s: %w", id, err)
		}
		r.logger.Warn("cached persona no longer resolves, recreating", "mode", mode, "persona_id", id)
	}

	persona, ok := r.pack.Persona(mode)
	if !ok {
		// CanonicalMode guarantees the default exists; a pack missing
		// its own default mode is a configuration bug.
		return "", fmt.Errorf("prompt pack has no persona for mode %q", mode)
	}
	id, err := r.backend.CreatePersona(ctx, persona.Name, persona.SystemPrompt, persona.Model)
	if err != nil {
		return "", fmt.Errorf("create persona for mode %q: %w", mode, err)
	}
	if err := r.cache.SetPersona(ctx, mode, id); err != nil {
		// The binding is live in memory; losing the write only costs a
		// duplicate assistant after a restart.
		r.logger.Error("persist persona binding failed", "mode", mode, "persona_id", id, "error", err)
	}
	r.logger.Info("persona created", "mode", mode, "persona_id", id, "model", persona.Model)
	return id, nil
}

// ModeAck returns the acknowledgement line for switching to mode.
func (r *Resolver) ModeAck(mode string) string {
	persona, ok := r.pack.Persona(r.CanonicalMode(mode))
	if !ok {
		return ""
	}
	return persona.Ack
}
