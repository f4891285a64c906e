package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/loom/internal/observability"
)

// Clock abstracts the poll timer so tests can drive the run state
// machine without real delays.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RunnerConfig tunes the polling loop.
type RunnerConfig struct {
	// PollInterval is the delay between status polls. Default 1s.
	PollInterval time.Duration

	// MaxAttempts bounds the number of polls before the run is treated
	// as expired. Default 60.
	MaxAttempts int
}

// Runner drives a backend run to completion: submit, poll until a
// terminal status or the attempt budget runs out, then extract the
// reply. One Runner serves all conversations; per-session exclusivity
// comes from the request serializer, not from the runner.
type Runner struct {
	backend Backend
	clock   Clock
	cfg     RunnerConfig
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewRunner creates a runner. clock and metrics may be nil.
func NewRunner(backend Backend, cfg RunnerConfig, clock Clock, metrics *observability.Metrics, logger *slog.Logger) *Runner {
	if clock == nil {
		clock = realClock{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 60
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		backend: backend,
		clock:   clock,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With("component", "runner"),
	}
}

// Run executes one run of personaID against the session and returns
// the reply text plus the terminal status.
//
// Terminal failures (failed, expired, cancelled, or an exhausted poll
// budget) yield the fallback text with a nil error: a raw backend
// failure never reaches the chat surface. A transient error while
// polling is logged and retried on the next tick; only the submission
// call itself can return an error.
func (r *Runner) Run(ctx context.Context, sessionID, personaID, fallback string) (string, Status, error) {
	start := time.Now()
	runID, err := r.backend.CreateRun(ctx, sessionID, personaID)
	if err != nil {
		return "", "", fmt.Errorf("submit run: %w", err)
	}

	status := StatusQueued
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", "", ctx.Err()
		case <-r.clock.After(r.cfg.PollInterval):
		}

		polled, err := r.backend.PollRun(ctx, runID, sessionID)
		if err != nil {
			// Network hiccup during polling; the run is still live on
			// the backend, so just try again on the next tick.
			r.logger.Warn("run poll failed", "run_id", runID, "error", err)
			continue
		}
		status = polled
		if status.Terminal() {
			break
		}
	}

	if !status.Terminal() {
		status = StatusExpired
	}
	r.observe(status, time.Since(start))

	if status != StatusCompleted {
		r.logger.Warn("run did not complete", "run_id", runID, "session_id", sessionID, "status", status)
		return fallback, status, nil
	}

	reply, err := r.extractReply(ctx, sessionID, personaID)
	if err != nil {
		r.logger.Error("reply extraction failed", "run_id", runID, "error", err)
		return fallback, status, nil
	}
	return reply, status, nil
}

// extractReply returns the text of the most recent persona-authored
// message in the session.
func (r *Runner) extractReply(ctx context.Context, sessionID, personaID string) (string, error) {
	msgs, err := r.backend.ListMessages(ctx, sessionID)
	if err != nil {
		return "", err
	}
	for _, m := range msgs {
		if m.Role != "assistant" {
			continue
		}
		if m.PersonaID != "" && personaID != "" && m.PersonaID != personaID {
			continue
		}
		return m.Text, nil
	}
	return "", fmt.Errorf("no assistant reply found in session %s", sessionID)
}

func (r *Runner) observe(status Status, elapsed time.Duration) {
	if r.metrics == nil {
		return
	}
	r.metrics.Runs.WithLabelValues(string(status)).Inc()
	r.metrics.RunDuration.Observe(elapsed.Seconds())
}
