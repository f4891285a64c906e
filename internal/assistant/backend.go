// Package assistant wraps the OpenAI Assistants backend: session and
// persona primitives, plus the run orchestrator that drives a run to
// completion and extracts the reply.
package assistant

import "context"

// Status is the lifecycle state of a backend run.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the run has finished, successfully or not.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// SessionMessage is one message stored in a backend session.
type SessionMessage struct {
	// Role is "user" or "assistant".
	Role string

	// Text is the message content.
	Text string

	// PersonaID identifies the assistant that authored the message,
	// empty for user messages.
	PersonaID string
}

// Backend is the conversational backend contract the core depends on.
// ListMessages returns messages newest first, matching the upstream
// API's default ordering.
type Backend interface {
	CreateSession(ctx context.Context) (string, error)
	AppendMessage(ctx context.Context, sessionID, role, text string) error
	CreateRun(ctx context.Context, sessionID, personaID string) (string, error)
	PollRun(ctx context.Context, runID, sessionID string) (Status, error)
	ListMessages(ctx context.Context, sessionID string) ([]SessionMessage, error)
	CreatePersona(ctx context.Context, name, systemPrompt, model string) (string, error)
	GetPersona(ctx context.Context, personaID string) error
}
