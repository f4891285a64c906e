package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIBackend implements Backend against the OpenAI Assistants API.
// Sessions map to assistant threads, personas to assistants, runs to
// thread runs.
type OpenAIBackend struct {
	client *openai.Client
}

// NewOpenAIBackend creates a backend using the given API key.
func NewOpenAIBackend(apiKey string) *OpenAIBackend {
	return &OpenAIBackend{client: openai.NewClient(apiKey)}
}

// NewOpenAIBackendWithClient injects a preconfigured client, used for
// custom base URLs and by tests.
func NewOpenAIBackendWithClient(client *openai.Client) *OpenAIBackend {
	return &OpenAIBackend{client: client}
}

// CreateSession creates an empty assistant thread.
func (b *OpenAIBackend) CreateSession(ctx context.Context) (string, error) {
	thread, err := b.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return thread.ID, nil
}

// AppendMessage appends one message to the session.
func (b *OpenAIBackend) AppendMessage(ctx context.Context, sessionID, role, text string) error {
	_, err := b.client.CreateMessage(ctx, sessionID, openai.MessageRequest{
		Role:    role,
		Content: text,
	})
	if err != nil {
		return fmt.Errorf("append message to %s: %w", sessionID, err)
	}
	return nil
}

// CreateRun submits a run of personaID against the session.
func (b *OpenAIBackend) CreateRun(ctx context.Context, sessionID, personaID string) (string, error) {
	run, err := b.client.CreateRun(ctx, sessionID, openai.RunRequest{AssistantID: personaID})
	if err != nil {
		return "", fmt.Errorf("create run on %s: %w", sessionID, err)
	}
	return run.ID, nil
}

// PollRun fetches the run's current status.
func (b *OpenAIBackend) PollRun(ctx context.Context, runID, sessionID string) (Status, error) {
	run, err := b.client.RetrieveRun(ctx, sessionID, runID)
	if err != nil {
		return "", fmt.Errorf("retrieve run %s: %w", runID, err)
	}
	return mapRunStatus(run.Status), nil
}

// ListMessages returns the session's messages newest first.
func (b *OpenAIBackend) ListMessages(ctx context.Context, sessionID string) ([]SessionMessage, error) {
	list, err := b.client.ListMessage(ctx, sessionID, nil, nil, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", sessionID, err)
	}
	msgs := make([]SessionMessage, 0, len(list.Messages))
	for _, m := range list.Messages {
		sm := SessionMessage{Role: m.Role, Text: firstTextContent(m)}
		if m.AssistantID != nil {
			sm.PersonaID = *m.AssistantID
		}
		msgs = append(msgs, sm)
	}
	return msgs, nil
}

// CreatePersona registers a new assistant.
func (b *OpenAIBackend) CreatePersona(ctx context.Context, name, systemPrompt, model string) (string, error) {
	asst, err := b.client.CreateAssistant(ctx, openai.AssistantRequest{
		Model:        model,
		Name:         &name,
		Instructions: &systemPrompt,
		Tools:        []openai.AssistantTool{},
	})
	if err != nil {
		return "", fmt.Errorf("create assistant %q: %w", name, err)
	}
	return asst.ID, nil
}

// GetPersona verifies the assistant still exists, returning
// ErrPersonaNotFound when the backend has dropped it.
func (b *OpenAIBackend) GetPersona(ctx context.Context, personaID string) error {
	_, err := b.client.RetrieveAssistant(ctx, personaID)
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusNotFound {
		return ErrPersonaNotFound
	}
	return fmt.Errorf("retrieve assistant %s: %w", personaID, err)
}

func mapRunStatus(s openai.RunStatus) Status {
	switch s {
	case openai.RunStatusQueued:
		return StatusQueued
	case openai.RunStatusInProgress:
		return StatusInProgress
	case openai.RunStatusCompleted:
		return StatusCompleted
	case openai.RunStatusFailed:
		return StatusFailed
	case openai.RunStatusExpired:
		return StatusExpired
	case openai.RunStatusCancelling:
		// Still winding down; keep polling until the terminal
		// cancelled status arrives.
		return StatusInProgress
	case openai.RunStatusCancelled:
		return StatusCancelled
	case openai.RunStatusRequiresAction:
		// No tools are registered on any persona, so a run demanding
		// tool output can never make progress.
		return StatusFailed
	default:
		return StatusInProgress
	}
}

func firstTextContent(m openai.Message) string {
	for _, c := range m.Content {
		if c.Text != nil {
			return c.Text.Value
		}
	}
	return ""
}
