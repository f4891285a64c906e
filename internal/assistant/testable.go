package assistant

import (
	"context"
	"fmt"
	"sync"
)

// MockBackend is a test double for Backend. Unset function fields fall
// back to an in-memory implementation that records sessions, messages,
// and personas, so most tests only override the behavior under test.
type MockBackend struct {
	CreateSessionFunc func(ctx context.Context) (string, error)
	AppendMessageFunc func(ctx context.Context, sessionID, role, text string) error
	CreateRunFunc     func(ctx context.Context, sessionID, personaID string) (string, error)
	PollRunFunc       func(ctx context.Context, runID, sessionID string) (Status, error)
	ListMessagesFunc  func(ctx context.Context, sessionID string) ([]SessionMessage, error)
	CreatePersonaFunc func(ctx context.Context, name, systemPrompt, model string) (string, error)
	GetPersonaFunc    func(ctx context.Context, personaID string) error

	mu       sync.Mutex
	sessions int
	runs     int
	personas map[string]bool
	// Appended records every AppendMessage call per session, oldest first.
	Appended map[string][]SessionMessage
}

// NewMockBackend creates a mock with empty in-memory state.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		personas: make(map[string]bool),
		Appended: make(map[string][]SessionMessage),
	}
}

func (m *MockBackend) CreateSession(ctx context.Context) (string, error) {
	if m.CreateSessionFunc != nil {
		return m.CreateSessionFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions++
	return fmt.Sprintf("thread_%d", m.sessions), nil
}

func (m *MockBackend) AppendMessage(ctx context.Context, sessionID, role, text string) error {
	if m.AppendMessageFunc != nil {
		return m.AppendMessageFunc(ctx, sessionID, role, text)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Appended[sessionID] = append(m.Appended[sessionID], SessionMessage{Role: role, Text: text})
	return nil
}

func (m *MockBackend) CreateRun(ctx context.Context, sessionID, personaID string) (string, error) {
	if m.CreateRunFunc != nil {
		return m.CreateRunFunc(ctx, sessionID, personaID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs++
	return fmt.Sprintf("run_%d", m.runs), nil
}

func (m *MockBackend) PollRun(ctx context.Context, runID, sessionID string) (Status, error) {
	if m.PollRunFunc != nil {
		return m.PollRunFunc(ctx, runID, sessionID)
	}
	return StatusCompleted, nil
}

func (m *MockBackend) ListMessages(ctx context.Context, sessionID string) ([]SessionMessage, error) {
	if m.ListMessagesFunc != nil {
		return m.ListMessagesFunc(ctx, sessionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Newest first, matching the backend contract.
	appended := m.Appended[sessionID]
	out := make([]SessionMessage, 0, len(appended))
	for i := len(appended) - 1; i >= 0; i-- {
		out = append(out, appended[i])
	}
	return out, nil
}

func (m *MockBackend) CreatePersona(ctx context.Context, name, systemPrompt, model string) (string, error) {
	if m.CreatePersonaFunc != nil {
		return m.CreatePersonaFunc(ctx, name, systemPrompt, model)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := fmt.Sprintf("asst_%d", len(m.personas)+1)
	m.personas[id] = true
	return id, nil
}

func (m *MockBackend) GetPersona(ctx context.Context, personaID string) error {
	if m.GetPersonaFunc != nil {
		return m.GetPersonaFunc(ctx, personaID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.personas[personaID] {
		return ErrPersonaNotFound
	}
	return nil
}

// AppendedTo returns the messages appended to sessionID, oldest first.
func (m *MockBackend) AppendedTo(sessionID string) []SessionMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SessionMessage, len(m.Appended[sessionID]))
	copy(out, m.Appended[sessionID])
	return out
}

var _ Backend = (*MockBackend)(nil)
