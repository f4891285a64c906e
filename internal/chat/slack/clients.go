package slack

import (
	"context"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

// APIClient is the slice of the Slack Web API the adapter uses. The
// interface exists so tests can inject mocks instead of a live client.
type APIClient interface {
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	GetConversationRepliesContext(ctx context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error)
	GetUserInfoContext(ctx context.Context, userID string) (*slack.User, error)
}

// SocketClient is the Socket Mode surface the adapter consumes.
type SocketClient interface {
	// Run opens the Socket Mode connection and blocks until ctx ends
	// or the connection fails for good.
	Run(ctx context.Context) error

	// Ack acknowledges an Events API envelope.
	Ack(req socketmode.Request, payload ...interface{})

	// Events returns the inbound socket event stream.
	Events() <-chan socketmode.Event
}

// Ensure slack.Client satisfies the API surface we depend on.
var _ APIClient = (*slack.Client)(nil)

// socketWrapper adapts *socketmode.Client to SocketClient: the real
// client exposes Events as a struct field, not a method.
type socketWrapper struct {
	*socketmode.Client
}

func (w socketWrapper) Run(ctx context.Context) error {
	return w.Client.RunContext(ctx)
}

func (w socketWrapper) Events() <-chan socketmode.Event {
	return w.Client.Events
}

// MockAPIClient is a test double for APIClient.
type MockAPIClient struct {
	AuthTestContextFunc               func(ctx context.Context) (*slack.AuthTestResponse, error)
	PostMessageContextFunc            func(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	GetConversationRepliesContextFunc func(ctx context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error)
	GetUserInfoContextFunc            func(ctx context.Context, userID string) (*slack.User, error)
}

func (m *MockAPIClient) AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error) {
	if m.AuthTestContextFunc != nil {
		return m.AuthTestContextFunc(ctx)
	}
	return &slack.AuthTestResponse{UserID: "U0BOT", Team: "TestTeam"}, nil
}

func (m *MockAPIClient) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	if m.PostMessageContextFunc != nil {
		return m.PostMessageContextFunc(ctx, channelID, options...)
	}
	return channelID, "1700000000.000100", nil
}

func (m *MockAPIClient) GetConversationRepliesContext(ctx context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error) {
	if m.GetConversationRepliesContextFunc != nil {
		return m.GetConversationRepliesContextFunc(ctx, params)
	}
	return nil, false, "", nil
}

func (m *MockAPIClient) GetUserInfoContext(ctx context.Context, userID string) (*slack.User, error) {
	if m.GetUserInfoContextFunc != nil {
		return m.GetUserInfoContextFunc(ctx, userID)
	}
	return &slack.User{ID: userID, Name: "testuser"}, nil
}

// MockSocketClient is a test double for SocketClient.
type MockSocketClient struct {
	RunFunc    func(ctx context.Context) error
	AckFunc    func(req socketmode.Request, payload ...interface{})
	EventsChan chan socketmode.Event
}

func NewMockSocketClient() *MockSocketClient {
	return &MockSocketClient{
		EventsChan: make(chan socketmode.Event, 16),
	}
}

func (m *MockSocketClient) Run(ctx context.Context) error {
	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *MockSocketClient) Ack(req socketmode.Request, payload ...interface{}) {
	if m.AckFunc != nil {
		m.AckFunc(req, payload...)
	}
}

func (m *MockSocketClient) Events() <-chan socketmode.Event {
	return m.EventsChan
}

// Close closes the events channel so the adapter's event loop exits.
func (m *MockSocketClient) Close() {
	close(m.EventsChan)
}
