// Package slack connects the bridge to Slack: Socket Mode events in,
// threaded replies out, and thread history reads for the syncer.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/haasonsaas/loom/internal/chat"
)

// Config holds the Slack adapter configuration.
type Config struct {
	BotToken string // xoxb- token for Web API calls
	AppToken string // xapp- token for Socket Mode
	Logger   *slog.Logger
}

// Validate checks the token shapes before any network call is made.
func (c Config) Validate() error {
	if !strings.HasPrefix(c.BotToken, "xoxb-") {
		return fmt.Errorf("bot token must start with xoxb-")
	}
	if !strings.HasPrefix(c.AppToken, "xapp-") {
		return fmt.Errorf("app token must start with xapp-")
	}
	return nil
}

// Adapter bridges Slack and the rest of the pipeline. It implements
// the syncer's History interface and carries the outbound Post used
// for every reply.
type Adapter struct {
	cfg    Config
	api    APIClient
	socket SocketClient
	logger *slog.Logger

	events chan chat.Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	botUserID string
	botMu     sync.RWMutex
}

// New creates an adapter backed by live Slack clients.
func New(cfg Config) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := slack.New(
		cfg.BotToken,
		slack.OptionAppLevelToken(cfg.AppToken),
	)
	socketClient := socketmode.New(
		client,
		socketmode.OptionDebug(false),
	)
	return newAdapter(cfg, client, socketWrapper{socketClient}), nil
}

// NewWithClients creates an adapter with injected clients for testing.
func NewWithClients(cfg Config, api APIClient, socket SocketClient) *Adapter {
	return newAdapter(cfg, api, socket)
}

func newAdapter(cfg Config, api APIClient, socket SocketClient) *Adapter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		cfg:    cfg,
		api:    api,
		socket: socket,
		logger: logger.With("component", "slack"),
		events: make(chan chat.Event, 100),
	}
}

// Start authenticates, learns the bot's own user ID for mention and
// echo filtering, and begins consuming Socket Mode events.
func (a *Adapter) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	authResp, err := a.api.AuthTestContext(a.ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	a.botMu.Lock()
	a.botUserID = authResp.UserID
	a.botMu.Unlock()

	a.logger.Info("slack adapter started", "bot_user_id", authResp.UserID, "team", authResp.Team)

	a.wg.Add(1)
	go a.handleEvents()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.socket.Run(a.ctx); err != nil && a.ctx.Err() == nil {
			a.logger.Error("socket mode terminated", "error", err)
		}
	}()

	return nil
}

// Stop cancels the event loops and waits for them, bounded by ctx.
func (a *Adapter) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		close(a.events)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the stream of inbound events that should trigger the
// bot: DMs, mentions, and replies inside threads.
func (a *Adapter) Events() <-chan chat.Event {
	return a.events
}

// BotID returns the bot's Slack user ID. Empty until Start succeeds.
func (a *Adapter) BotID() string {
	a.botMu.RLock()
	defer a.botMu.RUnlock()
	return a.botUserID
}

// Post sends text as a threaded reply.
func (a *Adapter) Post(ctx context.Context, channel, threadTS, text string) error {
	_, _, err := a.api.PostMessageContext(ctx, channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionTS(threadTS),
	)
	if err != nil {
		return fmt.Errorf("post to %s: %w", channel, err)
	}
	return nil
}

// FetchMessagesSince returns the messages of a thread with ordering
// keys after since, oldest page first. Slack's "oldest" boundary is
// inclusive, so callers must still filter the boundary message; the
// syncer does.
func (a *Adapter) FetchMessagesSince(ctx context.Context, channel, threadID, since string) ([]chat.Message, error) {
	params := &slack.GetConversationRepliesParameters{
		ChannelID: channel,
		Timestamp: threadID,
		Oldest:    since,
		Inclusive: false,
		Limit:     200,
	}

	var out []chat.Message
	for {
		msgs, hasMore, nextCursor, err := a.api.GetConversationRepliesContext(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("conversation replies for %s: %w", threadID, err)
		}
		for _, m := range msgs {
			out = append(out, chat.Message{
				AuthorID:  messageAuthor(m),
				Text:      m.Text,
				Timestamp: m.Timestamp,
			})
		}
		if !hasMore {
			return out, nil
		}
		params.Cursor = nextCursor
	}
}

// ResolveDisplayName resolves a user ID to the name shown in replayed
// context lines: display name, then real name, then handle.
func (a *Adapter) ResolveDisplayName(ctx context.Context, userID string) (string, error) {
	user, err := a.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("user info for %s: %w", userID, err)
	}
	if name := user.Profile.DisplayName; name != "" {
		return name, nil
	}
	if user.RealName != "" {
		return user.RealName, nil
	}
	return user.Name, nil
}

func (a *Adapter) handleEvents() {
	defer a.wg.Done()

	for {
		select {
		case <-a.ctx.Done():
			return
		case event, ok := <-a.socket.Events():
			if !ok {
				return
			}
			switch event.Type {
			case socketmode.EventTypeConnecting:
				a.logger.Debug("connecting to socket mode")
			case socketmode.EventTypeConnectionError:
				a.logger.Warn("socket mode connection error", "data", fmt.Sprint(event.Data))
			case socketmode.EventTypeConnected:
				a.logger.Info("connected to socket mode")
			case socketmode.EventTypeEventsAPI:
				a.handleEventsAPI(event)
			case socketmode.EventTypeSlashCommand, socketmode.EventTypeInteractive:
				if event.Request != nil {
					a.socket.Ack(*event.Request)
				}
			}
		}
	}
}

func (a *Adapter) handleEventsAPI(event socketmode.Event) {
	apiEvent, ok := event.Data.(slackevents.EventsAPIEvent)
	if event.Request != nil {
		// Ack before processing so Slack does not redeliver while we
		// are busy with a run.
		a.socket.Ack(*event.Request)
	}
	if !ok {
		a.logger.Warn("unexpected events api payload", "data", fmt.Sprint(event.Data))
		return
	}

	if apiEvent.Type != slackevents.CallbackEvent {
		return
	}

	switch ev := apiEvent.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		a.deliver(&slackevents.MessageEvent{
			Type:            "message",
			User:            ev.User,
			Text:            ev.Text,
			Channel:         ev.Channel,
			TimeStamp:       ev.TimeStamp,
			ThreadTimeStamp: ev.ThreadTimeStamp,
		})
	case *slackevents.MessageEvent:
		if ev.BotID != "" || ev.SubType != "" {
			return
		}
		a.deliver(ev)
	}
}

// deliver filters and converts a message event. Only DMs, mentions,
// and thread replies trigger the bot; everything else in a channel is
// ambient conversation.
func (a *Adapter) deliver(ev *slackevents.MessageEvent) {
	botID := a.BotID()

	isDM := strings.HasPrefix(ev.Channel, "D")
	isMention := botID != "" && strings.Contains(ev.Text, "<@"+botID+">")
	if !isDM && !isMention && ev.ThreadTimeStamp == "" {
		return
	}
	// Our own echo: mention events can arrive for messages we posted.
	if ev.User == botID {
		return
	}

	threadID := ev.ThreadTimeStamp
	if threadID == "" {
		threadID = ev.TimeStamp
	}

	out := chat.Event{
		Channel:   ev.Channel,
		ThreadID:  threadID,
		MessageTS: ev.TimeStamp,
		UserID:    ev.User,
		Text:      stripMentions(ev.Text),
	}

	select {
	case a.events <- out:
	case <-a.ctx.Done():
	default:
		a.logger.Warn("event channel full, dropping event", "thread", threadID)
	}
}

// stripMentions removes <@USERID> tokens so the backend never sees
// Slack mention markup.
func stripMentions(text string) string {
	for {
		start := strings.Index(text, "<@")
		if start == -1 {
			break
		}
		end := strings.Index(text[start:], ">")
		if end == -1 {
			break
		}
		text = text[:start] + text[start+end+1:]
	}
	return strings.Join(strings.Fields(text), " ")
}

func messageAuthor(m slack.Message) string {
	if m.User != "" {
		return m.User
	}
	return m.BotID
}
