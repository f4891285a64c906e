// Package syncer replays new external chat messages into a backend
// session, watermark-gated so each message lands exactly once per
// watermark advance.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/haasonsaas/loom/internal/chat"
	"github.com/haasonsaas/loom/internal/conversation"
)

// History is the chat-platform side of the sync: thread history since
// an ordering key, author display names, and the bot's own identity.
type History interface {
	// FetchMessagesSince returns thread messages with ordering keys
	// after since. The fetch boundary is exclusive by contract, but
	// the syncer still filters defensively because the underlying
	// platform boundary (Slack's "oldest") is inclusive in practice.
	FetchMessagesSince(ctx context.Context, channel, threadID, since string) ([]chat.Message, error)

	// ResolveDisplayName resolves a user id to a human-readable name.
	ResolveDisplayName(ctx context.Context, userID string) (string, error)

	// BotID is the chat identity of the bot itself.
	BotID() string
}

// Appender is the backend side: one context-append call per message.
type Appender interface {
	AppendMessage(ctx context.Context, sessionID, role, text string) error
}

// Syncer replays unseen thread history into backend sessions.
type Syncer struct {
	history  History
	appender Appender
	logger   *slog.Logger
}

// New creates a syncer.
func New(history History, appender Appender, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{history: history, appender: appender, logger: logger.With("component", "syncer")}
}

// Sync fetches messages after the record's watermark, drops the bot's
// own messages and anything at or before the watermark, and replays
// the rest into the session in ascending order of ordering key.
//
// It returns the highest ordering key confirmed appended (the record's
// prior watermark when nothing was replayed) and the number of
// replayed messages. On a mid-replay append failure the returned key
// covers only the confirmed appends, so advancing the watermark to it
// and retrying later will not duplicate them.
func (s *Syncer) Sync(ctx context.Context, rec *conversation.Record, channel string) (string, int, error) {
	msgs, err := s.history.FetchMessagesSince(ctx, channel, rec.ThreadID, rec.Watermark)
	if err != nil {
		return rec.Watermark, 0, fmt.Errorf("fetch thread history: %w", err)
	}

	botID := s.history.BotID()
	pending := make([]chat.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.AuthorID == botID {
			continue
		}
		if !chat.TSAfter(m.Timestamp, rec.Watermark) {
			continue
		}
		pending = append(pending, m)
	}
	if len(pending) == 0 {
		return rec.Watermark, 0, nil
	}

	sort.Slice(pending, func(i, j int) bool {
		return chat.TSLess(pending[i].Timestamp, pending[j].Timestamp)
	})

	watermark := rec.Watermark
	for i, m := range pending {
		name := s.displayName(ctx, m.AuthorID)
		text := fmt.Sprintf("Context from the chat thread, %s said: %s", name, m.Text)
		if err := s.appender.AppendMessage(ctx, rec.SessionID, "user", text); err != nil {
			return watermark, i, fmt.Errorf("replay message %s: %w", m.Timestamp, err)
		}
		watermark = m.Timestamp
	}

	s.logger.Debug("thread history replayed",
		"thread_id", rec.ThreadID, "session_id", rec.SessionID,
		"messages", len(pending), "watermark", watermark)
	return watermark, len(pending), nil
}

// displayName resolves the author name, falling back to the raw id
// when the lookup fails.
func (s *Syncer) displayName(ctx context.Context, userID string) string {
	name, err := s.history.ResolveDisplayName(ctx, userID)
	if err != nil || name == "" {
		return userID
	}
	return name
}
