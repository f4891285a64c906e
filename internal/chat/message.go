// Package chat defines the platform-neutral message model shared by the
// Slack adapter, the message syncer, and the bridge pipeline.
package chat

import (
	"strconv"
	"strings"
)

// Message is a single message observed in an external chat thread.
type Message struct {
	// AuthorID is the platform user ID of the message author.
	AuthorID string

	// Text is the raw message text.
	Text string

	// Timestamp is the platform ordering key for the message. For Slack
	// this is the "seconds.microseconds" ts string; it is the watermark
	// currency for incremental sync.
	Timestamp string
}

// Event is an inbound chat event that should trigger the bot.
type Event struct {
	// Channel is the platform channel the event arrived on.
	Channel string

	// ThreadID is the stable thread identifier (thread root ts for
	// Slack). It is the conversation key for serialization and the
	// primary key of the conversation record.
	ThreadID string

	// MessageTS is the ordering key of the triggering message itself.
	MessageTS string

	// UserID is the author of the triggering message.
	UserID string

	// Text is the message text with any bot mention already stripped.
	Text string
}

// TSAfter reports whether ordering key a is strictly greater than b.
// An empty key sorts before everything, so any concrete key is after
// the "no messages replayed yet" watermark.
func TSAfter(a, b string) bool {
	if a == "" {
		return false
	}
	if b == "" {
		return true
	}
	as, au := splitTS(a)
	bs, bu := splitTS(b)
	if as != bs {
		return as > bs
	}
	return au > bu
}

// TSLess is the inverse ordering helper used for ascending sorts.
func TSLess(a, b string) bool {
	return TSAfter(b, a)
}

func splitTS(ts string) (sec, usec int64) {
	head, tail, _ := strings.Cut(ts, ".")
	sec, _ = strconv.ParseInt(head, 10, 64)
	// Right-pad the fractional part so "1.5" and "1.000005" compare
	// correctly as microsecond counts.
	for len(tail) < 6 {
		tail += "0"
	}
	if len(tail) > 6 {
		tail = tail[:6]
	}
	usec, _ = strconv.ParseInt(tail, 10, 64)
	return sec, usec
}
