package syncer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/haasonsaas/loom/internal/chat"
	"github.com/haasonsaas/loom/internal/conversation"
)

type fakeHistory struct {
	messages []chat.Message
	names    map[string]string
	nameErr  error
	fetchErr error
	botID    string
	fetches  int
}

func (f *fakeHistory) FetchMessagesSince(_ context.Context, _, _, since string) ([]chat.Message, error) {
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	// Inclusive platform boundary: return everything at or after since.
	out := make([]chat.Message, 0, len(f.messages))
	for _, m := range f.messages {
		if since == "" || !chat.TSAfter(since, m.Timestamp) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeHistory) ResolveDisplayName(_ context.Context, userID string) (string, error) {
	if f.nameErr != nil {
		return "", f.nameErr
	}
	return f.names[userID], nil
}

func (f *fakeHistory) BotID() string { return f.botID }

type fakeAppender struct {
	appended []string
	failAt   int // fail the nth append (1-based), 0 disables
	calls    int
}

func (f *fakeAppender) AppendMessage(_ context.Context, _, _, text string) error {
	f.calls++
	if f.failAt > 0 && f.calls == f.failAt {
		return errors.New("append failed")
	}
	f.appended = append(f.appended, text)
	return nil
}

func record(watermark string) *conversation.Record {
	return &conversation.Record{ThreadID: "1700000000.000001", SessionID: "sess-1", Watermark: watermark}
}

func TestSyncReplaysAscendingAndReturnsMaxKey(t *testing.T) {
	history := &fakeHistory{
		botID: "UBOT",
		names: map[string]string{"U1": "ada", "U2": "grace"},
		messages: []chat.Message{
			{AuthorID: "U1", Text: "third", Timestamp: "3.000000"},
			{AuthorID: "U2", Text: "first", Timestamp: "1.000000"},
			{AuthorID: "U1", Text: "fifth", Timestamp: "5.000000"},
		},
	}
	appender := &fakeAppender{}
	s := New(history, appender, nil)

	wm, n, err := s.Sync(context.Background(), record("2.000000"), "C1")
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if wm != "5.000000" {
		t.Fatalf("watermark = %q, want 5.000000", wm)
	}
	if n != 2 {
		t.Fatalf("replayed %d messages, want 2", n)
	}
	if len(appender.appended) != 2 ||
		!strings.Contains(appender.appended[0], "third") ||
		!strings.Contains(appender.appended[1], "fifth") {
		t.Fatalf("replay order wrong: %v", appender.appended)
	}
	if !strings.Contains(appender.appended[0], "ada") {
		t.Fatalf("author label missing: %q", appender.appended[0])
	}
}

func TestSyncFiltersBotMessages(t *testing.T) {
	history := &fakeHistory{
		botID: "UBOT",
		messages: []chat.Message{
			{AuthorID: "UBOT", Text: "my own reply", Timestamp: "4.000000"},
			{AuthorID: "U1", Text: "human", Timestamp: "5.000000"},
		},
	}
	appender := &fakeAppender{}
	wm, n, err := New(history, appender, nil).Sync(context.Background(), record(""), "C1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || wm != "5.000000" {
		t.Fatalf("replayed %d, watermark %q", n, wm)
	}
	for _, text := range appender.appended {
		if strings.Contains(text, "my own reply") {
			t.Fatal("bot message was replayed")
		}
	}
}

func TestSyncIsIdempotentWithNoNewMessages(t *testing.T) {
	history := &fakeHistory{
		botID: "UBOT",
		messages: []chat.Message{
			{AuthorID: "U1", Text: "hello", Timestamp: "3.000000"},
		},
	}
	appender := &fakeAppender{}
	s := New(history, appender, nil)
	rec := record("")

	wm, n, err := s.Sync(context.Background(), rec, "C1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || wm != "3.000000" {
		t.Fatalf("first sync: n=%d wm=%q", n, wm)
	}

	// Second sync with an unchanged source appends nothing and leaves
	// the watermark where it was, even though the inclusive platform
	// fetch returns the boundary message again.
	rec.Watermark = wm
	wm2, n2, err := s.Sync(context.Background(), rec, "C1")
	if err != nil {
		t.Fatal(err)
	}
	if n2 != 0 {
		t.Fatalf("second sync appended %d messages", n2)
	}
	if wm2 != wm {
		t.Fatalf("watermark moved on idempotent sync: %q", wm2)
	}
	if len(appender.appended) != 1 {
		t.Fatalf("total appends = %d, want 1", len(appender.appended))
	}
}

func TestSyncEmptyHistoryLeavesWatermarkUnset(t *testing.T) {
	history := &fakeHistory{botID: "UBOT"}
	wm, n, err := New(history, &fakeAppender{}, nil).Sync(context.Background(), record(""), "C1")
	if err != nil {
		t.Fatal(err)
	}
	if wm != "" || n != 0 {
		t.Fatalf("empty history: wm=%q n=%d", wm, n)
	}
}

func TestSyncFallsBackToRawIDOnNameLookupFailure(t *testing.T) {
	history := &fakeHistory{
		botID:   "UBOT",
		nameErr: errors.New("user lookup failed"),
		messages: []chat.Message{
			{AuthorID: "U42", Text: "hi", Timestamp: "1.000000"},
		},
	}
	appender := &fakeAppender{}
	if _, _, err := New(history, appender, nil).Sync(context.Background(), record(""), "C1"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(appender.appended[0], "U42") {
		t.Fatalf("raw id fallback missing: %q", appender.appended[0])
	}
}

func TestSyncPartialFailureReturnsConfirmedWatermark(t *testing.T) {
	history := &fakeHistory{
		botID: "UBOT",
		messages: []chat.Message{
			{AuthorID: "U1", Text: "one", Timestamp: "1.000000"},
			{AuthorID: "U1", Text: "two", Timestamp: "2.000000"},
			{AuthorID: "U1", Text: "three", Timestamp: "3.000000"},
		},
	}
	appender := &fakeAppender{failAt: 2}
	wm, n, err := New(history, appender, nil).Sync(context.Background(), record(""), "C1")
	if err == nil {
		t.Fatal("expected append failure to surface")
	}
	// Only the first append was confirmed; the watermark must not
	// cover the failed or unattempted messages.
	if wm != "1.000000" || n != 1 {
		t.Fatalf("confirmed wm=%q n=%d", wm, n)
	}
}

func TestSyncFetchFailureKeepsWatermark(t *testing.T) {
	history := &fakeHistory{botID: "UBOT", fetchErr: errors.New("rate limited")}
	wm, n, err := New(history, &fakeAppender{}, nil).Sync(context.Background(), record("7.000000"), "C1")
	if err == nil {
		t.Fatal("expected fetch error")
	}
	if wm != "7.000000" || n != 0 {
		t.Fatalf("wm=%q n=%d after fetch failure", wm, n)
	}
}
