// Package bridge composes the pipeline: inbound chat events become
// serialized per-thread tasks that sync history, drive assistant runs,
// and always end in a posted reply.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haasonsaas/loom/internal/assistant"
	"github.com/haasonsaas/loom/internal/chat"
	"github.com/haasonsaas/loom/internal/commands"
	"github.com/haasonsaas/loom/internal/conversation"
	"github.com/haasonsaas/loom/internal/integrations/confluence"
	"github.com/haasonsaas/loom/internal/integrations/jira"
	"github.com/haasonsaas/loom/internal/observability"
	"github.com/haasonsaas/loom/internal/prompts"
	"github.com/haasonsaas/loom/internal/serializer"
	"github.com/haasonsaas/loom/internal/syncer"
)

// Chat is the platform surface the bridge needs: thread history and
// identity for syncing, plus posting threaded replies.
type Chat interface {
	syncer.History
	Post(ctx context.Context, channel, threadTS, text string) error
}

// IssueCreator creates ticketing issues. Nil disables the integration.
type IssueCreator interface {
	CreateIssue(ctx context.Context, title, description, creator string) (*jira.Issue, error)
}

// PageCreator creates documentation pages. Nil disables the integration.
type PageCreator interface {
	CreatePage(ctx context.Context, title, content, creator string) (*confluence.Page, error)
}

// Deps carries everything a Bridge composes over.
type Deps struct {
	Chat       Chat
	Backend    assistant.Backend
	Registry   *conversation.Registry
	Runner     *assistant.Runner
	Personas   *assistant.Resolver
	Pack       *prompts.Pack
	Global     *conversation.GlobalState
	Jira       IssueCreator
	Confluence PageCreator
	Metrics    *observability.Metrics
	Logger     *slog.Logger
}

// Bridge routes chat events through the per-thread serializer so each
// conversation sees at most one in-flight backend run.
type Bridge struct {
	deps    Deps
	ser     *serializer.Serializer[string]
	matcher *commands.Matcher
	logger  *slog.Logger
}

// New wires a bridge over its dependencies.
func New(deps Deps) *Bridge {
	logger := observability.Component(deps.Logger, "bridge")
	return &Bridge{
		deps:    deps,
		ser:     serializer.New[string](),
		matcher: commands.NewMatcher(deps.Pack.Modes),
		logger:  logger,
	}
}

// HandleEvent processes one inbound event to completion and returns
// the reply it posted. Events for the same thread are serialized;
// callers typically invoke this from one goroutine per event.
func (b *Bridge) HandleEvent(ctx context.Context, ev chat.Event) (string, error) {
	b.deps.Metrics.MessagesProcessed.WithLabelValues("inbound").Inc()
	b.deps.Global.IncMessagesProcessed(1)

	if strings.TrimSpace(ev.Text) == "" {
		return b.post(ctx, ev, b.deps.Pack.EmptyMessage())
	}

	intent := b.matcher.Match(ev.Text)

	fut := b.ser.Submit(ctx, ev.ThreadID, func(ctx context.Context) (string, error) {
		return b.dispatch(ctx, ev, intent)
	})

	reply, err := fut.Wait(ctx)
	b.deps.Metrics.ActiveQueues.Set(float64(b.ser.QueueCount()))
	if err != nil {
		// The task already posted a fallback where it could; this is
		// the swallowed+logged terminal path.
		b.logger.Error("thread task failed", "thread", ev.ThreadID, "error", err)
		return "", err
	}
	return reply, nil
}

// dispatch runs inside the serialized task for the thread.
func (b *Bridge) dispatch(ctx context.Context, ev chat.Event, intent commands.Intent) (string, error) {
	switch intent.Kind {
	case commands.KindModeSwitch:
		return b.handleModeSwitch(ctx, ev, intent.Mode)
	case commands.KindSummary:
		return b.handleSummary(ctx, ev)
	case commands.KindJira:
		return b.handleJira(ctx, ev, intent)
	case commands.KindConfluence:
		return b.handleConfluence(ctx, ev, intent)
	default:
		return b.handleConversation(ctx, ev)
	}
}

func (b *Bridge) handleModeSwitch(ctx context.Context, ev chat.Event, mode string) (string, error) {
	if _, err := b.deps.Registry.SetMode(ctx, ev.ThreadID, mode); err != nil {
		b.postQuiet(ctx, ev, b.deps.Pack.Fallback())
		return "", fmt.Errorf("switch mode: %w", err)
	}
	b.markProcessed(ctx, ev)
	return b.post(ctx, ev, b.deps.Personas.ModeAck(mode))
}

func (b *Bridge) handleConversation(ctx context.Context, ev chat.Event) (string, error) {
	b.postQuiet(ctx, ev, b.deps.Pack.Thinking())

	rec, err := b.prepare(ctx, ev)
	if err != nil {
		b.postQuiet(ctx, ev, b.deps.Pack.Fallback())
		return "", err
	}

	if err := b.deps.Backend.AppendMessage(ctx, rec.SessionID, "user", ev.Text); err != nil {
		b.postQuiet(ctx, ev, b.deps.Pack.Fallback())
		return "", fmt.Errorf("append message: %w", err)
	}
	b.markProcessed(ctx, ev)

	reply, _, err := b.deps.Runner.Run(ctx, rec.SessionID, rec.PersonaID, b.deps.Pack.Fallback())
	if err != nil {
		b.postQuiet(ctx, ev, b.deps.Pack.Fallback())
		return "", fmt.Errorf("run: %w", err)
	}
	b.deps.Global.IncRuns()
	return b.post(ctx, ev, reply)
}

func (b *Bridge) handleSummary(ctx context.Context, ev chat.Event) (string, error) {
	// Summaries never create a session: a thread the bot has not
	// participated in has nothing to summarize.
	rec, err := b.deps.Registry.Lookup(ctx, ev.ThreadID)
	if err != nil {
		b.postQuiet(ctx, ev, b.deps.Pack.Fallback())
		return "", fmt.Errorf("lookup for summary: %w", err)
	}
	if rec == nil {
		return b.post(ctx, ev, b.deps.Pack.NoThreadSummary())
	}

	b.postQuiet(ctx, ev, b.deps.Pack.Thinking())

	if err := b.syncThread(ctx, rec, ev); err != nil {
		b.logger.Warn("history sync incomplete before summary", "thread", ev.ThreadID, "error", err)
	}

	if err := b.deps.Backend.AppendMessage(ctx, rec.SessionID, "user", b.deps.Pack.SummaryRequest()); err != nil {
		b.postQuiet(ctx, ev, b.deps.Pack.Fallback())
		return "", fmt.Errorf("append summary request: %w", err)
	}
	b.markProcessed(ctx, ev)

	reply, _, err := b.deps.Runner.Run(ctx, rec.SessionID, rec.PersonaID, b.deps.Pack.Fallback())
	if err != nil {
		b.postQuiet(ctx, ev, b.deps.Pack.Fallback())
		return "", fmt.Errorf("summary run: %w", err)
	}
	b.deps.Global.IncRuns()
	return b.post(ctx, ev, fmt.Sprintf("%s\n\n%s", b.deps.Pack.SummaryHeading(), reply))
}

func (b *Bridge) handleJira(ctx context.Context, ev chat.Event, intent commands.Intent) (string, error) {
	if intent.Help {
		return b.post(ctx, ev, jira.Help())
	}
	if b.deps.Jira == nil {
		return b.post(ctx, ev, "Jira integration is not configured.")
	}

	title, description := intent.Title, intent.Body
	if description == "" {
		description = "Created from Slack by request"
	}

	if intent.Smart {
		generated, err := b.generate(ctx, ev, jira.GenerationPrompt(intent.Instructions))
		if err != nil {
			b.postQuiet(ctx, ev, b.deps.Pack.Fallback())
			return "", err
		}
		parsed := jira.ParseGenerated(generated)
		title, description = parsed.Title, parsed.Description
	}

	issue, err := b.deps.Jira.CreateIssue(ctx, title, description, b.creatorName(ctx, ev.UserID))
	if err != nil {
		b.deps.Metrics.IntegrationRequests.WithLabelValues("jira", "error").Inc()
		return b.post(ctx, ev, fmt.Sprintf("I couldn't create the Jira issue: %v", err))
	}
	b.deps.Metrics.IntegrationRequests.WithLabelValues("jira", "success").Inc()
	return b.post(ctx, ev, fmt.Sprintf("Created %s: %s\n%s", issue.Key, issue.Title, issue.URL))
}

func (b *Bridge) handleConfluence(ctx context.Context, ev chat.Event, intent commands.Intent) (string, error) {
	if intent.Help {
		return b.post(ctx, ev, confluence.Help())
	}
	if b.deps.Confluence == nil {
		return b.post(ctx, ev, "Confluence integration is not configured.")
	}

	title, content := intent.Title, intent.Body
	if content == "" {
		content = "Created from Slack by request"
	}

	if intent.Smart {
		generated, err := b.generate(ctx, ev, confluence.GenerationPrompt(intent.Instructions))
		if err != nil {
			b.postQuiet(ctx, ev, b.deps.Pack.Fallback())
			return "", err
		}
		parsed := confluence.ParseGenerated(generated)
		title, content = parsed.Title, parsed.Content
	}

	page, err := b.deps.Confluence.CreatePage(ctx, title, content, b.creatorName(ctx, ev.UserID))
	if err != nil {
		b.deps.Metrics.IntegrationRequests.WithLabelValues("confluence", "error").Inc()
		return b.post(ctx, ev, fmt.Sprintf("I couldn't create the Confluence page: %v", err))
	}
	b.deps.Metrics.IntegrationRequests.WithLabelValues("confluence", "success").Inc()
	return b.post(ctx, ev, fmt.Sprintf("Created page %q\n%s", page.Title, page.URL))
}

// generate runs a content-generation request through the thread's
// assistant session and returns the raw reply. Used by smart Jira and
// Confluence requests so the generated content sees the full thread.
func (b *Bridge) generate(ctx context.Context, ev chat.Event, prompt string) (string, error) {
	b.postQuiet(ctx, ev, b.deps.Pack.Thinking())

	rec, err := b.prepare(ctx, ev)
	if err != nil {
		return "", err
	}
	if err := b.deps.Backend.AppendMessage(ctx, rec.SessionID, "user", prompt); err != nil {
		return "", fmt.Errorf("append generation prompt: %w", err)
	}
	b.markProcessed(ctx, ev)
	reply, status, err := b.deps.Runner.Run(ctx, rec.SessionID, rec.PersonaID, b.deps.Pack.Fallback())
	if err != nil {
		return "", fmt.Errorf("generation run: %w", err)
	}
	if status != assistant.StatusCompleted {
		return "", fmt.Errorf("generation run ended %s", status)
	}
	b.deps.Global.IncRuns()
	return reply, nil
}

// prepare resolves the conversation record and replays unseen history
// into its session, advancing the watermark before the caller appends
// the triggering message.
func (b *Bridge) prepare(ctx context.Context, ev chat.Event) (*conversation.Record, error) {
	rec, err := b.deps.Registry.GetOrCreate(ctx, ev.ThreadID, b.deps.Pack.DefaultMode())
	if err != nil {
		return nil, fmt.Errorf("get or create conversation: %w", err)
	}
	if err := b.syncThread(ctx, rec, ev); err != nil {
		b.logger.Warn("history sync incomplete", "thread", ev.ThreadID, "error", err)
	}
	return rec, nil
}

// markProcessed advances the watermark over the triggering message
// once it has been consumed. Without this a later event's sync would
// fetch the old trigger again and replay it as context on top of its
// direct append.
func (b *Bridge) markProcessed(ctx context.Context, ev chat.Event) {
	if err := b.deps.Registry.AdvanceWatermark(ctx, ev.ThreadID, ev.MessageTS); err != nil {
		b.logger.Warn("watermark advance over trigger failed", "thread", ev.ThreadID, "error", err)
	}
}

// syncThread replays history strictly older than the triggering
// message, then advances the watermark over what was replayed. The
// trigger itself is appended separately by the caller, which advances
// the watermark over it via markProcessed; bounding the fetch below
// its ordering key keeps this sync from touching it.
func (b *Bridge) syncThread(ctx context.Context, rec *conversation.Record, ev chat.Event) error {
	bounded := &boundedHistory{History: b.deps.Chat, before: ev.MessageTS}
	s := syncer.New(bounded, b.deps.Backend, b.logger)

	wm, replayed, syncErr := s.Sync(ctx, rec, ev.Channel)
	if replayed > 0 {
		b.deps.Metrics.MessagesProcessed.WithLabelValues("synced").Add(float64(replayed))
		b.deps.Global.IncMessagesProcessed(int64(replayed))
		if err := b.deps.Registry.AdvanceWatermark(ctx, rec.ThreadID, wm); err != nil {
			return fmt.Errorf("advance watermark: %w", err)
		}
		rec.Watermark = wm
	}
	return syncErr
}

// boundedHistory filters fetched messages to those strictly older than
// the triggering message.
type boundedHistory struct {
	syncer.History
	before string
}

func (h *boundedHistory) FetchMessagesSince(ctx context.Context, channel, threadID, since string) ([]chat.Message, error) {
	msgs, err := h.History.FetchMessagesSince(ctx, channel, threadID, since)
	if err != nil {
		return nil, err
	}
	kept := msgs[:0]
	for _, m := range msgs {
		if h.before != "" && !chat.TSLess(m.Timestamp, h.before) {
			continue
		}
		kept = append(kept, m)
	}
	return kept, nil
}

// post sends the reply and records outbound flow. This is the normal
// end of every task.
func (b *Bridge) post(ctx context.Context, ev chat.Event, text string) (string, error) {
	if err := b.deps.Chat.Post(ctx, ev.Channel, ev.ThreadID, text); err != nil {
		return "", fmt.Errorf("post reply: %w", err)
	}
	b.deps.Metrics.MessagesProcessed.WithLabelValues("outbound").Inc()
	return text, nil
}

// postQuiet posts best-effort interstitial lines (thinking acks,
// fallbacks on error paths) where a post failure should not change
// the task's outcome.
func (b *Bridge) postQuiet(ctx context.Context, ev chat.Event, text string) {
	if text == "" {
		return
	}
	if err := b.deps.Chat.Post(ctx, ev.Channel, ev.ThreadID, text); err != nil {
		b.logger.Warn("interstitial post failed", "thread", ev.ThreadID, "error", err)
		return
	}
	b.deps.Metrics.MessagesProcessed.WithLabelValues("outbound").Inc()
}

// creatorName resolves the requesting user's display name for issue
// and page provenance, falling back to the raw id.
func (b *Bridge) creatorName(ctx context.Context, userID string) string {
	name, err := b.deps.Chat.ResolveDisplayName(ctx, userID)
	if err != nil || name == "" {
		return userID
	}
	return name
}

// QueueDepth reports pending tasks for a thread, used by tests and
// diagnostics.
func (b *Bridge) QueueDepth(threadID string) int {
	return b.ser.PendingFor(threadID)
}
