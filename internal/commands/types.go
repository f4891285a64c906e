// Package commands recognizes user intents in free-form message text:
// mode switches, thread summaries, and ticketing/documentation
// requests. Recognition is an ordered table of pattern→intent rules
// evaluated once per message; specific command intents are checked
// before the generic conversational fallthrough.
package commands

// Kind classifies a recognized intent.
type Kind string

const (
	// KindConversation is the fallthrough: no command matched, handle
	// the text as a normal conversational turn.
	KindConversation Kind = "conversation"

	// KindModeSwitch selects a different persona mode.
	KindModeSwitch Kind = "mode_switch"

	// KindSummary asks for a summary of the thread so far.
	KindSummary Kind = "summary"

	// KindJira asks for a Jira issue.
	KindJira Kind = "jira"

	// KindConfluence asks for a Confluence page.
	KindConfluence Kind = "confluence"
)

// Intent is the outcome of matching one message.
type Intent struct {
	Kind Kind

	// Mode is the requested mode for KindModeSwitch.
	Mode string

	// Title and Body carry the explicit form of an integration
	// request ("jira: Title | Description").
	Title string
	Body  string

	// Smart marks the generative form ("create a jira ticket to track
	// the flaky login test"); Instructions holds the user's wording.
	Smart        bool
	Instructions string

	// Help marks a bare "jira"/"confluence help" request.
	Help bool

	// Text is the original message text, kept for the conversational
	// fallthrough.
	Text string
}
