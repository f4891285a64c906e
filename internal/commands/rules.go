package commands

import (
	"regexp"
	"strings"
)

// rule is one entry in the ordered matching table.
type rule struct {
	name    string
	pattern *regexp.Regexp
	build   func(m *Matcher, groups []string) (Intent, bool)
}

// Matcher evaluates the rule table against message text.
type Matcher struct {
	vocab func() []string
	rules []rule
}

// NewMatcher creates a matcher over a mode vocabulary source. The
// source is queried on every match, so a reloaded prompt pack's new
// modes are recognized without rebuilding the matcher. Rules are
// ordered most-specific first: mode switches, then integration
// commands, then the summary request; anything else falls through to
// conversation.
func NewMatcher(vocab func() []string) *Matcher {
	m := &Matcher{vocab: vocab}
	m.rules = []rule{
		{
			name:    "mode switch, verb form",
			pattern: regexp.MustCompile(`(?i)^(?:please\s+)?(?:switch(?:\s+to)?|enter|use|be)\s+([a-z]+)(?:\s+mode)?[.!]?$`),
			build:   buildModeSwitch,
		},
		{
			name:    "mode switch, bare form",
			pattern: regexp.MustCompile(`(?i)^([a-z]+)\s+mode[.!]?$`),
			build:   buildModeSwitch,
		},
		{
			name:    "jira help",
			pattern: regexp.MustCompile(`(?i)^jira(?:\s+help)?$`),
			build: func(*Matcher, []string) (Intent, bool) {
				return Intent{Kind: KindJira, Help: true}, true
			},
		},
		{
			name:    "jira smart generation",
			pattern: regexp.MustCompile(`(?i)^(?:please\s+)?create\s+(?:a\s+)?jira\s+(?:issue|ticket)\s+(?:to\s+)?(.+)$`),
			build: func(_ *Matcher, groups []string) (Intent, bool) {
				return Intent{Kind: KindJira, Smart: true, Instructions: strings.TrimSpace(groups[1])}, true
			},
		},
		{
			name:    "jira explicit",
			pattern: regexp.MustCompile(`(?i)^(?:create\s+)?jira(?:\s+(?:issue|ticket))?\s*:\s*([^|]+)(?:\|\s*(.+))?$`),
			build: func(_ *Matcher, groups []string) (Intent, bool) {
				return Intent{
					Kind:  KindJira,
					Title: strings.TrimSpace(groups[1]),
					Body:  strings.TrimSpace(groups[2]),
				}, true
			},
		},
		{
			name:    "confluence help",
			pattern: regexp.MustCompile(`(?i)^confluence(?:\s+help)?$`),
			build: func(*Matcher, []string) (Intent, bool) {
				return Intent{Kind: KindConfluence, Help: true}, true
			},
		},
		{
			name:    "confluence smart generation",
			pattern: regexp.MustCompile(`(?i)^(?:please\s+)?create\s+(?:a\s+)?confluence\s+(?:page|doc|document)\s+(?:to\s+)?(.+)$`),
			build: func(_ *Matcher, groups []string) (Intent, bool) {
				return Intent{Kind: KindConfluence, Smart: true, Instructions: strings.TrimSpace(groups[1])}, true
			},
		},
		{
			name:    "confluence explicit",
			pattern: regexp.MustCompile(`(?i)^(?:create\s+)?confluence(?:\s+(?:page|doc))?\s*:\s*([^|]+)(?:\|\s*(.+))?$`),
			build: func(_ *Matcher, groups []string) (Intent, bool) {
				return Intent{
					Kind:  KindConfluence,
					Title: strings.TrimSpace(groups[1]),
					Body:  strings.TrimSpace(groups[2]),
				}, true
			},
		},
		{
			name:    "thread summary",
			pattern: regexp.MustCompile(`(?i)\b(?:summarize|summary)\b`),
			build: func(*Matcher, []string) (Intent, bool) {
				return Intent{Kind: KindSummary}, true
			},
		},
	}
	return m
}

// buildModeSwitch accepts the captured word only when it is in the
// mode vocabulary; otherwise the rule does not match and evaluation
// continues, so "be quiet" stays a conversational turn.
func buildModeSwitch(m *Matcher, groups []string) (Intent, bool) {
	mode := strings.ToLower(groups[1])
	if !m.hasMode(mode) {
		return Intent{}, false
	}
	return Intent{Kind: KindModeSwitch, Mode: mode}, true
}

func (m *Matcher) hasMode(mode string) bool {
	for _, v := range m.vocab() {
		if strings.EqualFold(v, mode) {
			return true
		}
	}
	return false
}

// Match returns the first matching intent for text, or the
// conversational fallthrough.
func (m *Matcher) Match(text string) Intent {
	trimmed := strings.TrimSpace(text)
	for _, r := range m.rules {
		groups := r.pattern.FindStringSubmatch(trimmed)
		if groups == nil {
			continue
		}
		if intent, ok := r.build(m, groups); ok {
			intent.Text = trimmed
			return intent
		}
	}
	return Intent{Kind: KindConversation, Text: trimmed}
}
