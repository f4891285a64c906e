// Package jira creates Jira issues from chat threads via the REST v2
// API, with assistant-generated content for "smart" requests.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/loom/internal/retry"
)

// Config holds Jira connection and issue defaults.
type Config struct {
	BaseURL    string        `yaml:"base_url"`
	Email      string        `yaml:"email"`
	APIToken   string        `yaml:"api_token"`
	ProjectKey string        `yaml:"project_key"`
	IssueType  string        `yaml:"issue_type"`
	Assignee   string        `yaml:"assignee"`
	Priority   string        `yaml:"priority"`
	Components []string      `yaml:"components"`
	Labels     []string      `yaml:"labels"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Enabled reports whether the integration is configured at all.
func (c Config) Enabled() bool {
	return c.BaseURL != "" && c.ProjectKey != ""
}

// Validate checks that an enabled configuration can authenticate.
func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.Email == "" || c.APIToken == "" {
		return fmt.Errorf("jira: email and api_token are required when base_url is set")
	}
	return nil
}

// Issue is a created Jira issue.
type Issue struct {
	ID    string
	Key   string
	Title string
	URL   string
}

// Client talks to the Jira REST v2 API.
type Client struct {
	cfg    Config
	http   *http.Client
	retry  retry.Config
	logger *slog.Logger
}

// NewClient creates a Jira client. The logger may be nil.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.IssueType == "" {
		cfg.IssueType = "Task"
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		retry:  retry.DefaultConfig(),
		logger: logger.With("component", "jira"),
	}
}

type issueFields struct {
	Project     ref      `json:"project"`
	Summary     string   `json:"summary"`
	Description string   `json:"description"`
	IssueType   ref      `json:"issuetype"`
	Assignee    *ref     `json:"assignee,omitempty"`
	Priority    *ref     `json:"priority,omitempty"`
	Components  []ref    `json:"components,omitempty"`
	Labels      []string `json:"labels,omitempty"`
}

type ref struct {
	Name string `json:"name,omitempty"`
	Key  string `json:"key,omitempty"`
}

type createResponse struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// CreateIssue creates an issue in the configured project. The
// description is wrapped with provenance metadata before submission.
func (c *Client) CreateIssue(ctx context.Context, title, description, creator string) (*Issue, error) {
	if !c.cfg.Enabled() {
		return nil, fmt.Errorf("jira integration is not configured")
	}

	fields := issueFields{
		Project:     ref{Key: c.cfg.ProjectKey},
		Summary:     title,
		Description: formatDescription(description, creator),
		IssueType:   ref{Name: c.cfg.IssueType},
		Labels:      c.cfg.Labels,
	}
	if c.cfg.Assignee != "" {
		fields.Assignee = &ref{Name: c.cfg.Assignee}
	}
	if c.cfg.Priority != "" {
		fields.Priority = &ref{Name: c.cfg.Priority}
	}
	for _, component := range c.cfg.Components {
		fields.Components = append(fields.Components, ref{Name: component})
	}

	body, err := json.Marshal(map[string]issueFields{"fields": fields})
	if err != nil {
		return nil, fmt.Errorf("marshal issue: %w", err)
	}

	var created createResponse
	err = retry.Do(ctx, c.retry, func() error {
		return c.post(ctx, c.cfg.BaseURL+"/rest/api/2/issue", body, &created)
	})
	if err != nil {
		return nil, fmt.Errorf("create jira issue: %w", err)
	}

	c.logger.Info("jira issue created", "key", created.Key)

	return &Issue{
		ID:    created.ID,
		Key:   created.Key,
		Title: title,
		URL:   c.cfg.BaseURL + "/browse/" + created.Key,
	}, nil
}

func (c *Client) post(ctx context.Context, url string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return retry.MarkPermanent(err)
	}
	req.SetBasicAuth(c.cfg.Email, c.cfg.APIToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		apiErr := fmt.Errorf("jira api status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
		// 4xx will not get better with retries.
		if resp.StatusCode < http.StatusInternalServerError {
			return retry.MarkPermanent(apiErr)
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.MarkPermanent(fmt.Errorf("decode jira response: %w", err))
	}
	return nil
}

func formatDescription(description, creator string) string {
	return fmt.Sprintf("*Created from Slack*\n\n%s\n\n----\n_Created by: %s via Loom_\n_Created on: %s_",
		description, creator, time.Now().Format("2006-01-02 15:04"))
}

// GenerationPrompt builds the content-generation request appended to
// the assistant session for a smart issue request. The reply contract
// is a JSON object with title and description.
func GenerationPrompt(instructions string) string {
	return fmt.Sprintf(`Based on our entire conversation thread, create a comprehensive Jira issue.

User instructions: %s

Reply with JSON in exactly this shape:
{
  "title": "A clear, concise title for the issue",
  "description": "Well-organized description using Jira markup"
}

Use Jira markup in the description (*bold*, _italic_, h2. headings,
bullet lists with -). Include sections such as h2. Background,
h2. Acceptance Criteria, or h2. Steps to Reproduce as appropriate, and
quote specific details from the conversation where relevant.`, instructions)
}

// Generated is the parsed result of a content-generation reply.
type Generated struct {
	Title       string
	Description string
}

// ParseGenerated extracts the JSON object from an assistant reply.
// When no valid JSON is found the whole reply becomes the description
// under a placeholder title, so a sloppy model never loses content.
func ParseGenerated(reply string) Generated {
	if blob := extractJSON(reply); blob != "" {
		var parsed struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		}
		if err := json.Unmarshal([]byte(blob), &parsed); err == nil && parsed.Title != "" {
			description := parsed.Description
			if description == "" {
				description = reply
			}
			return Generated{Title: parsed.Title, Description: description}
		}
	}
	return Generated{
		Title:       "Thread Issue",
		Description: "h2. Generated Content\n\n" + reply,
	}
}

// extractJSON returns the outermost {...} span of s, tolerating code
// fences and prose around it.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// Help returns the usage text posted for "jira help".
func Help() string {
	return strings.TrimSpace(`How to create Jira issues:
• ` + "`create jira issue to <instructions>`" + ` — I will draft the issue from this thread
• ` + "`jira: Title | Description`" + ` — create with explicit content
• ` + "`create jira issue: Title`" + ` — create with just a title`)
}
