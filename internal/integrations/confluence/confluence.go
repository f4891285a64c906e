// Package confluence creates Confluence pages from chat threads,
// optionally nested under a configured parent page.
package confluence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/haasonsaas/loom/internal/retry"
)

// Config holds Confluence connection and page defaults. Credentials
// are typically shared with the Jira integration.
type Config struct {
	BaseURL         string        `yaml:"base_url"`
	Email           string        `yaml:"email"`
	APIToken        string        `yaml:"api_token"`
	SpaceKey        string        `yaml:"space_key"`
	ParentPageTitle string        `yaml:"parent_page_title"`
	Labels          []string      `yaml:"labels"`
	Timeout         time.Duration `yaml:"timeout"`
}

// Enabled reports whether the integration is configured at all.
func (c Config) Enabled() bool {
	return c.BaseURL != "" && c.SpaceKey != ""
}

// Validate checks that an enabled configuration can authenticate.
func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.Email == "" || c.APIToken == "" {
		return fmt.Errorf("confluence: email and api_token are required when base_url is set")
	}
	return nil
}

// Page is a created Confluence page.
type Page struct {
	ID    string
	Title string
	URL   string
}

// Client talks to the Confluence REST API.
type Client struct {
	cfg    Config
	http   *http.Client
	retry  retry.Config
	logger *slog.Logger
}

// NewClient creates a Confluence client. The logger may be nil.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		retry:  retry.DefaultConfig(),
		logger: logger.With("component", "confluence"),
	}
}

type pageRequest struct {
	Type      string   `json:"type"`
	Title     string   `json:"title"`
	Space     spaceRef `json:"space"`
	Body      pageBody `json:"body"`
	Ancestors []idRef  `json:"ancestors,omitempty"`
}

type spaceRef struct {
	Key string `json:"key"`
}

type idRef struct {
	ID string `json:"id"`
}

type pageBody struct {
	Storage storageBody `json:"storage"`
}

type storageBody struct {
	Value          string `json:"value"`
	Representation string `json:"representation"`
}

type pageResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Links struct {
		WebUI string `json:"webui"`
	} `json:"_links"`
}

type searchResponse struct {
	Results []struct {
		ID string `json:"id"`
	} `json:"results"`
}

// CreatePage creates a page in the configured space. Content is
// Confluence storage-format HTML; plain text is escaped and wrapped.
// A configured parent page is looked up by title, and the page lands
// at the space root when the lookup fails.
func (c *Client) CreatePage(ctx context.Context, title, content, creator string) (*Page, error) {
	if !c.cfg.Enabled() {
		return nil, fmt.Errorf("confluence integration is not configured")
	}

	req := pageRequest{
		Type:  "page",
		Title: title,
		Space: spaceRef{Key: c.cfg.SpaceKey},
		Body: pageBody{
			Storage: storageBody{
				Value:          formatBody(content, creator),
				Representation: "storage",
			},
		},
	}

	if c.cfg.ParentPageTitle != "" {
		if parentID := c.findParent(ctx); parentID != "" {
			req.Ancestors = []idRef{{ID: parentID}}
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal page: %w", err)
	}

	var created pageResponse
	err = retry.Do(ctx, c.retry, func() error {
		return c.do(ctx, http.MethodPost, c.cfg.BaseURL+"/wiki/rest/api/content", body, &created)
	})
	if err != nil {
		return nil, fmt.Errorf("create confluence page: %w", err)
	}

	c.logger.Info("confluence page created", "id", created.ID, "title", created.Title)

	c.applyLabels(ctx, created.ID)

	return &Page{
		ID:    created.ID,
		Title: created.Title,
		URL:   c.cfg.BaseURL + "/wiki" + created.Links.WebUI,
	}, nil
}

// findParent resolves the configured parent page title to an ID. A
// failed lookup is logged and ignored.
func (c *Client) findParent(ctx context.Context) string {
	query := url.Values{
		"title":    {c.cfg.ParentPageTitle},
		"spaceKey": {c.cfg.SpaceKey},
	}
	var result searchResponse
	err := c.do(ctx, http.MethodGet, c.cfg.BaseURL+"/wiki/rest/api/content?"+query.Encode(), nil, &result)
	if err != nil || len(result.Results) == 0 {
		c.logger.Warn("parent page not found, creating at space root",
			"parent", c.cfg.ParentPageTitle, "error", err)
		return ""
	}
	return result.Results[0].ID
}

// applyLabels attaches configured labels. Label failures never fail
// the page creation.
func (c *Client) applyLabels(ctx context.Context, pageID string) {
	if len(c.cfg.Labels) == 0 {
		return
	}
	labels := make([]map[string]string, 0, len(c.cfg.Labels))
	for _, label := range c.cfg.Labels {
		labels = append(labels, map[string]string{"name": label})
	}
	body, err := json.Marshal(labels)
	if err != nil {
		return
	}
	var ignored json.RawMessage
	if err := c.do(ctx, http.MethodPost, c.cfg.BaseURL+"/wiki/rest/api/content/"+pageID+"/label", body, &ignored); err != nil {
		c.logger.Warn("could not add labels to page", "page_id", pageID, "error", err)
	}
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return retry.MarkPermanent(err)
	}
	req.SetBasicAuth(c.cfg.Email, c.cfg.APIToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		apiErr := fmt.Errorf("confluence api status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
		if resp.StatusCode < http.StatusInternalServerError {
			return retry.MarkPermanent(apiErr)
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.MarkPermanent(fmt.Errorf("decode confluence response: %w", err))
	}
	return nil
}

// htmlTag matches a tag-shaped opening, so "a < b" stays plain text.
var htmlTag = regexp.MustCompile(`<[a-zA-Z]+[\s/>]`)

// formatBody wraps content in storage-format HTML with provenance.
// Content that already looks like HTML is passed through, otherwise
// it is escaped into paragraphs.
func formatBody(content, creator string) string {
	rendered := content
	if !htmlTag.MatchString(content) {
		rendered = "<p>" + html.EscapeString(content) + "</p>"
	}
	return fmt.Sprintf("<p><strong>Created from Slack</strong></p>%s<hr/><p><em>Created by: %s via Loom</em></p><p><em>Created on: %s</em></p>",
		rendered, html.EscapeString(creator), time.Now().Format("2006-01-02 15:04"))
}

// GenerationPrompt builds the content-generation request appended to
// the assistant session for a smart page request.
func GenerationPrompt(instructions string) string {
	return fmt.Sprintf(`Based on our entire conversation thread, create a comprehensive Confluence page.

User instructions: %s

Reply with JSON in exactly this shape:
{
  "title": "A clear, descriptive title for the page",
  "content": "Well-organized HTML content for the page"
}

Use proper HTML in the content: h2/h3 headings, p paragraphs, ul/ol
lists. Include sections such as Summary, Key Findings, Action Items,
or Next Steps as appropriate, and quote specific details from the
conversation where relevant.`, instructions)
}

// Generated is the parsed result of a content-generation reply.
type Generated struct {
	Title   string
	Content string
}

// ParseGenerated extracts the JSON object from an assistant reply,
// falling back to the raw reply when parsing fails.
func ParseGenerated(reply string) Generated {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start != -1 && end > start {
		var parsed struct {
			Title   string `json:"title"`
			Content string `json:"content"`
		}
		if err := json.Unmarshal([]byte(reply[start:end+1]), &parsed); err == nil && parsed.Title != "" {
			content := parsed.Content
			if content == "" {
				content = reply
			}
			return Generated{Title: parsed.Title, Content: content}
		}
	}
	return Generated{
		Title:   "Thread Notes",
		Content: "<h2>Generated Content</h2><p>" + html.EscapeString(reply) + "</p>",
	}
}

// Help returns the usage text posted for "confluence help".
func Help() string {
	return strings.TrimSpace(`How to create Confluence pages:
• ` + "`create confluence page to <instructions>`" + ` — I will draft the page from this thread
• ` + "`confluence: Title | Content`" + ` — create with explicit content
• ` + "`create confluence page: Title`" + ` — create with just a title`)
}
