package confluence

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.Handler, mutate func(*Config)) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := Config{
		BaseURL:  srv.URL,
		Email:    "bot@example.com",
		APIToken: "secret",
		SpaceKey: "ENG",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c := NewClient(cfg, nil)
	c.retry.InitialDelay = time.Millisecond
	c.retry.Jitter = false
	return c
}

func TestCreatePage(t *testing.T) {
	var gotBody pageRequest
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wiki/rest/api/content" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if user, _, _ := r.BasicAuth(); user != "bot@example.com" {
			t.Errorf("basic auth user = %q", user)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"id":"123","title":"Runbook","_links":{"webui":"/spaces/ENG/pages/123"}}`))
	})

	c := testClient(t, handler, nil)
	page, err := c.CreatePage(context.Background(), "Runbook", "Steps for on-call", "Jane Doe")
	if err != nil {
		t.Fatalf("CreatePage failed: %v", err)
	}

	if gotBody.Type != "page" || gotBody.Space.Key != "ENG" || gotBody.Title != "Runbook" {
		t.Fatalf("page request = %+v", gotBody)
	}
	if gotBody.Body.Storage.Representation != "storage" {
		t.Fatalf("representation = %q", gotBody.Body.Storage.Representation)
	}
	if !strings.Contains(gotBody.Body.Storage.Value, "Steps for on-call") ||
		!strings.Contains(gotBody.Body.Storage.Value, "Jane Doe") {
		t.Fatalf("body missing content or provenance: %q", gotBody.Body.Storage.Value)
	}
	if len(gotBody.Ancestors) != 0 {
		t.Fatalf("ancestors sent without a configured parent: %+v", gotBody.Ancestors)
	}

	if page.ID != "123" || page.URL != c.cfg.BaseURL+"/wiki/spaces/ENG/pages/123" {
		t.Fatalf("page = %+v", page)
	}
}

func TestCreatePageUnderParent(t *testing.T) {
	var createBody pageRequest
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			if got := r.URL.Query().Get("title"); got != "Team Docs" {
				t.Errorf("parent lookup title = %q", got)
			}
			_, _ = w.Write([]byte(`{"results":[{"id":"777"}]}`))
		default:
			_ = json.NewDecoder(r.Body).Decode(&createBody)
			_, _ = w.Write([]byte(`{"id":"123","title":"Runbook","_links":{"webui":"/x"}}`))
		}
	})

	c := testClient(t, handler, func(cfg *Config) {
		cfg.ParentPageTitle = "Team Docs"
	})
	if _, err := c.CreatePage(context.Background(), "Runbook", "content", "Jane"); err != nil {
		t.Fatalf("CreatePage failed: %v", err)
	}
	if len(createBody.Ancestors) != 1 || createBody.Ancestors[0].ID != "777" {
		t.Fatalf("ancestors = %+v, want parent 777", createBody.Ancestors)
	}
}

func TestCreatePageParentLookupFailureFallsBack(t *testing.T) {
	var createBody pageRequest
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			http.Error(w, "nope", http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&createBody)
		_, _ = w.Write([]byte(`{"id":"123","title":"Runbook","_links":{"webui":"/x"}}`))
	})

	c := testClient(t, handler, func(cfg *Config) {
		cfg.ParentPageTitle = "Missing Parent"
	})
	if _, err := c.CreatePage(context.Background(), "Runbook", "content", "Jane"); err != nil {
		t.Fatalf("CreatePage should fall back to space root: %v", err)
	}
	if len(createBody.Ancestors) != 0 {
		t.Fatalf("ancestors = %+v, want none", createBody.Ancestors)
	}
}

func TestCreatePageLabelFailureIgnored(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/label") {
			http.Error(w, "labels broken", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"id":"123","title":"Runbook","_links":{"webui":"/x"}}`))
	})

	c := testClient(t, handler, func(cfg *Config) {
		cfg.Labels = []string{"from-slack"}
	})
	if _, err := c.CreatePage(context.Background(), "Runbook", "content", "Jane"); err != nil {
		t.Fatalf("label failure should not fail page creation: %v", err)
	}
}

func TestCreatePageUnconfigured(t *testing.T) {
	c := NewClient(Config{}, nil)
	if _, err := c.CreatePage(context.Background(), "t", "c", "creator"); err == nil {
		t.Fatal("expected error when integration is not configured")
	}
}

func TestParseGenerated(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		wantTitle string
		wantIn    string
	}{
		{
			"clean json",
			`{"title":"Runbook","content":"<h2>Steps</h2>"}`,
			"Runbook",
			"<h2>Steps</h2>",
		},
		{
			"no json falls back",
			"The page should describe the deploy steps.",
			"Thread Notes",
			"The page should describe the deploy steps.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseGenerated(tt.reply)
			if got.Title != tt.wantTitle {
				t.Fatalf("title = %q, want %q", got.Title, tt.wantTitle)
			}
			if !strings.Contains(got.Content, tt.wantIn) {
				t.Fatalf("content = %q, want it to contain %q", got.Content, tt.wantIn)
			}
		})
	}
}

func TestFormatBodyEscapesPlainText(t *testing.T) {
	body := formatBody("a < b", "Jane")
	if !strings.Contains(body, "a &lt; b") {
		t.Fatalf("plain text not escaped: %q", body)
	}
	htmlBody := formatBody("<h2>Already HTML</h2>", "Jane")
	if !strings.Contains(htmlBody, "<h2>Already HTML</h2>") {
		t.Fatalf("html content mangled: %q", htmlBody)
	}
}
