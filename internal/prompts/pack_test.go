package prompts

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsCarryModeVocabulary(t *testing.T) {
	p := Defaults()
	if p.DefaultMode() != "normal" {
		t.Fatalf("default mode = %q, want normal", p.DefaultMode())
	}
	for _, mode := range []string{"normal", "rhyme", "haiku", "pirate"} {
		persona, ok := p.Persona(mode)
		if !ok {
			t.Fatalf("missing persona for mode %q", mode)
		}
		if persona.SystemPrompt == "" || persona.Model == "" {
			t.Fatalf("persona %q missing prompt or model", mode)
		}
	}
	if p.Thinking() == "" {
		t.Fatal("expected a thinking line")
	}
	if p.Fallback() == "" {
		t.Fatal("expected a fallback reply")
	}
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := p.Persona("normal"); !ok {
		t.Fatal("defaults should survive a missing file")
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.json")
	content := `{
		"default_mode": "rhyme",
		"personas": {
			"rhyme": {"name": "Bard", "system_prompt": "Rhyme.", "model": "gpt-4o", "ack": "ok"}
		},
		"fallback_reply": "custom fallback"
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p.DefaultMode() != "rhyme" {
		t.Fatalf("default mode = %q, want rhyme", p.DefaultMode())
	}
	persona, ok := p.Persona("rhyme")
	if !ok || persona.Name != "Bard" {
		t.Fatalf("rhyme persona = %+v, want overlay", persona)
	}
	// Modes the file does not mention keep their built-in definitions.
	if _, ok := p.Persona("haiku"); !ok {
		t.Fatal("haiku persona lost during overlay")
	}
	if p.Fallback() != "custom fallback" {
		t.Fatalf("fallback = %q", p.Fallback())
	}
}

func TestReloadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := Defaults()
	if err := p.Reload(path); err == nil {
		t.Fatal("expected parse error")
	}
	// The previous pack stays active after a failed reload.
	if _, ok := p.Persona("normal"); !ok {
		t.Fatal("pack contents lost after failed reload")
	}
}
