// Package prompts loads the prompt pack: persona definitions per
// conversation mode, acknowledgement strings, and the canned lines the
// bot uses while thinking or when a run fails.
package prompts

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sync"
)

// Persona defines a backend assistant configuration for one mode.
type Persona struct {
	// Name is the assistant display name registered with the backend.
	Name string `json:"name"`

	// SystemPrompt is the fixed instruction set for the persona.
	SystemPrompt string `json:"system_prompt"`

	// Model is the backend model identifier.
	Model string `json:"model"`

	// Ack is posted when a user switches the conversation to this mode.
	Ack string `json:"ack"`
}

// pack is the on-disk schema of the prompt pack file.
type pack struct {
	DefaultMode    string             `json:"default_mode"`
	Personas       map[string]Persona `json:"personas"`
	Thinking       []string           `json:"thinking_prompts"`
	Fallback       string             `json:"fallback_reply"`
	EmptyMessage   string             `json:"empty_message_reply"`
	NoThreadSumm   string             `json:"no_thread_summary_reply"`
	SummaryRequest string             `json:"summary_request"`
	SummaryHeading string             `json:"summary_heading"`
}

// Pack holds the active prompt pack. All accessors are safe for
// concurrent use; Reload swaps the contents atomically under the lock.
type Pack struct {
	mu sync.RWMutex
	p  pack
}

// Defaults returns a pack with the built-in personas and strings. A
// pack loaded from disk overlays these, so a partial file keeps the
// built-ins for anything it omits.
func Defaults() *Pack {
	return &Pack{p: pack{
		DefaultMode: "normal",
		Personas: map[string]Persona{
			"normal": {
				Name:         "Loom",
				SystemPrompt: "You are a helpful assistant embedded in a team chat. Answer concisely and use the thread context you are given.",
				Model:        "gpt-4o-mini",
				Ack:          "Back to normal mode.",
			},
			"rhyme": {
				Name:         "Loom (rhyme)",
				SystemPrompt: "You are a playful assistant that answers everything in rhyming verse while staying accurate and helpful.",
				Model:        "gpt-4o-mini",
				Ack:          "Rhyme mode it is, from here on out, I'll answer in verse without a doubt.",
			},
			"haiku": {
				Name:         "Loom (haiku)",
				SystemPrompt: "You are an assistant that answers only in haiku: three lines of five, seven, and five syllables.",
				Model:        "gpt-4o-mini",
				Ack:          "Haiku mode is set. / Seventeen syllables now / shape every reply.",
			},
			"pirate": {
				Name:         "Loom (pirate)",
				SystemPrompt: "You are an assistant that answers in the voice of a friendly pirate, while remaining accurate and helpful.",
				Model:        "gpt-4o-mini",
				Ack:          "Arr, pirate mode engaged, matey.",
			},
		},
		Thinking: []string{
			"Thinking it over...",
			"Give me a moment...",
			"Pulling the thread together...",
		},
		Fallback:       "I hit a snag answering that one. Mind trying again?",
		EmptyMessage:   "I need a little more than that. What can I help with?",
		NoThreadSumm:   "There's no conversation here to summarize yet. Say something first!",
		SummaryRequest: "Please provide a summary of our entire conversation thread so far. Include the main topics we discussed and key points covered.",
		SummaryHeading: "\U0001F4DC Thread Summary:",
	}}
}

// Load reads the prompt pack file at path, overlaying it on the
// defaults. A missing file returns the defaults untouched.
func Load(path string) (*Pack, error) {
	p := Defaults()
	if path == "" {
		return p, nil
	}
	if err := p.Reload(path); err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return nil, err
	}
	return p, nil
}

// Reload re-reads path and swaps the pack contents. Modes present in
// the file replace the built-in definition for that mode.
func (p *Pack) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var loaded pack
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parse prompt pack %s: %w", path, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if loaded.DefaultMode != "" {
		p.p.DefaultMode = loaded.DefaultMode
	}
	for mode, persona := range loaded.Personas {
		p.p.Personas[mode] = persona
	}
	if len(loaded.Thinking) > 0 {
		p.p.Thinking = loaded.Thinking
	}
	if loaded.Fallback != "" {
		p.p.Fallback = loaded.Fallback
	}
	if loaded.EmptyMessage != "" {
		p.p.EmptyMessage = loaded.EmptyMessage
	}
	if loaded.NoThreadSumm != "" {
		p.p.NoThreadSumm = loaded.NoThreadSumm
	}
	if loaded.SummaryRequest != "" {
		p.p.SummaryRequest = loaded.SummaryRequest
	}
	if loaded.SummaryHeading != "" {
		p.p.SummaryHeading = loaded.SummaryHeading
	}
	return nil
}

// DefaultMode returns the mode used when none is stored or recognized.
func (p *Pack) DefaultMode() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.p.DefaultMode
}

// Persona returns the persona definition for mode.
func (p *Pack) Persona(mode string) (Persona, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	persona, ok := p.p.Personas[mode]
	return persona, ok
}

// Modes returns the known mode vocabulary.
func (p *Pack) Modes() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	modes := make([]string, 0, len(p.p.Personas))
	for mode := range p.p.Personas {
		modes = append(modes, mode)
	}
	return modes
}

// Thinking returns a random thinking line.
func (p *Pack) Thinking() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.p.Thinking) == 0 {
		return ""
	}
	return p.p.Thinking[rand.Intn(len(p.p.Thinking))]
}

// Fallback is the reply posted when a run fails or expires.
func (p *Pack) Fallback() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.p.Fallback
}

// EmptyMessage is the reply to a mention with no content.
func (p *Pack) EmptyMessage() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.p.EmptyMessage
}

// NoThreadSummary is the reply to a summary request with no history.
func (p *Pack) NoThreadSummary() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.p.NoThreadSumm
}

// SummaryRequest is the instruction appended to a session when the
// user asks for a thread summary.
func (p *Pack) SummaryRequest() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.p.SummaryRequest
}

// SummaryHeading prefixes the posted summary reply.
func (p *Pack) SummaryHeading() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.p.SummaryHeading
}
