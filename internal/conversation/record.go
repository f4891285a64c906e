// Package conversation owns the durable mapping between external chat
// threads and backend assistant sessions: the per-thread records, the
// process-wide global state, and the registry operations over them.
package conversation

import "time"

// Record binds one external chat thread to its backend session.
//
// SessionID is created at most once per thread (idempotent
// get-or-create) and never changes afterwards. Watermark is the
// ordering key of the last externally-sourced message replayed into
// the session; it only moves forward, and only after a confirmed
// append. An empty watermark means no messages have been replayed yet.
type Record struct {
	// ThreadID is the stable external thread identifier, primary key.
	ThreadID string `json:"external_thread_id"`

	// SessionID is the backend conversation session bound to this thread.
	SessionID string `json:"session_id"`

	// PersonaID is the backend assistant currently answering. Changes
	// on mode switch.
	PersonaID string `json:"persona_id"`

	// Mode selects the persona and system prompt.
	Mode string `json:"mode"`

	// Watermark is the ordering key of the last replayed message, or
	// empty when nothing has been replayed.
	Watermark string `json:"watermark,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// Clone returns a copy so stored records cannot be mutated through
// returned pointers.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
