package conversation

import (
	"context"
	"time"
)

// Store persists conversation records, one unit of storage per thread.
// Load returns (nil, nil) when no record exists. Implementations do
// not need write-write protection for a single thread: the request
// serializer guarantees at most one task touches a given thread at a
// time, and that guarantee must be preserved by every caller.
type Store interface {
	Load(ctx context.Context, threadID string) (*Record, error)
	Save(ctx context.Context, record *Record) error
}

// GlobalStore persists the single process-wide global state unit.
// Load returns (nil, nil) when no state has been saved yet.
type GlobalStore interface {
	LoadGlobal(ctx context.Context) (*GlobalSnapshot, error)
	SaveGlobal(ctx context.Context, snapshot *GlobalSnapshot) error
}

// GlobalSnapshot is the serialized form of the global state.
type GlobalSnapshot struct {
	PersonaByMode map[string]string `json:"persona_by_mode"`
	Statistics    Statistics        `json:"statistics"`
}

// Statistics are monotonically incrementing counters. They are
// observational only and never consulted for control decisions.
type Statistics struct {
	ThreadsCreated    int64     `json:"threads_created"`
	MessagesProcessed int64     `json:"messages_processed"`
	ModeSwitches      int64     `json:"mode_switches"`
	Runs              int64     `json:"runs"`
	LastUpdated       time.Time `json:"last_updated"`
}
