package conversation

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store/GlobalStore used in tests and as a
// reference implementation of the contracts.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	global  *GlobalSnapshot
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Load returns the record for threadID, or (nil, nil) if absent.
func (s *MemoryStore) Load(_ context.Context, threadID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[threadID].Clone(), nil
}

// Save stores a copy of the record.
func (s *MemoryStore) Save(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ThreadID] = record.Clone()
	return nil
}

// LoadGlobal returns the saved snapshot, or (nil, nil) if absent.
func (s *MemoryStore) LoadGlobal(context.Context) (*GlobalSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.global == nil {
		return nil, nil
	}
	snap := *s.global
	snap.PersonaByMode = make(map[string]string, len(s.global.PersonaByMode))
	for k, v := range s.global.PersonaByMode {
		snap.PersonaByMode[k] = v
	}
	return &snap, nil
}

// SaveGlobal stores a copy of the snapshot.
func (s *MemoryStore) SaveGlobal(_ context.Context, snapshot *GlobalSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := *snapshot
	snap.PersonaByMode = make(map[string]string, len(snapshot.PersonaByMode))
	for k, v := range snapshot.PersonaByMode {
		snap.PersonaByMode[k] = v
	}
	s.global = &snap
	return nil
}

// Len reports the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
