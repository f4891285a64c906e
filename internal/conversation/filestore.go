package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore keeps one JSON file per thread under <dir>/threads plus a
// single global.json, matching the single-writer persistence model:
// writes to different threads never contend, and a single thread's
// file is only ever written from inside that thread's serialized task.
type FileStore struct {
	dir string
}

// NewFileStore creates the data directories if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, "threads"), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) threadPath(threadID string) string {
	// Slack thread ids contain a dot ("1700000000.123456"); that is
	// filename-safe, so the id is embedded as-is.
	return filepath.Join(s.dir, "threads", "sl-"+threadID+".json")
}

func (s *FileStore) globalPath() string {
	return filepath.Join(s.dir, "global.json")
}

// Load reads the record for threadID, or (nil, nil) if absent.
func (s *FileStore) Load(_ context.Context, threadID string) (*Record, error) {
	data, err := os.ReadFile(s.threadPath(threadID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read thread record %s: %w", threadID, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse thread record %s: %w", threadID, err)
	}
	return &rec, nil
}

// Save writes the record via a temp file and rename so readers never
// observe a torn write.
func (s *FileStore) Save(_ context.Context, record *Record) error {
	if record == nil || record.ThreadID == "" {
		return fmt.Errorf("record with thread id is required")
	}
	return writeJSON(s.threadPath(record.ThreadID), record)
}

// LoadGlobal reads the global state unit, or (nil, nil) if absent.
func (s *FileStore) LoadGlobal(_ context.Context) (*GlobalSnapshot, error) {
	data, err := os.ReadFile(s.globalPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read global state: %w", err)
	}
	var snap GlobalSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse global state: %w", err)
	}
	return &snap, nil
}

// SaveGlobal writes the global state unit.
func (s *FileStore) SaveGlobal(_ context.Context, snapshot *GlobalSnapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot is required")
	}
	return writeJSON(s.globalPath(), snapshot)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
