package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists records and global state in a single SQLite
// database. It implements the same Store/GlobalStore contracts as
// FileStore and exists for deployments that outgrow one process: the
// upserts are transactional, so the single-writer-by-construction
// assumption of the file store is not load-bearing here.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	thread_id    TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL,
	persona_id   TEXT NOT NULL,
	mode         TEXT NOT NULL,
	watermark    TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL,
	last_updated TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS global_state (
	id       INTEGER PRIMARY KEY CHECK (id = 1),
	snapshot TEXT NOT NULL
);
`

// NewSQLiteStore opens (and if needed creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// SQLite handles one writer at a time; a second connection would
	// only produce SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Load reads the record for threadID, or (nil, nil) if absent.
func (s *SQLiteStore) Load(ctx context.Context, threadID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT thread_id, session_id, persona_id, mode, watermark, created_at, last_updated
		FROM conversations WHERE thread_id = ?
	`, threadID)

	var rec Record
	var created, updated string
	err := row.Scan(&rec.ThreadID, &rec.SessionID, &rec.PersonaID, &rec.Mode, &rec.Watermark, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", threadID, err)
	}
	rec.CreatedAt = parseSQLiteTime(created)
	rec.LastUpdated = parseSQLiteTime(updated)
	return &rec, nil
}

// Save upserts the record.
func (s *SQLiteStore) Save(ctx context.Context, record *Record) error {
	if record == nil || record.ThreadID == "" {
		return errors.New("record with thread id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (thread_id, session_id, persona_id, mode, watermark, created_at, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (thread_id) DO UPDATE SET
			session_id   = excluded.session_id,
			persona_id   = excluded.persona_id,
			mode         = excluded.mode,
			watermark    = excluded.watermark,
			last_updated = excluded.last_updated
	`, record.ThreadID, record.SessionID, record.PersonaID, record.Mode, record.Watermark,
		record.CreatedAt.UTC().Format(time.RFC3339Nano), record.LastUpdated.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save conversation %s: %w", record.ThreadID, err)
	}
	return nil
}

// LoadGlobal reads the global state unit, or (nil, nil) if absent.
func (s *SQLiteStore) LoadGlobal(ctx context.Context) (*GlobalSnapshot, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM global_state WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load global state: %w", err)
	}
	var snap GlobalSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("parse global state: %w", err)
	}
	return &snap, nil
}

// SaveGlobal upserts the global state unit.
func (s *SQLiteStore) SaveGlobal(ctx context.Context, snapshot *GlobalSnapshot) error {
	if snapshot == nil {
		return errors.New("snapshot is required")
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO global_state (id, snapshot) VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET snapshot = excluded.snapshot
	`, string(raw))
	if err != nil {
		return fmt.Errorf("save global state: %w", err)
	}
	return nil
}

func parseSQLiteTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
