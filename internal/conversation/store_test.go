package conversation

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// storeUnderTest exercises the Store and GlobalStore contracts that
// the file, sqlite, and memory implementations all share.
func storeUnderTest(t *testing.T, s interface {
	Store
	GlobalStore
}) {
	t.Helper()
	ctx := context.Background()

	missing, err := s.Load(ctx, "absent")
	if err != nil {
		t.Fatalf("Load(absent) error = %v", err)
	}
	if missing != nil {
		t.Fatalf("Load(absent) = %+v, want nil", missing)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	rec := &Record{
		ThreadID:    "1700000000.000100",
		SessionID:   "sess-1",
		PersonaID:   "asst-1",
		Mode:        "normal",
		CreatedAt:   now,
		LastUpdated: now,
	}
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := s.Load(ctx, rec.ThreadID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded == nil || loaded.SessionID != "sess-1" || loaded.Mode != "normal" {
		t.Fatalf("Load() = %+v", loaded)
	}
	if loaded.Watermark != "" {
		t.Fatalf("fresh record watermark = %q, want empty", loaded.Watermark)
	}

	loaded.Watermark = "1700000009.000000"
	loaded.Mode = "rhyme"
	if err := s.Save(ctx, loaded); err != nil {
		t.Fatalf("Save(update) error = %v", err)
	}
	updated, err := s.Load(ctx, rec.ThreadID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Watermark != "1700000009.000000" || updated.Mode != "rhyme" {
		t.Fatalf("update lost: %+v", updated)
	}

	noGlobal, err := s.LoadGlobal(ctx)
	if err != nil {
		t.Fatalf("LoadGlobal() error = %v", err)
	}
	if noGlobal != nil {
		t.Fatalf("LoadGlobal() = %+v, want nil before first save", noGlobal)
	}
	snap := &GlobalSnapshot{
		PersonaByMode: map[string]string{"normal": "asst-1"},
		Statistics:    Statistics{ThreadsCreated: 2, Runs: 5, LastUpdated: now},
	}
	if err := s.SaveGlobal(ctx, snap); err != nil {
		t.Fatalf("SaveGlobal() error = %v", err)
	}
	restored, err := s.LoadGlobal(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if restored.PersonaByMode["normal"] != "asst-1" || restored.Statistics.Runs != 5 {
		t.Fatalf("LoadGlobal() = %+v", restored)
	}
}

func TestFileStoreContract(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	storeUnderTest(t, store)
}

func TestSQLiteStoreContract(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "loom.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	storeUnderTest(t, store)
}

func TestMemoryStoreContract(t *testing.T) {
	storeUnderTest(t, NewMemoryStore())
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	rec := &Record{ThreadID: "t1", SessionID: "s1", PersonaID: "a1", Mode: "normal"}
	if err := store.Save(ctx, rec); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := reopened.Load(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded == nil || loaded.SessionID != "s1" {
		t.Fatalf("record lost across reopen: %+v", loaded)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Save(ctx, &Record{ThreadID: "t1", SessionID: "s1"}); err != nil {
		t.Fatal(err)
	}
	first, _ := store.Load(ctx, "t1")
	first.SessionID = "tampered"
	second, _ := store.Load(ctx, "t1")
	if second.SessionID != "s1" {
		t.Fatal("store leaked internal pointer")
	}
}
