package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	entries := []Entry{
		{RunID: "r1", PID: 10, Dir: "/q", Name: "a", Outcome: OutcomeProcessed, Duration: 1500 * time.Millisecond, RecordedAt: base},
		{RunID: "r1", PID: 10, Dir: "/q", Name: "b", Outcome: OutcomeFailed, ExitCode: 2, RecordedAt: base.Add(time.Second)},
		{RunID: "r1", PID: 10, Dir: "/q", Name: "c", Outcome: OutcomeTimedOut, ExitCode: -1, Detail: "timeout", RecordedAt: base.Add(2 * time.Second)},
	}
	for _, entry := range entries {
		if err := store.Record(ctx, entry); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Name != "c" || got[0].Outcome != OutcomeTimedOut || got[0].Detail != "timeout" {
		t.Fatalf("unexpected newest entry: %+v", got[0])
	}
	if got[1].Name != "b" || got[1].ExitCode != 2 {
		t.Fatalf("unexpected second entry: %+v", got[1])
	}
	if !got[0].RecordedAt.Equal(base.Add(2 * time.Second)) {
		t.Fatalf("recorded_at not preserved: %s", got[0].RecordedAt)
	}

	all, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(all) != 3 || all[2].Duration != 1500*time.Millisecond {
		t.Fatalf("unexpected full history: %+v", all)
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Record(context.Background(), Entry{RunID: "r", Dir: "/q", Name: "x", Outcome: OutcomeProcessed}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	_ = store.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 || got[0].RecordedAt.IsZero() {
		t.Fatalf("unexpected entries after reopen: %+v", got)
	}
}

func TestSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := store.db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = store.Close()

	if _, err := Open(path); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for blank path")
	}
}
