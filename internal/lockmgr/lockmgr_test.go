package lockmgr_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fileprocessor/internal/lockmgr"
	"fileprocessor/internal/lockname"
	"fileprocessor/internal/logging"
	"fileprocessor/internal/scanner"
)

var fixedNow = time.Date(2024, 3, 9, 8, 7, 6, 0, time.UTC)

func newManager() *lockmgr.Manager {
	return lockmgr.New(logging.NewNop(), lockmgr.Options{PID: 4242, Now: func() time.Time { return fixedNow }})
}

func write(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestClaimRenamesToLock(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "job.txt"), "payload")

	lockPath, err := newManager().Claim(dir, "job.txt")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if want := filepath.Join(dir, ".fp-lock-20240309T080706_4242_job.txt"); lockPath != want {
		t.Fatalf("unexpected lock path: got %q want %q", lockPath, want)
	}
	if read(t, lockPath) != "payload" {
		t.Fatal("lock content differs from original")
	}
	if _, err := os.Stat(filepath.Join(dir, "job.txt")); !os.IsNotExist(err) {
		t.Fatalf("original should be gone, stat err=%v", err)
	}
}

func TestClaimMissingFile(t *testing.T) {
	_, err := newManager().Claim(t.TempDir(), "missing")
	if !errors.Is(err, lockmgr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClaimSingleWinner(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "job"), "x")

	first := newManager()
	second := lockmgr.New(logging.NewNop(), lockmgr.Options{PID: 5151})
	if _, err := first.Claim(dir, "job"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := second.Claim(dir, "job"); !errors.Is(err, lockmgr.ErrNotFound) {
		t.Fatalf("second claim should lose, got %v", err)
	}
}

func TestFinalizeDone(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "job"), "x")
	mgr := newManager()
	lockPath, err := mgr.Claim(dir, "job")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}

	if err := mgr.Finalize(lockPath, lockmgr.Disposition{Mode: lockmgr.ModeDone}); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	donePath := filepath.Join(dir, lockname.Done("job", fixedNow, 4242))
	if read(t, donePath) != "x" {
		t.Fatal("done record missing content")
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Fatalf("lock should be gone, stat err=%v", err)
	}
}

func TestFinalizeDelete(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "job"), "x")
	mgr := newManager()
	lockPath, err := mgr.Claim(dir, "job")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}

	if err := mgr.Finalize(lockPath, lockmgr.Disposition{Mode: lockmgr.ModeDelete}); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty directory, found %d entries", len(entries))
	}
}

func TestFinalizeMoveOverwrites(t *testing.T) {
	dir := t.TempDir()
	dest := t.TempDir()
	write(t, filepath.Join(dir, "job"), "new")
	write(t, filepath.Join(dest, "job"), "old")
	mgr := newManager()
	lockPath, err := mgr.Claim(dir, "job")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}

	if err := mgr.Finalize(lockPath, lockmgr.Disposition{Mode: lockmgr.ModeMove, MoveTo: dest}); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if read(t, filepath.Join(dest, "job")) != "new" {
		t.Fatal("expected moved file to replace existing one")
	}
}

func TestFinalizeVanishedLock(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, lockname.Lock("gone", fixedNow, 4242))
	for _, mode := range []lockmgr.Mode{lockmgr.ModeDone, lockmgr.ModeDelete, lockmgr.ModeMove} {
		disp := lockmgr.Disposition{Mode: mode, MoveTo: t.TempDir()}
		if err := newManager().Finalize(lockPath, disp); err != nil {
			t.Fatalf("%s: vanished lock should not be an error, got %v", mode, err)
		}
	}
}

func TestReclaimStale(t *testing.T) {
	dir := t.TempDir()
	old := fixedNow.Add(-time.Hour)
	free := lockname.Lock("free.txt", old, 1)
	taken := lockname.Lock("taken.txt", old, 1)
	write(t, filepath.Join(dir, free), "a")
	write(t, filepath.Join(dir, taken), "b")
	write(t, filepath.Join(dir, "taken.txt"), "newer")

	result := newManager().ReclaimStale([]scanner.Item{
		{Dir: dir, Name: free},
		{Dir: dir, Name: taken},
		{Dir: dir, Name: lockname.Lock("ghost", old, 1)},
	})
	if result.Reclaimed != 1 || result.Collisions != 1 || result.Vanished != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Total() != 3 {
		t.Fatalf("unexpected total: %d", result.Total())
	}
	if read(t, filepath.Join(dir, "free.txt")) != "a" {
		t.Fatal("reclaimed file has wrong content")
	}
	if read(t, filepath.Join(dir, "taken.txt")) != "newer" {
		t.Fatal("collision must not replace the existing file")
	}
	if read(t, filepath.Join(dir, taken)) != "b" {
		t.Fatal("colliding lock should stay in place")
	}
}

func TestFailedClaimIsStaleWithZeroTimeout(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.txt"), "payload")
	mgr := newManager()

	// The command exited 2, so the lock is left in place.
	lockPath, err := mgr.Claim(dir, "a.txt")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}

	scanned, err := scanner.Scan(context.Background(), dir, scanner.Options{
		ProcessTimeout: 0,
		Now:            func() time.Time { return fixedNow.Add(time.Millisecond) },
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(scanned.Work) != 0 || len(scanned.Stale) != 1 || scanned.Stale[0].Path() != lockPath {
		t.Fatalf("expected only the lock as stale, got work=%d stale=%+v", len(scanned.Work), scanned.Stale)
	}

	result := mgr.ReclaimStale(scanned.Stale)
	if result.Reclaimed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if read(t, filepath.Join(dir, "a.txt")) != "payload" {
		t.Fatal("a.txt should be restored with its content")
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Fatalf("lock should be gone, stat err=%v", err)
	}
}

func TestReclaimOwned(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, lockname.Lock("dead.txt", fixedNow, 100)), "d")
	write(t, filepath.Join(dir, lockname.Lock("live.txt", fixedNow.Add(time.Second), 200)), "l")
	write(t, filepath.Join(dir, lockname.Done("done.txt", fixedNow, 100)), "x")
	alive := func(pid int) bool { return pid == 200 }
	mgr := newManager()

	actions, result, err := mgr.ReclaimOwned(context.Background(), dir, lockmgr.OwnedOptions{DryRun: true, Alive: alive})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if len(actions) != 2 || result.Reclaimed != 0 {
		t.Fatalf("dry run should list two locks and release none: %d %+v", len(actions), result)
	}

	actions, result, err = mgr.ReclaimOwned(context.Background(), dir, lockmgr.OwnedOptions{Alive: alive})
	if err != nil {
		t.Fatalf("ReclaimOwned: %v", err)
	}
	if result.Reclaimed != 1 {
		t.Fatalf("expected one release, got %+v", result)
	}
	if !actions[0].Released || actions[1].Released || actions[1].Skipped != "owner running" {
		t.Fatalf("unexpected actions: %+v", actions)
	}
	if read(t, filepath.Join(dir, "dead.txt")) != "d" {
		t.Fatal("dead owner's file not restored")
	}

	_, result, err = mgr.ReclaimOwned(context.Background(), dir, lockmgr.OwnedOptions{All: true, Alive: alive})
	if err != nil {
		t.Fatalf("ReclaimOwned all: %v", err)
	}
	if result.Reclaimed != 1 {
		t.Fatalf("expected live lock released with All, got %+v", result)
	}
	if _, err := os.Stat(filepath.Join(dir, "live.txt")); err != nil {
		t.Fatalf("live file not restored: %v", err)
	}
}
