package lockmgr

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"fileprocessor/internal/fileutil"
	"fileprocessor/internal/lockname"
	"fileprocessor/internal/logging"
	"fileprocessor/internal/scanner"
)

// ErrNotFound reports that a file disappeared before it could be claimed,
// usually because another instance claimed it first.
var ErrNotFound = errors.New("file no longer present")

// Mode selects what happens to a file after its command succeeds.
type Mode string

const (
	ModeDone   Mode = "done"
	ModeMove   Mode = "move"
	ModeDelete Mode = "delete"
)

// Disposition describes how Finalize retires a lock.
type Disposition struct {
	Mode   Mode
	MoveTo string
}

// Options configures a Manager.
type Options struct {
	// PID is embedded in lock and done names. Defaults to os.Getpid().
	PID int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Manager performs every state transition of a queued file. Each transition
// is a single rename within the file's directory, except cross-device moves.
type Manager struct {
	pid    int
	now    func() time.Time
	logger *slog.Logger
}

// New constructs a Manager.
func New(logger *slog.Logger, opts Options) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	pid := opts.PID
	if pid <= 0 {
		pid = os.Getpid()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		pid:    pid,
		now:    now,
		logger: logger.With(logging.String(logging.FieldComponent, "lockmgr")),
	}
}

// PID returns the owner pid written into lock names.
func (m *Manager) PID() int {
	return m.pid
}

// Claim renames dir/name to its lock form and returns the lock path. Exactly
// one of several concurrent claimers succeeds; the others get ErrNotFound.
func (m *Manager) Claim(dir, name string) (string, error) {
	src := filepath.Join(dir, name)
	lockPath := filepath.Join(dir, lockname.Lock(name, m.now(), m.pid))
	if err := os.Rename(src, lockPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("claim %s: %w", src, ErrNotFound)
		}
		return "", fmt.Errorf("claim %s: %w", src, err)
	}
	return lockPath, nil
}

// Finalize retires a lock after a successful run. A lock that vanished in the
// meantime is logged and not reported as an error.
func (m *Manager) Finalize(lockPath string, disp Disposition) error {
	dir, lockName := filepath.Split(lockPath)
	original := lockname.Original(lockName)
	logger := m.logger.With(logging.String(logging.FieldPath, lockPath))

	var err error
	switch disp.Mode {
	case ModeDelete:
		err = os.Remove(lockPath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("delete failed; marking done instead",
				logging.Error(err),
				logging.String(logging.FieldEventType, "finalize_delete_failed"),
			)
			err = m.markDone(dir, original, lockPath)
		}
	case ModeMove:
		target := filepath.Join(disp.MoveTo, original)
		err = fileutil.MoveFile(lockPath, target)
		if err == nil {
			logger.Debug("moved processed file", logging.String("target", target))
		}
	default:
		err = m.markDone(dir, original, lockPath)
	}

	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("lock vanished before finalize",
			logging.String(logging.FieldEventType, "finalize_vanished"),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("finalize %s: %w", lockPath, err)
	}
	return nil
}

func (m *Manager) markDone(dir, original, lockPath string) error {
	return os.Rename(lockPath, filepath.Join(dir, lockname.Done(original, m.now(), m.pid)))
}

// ReclaimResult tallies a reclaim pass.
type ReclaimResult struct {
	Reclaimed  int
	Collisions int
	Vanished   int
	Failed     int
}

// Total returns the number of locks examined.
func (r ReclaimResult) Total() int {
	return r.Reclaimed + r.Collisions + r.Vanished + r.Failed
}

// ReclaimStale renames each stale lock back to its original name. An existing
// file at the original name is never replaced; such locks are skipped.
func (m *Manager) ReclaimStale(items []scanner.Item) ReclaimResult {
	var result ReclaimResult
	for _, item := range items {
		m.reclaim(item.Path(), &result)
	}
	if result.Reclaimed > 0 {
		m.logger.Info("reclaimed stale locks",
			logging.Int("count", result.Reclaimed),
			logging.String(logging.FieldEventType, "reclaim_stale"),
		)
	}
	return result
}

func (m *Manager) reclaim(lockPath string, result *ReclaimResult) {
	dir, lockName := filepath.Split(lockPath)
	target := filepath.Join(dir, lockname.Original(lockName))
	logger := m.logger.With(logging.String(logging.FieldPath, lockPath))

	err := renameNoReplace(lockPath, target)
	switch {
	case err == nil:
		result.Reclaimed++
		logger.Debug("lock reclaimed", logging.String("target", target))
	case errors.Is(err, fs.ErrExist):
		result.Collisions++
		logger.Warn("original name already taken; leaving lock in place",
			logging.String("target", target),
			logging.String(logging.FieldEventType, "reclaim_collision"),
			logging.String(logging.FieldErrorHint, "rename or remove one of the two files by hand"),
		)
	case errors.Is(err, fs.ErrNotExist):
		result.Vanished++
		logger.Debug("lock vanished before reclaim")
	default:
		result.Failed++
		logging.WarnWithContext(logger, "reclaim failed", "reclaim_failed",
			logging.Error(err),
		)
	}
}

// statRename refuses to overwrite an existing target. The check and the
// rename are two steps, so a file created in between can still be replaced.
func statRename(oldPath, newPath string) error {
	if _, err := os.Lstat(newPath); err == nil {
		return &os.LinkError{Op: "rename", Old: oldPath, New: newPath, Err: fs.ErrExist}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Rename(oldPath, newPath)
}
