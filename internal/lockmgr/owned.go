package lockmgr

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/shirou/gopsutil/process"

	"fileprocessor/internal/lockname"
	"fileprocessor/internal/logging"
)

// Lock is a lock record found on disk.
type Lock struct {
	Path   string
	Record lockname.Record
}

// ListLocks walks dir and returns every lock record, oldest claim first.
func ListLocks(ctx context.Context, dir string) ([]Lock, error) {
	var locks []Lock
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == dir {
				return walkErr
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if rec, ok := lockname.Parse(d.Name()); ok && rec.Kind == lockname.KindLock {
			locks = append(locks, Lock{Path: path, Record: rec})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list locks in %s: %w", dir, err)
	}
	sort.SliceStable(locks, func(i, j int) bool {
		return locks[i].Record.Time.Before(locks[j].Record.Time)
	})
	return locks, nil
}

// OwnedOptions selects which locks ReclaimOwned releases.
type OwnedOptions struct {
	// All releases every lock regardless of owner.
	All    bool
	DryRun bool
	// Alive reports whether the owning pid still runs. Defaults to a
	// process-table lookup.
	Alive func(pid int) bool
}

// OwnedAction is the outcome for one lock.
type OwnedAction struct {
	Lock       Lock
	OwnerAlive bool
	Released   bool
	Skipped    string
}

// ReclaimOwned releases locks whose owner process is gone, or every lock when
// opts.All is set. It is the manual counterpart of ReclaimStale for operators
// who do not want to wait for the process timeout.
func (m *Manager) ReclaimOwned(ctx context.Context, dir string, opts OwnedOptions) ([]OwnedAction, ReclaimResult, error) {
	alive := opts.Alive
	if alive == nil {
		alive = pidAlive
	}
	locks, err := ListLocks(ctx, dir)
	if err != nil {
		return nil, ReclaimResult{}, err
	}

	var result ReclaimResult
	actions := make([]OwnedAction, 0, len(locks))
	for _, lock := range locks {
		action := OwnedAction{Lock: lock, OwnerAlive: alive(lock.Record.PID)}
		switch {
		case action.OwnerAlive && !opts.All:
			action.Skipped = "owner running"
		case opts.DryRun:
			action.Skipped = "dry run"
		default:
			before := result.Reclaimed
			m.reclaim(lock.Path, &result)
			action.Released = result.Reclaimed > before
			if !action.Released {
				action.Skipped = "not released"
			}
		}
		actions = append(actions, action)
	}
	m.logger.Info("manual reclaim finished",
		logging.String(logging.FieldPath, dir),
		logging.Int("locks", len(locks)),
		logging.Int("released", result.Reclaimed),
		logging.Bool("dry_run", opts.DryRun),
		logging.String(logging.FieldEventType, "reclaim_owned"),
	)
	return actions, result, nil
}

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(pid))
	if err != nil {
		// Unknown liveness keeps the lock.
		return true
	}
	return exists
}
