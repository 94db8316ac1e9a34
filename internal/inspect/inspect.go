package inspect

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	"fileprocessor/internal/lockname"
)

// LockInfo describes a file currently claimed by some instance.
type LockInfo struct {
	Path     string    `json:"path"`
	Original string    `json:"original"`
	PID      int       `json:"pid"`
	Claimed  time.Time `json:"claimed"`
	Age      string    `json:"age"`
	Stale    bool      `json:"stale"`
}

// Snapshot is a point-in-time view of a queue directory.
type Snapshot struct {
	Dir           string     `json:"dir"`
	Pending       int        `json:"pending"`
	Done          int        `json:"done"`
	Hidden        int        `json:"hidden"`
	Locks         []LockInfo `json:"locks"`
	OldestPending time.Time  `json:"oldest_pending,omitempty"`
	TakenAt       time.Time  `json:"taken_at"`
}

// StaleCount returns the number of locks past the process timeout.
func (s Snapshot) StaleCount() int {
	n := 0
	for _, lock := range s.Locks {
		if lock.Stale {
			n++
		}
	}
	return n
}

// Take walks dir and classifies every file. It never modifies the directory.
func Take(ctx context.Context, dir string, now time.Time, processTimeout time.Duration) (Snapshot, error) {
	snap := Snapshot{Dir: dir, TakenAt: now}
	cutoff := now.Add(-processTimeout)

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
		name := d.Name()
		if rec, ok := lockname.Parse(name); ok {
			if rec.Kind == lockname.KindDone {
				snap.Done++
				return nil
			}
			snap.Locks = append(snap.Locks, LockInfo{
				Path:     path,
				Original: rec.Original,
				PID:      rec.PID,
				Claimed:  rec.Time,
				Age:      now.Sub(rec.Time).Truncate(time.Second).String(),
				Stale:    rec.Time.Before(cutoff),
			})
			return nil
		}
		if lockname.IsLock(name) {
			// Unreadable stamp; the next scan reclaims it.
			snap.Locks = append(snap.Locks, LockInfo{
				Path:     path,
				Original: lockname.Original(name),
				Age:      "unknown",
				Stale:    true,
			})
			return nil
		}
		if lockname.IsHidden(name) {
			snap.Hidden++
			return nil
		}
		snap.Pending++
		if info, err := d.Info(); err == nil {
			if snap.OldestPending.IsZero() || info.ModTime().Before(snap.OldestPending) {
				snap.OldestPending = info.ModTime()
			}
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("inspect %s: %w", dir, err)
	}

	sort.SliceStable(snap.Locks, func(i, j int) bool {
		return snap.Locks[i].Claimed.Before(snap.Locks[j].Claimed)
	})
	return snap, nil
}
