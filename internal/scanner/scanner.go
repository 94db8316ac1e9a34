package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"fileprocessor/internal/lockname"
	"fileprocessor/internal/logging"
)

const (
	// DefaultMaxWork bounds the work list of a single scan.
	DefaultMaxWork = 100000
	// DefaultMaxStale bounds the stale lock list of a single scan.
	DefaultMaxStale = 1000
)

// Sort keys accepted by Options.SortBy.
const (
	SortModTime = "mtime"
	SortName    = "name"
)

// Item is a file found by a scan.
type Item struct {
	Dir     string
	Name    string
	ModTime time.Time
}

// Path joins the item's directory and name.
func (i Item) Path() string {
	return filepath.Join(i.Dir, i.Name)
}

// Options controls classification, limits and ordering.
type Options struct {
	// ProcessTimeout is the lock age after which a lock is stale. Zero makes
	// every lock claimed before Now stale.
	ProcessTimeout time.Duration
	SortBy         string
	Reverse        bool
	MaxWork        int
	MaxStale       int
	// Now defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Result holds the two lists produced by a scan.
type Result struct {
	// Work is in processing order: Work[0] should be claimed first.
	Work  []Item
	Stale []Item
	// Truncated reports that the walk stopped at MaxWork.
	Truncated bool
}

var errWorkFull = errors.New("work list full")

// Scan walks dir once, subdirectories included, and partitions its files into
// work items and stale locks. A lock whose timestamp does not parse counts as
// stale. Lock records that are not stale and hidden files are skipped. Only filesystem reads are performed.
func Scan(ctx context.Context, dir string, opts Options) (Result, error) {
	maxWork := opts.MaxWork
	if maxWork <= 0 {
		maxWork = DefaultMaxWork
	}
	maxStale := opts.MaxStale
	if maxStale <= 0 {
		maxStale = DefaultMaxStale
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	cutoff := now().Add(-opts.ProcessTimeout)

	var result Result
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == dir {
				return walkErr
			}
			logger.Debug("skipping unreadable path",
				logging.String(logging.FieldPath, path),
				logging.Error(walkErr),
				logging.String(logging.FieldEventType, "scan_skip"),
			)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				return nil
			}
		}

		name := d.Name()
		parent := filepath.Dir(path)
		if lockname.IsLock(name) {
			if len(result.Stale) >= maxStale {
				return nil
			}
			rec, ok := lockname.Parse(name)
			if !ok {
				// The stamp is not a calendar time, so its age is unknown.
				logger.Debug("lock with unreadable timestamp treated as stale",
					logging.String(logging.FieldPath, path),
					logging.String(logging.FieldEventType, "scan_bad_lock_stamp"),
				)
			}
			if !ok || rec.Time.Before(cutoff) {
				result.Stale = append(result.Stale, Item{Dir: parent, Name: name})
			}
			return nil
		}
		if lockname.IsHidden(name) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			// Claimed or removed since the directory was listed.
			return nil
		}
		result.Work = append(result.Work, Item{Dir: parent, Name: name, ModTime: info.ModTime()})
		if len(result.Work) >= maxWork {
			result.Truncated = true
			return errWorkFull
		}
		return nil
	})
	if err != nil && !errors.Is(err, errWorkFull) {
		return Result{}, fmt.Errorf("scan %s: %w", dir, err)
	}

	Order(result.Work, opts.SortBy, opts.Reverse)
	return result, nil
}

// Order sorts items into processing order. SortModTime puts the oldest file
// first and SortName the lexicographically smallest full path first; reverse
// flips either order. Equal modification times fall back to path order.
func Order(items []Item, sortBy string, reverse bool) {
	less := func(a, b Item) bool { return a.Path() < b.Path() }
	if sortBy != SortName {
		less = func(a, b Item) bool {
			if !a.ModTime.Equal(b.ModTime) {
				return a.ModTime.Before(b.ModTime)
			}
			return a.Path() < b.Path()
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if reverse {
			return less(items[j], items[i])
		}
		return less(items[i], items[j])
	})
}
