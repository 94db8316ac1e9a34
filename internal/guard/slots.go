package guard

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/gofrs/flock"

	"fileprocessor/internal/logging"
)

// LockSlots admits up to max instances per working directory by holding one
// of max advisory lock files in runtimeDir. The kernel drops the lock when a
// process dies, so crashed instances never leak a slot.
type LockSlots struct {
	dir        string
	runtimeDir string
	max        int
	logger     *slog.Logger
}

// NewLockSlots constructs the lock-slot guard for the absolute dir.
func NewLockSlots(dir, runtimeDir string, max int, logger *slog.Logger) *LockSlots {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LockSlots{
		dir:        filepath.Clean(dir),
		runtimeDir: runtimeDir,
		max:        max,
		logger:     logger.With(logging.String(logging.FieldComponent, "guard")),
	}
}

// SlotPath returns the lock file for slot i of the working directory.
func (g *LockSlots) SlotPath(i int) string {
	return filepath.Join(g.runtimeDir, fmt.Sprintf("slot-%016x-%d.lock", xxhash.Sum64String(g.dir), i))
}

// Admit takes the first free slot.
func (g *LockSlots) Admit(ctx context.Context) (Admission, error) {
	if err := os.MkdirAll(g.runtimeDir, 0o755); err != nil {
		return Admission{}, fmt.Errorf("create runtime dir: %w", err)
	}
	for i := 0; i < g.max; i++ {
		if err := ctx.Err(); err != nil {
			return Admission{}, err
		}
		path := g.SlotPath(i)
		lock := flock.New(path)
		ok, err := lock.TryLock()
		if err != nil {
			return Admission{}, fmt.Errorf("acquire slot %s: %w", path, err)
		}
		if !ok {
			continue
		}
		g.logger.Debug("acquired instance slot",
			logging.String(logging.FieldPath, g.dir),
			logging.String("slot", path),
		)
		return Admission{Peers: i, release: lock.Unlock}, nil
	}
	return Admission{Peers: g.max}, fmt.Errorf("%d slots held for %s: %w", g.max, g.dir, ErrTooManyInstances)
}
