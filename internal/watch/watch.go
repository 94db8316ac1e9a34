package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"fileprocessor/internal/lockname"
	"fileprocessor/internal/logging"
)

// Watcher signals when a new visible file appears anywhere below a directory.
// Signals are coalesced: at most one is pending at a time.
type Watcher struct {
	watcher *fsnotify.Watcher
	wake    chan struct{}
	logger  *slog.Logger
}

// New starts watching dir and all its subdirectories.
func New(dir string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher: fw,
		wake:    make(chan struct{}, 1),
		logger:  logger.With(logging.String(logging.FieldComponent, "watch")),
	}
	if err := w.addRecursive(dir); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

// Wake delivers a value after new files showed up.
func (w *Watcher) Wake() <-chan struct{} {
	return w.wake
}

// Run processes filesystem events until ctx ends or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Debug("watch error", logging.Error(err))
			// Overflow loses events; a wake makes the worker rescan.
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.signal()
			}
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if lockname.IsHidden(filepath.Base(event.Name)) {
		return
	}
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		if err := w.addRecursive(event.Name); err != nil {
			w.logger.Debug("watch new directory failed",
				logging.String(logging.FieldPath, event.Name),
				logging.Error(err),
			)
		}
	}
	w.signal()
}

func (w *Watcher) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			if path == dir {
				return err
			}
			w.logger.Debug("watch directory failed",
				logging.String(logging.FieldPath, path),
				logging.Error(err),
			)
		}
		return nil
	})
}
