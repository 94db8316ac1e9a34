package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrInvalidDirectory marks a working or move-to directory that cannot be used.
var ErrInvalidDirectory = errors.New("invalid directory")

var validLogLevels = map[string]struct{}{"debug": {}, "info": {}, "warn": {}, "warning": {}, "error": {}}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateWorker(); err != nil {
		return err
	}
	if err := c.validateFinalize(); err != nil {
		return err
	}
	if err := c.validateGuard(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateQueue() error {
	switch c.Queue.Sort {
	case SortModTime, SortName:
		return nil
	default:
		return fmt.Errorf("queue.sort must be %q or %q, got %q", SortModTime, SortName, c.Queue.Sort)
	}
}

func (c *Config) validateWorker() error {
	if c.Worker.ProcessTimeout < 0 {
		return errors.New("worker.process_timeout must not be negative (0 disables the command time limit)")
	}
	if c.Worker.MaxRuntime < 0 {
		return errors.New("worker.max_runtime must not be negative (0 disables the limit)")
	}
	if c.Worker.IdleIntervalMS <= 0 {
		return errors.New("worker.idle_interval_ms must be positive")
	}
	return nil
}

func (c *Config) validateFinalize() error {
	switch c.Finalize.Mode {
	case FinalizeDone, FinalizeDelete:
		if c.Finalize.Mode == FinalizeDelete && c.Finalize.MoveTo != "" {
			return errors.New("finalize.move_to cannot be combined with finalize.mode = \"delete\"")
		}
		return nil
	case FinalizeMove:
		if c.Finalize.MoveTo == "" {
			return errors.New("finalize.move_to must be set when finalize.mode is \"move\"")
		}
		return nil
	default:
		return fmt.Errorf("finalize.mode must be one of done, move, delete; got %q", c.Finalize.Mode)
	}
}

func (c *Config) validateGuard() error {
	if c.Guard.MaxConcurrency <= 0 {
		return errors.New("guard.max_concurrency must be positive")
	}
	switch c.Guard.Backend {
	case GuardProcess, GuardLockfile:
	default:
		return fmt.Errorf("guard.backend must be %q or %q, got %q", GuardProcess, GuardLockfile, c.Guard.Backend)
	}
	if c.Guard.Backend == GuardLockfile && strings.TrimSpace(c.Guard.RuntimeDir) == "" {
		return errors.New("guard.runtime_dir must be set for the lockfile backend")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if _, ok := validLogLevels[c.Logging.Level]; !ok {
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
		return nil
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
}

// ResolveWorkingDir expands path and verifies it is an accessible directory.
func ResolveWorkingDir(path string) (string, error) {
	dir, err := checkDirectory("working directory", path)
	if err != nil {
		return "", err
	}
	return dir, nil
}

// ValidateMoveTo verifies the move-to directory exists and lies outside workingDir.
// It is a no-op unless the finalize mode is "move".
func (c *Config) ValidateMoveTo(workingDir string) error {
	if c.Finalize.Mode != FinalizeMove {
		return nil
	}
	dir, err := checkDirectory("move-to directory", c.Finalize.MoveTo)
	if err != nil {
		return err
	}
	if isWithin(workingDir, dir) {
		return fmt.Errorf("%w: move-to directory %s must not be inside the working directory %s", ErrInvalidDirectory, dir, workingDir)
	}
	c.Finalize.MoveTo = dir
	return nil
}

func checkDirectory(label, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidDirectory, label)
	}
	dir, err := expandPath(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidDirectory, label, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s %s does not exist", ErrInvalidDirectory, label, dir)
		}
		return "", fmt.Errorf("%w: %s %s: %v", ErrInvalidDirectory, label, dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s %s is not a directory", ErrInvalidDirectory, label, dir)
	}
	if err := unix.Access(dir, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return "", fmt.Errorf("%w: %s %s: insufficient permissions: %v", ErrInvalidDirectory, label, dir, err)
	}
	return dir, nil
}

func isWithin(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
