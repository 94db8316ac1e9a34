package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"fileprocessor/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config whose runtime and journal paths live in a
// per-test temp directory. The lock-slot guard is selected so tests never
// depend on the host's process table.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Guard.Backend = config.GuardLockfile
	cfgVal.Guard.RuntimeDir = filepath.Join(base, "run")
	cfgVal.Journal.Path = filepath.Join(base, "journal.db")
	cfgVal.Worker.IdleIntervalMS = 10

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithJournal enables the processing journal.
func WithJournal() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Journal.Enabled = true
	}
}

// WithMoveTo creates a destination directory and selects move finalization.
func WithMoveTo() ConfigOption {
	return func(b *configBuilder) {
		dir := filepath.Join(b.baseDir, "processed")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			b.t.Fatalf("mkdir move-to dir: %v", err)
		}
		b.cfg.Finalize.Mode = config.FinalizeMove
		b.cfg.Finalize.MoveTo = dir
	}
}

// WriteConfigFile writes raw TOML into a temp directory and returns its path.
func WriteConfigFile(t testing.TB, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fileprocessor.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// StubCommand writes an executable shell script named name into a temp
// directory and returns its path.
func StubCommand(t testing.TB, name, body string) string {
	t.Helper()
	binDir := filepath.Join(t.TempDir(), "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	target := filepath.Join(binDir, name)
	if err := os.WriteFile(target, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return target
}
