package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"fileprocessor/internal/config"
)

func TestLoadDefaultConfigWhenFileMissing(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("FILEPROCESSOR_LOG_LEVEL", "")
	t.Setenv("FILEPROCESSOR_LOG_FORMAT", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if want := filepath.Join(tempHome, ".config", "fileprocessor", "config.toml"); resolved != want {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, want)
	}
	if cfg.Queue.Sort != config.SortModTime || cfg.Queue.Reverse {
		t.Fatalf("unexpected queue defaults: %+v", cfg.Queue)
	}
	if cfg.ProcessTimeout() != 300*time.Second {
		t.Fatalf("unexpected process timeout: %s", cfg.ProcessTimeout())
	}
	if cfg.MaxRuntime() != 0 {
		t.Fatalf("expected unlimited runtime, got %s", cfg.MaxRuntime())
	}
	if cfg.IdleInterval() != time.Second {
		t.Fatalf("unexpected idle interval: %s", cfg.IdleInterval())
	}
	if cfg.Guard.MaxConcurrency != 10 || cfg.Guard.Backend != config.GuardProcess {
		t.Fatalf("unexpected guard defaults: %+v", cfg.Guard)
	}
	if cfg.Finalize.Mode != config.FinalizeDone {
		t.Fatalf("unexpected finalize mode: %q", cfg.Finalize.Mode)
	}
	if !cfg.Worker.Shell {
		t.Fatal("expected shell invocation by default")
	}
	if cfg.Journal.Enabled {
		t.Fatal("expected journal disabled by default")
	}
	if want := filepath.Join(tempHome, ".local", "share", "fileprocessor", "journal.db"); cfg.Journal.Path != want {
		t.Fatalf("unexpected journal path: got %q want %q", cfg.Journal.Path, want)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "fileprocessor.toml")
	moveTo := filepath.Join(tempDir, "processed")

	custom := config.Default()
	custom.Queue.Sort = "NAME"
	custom.Queue.Reverse = true
	custom.Worker.ProcessTimeout = 30
	custom.Worker.MaxRuntime = 600
	custom.Finalize.Mode = ""
	custom.Finalize.MoveTo = moveTo
	custom.Guard.Backend = config.GuardLockfile
	custom.Guard.MaxConcurrency = 2
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Queue.Sort != config.SortName || !cfg.Queue.Reverse {
		t.Fatalf("unexpected queue section: %+v", cfg.Queue)
	}
	if cfg.ProcessTimeout() != 30*time.Second || cfg.MaxRuntime() != 10*time.Minute {
		t.Fatalf("unexpected worker section: %+v", cfg.Worker)
	}
	if cfg.Finalize.Mode != config.FinalizeMove {
		t.Fatalf("expected move mode inferred from move_to, got %q", cfg.Finalize.Mode)
	}
	if cfg.Finalize.MoveTo != moveTo {
		t.Fatalf("unexpected move_to: %q", cfg.Finalize.MoveTo)
	}
	if cfg.Guard.Backend != config.GuardLockfile || cfg.Guard.MaxConcurrency != 2 {
		t.Fatalf("unexpected guard section: %+v", cfg.Guard)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "fileprocessor.toml")
	if err := os.WriteFile(configPath, []byte("[worker]\nprocess_timout = 5\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestEnvOverridesLogging(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FILEPROCESSOR_LOG_LEVEL", "DEBUG")
	t.Setenv("FILEPROCESSOR_LOG_FORMAT", "json")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("expected env overrides, got %+v", cfg.Logging)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "process_timeout = 300") {
		t.Fatalf("sample config missing process_timeout: %s", contents)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Finalize.Mode != config.FinalizeDone {
		t.Fatalf("unexpected sample finalize mode: %q", cfg.Finalize.Mode)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"sort", func(c *config.Config) { c.Queue.Sort = "size" }},
		{"timeout", func(c *config.Config) { c.Worker.ProcessTimeout = -1 }},
		{"runtime", func(c *config.Config) { c.Worker.MaxRuntime = -1 }},
		{"idle", func(c *config.Config) { c.Worker.IdleIntervalMS = 0 }},
		{"move without dir", func(c *config.Config) { c.Finalize.Mode = config.FinalizeMove }},
		{"delete with dir", func(c *config.Config) {
			c.Finalize.Mode = config.FinalizeDelete
			c.Finalize.MoveTo = "/tmp/out"
		}},
		{"mode", func(c *config.Config) { c.Finalize.Mode = "archive" }},
		{"concurrency", func(c *config.Config) { c.Guard.MaxConcurrency = 0 }},
		{"backend", func(c *config.Config) { c.Guard.Backend = "etcd" }},
		{"level", func(c *config.Config) { c.Logging.Level = "trace" }},
		{"format", func(c *config.Config) { c.Logging.Format = "xml" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cfg.Worker.ProcessTimeout = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("zero process timeout should validate: %v", err)
	}
	if cfg.ProcessTimeout() != 0 {
		t.Fatalf("unexpected process timeout: %s", cfg.ProcessTimeout())
	}
}

func TestResolveWorkingDir(t *testing.T) {
	dir := t.TempDir()
	got, err := config.ResolveWorkingDir(dir)
	if err != nil {
		t.Fatalf("ResolveWorkingDir: %v", err)
	}
	if got != dir {
		t.Fatalf("unexpected dir: got %q want %q", got, dir)
	}

	file := filepath.Join(dir, "plain.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	for _, bad := range []string{"", filepath.Join(dir, "missing"), file} {
		if _, err := config.ResolveWorkingDir(bad); !errors.Is(err, config.ErrInvalidDirectory) {
			t.Fatalf("ResolveWorkingDir(%q) = %v, want ErrInvalidDirectory", bad, err)
		}
	}
}

func TestValidateMoveTo(t *testing.T) {
	base := t.TempDir()
	work := filepath.Join(base, "queue")
	outside := filepath.Join(base, "processed")
	inside := filepath.Join(work, "processed")
	for _, dir := range []string{work, outside, inside} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	cfg := config.Default()
	cfg.Finalize.Mode = config.FinalizeMove
	cfg.Finalize.MoveTo = outside
	if err := cfg.ValidateMoveTo(work); err != nil {
		t.Fatalf("expected outside dir to be accepted: %v", err)
	}

	for _, bad := range []string{inside, work, filepath.Join(base, "missing")} {
		cfg.Finalize.MoveTo = bad
		if err := cfg.ValidateMoveTo(work); !errors.Is(err, config.ErrInvalidDirectory) {
			t.Fatalf("ValidateMoveTo(%q) = %v, want ErrInvalidDirectory", bad, err)
		}
	}

	cfg.Finalize.Mode = config.FinalizeDone
	cfg.Finalize.MoveTo = filepath.Join(base, "missing")
	if err := cfg.ValidateMoveTo(work); err != nil {
		t.Fatalf("move-to is ignored unless mode is move: %v", err)
	}
}
