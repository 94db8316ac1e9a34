package main

import (
	"testing"
	"time"

	"github.com/spf13/pflag"

	"fileprocessor/internal/config"
)

func testNow() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func parseRunFlags(t *testing.T, args ...string) (*pflag.FlagSet, *runOptions) {
	t.Helper()
	opts := &runOptions{}
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	addRunFlags(fs, opts)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs, opts
}

func TestApplyRunFlagsKeepsConfigWhenUnset(t *testing.T) {
	cfg := config.Default()
	cfg.Queue.Sort = config.SortName
	cfg.Worker.ProcessTimeout = 42

	fs, opts := parseRunFlags(t)
	if err := applyRunFlags(fs, opts, &cfg); err != nil {
		t.Fatalf("applyRunFlags: %v", err)
	}
	if cfg.Queue.Sort != config.SortName || cfg.Worker.ProcessTimeout != 42 {
		t.Fatalf("unset flags must not override config: %+v", cfg)
	}
}

func TestApplyRunFlagsOverrides(t *testing.T) {
	cfg := config.Default()
	fs, opts := parseRunFlags(t, "-vv", "-s", "name", "-r", "-c", "3", "--max-runtime", "60", "--process-timeout", "10", "--delete")
	if err := applyRunFlags(fs, opts, &cfg); err != nil {
		t.Fatalf("applyRunFlags: %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected -vv to select info, got %q", cfg.Logging.Level)
	}
	if cfg.Queue.Sort != config.SortName || !cfg.Queue.Reverse {
		t.Fatalf("unexpected queue config: %+v", cfg.Queue)
	}
	if cfg.Guard.MaxConcurrency != 3 || cfg.MaxRuntime() != time.Minute || cfg.ProcessTimeout() != 10*time.Second {
		t.Fatalf("unexpected limits: %+v %+v", cfg.Guard, cfg.Worker)
	}
	if cfg.Finalize.Mode != config.FinalizeDelete {
		t.Fatalf("expected delete mode, got %q", cfg.Finalize.Mode)
	}
}

func TestApplyRunFlagsValidates(t *testing.T) {
	cfg := config.Default()
	fs, opts := parseRunFlags(t, "--sort", "size")
	if err := applyRunFlags(fs, opts, &cfg); err == nil {
		t.Fatal("expected invalid sort to be rejected")
	}
}

func TestApplyRunFlagsAcceptsZeroProcessTimeout(t *testing.T) {
	cfg := config.Default()
	fs, opts := parseRunFlags(t, "--process-timeout", "0")
	if err := applyRunFlags(fs, opts, &cfg); err != nil {
		t.Fatalf("applyRunFlags: %v", err)
	}
	if cfg.ProcessTimeout() != 0 {
		t.Fatalf("expected zero process timeout, got %s", cfg.ProcessTimeout())
	}
}

func TestPeerFlagsTolerateUnknownFlags(t *testing.T) {
	fs := peerFlags()
	fs.ParseErrorsWhitelist.UnknownFlags = true
	if err := fs.Parse([]string{"--config", "/etc/fp.toml", "run", "-vvv", "--future-flag=1", "-s", "name", "/srv/q", "gzip {}"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	args := fs.Args()
	if len(args) != 3 || args[0] != "run" || args[1] != "/srv/q" {
		t.Fatalf("unexpected positional args: %v", args)
	}
}
