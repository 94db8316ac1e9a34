package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"fileprocessor/internal/config"
	"fileprocessor/internal/guard"
	"fileprocessor/internal/journal"
	"fileprocessor/internal/lockmgr"
	"fileprocessor/internal/logging"
	"fileprocessor/internal/runner"
	"fileprocessor/internal/scanner"
	"fileprocessor/internal/shutdown"
	"fileprocessor/internal/watch"
	"fileprocessor/internal/worker"
)

const runCommandName = "run"

type runOptions struct {
	verbose        int
	sort           string
	reverse        bool
	maxConcurrency int
	maxRuntime     int
	processTimeout int
	moveTo         string
	deleteFiles    bool
	watch          bool
	logFormat      string
}

// addRunFlags declares the run flags on fs. The guard reuses it to parse the
// command lines of peer instances.
func addRunFlags(fs *pflag.FlagSet, opts *runOptions) {
	fs.CountVarP(&opts.verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.StringVarP(&opts.sort, "sort", "s", config.SortModTime, "Sort by modification time (mtime) or name")
	fs.BoolVarP(&opts.reverse, "sort-reverse", "r", false, "Process in reverse sort order")
	fs.IntVarP(&opts.maxConcurrency, "max-concurrency", "c", 10, "Max. number of instances on the same directory")
	fs.IntVar(&opts.maxRuntime, "max-runtime", 0, "Stop after this many seconds (0 runs until interrupted)")
	fs.IntVar(&opts.processTimeout, "process-timeout", 300, "Seconds before a command is killed and its lock considered stale (0: no limit, every lock is stale)")
	fs.StringVar(&opts.moveTo, "move-to", "", "Move processed files flat into this directory, overwriting existing files")
	fs.BoolVar(&opts.deleteFiles, "delete", false, "Delete processed files instead of marking them done")
	fs.BoolVar(&opts.watch, "watch", false, "Wake up on filesystem events instead of polling only")
	fs.StringVar(&opts.logFormat, "log-format", "", "Log format (console or json)")
}

// peerFlags describes every flag a peer's command line may carry.
func peerFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("peer", pflag.ContinueOnError)
	addRunFlags(fs, &runOptions{})
	fs.String("config", "", "")
	return fs
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   runCommandName + " <DIRECTORY> <COMMAND>",
		Short: "Process every file in a directory with a command",
		Long: `Run COMMAND once per file found below DIRECTORY.

Use {} as a placeholder for the file path. Without a placeholder the file's
content is piped to the command's standard input. Exit status 0 marks a file
as processed; any other status, or a timeout, leaves it locked so that it is
retried once the process timeout has passed.

Interrupt once to stop after the current file, twice to exit immediately.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg := *base
			if err := applyRunFlags(cmd.Flags(), opts, &cfg); err != nil {
				return err
			}
			return runWorker(cmd, &cfg, args[0], args[1])
		},
	}

	addRunFlags(cmd.Flags(), opts)
	cmd.MarkFlagsMutuallyExclusive("move-to", "delete")
	return cmd
}

// applyRunFlags overlays explicitly set flags onto cfg.
func applyRunFlags(fs *pflag.FlagSet, opts *runOptions, cfg *config.Config) error {
	if fs.Changed("verbose") {
		cfg.Logging.Level = logging.LevelForVerbosity(opts.verbose)
	}
	if fs.Changed("log-format") {
		cfg.Logging.Format = strings.ToLower(strings.TrimSpace(opts.logFormat))
	}
	if fs.Changed("sort") {
		cfg.Queue.Sort = strings.ToLower(strings.TrimSpace(opts.sort))
	}
	if fs.Changed("sort-reverse") {
		cfg.Queue.Reverse = opts.reverse
	}
	if fs.Changed("max-concurrency") {
		cfg.Guard.MaxConcurrency = opts.maxConcurrency
	}
	if fs.Changed("max-runtime") {
		cfg.Worker.MaxRuntime = opts.maxRuntime
	}
	if fs.Changed("process-timeout") {
		cfg.Worker.ProcessTimeout = opts.processTimeout
	}
	if fs.Changed("watch") {
		cfg.Worker.Watch = opts.watch
	}
	if fs.Changed("move-to") {
		moveTo, err := config.ExpandPath(strings.TrimSpace(opts.moveTo))
		if err != nil {
			return fmt.Errorf("resolve move-to directory: %w", err)
		}
		cfg.Finalize.Mode = config.FinalizeMove
		cfg.Finalize.MoveTo = moveTo
	}
	if fs.Changed("delete") && opts.deleteFiles {
		cfg.Finalize.Mode = config.FinalizeDelete
		cfg.Finalize.MoveTo = ""
	}
	return cfg.Validate()
}

func runWorker(cmd *cobra.Command, cfg *config.Config, dirArg, template string) error {
	dir, err := config.ResolveWorkingDir(dirArg)
	if err != nil {
		return err
	}
	if err := cfg.ValidateMoveTo(dir); err != nil {
		return err
	}

	runID := uuid.NewString()
	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		RunID:  runID,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	admitCtx := cmd.Context()
	if admitCtx == nil {
		admitCtx = context.Background()
	}
	admission, err := newGuard(cfg, dir, logger).Admit(admitCtx)
	if err != nil {
		logger.Warn("not starting",
			logging.Error(err),
			logging.String(logging.FieldPath, dir),
			logging.String(logging.FieldEventType, "admission_denied"),
		)
		return err
	}
	defer func() {
		if err := admission.Release(); err != nil {
			logger.Debug("release admission failed", logging.Error(err))
		}
	}()

	command, err := runner.New(template,
		runner.WithShell(cfg.Worker.Shell),
		runner.WithTimeout(cfg.ProcessTimeout()),
		runner.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()),
		runner.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	controller := shutdown.New(logger, func() {
		_ = command.Kill()
		os.Exit(exitOK)
	})
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	loopCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go controller.Watch(loopCtx, sigCh)

	opts := worker.Options{
		Dir: dir,
		Scan: scanner.Options{
			ProcessTimeout: cfg.ProcessTimeout(),
			SortBy:         cfg.Queue.Sort,
			Reverse:        cfg.Queue.Reverse,
		},
		Disposition:  lockmgr.Disposition{Mode: lockmgr.Mode(cfg.Finalize.Mode), MoveTo: cfg.Finalize.MoveTo},
		MaxRuntime:   cfg.MaxRuntime(),
		IdleInterval: cfg.IdleInterval(),
		RunID:        runID,
	}

	if cfg.Worker.Watch {
		watcher, err := watch.New(dir, logger)
		if err != nil {
			logging.WarnWithContext(logger, "filesystem watch unavailable; polling only", "watch_unavailable",
				logging.Error(err),
				logging.String(logging.FieldImpact, "new files are picked up after the idle interval"),
			)
		} else {
			defer watcher.Close()
			go watcher.Run(loopCtx)
			opts.Wake = watcher.Wake()
		}
	}

	if cfg.Journal.Enabled {
		store, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			logging.WarnWithContext(logger, "journal unavailable", "journal_unavailable",
				logging.Error(err),
				logging.String(logging.FieldImpact, "outcomes of this run are not recorded"),
			)
		} else {
			defer store.Close()
			opts.Journal = store
		}
	}

	locks := lockmgr.New(logger, lockmgr.Options{})
	loop := worker.New(locks, command, controller, logger, opts)
	_, err = loop.Run(loopCtx)
	return err
}

func newGuard(cfg *config.Config, dir string, logger *slog.Logger) guard.Guard {
	if cfg.Guard.Backend == config.GuardLockfile {
		return guard.NewLockSlots(dir, cfg.Guard.RuntimeDir, cfg.Guard.MaxConcurrency, logger)
	}
	return guard.NewProcessTable(dir, cfg.Guard.MaxConcurrency, logger, guard.ProcessTableOptions{
		Flags:   peerFlags,
		Command: runCommandName,
	})
}
