package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fileprocessor/internal/journal"
	"fileprocessor/internal/lockmgr"
	"fileprocessor/internal/logging"
	"fileprocessor/internal/runner"
	"fileprocessor/internal/scanner"
)

// Executor runs the processing command for one locked file.
type Executor interface {
	Run(ctx context.Context, path string) (runner.Result, error)
}

// Recorder stores processing outcomes.
type Recorder interface {
	Record(ctx context.Context, entry journal.Entry) error
}

// Stopper reports graceful stop requests.
type Stopper interface {
	StopRequested() bool
	Done() <-chan struct{}
}

// Options configures a Loop.
type Options struct {
	Dir          string
	Scan         scanner.Options
	Disposition  lockmgr.Disposition
	MaxRuntime   time.Duration
	IdleInterval time.Duration
	// Wake shortens the idle wait when new files arrive. Optional.
	Wake <-chan struct{}
	// Journal records every executed file. Optional.
	Journal Recorder
	RunID   string
	Now     func() time.Time
}

// Stop reasons reported in Summary.
const (
	StopRequested = "stop_requested"
	StopRuntime   = "max_runtime"
	StopContext   = "context_done"
)

// Summary tallies a finished run.
type Summary struct {
	Processed  int
	Failed     int
	Lost       int
	Reclaimed  int
	Scans      int
	StopReason string
	Elapsed    time.Duration
}

// Loop processes one working directory until asked to stop.
type Loop struct {
	locks  *lockmgr.Manager
	exec   Executor
	stop   Stopper
	opts   Options
	logger *slog.Logger

	state    State
	pending  []scanner.Item
	deadline time.Time
	summary  Summary

	// stalled is set when a batch starts and cleared by any claim that did
	// not fail hard. A batch that ends stalled is followed by an idle wait.
	stalled bool
}

// New constructs a Loop.
func New(locks *lockmgr.Manager, exec Executor, stop Stopper, logger *slog.Logger, opts Options) *Loop {
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.IdleInterval <= 0 {
		opts.IdleInterval = time.Second
	}
	if opts.Scan.Now == nil {
		opts.Scan.Now = opts.Now
	}
	logger = logger.With(logging.String(logging.FieldComponent, "worker"))
	if opts.Scan.Logger == nil {
		opts.Scan.Logger = logger
	}
	return &Loop{
		locks:  locks,
		exec:   exec,
		stop:   stop,
		opts:   opts,
		logger: logger,
	}
}

// Run drives the scan, claim, execute and finalize cycle. It returns when a
// stop was requested, the runtime limit passed or ctx ended; a file that is
// executing is always allowed to finish first unless ctx ends.
func (l *Loop) Run(ctx context.Context) (Summary, error) {
	start := l.opts.Now()
	if l.opts.MaxRuntime > 0 {
		l.deadline = start.Add(l.opts.MaxRuntime)
	}
	l.logger.Info("worker started",
		logging.String(logging.FieldPath, l.opts.Dir),
		logging.Duration("max_runtime", l.opts.MaxRuntime),
		logging.String(logging.FieldEventType, "worker_started"),
	)

	for {
		if err := ctx.Err(); err != nil {
			return l.finish(start, StopContext), err
		}
		if reason := l.shouldStop(); reason != "" {
			return l.finish(start, reason), nil
		}

		if len(l.pending) == 0 {
			if l.stalled {
				l.stalled = false
				l.idle(ctx)
				continue
			}
			l.scan(ctx)
			if len(l.pending) == 0 {
				l.idle(ctx)
				continue
			}
			l.stalled = true
		}

		item := l.pending[0]
		l.pending = l.pending[1:]
		l.processItem(ctx, item)
	}
}

func (l *Loop) scan(ctx context.Context) {
	l.setState(StateScanning)
	l.summary.Scans++
	result, err := scanner.Scan(ctx, l.opts.Dir, l.opts.Scan)
	if err != nil {
		if ctx.Err() == nil {
			l.logger.Error("scan failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "scan_failed"),
				logging.String(logging.FieldErrorHint, "check that the working directory still exists and is readable"),
			)
		}
		l.pending = nil
		return
	}
	if len(result.Stale) > 0 {
		reclaimed := l.locks.ReclaimStale(result.Stale)
		l.summary.Reclaimed += reclaimed.Reclaimed
	}
	if result.Truncated {
		l.logger.Debug("work list truncated", logging.Int("limit", len(result.Work)))
	}
	l.pending = result.Work
	l.logger.Debug("scan complete",
		logging.Int("work", len(result.Work)),
		logging.Int("stale", len(result.Stale)),
	)
}

func (l *Loop) idle(ctx context.Context) {
	l.setState(StateIdle)
	timer := time.NewTimer(l.opts.IdleInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-l.stopDone():
	case <-l.opts.Wake:
	case <-timer.C:
	}
}

func (l *Loop) processItem(ctx context.Context, item scanner.Item) {
	logger := l.logger.With(logging.String(logging.FieldPath, item.Path()))

	l.setState(StateClaiming)
	lockPath, err := l.locks.Claim(item.Dir, item.Name)
	if err != nil {
		if errors.Is(err, lockmgr.ErrNotFound) {
			l.stalled = false
			l.summary.Lost++
			logger.Debug("claim lost; file taken by another instance")
			return
		}
		l.summary.Lost++
		logging.WarnWithContext(logger, "claim failed", "claim_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check write permission on the file's directory"),
		)
		return
	}

	l.stalled = false

	l.setState(StateExecuting)
	result, err := l.exec.Run(ctx, lockPath)
	entry := journal.Entry{
		RunID:    l.opts.RunID,
		PID:      l.locks.PID(),
		Dir:      item.Dir,
		Name:     item.Name,
		ExitCode: result.ExitCode,
		Duration: result.Duration,
	}

	switch {
	case err != nil:
		l.summary.Failed++
		entry.Outcome = journal.OutcomeSpawnError
		entry.Detail = err.Error()
		logging.WarnWithContext(logger, "command could not be started", "command_spawn_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the command template and PATH"),
			logging.String(logging.FieldImpact, "file stays locked until the stale sweep reclaims it"),
		)
	case result.TimedOut:
		l.summary.Failed++
		entry.Outcome = journal.OutcomeTimedOut
		logging.WarnWithContext(logger, "command timed out", "command_timeout",
			logging.Duration("duration", result.Duration),
			logging.String(logging.FieldErrorHint, "raise --process-timeout if the command needs longer"),
			logging.String(logging.FieldImpact, "file stays locked until the stale sweep reclaims it"),
		)
	case !result.Success():
		l.summary.Failed++
		entry.Outcome = journal.OutcomeFailed
		logging.WarnWithContext(logger, "command failed", "command_failed",
			logging.Int("exit_code", result.ExitCode),
			logging.String(logging.FieldImpact, "file stays locked until the stale sweep reclaims it"),
		)
	default:
		l.setState(StateFinalizing)
		l.summary.Processed++
		entry.Outcome = journal.OutcomeProcessed
		if err := l.locks.Finalize(lockPath, l.opts.Disposition); err != nil {
			entry.Outcome = journal.OutcomeFinalizeError
			entry.Detail = err.Error()
			logging.WarnWithContext(logger, "finalize failed", "finalize_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "processed file remains locked and may run again after the timeout"),
			)
		} else {
			logger.Info("file processed",
				logging.Duration("duration", result.Duration),
				logging.String(logging.FieldEventType, "file_processed"),
			)
		}
	}

	l.record(ctx, entry)
}

func (l *Loop) record(ctx context.Context, entry journal.Entry) {
	if l.opts.Journal == nil {
		return
	}
	entry.RecordedAt = l.opts.Now()
	if err := l.opts.Journal.Record(ctx, entry); err != nil {
		l.logger.Debug("journal write failed", logging.Error(err))
	}
}

func (l *Loop) shouldStop() string {
	if l.stop != nil && l.stop.StopRequested() {
		return StopRequested
	}
	if !l.deadline.IsZero() && !l.opts.Now().Before(l.deadline) {
		return StopRuntime
	}
	return ""
}

func (l *Loop) stopDone() <-chan struct{} {
	if l.stop == nil {
		return nil
	}
	return l.stop.Done()
}

func (l *Loop) finish(start time.Time, reason string) Summary {
	l.setState(StateStopped)
	l.summary.StopReason = reason
	l.summary.Elapsed = l.opts.Now().Sub(start)
	l.logger.Info("worker stopped",
		logging.String("reason", reason),
		logging.Int("processed", l.summary.Processed),
		logging.Int("failed", l.summary.Failed),
		logging.Int("lost", l.summary.Lost),
		logging.Int("reclaimed", l.summary.Reclaimed),
		logging.String(logging.FieldEventType, "worker_stopped"),
	)
	return l.summary
}

func (l *Loop) setState(state State) {
	if l.state == state {
		return
	}
	l.state = state
	l.logger.Debug("state change", logging.String("state", state.String()))
}
