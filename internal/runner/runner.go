package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"fileprocessor/internal/logging"
)

// Placeholder is replaced by the locked file's path.
const Placeholder = "{}"

// DefaultShell interprets templates in shell mode.
const DefaultShell = "/bin/sh"

// waitDelay bounds how long Wait blocks on I/O held open by grandchildren
// after the process group was killed.
const waitDelay = 5 * time.Second

var commandContext = exec.CommandContext

// Result describes one finished command.
type Result struct {
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Success reports a zero exit status within the timeout.
func (r Result) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Option configures a Runner.
type Option func(*Runner)

// WithShell toggles shell mode. In direct mode the template is split on
// whitespace and executed without a shell.
func WithShell(enabled bool) Option {
	return func(r *Runner) {
		r.shell = enabled
	}
}

// WithShellPath overrides the shell binary.
func WithShellPath(path string) Option {
	return func(r *Runner) {
		if path != "" {
			r.shellPath = path
		}
	}
}

// WithTimeout sets the hard per-file time limit. Zero disables it.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Runner) {
		r.timeout = timeout
	}
}

// WithOutput redirects the child's stdout and stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Runner executes the processing command for one file at a time.
type Runner struct {
	template  string
	shell     bool
	shellPath string
	timeout   time.Duration
	stdout    io.Writer
	stderr    io.Writer
	logger    *slog.Logger

	mu     sync.Mutex
	active int
}

// New validates template and constructs a Runner. Shell mode is the default.
func New(template string, opts ...Option) (*Runner, error) {
	if strings.TrimSpace(template) == "" {
		return nil, errors.New("command template required")
	}
	r := &Runner{
		template:  template,
		shell:     true,
		shellPath: DefaultShell,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(logging.String(logging.FieldComponent, "runner"))
	return r, nil
}

// UsesStdin reports whether the file is fed on stdin because the template has
// no placeholder.
func (r *Runner) UsesStdin() bool {
	return !strings.Contains(r.template, Placeholder)
}

// Argv returns the argument vector for path. In shell mode the path is passed
// as $1 and never interpolated into the script text.
func (r *Runner) Argv(path string) []string {
	if r.shell {
		script := strings.ReplaceAll(r.template, Placeholder, `"$1"`)
		return []string{r.shellPath, "-c", script, "fileprocessor", path}
	}
	fields := strings.Fields(r.template)
	argv := make([]string, 0, len(fields))
	for _, field := range fields {
		argv = append(argv, strings.ReplaceAll(field, Placeholder, path))
	}
	return argv
}

// Run executes the command for path and waits for it. A non-nil error means
// the command could not be started; a failed or timed out command is reported
// through Result.
func (r *Runner) Run(ctx context.Context, path string) (Result, error) {
	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	argv := r.Argv(path)
	cmd := commandContext(runCtx, argv[0], argv[1:]...) //nolint:gosec
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr
	// A separate process group keeps terminal signals aimed at us away from
	// the child; the whole group is killed on timeout.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = waitDelay

	if r.UsesStdin() {
		in, err := os.Open(path)
		if err != nil {
			return Result{ExitCode: -1}, fmt.Errorf("open %s for stdin: %w", path, err)
		}
		defer in.Close()
		cmd.Stdin = in
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("start command: %w", err)
	}
	r.setActive(cmd.Process.Pid)
	err := cmd.Wait()
	r.setActive(0)

	result := Result{Duration: time.Since(start)}
	if r.timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		result.TimedOut = true
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		result.ExitCode = -1
		r.logger.Debug("wait returned error", logging.Error(err))
	}
	if result.TimedOut && result.ExitCode == 0 {
		result.ExitCode = -1
	}
	return result, nil
}

// Kill terminates the process group of the running command, if any.
func (r *Runner) Kill() error {
	r.mu.Lock()
	pid := r.active
	r.mu.Unlock()
	if pid == 0 {
		return nil
	}
	return unix.Kill(-pid, unix.SIGKILL)
}

func (r *Runner) setActive(pid int) {
	r.mu.Lock()
	r.active = pid
	r.mu.Unlock()
}
