package shutdown

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"fileprocessor/internal/logging"
)

// State is the shutdown progress of a process.
type State int

const (
	Running State = iota
	StopRequested
	ForceStop
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case StopRequested:
		return "stop_requested"
	case ForceStop:
		return "force_stop"
	default:
		return "unknown"
	}
}

// Controller turns interrupt notifications into a monotonic state. The first
// notification asks the worker to stop after its current file; the second
// runs the force handler.
type Controller struct {
	mu     sync.Mutex
	state  State
	done   chan struct{}
	force  func()
	logger *slog.Logger
}

// New constructs a Controller. force runs once when ForceStop is reached and
// is expected to terminate the process.
func New(logger *slog.Logger, force func()) *Controller {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Controller{
		done:   make(chan struct{}),
		force:  force,
		logger: logger.With(logging.String(logging.FieldComponent, "shutdown")),
	}
}

// Notify advances the state by one step and returns the new state.
func (c *Controller) Notify() State {
	c.mu.Lock()
	if c.state == ForceStop {
		c.mu.Unlock()
		return ForceStop
	}
	c.state++
	state := c.state
	if state == StopRequested {
		close(c.done)
	}
	c.mu.Unlock()

	switch state {
	case StopRequested:
		c.logger.Warn("stop requested; finishing current file",
			logging.String(logging.FieldEventType, "shutdown_requested"),
			logging.String(logging.FieldErrorHint, "interrupt again to exit immediately"),
		)
	case ForceStop:
		c.logger.Warn("forced stop",
			logging.String(logging.FieldEventType, "shutdown_forced"),
			logging.String(logging.FieldImpact, "the current file stays locked until reclaimed"),
		)
		if c.force != nil {
			c.force()
		}
	}
	return state
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StopRequested reports whether the worker should stop at the next check.
func (c *Controller) StopRequested() bool {
	return c.State() >= StopRequested
}

// Done is closed once a stop has been requested.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Watch calls Notify for every signal received until ctx ends.
func (c *Controller) Watch(ctx context.Context, signals <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			c.logger.Debug("signal received", logging.String("signal", sig.String()))
			c.Notify()
		}
	}
}
