package guard

import (
	"context"
	"errors"
)

var (
	// ErrTooManyInstances reports that the working directory already has the
	// maximum number of instances.
	ErrTooManyInstances = errors.New("too many instances for working directory")
	// ErrSelfIdentify reports that the process could not find its own
	// invocation in the process table.
	ErrSelfIdentify = errors.New("unable to identify own command line")
)

// Guard decides whether a new instance may start on a working directory.
type Guard interface {
	Admit(ctx context.Context) (Admission, error)
}

// Admission is a granted start. Release returns any resource it holds.
type Admission struct {
	// Peers is the number of instances that were already running.
	Peers   int
	release func() error
}

// Release frees the admission. It is safe to call on a zero Admission.
func (a Admission) Release() error {
	if a.release == nil {
		return nil
	}
	return a.release()
}
