package main

import (
	"errors"

	"fileprocessor/internal/guard"
)

// Process exit statuses.
const (
	exitOK           = 0
	exitUsage        = 1
	exitSelfIdentify = 3
	exitAdmission    = 4
)

// exitCode maps a command error onto the process exit status. Invalid
// directories, bad configuration and usage errors all exit with 1.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, guard.ErrSelfIdentify):
		return exitSelfIdentify
	case errors.Is(err, guard.ErrTooManyInstances):
		return exitAdmission
	default:
		return exitUsage
	}
}
