// Package worker runs the per-directory processing loop.
//
// The loop scans the directory, reclaims stale locks, claims files one at a
// time, runs the processing command and finalizes files whose command
// succeeded. Failed files keep their lock so that the stale sweep retries
// them after the process timeout. Stop requests and the runtime limit are
// honoured between files, never in the middle of one.
package worker
