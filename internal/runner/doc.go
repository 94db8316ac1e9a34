// Package runner builds and executes the per-file processing command.
//
// Templates may contain the {} placeholder; without one the file is fed to
// the command on stdin. Commands run in their own process group under a hard
// timeout, and the exit status decides whether a file is finalized.
package runner
