// Package inspect produces read-only snapshots of a queue directory for the
// status command.
package inspect
