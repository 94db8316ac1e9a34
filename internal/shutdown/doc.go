// Package shutdown implements two-stage interrupt handling: a graceful stop
// after the file in flight, then a forced exit.
package shutdown
