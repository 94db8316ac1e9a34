// Package watch wakes an idle worker when files are added to its queue
// directory, so new work does not wait for the next idle interval.
package watch
