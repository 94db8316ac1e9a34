// Package journal keeps an optional SQLite history of processing outcomes
// for the history command.
package journal
