// Command fileprocessor runs a command once for every file in a directory.
//
// Progress is kept entirely in file names: a file is claimed by renaming it
// to a lock record, and marked done, moved or deleted once its command
// succeeds. Any number of instances (up to --max-concurrency) may work on the
// same directory at once, and locks left behind by crashed instances are
// reclaimed after --process-timeout seconds.
//
// Subcommands:
//
//	run      process a directory
//	status   show pending, locked and finished files
//	reclaim  release locks of instances that are gone
//	history  show the processing journal
//	config   create or validate the configuration file
package main
