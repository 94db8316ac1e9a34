// Package lockmgr moves queued files between their states: pending, locked
// and done.
//
// Every transition is a rename inside the file's own directory, so the
// filesystem's rename atomicity is the only synchronisation between
// instances. Claim picks a single winner, Finalize retires a lock after a
// successful run, and ReclaimStale returns abandoned locks to the queue.
// ReclaimOwned lets an operator release locks of processes that are gone.
package lockmgr
