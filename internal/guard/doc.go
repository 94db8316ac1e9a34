// Package guard limits how many instances work on one directory.
//
// ProcessTable inspects the command lines of running processes and counts
// those started the same way on the same directory. LockSlots holds one of a
// fixed number of advisory lock files instead and is useful where other
// users' process tables are not readable.
package guard
