// Package scanner walks a queue directory and partitions its files into
// pending work and stale lock records.
//
// A scan never modifies the filesystem. The work list is returned in
// processing order and is capped so that very large directories cannot
// exhaust memory; the stale list has its own, smaller cap.
package scanner
