// Package lockname encodes and decodes the on-disk names that carry queue
// state: `.fp-lock-<YYYYMMDDThhmmss>_<pid>_<name>` for claimed files and
// `.fp-done-<YYYYMMDDThhmmss>_<pid>_<name>` for finished ones. Timestamps are
// UTC. The package performs no I/O.
package lockname
