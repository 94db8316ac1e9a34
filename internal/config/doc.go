// Package config loads, normalizes, and validates fileprocessor configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours FILEPROCESSOR_LOG_LEVEL and
// FILEPROCESSOR_LOG_FORMAT. Directory checks for the working and move-to
// directories report ErrInvalidDirectory so the CLI can map them to exit
// status 1.
package config
