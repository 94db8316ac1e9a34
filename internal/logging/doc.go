// Package logging assembles structured slog loggers and formatting helpers used
// across fileprocessor.
//
// It owns the console and JSON handlers, maps the CLI's repeated -v flag onto
// slog levels, and defines the field keys (component, event_type, error_hint,
// impact, path) that queue code attaches to records. The package also provides
// a no-op logger for tests and wiring code that cannot fail.
package logging
