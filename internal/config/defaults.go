package config

const (
	defaultConfigPath      = "~/.config/fileprocessor/config.toml"
	defaultJournalPath     = "~/.local/share/fileprocessor/journal.db"
	defaultSort            = SortModTime
	defaultProcessTimeout  = 300
	defaultIdleIntervalMS  = 1000
	defaultMaxConcurrency  = 10
	defaultGuardBackend    = GuardProcess
	defaultFinalizeMode    = FinalizeDone
	defaultLogFormat       = "console"
	defaultLogLevel        = "error"
	defaultShellInvocation = true
)

// Sort keys.
const (
	SortModTime = "mtime"
	SortName    = "name"
)

// Finalize modes.
const (
	FinalizeDone   = "done"
	FinalizeMove   = "move"
	FinalizeDelete = "delete"
)

// Guard backends.
const (
	GuardProcess  = "process"
	GuardLockfile = "lockfile"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Queue: Queue{
			Sort: defaultSort,
		},
		Worker: Worker{
			ProcessTimeout: defaultProcessTimeout,
			IdleIntervalMS: defaultIdleIntervalMS,
			Shell:          defaultShellInvocation,
		},
		Finalize: Finalize{
			Mode: defaultFinalizeMode,
		},
		Guard: Guard{
			Backend:        defaultGuardBackend,
			MaxConcurrency: defaultMaxConcurrency,
			RuntimeDir:     defaultRuntimeDir(),
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Journal: Journal{
			Path: defaultJournalPath,
		},
	}
}
