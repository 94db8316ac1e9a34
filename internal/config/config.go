package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Queue controls how scanned files are ordered.
type Queue struct {
	Sort    string `toml:"sort"`    // "mtime" or "name"
	Reverse bool   `toml:"reverse"` // process newest (or last by name) first
}

// Worker contains per-item execution settings.
type Worker struct {
	ProcessTimeout int  `toml:"process_timeout"` // seconds; also the stale lock age
	MaxRuntime     int  `toml:"max_runtime"`     // seconds; 0 runs until stopped
	IdleIntervalMS int  `toml:"idle_interval_ms"`
	Shell          bool `toml:"shell"`
	Watch          bool `toml:"watch"`
}

// Finalize selects what happens to a file after its command succeeds.
type Finalize struct {
	Mode   string `toml:"mode"` // "done", "move" or "delete"
	MoveTo string `toml:"move_to"`
}

// Guard configures admission control per working directory.
type Guard struct {
	Backend        string `toml:"backend"` // "process" or "lockfile"
	MaxConcurrency int    `toml:"max_concurrency"`
	RuntimeDir     string `toml:"runtime_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Journal configures the optional SQLite processing history.
type Journal struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Config encapsulates all configuration values for fileprocessor.
//
// The working directory and processing command are positional arguments and
// are not part of the file; every other option can be set here and overridden
// by a command-line flag.
type Config struct {
	Queue    Queue    `toml:"queue"`
	Worker   Worker   `toml:"worker"`
	Finalize Finalize `toml:"finalize"`
	Guard    Guard    `toml:"guard"`
	Logging  Logging  `toml:"logging"`
	Journal  Journal  `toml:"journal"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A missing file yields defaults.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("fileprocessor.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// ProcessTimeout is the hard limit for one command and the age after which a lock is stale.
// Zero runs commands without a limit and makes every lock stale on the next scan,
// including locks held by live peers.
func (c *Config) ProcessTimeout() time.Duration {
	return time.Duration(c.Worker.ProcessTimeout) * time.Second
}

// MaxRuntime returns the total runtime budget; zero means unlimited.
func (c *Config) MaxRuntime() time.Duration {
	return time.Duration(c.Worker.MaxRuntime) * time.Second
}

// IdleInterval is the wait between scans of a drained queue.
func (c *Config) IdleInterval() time.Duration {
	return time.Duration(c.Worker.IdleIntervalMS) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultRuntimeDir() string {
	if base, ok := os.LookupEnv("XDG_RUNTIME_DIR"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "fileprocessor")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("fileprocessor-%d", os.Getuid()))
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
