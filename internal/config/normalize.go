package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeQueue()
	c.normalizeFinalize()
	c.normalizeGuard()
	c.normalizeLogging()
	return c.normalizePaths()
}

func (c *Config) normalizeQueue() {
	c.Queue.Sort = strings.ToLower(strings.TrimSpace(c.Queue.Sort))
	if c.Queue.Sort == "" {
		c.Queue.Sort = defaultSort
	}
}

func (c *Config) normalizeFinalize() {
	c.Finalize.Mode = strings.ToLower(strings.TrimSpace(c.Finalize.Mode))
	c.Finalize.MoveTo = strings.TrimSpace(c.Finalize.MoveTo)
	if c.Finalize.Mode == "" {
		if c.Finalize.MoveTo != "" {
			c.Finalize.Mode = FinalizeMove
		} else {
			c.Finalize.Mode = defaultFinalizeMode
		}
	}
}

func (c *Config) normalizeGuard() {
	c.Guard.Backend = strings.ToLower(strings.TrimSpace(c.Guard.Backend))
	if c.Guard.Backend == "" {
		c.Guard.Backend = defaultGuardBackend
	}
	if strings.TrimSpace(c.Guard.RuntimeDir) == "" {
		c.Guard.RuntimeDir = defaultRuntimeDir()
	}
}

func (c *Config) normalizeLogging() {
	if value, ok := os.LookupEnv("FILEPROCESSOR_LOG_LEVEL"); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
	if value, ok := os.LookupEnv("FILEPROCESSOR_LOG_FORMAT"); ok && strings.TrimSpace(value) != "" {
		c.Logging.Format = value
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Finalize.MoveTo, err = expandPath(c.Finalize.MoveTo); err != nil {
		return fmt.Errorf("finalize.move_to: %w", err)
	}
	if c.Guard.RuntimeDir, err = expandPath(c.Guard.RuntimeDir); err != nil {
		return fmt.Errorf("guard.runtime_dir: %w", err)
	}
	if strings.TrimSpace(c.Journal.Path) == "" {
		c.Journal.Path = defaultJournalPath
	}
	if c.Journal.Path, err = expandPath(c.Journal.Path); err != nil {
		return fmt.Errorf("journal.path: %w", err)
	}
	return nil
}
