package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeQueue()
	c.normalizeCase()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.VaultDir) == "" {
		c.Paths.VaultDir = defaultVaultDir
	}
	if c.Paths.VaultDir, err = expandPath(c.Paths.VaultDir); err != nil {
		return fmt.Errorf("paths.vault_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeQueue() {
	if c.Queue.DispatchBuffer <= 0 {
		c.Queue.DispatchBuffer = defaultDispatchBuffer
	}
	if c.Queue.ProgressWriteIntervalMS <= 0 {
		c.Queue.ProgressWriteIntervalMS = defaultProgressWriteIntervalMS
	}
	if c.Queue.BusyRetryAttempts <= 0 {
		c.Queue.BusyRetryAttempts = defaultBusyRetryAttempts
	}
	if c.Queue.BusyRetryInitialMS <= 0 {
		c.Queue.BusyRetryInitialMS = defaultBusyRetryInitialMS
	}
	if c.Queue.BusyRetryMaxMS < c.Queue.BusyRetryInitialMS {
		c.Queue.BusyRetryMaxMS = defaultBusyRetryMaxMS
	}
	if c.Queue.JobTimeoutSeconds < 0 {
		c.Queue.JobTimeoutSeconds = 0
	}
	if c.Queue.FeedBuffer <= 0 {
		c.Queue.FeedBuffer = defaultFeedBuffer
	}
}

func (c *Config) normalizeCase() {
	c.Case.Operator = strings.TrimSpace(c.Case.Operator)
	if c.Case.Operator == "" {
		if value, ok := os.LookupEnv("CASEWORK_OPERATOR"); ok {
			c.Case.Operator = strings.TrimSpace(value)
		}
	}
	if c.Case.Operator == "" {
		if current, err := user.Current(); err == nil {
			c.Case.Operator = current.Username
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = defaultLogRetentionDays
	}
}

// ExpandPath expands a leading tilde and returns an absolute, cleaned path.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			trimmed = home
		} else {
			trimmed = filepath.Join(home, trimmed[2:])
		}
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}
	return filepath.Clean(abs), nil
}
