package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Paths contains directory configuration for the daemon and CLI.
type Paths struct {
	VaultDir string `toml:"vault_dir"`
	LogDir   string `toml:"log_dir"`
}

// Queue contains tuning for the job store, write gate, and runner.
type Queue struct {
	// DispatchBuffer is the capacity of the in-process dispatch channel.
	DispatchBuffer int `toml:"dispatch_buffer"`
	// ProgressWriteIntervalMS is the minimum interval between persisted
	// progress updates for a single job. Handlers may report more often;
	// intermediate reports are coalesced.
	ProgressWriteIntervalMS int `toml:"progress_write_interval_ms"`
	// BusyRetryAttempts bounds the write gate's retry loop for transient
	// lock errors.
	BusyRetryAttempts int `toml:"busy_retry_attempts"`
	// BusyRetryInitialMS and BusyRetryMaxMS shape the exponential backoff
	// between busy retries.
	BusyRetryInitialMS int `toml:"busy_retry_initial_ms"`
	BusyRetryMaxMS     int `toml:"busy_retry_max_ms"`
	// BusyRetryJitter randomizes each retry delay within the exponential
	// curve. Enable when external tools share the database file and
	// lockstep retries keep colliding.
	BusyRetryJitter bool `toml:"busy_retry_jitter"`
	// JobTimeoutSeconds fails jobs that run longer than this. Zero disables
	// the watchdog.
	JobTimeoutSeconds int `toml:"job_timeout_seconds"`
	// FeedBuffer is the per-subscriber status feed buffer.
	FeedBuffer int `toml:"feed_buffer"`
}

// Case contains provenance metadata recorded on every job.
type Case struct {
	Operator string `toml:"operator"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for casework.
//
// Configuration sections by subsystem:
//   - Paths: evidence vault and log directories
//   - Queue: job store, write gate, and runner tuning
//   - Case: operator provenance recorded on enqueued jobs
//   - Logging: log format, level, and retention
type Config struct {
	Paths   Paths   `toml:"paths"`
	Queue   Queue   `toml:"queue"`
	Case    Case    `toml:"case"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/casework/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized. The second return value is the
// resolved config path and the third reports whether the file existed.
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
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
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

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("casework.toml")
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

// EnsureDirectories creates the directories the daemon needs at runtime.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.VaultDir, c.Paths.LogDir}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the job database file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.LogDir, "casework.db")
}

// SocketPath returns the daemon control socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.LogDir, "caseworkd.sock")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "caseworkd.lock")
}

// WriteSample writes the embedded sample configuration to the given path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
