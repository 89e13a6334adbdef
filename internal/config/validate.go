package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks configuration invariants that normalization cannot repair.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.VaultDir) == "" {
		problems = append(problems, "paths.vault_dir must not be empty")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		problems = append(problems, "paths.log_dir must not be empty")
	}
	if c.Paths.VaultDir != "" && c.Paths.VaultDir == c.Paths.LogDir {
		problems = append(problems, "paths.vault_dir and paths.log_dir must differ")
	}
	if c.Queue.BusyRetryInitialMS > c.Queue.BusyRetryMaxMS {
		problems = append(problems, fmt.Sprintf(
			"queue.busy_retry_initial_ms (%d) must not exceed queue.busy_retry_max_ms (%d)",
			c.Queue.BusyRetryInitialMS, c.Queue.BusyRetryMaxMS))
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not supported (use console or json)", c.Logging.Format))
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New("invalid configuration: " + strings.Join(problems, "; "))
}
