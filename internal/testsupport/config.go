// Package testsupport centralizes fixtures shared by package tests: temp-dir
// configs, opened job stores, and small file helpers.
package testsupport

import (
	"path/filepath"
	"testing"

	"casework/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.VaultDir = filepath.Join(base, "vault")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Case.Operator = "test-operator"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithQueueTuning overrides queue settings on the test config.
func WithQueueTuning(fn func(*config.Queue)) ConfigOption {
	return func(cfg *config.Config) {
		fn(&cfg.Queue)
	}
}
