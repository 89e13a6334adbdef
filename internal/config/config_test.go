package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"casework/internal/config"
)

func TestDefaultsNormalize(t *testing.T) {
	loaded, _, exists, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load with missing file failed: %v", err)
	}
	if exists {
		t.Fatal("expected missing config file to be reported as absent")
	}
	if loaded.Queue.DispatchBuffer <= 0 {
		t.Fatalf("expected dispatch buffer default, got %d", loaded.Queue.DispatchBuffer)
	}
	if loaded.Queue.BusyRetryAttempts != 5 {
		t.Fatalf("expected default busy retry attempts 5, got %d", loaded.Queue.BusyRetryAttempts)
	}
	if loaded.Logging.Format != "console" {
		t.Fatalf("expected console log format, got %q", loaded.Logging.Format)
	}
	if !filepath.IsAbs(loaded.Paths.VaultDir) {
		t.Fatalf("expected normalized vault dir, got %q", loaded.Paths.VaultDir)
	}
}

func TestLoadParsesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := strings.Join([]string{
		"[paths]",
		`vault_dir = "` + filepath.Join(dir, "vault") + `"`,
		`log_dir = "` + filepath.Join(dir, "logs") + `"`,
		"",
		"[queue]",
		"dispatch_buffer = 8",
		"job_timeout_seconds = 30",
		"busy_retry_jitter = true",
		"",
		"[case]",
		`operator = "jdoe"`,
		"",
		"[logging]",
		`format = "json"`,
		`level = "debug"`,
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution: exists=%v path=%q", exists, resolved)
	}
	if cfg.Queue.DispatchBuffer != 8 {
		t.Fatalf("expected dispatch buffer 8, got %d", cfg.Queue.DispatchBuffer)
	}
	if cfg.Queue.JobTimeoutSeconds != 30 {
		t.Fatalf("expected timeout 30, got %d", cfg.Queue.JobTimeoutSeconds)
	}
	if !cfg.Queue.BusyRetryJitter {
		t.Fatal("expected busy retry jitter to be enabled")
	}
	if cfg.Case.Operator != "jdoe" {
		t.Fatalf("expected operator jdoe, got %q", cfg.Case.Operator)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json format, got %q", cfg.Logging.Format)
	}
}

func TestValidateRejectsSharedDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.VaultDir = dir
	cfg.Paths.LogDir = dir
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for shared vault/log directory")
	}
}

func TestOperatorEnvFallback(t *testing.T) {
	t.Setenv("CASEWORK_OPERATOR", "analyst7")
	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Case.Operator != "analyst7" {
		t.Fatalf("expected operator from env, got %q", cfg.Case.Operator)
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.WriteSample(path); err != nil {
		t.Fatalf("WriteSample failed: %v", err)
	}
	if err := config.WriteSample(path); err == nil {
		t.Fatal("expected error when sample config already exists")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[queue]") {
		t.Fatal("sample config missing queue section")
	}
}
