package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"casework/internal/config"
	"casework/internal/jobs"
)

// MustOpenStore opens a jobs.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustEnqueue inserts a queued job for tests using the provided store.
func MustEnqueue(t testing.TB, store *jobs.Store, jobType string, scope jobs.Scope, payload []byte) *jobs.Record {
	t.Helper()

	record, created, err := store.Enqueue(context.Background(), jobs.EnqueueRequest{
		Type:     jobType,
		Scope:    scope,
		Payload:  payload,
		Operator: "test-operator",
	})
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	if !created {
		t.Fatalf("expected a fresh job for type %s scope %+v, got existing %s", jobType, scope, record.ID)
	}
	return record
}

// WriteFile writes content below dir and returns the full path.
func WriteFile(t testing.TB, dir, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
