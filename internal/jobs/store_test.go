package jobs_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"casework/internal/config"
	"casework/internal/jobs"
	"casework/internal/testsupport"
)

func TestEnqueueAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	record, created, err := store.Enqueue(ctx, jobs.EnqueueRequest{
		Type:     "EvidenceImport",
		Scope:    jobs.Scope{CaseID: "case-1", EvidenceID: "ev-1"},
		Payload:  []byte(`{"source":"/tmp/x"}`),
		Operator: "jdoe",
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if !created {
		t.Fatal("expected a new job")
	}
	if record.ID == "" {
		t.Fatal("expected job ID to be assigned")
	}
	if record.Status != jobs.StatusQueued {
		t.Fatalf("expected queued status, got %s", record.Status)
	}
	if record.CorrelationID == "" {
		t.Fatal("expected a correlation ID to be assigned")
	}
	if record.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt to be set")
	}
	if record.StartedAt != nil || record.CompletedAt != nil {
		t.Fatal("expected start/completion timestamps to be unset")
	}

	fetched, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.Operator != "jdoe" {
		t.Fatalf("unexpected fetched record: %#v", fetched)
	}
	if string(fetched.Payload) != `{"source":"/tmp/x"}` {
		t.Fatalf("payload mangled: %q", fetched.Payload)
	}
}

func TestEnqueueValidation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, _, err := store.Enqueue(ctx, jobs.EnqueueRequest{Type: " ", Payload: []byte("x")}); !errors.Is(err, jobs.ErrValidation) {
		t.Fatalf("expected validation error for blank type, got %v", err)
	}

	// The payload is opaque to the store; jobs whose handlers need no input
	// enqueue without one.
	record, created, err := store.Enqueue(ctx, jobs.EnqueueRequest{Type: "EvidenceVerify"})
	if err != nil {
		t.Fatalf("Enqueue without payload failed: %v", err)
	}
	if !created || record == nil {
		t.Fatal("expected a new job without payload")
	}
	if len(record.Payload) != 0 {
		t.Fatalf("expected empty payload, got %q", record.Payload)
	}
}

func TestOpenWithJitteredRetries(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithQueueTuning(func(q *config.Queue) {
		q.BusyRetryJitter = true
	}))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	record := testsupport.MustEnqueue(t, store, "EvidenceVerify", jobs.Scope{CaseID: "case-1"}, []byte(`{}`))
	if _, _, err := store.Finalize(ctx, record.ID, jobs.Outcome{Status: jobs.StatusCanceled}); err != nil {
		t.Fatalf("Finalize through jittered gate failed: %v", err)
	}
}

func TestEnqueueSuppressesDuplicates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	scope := jobs.Scope{CaseID: "case-1", EvidenceID: "ev-7"}

	first := testsupport.MustEnqueue(t, store, "EvidenceVerify", scope, []byte("p"))

	dup, created, err := store.Enqueue(ctx, jobs.EnqueueRequest{Type: "EvidenceVerify", Scope: scope, Payload: []byte("p")})
	if err != nil {
		t.Fatalf("duplicate Enqueue failed: %v", err)
	}
	if created {
		t.Fatal("expected duplicate to be suppressed")
	}
	if dup.ID != first.ID {
		t.Fatalf("expected existing job %s, got %s", first.ID, dup.ID)
	}

	// A different scope is a different job.
	other, created, err := store.Enqueue(ctx, jobs.EnqueueRequest{
		Type:    "EvidenceVerify",
		Scope:   jobs.Scope{CaseID: "case-1", EvidenceID: "ev-8"},
		Payload: []byte("p"),
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if !created || other.ID == first.ID {
		t.Fatal("expected a distinct job for a distinct scope")
	}

	// Once terminal, the pair is free again.
	if _, _, err := store.Finalize(ctx, first.ID, jobs.Outcome{Status: jobs.StatusCanceled}); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	again, created, err := store.Enqueue(ctx, jobs.EnqueueRequest{Type: "EvidenceVerify", Scope: scope, Payload: []byte("p")})
	if err != nil {
		t.Fatalf("Enqueue after finalize failed: %v", err)
	}
	if !created || again.ID == first.ID {
		t.Fatal("expected a fresh job once the prior one is terminal")
	}
}

func TestListRecentFiltersScope(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		testsupport.MustEnqueue(t, store, "MessagesIngest", jobs.Scope{CaseID: "case-a", EvidenceID: fmt.Sprintf("ev-%d", i)}, []byte("p"))
	}
	testsupport.MustEnqueue(t, store, "MessagesIngest", jobs.Scope{CaseID: "case-b", EvidenceID: "ev-x"}, []byte("p"))

	all, err := store.ListRecent(ctx, jobs.Scope{}, 0)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 jobs, got %d", len(all))
	}

	caseA, err := store.ListRecent(ctx, jobs.Scope{CaseID: "case-a"}, 10)
	if err != nil {
		t.Fatalf("ListRecent scoped failed: %v", err)
	}
	if len(caseA) != 3 {
		t.Fatalf("expected 3 case-a jobs, got %d", len(caseA))
	}

	one, err := store.ListRecent(ctx, jobs.Scope{CaseID: "case-a", EvidenceID: "ev-1"}, 10)
	if err != nil {
		t.Fatalf("ListRecent evidence-scoped failed: %v", err)
	}
	if len(one) != 1 {
		t.Fatalf("expected 1 job, got %d", len(one))
	}
}

func TestStatsCountsByStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.MustEnqueue(t, store, "EvidenceImport", jobs.Scope{CaseID: "c", EvidenceID: "e1"}, []byte("p"))
	testsupport.MustEnqueue(t, store, "EvidenceImport", jobs.Scope{CaseID: "c", EvidenceID: "e2"}, []byte("p"))

	if _, err := store.MarkRunning(ctx, a.ID); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	if _, _, err := store.Finalize(ctx, a.ID, jobs.Outcome{Status: jobs.StatusSucceeded, Summary: "done"}); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 2 || stats.Queued != 1 || stats.Succeeded != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestCheckHealthReportsSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.TableExists {
		t.Fatalf("unexpected health: %+v", health)
	}
	if len(health.MissingColumns) != 0 {
		t.Fatalf("expected no missing columns, got %v", health.MissingColumns)
	}
	if !health.IntegrityCheck {
		t.Fatal("expected integrity check to pass")
	}
}
