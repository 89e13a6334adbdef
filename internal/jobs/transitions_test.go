package jobs_test

import (
	"context"
	"strings"
	"testing"

	"casework/internal/jobs"
	"casework/internal/testsupport"
)

func TestMarkRunningClaimsOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	record := testsupport.MustEnqueue(t, store, "EvidenceImport", jobs.Scope{CaseID: "c", EvidenceID: "e"}, []byte("p"))

	claimed, err := store.MarkRunning(ctx, record.ID)
	if err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	if !claimed {
		t.Fatal("expected first claim to succeed")
	}

	again, err := store.MarkRunning(ctx, record.ID)
	if err != nil {
		t.Fatalf("second MarkRunning failed: %v", err)
	}
	if again {
		t.Fatal("expected second claim to be rejected")
	}

	running, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if running.Status != jobs.StatusRunning {
		t.Fatalf("expected running, got %s", running.Status)
	}
	if running.StartedAt == nil {
		t.Fatal("expected StartedAt to be set")
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	record := testsupport.MustEnqueue(t, store, "MessagesIngest", jobs.Scope{CaseID: "c", EvidenceID: "e"}, []byte("p"))
	if _, err := store.MarkRunning(ctx, record.ID); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}

	steps := []struct {
		fraction float64
		want     float64
	}{
		{0.2, 0.2},
		{0.5, 0.5},
		{0.3, 0.5}, // regression attempt keeps the stored maximum
		{1.4, 1.0}, // clamped
	}
	for _, step := range steps {
		if err := store.UpdateProgress(ctx, record.ID, step.fraction, "working"); err != nil {
			t.Fatalf("UpdateProgress(%v) failed: %v", step.fraction, err)
		}
		current, err := store.GetByID(ctx, record.ID)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if current.Progress != step.want {
			t.Fatalf("after reporting %v expected progress %v, got %v", step.fraction, step.want, current.Progress)
		}
	}
}

func TestProgressIgnoredOnceTerminal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	record := testsupport.MustEnqueue(t, store, "MessagesIngest", jobs.Scope{CaseID: "c", EvidenceID: "e"}, []byte("p"))
	if _, err := store.MarkRunning(ctx, record.ID); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	if _, _, err := store.Finalize(ctx, record.ID, jobs.Outcome{Status: jobs.StatusSucceeded, Summary: "ok"}); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	if err := store.UpdateProgress(ctx, record.ID, 0.1, "stale write"); err != nil {
		t.Fatalf("UpdateProgress after finalize errored: %v", err)
	}
	final, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if final.Progress != 1.0 || final.StatusMessage != "Succeeded: ok" {
		t.Fatalf("terminal row mutated by late progress write: %+v", final)
	}
}

func TestFinalizeTerminalConvergence(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cases := []struct {
		name        string
		outcome     jobs.Outcome
		wantMessage string
		wantError   string
	}{
		{
			name:        "succeeded",
			outcome:     jobs.Outcome{Status: jobs.StatusSucceeded, Summary: "Extracted 12 message(s)."},
			wantMessage: "Succeeded: Extracted 12 message(s).",
		},
		{
			name:        "failed",
			outcome:     jobs.Outcome{Status: jobs.StatusFailed, Summary: "hash mismatch", ErrorDetail: "sha256 mismatch: stored deadbeef, computed cafebabe"},
			wantMessage: "Failed: hash mismatch",
			wantError:   "sha256 mismatch: stored deadbeef, computed cafebabe",
		},
		{
			name:        "canceled",
			outcome:     jobs.Outcome{Status: jobs.StatusCanceled},
			wantMessage: "Canceled",
		},
		{
			name:        "abandoned",
			outcome:     jobs.Outcome{Status: jobs.StatusAbandoned},
			wantMessage: "Abandoned (process restarted before completion)",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			record := testsupport.MustEnqueue(t, store, "EvidenceImport", jobs.Scope{CaseID: "c", EvidenceID: "ev-" + tc.name}, []byte("p"))
			if _, err := store.MarkRunning(ctx, record.ID); err != nil {
				t.Fatalf("MarkRunning failed: %v", err)
			}

			final, applied, err := store.Finalize(ctx, record.ID, tc.outcome)
			if err != nil {
				t.Fatalf("Finalize failed: %v", err)
			}
			if !applied {
				t.Fatal("expected finalize to apply")
			}
			if final.Status != tc.outcome.Status {
				t.Fatalf("expected status %s, got %s", tc.outcome.Status, final.Status)
			}
			if final.Progress != 1.0 {
				t.Fatalf("expected progress pinned at 1.0, got %v", final.Progress)
			}
			if final.CompletedAt == nil {
				t.Fatal("expected CompletedAt to be set")
			}
			if final.StatusMessage != tc.wantMessage {
				t.Fatalf("expected message %q, got %q", tc.wantMessage, final.StatusMessage)
			}
			if final.ErrorMessage != tc.wantError {
				t.Fatalf("expected error detail %q, got %q", tc.wantError, final.ErrorMessage)
			}
		})
	}
}

func TestFinalizeIsExactlyOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	record := testsupport.MustEnqueue(t, store, "EvidenceImport", jobs.Scope{CaseID: "c", EvidenceID: "e"}, []byte("p"))
	if _, err := store.MarkRunning(ctx, record.ID); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}

	_, applied, err := store.Finalize(ctx, record.ID, jobs.Outcome{Status: jobs.StatusCanceled})
	if err != nil || !applied {
		t.Fatalf("first finalize: applied=%v err=%v", applied, err)
	}

	final, applied, err := store.Finalize(ctx, record.ID, jobs.Outcome{Status: jobs.StatusSucceeded, Summary: "late"})
	if err != nil {
		t.Fatalf("second finalize errored: %v", err)
	}
	if applied {
		t.Fatal("expected second finalize to be a no-op")
	}
	if final.Status != jobs.StatusCanceled || final.StatusMessage != "Canceled" {
		t.Fatalf("terminal state rewritten: %+v", final)
	}

	if _, _, err := store.Finalize(ctx, record.ID, jobs.Outcome{Status: jobs.StatusQueued}); err == nil {
		t.Fatal("expected error for non-terminal outcome")
	}
}

func TestCancelQueuedDirectTransition(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	record := testsupport.MustEnqueue(t, store, "EvidenceVerify", jobs.Scope{CaseID: "c", EvidenceID: "e"}, []byte("p"))

	canceled, err := store.CancelQueued(ctx, record.ID)
	if err != nil {
		t.Fatalf("CancelQueued failed: %v", err)
	}
	if !canceled {
		t.Fatal("expected queued job to cancel")
	}

	final, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if final.Status != jobs.StatusCanceled || final.Progress != 1.0 || final.CompletedAt == nil {
		t.Fatalf("expected terminal canceled row, got %+v", final)
	}

	// The claim path must now refuse the job.
	claimed, err := store.MarkRunning(ctx, record.ID)
	if err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	if claimed {
		t.Fatal("canceled job must not be claimable")
	}

	// Cancel of a non-queued job reports false without error.
	again, err := store.CancelQueued(ctx, record.ID)
	if err != nil {
		t.Fatalf("second CancelQueued errored: %v", err)
	}
	if again {
		t.Fatal("expected cancel of terminal job to be a no-op")
	}
}

func TestAbandonRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	running := testsupport.MustEnqueue(t, store, "EvidenceImport", jobs.Scope{CaseID: "c", EvidenceID: "e1"}, []byte("p"))
	if _, err := store.MarkRunning(ctx, running.ID); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	queued := testsupport.MustEnqueue(t, store, "EvidenceImport", jobs.Scope{CaseID: "c", EvidenceID: "e2"}, []byte("p"))

	abandoned, err := store.AbandonRunning(ctx)
	if err != nil {
		t.Fatalf("AbandonRunning failed: %v", err)
	}
	if len(abandoned) != 1 || abandoned[0].ID != running.ID {
		t.Fatalf("unexpected abandoned set: %+v", abandoned)
	}
	if abandoned[0].Status != jobs.StatusAbandoned {
		t.Fatalf("expected abandoned status, got %s", abandoned[0].Status)
	}
	if !strings.Contains(abandoned[0].StatusMessage, "Abandoned") {
		t.Fatalf("unexpected message: %q", abandoned[0].StatusMessage)
	}

	// Queued rows survive reconciliation untouched.
	still, err := store.GetByID(ctx, queued.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if still.Status != jobs.StatusQueued {
		t.Fatalf("queued job mutated by reconciliation: %s", still.Status)
	}

	ids, err := store.QueuedIDs(ctx)
	if err != nil {
		t.Fatalf("QueuedIDs failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != queued.ID {
		t.Fatalf("unexpected queued ids: %v", ids)
	}
}
