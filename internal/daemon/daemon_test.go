package daemon_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"casework/internal/config"
	"casework/internal/daemon"
	"casework/internal/ipc"
	"casework/internal/jobs"
	"casework/internal/logging"
	"casework/internal/messages"
	"casework/internal/testsupport"
)

func newDaemon(t *testing.T) (*daemon.Daemon, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	d, err := daemon.New(cfg, "test", logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d, cfg
}

func TestDaemonRunsJobEndToEnd(t *testing.T) {
	d, cfg := newDaemon(t)
	socket := cfg.SocketPath()
	if err := d.Start(context.Background()); err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping daemon test: %v", err)
		}
		t.Fatalf("Start: %v", err)
	}

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	export := testsupport.WriteFile(t, t.TempDir(), "export.csv",
		[]byte("source,sender,recipient,sent_at,body\nsms,a,b,2024-05-01T00:00:00Z,hello\n"))
	payload, _ := json.Marshal(messages.IngestPayload{SourcePath: export})

	enqueued, err := client.Enqueue(ipc.EnqueueRequest{
		Type:       messages.TypeIngest,
		CaseID:     "case-1",
		EvidenceID: "ev-1",
		Payload:    payload,
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	var final ipc.Job
	for time.Now().Before(deadline) {
		fetched, err := client.JobGet(enqueued.Job.ID)
		if err != nil {
			t.Fatalf("JobGet: %v", err)
		}
		if jobs.Status(fetched.Job.Status).IsTerminal() {
			final = fetched.Job
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if final.ID == "" {
		t.Fatal("job never reached a terminal state")
	}
	if final.Status != string(jobs.StatusSucceeded) {
		t.Fatalf("status = %s (%s)", final.Status, final.StatusMessage)
	}
	if final.StatusMessage != "Succeeded: Extracted 1 message(s)." {
		t.Fatalf("message = %q", final.StatusMessage)
	}
}

func TestSecondInstanceIsRejected(t *testing.T) {
	d, first := newDaemon(t)
	if err := d.Start(context.Background()); err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping daemon test: %v", err)
		}
		t.Fatalf("Start: %v", err)
	}

	other := testsupport.NewConfig(t)
	// Second daemon pointed at the same lock path.
	other.Paths.LogDir = first.Paths.LogDir
	second, err := daemon.New(other, "test", logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	defer second.Close()

	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second instance acquired the lock")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	d, _ := newDaemon(t)
	if err := d.Start(context.Background()); err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping daemon test: %v", err)
		}
		t.Fatalf("Start: %v", err)
	}
	d.Stop()
	d.Stop()
}
