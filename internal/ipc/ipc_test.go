package ipc_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"casework/internal/api"
	"casework/internal/ipc"
	"casework/internal/jobs"
	"casework/internal/logging"
	"casework/internal/runner"
	"casework/internal/testsupport"
)

type idleHandler struct{}

func (idleHandler) Type() string { return "evidence_import" }

func (idleHandler) Run(context.Context, *jobs.Record, runner.ProgressFunc) (runner.Result, error) {
	return runner.Result{Summary: "done"}, nil
}

func startServer(t *testing.T) (*ipc.Client, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	registry := runner.NewRegistry()
	if err := registry.Register(idleHandler{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	jobRunner := runner.New(cfg, store, nil, registry, logger)
	service := api.NewService(store, jobRunner, "test-operator", "test", logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	socket := filepath.Join(cfg.Paths.LogDir, "caseworkd.sock")
	srv, err := ipc.NewServer(ctx, socket, service, ipc.ServerInfo{
		PID:      os.Getpid(),
		DBPath:   cfg.DatabasePath(),
		LockPath: cfg.LockPath(),
	}, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, socket
}

func TestEnqueueStatusAndCancelOverIPC(t *testing.T) {
	client, _ := startServer(t)

	payload, _ := json.Marshal(map[string]string{"source_path": "/evidence/disk.img"})
	enqueued, err := client.Enqueue(ipc.EnqueueRequest{
		Type:       "evidence_import",
		CaseID:     "case-1",
		EvidenceID: "ev-1",
		Payload:    payload,
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !enqueued.Created || enqueued.Job.Status != string(jobs.StatusQueued) {
		t.Fatalf("enqueue response = %+v", enqueued)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Status.Running || status.Status.QueueStats["queued"] != 1 {
		t.Fatalf("status = %+v", status.Status)
	}
	if status.PID != os.Getpid() {
		t.Fatalf("pid = %d", status.PID)
	}

	fetched, err := client.JobGet(enqueued.Job.ID)
	if err != nil {
		t.Fatalf("JobGet: %v", err)
	}
	if fetched.Job.EvidenceID != "ev-1" {
		t.Fatalf("job = %+v", fetched.Job)
	}

	listed, err := client.JobsList(ipc.JobsListRequest{CaseID: "case-1"})
	if err != nil {
		t.Fatalf("JobsList: %v", err)
	}
	if len(listed.Jobs) != 1 {
		t.Fatalf("listed %d jobs", len(listed.Jobs))
	}

	canceled, err := client.Cancel(enqueued.Job.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !canceled.Applied || canceled.Job.Status != string(jobs.StatusCanceled) {
		t.Fatalf("cancel response = %+v", canceled)
	}
}

func TestEnqueueRejectsUnknownTypeOverIPC(t *testing.T) {
	client, _ := startServer(t)

	_, err := client.Enqueue(ipc.EnqueueRequest{Type: "not_a_type"})
	if err == nil {
		t.Fatal("unknown type accepted")
	}
	if !strings.Contains(err.Error(), "unknown job type") {
		t.Fatalf("err = %v", err)
	}
}
