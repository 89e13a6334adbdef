// Package api exposes case and queue operations as a transport-neutral
// service consumed by both the IPC server and the CLI.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"casework/internal/jobs"
	"casework/internal/logging"
	"casework/internal/runner"
)

// EnqueueRequest carries caller input for a new job.
type EnqueueRequest struct {
	Type          string          `json:"type"`
	CaseID        string          `json:"caseId,omitempty"`
	EvidenceID    string          `json:"evidenceId,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CorrelationID string          `json:"correlationId,omitempty"`
}

// Service wires the job store and runner behind validated operations.
type Service struct {
	store     *jobs.Store
	runner    *runner.Runner
	operator  string
	version   string
	startedAt time.Time
	logger    *slog.Logger
}

// NewService constructs the service facade.
func NewService(store *jobs.Store, jobRunner *runner.Runner, operator, version string, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		runner:    jobRunner,
		operator:  operator,
		version:   version,
		startedAt: time.Now().UTC(),
		logger:    logging.NewComponentLogger(logger, "api"),
	}
}

// Enqueue validates and persists a new job, then nudges the runner. When an
// equivalent active job exists it is returned with Created=false.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (EnqueueResult, error) {
	jobType := strings.TrimSpace(req.Type)
	if jobType == "" {
		return EnqueueResult{}, jobs.NewValidationError("job type is required")
	}
	handler, known := s.runner.Registry().Lookup(jobType)
	if !known {
		return EnqueueResult{}, jobs.NewValidationError(
			"unknown job type %q, registered types: %s",
			jobType, strings.Join(s.runner.Registry().Types(), ", "))
	}
	if requirer, ok := handler.(runner.PayloadRequirer); ok && requirer.RequiresPayload() && len(req.Payload) == 0 {
		return EnqueueResult{}, jobs.NewValidationError("payload is required for job type %q", jobType)
	}

	record, created, err := s.store.Enqueue(ctx, jobs.EnqueueRequest{
		Type:          jobType,
		Scope:         jobs.Scope{CaseID: strings.TrimSpace(req.CaseID), EvidenceID: strings.TrimSpace(req.EvidenceID)},
		Payload:       []byte(req.Payload),
		CorrelationID: strings.TrimSpace(req.CorrelationID),
		Operator:      s.operator,
	})
	if err != nil {
		return EnqueueResult{}, err
	}
	if created {
		s.runner.Dispatch(record.ID)
		s.logger.Info("job enqueued",
			logging.String(logging.FieldJobID, record.ID),
			logging.String(logging.FieldJobType, record.Type),
			logging.String(logging.FieldCorrelationID, record.CorrelationID))
	}
	return EnqueueResult{Job: FromRecord(record), Created: created}, nil
}

// Cancel requests cancellation for a job.
func (s *Service) Cancel(ctx context.Context, id string) (CancelResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return CancelResult{}, jobs.NewValidationError("job id is required")
	}
	record, applied, err := s.runner.Cancel(ctx, id)
	if err != nil {
		return CancelResult{}, err
	}
	return CancelResult{Job: FromRecord(record), Applied: applied}, nil
}

// Describe fetches a single job.
func (s *Service) Describe(ctx context.Context, id string) (Job, error) {
	id = strings.TrimSpace(id)
	record, err := s.store.GetByID(ctx, id)
	if err != nil {
		return Job{}, err
	}
	if record == nil {
		return Job{}, jobs.NewNotFoundError(id)
	}
	return FromRecord(record), nil
}

// List returns recent jobs, optionally filtered by case and evidence.
func (s *Service) List(ctx context.Context, caseID, evidenceID string, limit int) ([]Job, error) {
	records, err := s.store.ListRecent(ctx, jobs.Scope{
		CaseID:     strings.TrimSpace(caseID),
		EvidenceID: strings.TrimSpace(evidenceID),
	}, limit)
	if err != nil {
		return nil, err
	}
	return FromRecords(records), nil
}

// Status reports daemon identity, queue counts, and database health.
func (s *Service) Status(ctx context.Context) (DaemonStatus, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return DaemonStatus{}, fmt.Errorf("queue stats: %w", err)
	}
	health, err := s.store.CheckHealth(ctx)
	if err != nil {
		return DaemonStatus{}, fmt.Errorf("health check: %w", err)
	}
	return DaemonStatus{
		Running:        true,
		Version:        s.version,
		StartedAt:      s.startedAt.Format(time.RFC3339Nano),
		RegisteredJobs: s.runner.Registry().Types(),
		QueueStats:     StatsMap(stats),
		Health:         health,
	}, nil
}
