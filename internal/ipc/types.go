package ipc

import (
	"encoding/json"

	"casework/internal/api"
)

// Job mirrors the API job DTO for IPC callers.
type Job = api.Job

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse carries daemon identity, queue counts, and health.
type StatusResponse struct {
	Status   api.DaemonStatus `json:"status"`
	PID      int              `json:"pid"`
	DBPath   string           `json:"db_path"`
	LockPath string           `json:"lock_path"`
}

// JobsListRequest filters job listing by scope.
type JobsListRequest struct {
	CaseID     string `json:"case_id,omitempty"`
	EvidenceID string `json:"evidence_id,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// JobsListResponse contains recent jobs, newest first.
type JobsListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobGetRequest fetches a single job by id.
type JobGetRequest struct {
	ID string `json:"id"`
}

// JobGetResponse contains one job.
type JobGetResponse struct {
	Job Job `json:"job"`
}

// EnqueueRequest submits a new job.
type EnqueueRequest struct {
	Type          string          `json:"type"`
	CaseID        string          `json:"case_id,omitempty"`
	EvidenceID    string          `json:"evidence_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// EnqueueResponse reports the enqueued or pre-existing job.
type EnqueueResponse struct {
	Job     Job  `json:"job"`
	Created bool `json:"created"`
}

// CancelRequest requests cancellation of a job.
type CancelRequest struct {
	ID string `json:"id"`
}

// CancelResponse reports the job state after the cancel request.
type CancelResponse struct {
	Job     Job  `json:"job"`
	Applied bool `json:"applied"`
}
