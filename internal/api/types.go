package api

import (
	"encoding/json"
	"time"

	"casework/internal/jobs"
)

// Job describes a job record in a transport-friendly format.
type Job struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	CaseID        string          `json:"caseId,omitempty"`
	EvidenceID    string          `json:"evidenceId,omitempty"`
	Status        string          `json:"status"`
	Progress      float64         `json:"progress"`
	StatusMessage string          `json:"statusMessage,omitempty"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CreatedAt     string          `json:"createdAt,omitempty"`
	UpdatedAt     string          `json:"updatedAt,omitempty"`
	StartedAt     string          `json:"startedAt,omitempty"`
	CompletedAt   string          `json:"completedAt,omitempty"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Operator      string          `json:"operator,omitempty"`
}

// DaemonStatus summarizes daemon and queue state for status displays.
type DaemonStatus struct {
	Running        bool                `json:"running"`
	Version        string              `json:"version"`
	StartedAt      string              `json:"startedAt,omitempty"`
	RegisteredJobs []string            `json:"registeredJobs"`
	QueueStats     map[string]int      `json:"queueStats"`
	Health         jobs.DatabaseHealth `json:"health"`
}

// EnqueueResult reports the outcome of an enqueue request. Created is false
// when an equivalent active job already existed and was returned instead.
type EnqueueResult struct {
	Job     Job  `json:"job"`
	Created bool `json:"created"`
}

// CancelResult reports the outcome of a cancel request.
type CancelResult struct {
	Job     Job  `json:"job"`
	Applied bool `json:"applied"`
}

// FromRecord converts a stored record into its DTO.
func FromRecord(record *jobs.Record) Job {
	if record == nil {
		return Job{}
	}
	job := Job{
		ID:            record.ID,
		Type:          record.Type,
		CaseID:        record.Scope.CaseID,
		EvidenceID:    record.Scope.EvidenceID,
		Status:        string(record.Status),
		Progress:      record.Progress,
		StatusMessage: record.StatusMessage,
		ErrorMessage:  record.ErrorMessage,
		Payload:       json.RawMessage(record.Payload),
		CreatedAt:     formatTime(record.CreatedAt),
		UpdatedAt:     formatTime(record.UpdatedAt),
		CorrelationID: record.CorrelationID,
		Operator:      record.Operator,
	}
	if record.StartedAt != nil {
		job.StartedAt = formatTime(*record.StartedAt)
	}
	if record.CompletedAt != nil {
		job.CompletedAt = formatTime(*record.CompletedAt)
	}
	return job
}

// FromRecords converts a slice of records.
func FromRecords(records []*jobs.Record) []Job {
	out := make([]Job, 0, len(records))
	for _, record := range records {
		out = append(out, FromRecord(record))
	}
	return out
}

// StatsMap flattens a stats summary into status-keyed counts.
func StatsMap(stats jobs.StatsSummary) map[string]int {
	return map[string]int{
		"total":                      stats.Total,
		string(jobs.StatusQueued):    stats.Queued,
		string(jobs.StatusRunning):   stats.Running,
		string(jobs.StatusSucceeded): stats.Succeeded,
		string(jobs.StatusFailed):    stats.Failed,
		string(jobs.StatusCanceled):  stats.Canceled,
		string(jobs.StatusAbandoned): stats.Abandoned,
	}
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339Nano)
}
