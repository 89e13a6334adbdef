package jobs

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
	StatusAbandoned Status = "abandoned"
)

var allStatuses = []Status{
	StatusQueued,
	StatusRunning,
	StatusSucceeded,
	StatusFailed,
	StatusCanceled,
	StatusAbandoned,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var terminalStatuses = map[Status]struct{}{
	StatusSucceeded: {},
	StatusFailed:    {},
	StatusCanceled:  {},
	StatusAbandoned: {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status permits no further transitions.
func (s Status) IsTerminal() bool {
	_, ok := terminalStatuses[s]
	return ok
}

// Scope ties a job to a case and optionally a single evidence item. Either
// field may be empty for case-independent work.
type Scope struct {
	CaseID     string
	EvidenceID string
}

// IsZero reports whether the scope carries no references.
func (s Scope) IsZero() bool {
	return s.CaseID == "" && s.EvidenceID == ""
}

// Record is one persisted unit of background work.
type Record struct {
	ID            string
	Type          string
	Scope         Scope
	Status        Status
	Progress      float64
	StatusMessage string
	ErrorMessage  string
	Payload       []byte
	CreatedAt     time.Time
	UpdatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	CorrelationID string
	Operator      string
}

// IsTerminal reports whether the record has reached a terminal status.
func (r *Record) IsTerminal() bool {
	return r != nil && r.Status.IsTerminal()
}

// Outcome describes the single terminal write a job receives.
type Outcome struct {
	Status Status
	// Summary is the short human-readable result (handler summary on
	// success, short reason on failure). Ignored for canceled/abandoned,
	// which carry fixed messages.
	Summary string
	// ErrorDetail is the full failure detail, persisted only for failed.
	ErrorDetail string
}

// AbandonedMessage is the terminal status message for jobs orphaned by a
// process death and reconciled at the next startup.
const AbandonedMessage = "Abandoned (process restarted before completion)"

// CanceledMessage is the terminal status message for canceled jobs.
const CanceledMessage = "Canceled"

// TerminalMessage renders the status message persisted with a terminal write.
func (o Outcome) TerminalMessage() string {
	switch o.Status {
	case StatusSucceeded:
		return fmt.Sprintf("Succeeded: %s", strings.TrimSpace(o.Summary))
	case StatusFailed:
		return fmt.Sprintf("Failed: %s", strings.TrimSpace(o.Summary))
	case StatusCanceled:
		return CanceledMessage
	case StatusAbandoned:
		return AbandonedMessage
	default:
		return strings.TrimSpace(o.Summary)
	}
}

// Validate rejects outcomes that are not terminal.
func (o Outcome) Validate() error {
	if !o.Status.IsTerminal() {
		return fmt.Errorf("outcome status %q is not terminal", o.Status)
	}
	return nil
}

// EnqueueRequest carries caller input for a new job.
type EnqueueRequest struct {
	Type          string
	Scope         Scope
	Payload       []byte
	CorrelationID string
	Operator      string
}

// StatsSummary aggregates job counts for diagnostics.
type StatsSummary struct {
	Total     int
	Queued    int
	Running   int
	Succeeded int
	Failed    int
	Canceled  int
	Abandoned int
}

// DatabaseHealth captures diagnostic information about the job database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	MissingColumns   []string
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}
