package jobs

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation marks enqueue input rejected before persistence.
var ErrValidation = errors.New("validation error")

// ErrNotFound marks lookups for job identifiers with no persisted row.
var ErrNotFound = errors.New("job not found")

// NewNotFoundError wraps a job identifier with the not-found marker.
func NewNotFoundError(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// NewValidationError wraps a human-readable reason with the validation marker.
func NewValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// LockedError reports that a write exhausted its busy retries. Callers
// can treat it as a retryable operational error rather than a data error.
type LockedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("store locked: %s gave up after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *LockedError) Unwrap() error {
	return e.Err
}

// IsBusy reports whether err is a transient SQLite lock/busy failure worth
// retrying.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

const sqliteBusyCode = 5
