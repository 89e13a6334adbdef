package jobs

import (
	"context"
	"fmt"
	"time"
)

// MarkRunning claims a queued job for execution, setting StartedAt exactly
// once. Returns false when the job is no longer queued (already claimed,
// canceled, or gone), in which case the runner must skip it.
func (s *Store) MarkRunning(ctx context.Context, id string) (bool, error) {
	var claimed bool
	err := s.gate.Do(ctx, "mark running", func() error {
		now := time.Now().UTC().Format(time.RFC3339Nano)
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE jobs
             SET status = ?, status_message = ?, started_at_utc = ?, updated_at_utc = ?
             WHERE id = ? AND status = ?`,
			StatusRunning,
			"Running",
			now,
			now,
			id,
			StatusQueued,
		)
		if err != nil {
			return fmt.Errorf("mark running: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		claimed = affected > 0
		return nil
	})
	return claimed, err
}

// UpdateProgress persists a progress snapshot for a running job. Progress is
// clamped to [0,1] and never regresses: a write attempting a smaller value
// keeps the stored maximum. Terminal rows are left untouched.
func (s *Store) UpdateProgress(ctx context.Context, id string, fraction float64, message string) error {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return s.gate.Do(ctx, "update progress", func() error {
		_, err := s.db.ExecContext(
			ctx,
			`UPDATE jobs
             SET progress = MAX(progress, ?), status_message = ?, updated_at_utc = ?
             WHERE id = ? AND status = ?`,
			fraction,
			message,
			time.Now().UTC().Format(time.RFC3339Nano),
			id,
			StatusRunning,
		)
		if err != nil {
			return fmt.Errorf("update progress: %w", err)
		}
		return nil
	})
}

// Finalize performs the single terminal write for a job: terminal status,
// progress pinned at 1.0, CompletedAt, and a terminal-shaped status message,
// all in one statement. Rows already terminal are never touched, so the write
// is exactly-once per job. Returns the post-write record and whether this
// call applied the transition.
func (s *Store) Finalize(ctx context.Context, id string, outcome Outcome) (*Record, bool, error) {
	if err := outcome.Validate(); err != nil {
		return nil, false, err
	}

	var (
		record  *Record
		applied bool
	)
	err := s.gate.Do(ctx, "finalize", func() error {
		now := time.Now().UTC().Format(time.RFC3339Nano)
		errorDetail := ""
		if outcome.Status == StatusFailed {
			errorDetail = outcome.ErrorDetail
		}
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE jobs
             SET status = ?, progress = 1.0, status_message = ?, error_message = ?,
                 completed_at_utc = ?, updated_at_utc = ?
             WHERE id = ? AND status NOT IN (?, ?, ?, ?)`,
			outcome.Status,
			outcome.TerminalMessage(),
			nullableString(errorDetail),
			now,
			now,
			id,
			StatusSucceeded,
			StatusFailed,
			StatusCanceled,
			StatusAbandoned,
		)
		if err != nil {
			return fmt.Errorf("finalize job: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		applied = affected > 0
		record, err = s.getByIDLocked(ctx, id)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return record, applied, nil
}

// CancelQueued transitions a job straight from queued to canceled with full
// terminal fields. Returns false when the job was not queued, which tells the
// caller to fall through to the running-cancel path.
func (s *Store) CancelQueued(ctx context.Context, id string) (bool, error) {
	var canceled bool
	err := s.gate.Do(ctx, "cancel queued", func() error {
		now := time.Now().UTC().Format(time.RFC3339Nano)
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE jobs
             SET status = ?, progress = 1.0, status_message = ?, completed_at_utc = ?, updated_at_utc = ?
             WHERE id = ? AND status = ?`,
			StatusCanceled,
			CanceledMessage,
			now,
			now,
			id,
			StatusQueued,
		)
		if err != nil {
			return fmt.Errorf("cancel queued job: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		canceled = affected > 0
		return nil
	})
	return canceled, err
}

// AbandonRunning rewrites every running row to abandoned with terminal
// fields. It is called exactly once per process life, before the runner
// accepts dispatches; a row still running at that point belonged to a process
// that died mid-execution and cannot be trusted to finish.
func (s *Store) AbandonRunning(ctx context.Context) ([]*Record, error) {
	var abandoned []*Record
	err := s.gate.Do(ctx, "abandon running", func() error {
		abandoned = abandoned[:0]
		rows, err := s.db.QueryContext(ctx, `SELECT id FROM jobs WHERE status = ?`, StatusRunning)
		if err != nil {
			return fmt.Errorf("query running jobs: %w", err)
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		now := time.Now().UTC().Format(time.RFC3339Nano)
		for _, id := range ids {
			if _, err := s.db.ExecContext(
				ctx,
				`UPDATE jobs
                 SET status = ?, progress = 1.0, status_message = ?, completed_at_utc = ?, updated_at_utc = ?
                 WHERE id = ? AND status = ?`,
				StatusAbandoned,
				AbandonedMessage,
				now,
				now,
				id,
				StatusRunning,
			); err != nil {
				return fmt.Errorf("abandon job %s: %w", id, err)
			}
			record, err := s.getByIDLocked(ctx, id)
			if err != nil {
				return err
			}
			if record != nil {
				abandoned = append(abandoned, record)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return abandoned, nil
}
