package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"casework/internal/backoff"
	"casework/internal/config"
)

// Store manages job persistence backed by SQLite. All mutations funnel
// through the write gate; reads go straight to the connection since SQLite in
// WAL mode allows readers alongside the single writer.
type Store struct {
	db   *sql.DB
	gate *Gate
	path string
}

// Open initializes or connects to the job database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.DatabasePath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	initial := time.Duration(cfg.Queue.BusyRetryInitialMS) * time.Millisecond
	maxDelay := time.Duration(cfg.Queue.BusyRetryMaxMS) * time.Millisecond
	var strategy backoff.Strategy = backoff.NewExponential(initial, maxDelay)
	if cfg.Queue.BusyRetryJitter {
		strategy = backoff.NewExponentialWithJitter(initial, maxDelay)
	}
	policy := GatePolicy{
		Attempts: cfg.Queue.BusyRetryAttempts,
		Strategy: strategy,
	}

	store := &Store{db: db, gate: NewGate(policy), path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Reader exposes the shared connection for read-only queries by sibling
// packages that keep derived tables in the same database.
func (s *Store) Reader() *sql.DB {
	return s.db
}

// WithWriter runs fn under the write gate, giving sibling packages serialized
// write access with the same busy-retry semantics as the store's own writes.
func (s *Store) WithWriter(ctx context.Context, op string, fn func(*sql.DB) error) error {
	return s.gate.Do(ctx, op, func() error { return fn(s.db) })
}

// Enqueue validates and persists a new queued job. The payload is opaque and
// may be empty; enqueue paths that know the handler enforce per-type payload
// requirements before calling here. When a non-terminal job with the same
// type and scope already exists, that job is returned instead and the second
// return value is false.
func (s *Store) Enqueue(ctx context.Context, req EnqueueRequest) (*Record, bool, error) {
	req.Type = strings.TrimSpace(req.Type)
	if req.Type == "" {
		return nil, false, NewValidationError("job type must not be empty")
	}

	var (
		record  *Record
		created bool
	)
	err := s.gate.Do(ctx, "enqueue", func() error {
		record = nil
		created = false

		existing, err := s.findActiveLocked(ctx, req.Type, req.Scope)
		if err != nil {
			return err
		}
		if existing != nil {
			record = existing
			return nil
		}

		now := time.Now().UTC()
		id := uuid.NewString()
		correlation := strings.TrimSpace(req.CorrelationID)
		if correlation == "" {
			correlation = uuid.NewString()
		}
		_, err = s.db.ExecContext(
			ctx,
			`INSERT INTO jobs (
                id, job_type, case_id, evidence_id, status, progress,
                status_message, payload, created_at_utc, updated_at_utc,
                correlation_id, operator
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id,
			req.Type,
			nullableString(req.Scope.CaseID),
			nullableString(req.Scope.EvidenceID),
			StatusQueued,
			0.0,
			"Queued",
			req.Payload,
			now.Format(time.RFC3339Nano),
			now.Format(time.RFC3339Nano),
			correlation,
			nullableString(req.Operator),
		)
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		created = true
		record, err = s.getByIDLocked(ctx, id)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return record, created, nil
}

// GetByID fetches a job by identifier. Returns nil when no row exists.
func (s *Store) GetByID(ctx context.Context, id string) (*Record, error) {
	return s.getByIDLocked(ctx, id)
}

func (s *Store) getByIDLocked(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return record, nil
}

func (s *Store) findActiveLocked(ctx context.Context, jobType string, scope Scope) (*Record, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs
         WHERE job_type = ? AND IFNULL(case_id, '') = ? AND IFNULL(evidence_id, '') = ?
           AND status IN (?, ?)
         ORDER BY created_at_utc LIMIT 1`,
		jobType,
		scope.CaseID,
		scope.EvidenceID,
		StatusQueued,
		StatusRunning,
	)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active job: %w", err)
	}
	return record, nil
}

// ListRecent returns jobs matching the scope ordered newest first. Empty scope
// fields match everything.
func (s *Store) ListRecent(ctx context.Context, scope Scope, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var (
		clauses []string
		args    []any
	)
	if scope.CaseID != "" {
		clauses = append(clauses, "case_id = ?")
		args = append(args, scope.CaseID)
	}
	if scope.EvidenceID != "" {
		clauses = append(clauses, "evidence_id = ?")
		args = append(args, scope.EvidenceID)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at_utc DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recent jobs: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// QueuedIDs returns identifiers of all queued jobs in creation order. Used by
// startup reconciliation to re-submit work that predates this process.
func (s *Store) QueuedIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id FROM jobs WHERE status = ? ORDER BY created_at_utc`,
		StatusQueued,
	)
	if err != nil {
		return nil, fmt.Errorf("query queued jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (StatsSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return StatsSummary{}, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	var summary StatsSummary
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return StatsSummary{}, err
		}
		summary.Total += count
		switch status {
		case StatusQueued:
			summary.Queued += count
		case StatusRunning:
			summary.Running += count
		case StatusSucceeded:
			summary.Succeeded += count
		case StatusFailed:
			summary.Failed += count
		case StatusCanceled:
			summary.Canceled += count
		case StatusAbandoned:
			summary.Abandoned += count
		}
	}
	return summary, rows.Err()
}

const jobColumns = "id, job_type, case_id, evidence_id, status, progress, status_message, error_message, payload, created_at_utc, updated_at_utc, started_at_utc, completed_at_utc, correlation_id, operator"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		id           string
		jobType      string
		caseID       sql.NullString
		evidenceID   sql.NullString
		statusStr    string
		progress     sql.NullFloat64
		statusMsg    sql.NullString
		errorMsg     sql.NullString
		payload      []byte
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		startedRaw   sql.NullString
		completedRaw sql.NullString
		correlation  sql.NullString
		operator     sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&jobType,
		&caseID,
		&evidenceID,
		&statusStr,
		&progress,
		&statusMsg,
		&errorMsg,
		&payload,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
		&correlation,
		&operator,
	); err != nil {
		return nil, err
	}

	record := &Record{
		ID:            id,
		Type:          jobType,
		Scope:         Scope{CaseID: caseID.String, EvidenceID: evidenceID.String},
		Status:        Status(statusStr),
		Progress:      progress.Float64,
		StatusMessage: statusMsg.String,
		ErrorMessage:  errorMsg.String,
		Payload:       payload,
		CorrelationID: correlation.String,
		Operator:      operator.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		record.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		record.UpdatedAt = updated
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			record.StartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			record.CompletedAt = &completed
		}
	}
	return record, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}
