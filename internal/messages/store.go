// Package messages ingests communication exports (CSV or JSON) into the
// messages table kept alongside the job queue. Inserts are idempotent per
// evidence item and row hash, so re-running an ingest never duplicates rows.
package messages

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	"casework/internal/jobs"
)

// Row is one parsed message from an export file.
type Row struct {
	Source    string
	Sender    string
	Recipient string
	SentAt    string
	Body      string
}

// Hash returns the stable content hash used for duplicate detection. The
// hash covers every field, so two rows differing only in body are distinct.
func (r Row) Hash() string {
	h := sha256.New()
	for _, field := range []string{r.Source, r.Sender, r.Recipient, r.SentAt, r.Body} {
		h.Write([]byte(field))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Stored is a message row read back from the database.
type Stored struct {
	ID         int64
	CaseID     string
	EvidenceID string
	Row
}

// Store reads and writes the messages table through the shared job database,
// using its write gate for serialized, busy-retried writes.
type Store struct {
	jobs *jobs.Store
}

// NewStore wraps the job store's database for message access.
func NewStore(jobStore *jobs.Store) *Store {
	return &Store{jobs: jobStore}
}

// InsertBatch writes rows for one evidence item, skipping rows whose hash is
// already present. It returns how many rows were newly inserted.
func (s *Store) InsertBatch(ctx context.Context, scope jobs.Scope, jobID string, rows []Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	var inserted int
	err := s.jobs.WithWriter(ctx, "messages insert", func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin messages tx: %w", err)
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO messages
				(evidence_id, case_id, source, sender, recipient, sent_at_utc, body, row_hash, job_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare messages insert: %w", err)
		}
		defer stmt.Close()

		inserted = 0
		for _, row := range rows {
			result, err := stmt.ExecContext(ctx,
				scope.EvidenceID, scope.CaseID,
				row.Source, row.Sender, row.Recipient, row.SentAt, row.Body,
				row.Hash(), jobID)
			if err != nil {
				return fmt.Errorf("insert message: %w", err)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("messages rows affected: %w", err)
			}
			inserted += int(affected)
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// CountForEvidence returns how many messages are stored for an evidence item.
func (s *Store) CountForEvidence(ctx context.Context, evidenceID string) (int, error) {
	var count int
	row := s.jobs.Reader().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE evidence_id = ?`, evidenceID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// ListForEvidence returns stored messages for an evidence item in insertion
// order, capped at limit (0 means no cap).
func (s *Store) ListForEvidence(ctx context.Context, evidenceID string, limit int) ([]Stored, error) {
	query := `SELECT id, case_id, evidence_id, source, sender, recipient, sent_at_utc, body
		FROM messages WHERE evidence_id = ? ORDER BY id`
	args := []any{evidenceID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	result, err := s.jobs.Reader().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer result.Close()

	var rows []Stored
	for result.Next() {
		var stored Stored
		var caseID, source, sender, recipient, sentAt, body sql.NullString
		if err := result.Scan(&stored.ID, &caseID, &stored.EvidenceID,
			&source, &sender, &recipient, &sentAt, &body); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		stored.CaseID = caseID.String
		stored.Source = source.String
		stored.Sender = sender.String
		stored.Recipient = recipient.String
		stored.SentAt = sentAt.String
		stored.Body = body.String
		rows = append(rows, stored)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return rows, nil
}

func normalizeField(value string) string {
	return strings.TrimSpace(value)
}
