package messages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"casework/internal/jobs"
	"casework/internal/logging"
	"casework/internal/runner"
)

// Job type handled by this package.
const TypeIngest = "messages_ingest"

// insertBatchSize bounds how many rows go into one write-gate admission so a
// large export cannot starve other writers.
const insertBatchSize = 100

// IngestPayload is the enqueue payload for a message ingest job.
type IngestPayload struct {
	SourcePath string `json:"source_path"`
	// Format is csv or json; inferred from the file extension when empty.
	Format string `json:"format,omitempty"`
}

// IngestHandler parses a message export and loads it into the messages
// table. Rows already present for the evidence item are skipped, so a
// re-run after a crash or cancel resumes cleanly.
type IngestHandler struct {
	store  *Store
	logger *slog.Logger
}

// NewIngestHandler constructs the messages_ingest handler.
func NewIngestHandler(store *Store, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{
		store:  store,
		logger: logging.NewComponentLogger(logger, "messages-ingest"),
	}
}

func (h *IngestHandler) Type() string { return TypeIngest }

// RequiresPayload reports that ingest jobs need an export path to parse.
func (h *IngestHandler) RequiresPayload() bool { return true }

func (h *IngestHandler) Run(ctx context.Context, job *jobs.Record, progress runner.ProgressFunc) (runner.Result, error) {
	var payload IngestPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return runner.Result{}, fmt.Errorf("decode ingest payload: %w", err)
	}
	if payload.SourcePath == "" {
		return runner.Result{}, errors.New("ingest payload missing source_path")
	}
	if job.Scope.EvidenceID == "" {
		return runner.Result{}, errors.New("message ingest requires an evidence identifier")
	}

	format := payload.Format
	if format == "" {
		detected, err := DetectFormat(payload.SourcePath)
		if err != nil {
			return runner.Result{}, err
		}
		format = detected
	}

	rows, err := ParseFile(payload.SourcePath, format)
	if err != nil {
		return runner.Result{}, err
	}
	total := len(rows)

	var inserted, processed int
	for start := 0; start < total; start += insertBatchSize {
		end := min(start+insertBatchSize, total)
		count, err := h.store.InsertBatch(ctx, job.Scope, job.ID, rows[start:end])
		if err != nil {
			return runner.Result{}, err
		}
		inserted += count
		processed = end
		if progress != nil {
			progress(float64(processed)/float64(total), fmt.Sprintf("%d/%d", processed, total))
		}
	}

	h.logger.Info("message export ingested",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("evidence_id", job.Scope.EvidenceID),
		logging.String("format", format),
		logging.Int("rows", total),
		logging.Int("inserted", inserted))

	return runner.Result{
		Summary: fmt.Sprintf("Extracted %d message(s).", inserted),
		Counters: map[string]int64{
			"rows_parsed":   int64(total),
			"rows_inserted": int64(inserted),
		},
	}, nil
}
