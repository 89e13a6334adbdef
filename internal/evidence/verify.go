package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"casework/internal/jobs"
	"casework/internal/logging"
	"casework/internal/runner"
)

// VerifyHandler re-hashes a vault file and compares it against the digest
// recorded at import time. A mismatch fails the job: the vault copy can no
// longer be trusted.
type VerifyHandler struct {
	vault  *Vault
	logger *slog.Logger
}

// NewVerifyHandler constructs the evidence_verify handler.
func NewVerifyHandler(vault *Vault, logger *slog.Logger) *VerifyHandler {
	return &VerifyHandler{
		vault:  vault,
		logger: logging.NewComponentLogger(logger, "evidence-verify"),
	}
}

func (h *VerifyHandler) Type() string { return TypeVerify }

func (h *VerifyHandler) Run(ctx context.Context, job *jobs.Record, progress runner.ProgressFunc) (runner.Result, error) {
	var payload VerifyPayload
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return runner.Result{}, fmt.Errorf("decode verify payload: %w", err)
		}
	}
	if job.Scope.CaseID == "" || job.Scope.EvidenceID == "" {
		return runner.Result{}, errors.New("evidence verify requires case and evidence identifiers")
	}

	manifest, err := h.vault.ReadManifest(job.Scope.CaseID, job.Scope.EvidenceID)
	if err != nil {
		return runner.Result{}, err
	}
	expected := strings.ToLower(strings.TrimSpace(payload.ExpectedSHA256))
	if expected == "" {
		expected = manifest.SHA256
	}

	path := h.vault.FilePath(job.Scope.CaseID, job.Scope.EvidenceID, manifest.Name)
	digest, read, err := hashFile(ctx, path, progress)
	if err != nil {
		return runner.Result{}, err
	}
	if digest != expected {
		h.logger.Warn("evidence digest mismatch",
			logging.String(logging.FieldJobID, job.ID),
			logging.String("evidence_id", job.Scope.EvidenceID),
			logging.String("expected", expected),
			logging.String("actual", digest))
		return runner.Result{}, fmt.Errorf("digest mismatch for %s: expected sha256 %s, got %s",
			manifest.Name, expected, digest)
	}

	h.logger.Info("evidence verified",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("evidence_id", job.Scope.EvidenceID),
		logging.Int64("bytes", read))

	return runner.Result{
		Summary:  fmt.Sprintf("Verified %s (sha256 %s)", manifest.Name, digest[:digestPrefixLen]),
		Counters: map[string]int64{"bytes_hashed": read},
	}, nil
}
