package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"casework/internal/jobs"
	"casework/internal/logging"
	"casework/internal/runner"
)

const copyChunkSize = 1 << 20

// digestPrefixLen is how much of the hex digest appears in summaries; the
// full digest lives in the manifest.
const digestPrefixLen = 12

// ImportHandler copies a source file into the vault, hashing while copying,
// and records a manifest with the digest and provenance.
type ImportHandler struct {
	vault  *Vault
	logger *slog.Logger
}

// NewImportHandler constructs the evidence_import handler.
func NewImportHandler(vault *Vault, logger *slog.Logger) *ImportHandler {
	return &ImportHandler{
		vault:  vault,
		logger: logging.NewComponentLogger(logger, "evidence-import"),
	}
}

func (h *ImportHandler) Type() string { return TypeImport }

// RequiresPayload reports that import jobs need a source path to copy from.
func (h *ImportHandler) RequiresPayload() bool { return true }

func (h *ImportHandler) Run(ctx context.Context, job *jobs.Record, progress runner.ProgressFunc) (runner.Result, error) {
	var payload ImportPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return runner.Result{}, fmt.Errorf("decode import payload: %w", err)
	}
	if payload.SourcePath == "" {
		return runner.Result{}, errors.New("import payload missing source_path")
	}
	if job.Scope.CaseID == "" || job.Scope.EvidenceID == "" {
		return runner.Result{}, errors.New("evidence import requires case and evidence identifiers")
	}

	info, err := os.Stat(payload.SourcePath)
	if err != nil {
		return runner.Result{}, fmt.Errorf("stat source: %w", err)
	}
	if !info.Mode().IsRegular() {
		return runner.Result{}, fmt.Errorf("source %s is not a regular file", payload.SourcePath)
	}
	total := info.Size()
	name := filepath.Base(payload.SourcePath)

	itemDir := h.vault.ItemDir(job.Scope.CaseID, job.Scope.EvidenceID)
	if err := os.MkdirAll(itemDir, 0o755); err != nil {
		return runner.Result{}, fmt.Errorf("create vault directory: %w", err)
	}
	dest := h.vault.FilePath(job.Scope.CaseID, job.Scope.EvidenceID, name)
	if _, err := os.Stat(dest); err == nil {
		return runner.Result{}, fmt.Errorf("vault already holds %s for this evidence item", name)
	}

	digest, written, err := h.copyIntoVault(ctx, payload.SourcePath, dest, total, progress)
	if err != nil {
		return runner.Result{}, err
	}

	manifest := Manifest{
		CaseID:        job.Scope.CaseID,
		EvidenceID:    job.Scope.EvidenceID,
		Name:          name,
		SizeBytes:     written,
		SHA256:        digest,
		SourcePath:    payload.SourcePath,
		ImportedAtUTC: nowUTC(),
		Operator:      job.Operator,
	}
	if err := h.vault.WriteManifest(manifest); err != nil {
		_ = os.Remove(dest)
		return runner.Result{}, err
	}

	h.logger.Info("evidence imported",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("evidence_id", job.Scope.EvidenceID),
		logging.String("name", name),
		logging.Int64("bytes", written),
		logging.String("sha256", digest))

	return runner.Result{
		Summary:  fmt.Sprintf("Imported %s (%d bytes, sha256 %s)", name, written, digest[:digestPrefixLen]),
		Counters: map[string]int64{"bytes_copied": written},
	}, nil
}

// copyIntoVault streams source to dest through a SHA-256 hasher, reporting
// progress per chunk and honoring cancellation between chunks. A partial
// destination file is removed on any failure.
func (h *ImportHandler) copyIntoVault(ctx context.Context, source, dest string, total int64, progress runner.ProgressFunc) (string, int64, error) {
	in, err := os.Open(source)
	if err != nil {
		return "", 0, fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("create vault file: %w", err)
	}

	hasher := sha256.New()
	written, err := copyChunks(ctx, io.MultiWriter(out, hasher), in, total, progress)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && written != total {
		err = fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", total, written)
	}
	if err != nil {
		_ = os.Remove(dest)
		return "", 0, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), written, nil
}

// copyChunks copies src to dst in fixed chunks, checking ctx and reporting
// byte progress between chunks.
func copyChunks(ctx context.Context, dst io.Writer, src io.Reader, total int64, progress runner.ProgressFunc) (int64, error) {
	buf := make([]byte, copyChunkSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return written, writeErr
			}
			written += int64(n)
			reportBytes(progress, written, total)
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

func reportBytes(progress runner.ProgressFunc, done, total int64) {
	if progress == nil {
		return
	}
	fraction := 1.0
	if total > 0 {
		fraction = float64(done) / float64(total)
	}
	progress(fraction, fmt.Sprintf("copied %s of %s",
		humanize.Bytes(uint64(done)), humanize.Bytes(uint64(total))))
}

// hashFile computes the SHA-256 of path with chunked, cancellable reads.
func hashFile(ctx context.Context, path string, progress runner.ProgressFunc) (string, int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", 0, fmt.Errorf("stat vault file: %w", err)
	}
	file, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open vault file: %w", err)
	}
	defer file.Close()

	var hasher hash.Hash = sha256.New()
	read, err := copyChunks(ctx, hasher, file, info.Size(), progress)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), read, nil
}
