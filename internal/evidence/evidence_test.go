package evidence_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"

	"casework/internal/evidence"
	"casework/internal/jobs"
	"casework/internal/logging"
	"casework/internal/runner"
	"casework/internal/testsupport"
)

func importJob(t *testing.T, sourcePath string) *jobs.Record {
	t.Helper()
	payload, err := json.Marshal(evidence.ImportPayload{SourcePath: sourcePath})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &jobs.Record{
		ID:       "job-import",
		Type:     evidence.TypeImport,
		Scope:    jobs.Scope{CaseID: "case-7", EvidenceID: "ev-3"},
		Payload:  payload,
		Operator: "test-operator",
	}
}

func TestImportCopiesHashesAndWritesManifest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	vault := evidence.NewVault(cfg.Paths.VaultDir)

	content := bytes.Repeat([]byte("forensic image bytes\n"), 2048)
	source := testsupport.WriteFile(t, t.TempDir(), "disk.img", content)
	wantDigest := sha256.Sum256(content)

	handler := evidence.NewImportHandler(vault, logging.NewNop())
	var fractions []float64
	result, err := handler.Run(context.Background(), importJob(t, source), func(fraction float64, message string) {
		fractions = append(fractions, fraction)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantHex := hex.EncodeToString(wantDigest[:])
	wantSummary := fmt.Sprintf("Imported disk.img (%d bytes, sha256 %s)", len(content), wantHex[:12])
	if result.Summary != wantSummary {
		t.Fatalf("summary = %q, want %q", result.Summary, wantSummary)
	}
	if result.Counters["bytes_copied"] != int64(len(content)) {
		t.Fatalf("bytes_copied = %d", result.Counters["bytes_copied"])
	}
	if len(fractions) == 0 || fractions[len(fractions)-1] != 1.0 {
		t.Fatalf("progress fractions = %v, want final 1.0", fractions)
	}

	copied, err := os.ReadFile(vault.FilePath("case-7", "ev-3", "disk.img"))
	if err != nil {
		t.Fatalf("read vault copy: %v", err)
	}
	if !bytes.Equal(copied, content) {
		t.Fatal("vault copy differs from source")
	}

	manifest, err := vault.ReadManifest("case-7", "ev-3")
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if manifest.SHA256 != wantHex {
		t.Fatalf("manifest sha256 = %s, want %s", manifest.SHA256, wantHex)
	}
	if manifest.SizeBytes != int64(len(content)) || manifest.Name != "disk.img" {
		t.Fatalf("manifest = %+v", manifest)
	}
	if manifest.Operator != "test-operator" {
		t.Fatalf("manifest operator = %q", manifest.Operator)
	}
}

func TestImportRejectsMissingSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	handler := evidence.NewImportHandler(evidence.NewVault(cfg.Paths.VaultDir), logging.NewNop())

	_, err := handler.Run(context.Background(), importJob(t, "/nonexistent/file.img"), nil)
	if err == nil {
		t.Fatal("import of missing source succeeded")
	}
}

func TestImportRejectsDuplicateVaultEntry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	vault := evidence.NewVault(cfg.Paths.VaultDir)
	handler := evidence.NewImportHandler(vault, logging.NewNop())

	source := testsupport.WriteFile(t, t.TempDir(), "disk.img", []byte("payload"))
	if _, err := handler.Run(context.Background(), importJob(t, source), nil); err != nil {
		t.Fatalf("first import: %v", err)
	}
	if _, err := handler.Run(context.Background(), importJob(t, source), nil); err == nil {
		t.Fatal("second import into the same slot succeeded")
	}
}

func TestImportCanceledRemovesPartialFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	vault := evidence.NewVault(cfg.Paths.VaultDir)
	handler := evidence.NewImportHandler(vault, logging.NewNop())

	source := testsupport.WriteFile(t, t.TempDir(), "disk.img", bytes.Repeat([]byte("x"), 4096))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := handler.Run(ctx, importJob(t, source), nil); err == nil {
		t.Fatal("canceled import succeeded")
	}
	if _, err := os.Stat(vault.FilePath("case-7", "ev-3", "disk.img")); !os.IsNotExist(err) {
		t.Fatalf("partial vault file left behind: %v", err)
	}
}

func TestVerifyMatchesRecordedDigest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	vault := evidence.NewVault(cfg.Paths.VaultDir)

	source := testsupport.WriteFile(t, t.TempDir(), "report.pdf", []byte("case report body"))
	importer := evidence.NewImportHandler(vault, logging.NewNop())
	if _, err := importer.Run(context.Background(), importJob(t, source), nil); err != nil {
		t.Fatalf("import: %v", err)
	}

	verifier := evidence.NewVerifyHandler(vault, logging.NewNop())
	result, err := verifier.Run(context.Background(), &jobs.Record{
		ID:    "job-verify",
		Type:  evidence.TypeVerify,
		Scope: jobs.Scope{CaseID: "case-7", EvidenceID: "ev-3"},
	}, nil)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !strings.HasPrefix(result.Summary, "Verified report.pdf (sha256 ") {
		t.Fatalf("summary = %q", result.Summary)
	}
}

func TestVerifyFailsOnTamperedFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	vault := evidence.NewVault(cfg.Paths.VaultDir)

	source := testsupport.WriteFile(t, t.TempDir(), "notes.txt", []byte("original contents"))
	importer := evidence.NewImportHandler(vault, logging.NewNop())
	if _, err := importer.Run(context.Background(), importJob(t, source), nil); err != nil {
		t.Fatalf("import: %v", err)
	}

	tampered := vault.FilePath("case-7", "ev-3", "notes.txt")
	if err := os.WriteFile(tampered, []byte("edited contents!"), 0o644); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	verifier := evidence.NewVerifyHandler(vault, logging.NewNop())
	_, err := verifier.Run(context.Background(), &jobs.Record{
		ID:    "job-verify",
		Type:  evidence.TypeVerify,
		Scope: jobs.Scope{CaseID: "case-7", EvidenceID: "ev-3"},
	}, nil)
	if err == nil {
		t.Fatal("verify of tampered file succeeded")
	}
	if !strings.Contains(err.Error(), "digest mismatch") {
		t.Fatalf("error = %v", err)
	}
}

var _ runner.Handler = (*evidence.ImportHandler)(nil)
var _ runner.Handler = (*evidence.VerifyHandler)(nil)
var _ runner.PayloadRequirer = (*evidence.ImportHandler)(nil)
