// Package evidence manages the case vault: imported source files, their
// recorded digests, and integrity re-verification.
package evidence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Job types handled by this package.
const (
	TypeImport = "evidence_import"
	TypeVerify = "evidence_verify"
)

// ImportPayload is the enqueue payload for an evidence import job.
type ImportPayload struct {
	SourcePath string `json:"source_path"`
}

// VerifyPayload is the enqueue payload for an evidence verify job. The
// expected digest defaults to the one recorded at import time.
type VerifyPayload struct {
	ExpectedSHA256 string `json:"expected_sha256,omitempty"`
}

// Manifest records provenance for one imported evidence item. It sits next
// to the imported file so the vault stays inspectable without the database.
type Manifest struct {
	CaseID        string `json:"case_id"`
	EvidenceID    string `json:"evidence_id"`
	Name          string `json:"name"`
	SizeBytes     int64  `json:"size_bytes"`
	SHA256        string `json:"sha256"`
	SourcePath    string `json:"source_path"`
	ImportedAtUTC string `json:"imported_at_utc"`
	Operator      string `json:"operator"`
}

// Vault lays out evidence under root as <case>/<evidence>/<original name>
// with a manifest.json sidecar per item.
type Vault struct {
	root string
}

// NewVault creates a vault rooted at dir.
func NewVault(dir string) *Vault {
	return &Vault{root: dir}
}

// Root returns the vault root directory.
func (v *Vault) Root() string {
	return v.root
}

// ItemDir returns the directory holding one evidence item.
func (v *Vault) ItemDir(caseID, evidenceID string) string {
	return filepath.Join(v.root, caseID, evidenceID)
}

// FilePath returns the vault location for an imported file.
func (v *Vault) FilePath(caseID, evidenceID, name string) string {
	return filepath.Join(v.ItemDir(caseID, evidenceID), name)
}

func (v *Vault) manifestPath(caseID, evidenceID string) string {
	return filepath.Join(v.ItemDir(caseID, evidenceID), "manifest.json")
}

// WriteManifest persists the manifest sidecar for an item.
func (v *Vault) WriteManifest(manifest Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	path := v.manifestPath(manifest.CaseID, manifest.EvidenceID)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads the manifest sidecar for an item.
func (v *Vault) ReadManifest(caseID, evidenceID string) (Manifest, error) {
	var manifest Manifest
	data, err := os.ReadFile(v.manifestPath(caseID, evidenceID))
	if err != nil {
		return manifest, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return manifest, fmt.Errorf("decode manifest: %w", err)
	}
	return manifest, nil
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
