// Package staging persists canonical models as durable intermediate JSON
// artifacts, one per hospital identifier. Artifacts are disposable
// re-derivable caches, not the system of record: a rerun of the mapping
// stage overwrites them in place.
package staging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pricepipe/model"
)

// Store reads and writes staging artifacts under one directory.
type Store struct {
	dir string
}

// NewStore creates the staging directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// ArtifactPath returns the staging artifact path for a hospital id.
func (s *Store) ArtifactPath(hospitalID string) string {
	return filepath.Join(s.dir, hospitalID+".json")
}

// Write serializes a canonical model to the hospital's staging artifact,
// replacing any prior artifact for the same identifier. Null-valued
// optional fields are elided; required fields are present even when they
// are empty lists. The write is atomic (temp file + rename) so a crash
// never leaves a truncated artifact behind.
func (s *Store) Write(file *model.TransparencyFile, hospitalID string) (string, error) {
	if err := file.Validate(); err != nil {
		return "", fmt.Errorf("stage %s: %w", hospitalID, err)
	}
	if file.Items == nil {
		// Required list: serialize as [] rather than null.
		file.Items = []model.ChargeItem{}
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return "", fmt.Errorf("stage %s: marshal: %w", hospitalID, err)
	}

	path := s.ArtifactPath(hospitalID)
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("stage %s: write: %w", hospitalID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("stage %s: rename: %w", hospitalID, err)
	}
	return path, nil
}

// Read loads and validates the hospital's staging artifact.
func (s *Store) Read(hospitalID string) (*model.TransparencyFile, error) {
	path := s.ArtifactPath(hospitalID)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", path, err)
	}
	var file model.TransparencyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse artifact %s: %w", path, err)
	}
	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("artifact %s: %w", path, err)
	}
	return &file, nil
}

// WriteUnsupportedHeaders writes the diagnostic sidecar for a file that
// failed format detection: a plain-text list of the normalized headers,
// named to associate it with the hospital. Returns the sidecar path.
func (s *Store) WriteUnsupportedHeaders(hospitalID string, headers []string) (string, error) {
	path := filepath.Join(s.dir, hospitalID+"__UNSUPPORTED_HEADERS.txt")
	body := "Unsupported header set:\n" + strings.Join(headers, "\n") + "\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("write sidecar %s: %w", path, err)
	}
	return path, nil
}
