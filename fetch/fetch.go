// Package fetch defines the boundary with the retrieval layer. The
// pipeline only needs something that turns a source URL into a local
// immutable blob; actual network retrieval lives outside this module.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Blob is one retrieved raw file: an immutable local copy with its content
// hash and retrieval timestamp.
type Blob struct {
	Path      string    `json:"path"`
	SHA256    string    `json:"sha256"`
	Bytes     int64     `json:"bytes"`
	SourceURL string    `json:"source_url"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Fetcher produces a local blob for a source URL.
type Fetcher interface {
	Fetch(ctx context.Context, sourceURL string) (Blob, error)
}

// FileFetcher resolves file:// URLs (or bare paths) by copying the source
// into a raw-data directory, hashing it on the way. It backs tests and
// offline runs; HTTP retrieval is an external collaborator.
type FileFetcher struct {
	rawDir string
}

func NewFileFetcher(rawDir string) (*FileFetcher, error) {
	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		return nil, fmt.Errorf("create raw dir %s: %w", rawDir, err)
	}
	return &FileFetcher{rawDir: rawDir}, nil
}

func (f *FileFetcher) Fetch(ctx context.Context, sourceURL string) (Blob, error) {
	if err := ctx.Err(); err != nil {
		return Blob{}, err
	}

	srcPath := sourceURL
	if u, err := url.Parse(sourceURL); err == nil && u.Scheme == "file" {
		srcPath = u.Path
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return Blob{}, fmt.Errorf("open source %s: %w", srcPath, err)
	}
	defer src.Close()

	dest := filepath.Join(f.rawDir, filepath.Base(srcPath))
	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return Blob{}, fmt.Errorf("create %s: %w", tmp, err)
	}

	hash := sha256.New()
	n, err := io.Copy(io.MultiWriter(out, hash), src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return Blob{}, fmt.Errorf("copy %s: %w", srcPath, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return Blob{}, fmt.Errorf("rename %s: %w", tmp, err)
	}

	blob := Blob{
		Path:      dest,
		SHA256:    hex.EncodeToString(hash.Sum(nil)),
		Bytes:     n,
		SourceURL: sourceURL,
		FetchedAt: time.Now().UTC(),
	}
	if err := writeMeta(dest, blob); err != nil {
		return Blob{}, err
	}
	return blob, nil
}

// writeMeta records retrieval provenance next to the blob so a raw file on
// disk can always be traced back to its source.
func writeMeta(blobPath string, blob Blob) error {
	data, err := json.MarshalIndent(blob, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal blob metadata: %w", err)
	}
	metaPath := blobPath + ".meta.json"
	if err := os.WriteFile(metaPath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", metaPath, err)
	}
	return nil
}

// IsLocal reports whether a source URL is resolvable by FileFetcher.
func IsLocal(sourceURL string) bool {
	return !strings.Contains(sourceURL, "://") || strings.HasPrefix(sourceURL, "file://")
}
