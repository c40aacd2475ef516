// Package mapper converts raw hospital price transparency files in their
// vendor-specific formats into the canonical model. One mapper per known
// source grammar; a static registry resolves manifest format keys to
// mapper implementations.
package mapper

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"pricepipe/model"
)

// Format keys declared per hospital in the sources manifest.
const (
	KeyWideCSV = "wide_csv"
	KeyTallCSV = "cms_tall"
	KeyJSON    = "cms_json"
)

// ErrMapperNotFound is returned by Resolve for format keys with no
// registered mapper. It aborts only that hospital's processing, never the
// batch.
var ErrMapperNotFound = errors.New("no mapper registered for format key")

// Mapper transforms one raw source file into the canonical model. A
// returned error of type *DetectionError means the file does not match the
// mapper's grammar and should be skipped with a diagnostic sidecar rather
// than treated as a failure.
type Mapper interface {
	Map(path string) (*model.TransparencyFile, error)
}

// DetectionError reports a header set that failed format detection. It
// carries the normalized headers so the caller can write them to the
// unsupported-format sidecar.
type DetectionError struct {
	FormatKey string
	Headers   []string
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("%s: header set does not match format (%d columns seen)", e.FormatKey, len(e.Headers))
}

// Registry maps format keys to mapper implementations. It is populated at
// construction and safe for concurrent reads thereafter.
type Registry struct {
	mappers map[string]Mapper
}

// NewRegistry builds a registry with all built-in mappers registered.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{mappers: make(map[string]Mapper)}
	r.Register(KeyWideCSV, NewWideCSVMapper(log))
	r.Register(KeyTallCSV, NewTallCSVMapper(log))
	r.Register(KeyJSON, NewJSONMapper(log))
	return r
}

// Register adds or replaces the mapper for a format key.
func (r *Registry) Register(key string, m Mapper) {
	r.mappers[strings.TrimSpace(strings.ToLower(key))] = m
}

// Resolve returns the mapper for a format key. Unknown keys fail with
// ErrMapperNotFound.
func (r *Registry) Resolve(key string) (Mapper, error) {
	m, ok := r.mappers[strings.TrimSpace(strings.ToLower(key))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMapperNotFound, key)
	}
	return m, nil
}

// Keys returns the registered format keys, sorted.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.mappers))
	for k := range r.mappers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
