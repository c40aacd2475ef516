package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// Source is one row of the sources manifest: a hospital, where its file
// lives, and which mapper understands it.
type Source struct {
	HospitalID   string
	HospitalName string
	SourceURL    string
	MapperKey    string
	Enabled      bool
}

// ReadManifest parses a sources.csv manifest. Rows keep manifest order;
// a blank enabled flag counts as enabled.
func ReadManifest(path string) ([]Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read manifest header: %w", err)
	}
	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		colIdx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")))] = i
	}
	for _, required := range []string{"hospital_id", "source_url"} {
		if _, ok := colIdx[required]; !ok {
			return nil, fmt.Errorf("manifest %s: missing column %q", path, required)
		}
	}

	cell := func(row []string, col string) string {
		if i, ok := colIdx[col]; ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	var sources []Source
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read manifest rows: %w", err)
	}
	for _, row := range rows {
		s := Source{
			HospitalID:   cell(row, "hospital_id"),
			HospitalName: cell(row, "hospital_name"),
			SourceURL:    cell(row, "source_url"),
			MapperKey:    cell(row, "mapper_id"),
			Enabled:      enabledFlag(cell(row, "enabled")),
		}
		if s.HospitalID == "" {
			continue
		}
		sources = append(sources, s)
	}
	return sources, nil
}

func enabledFlag(v string) bool {
	switch strings.ToLower(v) {
	case "", "y", "yes", "1", "true":
		return true
	}
	return false
}
