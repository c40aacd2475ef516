package mapper

import (
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"pricepipe/model"
)

// headerMeta holds hospital metadata parsed from a CSV header region.
type headerMeta struct {
	hospitalName     string
	hospitalLocation *string
	lastUpdatedOn    string
	version          *string
}

// readMetaRegion consumes the fixed-size header region shared by the wide
// and tall grammars — one row of metadata field names followed by one row
// of values — and extracts hospital metadata by field name. Column
// matching is case-insensitive. The tabular parser takes over on the row
// after the region, so format variants own their offsets instead of call
// sites hardcoding skip counts.
func readMetaRegion(r *csv.Reader) (headerMeta, error) {
	var meta headerMeta

	nameRow, err := r.Read()
	if err != nil {
		return meta, fmt.Errorf("read metadata field names: %w", err)
	}
	valueRow, err := r.Read()
	if err != nil {
		return meta, fmt.Errorf("read metadata values: %w", err)
	}

	for i, col := range nameRow {
		if i >= len(valueRow) {
			break
		}
		col = strings.TrimSpace(col)
		val := strings.TrimSpace(valueRow[i])

		switch {
		case strings.EqualFold(col, "hospital_name"):
			meta.hospitalName = val
		case strings.EqualFold(col, "hospital_location"):
			if val != "" {
				meta.hospitalLocation = &val
			}
		case strings.EqualFold(col, "last_updated_on"):
			meta.lastUpdatedOn = val
		case strings.EqualFold(col, "version"):
			if val != "" {
				meta.version = &val
			}
		}
	}
	return meta, nil
}

// fileStub converts the header metadata into the root canonical object.
// Missing or unparsable required metadata is a hard failure for the whole
// file: no partial canonical object is ever produced.
func (m headerMeta) fileStub(path string) (*model.TransparencyFile, error) {
	if m.hospitalName == "" {
		return nil, fmt.Errorf("header metadata: hospital_name is missing")
	}
	if m.lastUpdatedOn == "" {
		return nil, fmt.Errorf("header metadata: last_updated_on is missing")
	}
	date, err := model.ParseDate(m.lastUpdatedOn)
	if err != nil {
		return nil, fmt.Errorf("header metadata: %w", err)
	}
	return &model.TransparencyFile{
		HospitalName:     m.hospitalName,
		HospitalLocation: m.hospitalLocation,
		LastUpdatedOn:    date,
		Version:          m.version,
		SourceFile:       filepath.Base(path),
		Items:            []model.ChargeItem{},
	}, nil
}

// normalizeHeader trims spaces around each pipe-separated segment.
// "Standard_Charge| Gross" → "Standard_Charge|Gross"; case is preserved
// because payer and plan names embedded in wide headers are case-sensitive.
func normalizeHeader(h string) string {
	parts := strings.Split(h, "|")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return strings.Join(parts, "|")
}

// readDataHeaders reads the data column header row, returning the
// normalized original-case headers and a lowercase name → index map for
// structural lookups.
func readDataHeaders(r *csv.Reader) ([]string, map[string]int, error) {
	row, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read data column headers: %w", err)
	}
	headers := make([]string, len(row))
	colIdx := make(map[string]int, len(row))
	for i, h := range row {
		h = normalizeHeader(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")))
		headers[i] = h
		colIdx[strings.ToLower(h)] = i
	}
	return headers, colIdx, nil
}

func cellAt(row []string, colIdx map[string]int, col string) string {
	if i, ok := colIdx[col]; ok && i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

func optCell(row []string, colIdx map[string]int, col string) *string {
	if s := cellAt(row, colIdx, col); s != "" {
		return &s
	}
	return nil
}

// optNumber coerces a cell to a number. Empty, missing, or non-numeric
// values yield nil — a parse failure is never silently treated as zero.
func optNumber(row []string, colIdx map[string]int, col string) *float64 {
	if i, ok := colIdx[col]; ok && i < len(row) {
		return parseNumber(row[i])
	}
	return nil
}

func parseNumber(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "$", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// readCodes extracts code|N / code|N|type column pairs from a data row.
func readCodes(row []string, colIdx map[string]int, maxCodes int) []model.BillingCode {
	var codes []model.BillingCode
	for n := 1; n <= maxCodes; n++ {
		code := optCell(row, colIdx, fmt.Sprintf("code|%d", n))
		if code == nil {
			continue
		}
		codeType := optCell(row, colIdx, fmt.Sprintf("code|%d|type", n))
		codes = append(codes, model.BillingCode{Code: code, CodeType: codeType})
	}
	return codes
}

// splitModifiers splits a pipe-delimited modifiers cell into a list.
func splitModifiers(cell string) []string {
	if cell == "" {
		return nil
	}
	var mods []string
	for _, m := range strings.Split(cell, "|") {
		if m = strings.TrimSpace(m); m != "" {
			mods = append(mods, m)
		}
	}
	return mods
}

func newCSVReader(src interface{ Read(p []byte) (int, error) }) *csv.Reader {
	r := csv.NewReader(src)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	return r
}

// emptyRow reports a row that carries no data at all.
func emptyRow(row []string) bool {
	if len(row) == 0 {
		return true
	}
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
