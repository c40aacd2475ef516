package mapper

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"pricepipe/model"
)

// wideFixedColumns is the set of non-payer columns in the wide grammar.
// Any other standard_charge|… column is a payer rate column. Matching is
// by exact lower-cased name so payer names that merely contain one of
// these words are not excluded.
var wideFixedColumns = map[string]struct{}{
	"description":                     {},
	"code|1":                          {},
	"code|1|type":                     {},
	"code|2":                          {},
	"code|2|type":                     {},
	"code|3":                          {},
	"code|3|type":                     {},
	"code|4":                          {},
	"code|4|type":                     {},
	"modifiers":                       {},
	"setting":                         {},
	"billing_class":                   {},
	"drug_unit_of_measurement":        {},
	"drug_type_of_measurement":        {},
	"standard_charge|gross":           {},
	"standard_charge|discounted_cash": {},
	"standard_charge|min":             {},
	"standard_charge|max":             {},
	"additional_generic_notes":        {},
}

// payerColumn is one payer/plan rate column in a wide file. The payer and
// plan names come from the original-case header; the lookup index from the
// normalized one.
type payerColumn struct {
	idx   int
	payer string
	plan  string
}

// WideCSVMapper reads the wide CSV grammar: a two-row metadata region,
// then data column headers, then one row per charge item with payer rates
// fanned out across standard_charge|<payer>|<plan> columns.
type WideCSVMapper struct {
	log *zap.Logger
}

func NewWideCSVMapper(log *zap.Logger) *WideCSVMapper {
	if log == nil {
		log = zap.NewNop()
	}
	return &WideCSVMapper{log: log}
}

func (m *WideCSVMapper) Map(path string) (*model.TransparencyFile, error) {
	src, err := openDecoded(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	r := newCSVReader(src)

	meta, err := readMetaRegion(r)
	if err != nil {
		return nil, err
	}
	file, err := meta.fileStub(path)
	if err != nil {
		return nil, err
	}

	headers, colIdx, err := readDataHeaders(r)
	if err != nil {
		return nil, err
	}
	payerCols := m.extractPayerColumns(headers)

	rowNum := int64(3) // metadata region + column headers
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", rowNum+1, err)
		}
		rowNum++
		if emptyRow(row) {
			continue
		}

		item, ok := m.parseItem(row, colIdx, payerCols, rowNum)
		if !ok {
			continue
		}
		file.Items = append(file.Items, item)
	}

	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("canonical model: %w", err)
	}
	return file, nil
}

// extractPayerColumns finds the payer/plan rate columns: every
// standard_charge|… header not in the fixed set. Payer and plan are taken
// from the original-case header because those names are case-sensitive; a
// missing plan segment defaults to "Standard".
func (m *WideCSVMapper) extractPayerColumns(headers []string) []payerColumn {
	var cols []payerColumn
	for i, h := range headers {
		lower := strings.ToLower(h)
		if !strings.HasPrefix(lower, "standard_charge|") {
			continue
		}
		if _, fixed := wideFixedColumns[lower]; fixed {
			continue
		}
		parts := strings.Split(h, "|")
		if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
			m.log.Warn("skipping malformed payer column", zap.String("column", h))
			continue
		}
		pc := payerColumn{idx: i, payer: strings.TrimSpace(parts[1]), plan: "Standard"}
		if len(parts) > 2 {
			pc.plan = strings.TrimSpace(strings.Join(parts[2:], "|"))
		}
		cols = append(cols, pc)
	}
	return cols
}

func (m *WideCSVMapper) parseItem(row []string, colIdx map[string]int, payerCols []payerColumn, rowNum int64) (model.ChargeItem, bool) {
	desc := cellAt(row, colIdx, "description")
	if desc == "" {
		m.log.Warn("skipping row without description", zap.Int64("row", rowNum))
		return model.ChargeItem{}, false
	}

	item := model.ChargeItem{
		Description:          desc,
		Codes:                readCodes(row, colIdx, 4),
		GrossCharge:          optNumber(row, colIdx, "standard_charge|gross"),
		DiscountedCashCharge: optNumber(row, colIdx, "standard_charge|discounted_cash"),
		Setting:              optCell(row, colIdx, "setting"),
		BillingClass:         optCell(row, colIdx, "billing_class"),
		Modifiers:            splitModifiers(cellAt(row, colIdx, "modifiers")),
	}

	for _, pc := range payerCols {
		if pc.idx >= len(row) {
			continue
		}
		// Non-numeric or empty cells produce no rate; that is expected
		// for payers that did not negotiate this item.
		rate := parseNumber(row[pc.idx])
		if rate == nil {
			continue
		}
		if *rate < 0 {
			m.log.Warn("skipping negative payer rate",
				zap.Int64("row", rowNum),
				zap.String("payer", pc.payer),
				zap.Float64("rate", *rate))
			continue
		}
		plan := pc.plan
		item.PayerRates = append(item.PayerRates, model.PayerRate{
			PayerName:      pc.payer,
			PlanName:       &plan,
			NegotiatedRate: *rate,
			RateKind:       model.RateDollar,
		})
	}

	return item, true
}
