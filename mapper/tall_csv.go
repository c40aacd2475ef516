package mapper

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"

	"pricepipe/model"
)

// Tall detection: the minimum column set a file must carry to be accepted
// as CMS tall. Anything else is a detection miss, reported as a skip with
// a diagnostic sidecar, not an error.
var (
	tallRequiredColumns = []string{"description", "payer_name", "plan_name"}
	tallChargeColumns   = []string{"standard_charge", "standard_charge|gross", "standard_charge|discounted_cash"}
)

// TallCSVMapper reads the CMS tall grammar: a two-row metadata region,
// then one data row per (item, payer, plan) tuple. Mapping is column
// renaming plus numeric coercion; adjacent rows describing the same item
// fold into one charge item with accumulated payer rates.
type TallCSVMapper struct {
	log *zap.Logger
}

func NewTallCSVMapper(log *zap.Logger) *TallCSVMapper {
	if log == nil {
		log = zap.NewNop()
	}
	return &TallCSVMapper{log: log}
}

func (m *TallCSVMapper) Map(path string) (*model.TransparencyFile, error) {
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

	_, colIdx, err := readDataHeaders(r)
	if err != nil {
		return nil, err
	}
	if err := detectTall(colIdx); err != nil {
		return nil, err
	}

	file, err := meta.fileStub(path)
	if err != nil {
		return nil, err
	}

	var (
		curKey  string
		curItem *model.ChargeItem
	)
	flush := func() {
		if curItem != nil {
			file.Items = append(file.Items, *curItem)
			curItem = nil
		}
	}

	rowNum := int64(3)
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

		item, ok := m.parseRow(row, colIdx, rowNum)
		if !ok {
			continue
		}

		key := tallItemKey(&item)
		if curItem == nil || key != curKey {
			flush()
			curKey = key
			curItem = &item
			continue
		}
		curItem.PayerRates = append(curItem.PayerRates, item.PayerRates...)
	}
	flush()

	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("canonical model: %w", err)
	}
	return file, nil
}

// detectTall checks the normalized header set against the minimum tall
// column set. On a miss it returns a DetectionError carrying the sorted
// header set for the diagnostic sidecar.
func detectTall(colIdx map[string]int) error {
	miss := func() error {
		headers := make([]string, 0, len(colIdx))
		for h := range colIdx {
			headers = append(headers, h)
		}
		sort.Strings(headers)
		return &DetectionError{FormatKey: KeyTallCSV, Headers: headers}
	}

	for _, col := range tallRequiredColumns {
		if _, ok := colIdx[col]; !ok {
			return miss()
		}
	}
	for _, col := range tallChargeColumns {
		if _, ok := colIdx[col]; ok {
			return nil
		}
	}
	return miss()
}

// parseRow maps one tall row to a single-rate charge item. Rows without a
// description are skipped with a warning; rows without a payer or without
// a parsable rate value contribute the item's base charges only.
func (m *TallCSVMapper) parseRow(row []string, colIdx map[string]int, rowNum int64) (model.ChargeItem, bool) {
	desc := cellAt(row, colIdx, "description")
	if desc == "" {
		m.log.Warn("skipping row without description", zap.Int64("row", rowNum))
		return model.ChargeItem{}, false
	}

	item := model.ChargeItem{
		Description:          desc,
		Codes:                readCodes(row, colIdx, 3),
		GrossCharge:          optNumber(row, colIdx, "standard_charge|gross"),
		DiscountedCashCharge: optNumber(row, colIdx, "standard_charge|discounted_cash"),
		Setting:              optCell(row, colIdx, "setting"),
		BillingClass:         optCell(row, colIdx, "billing_class"),
		Modifiers:            splitModifiers(cellAt(row, colIdx, "modifiers")),
	}

	payer := cellAt(row, colIdx, "payer_name")
	if payer == "" {
		return item, true
	}

	rate := optNumber(row, colIdx, "standard_charge")
	kind := model.RateDollar
	if rate == nil {
		rate = optNumber(row, colIdx, "standard_charge|percent")
		kind = model.RatePercentage
	}
	if rate == nil {
		// Payer named but no parsable rate value: keep the item, drop the rate.
		return item, true
	}
	if *rate < 0 {
		m.log.Warn("skipping negative payer rate",
			zap.Int64("row", rowNum),
			zap.String("payer", payer),
			zap.Float64("rate", *rate))
		return item, true
	}

	item.PayerRates = []model.PayerRate{{
		PayerName:      payer,
		PlanName:       optCell(row, colIdx, "plan_name"),
		NegotiatedRate: *rate,
		RateKind:       kind,
	}}
	return item, true
}

// tallItemKey identifies one charge item across adjacent tall rows.
func tallItemKey(item *model.ChargeItem) string {
	var b strings.Builder
	b.WriteString(item.Description)
	b.WriteByte('\t')
	for _, c := range item.Codes {
		if c.CodeType != nil {
			b.WriteString(*c.CodeType)
		}
		b.WriteByte(':')
		if c.Code != nil {
			b.WriteString(*c.Code)
		}
		b.WriteByte('|')
	}
	b.WriteByte('\t')
	if item.Setting != nil {
		b.WriteString(*item.Setting)
	}
	b.WriteByte('\t')
	if item.BillingClass != nil {
		b.WriteString(*item.BillingClass)
	}
	if item.GrossCharge != nil {
		fmt.Fprintf(&b, "\t%.6f", *item.GrossCharge)
	}
	if item.DiscountedCashCharge != nil {
		fmt.Fprintf(&b, "\t%.6f", *item.DiscountedCashCharge)
	}
	return b.String()
}
