package mapper

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"pricepipe/model"
)

// JSONMapper streams a vendor JSON machine-readable file. Top-level keys
// carry the hospital metadata; standard_charge_information is an array of
// items decoded one at a time so only one item is in memory at once.
type JSONMapper struct {
	log *zap.Logger
}

func NewJSONMapper(log *zap.Logger) *JSONMapper {
	if log == nil {
		log = zap.NewNop()
	}
	return &JSONMapper{log: log}
}

// flexStrings accepts a JSON string or array of strings; vendors disagree
// on which hospital_location is.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*f = flexStrings{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*f = many
	return nil
}

type jsonPayer struct {
	PayerName                string   `json:"payer_name"`
	PlanName                 *string  `json:"plan_name,omitempty"`
	StandardChargeDollar     *float64 `json:"standard_charge_dollar,omitempty"`
	StandardChargePercentage *float64 `json:"standard_charge_percentage,omitempty"`
	NegotiatedRate           *float64 `json:"negotiated_rate,omitempty"`
	NegotiatedType           string   `json:"negotiated_type,omitempty"`
}

type jsonCharge struct {
	Setting           *string     `json:"setting,omitempty"`
	BillingClass      *string     `json:"billing_class,omitempty"`
	GrossCharge       *float64    `json:"gross_charge,omitempty"`
	DiscountedCash    *float64    `json:"discounted_cash,omitempty"`
	ModifierCode      []string    `json:"modifier_code,omitempty"`
	PayersInformation []jsonPayer `json:"payers_information,omitempty"`
}

type jsonCode struct {
	Code string `json:"code"`
	Type string `json:"type"`
}

type jsonItem struct {
	Description     string       `json:"description"`
	CodeInformation []jsonCode   `json:"code_information"`
	StandardCharges []jsonCharge `json:"standard_charges"`
}

func (m *JSONMapper) Map(path string) (*model.TransparencyFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	buf := bufio.NewReaderSize(file, 256*1024)
	if bom, err := buf.Peek(3); err == nil && len(bom) >= 3 && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		buf.Discard(3)
	}
	dec := json.NewDecoder(buf)

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read opening brace: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected '{', got %v", tok)
	}

	var (
		meta       headerMeta
		out        *model.TransparencyFile
		foundItems bool
	)

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read field name: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected string key, got %T", tok)
		}

		switch key {
		case "hospital_name":
			var v string
			if err := dec.Decode(&v); err != nil {
				return nil, fmt.Errorf("decode hospital_name: %w", err)
			}
			meta.hospitalName = v

		case "last_updated_on":
			var v string
			if err := dec.Decode(&v); err != nil {
				return nil, fmt.Errorf("decode last_updated_on: %w", err)
			}
			meta.lastUpdatedOn = v

		case "version":
			var v string
			if err := dec.Decode(&v); err != nil {
				return nil, fmt.Errorf("decode version: %w", err)
			}
			if v != "" {
				meta.version = &v
			}

		case "hospital_location", "location_name":
			var v flexStrings
			if err := dec.Decode(&v); err != nil {
				return nil, fmt.Errorf("decode %s: %w", key, err)
			}
			if len(v) > 0 {
				loc := strings.Join(v, "; ")
				meta.hospitalLocation = &loc
			}

		case "standard_charge_information":
			// Metadata keys precede the item array in every vendor file
			// seen so far; fail hard if they did not.
			out, err = meta.fileStub(path)
			if err != nil {
				return nil, err
			}
			if err := m.decodeItems(dec, out); err != nil {
				return nil, err
			}
			foundItems = true

		default:
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, fmt.Errorf("skip field %q: %w", key, err)
			}
		}
	}

	if !foundItems {
		out, err = meta.fileStub(path)
		if err != nil {
			return nil, err
		}
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("canonical model: %w", err)
	}
	return out, nil
}

func (m *JSONMapper) decodeItems(dec *json.Decoder, out *model.TransparencyFile) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read standard_charge_information '[': %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return fmt.Errorf("expected '[' for standard_charge_information, got %v", tok)
	}

	itemNum := int64(0)
	for dec.More() {
		var item jsonItem
		if err := dec.Decode(&item); err != nil {
			return fmt.Errorf("decode item %d: %w", itemNum+1, err)
		}
		itemNum++
		out.Items = append(out.Items, m.expandItem(&item, itemNum)...)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("read closing ']': %w", err)
	}
	return nil
}

// expandItem maps one vendor item to canonical charge items, one per
// standard_charges entry. Dollar and percentage values on the same payer
// entry become separate rates.
func (m *JSONMapper) expandItem(item *jsonItem, itemNum int64) []model.ChargeItem {
	if item.Description == "" {
		m.log.Warn("skipping item without description", zap.Int64("item", itemNum))
		return nil
	}

	var codes []model.BillingCode
	for _, ci := range item.CodeInformation {
		if ci.Code == "" {
			continue
		}
		code := ci.Code
		bc := model.BillingCode{Code: &code}
		if ci.Type != "" {
			t := ci.Type
			bc.CodeType = &t
		}
		codes = append(codes, bc)
	}

	charges := item.StandardCharges
	if len(charges) == 0 {
		charges = []jsonCharge{{}}
	}

	out := make([]model.ChargeItem, 0, len(charges))
	for i := range charges {
		sc := &charges[i]
		ci := model.ChargeItem{
			Description:          item.Description,
			Codes:                codes,
			GrossCharge:          sc.GrossCharge,
			DiscountedCashCharge: sc.DiscountedCash,
			Setting:              sc.Setting,
			BillingClass:         sc.BillingClass,
			Modifiers:            sc.ModifierCode,
		}
		for j := range sc.PayersInformation {
			ci.PayerRates = append(ci.PayerRates, m.payerRates(&sc.PayersInformation[j], itemNum)...)
		}
		out = append(out, ci)
	}
	return out
}

// payerRates converts one payer entry to zero or more canonical rates.
// Malformed entries are skipped with a warning, never fatal.
func (m *JSONMapper) payerRates(p *jsonPayer, itemNum int64) []model.PayerRate {
	if p.PayerName == "" {
		m.log.Warn("skipping payer entry without payer_name", zap.Int64("item", itemNum))
		return nil
	}

	add := func(rates []model.PayerRate, value float64, kind model.RateKind) []model.PayerRate {
		if value < 0 {
			m.log.Warn("skipping negative payer rate",
				zap.Int64("item", itemNum),
				zap.String("payer", p.PayerName),
				zap.Float64("rate", value))
			return rates
		}
		return append(rates, model.PayerRate{
			PayerName:      p.PayerName,
			PlanName:       p.PlanName,
			NegotiatedRate: value,
			RateKind:       kind,
		})
	}

	var rates []model.PayerRate
	if p.StandardChargeDollar != nil {
		rates = add(rates, *p.StandardChargeDollar, model.RateDollar)
	}
	if p.StandardChargePercentage != nil {
		rates = add(rates, *p.StandardChargePercentage, model.RatePercentage)
	}
	if p.NegotiatedRate != nil {
		kind := model.RateKind(p.NegotiatedType)
		if !kind.Valid() {
			kind = model.RateOther
		}
		rates = add(rates, *p.NegotiatedRate, kind)
	}
	return rates
}
