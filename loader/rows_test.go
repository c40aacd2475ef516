package loader

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/parquet-go/parquet-go"

	"pricepipe/model"
)

func strPtr(s string) *string { return &s }

func f64Ptr(f float64) *float64 { return &f }

func mustDate(t *testing.T, s string) model.Date {
	t.Helper()
	d, err := model.ParseDate(s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

func expandFixture(t *testing.T) *model.TransparencyFile {
	t.Helper()
	return &model.TransparencyFile{
		HospitalName:     "Test General Hospital",
		HospitalLocation: strPtr("New York, NY"),
		LastUpdatedOn:    mustDate(t, "2024-01-15"),
		Version:          strPtr("2.0.0"),
		SourceFile:       "test_general.csv",
		Items: []model.ChargeItem{
			// Two payer rates of different kinds.
			{
				Description: "ECHOCARDIOGRAM COMPLETE",
				Codes: []model.BillingCode{
					{Code: strPtr("93306"), CodeType: strPtr("CPT")},
					{Code: strPtr("G0389"), CodeType: strPtr("HCPCS")},
				},
				Setting:     strPtr("outpatient"),
				GrossCharge: f64Ptr(1500),
				Modifiers:   []string{"26", "59"},
				PayerRates: []model.PayerRate{
					{PayerName: "Aetna", PlanName: strPtr("PPO"), NegotiatedRate: 900, RateKind: model.RateDollar},
					{PayerName: "Cigna", PlanName: strPtr("HMO"), NegotiatedRate: 65, RateKind: model.RatePercentage},
				},
			},
			// No payer rates at all.
			{
				Description:          "HEART TRANSPLANT WITH MCC",
				Codes:                []model.BillingCode{{Code: strPtr("001"), CodeType: strPtr("MS-DRG")}},
				GrossCharge:          f64Ptr(500000),
				DiscountedCashCharge: f64Ptr(250000),
			},
			// Rate kind the relational value columns cannot represent.
			{
				Description: "OBSERVATION PER DIEM",
				PayerRates: []model.PayerRate{
					{PayerName: "UnitedHealthcare", NegotiatedRate: 1200, RateKind: model.RateOther},
				},
			},
		},
	}
}

func TestExpandFanOut(t *testing.T) {
	rows := Expand(expandFixture(t), "h-100")

	// 2 rates + 1 rate-less + 1 "other" rate = 4 rows.
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}
	for i, r := range rows {
		if r.HospitalID != "h-100" {
			t.Errorf("row %d hospital_id = %q, want h-100", i, r.HospitalID)
		}
		if r.HospitalName != "Test General Hospital" {
			t.Errorf("row %d hospital_name = %q", i, r.HospitalName)
		}
		if r.LastUpdatedOn != "2024-01-15" {
			t.Errorf("row %d last_updated_on = %q", i, r.LastUpdatedOn)
		}
		if r.SourceFile != "test_general.csv" {
			t.Errorf("row %d source_file = %q", i, r.SourceFile)
		}
	}
}

func TestExpandRateKindColumns(t *testing.T) {
	rows := Expand(expandFixture(t), "h-100")

	dollar := rows[0]
	if dollar.NegotiatedDollar == nil || *dollar.NegotiatedDollar != 900 {
		t.Errorf("dollar row negotiated_dollar = %v, want 900", dollar.NegotiatedDollar)
	}
	if dollar.NegotiatedPercentage != nil {
		t.Errorf("dollar row negotiated_percentage = %v, want nil", *dollar.NegotiatedPercentage)
	}
	if dollar.RateKind == nil || *dollar.RateKind != "dollar" {
		t.Errorf("dollar row rate_kind = %v", dollar.RateKind)
	}

	pct := rows[1]
	if pct.NegotiatedPercentage == nil || *pct.NegotiatedPercentage != 65 {
		t.Errorf("percentage row negotiated_percentage = %v, want 65", pct.NegotiatedPercentage)
	}
	if pct.NegotiatedDollar != nil {
		t.Errorf("percentage row negotiated_dollar = %v, want nil", *pct.NegotiatedDollar)
	}

	// "other" keeps the kind but fills neither value column.
	other := rows[3]
	if other.RateKind == nil || *other.RateKind != "other" {
		t.Errorf("other row rate_kind = %v", other.RateKind)
	}
	if other.NegotiatedDollar != nil || other.NegotiatedPercentage != nil {
		t.Error("other row populated a value column")
	}
}

func TestExpandRatelessItem(t *testing.T) {
	rows := Expand(expandFixture(t), "h-100")

	r := rows[2]
	if r.Description != "HEART TRANSPLANT WITH MCC" {
		t.Fatalf("row 2 description = %q", r.Description)
	}
	if r.PayerName != nil || r.PlanName != nil || r.RateKind != nil {
		t.Error("rate-less row carries payer fields")
	}
	if r.GrossCharge == nil || *r.GrossCharge != 500000 {
		t.Errorf("gross_charge = %v, want 500000", r.GrossCharge)
	}
	if r.DiscountedCashCharge == nil || *r.DiscountedCashCharge != 250000 {
		t.Errorf("discounted_cash_charge = %v, want 250000", r.DiscountedCashCharge)
	}
}

func TestExpandPrimaryCodeOnly(t *testing.T) {
	rows := Expand(expandFixture(t), "h-100")

	r := rows[0]
	if r.Code == nil || *r.Code != "93306" {
		t.Errorf("code = %v, want primary 93306", r.Code)
	}
	if r.CodeType == nil || *r.CodeType != "CPT" {
		t.Errorf("code_type = %v, want CPT", r.CodeType)
	}
	if r.Modifiers == nil || *r.Modifiers != "26|59" {
		t.Errorf("modifiers = %v, want 26|59", r.Modifiers)
	}
}

func TestExpandDeterministic(t *testing.T) {
	a := Expand(expandFixture(t), "h-100")
	b := Expand(expandFixture(t), "h-100")
	if !reflect.DeepEqual(a, b) {
		t.Error("two expansions of the same model differ")
	}
}

func TestColumnsMatchRowValues(t *testing.T) {
	row := Expand(expandFixture(t), "h-100")[0]
	vals, err := row.values("h-100")
	if err != nil {
		t.Fatalf("values: %v", err)
	}
	if len(vals) != len(Columns()) {
		t.Errorf("values = %d entries, columns = %d", len(vals), len(Columns()))
	}
}

func TestParquetRoundTrip(t *testing.T) {
	rows := Expand(expandFixture(t), "h-100")
	path := filepath.Join(t.TempDir(), "charges.parquet")

	w, err := NewRowWriter(path)
	if err != nil {
		t.Fatalf("NewRowWriter: %v", err)
	}
	if _, err := w.Write(rows); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if w.Count() != len(rows) {
		t.Errorf("Count = %d, want %d", w.Count(), len(rows))
	}

	got, err := parquet.ReadFile[ChargeRow](path)
	if err != nil {
		t.Fatalf("read parquet: %v", err)
	}
	if len(got) != len(rows) {
		t.Fatalf("read %d rows, want %d", len(got), len(rows))
	}
	if got[0].Description != rows[0].Description {
		t.Errorf("description = %q, want %q", got[0].Description, rows[0].Description)
	}
	if got[0].NegotiatedDollar == nil || *got[0].NegotiatedDollar != 900 {
		t.Errorf("negotiated_dollar = %v, want 900", got[0].NegotiatedDollar)
	}
}
