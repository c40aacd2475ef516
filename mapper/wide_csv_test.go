package mapper

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pricepipe/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const wideCSV = `hospital_name,hospital_location,last_updated_on,version
Acme,12 Main St,2024-01-15,2.0.0
description,setting,code|1,code|1|type,standard_charge|gross,standard_charge|discounted_cash,standard_charge|Aetna|PPO,standard_charge|Cigna|HMO
Office visit level 3,outpatient,99213,CPT,100.0,80.0,75.0,
`

func TestWideCSVMapper(t *testing.T) {
	path := writeFile(t, "wide.csv", wideCSV)

	file, err := NewWideCSVMapper(nil).Map(path)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}

	if file.HospitalName != "Acme" {
		t.Errorf("hospital_name = %q, want %q", file.HospitalName, "Acme")
	}
	if file.HospitalLocation == nil || *file.HospitalLocation != "12 Main St" {
		t.Errorf("hospital_location = %v, want %q", file.HospitalLocation, "12 Main St")
	}
	if got := file.LastUpdatedOn.Format("2006-01-02"); got != "2024-01-15" {
		t.Errorf("last_updated_on = %s, want 2024-01-15", got)
	}
	if file.Version == nil || *file.Version != "2.0.0" {
		t.Errorf("version = %v, want 2.0.0", file.Version)
	}

	if len(file.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(file.Items))
	}
	item := file.Items[0]
	if item.Description != "Office visit level 3" {
		t.Errorf("description = %q", item.Description)
	}
	if item.GrossCharge == nil || *item.GrossCharge != 100.0 {
		t.Errorf("gross_charge = %v, want 100", item.GrossCharge)
	}
	if item.DiscountedCashCharge == nil || *item.DiscountedCashCharge != 80.0 {
		t.Errorf("discounted_cash_charge = %v, want 80", item.DiscountedCashCharge)
	}
	if len(item.Codes) != 1 || item.Codes[0].Code == nil || *item.Codes[0].Code != "99213" {
		t.Errorf("codes = %v, want one code 99213", item.Codes)
	}

	// The empty Cigna column yields no rate and no error.
	if len(item.PayerRates) != 1 {
		t.Fatalf("payer_rates = %d, want 1", len(item.PayerRates))
	}
	rate := item.PayerRates[0]
	if rate.PayerName != "Aetna" {
		t.Errorf("payer_name = %q, want Aetna", rate.PayerName)
	}
	if rate.PlanName == nil || *rate.PlanName != "PPO" {
		t.Errorf("plan_name = %v, want PPO", rate.PlanName)
	}
	if rate.NegotiatedRate != 75.0 {
		t.Errorf("negotiated_rate = %f, want 75", rate.NegotiatedRate)
	}
	if rate.RateKind != model.RateDollar {
		t.Errorf("rate_kind = %q, want dollar", rate.RateKind)
	}
}

func TestWideCSVMapperPreservesPayerCase(t *testing.T) {
	content := `hospital_name,last_updated_on
Acme,2024-01-15
Description,Standard_Charge|Gross,Standard_Charge|UnitedHealthcare|Choice Plus
MRI BRAIN,3500,2200
`
	path := writeFile(t, "case.csv", content)

	file, err := NewWideCSVMapper(nil).Map(path)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if len(file.Items) != 1 || len(file.Items[0].PayerRates) != 1 {
		t.Fatalf("unexpected shape: %+v", file.Items)
	}
	rate := file.Items[0].PayerRates[0]
	// Structural prefix matching is case-insensitive, but the payer/plan
	// names keep their original case.
	if rate.PayerName != "UnitedHealthcare" {
		t.Errorf("payer_name = %q, want UnitedHealthcare", rate.PayerName)
	}
	if rate.PlanName == nil || *rate.PlanName != "Choice Plus" {
		t.Errorf("plan_name = %v, want Choice Plus", rate.PlanName)
	}
	if file.Items[0].GrossCharge == nil || *file.Items[0].GrossCharge != 3500 {
		t.Errorf("gross_charge = %v, want 3500", file.Items[0].GrossCharge)
	}
}

func TestWideCSVMapperPlanDefaultsToStandard(t *testing.T) {
	content := `hospital_name,last_updated_on
Acme,2024-01-15
description,standard_charge|Medicare
Cast application,450.25
`
	path := writeFile(t, "noplan.csv", content)

	file, err := NewWideCSVMapper(nil).Map(path)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	rates := file.Items[0].PayerRates
	if len(rates) != 1 {
		t.Fatalf("payer_rates = %d, want 1", len(rates))
	}
	if rates[0].PlanName == nil || *rates[0].PlanName != "Standard" {
		t.Errorf("plan_name = %v, want Standard", rates[0].PlanName)
	}
}

func TestWideCSVMapperNonNumericRateDropped(t *testing.T) {
	content := `hospital_name,last_updated_on
Acme,2024-01-15
description,standard_charge|gross,standard_charge|Aetna|PPO
X-RAY CHEST,250.00,N/A
`
	path := writeFile(t, "nonnum.csv", content)

	file, err := NewWideCSVMapper(nil).Map(path)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	item := file.Items[0]
	if len(item.PayerRates) != 0 {
		t.Errorf("payer_rates = %v, want none (N/A dropped, not coerced)", item.PayerRates)
	}
	if item.GrossCharge == nil || *item.GrossCharge != 250.0 {
		t.Errorf("gross_charge = %v, want 250", item.GrossCharge)
	}
}

func TestWideCSVMapperCurrencyFormatting(t *testing.T) {
	content := `hospital_name,last_updated_on
Acme,2024-01-15
description,standard_charge|gross,standard_charge|Aetna|PPO
HEART TRANSPLANT,"$500,000.00","$320,000.50"
`
	path := writeFile(t, "currency.csv", content)

	file, err := NewWideCSVMapper(nil).Map(path)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	item := file.Items[0]
	if item.GrossCharge == nil || *item.GrossCharge != 500000.0 {
		t.Errorf("gross_charge = %v, want 500000", item.GrossCharge)
	}
	if len(item.PayerRates) != 1 || item.PayerRates[0].NegotiatedRate != 320000.50 {
		t.Errorf("payer_rates = %v, want one rate 320000.50", item.PayerRates)
	}
}

func TestWideCSVMapperBadDateIsFatal(t *testing.T) {
	content := `hospital_name,last_updated_on
Acme,sometime in 2024
description,standard_charge|gross
X-RAY CHEST,250.00
`
	path := writeFile(t, "baddate.csv", content)

	_, err := NewWideCSVMapper(nil).Map(path)
	if err == nil {
		t.Fatal("expected hard failure for unparsable date")
	}
	if !strings.Contains(err.Error(), "last_updated_on") && !strings.Contains(err.Error(), "date") {
		t.Errorf("error %q does not mention the date", err)
	}
}

func TestWideCSVMapperMissingMetadataIsFatal(t *testing.T) {
	content := `hospital_location,version
Somewhere,2.0.0
description,standard_charge|gross
X-RAY CHEST,250.00
`
	path := writeFile(t, "nometa.csv", content)

	_, err := NewWideCSVMapper(nil).Map(path)
	if err == nil {
		t.Fatal("expected hard failure for missing hospital_name")
	}
}

func TestWideCSVMapperSkipsRowsWithoutDescription(t *testing.T) {
	content := `hospital_name,last_updated_on
Acme,2024-01-15
description,standard_charge|gross
,100.00
MRI BRAIN,3500.00
`
	path := writeFile(t, "nodesc.csv", content)

	file, err := NewWideCSVMapper(nil).Map(path)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if len(file.Items) != 1 || file.Items[0].Description != "MRI BRAIN" {
		t.Errorf("items = %+v, want only MRI BRAIN", file.Items)
	}
}

func TestWideCSVMapperModifiers(t *testing.T) {
	content := `hospital_name,last_updated_on
Acme,2024-01-15
description,modifiers,standard_charge|gross
Fracture care,26|59,800.00
`
	path := writeFile(t, "mods.csv", content)

	file, err := NewWideCSVMapper(nil).Map(path)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	mods := file.Items[0].Modifiers
	if len(mods) != 2 || mods[0] != "26" || mods[1] != "59" {
		t.Errorf("modifiers = %v, want [26 59]", mods)
	}
}
