// Package loader flattens canonical models into the relational row shape
// and loads them into PostgreSQL with delete-then-insert idempotency.
package loader

import (
	"strings"

	"pricepipe/model"
)

// ChargeRow is the flat relational row: one charge item × one payer rate
// (or the item alone when it has no rates). The field order mirrors the
// load column contract; every mapper variant populates the same superset,
// with explicit nils for fields it cannot fill.
type ChargeRow struct {
	HospitalID       string  `parquet:"hospital_id"`
	HospitalName     string  `parquet:"hospital_name"`
	HospitalLocation *string `parquet:"hospital_location,optional"`
	LastUpdatedOn    string  `parquet:"last_updated_on"`
	Version          *string `parquet:"version,optional"`

	Description  string  `parquet:"description"`
	Setting      *string `parquet:"setting,optional"`
	BillingClass *string `parquet:"billing_class,optional"`
	Code         *string `parquet:"code,optional"`
	CodeType     *string `parquet:"code_type,optional"`
	Modifiers    *string `parquet:"modifiers,optional"`

	GrossCharge          *float64 `parquet:"gross_charge,optional"`
	DiscountedCashCharge *float64 `parquet:"discounted_cash_charge,optional"`

	PayerName            *string  `parquet:"payer_name,optional"`
	PlanName             *string  `parquet:"plan_name,optional"`
	NegotiatedDollar     *float64 `parquet:"negotiated_dollar,optional"`
	NegotiatedPercentage *float64 `parquet:"negotiated_percentage,optional"`
	RateKind             *string  `parquet:"rate_kind,optional"`

	SourceFile string `parquet:"source_file"`
}

// Columns is the ordered column list the loader writes, identical for
// every hospital and mapper variant. This is the schema boundary with the
// relational store; table DDL is owned externally.
func Columns() []string {
	return []string{
		"hospital_id",
		"hospital_name",
		"hospital_location",
		"last_updated_on",
		"version",
		"description",
		"setting",
		"billing_class",
		"code",
		"code_type",
		"modifiers",
		"gross_charge",
		"discounted_cash_charge",
		"payer_name",
		"plan_name",
		"negotiated_dollar",
		"negotiated_percentage",
		"rate_kind",
		"source_file",
	}
}

// Expand flattens a canonical model into relational rows: one row per
// payer rate, or exactly one rate-less row for items without rates. Row
// order follows item then rate insertion order, so expansion is
// reproducible. Only the first billing code populates the code columns;
// additional codes are dropped (documented simplification).
func Expand(file *model.TransparencyFile, hospitalID string) []ChargeRow {
	var rows []ChargeRow
	for i := range file.Items {
		item := &file.Items[i]

		base := ChargeRow{
			HospitalID:           hospitalID,
			HospitalName:         file.HospitalName,
			HospitalLocation:     file.HospitalLocation,
			LastUpdatedOn:        file.LastUpdatedOn.Format("2006-01-02"),
			Version:              file.Version,
			Description:          item.Description,
			Setting:              item.Setting,
			BillingClass:         item.BillingClass,
			GrossCharge:          item.GrossCharge,
			DiscountedCashCharge: item.DiscountedCashCharge,
			SourceFile:           file.SourceFile,
		}
		if len(item.Codes) > 0 {
			base.Code = item.Codes[0].Code
			base.CodeType = item.Codes[0].CodeType
		}
		if len(item.Modifiers) > 0 {
			mods := strings.Join(item.Modifiers, "|")
			base.Modifiers = &mods
		}

		if len(item.PayerRates) == 0 {
			rows = append(rows, base)
			continue
		}

		for j := range item.PayerRates {
			rate := &item.PayerRates[j]

			row := base // struct copy
			payer := rate.PayerName
			row.PayerName = &payer
			row.PlanName = rate.PlanName
			kind := string(rate.RateKind)
			row.RateKind = &kind

			// The value lands in exactly one of the dollar/percentage
			// columns; "other" kinds land in neither.
			value := rate.NegotiatedRate
			switch rate.RateKind {
			case model.RateDollar:
				row.NegotiatedDollar = &value
			case model.RatePercentage:
				row.NegotiatedPercentage = &value
			}

			rows = append(rows, row)
		}
	}
	return rows
}
