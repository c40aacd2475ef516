// Package model defines the canonical in-memory representation of one
// hospital's price transparency file. Every format mapper produces this
// shape; the staging and load layers consume nothing else.
//
// Based on the CMS.gov Hospital Price Transparency schema.
// See: https://github.com/CMSgov/hospital-price-transparency
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// RateKind classifies how a negotiated rate value is expressed.
type RateKind string

const (
	RateDollar     RateKind = "dollar"
	RatePercentage RateKind = "percentage"
	RateOther      RateKind = "other"
)

// Valid reports whether k is one of the known rate kinds.
func (k RateKind) Valid() bool {
	switch k {
	case RateDollar, RatePercentage, RateOther:
		return true
	}
	return false
}

// Date is a calendar date serialized as "2006-01-02" in staging artifacts.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// ParseDate parses a calendar date. "2006-01-02" is the CMS-mandated
// layout; "01/02/2006" shows up in the wild and is accepted as a fallback.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		t, err = time.Parse("01/02/2006", s)
		if err != nil {
			return Date{}, fmt.Errorf("parse date %q: %w", s, err)
		}
	}
	return Date{t}, nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// BillingCode is one billing code attached to a charge item. Hospitals
// publish anywhere from zero to several codes per item; the first present
// code is treated as primary during row expansion.
type BillingCode struct {
	Code     *string `json:"code,omitempty"`
	CodeType *string `json:"code_type,omitempty"`
}

// PayerRate is one negotiated price for one item under one payer/plan pair.
type PayerRate struct {
	PayerName      string   `json:"payer_name"`
	PlanName       *string  `json:"plan_name,omitempty"`
	NegotiatedRate float64  `json:"negotiated_rate"`
	RateKind       RateKind `json:"rate_kind"`
}

// ChargeItem is one billable service or item as published by the hospital.
type ChargeItem struct {
	Description          string        `json:"description"`
	Codes                []BillingCode `json:"codes,omitempty"`
	GrossCharge          *float64      `json:"gross_charge,omitempty"`
	DiscountedCashCharge *float64      `json:"discounted_cash_charge,omitempty"`
	PayerRates           []PayerRate   `json:"payer_rates,omitempty"`
	Setting              *string       `json:"setting,omitempty"`
	BillingClass         *string       `json:"billing_class,omitempty"`
	Modifiers            []string      `json:"modifiers,omitempty"`
}

// TransparencyFile is the root canonical object for one hospital's one
// snapshot. It is constructed once per mapper invocation, immutable after
// construction, serialized to staging exactly once, and discarded after
// row expansion.
type TransparencyFile struct {
	HospitalName     string       `json:"hospital_name"`
	HospitalLocation *string      `json:"hospital_location,omitempty"`
	LastUpdatedOn    Date         `json:"last_updated_on"`
	Version          *string      `json:"version,omitempty"`
	SourceFile       string       `json:"source_file"`
	Items            []ChargeItem `json:"items"`
}

// Validate checks the canonical invariants. Mappers call it before
// returning; the staging reader calls it again after deserialization so a
// hand-edited or truncated artifact cannot reach the loader.
func (f *TransparencyFile) Validate() error {
	if f.HospitalName == "" {
		return fmt.Errorf("hospital_name is required")
	}
	if f.LastUpdatedOn.IsZero() {
		return fmt.Errorf("last_updated_on is required")
	}
	for i := range f.Items {
		if err := f.Items[i].validate(); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

func (c *ChargeItem) validate() error {
	if c.Description == "" {
		return fmt.Errorf("description is required")
	}
	if c.GrossCharge != nil && *c.GrossCharge < 0 {
		return fmt.Errorf("gross_charge %f is negative", *c.GrossCharge)
	}
	if c.DiscountedCashCharge != nil && *c.DiscountedCashCharge < 0 {
		return fmt.Errorf("discounted_cash_charge %f is negative", *c.DiscountedCashCharge)
	}
	for j, r := range c.PayerRates {
		if r.PayerName == "" {
			return fmt.Errorf("payer_rate %d: payer_name is required", j)
		}
		if r.NegotiatedRate < 0 {
			return fmt.Errorf("payer_rate %d: negotiated_rate %f is negative", j, r.NegotiatedRate)
		}
		if !r.RateKind.Valid() {
			return fmt.Errorf("payer_rate %d: unknown rate_kind %q", j, r.RateKind)
		}
	}
	return nil
}
