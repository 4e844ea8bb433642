// Package pricing stores multi-sourced price observations and selects the
// authoritative price for a material at a given date.
package pricing

import (
	"errors"
	"time"
)

// SourceType classifies the provenance of a price observation. The set is
// open; unknown types are accepted and rank last during selection.
type SourceType string

const (
	SourceTypeInvoice SourceType = "invoice"
	SourceTypeWebsite SourceType = "website"
	SourceTypeManual  SourceType = "manual"
)

// DefaultSourceType is used when a customer has no recorded preference.
const DefaultSourceType = SourceTypeInvoice

// PriceSource is the document or run a batch of observations came from.
// Created once per batch, never mutated.
type PriceSource struct {
	ID         int64
	Type       SourceType
	Name       string
	CustomerID *int64
	VendorID   *int64
	DocDate    time.Time
	Meta       string
	CreatedAt  time.Time
}

// MaterialPrice is a single append-only price observation. Observations are
// soft-invalidated, never deleted or overwritten.
type MaterialPrice struct {
	ID         int64
	MaterialID string
	Price      float64
	Currency   string
	PriceDate  time.Time
	SourceID   int64
	IsActive   bool
	CreatedAt  time.Time
}

// Observation joins a price with the provenance fields selection needs.
type Observation struct {
	MaterialPrice
	SourceType       SourceType
	SourceName       string
	SourceCustomerID *int64
}

// ErrNoPrice signals that no selectable price exists for the material at the
// requested date. A normal outcome, not a failure.
var ErrNoPrice = errors.New("pricing: no selectable price")

// sourceRank orders observations by provenance: the preferred type always
// wins, then invoice, website, manual, then anything else. This ordering is
// the core business rule and must not change.
func sourceRank(typ, preferred SourceType) int {
	switch {
	case typ == preferred:
		return 1
	case typ == SourceTypeInvoice:
		return 2
	case typ == SourceTypeWebsite:
		return 3
	case typ == SourceTypeManual:
		return 4
	default:
		return 5
	}
}
