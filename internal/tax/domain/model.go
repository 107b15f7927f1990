// Package domain holds the GST computation inputs and results.
package domain

import "github.com/shopspring/decimal"

// RoundingMode selects how values exactly halfway between two steps round.
type RoundingMode string

const (
	RoundingHalfUp   RoundingMode = "half_up"
	RoundingHalfEven RoundingMode = "half_even"
)

// SupplyType decides whether GST is split into CGST+SGST or charged as IGST.
type SupplyType string

const (
	SupplyIntraState SupplyType = "intra_state"
	SupplyInterState SupplyType = "inter_state"
)

// Line is one invoice line before tax. Taxable is derived from Quantity and
// Rate when both are set, otherwise TaxableAmount is used as entered.
type Line struct {
	Description   string
	Quantity      *decimal.Decimal
	Rate          *decimal.Decimal
	TaxableAmount *decimal.Decimal
	GSTRate       decimal.Decimal
}

type Input struct {
	Lines        []Line
	SupplyType   SupplyType
	RoundingMode RoundingMode
}

type LineTotals struct {
	Taxable   decimal.Decimal
	Tax       decimal.Decimal
	CGST      decimal.Decimal
	SGST      decimal.Decimal
	IGST      decimal.Decimal
	LineTotal decimal.Decimal
}

type Totals struct {
	Lines        []LineTotals
	SupplyType   SupplyType
	Subtotal     decimal.Decimal
	TaxAmount    decimal.Decimal
	CGST         decimal.Decimal
	SGST         decimal.Decimal
	IGST         decimal.Decimal
	Total        decimal.Decimal
	RoundedTotal decimal.Decimal
	RoundOff     decimal.Decimal
}
