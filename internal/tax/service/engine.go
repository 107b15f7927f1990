package service

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/invoicely/internal/tax/domain"
)

const moneyPlaces = 2

var hundred = decimal.NewFromInt(100)

type engine struct{}

func NewEngine() taxdomain.Engine {
	return engine{}
}

// Compute derives per-line and aggregate totals. Every monetary value is held
// at paise precision; only RoundedTotal is rounded to whole rupees.
func (engine) Compute(in taxdomain.Input) (taxdomain.Totals, error) {
	if len(in.Lines) == 0 {
		return taxdomain.Totals{}, taxdomain.ErrNoLines
	}
	round, err := rounder(in.RoundingMode)
	if err != nil {
		return taxdomain.Totals{}, err
	}
	supply := in.SupplyType
	if supply == "" {
		supply = taxdomain.SupplyIntraState
	}

	totals := taxdomain.Totals{
		Lines:      make([]taxdomain.LineTotals, 0, len(in.Lines)),
		SupplyType: supply,
	}
	for i, line := range in.Lines {
		taxable, err := taxableAmount(line)
		if err != nil {
			return taxdomain.Totals{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		if line.GSTRate.IsNegative() || line.GSTRate.GreaterThan(hundred) {
			return taxdomain.Totals{}, fmt.Errorf("line %d: %w", i+1, taxdomain.ErrInvalidTaxRate)
		}

		taxable = round(taxable, moneyPlaces)
		tax := round(taxable.Mul(line.GSTRate).Div(hundred), moneyPlaces)
		lt := taxdomain.LineTotals{
			Taxable:   taxable,
			Tax:       tax,
			LineTotal: taxable.Add(tax),
		}
		if supply == taxdomain.SupplyInterState {
			lt.IGST = tax
		} else {
			lt.CGST = round(tax.Div(decimal.NewFromInt(2)), moneyPlaces)
			lt.SGST = tax.Sub(lt.CGST)
		}

		totals.Lines = append(totals.Lines, lt)
		totals.Subtotal = totals.Subtotal.Add(lt.Taxable)
		totals.TaxAmount = totals.TaxAmount.Add(lt.Tax)
		totals.CGST = totals.CGST.Add(lt.CGST)
		totals.SGST = totals.SGST.Add(lt.SGST)
		totals.IGST = totals.IGST.Add(lt.IGST)
	}

	totals.Total = totals.Subtotal.Add(totals.TaxAmount)
	totals.RoundedTotal = round(totals.Total, 0)
	totals.RoundOff = totals.RoundedTotal.Sub(totals.Total)
	return totals, nil
}

// SupplyTypeFor compares the organization's state code with the state code
// embedded in the first two characters of the client's GSTIN. Unregistered
// clients are treated as local supplies.
func (engine) SupplyTypeFor(orgStateCode, clientGSTIN string) taxdomain.SupplyType {
	org := strings.TrimSpace(orgStateCode)
	client, err := StateCodeFromGSTIN(clientGSTIN)
	if org == "" || err != nil {
		return taxdomain.SupplyIntraState
	}
	if org == client {
		return taxdomain.SupplyIntraState
	}
	return taxdomain.SupplyInterState
}

// StateCodeFromGSTIN returns the two digit state code of a 15 character GSTIN.
func StateCodeFromGSTIN(gstin string) (string, error) {
	gstin = strings.ToUpper(strings.TrimSpace(gstin))
	if len(gstin) != 15 {
		return "", taxdomain.ErrInvalidGSTIN
	}
	code := gstin[:2]
	if code[0] < '0' || code[0] > '9' || code[1] < '0' || code[1] > '9' {
		return "", taxdomain.ErrInvalidGSTIN
	}
	return code, nil
}

func taxableAmount(line taxdomain.Line) (decimal.Decimal, error) {
	if line.Quantity != nil && line.Rate != nil {
		if line.Quantity.IsNegative() || line.Rate.IsNegative() {
			return decimal.Zero, taxdomain.ErrNegativeAmount
		}
		return line.Quantity.Mul(*line.Rate), nil
	}
	if line.TaxableAmount == nil {
		return decimal.Zero, taxdomain.ErrMissingAmount
	}
	if line.TaxableAmount.IsNegative() {
		return decimal.Zero, taxdomain.ErrNegativeAmount
	}
	return *line.TaxableAmount, nil
}

func rounder(mode taxdomain.RoundingMode) (func(decimal.Decimal, int32) decimal.Decimal, error) {
	switch mode {
	case "", taxdomain.RoundingHalfUp:
		// Inputs are non-negative, so half away from zero is half up.
		return decimal.Decimal.Round, nil
	case taxdomain.RoundingHalfEven:
		return decimal.Decimal.RoundBank, nil
	default:
		return nil, taxdomain.ErrInvalidRoundingMode
	}
}
