package service

import (
	"testing"

	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/invoicely/internal/tax/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func amountLine(amount string) taxdomain.Line {
	return taxdomain.Line{Description: "Retainer", TaxableAmount: dec(amount)}
}

func TestComputeRoundsToNearestRupee(t *testing.T) {
	cases := []struct {
		name     string
		amount   string
		mode     taxdomain.RoundingMode
		rounded  string
		roundOff string
	}{
		{name: "down", amount: "1233.33", mode: taxdomain.RoundingHalfUp, rounded: "1233.00", roundOff: "-0.33"},
		{name: "half_up_boundary", amount: "1233.50", mode: taxdomain.RoundingHalfUp, rounded: "1234.00", roundOff: "0.50"},
		{name: "half_up_even_boundary", amount: "1234.50", mode: taxdomain.RoundingHalfUp, rounded: "1235.00", roundOff: "0.50"},
		{name: "default_mode_is_half_up", amount: "1233.50", mode: "", rounded: "1234.00", roundOff: "0.50"},
		{name: "half_even_odd_boundary", amount: "1233.50", mode: taxdomain.RoundingHalfEven, rounded: "1234.00", roundOff: "0.50"},
		{name: "half_even_even_boundary", amount: "1234.50", mode: taxdomain.RoundingHalfEven, rounded: "1234.00", roundOff: "-0.50"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			totals, err := NewEngine().Compute(taxdomain.Input{
				Lines:        []taxdomain.Line{amountLine(tc.amount)},
				RoundingMode: tc.mode,
			})
			require.NoError(t, err)
			assert.Equal(t, tc.amount, totals.Total.StringFixed(2))
			assert.Equal(t, tc.rounded, totals.RoundedTotal.StringFixed(2))
			assert.Equal(t, tc.roundOff, totals.RoundOff.StringFixed(2))
		})
	}
}

func TestComputeQuantityTimesRateWithGST(t *testing.T) {
	totals, err := NewEngine().Compute(taxdomain.Input{
		Lines: []taxdomain.Line{
			{Description: "Design hours", Quantity: dec("3"), Rate: dec("1500"), TaxableAmount: dec("1"), GSTRate: decimal.NewFromInt(18)},
			{Description: "Hosting", TaxableAmount: dec("999.99"), GSTRate: decimal.NewFromInt(5)},
		},
		SupplyType: taxdomain.SupplyIntraState,
	})
	require.NoError(t, err)

	require.Len(t, totals.Lines, 2)
	assert.Equal(t, "4500.00", totals.Lines[0].Taxable.StringFixed(2))
	assert.Equal(t, "810.00", totals.Lines[0].Tax.StringFixed(2))
	assert.Equal(t, "5310.00", totals.Lines[0].LineTotal.StringFixed(2))
	assert.Equal(t, "50.00", totals.Lines[1].Tax.StringFixed(2))

	assert.Equal(t, "5499.99", totals.Subtotal.StringFixed(2))
	assert.Equal(t, "860.00", totals.TaxAmount.StringFixed(2))
	assert.Equal(t, "6359.99", totals.Total.StringFixed(2))
	assert.Equal(t, "6360.00", totals.RoundedTotal.StringFixed(2))
	assert.Equal(t, "0.01", totals.RoundOff.StringFixed(2))
}

func TestComputeSplitsIntraStateTax(t *testing.T) {
	totals, err := NewEngine().Compute(taxdomain.Input{
		Lines:      []taxdomain.Line{{TaxableAmount: dec("100.10"), GSTRate: decimal.NewFromInt(5)}},
		SupplyType: taxdomain.SupplyIntraState,
	})
	require.NoError(t, err)

	assert.Equal(t, "5.01", totals.TaxAmount.StringFixed(2))
	assert.True(t, totals.CGST.Add(totals.SGST).Equal(totals.TaxAmount))
	assert.True(t, totals.IGST.IsZero())
}

func TestComputeChargesIGSTInterState(t *testing.T) {
	totals, err := NewEngine().Compute(taxdomain.Input{
		Lines:      []taxdomain.Line{{TaxableAmount: dec("1000"), GSTRate: decimal.NewFromInt(18)}},
		SupplyType: taxdomain.SupplyInterState,
	})
	require.NoError(t, err)

	assert.Equal(t, "180.00", totals.IGST.StringFixed(2))
	assert.True(t, totals.CGST.IsZero())
	assert.True(t, totals.SGST.IsZero())
}

func TestComputeRejectsInvalidLines(t *testing.T) {
	engine := NewEngine()

	_, err := engine.Compute(taxdomain.Input{})
	assert.ErrorIs(t, err, taxdomain.ErrNoLines)

	_, err = engine.Compute(taxdomain.Input{Lines: []taxdomain.Line{amountLine("-1")}})
	assert.ErrorIs(t, err, taxdomain.ErrNegativeAmount)

	_, err = engine.Compute(taxdomain.Input{Lines: []taxdomain.Line{{Quantity: dec("-2"), Rate: dec("10")}}})
	assert.ErrorIs(t, err, taxdomain.ErrNegativeAmount)

	_, err = engine.Compute(taxdomain.Input{Lines: []taxdomain.Line{{Description: "empty"}}})
	assert.ErrorIs(t, err, taxdomain.ErrMissingAmount)

	_, err = engine.Compute(taxdomain.Input{Lines: []taxdomain.Line{{TaxableAmount: dec("10"), GSTRate: decimal.NewFromInt(-5)}}})
	assert.ErrorIs(t, err, taxdomain.ErrInvalidTaxRate)

	_, err = engine.Compute(taxdomain.Input{Lines: []taxdomain.Line{amountLine("10")}, RoundingMode: "ceil"})
	assert.ErrorIs(t, err, taxdomain.ErrInvalidRoundingMode)
}

func TestSupplyTypeFor(t *testing.T) {
	engine := NewEngine()

	assert.Equal(t, taxdomain.SupplyIntraState, engine.SupplyTypeFor("27", "27AAPFU0939F1ZV"))
	assert.Equal(t, taxdomain.SupplyInterState, engine.SupplyTypeFor("27", "29AAPFU0939F1ZV"))
	assert.Equal(t, taxdomain.SupplyIntraState, engine.SupplyTypeFor("27", ""))
	assert.Equal(t, taxdomain.SupplyIntraState, engine.SupplyTypeFor("", "29AAPFU0939F1ZV"))

	_, err := StateCodeFromGSTIN("XXAAPFU0939F1ZV")
	assert.ErrorIs(t, err, taxdomain.ErrInvalidGSTIN)
}

func TestLineTaxIsRoundedBeforeSumming(t *testing.T) {
	lines := []taxdomain.Line{
		{Description: "Filing", TaxableAmount: dec("10.10"), GSTRate: decimal.NewFromInt(5)},
		{Description: "Filing", TaxableAmount: dec("10.10"), GSTRate: decimal.NewFromInt(5)},
		{Description: "Filing", TaxableAmount: dec("10.10"), GSTRate: decimal.NewFromInt(5)},
	}
	cases := []struct {
		mode    taxdomain.RoundingMode
		lineTax string
		tax     string
		total   string
	}{
		{mode: taxdomain.RoundingHalfUp, lineTax: "0.51", tax: "1.53", total: "31.83"},
		{mode: taxdomain.RoundingHalfEven, lineTax: "0.50", tax: "1.50", total: "31.80"},
	}

	for _, tc := range cases {
		t.Run(string(tc.mode), func(t *testing.T) {
			totals, err := NewEngine().Compute(taxdomain.Input{
				Lines:        lines,
				SupplyType:   taxdomain.SupplyInterState,
				RoundingMode: tc.mode,
			})
			require.NoError(t, err)

			sum := decimal.Zero
			for _, lt := range totals.Lines {
				assert.Equal(t, tc.lineTax, lt.Tax.StringFixed(2))
				sum = sum.Add(lt.Tax)
			}
			assert.True(t, sum.Equal(totals.TaxAmount))
			assert.Equal(t, tc.tax, totals.TaxAmount.StringFixed(2))
			assert.Equal(t, "30.30", totals.Subtotal.StringFixed(2))
			assert.Equal(t, tc.total, totals.Total.StringFixed(2))
			// Rounding the unrounded sum once would give 1.52 in either mode.
			assert.NotEqual(t, "1.52", totals.TaxAmount.StringFixed(2))
		})
	}
}
