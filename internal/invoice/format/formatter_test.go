package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatInvoiceNumber(t *testing.T) {
	issued := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		template string
		seq      int64
		want     string
	}{
		{DefaultTaxTemplate, 7, "TAX-2024-00007"},
		{DefaultProformaTemplate, 123456, "PRO-2024-123456"},
		{"INV/{YY}{MM}{DD}/{SEQ}", 42, "INV/240305/42"},
	}
	for _, tc := range cases {
		got, err := FormatInvoiceNumber(tc.template, issued, tc.seq)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestFormatInvoiceNumberRejectsBadInput(t *testing.T) {
	issued := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	_, err := FormatInvoiceNumber("", issued, 1)
	assert.Error(t, err)

	_, err = FormatInvoiceNumber(DefaultTaxTemplate, issued, 0)
	assert.Error(t, err)

	_, err = FormatInvoiceNumber("INV-{WEEK}-{SEQ}", issued, 1)
	assert.Error(t, err)
}
