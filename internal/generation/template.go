package generation

import (
	"strings"
	"time"

	invoicedomain "github.com/smallbiznis/invoicely/internal/invoice/domain"
)

const (
	defaultEmailSubject = "Invoice {invoice_number}"
	defaultEmailBody    = "Dear {client_name},\n\n" +
		"Please find invoice {invoice_number} dated {invoice_date} for {total_amount}.\n" +
		"Payment is due by {due_date}.\n\n" +
		"Thank you for your business."

	displayDateLayout = "02 Jan 2006"
)

// placeholders returns the substitutions available to email templates.
// Unknown placeholders are left as written.
func placeholders(inv *invoicedomain.Invoice) *strings.Replacer {
	due := inv.InvoiceDate
	if inv.DueDate != nil {
		due = *inv.DueDate
	}
	return strings.NewReplacer(
		"{invoice_number}", inv.InvoiceNumber,
		"{client_name}", inv.ClientName,
		"{total_amount}", formatAmount(inv),
		"{invoice_date}", formatDate(inv.InvoiceDate),
		"{due_date}", formatDate(due),
	)
}

func renderEmail(subject, body *string, inv *invoicedomain.Invoice) (string, string) {
	r := placeholders(inv)
	s, b := defaultEmailSubject, defaultEmailBody
	if subject != nil && *subject != "" {
		s = *subject
	}
	if body != nil && *body != "" {
		b = *body
	}
	return r.Replace(s), r.Replace(b)
}

func formatAmount(inv *invoicedomain.Invoice) string {
	return "INR " + inv.RoundedTotal.StringFixed(2)
}

func formatDate(t time.Time) string {
	return t.Format(displayDateLayout)
}
