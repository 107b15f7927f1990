package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrDuplicateOccurrence = errors.New("duplicate_invoice_occurrence")
	ErrUnknownInvoiceType  = errors.New("unknown_invoice_type")
)

// NumberAllocator hands out invoice numbers. Allocation runs inside the
// caller's transaction so a rolled back generation does not consume a number.
type NumberAllocator interface {
	Allocate(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, invoiceType string, issuedAt time.Time) (string, error)
}

// Store persists generated invoices.
type Store interface {
	WithTx(tx *gorm.DB) Store
	// Insert writes the invoice and its items. It returns
	// ErrDuplicateOccurrence when the schedule already has an invoice for the
	// occurrence.
	Insert(ctx context.Context, invoice *Invoice) error
	FindByOccurrence(ctx context.Context, scheduleID snowflake.ID, occurrenceKey string) (*Invoice, error)
}
