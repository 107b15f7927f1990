package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicely/internal/config"
	invoicedomain "github.com/smallbiznis/invoicely/internal/invoice/domain"
	"github.com/smallbiznis/invoicely/internal/invoice/format"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type sequenceAllocator struct {
	templates map[string]string
}

// NewNumberAllocator returns a gapless allocator backed by invoice_sequences.
// The counter row is updated in the caller's transaction, which serializes
// concurrent allocations for the same organization and type.
func NewNumberAllocator(cfg config.Config) invoicedomain.NumberAllocator {
	templates := map[string]string{
		"tax":      format.DefaultTaxTemplate,
		"proforma": format.DefaultProformaTemplate,
	}
	if cfg.TaxInvoiceNumberTemplate != "" {
		templates["tax"] = cfg.TaxInvoiceNumberTemplate
	}
	if cfg.ProformaInvoiceNumberTemplate != "" {
		templates["proforma"] = cfg.ProformaInvoiceNumberTemplate
	}
	return &sequenceAllocator{templates: templates}
}

func (a *sequenceAllocator) Allocate(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, invoiceType string, issuedAt time.Time) (string, error) {
	template, ok := a.templates[invoiceType]
	if !ok {
		return "", invoicedomain.ErrUnknownInvoiceType
	}

	now := time.Now().UTC()
	seed := invoicedomain.InvoiceSequence{
		OrgID:       orgID,
		InvoiceType: invoiceType,
		UpdatedAt:   now,
	}
	if err := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return "", err
	}

	if err := tx.WithContext(ctx).Exec(
		`UPDATE invoice_sequences
		 SET last_value = last_value + 1, updated_at = ?
		 WHERE org_id = ? AND invoice_type = ?`,
		now,
		orgID,
		invoiceType,
	).Error; err != nil {
		return "", err
	}

	var seq int64
	if err := tx.WithContext(ctx).Raw(
		`SELECT last_value
		 FROM invoice_sequences
		 WHERE org_id = ? AND invoice_type = ?`,
		orgID,
		invoiceType,
	).Scan(&seq).Error; err != nil {
		return "", err
	}
	if seq <= 0 {
		return "", fmt.Errorf("invoice sequence missing for org %s type %s", orgID, invoiceType)
	}

	return format.FormatInvoiceNumber(template, issuedAt, seq)
}
