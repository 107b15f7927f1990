package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/invoicely/internal/invoice/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type store struct {
	db *gorm.DB
}

func NewStore(conn *gorm.DB) invoicedomain.Store {
	return &store{db: conn}
}

func (s *store) WithTx(tx *gorm.DB) invoicedomain.Store {
	return &store{db: tx}
}

func (s *store) Insert(ctx context.Context, invoice *invoicedomain.Invoice) error {
	if invoice.Metadata == nil {
		invoice.Metadata = datatypes.JSONMap{}
	}
	if invoice.Status == "" {
		invoice.Status = invoicedomain.InvoiceStatusIssued
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "schedule_id"}, {Name: "occurrence_key"}},
			DoNothing: true,
		}).
		Create(invoice)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return invoicedomain.ErrDuplicateOccurrence
	}

	if len(invoice.Items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&invoice.Items).Error
}

func (s *store) FindByOccurrence(ctx context.Context, scheduleID snowflake.ID, occurrenceKey string) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM invoices WHERE schedule_id = ? AND occurrence_key = ?`,
		scheduleID,
		occurrenceKey,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}

	var items []invoicedomain.InvoiceItem
	if err := s.db.WithContext(ctx).
		Where("invoice_id = ?", invoice.ID).
		Order("position").
		Find(&items).Error; err != nil {
		return nil, err
	}
	invoice.Items = items
	return &invoice, nil
}
