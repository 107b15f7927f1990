// Package domain contains persistence models for generated invoices.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states. Recurring generation only
// ever produces issued invoices.
type InvoiceStatus string

const (
	InvoiceStatusIssued InvoiceStatus = "issued"
)

// Invoice is a generated invoice. Each (schedule, occurrence) pair produces
// at most one invoice.
type Invoice struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID         snowflake.ID  `gorm:"not null;index;uniqueIndex:ux_invoices_number,priority:1" json:"org_id"`
	ScheduleID    snowflake.ID  `gorm:"not null;uniqueIndex:ux_invoices_schedule_occurrence,priority:1" json:"schedule_id"`
	OccurrenceKey string        `gorm:"type:text;not null;uniqueIndex:ux_invoices_schedule_occurrence,priority:2" json:"occurrence_key"`
	InvoiceNumber string        `gorm:"type:text;not null;uniqueIndex:ux_invoices_number,priority:2" json:"invoice_number"`
	InvoiceType   string        `gorm:"type:text;not null" json:"invoice_type"`
	Status        InvoiceStatus `gorm:"type:text;not null;default:'issued'" json:"status"`

	ClientID    snowflake.ID `gorm:"not null;index" json:"client_id"`
	ClientName  string       `gorm:"type:text;not null" json:"client_name"`
	ClientEmail string       `gorm:"type:text;not null;default:''" json:"client_email"`
	ClientGSTIN string       `gorm:"column:client_gstin;type:text;not null;default:''" json:"client_gstin"`
	SupplyType  string       `gorm:"type:text;not null" json:"supply_type"`

	InvoiceDate time.Time  `gorm:"not null" json:"invoice_date"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Notes       string     `gorm:"type:text;not null;default:''" json:"notes"`

	Subtotal     decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"subtotal"`
	TaxAmount    decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"tax_amount"`
	CGST         decimal.Decimal `gorm:"column:cgst;type:numeric(14,2);not null" json:"cgst"`
	SGST         decimal.Decimal `gorm:"column:sgst;type:numeric(14,2);not null" json:"sgst"`
	IGST         decimal.Decimal `gorm:"column:igst;type:numeric(14,2);not null" json:"igst"`
	Total        decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total"`
	RoundedTotal decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"rounded_total"`
	RoundOff     decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"round_off"`

	Metadata  datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null" json:"created_at"`

	Items []InvoiceItem `gorm:"-" json:"items"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceItem is a line snapshot copied from the schedule at generation time.
type InvoiceItem struct {
	ID            snowflake.ID     `gorm:"primaryKey" json:"id"`
	OrgID         snowflake.ID     `gorm:"not null;index" json:"org_id"`
	InvoiceID     snowflake.ID     `gorm:"not null;index" json:"invoice_id"`
	Position      int              `gorm:"not null" json:"position"`
	CatalogItemID *snowflake.ID    `json:"catalog_item_id,omitempty"`
	Description   string           `gorm:"type:text;not null" json:"description"`
	HSNSAC        string           `gorm:"column:hsn_sac;type:text;not null;default:''" json:"hsn_sac"`
	GSTRate       decimal.Decimal  `gorm:"type:numeric(5,2);not null" json:"gst_rate"`
	Quantity      *decimal.Decimal `gorm:"type:numeric(14,4)" json:"quantity,omitempty"`
	Rate          *decimal.Decimal `gorm:"type:numeric(14,2)" json:"rate,omitempty"`
	TaxableAmount decimal.Decimal  `gorm:"type:numeric(14,2);not null" json:"taxable_amount"`
	TaxAmount     decimal.Decimal  `gorm:"type:numeric(14,2);not null" json:"tax_amount"`
	CGST          decimal.Decimal  `gorm:"column:cgst;type:numeric(14,2);not null" json:"cgst"`
	SGST          decimal.Decimal  `gorm:"column:sgst;type:numeric(14,2);not null" json:"sgst"`
	IGST          decimal.Decimal  `gorm:"column:igst;type:numeric(14,2);not null" json:"igst"`
	LineTotal     decimal.Decimal  `gorm:"type:numeric(14,2);not null" json:"line_total"`
	CreatedAt     time.Time        `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }

// InvoiceSequence holds the last number handed out per organization and
// invoice type.
type InvoiceSequence struct {
	OrgID       snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	InvoiceType string       `gorm:"primaryKey;type:text"`
	LastValue   int64        `gorm:"not null;default:0"`
	UpdatedAt   time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (InvoiceSequence) TableName() string { return "invoice_sequences" }
