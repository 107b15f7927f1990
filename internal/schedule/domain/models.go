// Package domain contains recurring invoice schedules and their lifecycle.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicely/internal/recurrence"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type InvoiceType string

const (
	InvoiceTypeProforma InvoiceType = "proforma"
	InvoiceTypeTax      InvoiceType = "tax"
)

func (t InvoiceType) Valid() bool {
	return t == InvoiceTypeProforma || t == InvoiceTypeTax
}

// Schedule is a recurring billing definition. The recurrence rule is stored
// flat; Rule decodes it into its frequency-specific variant.
type Schedule struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	OrgID       snowflake.ID `gorm:"not null;index"`
	Name        string       `gorm:"type:text;not null"`
	ClientID    snowflake.ID `gorm:"not null;index"`
	InvoiceType InvoiceType  `gorm:"type:text;not null"`

	Frequency   recurrence.Frequency `gorm:"type:text;not null"`
	DayOfMonth  *int
	DayOfWeek   *int
	MonthOfYear *int

	StartDate      time.Time `gorm:"not null"`
	EndDate        *time.Time
	MaxOccurrences *int

	OccurrencesGenerated int        `gorm:"not null;default:0"`
	Status               Status     `gorm:"type:text;not null;index:ix_recurring_schedules_due,priority:1"`
	NextGenerationDate   *time.Time `gorm:"index:ix_recurring_schedules_due,priority:2"`
	// LastOccurrenceDate is the most recent scheduled occurrence that produced
	// an invoice. Manual generations do not move it.
	LastOccurrenceDate *time.Time
	LastGeneratedAt    *time.Time

	PaymentTermID   *snowflake.ID
	PaymentTermDays *int
	Notes           string  `gorm:"type:text;not null;default:''"`
	AutoSendEmail   bool    `gorm:"not null;default:false"`
	EmailSubject    *string `gorm:"type:text"`
	EmailBody       *string `gorm:"type:text"`

	// Revision counts content edits. Generation compares it under the row
	// lock to detect a template replaced after its snapshot was taken.
	Revision int `gorm:"not null;default:1"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	Items []ScheduleItem `gorm:"-"`
}

func (Schedule) TableName() string { return "recurring_schedules" }

// Rule decodes the stored recurrence fields.
func (s *Schedule) Rule() (recurrence.Rule, error) {
	return recurrence.Decode(s.RuleFields())
}

func (s *Schedule) RuleFields() recurrence.Fields {
	return recurrence.Fields{
		Frequency:   string(s.Frequency),
		DayOfMonth:  s.DayOfMonth,
		DayOfWeek:   s.DayOfWeek,
		MonthOfYear: s.MonthOfYear,
	}
}

// SetRule stores r, clearing fields the rule does not use.
func (s *Schedule) SetRule(r recurrence.Rule) {
	f := recurrence.Encode(r)
	s.Frequency = recurrence.Frequency(f.Frequency)
	s.DayOfMonth = f.DayOfMonth
	s.DayOfWeek = f.DayOfWeek
	s.MonthOfYear = f.MonthOfYear
}

// ScheduleItem is a line template copied onto each generated invoice. When
// CatalogItemID is set, HSN/SAC and GST rate are refreshed from the catalog at
// generation time and an empty description or rate falls back to the catalog.
type ScheduleItem struct {
	ID            snowflake.ID     `gorm:"primaryKey"`
	OrgID         snowflake.ID     `gorm:"not null"`
	ScheduleID    snowflake.ID     `gorm:"not null;index"`
	Position      int              `gorm:"not null"`
	CatalogItemID *snowflake.ID    `gorm:""`
	Description   string           `gorm:"type:text;not null"`
	HSNSAC        string           `gorm:"column:hsn_sac;type:text;not null;default:''"`
	GSTRate       decimal.Decimal  `gorm:"type:numeric(5,2);not null"`
	Quantity      *decimal.Decimal `gorm:"type:numeric(14,4)"`
	Rate          *decimal.Decimal `gorm:"type:numeric(14,2)"`
	TaxableAmount *decimal.Decimal `gorm:"type:numeric(14,2)"`
	CreatedAt     time.Time        `gorm:"not null"`
}

func (ScheduleItem) TableName() string { return "recurring_schedule_items" }

// Stats summarizes schedules of one organization.
type Stats struct {
	Total             int64 `json:"total"`
	Active            int64 `json:"active"`
	Paused            int64 `json:"paused"`
	Completed         int64 `json:"completed"`
	Cancelled         int64 `json:"cancelled"`
	TotalGenerated    int64 `json:"total_generated"`
	FailedGenerations int64 `json:"failed_generations"`
	EmailFailures     int64 `json:"email_failures"`
}
