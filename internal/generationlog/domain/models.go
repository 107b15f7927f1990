// Package domain contains the append-only generation log.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicely/pkg/db/pagination"
	"gorm.io/gorm"
)

type Status string

const (
	StatusSuccess     Status = "success"
	StatusFailed      Status = "failed"
	StatusEmailFailed Status = "email_failed"
)

type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

var ErrDuplicateEntry = errors.New("duplicate_generation_entry")

// Entry records the outcome of one generation attempt. Entries are never
// updated or deleted. At most one non-failed entry exists per occurrence.
type Entry struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID          snowflake.ID  `gorm:"not null;index" json:"org_id"`
	ScheduleID     snowflake.ID  `gorm:"not null;index:ix_generation_logs_schedule_created,priority:1;uniqueIndex:ux_generation_logs_occurrence,where:status <> 'failed'" json:"schedule_id"`
	GenerationDate time.Time     `gorm:"not null" json:"generation_date"`
	OccurrenceKey  string        `gorm:"type:text;not null;uniqueIndex:ux_generation_logs_occurrence,where:status <> 'failed'" json:"occurrence_key"`
	Trigger        Trigger       `gorm:"column:trigger_type;type:text;not null" json:"trigger"`
	Status         Status        `gorm:"type:text;not null" json:"status"`
	InvoiceID      *snowflake.ID `json:"invoice_id,omitempty"`
	InvoiceNumber  *string       `gorm:"type:text" json:"invoice_number,omitempty"`
	ErrorMessage   *string       `gorm:"type:text" json:"error_message,omitempty"`
	EmailSent      bool          `gorm:"not null;default:false" json:"email_sent"`
	EmailError     *string       `gorm:"type:text" json:"email_error,omitempty"`
	CreatedAt      time.Time     `gorm:"not null;index:ix_generation_logs_schedule_created,priority:2" json:"created_at"`
}

func (Entry) TableName() string { return "generation_logs" }

// Counts aggregates log entries by status for a set of schedules.
type Counts struct {
	Success     int64 `json:"success"`
	Failed      int64 `json:"failed"`
	EmailFailed int64 `json:"email_failed"`
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Append(ctx context.Context, entry *Entry) error
	ListFor(ctx context.Context, orgID, scheduleID snowflake.ID, page pagination.Pagination) ([]Entry, pagination.PageInfo, error)
	CountByStatus(ctx context.Context, orgID snowflake.ID) (Counts, error)
}
