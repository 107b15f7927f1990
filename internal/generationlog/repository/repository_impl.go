package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	logdomain "github.com/smallbiznis/invoicely/internal/generationlog/domain"
	"github.com/smallbiznis/invoicely/pkg/db"
	"github.com/smallbiznis/invoicely/pkg/db/pagination"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) logdomain.Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) logdomain.Repository {
	return &repository{db: tx}
}

func (r *repository) Append(ctx context.Context, entry *logdomain.Entry) error {
	err := r.db.WithContext(ctx).Exec(
		`INSERT INTO generation_logs (
			id, org_id, schedule_id, generation_date, occurrence_key, trigger_type, status,
			invoice_id, invoice_number, error_message, email_sent, email_error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.OrgID,
		entry.ScheduleID,
		entry.GenerationDate,
		entry.OccurrenceKey,
		entry.Trigger,
		entry.Status,
		entry.InvoiceID,
		entry.InvoiceNumber,
		entry.ErrorMessage,
		entry.EmailSent,
		entry.EmailError,
		entry.CreatedAt,
	).Error
	if db.IsDuplicateKeyErr(err) {
		return logdomain.ErrDuplicateEntry
	}
	return err
}

// ListFor returns entries newest first. The page token is the (created_at, id)
// of the last entry of the previous page, so paging stays stable while new
// entries are appended.
func (r *repository) ListFor(ctx context.Context, orgID, scheduleID snowflake.ID, page pagination.Pagination) ([]logdomain.Entry, pagination.PageInfo, error) {
	limit := page.Limit()
	stmt := r.db.WithContext(ctx).
		Model(&logdomain.Entry{}).
		Where("org_id = ? AND schedule_id = ?", orgID, scheduleID)

	cursor, err := pagination.DecodeCursor(page.PageToken)
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}
	if cursor != nil {
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, pagination.PageInfo{}, pagination.ErrInvalidPageToken
		}
		id, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return nil, pagination.PageInfo{}, pagination.ErrInvalidPageToken
		}
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)", createdAt, createdAt, id)
	}

	var items []logdomain.Entry
	if err := stmt.Order("created_at DESC").Order("id DESC").Limit(limit + 1).Find(&items).Error; err != nil {
		return nil, pagination.PageInfo{}, err
	}

	return pagination.BuildCursorPage(items, limit, func(e logdomain.Entry) pagination.Cursor {
		return pagination.Cursor{
			ID:        e.ID.String(),
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
	})
}

func (r *repository) CountByStatus(ctx context.Context, orgID snowflake.ID) (logdomain.Counts, error) {
	var rows []struct {
		Status logdomain.Status
		Total  int64
	}
	err := r.db.WithContext(ctx).Raw(
		`SELECT status, COUNT(*) AS total
		 FROM generation_logs
		 WHERE org_id = ?
		 GROUP BY status`,
		orgID,
	).Scan(&rows).Error
	if err != nil {
		return logdomain.Counts{}, err
	}

	var counts logdomain.Counts
	for _, row := range rows {
		switch row.Status {
		case logdomain.StatusSuccess:
			counts.Success = row.Total
		case logdomain.StatusFailed:
			counts.Failed = row.Total
		case logdomain.StatusEmailFailed:
			counts.EmailFailed = row.Total
		}
	}
	return counts, nil
}
