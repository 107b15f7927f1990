package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	scheduledomain "github.com/smallbiznis/invoicely/internal/schedule/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) scheduledomain.Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) scheduledomain.Repository {
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, s *scheduledomain.Schedule) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(s).Error; err != nil {
			return err
		}
		return insertItems(tx, s.Items)
	})
}

func (r *repository) FindByID(ctx context.Context, orgID, id snowflake.ID) (*scheduledomain.Schedule, error) {
	var s scheduledomain.Schedule
	err := r.db.WithContext(ctx).Raw(
		`SELECT * FROM recurring_schedules WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	if err := r.loadItems(ctx, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) LoadByID(ctx context.Context, id snowflake.ID) (*scheduledomain.Schedule, error) {
	var s scheduledomain.Schedule
	err := r.db.WithContext(ctx).Raw(
		`SELECT * FROM recurring_schedules WHERE id = ?`,
		id,
	).Scan(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	if err := r.loadItems(ctx, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) LockByID(ctx context.Context, id snowflake.ID) (*scheduledomain.Schedule, error) {
	var s scheduledomain.Schedule
	err := r.db.WithContext(ctx).Raw(
		`SELECT * FROM recurring_schedules WHERE id = ? FOR UPDATE`,
		id,
	).Scan(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	return &s, nil
}

func (r *repository) Update(ctx context.Context, s *scheduledomain.Schedule) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Exec(
			`UPDATE recurring_schedules
			 SET name = ?, client_id = ?, invoice_type = ?,
			     frequency = ?, day_of_month = ?, day_of_week = ?, month_of_year = ?,
			     start_date = ?, end_date = ?, max_occurrences = ?,
			     status = ?, next_generation_date = ?,
			     payment_term_id = ?, payment_term_days = ?, notes = ?,
			     auto_send_email = ?, email_subject = ?, email_body = ?,
			     revision = ?, updated_at = ?
			 WHERE id = ? AND org_id = ?`,
			s.Name, s.ClientID, s.InvoiceType,
			s.Frequency, s.DayOfMonth, s.DayOfWeek, s.MonthOfYear,
			s.StartDate, s.EndDate, s.MaxOccurrences,
			s.Status, s.NextGenerationDate,
			s.PaymentTermID, s.PaymentTermDays, s.Notes,
			s.AutoSendEmail, s.EmailSubject, s.EmailBody,
			s.Revision, s.UpdatedAt,
			s.ID, s.OrgID,
		).Error
		if err != nil {
			return err
		}
		if err := tx.Exec(`DELETE FROM recurring_schedule_items WHERE schedule_id = ?`, s.ID).Error; err != nil {
			return err
		}
		return insertItems(tx, s.Items)
	})
}

func (r *repository) SaveState(ctx context.Context, s *scheduledomain.Schedule) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE recurring_schedules
		 SET status = ?, next_generation_date = ?, occurrences_generated = ?,
		     last_occurrence_date = ?, last_generated_at = ?, updated_at = ?
		 WHERE id = ?`,
		s.Status,
		s.NextGenerationDate,
		s.OccurrencesGenerated,
		s.LastOccurrenceDate,
		s.LastGeneratedAt,
		s.UpdatedAt,
		s.ID,
	).Error
}

func (r *repository) Delete(ctx context.Context, orgID, id snowflake.ID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`DELETE FROM recurring_schedule_items WHERE schedule_id = ? AND org_id = ?`, id, orgID).Error; err != nil {
			return err
		}
		return tx.Exec(`DELETE FROM recurring_schedules WHERE id = ? AND org_id = ?`, id, orgID).Error
	})
}

func (r *repository) List(ctx context.Context, orgID snowflake.ID, filter scheduledomain.ListFilter) ([]scheduledomain.Schedule, error) {
	stmt := r.db.WithContext(ctx).
		Model(&scheduledomain.Schedule{}).
		Where("org_id = ?", orgID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		stmt = stmt.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(search)+"%")
	}

	var schedules []scheduledomain.Schedule
	if err := stmt.Order("created_at DESC").Order("id DESC").Find(&schedules).Error; err != nil {
		return nil, err
	}
	if len(schedules) == 0 {
		return schedules, nil
	}

	ids := make([]snowflake.ID, 0, len(schedules))
	for _, s := range schedules {
		ids = append(ids, s.ID)
	}
	var items []scheduledomain.ScheduleItem
	err := r.db.WithContext(ctx).
		Where("schedule_id IN ?", ids).
		Order("schedule_id").
		Order("position").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	byID := make(map[snowflake.ID][]scheduledomain.ScheduleItem, len(schedules))
	for _, item := range items {
		byID[item.ScheduleID] = append(byID[item.ScheduleID], item)
	}
	for i := range schedules {
		schedules[i].Items = byID[schedules[i].ID]
	}
	return schedules, nil
}

func (r *repository) ListDue(ctx context.Context, today time.Time, afterID snowflake.ID, limit int) ([]scheduledomain.DueSchedule, error) {
	var rows []scheduledomain.DueSchedule
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, org_id, next_generation_date
		 FROM recurring_schedules
		 WHERE status = ?
		   AND next_generation_date IS NOT NULL
		   AND next_generation_date <= ?
		   AND id > ?
		 ORDER BY id ASC
		 LIMIT ?`,
		scheduledomain.StatusActive,
		today,
		afterID,
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Stats(ctx context.Context, orgID snowflake.ID) (scheduledomain.Stats, error) {
	var rows []struct {
		Status    scheduledomain.Status
		Total     int64
		Generated int64
	}
	err := r.db.WithContext(ctx).Raw(
		`SELECT status, COUNT(*) AS total, COALESCE(SUM(occurrences_generated), 0) AS generated
		 FROM recurring_schedules
		 WHERE org_id = ?
		 GROUP BY status`,
		orgID,
	).Scan(&rows).Error
	if err != nil {
		return scheduledomain.Stats{}, err
	}

	var stats scheduledomain.Stats
	for _, row := range rows {
		stats.Total += row.Total
		stats.TotalGenerated += row.Generated
		switch row.Status {
		case scheduledomain.StatusActive:
			stats.Active = row.Total
		case scheduledomain.StatusPaused:
			stats.Paused = row.Total
		case scheduledomain.StatusCompleted:
			stats.Completed = row.Total
		case scheduledomain.StatusCancelled:
			stats.Cancelled = row.Total
		}
	}
	return stats, nil
}

func (r *repository) loadItems(ctx context.Context, s *scheduledomain.Schedule) error {
	var items []scheduledomain.ScheduleItem
	err := r.db.WithContext(ctx).
		Where("schedule_id = ?", s.ID).
		Order("position").
		Find(&items).Error
	if err != nil {
		return err
	}
	s.Items = items
	return nil
}

func insertItems(tx *gorm.DB, items []scheduledomain.ScheduleItem) error {
	if len(items) == 0 {
		return nil
	}
	return tx.Create(&items).Error
}
