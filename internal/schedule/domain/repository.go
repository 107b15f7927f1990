package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	Search string
	Status Status
}

// DueSchedule identifies one occurrence the driver should attempt.
type DueSchedule struct {
	ID                 snowflake.ID
	OrgID              snowflake.ID
	NextGenerationDate time.Time
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, s *Schedule) error
	// FindByID returns the schedule with its items, or nil when it does not
	// exist in the organization.
	FindByID(ctx context.Context, orgID, id snowflake.ID) (*Schedule, error)
	// LoadByID returns the schedule with its items regardless of organization.
	LoadByID(ctx context.Context, id snowflake.ID) (*Schedule, error)
	// LockByID loads the schedule row under a row lock. Items are not loaded.
	LockByID(ctx context.Context, id snowflake.ID) (*Schedule, error)
	// Update replaces the editable content, items included.
	Update(ctx context.Context, s *Schedule) error
	// SaveState persists status, counters and dates.
	SaveState(ctx context.Context, s *Schedule) error
	Delete(ctx context.Context, orgID, id snowflake.ID) error
	List(ctx context.Context, orgID snowflake.ID, filter ListFilter) ([]Schedule, error)
	// ListDue returns active schedules whose next date is on or before today,
	// ordered by id and starting after afterID.
	ListDue(ctx context.Context, today time.Time, afterID snowflake.ID, limit int) ([]DueSchedule, error)
	Stats(ctx context.Context, orgID snowflake.ID) (Stats, error)
}
