package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	logdomain "github.com/smallbiznis/invoicely/internal/generationlog/domain"
	"github.com/smallbiznis/invoicely/internal/testutil/dbtest"
	"github.com/smallbiznis/invoicely/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func entry(id int64, key string, status logdomain.Status, createdAt time.Time) *logdomain.Entry {
	e := &logdomain.Entry{
		ID:             snowflake.ID(id),
		OrgID:          1,
		ScheduleID:     10,
		GenerationDate: createdAt.Truncate(24 * time.Hour),
		OccurrenceKey:  key,
		Trigger:        logdomain.TriggerScheduled,
		Status:         status,
		CreatedAt:      createdAt,
	}
	if status == logdomain.StatusFailed {
		e.ErrorMessage = strPtr("db down")
	} else {
		e.InvoiceNumber = strPtr("TAX-2024-00001")
	}
	return e
}

func TestAppendRejectsSecondSuccessForOccurrence(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t, &logdomain.Entry{}))
	base := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Append(ctx, entry(1, "2024-01-05", logdomain.StatusFailed, base)))
	require.NoError(t, repo.Append(ctx, entry(2, "2024-01-05", logdomain.StatusFailed, base.Add(time.Minute))))
	require.NoError(t, repo.Append(ctx, entry(3, "2024-01-05", logdomain.StatusSuccess, base.Add(2*time.Minute))))

	err := repo.Append(ctx, entry(4, "2024-01-05", logdomain.StatusEmailFailed, base.Add(3*time.Minute)))
	assert.ErrorIs(t, err, logdomain.ErrDuplicateEntry)
}

func TestListForNewestFirstWithPaging(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t, &logdomain.Entry{}))
	base := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		day := base.AddDate(0, i, 0)
		require.NoError(t, repo.Append(ctx, entry(int64(100+i), day.Format(time.DateOnly), logdomain.StatusSuccess, day)))
	}

	first, info, err := repo.ListFor(ctx, 1, 10, pagination.Pagination{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, snowflake.ID(104), first[0].ID)
	assert.Equal(t, snowflake.ID(103), first[1].ID)
	assert.True(t, info.HasMore)

	second, info, err := repo.ListFor(ctx, 1, 10, pagination.Pagination{PageSize: 2, PageToken: info.NextPageToken})
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, snowflake.ID(102), second[0].ID)

	third, info, err := repo.ListFor(ctx, 1, 10, pagination.Pagination{PageSize: 2, PageToken: info.NextPageToken})
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.Equal(t, snowflake.ID(100), third[0].ID)
	assert.False(t, info.HasMore)

	// Re-querying from the start yields the same sequence.
	again, _, err := repo.ListFor(ctx, 1, 10, pagination.Pagination{PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, first[0].ID, again[0].ID)

	other, _, err := repo.ListFor(ctx, 2, 10, pagination.Pagination{})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestCountByStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t, &logdomain.Entry{}))
	base := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Append(ctx, entry(1, "a", logdomain.StatusFailed, base)))
	require.NoError(t, repo.Append(ctx, entry(2, "a", logdomain.StatusSuccess, base.Add(time.Second))))
	require.NoError(t, repo.Append(ctx, entry(3, "b", logdomain.StatusEmailFailed, base.Add(2*time.Second))))

	counts, err := repo.CountByStatus(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, logdomain.Counts{Success: 1, Failed: 1, EmailFailed: 1}, counts)
}
