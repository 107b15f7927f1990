package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: SchedulerJobReasonDeadlineExceeded},
		{name: "wrapped_deadline", err: fmt.Errorf("tick: %w", context.DeadlineExceeded), want: SchedulerJobReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: SchedulerJobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: SchedulerJobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: SchedulerJobReasonUniqueViolation},
		{name: "other_pg", err: &pgconn.PgError{Code: "08006"}, want: SchedulerJobReasonDB},
		{name: "unknown", err: errors.New("boom"), want: SchedulerJobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{ServiceName: "invoicely", Environment: "test"})

	metrics.AddBatchProcessed("generate_due", "schedules", 3)
	metrics.AddBatchProcessed("generate_due", "schedules", 0)

	got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues("generate_due", "schedules"))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}

func TestGenerationOutcomes(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewGenerationMetrics(registry, Config{Environment: "test"})

	metrics.IncOutcome(TriggerScheduled, OutcomeSuccess)
	metrics.IncOutcome(TriggerScheduled, OutcomeSuccess)
	metrics.IncOutcome(TriggerManual, OutcomeEmailFailed)
	metrics.IncConflict(TriggerManual)

	if got := testutil.ToFloat64(metrics.outcomes.WithLabelValues(TriggerScheduled, OutcomeSuccess)); got != 2 {
		t.Fatalf("expected 2 scheduled successes, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.outcomes.WithLabelValues(TriggerManual, OutcomeEmailFailed)); got != 1 {
		t.Fatalf("expected 1 manual email failure, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.leaseConflicts.WithLabelValues(TriggerManual)); got != 1 {
		t.Fatalf("expected 1 conflict, got %v", got)
	}
}
