package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/invoicely/internal/clock"
	"github.com/smallbiznis/invoicely/internal/config"
	"github.com/smallbiznis/invoicely/internal/generation"
	logdomain "github.com/smallbiznis/invoicely/internal/generationlog/domain"
	obsmetrics "github.com/smallbiznis/invoicely/internal/observability/metrics"
	"github.com/smallbiznis/invoicely/internal/recurrence"
	scheduledomain "github.com/smallbiznis/invoicely/internal/schedule/domain"
	gt "github.com/smallbiznis/invoicely/internal/testutil/generationtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newScheduler(t *testing.T, env *gt.Env, gen Generator, cfg *config.SchedulerConfigHolder) *Scheduler {
	t.Helper()
	if gen == nil {
		gen = env.Orchestrator
	}
	if cfg == nil {
		cfg = env.Config
	}
	s, err := New(Params{
		Log:       zap.NewNop(),
		Schedules: env.Schedules,
		Generator: gen,
		GenID:     env.Node,
		Clock:     env.Clock,
		Config:    cfg,
	})
	require.NoError(t, err)
	return s
}

func at(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 4, 30, 0, 0, time.UTC)
}

func TestMaxOccurrencesScenario(t *testing.T) {
	ctx := context.Background()
	env := gt.New(t, at(2024, 1, 5))
	limit := 3
	s := env.NewSchedule(t, func(s *scheduledomain.Schedule) { s.MaxOccurrences = &limit })
	sched := newScheduler(t, env, nil, nil)

	expectNext := []string{"2024-02-05", "2024-03-05", ""}
	for i, day := range []time.Time{at(2024, 1, 5), at(2024, 2, 5), at(2024, 3, 5)} {
		env.Clock.Set(day)
		require.NoError(t, sched.RunOnce(ctx))

		got := env.Reload(t, s.ID)
		assert.Equal(t, i+1, got.OccurrencesGenerated)
		if expectNext[i] == "" {
			assert.Nil(t, got.NextGenerationDate)
			assert.Equal(t, scheduledomain.StatusCompleted, got.Status)
		} else {
			require.NotNil(t, got.NextGenerationDate)
			assert.Equal(t, expectNext[i], recurrence.Key(*got.NextGenerationDate))
			assert.Equal(t, scheduledomain.StatusActive, got.Status)
		}
	}

	env.Clock.Set(at(2024, 4, 5))
	require.NoError(t, sched.RunOnce(ctx))

	invoices := env.InvoicesFor(t, s.ID)
	require.Len(t, invoices, 3)
	assert.Equal(t, "TAX-2024-00001", invoices[0].InvoiceNumber)
	assert.Equal(t, "TAX-2024-00002", invoices[1].InvoiceNumber)
	assert.Equal(t, "TAX-2024-00003", invoices[2].InvoiceNumber)
	assert.Len(t, env.EntriesFor(t, s.ID), 3)
}

func TestEndDateScenario(t *testing.T) {
	ctx := context.Background()
	env := gt.New(t, at(2024, 1, 5))
	end := gt.Date(2024, 2, 1)
	s := env.NewSchedule(t, func(s *scheduledomain.Schedule) { s.EndDate = &end })
	sched := newScheduler(t, env, nil, nil)

	require.NoError(t, sched.RunOnce(ctx))
	got := env.Reload(t, s.ID)
	assert.Equal(t, scheduledomain.StatusCompleted, got.Status)
	assert.Nil(t, got.NextGenerationDate)
	assert.Equal(t, 1, got.OccurrencesGenerated)

	env.Clock.Set(at(2024, 2, 5))
	require.NoError(t, sched.RunOnce(ctx))
	assert.Len(t, env.InvoicesFor(t, s.ID), 1)
}

func TestPersistenceFailureRetriedNextTick(t *testing.T) {
	ctx := context.Background()
	env := gt.New(t, at(2024, 1, 5))
	s := env.NewSchedule(t, nil)
	sched := newScheduler(t, env, nil, nil)
	env.Invoices.FailNext(1)

	err := sched.RunOnce(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, generation.ErrGenerationFailed)

	got := env.Reload(t, s.ID)
	assert.Equal(t, 0, got.OccurrencesGenerated)
	assert.Equal(t, "2024-01-05", recurrence.Key(*got.NextGenerationDate))

	env.Clock.Advance(time.Minute)
	require.NoError(t, sched.RunOnce(ctx))

	got = env.Reload(t, s.ID)
	assert.Equal(t, 1, got.OccurrencesGenerated)
	assert.Equal(t, "2024-02-05", recurrence.Key(*got.NextGenerationDate))

	entries := env.EntriesFor(t, s.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, logdomain.StatusFailed, entries[0].Status)
	assert.Equal(t, logdomain.StatusSuccess, entries[1].Status)
}

func TestSweepOnlyPicksDueActiveSchedules(t *testing.T) {
	ctx := context.Background()
	env := gt.New(t, at(2024, 1, 5))
	due := env.NewSchedule(t, nil)
	future := env.NewSchedule(t, func(s *scheduledomain.Schedule) {
		next := gt.Date(2024, 1, 6)
		s.NextGenerationDate = &next
	})
	paused := env.NewSchedule(t, func(s *scheduledomain.Schedule) { s.Status = scheduledomain.StatusPaused })
	sched := newScheduler(t, env, nil, nil)

	require.NoError(t, sched.RunOnce(ctx))

	assert.Len(t, env.InvoicesFor(t, due.ID), 1)
	assert.Empty(t, env.InvoicesFor(t, future.ID))
	assert.Empty(t, env.InvoicesFor(t, paused.ID))
}

func TestSweepPagesThroughBatches(t *testing.T) {
	ctx := context.Background()
	env := gt.New(t, at(2024, 1, 5))
	var ids []snowflake.ID
	for range 5 {
		ids = append(ids, env.NewSchedule(t, nil).ID)
	}
	cfg := env.Config.Get()
	cfg.BatchSize = 2
	sched := newScheduler(t, env, nil, config.NewStaticSchedulerConfigHolder(cfg))

	require.NoError(t, sched.RunOnce(ctx))
	for _, id := range ids {
		assert.Len(t, env.InvoicesFor(t, id), 1)
	}
}

func TestBacklogDrainsOneOccurrencePerSweep(t *testing.T) {
	ctx := context.Background()
	env := gt.New(t, at(2024, 3, 10))
	s := env.NewSchedule(t, nil)
	sched := newScheduler(t, env, nil, nil)

	require.NoError(t, sched.RunOnce(ctx))
	assert.Equal(t, "2024-02-05", recurrence.Key(*env.Reload(t, s.ID).NextGenerationDate))

	require.NoError(t, sched.RunOnce(ctx))
	require.NoError(t, sched.RunOnce(ctx))
	got := env.Reload(t, s.ID)
	assert.Equal(t, 3, got.OccurrencesGenerated)
	assert.Equal(t, "2024-04-05", recurrence.Key(*got.NextGenerationDate))

	require.NoError(t, sched.RunOnce(ctx))
	assert.Len(t, env.InvoicesFor(t, s.ID), 3)
}

type mockGenerator struct {
	mock.Mock
}

func (g *mockGenerator) Attempt(ctx context.Context, scheduleID snowflake.ID, trigger logdomain.Trigger, intended time.Time) (*logdomain.Entry, error) {
	args := g.Called(ctx, scheduleID, trigger, intended)
	entry, _ := args.Get(0).(*logdomain.Entry)
	return entry, args.Error(1)
}

func failingGenerator(err error) *mockGenerator {
	gen := &mockGenerator{}
	gen.On("Attempt", mock.Anything, mock.Anything, logdomain.TriggerScheduled, mock.Anything).Return(nil, err)
	return gen
}

func TestSweepTreatsConflictsAsSkips(t *testing.T) {
	ctx := context.Background()
	env := gt.New(t, at(2024, 1, 5))
	env.NewSchedule(t, nil)
	env.NewSchedule(t, nil)

	for _, skip := range []error{generation.ErrConcurrencyConflict, generation.ErrNotDue, scheduledomain.ErrOccurrenceLimitReached} {
		gen := failingGenerator(skip)
		require.NoError(t, newScheduler(t, env, gen, nil).RunOnce(ctx))
		gen.AssertNumberOfCalls(t, "Attempt", 2)
	}

	boom := errors.New("boom")
	gen := failingGenerator(boom)
	err := newScheduler(t, env, gen, nil).RunOnce(ctx)
	assert.ErrorIs(t, err, boom)
	gen.AssertNumberOfCalls(t, "Attempt", 2)
	gen.AssertExpectations(t)
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()

	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{
		ServiceName: "invoicely",
		Environment: "test",
	})

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	s := &Scheduler{log: zap.NewNop(), genID: node, clock: clock.NewFakeClock(time.Time{})}
	err = s.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	labels := map[string]string{
		"service": "invoicely",
		"env":     "test",
		"job":     "timeout_job",
	}
	if got := getCounterValue(t, registry, "invoicely_scheduler_job_timeouts_total", labels); got != 1 {
		t.Fatalf("expected timeout count 1, got %v", got)
	}

	errorLabels := map[string]string{
		"service": "invoicely",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	if got := getCounterValue(t, registry, "invoicely_scheduler_job_errors_total", errorLabels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
