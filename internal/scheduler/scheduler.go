package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/invoicely/internal/clock"
	"github.com/smallbiznis/invoicely/internal/config"
	"github.com/smallbiznis/invoicely/internal/generation"
	logdomain "github.com/smallbiznis/invoicely/internal/generationlog/domain"
	obscontext "github.com/smallbiznis/invoicely/internal/observability/context"
	obsmetrics "github.com/smallbiznis/invoicely/internal/observability/metrics"
	"github.com/smallbiznis/invoicely/internal/recurrence"
	scheduledomain "github.com/smallbiznis/invoicely/internal/schedule/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const JobGenerateDue = "generate_due"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// Generator runs one generation attempt. *generation.Orchestrator satisfies it.
type Generator interface {
	Attempt(ctx context.Context, scheduleID snowflake.ID, trigger logdomain.Trigger, intended time.Time) (*logdomain.Entry, error)
}

type Params struct {
	fx.In

	Log       *zap.Logger
	Schedules scheduledomain.Repository
	Generator Generator
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    *config.SchedulerConfigHolder
}

type Scheduler struct {
	log       *zap.Logger
	schedules scheduledomain.Repository
	generator Generator
	genID     *snowflake.Node
	clock     clock.Clock
	cfg       *config.SchedulerConfigHolder
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Schedules == nil || p.Generator == nil || p.GenID == nil || p.Clock == nil || p.Config == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		schedules: p.Schedules,
		generator: p.Generator,
		genID:     p.GenID,
		clock:     p.Clock,
		cfg:       p.Config,
	}, nil
}

// settings reads the current tuning, filling zero values with defaults.
func (s *Scheduler) settings() config.SchedulerConfig {
	cfg := s.cfg.Get()
	defaults := config.DefaultSchedulerConfig()
	if cfg.RunInterval <= 0 {
		cfg.RunInterval = defaults.RunInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaults.JobTimeout
	}
	return cfg
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx = obscontext.WithActor(ctx, obscontext.ActorTypeScheduler, "scheduler")
	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// Deadline is a soft timeout: unfinished schedules stay due for the next run.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce performs a single sweep.
func (s *Scheduler) RunOnce(parent context.Context) error {
	cfg := s.settings()
	return s.runJob(parent, JobGenerateDue, cfg.BatchSize, cfg.JobTimeout, s.GenerateDueJob)
}

// RunForever sweeps on a fixed interval, or on the cron spec when one is
// configured, until ctx is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) {
	cfg := s.settings()
	if cfg.Cron != "" {
		err := s.runCron(ctx, cfg)
		if err == nil {
			return
		}
		s.log.Error("scheduler.cron.invalid", zap.String("cron", cfg.Cron), zap.Error(err))
	}

	interval := cfg.RunInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(interval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		if current := s.settings().RunInterval; current != interval {
			s.log.Info("scheduler.interval.changed",
				zap.Duration("from", interval),
				zap.Duration("to", current),
			)
			interval = current
			ticker.Reset(interval)
		}
		nextRun = s.clock.Now().Add(interval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runCron blocks until ctx is done, sweeping on every firing of cfg.Cron in
// the configured timezone. Overlapping firings are skipped.
func (s *Scheduler) runCron(ctx context.Context, cfg config.SchedulerConfig) error {
	c := cron.New(
		cron.WithLocation(cfg.Location()),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(cfg.Cron, func() {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	s.log.Info("scheduler.cron.start", zap.String("cron", cfg.Cron), zap.String("timezone", cfg.Location().String()))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// GenerateDueJob attempts the due occurrence of every active schedule whose
// next generation date is on or before today. Schedules are paged by ID so
// each one is attempted at most once per sweep; a failed attempt is retried
// on the next sweep.
func (s *Scheduler) GenerateDueJob(ctx context.Context) error {
	cfg := s.settings()
	ctx, run, owner := s.ensureJobRun(ctx, JobGenerateDue, cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	today := recurrence.Today(s.clock.Now(), cfg.Location())
	schedMetrics := obsmetrics.Scheduler()

	var (
		jobErr  error
		afterID snowflake.ID
	)
	for {
		if err := ctx.Err(); err != nil {
			return errors.Join(jobErr, err)
		}

		due, err := s.schedules.ListDue(ctx, today, afterID, cfg.BatchSize)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.schedule.list_failed", JobGenerateDue, 0, err)
			return errors.Join(jobErr, err)
		}
		if len(due) == 0 {
			break
		}

		generated := 0
		for _, item := range due {
			afterID = item.ID
			ok, err := s.generate(ctx, item)
			if err != nil {
				jobErr = errors.Join(jobErr, err)
				s.logSchedulerError(ctx, run, "generation.attempt.failed", JobGenerateDue, item.OrgID, err,
					zap.String("schedule_id", idString(item.ID)),
					zap.String("occurrence_key", recurrence.Key(item.NextGenerationDate)),
				)
				continue
			}
			if ok {
				generated++
			}
		}
		run.AddProcessed(generated)
		schedMetrics.AddBatchProcessed(JobGenerateDue, "schedules", generated)

		if len(due) < cfg.BatchSize {
			break
		}
	}

	return jobErr
}

// generate attempts one due occurrence. Skips report false with no error.
func (s *Scheduler) generate(ctx context.Context, item scheduledomain.DueSchedule) (bool, error) {
	ctx = s.withLogContext(ctx, item.OrgID)
	entry, err := s.generator.Attempt(ctx, item.ID, logdomain.TriggerScheduled, item.NextGenerationDate)
	switch {
	case err == nil:
		s.logScheduleGenerated(ctx, item, entry)
		return true, nil
	case errors.Is(err, generation.ErrConcurrencyConflict),
		errors.Is(err, generation.ErrNotDue),
		errors.Is(err, scheduledomain.ErrNotFound),
		errors.Is(err, scheduledomain.ErrIllegalStateTransition),
		errors.Is(err, scheduledomain.ErrOccurrenceLimitReached):
		s.logScheduleSkipped(ctx, item, err)
		return false, nil
	default:
		return false, err
	}
}
