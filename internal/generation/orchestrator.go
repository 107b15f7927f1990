// Package generation turns one due schedule occurrence into an invoice.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicely/internal/clock"
	"github.com/smallbiznis/invoicely/internal/config"
	directorydomain "github.com/smallbiznis/invoicely/internal/directory/domain"
	logdomain "github.com/smallbiznis/invoicely/internal/generationlog/domain"
	invoicedomain "github.com/smallbiznis/invoicely/internal/invoice/domain"
	"github.com/smallbiznis/invoicely/internal/lease"
	obslogger "github.com/smallbiznis/invoicely/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/invoicely/internal/observability/metrics"
	"github.com/smallbiznis/invoicely/internal/observability/tracing"
	"github.com/smallbiznis/invoicely/internal/providers/email"
	"github.com/smallbiznis/invoicely/internal/recurrence"
	scheduledomain "github.com/smallbiznis/invoicely/internal/schedule/domain"
	taxdomain "github.com/smallbiznis/invoicely/internal/tax/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const manualKeyPrefix = "manual:"

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	Config          config.Config
	SchedulerConfig *config.SchedulerConfigHolder
	Schedules       scheduledomain.Repository
	Logs            logdomain.Repository
	Invoices        invoicedomain.Store
	Numbers         invoicedomain.NumberAllocator
	Directory       directorydomain.Directory
	Tax             taxdomain.Engine
	Lease           lease.Lease
	Email           email.Provider
	Metrics         *obsmetrics.GenerationMetrics `optional:"true"`
}

// Orchestrator runs generation attempts. Scheduled sweeps and manual requests
// both go through Attempt, which is safe to call concurrently and repeatedly
// for the same occurrence.
type Orchestrator struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	cfg          *config.SchedulerConfigHolder
	orgStateCode string
	schedules    scheduledomain.Repository
	logs         logdomain.Repository
	invoices     invoicedomain.Store
	numbers      invoicedomain.NumberAllocator
	directory    directorydomain.Directory
	tax          taxdomain.Engine
	lease        lease.Lease
	email        email.Provider
	metrics      *obsmetrics.GenerationMetrics
	tracer       trace.Tracer
}

func NewOrchestrator(p Params) *Orchestrator {
	return &Orchestrator{
		db:           p.DB,
		log:          p.Log.Named("generation"),
		genID:        p.GenID,
		clock:        p.Clock,
		cfg:          p.SchedulerConfig,
		orgStateCode: p.Config.OrgStateCode,
		schedules:    p.Schedules,
		logs:         p.Logs,
		invoices:     p.Invoices,
		numbers:      p.Numbers,
		directory:    p.Directory,
		tax:          p.Tax,
		lease:        p.Lease,
		email:        p.Email,
		metrics:      p.Metrics,
		tracer:       otel.Tracer("invoicely/generation"),
	}
}

// occurrence identifies what an attempt generates.
type occurrence struct {
	trigger logdomain.Trigger
	date    time.Time
	key     string
}

// Attempt generates the occurrence of scheduleID described by trigger and
// intended. For a scheduled trigger intended must equal the schedule's next
// generation date; for a manual trigger it is ignored and today is used.
//
// A returned entry has been appended to the generation log. Skips
// (ErrConcurrencyConflict, ErrNotDue, illegal state, limit reached) return no
// entry. Failures return the failed entry together with ErrGenerationFailed.
func (o *Orchestrator) Attempt(ctx context.Context, scheduleID snowflake.ID, trigger logdomain.Trigger, intended time.Time) (*logdomain.Entry, error) {
	started := o.clock.Now()
	cfg := o.cfg.Get()
	ctx, span := o.tracer.Start(ctx, "generation.attempt", trace.WithAttributes(tracing.SafeAttributes(
		attribute.String("schedule_id", scheduleID.String()),
		attribute.String("trigger", string(trigger)),
	)...))
	defer span.End()

	log := obslogger.WithContext(ctx, o.log).With(
		zap.String("schedule_id", scheduleID.String()),
		zap.String("trigger", string(trigger)),
	)

	release, ok, err := o.lease.Acquire(ctx, lease.ScheduleKey(scheduleID), cfg.LeaseTTL)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		return nil, fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		o.metrics.IncConflict(string(trigger))
		log.Debug("generation.lease.busy")
		return nil, ErrConcurrencyConflict
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("generation.lease.release_failed", zap.Error(err))
		}
	}()

	s, err := o.schedules.LoadByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, scheduledomain.ErrNotFound
	}
	log = log.With(zap.String("org_id", s.OrgID.String()))

	occ, err := o.resolveOccurrence(s, trigger, intended, cfg)
	if err != nil {
		o.recordSkip(log, trigger, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("occurrence_key", occ.key))

	snap, err := o.takeSnapshot(ctx, s, cfg)
	if err != nil {
		return o.fail(ctx, log, span, s, occ, err)
	}

	var (
		inv     *invoicedomain.Invoice
		applied *scheduledomain.Schedule
	)
	err = o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := o.schedules.WithTx(tx).LockByID(ctx, scheduleID)
		if err != nil {
			return err
		}
		if locked == nil {
			return scheduledomain.ErrNotFound
		}
		if err := checkDue(locked, occ); err != nil {
			return err
		}
		if locked.Revision != s.Revision {
			return ErrConcurrencyConflict
		}

		number, err := o.numbers.Allocate(ctx, tx, locked.OrgID, string(locked.InvoiceType), occ.date)
		if err != nil {
			return fmt.Errorf("allocate invoice number: %w", err)
		}

		now := o.clock.Now()
		inv = o.buildInvoice(locked, snap, occ, number, now)
		if err := o.invoices.WithTx(tx).Insert(ctx, inv); err != nil {
			if errors.Is(err, invoicedomain.ErrDuplicateOccurrence) {
				return ErrConcurrencyConflict
			}
			return fmt.Errorf("persist invoice: %w", err)
		}

		if occ.trigger == logdomain.TriggerScheduled {
			if err := locked.RecordScheduledGeneration(now); err != nil {
				return err
			}
		} else {
			locked.RecordManualGeneration(now)
		}
		if err := o.schedules.WithTx(tx).SaveState(ctx, locked); err != nil {
			return fmt.Errorf("advance schedule: %w", err)
		}
		applied = locked
		return nil
	})
	if err != nil {
		if isSkip(err) {
			o.recordSkip(log, trigger, err)
			return nil, err
		}
		return o.fail(ctx, log, span, s, occ, err)
	}

	entry := o.newEntry(s, occ, logdomain.StatusSuccess)
	entry.InvoiceID = &inv.ID
	entry.InvoiceNumber = &inv.InvoiceNumber

	if s.AutoSendEmail {
		if err := o.sendEmail(ctx, s, inv, cfg); err != nil {
			msg := err.Error()
			entry.Status = logdomain.StatusEmailFailed
			entry.EmailError = &msg
			log.Warn("generation.email.failed",
				zap.String("invoice_number", inv.InvoiceNumber),
				zap.Error(err),
			)
		} else {
			entry.EmailSent = true
		}
	}

	o.append(ctx, log, entry)
	o.metrics.IncOutcome(string(trigger), string(entry.Status))
	o.metrics.ObserveDuration(string(trigger), o.clock.Now().Sub(started).Seconds())

	fields := []zap.Field{
		zap.String("invoice_id", inv.ID.String()),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("occurrence_key", occ.key),
		zap.String("status", string(applied.Status)),
		zap.Int("occurrences_generated", applied.OccurrencesGenerated),
	}
	if applied.NextGenerationDate != nil {
		fields = append(fields, zap.String("next_generation_date", recurrence.Key(*applied.NextGenerationDate)))
	}
	log.Info("generation.succeeded", fields...)
	return entry, nil
}

func (o *Orchestrator) resolveOccurrence(s *scheduledomain.Schedule, trigger logdomain.Trigger, intended time.Time, cfg config.SchedulerConfig) (occurrence, error) {
	var occ occurrence
	switch trigger {
	case logdomain.TriggerScheduled:
		intended = recurrence.Date(intended)
		occ = occurrence{trigger: trigger, date: intended, key: recurrence.Key(intended)}
	case logdomain.TriggerManual:
		today := recurrence.Today(o.clock.Now(), cfg.Location())
		occ = occurrence{trigger: trigger, date: today, key: manualKeyPrefix + recurrence.Key(today)}
	default:
		return occurrence{}, fmt.Errorf("unknown trigger %q", trigger)
	}
	return occ, checkDue(s, occ)
}

// checkDue reports whether s may still generate occ.
func checkDue(s *scheduledomain.Schedule, occ occurrence) error {
	if err := s.CanGenerate(); err != nil {
		return err
	}
	if occ.trigger != logdomain.TriggerScheduled {
		return nil
	}
	if s.NextGenerationDate == nil || !recurrence.Date(*s.NextGenerationDate).Equal(occ.date) {
		return ErrNotDue
	}
	return nil
}

func isSkip(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict) ||
		errors.Is(err, ErrNotDue) ||
		errors.Is(err, scheduledomain.ErrNotFound) ||
		errors.Is(err, scheduledomain.ErrIllegalStateTransition) ||
		errors.Is(err, scheduledomain.ErrOccurrenceLimitReached)
}

func (o *Orchestrator) recordSkip(log *zap.Logger, trigger logdomain.Trigger, err error) {
	switch {
	case errors.Is(err, scheduledomain.ErrOccurrenceLimitReached):
		o.metrics.IncOutcome(string(trigger), obsmetrics.OutcomeLimitReached)
	case errors.Is(err, ErrConcurrencyConflict):
		o.metrics.IncConflict(string(trigger))
	default:
		o.metrics.IncOutcome(string(trigger), obsmetrics.OutcomeSkipped)
	}
	log.Debug("generation.skipped", zap.String("reason", err.Error()))
}

// fail records a failed attempt. The schedule is left as it was so the same
// occurrence is attempted again on the next sweep.
func (o *Orchestrator) fail(ctx context.Context, log *zap.Logger, span trace.Span, s *scheduledomain.Schedule, occ occurrence, cause error) (*logdomain.Entry, error) {
	span.RecordError(tracing.SafeError(cause))
	span.SetStatus(codes.Error, "generation failed")

	msg := cause.Error()
	entry := o.newEntry(s, occ, logdomain.StatusFailed)
	entry.ErrorMessage = &msg
	o.append(ctx, log, entry)
	o.metrics.IncOutcome(string(occ.trigger), obsmetrics.OutcomeFailed)

	log.Error("generation.failed",
		zap.String("occurrence_key", occ.key),
		zap.Error(cause),
	)
	return entry, fmt.Errorf("%w: %w", ErrGenerationFailed, cause)
}

func (o *Orchestrator) newEntry(s *scheduledomain.Schedule, occ occurrence, status logdomain.Status) *logdomain.Entry {
	return &logdomain.Entry{
		ID:             o.genID.Generate(),
		OrgID:          s.OrgID,
		ScheduleID:     s.ID,
		GenerationDate: occ.date,
		OccurrenceKey:  occ.key,
		Trigger:        occ.trigger,
		Status:         status,
		CreatedAt:      o.clock.Now(),
	}
}

// append writes entry to the log. The invoice is already committed at this
// point, so a log write failure is reported but does not fail the attempt.
func (o *Orchestrator) append(ctx context.Context, log *zap.Logger, entry *logdomain.Entry) {
	if err := o.logs.Append(context.WithoutCancel(ctx), entry); err != nil {
		log.Error("generation.log.append_failed",
			zap.String("occurrence_key", entry.OccurrenceKey),
			zap.String("status", string(entry.Status)),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) buildInvoice(s *scheduledomain.Schedule, snap *snapshot, occ occurrence, number string, now time.Time) *invoicedomain.Invoice {
	invoiceID := o.genID.Generate()
	inv := &invoicedomain.Invoice{
		ID:            invoiceID,
		OrgID:         s.OrgID,
		ScheduleID:    s.ID,
		OccurrenceKey: occ.key,
		InvoiceNumber: number,
		InvoiceType:   string(s.InvoiceType),
		Status:        invoicedomain.InvoiceStatusIssued,
		ClientID:      snap.client.ID,
		ClientName:    snap.client.Name,
		ClientEmail:   snap.client.Email,
		ClientGSTIN:   snap.client.GSTIN,
		SupplyType:    string(snap.totals.SupplyType),
		InvoiceDate:   occ.date,
		Notes:         s.Notes,
		Subtotal:      snap.totals.Subtotal,
		TaxAmount:     snap.totals.TaxAmount,
		CGST:          snap.totals.CGST,
		SGST:          snap.totals.SGST,
		IGST:          snap.totals.IGST,
		Total:         snap.totals.Total,
		RoundedTotal:  snap.totals.RoundedTotal,
		RoundOff:      snap.totals.RoundOff,
		Metadata: datatypes.JSONMap{
			"schedule_name": s.Name,
			"trigger":       string(occ.trigger),
		},
		CreatedAt: now,
	}
	if s.PaymentTermDays != nil {
		due := occ.date.AddDate(0, 0, *s.PaymentTermDays)
		inv.DueDate = &due
	}
	if s.PaymentTermID != nil {
		inv.Metadata["payment_term_id"] = s.PaymentTermID.String()
	}

	inv.Items = make([]invoicedomain.InvoiceItem, 0, len(snap.items))
	for i, item := range snap.items {
		line := snap.totals.Lines[i]
		inv.Items = append(inv.Items, invoicedomain.InvoiceItem{
			ID:            o.genID.Generate(),
			OrgID:         s.OrgID,
			InvoiceID:     invoiceID,
			Position:      i,
			CatalogItemID: item.CatalogItemID,
			Description:   item.Description,
			HSNSAC:        item.HSNSAC,
			GSTRate:       item.GSTRate,
			Quantity:      item.Quantity,
			Rate:          item.Rate,
			TaxableAmount: line.Taxable,
			TaxAmount:     line.Tax,
			CGST:          line.CGST,
			SGST:          line.SGST,
			IGST:          line.IGST,
			LineTotal:     line.LineTotal,
			CreatedAt:     now,
		})
	}
	return inv
}

func (o *Orchestrator) sendEmail(ctx context.Context, s *scheduledomain.Schedule, inv *invoicedomain.Invoice, cfg config.SchedulerConfig) error {
	if inv.ClientEmail == "" {
		return email.ErrNoRecipient
	}
	subject, body := renderEmail(s.EmailSubject, s.EmailBody, inv)

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.EmailTimeout)
	defer cancel()
	return o.email.Send(sendCtx, inv.ClientEmail, subject, body)
}
