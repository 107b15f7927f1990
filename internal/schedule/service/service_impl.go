package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicely/internal/clock"
	"github.com/smallbiznis/invoicely/internal/config"
	directorydomain "github.com/smallbiznis/invoicely/internal/directory/domain"
	"github.com/smallbiznis/invoicely/internal/generation"
	logdomain "github.com/smallbiznis/invoicely/internal/generationlog/domain"
	"github.com/smallbiznis/invoicely/internal/orgcontext"
	"github.com/smallbiznis/invoicely/internal/recurrence"
	"github.com/smallbiznis/invoicely/internal/schedule/domain"
	"github.com/smallbiznis/invoicely/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Generator runs a generation attempt for a schedule.
type Generator interface {
	Attempt(ctx context.Context, scheduleID snowflake.ID, trigger logdomain.Trigger, intended time.Time) (*logdomain.Entry, error)
}

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	SchedulerConfig *config.SchedulerConfigHolder
	Repo            domain.Repository
	Logs            logdomain.Repository
	Directory       directorydomain.Directory
	Generator       Generator
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	cfg       *config.SchedulerConfigHolder
	repo      domain.Repository
	logs      logdomain.Repository
	directory directorydomain.Directory
	generator Generator
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("schedule.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		cfg:       p.SchedulerConfig,
		repo:      p.Repo,
		logs:      p.Logs,
		directory: p.Directory,
		generator: p.Generator,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	in, err := req.ScheduleInput.Validate()
	if err != nil {
		return nil, err
	}
	if err := s.checkReferences(ctx, orgID, in); err != nil {
		return nil, err
	}

	first := recurrence.ComputeFirst(in.StartDate, in.Rule)
	if in.EndDate != nil && first.After(*in.EndDate) {
		return nil, domain.NewFieldError("end_date", "no_occurrence", "leaves no occurrence after start_date")
	}

	now := s.clock.Now().UTC()
	schedule := &domain.Schedule{
		ID:                 s.genID.Generate(),
		OrgID:              orgID,
		Status:             domain.StatusActive,
		NextGenerationDate: &first,
		CreatedAt:          now,
	}
	s.apply(schedule, in, now)

	if err := s.repo.Create(ctx, schedule); err != nil {
		return nil, err
	}

	s.log.Info("schedule.created",
		zap.String("org_id", orgID.String()),
		zap.String("schedule_id", schedule.ID.String()),
		zap.String("frequency", string(schedule.Frequency)),
		zap.String("next_generation_date", recurrence.Key(first)),
	)
	resp := toResponse(schedule)
	return &resp, nil
}

// Update replaces the editable content of an active or paused schedule and
// recomputes its next date.
func (s *Service) Update(ctx context.Context, req domain.UpdateRequest) (*domain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	id, err := s.parseID(req.ID)
	if err != nil {
		return nil, err
	}

	in, err := req.ScheduleInput.Validate()
	if err != nil {
		return nil, err
	}
	if err := s.checkReferences(ctx, orgID, in); err != nil {
		return nil, err
	}

	err = s.mutate(ctx, orgID, id, func(tx *gorm.DB, schedule *domain.Schedule, now time.Time) error {
		if err := schedule.CanUpdate(); err != nil {
			return err
		}
		s.apply(schedule, in, now)
		if err := schedule.Reschedule(now); err != nil {
			return err
		}
		return s.repo.WithTx(tx).Update(ctx, schedule)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, req.ID)
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	schedule, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toResponse(schedule)
	return &resp, nil
}

func (s *Service) Pause(ctx context.Context, id string) (*domain.Response, error) {
	return s.transition(ctx, id, "schedule.paused", func(schedule *domain.Schedule, _ time.Time, now time.Time) error {
		return schedule.Pause(now)
	})
}

func (s *Service) Resume(ctx context.Context, id string) (*domain.Response, error) {
	return s.transition(ctx, id, "schedule.resumed", func(schedule *domain.Schedule, today time.Time, now time.Time) error {
		return schedule.Resume(today, now)
	})
}

func (s *Service) Cancel(ctx context.Context, id string) (*domain.Response, error) {
	return s.transition(ctx, id, "schedule.cancelled", func(schedule *domain.Schedule, _ time.Time, now time.Time) error {
		return schedule.Cancel(now)
	})
}

func (s *Service) Delete(ctx context.Context, id string) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidOrganization
	}
	scheduleID, err := s.parseID(id)
	if err != nil {
		return err
	}

	err = s.mutate(ctx, orgID, scheduleID, func(tx *gorm.DB, schedule *domain.Schedule, _ time.Time) error {
		if err := schedule.CanDelete(); err != nil {
			return err
		}
		return s.repo.WithTx(tx).Delete(ctx, orgID, scheduleID)
	})
	if err != nil {
		return err
	}
	s.log.Info("schedule.deleted",
		zap.String("org_id", orgID.String()),
		zap.String("schedule_id", scheduleID.String()),
	)
	return nil
}

// GenerateNow issues an out-of-cycle invoice dated today. A failed attempt
// returns the failed log entry together with the error.
func (s *Service) GenerateNow(ctx context.Context, id string) (*domain.GenerateResponse, error) {
	schedule, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := schedule.CanGenerate(); err != nil {
		return nil, err
	}

	entry, err := s.generator.Attempt(ctx, schedule.ID, logdomain.TriggerManual, time.Time{})
	if err != nil {
		if entry != nil && errors.Is(err, generation.ErrGenerationFailed) {
			resp := &domain.GenerateResponse{Log: *entry, Schedule: toResponse(schedule)}
			return resp, err
		}
		return nil, err
	}

	updated, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.GenerateResponse{Log: *entry, Schedule: toResponse(updated)}, nil
}

func (s *Service) GetLogs(ctx context.Context, id string, page pagination.Pagination) (*domain.LogsResponse, error) {
	schedule, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, info, err := s.logs.ListFor(ctx, schedule.OrgID, schedule.ID, page)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []logdomain.Entry{}
	}
	return &domain.LogsResponse{Entries: entries, PageInfo: info}, nil
}

func (s *Service) GetStats(ctx context.Context) (*domain.Stats, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	stats, err := s.repo.Stats(ctx, orgID)
	if err != nil {
		return nil, err
	}
	counts, err := s.logs.CountByStatus(ctx, orgID)
	if err != nil {
		return nil, err
	}
	stats.FailedGenerations = counts.Failed
	stats.EmailFailures = counts.EmailFailed
	return &stats, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	filter := domain.ListFilter{Search: strings.TrimSpace(req.Search)}
	if status := strings.TrimSpace(req.Status); status != "" {
		filter.Status = domain.Status(strings.ToLower(status))
		if !filter.Status.Valid() {
			return nil, domain.NewFieldError("status", "oneof", "must be one of active paused completed cancelled")
		}
	}

	schedules, err := s.repo.List(ctx, orgID, filter)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Response, 0, len(schedules))
	for i := range schedules {
		out = append(out, toResponse(&schedules[i]))
	}
	return out, nil
}

// transition applies a state change under the schedule row lock.
func (s *Service) transition(ctx context.Context, id, event string, fn func(schedule *domain.Schedule, today, now time.Time) error) (*domain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	scheduleID, err := s.parseID(id)
	if err != nil {
		return nil, err
	}

	var from, to domain.Status
	err = s.mutate(ctx, orgID, scheduleID, func(tx *gorm.DB, schedule *domain.Schedule, now time.Time) error {
		from = schedule.Status
		today := recurrence.Today(now, s.cfg.Get().Location())
		if err := fn(schedule, today, now); err != nil {
			return err
		}
		to = schedule.Status
		return s.repo.WithTx(tx).SaveState(ctx, schedule)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(event,
		zap.String("org_id", orgID.String()),
		zap.String("schedule_id", scheduleID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return s.Get(ctx, id)
}

// mutate locks the schedule row for the duration of fn so control operations
// serialize with in-flight generations.
func (s *Service) mutate(ctx context.Context, orgID, id snowflake.ID, fn func(tx *gorm.DB, schedule *domain.Schedule, now time.Time) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		schedule, err := s.repo.WithTx(tx).LockByID(ctx, id)
		if err != nil {
			return err
		}
		if schedule == nil || schedule.OrgID != orgID {
			return domain.ErrNotFound
		}
		return fn(tx, schedule, s.clock.Now().UTC())
	})
}

func (s *Service) find(ctx context.Context, id string) (*domain.Schedule, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	scheduleID, err := s.parseID(id)
	if err != nil {
		return nil, err
	}
	schedule, err := s.repo.FindByID(ctx, orgID, scheduleID)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, domain.ErrNotFound
	}
	return schedule, nil
}

// checkReferences confirms the client and catalog items exist in the
// organization.
func (s *Service) checkReferences(ctx context.Context, orgID snowflake.ID, in *domain.ValidatedInput) error {
	if _, err := s.directory.GetClient(ctx, orgID, in.ClientID); err != nil {
		if errors.Is(err, directorydomain.ErrClientNotFound) {
			return domain.NewFieldError("client_id", "not_found", "does not exist")
		}
		return err
	}
	for i, item := range in.Items {
		if item.CatalogItemID == nil {
			continue
		}
		if _, err := s.directory.GetCatalogItem(ctx, orgID, *item.CatalogItemID); err != nil {
			if errors.Is(err, directorydomain.ErrCatalogItemNotFound) {
				return domain.NewFieldError(fmt.Sprintf("items[%d].catalog_item_id", i), "not_found", "does not exist")
			}
			return err
		}
	}
	return nil
}

// apply copies validated content onto schedule and rebuilds its items.
func (s *Service) apply(schedule *domain.Schedule, in *domain.ValidatedInput, now time.Time) {
	schedule.Name = in.Name
	schedule.ClientID = in.ClientID
	schedule.InvoiceType = in.InvoiceType
	schedule.SetRule(in.Rule)
	schedule.StartDate = in.StartDate
	schedule.EndDate = in.EndDate
	schedule.MaxOccurrences = in.MaxOccurrences
	schedule.PaymentTermID = in.PaymentTermID
	schedule.PaymentTermDays = in.PaymentTermDays
	schedule.Notes = in.Notes
	schedule.AutoSendEmail = in.AutoSendEmail
	schedule.EmailSubject = in.EmailSubject
	schedule.EmailBody = in.EmailBody
	schedule.Revision++
	schedule.UpdatedAt = now

	schedule.Items = make([]domain.ScheduleItem, 0, len(in.Items))
	for i, item := range in.Items {
		schedule.Items = append(schedule.Items, domain.ScheduleItem{
			ID:            s.genID.Generate(),
			OrgID:         schedule.OrgID,
			ScheduleID:    schedule.ID,
			Position:      i,
			CatalogItemID: item.CatalogItemID,
			Description:   item.Description,
			HSNSAC:        item.HSNSAC,
			GSTRate:       item.GSTRate,
			Quantity:      item.Quantity,
			Rate:          item.Rate,
			TaxableAmount: item.TaxableAmount,
			CreatedAt:     now,
		})
	}
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func toResponse(s *domain.Schedule) domain.Response {
	resp := domain.Response{
		ID:                   s.ID.String(),
		OrgID:                s.OrgID.String(),
		Name:                 s.Name,
		ClientID:             s.ClientID.String(),
		InvoiceType:          s.InvoiceType,
		Frequency:            string(s.Frequency),
		DayOfMonth:           s.DayOfMonth,
		DayOfWeek:            s.DayOfWeek,
		MonthOfYear:          s.MonthOfYear,
		StartDate:            recurrence.Key(s.StartDate),
		EndDate:              dateString(s.EndDate),
		MaxOccurrences:       s.MaxOccurrences,
		OccurrencesGenerated: s.OccurrencesGenerated,
		Status:               s.Status,
		NextGenerationDate:   dateString(s.NextGenerationDate),
		LastGeneratedAt:      s.LastGeneratedAt,
		PaymentTermDays:      s.PaymentTermDays,
		Notes:                s.Notes,
		AutoSendEmail:        s.AutoSendEmail,
		EmailSubject:         s.EmailSubject,
		EmailBody:            s.EmailBody,
		Items:                make([]domain.ItemResponse, 0, len(s.Items)),
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
	if s.PaymentTermID != nil {
		v := s.PaymentTermID.String()
		resp.PaymentTermID = &v
	}
	for _, item := range s.Items {
		ir := domain.ItemResponse{
			ID:            item.ID.String(),
			Description:   item.Description,
			HSNSAC:        item.HSNSAC,
			GSTRate:       item.GSTRate,
			Quantity:      item.Quantity,
			Rate:          item.Rate,
			TaxableAmount: item.TaxableAmount,
		}
		if item.CatalogItemID != nil {
			v := item.CatalogItemID.String()
			ir.CatalogItemID = &v
		}
		resp.Items = append(resp.Items, ir)
	}
	return resp
}

func dateString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := recurrence.Key(*t)
	return &v
}
