// Package generationtest wires a generation orchestrator over an in-memory
// database for tests of the packages that drive it.
package generationtest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicely/internal/clock"
	"github.com/smallbiznis/invoicely/internal/config"
	directorydomain "github.com/smallbiznis/invoicely/internal/directory/domain"
	directoryrepo "github.com/smallbiznis/invoicely/internal/directory/repository"
	"github.com/smallbiznis/invoicely/internal/generation"
	logdomain "github.com/smallbiznis/invoicely/internal/generationlog/domain"
	logrepo "github.com/smallbiznis/invoicely/internal/generationlog/repository"
	invoicedomain "github.com/smallbiznis/invoicely/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/invoicely/internal/invoice/repository"
	"github.com/smallbiznis/invoicely/internal/lease"
	"github.com/smallbiznis/invoicely/internal/recurrence"
	scheduledomain "github.com/smallbiznis/invoicely/internal/schedule/domain"
	schedulerepo "github.com/smallbiznis/invoicely/internal/schedule/repository"
	taxservice "github.com/smallbiznis/invoicely/internal/tax/service"
	"github.com/smallbiznis/invoicely/internal/testutil/dbtest"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	OrgID        snowflake.ID = 1
	ClientID     snowflake.ID = 5
	CatalogID    snowflake.ID = 9
	OrgStateCode              = "29"
)

// ErrInjected is returned by FlakyStore while failures remain.
var ErrInjected = errors.New("injected persistence failure")

type Env struct {
	DB           *gorm.DB
	Clock        *clock.FakeClock
	Node         *snowflake.Node
	Config       *config.SchedulerConfigHolder
	Schedules    scheduledomain.Repository
	Logs         logdomain.Repository
	Invoices     *FlakyStore
	Directory    *HookDirectory
	Email        *RecordingEmail
	Orchestrator *generation.Orchestrator
}

// New builds an environment whose clock reads now. The scheduler timezone is
// UTC so "today" follows the clock's date.
func New(t *testing.T, now time.Time) *Env {
	t.Helper()

	conn := dbtest.Open(t,
		&scheduledomain.Schedule{},
		&scheduledomain.ScheduleItem{},
		&logdomain.Entry{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&invoicedomain.InvoiceSequence{},
		&directorydomain.Client{},
		&directorydomain.CatalogItem{},
	)
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}

	cfg := config.DefaultSchedulerConfig()
	cfg.Timezone = "UTC"
	cfg.LeaseTTL = time.Minute
	cfg.EmailTimeout = time.Second

	env := &Env{
		DB:        conn,
		Clock:     clock.NewFakeClock(now),
		Node:      node,
		Config:    config.NewStaticSchedulerConfigHolder(cfg),
		Schedules: schedulerepo.NewRepository(conn),
		Logs:      logrepo.NewRepository(conn),
		Invoices:  &FlakyStore{Store: invoicerepo.NewStore(conn), failures: new(atomic.Int32)},
		Directory: &HookDirectory{Directory: directoryrepo.Provide(conn)},
		Email:     &RecordingEmail{},
	}
	env.Orchestrator = generation.NewOrchestrator(generation.Params{
		DB:              conn,
		Log:             zap.NewNop(),
		GenID:           node,
		Clock:           env.Clock,
		Config:          config.Config{OrgStateCode: OrgStateCode},
		SchedulerConfig: env.Config,
		Schedules:       env.Schedules,
		Logs:            env.Logs,
		Invoices:        env.Invoices,
		Numbers:         invoicerepo.NewNumberAllocator(config.Config{}),
		Directory:       env.Directory,
		Tax:             taxservice.NewEngine(),
		Lease:           lease.NewLocal(env.Clock),
		Email:           env.Email,
	})

	env.seedDirectory(t)
	return env
}

func (e *Env) seedDirectory(t *testing.T) {
	t.Helper()
	now := e.Clock.Now()
	rate := decimal.NewFromInt(2500)
	if err := e.DB.Create(&directorydomain.Client{
		ID: ClientID, OrgID: OrgID, Name: "Acme Traders", Email: "ap@acme.test", GSTIN: "29ABCDE1234F1Z5",
		CreatedAt: now, UpdatedAt: now,
	}).Error; err != nil {
		t.Fatalf("seed client: %v", err)
	}
	if err := e.DB.Create(&directorydomain.CatalogItem{
		ID: CatalogID, OrgID: OrgID, Name: "Managed hosting", HSNSAC: "998315", GSTRate: decimal.NewFromInt(18), Rate: &rate,
		CreatedAt: now, UpdatedAt: now,
	}).Error; err != nil {
		t.Fatalf("seed catalog item: %v", err)
	}
}

// Date returns the UTC midnight of the given day.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewSchedule stores an active monthly schedule generating on the 5th from
// 2024-01-05 with a single 1000.00 line at 18%. mutate runs before the row is
// written.
func (e *Env) NewSchedule(t *testing.T, mutate func(*scheduledomain.Schedule)) *scheduledomain.Schedule {
	t.Helper()
	now := e.Clock.Now()
	id := e.Node.Generate()
	amount := decimal.NewFromInt(1000)
	next := Date(2024, 1, 5)
	s := &scheduledomain.Schedule{
		ID:                 id,
		OrgID:              OrgID,
		Name:               "Monthly retainer",
		ClientID:           ClientID,
		InvoiceType:        scheduledomain.InvoiceTypeTax,
		StartDate:          Date(2024, 1, 5),
		Status:             scheduledomain.StatusActive,
		NextGenerationDate: &next,
		Revision:           1,
		CreatedAt:          now,
		UpdatedAt:          now,
		Items: []scheduledomain.ScheduleItem{{
			ID:            e.Node.Generate(),
			OrgID:         OrgID,
			ScheduleID:    id,
			Description:   "Retainer",
			GSTRate:       decimal.NewFromInt(18),
			TaxableAmount: &amount,
			CreatedAt:     now,
		}},
	}
	s.SetRule(recurrence.Monthly{Day: 5})
	if mutate != nil {
		mutate(s)
	}
	if err := e.Schedules.Create(context.Background(), s); err != nil {
		t.Fatalf("create schedule: %v", err)
	}
	return s
}

// Reload reads the schedule back from the database.
func (e *Env) Reload(t *testing.T, id snowflake.ID) *scheduledomain.Schedule {
	t.Helper()
	s, err := e.Schedules.LoadByID(context.Background(), id)
	if err != nil || s == nil {
		t.Fatalf("reload schedule %s: %v", id, err)
	}
	return s
}

// InvoicesFor lists the invoices of a schedule in creation order.
func (e *Env) InvoicesFor(t *testing.T, scheduleID snowflake.ID) []invoicedomain.Invoice {
	t.Helper()
	var invoices []invoicedomain.Invoice
	if err := e.DB.Where("schedule_id = ?", scheduleID).Order("created_at ASC, id ASC").Find(&invoices).Error; err != nil {
		t.Fatalf("list invoices: %v", err)
	}
	return invoices
}

// EntriesFor lists the log entries of a schedule oldest first.
func (e *Env) EntriesFor(t *testing.T, scheduleID snowflake.ID) []logdomain.Entry {
	t.Helper()
	var entries []logdomain.Entry
	if err := e.DB.Where("schedule_id = ?", scheduleID).Order("created_at ASC, id ASC").Find(&entries).Error; err != nil {
		t.Fatalf("list entries: %v", err)
	}
	return entries
}

// FlakyStore fails the next n inserts with ErrInjected.
type FlakyStore struct {
	invoicedomain.Store
	failures *atomic.Int32
}

func (s *FlakyStore) FailNext(n int) {
	s.failures.Store(int32(n))
}

func (s *FlakyStore) WithTx(tx *gorm.DB) invoicedomain.Store {
	return &FlakyStore{Store: s.Store.WithTx(tx), failures: s.failures}
}

func (s *FlakyStore) Insert(ctx context.Context, inv *invoicedomain.Invoice) error {
	if s.failures.Add(-1) >= 0 {
		return ErrInjected
	}
	s.failures.Store(0)
	return s.Store.Insert(ctx, inv)
}

// HookDirectory runs BeforeClient ahead of every client lookup.
type HookDirectory struct {
	directorydomain.Directory
	BeforeClient func(ctx context.Context)
}

func (d *HookDirectory) GetClient(ctx context.Context, orgID, clientID snowflake.ID) (*directorydomain.Client, error) {
	if d.BeforeClient != nil {
		d.BeforeClient(ctx)
	}
	return d.Directory.GetClient(ctx, orgID, clientID)
}

type Mail struct {
	To      string
	Subject string
	Body    string
}

// RecordingEmail captures sent mail and fails with Err when it is set.
type RecordingEmail struct {
	mu   sync.Mutex
	Err  error
	sent []Mail
}

func (r *RecordingEmail) Send(_ context.Context, to, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, Mail{To: to, Subject: subject, Body: body})
	return nil
}

func (r *RecordingEmail) Sent() []Mail {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Mail(nil), r.sent...)
}
