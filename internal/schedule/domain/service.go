package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	logdomain "github.com/smallbiznis/invoicely/internal/generationlog/domain"
	"github.com/smallbiznis/invoicely/pkg/db/pagination"
)

// Service is the schedule control surface. Every call is scoped to the
// organization carried in the context.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	Pause(ctx context.Context, id string) (*Response, error)
	Resume(ctx context.Context, id string) (*Response, error)
	Cancel(ctx context.Context, id string) (*Response, error)
	Delete(ctx context.Context, id string) error
	GenerateNow(ctx context.Context, id string) (*GenerateResponse, error)
	GetLogs(ctx context.Context, id string, page pagination.Pagination) (*LogsResponse, error)
	GetStats(ctx context.Context) (*Stats, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
}

type LineItemInput struct {
	CatalogItemID *string          `json:"catalog_item_id,omitempty"`
	Description   string           `json:"description" validate:"required_without=CatalogItemID,max=500"`
	HSNSAC        string           `json:"hsn_sac" validate:"omitempty,max=8"`
	GSTRate       decimal.Decimal  `json:"gst_rate"`
	Quantity      *decimal.Decimal `json:"quantity,omitempty"`
	Rate          *decimal.Decimal `json:"rate,omitempty"`
	TaxableAmount *decimal.Decimal `json:"taxable_amount,omitempty"`
}

// ScheduleInput is the full editable content of a schedule. Dates use the
// YYYY-MM-DD form.
type ScheduleInput struct {
	Name        string      `json:"name" validate:"required,max=200"`
	ClientID    string      `json:"client_id" validate:"required"`
	InvoiceType InvoiceType `json:"invoice_type" validate:"required,oneof=proforma tax"`

	Frequency   string `json:"frequency" validate:"required"`
	DayOfMonth  *int   `json:"day_of_month,omitempty"`
	DayOfWeek   *int   `json:"day_of_week,omitempty"`
	MonthOfYear *int   `json:"month_of_year,omitempty"`

	StartDate      string  `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate        *string `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	MaxOccurrences *int    `json:"max_occurrences,omitempty" validate:"omitempty,gte=1"`

	PaymentTermID   *string `json:"payment_term_id,omitempty"`
	PaymentTermDays *int    `json:"payment_term_days,omitempty" validate:"omitempty,gte=0,lte=365"`
	Notes           string  `json:"notes" validate:"max=2000"`
	AutoSendEmail   bool    `json:"auto_send_email"`
	EmailSubject    *string `json:"email_subject,omitempty" validate:"omitempty,max=300"`
	EmailBody       *string `json:"email_body,omitempty" validate:"omitempty,max=10000"`

	Items []LineItemInput `json:"items" validate:"required,min=1,dive"`
}

type CreateRequest struct {
	ScheduleInput
}

// UpdateRequest replaces the editable content of a schedule.
type UpdateRequest struct {
	ID string `json:"-"`
	ScheduleInput
}

type ListRequest struct {
	Search string `form:"search"`
	Status string `form:"status"`
}

type ItemResponse struct {
	ID            string           `json:"id"`
	CatalogItemID *string          `json:"catalog_item_id,omitempty"`
	Description   string           `json:"description"`
	HSNSAC        string           `json:"hsn_sac"`
	GSTRate       decimal.Decimal  `json:"gst_rate"`
	Quantity      *decimal.Decimal `json:"quantity,omitempty"`
	Rate          *decimal.Decimal `json:"rate,omitempty"`
	TaxableAmount *decimal.Decimal `json:"taxable_amount,omitempty"`
}

type Response struct {
	ID                   string         `json:"id"`
	OrgID                string         `json:"org_id"`
	Name                 string         `json:"name"`
	ClientID             string         `json:"client_id"`
	InvoiceType          InvoiceType    `json:"invoice_type"`
	Frequency            string         `json:"frequency"`
	DayOfMonth           *int           `json:"day_of_month,omitempty"`
	DayOfWeek            *int           `json:"day_of_week,omitempty"`
	MonthOfYear          *int           `json:"month_of_year,omitempty"`
	StartDate            string         `json:"start_date"`
	EndDate              *string        `json:"end_date,omitempty"`
	MaxOccurrences       *int           `json:"max_occurrences,omitempty"`
	OccurrencesGenerated int            `json:"occurrences_generated"`
	Status               Status         `json:"status"`
	NextGenerationDate   *string        `json:"next_generation_date,omitempty"`
	LastGeneratedAt      *time.Time     `json:"last_generated_at,omitempty"`
	PaymentTermID        *string        `json:"payment_term_id,omitempty"`
	PaymentTermDays      *int           `json:"payment_term_days,omitempty"`
	Notes                string         `json:"notes"`
	AutoSendEmail        bool           `json:"auto_send_email"`
	EmailSubject         *string        `json:"email_subject,omitempty"`
	EmailBody            *string        `json:"email_body,omitempty"`
	Items                []ItemResponse `json:"items"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

type GenerateResponse struct {
	Log      logdomain.Entry `json:"log"`
	Schedule Response        `json:"schedule"`
}

type LogsResponse struct {
	Entries  []logdomain.Entry   `json:"entries"`
	PageInfo pagination.PageInfo `json:"page_info"`
}
