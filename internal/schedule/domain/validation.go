package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicely/internal/recurrence"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidatedInput is a ScheduleInput after parsing and range checks.
type ValidatedInput struct {
	Name            string
	ClientID        snowflake.ID
	InvoiceType     InvoiceType
	Rule            recurrence.Rule
	StartDate       time.Time
	EndDate         *time.Time
	MaxOccurrences  *int
	PaymentTermID   *snowflake.ID
	PaymentTermDays *int
	Notes           string
	AutoSendEmail   bool
	EmailSubject    *string
	EmailBody       *string
	Items           []ValidatedItem
}

type ValidatedItem struct {
	CatalogItemID *snowflake.ID
	Description   string
	HSNSAC        string
	GSTRate       decimal.Decimal
	Quantity      *decimal.Decimal
	Rate          *decimal.Decimal
	TaxableAmount *decimal.Decimal
}

var maxGSTRate = decimal.NewFromInt(100)

// Validate checks every field and reports all problems at once.
func (in ScheduleInput) Validate() (*ValidatedInput, error) {
	errs := &ValidationErrors{}
	out := &ValidatedInput{
		Name:            strings.TrimSpace(in.Name),
		InvoiceType:     in.InvoiceType,
		MaxOccurrences:  in.MaxOccurrences,
		PaymentTermDays: in.PaymentTermDays,
		Notes:           strings.TrimSpace(in.Notes),
		AutoSendEmail:   in.AutoSendEmail,
		EmailSubject:    trimmedOrNil(in.EmailSubject),
		EmailBody:       trimmedOrNil(in.EmailBody),
	}

	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, err
		}
		for _, fe := range verrs {
			errs.add(fieldPath(fe), fe.Tag(), tagMessage(fe))
		}
	}
	if out.Name == "" && !errs.has("name") {
		errs.add("name", "required", "is required")
	}

	if in.ClientID != "" {
		id, err := snowflake.ParseString(strings.TrimSpace(in.ClientID))
		if err != nil || id == 0 {
			errs.add("client_id", "invalid", "must be a valid id")
		}
		out.ClientID = id
	}
	if in.PaymentTermID != nil && strings.TrimSpace(*in.PaymentTermID) != "" {
		id, err := snowflake.ParseString(strings.TrimSpace(*in.PaymentTermID))
		if err != nil {
			errs.add("payment_term_id", "invalid", "must be a valid id")
		} else {
			out.PaymentTermID = &id
		}
	}

	rule, err := recurrence.Decode(recurrence.Fields{
		Frequency:   in.Frequency,
		DayOfMonth:  in.DayOfMonth,
		DayOfWeek:   in.DayOfWeek,
		MonthOfYear: in.MonthOfYear,
	})
	if err != nil {
		var ruleErrs recurrence.FieldErrors
		if !errors.As(err, &ruleErrs) {
			return nil, err
		}
		for _, fe := range ruleErrs {
			if fe.Field == "frequency" && errs.has("frequency") {
				continue
			}
			errs.add(fe.Field, fe.Code, fe.Message)
		}
	}
	out.Rule = rule

	if start, err := time.Parse(time.DateOnly, in.StartDate); err == nil {
		out.StartDate = start
	}
	if in.EndDate != nil {
		if end, err := time.Parse(time.DateOnly, *in.EndDate); err == nil {
			out.EndDate = &end
			if !out.StartDate.IsZero() && end.Before(out.StartDate) {
				errs.add("end_date", "before_start", "must not be before start_date")
			}
		}
	}

	for i, item := range in.Items {
		prefix := fmt.Sprintf("items[%d].", i)
		vi := ValidatedItem{
			Description:   strings.TrimSpace(item.Description),
			HSNSAC:        strings.TrimSpace(item.HSNSAC),
			GSTRate:       item.GSTRate,
			Quantity:      item.Quantity,
			Rate:          item.Rate,
			TaxableAmount: item.TaxableAmount,
		}
		if item.CatalogItemID != nil && strings.TrimSpace(*item.CatalogItemID) != "" {
			id, err := snowflake.ParseString(strings.TrimSpace(*item.CatalogItemID))
			if err != nil {
				errs.add(prefix+"catalog_item_id", "invalid", "must be a valid id")
			} else {
				vi.CatalogItemID = &id
			}
		}
		if item.GSTRate.IsNegative() || item.GSTRate.GreaterThan(maxGSTRate) {
			errs.add(prefix+"gst_rate", "out_of_range", "must be between 0 and 100")
		}
		for _, amount := range []struct {
			name  string
			value *decimal.Decimal
		}{
			{"quantity", item.Quantity},
			{"rate", item.Rate},
			{"taxable_amount", item.TaxableAmount},
		} {
			if amount.value != nil && amount.value.IsNegative() {
				errs.add(prefix+amount.name, "negative", "must not be negative")
			}
		}
		hasProduct := item.Quantity != nil && item.Rate != nil
		if !hasProduct && item.TaxableAmount == nil {
			errs.add(prefix+"taxable_amount", "required", "is required unless quantity and rate are given")
		}
		out.Items = append(out.Items, vi)
	}

	if err := errs.orNil(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *ValidationErrors) has(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// fieldPath turns "ScheduleInput.items[0].description" into "items[0].description".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		ns = ns[idx+1:]
	}
	return ns
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "datetime":
		return "must be a date in YYYY-MM-DD form"
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "min":
		return "must contain at least " + fe.Param() + " entry"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
