// Package recurrence computes calendar occurrences for recurring schedules.
//
// A Rule is one of Daily, Weekly, Monthly, Quarterly or Yearly. Each variant
// carries only the fields meaningful to its frequency, so an invalid
// combination such as a weekly rule with a month cannot be constructed.
// Fields is the flat, nullable shape used for storage and transport.
package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

const (
	MinDayOfMonth = 1
	MaxDayOfMonth = 28
)

var ErrInvalidRule = errors.New("invalid_recurrence_rule")

type Rule interface {
	Frequency() Frequency
	// candidate returns the occurrence of this rule that falls in the same
	// period as t; it may be before t.
	candidate(t time.Time) time.Time
	next(anchor time.Time) time.Time
}

type Daily struct{}

type Weekly struct {
	Weekday time.Weekday
}

type Monthly struct {
	Day int
}

type Quarterly struct {
	Day int
}

type Yearly struct {
	Month time.Month
	Day   int
}

func (Daily) Frequency() Frequency     { return FrequencyDaily }
func (Weekly) Frequency() Frequency    { return FrequencyWeekly }
func (Monthly) Frequency() Frequency   { return FrequencyMonthly }
func (Quarterly) Frequency() Frequency { return FrequencyQuarterly }
func (Yearly) Frequency() Frequency    { return FrequencyYearly }

func (Daily) candidate(t time.Time) time.Time { return t }
func (Daily) next(anchor time.Time) time.Time { return anchor.AddDate(0, 0, 1) }

func (r Weekly) candidate(t time.Time) time.Time {
	ahead := (int(r.Weekday) - int(t.Weekday()) + 7) % 7
	return t.AddDate(0, 0, ahead)
}

func (r Weekly) next(anchor time.Time) time.Time {
	ahead := (int(r.Weekday) - int(anchor.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	return anchor.AddDate(0, 0, ahead)
}

func (r Monthly) candidate(t time.Time) time.Time {
	return date(t.Year(), t.Month(), r.Day)
}

func (r Monthly) next(anchor time.Time) time.Time {
	return date(anchor.Year(), anchor.Month()+1, r.Day)
}

func (r Quarterly) candidate(t time.Time) time.Time {
	return date(t.Year(), t.Month(), r.Day)
}

func (r Quarterly) next(anchor time.Time) time.Time {
	return date(anchor.Year(), anchor.Month()+3, r.Day)
}

func (r Yearly) candidate(t time.Time) time.Time {
	return date(t.Year(), r.Month, r.Day)
}

func (r Yearly) next(anchor time.Time) time.Time {
	return date(anchor.Year()+1, r.Month, r.Day)
}

// Fields is the flat representation of a Rule. Only the fields relevant to
// Frequency are read by Decode; Encode leaves the others nil.
type Fields struct {
	Frequency   string `json:"frequency"`
	DayOfMonth  *int   `json:"day_of_month,omitempty"`
	DayOfWeek   *int   `json:"day_of_week,omitempty"`
	MonthOfYear *int   `json:"month_of_year,omitempty"`
}

// FieldError describes one invalid rule field.
type FieldError struct {
	Field   string
	Code    string
	Message string
}

// FieldErrors is returned by Decode when a rule is invalid.
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "invalid recurrence rule: " + strings.Join(parts, "; ")
}

func (e FieldErrors) Is(target error) bool {
	return target == ErrInvalidRule
}

// Decode validates f and builds the matching Rule variant.
func Decode(f Fields) (Rule, error) {
	var errs FieldErrors
	need := func(field string, v *int, lo, hi int) int {
		if v == nil {
			errs = append(errs, FieldError{Field: field, Code: "required", Message: "is required for " + f.Frequency})
			return 0
		}
		if *v < lo || *v > hi {
			errs = append(errs, FieldError{Field: field, Code: "out_of_range", Message: fmt.Sprintf("must be between %d and %d", lo, hi)})
		}
		return *v
	}

	var rule Rule
	switch Frequency(strings.ToLower(strings.TrimSpace(f.Frequency))) {
	case FrequencyDaily:
		rule = Daily{}
	case FrequencyWeekly:
		rule = Weekly{Weekday: time.Weekday(need("day_of_week", f.DayOfWeek, 0, 6))}
	case FrequencyMonthly:
		rule = Monthly{Day: need("day_of_month", f.DayOfMonth, MinDayOfMonth, MaxDayOfMonth)}
	case FrequencyQuarterly:
		rule = Quarterly{Day: need("day_of_month", f.DayOfMonth, MinDayOfMonth, MaxDayOfMonth)}
	case FrequencyYearly:
		month := need("month_of_year", f.MonthOfYear, 1, 12)
		day := need("day_of_month", f.DayOfMonth, MinDayOfMonth, MaxDayOfMonth)
		rule = Yearly{Month: time.Month(month), Day: day}
	default:
		errs = append(errs, FieldError{Field: "frequency", Code: "invalid", Message: "must be one of daily, weekly, monthly, quarterly, yearly"})
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return rule, nil
}

// Encode flattens r for persistence.
func Encode(r Rule) Fields {
	f := Fields{Frequency: string(r.Frequency())}
	switch v := r.(type) {
	case Weekly:
		f.DayOfWeek = intPtr(int(v.Weekday))
	case Monthly:
		f.DayOfMonth = intPtr(v.Day)
	case Quarterly:
		f.DayOfMonth = intPtr(v.Day)
	case Yearly:
		f.MonthOfYear = intPtr(int(v.Month))
		f.DayOfMonth = intPtr(v.Day)
	}
	return f
}

func intPtr(v int) *int { return &v }

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
