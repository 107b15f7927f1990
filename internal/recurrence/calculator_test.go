package recurrence

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func ip(v int) *int { return &v }

func TestComputeNextDailyAddsOneDay(t *testing.T) {
	for _, anchor := range []string{"2024-01-31", "2024-02-28", "2024-02-29", "2023-12-31", "2024-06-15"} {
		got := ComputeNext(d(anchor), Daily{})
		assert.Equal(t, d(anchor).AddDate(0, 0, 1), got, anchor)
	}
}

func TestComputeNextWeekly(t *testing.T) {
	thursday := Weekly{Weekday: time.Thursday}

	// 2024-01-01 is a Monday.
	assert.Equal(t, d("2024-01-04"), ComputeNext(d("2024-01-01"), thursday))
	// Anchor on the matching weekday advances a full week.
	assert.Equal(t, d("2024-01-11"), ComputeNext(d("2024-01-04"), thursday))
	// Friday rolls into the following week.
	assert.Equal(t, d("2024-01-11"), ComputeNext(d("2024-01-05"), thursday))
}

func TestComputeNextMonthlyQuarterlyYearly(t *testing.T) {
	assert.Equal(t, d("2024-02-05"), ComputeNext(d("2024-01-05"), Monthly{Day: 5}))
	assert.Equal(t, d("2025-01-28"), ComputeNext(d("2024-12-28"), Monthly{Day: 28}))
	assert.Equal(t, d("2024-05-10"), ComputeNext(d("2024-02-10"), Quarterly{Day: 10}))
	assert.Equal(t, d("2025-02-10"), ComputeNext(d("2024-11-10"), Quarterly{Day: 10}))
	assert.Equal(t, d("2025-04-01"), ComputeNext(d("2024-04-01"), Yearly{Month: time.April, Day: 1}))
}

func TestComputeNextIgnoresTimeOfDay(t *testing.T) {
	anchor := time.Date(2024, 3, 5, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, d("2024-04-05"), ComputeNext(anchor, Monthly{Day: 5}))
}

func TestComputeFirst(t *testing.T) {
	cases := []struct {
		name  string
		start string
		rule  Rule
		want  string
	}{
		{name: "daily", start: "2024-01-05", rule: Daily{}, want: "2024-01-05"},
		{name: "weekly_same_day", start: "2024-01-04", rule: Weekly{Weekday: time.Thursday}, want: "2024-01-04"},
		{name: "weekly_later", start: "2024-01-01", rule: Weekly{Weekday: time.Thursday}, want: "2024-01-04"},
		{name: "monthly_on_day", start: "2024-01-05", rule: Monthly{Day: 5}, want: "2024-01-05"},
		{name: "monthly_before_day", start: "2024-01-02", rule: Monthly{Day: 5}, want: "2024-01-05"},
		{name: "monthly_after_day", start: "2024-01-20", rule: Monthly{Day: 5}, want: "2024-02-05"},
		{name: "quarterly_after_day", start: "2024-01-20", rule: Quarterly{Day: 5}, want: "2024-04-05"},
		{name: "yearly_this_year", start: "2024-01-20", rule: Yearly{Month: time.March, Day: 1}, want: "2024-03-01"},
		{name: "yearly_next_year", start: "2024-03-02", rule: Yearly{Month: time.March, Day: 1}, want: "2025-03-01"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, d(tc.want), ComputeFirst(d(tc.start), tc.rule))
		})
	}
}

func TestRollForwardKeepsCadence(t *testing.T) {
	rule := Monthly{Day: 5}
	assert.Equal(t, d("2024-06-05"), RollForward(d("2024-02-05"), d("2024-05-20"), rule))
	assert.Equal(t, d("2024-05-20"), RollForward(d("2024-05-20"), d("2024-05-20"), Daily{}))
	assert.Equal(t, d("2024-09-05"), RollForward(d("2024-09-05"), d("2024-05-20"), rule))
}

func TestDecodeValidatesRanges(t *testing.T) {
	_, err := Decode(Fields{Frequency: "monthly", DayOfMonth: ip(31)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRule))
	var fieldErrs FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Equal(t, "day_of_month", fieldErrs[0].Field)
	assert.Equal(t, "out_of_range", fieldErrs[0].Code)

	_, err = Decode(Fields{Frequency: "weekly", DayOfWeek: ip(7)})
	assert.ErrorIs(t, err, ErrInvalidRule)

	_, err = Decode(Fields{Frequency: "yearly", DayOfMonth: ip(1)})
	require.ErrorAs(t, err, &fieldErrs)
	assert.Equal(t, "month_of_year", fieldErrs[0].Field)

	_, err = Decode(Fields{Frequency: "fortnightly"})
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestDecodeIgnoresIrrelevantFields(t *testing.T) {
	rule, err := Decode(Fields{Frequency: "weekly", DayOfWeek: ip(4), DayOfMonth: ip(31), MonthOfYear: ip(2)})
	require.NoError(t, err)
	assert.Equal(t, Weekly{Weekday: time.Thursday}, rule)

	encoded := Encode(rule)
	assert.Nil(t, encoded.DayOfMonth)
	assert.Nil(t, encoded.MonthOfYear)
	require.NotNil(t, encoded.DayOfWeek)
	assert.Equal(t, 4, *encoded.DayOfWeek)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "2024-01-05", Key(time.Date(2024, 1, 5, 13, 0, 0, 0, time.UTC)))
}
