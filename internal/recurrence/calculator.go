package recurrence

import "time"

// Date truncates t to midnight UTC of its calendar day in t's location.
func Date(t time.Time) time.Time {
	return date(t.Year(), t.Month(), t.Day())
}

// Today returns the calendar date of now in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Date(now.In(loc))
}

// ComputeNext returns the occurrence strictly after anchor. Callers always
// anchor on the previous scheduled date, never on the current time, so a
// delayed tick does not shift later occurrences.
func ComputeNext(anchor time.Time, rule Rule) time.Time {
	return rule.next(Date(anchor))
}

// ComputeFirst returns the first occurrence on or after start. A start date
// that is itself an occurrence day is the first occurrence.
func ComputeFirst(start time.Time, rule Rule) time.Time {
	start = Date(start)
	first := rule.candidate(start)
	if first.Before(start) {
		first = rule.next(first)
	}
	return first
}

// RollForward advances stored along the rule until it is on or after today.
func RollForward(stored, today time.Time, rule Rule) time.Time {
	next := Date(stored)
	today = Date(today)
	for next.Before(today) {
		next = rule.next(next)
	}
	return next
}

// Key is the occurrence key for a scheduled occurrence on d.
func Key(d time.Time) string {
	return Date(d).Format(time.DateOnly)
}
