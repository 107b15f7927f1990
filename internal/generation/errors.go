package generation

import "errors"

var (
	// ErrConcurrencyConflict means another caller is generating, or already
	// generated, this occurrence. Callers treat it as a skip.
	ErrConcurrencyConflict = errors.New("generation_concurrency_conflict")
	// ErrNotDue means a scheduled attempt no longer matches the schedule's next
	// date, usually because an earlier attempt already advanced it.
	ErrNotDue = errors.New("generation_not_due")
	// ErrGenerationFailed wraps the cause of a failed attempt. A failed log
	// entry has been written and the schedule is unchanged.
	ErrGenerationFailed = errors.New("generation_failed")
)
