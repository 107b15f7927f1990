package domain

import (
	"fmt"
	"time"

	"github.com/smallbiznis/invoicely/internal/recurrence"
)

const (
	OpPause    = "pause"
	OpResume   = "resume"
	OpCancel   = "cancel"
	OpDelete   = "delete"
	OpUpdate   = "update"
	OpGenerate = "generate"
)

// IllegalTransitionError reports an operation that the schedule's current
// status does not allow. It matches ErrIllegalStateTransition.
type IllegalTransitionError struct {
	Op   string
	From Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a %s schedule", e.Op, e.From)
}

func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalStateTransition
}

func illegal(op string, from Status) error {
	return &IllegalTransitionError{Op: op, From: from}
}

func (s *Schedule) IsTerminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusCancelled
}

// Pause moves an active schedule to paused. The next date is kept.
func (s *Schedule) Pause(now time.Time) error {
	if s.Status != StatusActive {
		return illegal(OpPause, s.Status)
	}
	s.Status = StatusPaused
	s.UpdatedAt = now
	return nil
}

// Resume reactivates a paused schedule. Occurrences missed while paused are
// skipped: a next date before today is rolled forward along the rule, so the
// cadence is kept and no backlog is generated. A schedule whose rolled date
// passes its end date completes instead.
func (s *Schedule) Resume(today, now time.Time) error {
	if s.Status != StatusPaused {
		return illegal(OpResume, s.Status)
	}
	rule, err := s.Rule()
	if err != nil {
		return err
	}

	next := recurrence.ComputeFirst(s.StartDate, rule)
	if s.NextGenerationDate != nil {
		next = *s.NextGenerationDate
	}
	if next.Before(today) {
		next = recurrence.RollForward(next, today, rule)
	}

	s.UpdatedAt = now
	if s.EndDate != nil && next.After(*s.EndDate) {
		s.complete()
		return nil
	}
	s.Status = StatusActive
	s.NextGenerationDate = &next
	return nil
}

// Cancel terminates an active or paused schedule.
func (s *Schedule) Cancel(now time.Time) error {
	if s.IsTerminal() {
		return illegal(OpCancel, s.Status)
	}
	s.Status = StatusCancelled
	s.NextGenerationDate = nil
	s.UpdatedAt = now
	return nil
}

// CanDelete allows removal only once the schedule can no longer generate.
func (s *Schedule) CanDelete() error {
	if !s.IsTerminal() {
		return illegal(OpDelete, s.Status)
	}
	return nil
}

func (s *Schedule) CanUpdate() error {
	if s.IsTerminal() {
		return illegal(OpUpdate, s.Status)
	}
	return nil
}

// CanGenerate allows generation, scheduled or manual, only while active.
func (s *Schedule) CanGenerate() error {
	if s.Status != StatusActive {
		return illegal(OpGenerate, s.Status)
	}
	if s.LimitReached() {
		return ErrOccurrenceLimitReached
	}
	return nil
}

func (s *Schedule) LimitReached() bool {
	return s.MaxOccurrences != nil && s.OccurrencesGenerated >= *s.MaxOccurrences
}

// RecordScheduledGeneration applies a successful generation of the occurrence
// at NextGenerationDate: the counter increments and the next date advances
// from the previous one. The schedule completes when the occurrence limit is
// reached or the following occurrence would fall after the end date.
func (s *Schedule) RecordScheduledGeneration(now time.Time) error {
	rule, err := s.Rule()
	if err != nil {
		return err
	}
	if s.NextGenerationDate == nil {
		return ErrNoNextGenerationDate
	}
	occurred := *s.NextGenerationDate
	s.OccurrencesGenerated++
	s.LastOccurrenceDate = &occurred
	s.LastGeneratedAt = &now
	s.UpdatedAt = now

	if s.Status != StatusActive && s.Status != StatusPaused {
		return nil
	}
	if s.LimitReached() {
		s.complete()
		return nil
	}
	next := recurrence.ComputeNext(occurred, rule)
	if s.EndDate != nil && next.After(*s.EndDate) {
		s.complete()
		return nil
	}
	s.NextGenerationDate = &next
	return nil
}

// RecordManualGeneration applies a successful out-of-cycle generation. The
// next date is untouched but the occurrence limit still applies.
func (s *Schedule) RecordManualGeneration(now time.Time) {
	s.OccurrencesGenerated++
	s.LastGeneratedAt = &now
	s.UpdatedAt = now
	if s.LimitReached() && !s.IsTerminal() {
		s.complete()
	}
}

// Reschedule recomputes the next date after an edit to the rule, dates or
// limit. Generated occurrences are never repeated: the next date stays after
// the last scheduled occurrence. A schedule left with nothing to generate
// completes.
func (s *Schedule) Reschedule(now time.Time) error {
	if err := s.CanUpdate(); err != nil {
		return err
	}
	rule, err := s.Rule()
	if err != nil {
		return err
	}

	next := recurrence.ComputeFirst(s.StartDate, rule)
	if s.LastOccurrenceDate != nil && !next.After(*s.LastOccurrenceDate) {
		next = recurrence.ComputeFirst(s.LastOccurrenceDate.AddDate(0, 0, 1), rule)
	}

	s.UpdatedAt = now
	if s.LimitReached() || (s.EndDate != nil && next.After(*s.EndDate)) {
		s.complete()
		return nil
	}
	s.NextGenerationDate = &next
	return nil
}

func (s *Schedule) complete() {
	s.Status = StatusCompleted
	s.NextGenerationDate = nil
}
