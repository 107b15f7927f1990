// Package lease provides short-lived mutual exclusion keyed by string.
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrEmptyKey   = errors.New("lease key is empty")
	ErrInvalidTTL = errors.New("lease ttl must be positive")
)

// Release gives a held lease back. Releasing after expiry, or after another
// holder took the key, is a no-op.
type Release func(ctx context.Context) error

// Lease acquires exclusive holds. Acquire reports false without error when the
// key is already held; it never blocks waiting for the holder.
type Lease interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Release, bool, error)
}

// ScheduleKey is the lease key guarding generation for one schedule.
func ScheduleKey(scheduleID snowflake.ID) string {
	return fmt.Sprintf("invoicely:lease:schedule:%s", scheduleID)
}

func validate(key string, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}

func noopRelease(context.Context) error { return nil }
