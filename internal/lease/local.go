package lease

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/invoicely/internal/clock"
)

type hold struct {
	token   uint64
	expires time.Time
}

type localLease struct {
	clock clock.Clock

	mu    sync.Mutex
	seq   uint64
	holds map[string]hold
}

// NewLocal returns a lease that only excludes callers within this process.
func NewLocal(clk clock.Clock) Lease {
	return &localLease{
		clock: clk,
		holds: make(map[string]hold),
	}
}

func (l *localLease) Acquire(_ context.Context, key string, ttl time.Duration) (Release, bool, error) {
	if err := validate(key, ttl); err != nil {
		return noopRelease, false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if current, ok := l.holds[key]; ok && now.Before(current.expires) {
		return noopRelease, false, nil
	}

	l.seq++
	token := l.seq
	l.holds[key] = hold{token: token, expires: now.Add(ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if current, ok := l.holds[key]; ok && current.token == token {
			delete(l.holds, key)
		}
		return nil
	}, true, nil
}
