package lease

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

type redisLease struct {
	client *redis.Client
	script *redis.Script
}

// NewRedis returns a lease shared by every process using the same Redis.
// Holds are SET NX PX entries carrying a random token; release deletes the
// key only while it still carries that token.
func NewRedis(client *redis.Client) Lease {
	return &redisLease{
		client: client,
		script: redis.NewScript(releaseScript),
	}
}

func (l *redisLease) Acquire(ctx context.Context, key string, ttl time.Duration) (Release, bool, error) {
	if err := validate(key, ttl); err != nil {
		return noopRelease, false, err
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return noopRelease, false, err
	}
	if !ok {
		return noopRelease, false, nil
	}
	return func(ctx context.Context) error {
		return l.script.Run(ctx, l.client, []string{key}, token).Err()
	}, true, nil
}
