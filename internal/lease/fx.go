package lease

import (
	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/invoicely/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("lease",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Redis *redis.Client `optional:"true"`
	Clock clock.Clock
	Log   *zap.Logger
}

// New picks the Redis lease when Redis is configured. The in-process lease is
// only safe when a single process runs generation.
func New(p Params) Lease {
	if p.Redis != nil {
		p.Log.Info("lease.backend", zap.String("backend", "redis"))
		return NewRedis(p.Redis)
	}
	p.Log.Warn("lease.backend", zap.String("backend", "local"))
	return NewLocal(p.Clock)
}
