package directory

import (
	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/invoicely/internal/cache"
	directorydomain "github.com/smallbiznis/invoicely/internal/directory/domain"
	"github.com/smallbiznis/invoicely/internal/directory/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("directory",
	fx.Provide(New),
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Redis *redis.Client `optional:"true"`
	Log   *zap.Logger
}

// New returns the gorm directory, cached in Redis when a client is available.
func New(p Params) directorydomain.Directory {
	dir := repository.Provide(p.DB)
	if p.Redis == nil {
		return dir
	}
	return repository.NewCached(dir, cache.NewJSONCache(p.Redis, "invoicely:directory:"), 0, p.Log)
}
