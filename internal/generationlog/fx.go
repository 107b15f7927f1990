package generationlog

import (
	"github.com/smallbiznis/invoicely/internal/generationlog/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("generationlog.repository",
	fx.Provide(repository.NewRepository),
)
