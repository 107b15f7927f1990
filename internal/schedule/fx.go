package schedule

import (
	"github.com/smallbiznis/invoicely/internal/generation"
	"github.com/smallbiznis/invoicely/internal/schedule/repository"
	"github.com/smallbiznis/invoicely/internal/schedule/service"
	"go.uber.org/fx"
)

var Module = fx.Module("schedule",
	fx.Provide(repository.NewRepository),
	fx.Provide(func(o *generation.Orchestrator) service.Generator { return o }),
	fx.Provide(service.New),
)
