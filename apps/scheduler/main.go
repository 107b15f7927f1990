package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicely/internal/cache"
	"github.com/smallbiznis/invoicely/internal/clock"
	"github.com/smallbiznis/invoicely/internal/config"
	"github.com/smallbiznis/invoicely/internal/directory"
	"github.com/smallbiznis/invoicely/internal/generation"
	"github.com/smallbiznis/invoicely/internal/generationlog"
	"github.com/smallbiznis/invoicely/internal/invoice"
	"github.com/smallbiznis/invoicely/internal/lease"
	"github.com/smallbiznis/invoicely/internal/observability"
	"github.com/smallbiznis/invoicely/internal/providers"
	"github.com/smallbiznis/invoicely/internal/schedule/repository"
	"github.com/smallbiznis/invoicely/internal/scheduler"
	"github.com/smallbiznis/invoicely/internal/tax"
	"github.com/smallbiznis/invoicely/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		cache.Module,
		clock.Module,
		lease.Module,
		providers.Module,

		// Domain services required by the generation sweep
		directory.Module,
		tax.Module,
		invoice.Module,
		generationlog.Module,
		generation.Module,
		fx.Provide(repository.NewRepository),

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(3)
	if err != nil {
		panic(err)
	}
	return node
}
