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
	"github.com/smallbiznis/invoicely/internal/migration"
	"github.com/smallbiznis/invoicely/internal/observability"
	"github.com/smallbiznis/invoicely/internal/providers"
	"github.com/smallbiznis/invoicely/internal/schedule"
	"github.com/smallbiznis/invoicely/internal/server"
	"github.com/smallbiznis/invoicely/internal/tax"
	"github.com/smallbiznis/invoicely/pkg/db"
	"go.uber.org/fx"
)

// The API binary serves the control surface only. Manual generation still
// runs in-process; scheduled sweeps belong to apps/scheduler.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		cache.Module,
		clock.Module,
		lease.Module,
		providers.Module,

		directory.Module,
		tax.Module,
		invoice.Module,
		generationlog.Module,
		generation.Module,
		schedule.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
