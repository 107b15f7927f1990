package tax

import (
	"github.com/smallbiznis/invoicely/internal/tax/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tax.engine",
	fx.Provide(service.NewEngine),
)
