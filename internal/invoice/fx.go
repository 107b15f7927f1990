package invoice

import (
	"github.com/smallbiznis/invoicely/internal/invoice/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.repository",
	fx.Provide(repository.NewNumberAllocator),
	fx.Provide(repository.NewStore),
)
