package migration

import (
	"github.com/smallbiznis/invoicely/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.DBRunMigrations {
			log.Info("migrations.skipped")
			return nil
		}
		if err := Apply(conn); err != nil {
			return err
		}
		log.Info("migrations.applied", zap.String("dialect", conn.Dialector.Name()))
		return nil
	}),
)
