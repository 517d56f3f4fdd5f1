package migration

import (
	"github.com/kongfuworld/settlement/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.DBAutoMigrate && !cfg.IsSQLite() {
			log.Info("migration.skipped", zap.String("reason", "DATABASE_AUTO_MIGRATE=false"))
			return nil
		}
		return Apply(conn, cfg, log.Named("migration"))
	}),
)
