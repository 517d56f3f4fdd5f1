package db

import (
	"context"
	"time"

	"github.com/kongfuworld/settlement/internal/config"
	obslogger "github.com/kongfuworld/settlement/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprom "gorm.io/plugin/prometheus"
)

var Module = fx.Module("db",
	fx.Provide(New),
)

// New opens the settlement database with tracing and pool metrics attached.
func New(lc fx.Lifecycle, appCfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	cfg := FromAppConfig(appCfg)
	dialect, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialect, &gorm.Config{
		Logger:         obslogger.NewGormLogger(obslogger.DefaultGormLoggerConfig(log)),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(cfg.Name))); err != nil {
		return nil, err
	}
	if err := conn.Use(gormprom.New(gormprom.Config{
		DBName:          cfg.Name,
		RefreshInterval: 15,
	})); err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
	}
	if cfg.MaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Second)
	}

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				_ = ctx
				return sqlDB.Close()
			},
		})
	}

	log.Info("database connected",
		zap.String("type", cfg.Type),
		zap.String("name", cfg.Name),
	)
	return conn, nil
}
