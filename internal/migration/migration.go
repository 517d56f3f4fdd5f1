package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/kongfuworld/settlement/internal/config"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Apply brings the schema up to date for the configured dialect.
func Apply(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	switch strings.ToLower(strings.TrimSpace(cfg.DBType)) {
	case "postgres", "postgresql", "":
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}
		log.Info("migration.applied", zap.String("dialect", "postgres"))
		return nil
	default:
		if err := AutoMigrate(conn); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		log.Info("migration.applied", zap.String("dialect", cfg.DBType), zap.String("mode", "auto"))
		return nil
	}
}

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "settlement_schema_migrations"})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// migrator.Close would close the shared *sql.DB.

	return nil
}
