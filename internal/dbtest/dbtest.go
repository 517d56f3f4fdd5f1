// Package dbtest opens isolated in-memory databases for package tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/kongfuworld/settlement/internal/migration"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a migrated sqlite database private to the calling test.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Node returns a snowflake generator for seeding rows.
func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}
