package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type tabler interface {
	TableName() string
}

func tableNames(t *testing.T) []string {
	t.Helper()
	var names []string
	for _, m := range Models() {
		tm, ok := m.(tabler)
		require.True(t, ok, "%T has no TableName", m)
		names = append(names, tm.TableName())
	}
	return names
}

func TestEmbeddedMigrationsCoverEveryModel(t *testing.T) {
	up, err := fs.ReadFile(embeddedMigrations, "migrations/000001_settlement_schema.up.sql")
	require.NoError(t, err)
	down, err := fs.ReadFile(embeddedMigrations, "migrations/000001_settlement_schema.down.sql")
	require.NoError(t, err)

	for _, name := range tableNames(t) {
		assert.Contains(t, string(up), "CREATE TABLE IF NOT EXISTS "+name+" (", name)
		assert.Contains(t, string(down), "DROP TABLE IF EXISTS "+name+";", name)
	}
	assert.Equal(t, len(Models()), strings.Count(string(up), "CREATE TABLE"))
}

func TestAutoMigrateCreatesEveryTable(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:automigrate?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrate(conn))
	require.NoError(t, AutoMigrate(conn), "second run must be a no-op")

	for _, name := range tableNames(t) {
		assert.True(t, conn.Migrator().HasTable(name), name)
	}
}
