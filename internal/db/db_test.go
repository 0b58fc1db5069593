package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"focusguard-backend/config"
	"focusguard-backend/internal/model"
)

func TestDialectorSelection(t *testing.T) {
	assert.Equal(t, "postgres", dialector("postgres://u:p@localhost:5432/db").Name())
	assert.Equal(t, "postgres", dialector("host=localhost user=u dbname=db").Name())
	assert.Equal(t, "sqlite", dialector("sqlite://focus.db").Name())
	assert.Equal(t, "sqlite", dialector("file::memory:").Name())
}

func TestGormLogLevel(t *testing.T) {
	assert.Equal(t, logger.Silent, gormLogLevel("silent"))
	assert.Equal(t, logger.Info, gormLogLevel("INFO"))
	assert.Equal(t, logger.Warn, gormLogLevel(""))
}

func TestOpenAndMigrate_SQLite(t *testing.T) {
	db, err := Open(&config.DatabaseConfig{DSN: "file::memory:", MaxOpenConns: 1, LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	assert.True(t, db.Migrator().HasTable(&model.Session{}))
	assert.True(t, db.Migrator().HasTable(&model.DistractionEvent{}))
	assert.True(t, db.Migrator().HasTable(&model.PushSubscription{}))
}
