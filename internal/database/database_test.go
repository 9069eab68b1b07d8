package database_test

import (
	"testing"

	"github.com/futureofwork/core/internal/database"
	"github.com/futureofwork/core/internal/database/dbtest"
	"github.com/futureofwork/core/internal/models"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := database.Open("oracle", "", database.NewZapGormLogger(zap.NewNop(), gormlogger.Silent, 0))
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestMigrateCreatesTables(t *testing.T) {
	db := dbtest.Open(t)
	for _, m := range models.All() {
		assert.True(t, db.Migrator().HasTable(m), "%T", m)
	}
}
