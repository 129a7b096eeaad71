package repository

import (
	"os"
	"testing"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/johnquangdev/meeting-minutes/internal/domain/repositories"
	"github.com/johnquangdev/meeting-minutes/internal/domain/repositories/repotest"
	"github.com/johnquangdev/meeting-minutes/internal/infrastructure/database"
)

// Set TEST_DATABASE_DSN to run against a real Postgres
func TestProcessingContextRepository(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.CloseDB(db) })

	_, err = database.Migrate(db, "../../../migrations", migrate.Up, zaptest.NewLogger(t))
	require.NoError(t, err)

	repotest.Run(t, func(t *testing.T) repositories.ProcessingContextRepository {
		return NewProcessingContextRepository(db)
	})
}
