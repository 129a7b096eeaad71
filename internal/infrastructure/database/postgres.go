package database

import (
	"fmt"
	"time"

	migrate "github.com/rubenv/sql-migrate"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/johnquangdev/meeting-minutes/pkg/config"
)

// NewPostgresDB creates a new PostgreSQL database connection using GORM
func NewPostgresDB(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dsn := cfg.GetDatabaseDSN()

	// Configure GORM logger
	gormLogger := logger.Default.LogMode(logger.Warn)
	if cfg.IsProduction() {
		gormLogger = logger.Default.LogMode(logger.Error)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database object: %w", err)
	}

	// Connection pool settings
	sqlDB.SetMaxOpenConns(cfg.Database.MaxConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MinConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("✅ Database connected successfully",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Name),
	)
	return db, nil
}

// Migrate applies (or rolls back) the migrations in dir using sql-migrate
func Migrate(db *gorm.DB, dir string, direction migrate.MigrationDirection, log *zap.Logger) (int, error) {
	if log == nil {
		log = zap.NewNop()
	}

	migrations := &migrate.FileMigrationSource{
		Dir: dir,
	}

	sqlDB, err := db.DB()
	if err != nil {
		return 0, fmt.Errorf("failed to get db connection during migrate: %w", err)
	}

	n, err := migrate.Exec(sqlDB, "postgres", migrations, direction)
	if err != nil {
		return 0, fmt.Errorf("failed to apply migration: %w", err)
	}

	log.Info("✅ Migrations applied", zap.String("dir", dir), zap.Int("count", n))
	return n, nil
}

// CloseDB closes the database connection
func CloseDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database object: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
