package main

import (
	"flag"
	"log"

	migrate "github.com/rubenv/sql-migrate"

	"github.com/johnquangdev/meeting-minutes/internal/infrastructure/database"
	"github.com/johnquangdev/meeting-minutes/pkg/config"
	"github.com/johnquangdev/meeting-minutes/pkg/logger"
)

func main() {
	dir := flag.String("dir", "migrations", "directory holding the sql-migrate files")
	down := flag.Bool("down", false, "roll back instead of applying")
	flag.Parse()

	// Only the database settings are needed here
	cfg, err := config.Read()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Server.LogLevel, !cfg.IsProduction())
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	db, err := database.NewPostgresDB(cfg, zlog)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.CloseDB(db)

	direction := migrate.Up
	if *down {
		direction = migrate.Down
	}

	log.Printf("🔄 Applying migrations from %s/ ...", *dir)
	n, err := database.Migrate(db, *dir, direction, zlog)
	if err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	log.Printf("✅ Successfully applied %d migration(s)!", n)
}
