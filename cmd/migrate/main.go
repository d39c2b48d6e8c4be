// Command migrate provisions or upgrades a register database in place.
// Opening the database applies any pending forward schema migrations, so
// this tool exists for pre-provisioning a register before first boot and for
// upgrading a copied database file offline.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/infrastructure/config"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/infrastructure/logger"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/infrastructure/persistence"
	"go.uber.org/zap"
)

func main() {
	var (
		dbPath   string
		logLevel string
	)
	flag.StringVar(&dbPath, "db", "", "Path to the register database (default: from config)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	log, err := logger.New(&logger.Config{
		Level:  logLevel,
		Format: "console",
		Output: "stdout",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}

	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Migration failed", zap.String("path", cfg.Database.Path), zap.Error(err))
	}
	defer func() {
		_ = db.Close()
	}()

	log.Info("Register database migrated",
		zap.String("path", cfg.Database.Path),
		zap.Int("schema_version", persistence.SchemaVersion),
	)
}
