package persistence

import (
	"fmt"

	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/infrastructure/config"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database holds the embedded register database and provides access to it.
// SQLite is the single durable substrate of the register: every component's
// table lives here, and a crash or restart rehydrates from it.
type Database struct {
	DB *gorm.DB
}

// NewDatabase opens (or creates) the register database at the configured path
// and brings the schema to the current version. Pass ":memory:" for tests.
func NewDatabase(cfg *config.DatabaseConfig) (*Database, error) {
	dsn := cfg.Path
	if dsn != ":memory:" {
		// WAL keeps readers unblocked during queue/ledger writes.
		dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d", cfg.Path, cfg.BusyTimeout.Milliseconds())
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open register database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate register database: %w", err)
	}

	return &Database{DB: db}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Transaction executes a function within a database transaction
func (d *Database) Transaction(fn func(tx *gorm.DB) error) error {
	return d.DB.Transaction(fn)
}
