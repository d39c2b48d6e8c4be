package persistence

import (
	"fmt"
	"time"

	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

func nowUnix() int64 { return time.Now().Unix() }

// SchemaVersion is the current schema version of the register database.
// Version bumps run the forward migration steps below; existing data is
// transformed, never dropped.
const SchemaVersion = 2

// schemaVersionModel tracks the applied schema version.
type schemaVersionModel struct {
	ID        uint `gorm:"primaryKey"`
	Version   int  `gorm:"not null"`
	AppliedAt int64
}

func (schemaVersionModel) TableName() string { return "schema_version" }

// migrations maps a target version to the step that brings the schema up from
// the previous version. Step 1 is the initial schema.
var migrations = map[int]func(tx *gorm.DB) error{
	1: func(tx *gorm.DB) error {
		return tx.AutoMigrate(
			&models.CachedRateModel{},
			&models.RateHistoryModel{},
			&models.ActionModel{},
			&models.ClaimModel{},
			&models.PaymentModel{},
		)
	},
	2: func(tx *gorm.DB) error {
		// Receipt numbers moved from claim metadata onto each payment line.
		// AutoMigrate adds the column; existing payments keep an empty
		// receipt number rather than being dropped.
		return tx.AutoMigrate(&models.PaymentModel{})
	},
}

// Migrate brings the database schema to SchemaVersion, applying each pending
// step inside its own transaction.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&schemaVersionModel{}); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var current schemaVersionModel
	if err := db.Order("version desc").First(&current).Error; err != nil {
		if err != gorm.ErrRecordNotFound {
			return fmt.Errorf("read schema version: %w", err)
		}
	}

	for v := current.Version + 1; v <= SchemaVersion; v++ {
		step, ok := migrations[v]
		if !ok {
			return fmt.Errorf("no migration step registered for version %d", v)
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := step(tx); err != nil {
				return err
			}
			return tx.Create(&schemaVersionModel{Version: v, AppliedAt: nowUnix()}).Error
		})
		if err != nil {
			return fmt.Errorf("apply schema migration %d: %w", v, err)
		}
	}
	return nil
}
