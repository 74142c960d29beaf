package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/drawsync/internal/drawsync"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillLastKnownDrawDate = "2026-03-01_backfill_last_known_draw_date"
	migrationLabelUntriggeredRuns      = "2026-03-08_label_untriggered_runs"

	unknownTriggerLabel = "unknown"
)

// migrationRecord is one row of the applied migrations ledger.
type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type dataMigration struct {
	name  string
	apply func(tx *gorm.DB) error
}

// dataMigrations run in order, once each, after the schema is auto-migrated.
var dataMigrations = []dataMigration{
	{name: migrationBackfillLastKnownDrawDate, apply: backfillLastKnownDrawDate},
	{name: migrationLabelUntriggeredRuns, apply: labelUntriggeredRuns},
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	applied, err := appliedMigrationNames(db)
	if err != nil {
		return err
	}

	for _, migration := range dataMigrations {
		if _, done := applied[migration.name]; done {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: time.Now().UTC().Unix()}).Error
		})
		if err != nil {
			return fmt.Errorf("migration %s: %w", migration.name, err)
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

func appliedMigrationNames(db *gorm.DB) (map[string]struct{}, error) {
	var names []string
	if err := db.Model(&migrationRecord{}).Pluck("name", &names).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	applied := make(map[string]struct{}, len(names))
	for _, name := range names {
		applied[name] = struct{}{}
	}
	return applied, nil
}

// backfillLastKnownDrawDate fills state rows that predate the column from the stored draws.
func backfillLastKnownDrawDate(tx *gorm.DB) error {
	return tx.Model(&drawsync.SyncState{}).
		Where("last_known_draw_date IS NULL").
		Update("last_known_draw_date", gorm.Expr("(SELECT MAX(draws.draw_date) FROM draws WHERE draws.game = sync_state.game)")).Error
}

// labelUntriggeredRuns gives runs recorded without a trigger label a placeholder so reports group them.
func labelUntriggeredRuns(tx *gorm.DB) error {
	return tx.Model(&drawsync.SyncRun{}).
		Where("trigger_label = ?", "").
		Update("trigger_label", unknownTriggerLabel).Error
}
