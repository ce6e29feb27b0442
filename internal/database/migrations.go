package database

import (
	"errors"
	"time"

	"github.com/clearhaven/worklog/backend/internal/activity"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationNullifyBlankAuthors = "2026-08-20_nullify_blank_activity_authors"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNullifyBlankAuthors, apply: nullifyBlankActivityAuthors},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Author mutual exclusion is modelled on NULL columns; rows written by older
// builds carried empty strings instead.
func nullifyBlankActivityAuthors(db *gorm.DB) error {
	if err := db.Model(&activity.Activity{}).
		Where("author_user_id = ''").
		Update("author_user_id", nil).Error; err != nil {
		return err
	}
	return db.Model(&activity.Activity{}).
		Where("author_agent_id = ''").
		Update("author_agent_id", nil).Error
}
