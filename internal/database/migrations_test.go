package database

import (
	"path/filepath"
	"testing"

	"github.com/clearhaven/worklog/backend/internal/activity"
	"go.uber.org/zap"
)

func TestOpenSQLiteMigratesSchema(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "worklog.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	for _, table := range []string{"todo_activities", "user_identities", "agents", "db_migrations"} {
		if !db.Migrator().HasTable(table) {
			t.Fatalf("expected table %s to exist", table)
		}
	}

	var applied migrationRecord
	if err := db.Where("name = ?", migrationNullifyBlankAuthors).Take(&applied).Error; err != nil {
		t.Fatalf("expected migration record: %v", err)
	}
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	if _, err := OpenSQLite("", zap.NewNop()); err == nil {
		t.Fatalf("expected error for missing database path")
	}
}

func TestNullifyBlankAuthorsMigrationIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worklog.db")
	db, err := OpenSQLite(path, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	blank := ""
	record := activity.Activity{
		ID:              "act-1",
		TodoID:          "todo-1",
		ProjectID:       "project-1",
		ContentJSON:     `[{"type":"text","text":"hi"}]`,
		CreatedAtMicros: 1700000000000000,
		AuthorUserID:    &blank,
	}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("failed to seed activity: %v", err)
	}

	if err := nullifyBlankActivityAuthors(db); err != nil {
		t.Fatalf("migration failed: %v", err)
	}

	var stored activity.Activity
	if err := db.First(&stored, "id = ?", "act-1").Error; err != nil {
		t.Fatalf("failed to reload activity: %v", err)
	}
	if stored.AuthorUserID != nil {
		t.Fatalf("expected blank author column to become NULL, got %q", *stored.AuthorUserID)
	}

	// Reopening must not re-run the recorded migration.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to unwrap db: %v", err)
	}
	if err := sqlDB.Close(); err != nil {
		t.Fatalf("failed to close db: %v", err)
	}
	if _, err := OpenSQLite(path, zap.NewNop()); err != nil {
		t.Fatalf("failed to reopen database: %v", err)
	}
}
