package db_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/saadjs/nibbles/internal/db"
)

func TestApplyMigrationsIdempotentAndSeedsDefaults(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "nibbles.db")
	sqldb, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer sqldb.Close()

	if err := db.ApplyMigrations(sqldb); err != nil {
		t.Fatalf("first apply migrations: %v", err)
	}
	if err := db.ApplyMigrations(sqldb); err != nil {
		t.Fatalf("second apply migrations: %v", err)
	}

	version, err := db.SchemaVersion(sqldb)
	if err != nil {
		t.Fatalf("schema version: %v", err)
	}
	if version != 5 {
		t.Fatalf("expected schema version 5, got %d", version)
	}

	for _, table := range []string{"users", "food_logs", "pet_status", "achievements", "app_config"} {
		var count int
		if err := sqldb.QueryRow(`SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&count); err != nil {
			t.Fatalf("check %s table: %v", table, err)
		}
		if count != 1 {
			t.Fatalf("expected %s table to exist", table)
		}
	}

	for _, col := range []string{"macro_override", "protein_target_g", "weekly_summary_enabled", "last_weekly_summary_sent"} {
		var count int
		if err := sqldb.QueryRow(`SELECT COUNT(1) FROM pragma_table_info('users') WHERE name = ?`, col).Scan(&count); err != nil {
			t.Fatalf("check users.%s column: %v", col, err)
		}
		if count != 1 {
			t.Fatalf("expected users.%s column", col)
		}
	}

	var flag string
	if err := sqldb.QueryRow(`SELECT value FROM app_config WHERE key = 'flag.weekly_summary'`).Scan(&flag); err != nil {
		t.Fatalf("read seeded flag: %v", err)
	}
	if flag != "true" {
		t.Fatalf("expected weekly summary flag seeded true, got %q", flag)
	}

	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected db file to exist: %v", err)
	}
}

func TestAchievementsUniquePerUser(t *testing.T) {
	t.Parallel()

	sqldb, err := db.Open(filepath.Join(t.TempDir(), "nibbles.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer sqldb.Close()
	if err := db.ApplyMigrations(sqldb); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	if _, err := sqldb.Exec(`INSERT INTO users(id, created_at, updated_at) VALUES(1, '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')`); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	if _, err := sqldb.Exec(`INSERT INTO achievements(user_id, achievement_id, unlocked_at) VALUES(1, 'first_bite', '2026-01-01T00:00:00Z')`); err != nil {
		t.Fatalf("insert achievement: %v", err)
	}
	if _, err := sqldb.Exec(`INSERT INTO achievements(user_id, achievement_id, unlocked_at) VALUES(1, 'first_bite', '2026-01-02T00:00:00Z')`); err == nil {
		t.Fatalf("expected unique constraint violation on duplicate achievement")
	}
}

func TestFoodLogsRequireExistingUser(t *testing.T) {
	t.Parallel()

	sqldb, err := db.Open(filepath.Join(t.TempDir(), "nibbles.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer sqldb.Close()
	if err := db.ApplyMigrations(sqldb); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	_, err = sqldb.Exec(`
INSERT INTO food_logs(user_id, logged_at, input_type, analysis_json, total_calories, total_protein, total_carbs, total_fat, confidence_score)
VALUES(42, '2026-01-01T08:00:00Z', 'text', '{}', 300, 10, 40, 8, 0.9)`)
	if err == nil {
		t.Fatalf("expected foreign key violation for unknown user")
	}
}
