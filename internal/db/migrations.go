package db

import (
	"database/sql"
	"fmt"
)

type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		name:    "initial_schema",
		sql: `
CREATE TABLE IF NOT EXISTS users (
  id INTEGER PRIMARY KEY,
  username TEXT,
  first_name TEXT,
  weight_kg REAL CHECK(weight_kg IS NULL OR weight_kg > 0),
  height_cm REAL CHECK(height_cm IS NULL OR height_cm > 0),
  age INTEGER CHECK(age IS NULL OR age > 0),
  sex TEXT CHECK(sex IN ('male', 'female')),
  activity_level TEXT CHECK(activity_level IN ('sedentary', 'lightly_active', 'moderately_active', 'very_active')),
  goal TEXT CHECK(goal IN ('lose', 'maintain', 'gain', 'gain_muscles')),
  daily_calorie_target INTEGER CHECK(daily_calorie_target IS NULL OR daily_calorie_target > 0),
  calorie_override INTEGER NOT NULL DEFAULT 0,
  onboarding_complete INTEGER NOT NULL DEFAULT 0,
  notifications_enabled INTEGER NOT NULL DEFAULT 1,
  reminder_hour INTEGER NOT NULL DEFAULT 20 CHECK(reminder_hour BETWEEN 0 AND 23),
  last_reminder_sent TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS food_logs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id INTEGER NOT NULL,
  logged_at TEXT NOT NULL,
  input_type TEXT NOT NULL CHECK(input_type IN ('photo', 'text', 'photo_text', 'voice')),
  raw_input TEXT,
  photo_ref TEXT,
  analysis_json TEXT NOT NULL,
  total_calories INTEGER NOT NULL CHECK(total_calories >= 0),
  total_protein REAL NOT NULL CHECK(total_protein >= 0),
  total_carbs REAL NOT NULL CHECK(total_carbs >= 0),
  total_fat REAL NOT NULL CHECK(total_fat >= 0),
  confidence_score REAL NOT NULL CHECK(confidence_score BETWEEN 0 AND 1),
  FOREIGN KEY(user_id) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_food_logs_user_logged_at ON food_logs(user_id, logged_at);
`,
	},
	{
		version: 2,
		name:    "pet_system",
		sql: `
CREATE TABLE IF NOT EXISTS pet_status (
  user_id INTEGER PRIMARY KEY,
  pet_name TEXT NOT NULL DEFAULT 'Nibbles',
  total_meals_logged INTEGER NOT NULL DEFAULT 0 CHECK(total_meals_logged >= 0),
  current_streak INTEGER NOT NULL DEFAULT 0 CHECK(current_streak >= 0),
  best_streak INTEGER NOT NULL DEFAULT 0,
  last_fed_date TEXT,
  created_at TEXT NOT NULL,
  CHECK(current_streak <= best_streak),
  FOREIGN KEY(user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS achievements (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id INTEGER NOT NULL,
  achievement_id TEXT NOT NULL,
  unlocked_at TEXT NOT NULL,
  UNIQUE(user_id, achievement_id),
  FOREIGN KEY(user_id) REFERENCES users(id)
);
`,
	},
	{
		version: 3,
		name:    "macro_targets",
		sql: `
ALTER TABLE users ADD COLUMN protein_target_g INTEGER CHECK(protein_target_g IS NULL OR protein_target_g >= 0);
ALTER TABLE users ADD COLUMN carbs_target_g INTEGER CHECK(carbs_target_g IS NULL OR carbs_target_g >= 0);
ALTER TABLE users ADD COLUMN fat_target_g INTEGER CHECK(fat_target_g IS NULL OR fat_target_g >= 0);
ALTER TABLE users ADD COLUMN macro_override INTEGER NOT NULL DEFAULT 0;
`,
	},
	{
		version: 4,
		name:    "weekly_summary",
		sql: `
ALTER TABLE users ADD COLUMN weekly_summary_enabled INTEGER NOT NULL DEFAULT 1;
ALTER TABLE users ADD COLUMN last_weekly_summary_sent TEXT;
`,
	},
	{
		version: 5,
		name:    "app_config",
		sql: `
CREATE TABLE IF NOT EXISTS app_config (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`,
	},
}

// defaultConfig seeds feature flags; existing values are never overwritten.
var defaultConfig = map[string]string{
	"flag.daily_reminder": "false",
	"flag.weekly_summary": "true",
}

func ApplyMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  name TEXT NOT NULL,
  applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`); err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRow(`SELECT 1 FROM schema_migrations WHERE version = ?`, m.version).Scan(&exists)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("check migration version %d: %w", m.version, err)
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration tx: %w", err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration version %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations(version, name) VALUES(?, ?)`, m.version, m.name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration version %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration version %d: %w", m.version, err)
		}
	}

	for key, value := range defaultConfig {
		if _, err := db.Exec(`INSERT OR IGNORE INTO app_config(key, value) VALUES(?, ?)`, key, value); err != nil {
			return fmt.Errorf("seed config %s: %w", key, err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration version.
func SchemaVersion(db *sql.DB) (int, error) {
	var v sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(v.Int64), nil
}
