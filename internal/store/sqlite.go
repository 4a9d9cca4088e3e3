package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/saadjs/nibbles/internal/model"
)

// Timestamps are stored as UTC RFC3339 text so that lexical order matches
// chronological order.
const timeLayout = time.RFC3339

type SQLite struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

const userColumns = `id, IFNULL(username, ''), IFNULL(first_name, ''), IFNULL(weight_kg, 0), IFNULL(height_cm, 0), IFNULL(age, 0),
IFNULL(sex, ''), IFNULL(activity_level, ''), IFNULL(goal, ''), IFNULL(daily_calorie_target, 0), calorie_override,
IFNULL(protein_target_g, 0), IFNULL(carbs_target_g, 0), IFNULL(fat_target_g, 0), macro_override,
onboarding_complete, notifications_enabled, reminder_hour, IFNULL(last_reminder_sent, ''),
weekly_summary_enabled, IFNULL(last_weekly_summary_sent, ''), created_at, updated_at`

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u                        model.User
		sex, activity, goal      string
		lastReminder, lastWeekly string
		createdAt, updatedAt     string
		calOverride, macro       int
		onboarded, notify        int
		weekly                   int
	)
	if err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.WeightKg, &u.HeightCm, &u.Age,
		&sex, &activity, &goal, &u.DailyCalorieTarget, &calOverride,
		&u.ProteinTargetG, &u.CarbsTargetG, &u.FatTargetG, &macro,
		&onboarded, &notify, &u.ReminderHour, &lastReminder,
		&weekly, &lastWeekly, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if sex != "" {
		if u.Sex, err = model.ParseSex(sex); err != nil {
			return nil, fmt.Errorf("user %d: %w", u.ID, err)
		}
	}
	if activity != "" {
		if u.ActivityLevel, err = model.ParseActivityLevel(activity); err != nil {
			return nil, fmt.Errorf("user %d: %w", u.ID, err)
		}
	}
	if goal != "" {
		if u.Goal, err = model.ParseGoal(goal); err != nil {
			return nil, fmt.Errorf("user %d: %w", u.ID, err)
		}
	}
	u.CalorieOverride = calOverride != 0
	u.MacroOverride = macro != 0
	u.OnboardingComplete = onboarded != 0
	u.NotificationsEnabled = notify != 0
	u.WeeklySummaryEnabled = weekly != 0
	if u.LastReminderSent, err = parseOptionalTime(lastReminder); err != nil {
		return nil, err
	}
	if u.LastWeeklySummarySent, err = parseOptionalTime(lastWeekly); err != nil {
		return nil, err
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLite) GetUser(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

func (s *SQLite) CreateUser(ctx context.Context, u model.User) (*model.User, error) {
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx, `
INSERT INTO users(id, username, first_name, notifications_enabled, reminder_hour, weekly_summary_enabled, created_at, updated_at)
VALUES(?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING
`, u.ID, strings.TrimSpace(u.Username), strings.TrimSpace(u.FirstName), boolInt(u.NotificationsEnabled), u.ReminderHour, boolInt(u.WeeklySummaryEnabled), now, now)
	if err != nil {
		return nil, fmt.Errorf("create user %d: %w", u.ID, err)
	}
	return s.GetUser(ctx, u.ID)
}

func (s *SQLite) UpdateUser(ctx context.Context, id int64, upd model.ProfileUpdate) (*model.User, error) {
	keys, cols := profileColumns(upd)
	if len(keys) == 0 {
		return s.GetUser(ctx, id)
	}
	sets := make([]string, 0, len(keys)+1)
	args := make([]any, 0, len(keys)+2)
	for _, k := range keys {
		sets = append(sets, k+" = ?")
		args = append(args, sqliteValue(cols[k]))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(time.Now()), id)

	res, err := s.db.ExecContext(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update user %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("resolve updated user rows: %w", err)
	} else if n == 0 {
		return nil, nil
	}
	return s.GetUser(ctx, id)
}

func (s *SQLite) ListUsersForReminder(ctx context.Context, hour int) ([]model.User, error) {
	return s.listUsers(ctx, `
SELECT `+userColumns+` FROM users
WHERE onboarding_complete = 1 AND notifications_enabled = 1 AND reminder_hour = ?
ORDER BY id ASC`, hour)
}

func (s *SQLite) ListUsersForWeeklySummary(ctx context.Context) ([]model.User, error) {
	return s.listUsers(ctx, `
SELECT `+userColumns+` FROM users
WHERE onboarding_complete = 1 AND weekly_summary_enabled = 1
ORDER BY id ASC`)
}

func (s *SQLite) listUsers(ctx context.Context, query string, args ...any) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	out := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}

const foodLogColumns = `id, user_id, logged_at, input_type, IFNULL(raw_input, ''), IFNULL(photo_ref, ''), analysis_json,
total_calories, total_protein, total_carbs, total_fat, confidence_score`

func scanFoodLog(row rowScanner) (*model.FoodLog, error) {
	var (
		l                   model.FoodLog
		loggedAt, inputType string
		analysis            string
	)
	if err := row.Scan(&l.ID, &l.UserID, &loggedAt, &inputType, &l.RawInput, &l.PhotoRef, &analysis,
		&l.Totals.Calories, &l.Totals.ProteinG, &l.Totals.CarbsG, &l.Totals.FatG, &l.Confidence); err != nil {
		return nil, err
	}
	var err error
	if l.LoggedAt, err = parseTime(loggedAt); err != nil {
		return nil, err
	}
	if l.InputType, err = model.ParseInputType(inputType); err != nil {
		return nil, fmt.Errorf("food log %d: %w", l.ID, err)
	}
	if err := json.Unmarshal([]byte(analysis), &l.Analysis); err != nil {
		return nil, fmt.Errorf("decode analysis for food log %d: %w", l.ID, err)
	}
	return &l, nil
}

func (s *SQLite) CreateLog(ctx context.Context, l model.FoodLog) (*model.FoodLog, error) {
	analysis, err := json.Marshal(l.Analysis)
	if err != nil {
		return nil, fmt.Errorf("encode analysis: %w", err)
	}
	if l.LoggedAt.IsZero() {
		l.LoggedAt = time.Now()
	}
	l.LoggedAt = l.LoggedAt.UTC().Truncate(time.Second)
	// RETURNING hands back the id from the same statement that wrote the row.
	err = s.db.QueryRowContext(ctx, `
INSERT INTO food_logs(user_id, logged_at, input_type, raw_input, photo_ref, analysis_json, total_calories, total_protein, total_carbs, total_fat, confidence_score)
VALUES(?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?, ?, ?)
RETURNING id
`, l.UserID, formatTime(l.LoggedAt), string(l.InputType), l.RawInput, l.PhotoRef, string(analysis),
		l.Totals.Calories, l.Totals.ProteinG, l.Totals.CarbsG, l.Totals.FatG, l.Confidence).Scan(&l.ID)
	if err != nil {
		return nil, fmt.Errorf("insert food log: %w", err)
	}
	return &l, nil
}

func (s *SQLite) GetLog(ctx context.Context, userID, id int64) (*model.FoodLog, error) {
	l, err := scanFoodLog(s.db.QueryRowContext(ctx, `SELECT `+foodLogColumns+` FROM food_logs WHERE id = ? AND user_id = ?`, id, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get food log %d: %w", id, err)
	}
	return l, nil
}

func (s *SQLite) DeleteLog(ctx context.Context, userID, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM food_logs WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete food log %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve deleted food log rows: %w", err)
	}
	return n > 0, nil
}

func (s *SQLite) ListLogs(ctx context.Context, userID int64, from, to time.Time) ([]model.FoodLog, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	return s.queryLogs(ctx, `
SELECT `+foodLogColumns+` FROM food_logs
WHERE user_id = ? AND logged_at >= ? AND logged_at < ?
ORDER BY logged_at ASC, id ASC`, userID, formatTime(from), formatTime(to))
}

func (s *SQLite) RecentLogs(ctx context.Context, userID int64, limit int) ([]model.FoodLog, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}
	return s.queryLogs(ctx, `
SELECT `+foodLogColumns+` FROM food_logs
WHERE user_id = ?
ORDER BY logged_at DESC, id DESC
LIMIT ?`, userID, limit)
}

func (s *SQLite) queryLogs(ctx context.Context, query string, args ...any) ([]model.FoodLog, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list food logs: %w", err)
	}
	defer rows.Close()
	out := make([]model.FoodLog, 0)
	for rows.Next() {
		l, err := scanFoodLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan food log: %w", err)
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate food logs: %w", err)
	}
	return out, nil
}

func (s *SQLite) SumLogs(ctx context.Context, userID int64, from, to time.Time) (model.Totals, error) {
	if err := validateRange(from, to); err != nil {
		return model.Totals{}, err
	}
	var t model.Totals
	err := s.db.QueryRowContext(ctx, `
SELECT IFNULL(SUM(total_calories), 0), IFNULL(SUM(total_protein), 0), IFNULL(SUM(total_carbs), 0), IFNULL(SUM(total_fat), 0), COUNT(1)
FROM food_logs
WHERE user_id = ? AND logged_at >= ? AND logged_at < ?
`, userID, formatTime(from), formatTime(to)).Scan(&t.Calories, &t.Protein, &t.Carbs, &t.Fat, &t.MealCount)
	if err != nil {
		return model.Totals{}, fmt.Errorf("sum food logs: %w", err)
	}
	return t, nil
}

func (s *SQLite) HasLogs(ctx context.Context, userID int64, from, to time.Time) (bool, error) {
	if err := validateRange(from, to); err != nil {
		return false, err
	}
	var exists int
	err := s.db.QueryRowContext(ctx, `
SELECT EXISTS(SELECT 1 FROM food_logs WHERE user_id = ? AND logged_at >= ? AND logged_at < ?)
`, userID, formatTime(from), formatTime(to)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check food logs: %w", err)
	}
	return exists == 1, nil
}

const petColumns = `user_id, pet_name, total_meals_logged, current_streak, best_streak, IFNULL(last_fed_date, ''), created_at`

func scanPet(row rowScanner) (*model.PetStatus, error) {
	var (
		p         model.PetStatus
		createdAt string
	)
	if err := row.Scan(&p.UserID, &p.Name, &p.TotalMealsLogged, &p.CurrentStreak, &p.BestStreak, &p.LastFedDate, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLite) GetPet(ctx context.Context, userID int64) (*model.PetStatus, error) {
	p, err := scanPet(s.db.QueryRowContext(ctx, `SELECT `+petColumns+` FROM pet_status WHERE user_id = ?`, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pet for user %d: %w", userID, err)
	}
	return p, nil
}

func (s *SQLite) GetOrCreatePet(ctx context.Context, userID int64, defaultName string) (*model.PetStatus, error) {
	if _, err := s.db.ExecContext(ctx, `
INSERT INTO pet_status(user_id, pet_name, created_at) VALUES(?, ?, ?)
ON CONFLICT(user_id) DO NOTHING
`, userID, defaultName, formatTime(time.Now())); err != nil {
		return nil, fmt.Errorf("create pet for user %d: %w", userID, err)
	}
	return s.GetPet(ctx, userID)
}

func (s *SQLite) UpdatePet(ctx context.Context, userID int64, defaultName string, mutate PetMutation) (model.PetStatus, model.PetStatus, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.PetStatus{}, model.PetStatus{}, fmt.Errorf("begin pet update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// The insert takes the write lock before the read, so a second process
	// cannot interleave between our read and write.
	if _, err := tx.ExecContext(ctx, `
INSERT INTO pet_status(user_id, pet_name, created_at) VALUES(?, ?, ?)
ON CONFLICT(user_id) DO NOTHING
`, userID, defaultName, formatTime(time.Now())); err != nil {
		return model.PetStatus{}, model.PetStatus{}, fmt.Errorf("create pet for user %d: %w", userID, err)
	}
	current, err := scanPet(tx.QueryRowContext(ctx, `SELECT `+petColumns+` FROM pet_status WHERE user_id = ?`, userID))
	if err != nil {
		return model.PetStatus{}, model.PetStatus{}, fmt.Errorf("load pet for user %d: %w", userID, err)
	}
	before := *current
	after := *current
	if err := mutate(&after); err != nil {
		return model.PetStatus{}, model.PetStatus{}, err
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE pet_status
SET pet_name = ?, total_meals_logged = ?, current_streak = ?, best_streak = ?, last_fed_date = NULLIF(?, '')
WHERE user_id = ?
`, after.Name, after.TotalMealsLogged, after.CurrentStreak, after.BestStreak, after.LastFedDate, userID); err != nil {
		return model.PetStatus{}, model.PetStatus{}, fmt.Errorf("save pet for user %d: %w", userID, err)
	}
	if err := tx.Commit(); err != nil {
		return model.PetStatus{}, model.PetStatus{}, fmt.Errorf("commit pet update: %w", err)
	}
	return before, after, nil
}

func (s *SQLite) ResetStaleStreaks(ctx context.Context, lastFedBefore string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE pet_status SET current_streak = 0
WHERE current_streak > 0 AND last_fed_date IS NOT NULL AND last_fed_date < ?
`, lastFedBefore)
	if err != nil {
		return 0, fmt.Errorf("reset stale streaks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("resolve reset streak rows: %w", err)
	}
	return n, nil
}

func (s *SQLite) UnlockAchievement(ctx context.Context, userID int64, achievementID string, at time.Time) (*model.Achievement, error) {
	at = at.UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx, `
INSERT INTO achievements(user_id, achievement_id, unlocked_at) VALUES(?, ?, ?)
ON CONFLICT(user_id, achievement_id) DO NOTHING
`, userID, achievementID, formatTime(at))
	if err != nil {
		return nil, fmt.Errorf("unlock achievement %q: %w", achievementID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("resolve unlocked achievement rows: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return &model.Achievement{UserID: userID, AchievementID: achievementID, UnlockedAt: at}, nil
}

func (s *SQLite) ListAchievements(ctx context.Context, userID int64) ([]model.Achievement, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT user_id, achievement_id, unlocked_at FROM achievements
WHERE user_id = ?
ORDER BY unlocked_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	defer rows.Close()
	out := make([]model.Achievement, 0)
	for rows.Next() {
		var (
			a  model.Achievement
			at string
		)
		if err := rows.Scan(&a.UserID, &a.AchievementID, &at); err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		if a.UnlockedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate achievements: %w", err)
	}
	return out, nil
}

func (s *SQLite) SetConfig(ctx context.Context, key, value string) error {
	key = normalizeKey(key)
	if key == "" {
		return fmt.Errorf("config key is required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO app_config(key, value, updated_at)
VALUES(?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at
`, key, strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("set config %q: %w", key, err)
	}
	return nil
}

func (s *SQLite) GetConfig(ctx context.Context, key string) (string, bool, error) {
	key = normalizeKey(key)
	if key == "" {
		return "", false, fmt.Errorf("config key is required")
	}
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM app_config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get config %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLite) ListConfig(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM app_config ORDER BY key ASC`)
	if err != nil {
		return nil, fmt.Errorf("list config: %w", err)
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan config: %w", err)
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate config: %w", err)
	}
	return out, nil
}

func normalizeKey(key string) string {
	return strings.TrimSpace(strings.ToLower(key))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t, nil
}

func parseOptionalTime(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := parseTime(value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func sqliteValue(v any) any {
	switch x := v.(type) {
	case bool:
		return boolInt(x)
	case time.Time:
		return formatTime(x)
	default:
		return v
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
