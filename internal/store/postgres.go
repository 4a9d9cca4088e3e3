package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/saadjs/nibbles/internal/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type userRecord struct {
	ID                    int64 `gorm:"primaryKey;autoIncrement:false"`
	Username              *string
	FirstName             *string
	WeightKg              *float64 `gorm:"check:chk_users_weight,weight_kg > 0"`
	HeightCm              *float64 `gorm:"check:chk_users_height,height_cm > 0"`
	Age                   *int     `gorm:"check:chk_users_age,age > 0"`
	Sex                   *string  `gorm:"size:16"`
	ActivityLevel         *string  `gorm:"size:32"`
	Goal                  *string  `gorm:"size:32"`
	DailyCalorieTarget    *int
	CalorieOverride       bool `gorm:"not null;default:false"`
	ProteinTargetG        *int
	CarbsTargetG          *int
	FatTargetG            *int
	MacroOverride         bool `gorm:"not null;default:false"`
	OnboardingComplete    bool `gorm:"not null;default:false"`
	NotificationsEnabled  bool `gorm:"not null;default:true"`
	ReminderHour          int  `gorm:"not null;default:20;check:chk_users_reminder_hour,reminder_hour BETWEEN 0 AND 23"`
	LastReminderSent      *time.Time
	WeeklySummaryEnabled  bool `gorm:"not null;default:true"`
	LastWeeklySummarySent *time.Time
	CreatedAt             time.Time `gorm:"not null"`
	UpdatedAt             time.Time `gorm:"not null"`
}

func (userRecord) TableName() string { return "users" }

func (r userRecord) toModel() (*model.User, error) {
	u := &model.User{
		ID:                    r.ID,
		Username:              deref(r.Username),
		FirstName:             deref(r.FirstName),
		WeightKg:              deref(r.WeightKg),
		HeightCm:              deref(r.HeightCm),
		Age:                   deref(r.Age),
		DailyCalorieTarget:    deref(r.DailyCalorieTarget),
		CalorieOverride:       r.CalorieOverride,
		ProteinTargetG:        deref(r.ProteinTargetG),
		CarbsTargetG:          deref(r.CarbsTargetG),
		FatTargetG:            deref(r.FatTargetG),
		MacroOverride:         r.MacroOverride,
		OnboardingComplete:    r.OnboardingComplete,
		NotificationsEnabled:  r.NotificationsEnabled,
		ReminderHour:          r.ReminderHour,
		LastReminderSent:      utcPtr(r.LastReminderSent),
		WeeklySummaryEnabled:  r.WeeklySummaryEnabled,
		LastWeeklySummarySent: utcPtr(r.LastWeeklySummarySent),
		CreatedAt:             r.CreatedAt.UTC(),
		UpdatedAt:             r.UpdatedAt.UTC(),
	}
	var err error
	if v := deref(r.Sex); v != "" {
		if u.Sex, err = model.ParseSex(v); err != nil {
			return nil, fmt.Errorf("user %d: %w", r.ID, err)
		}
	}
	if v := deref(r.ActivityLevel); v != "" {
		if u.ActivityLevel, err = model.ParseActivityLevel(v); err != nil {
			return nil, fmt.Errorf("user %d: %w", r.ID, err)
		}
	}
	if v := deref(r.Goal); v != "" {
		if u.Goal, err = model.ParseGoal(v); err != nil {
			return nil, fmt.Errorf("user %d: %w", r.ID, err)
		}
	}
	return u, nil
}

type foodLogRecord struct {
	ID              int64          `gorm:"primaryKey"`
	UserID          int64          `gorm:"not null;index:idx_food_logs_user_logged_at,priority:1"`
	LoggedAt        time.Time      `gorm:"not null;index:idx_food_logs_user_logged_at,priority:2"`
	InputType       string         `gorm:"size:16;not null"`
	RawInput        *string
	PhotoRef        *string
	AnalysisJSON    datatypes.JSON `gorm:"column:analysis_json;type:jsonb;not null"`
	TotalCalories   int            `gorm:"not null;check:chk_food_logs_calories,total_calories >= 0"`
	TotalProtein    float64        `gorm:"not null"`
	TotalCarbs      float64        `gorm:"not null"`
	TotalFat        float64        `gorm:"not null"`
	ConfidenceScore float64        `gorm:"not null;check:chk_food_logs_confidence,confidence_score BETWEEN 0 AND 1"`
}

func (foodLogRecord) TableName() string { return "food_logs" }

func (r foodLogRecord) toModel() (*model.FoodLog, error) {
	inputType, err := model.ParseInputType(r.InputType)
	if err != nil {
		return nil, fmt.Errorf("food log %d: %w", r.ID, err)
	}
	l := &model.FoodLog{
		ID:        r.ID,
		UserID:    r.UserID,
		LoggedAt:  r.LoggedAt.UTC(),
		InputType: inputType,
		RawInput:  deref(r.RawInput),
		PhotoRef:  deref(r.PhotoRef),
		Totals: model.NutritionTotals{
			Calories: r.TotalCalories,
			ProteinG: r.TotalProtein,
			CarbsG:   r.TotalCarbs,
			FatG:     r.TotalFat,
		},
		Confidence: r.ConfidenceScore,
	}
	if err := json.Unmarshal(r.AnalysisJSON, &l.Analysis); err != nil {
		return nil, fmt.Errorf("decode analysis for food log %d: %w", r.ID, err)
	}
	return l, nil
}

type petRecord struct {
	UserID           int64     `gorm:"primaryKey;autoIncrement:false"`
	PetName          string    `gorm:"size:64;not null;default:Nibbles"`
	TotalMealsLogged int       `gorm:"not null;default:0"`
	CurrentStreak    int       `gorm:"not null;default:0;check:chk_pet_status_streak,current_streak <= best_streak"`
	BestStreak       int       `gorm:"not null;default:0"`
	LastFedDate      *string   `gorm:"size:10"`
	CreatedAt        time.Time `gorm:"not null"`
}

func (petRecord) TableName() string { return "pet_status" }

func (r petRecord) toModel() model.PetStatus {
	return model.PetStatus{
		UserID:           r.UserID,
		Name:             r.PetName,
		TotalMealsLogged: r.TotalMealsLogged,
		CurrentStreak:    r.CurrentStreak,
		BestStreak:       r.BestStreak,
		LastFedDate:      deref(r.LastFedDate),
		CreatedAt:        r.CreatedAt.UTC(),
	}
}

type achievementRecord struct {
	ID            int64     `gorm:"primaryKey"`
	UserID        int64     `gorm:"not null;uniqueIndex:idx_achievements_user_achievement,priority:1"`
	AchievementID string    `gorm:"size:64;not null;uniqueIndex:idx_achievements_user_achievement,priority:2"`
	UnlockedAt    time.Time `gorm:"not null"`
}

func (achievementRecord) TableName() string { return "achievements" }

type configRecord struct {
	Key       string    `gorm:"primaryKey;size:128"`
	Value     string    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (configRecord) TableName() string { return "app_config" }

// Postgres is the gorm-backed Store used for hosted deployments.
type Postgres struct {
	db *gorm.DB
}

func NewPostgres(db *gorm.DB) *Postgres {
	return &Postgres{db: db}
}

// MigratePostgres creates or updates the schema and seeds default flags.
func MigratePostgres(ctx context.Context, db *gorm.DB) error {
	tx := db.WithContext(ctx)
	if err := tx.AutoMigrate(&userRecord{}, &foodLogRecord{}, &petRecord{}, &achievementRecord{}, &configRecord{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	foreignKeys := []struct {
		model       any
		table, name string
	}{
		{&foodLogRecord{}, "food_logs", "fk_food_logs_user"},
		{&petRecord{}, "pet_status", "fk_pet_status_user"},
		{&achievementRecord{}, "achievements", "fk_achievements_user"},
	}
	for _, fk := range foreignKeys {
		if tx.Migrator().HasConstraint(fk.model, fk.name) {
			continue
		}
		stmt := fmt.Sprintf(`ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE`, fk.table, fk.name)
		if err := tx.Exec(stmt).Error; err != nil {
			return fmt.Errorf("add constraint %s: %w", fk.name, err)
		}
	}
	now := time.Now().UTC()
	seed := []configRecord{
		{Key: "flag.daily_reminder", Value: "false", UpdatedAt: now},
		{Key: "flag.weekly_summary", Value: "true", UpdatedAt: now},
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return fmt.Errorf("seed config: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (p *Postgres) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var rec userRecord
	err := p.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return rec.toModel()
}

func (p *Postgres) CreateUser(ctx context.Context, u model.User) (*model.User, error) {
	now := time.Now().UTC()
	rec := userRecord{
		ID:                   u.ID,
		Username:             nullString(u.Username),
		FirstName:            nullString(u.FirstName),
		NotificationsEnabled: u.NotificationsEnabled,
		ReminderHour:         u.ReminderHour,
		WeeklySummaryEnabled: u.WeeklySummaryEnabled,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	// Select forces false flags to be written instead of falling back to column defaults.
	err := p.db.WithContext(ctx).
		Select("*").
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&rec).Error
	if err != nil {
		return nil, fmt.Errorf("create user %d: %w", u.ID, err)
	}
	return p.GetUser(ctx, u.ID)
}

func (p *Postgres) UpdateUser(ctx context.Context, id int64, upd model.ProfileUpdate) (*model.User, error) {
	keys, cols := profileColumns(upd)
	if len(keys) == 0 {
		return p.GetUser(ctx, id)
	}
	values := make(map[string]any, len(cols)+1)
	for k, v := range cols {
		if t, ok := v.(time.Time); ok {
			v = t.UTC()
		}
		values[k] = v
	}
	values["updated_at"] = time.Now().UTC()
	res := p.db.WithContext(ctx).Model(&userRecord{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return nil, fmt.Errorf("update user %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return p.GetUser(ctx, id)
}

func (p *Postgres) ListUsersForReminder(ctx context.Context, hour int) ([]model.User, error) {
	return p.listUsers(p.db.WithContext(ctx).
		Where("onboarding_complete AND notifications_enabled AND reminder_hour = ?", hour))
}

func (p *Postgres) ListUsersForWeeklySummary(ctx context.Context) ([]model.User, error) {
	return p.listUsers(p.db.WithContext(ctx).
		Where("onboarding_complete AND weekly_summary_enabled"))
}

func (p *Postgres) listUsers(q *gorm.DB) ([]model.User, error) {
	var recs []userRecord
	if err := q.Order("id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]model.User, 0, len(recs))
	for _, rec := range recs {
		u, err := rec.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, nil
}

func (p *Postgres) CreateLog(ctx context.Context, l model.FoodLog) (*model.FoodLog, error) {
	analysis, err := json.Marshal(l.Analysis)
	if err != nil {
		return nil, fmt.Errorf("encode analysis: %w", err)
	}
	if l.LoggedAt.IsZero() {
		l.LoggedAt = time.Now()
	}
	l.LoggedAt = l.LoggedAt.UTC().Truncate(time.Second)
	rec := foodLogRecord{
		UserID:          l.UserID,
		LoggedAt:        l.LoggedAt,
		InputType:       string(l.InputType),
		RawInput:        nullString(l.RawInput),
		PhotoRef:        nullString(l.PhotoRef),
		AnalysisJSON:    datatypes.JSON(analysis),
		TotalCalories:   l.Totals.Calories,
		TotalProtein:    l.Totals.ProteinG,
		TotalCarbs:      l.Totals.CarbsG,
		TotalFat:        l.Totals.FatG,
		ConfidenceScore: l.Confidence,
	}
	if err := p.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("insert food log: %w", err)
	}
	l.ID = rec.ID
	return &l, nil
}

func (p *Postgres) GetLog(ctx context.Context, userID, id int64) (*model.FoodLog, error) {
	var rec foodLogRecord
	err := p.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get food log %d: %w", id, err)
	}
	return rec.toModel()
}

func (p *Postgres) DeleteLog(ctx context.Context, userID, id int64) (bool, error) {
	res := p.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&foodLogRecord{})
	if res.Error != nil {
		return false, fmt.Errorf("delete food log %d: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (p *Postgres) ListLogs(ctx context.Context, userID int64, from, to time.Time) ([]model.FoodLog, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	return p.findLogs(p.db.WithContext(ctx).
		Where("user_id = ? AND logged_at >= ? AND logged_at < ?", userID, from.UTC(), to.UTC()).
		Order("logged_at ASC, id ASC"))
}

func (p *Postgres) RecentLogs(ctx context.Context, userID int64, limit int) ([]model.FoodLog, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}
	return p.findLogs(p.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("logged_at DESC, id DESC").
		Limit(limit))
}

func (p *Postgres) findLogs(q *gorm.DB) ([]model.FoodLog, error) {
	var recs []foodLogRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list food logs: %w", err)
	}
	out := make([]model.FoodLog, 0, len(recs))
	for _, rec := range recs {
		l, err := rec.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, nil
}

func (p *Postgres) SumLogs(ctx context.Context, userID int64, from, to time.Time) (model.Totals, error) {
	if err := validateRange(from, to); err != nil {
		return model.Totals{}, err
	}
	var row struct {
		Calories  int
		Protein   float64
		Carbs     float64
		Fat       float64
		MealCount int
	}
	err := p.db.WithContext(ctx).Model(&foodLogRecord{}).
		Select(`COALESCE(SUM(total_calories), 0) AS calories, COALESCE(SUM(total_protein), 0) AS protein,
COALESCE(SUM(total_carbs), 0) AS carbs, COALESCE(SUM(total_fat), 0) AS fat, COUNT(*) AS meal_count`).
		Where("user_id = ? AND logged_at >= ? AND logged_at < ?", userID, from.UTC(), to.UTC()).
		Scan(&row).Error
	if err != nil {
		return model.Totals{}, fmt.Errorf("sum food logs: %w", err)
	}
	return model.Totals{
		Calories:  row.Calories,
		Protein:   row.Protein,
		Carbs:     row.Carbs,
		Fat:       row.Fat,
		MealCount: row.MealCount,
	}, nil
}

func (p *Postgres) HasLogs(ctx context.Context, userID int64, from, to time.Time) (bool, error) {
	if err := validateRange(from, to); err != nil {
		return false, err
	}
	var n int64
	err := p.db.WithContext(ctx).Model(&foodLogRecord{}).
		Where("user_id = ? AND logged_at >= ? AND logged_at < ?", userID, from.UTC(), to.UTC()).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check food logs: %w", err)
	}
	return n > 0, nil
}

func (p *Postgres) GetPet(ctx context.Context, userID int64) (*model.PetStatus, error) {
	var rec petRecord
	err := p.db.WithContext(ctx).Where("user_id = ?", userID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pet for user %d: %w", userID, err)
	}
	pet := rec.toModel()
	return &pet, nil
}

func (p *Postgres) GetOrCreatePet(ctx context.Context, userID int64, defaultName string) (*model.PetStatus, error) {
	if err := createPet(p.db.WithContext(ctx), userID, defaultName); err != nil {
		return nil, err
	}
	return p.GetPet(ctx, userID)
}

func createPet(tx *gorm.DB, userID int64, defaultName string) error {
	rec := petRecord{UserID: userID, PetName: defaultName, CreatedAt: time.Now().UTC()}
	err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("create pet for user %d: %w", userID, err)
	}
	return nil
}

func (p *Postgres) UpdatePet(ctx context.Context, userID int64, defaultName string, mutate PetMutation) (model.PetStatus, model.PetStatus, error) {
	var before, after model.PetStatus
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := createPet(tx, userID, defaultName); err != nil {
			return err
		}
		var rec petRecord
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID).First(&rec).Error; err != nil {
			return fmt.Errorf("load pet for user %d: %w", userID, err)
		}
		before = rec.toModel()
		after = before
		if err := mutate(&after); err != nil {
			return err
		}
		err := tx.Model(&petRecord{}).Where("user_id = ?", userID).Updates(map[string]any{
			"pet_name":           after.Name,
			"total_meals_logged": after.TotalMealsLogged,
			"current_streak":     after.CurrentStreak,
			"best_streak":        after.BestStreak,
			"last_fed_date":      nullString(after.LastFedDate),
		}).Error
		if err != nil {
			return fmt.Errorf("save pet for user %d: %w", userID, err)
		}
		return nil
	})
	if err != nil {
		return model.PetStatus{}, model.PetStatus{}, err
	}
	return before, after, nil
}

func (p *Postgres) ResetStaleStreaks(ctx context.Context, lastFedBefore string) (int64, error) {
	res := p.db.WithContext(ctx).Model(&petRecord{}).
		Where("current_streak > 0 AND last_fed_date IS NOT NULL AND last_fed_date < ?", lastFedBefore).
		Update("current_streak", 0)
	if res.Error != nil {
		return 0, fmt.Errorf("reset stale streaks: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (p *Postgres) UnlockAchievement(ctx context.Context, userID int64, achievementID string, at time.Time) (*model.Achievement, error) {
	at = at.UTC().Truncate(time.Second)
	rec := achievementRecord{UserID: userID, AchievementID: achievementID, UnlockedAt: at}
	res := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}, {Name: "achievement_id"}}, DoNothing: true}).
		Create(&rec)
	if res.Error != nil {
		return nil, fmt.Errorf("unlock achievement %q: %w", achievementID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &model.Achievement{UserID: userID, AchievementID: achievementID, UnlockedAt: at}, nil
}

func (p *Postgres) ListAchievements(ctx context.Context, userID int64) ([]model.Achievement, error) {
	var recs []achievementRecord
	err := p.db.WithContext(ctx).Where("user_id = ?", userID).Order("unlocked_at DESC, id DESC").Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	out := make([]model.Achievement, 0, len(recs))
	for _, rec := range recs {
		out = append(out, model.Achievement{UserID: rec.UserID, AchievementID: rec.AchievementID, UnlockedAt: rec.UnlockedAt.UTC()})
	}
	return out, nil
}

func (p *Postgres) SetConfig(ctx context.Context, key, value string) error {
	key = normalizeKey(key)
	if key == "" {
		return fmt.Errorf("config key is required")
	}
	rec := configRecord{Key: key, Value: strings.TrimSpace(value), UpdatedAt: time.Now().UTC()}
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("set config %q: %w", key, err)
	}
	return nil
}

func (p *Postgres) GetConfig(ctx context.Context, key string) (string, bool, error) {
	key = normalizeKey(key)
	if key == "" {
		return "", false, fmt.Errorf("config key is required")
	}
	var rec configRecord
	err := p.db.WithContext(ctx).Where("key = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get config %q: %w", key, err)
	}
	return rec.Value, true, nil
}

func (p *Postgres) ListConfig(ctx context.Context) (map[string]string, error) {
	var recs []configRecord
	if err := p.db.WithContext(ctx).Order("key ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list config: %w", err)
	}
	out := make(map[string]string, len(recs))
	for _, rec := range recs {
		out[rec.Key] = rec.Value
	}
	return out, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func nullString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
