// Package store persists users, food logs, pets, achievements and settings.
// The core is written against Store; SQLite and Postgres backends are chosen
// at startup.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/saadjs/nibbles/internal/model"
)

var ErrNotFound = errors.New("not found")

// Lookups that find nothing return a nil record and a nil error.
type UserStore interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
	// CreateUser inserts u unless a user with the same id exists and returns
	// the stored row either way.
	CreateUser(ctx context.Context, u model.User) (*model.User, error)
	UpdateUser(ctx context.Context, id int64, upd model.ProfileUpdate) (*model.User, error)
	ListUsersForReminder(ctx context.Context, hour int) ([]model.User, error)
	ListUsersForWeeklySummary(ctx context.Context) ([]model.User, error)
}

// Range arguments are half-open instants: from <= logged_at < to.
type FoodLogStore interface {
	CreateLog(ctx context.Context, log model.FoodLog) (*model.FoodLog, error)
	GetLog(ctx context.Context, userID, id int64) (*model.FoodLog, error)
	DeleteLog(ctx context.Context, userID, id int64) (bool, error)
	ListLogs(ctx context.Context, userID int64, from, to time.Time) ([]model.FoodLog, error)
	RecentLogs(ctx context.Context, userID int64, limit int) ([]model.FoodLog, error)
	SumLogs(ctx context.Context, userID int64, from, to time.Time) (model.Totals, error)
	HasLogs(ctx context.Context, userID int64, from, to time.Time) (bool, error)
}

// PetMutation edits a pet in place inside the update transaction.
type PetMutation func(p *model.PetStatus) error

type PetStore interface {
	GetPet(ctx context.Context, userID int64) (*model.PetStatus, error)
	GetOrCreatePet(ctx context.Context, userID int64, defaultName string) (*model.PetStatus, error)
	// UpdatePet creates the pet if needed, then runs mutate and persists the
	// result as one atomic read-modify-write. It returns the state before and
	// after the mutation.
	UpdatePet(ctx context.Context, userID int64, defaultName string, mutate PetMutation) (before, after model.PetStatus, err error)
	// ResetStaleStreaks zeroes current streaks whose last feed is before the
	// given date (YYYY-MM-DD) and returns the number of pets touched.
	ResetStaleStreaks(ctx context.Context, lastFedBefore string) (int64, error)
}

type AchievementStore interface {
	// UnlockAchievement inserts the pair if absent. It returns nil when the
	// achievement was already unlocked.
	UnlockAchievement(ctx context.Context, userID int64, achievementID string, at time.Time) (*model.Achievement, error)
	ListAchievements(ctx context.Context, userID int64) ([]model.Achievement, error)
}

type ConfigStore interface {
	SetConfig(ctx context.Context, key, value string) error
	GetConfig(ctx context.Context, key string) (string, bool, error)
	ListConfig(ctx context.Context) (map[string]string, error)
}

type Store interface {
	UserStore
	FoodLogStore
	PetStore
	AchievementStore
	ConfigStore
	Close() error
}

// profileColumns maps the set fields of upd to column values. Keys are
// returned in a stable order.
func profileColumns(upd model.ProfileUpdate) ([]string, map[string]any) {
	cols := map[string]any{}
	if upd.Username != nil {
		cols["username"] = *upd.Username
	}
	if upd.FirstName != nil {
		cols["first_name"] = *upd.FirstName
	}
	if upd.WeightKg != nil {
		cols["weight_kg"] = *upd.WeightKg
	}
	if upd.HeightCm != nil {
		cols["height_cm"] = *upd.HeightCm
	}
	if upd.Age != nil {
		cols["age"] = *upd.Age
	}
	if upd.Sex != nil {
		cols["sex"] = string(*upd.Sex)
	}
	if upd.ActivityLevel != nil {
		cols["activity_level"] = string(*upd.ActivityLevel)
	}
	if upd.Goal != nil {
		cols["goal"] = string(*upd.Goal)
	}
	if upd.DailyCalorieTarget != nil {
		cols["daily_calorie_target"] = *upd.DailyCalorieTarget
	}
	if upd.CalorieOverride != nil {
		cols["calorie_override"] = *upd.CalorieOverride
	}
	if upd.ClearMacroTargets {
		cols["protein_target_g"] = nil
		cols["carbs_target_g"] = nil
		cols["fat_target_g"] = nil
	}
	if upd.ProteinTargetG != nil {
		cols["protein_target_g"] = *upd.ProteinTargetG
	}
	if upd.CarbsTargetG != nil {
		cols["carbs_target_g"] = *upd.CarbsTargetG
	}
	if upd.FatTargetG != nil {
		cols["fat_target_g"] = *upd.FatTargetG
	}
	if upd.MacroOverride != nil {
		cols["macro_override"] = *upd.MacroOverride
	}
	if upd.OnboardingComplete != nil {
		cols["onboarding_complete"] = *upd.OnboardingComplete
	}
	if upd.NotificationsEnabled != nil {
		cols["notifications_enabled"] = *upd.NotificationsEnabled
	}
	if upd.ReminderHour != nil {
		cols["reminder_hour"] = *upd.ReminderHour
	}
	if upd.LastReminderSent != nil {
		cols["last_reminder_sent"] = *upd.LastReminderSent
	}
	if upd.WeeklySummaryEnabled != nil {
		cols["weekly_summary_enabled"] = *upd.WeeklySummaryEnabled
	}
	if upd.LastWeeklySummarySent != nil {
		cols["last_weekly_summary_sent"] = *upd.LastWeeklySummarySent
	}
	keys := make([]string, 0, len(cols))
	for k := range cols {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, cols
}

func validateRange(from, to time.Time) error {
	if !from.Before(to) {
		return fmt.Errorf("invalid range: %s is not before %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return nil
}
