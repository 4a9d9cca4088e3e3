package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/saadjs/nibbles/internal/model"
)

type AchievementCategory string

const (
	CategoryMeals     AchievementCategory = "meals"
	CategoryStreak    AchievementCategory = "streak"
	CategoryEvolution AchievementCategory = "evolution"
)

type AchievementDef struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Emoji       string              `json:"emoji"`
	Category    AchievementCategory `json:"category"`
}

// Catalog lists every achievement in display order.
var Catalog = []AchievementDef{
	{ID: "first_bite", Name: "First Bite", Description: "Log your first meal", Emoji: "🍽️", Category: CategoryMeals},
	{ID: "getting_started", Name: "Getting Started", Description: "Log 10 meals", Emoji: "🥄", Category: CategoryMeals},
	{ID: "century_club", Name: "Century Club", Description: "Log 100 meals", Emoji: "💯", Category: CategoryMeals},
	{ID: "dedicated", Name: "Dedicated", Description: "Log 500 meals", Emoji: "🏆", Category: CategoryMeals},
	{ID: "week_warrior", Name: "Week Warrior", Description: "Log food 7 days in a row", Emoji: "🔥", Category: CategoryStreak},
	{ID: "fortnight_fighter", Name: "Fortnight Fighter", Description: "Log food 14 days in a row", Emoji: "⚡", Category: CategoryStreak},
	{ID: "month_master", Name: "Month Master", Description: "Log food 30 days in a row", Emoji: "🌟", Category: CategoryStreak},
	{ID: "hatched", Name: "Hatched", Description: "Your egg hatched into a baby", Emoji: "🐣", Category: CategoryEvolution},
	{ID: "growing_up", Name: "Growing Up", Description: "Your pet grew into a teen", Emoji: "🌱", Category: CategoryEvolution},
	{ID: "all_grown", Name: "All Grown Up", Description: "Your pet became an adult", Emoji: "🌳", Category: CategoryEvolution},
	{ID: "wise_one", Name: "Wise One", Description: "Your pet reached elder status", Emoji: "🧙", Category: CategoryEvolution},
}

var mealMilestones = []struct {
	meals int
	id    string
}{
	{1, "first_bite"},
	{10, "getting_started"},
	{100, "century_club"},
	{500, "dedicated"},
}

var streakMilestones = []struct {
	days int
	id   string
}{
	{7, "week_warrior"},
	{14, "fortnight_fighter"},
	{30, "month_master"},
}

var evolutionMilestones = []struct {
	from, to model.PetLevel
	id       string
}{
	{model.LevelEgg, model.LevelBaby, "hatched"},
	{model.LevelBaby, model.LevelTeen, "growing_up"},
	{model.LevelTeen, model.LevelAdult, "all_grown"},
	{model.LevelAdult, model.LevelElder, "wise_one"},
}

func FindAchievement(id string) (AchievementDef, bool) {
	for _, a := range Catalog {
		if a.ID == id {
			return a, true
		}
	}
	return AchievementDef{}, false
}

// Milestones lists every achievement the pet state qualifies for. Meal and
// streak milestones compare against current totals; an evolution milestone
// needs the exact before/after level pair.
func Milestones(pet model.PetStatus, before, after model.PetLevel) []string {
	var ids []string
	for _, m := range mealMilestones {
		if pet.TotalMealsLogged >= m.meals {
			ids = append(ids, m.id)
		}
	}
	for _, m := range streakMilestones {
		if pet.CurrentStreak >= m.days {
			ids = append(ids, m.id)
		}
	}
	for _, m := range evolutionMilestones {
		if before == m.from && after == m.to {
			ids = append(ids, m.id)
		}
	}
	return ids
}

// Unlock records the achievement once. A nil result with a nil error means
// it was already unlocked.
func (s *Service) Unlock(ctx context.Context, userID int64, id string) (*model.Achievement, error) {
	if _, ok := FindAchievement(id); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAchievement, id)
	}
	a, err := s.store.UnlockAchievement(ctx, userID, id, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("unlock %s: %w", id, err)
	}
	if a != nil {
		s.log.Info("achievement unlocked", zap.Int64("user_id", userID), zap.String("achievement", id))
	}
	return a, nil
}

type AchievementStatus struct {
	AchievementDef
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// Achievements returns the whole catalog with the user's unlock state.
func (s *Service) Achievements(ctx context.Context, userID int64) ([]AchievementStatus, error) {
	unlocked, err := s.store.ListAchievements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	at := make(map[string]time.Time, len(unlocked))
	for _, a := range unlocked {
		at[a.AchievementID] = a.UnlockedAt
	}
	out := make([]AchievementStatus, 0, len(Catalog))
	for _, def := range Catalog {
		st := AchievementStatus{AchievementDef: def}
		if t, ok := at[def.ID]; ok {
			t := t
			st.Unlocked = true
			st.UnlockedAt = &t
		}
		out = append(out, st)
	}
	return out, nil
}
