package service

import (
	"context"

	"github.com/saadjs/nibbles/internal/model"
	"github.com/saadjs/nibbles/internal/nutrition"
)

// Progress is today's intake against the user's targets. Remaining is
// negative once the target is exceeded.
type Progress struct {
	Date         string                 `json:"date"`
	Consumed     int                    `json:"consumed"`
	Target       int                    `json:"target"`
	Remaining    int                    `json:"remaining"`
	Percentage   float64                `json:"percentage"`
	Protein      float64                `json:"protein"`
	Carbs        float64                `json:"carbs"`
	Fat          float64                `json:"fat"`
	MealCount    int                    `json:"meal_count"`
	MacroTargets nutrition.MacroTargets `json:"macro_targets"`
}

func (p Progress) Over() bool { return p.Remaining < 0 }

// ComputeProgress combines day totals with a calorie target and macro targets.
func ComputeProgress(totals model.Totals, target int, macros nutrition.MacroTargets) Progress {
	return Progress{
		Consumed:     totals.Calories,
		Target:       target,
		Remaining:    target - totals.Calories,
		Percentage:   percentOf(float64(totals.Calories), float64(target)),
		Protein:      round1(totals.Protein),
		Carbs:        round1(totals.Carbs),
		Fat:          round1(totals.Fat),
		MealCount:    totals.MealCount,
		MacroTargets: macros,
	}
}

func (s *Service) Progress(ctx context.Context, userID int64) (*Progress, error) {
	u, err := s.requireUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	today := s.Today()
	totals, err := s.DailyTotals(ctx, userID, today)
	if err != nil {
		return nil, err
	}
	p := ComputeProgress(totals, s.CalorieTarget(*u), s.MacroTargets(*u))
	p.Date = s.dateKey(today)
	return &p, nil
}
