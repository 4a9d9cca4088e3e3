// Package nutrition derives calorie and macro targets from a biometric profile
// using the Mifflin-St Jeor equation.
package nutrition

import (
	"fmt"

	"github.com/saadjs/nibbles/internal/model"
)

const (
	ProteinKcalPerGram = 4
	CarbsKcalPerGram   = 4
	FatKcalPerGram     = 9

	DefaultCalorieTarget = 2000
	MinCaloriesFemale    = 1200
	MinCaloriesMale      = 1500
)

var activityMultipliers = map[model.ActivityLevel]float64{
	model.ActivitySedentary:        1.2,
	model.ActivityLightlyActive:    1.375,
	model.ActivityModeratelyActive: 1.55,
	model.ActivityVeryActive:       1.725,
}

var goalAdjustments = map[model.Goal]int{
	model.GoalLose:        -500,
	model.GoalMaintain:    0,
	model.GoalGain:        300,
	model.GoalGainMuscles: 300,
}

// Profile holds the inputs of the daily target formula.
type Profile struct {
	WeightKg float64
	HeightCm float64
	Age      int
	Sex      model.Sex
	Activity model.ActivityLevel
	Goal     model.Goal
}

func ProfileOf(u model.User) Profile {
	return Profile{
		WeightKg: u.WeightKg,
		HeightCm: u.HeightCm,
		Age:      u.Age,
		Sex:      u.Sex,
		Activity: u.ActivityLevel,
		Goal:     u.Goal,
	}
}

// Floors are the minimum daily targets per sex.
type Floors struct {
	Female int
	Male   int
}

func DefaultFloors() Floors {
	return Floors{Female: MinCaloriesFemale, Male: MinCaloriesMale}
}

func (f Floors) For(sex model.Sex) int {
	if sex == model.SexMale {
		return f.Male
	}
	return f.Female
}

func BMR(weightKg, heightCm float64, age int, sex model.Sex) float64 {
	bmr := 10*weightKg + 6.25*heightCm - 5*float64(age)
	if sex == model.SexMale {
		return bmr + 5
	}
	return bmr - 161
}

func ActivityMultiplier(level model.ActivityLevel) (float64, bool) {
	m, ok := activityMultipliers[level]
	return m, ok
}

func TDEE(bmr float64, level model.ActivityLevel) (float64, error) {
	m, ok := ActivityMultiplier(level)
	if !ok {
		return 0, fmt.Errorf("unknown activity level %q", level)
	}
	return bmr * m, nil
}

func GoalAdjustment(goal model.Goal) (int, error) {
	adj, ok := goalAdjustments[goal]
	if !ok {
		return 0, fmt.Errorf("unknown goal %q", goal)
	}
	return adj, nil
}

// DailyTarget returns the truncated daily calorie target, never below the
// floor for the profile's sex.
func DailyTarget(p Profile, floors Floors) (int, error) {
	if p.Sex != model.SexMale && p.Sex != model.SexFemale {
		return 0, fmt.Errorf("unknown sex %q", p.Sex)
	}
	tdee, err := TDEE(BMR(p.WeightKg, p.HeightCm, p.Age, p.Sex), p.Activity)
	if err != nil {
		return 0, err
	}
	adj, err := GoalAdjustment(p.Goal)
	if err != nil {
		return 0, err
	}
	target := truncate(tdee + float64(adj))
	if floor := floors.For(p.Sex); target < floor {
		return floor, nil
	}
	return target, nil
}

// MacroSplit is a percentage split of daily calories. Percentages sum to 100.
type MacroSplit struct {
	ProteinPct int `json:"protein_pct"`
	CarbsPct   int `json:"carbs_pct"`
	FatPct     int `json:"fat_pct"`
}

func SplitFor(goal model.Goal) MacroSplit {
	switch goal {
	case model.GoalLose:
		return MacroSplit{ProteinPct: 30, CarbsPct: 40, FatPct: 30}
	case model.GoalGain:
		return MacroSplit{ProteinPct: 25, CarbsPct: 50, FatPct: 25}
	default:
		return MacroSplit{ProteinPct: 25, CarbsPct: 45, FatPct: 30}
	}
}

type MacroTargets struct {
	ProteinG int `json:"protein_g"`
	CarbsG   int `json:"carbs_g"`
	FatG     int `json:"fat_g"`
}

// Macros converts a calorie target into gram targets. Each macro is truncated
// on its own, so the gram totals may fall a few kcal short of the target.
func Macros(calories int, goal model.Goal) MacroTargets {
	if calories <= 0 {
		return MacroTargets{}
	}
	split := SplitFor(goal)
	return MacroTargets{
		ProteinG: calories * split.ProteinPct / (100 * ProteinKcalPerGram),
		CarbsG:   calories * split.CarbsPct / (100 * CarbsKcalPerGram),
		FatG:     calories * split.FatPct / (100 * FatKcalPerGram),
	}
}

func MacroCalories(proteinG, carbsG, fatG float64) float64 {
	return proteinG*ProteinKcalPerGram + carbsG*CarbsKcalPerGram + fatG*FatKcalPerGram
}

// truncate drops the fractional part; the epsilon absorbs float error such as
// 2075.9999999 for an exact 2076.
func truncate(v float64) int {
	if v < 0 {
		return -int(-v + 1e-9)
	}
	return int(v + 1e-9)
}
