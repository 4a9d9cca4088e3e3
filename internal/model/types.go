package model

import (
	"errors"
	"math"
	"time"
)

type User struct {
	ID                    int64         `json:"id"`
	Username              string        `json:"username,omitempty"`
	FirstName             string        `json:"first_name,omitempty"`
	WeightKg              float64       `json:"weight_kg,omitempty"`
	HeightCm              float64       `json:"height_cm,omitempty"`
	Age                   int           `json:"age,omitempty"`
	Sex                   Sex           `json:"sex,omitempty"`
	ActivityLevel         ActivityLevel `json:"activity_level,omitempty"`
	Goal                  Goal          `json:"goal,omitempty"`
	DailyCalorieTarget    int           `json:"daily_calorie_target,omitempty"`
	CalorieOverride       bool          `json:"calorie_override"`
	ProteinTargetG        int           `json:"protein_target_g,omitempty"`
	CarbsTargetG          int           `json:"carbs_target_g,omitempty"`
	FatTargetG            int           `json:"fat_target_g,omitempty"`
	MacroOverride         bool          `json:"macro_override"`
	OnboardingComplete    bool          `json:"onboarding_complete"`
	NotificationsEnabled  bool          `json:"notifications_enabled"`
	ReminderHour          int           `json:"reminder_hour"`
	LastReminderSent      *time.Time    `json:"last_reminder_sent,omitempty"`
	WeeklySummaryEnabled  bool          `json:"weekly_summary_enabled"`
	LastWeeklySummarySent *time.Time    `json:"last_weekly_summary_sent,omitempty"`
	CreatedAt             time.Time     `json:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at"`
}

// HasBiometrics reports whether every input of the calorie target formula is known.
func (u User) HasBiometrics() bool {
	return u.WeightKg > 0 && u.HeightCm > 0 && u.Age > 0 && u.Sex != "" && u.ActivityLevel != "" && u.Goal != ""
}

// ProfileUpdate is a partial update: nil fields are left untouched.
type ProfileUpdate struct {
	Username              *string
	FirstName             *string
	WeightKg              *float64
	HeightCm              *float64
	Age                   *int
	Sex                   *Sex
	ActivityLevel         *ActivityLevel
	Goal                  *Goal
	DailyCalorieTarget    *int
	CalorieOverride       *bool
	ProteinTargetG        *int
	CarbsTargetG          *int
	FatTargetG            *int
	MacroOverride         *bool
	ClearMacroTargets     bool
	OnboardingComplete    *bool
	NotificationsEnabled  *bool
	ReminderHour          *int
	LastReminderSent      *time.Time
	WeeklySummaryEnabled  *bool
	LastWeeklySummarySent *time.Time
}

func (u ProfileUpdate) Empty() bool {
	return u == ProfileUpdate{}
}

type FoodItem struct {
	Name     string  `json:"name"`
	Portion  string  `json:"portion"`
	Calories int     `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
}

type NutritionTotals struct {
	Calories int     `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
}

// ErrUnusableAnalysis marks a lookup or analyzer reply that yields no
// readable nutrition estimate.
var ErrUnusableAnalysis = errors.New("unusable analysis")

type FoodAnalysis struct {
	Items             []FoodItem      `json:"items"`
	Totals            NutritionTotals `json:"totals"`
	OverallConfidence float64         `json:"overall_confidence"`
	Notes             string          `json:"notes,omitempty"`
}

// ItemTotals sums the per-item values exactly. Rounding is left to read models.
func (a FoodAnalysis) ItemTotals() NutritionTotals {
	var t NutritionTotals
	for _, it := range a.Items {
		t.Calories += it.Calories
		t.ProteinG += it.ProteinG
		t.CarbsG += it.CarbsG
		t.FatG += it.FatG
	}
	return t
}

// AnalysisRequest is the input handed to a food analyzer. At least one of
// Text and Image is set.
type AnalysisRequest struct {
	Text      string
	Image     []byte
	ImageMIME string
}

type FoodLog struct {
	ID         int64           `json:"id"`
	UserID     int64           `json:"user_id"`
	LoggedAt   time.Time       `json:"logged_at"`
	InputType  InputType       `json:"input_type"`
	RawInput   string          `json:"raw_input,omitempty"`
	PhotoRef   string          `json:"photo_ref,omitempty"`
	Analysis   FoodAnalysis    `json:"analysis"`
	Totals     NutritionTotals `json:"totals"`
	Confidence float64         `json:"confidence"`
}

func (l FoodLog) FoodNames() []string {
	names := make([]string, 0, len(l.Analysis.Items))
	for _, it := range l.Analysis.Items {
		names = append(names, it.Name)
	}
	return names
}

// Totals is an aggregate over zero or more food logs.
type Totals struct {
	Calories  int     `json:"calories"`
	Protein   float64 `json:"protein"`
	Carbs     float64 `json:"carbs"`
	Fat       float64 `json:"fat"`
	MealCount int     `json:"meal_count"`
}

func (t *Totals) Add(n NutritionTotals) {
	t.Calories += n.Calories
	t.Protein += n.ProteinG
	t.Carbs += n.CarbsG
	t.Fat += n.FatG
	t.MealCount++
}

type PetStatus struct {
	UserID           int64     `json:"user_id"`
	Name             string    `json:"name"`
	TotalMealsLogged int       `json:"total_meals_logged"`
	CurrentStreak    int       `json:"current_streak"`
	BestStreak       int       `json:"best_streak"`
	LastFedDate      string    `json:"last_fed_date,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type Achievement struct {
	UserID        int64     `json:"user_id"`
	AchievementID string    `json:"achievement_id"`
	UnlockedAt    time.Time `json:"unlocked_at"`
}

func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
