package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/saadjs/nibbles/internal/model"
	"github.com/saadjs/nibbles/internal/nutrition"
)

const (
	adherenceTolerancePct = 10
	adherenceSeverePct    = 20
	assumedWeightKg       = 70
	minMealsPerDay        = 3
	highProteinPerKg      = 1.6
	lowProteinPerKg       = 1.0
	highFatSharePct       = 40
)

type SummaryPeriod struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Days  int    `json:"days"`
}

type SummaryTotals struct {
	Calories    int     `json:"calories"`
	ProteinG    float64 `json:"protein_g"`
	CarbsG      float64 `json:"carbs_g"`
	FatG        float64 `json:"fat_g"`
	MealsLogged int     `json:"meals_logged"`
}

type SummaryAverages struct {
	DailyCalories int     `json:"daily_calories"`
	DailyProteinG float64 `json:"daily_protein_g"`
	DailyCarbsG   float64 `json:"daily_carbs_g"`
	DailyFatG     float64 `json:"daily_fat_g"`
}

type TargetComparison struct {
	DailyTarget         int     `json:"daily_target"`
	AvgVsTarget         int     `json:"avg_vs_target"`
	AdherencePercentage float64 `json:"adherence_percentage"`
}

type Insights struct {
	PositiveNotes []string `json:"positive_notes"`
	Improvements  []string `json:"improvements"`
	Advice        []string `json:"advice"`
}

// Summary aggregates a date range. MealsLogged == 0 means there was nothing
// to summarise and the insights are empty.
type Summary struct {
	Period           SummaryPeriod    `json:"period"`
	Totals           SummaryTotals    `json:"totals"`
	Averages         SummaryAverages  `json:"averages"`
	TargetComparison TargetComparison `json:"target_comparison"`
	CommonFoods      []string         `json:"common_foods"`
	Insights         Insights         `json:"insights"`
}

func (s *Summary) Empty() bool { return s.Totals.MealsLogged == 0 }

// InsightInput holds per-day averages for the insight rules.
type InsightInput struct {
	AvgCalories float64
	Target      int
	AvgProtein  float64
	AvgCarbs    float64
	AvgFat      float64
	Meals       int
	Days        int
	WeightKg    float64
}

// GenerateSummary summarises the calendar days start..end inclusive.
func (s *Service) GenerateSummary(ctx context.Context, userID int64, start, end time.Time) (*Summary, error) {
	start, end = s.day(start), s.day(end)
	if start.After(end) {
		return nil, invalid("date range", "start is after end")
	}
	u, err := s.requireUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	totals, err := s.RangeTotals(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	logs, err := s.LogsBetween(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}

	days := daysInclusive(start, end)
	target := s.CalorieTarget(*u)
	avgCal := float64(totals.Calories) / float64(days)
	avgProtein := totals.Protein / float64(days)
	avgCarbs := totals.Carbs / float64(days)
	avgFat := totals.Fat / float64(days)

	sum := &Summary{
		Period: SummaryPeriod{Start: s.dateKey(start), End: s.dateKey(end), Days: days},
		Totals: SummaryTotals{
			Calories:    totals.Calories,
			ProteinG:    round1(totals.Protein),
			CarbsG:      round1(totals.Carbs),
			FatG:        round1(totals.Fat),
			MealsLogged: totals.MealCount,
		},
		Averages: SummaryAverages{
			DailyCalories: int(avgCal),
			DailyProteinG: round1(avgProtein),
			DailyCarbsG:   round1(avgCarbs),
			DailyFatG:     round1(avgFat),
		},
		TargetComparison: TargetComparison{
			DailyTarget:         target,
			AvgVsTarget:         int(avgCal - float64(target)),
			AdherencePercentage: percentOf(avgCal, float64(target)),
		},
		CommonFoods: CommonFoods(logs, s.commonFoods),
		Insights:    Insights{PositiveNotes: []string{}, Improvements: []string{}, Advice: []string{}},
	}
	if sum.Empty() {
		return sum, nil
	}
	sum.Insights = GenerateInsights(InsightInput{
		AvgCalories: avgCal,
		Target:      target,
		AvgProtein:  avgProtein,
		AvgCarbs:    avgCarbs,
		AvgFat:      avgFat,
		Meals:       totals.MealCount,
		Days:        days,
		WeightKg:    u.WeightKg,
	})
	return sum, nil
}

// CommonFoods returns up to limit lower-cased item names by frequency.
// Ties keep the order in which names were first seen.
func CommonFoods(logs []model.FoodLog, limit int) []string {
	counts := map[string]int{}
	var order []string
	for _, l := range logs {
		for _, it := range l.Analysis.Items {
			name := normalizeName(it.Name)
			if name == "" {
				continue
			}
			if _, seen := counts[name]; !seen {
				order = append(order, name)
			}
			counts[name]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if limit > 0 && len(order) > limit {
		order = order[:limit]
	}
	if order == nil {
		return []string{}
	}
	return order
}

// GenerateInsights applies the threshold rules. Each rule contributes to
// zero or more categories independently.
func GenerateInsights(in InsightInput) Insights {
	out := Insights{PositiveNotes: []string{}, Improvements: []string{}, Advice: []string{}}

	var diffPct float64
	if in.Target > 0 {
		diffPct = (in.AvgCalories - float64(in.Target)) / float64(in.Target) * 100
	}
	switch {
	case diffPct >= -adherenceTolerancePct && diffPct <= adherenceTolerancePct:
		out.PositiveNotes = append(out.PositiveNotes, "Great calorie control! You're staying close to your target.")
	case diffPct > adherenceTolerancePct:
		out.Improvements = append(out.Improvements, fmt.Sprintf("You're averaging %d kcal over your target.", int(in.AvgCalories-float64(in.Target))))
		out.Advice = append(out.Advice, "Consider smaller portions or lighter snacks between meals.")
	case diffPct < -adherenceSeverePct:
		out.Improvements = append(out.Improvements, "You may be under-eating. Ensure you're getting enough fuel.")
	default:
		out.PositiveNotes = append(out.PositiveNotes, "You're in a good calorie deficit for your goals.")
	}

	weight := in.WeightKg
	if weight <= 0 {
		weight = assumedWeightKg
	}
	perKg := in.AvgProtein / weight
	switch {
	case perKg >= highProteinPerKg:
		out.PositiveNotes = append(out.PositiveNotes, fmt.Sprintf("Excellent protein intake at %dg/day!", int(in.AvgProtein)))
	case perKg < lowProteinPerKg:
		out.Improvements = append(out.Improvements, fmt.Sprintf("Protein is a bit low at %dg/day.", int(in.AvgProtein)))
		out.Advice = append(out.Advice, "Try adding eggs, Greek yogurt, or lean meat to boost protein.")
	}

	if macroKcal := nutrition.MacroCalories(in.AvgProtein, in.AvgCarbs, in.AvgFat); macroKcal > 0 {
		if in.AvgFat*nutrition.FatKcalPerGram/macroKcal*100 > highFatSharePct {
			out.Improvements = append(out.Improvements, "Fat intake is on the higher side.")
			out.Advice = append(out.Advice, "Consider swapping fried foods for grilled alternatives.")
		}
	}

	var mealsPerDay float64
	if in.Days > 0 {
		mealsPerDay = float64(in.Meals) / float64(in.Days)
	}
	switch {
	case mealsPerDay >= minMealsPerDay:
		out.PositiveNotes = append(out.PositiveNotes, fmt.Sprintf("Good logging consistency with %g meals/day tracked.", round1(mealsPerDay)))
	case mealsPerDay < 2:
		out.Improvements = append(out.Improvements, "You might be missing some meals in your logs.")
		out.Advice = append(out.Advice, "Try to log everything you eat for more accurate tracking.")
	}
	return out
}

// Text renders the summary for chat and terminal output.
func (s *Summary) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summary: %s to %s (%d days)\n\n", s.Period.Start, s.Period.End, s.Period.Days)
	fmt.Fprintf(&b, "Daily Average: %d kcal\n", s.Averages.DailyCalories)
	fmt.Fprintf(&b, "  Protein: %.1fg | Carbs: %.1fg | Fat: %.1fg\n\n", s.Averages.DailyProteinG, s.Averages.DailyCarbsG, s.Averages.DailyFatG)
	fmt.Fprintf(&b, "Target: %d kcal/day\n", s.TargetComparison.DailyTarget)
	fmt.Fprintf(&b, "Adherence: %.1f%%", s.TargetComparison.AdherencePercentage)
	if len(s.CommonFoods) > 0 {
		fmt.Fprintf(&b, "\n\nCommon foods: %s", strings.Join(s.CommonFoods, ", "))
	}
	section := func(title, prefix string, lines []string) {
		if len(lines) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n\n%s", title)
		for _, l := range lines {
			fmt.Fprintf(&b, "\n  %s %s", prefix, l)
		}
	}
	section("What's going well:", "+", s.Insights.PositiveNotes)
	section("Areas to improve:", "-", s.Insights.Improvements)
	section("Suggestions:", ">", s.Insights.Advice)
	return b.String()
}
