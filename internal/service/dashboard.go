package service

import (
	"context"
	"time"

	"github.com/saadjs/nibbles/internal/model"
)

const (
	DefaultChartDays = 7
	MaxChartDays     = 90
	DefaultTrendDays = 30
	MinTrendDays     = 7
	trendWindow      = 7
)

type MacroProgress struct {
	Current float64 `json:"current"`
	Target  int     `json:"target"`
	Label   string  `json:"label"`
}

type MealView struct {
	ID        int64    `json:"id"`
	Time      string   `json:"time"`
	Foods     []string `json:"foods"`
	Calories  int      `json:"calories"`
	Protein   float64  `json:"protein"`
	Carbs     float64  `json:"carbs"`
	Fat       float64  `json:"fat"`
	InputType string   `json:"input_type"`
}

type TodayView struct {
	Date              string        `json:"date"`
	CaloriesEaten     int           `json:"calories_eaten"`
	CaloriesTarget    int           `json:"calories_target"`
	CaloriesRemaining int           `json:"calories_remaining"`
	Protein           MacroProgress `json:"protein"`
	Carbs             MacroProgress `json:"carbs"`
	Fat               MacroProgress `json:"fat"`
	MealCount         int           `json:"meal_count"`
	Meals             []MealView    `json:"meals"`
}

// TodayView builds the dashboard landing view. CaloriesRemaining is negative
// once the target is exceeded.
func (s *Service) TodayView(ctx context.Context, userID int64) (*TodayView, error) {
	u, err := s.requireUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	today := s.Today()
	logs, err := s.LogsOn(ctx, userID, today)
	if err != nil {
		return nil, err
	}
	var totals model.Totals
	meals := make([]MealView, 0, len(logs))
	for _, l := range logs {
		totals.Add(l.Totals)
		meals = append(meals, s.mealView(l))
	}
	target := s.CalorieTarget(*u)
	macros := s.MacroTargets(*u)
	return &TodayView{
		Date:              s.dateKey(today),
		CaloriesEaten:     totals.Calories,
		CaloriesTarget:    target,
		CaloriesRemaining: target - totals.Calories,
		Protein:           MacroProgress{Current: round1(totals.Protein), Target: macros.ProteinG, Label: "Protein"},
		Carbs:             MacroProgress{Current: round1(totals.Carbs), Target: macros.CarbsG, Label: "Carbs"},
		Fat:               MacroProgress{Current: round1(totals.Fat), Target: macros.FatG, Label: "Fat"},
		MealCount:         totals.MealCount,
		Meals:             meals,
	}, nil
}

func (s *Service) mealView(l model.FoodLog) MealView {
	return MealView{
		ID:        l.ID,
		Time:      l.LoggedAt.In(s.loc).Format("15:04"),
		Foods:     l.FoodNames(),
		Calories:  l.Totals.Calories,
		Protein:   round1(l.Totals.ProteinG),
		Carbs:     round1(l.Totals.CarbsG),
		Fat:       round1(l.Totals.FatG),
		InputType: string(l.InputType),
	}
}

type DayStatus string

const (
	DayUnder   DayStatus = "under"
	DayNear    DayStatus = "near"
	DayOver    DayStatus = "over"
	DayNeutral DayStatus = "neutral"
)

// StatusFor grades a day's calories against the target: under up to 90%,
// near up to 110%, over beyond. Without a target the day is neutral.
func StatusFor(calories, target int) DayStatus {
	if target <= 0 {
		return DayNeutral
	}
	ratio := float64(calories) / float64(target)
	switch {
	case ratio <= 0.9:
		return DayUnder
	case ratio <= 1.1:
		return DayNear
	default:
		return DayOver
	}
}

type CalendarDay struct {
	Date      string    `json:"date"`
	Calories  int       `json:"calories"`
	Protein   float64   `json:"protein"`
	Carbs     float64   `json:"carbs"`
	Fat       float64   `json:"fat"`
	MealCount int       `json:"meal_count"`
	Status    DayStatus `json:"status"`
}

type CalendarMonth struct {
	Year        int           `json:"year"`
	Month       int           `json:"month"`
	DailyTarget *int          `json:"daily_target"`
	Days        []CalendarDay `json:"days"`
}

// Calendar lists the days of a month that have logs. Days are graded
// against the user's own target only; users without one get neutral days.
func (s *Service) Calendar(ctx context.Context, userID int64, year, month int) (*CalendarMonth, error) {
	if month < 1 || month > 12 {
		return nil, invalid("month", "must be between 1 and 12")
	}
	if year < 2000 || year > 2100 {
		return nil, invalid("year", "must be between 2000 and 2100")
	}
	u, err := s.requireUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, s.loc)
	last := first.AddDate(0, 1, -1)
	logs, err := s.LogsBetween(ctx, userID, first, last)
	if err != nil {
		return nil, err
	}
	out := &CalendarMonth{Year: year, Month: month, Days: []CalendarDay{}}
	target := 0
	if u.DailyCalorieTarget > 0 {
		target = u.DailyCalorieTarget
		out.DailyTarget = &target
	}
	byDay, order := s.groupByDay(logs)
	for _, key := range order {
		t := byDay[key]
		out.Days = append(out.Days, CalendarDay{
			Date:      key,
			Calories:  t.Calories,
			Protein:   round1(t.Protein),
			Carbs:     round1(t.Carbs),
			Fat:       round1(t.Fat),
			MealCount: t.MealCount,
			Status:    StatusFor(t.Calories, target),
		})
	}
	return out, nil
}

type DayMeal struct {
	ID         int64            `json:"id"`
	Time       string           `json:"time"`
	InputType  string           `json:"input_type"`
	Items      []model.FoodItem `json:"items"`
	Calories   int              `json:"calories"`
	Protein    float64          `json:"protein"`
	Carbs      float64          `json:"carbs"`
	Fat        float64          `json:"fat"`
	Confidence float64          `json:"confidence"`
}

type DayDetail struct {
	Date        string    `json:"date"`
	DailyTarget *int      `json:"daily_target"`
	Calories    int       `json:"calories"`
	Protein     float64   `json:"protein"`
	Carbs       float64   `json:"carbs"`
	Fat         float64   `json:"fat"`
	MealCount   int       `json:"meal_count"`
	Status      DayStatus `json:"status"`
	Meals       []DayMeal `json:"meals"`
}

func (s *Service) DayDetail(ctx context.Context, userID int64, day time.Time) (*DayDetail, error) {
	u, err := s.requireUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	logs, err := s.LogsOn(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	out := &DayDetail{Date: s.dateKey(day), Meals: make([]DayMeal, 0, len(logs))}
	target := 0
	if u.DailyCalorieTarget > 0 {
		target = u.DailyCalorieTarget
		out.DailyTarget = &target
	}
	var totals model.Totals
	for _, l := range logs {
		totals.Add(l.Totals)
		items := l.Analysis.Items
		if items == nil {
			items = []model.FoodItem{}
		}
		out.Meals = append(out.Meals, DayMeal{
			ID:         l.ID,
			Time:       l.LoggedAt.In(s.loc).Format("15:04"),
			InputType:  string(l.InputType),
			Items:      items,
			Calories:   l.Totals.Calories,
			Protein:    round1(l.Totals.ProteinG),
			Carbs:      round1(l.Totals.CarbsG),
			Fat:        round1(l.Totals.FatG),
			Confidence: l.Confidence,
		})
	}
	out.Calories = totals.Calories
	out.Protein = round1(totals.Protein)
	out.Carbs = round1(totals.Carbs)
	out.Fat = round1(totals.Fat)
	out.MealCount = totals.MealCount
	out.Status = StatusFor(totals.Calories, target)
	return out, nil
}

type CaloriePoint struct {
	Date     string `json:"date"`
	Calories int    `json:"calories"`
	Target   int    `json:"target"`
}

type CalorieChart struct {
	Data    []CaloriePoint `json:"data"`
	Average int            `json:"average"`
	Total   int            `json:"total"`
}

// CalorieChart covers the last days days ending today, zero-filled. The
// average only counts days with logs.
func (s *Service) CalorieChart(ctx context.Context, userID int64, days int) (*CalorieChart, error) {
	if days == 0 {
		days = DefaultChartDays
	}
	if err := validateIntRange("days", days, 1, MaxChartDays); err != nil {
		return nil, err
	}
	u, err := s.requireUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	start, byDay, err := s.dailyTotals(ctx, userID, days)
	if err != nil {
		return nil, err
	}
	target := s.CalorieTarget(*u)
	out := &CalorieChart{Data: make([]CaloriePoint, 0, days)}
	withData := 0
	for i := 0; i < days; i++ {
		key := s.dateKey(start.AddDate(0, 0, i))
		t := byDay[key]
		out.Data = append(out.Data, CaloriePoint{Date: key, Calories: t.Calories, Target: target})
		out.Total += t.Calories
		if t.MealCount > 0 {
			withData++
		}
	}
	if withData > 0 {
		out.Average = out.Total / withData
	}
	return out, nil
}

type MacroPoint struct {
	Date    string  `json:"date"`
	Protein float64 `json:"protein"`
	Carbs   float64 `json:"carbs"`
	Fat     float64 `json:"fat"`
}

type MacroAmounts struct {
	Protein float64 `json:"protein"`
	Carbs   float64 `json:"carbs"`
	Fat     float64 `json:"fat"`
}

type MacroChart struct {
	Data     []MacroPoint `json:"data"`
	Averages MacroAmounts `json:"averages"`
	Totals   MacroAmounts `json:"totals"`
}

func (s *Service) MacroChart(ctx context.Context, userID int64, days int) (*MacroChart, error) {
	if days == 0 {
		days = DefaultChartDays
	}
	if err := validateIntRange("days", days, 1, MaxChartDays); err != nil {
		return nil, err
	}
	if _, err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	start, byDay, err := s.dailyTotals(ctx, userID, days)
	if err != nil {
		return nil, err
	}
	out := &MacroChart{Data: make([]MacroPoint, 0, days)}
	var sum MacroAmounts
	withData := 0
	for i := 0; i < days; i++ {
		key := s.dateKey(start.AddDate(0, 0, i))
		t := byDay[key]
		out.Data = append(out.Data, MacroPoint{Date: key, Protein: round1(t.Protein), Carbs: round1(t.Carbs), Fat: round1(t.Fat)})
		sum.Protein += t.Protein
		sum.Carbs += t.Carbs
		sum.Fat += t.Fat
		if t.MealCount > 0 {
			withData++
		}
	}
	out.Totals = MacroAmounts{Protein: round1(sum.Protein), Carbs: round1(sum.Carbs), Fat: round1(sum.Fat)}
	if withData > 0 {
		n := float64(withData)
		out.Averages = MacroAmounts{Protein: round1(sum.Protein / n), Carbs: round1(sum.Carbs / n), Fat: round1(sum.Fat / n)}
	}
	return out, nil
}

type TrendPoint struct {
	Date      string   `json:"date"`
	Calories  int      `json:"calories"`
	MovingAvg *float64 `json:"moving_avg"`
}

type TrendChart struct {
	Data   []TrendPoint `json:"data"`
	Window int          `json:"window"`
}

// TrendChart adds a trailing 7-day moving average. Days without logs are
// left out of each average; a window with no logs has no average.
func (s *Service) TrendChart(ctx context.Context, userID int64, days int) (*TrendChart, error) {
	if days == 0 {
		days = DefaultTrendDays
	}
	if err := validateIntRange("days", days, MinTrendDays, MaxChartDays); err != nil {
		return nil, err
	}
	if _, err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	span := days + trendWindow - 1
	start, byDay, err := s.dailyTotals(ctx, userID, span)
	if err != nil {
		return nil, err
	}
	values := make([]int, span)
	keys := make([]string, span)
	for i := range values {
		keys[i] = s.dateKey(start.AddDate(0, 0, i))
		values[i] = byDay[keys[i]].Calories
	}
	out := &TrendChart{Data: make([]TrendPoint, 0, days), Window: trendWindow}
	for i := trendWindow - 1; i < span; i++ {
		p := TrendPoint{Date: keys[i], Calories: values[i]}
		sum, n := 0, 0
		for _, v := range values[i-trendWindow+1 : i+1] {
			if v > 0 {
				sum += v
				n++
			}
		}
		if n > 0 {
			avg := round1(float64(sum) / float64(n))
			p.MovingAvg = &avg
		}
		out.Data = append(out.Data, p)
	}
	return out, nil
}

// dailyTotals loads the last days calendar days ending today keyed by date.
func (s *Service) dailyTotals(ctx context.Context, userID int64, days int) (time.Time, map[string]model.Totals, error) {
	today := s.Today()
	start := today.AddDate(0, 0, -(days - 1))
	logs, err := s.LogsBetween(ctx, userID, start, today)
	if err != nil {
		return time.Time{}, nil, err
	}
	byDay, _ := s.groupByDay(logs)
	return start, byDay, nil
}

// groupByDay sums logs per local calendar day. order lists the days in the
// order first seen.
func (s *Service) groupByDay(logs []model.FoodLog) (map[string]model.Totals, []string) {
	byDay := map[string]model.Totals{}
	var order []string
	for _, l := range logs {
		key := s.dateKey(l.LoggedAt)
		t, ok := byDay[key]
		if !ok {
			order = append(order, key)
		}
		t.Add(l.Totals)
		byDay[key] = t
	}
	return byDay, order
}
