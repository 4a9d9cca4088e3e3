package service_test

import (
	"context"
	"testing"

	"github.com/saadjs/nibbles/internal/service"
)

func TestStatusFor(t *testing.T) {
	t.Parallel()
	cases := []struct {
		calories, target int
		want             service.DayStatus
	}{
		{1800, 2000, service.DayUnder},
		{1801, 2000, service.DayNear},
		{2200, 2000, service.DayNear},
		{2201, 2000, service.DayOver},
		{500, 0, service.DayNeutral},
	}
	for _, tc := range cases {
		if got := service.StatusFor(tc.calories, tc.target); got != tc.want {
			t.Fatalf("StatusFor(%d, %d) = %s, want %s", tc.calories, tc.target, got, tc.want)
		}
	}
}

func seedWeek(t *testing.T) (*service.Service, *fakeClock) {
	t.Helper()
	clock := newClock(at(2024, 11, 11, 12))
	svc := newTestService(t, clock, nil, nil)
	onboardUser(t, svc, 1)
	logMeal(t, svc, 1, analysisOf(item("Soup", 500, 20, 60, 15)))
	clock.Set(at(2024, 11, 13, 8))
	logMeal(t, svc, 1, analysisOf(item("Pancakes", 1000, 20, 150, 30)))
	clock.Set(at(2024, 11, 13, 19))
	logMeal(t, svc, 1, analysisOf(item("Pizza", 1500, 60, 160, 70)))
	return svc, clock
}

func TestTodayView(t *testing.T) {
	t.Parallel()
	svc, _ := seedWeek(t)
	view, err := svc.TodayView(context.Background(), 1)
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	if view.Date != "2024-11-13" || view.CaloriesEaten != 2500 || view.MealCount != 2 {
		t.Fatalf("unexpected today view: %+v", view)
	}
	if view.CaloriesRemaining != -424 {
		t.Fatalf("expected negative remaining, got %d", view.CaloriesRemaining)
	}
	if view.Meals[1].Time != "19:00" || view.Meals[1].Foods[0] != "Pizza" {
		t.Fatalf("unexpected meal view: %+v", view.Meals[1])
	}
	if view.Protein.Current != 80 || view.Protein.Target != 129 {
		t.Fatalf("unexpected protein progress: %+v", view.Protein)
	}
}

func TestCalendarAndDayDetail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := seedWeek(t)

	month, err := svc.Calendar(ctx, 1, 2024, 11)
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	if month.DailyTarget == nil || *month.DailyTarget != 2076 || len(month.Days) != 2 {
		t.Fatalf("unexpected calendar: %+v", month)
	}
	if month.Days[0].Date != "2024-11-11" || month.Days[0].Status != service.DayUnder {
		t.Fatalf("unexpected first day: %+v", month.Days[0])
	}
	if month.Days[1].Calories != 2500 || month.Days[1].MealCount != 2 || month.Days[1].Status != service.DayOver {
		t.Fatalf("unexpected second day: %+v", month.Days[1])
	}
	if _, err := svc.Calendar(ctx, 1, 2024, 13); err == nil {
		t.Fatalf("expected invalid month error")
	}

	detail, err := svc.DayDetail(ctx, 1, at(2024, 11, 13, 0))
	if err != nil {
		t.Fatalf("day detail: %v", err)
	}
	if len(detail.Meals) != 2 || detail.Meals[0].Items[0].Name != "Pancakes" || detail.Calories != 2500 {
		t.Fatalf("unexpected day detail: %+v", detail)
	}
}

func TestCharts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := seedWeek(t)

	cal, err := svc.CalorieChart(ctx, 1, 0)
	if err != nil {
		t.Fatalf("calorie chart: %v", err)
	}
	if len(cal.Data) != 7 || cal.Data[0].Date != "2024-11-07" || cal.Data[6].Calories != 2500 {
		t.Fatalf("unexpected calorie chart: %+v", cal)
	}
	if cal.Total != 3000 || cal.Average != 1500 || cal.Data[2].Target != 2076 {
		t.Fatalf("unexpected chart totals: %+v", cal)
	}
	if _, err := svc.CalorieChart(ctx, 1, 91); err == nil {
		t.Fatalf("expected 91 days to be rejected")
	}

	macros, err := svc.MacroChart(ctx, 1, 7)
	if err != nil {
		t.Fatalf("macro chart: %v", err)
	}
	if macros.Totals.Protein != 100 || macros.Averages.Protein != 50 || len(macros.Data) != 7 {
		t.Fatalf("unexpected macro chart: %+v", macros)
	}

	trend, err := svc.TrendChart(ctx, 1, 7)
	if err != nil {
		t.Fatalf("trend chart: %v", err)
	}
	if len(trend.Data) != 7 || trend.Window != 7 {
		t.Fatalf("unexpected trend: %+v", trend)
	}
	if trend.Data[0].MovingAvg != nil {
		t.Fatalf("expected no average before any logs, got %v", *trend.Data[0].MovingAvg)
	}
	last := trend.Data[6]
	if last.Date != "2024-11-13" || last.MovingAvg == nil || *last.MovingAvg != 1500 {
		t.Fatalf("unexpected last trend point: %+v", last)
	}
	if _, err := svc.TrendChart(ctx, 1, 5); err == nil {
		t.Fatalf("expected fewer than 7 days to be rejected")
	}
}
