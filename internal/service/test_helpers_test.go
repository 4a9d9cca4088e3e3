package service_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/saadjs/nibbles/internal/model"
	"github.com/saadjs/nibbles/internal/service"
	"github.com/saadjs/nibbles/internal/store"
)

// testZone puts local midnight at 05:00 UTC so day bucketing is exercised.
var testZone = time.FixedZone("UTC-5", -5*60*60)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type fakeAnalyzer struct {
	mu       sync.Mutex
	analysis model.FoodAnalysis
	err      error
	requests []model.AnalysisRequest
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req model.AnalysisRequest) (model.FoodAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.analysis, f.err
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent map[int64][]string
}

func (n *recordingNotifier) Notify(_ context.Context, userID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sent == nil {
		n.sent = map[int64][]string{}
	}
	n.sent[userID] = append(n.sent[userID], text)
	return nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nibbles.db")
	s, err := store.Open(context.Background(), store.OpenOptions{Driver: store.DriverSQLite, SQLitePath: path})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestService(t *testing.T, clock *fakeClock, st store.Store, analyzer service.Analyzer) *service.Service {
	t.Helper()
	if st == nil {
		st = newTestStore(t)
	}
	svc, err := service.New(service.Options{
		Store:    st,
		Analyzer: analyzer,
		Location: testZone,
		Now:      clock.Now,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

// onboardUser creates a 75 kg, 176 cm, 25 year old sedentary male who wants
// to maintain weight: a 2076 kcal target.
func onboardUser(t *testing.T, svc *service.Service, id int64) *model.User {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.EnsureUser(ctx, id, "ada", "Ada"); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	u, err := svc.CompleteOnboarding(ctx, id, service.Onboarding{
		WeightKg: 75,
		HeightCm: 176,
		Age:      25,
		Sex:      model.SexMale,
		Activity: model.ActivitySedentary,
		Goal:     model.GoalMaintain,
	})
	if err != nil {
		t.Fatalf("complete onboarding: %v", err)
	}
	return u
}

func analysisOf(items ...model.FoodItem) model.FoodAnalysis {
	a := model.FoodAnalysis{Items: items, OverallConfidence: 0.9}
	a.Totals = a.ItemTotals()
	return a
}

func item(name string, calories int, protein, carbs, fat float64) model.FoodItem {
	return model.FoodItem{Name: name, Portion: "1 serving", Calories: calories, ProteinG: protein, CarbsG: carbs, FatG: fat}
}

func logMeal(t *testing.T, svc *service.Service, userID int64, a model.FoodAnalysis) *service.MealResult {
	t.Helper()
	res, err := svc.RecordAnalysis(context.Background(), userID, model.InputText, "meal", "", a)
	if err != nil {
		t.Fatalf("record analysis: %v", err)
	}
	return res
}

func at(year int, month time.Month, day, hour int) time.Time {
	return time.Date(year, month, day, hour, 0, 0, 0, testZone)
}
