package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/saadjs/nibbles/internal/model"
	"github.com/saadjs/nibbles/internal/store"
)

type backend struct {
	name string
	open func(t *testing.T) store.Store
}

func backends() []backend {
	return []backend{
		{name: "sqlite", open: newTestStore},
		{name: "postgres", open: newPostgresStore},
	}
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nibbles.db")
	s, err := store.Open(context.Background(), store.OpenOptions{Driver: store.DriverSQLite, SQLitePath: path})
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newPostgresStore(t *testing.T) store.Store {
	t.Helper()
	dsn := os.Getenv("NIBBLES_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("NIBBLES_TEST_POSTGRES_DSN not set")
	}
	s, err := store.Open(context.Background(), store.OpenOptions{Driver: store.DriverPostgres, PostgresDSN: dsn})
	if err != nil {
		t.Fatalf("open postgres store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var nextUserID atomic.Int64

func init() {
	nextUserID.Store(time.Now().UnixNano() / 1000)
}

// Postgres tests share one database, so each test works on its own user ids.
func userID() int64 {
	return nextUserID.Add(10)
}

func seedUser(t *testing.T, s store.Store, id int64) {
	t.Helper()
	if _, err := s.CreateUser(context.Background(), model.User{ID: id, FirstName: "Ada", NotificationsEnabled: true, ReminderHour: 20, WeeklySummaryEnabled: true}); err != nil {
		t.Fatalf("create user: %v", err)
	}
}

func sampleLog(userID int64, at time.Time, calories int) model.FoodLog {
	return model.FoodLog{
		UserID:    userID,
		LoggedAt:  at,
		InputType: model.InputText,
		RawInput:  "oatmeal with berries",
		Analysis: model.FoodAnalysis{
			Items:             []model.FoodItem{{Name: "Oatmeal", Portion: "1 bowl", Calories: calories, ProteinG: 12.3, CarbsG: 54.7, FatG: 6.1}},
			Totals:            model.NutritionTotals{Calories: calories, ProteinG: 12.3, CarbsG: 54.7, FatG: 6.1},
			OverallConfidence: 0.85,
		},
		Totals:     model.NutritionTotals{Calories: calories, ProteinG: 12.3, CarbsG: 54.7, FatG: 6.1},
		Confidence: 0.85,
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s store.Store)) {
	t.Helper()
	for _, b := range backends() {
		b := b
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()
			fn(t, b.open(t))
		})
	}
}

func TestCreateUserKeepsExistingRow(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		id := userID()
		seedUser(t, s, id)
		u, err := s.CreateUser(ctx, model.User{ID: id, FirstName: "Other", ReminderHour: 9})
		if err != nil {
			t.Fatalf("create user again: %v", err)
		}
		if u.FirstName != "Ada" || u.ReminderHour != 20 || !u.NotificationsEnabled {
			t.Fatalf("expected original row to be kept, got %+v", u)
		}
	})
}

func TestUpdateUserPartial(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		id := userID()
		seedUser(t, s, id)

		weight, protein, override := 72.5, 140, true
		sex, goal := model.SexFemale, model.GoalLose
		u, err := s.UpdateUser(ctx, id, model.ProfileUpdate{WeightKg: &weight, Sex: &sex, Goal: &goal, ProteinTargetG: &protein, MacroOverride: &override})
		if err != nil {
			t.Fatalf("update user: %v", err)
		}
		if u.WeightKg != 72.5 || u.Sex != model.SexFemale || u.Goal != model.GoalLose || u.ProteinTargetG != 140 || !u.MacroOverride {
			t.Fatalf("unexpected user after update: %+v", u)
		}
		if u.FirstName != "Ada" || u.HeightCm != 0 {
			t.Fatalf("untouched fields changed: %+v", u)
		}

		off := false
		u, err = s.UpdateUser(ctx, id, model.ProfileUpdate{ClearMacroTargets: true, MacroOverride: &off})
		if err != nil {
			t.Fatalf("clear macros: %v", err)
		}
		if u.ProteinTargetG != 0 || u.MacroOverride {
			t.Fatalf("expected macro targets cleared, got %+v", u)
		}

		missing, err := s.UpdateUser(ctx, id+1, model.ProfileUpdate{WeightKg: &weight})
		if err != nil {
			t.Fatalf("update missing user: %v", err)
		}
		if missing != nil {
			t.Fatalf("expected nil for missing user, got %+v", missing)
		}
	})
}

func TestTotalsAreZeroWithoutLogs(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, s store.Store) {
		id := userID()
		seedUser(t, s, id)
		from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		totals, err := s.SumLogs(context.Background(), id, from, from.AddDate(0, 0, 7))
		if err != nil {
			t.Fatalf("sum logs: %v", err)
		}
		if totals != (model.Totals{}) {
			t.Fatalf("expected zero totals, got %+v", totals)
		}
	})
}

func TestCreateLogRoundTripsTotals(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		id := userID()
		seedUser(t, s, id)
		at := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
		created, err := s.CreateLog(ctx, sampleLog(id, at, 420))
		if err != nil {
			t.Fatalf("create log: %v", err)
		}
		if created.ID <= 0 {
			t.Fatalf("expected generated id, got %d", created.ID)
		}
		got, err := s.GetLog(ctx, id, created.ID)
		if err != nil {
			t.Fatalf("get log: %v", err)
		}
		if got == nil {
			t.Fatalf("expected stored log")
		}
		want := model.NutritionTotals{Calories: 420, ProteinG: 12.3, CarbsG: 54.7, FatG: 6.1}
		if got.Totals != want {
			t.Fatalf("totals drifted: got %+v want %+v", got.Totals, want)
		}
		if !got.LoggedAt.Equal(at) || got.InputType != model.InputText || got.RawInput != "oatmeal with berries" {
			t.Fatalf("unexpected log fields: %+v", got)
		}
		if len(got.Analysis.Items) != 1 || got.Analysis.Items[0].Name != "Oatmeal" {
			t.Fatalf("analysis not round-tripped: %+v", got.Analysis)
		}
	})
}

func TestListLogsUsesHalfOpenRange(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		id := userID()
		seedUser(t, s, id)
		day := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
		for _, at := range []time.Time{day.Add(-time.Second), day, day.Add(12 * time.Hour), day.AddDate(0, 0, 1)} {
			if _, err := s.CreateLog(ctx, sampleLog(id, at, 100)); err != nil {
				t.Fatalf("create log: %v", err)
			}
		}
		logs, err := s.ListLogs(ctx, id, day, day.AddDate(0, 0, 1))
		if err != nil {
			t.Fatalf("list logs: %v", err)
		}
		if len(logs) != 2 {
			t.Fatalf("expected 2 logs inside the day, got %d", len(logs))
		}
		totals, err := s.SumLogs(ctx, id, day, day.AddDate(0, 0, 1))
		if err != nil {
			t.Fatalf("sum logs: %v", err)
		}
		if totals.Calories != 200 || totals.MealCount != 2 {
			t.Fatalf("unexpected day totals: %+v", totals)
		}
		has, err := s.HasLogs(ctx, id, day.AddDate(0, 0, 2), day.AddDate(0, 0, 3))
		if err != nil {
			t.Fatalf("has logs: %v", err)
		}
		if has {
			t.Fatalf("expected no logs two days later")
		}
		if _, err := s.ListLogs(ctx, id, day, day); err == nil {
			t.Fatalf("expected empty range to be rejected")
		}

		recent, err := s.RecentLogs(ctx, id, 3)
		if err != nil {
			t.Fatalf("recent logs: %v", err)
		}
		if len(recent) != 3 || !recent[0].LoggedAt.Equal(day.AddDate(0, 0, 1)) {
			t.Fatalf("expected newest first, got %+v", recent)
		}
	})
}

func TestDeleteLogRequiresOwner(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		owner := userID()
		other := owner + 1
		seedUser(t, s, owner)
		seedUser(t, s, other)
		l, err := s.CreateLog(ctx, sampleLog(owner, time.Now(), 300))
		if err != nil {
			t.Fatalf("create log: %v", err)
		}
		deleted, err := s.DeleteLog(ctx, other, l.ID)
		if err != nil {
			t.Fatalf("delete as other: %v", err)
		}
		if deleted {
			t.Fatalf("expected non-owner delete to return false")
		}
		if got, err := s.GetLog(ctx, owner, l.ID); err != nil || got == nil {
			t.Fatalf("expected log to survive, got %+v err=%v", got, err)
		}
		deleted, err = s.DeleteLog(ctx, owner, l.ID)
		if err != nil || !deleted {
			t.Fatalf("expected owner delete to succeed, deleted=%v err=%v", deleted, err)
		}
		deleted, err = s.DeleteLog(ctx, owner, l.ID)
		if err != nil || deleted {
			t.Fatalf("expected second delete to return false, deleted=%v err=%v", deleted, err)
		}
	})
}

func TestUnlockAchievementIsIdempotent(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		id := userID()
		seedUser(t, s, id)
		first, err := s.UnlockAchievement(ctx, id, "first_meal", time.Now())
		if err != nil {
			t.Fatalf("unlock: %v", err)
		}
		if first == nil {
			t.Fatalf("expected first unlock to return the achievement")
		}
		second, err := s.UnlockAchievement(ctx, id, "first_meal", time.Now())
		if err != nil {
			t.Fatalf("unlock again: %v", err)
		}
		if second != nil {
			t.Fatalf("expected nil on repeat unlock, got %+v", second)
		}
		list, err := s.ListAchievements(ctx, id)
		if err != nil {
			t.Fatalf("list achievements: %v", err)
		}
		if len(list) != 1 {
			t.Fatalf("expected one stored achievement, got %d", len(list))
		}
	})
}

func TestConcurrentUnlockStoresOneRow(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		id := userID()
		seedUser(t, s, id)
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			unlocks int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				a, err := s.UnlockAchievement(ctx, id, "streak_7", time.Now())
				if err != nil {
					t.Errorf("unlock: %v", err)
					return
				}
				if a != nil {
					mu.Lock()
					unlocks++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if unlocks != 1 {
			t.Fatalf("expected exactly one successful unlock, got %d", unlocks)
		}
	})
}

func TestUpdatePetSerializesConcurrentWriters(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		id := userID()
		seedUser(t, s, id)
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, err := s.UpdatePet(ctx, id, "Nibbles", func(p *model.PetStatus) error {
					p.TotalMealsLogged++
					return nil
				})
				if err != nil {
					t.Errorf("update pet: %v", err)
				}
			}()
		}
		wg.Wait()
		pet, err := s.GetPet(ctx, id)
		if err != nil {
			t.Fatalf("get pet: %v", err)
		}
		if pet == nil || pet.TotalMealsLogged != 10 {
			t.Fatalf("expected 10 meals after concurrent updates, got %+v", pet)
		}
		if pet.Name != "Nibbles" {
			t.Fatalf("expected default name, got %q", pet.Name)
		}
	})
}

func TestUpdatePetRollsBackOnMutationError(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		id := userID()
		seedUser(t, s, id)
		if _, _, err := s.UpdatePet(ctx, id, "Nibbles", func(p *model.PetStatus) error {
			p.TotalMealsLogged = 3
			p.CurrentStreak, p.BestStreak = 2, 2
			p.LastFedDate = "2026-03-01"
			return nil
		}); err != nil {
			t.Fatalf("seed pet: %v", err)
		}
		boom := errors.New("boom")
		_, _, err := s.UpdatePet(ctx, id, "Nibbles", func(p *model.PetStatus) error {
			p.TotalMealsLogged = 99
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected mutation error, got %v", err)
		}
		pet, err := s.GetPet(ctx, id)
		if err != nil {
			t.Fatalf("get pet: %v", err)
		}
		if pet.TotalMealsLogged != 3 || pet.LastFedDate != "2026-03-01" {
			t.Fatalf("expected pet unchanged, got %+v", pet)
		}
	})
}

func TestResetStaleStreaks(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		stale, fresh := userID(), userID()+1
		for id, date := range map[int64]string{stale: "2026-03-01", fresh: "2026-03-09"} {
			seedUser(t, s, id)
			date := date
			if _, _, err := s.UpdatePet(ctx, id, "Nibbles", func(p *model.PetStatus) error {
				p.CurrentStreak, p.BestStreak, p.LastFedDate = 4, 4, date
				return nil
			}); err != nil {
				t.Fatalf("seed pet: %v", err)
			}
		}
		if _, err := s.ResetStaleStreaks(ctx, "2026-03-09"); err != nil {
			t.Fatalf("reset streaks: %v", err)
		}
		if p, _ := s.GetPet(ctx, stale); p == nil || p.CurrentStreak != 0 || p.BestStreak != 4 {
			t.Fatalf("expected stale streak reset with best kept, got %+v", p)
		}
		if p, _ := s.GetPet(ctx, fresh); p == nil || p.CurrentStreak != 4 {
			t.Fatalf("expected fresh streak kept, got %+v", p)
		}
	})
}

func TestConfigRoundTrip(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		v, ok, err := s.GetConfig(ctx, "flag.weekly_summary")
		if err != nil {
			t.Fatalf("get config: %v", err)
		}
		if !ok || v != "true" {
			t.Fatalf("expected seeded weekly summary flag, got %q ok=%v", v, ok)
		}
		if err := s.SetConfig(ctx, " Test.Key ", " value "); err != nil {
			t.Fatalf("set config: %v", err)
		}
		v, ok, err = s.GetConfig(ctx, "test.key")
		if err != nil || !ok || v != "value" {
			t.Fatalf("expected normalized key and trimmed value, got %q ok=%v err=%v", v, ok, err)
		}
		all, err := s.ListConfig(ctx)
		if err != nil {
			t.Fatalf("list config: %v", err)
		}
		if all["test.key"] != "value" {
			t.Fatalf("expected key in listing, got %+v", all)
		}
	})
}

func TestListUsersForReminder(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	done := true
	for i, hour := range []int{20, 20, 8} {
		id := int64(i + 1)
		seedUser(t, s, id)
		h := hour
		upd := model.ProfileUpdate{ReminderHour: &h}
		if i != 1 {
			upd.OnboardingComplete = &done
		}
		if _, err := s.UpdateUser(ctx, id, upd); err != nil {
			t.Fatalf("update user: %v", err)
		}
	}
	users, err := s.ListUsersForReminder(ctx, 20)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 1 || users[0].ID != 1 {
		t.Fatalf("expected only onboarded user 1 at hour 20, got %+v", users)
	}
}
