package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/saadjs/nibbles/internal/model"
	"github.com/saadjs/nibbles/internal/service"
)

func TestFlags(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t, newClock(at(2024, 11, 13, 12)), nil, nil)

	flags, err := svc.Flags(ctx)
	if err != nil {
		t.Fatalf("flags: %v", err)
	}
	if len(flags) != 2 || flags[0].Name != service.FlagDailyReminder || flags[0].Enabled || !flags[1].Enabled {
		t.Fatalf("unexpected default flags: %+v", flags)
	}
	if err := svc.SetFlag(ctx, service.FlagDailyReminder, true); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	on, err := svc.FlagEnabled(ctx, service.FlagDailyReminder)
	if err != nil || !on {
		t.Fatalf("expected reminder flag on: %v %v", on, err)
	}
	var verr *service.ValidationError
	if err := svc.SetFlag(ctx, "dark_mode", true); !errors.As(err, &verr) {
		t.Fatalf("expected unknown flag to be rejected, got %v", err)
	}
}

func TestSendReminders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newClock(at(2024, 11, 13, 20))
	svc := newTestService(t, clock, nil, nil)
	onboardUser(t, svc, 1)
	onboardUser(t, svc, 2)
	onboardUser(t, svc, 3)
	early := 8
	if _, err := svc.UpdateProfile(ctx, 3, model.ProfileUpdate{ReminderHour: &early}); err != nil {
		t.Fatalf("set reminder hour: %v", err)
	}
	logMeal(t, svc, 2, analysisOf(item("Salad", 300, 10, 20, 18)))

	n := &recordingNotifier{}
	sent, err := svc.SendReminders(ctx, n)
	if err != nil || sent != 0 {
		t.Fatalf("reminders are off by default: sent=%d err=%v", sent, err)
	}

	if err := svc.SetFlag(ctx, service.FlagDailyReminder, true); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	sent, err = svc.SendReminders(ctx, n)
	if err != nil {
		t.Fatalf("send reminders: %v", err)
	}
	if sent != 1 || len(n.sent[1]) != 1 || len(n.sent[2]) != 0 || len(n.sent[3]) != 0 {
		t.Fatalf("expected only user 1 reminded, got %d %v", sent, n.sent)
	}
	if !strings.HasPrefix(n.sent[1][0], "Hey! You haven't logged any food today.") {
		t.Fatalf("unexpected reminder text %q", n.sent[1][0])
	}

	sent, err = svc.SendReminders(ctx, n)
	if err != nil || sent != 0 {
		t.Fatalf("expected one reminder per day: sent=%d err=%v", sent, err)
	}
	u, err := svc.User(ctx, 1)
	if err != nil || u.LastReminderSent == nil {
		t.Fatalf("expected last reminder stamp: %+v %v", u, err)
	}

	clock.Set(at(2024, 11, 14, 20))
	if sent, _ := svc.SendReminders(ctx, n); sent != 2 {
		t.Fatalf("expected users 1 and 2 the next day, got %d", sent)
	}
}

type staticWriter struct{ foods []string }

func (w *staticWriter) ReminderMessage(_ context.Context, foods []string) (string, error) {
	w.foods = foods
	return "Your pet misses the ramen.", nil
}

func TestPersonalisedReminder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newClock(at(2024, 11, 12, 12))
	st := newTestStore(t)
	writer := &staticWriter{}
	svc, err := service.New(service.Options{Store: st, ReminderWriter: writer, Location: testZone, Now: clock.Now})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	onboardUser(t, svc, 1)
	logMeal(t, svc, 1, analysisOf(item("Ramen", 600, 20, 80, 20)))
	if err := svc.SetFlag(ctx, service.FlagDailyReminder, true); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	clock.Set(at(2024, 11, 13, 20))
	n := &recordingNotifier{}
	if sent, err := svc.SendReminders(ctx, n); err != nil || sent != 1 {
		t.Fatalf("send: %d %v", sent, err)
	}
	if len(writer.foods) != 1 || writer.foods[0] != "Ramen" {
		t.Fatalf("expected recent foods passed to the writer, got %v", writer.foods)
	}
	if !strings.HasPrefix(n.sent[1][0], "Your pet misses the ramen.") || !strings.Contains(n.sent[1][0], "/notifications off") {
		t.Fatalf("unexpected text %q", n.sent[1][0])
	}
}

func TestSendWeeklySummaries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newClock(at(2024, 11, 12, 12))
	svc := newTestService(t, clock, nil, nil)
	onboardUser(t, svc, 1)
	onboardUser(t, svc, 2)
	logMeal(t, svc, 1, analysisOf(item("Burrito", 700, 30, 80, 25)))

	n := &recordingNotifier{}
	// Tuesday: nothing to do.
	if sent, err := svc.SendWeeklySummaries(ctx, n); err != nil || sent != 0 {
		t.Fatalf("expected no summaries on Tuesday: %d %v", sent, err)
	}

	clock.Set(at(2024, 11, 18, 10))
	sent, err := svc.SendWeeklySummaries(ctx, n)
	if err != nil {
		t.Fatalf("weekly summaries: %v", err)
	}
	if sent != 1 || len(n.sent[1]) != 1 || len(n.sent[2]) != 0 {
		t.Fatalf("expected only user 1 to get a summary, got %d %v", sent, n.sent)
	}
	text := n.sent[1][0]
	if !strings.HasPrefix(text, "📊 Weekly Nutrition Summary") || !strings.Contains(text, "2024-11-11 to 2024-11-17") {
		t.Fatalf("unexpected summary text:\n%s", text)
	}

	if sent, _ := svc.SendWeeklySummaries(ctx, n); sent != 0 {
		t.Fatalf("expected one summary per week, got %d", sent)
	}

	if err := svc.SetFlag(ctx, service.FlagWeeklySummary, false); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	clock.Set(at(2024, 11, 25, 10))
	if sent, _ := svc.SendWeeklySummariesNow(ctx, n); sent != 0 {
		t.Fatalf("expected disabled flag to stop summaries, got %d", sent)
	}
}
