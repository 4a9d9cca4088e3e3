package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/saadjs/nibbles/internal/model"
)

const (
	FlagDailyReminder = "daily_reminder"
	FlagWeeklySummary = "weekly_summary"

	flagKeyPrefix = "flag."
)

var flagDefaults = map[string]bool{
	FlagDailyReminder: false,
	FlagWeeklySummary: true,
}

const reminderFooter = "(Use /notifications off to disable these reminders)"

const defaultReminderText = "Hey! You haven't logged any food today.\n\n" +
	"Send me a photo of your meal or a text description to track your nutrition!\n\n" +
	reminderFooter

const (
	weeklySummaryHeader = "📊 Weekly Nutrition Summary\n\nHere's how you did last week:\n\n"
	weeklySummaryFooter = "\n\n(Use /notifications weeklysummary off to disable these summaries)"
)

// Notifier delivers job output to a user.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

func (s *Service) FlagEnabled(ctx context.Context, name string) (bool, error) {
	def, ok := flagDefaults[name]
	if !ok {
		return false, invalid("flag", "unknown flag %q", name)
	}
	raw, found, err := s.store.GetConfig(ctx, flagKeyPrefix+name)
	if err != nil {
		return false, fmt.Errorf("read flag %s: %w", name, err)
	}
	if !found {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		s.log.Warn("invalid flag value, using default", zap.String("flag", name), zap.String("value", raw))
		return def, nil
	}
	return v, nil
}

func (s *Service) SetFlag(ctx context.Context, name string, enabled bool) error {
	if _, ok := flagDefaults[name]; !ok {
		return invalid("flag", "unknown flag %q", name)
	}
	if err := s.store.SetConfig(ctx, flagKeyPrefix+name, strconv.FormatBool(enabled)); err != nil {
		return fmt.Errorf("write flag %s: %w", name, err)
	}
	s.log.Info("flag updated", zap.String("flag", name), zap.Bool("enabled", enabled))
	return nil
}

type Flag struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// Flags lists every known flag with its effective value, sorted by name.
func (s *Service) Flags(ctx context.Context) ([]Flag, error) {
	names := make([]string, 0, len(flagDefaults))
	for name := range flagDefaults {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Flag, 0, len(names))
	for _, name := range names {
		on, err := s.FlagEnabled(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, Flag{Name: name, Enabled: on})
	}
	return out, nil
}

// SendReminders nudges users whose reminder hour is now and who have not
// logged anything today. Each user is reminded at most once per day.
// Delivery failures are logged and skipped.
func (s *Service) SendReminders(ctx context.Context, n Notifier) (int, error) {
	on, err := s.FlagEnabled(ctx, FlagDailyReminder)
	if err != nil || !on {
		return 0, err
	}
	current := s.Now()
	users, err := s.store.ListUsersForReminder(ctx, current.Hour())
	if err != nil {
		return 0, fmt.Errorf("list users for reminder: %w", err)
	}
	today := s.Today()
	sent := 0
	for _, u := range users {
		if u.LastReminderSent != nil && !s.day(*u.LastReminderSent).Before(today) {
			continue
		}
		logged, err := s.HasLoggedToday(ctx, u.ID)
		if err != nil {
			s.log.Error("reminder check failed", zap.String("job", "reminder"), zap.Int64("user_id", u.ID), zap.Error(err))
			continue
		}
		if logged {
			continue
		}
		if err := n.Notify(ctx, u.ID, s.reminderText(ctx, u.ID)); err != nil {
			s.log.Warn("reminder delivery failed", zap.String("job", "reminder"), zap.Int64("user_id", u.ID), zap.Error(err))
			continue
		}
		stamp := s.now().UTC()
		if _, err := s.store.UpdateUser(ctx, u.ID, model.ProfileUpdate{LastReminderSent: &stamp}); err != nil {
			s.log.Error("mark reminder sent failed", zap.Int64("user_id", u.ID), zap.Error(err))
		}
		sent++
	}
	s.log.Info("reminders sent", zap.String("job", "reminder"), zap.Int("hour", current.Hour()), zap.Int("sent", sent))
	return sent, nil
}

// reminderText personalises the reminder with the week's foods when a
// writer is configured.
func (s *Service) reminderText(ctx context.Context, userID int64) string {
	if s.writer == nil {
		return defaultReminderText
	}
	today := s.Today()
	logs, err := s.LogsBetween(ctx, userID, today.AddDate(0, 0, -7), today)
	if err != nil {
		return defaultReminderText
	}
	var foods []string
	for _, l := range logs {
		foods = append(foods, l.FoodNames()...)
	}
	msg, err := s.writer.ReminderMessage(ctx, foods)
	if err != nil {
		s.log.Warn("personalised reminder failed", zap.Int64("user_id", userID), zap.Error(err))
		return defaultReminderText
	}
	return msg + "\n\n" + reminderFooter
}

// SendWeeklySummaries sends last week's summary on Mondays at the weekly
// summary hour. Users without meals last week, or already sent one this
// week, are skipped.
func (s *Service) SendWeeklySummaries(ctx context.Context, n Notifier) (int, error) {
	current := s.Now()
	if current.Weekday() != time.Monday || current.Hour() != s.weeklyHour {
		return 0, nil
	}
	return s.sendWeeklySummaries(ctx, n)
}

// SendWeeklySummariesNow runs the weekly summary regardless of the day.
func (s *Service) SendWeeklySummariesNow(ctx context.Context, n Notifier) (int, error) {
	return s.sendWeeklySummaries(ctx, n)
}

func (s *Service) sendWeeklySummaries(ctx context.Context, n Notifier) (int, error) {
	on, err := s.FlagEnabled(ctx, FlagWeeklySummary)
	if err != nil || !on {
		return 0, err
	}
	users, err := s.store.ListUsersForWeeklySummary(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users for weekly summary: %w", err)
	}
	today := s.Today()
	start, end := LastWeek(today)
	thisWeek := end.AddDate(0, 0, 1)
	sent := 0
	for _, u := range users {
		if u.LastWeeklySummarySent != nil && !s.day(*u.LastWeeklySummarySent).Before(thisWeek) {
			continue
		}
		sum, err := s.GenerateSummary(ctx, u.ID, start, end)
		if err != nil {
			s.log.Error("weekly summary failed", zap.String("job", "weekly_summary"), zap.Int64("user_id", u.ID), zap.Error(err))
			continue
		}
		if sum.Empty() {
			continue
		}
		if err := n.Notify(ctx, u.ID, weeklySummaryHeader+sum.Text()+weeklySummaryFooter); err != nil {
			s.log.Warn("weekly summary delivery failed", zap.String("job", "weekly_summary"), zap.Int64("user_id", u.ID), zap.Error(err))
			continue
		}
		stamp := s.now().UTC()
		if _, err := s.store.UpdateUser(ctx, u.ID, model.ProfileUpdate{LastWeeklySummarySent: &stamp}); err != nil {
			s.log.Error("mark weekly summary sent failed", zap.Int64("user_id", u.ID), zap.Error(err))
		}
		sent++
	}
	s.log.Info("weekly summaries sent", zap.String("job", "weekly_summary"), zap.Int("sent", sent))
	return sent, nil
}
