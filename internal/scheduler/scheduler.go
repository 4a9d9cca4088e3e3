// Package scheduler runs the periodic reminder, weekly summary and streak
// jobs on a cron clock.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/saadjs/nibbles/internal/logger"
	"github.com/saadjs/nibbles/internal/service"
)

const (
	DefaultReminderSchedule = "0 * * * *"
	// Weekly summaries are checked hourly; the service only sends on Monday
	// at the configured hour.
	weeklySummarySchedule = "5 * * * *"
	streakSchedule        = "10 0 * * *"

	jobTimeout = 10 * time.Minute
)

// Jobs is the subset of the service the scheduler drives.
type Jobs interface {
	SendReminders(ctx context.Context, n service.Notifier) (int, error)
	SendWeeklySummaries(ctx context.Context, n service.Notifier) (int, error)
	RefreshStreaks(ctx context.Context) (int64, error)
}

type Options struct {
	Jobs             Jobs
	Notifier         service.Notifier
	ReminderSchedule string
	Location         *time.Location
	Logger           *zap.Logger
}

type Scheduler struct {
	cron *cron.Cron
	jobs Jobs
	n    service.Notifier
	log  *zap.Logger
}

// New registers the jobs. Without a notifier only the streak refresh runs.
func New(opts Options) (*Scheduler, error) {
	if opts.Jobs == nil {
		return nil, fmt.Errorf("scheduler requires jobs")
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	s := &Scheduler{
		cron: cron.New(cron.WithLocation(loc)),
		jobs: opts.Jobs,
		n:    opts.Notifier,
		log:  logger.OrNop(opts.Logger),
	}
	reminder := opts.ReminderSchedule
	if reminder == "" {
		reminder = DefaultReminderSchedule
	}
	if s.n != nil {
		if _, err := s.cron.AddFunc(reminder, s.RunReminders); err != nil {
			return nil, fmt.Errorf("schedule reminders %q: %w", reminder, err)
		}
		if _, err := s.cron.AddFunc(weeklySummarySchedule, s.RunWeeklySummaries); err != nil {
			return nil, fmt.Errorf("schedule weekly summaries: %w", err)
		}
	}
	if _, err := s.cron.AddFunc(streakSchedule, s.RunStreakRefresh); err != nil {
		return nil, fmt.Errorf("schedule streak refresh: %w", err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.log.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
	s.cron.Start()
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) RunReminders() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if _, err := s.jobs.SendReminders(ctx, s.n); err != nil {
		s.log.Error("reminder job failed", zap.String("job", "reminder"), zap.Error(err))
	}
}

func (s *Scheduler) RunWeeklySummaries() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if _, err := s.jobs.SendWeeklySummaries(ctx, s.n); err != nil {
		s.log.Error("weekly summary job failed", zap.String("job", "weekly_summary"), zap.Error(err))
	}
}

func (s *Scheduler) RunStreakRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	n, err := s.jobs.RefreshStreaks(ctx)
	if err != nil {
		s.log.Error("streak refresh failed", zap.String("job", "streak_refresh"), zap.Error(err))
		return
	}
	s.log.Info("streaks refreshed", zap.String("job", "streak_refresh"), zap.Int64("reset", n))
}
