// Package service is the nutrition tracking engine: targets, food logs,
// progress, the pet state machine, achievements, summaries and the jobs
// that read them. Front ends (CLI, chat bot, dashboard API) call into a
// single Service built at startup.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/saadjs/nibbles/internal/lock"
	"github.com/saadjs/nibbles/internal/logger"
	"github.com/saadjs/nibbles/internal/model"
	"github.com/saadjs/nibbles/internal/nutrition"
	"github.com/saadjs/nibbles/internal/store"
)

const (
	DefaultPetName           = "Nibbles"
	DefaultConfidenceWarning = 0.7
	DefaultCommonFoodsLimit  = 5
	DefaultReminderHour      = 20
	DefaultWeeklySummaryHour = 10
	DefaultRecentLimit       = 5

	dateLayout = "2006-01-02"
)

var (
	ErrAnalysisFailed     = errors.New("could not analyze meal")
	ErrUserNotFound       = errors.New("user not found")
	ErrUnknownAchievement = errors.New("unknown achievement")
	ErrNoAnalyzer         = errors.New("food analyzer is not configured")
	ErrNoBarcodeLookup    = errors.New("barcode lookup is not configured")
)

// ValidationError rejects bad input at the boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Analyzer estimates nutrition for a meal description or photo.
type Analyzer interface {
	Analyze(ctx context.Context, req model.AnalysisRequest) (model.FoodAnalysis, error)
}

// BarcodeLookup resolves one serving of a packaged food.
type BarcodeLookup interface {
	LookupBarcode(ctx context.Context, barcode string) (model.FoodItem, error)
}

// ReminderWriter writes a personalised reminder from recently logged foods.
type ReminderWriter interface {
	ReminderMessage(ctx context.Context, recentFoods []string) (string, error)
}

type Options struct {
	Store          store.Store
	Analyzer       Analyzer
	ReminderWriter ReminderWriter
	Barcodes       BarcodeLookup
	Locker         lock.Locker
	Logger         *zap.Logger

	Floors               nutrition.Floors
	DefaultCalorieTarget int
	ConfidenceWarning    float64
	CommonFoodsLimit     int
	DefaultReminderHour  int
	WeeklySummaryHour    int
	PetName              string

	// Location decides calendar days. Defaults to time.Local.
	Location *time.Location
	Now      func() time.Time
}

type Service struct {
	store    store.Store
	analyzer Analyzer
	writer   ReminderWriter
	barcodes BarcodeLookup
	locker   lock.Locker
	log      *zap.Logger

	floors            nutrition.Floors
	defaultTarget     int
	confidenceWarning float64
	commonFoods       int
	reminderHour      int
	weeklyHour        int
	petName           string

	loc *time.Location
	now func() time.Time
}

func New(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("service requires a store")
	}
	s := &Service{
		store:             opts.Store,
		analyzer:          opts.Analyzer,
		writer:            opts.ReminderWriter,
		barcodes:          opts.Barcodes,
		locker:            opts.Locker,
		log:               logger.OrNop(opts.Logger),
		floors:            opts.Floors,
		defaultTarget:     opts.DefaultCalorieTarget,
		confidenceWarning: opts.ConfidenceWarning,
		commonFoods:       opts.CommonFoodsLimit,
		reminderHour:      opts.DefaultReminderHour,
		weeklyHour:        opts.WeeklySummaryHour,
		petName:           opts.PetName,
		loc:               opts.Location,
		now:               opts.Now,
	}
	if s.locker == nil {
		s.locker = lock.NewKeyedMutex()
	}
	if s.floors.Female <= 0 || s.floors.Male <= 0 {
		s.floors = nutrition.DefaultFloors()
	}
	if s.defaultTarget <= 0 {
		s.defaultTarget = nutrition.DefaultCalorieTarget
	}
	if s.confidenceWarning <= 0 {
		s.confidenceWarning = DefaultConfidenceWarning
	}
	if s.commonFoods <= 0 {
		s.commonFoods = DefaultCommonFoodsLimit
	}
	// Zero means unset for both hours; users can still pick midnight.
	if s.reminderHour <= 0 || s.reminderHour > 23 {
		s.reminderHour = DefaultReminderHour
	}
	if s.weeklyHour <= 0 || s.weeklyHour > 23 {
		s.weeklyHour = DefaultWeeklySummaryHour
	}
	if s.petName == "" {
		s.petName = DefaultPetName
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

func (s *Service) Location() *time.Location { return s.loc }

// Floors are the calorie minimums applied to computed targets.
func (s *Service) Floors() nutrition.Floors { return s.floors }

// Now returns the current time in the service location.
func (s *Service) Now() time.Time { return s.now().In(s.loc) }

// Today is midnight of the current calendar day.
func (s *Service) Today() time.Time { return s.day(s.now()) }

func (s *Service) day(t time.Time) time.Time {
	t = t.In(s.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
}

// dayBounds returns the instants covering the calendar days start..end.
func (s *Service) dayBounds(start, end time.Time) (time.Time, time.Time) {
	from := s.day(start)
	to := s.day(end).AddDate(0, 0, 1)
	return from, to
}

func (s *Service) dateKey(t time.Time) string {
	return t.In(s.loc).Format(dateLayout)
}

// daysBetween counts calendar days from a to b using the date component only.
func daysBetween(a, b string) (int, error) {
	da, err := time.Parse(dateLayout, a)
	if err != nil {
		return 0, fmt.Errorf("parse date %q: %w", a, err)
	}
	db, err := time.Parse(dateLayout, b)
	if err != nil {
		return 0, fmt.Errorf("parse date %q: %w", b, err)
	}
	return int(db.Sub(da).Hours() / 24), nil
}

// daysInclusive is the number of calendar days in start..end.
func daysInclusive(start, end time.Time) int {
	a := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours()/24) + 1
}

func (s *Service) requireUser(ctx context.Context, userID int64) (*model.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}
