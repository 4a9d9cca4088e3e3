package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/saadjs/nibbles/internal/model"
)

type MealInput struct {
	Text      string
	Image     []byte
	ImageMIME string
	// PhotoRef is an opaque handle to the stored photo, such as a chat file id.
	PhotoRef string
	// Voice marks text transcribed from a voice note.
	Voice bool
}

type MealResult struct {
	Log *model.FoodLog `json:"log"`
	// Pet is nil when the feed step failed; the log is committed regardless.
	Pet           *FeedResult `json:"pet,omitempty"`
	Progress      *Progress   `json:"progress,omitempty"`
	LowConfidence bool        `json:"low_confidence"`
}

func inputTypeOf(in MealInput) model.InputType {
	hasText := strings.TrimSpace(in.Text) != ""
	switch {
	case len(in.Image) > 0 && hasText:
		return model.InputPhotoText
	case len(in.Image) > 0:
		return model.InputPhoto
	case in.Voice:
		return model.InputVoice
	default:
		return model.InputText
	}
}

// LogMeal analyzes the input and records the result.
func (s *Service) LogMeal(ctx context.Context, userID int64, in MealInput) (*MealResult, error) {
	if s.analyzer == nil {
		return nil, ErrNoAnalyzer
	}
	if strings.TrimSpace(in.Text) == "" && len(in.Image) == 0 {
		return nil, invalid("meal", "a description or a photo is required")
	}
	if _, err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	analysis, err := s.analyzer.Analyze(ctx, model.AnalysisRequest{
		Text:      strings.TrimSpace(in.Text),
		Image:     in.Image,
		ImageMIME: in.ImageMIME,
	})
	if errors.Is(err, model.ErrUnusableAnalysis) {
		s.log.Warn("food analysis unusable", zap.Int64("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}
	if err != nil {
		return nil, fmt.Errorf("analyze meal: %w", err)
	}
	return s.RecordAnalysis(ctx, userID, inputTypeOf(in), strings.TrimSpace(in.Text), in.PhotoRef, analysis)
}

// RecordAnalysis persists an analysis that was already obtained, feeds the
// pet and reports progress. A zero-calorie analysis is rejected before
// anything is written.
func (s *Service) RecordAnalysis(ctx context.Context, userID int64, inputType model.InputType, rawInput, photoRef string, analysis model.FoodAnalysis) (*MealResult, error) {
	if _, err := model.ParseInputType(string(inputType)); err != nil {
		return nil, invalid("input type", "%v", err)
	}
	totals := reconcileTotals(analysis)
	if totals.Calories <= 0 {
		return nil, fmt.Errorf("%w: no calories detected", ErrAnalysisFailed)
	}
	if totals.ProteinG < 0 || totals.CarbsG < 0 || totals.FatG < 0 {
		return nil, fmt.Errorf("%w: negative macros", ErrAnalysisFailed)
	}
	if _, err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	analysis.Totals = totals
	analysis.OverallConfidence = clamp01(analysis.OverallConfidence)

	created, err := s.store.CreateLog(ctx, model.FoodLog{
		UserID:     userID,
		LoggedAt:   s.now().UTC(),
		InputType:  inputType,
		RawInput:   rawInput,
		PhotoRef:   photoRef,
		Analysis:   analysis,
		Totals:     totals,
		Confidence: analysis.OverallConfidence,
	})
	if err != nil {
		return nil, fmt.Errorf("create food log: %w", err)
	}
	s.log.Info("meal logged",
		zap.Int64("user_id", userID),
		zap.Int64("log_id", created.ID),
		zap.Int("calories", totals.Calories),
		zap.String("input_type", string(inputType)),
	)

	res := &MealResult{
		Log:           created,
		LowConfidence: created.Confidence < s.confidenceWarning,
	}
	feed, err := s.Feed(ctx, userID)
	if err != nil {
		s.log.Warn("pet feed failed", zap.Int64("user_id", userID), zap.Int64("log_id", created.ID), zap.Error(err))
	} else {
		res.Pet = feed
	}
	progress, err := s.Progress(ctx, userID)
	if err != nil {
		s.log.Warn("progress after log failed", zap.Int64("user_id", userID), zap.Error(err))
	} else {
		res.Progress = progress
	}
	return res, nil
}

// reconcileTotals makes stored totals equal the item sums. The analyzer's
// own totals are used only when it returned no itemised calories.
func reconcileTotals(a model.FoodAnalysis) model.NutritionTotals {
	items := a.ItemTotals()
	if len(a.Items) > 0 && items.Calories > 0 {
		return items
	}
	return a.Totals
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// DeleteLog removes one of the user's logs. It reports false when the log
// does not exist or belongs to someone else.
func (s *Service) DeleteLog(ctx context.Context, userID, logID int64) (bool, error) {
	if logID <= 0 {
		return false, nil
	}
	ok, err := s.store.DeleteLog(ctx, userID, logID)
	if err != nil {
		return false, fmt.Errorf("delete food log %d: %w", logID, err)
	}
	if ok {
		s.log.Info("meal deleted", zap.Int64("user_id", userID), zap.Int64("log_id", logID))
	}
	return ok, nil
}

func (s *Service) RecentLogs(ctx context.Context, userID int64, limit int) ([]model.FoodLog, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return s.store.RecentLogs(ctx, userID, limit)
}

// LogsOn lists the logs of one calendar day, oldest first.
func (s *Service) LogsOn(ctx context.Context, userID int64, day time.Time) ([]model.FoodLog, error) {
	return s.LogsBetween(ctx, userID, day, day)
}

// LogsBetween lists the logs of the calendar days start..end inclusive.
func (s *Service) LogsBetween(ctx context.Context, userID int64, start, end time.Time) ([]model.FoodLog, error) {
	if s.day(start).After(s.day(end)) {
		return nil, invalid("date range", "start is after end")
	}
	from, to := s.dayBounds(start, end)
	return s.store.ListLogs(ctx, userID, from, to)
}

// DailyTotals sums one calendar day. Days without logs yield zero totals.
func (s *Service) DailyTotals(ctx context.Context, userID int64, day time.Time) (model.Totals, error) {
	return s.RangeTotals(ctx, userID, day, day)
}

// RangeTotals sums the calendar days start..end inclusive.
func (s *Service) RangeTotals(ctx context.Context, userID int64, start, end time.Time) (model.Totals, error) {
	if s.day(start).After(s.day(end)) {
		return model.Totals{}, invalid("date range", "start is after end")
	}
	from, to := s.dayBounds(start, end)
	t, err := s.store.SumLogs(ctx, userID, from, to)
	if err != nil {
		return model.Totals{}, fmt.Errorf("sum food logs: %w", err)
	}
	return t, nil
}

func (s *Service) HasLoggedToday(ctx context.Context, userID int64) (bool, error) {
	from, to := s.dayBounds(s.Today(), s.Today())
	return s.store.HasLogs(ctx, userID, from, to)
}

// ExportLogs renders the raw logs of a date range as indented JSON.
func (s *Service) ExportLogs(ctx context.Context, userID int64, start, end time.Time) ([]byte, error) {
	logs, err := s.LogsBetween(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	payload := struct {
		UserID int64           `json:"user_id"`
		Start  string          `json:"start"`
		End    string          `json:"end"`
		Logs   []model.FoodLog `json:"logs"`
	}{
		UserID: userID,
		Start:  s.dateKey(start),
		End:    s.dateKey(end),
		Logs:   logs,
	}
	if payload.Logs == nil {
		payload.Logs = []model.FoodLog{}
	}
	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	return out, nil
}

const maxServings = 20

// LogBarcode records servings of a packaged food looked up by barcode.
// Zero servings means one.
func (s *Service) LogBarcode(ctx context.Context, userID int64, barcode string, servings float64) (*MealResult, error) {
	if s.barcodes == nil {
		return nil, ErrNoBarcodeLookup
	}
	barcode = strings.TrimSpace(barcode)
	if !validBarcode(barcode) {
		return nil, invalid("barcode", "expected 8 to 14 digits, got %q", barcode)
	}
	if servings == 0 {
		servings = 1
	}
	if servings < 0 || servings > maxServings {
		return nil, invalid("servings", "must be between 0 and %d", maxServings)
	}
	if _, err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	item, err := s.barcodes.LookupBarcode(ctx, barcode)
	if errors.Is(err, model.ErrUnusableAnalysis) {
		s.log.Warn("barcode not usable", zap.Int64("user_id", userID), zap.String("barcode", barcode), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}
	if err != nil {
		return nil, fmt.Errorf("look up barcode: %w", err)
	}
	if servings != 1 {
		item.Portion = fmt.Sprintf("%g x %s", servings, item.Portion)
		item.Calories = int(math.Round(float64(item.Calories) * servings))
		item.ProteinG = model.Round1(item.ProteinG * servings)
		item.CarbsG = model.Round1(item.CarbsG * servings)
		item.FatG = model.Round1(item.FatG * servings)
	}
	analysis := model.FoodAnalysis{
		Items:             []model.FoodItem{item},
		OverallConfidence: 1,
		Notes:             "barcode " + barcode,
	}
	return s.RecordAnalysis(ctx, userID, model.InputText, "barcode:"+barcode, "", analysis)
}

func validBarcode(code string) bool {
	if len(code) < 8 || len(code) > 14 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
