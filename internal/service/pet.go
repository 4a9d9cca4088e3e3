package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/saadjs/nibbles/internal/model"
)

const maxPetNameLen = 20

var levelThresholds = []struct {
	level model.PetLevel
	min   int
}{
	{model.LevelElder, 501},
	{model.LevelAdult, 151},
	{model.LevelTeen, 51},
	{model.LevelBaby, 2},
	{model.LevelEgg, 0},
}

// LevelFor maps a lifetime meal count to the highest level whose threshold
// it reaches.
func LevelFor(totalMeals int) model.PetLevel {
	for _, t := range levelThresholds {
		if totalMeals >= t.min {
			return t.level
		}
	}
	return model.LevelEgg
}

// LevelThreshold is the lifetime meal count at which level starts.
func LevelThreshold(level model.PetLevel) int {
	for _, t := range levelThresholds {
		if t.level == level {
			return t.min
		}
	}
	return 0
}

// NextLevel returns the level after the one reached with totalMeals and how
// many more meals it needs. ok is false at the last level.
func NextLevel(totalMeals int) (next model.PetLevel, mealsNeeded int, ok bool) {
	current := LevelFor(totalMeals)
	for i, l := range model.Levels {
		if l == current && i+1 < len(model.Levels) {
			next = model.Levels[i+1]
			return next, LevelThreshold(next) - totalMeals, true
		}
	}
	return "", 0, false
}

// MoodFor maps today's calorie percentage (truncated) to a mood.
func MoodFor(percent int) model.PetMood {
	switch {
	case percent >= 121:
		return model.MoodStuffed
	case percent >= 100:
		return model.MoodEcstatic
	case percent >= 50:
		return model.MoodHappy
	case percent >= 1:
		return model.MoodHungry
	default:
		return model.MoodStarving
	}
}

// CaloriePercent truncates consumed/target*100; a 49.9% day is hungry, not happy.
func CaloriePercent(consumed, target int) int {
	if target <= 0 {
		return 0
	}
	return int(float64(consumed) / float64(target) * 100)
}

func ImageURL(level model.PetLevel, mood model.PetMood) string {
	if level == model.LevelEgg {
		return "/pet/egg.png"
	}
	return fmt.Sprintf("/pet/%s-%s.png", level, mood)
}

var moodFaces = map[model.PetMood]string{
	model.MoodStuffed:  "(×‿×)",
	model.MoodEcstatic: "(★‿★)",
	model.MoodHappy:    "(◕‿◕)",
	model.MoodHungry:   "(◕︿◕)",
	model.MoodStarving: "(;﹏;)",
}

var babyFaces = map[model.PetMood]string{
	model.MoodHappy:  "(°◡°)",
	model.MoodHungry: "(°︿°)",
}

// ASCIIArt is the text fallback for chat clients that cannot show images.
func ASCIIArt(level model.PetLevel, mood model.PetMood) string {
	if level == model.LevelEgg {
		return "  ___\n /   \\\n | ? |\n \\___/"
	}
	face, ok := moodFaces[mood]
	if !ok {
		face = moodFaces[model.MoodHappy]
	}
	stuffed := mood == model.MoodStuffed
	switch level {
	case model.LevelTeen:
		body := " /|  |\\"
		if stuffed {
			body = " /|O |\\"
		}
		return "  ∩∩\n " + face + "\n" + body + "\n  ∧  ∧"
	case model.LevelAdult:
		return "  ∩∩\n " + face + "\n /|██|\\\n  ∧  ∧"
	case model.LevelElder:
		return " ∩∩∩\n " + face + "\n~/|██|\\~\n~~∧  ∧~~"
	default:
		if f, ok := babyFaces[mood]; ok {
			face = f
		}
		body := "  <|>"
		if stuffed {
			body = "  <O>"
		}
		return "  ∩∩\n " + face + "\n" + body + "\n   ∧"
	}
}

func LevelLabel(level model.PetLevel) string {
	switch level {
	case model.LevelEgg:
		return "Egg"
	case model.LevelBaby:
		return "Baby"
	case model.LevelTeen:
		return "Teen"
	case model.LevelAdult:
		return "Adult"
	case model.LevelElder:
		return "Elder"
	}
	return string(level)
}

func MoodLabel(mood model.PetMood) string {
	switch mood {
	case model.MoodStuffed:
		return "Stuffed"
	case model.MoodEcstatic:
		return "Ecstatic"
	case model.MoodHappy:
		return "Happy"
	case model.MoodHungry:
		return "Hungry"
	case model.MoodStarving:
		return "Starving"
	}
	return string(mood)
}

// PetInfo is the display view of a pet. Level and mood are derived on read.
type PetInfo struct {
	Pet              model.PetStatus `json:"pet"`
	Level            model.PetLevel  `json:"level"`
	LevelLabel       string          `json:"level_label"`
	Mood             model.PetMood   `json:"mood"`
	MoodLabel        string          `json:"mood_label"`
	ImageURL         string          `json:"image_url"`
	ASCIIArt         string          `json:"ascii_art"`
	CaloriesToday    int             `json:"calories_today"`
	CaloriesTarget   int             `json:"calories_target"`
	CaloriesPercent  int             `json:"calories_percent"`
	NextLevel        model.PetLevel  `json:"next_level,omitempty"`
	MealsToNextLevel int             `json:"meals_to_next_level,omitempty"`
}

// FeedResult reports a feed transition and what it unlocked.
type FeedResult struct {
	Info            PetInfo          `json:"info"`
	Evolved         bool             `json:"evolved"`
	PreviousLevel   model.PetLevel   `json:"previous_level"`
	NewAchievements []AchievementDef `json:"new_achievements"`
}

func (s *Service) PetInfo(ctx context.Context, userID int64) (*PetInfo, error) {
	pet, err := s.store.GetOrCreatePet(ctx, userID, s.petName)
	if err != nil {
		return nil, fmt.Errorf("load pet for user %d: %w", userID, err)
	}
	info, err := s.describePet(ctx, userID, *pet)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *Service) describePet(ctx context.Context, userID int64, pet model.PetStatus) (PetInfo, error) {
	u, err := s.requireUser(ctx, userID)
	if err != nil {
		return PetInfo{}, err
	}
	totals, err := s.DailyTotals(ctx, userID, s.Today())
	if err != nil {
		return PetInfo{}, err
	}
	target := s.CalorieTarget(*u)
	percent := CaloriePercent(totals.Calories, target)
	level := LevelFor(pet.TotalMealsLogged)
	mood := MoodFor(percent)
	info := PetInfo{
		Pet:             pet,
		Level:           level,
		LevelLabel:      LevelLabel(level),
		Mood:            mood,
		MoodLabel:       MoodLabel(mood),
		ImageURL:        ImageURL(level, mood),
		ASCIIArt:        ASCIIArt(level, mood),
		CaloriesToday:   totals.Calories,
		CaloriesTarget:  target,
		CaloriesPercent: percent,
	}
	if next, need, ok := NextLevel(pet.TotalMealsLogged); ok {
		info.NextLevel = next
		info.MealsToNextLevel = need
	}
	return info, nil
}

// applyFeed advances the streak by calendar day and counts one more meal.
func applyFeed(p *model.PetStatus, today string) error {
	switch {
	case p.LastFedDate == "":
		p.CurrentStreak = 1
	default:
		diff, err := daysBetween(p.LastFedDate, today)
		if err != nil {
			return err
		}
		switch {
		case diff <= 0:
			if p.CurrentStreak == 0 {
				p.CurrentStreak = 1
			}
		case diff == 1:
			p.CurrentStreak++
		default:
			p.CurrentStreak = 1
		}
		if diff < 0 {
			today = p.LastFedDate
		}
	}
	if p.CurrentStreak > p.BestStreak {
		p.BestStreak = p.CurrentStreak
	}
	p.TotalMealsLogged++
	p.LastFedDate = today
	return nil
}

// Feed records one successfully logged meal on the user's pet. Feeds for one
// user are serialized; achievements are evaluated against the new state.
func (s *Service) Feed(ctx context.Context, userID int64) (*FeedResult, error) {
	release, err := s.locker.Acquire(ctx, petLockKey(userID))
	if err != nil {
		return nil, fmt.Errorf("lock pet for user %d: %w", userID, err)
	}
	defer release()

	today := s.dateKey(s.now())
	before, after, err := s.store.UpdatePet(ctx, userID, s.petName, func(p *model.PetStatus) error {
		return applyFeed(p, today)
	})
	if err != nil {
		return nil, fmt.Errorf("feed pet for user %d: %w", userID, err)
	}

	levelBefore := LevelFor(before.TotalMealsLogged)
	levelAfter := LevelFor(after.TotalMealsLogged)
	res := &FeedResult{
		Evolved:         levelBefore != levelAfter,
		PreviousLevel:   levelBefore,
		NewAchievements: []AchievementDef{},
	}
	if res.Evolved {
		s.log.Info("pet evolved", zap.Int64("user_id", userID), zap.String("from", string(levelBefore)), zap.String("to", string(levelAfter)))
	}

	for _, id := range Milestones(after, levelBefore, levelAfter) {
		a, err := s.Unlock(ctx, userID, id)
		if err != nil {
			s.log.Warn("achievement unlock failed", zap.Int64("user_id", userID), zap.String("achievement", id), zap.Error(err))
			continue
		}
		if a != nil {
			def, _ := FindAchievement(id)
			res.NewAchievements = append(res.NewAchievements, def)
		}
	}

	info, err := s.describePet(ctx, userID, after)
	if err != nil {
		return nil, err
	}
	res.Info = info
	return res, nil
}

func petLockKey(userID int64) string {
	return fmt.Sprintf("pet:%d", userID)
}

func (s *Service) RenamePet(ctx context.Context, userID int64, name string) (*model.PetStatus, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < 1 || n > maxPetNameLen {
		return nil, invalid("pet name", "must be 1 to %d characters", maxPetNameLen)
	}
	return s.mutatePet(ctx, userID, func(p *model.PetStatus) error {
		p.Name = name
		return nil
	})
}

// SetPetMeals overrides the lifetime meal count. Milestones it crosses are
// unlocked on the next feed.
func (s *Service) SetPetMeals(ctx context.Context, userID int64, meals int) (*model.PetStatus, error) {
	if meals < 0 {
		return nil, invalid("meal count", "must be >= 0")
	}
	return s.mutatePet(ctx, userID, func(p *model.PetStatus) error {
		p.TotalMealsLogged = meals
		return nil
	})
}

// RefreshStreak zeroes the user's current streak once a whole day has gone
// by without a feed.
func (s *Service) RefreshStreak(ctx context.Context, userID int64) (*model.PetStatus, error) {
	today := s.dateKey(s.now())
	return s.mutatePet(ctx, userID, func(p *model.PetStatus) error {
		if p.LastFedDate == "" {
			return nil
		}
		diff, err := daysBetween(p.LastFedDate, today)
		if err != nil {
			return err
		}
		if diff > 1 {
			p.CurrentStreak = 0
		}
		return nil
	})
}

// RefreshStreaks applies RefreshStreak to every pet in one statement.
func (s *Service) RefreshStreaks(ctx context.Context) (int64, error) {
	yesterday := s.dateKey(s.Today().AddDate(0, 0, -1))
	n, err := s.store.ResetStaleStreaks(ctx, yesterday)
	if err != nil {
		return 0, fmt.Errorf("reset stale streaks: %w", err)
	}
	if n > 0 {
		s.log.Info("streaks reset", zap.Int64("pets", n))
	}
	return n, nil
}

func (s *Service) mutatePet(ctx context.Context, userID int64, mutate func(p *model.PetStatus) error) (*model.PetStatus, error) {
	if _, err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	release, err := s.locker.Acquire(ctx, petLockKey(userID))
	if err != nil {
		return nil, fmt.Errorf("lock pet for user %d: %w", userID, err)
	}
	defer release()
	_, after, err := s.store.UpdatePet(ctx, userID, s.petName, mutate)
	if err != nil {
		return nil, fmt.Errorf("update pet for user %d: %w", userID, err)
	}
	return &after, nil
}
