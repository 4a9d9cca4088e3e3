package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/saadjs/nibbles/internal/model"
	"github.com/saadjs/nibbles/internal/nutrition"
)

// Onboarding is the full biometric profile collected on first contact.
type Onboarding struct {
	WeightKg float64
	HeightCm float64
	Age      int
	Sex      model.Sex
	Activity model.ActivityLevel
	Goal     model.Goal
}

// EnsureUser creates the user on first contact and refreshes the display
// names on later ones.
func (s *Service) EnsureUser(ctx context.Context, id int64, username, firstName string) (*model.User, error) {
	if id <= 0 {
		return nil, invalid("user id", "must be positive")
	}
	username = strings.TrimSpace(username)
	firstName = strings.TrimSpace(firstName)
	u, err := s.store.CreateUser(ctx, model.User{
		ID:                   id,
		Username:             username,
		FirstName:            firstName,
		NotificationsEnabled: true,
		ReminderHour:         s.reminderHour,
		WeeklySummaryEnabled: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create user %d: %w", id, err)
	}
	var upd model.ProfileUpdate
	if username != "" && username != u.Username {
		upd.Username = &username
	}
	if firstName != "" && firstName != u.FirstName {
		upd.FirstName = &firstName
	}
	if upd.Empty() {
		return u, nil
	}
	return s.store.UpdateUser(ctx, id, upd)
}

func (s *Service) User(ctx context.Context, id int64) (*model.User, error) {
	return s.requireUser(ctx, id)
}

// CompleteOnboarding stores the biometric profile, computes the calorie
// target and clears any earlier overrides.
func (s *Service) CompleteOnboarding(ctx context.Context, id int64, in Onboarding) (*model.User, error) {
	if _, err := s.requireUser(ctx, id); err != nil {
		return nil, err
	}
	override := false
	done := true
	upd := model.ProfileUpdate{
		WeightKg:           &in.WeightKg,
		HeightCm:           &in.HeightCm,
		Age:                &in.Age,
		Sex:                &in.Sex,
		ActivityLevel:      &in.Activity,
		Goal:               &in.Goal,
		CalorieOverride:    &override,
		MacroOverride:      &override,
		ClearMacroTargets:  true,
		OnboardingComplete: &done,
	}
	if err := validateProfileUpdate(upd); err != nil {
		return nil, err
	}
	target, err := nutrition.DailyTarget(nutrition.Profile{
		WeightKg: in.WeightKg,
		HeightCm: in.HeightCm,
		Age:      in.Age,
		Sex:      in.Sex,
		Activity: in.Activity,
		Goal:     in.Goal,
	}, s.floors)
	if err != nil {
		return nil, invalid("profile", "%v", err)
	}
	upd.DailyCalorieTarget = &target
	return s.store.UpdateUser(ctx, id, upd)
}

// UpdateProfile applies a partial update. An explicit calorie target marks
// the target as overridden; explicit macro targets do the same for macros.
// Edits to biometrics, activity or goal recompute the target only while it
// is not overridden.
func (s *Service) UpdateProfile(ctx context.Context, id int64, upd model.ProfileUpdate) (*model.User, error) {
	if err := validateProfileUpdate(upd); err != nil {
		return nil, err
	}
	current, err := s.requireUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.DailyCalorieTarget != nil && upd.CalorieOverride == nil {
		on := true
		upd.CalorieOverride = &on
	}
	if (upd.ProteinTargetG != nil || upd.CarbsTargetG != nil || upd.FatTargetG != nil) && upd.MacroOverride == nil {
		on := true
		upd.MacroOverride = &on
	}

	merged := mergeProfile(*current, upd)
	if upd.DailyCalorieTarget == nil && !merged.CalorieOverride && touchesTargetInputs(upd) && merged.HasBiometrics() {
		target, err := nutrition.DailyTarget(nutrition.ProfileOf(merged), s.floors)
		if err != nil {
			return nil, invalid("profile", "%v", err)
		}
		upd.DailyCalorieTarget = &target
	}
	if upd.Empty() {
		return current, nil
	}
	u, err := s.store.UpdateUser(ctx, id, upd)
	if err != nil {
		return nil, fmt.Errorf("update user %d: %w", id, err)
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (s *Service) SetWeight(ctx context.Context, id int64, weightKg float64) (*model.User, error) {
	return s.UpdateProfile(ctx, id, model.ProfileUpdate{WeightKg: &weightKg})
}

// ResetCalorieTarget drops a manual override and recomputes the target from
// the stored profile.
func (s *Service) ResetCalorieTarget(ctx context.Context, id int64) (*model.User, error) {
	u, err := s.requireUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.HasBiometrics() {
		return nil, invalid("profile", "weight, height, age, sex, activity and goal are required to compute a target")
	}
	target, err := nutrition.DailyTarget(nutrition.ProfileOf(*u), s.floors)
	if err != nil {
		return nil, invalid("profile", "%v", err)
	}
	off := false
	return s.store.UpdateUser(ctx, id, model.ProfileUpdate{DailyCalorieTarget: &target, CalorieOverride: &off})
}

// ResetMacros clears explicit macro targets so they follow the calorie target again.
func (s *Service) ResetMacros(ctx context.Context, id int64) (*model.User, error) {
	if _, err := s.requireUser(ctx, id); err != nil {
		return nil, err
	}
	off := false
	return s.store.UpdateUser(ctx, id, model.ProfileUpdate{ClearMacroTargets: true, MacroOverride: &off})
}

// CalorieTarget is the user's daily target, or the configured default when
// none is set.
func (s *Service) CalorieTarget(u model.User) int {
	if u.DailyCalorieTarget > 0 {
		return u.DailyCalorieTarget
	}
	return s.defaultTarget
}

// MacroTargets uses explicit targets only when all three are set.
func (s *Service) MacroTargets(u model.User) nutrition.MacroTargets {
	if u.MacroOverride && u.ProteinTargetG > 0 && u.CarbsTargetG > 0 && u.FatTargetG > 0 {
		return nutrition.MacroTargets{ProteinG: u.ProteinTargetG, CarbsG: u.CarbsTargetG, FatG: u.FatTargetG}
	}
	goal := u.Goal
	if goal == "" {
		goal = model.GoalMaintain
	}
	return nutrition.Macros(s.CalorieTarget(u), goal)
}

func touchesTargetInputs(upd model.ProfileUpdate) bool {
	return upd.WeightKg != nil || upd.HeightCm != nil || upd.Age != nil || upd.Sex != nil ||
		upd.ActivityLevel != nil || upd.Goal != nil
}

func mergeProfile(u model.User, upd model.ProfileUpdate) model.User {
	if upd.WeightKg != nil {
		u.WeightKg = *upd.WeightKg
	}
	if upd.HeightCm != nil {
		u.HeightCm = *upd.HeightCm
	}
	if upd.Age != nil {
		u.Age = *upd.Age
	}
	if upd.Sex != nil {
		u.Sex = *upd.Sex
	}
	if upd.ActivityLevel != nil {
		u.ActivityLevel = *upd.ActivityLevel
	}
	if upd.Goal != nil {
		u.Goal = *upd.Goal
	}
	if upd.CalorieOverride != nil {
		u.CalorieOverride = *upd.CalorieOverride
	}
	return u
}

func validateProfileUpdate(upd model.ProfileUpdate) error {
	if upd.WeightKg != nil {
		if err := validateFloatRange("weight", *upd.WeightKg, 20, 500); err != nil {
			return err
		}
	}
	if upd.HeightCm != nil {
		if err := validateFloatRange("height", *upd.HeightCm, 50, 300); err != nil {
			return err
		}
	}
	if upd.Age != nil {
		if err := validateIntRange("age", *upd.Age, 10, 120); err != nil {
			return err
		}
	}
	if upd.Sex != nil {
		if _, err := model.ParseSex(string(*upd.Sex)); err != nil {
			return invalid("sex", "%v", err)
		}
	}
	if upd.ActivityLevel != nil {
		if _, err := model.ParseActivityLevel(string(*upd.ActivityLevel)); err != nil {
			return invalid("activity level", "%v", err)
		}
	}
	if upd.Goal != nil {
		if _, err := model.ParseGoal(string(*upd.Goal)); err != nil {
			return invalid("goal", "%v", err)
		}
	}
	if upd.DailyCalorieTarget != nil {
		if err := validateIntRange("calorie target", *upd.DailyCalorieTarget, 800, 10000); err != nil {
			return err
		}
	}
	for field, v := range map[string]*int{"protein target": upd.ProteinTargetG, "carbs target": upd.CarbsTargetG, "fat target": upd.FatTargetG} {
		if v == nil {
			continue
		}
		if err := validateIntRange(field, *v, 0, 2000); err != nil {
			return err
		}
	}
	if upd.ReminderHour != nil {
		if err := validateIntRange("reminder hour", *upd.ReminderHour, 0, 23); err != nil {
			return err
		}
	}
	if upd.Username != nil && len(*upd.Username) > 64 {
		return invalid("username", "must be at most 64 characters")
	}
	return nil
}
