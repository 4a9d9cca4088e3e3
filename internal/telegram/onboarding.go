package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/saadjs/nibbles/internal/model"
	"github.com/saadjs/nibbles/internal/service"
)

type onboardingStep int

const (
	stepWeight onboardingStep = iota + 1
	stepHeight
	stepAge
	stepSex
	stepActivity
	stepGoal
	stepConfirm
)

const (
	promptWeight   = "What's your current weight in kg? (e.g., 75)"
	promptHeight   = "Now, what's your height in cm? (e.g., 175)"
	promptAge      = "How old are you? (e.g., 28)"
	promptSex      = "What's your biological sex? (This affects calorie calculations)"
	promptActivity = "What's your typical activity level?"
	promptGoal     = "What's your goal?"
)

type onboardingState struct {
	Step    onboardingStep
	Profile service.Onboarding
}

// onboardingStates tracks users part way through /start.
type onboardingStates struct {
	sync.Mutex
	m map[int64]*onboardingState
}

func newOnboardingStates() *onboardingStates {
	return &onboardingStates{m: map[int64]*onboardingState{}}
}

func (s *onboardingStates) begin(userID int64) {
	s.Lock()
	s.m[userID] = &onboardingState{Step: stepWeight}
	s.Unlock()
}

func (s *onboardingStates) get(userID int64) (onboardingState, bool) {
	s.Lock()
	defer s.Unlock()
	st, ok := s.m[userID]
	if !ok {
		return onboardingState{}, false
	}
	return *st, true
}

func (s *onboardingStates) put(userID int64, st onboardingState) {
	s.Lock()
	s.m[userID] = &st
	s.Unlock()
}

func (s *onboardingStates) drop(userID int64) {
	s.Lock()
	delete(s.m, userID)
	s.Unlock()
}

// advanceText consumes a typed answer for the numeric steps and returns the
// confirmation plus the next prompt.
func (st *onboardingState) advanceText(text string) (string, error) {
	text = strings.TrimSpace(text)
	switch st.Step {
	case stepWeight:
		v, err := strconv.ParseFloat(text, 64)
		if err != nil || v < 20 || v > 500 {
			return "", fmt.Errorf("please enter a weight between 20 and 500 kg")
		}
		st.Profile.WeightKg = v
		st.Step = stepHeight
		return fmt.Sprintf("Weight: %g kg\n\n%s", v, promptHeight), nil
	case stepHeight:
		v, err := strconv.ParseFloat(text, 64)
		if err != nil || v < 50 || v > 300 {
			return "", fmt.Errorf("please enter a height between 50 and 300 cm")
		}
		st.Profile.HeightCm = v
		st.Step = stepAge
		return fmt.Sprintf("Height: %g cm\n\n%s", v, promptAge), nil
	case stepAge:
		v, err := strconv.Atoi(text)
		if err != nil || v < 10 || v > 120 {
			return "", fmt.Errorf("please enter an age between 10 and 120")
		}
		st.Profile.Age = v
		st.Step = stepSex
		return fmt.Sprintf("Age: %d\n\n%s", v, promptSex), nil
	}
	return "", fmt.Errorf("please use the buttons above")
}

// advanceChoice consumes a button press for the enum steps.
func (st *onboardingState) advanceChoice(value string) (string, error) {
	switch st.Step {
	case stepSex:
		v, err := model.ParseSex(value)
		if err != nil {
			return "", err
		}
		st.Profile.Sex = v
		st.Step = stepActivity
		return fmt.Sprintf("Sex: %s\n\n%s", v, promptActivity), nil
	case stepActivity:
		v, err := model.ParseActivityLevel(value)
		if err != nil {
			return "", err
		}
		st.Profile.Activity = v
		st.Step = stepGoal
		return fmt.Sprintf("Activity Level: %s\n\n%s", activityLabels[v], promptGoal), nil
	case stepGoal:
		v, err := model.ParseGoal(value)
		if err != nil {
			return "", err
		}
		st.Profile.Goal = v
		st.Step = stepConfirm
		return "", nil
	}
	return "", fmt.Errorf("unexpected answer")
}

var activityLabels = map[model.ActivityLevel]string{
	model.ActivitySedentary:        "Sedentary (little or no exercise)",
	model.ActivityLightlyActive:    "Lightly active (1-3 days/week)",
	model.ActivityModeratelyActive: "Moderately active (3-5 days/week)",
	model.ActivityVeryActive:       "Very active (6-7 days/week)",
}

var goalLabels = map[model.Goal]string{
	model.GoalLose:        "Lose weight",
	model.GoalMaintain:    "Maintain weight",
	model.GoalGain:        "Gain weight",
	model.GoalGainMuscles: "Gain muscle",
}

func onboardingSummary(p service.Onboarding, target int) string {
	return fmt.Sprintf("Profile Summary:\n\nWeight: %g kg\nHeight: %g cm\nAge: %d\nSex: %s\nActivity: %s\nGoal: %s\n\nRecommended Daily Calories: %d kcal\n\nIs this correct?",
		p.WeightKg, p.HeightCm, p.Age, p.Sex, activityLabels[p.Activity], goalLabels[p.Goal], target)
}
