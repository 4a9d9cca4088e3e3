package model

import (
	"fmt"
	"strings"
)

type Sex string

const (
	SexMale   Sex = "male"
	SexFemale Sex = "female"
)

func ParseSex(value string) (Sex, error) {
	switch s := Sex(normalizeEnum(value)); s {
	case SexMale, SexFemale:
		return s, nil
	}
	return "", fmt.Errorf("unknown sex %q (expected male or female)", value)
}

type ActivityLevel string

const (
	ActivitySedentary        ActivityLevel = "sedentary"
	ActivityLightlyActive    ActivityLevel = "lightly_active"
	ActivityModeratelyActive ActivityLevel = "moderately_active"
	ActivityVeryActive       ActivityLevel = "very_active"
)

var ActivityLevels = []ActivityLevel{
	ActivitySedentary,
	ActivityLightlyActive,
	ActivityModeratelyActive,
	ActivityVeryActive,
}

func ParseActivityLevel(value string) (ActivityLevel, error) {
	v := ActivityLevel(normalizeEnum(value))
	for _, level := range ActivityLevels {
		if v == level {
			return level, nil
		}
	}
	return "", fmt.Errorf("unknown activity level %q", value)
}

type Goal string

const (
	GoalLose        Goal = "lose"
	GoalMaintain    Goal = "maintain"
	GoalGain        Goal = "gain"
	GoalGainMuscles Goal = "gain_muscles"
)

var Goals = []Goal{GoalLose, GoalMaintain, GoalGain, GoalGainMuscles}

func ParseGoal(value string) (Goal, error) {
	v := Goal(normalizeEnum(value))
	for _, g := range Goals {
		if v == g {
			return g, nil
		}
	}
	return "", fmt.Errorf("unknown goal %q (expected lose, maintain, gain or gain_muscles)", value)
}

type InputType string

const (
	InputPhoto     InputType = "photo"
	InputText      InputType = "text"
	InputPhotoText InputType = "photo_text"
	InputVoice     InputType = "voice"
)

func ParseInputType(value string) (InputType, error) {
	switch t := InputType(normalizeEnum(value)); t {
	case InputPhoto, InputText, InputPhotoText, InputVoice:
		return t, nil
	}
	return "", fmt.Errorf("unknown input type %q", value)
}

// PetLevel values are ordered; Levels lists them from first to last stage.
type PetLevel string

const (
	LevelEgg   PetLevel = "egg"
	LevelBaby  PetLevel = "baby"
	LevelTeen  PetLevel = "teen"
	LevelAdult PetLevel = "adult"
	LevelElder PetLevel = "elder"
)

var Levels = []PetLevel{LevelEgg, LevelBaby, LevelTeen, LevelAdult, LevelElder}

func ParsePetLevel(value string) (PetLevel, error) {
	v := PetLevel(normalizeEnum(value))
	for _, l := range Levels {
		if v == l {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown pet level %q", value)
}

type PetMood string

const (
	MoodStarving PetMood = "starving"
	MoodHungry   PetMood = "hungry"
	MoodHappy    PetMood = "happy"
	MoodEcstatic PetMood = "ecstatic"
	MoodStuffed  PetMood = "stuffed"
)

func ParsePetMood(value string) (PetMood, error) {
	switch m := PetMood(normalizeEnum(value)); m {
	case MoodStarving, MoodHungry, MoodHappy, MoodEcstatic, MoodStuffed:
		return m, nil
	}
	return "", fmt.Errorf("unknown pet mood %q", value)
}

func normalizeEnum(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	return strings.NewReplacer("-", "_", " ", "_").Replace(v)
}
