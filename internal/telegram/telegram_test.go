package telegram

import (
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	"github.com/saadjs/nibbles/internal/model"
	"github.com/saadjs/nibbles/internal/service"
)

func TestOnboardingFlow(t *testing.T) {
	t.Parallel()
	st := onboardingState{Step: stepWeight}

	if _, err := st.advanceText("heavy"); err == nil {
		t.Fatalf("expected non-numeric weight to be rejected")
	}
	if _, err := st.advanceText("700"); err == nil {
		t.Fatalf("expected out of range weight to be rejected")
	}
	reply, err := st.advanceText(" 75 ")
	if err != nil || !strings.HasPrefix(reply, "Weight: 75 kg") || st.Step != stepHeight {
		t.Fatalf("weight step: %q %v step=%d", reply, err, st.Step)
	}
	if _, err := st.advanceText("176"); err != nil {
		t.Fatalf("height step: %v", err)
	}
	if _, err := st.advanceText("25"); err != nil || st.Step != stepSex {
		t.Fatalf("age step: %v step=%d", err, st.Step)
	}
	if _, err := st.advanceText("male"); err == nil {
		t.Fatalf("expected typed answer to be refused on a button step")
	}
	if _, err := st.advanceChoice("robot"); err == nil {
		t.Fatalf("expected unknown sex to be rejected")
	}
	for _, v := range []string{"male", "sedentary", "maintain"} {
		if _, err := st.advanceChoice(v); err != nil {
			t.Fatalf("choice %s: %v", v, err)
		}
	}
	want := service.Onboarding{WeightKg: 75, HeightCm: 176, Age: 25, Sex: model.SexMale, Activity: model.ActivitySedentary, Goal: model.GoalMaintain}
	if st.Step != stepConfirm || st.Profile != want {
		t.Fatalf("unexpected final state %+v", st)
	}
	if s := onboardingSummary(st.Profile, 2076); !strings.Contains(s, "Recommended Daily Calories: 2076 kcal") {
		t.Fatalf("unexpected summary %q", s)
	}
}

func TestOnboardingStates(t *testing.T) {
	t.Parallel()
	states := newOnboardingStates()
	if _, ok := states.get(1); ok {
		t.Fatalf("expected no state")
	}
	states.begin(1)
	st, ok := states.get(1)
	if !ok || st.Step != stepWeight {
		t.Fatalf("unexpected state %+v", st)
	}
	st.Step = stepAge
	if got, _ := states.get(1); got.Step != stepWeight {
		t.Fatalf("get must return a copy")
	}
	states.put(1, st)
	if got, _ := states.get(1); got.Step != stepAge {
		t.Fatalf("put did not store the state")
	}
	states.drop(1)
	if _, ok := states.get(1); ok {
		t.Fatalf("expected state to be dropped")
	}
}

func TestParseNotificationArgs(t *testing.T) {
	t.Parallel()
	upd, _, ok := parseNotificationArgs(nil)
	if !ok || !upd.Empty() {
		t.Fatalf("expected empty update for no args")
	}
	upd, reply, ok := parseNotificationArgs([]string{"time", "7"})
	if !ok || upd.ReminderHour == nil || *upd.ReminderHour != 7 || !strings.Contains(reply, "{hour}") {
		t.Fatalf("unexpected time update %+v %q", upd, reply)
	}
	upd, _, ok = parseNotificationArgs([]string{"weeklysummary", "OFF"})
	if !ok || upd.WeeklySummaryEnabled == nil || *upd.WeeklySummaryEnabled {
		t.Fatalf("unexpected weekly update %+v", upd)
	}
	for _, bad := range [][]string{{"time", "24"}, {"time"}, {"loud"}, {"weeklysummary", "maybe"}} {
		if _, _, ok := parseNotificationArgs(bad); ok {
			t.Fatalf("expected %v to be rejected", bad)
		}
	}
}

type textContext struct {
	tele.Context
	text string
	sent []any
}

func (c *textContext) Text() string { return c.text }
func (c *textContext) Sender() *tele.User { return &tele.User{ID: 7} }
func (c *textContext) Send(what any, _ ...any) error {
	c.sent = append(c.sent, what)
	return nil
}

func TestTextHandlerAnswersUnknownCommands(t *testing.T) {
	t.Parallel()
	b := &Bot{states: newOnboardingStates()}
	for _, text := range []string{"/stats", " /Help@nibbles_bot extra"} {
		c := &textContext{text: text}
		if err := b.TextHandler()(c); err != nil {
			t.Fatalf("%q: %v", text, err)
		}
		if len(c.sent) != 1 || c.sent[0] != msgUnknownCommand {
			t.Fatalf("%q: expected the unknown command hint, got %v", text, c.sent)
		}
	}
	if isCommand("2 eggs / toast") || !isCommand("/log") {
		t.Fatalf("unexpected command detection")
	}
}

func TestFormatMealLogged(t *testing.T) {
	t.Parallel()
	res := &service.MealResult{
		Log: &model.FoodLog{
			ID:       12,
			Analysis: model.FoodAnalysis{Items: []model.FoodItem{{Name: "Eggs"}, {Name: "Toast"}}},
			Totals:   model.NutritionTotals{Calories: 450, ProteinG: 25.5},
		},
		Progress:      &service.Progress{Consumed: 2300, Target: 2000, Remaining: -300},
		LowConfidence: true,
		Pet: &service.FeedResult{
			Info: service.PetInfo{
				Pet:             model.PetStatus{Name: "Nibbles", CurrentStreak: 3},
				Mood:            model.MoodStuffed,
				MoodLabel:       "Stuffed",
				LevelLabel:      "Baby",
				CaloriesPercent: 115,
			},
			Evolved:         true,
			NewAchievements: []service.AchievementDef{{Name: "Hatched", Emoji: "🐣"}},
		},
	}
	out := formatMealLogged(res)
	for _, want := range []string{
		"Logged: Eggs, Toast",
		"~450 kcal | 25.5g protein",
		"Today: 2300/2000 kcal (300 over target)",
		"(estimate has higher uncertainty)",
		"/delete 12",
		"Streak: 3d",
		"evolved to Baby",
		"New Achievement: 🐣 Hatched!",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestProgressBar(t *testing.T) {
	t.Parallel()
	cases := map[int]string{0: "░░░░░░░░░░", 55: "█████░░░░░", 150: "██████████"}
	for pct, want := range cases {
		if got := progressBar(pct); got != want {
			t.Fatalf("progressBar(%d) = %q, want %q", pct, got, want)
		}
	}
}

func TestFormatAchievements(t *testing.T) {
	t.Parallel()
	list := []service.AchievementStatus{
		{AchievementDef: service.AchievementDef{Name: "First Bite", Emoji: "🍽️"}, Unlocked: true},
		{AchievementDef: service.AchievementDef{Name: "Week Warrior", Emoji: "🔥"}},
	}
	if got := formatAchievements(list); !strings.HasPrefix(got, "🏆 Achievements (1/2):") || strings.Contains(got, "Week Warrior") {
		t.Fatalf("unexpected achievements text %q", got)
	}
	if got := formatAchievements(list[1:]); got != "🏆 Achievements: none yet" {
		t.Fatalf("unexpected empty text %q", got)
	}
}
