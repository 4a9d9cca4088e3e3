package telegram

import (
	"fmt"
	"strings"
	"time"

	"github.com/saadjs/nibbles/internal/model"
	"github.com/saadjs/nibbles/internal/service"
)

const (
	msgOnboardingRequired = "Please set up your profile first with /start"
	msgAnalyzing          = "Analyzing..."
	msgAnalysisError      = "Sorry, I couldn't analyze this food. Please try again."
	msgUnknownError       = "An error occurred. Please try again later."
	msgNoAnalyzer         = "Food analysis is not configured on this server."
	msgNoBarcodes         = "Barcode lookup is not configured on this server."
	msgUnknownCommand     = "I don't know that command. Send /help to see what I can do."
)

var moodEmoji = map[model.PetMood]string{
	model.MoodStuffed:  "🫃",
	model.MoodEcstatic: "🌟",
	model.MoodHappy:    "😊",
	model.MoodHungry:   "😕",
	model.MoodStarving: "😢",
}

func formatMealLogged(res *service.MealResult) string {
	l := res.Log
	var b strings.Builder
	fmt.Fprintf(&b, "Logged: %s\n~%d kcal | %gg protein", strings.Join(l.FoodNames(), ", "), l.Totals.Calories, l.Totals.ProteinG)
	if p := res.Progress; p != nil {
		fmt.Fprintf(&b, "\n\nToday: %d/%d kcal", p.Consumed, p.Target)
		if p.Over() {
			fmt.Fprintf(&b, " (%d over target)", -p.Remaining)
		} else {
			fmt.Fprintf(&b, " (%d remaining)", p.Remaining)
		}
	}
	if res.LowConfidence {
		b.WriteString("\n(estimate has higher uncertainty)")
	}
	fmt.Fprintf(&b, "\n\n(Entry #%d - use /delete %d to remove)", l.ID, l.ID)

	if res.Pet != nil {
		b.WriteString("\n\n" + formatPetLine(res.Pet.Info))
		if res.Pet.Evolved {
			fmt.Fprintf(&b, "\n\n🎉 %s evolved to %s!", res.Pet.Info.Pet.Name, res.Pet.Info.LevelLabel)
		}
		for _, a := range res.Pet.NewAchievements {
			fmt.Fprintf(&b, "\n\n🏆 New Achievement: %s %s!", a.Emoji, a.Name)
		}
	}
	return b.String()
}

func formatPetLine(info service.PetInfo) string {
	streak := ""
	if info.Pet.CurrentStreak > 0 {
		streak = fmt.Sprintf(" | Streak: %dd 🔥", info.Pet.CurrentStreak)
	}
	return fmt.Sprintf("🐾 %s is %s %s! (%d%%)\n%s%s",
		info.Pet.Name, moodEmoji[info.Mood], info.MoodLabel, info.CaloriesPercent, info.LevelLabel, streak)
}

func progressBar(percent int) string {
	filled := percent / 10
	if filled > 10 {
		filled = 10
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", 10-filled)
}

func formatPet(info *service.PetInfo, achievements []service.AchievementStatus) string {
	pet := info.Pet
	streak := fmt.Sprintf("%d days", pet.CurrentStreak)
	if pet.CurrentStreak > 0 {
		streak += " 🔥"
	}
	if pet.BestStreak > pet.CurrentStreak {
		streak += fmt.Sprintf(" (Best: %d)", pet.BestStreak)
	}
	warning := ""
	if info.CaloriesPercent > 120 {
		warning = " ⚠️ Overeating!"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🐾 Meet %s!\n\n%s\n\n", pet.Name, info.ASCIIArt)
	fmt.Fprintf(&b, "%s Status: %s\n", moodEmoji[info.Mood], info.MoodLabel)
	fmt.Fprintf(&b, "📊 Today: %d/%d kcal (%d%%)%s\n    [%s]\n", info.CaloriesToday, info.CaloriesTarget, info.CaloriesPercent, warning, progressBar(info.CaloriesPercent))
	fmt.Fprintf(&b, "📈 Level: %s (%d meals)", info.LevelLabel, pet.TotalMealsLogged)
	if info.NextLevel != "" {
		fmt.Fprintf(&b, ", %d to %s", info.MealsToNextLevel, service.LevelLabel(info.NextLevel))
	}
	fmt.Fprintf(&b, "\n🔥 Streak: %s\n\n", streak)
	b.WriteString(formatAchievements(achievements))
	b.WriteString("\n\n💡 Tip: Use /pet name <name> to rename your pet")
	return b.String()
}

func formatAchievements(list []service.AchievementStatus) string {
	var unlocked []string
	for _, a := range list {
		if a.Unlocked {
			unlocked = append(unlocked, a.Emoji+" "+a.Name)
		}
	}
	if len(unlocked) == 0 {
		return "🏆 Achievements: none yet"
	}
	return fmt.Sprintf("🏆 Achievements (%d/%d):\n%s", len(unlocked), len(list), strings.Join(unlocked, "\n"))
}

func formatProfile(u *model.User, target int) string {
	note := ""
	if u.CalorieOverride {
		note = "\n(manually set)"
	}
	return fmt.Sprintf("Your Profile:\n\nWeight: %g kg\nHeight: %g cm\nAge: %d\nSex: %s\nActivity: %s\nGoal: %s\n\nDaily Target: %d kcal%s",
		u.WeightKg, u.HeightCm, u.Age, u.Sex, u.ActivityLevel, u.Goal, target, note)
}

func formatRecentLogs(logs []model.FoodLog, loc *time.Location) string {
	lines := make([]string, 0, len(logs))
	for _, l := range logs {
		lines = append(lines, fmt.Sprintf("#%d - %s: %s (%d kcal)", l.ID, l.LoggedAt.In(loc).Format("Jan 02 15:04"), strings.Join(l.FoodNames(), ", "), l.Totals.Calories))
	}
	return "Recent entries:\n\n" + strings.Join(lines, "\n") + "\n\nReply with /delete <id> to delete an entry."
}

func formatNotifications(u *model.User, weeklyHour int) string {
	return fmt.Sprintf("Notification Settings:\n\nDaily Reminders: %s\nReminder time: %d:00\n\nWeekly Summary: %s\n(Sent every Monday at %d:00)\n\n"+
		"Commands:\n/notifications on - Enable daily reminders\n/notifications off - Disable daily reminders\n"+
		"/notifications time <0-23> - Set reminder hour\n/notifications weeklysummary on - Enable weekly summaries\n"+
		"/notifications weeklysummary off - Disable weekly summaries",
		onOff(u.NotificationsEnabled), u.ReminderHour, onOff(u.WeeklySummaryEnabled), weeklyHour)
}

func onOff(v bool) string {
	if v {
		return "Enabled"
	}
	return "Disabled"
}

const helpText = `Nibbles - your nutrition tracking assistant

LOGGING FOOD:
- Send a photo of your meal
- Send a text description (e.g. "grilled chicken with rice")
- Send a photo with a caption
- /barcode <code> [servings] for packaged food

COMMANDS:
/start - Set up your profile
/profile - View your profile and targets
/setcalories <number> - Override your daily calorie target
/setweight <number> - Update your weight in kg
/summarize [date/range] - Nutrition summary (today, yesterday, this week, 2024-11-15, 2024-11-10 to 2024-11-15)
/delete [id] - Delete a food entry
/pet - See your pet
/pet name <name> - Rename your pet
/achievements - Your achievements
/notifications - Manage reminders
/dashboard - Open the nutrition dashboard
/rawlog [range] - Export logs as JSON
/help - Show this message`
