package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"

	"github.com/saadjs/nibbles/internal/model"
	"github.com/saadjs/nibbles/internal/nutrition"
	"github.com/saadjs/nibbles/internal/service"
)

const (
	btnSex      = "onb_sex"
	btnActivity = "onb_activity"
	btnGoal     = "onb_goal"
	btnConfirm  = "onb_confirm"
)

func (b *Bot) StartHandler() tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx, cancel := ctxFor()
		defer cancel()
		sender := c.Sender()
		u, err := b.svc.EnsureUser(ctx, sender.ID, sender.Username, sender.FirstName)
		if err != nil {
			return b.fail(c, "ensure user", err)
		}
		if u.OnboardingComplete {
			return c.Send(fmt.Sprintf("Welcome back, %s!\n\nYour profile is already set up.\nDaily target: %d kcal\n\n"+
				"Send a food photo or description to log a meal.\nUse /profile to view your stats or /help for commands.",
				sender.FirstName, b.svc.CalorieTarget(*u)), b.appMarkup()...)
		}
		b.states.begin(sender.ID)
		return c.Send(fmt.Sprintf("Hi %s! I'm Nibbles, your nutrition tracking assistant.\n\n"+
			"Let's set up your profile to calculate your daily calorie needs.\n\n%s", sender.FirstName, promptWeight))
	}
}

func (b *Bot) CancelHandler() tele.HandlerFunc {
	return func(c tele.Context) error {
		b.states.drop(c.Sender().ID)
		return c.Send("Onboarding cancelled. Use /start to begin again.")
	}
}

func choiceMarkup(unique string, options [][2]string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(options))
	for _, o := range options {
		rows = append(rows, markup.Row(markup.Data(o[0], unique, o[1])))
	}
	markup.Inline(rows...)
	return markup
}

func markupFor(step onboardingStep) *tele.ReplyMarkup {
	switch step {
	case stepSex:
		return choiceMarkup(btnSex, [][2]string{{"Male", string(model.SexMale)}, {"Female", string(model.SexFemale)}})
	case stepActivity:
		opts := make([][2]string, 0, len(model.ActivityLevels))
		for _, a := range model.ActivityLevels {
			opts = append(opts, [2]string{activityLabels[a], string(a)})
		}
		return choiceMarkup(btnActivity, opts)
	case stepGoal:
		opts := make([][2]string, 0, len(model.Goals))
		for _, g := range model.Goals {
			opts = append(opts, [2]string{goalLabels[g], string(g)})
		}
		return choiceMarkup(btnGoal, opts)
	}
	return nil
}

func (b *Bot) OnboardingChoiceHandler() tele.HandlerFunc {
	return func(c tele.Context) error {
		userID := c.Sender().ID
		st, ok := b.states.get(userID)
		if !ok {
			return c.Respond(&tele.CallbackResponse{Text: "No onboarding in progress. Use /start."})
		}
		reply, err := st.advanceChoice(c.Data())
		if err != nil {
			return c.Respond(&tele.CallbackResponse{Text: err.Error()})
		}
		b.states.put(userID, st)
		_ = c.Respond()
		if st.Step == stepConfirm {
			target, err := nutrition.DailyTarget(nutrition.Profile{
				WeightKg: st.Profile.WeightKg, HeightCm: st.Profile.HeightCm, Age: st.Profile.Age,
				Sex: st.Profile.Sex, Activity: st.Profile.Activity, Goal: st.Profile.Goal,
			}, b.svc.Floors())
			if err != nil {
				return b.fail(c, "preview target", err)
			}
			return c.Edit(onboardingSummary(st.Profile, target), choiceMarkup(btnConfirm, [][2]string{{"Yes, save", "yes"}, {"Start over", "no"}}))
		}
		return c.Edit(reply, markupFor(st.Step))
	}
}

func (b *Bot) OnboardingConfirmHandler() tele.HandlerFunc {
	return func(c tele.Context) error {
		userID := c.Sender().ID
		st, ok := b.states.get(userID)
		if !ok || st.Step != stepConfirm {
			return c.Respond(&tele.CallbackResponse{Text: "No onboarding in progress. Use /start."})
		}
		_ = c.Respond()
		if c.Data() != "yes" {
			b.states.begin(userID)
			return c.Edit("Let's start over.\n\n" + promptWeight)
		}
		ctx, cancel := ctxFor()
		defer cancel()
		u, err := b.svc.CompleteOnboarding(ctx, userID, st.Profile)
		if err != nil {
			return b.fail(c, "complete onboarding", err)
		}
		b.states.drop(userID)
		b.log.Info("onboarding complete", zap.Int64("user_id", userID), zap.Int("target", u.DailyCalorieTarget))
		return c.Edit(fmt.Sprintf("Profile saved!\n\nYour daily calorie target is %d kcal.\n\n"+
			"You can now:\n- Send a food photo to log a meal\n- Send a text description of what you ate\n"+
			"- Use /summarize to see your nutrition summary\n- Use /pet to meet your pet\n- Use /help for all commands",
			u.DailyCalorieTarget))
	}
}

// TextHandler continues onboarding when one is in progress and otherwise
// treats the message as a meal description. Unregistered commands land here
// too and only get a hint.
func (b *Bot) TextHandler() tele.HandlerFunc {
	return func(c tele.Context) error {
		if isCommand(c.Text()) {
			return c.Send(msgUnknownCommand)
		}
		userID := c.Sender().ID
		if st, ok := b.states.get(userID); ok {
			reply, err := st.advanceText(c.Text())
			if err != nil {
				return c.Send(err.Error())
			}
			b.states.put(userID, st)
			if m := markupFor(st.Step); m != nil {
				return c.Send(reply, m)
			}
			return c.Send(reply)
		}
		return b.logMeal(c, service.MealInput{Text: c.Text()})
	}
}

func isCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}

func (b *Bot) PhotoHandler() tele.HandlerFunc {
	return func(c tele.Context) error {
		photo := c.Message().Photo
		rc, err := b.bot.File(&photo.File)
		if err != nil {
			return b.fail(c, "download photo", err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return b.fail(c, "read photo", err)
		}
		return b.logMeal(c, service.MealInput{
			Text:      c.Message().Caption,
			Image:     data,
			ImageMIME: "image/jpeg",
			PhotoRef:  photo.FileID,
		})
	}
}

func (b *Bot) logMeal(c tele.Context, in service.MealInput) error {
	return b.record(c, func(ctx context.Context, userID int64) (*service.MealResult, error) {
		return b.svc.LogMeal(ctx, userID, in)
	})
}

// BarcodeHandler logs a packaged food: /barcode <code> [servings].
func (b *Bot) BarcodeHandler() tele.HandlerFunc {
	return func(c tele.Context) error {
		args := c.Args()
		if len(args) == 0 {
			return c.Send("Usage: /barcode <code> [servings]\nExample: /barcode 5000112637922 2")
		}
		servings := 1.0
		if len(args) > 1 {
			v, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return c.Send("Servings must be a number, e.g. /barcode 5000112637922 1.5")
			}
			servings = v
		}
		return b.record(c, func(ctx context.Context, userID int64) (*service.MealResult, error) {
			return b.svc.LogBarcode(ctx, userID, args[0], servings)
		})
	}
}

func (b *Bot) record(c tele.Context, logFn func(ctx context.Context, userID int64) (*service.MealResult, error)) error {
	ctx, cancel := ctxFor()
	defer cancel()
	u, err := b.onboardedUser(ctx, c)
	if u == nil {
		return err
	}
	status, _ := b.bot.Send(c.Recipient(), msgAnalyzing)
	res, err := logFn(ctx, u.ID)
	if status != nil {
		_ = b.bot.Delete(status)
	}
	var verr *service.ValidationError
	switch {
	case errors.Is(err, service.ErrNoAnalyzer):
		return c.Send(msgNoAnalyzer)
	case errors.Is(err, service.ErrNoBarcodeLookup):
		return c.Send(msgNoBarcodes)
	case errors.As(err, &verr):
		return c.Send("Invalid " + verr.Field + ": " + verr.Reason)
	case errors.Is(err, service.ErrAnalysisFailed):
		b.log.Warn("meal analysis failed", zap.Int64("user_id", u.ID), zap.Error(err))
		return c.Send(msgAnalysisError)
	case err != nil:
		return b.fail(c, "log meal", err)
	}
	return c.Send(formatMealLogged(res), b.appMarkup()...)
}

func (b *Bot) ProfileHandler() tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx, cancel := ctxFor()
		defer cancel()
		u, err := b.onboardedUser(ctx, c)
		if u == nil {
			return err
		}
		return c.Send(formatProfile(u, b.svc.CalorieTarget(*u)))
	}
}

func (b *Bot) SetCaloriesHandler() tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx, cancel := ctxFor()
		defer cancel()
		u, err := b.onboardedUser(ctx, c)
		if u == nil {
			return err
		}
		args := c.Args()
		if len(args) == 0 {
			return c.Send("Please provide a valid calorie amount (e.g., /setcalories 2000)")
		}
		if strings.EqualFold(args[0], "reset") {
			u, err = b.svc.ResetCalorieTarget(ctx, u.ID)
			if err != nil {
				return b.fail(c, "reset calories", err)
			}
			return c.Send(fmt.Sprintf("Daily calorie target reset to %d kcal.", u.DailyCalorieTarget))
		}
		kcal, err := strconv.Atoi(args[0])
		if err != nil {
			return c.Send("Please provide a valid calorie amount (e.g., /setcalories 2000)")
		}
		if _, err := b.svc.UpdateProfile(ctx, u.ID, model.ProfileUpdate{DailyCalorieTarget: &kcal}); err != nil {
			return b.fail(c, "set calories", err)
		}
		return c.Send(fmt.Sprintf("Daily calorie target updated to %d kcal.", kcal))
	}
}

func (b *Bot) SetWeightHandler() tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx, cancel := ctxFor()
		defer cancel()
		u, err := b.onboardedUser(ctx, c)
		if u == nil {
			return err
		}
		args := c.Args()
		var kg float64
		if len(args) > 0 {
			kg, err = strconv.ParseFloat(args[0], 64)
		}
		if len(args) == 0 || err != nil {
			return c.Send("Please provide a valid weight (e.g., /setweight 75.5)")
		}
		u, err = b.svc.SetWeight(ctx, u.ID, kg)
		if err != nil {
			return b.fail(c, "set weight", err)
		}
		msg := fmt.Sprintf("Weight updated to %g kg.", kg)
		if !u.CalorieOverride {
			msg += fmt.Sprintf("\nDaily target is now %d kcal.", b.svc.CalorieTarget(*u))
		}
		return c.Send(msg)
	}
}

const summaryParseError = "I couldn't understand that date format.\n\nTry:\n- /summarize (today)\n- /summarize yesterday\n" +
	"- /summarize this week\n- /summarize 2024-11-15\n- /summarize 2024-11-10 to 2024-11-15"

func (b *Bot) SummaryHandler() tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx, cancel := ctxFor()
		defer cancel()
		u, err := b.onboardedUser(ctx, c)
		if u == nil {
			return err
		}
		start, end, err := service.ParseDateRange(strings.Join(c.Args(), " "), b.svc.Now())
		if err != nil {
			return c.Send(summaryParseError)
		}
		sum, err := b.svc.GenerateSummary(ctx, u.ID, start, end)
		if err != nil {
			return b.fail(c, "summary", err)
		}
		if sum.Empty() {
			return c.Send("No food logs found for this period.")
		}
		return c.Send(service.FormatDateRange(start, end) + "\n\n" + sum.Text())
	}
}

func (b *Bot) DeleteHandler() tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx, cancel := ctxFor()
		defer cancel()
		u, err := b.onboardedUser(ctx, c)
		if u == nil {
			return err
		}
		args := c.Args()
		if len(args) == 0 {
			logs, err := b.svc.RecentLogs(ctx, u.ID, service.DefaultRecentLimit)
			if err != nil {
				return b.fail(c, "recent logs", err)
			}
			if len(logs) == 0 {
				return c.Send("You don't have any food logs to delete.")
			}
			return c.Send(formatRecentLogs(logs, b.svc.Location()))
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
		if err != nil {
			return c.Send("Please provide a valid entry ID (e.g., /delete 42)")
		}
		ok, err := b.svc.DeleteLog(ctx, u.ID, id)
		if err != nil {
			return b.fail(c, "delete log", err)
		}
		if !ok {
			return c.Send(fmt.Sprintf("Entry #%d not found or already deleted.", id))
		}
		return c.Send(fmt.Sprintf("Entry #%d deleted successfully.", id))
	}
}

func (b *Bot) PetHandler() tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx, cancel := ctxFor()
		defer cancel()
		u, err := b.onboardedUser(ctx, c)
		if u == nil {
			return err
		}
		if args := c.Args(); len(args) >= 2 && strings.EqualFold(args[0], "name") {
			pet, err := b.svc.RenamePet(ctx, u.ID, strings.Join(args[1:], " "))
			if err != nil {
				return b.fail(c, "rename pet", err)
			}
			return c.Send(fmt.Sprintf("Your pet is now named %q!", pet.Name))
		}
		info, err := b.svc.PetInfo(ctx, u.ID)
		if err != nil {
			return b.fail(c, "pet info", err)
		}
		list, err := b.svc.Achievements(ctx, u.ID)
		if err != nil {
			return b.fail(c, "achievements", err)
		}
		return c.Send(formatPet(info, list))
	}
}

func (b *Bot) AchievementsHandler() tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx, cancel := ctxFor()
		defer cancel()
		u, err := b.onboardedUser(ctx, c)
		if u == nil {
			return err
		}
		list, err := b.svc.Achievements(ctx, u.ID)
		if err != nil {
			return b.fail(c, "achievements", err)
		}
		lines := make([]string, 0, len(list))
		for _, a := range list {
			mark := "🔒"
			if a.Unlocked {
				mark = a.Emoji
			}
			lines = append(lines, fmt.Sprintf("%s %s - %s", mark, a.Name, a.Description))
		}
		return c.Send(formatAchievements(list) + "\n\n" + strings.Join(lines, "\n"))
	}
}

func (b *Bot) NotificationsHandler() tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx, cancel := ctxFor()
		defer cancel()
		u, err := b.onboardedUser(ctx, c)
		if u == nil {
			return err
		}
		upd, reply, ok := parseNotificationArgs(c.Args())
		if !ok {
			return c.Send(reply)
		}
		if upd.Empty() {
			return c.Send(formatNotifications(u, b.cfg.WeeklySummaryHour))
		}
		u, err = b.svc.UpdateProfile(ctx, u.ID, upd)
		if err != nil {
			return b.fail(c, "update notifications", err)
		}
		return c.Send(strings.ReplaceAll(reply, "{hour}", strconv.Itoa(u.ReminderHour)))
	}
}

// parseNotificationArgs turns /notifications arguments into a profile
// update and the confirmation text. ok is false when reply is a usage error.
func parseNotificationArgs(args []string) (upd model.ProfileUpdate, reply string, ok bool) {
	on, off := true, false
	if len(args) == 0 {
		return upd, "", true
	}
	switch strings.ToLower(args[0]) {
	case "on":
		upd.NotificationsEnabled = &on
		return upd, "Daily reminders enabled! You'll be reminded at {hour}:00.", true
	case "off":
		upd.NotificationsEnabled = &off
		return upd, "Daily reminders disabled.", true
	case "time":
		if len(args) < 2 {
			break
		}
		hour, err := strconv.Atoi(args[1])
		if err != nil || hour < 0 || hour > 23 {
			break
		}
		upd.ReminderHour = &hour
		return upd, "Reminder time set to {hour}:00.", true
	case "weeklysummary":
		if len(args) < 2 {
			break
		}
		switch strings.ToLower(args[1]) {
		case "on":
			upd.WeeklySummaryEnabled = &on
			return upd, "Weekly summaries enabled!", true
		case "off":
			upd.WeeklySummaryEnabled = &off
			return upd, "Weekly summaries disabled.", true
		}
	}
	return model.ProfileUpdate{}, "Usage: /notifications [on|off|time <0-23>|weeklysummary on|off]", false
}

func (b *Bot) DashboardHandler() tele.HandlerFunc {
	return func(c tele.Context) error {
		if b.cfg.WebAppURL == "" {
			return c.Send("The dashboard is not configured.")
		}
		return c.Send("Open the dashboard to view your nutrition charts and calendar:", b.appMarkup()...)
	}
}

func (b *Bot) RawLogHandler() tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx, cancel := ctxFor()
		defer cancel()
		u, err := b.onboardedUser(ctx, c)
		if u == nil {
			return err
		}
		phrase := strings.Join(c.Args(), " ")
		if phrase == "" {
			phrase = "this month"
		}
		start, end, err := service.ParseDateRange(phrase, b.svc.Now())
		if err != nil {
			return c.Send(summaryParseError)
		}
		data, err := b.svc.ExportLogs(ctx, u.ID, start, end)
		if err != nil {
			return b.fail(c, "export logs", err)
		}
		doc := &tele.Document{
			File:     tele.FromReader(bytes.NewReader(data)),
			FileName: fmt.Sprintf("nibbles-%s-%s.json", start.Format("20060102"), end.Format("20060102")),
			MIME:     "application/json",
			Caption:  "Here's your raw log data:",
		}
		return c.Send(doc)
	}
}

func (b *Bot) SetMealsHandler() tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx, cancel := ctxFor()
		defer cancel()
		args := c.Args()
		if len(args) != 2 {
			return c.Send("Usage: /setmeals <user_id> <meals>")
		}
		userID, err1 := strconv.ParseInt(args[0], 10, 64)
		meals, err2 := strconv.Atoi(args[1])
		if err1 != nil || err2 != nil {
			return c.Send("Usage: /setmeals <user_id> <meals>")
		}
		pet, err := b.svc.SetPetMeals(ctx, userID, meals)
		if err != nil {
			return b.fail(c, "set pet meals", err)
		}
		return c.Send(fmt.Sprintf("%s now has %d meals (%s).", pet.Name, pet.TotalMealsLogged, service.LevelLabel(service.LevelFor(pet.TotalMealsLogged))))
	}
}

func (b *Bot) FlagsHandler() tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx, cancel := ctxFor()
		defer cancel()
		flags, err := b.svc.Flags(ctx)
		if err != nil {
			return b.fail(c, "list flags", err)
		}
		lines := make([]string, 0, len(flags))
		for _, f := range flags {
			lines = append(lines, fmt.Sprintf("%s: %s", f.Name, onOff(f.Enabled)))
		}
		return c.Send(strings.Join(lines, "\n"))
	}
}

func (b *Bot) FlagHandler() tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx, cancel := ctxFor()
		defer cancel()
		args := c.Args()
		if len(args) != 2 {
			return c.Send("Usage: /flag <name> on|off")
		}
		enabled := strings.EqualFold(args[1], "on")
		if !enabled && !strings.EqualFold(args[1], "off") {
			return c.Send("Usage: /flag <name> on|off")
		}
		if err := b.svc.SetFlag(ctx, args[0], enabled); err != nil {
			return b.fail(c, "set flag", err)
		}
		return c.Send(fmt.Sprintf("%s: %s", args[0], onOff(enabled)))
	}
}

func (b *Bot) SendWeeklyHandler() tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx, cancel := ctxFor()
		defer cancel()
		sent, err := b.svc.SendWeeklySummariesNow(ctx, b)
		if err != nil {
			return b.fail(c, "send weekly summaries", err)
		}
		return c.Send(fmt.Sprintf("Weekly summaries sent: %d", sent))
	}
}
