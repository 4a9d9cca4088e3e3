// Package telegram is the chat front end: onboarding, meal logging and the
// read commands, plus delivery of reminder and summary jobs.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"

	"github.com/saadjs/nibbles/internal/logger"
	"github.com/saadjs/nibbles/internal/model"
	"github.com/saadjs/nibbles/internal/service"
)

const handlerTimeout = 90 * time.Second

type Settings struct {
	Token       string
	AdminUserID int64
	// WebAppURL enables the dashboard button when set.
	WebAppURL         string
	WeeklySummaryHour int
	// Offline skips the getMe call; used in tests.
	Offline bool
}

type Bot struct {
	bot    *tele.Bot
	svc    *service.Service
	log    *zap.Logger
	cfg    Settings
	states *onboardingStates
}

func New(cfg Settings, svc *service.Service, log *zap.Logger) (*Bot, error) {
	if svc == nil {
		return nil, fmt.Errorf("telegram bot requires a service")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: 10 * time.Second},
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	if cfg.WeeklySummaryHour == 0 {
		cfg.WeeklySummaryHour = service.DefaultWeeklySummaryHour
	}
	bot := &Bot{bot: b, svc: svc, log: logger.OrNop(log), cfg: cfg, states: newOnboardingStates()}
	bot.register()
	return bot, nil
}

func (b *Bot) register() {
	b.bot.Handle("/start", b.StartHandler())
	b.bot.Handle("/cancel", b.CancelHandler())
	b.bot.Handle("/help", func(c tele.Context) error { return c.Send(helpText) })
	b.bot.Handle("/profile", b.ProfileHandler())
	b.bot.Handle("/setcalories", b.SetCaloriesHandler())
	b.bot.Handle("/setweight", b.SetWeightHandler())
	b.bot.Handle("/summarize", b.SummaryHandler())
	b.bot.Handle("/barcode", b.BarcodeHandler())
	b.bot.Handle("/delete", b.DeleteHandler())
	b.bot.Handle("/pet", b.PetHandler())
	b.bot.Handle("/achievements", b.AchievementsHandler())
	b.bot.Handle("/notifications", b.NotificationsHandler())
	b.bot.Handle("/dashboard", b.DashboardHandler())
	b.bot.Handle("/rawlog", b.RawLogHandler())

	admin := b.adminOnly
	b.bot.Handle("/setmeals", b.SetMealsHandler(), admin)
	b.bot.Handle("/flags", b.FlagsHandler(), admin)
	b.bot.Handle("/flag", b.FlagHandler(), admin)
	b.bot.Handle("/sendweekly", b.SendWeeklyHandler(), admin)

	b.bot.Handle(&tele.Btn{Unique: btnSex}, b.OnboardingChoiceHandler())
	b.bot.Handle(&tele.Btn{Unique: btnActivity}, b.OnboardingChoiceHandler())
	b.bot.Handle(&tele.Btn{Unique: btnGoal}, b.OnboardingChoiceHandler())
	b.bot.Handle(&tele.Btn{Unique: btnConfirm}, b.OnboardingConfirmHandler())

	b.bot.Handle(tele.OnText, b.TextHandler())
	b.bot.Handle(tele.OnPhoto, b.PhotoHandler())
}

// Start polls for updates until Stop is called.
func (b *Bot) Start() {
	b.log.Info("bot started")
	b.bot.Start()
}

func (b *Bot) Stop() {
	b.bot.Stop()
}

// Notify sends a plain message to a user's private chat.
func (b *Bot) Notify(_ context.Context, userID int64, text string) error {
	if _, err := b.bot.Send(&tele.User{ID: userID}, text); err != nil {
		return fmt.Errorf("send to %d: %w", userID, err)
	}
	return nil
}

func (b *Bot) adminOnly(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if b.cfg.AdminUserID == 0 || c.Sender() == nil || c.Sender().ID != b.cfg.AdminUserID {
			return nil
		}
		return next(c)
	}
}

func ctxFor() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), handlerTimeout)
}

// onboardedUser returns the sender's profile, or nil after telling them to
// run /start.
func (b *Bot) onboardedUser(ctx context.Context, c tele.Context) (*model.User, error) {
	u, err := b.svc.User(ctx, c.Sender().ID)
	if errors.Is(err, service.ErrUserNotFound) || (err == nil && !u.OnboardingComplete) {
		return nil, c.Send(msgOnboardingRequired)
	}
	if err != nil {
		return nil, b.fail(c, "load user", err)
	}
	return u, nil
}

// fail reports err to the user. Validation errors are shown as-is; anything
// else is logged and replaced with a generic message.
func (b *Bot) fail(c tele.Context, op string, err error) error {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		return c.Send(verr.Error())
	}
	b.log.Error(op+" failed", zap.Int64("user_id", c.Sender().ID), zap.Error(err))
	return c.Send(msgUnknownError)
}

func (b *Bot) appMarkup() []any {
	if b.cfg.WebAppURL == "" {
		return nil
	}
	markup := &tele.ReplyMarkup{}
	markup.Inline(markup.Row(tele.Btn{Text: "📱 Open App", WebApp: &tele.WebApp{URL: b.cfg.WebAppURL}}))
	return []any{markup}
}
