package nibbles

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/saadjs/nibbles/internal/api"
	"github.com/saadjs/nibbles/internal/auth"
	"github.com/saadjs/nibbles/internal/scheduler"
	"github.com/saadjs/nibbles/internal/service"
	"github.com/saadjs/nibbles/internal/telegram"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat bot, scheduled jobs and dashboard API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		d, err := openDeps(ctx)
		if err != nil {
			return err
		}
		defer d.Close()
		cfg, log := d.cfg, d.log

		if cfg.TelegramBotToken == "" && !cfg.WebAppEnabled {
			return fmt.Errorf("nothing to serve: set TELEGRAM_BOT_TOKEN or WEBAPP_ENABLED")
		}

		var notifier service.Notifier
		var bot *telegram.Bot
		if cfg.TelegramBotToken != "" {
			bot, err = telegram.New(telegram.Settings{
				Token:             cfg.TelegramBotToken,
				AdminUserID:       cfg.AdminUserID,
				WebAppURL:         cfg.WebAppURL,
				WeeklySummaryHour: cfg.WeeklySummaryHour,
			}, d.svc, log)
			if err != nil {
				return err
			}
			notifier = bot
		} else {
			log.Warn("TELEGRAM_BOT_TOKEN not set; chat bot and reminders disabled")
		}

		sched, err := scheduler.New(scheduler.Options{
			Jobs:             d.svc,
			Notifier:         notifier,
			ReminderSchedule: cfg.ReminderSchedule,
			Location:         d.svc.Location(),
			Logger:           log,
		})
		if err != nil {
			return err
		}

		errCh := make(chan error, 1)
		var srv *http.Server
		if cfg.WebAppEnabled {
			tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
			if err != nil {
				return err
			}
			if cfg.LogLevel != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}
			router, err := api.NewRouter(api.Options{
				Service:        d.svc,
				Tokens:         tokens,
				BotToken:       cfg.TelegramBotToken,
				Limiter:        api.NewRateLimiter(d.redis),
				AllowedOrigins: cfg.AllowedOrigins(),
				Logger:         log,
			})
			if err != nil {
				return err
			}
			srv = &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.WebAppPort),
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				log.Info("api listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- fmt.Errorf("api server: %w", err)
				}
			}()
		}

		sched.Start()
		if bot != nil {
			go bot.Start()
		}

		select {
		case <-ctx.Done():
			log.Info("shutting down")
		case err = <-errCh:
			log.Error("server failed", zap.Error(err))
		}

		if bot != nil {
			bot.Stop()
		}
		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if serr := srv.Shutdown(shutdownCtx); serr != nil {
				log.Warn("api shutdown", zap.Error(serr))
			}
		}
		sched.Stop()
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
