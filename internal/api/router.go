// Package api serves the read-mostly dashboard used by the Telegram Mini App.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/saadjs/nibbles/internal/auth"
	"github.com/saadjs/nibbles/internal/logger"
	"github.com/saadjs/nibbles/internal/service"
)

type Options struct {
	Service *service.Service
	Tokens  *auth.TokenManager
	// BotToken verifies Mini App init data. Empty disables /auth/telegram.
	BotToken       string
	Limiter        *RateLimiter
	AllowedOrigins []string
	Logger         *zap.Logger
}

type Handler struct {
	svc      *service.Service
	tokens   *auth.TokenManager
	botToken string
	log      *zap.Logger
}

func NewRouter(opts Options) (*gin.Engine, error) {
	if opts.Service == nil || opts.Tokens == nil {
		return nil, fmt.Errorf("api requires a service and a token manager")
	}
	h := &Handler{
		svc:      opts.Service,
		tokens:   opts.Tokens,
		botToken: opts.BotToken,
		log:      logger.OrNop(opts.Logger),
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), AccessLog(h.log))

	config := cors.DefaultConfig()
	if len(opts.AllowedOrigins) > 0 {
		config.AllowOrigins = opts.AllowedOrigins
		config.AllowCredentials = true
	} else {
		config.AllowAllOrigins = true
	}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Telegram-Init-Data"}
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	r.Use(cors.New(config))

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "nibbles"})
		})
		api.POST("/auth/telegram", opts.Limiter.Limit("auth", 10, time.Minute), h.TelegramLogin)

		user := api.Group("")
		user.Use(AuthRequired(h.tokens), opts.Limiter.Limit("api", 120, time.Minute))
		{
			user.GET("/auth/me", h.Me)
			user.GET("/dashboard/today", h.Today)
			user.GET("/calendar", h.Calendar)
			user.GET("/calendar/:day", h.DayDetail)
			user.GET("/charts/calories", h.CalorieChart)
			user.GET("/charts/macros", h.MacroChart)
			user.GET("/charts/trend", h.TrendChart)
			user.GET("/pet", h.Pet)
			user.POST("/pet/rename", h.RenamePet)
			user.GET("/achievements", h.Achievements)
			user.GET("/summary", h.Summary)
			user.GET("/logs/export", h.ExportLogs)
			user.POST("/logs/barcode", h.LogBarcode)
			user.DELETE("/logs/:id", h.DeleteLog)
			user.GET("/user/profile", h.Profile)
			user.PUT("/user/profile", h.UpdateProfile)
			user.POST("/user/profile/reset-macros", h.ResetMacros)
			user.POST("/user/profile/reset-calories", h.ResetCalories)
		}
	}
	return r, nil
}
