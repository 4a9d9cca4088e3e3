package nibbles

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/saadjs/nibbles/internal/app"
	"github.com/saadjs/nibbles/internal/config"
	"github.com/saadjs/nibbles/internal/lock"
	"github.com/saadjs/nibbles/internal/logger"
	"github.com/saadjs/nibbles/internal/nutrition"
	"github.com/saadjs/nibbles/internal/provider/openai"
	"github.com/saadjs/nibbles/internal/provider/openfoodfacts"
	"github.com/saadjs/nibbles/internal/service"
	"github.com/saadjs/nibbles/internal/store"
)

const redisPingTimeout = 5 * time.Second

// deps is everything a command needs, built once from config.
type deps struct {
	cfg   *config.Config
	log   *zap.Logger
	store store.Store
	redis *redis.Client
	svc   *service.Service
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.StorageDriver = store.DriverSQLite
		cfg.DatabasePath = dbPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openDeps(ctx context.Context) (*deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, store.OpenOptions{
		Driver:      cfg.StorageDriver,
		SQLitePath:  cfg.DatabasePath,
		PostgresDSN: cfg.PostgresDSN,
	})
	if err != nil {
		return nil, err
	}
	d := &deps{cfg: cfg, log: log, store: st}

	opts := service.Options{
		Store:  st,
		Logger: log,
		Floors: nutrition.Floors{
			Female: cfg.MinCaloriesFemale,
			Male:   cfg.MinCaloriesMale,
		},
		DefaultCalorieTarget: cfg.DefaultCalorieTarget,
		ConfidenceWarning:    cfg.ConfidenceWarningThreshold,
		CommonFoodsLimit:     cfg.CommonFoodsLimit,
		DefaultReminderHour:  cfg.DefaultReminderHour,
		WeeklySummaryHour:    cfg.WeeklySummaryHour,
		Location:             loc,
		Barcodes:             &openfoodfacts.Client{BaseURL: cfg.OpenFoodFactsBaseURL},
	}
	if cfg.RedisAddr != "" {
		d.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		err := d.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		opts.Locker = lock.NewRedisLocker(d.redis, "")
	}
	if cfg.OpenAIAPIKey != "" {
		ai := &openai.Client{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.OpenAIModel,
			MaxTokens:   cfg.OpenAIMaxTokens,
			Temperature: cfg.OpenAITemperature,
		}
		opts.Analyzer = ai
		opts.ReminderWriter = ai
	}

	svc, err := service.New(opts)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.svc = svc
	return d, nil
}

func (d *deps) Close() {
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
	_ = d.log.Sync()
}

func withService(cmd *cobra.Command, run func(ctx context.Context, svc *service.Service) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	d, err := openDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()
	return run(ctx, d.svc)
}

func resolveDBPath(cfg *config.Config) (string, error) {
	if cfg.DatabasePath != "" {
		return cfg.DatabasePath, nil
	}
	return app.DefaultDBPath()
}

func parseInt64Arg(name, value string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, value)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be > 0", name)
	}
	return v, nil
}

func parseOnOff(name, value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid %s %q (expected on or off)", name, value)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func rangeArg(args []string, fallback string) string {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return fallback
	}
	return text
}
