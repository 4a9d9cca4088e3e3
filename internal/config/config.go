package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	AdminUserID      int64  `mapstructure:"ADMIN_USER_ID"`

	OpenAIAPIKey      string  `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL     string  `mapstructure:"OPENAI_BASE_URL"`
	OpenAIModel       string  `mapstructure:"OPENAI_MODEL"`
	OpenAIMaxTokens   int     `mapstructure:"OPENAI_MAX_TOKENS"`
	OpenAITemperature float64 `mapstructure:"OPENAI_TEMPERATURE"`

	OpenFoodFactsBaseURL string `mapstructure:"OPENFOODFACTS_BASE_URL"`

	StorageDriver string `mapstructure:"STORAGE_DRIVER"`
	DatabasePath  string `mapstructure:"DATABASE_PATH"`
	PostgresDSN   string `mapstructure:"POSTGRES_DSN"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	MinCaloriesFemale          int     `mapstructure:"MIN_CALORIES_FEMALE"`
	MinCaloriesMale            int     `mapstructure:"MIN_CALORIES_MALE"`
	DefaultCalorieTarget       int     `mapstructure:"DEFAULT_CALORIE_TARGET"`
	ConfidenceWarningThreshold float64 `mapstructure:"CONFIDENCE_WARNING_THRESHOLD"`
	CommonFoodsLimit           int     `mapstructure:"COMMON_FOODS_LIMIT"`

	DefaultReminderHour int    `mapstructure:"DEFAULT_REMINDER_HOUR"`
	ReminderSchedule    string `mapstructure:"REMINDER_SCHEDULE"`
	WeeklySummaryHour   int    `mapstructure:"WEEKLY_SUMMARY_HOUR"`
	Timezone            string `mapstructure:"TIMEZONE"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	WebAppEnabled        bool          `mapstructure:"WEBAPP_ENABLED"`
	WebAppURL            string        `mapstructure:"WEBAPP_URL"`
	WebAppPort           int           `mapstructure:"WEBAPP_PORT"`
	WebAppAllowedOrigins string        `mapstructure:"WEBAPP_ALLOWED_ORIGINS"`
	JWTSecret            string        `mapstructure:"JWT_SECRET"`
	JWTTTL               time.Duration `mapstructure:"JWT_TTL"`
}

var defaults = map[string]any{
	"TELEGRAM_BOT_TOKEN": "",
	"ADMIN_USER_ID":      0,

	"OPENAI_API_KEY":     "",
	"OPENAI_BASE_URL":    "https://api.openai.com",
	"OPENAI_MODEL":       "gpt-4o",
	"OPENAI_MAX_TOKENS":  1000,
	"OPENAI_TEMPERATURE": 0.3,

	"OPENFOODFACTS_BASE_URL": "https://world.openfoodfacts.org",

	"STORAGE_DRIVER": "sqlite",
	"DATABASE_PATH":  "",
	"POSTGRES_DSN":   "",

	"REDIS_ADDR":     "",
	"REDIS_PASSWORD": "",
	"REDIS_DB":       0,

	"MIN_CALORIES_FEMALE":          1200,
	"MIN_CALORIES_MALE":            1500,
	"DEFAULT_CALORIE_TARGET":       2000,
	"CONFIDENCE_WARNING_THRESHOLD": 0.7,
	"COMMON_FOODS_LIMIT":           5,

	"DEFAULT_REMINDER_HOUR": 20,
	"REMINDER_SCHEDULE":     "0 * * * *",
	"WEEKLY_SUMMARY_HOUR":   10,
	"TIMEZONE":              "Local",

	"LOG_LEVEL":  "info",
	"LOG_FORMAT": "json",

	"WEBAPP_ENABLED":         false,
	"WEBAPP_URL":             "",
	"WEBAPP_PORT":            8080,
	"WEBAPP_ALLOWED_ORIGINS": "",
	"JWT_SECRET":             "",
	"JWT_TTL":                "24h",
}

// Load reads configuration from the process environment, an optional .env
// file in the working directory and an optional env-format config file.
// Environment variables win over file values; unset keys take defaults.
// An empty path looks for app.env in the working directory.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("env")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("app")
	}
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(path != "" && errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("read config %s: %w", filepath.Clean(path), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.OpenAIBaseURL = strings.TrimRight(strings.TrimSpace(c.OpenAIBaseURL), "/")
	c.OpenFoodFactsBaseURL = strings.TrimRight(strings.TrimSpace(c.OpenFoodFactsBaseURL), "/")
	c.Timezone = strings.TrimSpace(c.Timezone)
}

func (c *Config) Validate() error {
	switch c.StorageDriver {
	case "sqlite":
	case "postgres":
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("POSTGRES_DSN is required when STORAGE_DRIVER is postgres")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q (expected sqlite or postgres)", c.StorageDriver)
	}
	if c.MinCaloriesFemale <= 0 || c.MinCaloriesMale <= 0 {
		return fmt.Errorf("calorie floors must be > 0")
	}
	if c.DefaultCalorieTarget <= 0 {
		return fmt.Errorf("DEFAULT_CALORIE_TARGET must be > 0")
	}
	if c.ConfidenceWarningThreshold < 0 || c.ConfidenceWarningThreshold > 1 {
		return fmt.Errorf("CONFIDENCE_WARNING_THRESHOLD must be between 0 and 1")
	}
	if c.CommonFoodsLimit <= 0 {
		return fmt.Errorf("COMMON_FOODS_LIMIT must be > 0")
	}
	if c.DefaultReminderHour < 0 || c.DefaultReminderHour > 23 {
		return fmt.Errorf("DEFAULT_REMINDER_HOUR must be between 0 and 23")
	}
	if c.WeeklySummaryHour < 0 || c.WeeklySummaryHour > 23 {
		return fmt.Errorf("WEEKLY_SUMMARY_HOUR must be between 0 and 23")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.WebAppEnabled {
		if strings.TrimSpace(c.JWTSecret) == "" {
			return fmt.Errorf("JWT_SECRET is required when WEBAPP_ENABLED is true")
		}
		if c.WebAppPort <= 0 || c.WebAppPort > 65535 {
			return fmt.Errorf("WEBAPP_PORT must be a valid port")
		}
	}
	return nil
}

// Location resolves TIMEZONE; calendar days are computed in this zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.WebAppAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
