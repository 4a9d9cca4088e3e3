package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StorageDriver != "sqlite" || cfg.MinCaloriesFemale != 1200 || cfg.MinCaloriesMale != 1500 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.CommonFoodsLimit != 5 || cfg.ConfidenceWarningThreshold != 0.7 || cfg.WeeklySummaryHour != 10 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.JWTTTL != 24*time.Hour {
		t.Fatalf("expected 24h token ttl, got %s", cfg.JWTTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.env")
	content := "OPENAI_MODEL=gpt-4o-mini\nCOMMON_FOODS_LIMIT=3\nWEBAPP_ALLOWED_ORIGINS=https://a.example, https://b.example\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("COMMON_FOODS_LIMIT", "7")
	t.Setenv("JWT_TTL", "90m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OpenAIModel != "gpt-4o-mini" {
		t.Fatalf("expected model from file, got %q", cfg.OpenAIModel)
	}
	if cfg.CommonFoodsLimit != 7 {
		t.Fatalf("expected env to override file, got %d", cfg.CommonFoodsLimit)
	}
	if cfg.JWTTTL != 90*time.Minute {
		t.Fatalf("expected 90m ttl, got %s", cfg.JWTTTL)
	}
	origins := cfg.AllowedOrigins()
	if len(origins) != 2 || origins[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %v", origins)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() Config {
		return Config{
			StorageDriver:              "sqlite",
			MinCaloriesFemale:          1200,
			MinCaloriesMale:            1500,
			DefaultCalorieTarget:       2000,
			ConfidenceWarningThreshold: 0.7,
			CommonFoodsLimit:           5,
			DefaultReminderHour:        20,
			WeeklySummaryHour:          10,
		}
	}
	cases := map[string]func(c *Config){
		"unknown driver":        func(c *Config) { c.StorageDriver = "mysql" },
		"postgres without dsn":  func(c *Config) { c.StorageDriver = "postgres" },
		"zero floor":            func(c *Config) { c.MinCaloriesMale = 0 },
		"threshold above one":   func(c *Config) { c.ConfidenceWarningThreshold = 1.5 },
		"reminder hour":         func(c *Config) { c.DefaultReminderHour = 24 },
		"webapp without secret": func(c *Config) { c.WebAppEnabled = true; c.WebAppPort = 8080 },
		"bad timezone":          func(c *Config) { c.Timezone = "Mars/Olympus" },
	}
	for name, mutate := range cases {
		c := base()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	ok := base()
	if err := ok.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}
}
