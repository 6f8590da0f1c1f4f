package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/stiapanreha-dev/BotOracle/internal/domain"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken  string `envconfig:"BOT_TOKEN"`
	DBPath    string `envconfig:"DB_PATH" default:"./data/oracle.db"`
	DefaultTZ string `envconfig:"DEFAULT_TZ" default:"Europe/Moscow"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`  // debug|info|warn|error
	HTTPAddr  string `envconfig:"HTTP_ADDR" default:":8080"` // admin triggers, healthz, metrics

	AdminToken string `envconfig:"ADMIN_TOKEN"`

	PlanCron      string `envconfig:"PLAN_CRON" default:"0 6 * * *"`
	DispatchCron  string `envconfig:"DISPATCH_CRON" default:"* * * * *"`
	ExpireCron    string `envconfig:"EXPIRE_CRON" default:"0 1 * * *"`
	DispatchLimit int    `envconfig:"DISPATCH_LIMIT" default:"100"`

	MaxContactsPerDay int `envconfig:"MAX_CONTACTS_PER_DAY" default:"3"`
	NudgeMinHours     int `envconfig:"NUDGE_MIN_HOURS" default:"48"`
	NudgeMaxPerWeek   int `envconfig:"NUDGE_MAX_PER_WEEK" default:"2"`
	FreeQuestions     int `envconfig:"FREE_QUESTIONS" default:"5"`

	SendRatePerSec float64 `envconfig:"SEND_RATE_PER_SEC" default:"25"`
	SendBurst      int     `envconfig:"SEND_BURST" default:"5"`
}

// Load reads an optional .env file, then environment variables into Config.
// Variables already set in the environment win over the file.
func Load(envFiles ...string) (Config, error) {
	var cfg Config
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", f, err)
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks values envconfig cannot.
func (c Config) Validate() error {
	if c.DispatchLimit <= 0 {
		return fmt.Errorf("DISPATCH_LIMIT must be positive, got %d", c.DispatchLimit)
	}
	if c.MaxContactsPerDay <= 0 {
		return fmt.Errorf("MAX_CONTACTS_PER_DAY must be positive, got %d", c.MaxContactsPerDay)
	}
	if c.SendRatePerSec <= 0 || c.SendBurst <= 0 {
		return errors.New("SEND_RATE_PER_SEC and SEND_BURST must be positive")
	}
	if _, err := domain.ValidateTZ(c.DefaultTZ); err != nil {
		return fmt.Errorf("DEFAULT_TZ: %w", err)
	}
	return nil
}

// RequireBot fails when the Telegram token is missing.
func (c Config) RequireBot() error {
	if c.BotToken == "" {
		return errors.New("BOT_TOKEN is required")
	}
	return nil
}

// NudgeMinInterval is NUDGE_MIN_HOURS as a duration.
func (c Config) NudgeMinInterval() time.Duration {
	return time.Duration(c.NudgeMinHours) * time.Hour
}

// Location returns the reference wall clock. Validate has already checked it loads.
func (c Config) Location() *time.Location {
	loc, err := domain.ValidateTZ(c.DefaultTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}
