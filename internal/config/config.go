package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// LogConfig feeds obslog.Init.
type LogConfig struct {
	Level     string `env:"LOG_LEVEL" envDefault:"info"`
	Format    string `env:"LOG_FORMAT" envDefault:"legacy"`
	ToConsole bool   `env:"LOG_TO_CONSOLE" envDefault:"true"`
	ToFile    bool   `env:"LOG_TO_FILE" envDefault:"false"`
	File      string `env:"LOG_FILE" envDefault:"logs/codenames.log"`
	Caller    bool   `env:"LOG_CALLER" envDefault:"false"`
}

type AppConfig struct {
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	RedisURL    string `env:"REDIS_URL,required"`
	DatabaseURL string `env:"DATABASE_URL"`

	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"60m"`
	HintTime   time.Duration `env:"HINT_TIME" envDefault:"60s"`
	GuessTime  time.Duration `env:"GUESS_TIME" envDefault:"90s"`
	MaxRounds  int           `env:"MAX_ROUNDS" envDefault:"0"`

	Team0Cards int      `env:"TEAM0_CARDS" envDefault:"9"`
	Team1Cards int      `env:"TEAM1_CARDS" envDefault:"8"`
	CardsDir   string   `env:"CARDS_DIR"`
	Languages  []string `env:"LANGUAGES" envSeparator:"," envDefault:"en,pl"`

	StoreMaxRetries  int           `env:"STORE_MAX_RETRIES" envDefault:"8"`
	SchedulerWorkers int           `env:"SCHEDULER_WORKERS" envDefault:"10"`
	TimerTimeout     time.Duration `env:"TIMER_TIMEOUT" envDefault:"5s"`

	WebhookURL     string `env:"NOTIFY_WEBHOOK_URL"`
	WebhookRetries int    `env:"NOTIFY_WEBHOOK_RETRIES" envDefault:"3"`

	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"10m"`
	FinishedGrace time.Duration `env:"FINISHED_GRACE" envDefault:"10m"`

	BcryptCost int `env:"BCRYPT_COST" envDefault:"10"`

	Log LogConfig
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.WebhookURL = strings.TrimSpace(cfg.WebhookURL)

	langs := cfg.Languages[:0]
	for _, l := range cfg.Languages {
		if s := strings.ToLower(strings.TrimSpace(l)); s != "" {
			langs = append(langs, s)
		}
	}
	cfg.Languages = langs

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	var errs []error
	if c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.HintTime <= 0 || c.GuessTime <= 0 {
		errs = append(errs, errors.New("HINT_TIME and GUESS_TIME must be positive"))
	}
	if c.Team0Cards <= 0 || c.Team1Cards <= 0 || c.Team0Cards+c.Team1Cards+1 > 25 {
		errs = append(errs, fmt.Errorf("invalid card split team0=%d team1=%d", c.Team0Cards, c.Team1Cards))
	}
	if c.SchedulerWorkers <= 0 {
		errs = append(errs, errors.New("SCHEDULER_WORKERS must be positive"))
	}
	if c.StoreMaxRetries <= 0 {
		errs = append(errs, errors.New("STORE_MAX_RETRIES must be positive"))
	}
	if len(c.Languages) == 0 {
		errs = append(errs, errors.New("LANGUAGES must list at least one language"))
	}
	return errors.Join(errs...)
}
