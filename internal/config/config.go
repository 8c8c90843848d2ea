package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"deadline-bot/internal/queue"
)

const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"

	QueueRedis  = "redis"
	QueueMemory = "memory"
)

var ErrMissingToken = errors.New("TELEGRAM_TOKEN is required")

// Config keeps runtime settings for the bot, the poller and the dispatchers.
type Config struct {
	TelegramToken string `env:"TELEGRAM_TOKEN"`

	StoreDriver   string `env:"STORE_DRIVER" envDefault:"sqlite"`
	DatabaseURL   string `env:"DATABASE_URL" envDefault:"deadline_bot.db"`
	MongoURL      string `env:"MONGODB_URL" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGODB_DATABASE" envDefault:"deadline_bot"`

	QueueDriver    string            `env:"QUEUE_DRIVER" envDefault:"redis"`
	Redis          queue.RedisConfig `envPrefix:""`
	RemindersQueue string            `env:"QUEUE_REMINDERS" envDefault:"reminders"`
	ExpiredQueue   string            `env:"QUEUE_EXPIRED" envDefault:"expired"`

	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	GracePeriod     time.Duration `env:"GRACE_PERIOD" envDefault:"24h"`
	PopTimeout      time.Duration `env:"POP_TIMEOUT" envDefault:"3s"`
	DispatchWorkers int           `env:"DISPATCH_WORKERS" envDefault:"1"`
	SendRate        float64       `env:"SEND_RATE" envDefault:"25"`

	Timezone   string `env:"TIMEZONE" envDefault:"Local"`
	DigestTime string `env:"DIGEST_TIME"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"true"`
}

// Load reads configuration from the environment, after an optional .env file.
func Load() (Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.TelegramToken = strings.TrimSpace(cfg.TelegramToken)
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.QueueDriver = strings.ToLower(strings.TrimSpace(cfg.QueueDriver))
	cfg.DigestTime = strings.TrimSpace(cfg.DigestTime)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks values that env parsing cannot.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreSQLite, StoreMongo:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.QueueDriver {
	case QueueRedis, QueueMemory:
	default:
		return fmt.Errorf("unknown QUEUE_DRIVER %q", c.QueueDriver)
	}
	if c.PollInterval <= 0 || c.GracePeriod <= 0 || c.PopTimeout <= 0 {
		return fmt.Errorf("POLL_INTERVAL, GRACE_PERIOD and POP_TIMEOUT must be positive")
	}
	// The poll ticker runs on cron "@every", which counts whole seconds.
	if c.PollInterval < time.Second || c.PollInterval%time.Second != 0 {
		return fmt.Errorf("POLL_INTERVAL must be a whole number of seconds, got %s", c.PollInterval)
	}
	if c.DispatchWorkers < 1 {
		return fmt.Errorf("DISPATCH_WORKERS must be at least 1")
	}
	if c.SendRate <= 0 {
		return fmt.Errorf("SEND_RATE must be positive")
	}
	if c.RemindersQueue == "" || c.ExpiredQueue == "" || c.RemindersQueue == c.ExpiredQueue {
		return fmt.Errorf("QUEUE_REMINDERS and QUEUE_EXPIRED must be distinct and non-empty")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// RequireToken is used by commands that talk to Telegram.
func (c Config) RequireToken() error {
	if c.TelegramToken == "" {
		return ErrMissingToken
	}
	return nil
}

// Location resolves TIMEZONE, used to parse and print dates for users.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}
