package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deadline-bot/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", " token ")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "token", cfg.TelegramToken)
	assert.Equal(t, config.StoreSQLite, cfg.StoreDriver)
	assert.Equal(t, "deadline_bot.db", cfg.DatabaseURL)
	assert.Equal(t, config.QueueRedis, cfg.QueueDriver)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.ConnectionURL)
	assert.Equal(t, 3, cfg.Redis.RetryAttempts)
	assert.Equal(t, "reminders", cfg.RemindersQueue)
	assert.Equal(t, "expired", cfg.ExpiredQueue)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 24*time.Hour, cfg.GracePeriod)
	assert.Equal(t, 3*time.Second, cfg.PopTimeout)
	assert.Equal(t, 1, cfg.DispatchWorkers)
	assert.NoError(t, cfg.RequireToken())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Mongo")
	t.Setenv("QUEUE_DRIVER", "memory")
	t.Setenv("POLL_INTERVAL", "5s")
	t.Setenv("GRACE_PERIOD", "12h")
	t.Setenv("REDIS_URL", "redis://cache:6380/2")
	t.Setenv("TIMEZONE", "Europe/Moscow")
	t.Setenv("DIGEST_TIME", " 09:00 ")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.StoreMongo, cfg.StoreDriver)
	assert.Equal(t, config.QueueMemory, cfg.QueueDriver)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 12*time.Hour, cfg.GracePeriod)
	assert.Equal(t, "redis://cache:6380/2", cfg.Redis.ConnectionURL)
	assert.Equal(t, "09:00", cfg.DigestTime)
	assert.ErrorIs(t, cfg.RequireToken(), config.ErrMissingToken)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Moscow", loc.String())
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string][2]string{
		"store driver":  {"STORE_DRIVER", "postgres"},
		"queue driver":  {"QUEUE_DRIVER", "kafka"},
		"poll interval": {"POLL_INTERVAL", "0s"},
		"sub-second":    {"POLL_INTERVAL", "200ms"},
		"fractional":    {"POLL_INTERVAL", "1500ms"},
		"workers":       {"DISPATCH_WORKERS", "0"},
		"same queues":   {"QUEUE_EXPIRED", "reminders"},
		"timezone":      {"TIMEZONE", "Mars/Olympus"},
		"duration":      {"GRACE_PERIOD", "forever"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}
