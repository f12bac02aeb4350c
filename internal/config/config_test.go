package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, StoreSQLite, cfg.StoreDriver)
	assert.Equal(t, "matchengine.db", cfg.SQLitePath)
	assert.Equal(t, 24*time.Hour, cfg.MatchCacheTTL)
	assert.Equal(t, "matches.created", cfg.NATSSubject)
	assert.Equal(t, 3, cfg.EnsureMatchMaxAttempts)
	assert.Equal(t, 25*time.Millisecond, cfg.EngineConfig().InitialBackoff)
	assert.Equal(t, "default", cfg.AsynqQueue)
	assert.Equal(t, 5, cfg.AsynqConcurrency)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://match:secret@db:5432/match?sslmode=disable")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("MATCH_CACHE_TTL", "90m")
	t.Setenv("ENSURE_MATCH_MAX_ATTEMPTS", "5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com,")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, StorePostgres, cfg.StoreDriver)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 90*time.Minute, cfg.MatchCacheTTL)
	assert.Equal(t, 5, cfg.EngineConfig().MaxAttempts)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins())
	assert.False(t, cfg.IsDevelopment())
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matchengine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store_driver: memory
http_addr: ":9090"
nats_url: nats://file:4222
nats_subject: file.subject
`), 0o600))
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("NATS_SUBJECT", "env.subject")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "nats://file:4222", cfg.NATSURL)
	assert.Equal(t, "env.subject", cfg.NATSSubject)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "memory", mutate: func(c *Config) { c.StoreDriver = StoreMemory }},
		{name: "dynamodb", mutate: func(c *Config) { c.StoreDriver = StoreDynamoDB }},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.StoreDriver = "mongo" },
			wantErr: "unsupported STORE_DRIVER",
		},
		{
			name:    "postgres without connection",
			mutate:  func(c *Config) { c.StoreDriver = StorePostgres },
			wantErr: "postgres store requires",
		},
		{
			name: "postgres with fields",
			mutate: func(c *Config) {
				c.StoreDriver = StorePostgres
				c.DBUser = "match"
				c.DBName = "match"
			},
		},
		{
			name:    "no attempts",
			mutate:  func(c *Config) { c.EnsureMatchMaxAttempts = -1 },
			wantErr: "ENSURE_MATCH_MAX_ATTEMPTS",
		},
		{
			name:    "no asynq workers",
			mutate:  func(c *Config) { c.AsynqConcurrency = -2 },
			wantErr: "ASYNQ_CONCURRENCY",
		},
		{
			name:    "webhook without token",
			mutate:  func(c *Config) { c.TelegramWebhookURL = "https://bot.example.com" },
			wantErr: "TELEGRAM_BOT_TOKEN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
