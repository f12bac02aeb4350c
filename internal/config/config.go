// Package config loads matchengine settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/meetsmatch/matchengine/internal/matching"
)

const maxConfigFileSize = 1024 * 1024

// Store drivers accepted in STORE_DRIVER.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite3"
	StoreMemory   = "memory"
	StoreDynamoDB = "dynamodb"
)

// Config holds runtime settings. Keys are the lower-cased environment
// variable names, so DB_HOST and a YAML key db_host set the same field.
type Config struct {
	HTTPAddr           string `koanf:"http_addr"`
	CORSAllowedOrigins string `koanf:"cors_allowed_origins"`
	Environment        string `koanf:"environment"`

	StoreDriver string `koanf:"store_driver"`
	DatabaseURL string `koanf:"database_url"`
	DBHost      string `koanf:"db_host"`
	DBPort      string `koanf:"db_port"`
	DBUser      string `koanf:"db_user"`
	DBPassword  string `koanf:"db_password"`
	DBName      string `koanf:"db_name"`
	DBSSLMode   string `koanf:"db_sslmode"`
	SQLitePath  string `koanf:"sqlite_path"`

	DynamoTablePrefix string `koanf:"dynamo_table_prefix"`
	DynamoEndpoint    string `koanf:"dynamo_endpoint"`
	AWSRegion         string `koanf:"aws_region"`

	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	MatchCacheTTL time.Duration `koanf:"match_cache_ttl"`

	NATSURL     string `koanf:"nats_url"`
	NATSSubject string `koanf:"nats_subject"`

	// AsynqRedisURL enables the durable match notification queue.
	AsynqRedisURL    string `koanf:"asynq_redis_url"`
	AsynqQueue       string `koanf:"asynq_queue"`
	AsynqConcurrency int    `koanf:"asynq_concurrency"`

	TelegramBotToken      string `koanf:"telegram_bot_token"`
	TelegramWebhookURL    string `koanf:"telegram_webhook_url"`
	TelegramWebhookSecret string `koanf:"telegram_webhook_secret"`

	SentryDSN string `koanf:"sentry_dsn"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
	LogOutput string `koanf:"log_output"`

	EnsureMatchMaxAttempts    int           `koanf:"ensure_match_max_attempts"`
	EnsureMatchInitialBackoff time.Duration `koanf:"ensure_match_initial_backoff"`
	EnsureMatchMaxBackoff     time.Duration `koanf:"ensure_match_max_backoff"`
}

// Load reads .env (if present), then the YAML file at path (if non-empty),
// then the environment, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Empty variables are skipped so they do not blank out file values.
	if err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
		if value == "" {
			return "", nil
		}
		return strings.ToLower(key), value
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

func (c *Config) applyDefaults() {
	engine := matching.DefaultEngineConfig()

	setDefault(&c.HTTPAddr, ":8080")
	setDefault(&c.CORSAllowedOrigins, "*")
	setDefault(&c.Environment, "development")
	setDefault(&c.StoreDriver, StoreSQLite)
	setDefault(&c.DBHost, "localhost")
	setDefault(&c.DBPort, "5432")
	setDefault(&c.DBSSLMode, "disable")
	setDefault(&c.SQLitePath, "matchengine.db")
	setDefault(&c.AWSRegion, "us-east-1")
	setDefault(&c.NATSSubject, "matches.created")
	setDefault(&c.AsynqQueue, "default")
	setDefault(&c.LogLevel, "info")
	setDefault(&c.LogFormat, "json")
	setDefault(&c.LogOutput, "stdout")

	if c.AsynqConcurrency == 0 {
		c.AsynqConcurrency = 5
	}
	if c.MatchCacheTTL == 0 {
		c.MatchCacheTTL = 24 * time.Hour
	}
	if c.EnsureMatchMaxAttempts == 0 {
		c.EnsureMatchMaxAttempts = engine.MaxAttempts
	}
	if c.EnsureMatchInitialBackoff == 0 {
		c.EnsureMatchInitialBackoff = engine.InitialBackoff
	}
	if c.EnsureMatchMaxBackoff == 0 {
		c.EnsureMatchMaxBackoff = engine.MaxBackoff
	}
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StorePostgres:
		if c.DatabaseURL == "" && (c.DBUser == "" || c.DBName == "") {
			return fmt.Errorf("postgres store requires DATABASE_URL or DB_USER and DB_NAME")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite3 store requires SQLITE_PATH")
		}
	case StoreDynamoDB:
		if c.AWSRegion == "" {
			return fmt.Errorf("dynamodb store requires AWS_REGION")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}

	if c.EnsureMatchMaxAttempts < 1 {
		return fmt.Errorf("ENSURE_MATCH_MAX_ATTEMPTS must be at least 1")
	}
	if c.MatchCacheTTL < 0 {
		return fmt.Errorf("MATCH_CACHE_TTL must not be negative")
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("REDIS_DB must not be negative")
	}
	if c.AsynqConcurrency < 1 {
		return fmt.Errorf("ASYNQ_CONCURRENCY must be at least 1")
	}
	if c.TelegramWebhookURL != "" && c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_WEBHOOK_URL requires TELEGRAM_BOT_TOKEN")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// EngineConfig returns the retry settings for matching.Engine.
func (c *Config) EngineConfig() matching.EngineConfig {
	return matching.EngineConfig{
		MaxAttempts:    c.EnsureMatchMaxAttempts,
		InitialBackoff: c.EnsureMatchInitialBackoff,
		MaxBackoff:     c.EnsureMatchMaxBackoff,
	}
}
