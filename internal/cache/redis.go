package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/meetsmatch/matchengine/internal/matching"
	"github.com/meetsmatch/matchengine/internal/telemetry"
)

const (
	DefaultMatchTTL = 24 * time.Hour
	keyPrefix       = "matchengine:match:"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	TTL      time.Duration
}

// RedisClientInterface is the part of the Redis client used by MatchCache.
type RedisClientInterface interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// NewClient connects to Redis, optionally with tracing, and verifies the
// connection.
func NewClient(ctx context.Context, config RedisConfig, instrumented bool) (*redis.Client, error) {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation": "redis_connection",
		"service":   "cache",
		"addr":      config.Addr,
		"db":        config.DB,
	})

	poolSize := config.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: poolSize,
	})
	if instrumented {
		telemetry.InstrumentRedisClient(client)
	}

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		logger.WithError(err).Error("Failed to connect to Redis")
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis connection established")
	return client, nil
}

// MatchCache remembers the match and channel ids of complete pairs. Both are
// immutable once created, so entries never need invalidation.
type MatchCache struct {
	client RedisClientInterface
	ttl    time.Duration
}

type cachedResult struct {
	MatchID   string `json:"match_id"`
	ChannelID string `json:"channel_id"`
}

func NewMatchCache(client RedisClientInterface, ttl time.Duration) *MatchCache {
	if ttl <= 0 {
		ttl = DefaultMatchTTL
	}
	return &MatchCache{client: client, ttl: ttl}
}

func cacheKey(key matching.PairKey) string {
	return keyPrefix + string(key)
}

func (c *MatchCache) Get(ctx context.Context, key matching.PairKey) (matching.MatchResult, bool, error) {
	raw, err := c.client.Get(ctx, cacheKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return matching.MatchResult{}, false, nil
	}
	if err != nil {
		return matching.MatchResult{}, false, fmt.Errorf("failed to get cached match: %w", err)
	}

	var entry cachedResult
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return matching.MatchResult{}, false, fmt.Errorf("failed to decode cached match: %w", err)
	}
	if entry.MatchID == "" || entry.ChannelID == "" {
		return matching.MatchResult{}, false, nil
	}
	return matching.MatchResult{MatchID: entry.MatchID, ChannelID: entry.ChannelID}, true, nil
}

// Put stores result. Incomplete results are ignored.
func (c *MatchCache) Put(ctx context.Context, key matching.PairKey, result matching.MatchResult) error {
	if result.MatchID == "" || result.ChannelID == "" {
		return nil
	}
	data, err := json.Marshal(cachedResult{MatchID: result.MatchID, ChannelID: result.ChannelID})
	if err != nil {
		return fmt.Errorf("failed to encode match: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache match: %w", err)
	}
	return nil
}

func (c *MatchCache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *MatchCache) Close() error {
	return c.client.Close()
}
