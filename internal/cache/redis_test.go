package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/meetsmatch/matchengine/internal/matching"
)

// MockRedisClient is a mock implementation of RedisClientInterface
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) Get(ctx context.Context, key string) *redis.StringCmd {
	args := m.Called(ctx, key)
	cmd := redis.NewStringCmd(ctx)
	if args.Error(1) != nil {
		cmd.SetErr(args.Error(1))
	} else {
		cmd.SetVal(args.String(0))
	}
	return cmd
}

func (m *MockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	args := m.Called(ctx, key, value, expiration)
	cmd := redis.NewStatusCmd(ctx)
	if args.Error(1) != nil {
		cmd.SetErr(args.Error(1))
	} else {
		cmd.SetVal(args.String(0))
	}
	return cmd
}

func (m *MockRedisClient) Ping(ctx context.Context) *redis.StatusCmd {
	args := m.Called(ctx)
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetErr(args.Error(0))
	return cmd
}

func (m *MockRedisClient) Close() error {
	return m.Called().Error(0)
}

func newMiniredisCache(t *testing.T, ttl time.Duration) (*MatchCache, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewMatchCache(client, ttl), server
}

func TestMatchCache_PutGet(t *testing.T) {
	ctx := context.Background()
	cache, server := newMiniredisCache(t, time.Hour)
	key := matching.Normalize("alice", "bob")

	_, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Put(ctx, key, matching.MatchResult{MatchID: "m1", ChannelID: "c1", Created: true}))

	got, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, matching.MatchResult{MatchID: "m1", ChannelID: "c1"}, got)
	assert.Equal(t, time.Hour, server.TTL(cacheKey(key)))

	server.FastForward(2 * time.Hour)
	_, ok, err = cache.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchCache_SkipsIncompleteResults(t *testing.T) {
	ctx := context.Background()
	cache, server := newMiniredisCache(t, 0)
	key := matching.Normalize("alice", "bob")

	require.NoError(t, cache.Put(ctx, key, matching.MatchResult{MatchID: "m1"}))
	assert.False(t, server.Exists(cacheKey(key)))
	assert.Equal(t, DefaultMatchTTL, cache.ttl)
}

func TestMatchCache_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	cache, server := newMiniredisCache(t, time.Hour)
	key := matching.Normalize("alice", "bob")
	require.NoError(t, server.Set(cacheKey(key), "{not json"))

	_, ok, err := cache.Get(ctx, key)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestMatchCache_ClientErrors(t *testing.T) {
	ctx := context.Background()
	client := &MockRedisClient{}
	key := matching.Normalize("alice", "bob")
	down := errors.New("connection refused")

	client.On("Get", ctx, cacheKey(key)).Return("", down)
	client.On("Set", ctx, cacheKey(key), mock.Anything, DefaultMatchTTL).Return("", down)
	client.On("Ping", ctx).Return(down)

	cache := NewMatchCache(client, DefaultMatchTTL)

	_, _, err := cache.Get(ctx, key)
	assert.ErrorIs(t, err, down)
	err = cache.Put(ctx, key, matching.MatchResult{MatchID: "m1", ChannelID: "c1"})
	assert.ErrorIs(t, err, down)
	assert.ErrorIs(t, cache.Health(ctx), down)
	client.AssertExpectations(t)
}

func TestNewClient_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := NewClient(ctx, RedisConfig{Addr: "127.0.0.1:1"}, false)
	assert.Error(t, err)
	assert.Nil(t, client)
}

func TestNewClient_Miniredis(t *testing.T) {
	server := miniredis.RunT(t)

	client, err := NewClient(context.Background(), RedisConfig{Addr: server.Addr()}, true)
	require.NoError(t, err)
	defer client.Close()

	cache := NewMatchCache(client, time.Minute)
	assert.NoError(t, cache.Health(context.Background()))
}
