package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(Config{Limit: 3, Window: time.Minute})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "ip:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d", i+1)
	}
	ok, _ := l.Allow(ctx, "ip:1.2.3.4")
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "ip:5.6.7.8")
	assert.True(t, ok, "keys are independent")

	now = now.Add(time.Minute)
	ok, _ = l.Allow(ctx, "ip:1.2.3.4")
	assert.True(t, ok, "new window")

	require.NoError(t, l.Reset(ctx, "ip:5.6.7.8"))
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLimiter(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	l := NewRedisLimiter(client, Config{Limit: 2, Window: 30 * time.Second}, "login")

	ok, err := l.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 30*time.Second, mr.TTL("login:ip:1.2.3.4"))

	ok, _ = l.Allow(ctx, "ip:1.2.3.4")
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "ip:1.2.3.4")
	assert.False(t, ok)

	require.NoError(t, l.Reset(ctx, "ip:1.2.3.4"))
	assert.False(t, mr.Exists("login:ip:1.2.3.4"))
}

func TestRedisLimiter_WindowExpires(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	l := NewRedisLimiter(client, Config{Limit: 1, Window: 30 * time.Second}, "login")

	ok, _ := l.Allow(ctx, "k")
	assert.True(t, ok)

	mr.FastForward(31 * time.Second)
	ok, _ = l.Allow(ctx, "k")
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "k")
	assert.False(t, ok)
}

func TestRedisLimiter_CounterAlwaysHasTTL(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	l := NewRedisLimiter(client, Config{Limit: 2, Window: 30 * time.Second}, "login")

	for i := 0; i < 5; i++ {
		_, err := l.Allow(ctx, "ip:1.2.3.4")
		require.NoError(t, err)
		ttl := mr.TTL("login:ip:1.2.3.4")
		assert.Greater(t, ttl, time.Duration(0), "hit %d", i+1)
		assert.LessOrEqual(t, ttl, 30*time.Second, "hit %d", i+1)
		mr.FastForward(time.Second)
	}

	got, err := mr.Get("login:ip:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "5", got)

	mr.FastForward(30 * time.Second)
	assert.False(t, mr.Exists("login:ip:1.2.3.4"))
	ok, err := l.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok, "locked out client recovers once the window ends")
}

func TestRedisLimiter_FailsOpen(t *testing.T) {
	mr, client := setupRedis(t)
	l := NewRedisLimiter(client, Config{Limit: 1}, "")
	mr.Close()

	ok, err := l.Allow(context.Background(), "k")
	assert.Error(t, err)
	assert.True(t, ok)
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "invalid://url")
	assert.Error(t, err)
}
