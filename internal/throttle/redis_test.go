package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLimiterWindow(t *testing.T) {
	s := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lim := NewRedisLimiter(client, 2, 500*time.Millisecond, "test:")
	ctx := context.Background()

	allowed, _, err := lim.Allow(ctx, "ip", time.Now())
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, _, err = lim.Allow(ctx, "ip", time.Now())
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, retryAfter, err := lim.Allow(ctx, "ip", time.Now())
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Positive(t, retryAfter)

	s.FastForward(600 * time.Millisecond)

	allowed, _, err = lim.Allow(ctx, "ip", time.Now())
	require.NoError(t, err)
	assert.True(t, allowed, "counter expires with the window")
}

func TestRedisLimiterRejectsZeroWindow(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	_, _, err := NewRedisLimiter(client, 1, 0, "").Allow(context.Background(), "ip", time.Now())
	require.Error(t, err)
}

func TestNewRedisClientRejectsBadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not-a-url")
	require.Error(t, err)
}
