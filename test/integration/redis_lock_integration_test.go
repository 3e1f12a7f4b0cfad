package integration

import (
	"context"
	"testing"
	"time"

	"llm-knowledge-be/internal/repository/redislock"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// redisClient skips the test when no Redis server answers.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := ollamaEnv(t, "REDIS_ADDR", "localhost:6379")
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping integration test: Redis not reachable at %s", addr)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisThreadLock(t *testing.T) {
	locks := redislock.NewThreadLockRepository(redisClient(t))
	ctx := context.Background()
	threadID := uuid.New()

	token, ok, err := locks.Acquire(ctx, threadID, 200*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locks.Acquire(ctx, threadID, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = locks.Extend(ctx, threadID, "someone-else", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// extending past the original ttl keeps the lock held
	ok, err = locks.Extend(ctx, threadID, token, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	time.Sleep(400 * time.Millisecond)
	_, ok, err = locks.Acquire(ctx, threadID, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locks.Release(ctx, threadID, token))
	ok, err = locks.Extend(ctx, threadID, token, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	token, ok, err = locks.Acquire(ctx, threadID, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, locks.Release(ctx, threadID, token))
}
