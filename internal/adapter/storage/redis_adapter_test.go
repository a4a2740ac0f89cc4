package storage

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestSetIdempotency_Success(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	client.Del(ctx, idempotencyKeyPrefix+"test-idem-key")

	ok, err := adapter.SetIdempotency(ctx, "test-idem-key")
	require.NoError(t, err)
	assert.True(t, ok, "first claim should succeed")

	ok, err = adapter.SetIdempotency(ctx, "test-idem-key")
	require.NoError(t, err)
	assert.False(t, ok, "second claim should fail")

	ttl, err := client.TTL(ctx, idempotencyKeyPrefix+"test-idem-key").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl.Seconds(), 0.0)
}

func TestReleaseIdempotency(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	client.Del(ctx, idempotencyKeyPrefix+"test-release-key")

	ok, err := adapter.SetIdempotency(ctx, "test-release-key")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, adapter.ReleaseIdempotency(ctx, "test-release-key"))

	ok, err = adapter.SetIdempotency(ctx, "test-release-key")
	require.NoError(t, err)
	assert.True(t, ok, "released key can be claimed again")
}

func TestSetIdempotency_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	client.Del(ctx, idempotencyKeyPrefix+"concurrent-idem-key")

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := adapter.SetIdempotency(ctx, "concurrent-idem-key")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), successCount.Load())
}
