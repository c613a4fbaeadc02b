//go:build integration

package deduplication

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	redismodule "github.com/testcontainers/testcontainers-go/modules/redis"

	"hookbridge/internal/config"
	"hookbridge/internal/logger"
)

func setupRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	ctx := context.Background()
	if os.Getenv("TESTCONTAINERS_RYUK_DISABLED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	}

	container, err := redismodule.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opt, err := redis.ParseURL(uri)
	require.NoError(t, err)

	client := redis.NewClient(opt)
	t.Cleanup(func() { _ = client.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(pingCtx).Err())
	return client
}

func TestRedisStoreSetNXExpiry(t *testing.T) {
	store := NewRedisStore(setupRedis(t))
	ctx := context.Background()

	ok, err := store.SetNX(ctx, "dedup:k1", 1, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SetNX(ctx, "dedup:k1", 2, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	time.Sleep(1500 * time.Millisecond)

	ok, err = store.SetNX(ctx, "dedup:k1", 3, time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "key must be claimable again after its TTL")
}

func TestSharedRedisDeduplicatesAcrossReplicas(t *testing.T) {
	client := setupRedis(t)
	cfg := config.DeduplicationConfig{TTLSeconds: 60}
	replicas := []*Service{
		NewService(NewRedisStore(client), cfg, logger.NopLogger()),
		NewService(NewRedisStore(client), cfg, logger.NopLogger()),
	}

	var fresh int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(svc *Service) {
			defer wg.Done()
			dup, err := svc.CheckAndMark(context.Background(), "Ev-shared")
			if err == nil && !dup {
				atomic.AddInt32(&fresh, 1)
			}
		}(replicas[i%2])
	}
	wg.Wait()

	assert.Equal(t, int32(1), fresh, "exactly one replica may claim an event id")

	size, err := NewRedisStore(client).Size(context.Background(), "dedup:")
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}
