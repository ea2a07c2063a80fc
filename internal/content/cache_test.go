package content

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedSourceFallsThroughWhenRedisDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	src := &stubSource{courses: sampleCourses()}
	cached := NewCachedSource(src, client, "test", time.Minute)

	courses, err := cached.LoadCatalog(context.Background())
	require.NoError(t, err)
	assert.Len(t, courses, 1)
	assert.Equal(t, 1, src.calls)
	assert.Error(t, cached.HealthCheck(context.Background()))
}

func TestCachedSourcePropagatesSourceError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	cached := NewCachedSource(&stubSource{err: ErrSourceUnavailable}, client, "test", time.Minute)
	_, err := cached.LoadCatalog(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestCachedSourceWithRedis(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set, skipping")
	}

	ctx := context.Background()
	client, err := NewRedisClient(ctx, addr, "", 0)
	require.NoError(t, err)
	defer client.Close()

	src := &stubSource{courses: sampleCourses()}
	cached := NewCachedSource(src, client, "integration", time.Minute)
	require.NoError(t, cached.Invalidate(ctx))

	first, err := cached.LoadCatalog(ctx)
	require.NoError(t, err)
	second, err := cached.LoadCatalog(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls, "second load served from cache")
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Len(t, second[0].Modules[0].Lessons, 2)

	require.NoError(t, cached.Invalidate(ctx))
	_, err = cached.LoadCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}
