package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry(time.Second)
	r.Register("storage", CheckerFunc(func(ctx context.Context) error { return nil }))
	r.Register("cache", CheckerFunc(func(ctx context.Context) error { return errors.New("connection refused") }))

	assert.Equal(t, []string{"cache", "storage"}, r.List())
	require.NotNil(t, r.Get("storage"))

	statuses, healthy := Report(r.HealthCheckAll(context.Background()))
	assert.False(t, healthy)
	assert.Equal(t, "healthy", statuses["storage"])
	assert.Equal(t, "unhealthy: connection refused", statuses["cache"])

	r.Unregister("cache")
	statuses, healthy = Report(r.HealthCheckAll(context.Background()))
	assert.True(t, healthy)
	assert.Len(t, statuses, 1)
}

func TestRegistryTimeout(t *testing.T) {
	r := NewRegistry(20 * time.Millisecond)
	r.Register("slow", CheckerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	results := r.HealthCheckAll(context.Background())
	assert.ErrorIs(t, results["slow"], context.DeadlineExceeded)
}
