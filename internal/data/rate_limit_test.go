package data

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) (*RateLimitRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRateLimitRepo(rdb, log.NewStdLogger(os.Stdout)), mr
}

func TestIncrementRPM(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()

	count, err := repo.IncrementRPM(ctx, "anthropic/sonnet")
	require.NoError(t, err)
	assert.Equal(t, int32(1), count)

	count, err = repo.IncrementRPM(ctx, "anthropic/sonnet")
	require.NoError(t, err)
	assert.Equal(t, int32(2), count)

	// First increment sets the window expiration.
	ttl := mr.TTL("ratelimit:anthropic/sonnet:rpm")
	assert.Equal(t, rateLimitWindow, ttl)
}

func TestIncrementRPM_ProvidersAreIsolated(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.IncrementRPM(ctx, "anthropic/sonnet")
	require.NoError(t, err)

	count, err := repo.IncrementRPM(ctx, "openai/gpt4o")
	require.NoError(t, err)
	assert.Equal(t, int32(1), count)
}

func TestIncrementRPM_WindowExpiry(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.IncrementRPM(ctx, "anthropic/sonnet")
	require.NoError(t, err)

	mr.FastForward(rateLimitWindow + time.Second)

	count, err := repo.IncrementRPM(ctx, "anthropic/sonnet")
	require.NoError(t, err)
	assert.Equal(t, int32(1), count, "counter restarts after the window")
}

func TestGetTPMCount_MissingKeyIsZero(t *testing.T) {
	repo, _ := newTestRepo(t)

	count, err := repo.GetTPMCount(context.Background(), "anthropic/sonnet")
	require.NoError(t, err)
	assert.Equal(t, int32(0), count)
}

func TestIncrementTPM(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()

	count, err := repo.IncrementTPM(ctx, "anthropic/sonnet", 1000)
	require.NoError(t, err)
	assert.Equal(t, int32(1000), count)

	count, err = repo.IncrementTPM(ctx, "anthropic/sonnet", 500)
	require.NoError(t, err)
	assert.Equal(t, int32(1500), count)

	ttl := mr.TTL("ratelimit:anthropic/sonnet:tpm")
	assert.Equal(t, rateLimitWindow, ttl)
}

func TestIncrementTPM_NegativeCorrection(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.IncrementTPM(ctx, "anthropic/sonnet", 1000)
	require.NoError(t, err)

	count, err := repo.IncrementTPM(ctx, "anthropic/sonnet", -400)
	require.NoError(t, err)
	assert.Equal(t, int32(600), count)

	got, err := repo.GetTPMCount(ctx, "anthropic/sonnet")
	require.NoError(t, err)
	assert.Equal(t, int32(600), got)
}

func TestRepo_NilClient(t *testing.T) {
	repo := NewRateLimitRepo(nil, log.NewStdLogger(os.Stdout))
	ctx := context.Background()

	_, err := repo.IncrementRPM(ctx, "anthropic/sonnet")
	assert.Error(t, err)

	_, err = repo.GetTPMCount(ctx, "anthropic/sonnet")
	assert.Error(t, err)

	_, err = repo.IncrementTPM(ctx, "anthropic/sonnet", 10)
	assert.Error(t, err)
}
