package ratelimiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"anoa.com/marketchat/pkg/apperror"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAndSetRateLimit(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	user := uuid.New()

	ok, err := CheckAndSetRateLimit(ctx, rdb, user, "create_thread", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CheckAndSetRateLimit(ctx, rdb, user, "create_thread", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ttl, err := GetRateLimitTTL(ctx, rdb, user, "create_thread")
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	// other users and actions have their own slot
	ok, err = CheckAndSetRateLimit(ctx, rdb, uuid.New(), "create_thread", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, ClearRateLimit(ctx, rdb, user, "create_thread"))
	ok, err = CheckAndSetRateLimit(ctx, rdb, user, "create_thread", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = CheckAndSetRateLimit(ctx, rdb, user, "create_thread", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheckAndSetRateLimit_Disabled(t *testing.T) {
	ctx := context.Background()
	user := uuid.New()

	for i := 0; i < 3; i++ {
		ok, err := CheckAndSetRateLimit(ctx, nil, user, "create_thread", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	for i := 0; i < 3; i++ {
		ok, err := CheckAndSetRateLimit(ctx, rdb, user, "create_thread", 0)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestRateLimitErrorIs(t *testing.T) {
	var err error = &RateLimitError{Message: "slow down", RetryAfter: time.Second}
	assert.True(t, errors.Is(err, apperror.ErrRateLimitExceeded))
	assert.Equal(t, 429, apperror.MapErrorToStatus(err))
}
