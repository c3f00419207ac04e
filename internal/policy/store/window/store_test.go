package window

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chaperone/internal/policy/models"
)

type store interface {
	Peek(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (models.WindowResult, error)
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (models.WindowResult, error)
	SetCooldown(ctx context.Context, key string, until, now time.Time) error
	Cooldown(ctx context.Context, key string, now time.Time) (time.Duration, error)
	Reset(ctx context.Context, key string) error
}

// exerciseStore checks window and cooldown behaviour shared by every implementation. start
// should be close to the wall clock for stores that expire keys.
func exerciseStore(t *testing.T, s store, start time.Time) {
	ctx := context.Background()
	key := "send:" + start.Format(time.RFC3339Nano)

	for range 5 {
		res, err := s.Peek(ctx, key, 3, time.Minute, start)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 3, res.Remaining, "peeking records nothing")
	}

	for i := range 3 {
		res, err := s.Allow(ctx, key, 3, time.Minute, start.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := s.Peek(ctx, key, 3, time.Minute, start.Add(10*time.Second))
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 50*time.Second, res.RetryAfter)

	res, err = s.Allow(ctx, key, 3, time.Minute, start.Add(10*time.Second))
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 50*time.Second, res.RetryAfter, "retry when the oldest event leaves the window")

	res, err = s.Allow(ctx, key, 3, time.Minute, start.Add(time.Minute+500*time.Millisecond))
	require.NoError(t, err)
	assert.True(t, res.Allowed, "the first event has left the window")

	other := key + ":other"
	res, err = s.Allow(ctx, other, 3, time.Minute, start)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "keys are independent")

	remaining, err := s.Cooldown(ctx, key, start)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	require.NoError(t, s.SetCooldown(ctx, key, start.Add(time.Minute), start))
	remaining, err = s.Cooldown(ctx, key, start)
	require.NoError(t, err)
	assert.Positive(t, remaining)
	assert.LessOrEqual(t, remaining, time.Minute)

	require.NoError(t, s.Reset(ctx, key))
	remaining, err = s.Cooldown(ctx, key, start)
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestInMemoryStore(t *testing.T) {
	exerciseStore(t, NewInMemoryStore(), time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
}

func TestInMemoryCooldownExpires(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.SetCooldown(ctx, "k", now.Add(time.Minute), now))
	left, err := s.Cooldown(ctx, "k", now.Add(45*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, left)

	left, err = s.Cooldown(ctx, "k", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, left)
}
