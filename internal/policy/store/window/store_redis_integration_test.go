//go:build integration

package window

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chaperone/pkg/testutil/containers"
)

func TestRedisStore(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	require.NoError(t, rc.Client.FlushDB(context.Background()).Err())

	exerciseStore(t, NewRedisStore(rc.Client), time.Now().Truncate(time.Millisecond))
}

func TestRedisStoreExpiresIdleWindows(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	ctx := context.Background()
	s := NewRedisStore(rc.Client)

	_, err := s.Allow(ctx, "idle", 5, time.Minute, time.Now())
	require.NoError(t, err)
	ttl, err := rc.Client.PTTL(ctx, windowKeyPrefix+"idle").Result()
	require.NoError(t, err)
	require.Positive(t, ttl)
	require.LessOrEqual(t, ttl, time.Minute)
}
