package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chaperone/internal/platform/config"
)

func TestNewWithoutURLSelectsMemory(t *testing.T) {
	c, err := New(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestOptionsOverrideURLDefaults(t *testing.T) {
	opts, err := options(config.RedisConfig{
		URL:         "redis://cache:6380/2",
		PoolSize:    32,
		ReadTimeout: 250 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 32, opts.PoolSize)
	assert.Equal(t, 250*time.Millisecond, opts.ReadTimeout)
	assert.Equal(t, 5*time.Second, opts.DialTimeout)
}

func TestOptionsRejectBadURL(t *testing.T) {
	_, err := options(config.RedisConfig{URL: "://nope"})
	assert.Error(t, err)
}
