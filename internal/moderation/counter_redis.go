package moderation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	blockedKeyPrefix = "moderation:blocked:"
	blockedRetention = 8 * 24 * time.Hour
)

// RedisCounter keeps one hash per day, field per reason code.
type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Increment(ctx context.Context, day, reason string) error {
	key := blockedKeyPrefix + day
	pipe := c.client.TxPipeline()
	pipe.HIncrBy(ctx, key, reason, 1)
	pipe.Expire(ctx, key, blockedRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("increment blocked counter: %w", err)
	}
	return nil
}

func (c *RedisCounter) Counts(ctx context.Context, day string) (map[string]int64, error) {
	raw, err := c.client.HGetAll(ctx, blockedKeyPrefix+day).Result()
	if err != nil {
		return nil, fmt.Errorf("read blocked counter: %w", err)
	}
	out := make(map[string]int64, len(raw))
	for reason, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse blocked counter %q: %w", reason, err)
		}
		out[reason] = n
	}
	return out, nil
}
