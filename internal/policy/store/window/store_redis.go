package window

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"chaperone/internal/policy/models"
)

const (
	windowKeyPrefix   = "policy:window:"
	cooldownKeyPrefix = "policy:cooldown:"
)

// RedisStore keeps each window as a sorted set scored by event time in milliseconds, so
// every instance sees the same counts.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Allow adds the event first and removes it again when the window is over the limit. Under
// contention this can refuse an event another instance would have allowed; it never allows
// more than limit.
func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (models.WindowResult, error) {
	k := windowKeyPrefix + key
	member := strconv.FormatInt(now.UnixNano(), 10) + ":" + uuid.NewString()

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "-inf", strconv.FormatInt(now.Add(-window).UnixMilli(), 10))
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixMilli()), Member: member})
	card := pipe.ZCard(ctx, k)
	pipe.PExpire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return models.WindowResult{}, fmt.Errorf("record window event: %w", err)
	}

	count := int(card.Val())
	if count <= limit {
		return models.WindowResult{Allowed: true, Remaining: limit - count}, nil
	}
	if err := s.client.ZRem(ctx, k, member).Err(); err != nil {
		return models.WindowResult{}, fmt.Errorf("undo window event: %w", err)
	}
	oldest, err := s.client.ZRangeWithScores(ctx, k, 0, 0).Result()
	if err != nil {
		return models.WindowResult{}, fmt.Errorf("read window: %w", err)
	}
	retry := window
	if len(oldest) > 0 {
		retry = time.UnixMilli(int64(oldest[0].Score)).Add(window).Sub(now)
	}
	return models.WindowResult{Allowed: false, RetryAfter: retry}, nil
}

// Peek counts the events still inside the window without adding one.
func (s *RedisStore) Peek(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (models.WindowResult, error) {
	k := windowKeyPrefix + key
	minScore := "(" + strconv.FormatInt(now.Add(-window).UnixMilli(), 10)
	count, err := s.client.ZCount(ctx, k, minScore, "+inf").Result()
	if err != nil {
		return models.WindowResult{}, fmt.Errorf("count window: %w", err)
	}
	if int(count) < limit {
		return models.WindowResult{Allowed: true, Remaining: limit - int(count)}, nil
	}
	oldest, err := s.client.ZRangeByScoreWithScores(ctx, k, &redis.ZRangeBy{Min: minScore, Max: "+inf", Count: 1}).Result()
	if err != nil {
		return models.WindowResult{}, fmt.Errorf("read window: %w", err)
	}
	retry := window
	if len(oldest) > 0 {
		retry = time.UnixMilli(int64(oldest[0].Score)).Add(window).Sub(now)
	}
	return models.WindowResult{Allowed: false, RetryAfter: retry}, nil
}

func (s *RedisStore) SetCooldown(ctx context.Context, key string, until, now time.Time) error {
	ttl := until.Sub(now)
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, cooldownKeyPrefix+key, "1", ttl).Err()
}

func (s *RedisStore) Cooldown(ctx context.Context, key string, _ time.Time) (time.Duration, error) {
	ttl, err := s.client.PTTL(ctx, cooldownKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read cooldown: %w", err)
	}
	// PTTL reports -2 for a missing key and -1 for a key without expiry.
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, windowKeyPrefix+key, cooldownKeyPrefix+key).Err()
}
