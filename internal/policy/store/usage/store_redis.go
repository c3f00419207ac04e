package usage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	id "chaperone/pkg/domain"
)

const (
	usageKeyPrefix = "policy:usage:"
	usageRetention = 48 * time.Hour
)

// RedisStore keeps one set of minute-of-day members per ward and local day.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func usageKey(ward id.ParticipantID, day string) string {
	return usageKeyPrefix + ward.String() + ":" + day
}

func (s *RedisStore) Record(ctx context.Context, ward id.ParticipantID, day string, minute int) (int, error) {
	k := usageKey(ward, day)
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, k, strconv.Itoa(minute))
	card := pipe.SCard(ctx, k)
	pipe.Expire(ctx, k, usageRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("record active minute: %w", err)
	}
	return int(card.Val()), nil
}

func (s *RedisStore) Used(ctx context.Context, ward id.ParticipantID, day string, minute int) (int, bool, error) {
	k := usageKey(ward, day)
	pipe := s.client.Pipeline()
	card := pipe.SCard(ctx, k)
	member := pipe.SIsMember(ctx, k, strconv.Itoa(minute))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, false, fmt.Errorf("read active minutes: %w", err)
	}
	return int(card.Val()), member.Val(), nil
}
