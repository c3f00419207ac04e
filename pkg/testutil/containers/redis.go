//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// RedisContainer is one disposable Redis shared by every suite in the test binary.
// Suites call Client.FlushDB before use.
type RedisContainer struct {
	Container *tcredis.RedisContainer
	Addr      string
	Client    *redis.Client
}

func startRedis(ctx context.Context, t *testing.T) *RedisContainer {
	t.Helper()
	ctr, err := tcredis.Run(ctx, "redis:7-alpine", tcredis.WithLogLevel(tcredis.LogLevelNotice))
	if err != nil {
		t.Fatalf("redis container: %v", err)
	}
	fail := func(step string, err error) {
		_ = ctr.Terminate(ctx)
		t.Fatalf("redis container %s: %v", step, err)
	}

	url, err := ctr.ConnectionString(ctx)
	if err != nil {
		fail("endpoint", err)
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		fail("url", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		fail("ping", err)
	}
	return &RedisContainer{Container: ctr, Addr: opts.Addr, Client: rdb}
}
