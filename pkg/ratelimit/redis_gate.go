package ratelimit

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/quantbridge/tda/pkg/redis"
)

// RedisGate implements sliding window rate limiting backed by Redis, so the
// broker's per-account quota is respected across processes sharing one
// account. Falls open when Redis is disabled.
type RedisGate struct {
	client *redis.Client
	key    string
	limit  int
	window time.Duration
}

// NewRedisGate creates a gate allowing limit requests per window, keyed by
// key (e.g. the account id).
func NewRedisGate(client *redis.Client, key string, limit int, window time.Duration) *RedisGate {
	return &RedisGate{
		client: client,
		key:    key,
		limit:  limit,
		window: window,
	}
}

var slidingWindowScript = goredis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

	local count = redis.call('ZCARD', key)

	if count < limit then
		redis.call('ZADD', key, now, now)
		redis.call('PEXPIRE', key, window_ms)
		return 1
	else
		return 0
	end
`)

// allow checks if a request is allowed under the rate limit.
func (g *RedisGate) allow(ctx context.Context) (bool, error) {
	if !g.client.Enabled() {
		return true, nil
	}

	key := fmt.Sprintf("tda:ratelimit:%s", g.key)
	now := time.Now().UnixMilli()
	windowStart := now - g.window.Milliseconds()

	result, err := slidingWindowScript.Run(ctx, g.client.Redis(), []string{key},
		now,
		windowStart,
		g.limit,
		g.window.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit script failed: %w", err)
	}

	return result == 1, nil
}

// WaitToProceed blocks until a request is allowed or the context is cancelled.
func (g *RedisGate) WaitToProceed(ctx context.Context) error {
	for {
		allowed, err := g.allow(ctx)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
