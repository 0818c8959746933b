// Package redis backs the fraud velocity signal with a sliding-window
// attempt counter. Counting and trimming run atomically in a Lua script so
// concurrent charge attempts never under-count each other.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// velocityCountScript trims attempts older than the window, then counts
// what remains.
// KEYS[1] = velocity key (e.g. "velocity:buyer:123")
// ARGV[1] = window start (unix milliseconds)
var velocityCountScript = redis.NewScript(`
local key = KEYS[1]
local window_start = tonumber(ARGV[1])

redis.call("ZREMRANGEBYSCORE", key, "-inf", window_start)
return redis.call("ZCARD", key)
`)

// VelocityStore implements fraud.VelocityStore on Redis sorted sets keyed
// by buyer, card fingerprint and client IP.
type VelocityStore struct {
	client *redis.Client
	// entries self-expire after this much idle time
	retention time.Duration
}

func NewVelocityStore(addr, password string, db int, retention time.Duration) *VelocityStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &VelocityStore{client: rdb, retention: retention}
}

// Close releases the underlying client.
func (s *VelocityStore) Close() error {
	return s.client.Close()
}

// Ping verifies connectivity at startup.
func (s *VelocityStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *VelocityStore) RecordAttempt(ctx context.Context, key string, at time.Time) error {
	member := fmt.Sprintf("%d", at.UnixNano())

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, s.redisKey(key), redis.Z{Score: float64(at.UnixMilli()), Member: member})
	pipe.Expire(ctx, s.redisKey(key), s.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record velocity attempt: %w", err)
	}
	return nil
}

func (s *VelocityStore) CountSince(ctx context.Context, key string, window time.Duration) (int64, error) {
	windowStart := time.Now().Add(-window).UnixMilli()

	res, err := velocityCountScript.Run(ctx, s.client, []string{s.redisKey(key)}, windowStart).Result()
	if err != nil {
		return 0, fmt.Errorf("count velocity attempts: %w", err)
	}

	count, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("invalid response from lua script")
	}
	return count, nil
}

func (s *VelocityStore) redisKey(key string) string {
	return "velocity:" + key
}
