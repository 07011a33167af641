package server

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisStore counts login attempts in Redis with a fixed window per key, so
// every server replica draws from the same budget.
type redisStore struct {
	client  *redis.Client
	timeout time.Duration
}

func newRedisStore(addr, password string, timeout time.Duration) *redisStore {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})
	return &redisStore{client: client, timeout: timeout}
}

func (s *redisStore) Allow(key string, limit int, window time.Duration) (bool, time.Duration, error) {
	if limit <= 0 {
		return true, 0, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	pipe := s.client.TxPipeline()
	count := pipe.Incr(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("redis allow %q: %w", key, err)
	}

	// A key with no expiry is either brand new or left over from a crash
	// mid-window; both cases get a fresh window.
	if ttl.Val() < 0 {
		if err := s.client.PExpire(ctx, key, window).Err(); err != nil {
			return false, 0, fmt.Errorf("redis expire %q: %w", key, err)
		}
		ttl.SetVal(window)
	}

	if count.Val() > int64(limit) {
		retryAfter := ttl.Val()
		if retryAfter <= 0 {
			retryAfter = window
		}
		return false, retryAfter, nil
	}
	return true, 0, nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
