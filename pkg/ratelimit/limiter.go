// Package ratelimit implements fixed-window request limits shared across
// instances through redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "dashboard:ratelimit:"

// Limit is the number of requests allowed per window
type Limit struct {
	MaxRequests int64
	Window      time.Duration
}

// Result contains the result of a rate limit check
type Result struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
}

// Counter increments a key that expires after ttl and returns the new value
type Counter interface {
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RedisCounter implements Counter with INCR and EXPIRE in one transaction
type RedisCounter struct {
	client redis.Cmdable
}

func NewRedisCounter(client redis.Cmdable) *RedisCounter {
	return &RedisCounter{client: client}
}

func (r *RedisCounter) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Limiter counts requests per key
type Limiter struct {
	counter Counter
	now     func() time.Time
}

func NewLimiter(counter Counter) *Limiter {
	return &Limiter{counter: counter, now: time.Now}
}

// Allow records one request for key and reports whether it fits in limit.
// The counter key includes the window start so every window starts at zero.
func (l *Limiter) Allow(ctx context.Context, key string, limit Limit) (*Result, error) {
	if limit.MaxRequests <= 0 || limit.Window <= 0 {
		return &Result{Allowed: true}, nil
	}

	now := l.now()
	windowStart := now.Truncate(limit.Window)
	redisKey := fmt.Sprintf("%s%s:%d", keyPrefix, key, windowStart.Unix())

	count, err := l.counter.Increment(ctx, redisKey, limit.Window)
	if err != nil {
		return nil, fmt.Errorf("rate limit check: %w", err)
	}

	result := &Result{
		Allowed:   count <= limit.MaxRequests,
		Limit:     limit.MaxRequests,
		Remaining: max(0, limit.MaxRequests-count),
	}
	if !result.Allowed {
		result.RetryAfter = windowStart.Add(limit.Window).Sub(now)
	}
	return result, nil
}
