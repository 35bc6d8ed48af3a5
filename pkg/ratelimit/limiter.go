package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	goredis "github.com/redis/go-redis/v9"
)

// Result contains the outcome of a rate limit check
type Result struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
	RetryIn   time.Duration
}

// RedisLimiter provides a sliding-window request budget shared across
// instances. Redis failures fail open: an outage degrades pacing to the
// in-process interval rather than halting evaluation.
type RedisLimiter struct {
	client    goredis.UniversalClient
	logger    ectologger.Logger
	keyPrefix string
}

// NewRedisLimiter creates a RedisLimiter with the given key prefix
func NewRedisLimiter(client goredis.UniversalClient, logger ectologger.Logger, keyPrefix string) *RedisLimiter {
	if keyPrefix == "" {
		keyPrefix = "ratelimit:"
	}
	return &RedisLimiter{
		client:    client,
		logger:    logger,
		keyPrefix: keyPrefix,
	}
}

// Allow checks if a request is allowed under the rate limit using a sliding
// window
func (r *RedisLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (*Result, error) {
	now := time.Now()
	windowStart := now.Add(-window)
	rateKey := r.keyPrefix + key

	script := goredis.NewScript(`
		local key = KEYS[1]
		local now = tonumber(ARGV[1])
		local window_start = tonumber(ARGV[2])
		local limit = tonumber(ARGV[3])
		local window_ms = tonumber(ARGV[4])

		-- Remove old entries
		redis.call("zremrangebyscore", key, "-inf", window_start)

		-- Count current entries
		local current = redis.call("zcard", key)

		if current < limit then
			-- Add new entry
			redis.call("zadd", key, now, now .. "-" .. math.random())
			redis.call("pexpire", key, window_ms)
			return {1, limit - current - 1}
		else
			-- Get oldest entry to calculate retry time
			local oldest = redis.call("zrange", key, 0, 0, "WITHSCORES")
			if #oldest > 0 then
				return {0, 0, oldest[2]}
			end
			return {0, 0, 0}
		end
	`)

	result, err := script.Run(ctx, r.client, []string{rateKey},
		now.UnixMilli(),
		windowStart.UnixMilli(),
		limit,
		window.Milliseconds(),
	).Slice()

	if err != nil {
		return nil, err
	}

	allowedFlag, err := toInt64(result[0])
	if err != nil {
		return nil, err
	}
	remaining, err := toInt64(result[1])
	if err != nil {
		return nil, err
	}
	allowed := allowedFlag == 1

	res := &Result{
		Allowed:   allowed,
		Remaining: remaining,
		ResetAt:   now.Add(window),
	}

	if !allowed && len(result) > 2 {
		oldestMs, err := toInt64(result[2])
		if err != nil {
			return nil, err
		}
		if oldestMs > 0 {
			oldestTime := time.UnixMilli(oldestMs)
			res.RetryIn = oldestTime.Add(window).Sub(now)
		}
	}

	return res, nil
}

// Reset resets the rate limit for a key
func (r *RedisLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.keyPrefix+key).Err()
}

// WaitForSlot waits until the rate limit admits the request. Returns an
// error if the context is cancelled or the wait would exceed maxWait.
func (r *RedisLimiter) WaitForSlot(ctx context.Context, key string, limit int64, window, maxWait time.Duration) error {
	deadline := time.Now().Add(maxWait)

	for {
		result, err := r.Allow(ctx, key, limit, window)
		if err != nil {
			// On error, allow the request (fail open)
			r.logger.WithContext(ctx).WithError(err).Warnf("Rate limit check failed for %s", key)
			return nil
		}

		if result.Allowed {
			return nil
		}

		retryIn := result.RetryIn
		if retryIn <= 0 {
			retryIn = 100 * time.Millisecond
		}

		if time.Now().Add(retryIn).After(deadline) {
			return fmt.Errorf("rate limit %s would exceed max wait time of %v", key, maxWait)
		}

		r.logger.WithContext(ctx).Debugf("Rate limited on %s, waiting %v", key, retryIn)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryIn):
		}
	}
}

// SharedPacer adapts the RedisLimiter to the per-call pacing contract the
// evaluator expects, spreading the oracle budget across instances
type SharedPacer struct {
	limiter *RedisLimiter
	key     string
	limit   int64
	window  time.Duration
	maxWait time.Duration
}

// NewSharedPacer creates a SharedPacer over one named budget
func NewSharedPacer(limiter *RedisLimiter, key string, limit int64, window, maxWait time.Duration) *SharedPacer {
	return &SharedPacer{
		limiter: limiter,
		key:     key,
		limit:   limit,
		window:  window,
		maxWait: maxWait,
	}
}

// Wait blocks until the shared budget admits one call
func (s *SharedPacer) Wait(ctx context.Context) error {
	return s.limiter.WaitForSlot(ctx, s.key, s.limit, s.window, s.maxWait)
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		// Redis Lua returns numbers as strings sometimes (e.g., zrange WITHSCORES)
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(n, 64)
			if ferr != nil {
				return 0, err
			}
			return int64(f), nil
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("unexpected numeric type %T", v)
	}
}
