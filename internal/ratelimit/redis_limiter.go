package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/portal-hub/internal/logging"
)

const redisKeyPrefix = "portal:ratelimit:"

// slidingWindowScript trims the window, admits the request only when there is
// room and reports {allowed, count, oldestScoreMs}.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local member = ARGV[4]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
	local count = redis.call('ZCARD', key)

	local allowed = 0
	if count < limit then
		redis.call('ZADD', key, now, member)
		count = count + 1
		allowed = 1
	end
	redis.call('PEXPIRE', key, window * 2)

	local oldest = now
	local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	if first[2] then
		oldest = tonumber(first[2])
	end

	return {allowed, count, oldest}
`)

// RedisLimiter implements Limiter with a Redis sorted-set sliding window,
// so all server processes share one budget per key.
type RedisLimiter struct {
	client redis.Cmdable
	logger *logging.Logger
	now    func() time.Time
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter creates a Redis-backed limiter
func NewRedisLimiter(client redis.Cmdable, logger *logging.Logger) *RedisLimiter {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &RedisLimiter{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// Check evaluates the sliding window for key atomically
func (l *RedisLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	if l.client == nil {
		return nil, errors.New("redis client is not configured for rate limiting")
	}

	now := l.now()
	if limit <= 0 || window <= 0 {
		return &Result{Allowed: false, Limit: limit, ResetAt: now.Add(window), Backend: BackendRedis}, nil
	}

	nowMs := now.UnixMilli()
	windowMs := window.Milliseconds()
	if windowMs < 1 {
		windowMs = 1
	}

	res, err := slidingWindowScript.Run(ctx, l.client, []string{redisKeyPrefix + key},
		nowMs, windowMs, limit, uuid.NewString()).Int64Slice()
	if err != nil {
		l.logger.WithError(err).WithField("key", key).Warn("Rate limiter script failed")
		return nil, err
	}
	if len(res) != 3 {
		return nil, errors.New("unexpected rate limiter script reply")
	}

	count := int(res[1])
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return &Result{
		Allowed:   res[0] == 1,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.UnixMilli(res[2] + windowMs),
		Backend:   BackendRedis,
	}, nil
}
