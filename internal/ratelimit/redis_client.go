package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/portal-hub/internal/config"
	"github.com/portal-hub/internal/logging"
	"github.com/portal-hub/internal/retry"
)

// NewRedisClient creates the client backing RedisLimiter and checks that the
// server answers, retrying with backoff. The client is returned even when the
// ping fails: it reconnects on demand and FallbackLimiter covers the outage.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig, retryCfg *retry.RetryConfig, logger *logging.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MinIdleConns: 2,
		MaxRetries:   1,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		PoolTimeout:  time.Second,
	})

	if retryCfg == nil {
		retryCfg = retry.DefaultRetryConfig()
	}
	result := retry.WithExponentialBackoff(logging.WithLogger(ctx, logger), retryCfg, func(ctx context.Context, attempt int) error {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return client.Ping(pingCtx).Err()
	})
	if err := result.Err(); err != nil {
		return client, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr(), err)
	}

	logger.WithFields(map[string]interface{}{
		"addr":     cfg.Addr(),
		"db":       cfg.DB,
		"attempts": result.Attempts,
	}).Info("Connected to Redis")
	return client, nil
}
