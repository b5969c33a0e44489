// Package main provides the API server entry point for the portal service.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/portal-hub/internal/api"
	"github.com/portal-hub/internal/circuitbreaker"
	"github.com/portal-hub/internal/config"
	apperrors "github.com/portal-hub/internal/errors"
	"github.com/portal-hub/internal/job"
	"github.com/portal-hub/internal/logging"
	"github.com/portal-hub/internal/metrics"
	"github.com/portal-hub/internal/models"
	"github.com/portal-hub/internal/ratelimit"
	"github.com/portal-hub/internal/retry"
	"github.com/portal-hub/internal/service"
	"github.com/portal-hub/internal/storage"
	"github.com/portal-hub/internal/types"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Metrics registry with process and store collectors
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Entity store; all state lives in memory for the life of the process
	store := storage.NewMemoryStore()
	registry.MustRegister(metrics.NewStoreCollector(store))

	accounts := service.NewAccountService(store, cfg.Auth.BcryptCost, logger)
	if cfg.Seed.Enabled {
		user, created, err := accounts.SeedDemoUser(ctx, models.NewUser{
			Username: cfg.Seed.Username,
			Password: cfg.Seed.Password,
			Name:     cfg.Seed.Name,
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to seed demo user")
		}
		logger.WithFields(map[string]interface{}{
			"user_id": user.ID,
			"created": created,
		}).Info("Demo user ready")
	}

	limiter := buildLimiter(ctx, cfg, m, logger)

	// Reply queue for delayed assistant answers
	replyQueue := job.NewReplyQueue(job.QueueConfig{
		Workers:    cfg.Assistant.Workers,
		MaxPending: cfg.Assistant.QueueSize,
		Logger:     logger,
		OnDrop: func(*job.Job) {
			m.RecordAssistantReply(metrics.ReplyDropped)
		},
	})
	if err := replyQueue.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start reply queue")
	}
	registry.MustRegister(metrics.NewQueueCollector(replyQueue))

	assistantRetry := retry.DefaultRetryConfig()
	assistantRetry.MaxAttempts = cfg.Assistant.MaxAttempts
	assistantRetry.ShouldRetry = apperrors.IsRetryable
	assistant := service.NewAssistantService(
		store,
		service.NewKeywordResponder(),
		replyQueue,
		m,
		service.AssistantConfig{ReplyDelay: cfg.Assistant.ReplyDelay, Retry: assistantRetry},
		logger,
	)

	serverConfig := &api.ServerConfig{
		Addr:              cfg.Server.Addr(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		RateLimitEnabled:  cfg.RateLimit.Enabled,
		RateLimitRequests: cfg.RateLimit.Requests,
		RateLimitWindow:   cfg.RateLimit.Window,
	}

	server := api.NewServer(serverConfig, api.Dependencies{
		Accounts:    accounts,
		Preferences: service.NewPreferencesService(store),
		Assistant:   assistant,
		Records:     store,
		Limiter:     limiter,
		Metrics:     m,
		Gatherer:    registry,
		Logger:      logger,
	})

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithField("addr", cfg.Server.Addr()).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if err := replyQueue.Stop(); err != nil {
		logger.WithError(err).Warn("Reply queue stop")
	}
	stop()

	counts := store.Counts()
	logger.WithFields(map[string]interface{}{
		"users":    counts.Users,
		"sites":    counts.Sites,
		"messages": counts.Messages,
	}).Info("Server exited, in-memory state discarded")
}

// buildLimiter returns the limiter for the configured backend. The Redis
// backend is wrapped so that an unreachable server degrades to in-memory budgets.
func buildLimiter(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *logging.Logger) ratelimit.Limiter {
	memory := ratelimit.NewMemoryLimiter(cfg.RateLimit.Burst)
	go memory.Run(ctx, time.Minute, 10*cfg.RateLimit.Window)

	if types.RateLimitBackend(cfg.RateLimit.Backend) != types.RateLimitRedis {
		return memory
	}

	client, err := ratelimit.NewRedisClient(ctx, &cfg.Redis, nil, logger)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable at startup, rate limits fall back to memory until it recovers")
	}
	go func() {
		<-ctx.Done()
		_ = client.Close()
	}()

	breaker := circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{
		Name:             "ratelimit-redis",
		MaxFailures:      cfg.RateLimit.BreakerThreshold,
		Timeout:          cfg.RateLimit.BreakerTimeout,
		HalfOpenMaxCalls: 1,
		OnStateChange:    m.SetBreakerState,
	})

	return ratelimit.NewFallbackLimiter(ratelimit.NewRedisLimiter(client, logger), memory, breaker, logger)
}
