package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/portal-hub/internal/circuitbreaker"
	apperrors "github.com/portal-hub/internal/errors"
	"github.com/portal-hub/internal/logging"
)

// FallbackLimiter consults the primary limiter through a circuit breaker and
// answers from the fallback limiter whenever the primary fails or the circuit
// is open. It returns an error only when both backends fail; the error then
// carries the primary failure as a BACKEND_ERROR.
type FallbackLimiter struct {
	primary  Limiter
	fallback Limiter
	breaker  *circuitbreaker.CircuitBreaker
	logger   *logging.Logger
}

var _ Limiter = (*FallbackLimiter)(nil)

// NewFallbackLimiter wires primary behind breaker with fallback as the degraded path
func NewFallbackLimiter(primary, fallback Limiter, breaker *circuitbreaker.CircuitBreaker, logger *logging.Logger) *FallbackLimiter {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &FallbackLimiter{
		primary:  primary,
		fallback: fallback,
		breaker:  breaker,
		logger:   logger,
	}
}

// Check implements Limiter
func (f *FallbackLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	var result *Result
	err := f.breaker.Execute(ctx, func(ctx context.Context) error {
		r, err := f.primary.Check(ctx, key, limit, window)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err == nil {
		return result, nil
	}

	backendErr := apperrors.NewBackendError("check", err)
	stats := f.breaker.GetStats()
	log := f.logger.WithFields(map[string]interface{}{
		"key":               key,
		"breaker_state":     stats.State,
		"consecutive_fails": stats.ConsecutiveFails,
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		log.Debug("Rate limit backend circuit open, using fallback")
	} else {
		log.WithError(backendErr).Warn("Rate limit backend failed, using fallback")
	}

	result, fallbackErr := f.fallback.Check(ctx, key, limit, window)
	if fallbackErr != nil {
		return nil, errors.Join(backendErr, fallbackErr)
	}
	return result, nil
}
