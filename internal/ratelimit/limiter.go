// Package ratelimit provides per-client request budgets for the HTTP API.
package ratelimit

import (
	"context"
	"time"
)

// Backend names reported in Result.Backend
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Result captures the outcome of a rate-limit evaluation
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	Backend   string
}

// RetryAfter is the wait before the next request can succeed, rounded up to whole seconds
func (r *Result) RetryAfter(now time.Time) int {
	wait := r.ResetAt.Sub(now)
	if wait <= 0 {
		return 1
	}
	secs := int(wait / time.Second)
	if wait%time.Second != 0 {
		secs++
	}
	return secs
}

// Limiter decides whether the caller identified by key may make another
// request. A rejected request is reported through Result.Allowed, not an error;
// errors mean the backend could not be consulted.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}
