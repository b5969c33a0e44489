package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type memoryEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter keeps a token bucket per key inside this process.
// The refill rate is limit/window; burst caps how many requests may arrive at once.
type MemoryLimiter struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	burst   int
	now     func() time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter creates an in-process limiter. burst <= 0 uses the per-call limit as the burst.
func NewMemoryLimiter(burst int) *MemoryLimiter {
	return &MemoryLimiter{
		entries: make(map[string]*memoryEntry),
		burst:   burst,
		now:     time.Now,
	}
}

// Check consumes one token for key if one is available
func (m *MemoryLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	now := m.now()

	if limit <= 0 || window <= 0 {
		return &Result{Allowed: false, Limit: limit, ResetAt: now.Add(window), Backend: BackendMemory}, nil
	}

	every := rate.Limit(float64(limit) / window.Seconds())
	lim := m.getLimiter(key, every, m.burstFor(limit), now)

	allowed := lim.AllowN(now, 1)
	tokens := lim.TokensAt(now)

	remaining := int(math.Floor(tokens))
	if remaining < 0 {
		remaining = 0
	}

	resetAt := now
	if tokens < 1 {
		missing := 1 - tokens
		resetAt = now.Add(time.Duration(missing / float64(every) * float64(time.Second)))
	}

	return &Result{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
		Backend:   BackendMemory,
	}, nil
}

func (m *MemoryLimiter) burstFor(limit int) int {
	if m.burst > 0 {
		return m.burst
	}
	return limit
}

// getLimiter returns the bucket for key, creating it on first use
func (m *MemoryLimiter) getLimiter(key string, every rate.Limit, burst int, now time.Time) *rate.Limiter {
	m.mu.RLock()
	entry, exists := m.entries[key]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		// Double-check in case another goroutine created it
		if entry, exists = m.entries[key]; !exists {
			entry = &memoryEntry{limiter: rate.NewLimiter(every, burst)}
			m.entries[key] = entry
		}
		entry.lastSeen = now
		m.mu.Unlock()
		return entry.limiter
	}

	if entry.limiter.Limit() != every {
		entry.limiter.SetLimitAt(now, every)
	}
	if entry.limiter.Burst() != burst {
		entry.limiter.SetBurstAt(now, burst)
	}

	m.mu.Lock()
	entry.lastSeen = now
	m.mu.Unlock()
	return entry.limiter
}

// Cleanup drops buckets that have been idle for longer than maxAge
func (m *MemoryLimiter) Cleanup(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	cutoff := m.now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, entry := range m.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Run sweeps idle buckets every interval until ctx is cancelled
func (m *MemoryLimiter) Run(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Cleanup(maxAge)
		}
	}
}

// Len returns the number of tracked keys
func (m *MemoryLimiter) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
