// Package ratelimit implements fixed-window request counting keyed by
// client identity. Counter storage sits behind the Store interface so the
// in-process table can be swapped for a shared Redis store in
// multi-instance deployments.
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrLimitExceeded indicates the key spent its budget for the current window.
var ErrLimitExceeded = errors.New("ratelimit: limit exceeded")

// Config bounds requests per key within a fixed window.
type Config struct {
	MaxRequests int
	Window      time.Duration
}

// Endpoint-class presets. Callers of the gateway pick one per policy;
// nothing here is applied implicitly.
var (
	Default   = Config{MaxRequests: 100, Window: 15 * time.Minute}
	Auth      = Config{MaxRequests: 10, Window: 15 * time.Minute}
	Admin     = Config{MaxRequests: 200, Window: 15 * time.Minute}
	Dashboard = Config{MaxRequests: 50, Window: 5 * time.Minute}
)

// Decision is the outcome of one counter hit.
type Decision struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Store counts hits per key with fixed-window semantics: the first hit in
// a window (or any hit after the stored window expired) resets the count
// to one; at the cap the hit is denied without incrementing.
type Store interface {
	Hit(ctx context.Context, key string, cfg Config) (Decision, error)
}

// Limiter gates requests against a Store.
type Limiter struct {
	store  Store
	logger *slog.Logger
}

// NewLimiter constructs a Limiter.
func NewLimiter(store Store, logger *slog.Logger) *Limiter {
	return &Limiter{store: store, logger: logger}
}

// Check returns ErrLimitExceeded when the key is over budget. A store
// failure fails open with a logged warning: the shared store is an
// availability optimization, not the correctness baseline.
func (l *Limiter) Check(ctx context.Context, key string, cfg Config) error {
	if cfg.MaxRequests <= 0 || cfg.Window <= 0 {
		return nil
	}
	decision, err := l.store.Hit(ctx, key, cfg)
	if err != nil {
		if l.logger != nil {
			l.logger.Warn("rate limit store unavailable", slog.String("key", key), slog.Any("error", err))
		}
		return nil
	}
	if !decision.Allowed {
		return ErrLimitExceeded
	}
	return nil
}
