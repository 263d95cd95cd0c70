// Package ratelimit implements fixed-window request limiting on counters
// shared by every instance, with a process-local fallback while the shared
// store is unreachable.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AzielCF/az-users/resilience/domain"
	"github.com/AzielCF/az-users/resilience/metrics"
)

// Config describes one limiter instance.
type Config struct {
	// Name is part of every counter key, so limiters never share counts.
	Name   string
	Window time.Duration
	Max    int
	// LocalCapacity bounds the fallback counter map.
	LocalCapacity int
	Metrics       metrics.Recorder
}

// Limiter admits or rejects requests per client and fixed window.
type Limiter struct {
	name    string
	window  time.Duration
	max     int
	metrics metrics.Recorder

	distributed CounterStrategy
	local       *LocalStrategy
	health      domain.AvailabilityChecker

	now func() time.Time
}

// New creates a limiter counting in store. health may be nil, in which case
// the store is always tried first.
func New(cfg Config, store domain.SharedStore, health domain.AvailabilityChecker) (*Limiter, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("rate limiter name is required")
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("rate limiter %s: window must be positive", cfg.Name)
	}
	if cfg.Max <= 0 {
		return nil, fmt.Errorf("rate limiter %s: max must be positive", cfg.Name)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Noop{}
	}

	var distributed CounterStrategy
	if store != nil {
		distributed = NewDistributedStrategy(store)
	}

	return &Limiter{
		name:        cfg.Name,
		window:      cfg.Window,
		max:         cfg.Max,
		metrics:     cfg.Metrics,
		distributed: distributed,
		local:       NewLocalStrategy(cfg.LocalCapacity),
		health:      health,
		now:         time.Now,
	}, nil
}

// Name returns the limiter name.
func (l *Limiter) Name() string { return l.name }

// Admit counts one request from clientKey and decides whether it may proceed.
// Rejected requests are counted too. Store failures never reject a request:
// the call is counted locally instead.
func (l *Limiter) Admit(ctx context.Context, clientKey string) domain.Decision {
	now := l.now()
	windowStart := l.windowStart(now)
	resetAt := windowStart.Add(l.window)
	key := l.counterKey(clientKey, windowStart)

	count, strategy := l.increment(ctx, key, resetAt)

	d := domain.Decision{
		Allowed:  count <= int64(l.max),
		Limit:    l.max,
		ResetAt:  resetAt,
		Degraded: strategy == l.local,
	}
	if remaining := int64(l.max) - count; remaining > 0 {
		d.Remaining = int(remaining)
	}
	if !d.Allowed {
		d.RetryAfter = resetAt.Sub(now)
		logrus.WithFields(logrus.Fields{
			"limiter": l.name,
			"client":  clientKey,
			"count":   count,
			"backend": strategy.Backend(),
		}).Debug("[RATELIMIT] request rejected")
	}

	l.metrics.RateLimitDecision(l.name, strategy.Backend(), d.Allowed)
	return d
}

func (l *Limiter) increment(ctx context.Context, key string, resetAt time.Time) (int64, CounterStrategy) {
	if l.distributed != nil && (l.health == nil || l.health.IsAvailable()) {
		count, err := l.distributed.Increment(ctx, key, resetAt)
		if err == nil {
			return count, l.distributed
		}
		l.metrics.StoreError("increment")
		logrus.WithError(err).Warnf("[RATELIMIT] %s: shared counter failed, counting locally", l.name)
	}

	// The local map cannot fail.
	count, _ := l.local.Increment(ctx, key, resetAt)
	return count, l.local
}

// windowStart aligns now down to a multiple of the window since the Unix epoch,
// so every instance agrees on window boundaries.
func (l *Limiter) windowStart(now time.Time) time.Time {
	ms := now.UnixMilli()
	w := l.window.Milliseconds()
	if w <= 0 {
		w = 1
	}
	return time.UnixMilli(ms - ms%w)
}

func (l *Limiter) counterKey(clientKey string, windowStart time.Time) string {
	return "ratelimit:" + l.name + ":" + clientKey + ":" + strconv.FormatInt(windowStart.UnixMilli(), 10)
}

// HandleAvailability is meant to be registered on the degradation detector.
// When the shared store comes back every local counter is discarded.
func (l *Limiter) HandleAvailability(available bool) {
	if !available {
		return
	}
	if n := l.local.Len(); n > 0 {
		logrus.Infof("[RATELIMIT] %s: shared store is back, discarding %d local counters", l.name, n)
	}
	l.local.Reset()
}
