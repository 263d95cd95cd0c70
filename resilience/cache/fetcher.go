// Package cache implements the cache-aside accessor in front of the external
// data source.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/AzielCF/az-users/resilience/domain"
	"github.com/AzielCF/az-users/resilience/metrics"
)

const (
	DefaultTTL           = time.Hour
	DefaultSourceTimeout = 5 * time.Second

	lastKnownGoodSuffix = ":lkg"
)

// Options configures a Fetcher. Zero values fall back to the defaults.
type Options struct {
	// TTL of the primary cache entry.
	TTL time.Duration
	// StaleTTL is the retention of the last-known-good copy used when the
	// source fails after the primary entry expired. Zero disables the copy.
	StaleTTL time.Duration
	// SourceTimeout bounds one call to the external source.
	SourceTimeout time.Duration
	Metrics       metrics.Recorder
}

// Fetcher reads through the shared store and the external source.
//
// A store hit never calls the source. A miss calls the source once; on
// success the value is cached, on failure whatever is still stored under the
// key is served as stale. Store failures are treated as misses and are never
// returned to the caller. The only error Fetch returns is
// domain.ErrSourceUnavailable.
type Fetcher struct {
	store  domain.SharedStore
	source domain.ExternalSource
	health domain.AvailabilityChecker
	opts   Options

	group singleflight.Group
}

// NewFetcher creates a fetcher. health may be nil, in which case the store is
// always tried.
func NewFetcher(store domain.SharedStore, source domain.ExternalSource, health domain.AvailabilityChecker, opts Options) *Fetcher {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = DefaultSourceTimeout
	}
	if opts.StaleTTL < 0 {
		opts.StaleTTL = 0
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	return &Fetcher{
		store:  store,
		source: source,
		health: health,
		opts:   opts,
	}
}

func (f *Fetcher) storeAvailable() bool {
	return f.health == nil || f.health.IsAvailable()
}

// Fetch returns the value for key.
func (f *Fetcher) Fetch(ctx context.Context, key string) (domain.FetchResult, error) {
	if f.storeAvailable() {
		if v, ok := f.get(ctx, key); ok {
			f.opts.Metrics.CacheResult(metrics.CacheHit)
			logrus.Debugf("[CACHE] hit %s", key)
			return domain.FetchResult{Value: v, Source: domain.SourceCache}, nil
		}
	}

	// Concurrent misses on one key share a single source call. The shared call
	// must not die with the first caller's request.
	res, err, shared := f.group.Do(key, func() (any, error) {
		return f.miss(context.WithoutCancel(ctx), key)
	})
	if shared {
		logrus.Debugf("[CACHE] coalesced miss on %s", key)
	}
	if err != nil {
		return domain.FetchResult{}, err
	}
	return res.(domain.FetchResult), nil
}

func (f *Fetcher) miss(ctx context.Context, key string) (domain.FetchResult, error) {
	srcCtx, cancel := context.WithTimeout(ctx, f.opts.SourceTimeout)
	value, srcErr := f.source.FetchOnce(srcCtx)
	cancel()

	if srcErr == nil {
		f.opts.Metrics.CacheResult(metrics.CacheMiss)
		f.fill(ctx, key, value)
		return domain.FetchResult{Value: value, Source: domain.SourceOrigin}, nil
	}

	logrus.WithError(srcErr).Warnf("[CACHE] source failed for %s, trying stored copy", key)

	// Last resort: read even when the detector reports the store as down.
	if v, ok := f.get(ctx, key); ok {
		return f.stale(key, v), nil
	}
	if f.opts.StaleTTL > 0 {
		if v, ok := f.get(ctx, key+lastKnownGoodSuffix); ok {
			return f.stale(key, v), nil
		}
	}

	f.opts.Metrics.CacheResult(metrics.CacheUnavailable)
	return domain.FetchResult{}, fmt.Errorf("%w (%s): %v", domain.ErrSourceUnavailable, key, srcErr)
}

func (f *Fetcher) stale(key string, v []byte) domain.FetchResult {
	f.opts.Metrics.CacheResult(metrics.CacheStale)
	logrus.Warnf("[CACHE] serving stale %s (%s)", key, humanize.Bytes(uint64(len(v))))
	return domain.FetchResult{Value: v, Source: domain.SourceStale}
}

func (f *Fetcher) get(ctx context.Context, key string) ([]byte, bool) {
	v, found, err := f.store.Get(ctx, key)
	if err != nil {
		f.opts.Metrics.StoreError("get")
		logrus.WithError(err).Warnf("[CACHE] read of %s failed, treating as miss", key)
		return nil, false
	}
	return v, found
}

func (f *Fetcher) fill(ctx context.Context, key string, value []byte) {
	if !f.storeAvailable() {
		logrus.Debugf("[CACHE] store unavailable, %s not cached", key)
		return
	}
	if err := f.store.SetWithTTL(ctx, key, value, f.opts.TTL); err != nil {
		f.opts.Metrics.StoreError("set")
		logrus.WithError(err).Warnf("[CACHE] write of %s failed", key)
		return
	}
	if f.opts.StaleTTL > 0 {
		if err := f.store.SetWithTTL(ctx, key+lastKnownGoodSuffix, value, f.opts.StaleTTL); err != nil {
			f.opts.Metrics.StoreError("set")
			logrus.WithError(err).Warnf("[CACHE] write of last-known-good %s failed", key)
		}
	}
	logrus.Debugf("[CACHE] stored %s (%s, ttl %s)", key, humanize.Bytes(uint64(len(value))), f.opts.TTL)
}

// Invalidate removes the cached value so the next Fetch goes to the source.
// The last-known-good copy is kept: an invalidation must never leave a later
// source outage without anything to serve.
func (f *Fetcher) Invalidate(ctx context.Context, key string) error {
	if err := f.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to invalidate %s: %w", key, err)
	}
	return nil
}
