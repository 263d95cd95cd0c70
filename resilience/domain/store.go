// Package domain holds the contracts of the resilience layer: the shared
// key-value store, the external data source and the values exchanged with
// the HTTP layer.
package domain

import (
	"context"
	"time"
)

// SharedStore is a network key-value store shared by every service instance.
// It is used both as the data cache and as the rate-limit counter backend.
type SharedStore interface {
	// Get returns found=false, err=nil when the key is absent or expired.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// IncrementAndGet atomically adds one to the counter at key and returns
	// the new value. The ttl is applied when the increment creates the key.
	IncrementAndGet(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

// ExternalSource is the remote provider fronted by the cache.
type ExternalSource interface {
	FetchOnce(ctx context.Context) ([]byte, error)
}

// AvailabilityChecker reports whether SharedStore is currently usable.
type AvailabilityChecker interface {
	IsAvailable() bool
}
