// Package metrics defines the instrumentation hooks of the resilience layer.
package metrics

// Cache outcomes reported by the fetcher.
const (
	CacheHit         = "hit"
	CacheMiss        = "miss"
	CacheStale       = "stale"
	CacheUnavailable = "unavailable"
)

// Rate limiter backends.
const (
	BackendDistributed = "distributed"
	BackendLocal       = "local"
)

// Recorder receives resilience events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	CacheResult(outcome string)
	StoreError(op string)
	RateLimitDecision(limiter, backend string, allowed bool)
	StoreAvailable(available bool)
}

// Noop discards every event.
type Noop struct{}

func (Noop) CacheResult(string)                     {}
func (Noop) StoreError(string)                      {}
func (Noop) RateLimitDecision(string, string, bool) {}
func (Noop) StoreAvailable(bool)                    {}

var _ Recorder = Noop{}
