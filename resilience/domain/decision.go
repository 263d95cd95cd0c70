package domain

import "time"

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration

	Limit     int
	Remaining int
	// ResetAt is the end of the window the request was counted in.
	ResetAt time.Time
	// Degraded is true when the decision came from the process-local counter.
	Degraded bool
}

// FetchSource tells where a fetched value came from.
type FetchSource string

const (
	SourceCache  FetchSource = "cache"
	SourceOrigin FetchSource = "origin"
	SourceStale  FetchSource = "stale"
)

// FetchResult is the value returned by the cache-aside fetcher.
type FetchResult struct {
	Value  []byte
	Source FetchSource
}

// Stale reports whether the value was served from the fallback path.
func (r FetchResult) Stale() bool {
	return r.Source == SourceStale
}
