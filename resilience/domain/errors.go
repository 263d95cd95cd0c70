package domain

import "errors"

var (
	// ErrSourceUnavailable is returned by Fetch when the external source failed
	// and no cached data exists for the key.
	ErrSourceUnavailable = errors.New("source unavailable, no cached data")

	// ErrStoreUnavailable marks store failures caused by connectivity rather
	// than by the command itself.
	ErrStoreUnavailable = errors.New("shared store unavailable")
)
