package application

import (
	"context"
	"encoding/json"
	"errors"

	pkgError "github.com/AzielCF/az-users/pkg/error"
	"github.com/AzielCF/az-users/resilience/domain"
)

// CacheKey is the shared-store key of the external payload.
const CacheKey = "external_data"

// Fetcher is the cache-aside accessor used by the service.
type Fetcher interface {
	Fetch(ctx context.Context, key string) (domain.FetchResult, error)
	Invalidate(ctx context.Context, key string) error
}

// ExternalData is the payload served to clients.
type ExternalData struct {
	Data   any
	Source domain.FetchSource
}

type ExternalDataService struct {
	fetcher Fetcher
}

func NewExternalDataService(fetcher Fetcher) *ExternalDataService {
	return &ExternalDataService{fetcher: fetcher}
}

// Get returns the external data, from cache when possible.
func (s *ExternalDataService) Get(ctx context.Context) (*ExternalData, error) {
	res, err := s.fetcher.Fetch(ctx, CacheKey)
	if err != nil {
		if errors.Is(err, domain.ErrSourceUnavailable) {
			return nil, pkgError.ServiceUnavailableError("External service unavailable and no cached data")
		}
		return nil, err
	}
	return &ExternalData{Data: decode(res.Value), Source: res.Source}, nil
}

// Refresh drops the cached copy so the next Get goes to the source.
func (s *ExternalDataService) Refresh(ctx context.Context) error {
	return s.fetcher.Invalidate(ctx, CacheKey)
}

// decode keeps JSON payloads as JSON and anything else as text.
func decode(raw []byte) any {
	if json.Valid(raw) {
		return json.RawMessage(raw)
	}
	return string(raw)
}
