package repository

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/AzielCF/az-users/resilience/domain"
)

// SwitchStore forwards every call to the current backend, which can be
// replaced at runtime. It lets the service start on a placeholder and move to
// Valkey once a connection can be made.
type SwitchStore struct {
	current atomic.Pointer[storeRef]
}

type storeRef struct {
	store domain.SharedStore
}

var _ domain.SharedStore = (*SwitchStore)(nil)

func NewSwitchStore(initial domain.SharedStore) *SwitchStore {
	s := &SwitchStore{}
	s.current.Store(&storeRef{store: initial})
	return s
}

// Swap installs next and returns the previous backend.
func (s *SwitchStore) Swap(next domain.SharedStore) domain.SharedStore {
	return s.current.Swap(&storeRef{store: next}).store
}

// Current returns the backend calls are forwarded to.
func (s *SwitchStore) Current() domain.SharedStore {
	return s.current.Load().store
}

func (s *SwitchStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.Current().Get(ctx, key)
}

func (s *SwitchStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.Current().SetWithTTL(ctx, key, value, ttl)
}

func (s *SwitchStore) Delete(ctx context.Context, key string) error {
	return s.Current().Delete(ctx, key)
}

func (s *SwitchStore) IncrementAndGet(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return s.Current().IncrementAndGet(ctx, key, ttl)
}

func (s *SwitchStore) Ping(ctx context.Context) error {
	return s.Current().Ping(ctx)
}
