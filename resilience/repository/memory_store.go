package repository

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AzielCF/az-users/resilience/domain"
)

// MemoryStore implements domain.SharedStore with a map in process memory.
// It backs single-instance deployments and tests. Data is lost on restart and
// is not shared between instances.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	now     func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

type memoryEntry struct {
	value    []byte
	expireAt time.Time
}

var _ domain.SharedStore = (*MemoryStore)(nil)

// NewMemoryStore creates a store and starts its cleanup loop.
func NewMemoryStore() *MemoryStore {
	ms := newMemoryStore(time.Now)
	go ms.cleanupLoop(30 * time.Second)
	return ms
}

func newMemoryStore(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     now,
		stop:    make(chan struct{}),
	}
}

func (ms *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	e, ok := ms.entries[key]
	if !ok || !ms.now().Before(e.expireAt) {
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (ms *MemoryStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	v := make([]byte, len(value))
	copy(v, value)

	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.entries[key] = &memoryEntry{value: v, expireAt: ms.now().Add(ttl)}
	return nil
}

func (ms *MemoryStore) Delete(ctx context.Context, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.entries, key)
	return nil
}

func (ms *MemoryStore) IncrementAndGet(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	e, ok := ms.entries[key]
	if !ok || !now.Before(e.expireAt) {
		ms.entries[key] = &memoryEntry{value: []byte("1"), expireAt: now.Add(ttl)}
		return 1, nil
	}

	n, err := strconv.ParseInt(string(e.value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("value under %q is not a counter: %w", key, err)
	}
	n++
	e.value = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

// Ping always succeeds: the map is in the same process.
func (ms *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (ms *MemoryStore) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.entries)
}

// Close stops the cleanup loop.
func (ms *MemoryStore) Close() {
	ms.stopOnce.Do(func() { close(ms.stop) })
}

func (ms *MemoryStore) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ms.stop:
			return
		case <-ticker.C:
			ms.cleanup()
		}
	}
}

func (ms *MemoryStore) cleanup() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	removed := 0
	for key, e := range ms.entries {
		if !now.Before(e.expireAt) {
			delete(ms.entries, key)
			removed++
		}
	}
	if removed > 0 {
		logrus.Debugf("[MemoryStore] Cleaned up %d expired entries", removed)
	}
}
