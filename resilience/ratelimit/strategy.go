package ratelimit

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/AzielCF/az-users/resilience/domain"
	"github.com/AzielCF/az-users/resilience/metrics"
)

// CounterStrategy counts hits of one (client, window) counter.
type CounterStrategy interface {
	// Increment adds one to the counter and returns the new count. The counter
	// must disappear by expireAt at the latest.
	Increment(ctx context.Context, key string, expireAt time.Time) (int64, error)
	Backend() string
}

// DistributedStrategy keeps counters in the shared store so every instance
// sees the same count.
type DistributedStrategy struct {
	store domain.SharedStore
	now   func() time.Time
}

func NewDistributedStrategy(store domain.SharedStore) *DistributedStrategy {
	return &DistributedStrategy{store: store, now: time.Now}
}

func (s *DistributedStrategy) Increment(ctx context.Context, key string, expireAt time.Time) (int64, error) {
	ttl := expireAt.Sub(s.now())
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	return s.store.IncrementAndGet(ctx, key, ttl)
}

func (s *DistributedStrategy) Backend() string { return metrics.BackendDistributed }

// DefaultLocalCapacity bounds the number of counters held by a LocalStrategy.
const DefaultLocalCapacity = 10000

// LocalStrategy keeps counters in process memory. It is used while the shared
// store is unreachable. The least recently used counter is dropped when the
// capacity is reached.
type LocalStrategy struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List // front = most recently used
	now      func() time.Time
}

type localCounter struct {
	key      string
	count    int64
	expireAt time.Time
}

func NewLocalStrategy(capacity int) *LocalStrategy {
	if capacity <= 0 {
		capacity = DefaultLocalCapacity
	}
	return &LocalStrategy{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

func (s *LocalStrategy) Increment(_ context.Context, key string, expireAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if el, ok := s.items[key]; ok {
		c := el.Value.(*localCounter)
		if now.Before(c.expireAt) {
			c.count++
			s.order.MoveToFront(el)
			return c.count, nil
		}
		s.remove(el)
	}

	s.evictExpired(now)
	for s.order.Len() >= s.capacity {
		s.remove(s.order.Back())
	}

	c := &localCounter{key: key, count: 1, expireAt: expireAt}
	s.items[key] = s.order.PushFront(c)
	return 1, nil
}

// evictExpired drops expired counters from the cold end of the list.
func (s *LocalStrategy) evictExpired(now time.Time) {
	for el := s.order.Back(); el != nil; {
		prev := el.Prev()
		if !now.Before(el.Value.(*localCounter).expireAt) {
			s.remove(el)
		}
		el = prev
		if s.order.Len() < s.capacity {
			return
		}
	}
}

func (s *LocalStrategy) remove(el *list.Element) {
	s.order.Remove(el)
	delete(s.items, el.Value.(*localCounter).key)
}

// Reset discards every local counter. Local counts are never merged into the
// shared store.
func (s *LocalStrategy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*list.Element)
	s.order.Init()
}

// Len returns the number of counters held.
func (s *LocalStrategy) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func (s *LocalStrategy) Backend() string { return metrics.BackendLocal }
