package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AzielCF/az-users/resilience/domain"
)

// fakeStore is a map-backed SharedStore that can be told to fail.
type fakeStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	getErrs int // number of upcoming Get calls that fail
	down    bool

	gets, sets, deletes atomic.Int32
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

var errConn = errors.New("dial tcp: connection refused")

func (s *fakeStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.gets.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, false, errConn
	}
	if s.getErrs > 0 {
		s.getErrs--
		return nil, false, errConn
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *fakeStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.sets.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errConn
	}
	s.data[key] = value
	s.ttls[key] = ttl
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, key string) error {
	s.deletes.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errConn
	}
	delete(s.data, key)
	return nil
}

func (s *fakeStore) IncrementAndGet(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return 0, errors.New("not used")
}

func (s *fakeStore) Ping(ctx context.Context) error { return nil }

func (s *fakeStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok
}

type fakeSource struct {
	value []byte
	err   error
	block chan struct{}
	calls atomic.Int32
}

func (s *fakeSource) FetchOnce(ctx context.Context) ([]byte, error) {
	s.calls.Add(1)
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.value, s.err
}

type fixedHealth bool

func (h fixedHealth) IsAvailable() bool { return bool(h) }

func TestFetch_HitDoesNotCallSource(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.data["external_data"] = []byte(`{"v":1}`)
	src := &fakeSource{value: []byte(`{"v":2}`)}
	f := NewFetcher(store, src, nil, Options{})

	for i := 0; i < 2; i++ {
		res, err := f.Fetch(ctx, "external_data")
		require.NoError(t, err)
		assert.Equal(t, `{"v":1}`, string(res.Value))
		assert.Equal(t, domain.SourceCache, res.Source)
	}
	assert.Equal(t, int32(0), src.calls.Load())
}

func TestFetch_MissFillsCache(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	src := &fakeSource{value: []byte("payload")}
	f := NewFetcher(store, src, nil, Options{TTL: time.Hour})

	res, err := f.Fetch(ctx, "external_data")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(res.Value))
	assert.Equal(t, domain.SourceOrigin, res.Source)
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, time.Hour, store.ttls["external_data"])
	assert.False(t, store.has("external_data"+lastKnownGoodSuffix), "no last-known-good copy when disabled")

	res, err = f.Fetch(ctx, "external_data")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceCache, res.Source)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestFetch_WritesLastKnownGood(t *testing.T) {
	store := newFakeStore()
	f := NewFetcher(store, &fakeSource{value: []byte("v")}, nil, Options{TTL: time.Minute, StaleTTL: 24 * time.Hour})

	_, err := f.Fetch(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, store.ttls["k"+lastKnownGoodSuffix])
}

func TestFetch_StaleFallbackOnReread(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.data["external_data"] = []byte("old")
	store.getErrs = 1 // first read is a transient failure, treated as a miss
	src := &fakeSource{err: errors.New("timeout")}
	f := NewFetcher(store, src, nil, Options{})

	res, err := f.Fetch(ctx, "external_data")
	require.NoError(t, err)
	assert.Equal(t, "old", string(res.Value))
	assert.True(t, res.Stale())
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, int32(0), store.sets.Load(), "stale path never writes")
}

func TestFetch_StaleFromLastKnownGood(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.data["external_data"+lastKnownGoodSuffix] = []byte("older")
	src := &fakeSource{err: errors.New("502 bad gateway")}
	f := NewFetcher(store, src, nil, Options{StaleTTL: time.Hour})

	res, err := f.Fetch(ctx, "external_data")
	require.NoError(t, err)
	assert.Equal(t, "older", string(res.Value))
	assert.Equal(t, domain.SourceStale, res.Source)
	assert.Equal(t, int32(0), store.sets.Load())
}

func TestFetch_Exhaustion(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	src := &fakeSource{err: errors.New("timeout")}
	f := NewFetcher(store, src, nil, Options{StaleTTL: time.Hour})

	_, err := f.Fetch(ctx, "external_data")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.Equal(t, int32(1), src.calls.Load(), "no retry within one fetch")
	assert.Equal(t, int32(0), store.sets.Load())
}

func TestFetch_StoreDownIsAMiss(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.down = true
	src := &fakeSource{value: []byte("fresh")}
	f := NewFetcher(store, src, nil, Options{})

	res, err := f.Fetch(ctx, "external_data")
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(res.Value))
	assert.Equal(t, domain.SourceOrigin, res.Source)
}

func TestFetch_UnavailableStoreSkipsPrimaryRead(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.data["k"] = []byte("cached")
	src := &fakeSource{value: []byte("fresh")}
	f := NewFetcher(store, src, fixedHealth(false), Options{})

	res, err := f.Fetch(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(res.Value))
	assert.Equal(t, int32(0), store.gets.Load())
	assert.Equal(t, int32(0), store.sets.Load())

	// the source failing still falls back to whatever the store holds
	src.err = errors.New("down")
	res, err = f.Fetch(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "cached", string(res.Value))
	assert.True(t, res.Stale())
}

func TestFetch_CoalescesConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	src := &fakeSource{value: []byte("v"), block: make(chan struct{})}
	f := NewFetcher(store, src, nil, Options{})

	const n = 10
	var wg sync.WaitGroup
	results := make(chan domain.FetchResult, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.Fetch(ctx, "k")
			if err == nil {
				results <- res
			}
		}()
	}

	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)
	// let every goroutine reach the in-flight call before releasing it
	time.Sleep(20 * time.Millisecond)
	close(src.block)
	wg.Wait()
	close(results)

	count := 0
	for res := range results {
		assert.Equal(t, "v", string(res.Value))
		count++
	}
	assert.Equal(t, n, count)
	assert.LessOrEqual(t, src.calls.Load(), int32(n))
	assert.GreaterOrEqual(t, src.calls.Load(), int32(1))
}

func TestFetch_SourceTimeout(t *testing.T) {
	store := newFakeStore()
	src := &fakeSource{value: []byte("late"), block: make(chan struct{})}
	f := NewFetcher(store, src, nil, Options{SourceTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := f.Fetch(context.Background(), "k")
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.Less(t, time.Since(start), time.Second)
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	f := NewFetcher(store, &fakeSource{value: []byte("v")}, nil, Options{StaleTTL: time.Hour})

	_, err := f.Fetch(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, f.Invalidate(ctx, "k"))
	assert.False(t, store.has("k"))
	assert.True(t, store.has("k"+lastKnownGoodSuffix))

	store.down = true
	assert.Error(t, f.Invalidate(ctx, "k"))
}

func TestInvalidate_SourceDownServesLastKnownGood(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	src := &fakeSource{value: []byte("v1")}
	f := NewFetcher(store, src, nil, Options{StaleTTL: time.Hour})

	_, err := f.Fetch(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, f.Invalidate(ctx, "k"))

	src.err = errors.New("boom")
	res, err := f.Fetch(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceStale, res.Source)
	assert.Equal(t, "v1", string(res.Value))
}
