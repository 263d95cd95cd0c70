package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	valkeylib "github.com/valkey-io/valkey-go"

	"github.com/AzielCF/az-users/infrastructure/valkey"
	"github.com/AzielCF/az-users/resilience/domain"
	"github.com/AzielCF/az-users/resilience/health"
)

// INCR and set the window expiry on the first hit, in one round trip.
// The PTTL check repairs a counter that somehow lost its expiry.
const incrementScript = `
local n = redis.call("INCR", KEYS[1])
if n == 1 or redis.call("PTTL", KEYS[1]) == -1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`

// DefaultOpTimeout bounds a single store command when none is configured.
const DefaultOpTimeout = 500 * time.Millisecond

// ValkeyStore implements domain.SharedStore on top of Valkey.
// Connection failures are reported to the detector; server error replies are not.
type ValkeyStore struct {
	client    *valkey.Client
	detector  *health.Detector
	opTimeout time.Duration
}

var _ domain.SharedStore = (*ValkeyStore)(nil)

// NewValkeyStore creates a store bound to client. detector may be nil.
func NewValkeyStore(client *valkey.Client, detector *health.Detector, opTimeout time.Duration) *ValkeyStore {
	if opTimeout <= 0 {
		opTimeout = DefaultOpTimeout
	}
	return &ValkeyStore{
		client:    client,
		detector:  detector,
		opTimeout: opTimeout,
	}
}

func (s *ValkeyStore) inner() valkeylib.Client {
	return s.client.Inner()
}

func (s *ValkeyStore) fullKey(key string) string {
	return s.client.Key(key)
}

// observe forwards connection failures to the detector and marks them with
// domain.ErrStoreUnavailable. Cancellation coming from the caller's own
// context says nothing about the store and is not reported.
func (s *ValkeyStore) observe(parent context.Context, err error) error {
	if !valkey.IsConnectionError(err) {
		return err
	}
	if s.detector != nil && parent.Err() == nil {
		if valkey.IsClosing(err) {
			s.detector.Report(health.SignalClosed, err)
		} else {
			s.detector.Report(health.SignalError, err)
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}

// Get returns the value stored under key. A missing key is not an error.
func (s *ValkeyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	cmd := s.inner().B().Get().Key(s.fullKey(key)).Build()
	data, err := s.inner().Do(opCtx, cmd).AsBytes()
	if err != nil {
		if valkey.IsNil(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get %q from valkey: %w", key, s.observe(ctx, err))
	}
	return data, true, nil
}

// SetWithTTL stores value under key, replacing any previous value.
func (s *ValkeyStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	cmd := s.inner().B().Set().
		Key(s.fullKey(key)).
		Value(valkeylib.BinaryString(value)).
		Px(ttl).
		Build()

	if err := s.inner().Do(opCtx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to set %q in valkey: %w", key, s.observe(ctx, err))
	}
	return nil
}

// Delete removes key. Deleting a missing key succeeds.
func (s *ValkeyStore) Delete(ctx context.Context, key string) error {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	cmd := s.inner().B().Del().Key(s.fullKey(key)).Build()
	if err := s.inner().Do(opCtx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to delete %q from valkey: %w", key, s.observe(ctx, err))
	}
	return nil
}

// IncrementAndGet atomically increments the counter under key and returns the
// new value. The expiry is set when the counter is created.
func (s *ValkeyStore) IncrementAndGet(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	ms := ttl.Milliseconds()
	if ms <= 0 {
		ms = 1
	}

	cmd := s.inner().B().Eval().
		Script(incrementScript).
		Numkeys(1).
		Key(s.fullKey(key)).
		Arg(strconv.FormatInt(ms, 10)).
		Build()

	n, err := s.inner().Do(opCtx, cmd).AsInt64()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %q in valkey: %w", key, s.observe(ctx, err))
	}
	return n, nil
}

// Ping checks the connection. It does not report to the detector: the health
// monitor owns the outcome of pings.
func (s *ValkeyStore) Ping(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.client.Ping(opCtx); err != nil {
		logrus.WithError(err).Debug("[VALKEY] ping failed")
		return err
	}
	return nil
}
