package health

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ConnectFunc establishes the store connection and installs it. It is called
// again after every failure until it succeeds once.
type ConnectFunc func(ctx context.Context) error

// Reconnector retries ConnectFunc at a fixed interval while the store could
// not be reached yet. The first success reports SignalConnected and ends the
// loop; from then on the Monitor owns the store's health.
type Reconnector struct {
	connect  ConnectFunc
	detector *Detector
	interval time.Duration

	mu        sync.Mutex
	connected bool
	attempts  int

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewReconnector creates a reconnector. A non-positive interval defaults to 2s.
func NewReconnector(connect ConnectFunc, detector *Detector, interval time.Duration) *Reconnector {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Reconnector{
		connect:  connect,
		detector: detector,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// TryNow makes one connection attempt unless one already succeeded.
func (r *Reconnector) TryNow(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connected {
		return true
	}

	r.attempts++
	if err := r.connect(ctx); err != nil {
		r.detector.Report(SignalReconnecting, err)
		return false
	}
	r.connected = true
	logrus.Infof("[HEALTH] %s connected after %d attempt(s)", r.detector.name, r.attempts)
	r.detector.Report(SignalConnected, nil)
	return true
}

// Connected reports whether an attempt has succeeded.
func (r *Reconnector) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

// Start retries in the background until connected, ctx is done or Stop is called.
func (r *Reconnector) Start(ctx context.Context) {
	if r.Connected() {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case <-ticker.C:
				if r.TryNow(ctx) {
					return
				}
			}
		}
	}()
}

// Stop ends the retry loop and waits for a running attempt. Safe to call twice.
func (r *Reconnector) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	r.wg.Wait()
}
