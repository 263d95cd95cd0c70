package health

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Pinger is the part of the shared store the monitor needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor periodically pings the store and turns the outcome into detector
// signals. It is the only component that pings a connected store.
type Monitor struct {
	pinger   Pinger
	detector *Detector
	interval time.Duration
	timeout  time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewMonitor creates a monitor. A non-positive interval defaults to 2s and the
// ping timeout is capped at the interval.
func NewMonitor(pinger Pinger, detector *Detector, interval, timeout time.Duration) *Monitor {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}
	return &Monitor{
		pinger:   pinger,
		detector: detector,
		interval: interval,
		timeout:  timeout,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the ping loop until ctx is done or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		logrus.Debugf("[HEALTH] monitor started (interval %s)", m.interval)
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.CheckNow(ctx)
			}
		}
	}()
}

// CheckNow pings once and reports the result.
func (m *Monitor) CheckNow(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.pinger.Ping(pingCtx)
	switch {
	case err == nil:
		m.detector.Report(SignalConnected, nil)
	case m.detector.IsAvailable():
		m.detector.Report(SignalError, err)
	default:
		m.detector.Report(SignalReconnecting, err)
	}
}

// Stop ends the ping loop and waits for it to exit. Safe to call twice.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()
	m.detector.Report(SignalClosed, nil)
}
