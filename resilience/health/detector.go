// Package health tracks whether the shared store can currently be used.
package health

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Signal is a connection-lifecycle event of the shared store.
type Signal int

const (
	SignalConnected Signal = iota
	SignalError
	SignalClosed
	SignalReconnecting
)

func (s Signal) String() string {
	switch s {
	case SignalConnected:
		return "connected"
	case SignalError:
		return "error"
	case SignalClosed:
		return "closed"
	case SignalReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Detector exposes a single availability boolean for the shared store.
// Every consumer reads this flag instead of probing the store on its own.
//
// Transitions:
//   - unavailable -> available on SignalConnected
//   - available -> unavailable on SignalError or SignalClosed
//   - SignalReconnecting is logged and never changes the flag
type Detector struct {
	name      string
	available atomic.Bool

	mu        sync.Mutex // serializes transitions and guards listeners
	listeners []func(available bool)
}

// NewDetector creates a detector in the given initial state.
func NewDetector(name string, initiallyAvailable bool) *Detector {
	d := &Detector{name: name}
	d.available.Store(initiallyAvailable)
	return d
}

// IsAvailable reports the current state. Safe for concurrent use.
func (d *Detector) IsAvailable() bool {
	return d.available.Load()
}

// OnChange registers fn to be called after every state transition.
// Listeners run synchronously while transitions are serialized, so they must
// not block and must not call Report.
func (d *Detector) OnChange(fn func(available bool)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, fn)
}

// Report feeds a lifecycle signal into the detector.
func (d *Detector) Report(sig Signal, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	was := d.available.Load()
	now := was

	switch sig {
	case SignalConnected:
		now = true
	case SignalError, SignalClosed:
		now = false
	case SignalReconnecting:
		logrus.WithError(err).Warnf("[HEALTH] %s attempting to reconnect", d.name)
		return
	}

	if now == was {
		return
	}
	d.available.Store(now)

	if now {
		logrus.Infof("[HEALTH] %s available", d.name)
	} else {
		logrus.WithError(err).Warnf("[HEALTH] %s unavailable (%s)", d.name, sig)
	}

	for _, fn := range d.listeners {
		fn(now)
	}
}
