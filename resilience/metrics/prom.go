package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus implements Recorder with Prometheus counters and a gauge.
type Prometheus struct {
	cache     *prometheus.CounterVec
	storeErrs *prometheus.CounterVec
	decisions *prometheus.CounterVec
	storeUp   prometheus.Gauge
}

// NewPrometheus registers the resilience metrics on reg
// (nil => prometheus.DefaultRegisterer) under namespace ns.
func NewPrometheus(reg prometheus.Registerer, ns string) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Prometheus{
		cache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "cache",
				Name:      "results_total",
				Help:      "Cache-aside fetch outcomes",
			},
			[]string{"outcome"},
		),
		storeErrs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "store",
				Name:      "errors_total",
				Help:      "Shared store operations that failed",
			},
			[]string{"op"},
		),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "ratelimit",
				Name:      "decisions_total",
				Help:      "Rate limit decisions by limiter, backend and result",
			},
			[]string{"limiter", "backend", "result"},
		),
		storeUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "store",
			Name:      "available",
			Help:      "1 when the shared store is considered available",
		}),
	}
	reg.MustRegister(p.cache, p.storeErrs, p.decisions, p.storeUp)
	return p
}

func (p *Prometheus) CacheResult(outcome string) {
	p.cache.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) StoreError(op string) {
	p.storeErrs.WithLabelValues(op).Inc()
}

func (p *Prometheus) RateLimitDecision(limiter, backend string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "rejected"
	}
	p.decisions.WithLabelValues(limiter, backend, result).Inc()
}

func (p *Prometheus) StoreAvailable(available bool) {
	if available {
		p.storeUp.Set(1)
		return
	}
	p.storeUp.Set(0)
}

var _ Recorder = (*Prometheus)(nil)
