// Package metrics exposes Prometheus collectors for dispatch runs.
//
// Only counters and an in-flight gauge are kept; latency distributions are
// deliberately absent.
package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/burstgate/internal/dispatch"
)

const namespace = "burstgate"

// Metrics holds the collectors for one registry. It implements
// [dispatch.Observer].
type Metrics struct {
	gateDecisions   *prometheus.CounterVec
	requests        *prometheus.CounterVec
	inFlight        prometheus.Gauge
	poolReleases    prometheus.Counter
	releaseFailures prometheus.Counter
}

// New creates the collectors and registers them with reg.
//
// Registering the same collectors twice on one registry returns the
// existing ones rather than failing, so several jobs can share a registry.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Authorization gate decisions by result.",
		}, []string{"decision"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Completed request tasks by result class (2xx, 3xx, 4xx, 5xx, error).",
		}, []string{"class"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_in_flight",
			Help:      "Request tasks started but not yet finished.",
		}),
		poolReleases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_releases_total",
			Help:      "Connection pools released at the end of a dispatch call.",
		}),
		releaseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_release_failures_total",
			Help:      "Connection pool releases that returned an error.",
		}),
	}

	var err error
	if m.gateDecisions, err = register(reg, m.gateDecisions); err != nil {
		return nil, err
	}
	if m.requests, err = register(reg, m.requests); err != nil {
		return nil, err
	}
	if m.inFlight, err = register(reg, m.inFlight); err != nil {
		return nil, err
	}
	if m.poolReleases, err = register(reg, m.poolReleases); err != nil {
		return nil, err
	}
	if m.releaseFailures, err = register(reg, m.releaseFailures); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, returning the already-registered collector when
// an identical one exists.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// GateDecision counts one authorization decision.
func (m *Metrics) GateDecision(allowed bool) {
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	m.gateDecisions.WithLabelValues(decision).Inc()
}

// TaskStarted implements [dispatch.Observer].
func (m *Metrics) TaskStarted() {
	m.inFlight.Inc()
}

// TaskFinished implements [dispatch.Observer].
func (m *Metrics) TaskFinished(o dispatch.Outcome) {
	m.inFlight.Dec()
	m.requests.WithLabelValues(Class(o)).Inc()
}

// PoolReleased implements [dispatch.Observer].
func (m *Metrics) PoolReleased(err error) {
	m.poolReleases.Inc()
	if err != nil {
		m.releaseFailures.Inc()
	}
}

// Class maps an outcome to its result class label.
func Class(o dispatch.Outcome) string {
	if o.Failed() || o.StatusCode < 100 {
		return "error"
	}
	return strconv.Itoa(o.StatusCode/100) + "xx"
}
