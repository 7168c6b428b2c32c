// Package metrics exposes Prometheus collectors for the namespace engine.
//
// Each Metrics owns its own registry, so tests and multiple servers in one
// process never collide on registration. All methods are safe on a nil
// *Metrics, which lets callers that do not care pass nil.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/snipspace/internal/apperror"
)

const namespace = "snipspace"

type Metrics struct {
	registry       *prometheus.Registry
	mutations      *prometheus.CounterVec
	cascadeDeleted *prometheus.CounterVec
	scopeWait      prometheus.Histogram
	activeScopes   prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Compound mutations by operation and outcome.",
		}, []string{"op", "outcome"}),
		cascadeDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_deleted_total",
			Help:      "Records removed as a side effect of a cascade, by kind.",
		}, []string{"kind"}),
		scopeWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scope_wait_seconds",
			Help:      "Time spent waiting to enter a per-user mutation scope.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}),
		activeScopes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_scopes",
			Help:      "Users with a mutation in flight or waiting.",
		}),
	}
	reg.MustRegister(
		m.mutations,
		m.cascadeDeleted,
		m.scopeWait,
		m.activeScopes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveMutation counts one finished mutation. The outcome label is the
// error category, or "ok".
func (m *Metrics) ObserveMutation(op string, err error) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(op, Outcome(err)).Inc()
}

func (m *Metrics) AddCascadeDeleted(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cascadeDeleted.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) ObserveScopeWait(d time.Duration) {
	if m == nil {
		return
	}
	m.scopeWait.Observe(d.Seconds())
}

func (m *Metrics) SetActiveScopes(n int) {
	if m == nil {
		return
	}
	m.activeScopes.Set(float64(n))
}

// Outcome maps an error to a low-cardinality label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperror.ErrValidation):
		return "validation"
	case errors.Is(err, apperror.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return "conflict"
	case errors.Is(err, apperror.ErrProtected):
		return "protected"
	case errors.Is(err, apperror.ErrTransient):
		return "transient"
	default:
		return "error"
	}
}
