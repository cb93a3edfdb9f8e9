// Package metrics exposes Prometheus instrumentation for the graph service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dfgraph"

// Metrics holds every collector on a private registry, so tests and several
// service instances never collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	Mutations        *prometheus.CounterVec
	DiscardedUpdates prometheus.Counter
	ExecutionFailed  *prometheus.CounterVec
	ClosureCache     *prometheus.CounterVec
	RenderCache      *prometheus.CounterVec
	Sessions         prometheus.Gauge
	SpoolReports     *prometheus.CounterVec
}

// New registers the collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Mutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_mutations_total",
			Help:      "Graph mutations by kind",
		}, []string{"kind"}),
		DiscardedUpdates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discarded_updates_total",
			Help:      "Execution reports discarded because their cell was deleted",
		}),
		ExecutionFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "execution_failures_total",
			Help:      "Failed executions reported by the kernel, by error kind",
		}, []string{"kind"}),
		ClosureCache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "closure_cache_lookups_total",
			Help:      "Downstream closure cache lookups by result",
		}, []string{"result"}),
		RenderCache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_cache_lookups_total",
			Help:      "Viewer render cache lookups by result",
		}, []string{"result"}),
		Sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Registered notebook sessions",
		}),
		SpoolReports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spool_reports_total",
			Help:      "Spooled execution reports by outcome",
		}, []string{"outcome"}),
	}
}

// Registry exposes the private registry, e.g. for testutil
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// CacheHit counts a downstream closure served from cache
func (m *Metrics) CacheHit() {
	m.ClosureCache.WithLabelValues("hit").Inc()
}

// CacheMiss counts a downstream closure that had to be walked
func (m *Metrics) CacheMiss() {
	m.ClosureCache.WithLabelValues("miss").Inc()
}

// RenderHit counts a viewer served from the render cache
func (m *Metrics) RenderHit() {
	m.RenderCache.WithLabelValues("hit").Inc()
}

// RenderMiss counts a viewer that had to be rebuilt
func (m *Metrics) RenderMiss() {
	m.RenderCache.WithLabelValues("miss").Inc()
}
