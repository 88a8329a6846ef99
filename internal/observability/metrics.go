package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/efebarandurmaz/codegraph/internal/diag"
)

// Metrics holds the pipeline's Prometheus collectors on a private registry,
// so several pipelines (and tests) never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	filesTotal       *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	diagnosticsTotal *prometheus.CounterVec
	queriesTotal     *prometheus.CounterVec
	queryDuration    prometheus.Histogram
	cacheTotal       *prometheus.CounterVec
	graphNodes       prometheus.Gauge
	graphEdges       prometheus.Gauge
	buildsTotal      *prometheus.CounterVec
}

// NewMetrics creates and registers the pipeline collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		filesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codegraph",
			Name:      "files_processed_total",
			Help:      "Files processed by the per-file stages, by source (built, cached).",
		}, []string{"source"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "codegraph",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"stage"}),
		diagnosticsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codegraph",
			Name:      "diagnostics_total",
			Help:      "Diagnostics reported, by kind.",
		}, []string{"kind"}),
		queriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codegraph",
			Name:      "inference_queries_total",
			Help:      "Type-inference lookups, by outcome.",
		}, []string{"outcome"}),
		queryDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "codegraph",
			Name:      "inference_query_duration_seconds",
			Help:      "Latency of type-inference provider calls.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		cacheTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codegraph",
			Name:      "cache_lookups_total",
			Help:      "Snapshot cache lookups, by result.",
		}, []string{"result"}),
		graphNodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "codegraph",
			Name:      "graph_nodes",
			Help:      "Nodes in the last assembled graph.",
		}),
		graphEdges: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "codegraph",
			Name:      "graph_edges",
			Help:      "Edges in the last assembled graph.",
		}),
		buildsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codegraph",
			Name:      "builds_total",
			Help:      "Pipeline runs, by status.",
		}, []string{"status"}),
	}
}

// ObserveQuery records one analyzer lookup. Only real provider calls carry
// a latency.
func (m *Metrics) ObserveQuery(outcome string, elapsed time.Duration) {
	m.queriesTotal.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		m.queryDuration.Observe(elapsed.Seconds())
	}
}

// ObserveStage records the duration of a pipeline stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveFile counts one file handled by the per-file stages.
func (m *Metrics) ObserveFile(cached bool) {
	source := "built"
	if cached {
		source = "cached"
	}
	m.filesTotal.WithLabelValues(source).Inc()
}

// ObserveCache counts a cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheTotal.WithLabelValues(result).Inc()
}

// ObserveDiagnostics counts diagnostics by kind.
func (m *Metrics) ObserveDiagnostics(l diag.List) {
	for kind, n := range l.Count() {
		m.diagnosticsTotal.WithLabelValues(string(kind)).Add(float64(n))
	}
}

// SetGraphSize records the size of the assembled graph.
func (m *Metrics) SetGraphSize(nodes, edges int) {
	m.graphNodes.Set(float64(nodes))
	m.graphEdges.Set(float64(edges))
}

// ObserveBuild counts a finished pipeline run.
func (m *Metrics) ObserveBuild(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.buildsTotal.WithLabelValues(status).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
