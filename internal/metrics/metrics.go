package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	JobsSubmitted      prometheus.Counter
	JobsFinished       *prometheus.CounterVec
	JobsReaped         prometheus.Counter
	GenerationDuration prometheus.Histogram
	GenerationTokens   *prometheus.CounterVec
	ExportsRendered    *prometheus.CounterVec
	ExportDuration     *prometheus.HistogramVec
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers the docgen collectors on a fresh registry, together with the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		JobsSubmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "docgen",
			Name:      "jobs_submitted_total",
			Help:      "Generation jobs accepted.",
		}),
		JobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docgen",
			Name:      "jobs_finished_total",
			Help:      "Generation jobs that reached a terminal state.",
		}, []string{"status"}),
		JobsReaped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "docgen",
			Name:      "jobs_reaped_total",
			Help:      "Processing jobs failed by the stale-job reaper.",
		}),
		GenerationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docgen",
			Name:      "generation_duration_seconds",
			Help:      "Wall time of one job run from claim to terminal state.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 60, 120, 300},
		}),
		GenerationTokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docgen",
			Name:      "generation_tokens_total",
			Help:      "LLM tokens consumed by completed jobs.",
		}, []string{"provider", "direction"}),
		ExportsRendered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docgen",
			Name:      "exports_total",
			Help:      "Export requests by format and cache outcome.",
		}, []string{"format", "cache"}),
		ExportDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docgen",
			Name:      "export_render_seconds",
			Help:      "Time spent converting content into an export format.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"format"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docgen",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docgen",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		gatherer: reg,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}
