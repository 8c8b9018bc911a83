// Package metrics exposes Prometheus instrumentation for answer requests,
// navigation retries, diagnostic notifications and open pages.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xkilldash9x/answerbook/internal/retry"
)

const namespace = "answerbook"

// Recorder owns a private registry so tests and embedders never collide on
// the global default. A nil *Recorder is a valid no-op.
type Recorder struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	retries     *prometheus.CounterVec
	diagnostics *prometheus.CounterVec
	duration    prometheus.Histogram
	pagesOpen   prometheus.Gauge
}

// New creates a Recorder with the Go and process collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Answer requests by outcome.",
		}, []string{"outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Failed attempts that were retried, by operation.",
		}, []string{"operation"}),
		diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostic_total",
			Help:      "Diagnostic notifications by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from request start to payload.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		pagesOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pages_open",
			Help:      "Browser pages currently open.",
		}),
	}
	r.registry.MustRegister(
		r.requests, r.retries, r.diagnostics, r.duration, r.pagesOpen,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObserveRequest records a finished answer request.
func (r *Recorder) ObserveRequest(outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(outcome).Inc()
	r.duration.Observe(elapsed.Seconds())
}

// ObserveRetry has the retry.Hook signature.
func (r *Recorder) ObserveRetry(_ context.Context, a retry.Attempt) {
	if r == nil {
		return
	}
	r.retries.WithLabelValues(a.Operation).Inc()
}

// ObserveDiagnostic records how a diagnostic notification ended.
func (r *Recorder) ObserveDiagnostic(outcome string) {
	if r == nil {
		return
	}
	r.diagnostics.WithLabelValues(outcome).Inc()
}

func (r *Recorder) PageOpened() {
	if r != nil {
		r.pagesOpen.Inc()
	}
}

func (r *Recorder) PageClosed() {
	if r != nil {
		r.pagesOpen.Dec()
	}
}
