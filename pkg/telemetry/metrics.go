package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for resolution runs. A Metrics
// built from a disabled config is a no-op, so callers never branch.
type Metrics struct {
	config MetricsConfig

	evaluations    *prometheus.CounterVec
	evaluationKeys prometheus.Histogram

	providerCalls    *prometheus.CounterVec
	providerErrors   *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec

	pipeFailures *prometheus.CounterVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Total number of completed evaluations",
			},
			[]string{"status"},
		),
		evaluationKeys: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_keys",
				Help:      "Number of environment keys produced per evaluation",
				Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
			},
		),

		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Total number of secret provider calls",
			},
			[]string{"provider"},
		),
		providerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_errors_total",
				Help:      "Total number of failed secret provider calls",
			},
			[]string{"provider"},
		),
		providerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_call_duration_seconds",
				Help:      "Duration of secret provider calls in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider"},
		),

		pipeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipe_failures_total",
				Help:      "Total number of failed pipe applications",
			},
			[]string{"pipe"},
		),

		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of secret cache hits",
			},
			[]string{"provider"},
		),
		cacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of secret cache misses",
			},
			[]string{"provider"},
		),
	}

	registry.MustRegister(
		m.evaluations,
		m.evaluationKeys,
		m.providerCalls,
		m.providerErrors,
		m.providerDuration,
		m.pipeFailures,
		m.cacheHits,
		m.cacheMisses,
	)
	return m, nil
}

// EvaluationCompleted records one finished evaluation.
func (m *Metrics) EvaluationCompleted(keys, errors int) {
	if m.evaluations == nil {
		return
	}
	status := "ok"
	if errors > 0 {
		status = "error"
	}
	m.evaluations.WithLabelValues(status).Inc()
	m.evaluationKeys.Observe(float64(keys))
}

// ProviderCall records one provider resolution with its duration.
func (m *Metrics) ProviderCall(provider string, d time.Duration, err error) {
	if m.providerCalls == nil {
		return
	}
	m.providerCalls.WithLabelValues(provider).Inc()
	m.providerDuration.WithLabelValues(provider).Observe(d.Seconds())
	if err != nil {
		m.providerErrors.WithLabelValues(provider).Inc()
	}
}

// PipeFailure records one failed pipe application, soft or hard.
func (m *Metrics) PipeFailure(pipe string) {
	if m.pipeFailures == nil {
		return
	}
	m.pipeFailures.WithLabelValues(pipe).Inc()
}

// CacheHit records a secret served from the cache.
func (m *Metrics) CacheHit(provider string) {
	if m.cacheHits == nil {
		return
	}
	m.cacheHits.WithLabelValues(provider).Inc()
}

// CacheMiss records a secret that had to be fetched.
func (m *Metrics) CacheMiss(provider string) {
	if m.cacheMisses == nil {
		return
	}
	m.cacheMisses.WithLabelValues(provider).Inc()
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartServer exposes the metrics endpoint in the background.
func (m *Metrics) StartServer() *http.Server {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())
	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		_ = server.ListenAndServe()
	}()
	return server
}
