package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mediassist/ml"
	"mediassist/report"
)

const namespace = "mediassist"

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry        *prometheus.Registry
	predictions     *prometheus.CounterVec
	failures        *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	cacheClears     prometheus.Counter
	modelsLoaded    prometheus.GaugeFunc
	loaded          func() int
	wsClients       prometheus.Gauge
}

// NewMetrics registers every collector. loaded reports how many models are
// resident and is read at scrape time; nil reports zero.
func NewMetrics(loaded func() int) *Metrics {
	m := &Metrics{
		loaded:   loaded,
		registry: prometheus.NewRegistry(),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Completed predictions by disease and risk level.",
		}, []string{"disease", "risk"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_failures_total",
			Help:      "Rejected or failed predictions by disease and reason.",
		}, []string{"disease", "reason"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_duration_seconds",
			Help:      "Time from validation to formatted response.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"disease"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		cacheClears: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_clears_total",
			Help:      "Explicit resource cache clears.",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected prediction stream clients.",
		}),
	}
	m.modelsLoaded = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "models_loaded",
		Help:      "Diseases whose model is currently cached.",
	}, func() float64 {
		if m.loaded == nil {
			return 0
		}
		return float64(m.loaded())
	})
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.predictions, m.failures, m.latency,
		m.requests, m.requestDuration,
		m.cacheClears, m.modelsLoaded, m.wsClients,
	)
	return m
}

// ObservePrediction implements predict.Observer.
func (m *Metrics) ObservePrediction(disease ml.Disease, level report.RiskLevel, latency time.Duration) {
	m.predictions.WithLabelValues(string(disease), string(level)).Inc()
	m.latency.WithLabelValues(string(disease)).Observe(latency.Seconds())
}

// ObserveFailure implements predict.Observer.
func (m *Metrics) ObserveFailure(disease ml.Disease, reason string) {
	m.failures.WithLabelValues(string(disease), reason).Inc()
}

func (m *Metrics) ObserveRequest(method, route string, code int, d time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) CacheCleared() {
	m.cacheClears.Inc()
}

func (m *Metrics) SetClients(n int) {
	m.wsClients.Set(float64(n))
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
