// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector aggregates the server's Prometheus metrics.
type Collector struct {
	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Run lifecycle metrics
	runsStarted    *prometheus.CounterVec
	runTransitions *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	runsActive     prometheus.Gauge

	// Thread lease metrics
	leaseContention prometheus.Counter

	// Streaming metrics
	streamClients prometheus.Gauge

	// Webhook metrics
	webhookDeliveries *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates a metrics collector registered on the default
// Prometheus registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.runsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of runs accepted, by multitask strategy",
		},
		[]string{"strategy"},
	)

	c.runTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_transitions_total",
			Help:      "Total number of run status transitions",
		},
		[]string{"from", "to"},
	)

	c.runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Run duration from start to terminal or interrupted state",
			Buckets:   []float64{.1, .5, 1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"status"},
	)

	c.runsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Number of runs currently executing",
		},
	)

	c.leaseContention = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "thread_lease_contention_total",
			Help:      "Number of lease acquisitions that lost to another holder",
		},
	)

	c.streamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients",
			Help:      "Number of connected streaming clients",
		},
	)

	c.webhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Webhook delivery attempts by result",
		},
		[]string{"result"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordHTTPRequest records one served HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, httpStatusLabel(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRunStart records an accepted run.
func (c *Collector) RecordRunStart(strategy string) {
	c.runsStarted.WithLabelValues(strategy).Inc()
	c.runsActive.Inc()
}

// RecordRunTransition records one status transition.
func (c *Collector) RecordRunTransition(from, to string) {
	c.runTransitions.WithLabelValues(from, to).Inc()
}

// RecordRunEnd records the run settling in a terminal or interrupted state.
func (c *Collector) RecordRunEnd(status string, duration time.Duration) {
	c.runDuration.WithLabelValues(status).Observe(duration.Seconds())
	c.runsActive.Dec()
}

// RecordLeaseContention records a lost lease acquisition.
func (c *Collector) RecordLeaseContention() {
	c.leaseContention.Inc()
}

// StreamClientConnected tracks a streaming client attach.
func (c *Collector) StreamClientConnected() {
	c.streamClients.Inc()
}

// StreamClientDisconnected tracks a streaming client detach.
func (c *Collector) StreamClientDisconnected() {
	c.streamClients.Dec()
}

// RecordWebhookDelivery records a webhook delivery result ("ok", "retry",
// or "failed").
func (c *Collector) RecordWebhookDelivery(result string) {
	c.webhookDeliveries.WithLabelValues(result).Inc()
}

func httpStatusLabel(status int) string {
	switch {
	case status < 200:
		return "1xx"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
