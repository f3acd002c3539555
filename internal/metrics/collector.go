// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 Collector
// =============================================================================

// Collector aggregates the Prometheus metrics of one coordinator process.
type Collector struct {
	// Exchange metrics
	exchangesTotal  *prometheus.CounterVec
	cycleDuration   *prometheus.HistogramVec
	mergeDuration   prometheus.Histogram
	candidatesIn    prometheus.Counter
	candidatesOut   prometheus.Counter
	bufferSize      prometheus.Gauge
	bufferEvictions prometheus.Counter
	bestReward      prometheus.Gauge
	workerFailures  *prometheus.CounterVec

	// Gateway metrics
	gatewayConnections prometheus.Gauge

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector registers the metric set under the given namespace on the
// default registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// Exchange metrics
	c.exchangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "Total number of completed exchange cycles",
		},
		[]string{"worker", "status"},
	)

	c.cycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_cycle_duration_seconds",
			Help:      "Duration of one exchange cycle from dispatch to completion",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"worker"},
	)

	c.mergeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "merge_duration_seconds",
			Help:      "Duration of one parameter server merge",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 10, 7),
		},
	)

	c.candidatesIn = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_merged_total",
			Help:      "Total number of candidates merged into the pool",
		},
	)

	c.candidatesOut = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_served_total",
			Help:      "Total number of candidates served back to workers",
		},
	)

	c.bufferSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffer_size",
			Help:      "Number of batches currently pooled by the parameter server",
		},
	)

	c.bufferEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffer_evictions_total",
			Help:      "Total number of batches evicted from the pool",
		},
	)

	c.bestReward = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_reward",
			Help:      "Reward of the best candidate seen so far",
		},
	)

	c.workerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_failures_total",
			Help:      "Total number of failed worker steps",
		},
		[]string{"worker"},
	)

	// Gateway metrics
	c.gatewayConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gateway_connections",
			Help:      "Number of remote workers currently connected",
		},
	)

	// HTTP metrics
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

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🔄 Exchange metrics
// =============================================================================

// RecordExchange records one completed exchange cycle.
func (c *Collector) RecordExchange(worker, status string, duration time.Duration) {
	c.exchangesTotal.WithLabelValues(worker, status).Inc()
	c.cycleDuration.WithLabelValues(worker).Observe(duration.Seconds())
}

// RecordMerge records one parameter server merge.
func (c *Collector) RecordMerge(duration time.Duration, merged, served int) {
	c.mergeDuration.Observe(duration.Seconds())
	c.candidatesIn.Add(float64(merged))
	c.candidatesOut.Add(float64(served))
}

// SetBufferSize records the current pool size.
func (c *Collector) SetBufferSize(n int) {
	c.bufferSize.Set(float64(n))
}

// RecordEviction records one pool eviction.
func (c *Collector) RecordEviction() {
	c.bufferEvictions.Inc()
}

// SetBestReward records the reward of the global best candidate.
func (c *Collector) SetBestReward(reward float64) {
	c.bestReward.Set(reward)
}

// RecordWorkerFailure records one failed worker step.
func (c *Collector) RecordWorkerFailure(worker string) {
	c.workerFailures.WithLabelValues(worker).Inc()
}

// =============================================================================
// 🌐 Gateway metrics
// =============================================================================

// WorkerConnected records a remote worker joining the gateway.
func (c *Collector) WorkerConnected() {
	c.gatewayConnections.Inc()
}

// WorkerDisconnected records a remote worker leaving the gateway.
func (c *Collector) WorkerDisconnected() {
	c.gatewayConnections.Dec()
}

// =============================================================================
// 🎯 HTTP metrics
// =============================================================================

// RecordHTTPRequest records one admin HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 Helpers
// =============================================================================

// statusCode folds an HTTP status into its class.
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
