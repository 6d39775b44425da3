// Package metrics implements the MetricsCollector port on Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/weizhiyuan62/zhilan/internal/ports"
)

// PrometheusMetrics implements ports.MetricsCollector using a Prometheus
// registry. It tracks judge request outcomes, token spend, batch latency,
// and the composite score distribution of a run.
type PrometheusMetrics struct {
	requestsTotal    *prometheus.CounterVec
	tokensTotal      *prometheus.CounterVec
	requestLatency   *prometheus.HistogramVec
	batchLatency     *prometheus.HistogramVec
	compositeScores  prometheus.Histogram
	operationCounter *prometheus.CounterVec
}

var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics registers the engine's metrics with the registerer
// and returns a collector. Pass prometheus.DefaultRegisterer for the global
// registry.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zhilan_judge_requests_total",
				Help: "Judge API requests by provider, model, and outcome.",
			},
			[]string{"provider", "model", "status"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zhilan_judge_tokens_total",
				Help: "Tokens consumed by judge requests, split by direction.",
			},
			[]string{"provider", "model", "token_type"},
		),
		requestLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zhilan_judge_latency_seconds",
				Help:    "Latency of individual judge requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "model", "status"},
		),
		batchLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zhilan_batch_duration_seconds",
				Help:    "End-to-end scoring time per batch, retries included.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"status"},
		),
		compositeScores: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "zhilan_composite_score",
				Help:    "Distribution of composite scores across scored items.",
				Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
			},
		),
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zhilan_operations_total",
				Help: "Pipeline operations by name and outcome.",
			},
			[]string{"operation", "status"},
		),
	}
}

// RecordLatency records the duration of a pipeline operation.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	switch operation {
	case "batch":
		pm.batchLatency.WithLabelValues(statusLabel(labels)).Observe(duration.Seconds())
	default:
		pm.operationCounter.WithLabelValues(operation, statusLabel(labels)).Inc()
	}
}

// RecordCounter increments the counter named by metric.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case "judge_requests_total":
		pm.requestsTotal.WithLabelValues(
			labels["provider"], labels["model"], statusLabel(labels),
		).Add(value)
	case "judge_tokens_total":
		pm.tokensTotal.WithLabelValues(
			labels["provider"], labels["model"], labels["token_type"],
		).Add(value)
	default:
		pm.operationCounter.WithLabelValues(metric, statusLabel(labels)).Add(value)
	}
}

// RecordHistogram records a value in the histogram named by metric.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	switch metric {
	case "judge_latency_seconds":
		pm.requestLatency.WithLabelValues(
			labels["provider"], labels["model"], statusLabel(labels),
		).Observe(value)
	case "composite_score":
		pm.compositeScores.Observe(value)
	default:
		pm.batchLatency.WithLabelValues(statusLabel(labels)).Observe(value)
	}
}

func statusLabel(labels map[string]string) string {
	if status, ok := labels["status"]; ok {
		return status
	}
	return "unknown"
}
