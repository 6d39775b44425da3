package ports

import "time"

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus; a nil collector disables metrics without branching at call
// sites (implementations of the pipeline check for nil).
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram, e.g. composite
	// score distributions or response sizes.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
