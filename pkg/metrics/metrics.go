// Package metrics exposes Prometheus collectors for the publisher.
//
// All collectors register with the default registry on import, so the
// promhttp handler served by the plugin binary picks them up without
// further wiring.
//
// # Basic Usage
//
//	metrics.RecordsRead.WithLabelValues("Customer Information").Inc()
//
//	timer := metrics.NewTimer()
//	err := backend.Put(ctx, schema, record)
//	metrics.ObserveWrite("Customer Information", timer.Stop(), err)
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "plugin_sage"

// Write outcomes used as the status label
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusTimeout = "timeout"
)

var (
	// RecordsRead counts records published by read streams.
	// Labels: schema
	RecordsRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_read_total",
			Help:      "Total number of records published",
		},
		[]string{"schema"},
	)

	// RecordsWritten counts write acknowledgements.
	// Labels: schema, status (success/failure/timeout)
	RecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Total number of records written back to Sage",
		},
		[]string{"schema", "status"},
	)

	// WriteLatency tracks how long a single record write takes
	WriteLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_latency_seconds",
			Help:      "Latency of single record writes in seconds",
			Buckets: []float64{
				0.005, // business object writes on a warm session
				0.025,
				0.1,
				0.5,
				1,
				5,
				30, // default commit SLA
			},
		},
		[]string{"schema"},
	)

	// SchemasDiscovered counts discovery results per module.
	// Labels: status (success/failure)
	SchemasDiscovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schemas_discovered_total",
			Help:      "Total number of module discovery attempts",
		},
		[]string{"status"},
	)

	// ActiveSessions is 1 while a backend is connected
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of connected backends",
		},
	)

	// Throughput tracks records per second of the most recent stream
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "throughput_records_per_second",
			Help:      "Records per second of the last completed stream",
		},
		[]string{"schema", "direction"},
	)
)

// ObserveWrite records one write outcome and its latency
func ObserveWrite(schema string, d time.Duration, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	RecordsWritten.WithLabelValues(schema, status).Inc()
	WriteLatency.WithLabelValues(schema).Observe(d.Seconds())
}

// ObserveDiscovery records one module discovery outcome
func ObserveDiscovery(err error) {
	if err != nil {
		SchemasDiscovered.WithLabelValues(StatusFailure).Inc()
		return
	}
	SchemasDiscovered.WithLabelValues(StatusSuccess).Inc()
}

// Timer measures the duration of one operation
type Timer struct {
	start time.Time
}

// NewTimer starts timing immediately
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since creation. It may be called
// more than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker counts records of one stream and reports records per
// second when the stream ends. Safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64
	lastReset time.Time
	schema    string
	direction string
}

// NewThroughputTracker creates a tracker for one schema and direction
// (read or write)
func NewThroughputTracker(schema, direction string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		schema:    schema,
		direction: direction,
	}
}

// Increment adds n to the record count
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset publishes the current rate, resets the counter and returns
// the rate
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed
	t.count = 0
	t.lastReset = time.Now()

	Throughput.WithLabelValues(t.schema, t.direction).Set(throughput)
	return throughput
}
