package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DatastoreMetrics contains Prometheus metrics for record persistence.
type DatastoreMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	operationErrors   *prometheus.CounterVec
	queryDuration     prometheus.Histogram
	queryErrors       prometheus.Counter
	recordCount       prometheus.Gauge
	unsyncedCount     prometheus.Gauge

	collectors []prometheus.Collector
}

// NewDatastoreMetrics creates and registers datastore metrics.
func NewDatastoreMetrics(registry *prometheus.Registry) (*DatastoreMetrics, error) {
	m := &DatastoreMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register datastore metrics: %w", err)
	}
	return m, nil
}

func (m *DatastoreMetrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soilnet_datastore_operations_total",
			Help: "Total number of record store operations.",
		},
		[]string{"operation", "status"},
	)
	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "soilnet_datastore_operation_duration_seconds",
			Help:    "Duration of record store operations including the reload that follows writes.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
		[]string{"operation"},
	)
	m.operationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soilnet_datastore_operation_errors_total",
			Help: "Total number of failed record store operations by error type.",
		},
		[]string{"operation", "error_type"},
	)
	m.queryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "soilnet_datastore_query_duration_seconds",
			Help:    "Duration of individual SQL statements.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
	)
	m.queryErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "soilnet_datastore_query_errors_total",
			Help: "Total number of SQL statements that returned an error.",
		},
	)
	m.recordCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "soilnet_datastore_records",
			Help: "Number of records after the most recent reload.",
		},
	)
	m.unsyncedCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "soilnet_datastore_unsynced_records",
			Help: "Number of records not yet marked synced after the most recent reload.",
		},
	)

	m.collectors = []prometheus.Collector{
		m.operationsTotal, m.operationDuration, m.operationErrors,
		m.queryDuration, m.queryErrors, m.recordCount, m.unsyncedCount,
	}
}

// RecordOperation records one store operation.
func (m *DatastoreMetrics) RecordOperation(operation string, duration time.Duration, errorType string, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
		m.operationErrors.WithLabelValues(operation, errorType).Inc()
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveQuery records one SQL statement; suitable as a GORM logger hook.
func (m *DatastoreMetrics) ObserveQuery(duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.queryDuration.Observe(duration.Seconds())
	if err != nil {
		m.queryErrors.Inc()
	}
}

// SetRecordCounts updates the record gauges after a reload.
func (m *DatastoreMetrics) SetRecordCounts(total, unsynced int) {
	if m == nil {
		return
	}
	m.recordCount.Set(float64(total))
	m.unsyncedCount.Set(float64(unsynced))
}

// Describe implements the prometheus.Collector interface.
func (m *DatastoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *DatastoreMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}
