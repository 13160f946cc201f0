// Package metrics provides Prometheus collectors for the soil classification service.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ClassifierMetrics contains Prometheus metrics related to model loading and inference.
type ClassifierMetrics struct {
	ClassificationTotal    *prometheus.CounterVec
	ClassificationErrors   *prometheus.CounterVec
	ClassificationDuration *prometheus.HistogramVec
	ModelInvokeDuration    prometheus.Histogram
	PrimaryLabelCounter    *prometheus.CounterVec
	PrimaryConfidence      prometheus.Histogram
	ModelLoadTotal         *prometheus.CounterVec
	ModelLoadDuration      prometheus.Histogram
	ModelLoadedGauge       prometheus.Gauge
	ActiveClassifications  prometheus.Gauge

	registry *prometheus.Registry
}

// NewClassifierMetrics creates and registers classifier metrics.
func NewClassifierMetrics(registry *prometheus.Registry) (*ClassifierMetrics, error) {
	m := &ClassifierMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register classifier metrics: %w", err)
	}
	return m, nil
}

func (m *ClassifierMetrics) initMetrics() {
	m.ClassificationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soilnet_classifications_total",
			Help: "Total number of classification requests partitioned by status.",
		},
		[]string{"status"},
	)
	m.ClassificationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soilnet_classification_errors_total",
			Help: "Total number of failed classifications partitioned by error class.",
		},
		[]string{"error_class"},
	)
	m.ClassificationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "soilnet_classification_duration_seconds",
			Help:    "Time taken to classify one normalized image.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		},
		[]string{"status"},
	)
	m.ModelInvokeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "soilnet_model_invoke_duration_seconds",
			Help:    "Time taken for the scoring backend to produce raw scores.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
	)
	m.PrimaryLabelCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soilnet_primary_label_total",
			Help: "Successful classifications partitioned by primary soil type.",
		},
		[]string{"soil_type"},
	)
	m.PrimaryConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "soilnet_primary_confidence",
			Help:    "Confidence of the primary label of successful classifications.",
			Buckets: []float64{0.6, 0.65, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 1.0},
		},
	)
	m.ModelLoadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soilnet_model_load_total",
			Help: "Total number of model load attempts partitioned by status.",
		},
		[]string{"status"},
	)
	m.ModelLoadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "soilnet_model_load_duration_seconds",
			Help:    "Time taken to load the scoring model.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		},
	)
	m.ModelLoadedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "soilnet_model_loaded",
			Help: "Whether the scoring model is loaded (1) or not (0).",
		},
	)
	m.ActiveClassifications = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "soilnet_active_classifications",
			Help: "Number of classifications currently executing.",
		},
	)
}

// RecordClassification records the outcome of one classification. errorClass
// is ignored on success.
func (m *ClassifierMetrics) RecordClassification(duration time.Duration, errorClass string, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
		m.ClassificationErrors.WithLabelValues(errorClass).Inc()
	}
	m.ClassificationTotal.WithLabelValues(status).Inc()
	m.ClassificationDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordPrimary records the primary label of a successful classification.
func (m *ClassifierMetrics) RecordPrimary(soilType string, confidence float64) {
	if m == nil {
		return
	}
	m.PrimaryLabelCounter.WithLabelValues(soilType).Inc()
	m.PrimaryConfidence.Observe(confidence)
}

// RecordModelInvoke records backend scoring time.
func (m *ClassifierMetrics) RecordModelInvoke(duration time.Duration) {
	if m == nil {
		return
	}
	m.ModelInvokeDuration.Observe(duration.Seconds())
}

// RecordModelLoad records a load attempt and updates the loaded gauge.
func (m *ClassifierMetrics) RecordModelLoad(duration time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ModelLoadTotal.WithLabelValues(StatusError).Inc()
		m.ModelLoadedGauge.Set(0)
		return
	}
	m.ModelLoadTotal.WithLabelValues(StatusSuccess).Inc()
	m.ModelLoadDuration.Observe(duration.Seconds())
	m.ModelLoadedGauge.Set(1)
}

// SetModelUnloaded clears the loaded gauge on shutdown.
func (m *ClassifierMetrics) SetModelUnloaded() {
	if m == nil {
		return
	}
	m.ModelLoadedGauge.Set(0)
}

// ClassificationStarted increments the active gauge; call the returned func when done.
func (m *ClassifierMetrics) ClassificationStarted() func() {
	if m == nil {
		return func() {}
	}
	m.ActiveClassifications.Inc()
	return m.ActiveClassifications.Dec
}

// Describe implements the prometheus.Collector interface.
func (m *ClassifierMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.ClassificationTotal.Describe(ch)
	m.ClassificationErrors.Describe(ch)
	m.ClassificationDuration.Describe(ch)
	m.ModelInvokeDuration.Describe(ch)
	m.PrimaryLabelCounter.Describe(ch)
	m.PrimaryConfidence.Describe(ch)
	m.ModelLoadTotal.Describe(ch)
	m.ModelLoadDuration.Describe(ch)
	ch <- m.ModelLoadedGauge.Desc()
	ch <- m.ActiveClassifications.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *ClassifierMetrics) Collect(ch chan<- prometheus.Metric) {
	m.ClassificationTotal.Collect(ch)
	m.ClassificationErrors.Collect(ch)
	m.ClassificationDuration.Collect(ch)
	m.ModelInvokeDuration.Collect(ch)
	m.PrimaryLabelCounter.Collect(ch)
	m.PrimaryConfidence.Collect(ch)
	m.ModelLoadTotal.Collect(ch)
	m.ModelLoadDuration.Collect(ch)
	ch <- m.ModelLoadedGauge
	ch <- m.ActiveClassifications
}
