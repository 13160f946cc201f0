package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics tracks image preparation and the scan workflow.
type PipelineMetrics struct {
	stageDuration  *prometheus.HistogramVec
	qualityScore   prometheus.Histogram
	qualityIssues  *prometheus.CounterVec
	scansTotal     *prometheus.CounterVec
	statsCacheHits *prometheus.CounterVec
}

// NewPipelineMetrics creates and registers pipeline metrics.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "soilnet_pipeline_stage_duration_seconds",
				Help:    "Duration of image pipeline stages.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
			[]string{"stage"},
		),
		qualityScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "soilnet_image_quality_score",
				Help:    "Quality score of analyzed images.",
				Buckets: prometheus.LinearBuckets(0, 10, 11),
			},
		),
		qualityIssues: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soilnet_image_quality_issues_total",
				Help: "Quality issues detected, partitioned by kind.",
			},
			[]string{"issue"},
		),
		scansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soilnet_scans_total",
				Help: "End to end scans partitioned by outcome.",
			},
			[]string{"outcome"},
		),
		statsCacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soilnet_stats_cache_lookups_total",
				Help: "Statistics record cache lookups partitioned by result.",
			},
			[]string{"result"},
		),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

// ObserveStage records the duration of one pipeline stage.
func (m *PipelineMetrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordQuality records a quality verdict.
func (m *PipelineMetrics) RecordQuality(score int, issues []string) {
	if m == nil {
		return
	}
	m.qualityScore.Observe(float64(score))
	for _, issue := range issues {
		m.qualityIssues.WithLabelValues(issue).Inc()
	}
}

// RecordScan records the outcome of one scan, e.g. "saved" or "low_confidence".
func (m *PipelineMetrics) RecordScan(outcome string) {
	if m == nil {
		return
	}
	m.scansTotal.WithLabelValues(outcome).Inc()
}

// RecordStatsCache records a statistics cache hit or miss.
func (m *PipelineMetrics) RecordStatsCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.statsCacheHits.WithLabelValues(result).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.stageDuration.Describe(ch)
	m.qualityScore.Describe(ch)
	m.qualityIssues.Describe(ch)
	m.scansTotal.Describe(ch)
	m.statsCacheHits.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.stageDuration.Collect(ch)
	m.qualityScore.Collect(ch)
	m.qualityIssues.Collect(ch)
	m.scansTotal.Collect(ch)
	m.statsCacheHits.Collect(ch)
}
