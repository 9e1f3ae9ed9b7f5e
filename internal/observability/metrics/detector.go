// Package metrics provides custom Prometheus metrics for the soundscape
// analysis pipeline.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/urbansound/soundscape/internal/errors"
)

// Window outcome labels
const (
	WindowAnalyzed = "analyzed"
	WindowSkipped  = "skipped"
)

// DetectorMetrics contains all Prometheus metrics related to windowed
// detection and grouping.
type DetectorMetrics struct {
	WindowsTotal     *prometheus.CounterVec
	DetectionsTotal  *prometheus.CounterVec
	EventsTotal      *prometheus.CounterVec
	WindowDuration   prometheus.Histogram
	RunDuration      prometheus.Histogram
	RunsTotal        *prometheus.CounterVec
	ActiveRunsGauge  prometheus.Gauge
	LastRunTimestamp prometheus.Gauge
	registry         *prometheus.Registry
}

// NewDetectorMetrics creates a new instance of DetectorMetrics and
// registers it with registry.
func NewDetectorMetrics(registry *prometheus.Registry) (*DetectorMetrics, error) {
	m := &DetectorMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register detector metrics: %w", err)
	}
	return m, nil
}

func (m *DetectorMetrics) initMetrics() {
	m.WindowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soundscape_windows_total",
			Help: "Total number of analysis windows partitioned by outcome.",
		},
		[]string{"status"},
	)

	m.DetectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soundscape_detections_total",
			Help: "Raw per-window detections partitioned by predicted label.",
		},
		[]string{"label"},
	)

	m.EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soundscape_events_total",
			Help: "Grouped events partitioned by label.",
		},
		[]string{"label"},
	)

	m.WindowDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "soundscape_window_duration_seconds",
		Help:    "Time taken to extract features from and classify one window",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	m.RunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "soundscape_run_duration_seconds",
		Help:    "Time taken to analyze one signal",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	m.RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soundscape_runs_total",
			Help: "Total number of detection runs",
		},
		[]string{"status", "error_category"},
	)

	m.ActiveRunsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "soundscape_active_runs",
		Help: "Number of detection runs in progress",
	})

	m.LastRunTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "soundscape_last_run_timestamp_seconds",
		Help: "Unix time of the last finished detection run",
	})
}

// RecordWindow counts one window outcome and, for analyzed windows, its
// processing time.
func (m *DetectorMetrics) RecordWindow(status string, d time.Duration) {
	m.WindowsTotal.WithLabelValues(status).Inc()
	if status == WindowAnalyzed {
		m.WindowDuration.Observe(d.Seconds())
	}
}

// RecordDetection counts a detection for label
func (m *DetectorMetrics) RecordDetection(label string) {
	m.DetectionsTotal.WithLabelValues(label).Inc()
}

// RecordEvent counts a grouped event for label
func (m *DetectorMetrics) RecordEvent(label string) {
	m.EventsTotal.WithLabelValues(label).Inc()
}

// StartRun marks a run as active. The returned function finishes it.
func (m *DetectorMetrics) StartRun() func(err error) {
	start := time.Now()
	m.ActiveRunsGauge.Inc()
	return func(err error) {
		m.ActiveRunsGauge.Dec()
		m.LastRunTimestamp.SetToCurrentTime()
		if err != nil {
			m.RunsTotal.WithLabelValues("error", categorizeError(err)).Inc()
			return
		}
		m.RunsTotal.WithLabelValues("success", "none").Inc()
		m.RunDuration.Observe(time.Since(start).Seconds())
	}
}

// categorizeError returns the error category for labelling
func categorizeError(err error) string {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return ee.GetCategory()
	}
	return string(errors.CategoryGeneric)
}

// Describe implements the prometheus.Collector interface.
func (m *DetectorMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.WindowsTotal.Describe(ch)
	m.DetectionsTotal.Describe(ch)
	m.EventsTotal.Describe(ch)
	ch <- m.WindowDuration.Desc()
	ch <- m.RunDuration.Desc()
	m.RunsTotal.Describe(ch)
	ch <- m.ActiveRunsGauge.Desc()
	ch <- m.LastRunTimestamp.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *DetectorMetrics) Collect(ch chan<- prometheus.Metric) {
	m.WindowsTotal.Collect(ch)
	m.DetectionsTotal.Collect(ch)
	m.EventsTotal.Collect(ch)
	ch <- m.WindowDuration
	ch <- m.RunDuration
	m.RunsTotal.Collect(ch)
	ch <- m.ActiveRunsGauge
	ch <- m.LastRunTimestamp
}
