package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all the Prometheus metrics for the hostsentry service
type Metrics struct {
	ScanCyclesTotal           prometheus.Counter
	ScanCycleErrorsTotal      prometheus.Counter
	DetectionsTotal           *prometheus.CounterVec
	Confidence                *prometheus.GaugeVec
	AnomaliesTotal            *prometheus.CounterVec
	HistorySize               prometheus.Gauge
	HistoryPersistErrorsTotal prometheus.Counter
	AlertsPublishedTotal      *prometheus.CounterVec
	AlertsSuppressedTotal     prometheus.Counter
	AlertPublishErrorsTotal   prometheus.Counter
	ArchiveWritesTotal        prometheus.Counter
	ArchiveErrorsTotal        prometheus.Counter
}

// NewMetrics creates a new Metrics instance registered against reg. Pass
// prometheus.DefaultRegisterer in the service and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ScanCyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "hostsentry_scan_cycles_total",
			Help: "Total number of scan cycles executed",
		}),
		ScanCycleErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "hostsentry_scan_cycle_errors_total",
			Help: "Total number of scan cycles that failed to collect a snapshot",
		}),
		DetectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hostsentry_detections_total",
			Help: "Total number of positive detections by category",
		}, []string{"category"}),
		Confidence: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hostsentry_confidence",
			Help: "Confidence score of the most recent analysis by category",
		}, []string{"category"}),
		AnomaliesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hostsentry_anomalies_total",
			Help: "Total number of behavioral anomalies raised by type",
		}, []string{"type"}),
		HistorySize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hostsentry_history_size",
			Help: "Number of entries currently retained in the detection history",
		}),
		HistoryPersistErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "hostsentry_history_persist_errors_total",
			Help: "Total number of failures persisting the detection history to disk",
		}),
		AlertsPublishedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hostsentry_alerts_published_total",
			Help: "Total number of alerts published by type",
		}, []string{"type"}),
		AlertsSuppressedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "hostsentry_alerts_suppressed_total",
			Help: "Total number of alerts suppressed by the cooldown window",
		}),
		AlertPublishErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "hostsentry_alert_publish_errors_total",
			Help: "Total number of alert publish attempts that exhausted retries",
		}),
		ArchiveWritesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "hostsentry_archive_writes_total",
			Help: "Total number of detection results archived",
		}),
		ArchiveErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "hostsentry_archive_errors_total",
			Help: "Total number of archive write failures",
		}),
	}
}

// IncrementScanCycles increments the hostsentry_scan_cycles_total counter
func (m *Metrics) IncrementScanCycles() {
	m.ScanCyclesTotal.Inc()
}

// IncrementScanCycleErrors increments the hostsentry_scan_cycle_errors_total counter
func (m *Metrics) IncrementScanCycleErrors() {
	m.ScanCycleErrorsTotal.Inc()
}

// RecordDetection increments the detection counter for a category
func (m *Metrics) RecordDetection(category string) {
	m.DetectionsTotal.WithLabelValues(category).Inc()
}

// SetConfidence records the latest confidence score for a category
func (m *Metrics) SetConfidence(category string, value float64) {
	m.Confidence.WithLabelValues(category).Set(value)
}

// RecordAnomaly increments the anomaly counter for an anomaly type
func (m *Metrics) RecordAnomaly(anomalyType string) {
	m.AnomaliesTotal.WithLabelValues(anomalyType).Inc()
}

// SetHistorySize records the current history length
func (m *Metrics) SetHistorySize(n int) {
	m.HistorySize.Set(float64(n))
}

// IncrementHistoryPersistErrors increments the history persist error counter
func (m *Metrics) IncrementHistoryPersistErrors() {
	m.HistoryPersistErrorsTotal.Inc()
}

// RecordAlertPublished increments the published alert counter for an alert type
func (m *Metrics) RecordAlertPublished(alertType string) {
	m.AlertsPublishedTotal.WithLabelValues(alertType).Inc()
}

// IncrementAlertsSuppressed increments the suppressed alert counter
func (m *Metrics) IncrementAlertsSuppressed() {
	m.AlertsSuppressedTotal.Inc()
}

// IncrementAlertPublishErrors increments the alert publish error counter
func (m *Metrics) IncrementAlertPublishErrors() {
	m.AlertPublishErrorsTotal.Inc()
}

// IncrementArchiveWrites increments the archive write counter
func (m *Metrics) IncrementArchiveWrites() {
	m.ArchiveWritesTotal.Inc()
}

// IncrementArchiveErrors increments the archive error counter
func (m *Metrics) IncrementArchiveErrors() {
	m.ArchiveErrorsTotal.Inc()
}
