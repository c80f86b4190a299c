package model

import (
	"time"
)

// HistoryEntry is the trimmed per-cycle record retained by the history store:
// per-category outcome scalars plus the resource-metrics subset. Full
// snapshots and evidence are dropped at this boundary.
type HistoryEntry struct {
	Timestamp        time.Time     `json:"timestamp"`
	VMDetected       bool          `json:"vm_detected"`
	VMConfidence     float64       `json:"vm_confidence"`
	RemoteDetected   bool          `json:"remote_detected"`
	RemoteConfidence float64       `json:"remote_confidence"`
	ScreenDetected   bool          `json:"screen_share_detected"`
	ScreenConfidence float64       `json:"screen_share_confidence"`
	Metrics          MetricsSample `json:"metrics"`
}

// Detected returns the detection flag for c.
func (e HistoryEntry) Detected(c Category) bool {
	switch c {
	case CategoryVM:
		return e.VMDetected
	case CategoryRemoteAccess:
		return e.RemoteDetected
	case CategoryScreenShare:
		return e.ScreenDetected
	}
	return false
}

// Confidence returns the confidence score for c.
func (e HistoryEntry) Confidence(c Category) float64 {
	switch c {
	case CategoryVM:
		return e.VMConfidence
	case CategoryRemoteAccess:
		return e.RemoteConfidence
	case CategoryScreenShare:
		return e.ScreenConfidence
	}
	return 0
}

// HistoryStats aggregates the retained window: totals, per-category detection
// counts and rates, average confidences, and the window's time bounds.
type HistoryStats struct {
	TotalEntries        int       `json:"total_entries"`
	VMDetections        int       `json:"vm_detections"`
	RemoteDetections    int       `json:"remote_detections"`
	ScreenDetections    int       `json:"screen_share_detections"`
	VMRate              float64   `json:"vm_rate"`
	RemoteRate          float64   `json:"remote_rate"`
	ScreenRate          float64   `json:"screen_share_rate"`
	AvgVMConfidence     float64   `json:"avg_vm_confidence"`
	AvgRemoteConfidence float64   `json:"avg_remote_confidence"`
	AvgScreenConfidence float64   `json:"avg_screen_share_confidence"`
	FirstTimestamp      time.Time `json:"first_timestamp"`
	LastTimestamp       time.Time `json:"last_timestamp"`
}
