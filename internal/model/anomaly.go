package model

import (
	"time"
)

// AnomalyType discriminates the variants of AnomalyEvent.
type AnomalyType string

const (
	// AnomalySuddenTransition fires when a category flips from clear to
	// detected between the two most recent entries.
	AnomalySuddenTransition AnomalyType = "sudden_transition"
	// AnomalySustainedHighConfidence fires when high-confidence entries
	// dominate the retained window.
	AnomalySustainedHighConfidence AnomalyType = "sustained_high_confidence"
	// AnomalyResourceSpike fires when a resource metric's recent average
	// exceeds its spike threshold.
	AnomalyResourceSpike AnomalyType = "resource_spike"
)

// AnomalyEvent is one flagged temporal anomaly. Type selects which of the
// payload fields are meaningful; the rest stay zero and are omitted.
type AnomalyEvent struct {
	Type       AnomalyType `json:"type"`
	Category   Category    `json:"category,omitempty"`
	Confidence float64     `json:"confidence,omitempty"`
	Count      int         `json:"count,omitempty"`
	Ratio      float64     `json:"ratio,omitempty"`
	Metric     string      `json:"metric,omitempty"`
	Average    float64     `json:"average,omitempty"`
	Message    string      `json:"message"`
	Timestamp  time.Time   `json:"timestamp"`
}

// AnomalyReport is the outcome of one pass over the retained history window.
// SufficientData is false when the window holds fewer than two entries, in
// which case nothing else is populated.
type AnomalyReport struct {
	SufficientData bool           `json:"sufficient_data"`
	WindowSize     int            `json:"window_size"`
	Stats          HistoryStats   `json:"stats"`
	Anomalies      []AnomalyEvent `json:"anomalies"`
	GeneratedAt    time.Time      `json:"generated_at"`
}
