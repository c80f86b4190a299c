package anomaly

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/trustplane/hostsentry/internal/config"
	"github.com/trustplane/hostsentry/internal/model"
)

// Analyzer evaluates the retained detection history for temporal patterns a
// single scan cannot surface.
type Analyzer struct {
	cfg    config.AnomalyConfig
	logger *slog.Logger
}

// NewAnalyzer creates an analyzer with the given rule thresholds.
func NewAnalyzer(cfg config.AnomalyConfig, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		cfg:    cfg,
		logger: logger,
	}
}

// Analyze runs every anomaly rule over the history window. Fewer than two
// entries cannot exhibit temporal behavior, so the report is marked
// insufficient and nothing else is computed.
func (a *Analyzer) Analyze(entries []model.HistoryEntry) model.AnomalyReport {
	report := model.AnomalyReport{
		WindowSize:  len(entries),
		GeneratedAt: time.Now().UTC(),
	}
	if len(entries) < 2 {
		return report
	}

	report.SufficientData = true
	report.Stats = ComputeStats(entries)
	report.Anomalies = append(report.Anomalies, a.suddenTransitions(entries)...)
	report.Anomalies = append(report.Anomalies, a.sustainedHighConfidence(entries)...)
	report.Anomalies = append(report.Anomalies, a.resourceSpikes(entries)...)

	if len(report.Anomalies) > 0 {
		a.logger.Warn("Behavioral anomalies flagged",
			"count", len(report.Anomalies),
			"window", len(entries))
	}
	return report
}

// suddenTransitions compares the two most recent entries per category and
// flags clear-to-detected flips.
func (a *Analyzer) suddenTransitions(entries []model.HistoryEntry) []model.AnomalyEvent {
	prev := entries[len(entries)-2]
	last := entries[len(entries)-1]

	var events []model.AnomalyEvent
	for _, c := range model.Categories() {
		if prev.Detected(c) || !last.Detected(c) {
			continue
		}
		events = append(events, model.AnomalyEvent{
			Type:       model.AnomalySuddenTransition,
			Category:   c,
			Confidence: last.Confidence(c),
			Message:    fmt.Sprintf("Detection state for %s flipped from clear to detected", c),
			Timestamp:  last.Timestamp,
		})
	}
	return events
}

// sustainedHighConfidence flags a window dominated by high VM confidence,
// which points at a host that is persistently virtualized rather than one
// tripping a transient signal.
func (a *Analyzer) sustainedHighConfidence(entries []model.HistoryEntry) []model.AnomalyEvent {
	count := 0
	for _, e := range entries {
		if e.VMConfidence > a.cfg.HighConfidence {
			count++
		}
	}

	ratio := float64(count) / float64(len(entries))
	if ratio <= a.cfg.SustainedRatio {
		return nil
	}

	return []model.AnomalyEvent{{
		Type:      model.AnomalySustainedHighConfidence,
		Category:  model.CategoryVM,
		Count:     count,
		Ratio:     ratio,
		Message:   fmt.Sprintf("VM confidence above %.2f in %d of %d retained scans", a.cfg.HighConfidence, count, len(entries)),
		Timestamp: entries[len(entries)-1].Timestamp,
	}}
}

// resourceSpikes averages the newest spike-window entries per resource metric
// and flags averages beyond the spike threshold.
func (a *Analyzer) resourceSpikes(entries []model.HistoryEntry) []model.AnomalyEvent {
	window := a.cfg.SpikeWindow
	if window <= 0 || len(entries) < window {
		return nil
	}

	var cpu, mem float64
	for _, e := range entries[len(entries)-window:] {
		cpu += e.Metrics.CPUPercent
		mem += e.Metrics.MemoryPercent
	}
	cpu /= float64(window)
	mem /= float64(window)

	last := entries[len(entries)-1].Timestamp
	var events []model.AnomalyEvent
	if cpu > a.cfg.SpikeThreshold {
		events = append(events, model.AnomalyEvent{
			Type:      model.AnomalyResourceSpike,
			Metric:    "cpu_percent",
			Average:   cpu,
			Message:   fmt.Sprintf("Average cpu_percent over the last %d scans is %.1f", window, cpu),
			Timestamp: last,
		})
	}
	if mem > a.cfg.SpikeThreshold {
		events = append(events, model.AnomalyEvent{
			Type:      model.AnomalyResourceSpike,
			Metric:    "memory_percent",
			Average:   mem,
			Message:   fmt.Sprintf("Average memory_percent over the last %d scans is %.1f", window, mem),
			Timestamp: last,
		})
	}
	return events
}

// ComputeStats aggregates the window for the statistics surface: totals,
// per-category detection counts and rates, average confidences, and the time
// bounds. An empty window yields zero stats.
func ComputeStats(entries []model.HistoryEntry) model.HistoryStats {
	stats := model.HistoryStats{TotalEntries: len(entries)}
	if len(entries) == 0 {
		return stats
	}

	var vmConf, remoteConf, screenConf float64
	for _, e := range entries {
		if e.VMDetected {
			stats.VMDetections++
		}
		if e.RemoteDetected {
			stats.RemoteDetections++
		}
		if e.ScreenDetected {
			stats.ScreenDetections++
		}
		vmConf += e.VMConfidence
		remoteConf += e.RemoteConfidence
		screenConf += e.ScreenConfidence
	}

	n := float64(len(entries))
	stats.VMRate = float64(stats.VMDetections) / n
	stats.RemoteRate = float64(stats.RemoteDetections) / n
	stats.ScreenRate = float64(stats.ScreenDetections) / n
	stats.AvgVMConfidence = vmConf / n
	stats.AvgRemoteConfidence = remoteConf / n
	stats.AvgScreenConfidence = screenConf / n
	stats.FirstTimestamp = entries[0].Timestamp
	stats.LastTimestamp = entries[len(entries)-1].Timestamp
	return stats
}
