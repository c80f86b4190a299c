// Package monitor drives the periodic scan loop: collect a snapshot, score
// it, fold the result into history, run behavioral analysis, and fan the
// outcome out to alerts, the archive, and metrics.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/trustplane/hostsentry/internal/alert"
	"github.com/trustplane/hostsentry/internal/anomaly"
	"github.com/trustplane/hostsentry/internal/archive"
	"github.com/trustplane/hostsentry/internal/engine"
	"github.com/trustplane/hostsentry/internal/history"
	"github.com/trustplane/hostsentry/internal/metrics"
	"github.com/trustplane/hostsentry/internal/model"
	"github.com/trustplane/hostsentry/internal/snapshot"
)

// collectTimeout bounds provider collection so a hung sub-collector cannot
// stall the scan loop.
const collectTimeout = 20 * time.Second

// State is a point-in-time view of the scan loop for status reporting.
type State struct {
	CycleCount int       `json:"cycle_count"`
	Interval   string    `json:"interval"`
	LastRun    time.Time `json:"last_run"`
}

// Monitor owns one scan pipeline. The alert publisher and archive store are
// optional; a nil value disables that sink. All cycles, periodic and forced,
// are serialized by one mutex so history entries are ordered by completion.
type Monitor struct {
	provider snapshot.Provider
	engine   *engine.Engine
	store    *history.Store
	analyzer *anomaly.Analyzer
	alerts   *alert.Publisher
	archive  *archive.Store
	metrics  *metrics.Metrics
	logger   *slog.Logger
	interval time.Duration

	cycleMu sync.Mutex

	mu         sync.RWMutex
	latest     *model.DetectionResult
	lastReport model.AnomalyReport
	hasReport  bool
	cycleCount int
	lastRun    time.Time
}

// New wires a monitor from its collaborators. Nothing starts until Run.
func New(provider snapshot.Provider, eng *engine.Engine, store *history.Store, analyzer *anomaly.Analyzer,
	alerts *alert.Publisher, arch *archive.Store, m *metrics.Metrics, logger *slog.Logger, interval time.Duration) *Monitor {
	return &Monitor{
		provider: provider,
		engine:   eng,
		store:    store,
		analyzer: analyzer,
		alerts:   alerts,
		archive:  arch,
		metrics:  m,
		logger:   logger,
		interval: interval,
	}
}

// Run executes an immediate first cycle and then one cycle per interval tick
// until ctx is cancelled. Cancellation stops the loop between cycles; a cycle
// already past collection always completes.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info("Monitor started",
		"provider", m.provider.Name(),
		"interval", m.interval.String())

	m.runCycle(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Monitor stopped")
			return
		case <-ticker.C:
			m.runCycle(ctx)
		}
	}
}

// ForceAnalyze runs one full cycle on demand and returns the fresh result.
// It shares the cycle mutex with the periodic driver, so a forced analysis
// never interleaves with a scheduled one.
func (m *Monitor) ForceAnalyze(ctx context.Context) (*model.DetectionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := m.runCycle(ctx)
	if result == nil {
		return nil, ctx.Err()
	}
	return result, nil
}

// Latest returns the most recent completed result, if any cycle has run.
func (m *Monitor) Latest() (*model.DetectionResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest, m.latest != nil
}

// LastReport returns the behavioral report from the most recent cycle.
func (m *Monitor) LastReport() (model.AnomalyReport, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastReport, m.hasReport
}

// Ready reports whether at least one cycle has completed.
func (m *Monitor) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cycleCount > 0
}

// State returns loop counters for the status endpoint.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return State{
		CycleCount: m.cycleCount,
		Interval:   m.interval.String(),
		LastRun:    m.lastRun,
	}
}

// runCycle executes one collect-analyze-record pass. It returns nil only
// when collection was aborted by shutdown; a failing provider degrades to an
// empty snapshot so the loop keeps producing results.
func (m *Monitor) runCycle(ctx context.Context) *model.DetectionResult {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	started := time.Now()
	m.metrics.IncrementScanCycles()

	collectCtx, cancel := context.WithTimeout(ctx, collectTimeout)
	snap, err := m.provider.Collect(collectCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil // shutting down, skip the partial capture
		}
		m.logger.Warn("Snapshot collection failed, analyzing empty snapshot",
			"provider", m.provider.Name(), "error", err)
		m.metrics.IncrementScanCycleErrors()
		snap = &model.SystemSnapshot{CapturedAt: time.Now().UTC()}
	}

	result := m.engine.Analyze(snap)

	m.store.Append(result.HistoryEntry())
	report := m.analyzer.Analyze(m.store.Snapshot())

	m.publishAlerts(result, report)
	m.archiveResult(result, len(report.Anomalies))
	m.updateMetrics(result, report)

	m.mu.Lock()
	m.latest = result
	m.lastReport = report
	m.hasReport = true
	m.cycleCount++
	m.lastRun = started
	m.mu.Unlock()

	m.logger.Info("Scan cycle complete",
		"result_id", result.ID,
		"duration_ms", time.Since(started).Milliseconds(),
		"vm_detected", result.VM.Detected,
		"remote_detected", result.RemoteAccess.Detected,
		"screen_share_detected", result.ScreenShare.Detected,
		"anomalies", len(report.Anomalies))

	return result
}

// publishAlerts emits one detection alert per category that newly flipped to
// detected since the previous result, and one anomaly alert per behavioral
// event. A category that stays detected across cycles does not re-alert; the
// publisher's cooldown handles flapping below the cycle level.
func (m *Monitor) publishAlerts(result *model.DetectionResult, report model.AnomalyReport) {
	if m.alerts == nil {
		return
	}

	previous, _ := m.Latest()
	for _, category := range model.Categories() {
		if !result.ByCategory(category).Detected {
			continue
		}
		if previous != nil && previous.ByCategory(category).Detected {
			continue
		}
		m.alerts.PublishDetection(result, category)
	}

	for _, event := range report.Anomalies {
		m.alerts.PublishAnomaly(result.Hostname, event)
	}
}

func (m *Monitor) archiveResult(result *model.DetectionResult, anomalies int) {
	if m.archive == nil {
		return
	}
	if err := m.archive.Insert(result, anomalies); err != nil {
		m.logger.Warn("Archive insert failed", "result_id", result.ID, "error", err)
		m.metrics.IncrementArchiveErrors()
		return
	}
	m.metrics.IncrementArchiveWrites()
}

func (m *Monitor) updateMetrics(result *model.DetectionResult, report model.AnomalyReport) {
	for _, category := range model.Categories() {
		cr := result.ByCategory(category)
		m.metrics.SetConfidence(string(category), cr.Confidence)
		if cr.Detected {
			m.metrics.RecordDetection(string(category))
		}
	}
	for _, event := range report.Anomalies {
		m.metrics.RecordAnomaly(string(event.Type))
	}
}
