package engine

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/trustplane/hostsentry/internal/check"
	"github.com/trustplane/hostsentry/internal/config"
	"github.com/trustplane/hostsentry/internal/model"
)

// Engine combines the signal checkers into per-category confidence scores.
//
// Per category the checkers' clamped partial scores are summed and the sum is
// clamped to 1.0. Summation is deliberate: each checker is an independent
// piece of evidence and evidence accumulates, so one strong signal or several
// weak ones can both reach the threshold. Changing this to an average or a
// probabilistic combination changes observable detection outcomes.
type Engine struct {
	signatures *model.SignatureSet
	detection  config.DetectionConfig
	logger     *slog.Logger
}

// New creates an engine bound to one loaded signature set. The set is treated
// as read-only for the engine's lifetime.
func New(signatures *model.SignatureSet, detection config.DetectionConfig, logger *slog.Logger) *Engine {
	return &Engine{
		signatures: signatures,
		detection:  detection,
		logger:     logger,
	}
}

// Analyze scores one snapshot and returns the assembled result. It performs
// no I/O and is deterministic for a given snapshot and signature set: fixed
// checker order, slice-ordered lists, no map iteration.
func (e *Engine) Analyze(snapshot *model.SystemSnapshot) *model.DetectionResult {
	vm := e.scoreVM(snapshot)
	remote := e.scoreRemoteAccess(snapshot)
	screen := e.scoreScreenShare(snapshot)

	result := &model.DetectionResult{
		ID:        uuid.New().String(),
		Hostname:  snapshot.Hostname,
		Timestamp: time.Now().UTC(),
		Snapshot: model.SnapshotRef{
			Hostname:   snapshot.Hostname,
			CapturedAt: snapshot.CapturedAt,
		},
		VM:           e.categorize(model.CategoryVM, vm),
		RemoteAccess: e.categorize(model.CategoryRemoteAccess, remote),
		ScreenShare:  e.categorize(model.CategoryScreenShare, screen),
		Metrics:      snapshot.Metrics,
	}

	e.logger.Debug("Analysis complete",
		"result_id", result.ID,
		"vm_confidence", result.VM.Confidence,
		"remote_confidence", result.RemoteAccess.Confidence,
		"screen_share_confidence", result.ScreenShare.Confidence)

	return result
}

// Signatures returns the engine's signature set.
func (e *Engine) Signatures() *model.SignatureSet {
	return e.signatures
}

// scoreVM sums BIOS, MAC, process, GPU, and timing evidence. Timing runs
// last: it only evaluates once the other signals have put the category at or
// above the configured floor.
func (e *Engine) scoreVM(snapshot *model.SystemSnapshot) check.Result {
	group := e.signatures.VMIndicators
	w := e.signatures.Weights

	var total check.Result
	accumulate(&total, check.BIOS(snapshot.BIOS, group.BIOSKeywords, w))
	accumulate(&total, check.MACVendors(snapshot.Network.MACAddresses, group.MACVendors, w))
	accumulate(&total, check.Processes(snapshot.Processes, group.Processes, w))
	accumulate(&total, check.GPU(snapshot.GPU, w, e.detection))
	accumulate(&total, check.Timing(snapshot.Timing, check.Clamp01(total.Score), w, e.detection))

	total.Score = check.Clamp01(total.Score)
	return total
}

func (e *Engine) scoreRemoteAccess(snapshot *model.SystemSnapshot) check.Result {
	group := e.signatures.RemoteIndicators
	w := e.signatures.Weights

	var total check.Result
	accumulate(&total, check.Processes(snapshot.Processes, group.Processes, w))
	accumulate(&total, check.Ports(snapshot.Network.ListeningPorts, group.Ports, w))
	accumulate(&total, check.Session(snapshot.Session, group.SessionKeywords, w))

	total.Score = check.Clamp01(total.Score)
	return total
}

func (e *Engine) scoreScreenShare(snapshot *model.SystemSnapshot) check.Result {
	group := e.signatures.ScreenShareIndicators
	w := e.signatures.Weights

	var total check.Result
	accumulate(&total, check.Processes(snapshot.Processes, group.Processes, w))
	accumulate(&total, check.BrowserMeeting(snapshot.BrowserConnections, group, w, e.detection))

	total.Score = check.Clamp01(total.Score)
	return total
}

func (e *Engine) categorize(category model.Category, r check.Result) model.CategoryResult {
	threshold := e.signatures.Thresholds.ByCategory(category)
	return model.CategoryResult{
		Detected:   r.Score >= threshold,
		Confidence: r.Score,
		Evidence:   r.Evidence,
	}
}

func accumulate(total *check.Result, r check.Result) {
	total.Score += r.Score
	total.Evidence = append(total.Evidence, r.Evidence...)
}
