package model

import (
	"time"
)

// Category identifies one detection category with its own score and threshold.
type Category string

const (
	CategoryVM           Category = "vm"
	CategoryRemoteAccess Category = "remote_access"
	CategoryScreenShare  Category = "screen_share"
)

// Categories lists all detection categories in evaluation order.
func Categories() []Category {
	return []Category{CategoryVM, CategoryRemoteAccess, CategoryScreenShare}
}

// BIOSInfo holds firmware identification strings from the snapshot provider.
type BIOSInfo struct {
	Manufacturer string `json:"manufacturer"`
	Product      string `json:"product"`
	CPUInfo      string `json:"cpu_info"`
}

// NetworkInfo holds the host's link-layer and listener observables.
type NetworkInfo struct {
	MACAddresses   []string `json:"mac_addresses"`
	ListeningPorts []int    `json:"listening_ports"`
}

// SessionInfo describes the interactive session the snapshot was taken from.
type SessionInfo struct {
	Name      string `json:"name"`
	SSHActive bool   `json:"ssh_active"`
}

// GPUInfo holds graphics adapter observables.
type GPUInfo struct {
	Devices      []string `json:"devices"`
	DriverFlags  []string `json:"driver_flags"`
	ProcessNames []string `json:"process_names"`
}

// TimingInfo holds coarse scheduler-jitter statistics from the timing probe.
type TimingInfo struct {
	Variance  float64 `json:"variance"`
	StdDev    float64 `json:"std_dev"`
	AvgTime   float64 `json:"avg_time"`
	CPUCount  int     `json:"cpu_count"`
	FreqRange float64 `json:"freq_range"` // max-min CPU MHz across cores
}

// BrowserConnection summarizes one browser process and its open connections.
type BrowserConnection struct {
	Process     string `json:"process"`
	Connections int    `json:"connections"`
	CommandLine string `json:"command_line"`
}

// MetricsSample is the resource-usage subset retained with each history entry.
type MetricsSample struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

// SystemSnapshot is one point-in-time capture of host observables. Providers
// return a fresh value per collection with slices sorted and deduplicated;
// nothing mutates it afterwards. Absent fields stay zero values.
type SystemSnapshot struct {
	Hostname           string              `json:"hostname"`
	CapturedAt         time.Time           `json:"captured_at"`
	BIOS               BIOSInfo            `json:"bios"`
	Processes          []string            `json:"processes"` // lowercase names
	Network            NetworkInfo         `json:"network"`
	Session            SessionInfo         `json:"session"`
	GPU                GPUInfo             `json:"gpu"`
	Timing             TimingInfo          `json:"timing"`
	BrowserConnections []BrowserConnection `json:"browser_connections"`
	Metrics            MetricsSample       `json:"metrics"`
}

// SnapshotRef identifies the snapshot a result was computed from without
// retaining the full capture.
type SnapshotRef struct {
	Hostname   string    `json:"hostname"`
	CapturedAt time.Time `json:"captured_at"`
}

// CategoryResult is the scored outcome for a single category.
type CategoryResult struct {
	Detected   bool     `json:"detected"`
	Confidence float64  `json:"confidence"` // 0.0 to 1.0
	Evidence   []string `json:"evidence"`
}

// DetectionResult is the outcome of one full analysis cycle. Created once per
// cycle and immutable afterwards.
type DetectionResult struct {
	ID           string         `json:"id"`
	Hostname     string         `json:"hostname"`
	Timestamp    time.Time      `json:"timestamp"`
	Snapshot     SnapshotRef    `json:"snapshot"`
	VM           CategoryResult `json:"vm"`
	RemoteAccess CategoryResult `json:"remote_access"`
	ScreenShare  CategoryResult `json:"screen_share"`
	Metrics      MetricsSample  `json:"metrics"`
}

// ByCategory returns the category result for c. Unknown categories return a
// zero result.
func (r *DetectionResult) ByCategory(c Category) CategoryResult {
	switch c {
	case CategoryVM:
		return r.VM
	case CategoryRemoteAccess:
		return r.RemoteAccess
	case CategoryScreenShare:
		return r.ScreenShare
	}
	return CategoryResult{}
}

// HistoryEntry projects a DetectionResult down to the scalars retained and
// persisted by the history store.
func (r *DetectionResult) HistoryEntry() HistoryEntry {
	return HistoryEntry{
		Timestamp:        r.Timestamp,
		VMDetected:       r.VM.Detected,
		VMConfidence:     r.VM.Confidence,
		RemoteDetected:   r.RemoteAccess.Detected,
		RemoteConfidence: r.RemoteAccess.Confidence,
		ScreenDetected:   r.ScreenShare.Detected,
		ScreenConfidence: r.ScreenShare.Confidence,
		Metrics:          r.Metrics,
	}
}
