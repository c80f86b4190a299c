package model

// IndicatorGroup holds the match lists for one detection category. Absent
// keys in the source document stay empty; empty lists simply never match.
type IndicatorGroup struct {
	BIOSKeywords     []string `json:"bios_keywords,omitempty"`
	MACVendors       []string `json:"mac_vendors,omitempty"`
	Processes        []string `json:"processes,omitempty"`
	Ports            []int    `json:"ports,omitempty"`
	SessionKeywords  []string `json:"session_keywords,omitempty"`
	BrowserProcesses []string `json:"browser_processes,omitempty"`
	BrowserKeywords  []string `json:"browser_keywords,omitempty"`
}

// Weights maps each signal to its per-match score contribution. JSON keys are
// the signal names used by the signature document.
type Weights struct {
	BIOSMatch      float64 `json:"bios_match"`
	CPUMatch       float64 `json:"cpu_match"`
	MACMatch       float64 `json:"mac_match"`
	ProcessMatch   float64 `json:"process_match"`
	PortMatch      float64 `json:"port_match"`
	SessionMatch   float64 `json:"session_match"`
	GPUMatch       float64 `json:"gpu_match"`
	TimingMatch    float64 `json:"timing_match"`
	MeetingActive  float64 `json:"meeting_active"`
	MeetingKeyword float64 `json:"meeting_keyword"`
	BrowserPresent float64 `json:"browser_present"`
}

// Thresholds holds the per-category detection cutoffs. A category is detected
// when its confidence reaches the threshold (inclusive).
type Thresholds struct {
	VM           float64 `json:"vm"`
	RemoteAccess float64 `json:"remote_access"`
	ScreenShare  float64 `json:"screen_share"`
}

// ByCategory returns the threshold for c.
func (t Thresholds) ByCategory(c Category) float64 {
	switch c {
	case CategoryVM:
		return t.VM
	case CategoryRemoteAccess:
		return t.RemoteAccess
	case CategoryScreenShare:
		return t.ScreenShare
	}
	return 0
}

// SignatureSet is the full signature configuration: indicator lists per
// category plus weights and thresholds. Loaded once at engine construction
// and read-only afterwards.
type SignatureSet struct {
	VMIndicators          IndicatorGroup `json:"vm_indicators"`
	RemoteIndicators      IndicatorGroup `json:"remote_indicators"`
	ScreenShareIndicators IndicatorGroup `json:"screen_share_indicators"`
	Weights               Weights        `json:"weights"`
	Thresholds            Thresholds     `json:"thresholds"`
}

// DefaultWeights returns the coded per-signal contributions used when the
// signature source omits a weight. The VM-side weights reflect signal
// specificity: BIOS and MAC evidence is harder to fake incidentally than a
// matching process name.
func DefaultWeights() Weights {
	return Weights{
		BIOSMatch:      0.4,
		CPUMatch:       0.2,
		MACMatch:       0.3,
		ProcessMatch:   0.25,
		PortMatch:      0.15,
		SessionMatch:   0.3,
		GPUMatch:       0.2,
		TimingMatch:    0.2,
		MeetingActive:  0.5,
		MeetingKeyword: 0.35,
		BrowserPresent: 0.1,
	}
}

// DefaultThresholds returns the coded per-category cutoffs. Asymmetric on
// purpose: screen-share signals are weaker heuristics, so they surface at a
// lower bar than VM evidence.
func DefaultThresholds() Thresholds {
	return Thresholds{
		VM:           0.5,
		RemoteAccess: 0.4,
		ScreenShare:  0.3,
	}
}

// DefaultSignatureSet returns the built-in fallback set: empty indicator
// lists with default weights and thresholds. An engine running on it stays
// usable and reports zero detections.
func DefaultSignatureSet() *SignatureSet {
	return &SignatureSet{
		Weights:    DefaultWeights(),
		Thresholds: DefaultThresholds(),
	}
}
