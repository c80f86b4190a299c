package check

import (
	"fmt"
	"strings"

	"github.com/trustplane/hostsentry/internal/config"
	"github.com/trustplane/hostsentry/internal/model"
)

// Result is one checker's contribution to a category: a partial score bounded
// to [0, 1] and the evidence strings that produced it.
//
// Every checker is a total function: absent or zero-value input yields a zero
// score with no evidence, never an error. Scores accumulate additively per
// match and are clamped, so a single noisy signal cannot exceed one weight
// unit times its match count nor escape the [0, 1] bound.
type Result struct {
	Score    float64
	Evidence []string
}

func (r *Result) add(weight float64, format string, args ...any) {
	r.Score += weight
	r.Evidence = append(r.Evidence, fmt.Sprintf(format, args...))
}

func (r *Result) clamp() Result {
	r.Score = Clamp01(r.Score)
	return *r
}

// Clamp01 bounds a score to [0, 1].
func Clamp01(score float64) float64 {
	if score > 1.0 {
		return 1.0
	}
	if score < 0 {
		return 0
	}
	return score
}

// containsFold reports whether s contains substr, case-insensitively.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// normalizeMAC lowercases a MAC address or vendor prefix and folds dash
// separators to colons so prefix comparison sees one delimiter.
func normalizeMAC(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", ":")
}

// BIOS scores firmware identification strings against the VM keyword list.
// Each keyword can contribute once for manufacturer/product and once for the
// CPU info string.
func BIOS(bios model.BIOSInfo, keywords []string, w model.Weights) Result {
	var r Result
	for _, keyword := range keywords {
		if containsFold(bios.Manufacturer, keyword) || containsFold(bios.Product, keyword) {
			r.add(w.BIOSMatch, "BIOS: %s found in manufacturer/product", keyword)
		}
		if containsFold(bios.CPUInfo, keyword) {
			r.add(w.CPUMatch, "CPU: %s found in CPU info", keyword)
		}
	}
	return r.clamp()
}

// MACVendors scores interface hardware addresses against known VM vendor
// prefixes. Only the vendor portion (first three octets) is compared, after
// separator normalization.
func MACVendors(macs []string, vendors []string, w model.Weights) Result {
	var r Result
	for _, mac := range macs {
		normalized := normalizeMAC(mac)
		for _, vendor := range vendors {
			if prefix := normalizeMAC(vendor); prefix != "" && strings.HasPrefix(normalized, prefix) {
				r.add(w.MACMatch, "MAC: %s matches VM vendor %s", mac, vendor)
			}
		}
	}
	return r.clamp()
}

// Processes scores the indicator process list against the running set. Names
// compare case-insensitively and exactly; each indicator contributes at most
// once regardless of how many instances run.
func Processes(running []string, indicators []string, w model.Weights) Result {
	present := make(map[string]struct{}, len(running))
	for _, proc := range running {
		present[strings.ToLower(proc)] = struct{}{}
	}

	var r Result
	for _, indicator := range indicators {
		if _, ok := present[strings.ToLower(indicator)]; ok {
			r.add(w.ProcessMatch, "Process: %s is running", indicator)
		}
	}
	return r.clamp()
}

// Ports scores indicator ports present in the listening set.
func Ports(listening []int, indicators []int, w model.Weights) Result {
	open := make(map[int]struct{}, len(listening))
	for _, port := range listening {
		open[port] = struct{}{}
	}

	var r Result
	for _, port := range indicators {
		if _, ok := open[port]; ok {
			r.add(w.PortMatch, "Port: %d is listening (remote access port)", port)
		}
	}
	return r.clamp()
}

// Session scores the interactive session metadata: a keyword contained in the
// session name and an active SSH connection each contribute one session hit.
func Session(session model.SessionInfo, keywords []string, w model.Weights) Result {
	var r Result
	for _, keyword := range keywords {
		if keyword != "" && containsFold(session.Name, keyword) {
			r.add(w.SessionMatch, "Session: %s matches remote session pattern", session.Name)
		}
	}
	if session.SSHActive {
		r.add(w.SessionMatch, "Session: SSH connection detected")
	}
	return r.clamp()
}

// virtualGPUKeywords identify hypervisor display adapters and software
// rasterizers in device and driver strings.
var virtualGPUKeywords = []string{
	"vmware",
	"virtualbox",
	"vbox",
	"qxl",
	"virgl",
	"virtio",
	"hyper-v",
	"parallels",
	"basic display",
	"llvmpipe",
}

// GPU scores graphics artifacts. The signal is individually unreliable
// (headless servers also lack GPUs), so every hit is damped by
// cfg.GPUDamping and can only nudge the category score.
func GPU(gpu model.GPUInfo, w model.Weights, cfg config.DetectionConfig) Result {
	damped := w.GPUMatch * cfg.GPUDamping

	var r Result
	if len(gpu.Devices) == 0 {
		r.add(damped, "GPU: no display adapters enumerated")
	} else {
		for _, device := range gpu.Devices {
			for _, keyword := range virtualGPUKeywords {
				if containsFold(device, keyword) {
					r.add(damped, "GPU: %s device detected", keyword)
				}
			}
		}
	}
	for _, flag := range gpu.DriverFlags {
		for _, keyword := range virtualGPUKeywords {
			if containsFold(flag, keyword) {
				r.add(damped, "GPU: driver flag %s indicates virtual adapter", flag)
			}
		}
	}
	for _, proc := range gpu.ProcessNames {
		for _, keyword := range virtualGPUKeywords {
			if containsFold(proc, keyword) {
				r.add(damped, "GPU: helper process %s is running", proc)
			}
		}
	}
	return r.clamp()
}

// Timing scores coarse scheduler-jitter statistics. Timing noise must never
// produce a detection on its own: the checker only evaluates once the
// category already carries currentScore >= cfg.TimingScoreFloor from other
// signals, and each hit is damped by cfg.TimingDamping.
func Timing(timing model.TimingInfo, currentScore float64, w model.Weights, cfg config.DetectionConfig) Result {
	var r Result
	if currentScore < cfg.TimingScoreFloor {
		return r
	}
	if timing.AvgTime == 0 && timing.Variance == 0 && timing.StdDev == 0 {
		return r // probe absent
	}

	damped := w.TimingMatch * cfg.TimingDamping
	if timing.Variance > cfg.TimingMaxVariance {
		r.add(damped, "Timing: scheduling variance %.3f exceeds %.3f", timing.Variance, cfg.TimingMaxVariance)
	}
	if timing.AvgTime > 0 && timing.StdDev/timing.AvgTime > cfg.TimingMaxStdDevRatio {
		r.add(damped, "Timing: jitter ratio %.3f exceeds %.3f", timing.StdDev/timing.AvgTime, cfg.TimingMaxStdDevRatio)
	}
	return r.clamp()
}

// BrowserMeeting scores browser activity in three mutually exclusive tiers,
// highest first: an abnormally high simultaneous connection count (active
// meeting), a meeting keyword in the command line, and mere browser presence.
// Lower tiers are suppressed once a higher tier matches so one browser
// instance is never counted twice.
func BrowserMeeting(conns []model.BrowserConnection, group model.IndicatorGroup, w model.Weights, cfg config.DetectionConfig) Result {
	isBrowser := func(name string) bool {
		for _, proc := range group.BrowserProcesses {
			if strings.EqualFold(name, proc) {
				return true
			}
		}
		return false
	}

	var r Result

	// Tier 1: connection-count heuristic.
	for _, conn := range conns {
		if isBrowser(conn.Process) && conn.Connections >= cfg.MeetingConnThreshold {
			r.add(w.MeetingActive, "Browser: %s holds %d simultaneous connections (active meeting)",
				conn.Process, conn.Connections)
		}
	}
	if len(r.Evidence) > 0 {
		return r.clamp()
	}

	// Tier 2: meeting keyword in the command line.
	for _, conn := range conns {
		if !isBrowser(conn.Process) {
			continue
		}
		for _, keyword := range group.BrowserKeywords {
			if keyword != "" && containsFold(conn.CommandLine, keyword) {
				r.add(w.MeetingKeyword, "Browser: %s command line references %s", conn.Process, keyword)
			}
		}
	}
	if len(r.Evidence) > 0 {
		return r.clamp()
	}

	// Tier 3: browser presence alone, one capped hit.
	for _, conn := range conns {
		if isBrowser(conn.Process) {
			r.add(w.BrowserPresent, "Browser: %s is running (possible web meeting)", conn.Process)
			break
		}
	}
	return r.clamp()
}
