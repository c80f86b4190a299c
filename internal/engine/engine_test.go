package engine

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustplane/hostsentry/internal/config"
	"github.com/trustplane/hostsentry/internal/model"
)

func testSignatures() *model.SignatureSet {
	set := model.DefaultSignatureSet()
	set.VMIndicators = model.IndicatorGroup{
		BIOSKeywords: []string{"virtualbox", "vmware", "qemu", "xen"},
		MACVendors:   []string{"08:00:27", "00:0c:29", "00:50:56"},
		Processes:    []string{"vboxservice.exe", "vmtoolsd", "vboxtray.exe", "qemu-ga", "xenservice.exe"},
	}
	set.RemoteIndicators = model.IndicatorGroup{
		Processes:       []string{"teamviewer.exe", "anydesk.exe", "sshd", "x11vnc"},
		Ports:           []int{3389, 5900, 5938},
		SessionKeywords: []string{"rdp"},
	}
	set.ScreenShareIndicators = model.IndicatorGroup{
		Processes:        []string{"zoom", "obs64.exe", "teams"},
		BrowserProcesses: []string{"chrome", "firefox"},
		BrowserKeywords:  []string{"meet.google.com", "zoom.us"},
	}
	return set
}

func newTestEngine(t *testing.T, set *model.SignatureSet) *Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(set, config.Default().Detection, logger)
}

func TestEngine_EmptySnapshot(t *testing.T) {
	e := newTestEngine(t, testSignatures())

	result := e.Analyze(&model.SystemSnapshot{})

	// The GPU-absence heuristic is the only signal an empty snapshot can
	// trip, and damped it stays far below the VM threshold.
	assert.False(t, result.VM.Detected)
	assert.False(t, result.RemoteAccess.Detected)
	assert.False(t, result.ScreenShare.Detected)
	assert.InDelta(t, 0.1, result.VM.Confidence, 1e-9)
	assert.Zero(t, result.RemoteAccess.Confidence)
	assert.Zero(t, result.ScreenShare.Confidence)
	assert.NotEmpty(t, result.ID)
}

func TestEngine_DefaultSignatureSetNeverDetects(t *testing.T) {
	e := newTestEngine(t, model.DefaultSignatureSet())

	snapshot := &model.SystemSnapshot{
		BIOS:      model.BIOSInfo{Manufacturer: "innotek VirtualBox"},
		Processes: []string{"vboxservice.exe", "teamviewer.exe", "zoom"},
		Network: model.NetworkInfo{
			MACAddresses:   []string{"08:00:27:12:34:56"},
			ListeningPorts: []int{3389},
		},
		GPU: model.GPUInfo{Devices: []string{"VMware SVGA II"}},
	}
	result := e.Analyze(snapshot)

	assert.False(t, result.VM.Detected)
	assert.False(t, result.RemoteAccess.Detected)
	assert.False(t, result.ScreenShare.Detected)
}

// Single BIOS keyword match scores 0.4, which stays below the 0.5 VM
// threshold until a second independent signal compounds it.
func TestEngine_SingleSignalBelowThreshold(t *testing.T) {
	e := newTestEngine(t, testSignatures())

	snapshot := &model.SystemSnapshot{
		BIOS: model.BIOSInfo{Manufacturer: "innotek virtualbox"},
		GPU:  model.GPUInfo{Devices: []string{"NVIDIA GeForce"}},
	}
	result := e.Analyze(snapshot)

	assert.False(t, result.VM.Detected)
	assert.InDelta(t, 0.4, result.VM.Confidence, 1e-9)
	require.Len(t, result.VM.Evidence, 1)
	assert.Contains(t, result.VM.Evidence[0], "virtualbox")

	// A matching MAC vendor prefix pushes the score past the threshold.
	snapshot.Network.MACAddresses = []string{"08:00:27:aa:bb:cc"}
	result = e.Analyze(snapshot)

	assert.True(t, result.VM.Detected)
	assert.InDelta(t, 0.7, result.VM.Confidence, 1e-9)
	assert.Len(t, result.VM.Evidence, 2)
}

// Detected flips exactly at score == threshold: two process matches sum to
// 0.5 against the 0.5 VM threshold.
func TestEngine_ThresholdBoundaryInclusive(t *testing.T) {
	e := newTestEngine(t, testSignatures())

	gpu := model.GPUInfo{Devices: []string{"NVIDIA GeForce"}}

	below := e.Analyze(&model.SystemSnapshot{
		Processes: []string{"vboxservice.exe"},
		GPU:       gpu,
	})
	assert.InDelta(t, 0.25, below.VM.Confidence, 1e-9)
	assert.False(t, below.VM.Detected)

	at := e.Analyze(&model.SystemSnapshot{
		Processes: []string{"vboxservice.exe", "vmtoolsd"},
		GPU:       gpu,
	})
	assert.InDelta(t, 0.5, at.VM.Confidence, 1e-9)
	assert.True(t, at.VM.Detected, "score equal to threshold must detect")

	above := e.Analyze(&model.SystemSnapshot{
		Processes: []string{"vboxservice.exe", "vmtoolsd", "vboxtray.exe"},
		GPU:       gpu,
	})
	assert.InDelta(t, 0.75, above.VM.Confidence, 1e-9)
	assert.True(t, above.VM.Detected)
}

func TestEngine_ConfidenceClampedToOne(t *testing.T) {
	e := newTestEngine(t, testSignatures())

	result := e.Analyze(&model.SystemSnapshot{
		BIOS: model.BIOSInfo{Manufacturer: "vmware", Product: "virtualbox", CPUInfo: "qemu virtual cpu"},
		Network: model.NetworkInfo{
			MACAddresses: []string{"08:00:27:01:01:01", "00:0c:29:02:02:02", "00:50:56:03:03:03"},
		},
		Processes: []string{"vboxservice.exe", "vmtoolsd", "vboxtray.exe", "qemu-ga", "xenservice.exe"},
		GPU:       model.GPUInfo{Devices: []string{"VMware SVGA II"}},
	})

	assert.Equal(t, 1.0, result.VM.Confidence)
	assert.True(t, result.VM.Detected)
}

// Port 3389 with port_match 0.15 contributes exactly 0.15 with one evidence
// line naming the port.
func TestEngine_RemotePortContribution(t *testing.T) {
	e := newTestEngine(t, testSignatures())

	result := e.Analyze(&model.SystemSnapshot{
		Network: model.NetworkInfo{ListeningPorts: []int{3389}},
	})

	assert.InDelta(t, 0.15, result.RemoteAccess.Confidence, 1e-9)
	assert.False(t, result.RemoteAccess.Detected)
	require.Len(t, result.RemoteAccess.Evidence, 1)
	assert.Contains(t, result.RemoteAccess.Evidence[0], "3389")
}

func TestEngine_RemoteAccessDetected(t *testing.T) {
	e := newTestEngine(t, testSignatures())

	result := e.Analyze(&model.SystemSnapshot{
		Processes: []string{"teamviewer.exe"},
		Network:   model.NetworkInfo{ListeningPorts: []int{5938}},
	})

	// 0.25 process + 0.15 port == 0.4 threshold, inclusive.
	assert.InDelta(t, 0.4, result.RemoteAccess.Confidence, 1e-9)
	assert.True(t, result.RemoteAccess.Detected)
}

// Timing evidence is gated: with nothing else it stays silent, but once the
// BIOS signal carries the category past the floor it adds its damped nudge.
func TestEngine_TimingGatedByFloor(t *testing.T) {
	e := newTestEngine(t, testSignatures())
	noisy := model.TimingInfo{Variance: 0.8, StdDev: 0.01, AvgTime: 0.5}
	gpu := model.GPUInfo{Devices: []string{"NVIDIA GeForce"}}

	alone := e.Analyze(&model.SystemSnapshot{Timing: noisy, GPU: gpu})
	assert.Zero(t, alone.VM.Confidence)

	boosted := e.Analyze(&model.SystemSnapshot{
		BIOS:   model.BIOSInfo{Manufacturer: "innotek virtualbox"},
		Timing: noisy,
		GPU:    gpu,
	})
	assert.InDelta(t, 0.5, boosted.VM.Confidence, 1e-9)
	assert.True(t, boosted.VM.Detected)
}

func TestEngine_ScreenShareTiersAndProcesses(t *testing.T) {
	e := newTestEngine(t, testSignatures())

	result := e.Analyze(&model.SystemSnapshot{
		Processes: []string{"zoom"},
		BrowserConnections: []model.BrowserConnection{
			{Process: "chrome", Connections: 25, CommandLine: "chrome"},
		},
	})

	// 0.25 process + 0.5 tier-1 meeting burst.
	assert.InDelta(t, 0.75, result.ScreenShare.Confidence, 1e-9)
	assert.True(t, result.ScreenShare.Detected)
	assert.Len(t, result.ScreenShare.Evidence, 2)
}

func TestEngine_Deterministic(t *testing.T) {
	e := newTestEngine(t, testSignatures())

	snapshot := &model.SystemSnapshot{
		BIOS:      model.BIOSInfo{Manufacturer: "innotek virtualbox", CPUInfo: "qemu virtual cpu"},
		Processes: []string{"teamviewer.exe", "vboxservice.exe", "zoom"},
		Network: model.NetworkInfo{
			MACAddresses:   []string{"08:00:27:aa:bb:cc"},
			ListeningPorts: []int{3389, 5900},
		},
		Session: model.SessionInfo{Name: "rdp-tcp#1", SSHActive: true},
	}

	first := e.Analyze(snapshot)
	for i := 0; i < 5; i++ {
		again := e.Analyze(snapshot)
		assert.Equal(t, first.VM, again.VM)
		assert.Equal(t, first.RemoteAccess, again.RemoteAccess)
		assert.Equal(t, first.ScreenShare, again.ScreenShare)
	}
}

func TestEngine_ConfidencesStayInBounds(t *testing.T) {
	e := newTestEngine(t, testSignatures())

	snapshots := []*model.SystemSnapshot{
		{},
		{BIOS: model.BIOSInfo{Manufacturer: "vmware vmware vmware"}},
		{Processes: []string{"vboxservice.exe", "teamviewer.exe", "zoom", "sshd", "x11vnc"}},
		{Network: model.NetworkInfo{ListeningPorts: []int{3389, 5900, 5938}}},
	}

	for _, snapshot := range snapshots {
		result := e.Analyze(snapshot)
		for _, category := range model.Categories() {
			c := result.ByCategory(category).Confidence
			assert.GreaterOrEqual(t, c, 0.0)
			assert.LessOrEqual(t, c, 1.0)
		}
	}
}
