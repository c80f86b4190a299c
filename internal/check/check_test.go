package check

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustplane/hostsentry/internal/config"
	"github.com/trustplane/hostsentry/internal/model"
)

var (
	testWeights   = model.DefaultWeights()
	testDetection = config.Default().Detection
)

func TestBIOS(t *testing.T) {
	tests := []struct {
		name         string
		bios         model.BIOSInfo
		keywords     []string
		wantScore    float64
		wantEvidence int
	}{
		{
			name:         "manufacturer match",
			bios:         model.BIOSInfo{Manufacturer: "innotek VirtualBox"},
			keywords:     []string{"virtualbox"},
			wantScore:    0.4,
			wantEvidence: 1,
		},
		{
			name:         "product match",
			bios:         model.BIOSInfo{Product: "VMware Virtual Platform"},
			keywords:     []string{"vmware"},
			wantScore:    0.4,
			wantEvidence: 1,
		},
		{
			name:         "cpu info match only",
			bios:         model.BIOSInfo{CPUInfo: "QEMU Virtual CPU version 2.5+"},
			keywords:     []string{"qemu"},
			wantScore:    0.2,
			wantEvidence: 1,
		},
		{
			name: "same keyword hits bios and cpu",
			bios: model.BIOSInfo{
				Manufacturer: "QEMU",
				CPUInfo:      "QEMU Virtual CPU",
			},
			keywords:     []string{"qemu"},
			wantScore:    0.6,
			wantEvidence: 2,
		},
		{
			name:         "case insensitive",
			bios:         model.BIOSInfo{Manufacturer: "INNOTEK VIRTUALBOX"},
			keywords:     []string{"VirtualBox"},
			wantScore:    0.4,
			wantEvidence: 1,
		},
		{
			name:         "no keywords",
			bios:         model.BIOSInfo{Manufacturer: "innotek VirtualBox"},
			keywords:     nil,
			wantScore:    0,
			wantEvidence: 0,
		},
		{
			name:         "empty snapshot fields",
			bios:         model.BIOSInfo{},
			keywords:     []string{"virtualbox", "vmware"},
			wantScore:    0,
			wantEvidence: 0,
		},
		{
			name:         "many matches clamp to one",
			bios:         model.BIOSInfo{Manufacturer: "vmware virtualbox qemu xen"},
			keywords:     []string{"vmware", "virtualbox", "qemu", "xen"},
			wantScore:    1.0,
			wantEvidence: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := BIOS(tt.bios, tt.keywords, testWeights)
			assert.InDelta(t, tt.wantScore, r.Score, 1e-9)
			assert.Len(t, r.Evidence, tt.wantEvidence)
		})
	}
}

func TestMACVendors(t *testing.T) {
	vendors := []string{"08:00:27", "00:0c:29", "00:50:56"}

	tests := []struct {
		name      string
		macs      []string
		wantScore float64
	}{
		{
			name:      "colon separated match",
			macs:      []string{"08:00:27:12:34:56"},
			wantScore: 0.3,
		},
		{
			name:      "dash separators normalize",
			macs:      []string{"08-00-27-12-34-56"},
			wantScore: 0.3,
		},
		{
			name:      "uppercase normalizes",
			macs:      []string{"00:0C:29:AA:BB:CC"},
			wantScore: 0.3,
		},
		{
			name:      "vendor octets in the middle do not match",
			macs:      []string{"aa:bb:08:00:27:cc"},
			wantScore: 0,
		},
		{
			name:      "two matching interfaces accumulate",
			macs:      []string{"08:00:27:12:34:56", "00:50:56:ab:cd:ef"},
			wantScore: 0.6,
		},
		{
			name:      "no interfaces",
			macs:      nil,
			wantScore: 0,
		},
		{
			name:      "four matches clamp to one",
			macs:      []string{"08:00:27:01:01:01", "08:00:27:02:02:02", "08:00:27:03:03:03", "08:00:27:04:04:04"},
			wantScore: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := MACVendors(tt.macs, vendors, testWeights)
			assert.InDelta(t, tt.wantScore, r.Score, 1e-9)
		})
	}
}

func TestMACVendors_EvidenceNamesBothSides(t *testing.T) {
	r := MACVendors([]string{"08-00-27-12-34-56"}, []string{"08:00:27"}, testWeights)
	require.Len(t, r.Evidence, 1)
	assert.Contains(t, r.Evidence[0], "08-00-27-12-34-56")
	assert.Contains(t, r.Evidence[0], "08:00:27")
}

func TestProcesses(t *testing.T) {
	tests := []struct {
		name       string
		running    []string
		indicators []string
		wantScore  float64
	}{
		{
			name:       "single exact match",
			running:    []string{"chrome.exe", "vboxservice.exe"},
			indicators: []string{"vboxservice.exe"},
			wantScore:  0.25,
		},
		{
			name:       "case insensitive match",
			running:    []string{"vboxservice.exe"},
			indicators: []string{"VBoxService.exe"},
			wantScore:  0.25,
		},
		{
			name:       "substring is not a match",
			running:    []string{"vboxservice.exe"},
			indicators: []string{"vbox"},
			wantScore:  0,
		},
		{
			name:       "indicator counts once",
			running:    []string{"vmtoolsd", "vmtoolsd"},
			indicators: []string{"vmtoolsd"},
			wantScore:  0.25,
		},
		{
			name:       "multiple indicators accumulate",
			running:    []string{"vboxservice.exe", "vboxtray.exe", "vmtoolsd.exe"},
			indicators: []string{"vboxservice.exe", "vboxtray.exe", "vmtoolsd.exe"},
			wantScore:  0.75,
		},
		{
			name:       "five indicators clamp to one",
			running:    []string{"a", "b", "c", "d", "e"},
			indicators: []string{"a", "b", "c", "d", "e"},
			wantScore:  1.0,
		},
		{
			name:       "empty running set",
			running:    nil,
			indicators: []string{"vboxservice.exe"},
			wantScore:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Processes(tt.running, tt.indicators, testWeights)
			assert.InDelta(t, tt.wantScore, r.Score, 1e-9)
		})
	}
}

func TestPorts(t *testing.T) {
	r := Ports([]int{22, 80, 3389}, []int{3389, 5900}, testWeights)

	assert.InDelta(t, 0.15, r.Score, 1e-9)
	require.Len(t, r.Evidence, 1)
	assert.Contains(t, r.Evidence[0], "3389")
}

func TestPorts_Empty(t *testing.T) {
	assert.Zero(t, Ports(nil, []int{3389}, testWeights).Score)
	assert.Zero(t, Ports([]int{3389}, nil, testWeights).Score)
}

func TestSession(t *testing.T) {
	tests := []struct {
		name      string
		session   model.SessionInfo
		keywords  []string
		wantScore float64
	}{
		{
			name:      "rdp session name",
			session:   model.SessionInfo{Name: "RDP-Tcp#3"},
			keywords:  []string{"rdp"},
			wantScore: 0.3,
		},
		{
			name:      "ssh connection",
			session:   model.SessionInfo{Name: "console", SSHActive: true},
			keywords:  []string{"rdp"},
			wantScore: 0.3,
		},
		{
			name:      "rdp and ssh accumulate",
			session:   model.SessionInfo{Name: "rdp-tcp#1", SSHActive: true},
			keywords:  []string{"rdp"},
			wantScore: 0.6,
		},
		{
			name:      "console session clean",
			session:   model.SessionInfo{Name: "Console"},
			keywords:  []string{"rdp"},
			wantScore: 0,
		},
		{
			name:      "empty session",
			session:   model.SessionInfo{},
			keywords:  []string{"rdp"},
			wantScore: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Session(tt.session, tt.keywords, testWeights)
			assert.InDelta(t, tt.wantScore, r.Score, 1e-9)
		})
	}
}

func TestGPU(t *testing.T) {
	damped := testWeights.GPUMatch * testDetection.GPUDamping

	tests := []struct {
		name      string
		gpu       model.GPUInfo
		wantScore float64
	}{
		{
			name:      "no adapters at all",
			gpu:       model.GPUInfo{},
			wantScore: damped,
		},
		{
			name:      "vmware svga device",
			gpu:       model.GPUInfo{Devices: []string{"VMware SVGA II Adapter"}},
			wantScore: damped,
		},
		{
			name:      "physical adapter clean",
			gpu:       model.GPUInfo{Devices: []string{"NVIDIA GeForce RTX 3060"}},
			wantScore: 0,
		},
		{
			name: "device and driver flag accumulate",
			gpu: model.GPUInfo{
				Devices:     []string{"Red Hat QXL paravirtual graphic card"},
				DriverFlags: []string{"llvmpipe software rendering"},
			},
			wantScore: 2 * damped,
		},
		{
			name:      "helper process",
			gpu:       model.GPUInfo{Devices: []string{"Intel UHD 630"}, ProcessNames: []string{"vboxtray gpu helper"}},
			wantScore: damped,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := GPU(tt.gpu, testWeights, testDetection)
			assert.InDelta(t, tt.wantScore, r.Score, 1e-9)
		})
	}
}

func TestTiming_RequiresFloor(t *testing.T) {
	noisy := model.TimingInfo{Variance: 0.9, StdDev: 0.6, AvgTime: 0.5}

	// Below the floor the checker must not even evaluate.
	r := Timing(noisy, 0.1, testWeights, testDetection)
	assert.Zero(t, r.Score)
	assert.Empty(t, r.Evidence)

	// At the floor it evaluates: variance hit + ratio hit, both damped.
	r = Timing(noisy, testDetection.TimingScoreFloor, testWeights, testDetection)
	damped := testWeights.TimingMatch * testDetection.TimingDamping
	assert.InDelta(t, 2*damped, r.Score, 1e-9)
	assert.Len(t, r.Evidence, 2)
}

func TestTiming_AbsentProbe(t *testing.T) {
	r := Timing(model.TimingInfo{CPUCount: 8}, 0.9, testWeights, testDetection)
	assert.Zero(t, r.Score)
}

func TestTiming_QuietProbe(t *testing.T) {
	steady := model.TimingInfo{Variance: 0.01, StdDev: 0.001, AvgTime: 0.5}
	r := Timing(steady, 0.9, testWeights, testDetection)
	assert.Zero(t, r.Score)
}

func TestBrowserMeeting_Tiers(t *testing.T) {
	group := model.IndicatorGroup{
		BrowserProcesses: []string{"chrome", "firefox"},
		BrowserKeywords:  []string{"meet.google.com", "zoom.us"},
	}

	tests := []struct {
		name      string
		conns     []model.BrowserConnection
		wantScore float64
		wantHint  string
	}{
		{
			name: "tier1 connection burst",
			conns: []model.BrowserConnection{
				{Process: "chrome", Connections: 25, CommandLine: "chrome --url meet.google.com"},
			},
			wantScore: testWeights.MeetingActive,
			wantHint:  "active meeting",
		},
		{
			name: "tier2 keyword when below connection threshold",
			conns: []model.BrowserConnection{
				{Process: "chrome", Connections: 5, CommandLine: "chrome --url https://meet.google.com/abc"},
			},
			wantScore: testWeights.MeetingKeyword,
			wantHint:  "meet.google.com",
		},
		{
			name: "tier3 presence only",
			conns: []model.BrowserConnection{
				{Process: "firefox", Connections: 3, CommandLine: "firefox"},
			},
			wantScore: testWeights.BrowserPresent,
			wantHint:  "possible web meeting",
		},
		{
			name: "tier1 suppresses lower tiers",
			conns: []model.BrowserConnection{
				{Process: "chrome", Connections: 30, CommandLine: "chrome --url zoom.us/j/1"},
				{Process: "firefox", Connections: 2, CommandLine: "firefox zoom.us"},
			},
			wantScore: testWeights.MeetingActive,
			wantHint:  "active meeting",
		},
		{
			name: "non-browser process never scores",
			conns: []model.BrowserConnection{
				{Process: "postgres", Connections: 120, CommandLine: "postgres -D /var/lib"},
			},
			wantScore: 0,
		},
		{
			name:      "no browsers",
			conns:     nil,
			wantScore: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := BrowserMeeting(tt.conns, group, testWeights, testDetection)
			assert.InDelta(t, tt.wantScore, r.Score, 1e-9)
			if tt.wantHint != "" {
				require.NotEmpty(t, r.Evidence)
				assert.Contains(t, r.Evidence[0], tt.wantHint)
			}
		})
	}
}

func TestBrowserMeeting_PresenceCountsOnce(t *testing.T) {
	group := model.IndicatorGroup{BrowserProcesses: []string{"chrome", "firefox"}}
	conns := []model.BrowserConnection{
		{Process: "chrome", Connections: 1},
		{Process: "firefox", Connections: 1},
	}

	r := BrowserMeeting(conns, group, testWeights, testDetection)

	assert.InDelta(t, testWeights.BrowserPresent, r.Score, 1e-9)
	assert.Len(t, r.Evidence, 1)
}

// Adding one more matching indicator never lowers a checker's score.
func TestMonotonicity(t *testing.T) {
	running := []string{"vboxservice.exe", "vmtoolsd.exe", "teamviewer.exe"}

	var indicators []string
	prev := 0.0
	for i, proc := range running {
		indicators = append(indicators, proc)
		score := Processes(running, indicators, testWeights).Score
		assert.GreaterOrEqual(t, score, prev, "indicator %d lowered the score", i)
		prev = score
	}
}

func TestDeterminism(t *testing.T) {
	bios := model.BIOSInfo{Manufacturer: "vmware virtualbox qemu"}
	keywords := []string{"vmware", "virtualbox", "qemu"}

	first := BIOS(bios, keywords, testWeights)
	for i := 0; i < 10; i++ {
		again := BIOS(bios, keywords, testWeights)
		assert.Equal(t, first, again)
	}
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 1.0, Clamp01(1.7))
	assert.Equal(t, 0.0, Clamp01(-0.2))
	assert.Equal(t, 0.55, Clamp01(0.55))
}
