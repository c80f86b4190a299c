package signature

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustplane/hostsentry/internal/model"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	repo, err := NewRepository(logger)
	require.NoError(t, err)
	return repo
}

func writeSignatureFile(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signatures.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestRepository_LoadMissingFile(t *testing.T) {
	repo := newTestRepository(t)

	set := repo.Load(filepath.Join(t.TempDir(), "absent.json"))

	assert.Equal(t, model.DefaultSignatureSet(), set)
}

func TestRepository_LoadMalformedJSON(t *testing.T) {
	repo := newTestRepository(t)
	path := writeSignatureFile(t, `{"vm_indicators": [truncated`)

	set := repo.Load(path)

	assert.Equal(t, model.DefaultSignatureSet(), set)
}

func TestRepository_LoadSchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "weight above one",
			doc:  `{"weights": {"bios_match": 1.5}}`,
		},
		{
			name: "negative threshold",
			doc:  `{"thresholds": {"vm": -0.1}}`,
		},
		{
			name: "port out of range",
			doc:  `{"remote_indicators": {"ports": [70000]}}`,
		},
		{
			name: "port as string",
			doc:  `{"remote_indicators": {"ports": ["3389"]}}`,
		},
		{
			name: "unknown top-level key",
			doc:  `{"surprise": true}`,
		},
		{
			name: "unknown group key",
			doc:  `{"vm_indicators": {"registry_keys": ["hklm"]}}`,
		},
		{
			name: "keyword list of numbers",
			doc:  `{"vm_indicators": {"bios_keywords": [1, 2]}}`,
		},
	}

	repo := newTestRepository(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeSignatureFile(t, tt.doc)
			set := repo.Load(path)
			assert.Equal(t, model.DefaultSignatureSet(), set, "invalid document must fall back whole")
		})
	}
}

func TestRepository_LoadPartialDocument(t *testing.T) {
	repo := newTestRepository(t)
	path := writeSignatureFile(t, `{
		"vm_indicators": {"bios_keywords": ["virtualbox", "vmware"]},
		"weights": {"bios_match": 0.6}
	}`)

	set := repo.Load(path)

	assert.Equal(t, []string{"virtualbox", "vmware"}, set.VMIndicators.BIOSKeywords)
	assert.Equal(t, 0.6, set.Weights.BIOSMatch)

	// Everything the document omits keeps its default.
	assert.Empty(t, set.VMIndicators.MACVendors)
	assert.Empty(t, set.RemoteIndicators.Processes)
	assert.Equal(t, model.DefaultWeights().MACMatch, set.Weights.MACMatch)
	assert.Equal(t, model.DefaultThresholds(), set.Thresholds)
}

func TestRepository_LoadFullDocument(t *testing.T) {
	repo := newTestRepository(t)
	path := writeSignatureFile(t, `{
		"vm_indicators": {
			"bios_keywords": ["virtualbox"],
			"mac_vendors": ["08:00:27"],
			"processes": ["vboxservice"]
		},
		"remote_indicators": {
			"processes": ["teamviewer"],
			"ports": [3389, 5900],
			"session_keywords": ["rdp"]
		},
		"screen_share_indicators": {
			"processes": ["zoom"],
			"browser_processes": ["chrome", "firefox"],
			"browser_keywords": ["meet.google.com"]
		},
		"weights": {"process_match": 0.3, "port_match": 0.2},
		"thresholds": {"vm": 0.6, "remote_access": 0.5, "screen_share": 0.25}
	}`)

	set := repo.Load(path)

	assert.Equal(t, []string{"vboxservice"}, set.VMIndicators.Processes)
	assert.Equal(t, []int{3389, 5900}, set.RemoteIndicators.Ports)
	assert.Equal(t, []string{"chrome", "firefox"}, set.ScreenShareIndicators.BrowserProcesses)
	assert.Equal(t, 0.3, set.Weights.ProcessMatch)
	assert.Equal(t, 0.2, set.Weights.PortMatch)
	assert.Equal(t, 0.6, set.Thresholds.VM)
	assert.Equal(t, 0.5, set.Thresholds.RemoteAccess)
	assert.Equal(t, 0.25, set.Thresholds.ScreenShare)

	// Untouched weights keep defaults.
	assert.Equal(t, model.DefaultWeights().BIOSMatch, set.Weights.BIOSMatch)
}

func TestRepository_LoadUnreadableFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file modes are not enforced for root")
	}
	repo := newTestRepository(t)
	path := writeSignatureFile(t, `{}`)
	require.NoError(t, os.Chmod(path, 0o000))

	set := repo.Load(path)

	assert.Equal(t, model.DefaultSignatureSet(), set)
}
