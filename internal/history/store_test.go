package history

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustplane/hostsentry/internal/metrics"
	"github.com/trustplane/hostsentry/internal/model"
)

func newTestStore(t *testing.T, path string, max int) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewStore(path, max, metrics.NewMetrics(prometheus.NewRegistry()), logger)
}

func entryAt(i int) model.HistoryEntry {
	return model.HistoryEntry{
		Timestamp:    time.Date(2026, 8, 26, 12, 0, i, 0, time.UTC),
		VMConfidence: float64(i),
	}
}

func TestStore_AppendEvictsOldest(t *testing.T) {
	s := newTestStore(t, "", 5)

	for i := 0; i < 8; i++ {
		s.Append(entryAt(i))
	}

	entries := s.Snapshot()
	require.Len(t, entries, 5)
	assert.Equal(t, 5, s.Len())

	// The three oldest entries are gone and order is preserved.
	assert.Equal(t, float64(3), entries[0].VMConfidence)
	assert.Equal(t, float64(7), entries[4].VMConfidence)
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := newTestStore(t, "", 5)
	s.Append(entryAt(1))

	entries := s.Snapshot()
	entries[0].VMConfidence = 99

	assert.Equal(t, float64(1), s.Snapshot()[0].VMConfidence)
}

func TestStore_Recent(t *testing.T) {
	s := newTestStore(t, "", 10)
	for i := 0; i < 5; i++ {
		s.Append(entryAt(i))
	}

	last2 := s.Recent(2)
	require.Len(t, last2, 2)
	assert.Equal(t, float64(3), last2[0].VMConfidence)
	assert.Equal(t, float64(4), last2[1].VMConfidence)

	assert.Len(t, s.Recent(0), 5)
	assert.Len(t, s.Recent(100), 5)
}

func TestStore_PersistRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")

	s := newTestStore(t, path, 10)
	for i := 0; i < 3; i++ {
		s.Append(entryAt(i))
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var onDisk []model.HistoryEntry
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Len(t, onDisk, 3)

	reloaded := newTestStore(t, path, 10)
	require.Equal(t, 3, reloaded.Len())
	assert.Equal(t, s.Snapshot(), reloaded.Snapshot())
}

func TestStore_LoadMalformedFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "truncated json", content: `[{"timestamp": "2026-`},
		{name: "not an array", content: `{"timestamp": "2026-08-26T12:00:00Z"}`},
		{name: "wrong element type", content: `[1, 2, 3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "history.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			s := newTestStore(t, path, 10)
			assert.Equal(t, 0, s.Len())

			// The store still works after recovering from bad content.
			s.Append(entryAt(0))
			assert.Equal(t, 1, s.Len())
		})
	}
}

func TestStore_LoadTrimsOversizedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")

	var entries []model.HistoryEntry
	for i := 0; i < 7; i++ {
		entries = append(entries, entryAt(i))
	}
	data, err := json.Marshal(entries)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	s := newTestStore(t, path, 5)
	loaded := s.Snapshot()
	require.Len(t, loaded, 5)
	assert.Equal(t, float64(2), loaded[0].VMConfidence)
	assert.Equal(t, float64(6), loaded[4].VMConfidence)
}

func TestStore_Clear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")

	s := newTestStore(t, path, 10)
	for i := 0; i < 3; i++ {
		s.Append(entryAt(i))
	}

	removed := s.Clear()
	assert.Equal(t, 3, removed)
	assert.Equal(t, 0, s.Len())

	// The empty window is persisted as an empty array, not null.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestStore_MemoryOnly(t *testing.T) {
	s := newTestStore(t, "", 10)
	s.Append(entryAt(0))
	s.Append(entryAt(1))

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 2, s.Clear())
	assert.Equal(t, 0, s.Len())
}

func TestStore_PersistFailureKeepsMemory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "history.json")

	s := newTestStore(t, path, 10)
	s.Append(entryAt(0))

	assert.Equal(t, 1, s.Len())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
