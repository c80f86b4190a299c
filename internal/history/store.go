package history

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"

	"github.com/trustplane/hostsentry/internal/metrics"
	"github.com/trustplane/hostsentry/internal/model"
)

// Store keeps a bounded, chronologically ordered window of detection history
// entries and mirrors it to a JSON file when a path is configured.
type Store struct {
	mu      sync.RWMutex
	logger  *slog.Logger
	metrics *metrics.Metrics
	path    string
	max     int
	entries []model.HistoryEntry
}

// NewStore creates a history store bounded to max entries. An empty path keeps
// the history purely in memory. An existing history file is loaded on startup;
// unreadable or malformed content starts the store empty instead of failing.
func NewStore(path string, max int, m *metrics.Metrics, logger *slog.Logger) *Store {
	s := &Store{
		logger:  logger,
		metrics: m,
		path:    path,
		max:     max,
	}
	s.load()
	s.metrics.SetHistorySize(len(s.entries))
	return s
}

func (s *Store) load() {
	if s.path == "" {
		return
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Failed to read history file, starting empty",
				"path", s.path,
				"error", err)
		}
		return
	}

	var entries []model.HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Warn("History file malformed, starting empty",
			"path", s.path,
			"error", err)
		return
	}

	if len(entries) > s.max {
		entries = entries[len(entries)-s.max:]
	}
	s.entries = entries

	s.logger.Debug("Loaded detection history",
		"path", s.path,
		"entries", len(s.entries))
}

// Append adds an entry to the history, evicting the oldest entries beyond the
// configured bound. Persistence is best effort: a write failure is logged and
// counted but the in-memory history keeps operating.
func (s *Store) Append(entry model.HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, entry)
	if len(s.entries) > s.max {
		s.entries = append([]model.HistoryEntry(nil), s.entries[len(s.entries)-s.max:]...)
	}

	s.persist()
	s.metrics.SetHistorySize(len(s.entries))
}

// Snapshot returns a copy of the current history window in chronological order.
func (s *Store) Snapshot() []model.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.HistoryEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Recent returns a copy of the newest n entries in chronological order. A
// non-positive n or an n beyond the window size returns the full window.
func (s *Store) Recent(n int) []model.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > len(s.entries) {
		n = len(s.entries)
	}
	out := make([]model.HistoryEntry, n)
	copy(out, s.entries[len(s.entries)-n:])
	return out
}

// Len returns the number of entries currently retained.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear removes all history entries and persists the empty window. It returns
// the number of entries removed.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := len(s.entries)
	s.entries = make([]model.HistoryEntry, 0)

	s.persist()
	s.metrics.SetHistorySize(0)

	s.logger.Info("Detection history cleared", "removed", removed)
	return removed
}

// persist writes the current window to disk. Callers must hold the lock.
func (s *Store) persist() {
	if s.path == "" {
		return
	}

	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		s.logger.Warn("Failed to encode history", "error", err)
		s.metrics.IncrementHistoryPersistErrors()
		return
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		s.logger.Warn("Failed to persist history",
			"path", s.path,
			"error", err)
		s.metrics.IncrementHistoryPersistErrors()
	}
}
