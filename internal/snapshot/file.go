package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/trustplane/hostsentry/internal/model"
)

// File replays a previously captured SystemSnapshot from a JSON document.
// Used for offline analysis of saved captures and for test fixtures.
type File struct {
	path string
}

// NewFile creates a provider that reads the snapshot at path on every
// Collect call.
func NewFile(path string) *File {
	return &File{path: path}
}

// Name identifies the provider in logs and reports.
func (f *File) Name() string { return "file" }

// Collect loads and normalizes the snapshot document. A missing capture
// timestamp defaults to the load time so downstream references stay
// meaningful.
func (f *File) Collect(ctx context.Context) (*model.SystemSnapshot, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snap model.SystemSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot file %s: %w", f.path, err)
	}
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = time.Now().UTC()
	}

	normalize(&snap)
	return &snap, nil
}
