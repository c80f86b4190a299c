package archive

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/trustplane/hostsentry/internal/model"
)

// Store archives detection results in a local SQLite database, one row per
// completed analysis.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS detections (
	id TEXT PRIMARY KEY,
	hostname TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	vm_detected INTEGER NOT NULL,
	vm_confidence REAL NOT NULL,
	remote_detected INTEGER NOT NULL,
	remote_confidence REAL NOT NULL,
	screen_share_detected INTEGER NOT NULL,
	screen_share_confidence REAL NOT NULL,
	evidence TEXT,
	cpu_percent REAL,
	memory_percent REAL,
	anomaly_count INTEGER NOT NULL DEFAULT 0,
	created_at TEXT DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_detections_hostname ON detections(hostname);
CREATE INDEX IF NOT EXISTS idx_detections_timestamp ON detections(timestamp);
`

// ArchivedDetection is one archived analysis row.
type ArchivedDetection struct {
	ID               string              `json:"id"`
	Hostname         string              `json:"hostname"`
	Timestamp        time.Time           `json:"timestamp"`
	VMDetected       bool                `json:"vm_detected"`
	VMConfidence     float64             `json:"vm_confidence"`
	RemoteDetected   bool                `json:"remote_detected"`
	RemoteConfidence float64             `json:"remote_confidence"`
	ScreenDetected   bool                `json:"screen_share_detected"`
	ScreenConfidence float64             `json:"screen_share_confidence"`
	Evidence         map[string][]string `json:"evidence,omitempty"`
	CPUPercent       float64             `json:"cpu_percent"`
	MemoryPercent    float64             `json:"memory_percent"`
	AnomalyCount     int                 `json:"anomaly_count"`
	CreatedAt        time.Time           `json:"created_at"`
}

// NewStore opens or creates the archive database at path.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	// WAL keeps readers from blocking the periodic writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create archive schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert archives one detection result together with the number of anomalies
// the cycle raised.
func (s *Store) Insert(result *model.DetectionResult, anomalyCount int) error {
	evidence := map[string][]string{}
	for _, c := range model.Categories() {
		if cr := result.ByCategory(c); len(cr.Evidence) > 0 {
			evidence[string(c)] = cr.Evidence
		}
	}
	evidenceJSON, err := json.Marshal(evidence)
	if err != nil {
		return fmt.Errorf("failed to marshal evidence: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO detections (
			id, hostname, timestamp,
			vm_detected, vm_confidence,
			remote_detected, remote_confidence,
			screen_share_detected, screen_share_confidence,
			evidence, cpu_percent, memory_percent, anomaly_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		result.ID,
		result.Hostname,
		result.Timestamp.Format(time.RFC3339),
		boolInt(result.VM.Detected),
		result.VM.Confidence,
		boolInt(result.RemoteAccess.Detected),
		result.RemoteAccess.Confidence,
		boolInt(result.ScreenShare.Detected),
		result.ScreenShare.Confidence,
		string(evidenceJSON),
		result.Metrics.CPUPercent,
		result.Metrics.MemoryPercent,
		anomalyCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert detection: %w", err)
	}
	return nil
}

// Recent returns the newest archived detections, most recent first.
func (s *Store) Recent(limit int) ([]ArchivedDetection, error) {
	rows, err := s.db.Query(`
		SELECT id, hostname, timestamp,
			vm_detected, vm_confidence,
			remote_detected, remote_confidence,
			screen_share_detected, screen_share_confidence,
			evidence, cpu_percent, memory_percent, anomaly_count, created_at
		FROM detections
		ORDER BY timestamp DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	return scanDetections(rows)
}

// DetectionCounts returns the total archived rows and per-category detection
// totals.
func (s *Store) DetectionCounts() (map[string]int, error) {
	row := s.db.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(vm_detected), 0),
			COALESCE(SUM(remote_detected), 0),
			COALESCE(SUM(screen_share_detected), 0)
		FROM detections
	`)

	var total, vm, remote, screen int
	if err := row.Scan(&total, &vm, &remote, &screen); err != nil {
		return nil, fmt.Errorf("failed to count detections: %w", err)
	}

	return map[string]int{
		"total":         total,
		"vm":            vm,
		"remote_access": remote,
		"screen_share":  screen,
	}, nil
}

func scanDetections(rows *sql.Rows) ([]ArchivedDetection, error) {
	var out []ArchivedDetection
	for rows.Next() {
		var (
			d                  ArchivedDetection
			tsStr, createdStr  string
			vm, remote, screen int
			evidenceJSON       sql.NullString
		)

		err := rows.Scan(&d.ID, &d.Hostname, &tsStr,
			&vm, &d.VMConfidence,
			&remote, &d.RemoteConfidence,
			&screen, &d.ScreenConfidence,
			&evidenceJSON, &d.CPUPercent, &d.MemoryPercent, &d.AnomalyCount, &createdStr)
		if err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}

		d.Timestamp, _ = time.Parse(time.RFC3339, tsStr)
		d.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", createdStr)
		d.VMDetected = vm != 0
		d.RemoteDetected = remote != 0
		d.ScreenDetected = screen != 0
		if evidenceJSON.Valid && evidenceJSON.String != "" {
			json.Unmarshal([]byte(evidenceJSON.String), &d.Evidence)
		}

		out = append(out, d)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
