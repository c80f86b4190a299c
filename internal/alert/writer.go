package alert

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const maxRotatedSegments = 5

// Writer appends one JSON object per alert to a log file, rotating by size.
// Rotated segments are zstd-compressed and the oldest removed beyond a
// bounded count.
type Writer struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	file     *os.File
	size     int64
	logger   *slog.Logger
}

// NewWriter opens or creates the alert log at path.
func NewWriter(path string, maxBytes int64, logger *slog.Logger) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open alert log: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat alert log: %w", err)
	}

	return &Writer{
		path:     path,
		maxBytes: maxBytes,
		file:     file,
		size:     info.Size(),
		logger:   logger,
	}, nil
}

// Write appends one alert as a JSON line, rotating first when the line would
// push the file past its size bound. An oversized first line still writes so
// rotation cannot loop.
func (w *Writer) Write(a Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size > 0 && w.size+int64(len(data)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return err
		}
	}

	n, err := w.file.Write(data)
	w.size += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write alert: %w", err)
	}
	return nil
}

// Close closes the active log file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// rotate renames the active file to a timestamped segment, compresses it, and
// reopens a fresh log. Callers must hold the lock.
func (w *Writer) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close alert log for rotation: %w", err)
	}

	segment := fmt.Sprintf("%s.%d", w.path, time.Now().UnixNano())
	if err := os.Rename(w.path, segment); err != nil {
		return fmt.Errorf("failed to rotate alert log: %w", err)
	}

	if err := compressSegment(segment); err != nil {
		// The plain segment stays behind; the active log still rotates.
		w.logger.Warn("Failed to compress rotated alert log",
			"segment", segment,
			"error", err)
	}
	w.pruneSegments()

	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to reopen alert log: %w", err)
	}
	w.file = file
	w.size = 0
	return nil
}

// compressSegment writes segment.zst next to the plain segment and removes
// the plain one.
func compressSegment(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open segment: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(path + ".zst")
	if err != nil {
		return fmt.Errorf("failed to create compressed segment: %w", err)
	}
	defer dst.Close()

	zstdWriter, err := zstd.NewWriter(dst)
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}

	if _, err := io.Copy(zstdWriter, src); err != nil {
		zstdWriter.Close()
		return fmt.Errorf("failed to compress segment: %w", err)
	}
	if err := zstdWriter.Close(); err != nil {
		return fmt.Errorf("failed to finalize compressed segment: %w", err)
	}

	return os.Remove(path)
}

// pruneSegments bounds the number of compressed segments kept on disk.
// Segment names embed nanosecond timestamps of fixed width, so the
// lexicographic order is the rotation order.
func (w *Writer) pruneSegments() {
	segments, err := filepath.Glob(w.path + ".*.zst")
	if err != nil || len(segments) <= maxRotatedSegments {
		return
	}

	sort.Strings(segments)
	for _, old := range segments[:len(segments)-maxRotatedSegments] {
		if err := os.Remove(old); err != nil {
			w.logger.Warn("Failed to remove old alert log segment",
				"segment", old,
				"error", err)
		}
	}
}
