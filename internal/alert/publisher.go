package alert

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/nats-io/nats.go"

	"github.com/trustplane/hostsentry/internal/config"
	"github.com/trustplane/hostsentry/internal/metrics"
	"github.com/trustplane/hostsentry/internal/model"
)

// Alert types published to downstream consumers.
const (
	TypeDetection = "detection"
	TypeAnomaly   = "anomaly"
)

const (
	publishAttempts   = 3
	publishRetryDelay = 250 * time.Millisecond
	cooldownCacheSize = 1024
)

// Alert is the payload pushed to the NATS subjects and the alert log.
type Alert struct {
	ID         string              `json:"id"`
	Hostname   string              `json:"hostname"`
	Timestamp  time.Time           `json:"timestamp"`
	Type       string              `json:"type"`
	Category   model.Category      `json:"category,omitempty"`
	Confidence float64             `json:"confidence,omitempty"`
	Evidence   []string            `json:"evidence,omitempty"`
	Anomaly    *model.AnomalyEvent `json:"anomaly,omitempty"`
	Message    string              `json:"message"`
}

// cooldownKey is the alert's identity for dedupe purposes: everything that
// distinguishes one alert stream from another, nothing that varies per event.
func (a Alert) cooldownKey() string {
	anomalyType, metric := "", ""
	if a.Anomaly != nil {
		anomalyType = string(a.Anomaly.Type)
		metric = a.Anomaly.Metric
	}
	return fmt.Sprintf("%s:%s:%s:%s", a.Type, anomalyType, a.Category, metric)
}

// Publisher fans alerts out to the configured sinks: one NATS subject per
// alert type and a local JSONL log. Both sinks are optional and best effort.
// An LRU cooldown cache keyed by alert identity keeps flapping detection
// states from spamming the sinks.
type Publisher struct {
	natsConn *nats.Conn
	prefix   string
	writer   *Writer
	cooldown *lru.Cache[string, time.Time]
	window   time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewPublisher creates a publisher for the sinks named in cfg. An empty NATS
// URL or alert log path disables that sink.
func NewPublisher(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*Publisher, error) {
	cooldown, err := lru.New[string, time.Time](cooldownCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create cooldown cache: %w", err)
	}

	p := &Publisher{
		prefix:   cfg.NATSSubjectPrefix,
		cooldown: cooldown,
		window:   cfg.AlertCooldown,
		metrics:  m,
		logger:   logger,
	}

	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("hostsentry"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		p.natsConn = nc
		logger.Info("Alert publishing to NATS enabled",
			"url", cfg.NATSURL,
			"subject_prefix", cfg.NATSSubjectPrefix)
	}

	if cfg.AlertLogPath != "" {
		w, err := NewWriter(cfg.AlertLogPath, cfg.AlertLogMaxBytes, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open alert log: %w", err)
		}
		p.writer = w
		logger.Info("Alert log enabled", "path", cfg.AlertLogPath)
	}

	return p, nil
}

// PublishDetection emits an alert for a category that newly flipped to
// detected.
func (p *Publisher) PublishDetection(result *model.DetectionResult, c model.Category) {
	cr := result.ByCategory(c)
	p.dispatch(Alert{
		ID:         uuid.New().String(),
		Hostname:   result.Hostname,
		Timestamp:  time.Now().UTC(),
		Type:       TypeDetection,
		Category:   c,
		Confidence: cr.Confidence,
		Evidence:   cr.Evidence,
		Message:    fmt.Sprintf("%s detected with confidence %.2f", c, cr.Confidence),
	})
}

// PublishAnomaly emits an alert for one behavioral anomaly event.
func (p *Publisher) PublishAnomaly(hostname string, ev model.AnomalyEvent) {
	event := ev
	p.dispatch(Alert{
		ID:        uuid.New().String(),
		Hostname:  hostname,
		Timestamp: time.Now().UTC(),
		Type:      TypeAnomaly,
		Category:  ev.Category,
		Anomaly:   &event,
		Message:   ev.Message,
	})
}

func (p *Publisher) dispatch(a Alert) {
	key := a.cooldownKey()
	if last, ok := p.cooldown.Get(key); ok && time.Since(last) < p.window {
		p.logger.Debug("Alert suppressed by cooldown",
			"key", key,
			"last_published", last)
		p.metrics.IncrementAlertsSuppressed()
		return
	}
	p.cooldown.Add(key, time.Now())
	p.metrics.RecordAlertPublished(a.Type)

	p.logger.Warn("Alert raised",
		"alert_id", a.ID,
		"type", a.Type,
		"category", a.Category,
		"message", a.Message)

	if p.writer != nil {
		if err := p.writer.Write(a); err != nil {
			p.logger.Warn("Failed to write alert log",
				"alert_id", a.ID,
				"error", err)
			p.metrics.IncrementAlertPublishErrors()
		}
	}

	if p.natsConn != nil {
		if err := p.publish(a); err != nil {
			p.logger.Warn("Failed to publish alert",
				"alert_id", a.ID,
				"error", err)
			p.metrics.IncrementAlertPublishErrors()
		}
	}
}

// publish pushes one alert to NATS, retrying transient failures with a linear
// backoff before giving up.
func (p *Publisher) publish(a Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	headers := nats.Header{}
	headers.Set("content-type", "application/json")
	headers.Set("x-alert-id", a.ID)
	headers.Set("x-alert-type", a.Type)
	if a.Category != "" {
		headers.Set("x-category", string(a.Category))
	}

	msg := &nats.Msg{
		Subject: fmt.Sprintf("%s.%s", p.prefix, a.Type),
		Data:    data,
		Header:  headers,
	}

	var lastErr error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		if err := p.natsConn.PublishMsg(msg); err != nil {
			lastErr = err
			if attempt < publishAttempts {
				p.logger.Warn("Failed to publish alert, retrying",
					"alert_id", a.ID,
					"attempt", attempt,
					"error", err)
				time.Sleep(time.Duration(attempt) * publishRetryDelay)
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("failed to publish alert after %d attempts: %w", publishAttempts, lastErr)
}

// Close flushes and releases the configured sinks.
func (p *Publisher) Close() {
	if p.natsConn != nil {
		if err := p.natsConn.Flush(); err != nil {
			p.logger.Warn("Failed to flush NATS connection", "error", err)
		}
		p.natsConn.Close()
	}
	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			p.logger.Warn("Failed to close alert log", "error", err)
		}
	}
}
