package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DetectionConfig holds the engine heuristics. The defaults are carried over
// from field tuning and have no derivation beyond that; they are exposed here
// so deployments can recalibrate without a rebuild.
type DetectionConfig struct {
	MeetingConnThreshold int     `yaml:"meeting_conn_threshold"`
	GPUDamping           float64 `yaml:"gpu_damping"`
	TimingDamping        float64 `yaml:"timing_damping"`
	TimingScoreFloor     float64 `yaml:"timing_score_floor"`
	TimingMaxVariance    float64 `yaml:"timing_max_variance"`
	TimingMaxStdDevRatio float64 `yaml:"timing_max_stddev_ratio"`
}

// AnomalyConfig holds the behavioral analyzer thresholds.
type AnomalyConfig struct {
	HighConfidence float64 `yaml:"high_confidence"`
	SustainedRatio float64 `yaml:"sustained_ratio"`
	SpikeWindow    int     `yaml:"spike_window"`
	SpikeThreshold float64 `yaml:"spike_threshold"`
}

// Config holds the full daemon configuration.
type Config struct {
	Hostname      string        `yaml:"hostname"`
	LogLevel      string        `yaml:"log_level"`
	ScanInterval  time.Duration `yaml:"scan_interval"`
	SignaturePath string        `yaml:"signature_path"`
	HistoryPath   string        `yaml:"history_path"`
	MaxHistory    int           `yaml:"max_history"`

	// HTTP server configuration
	HTTPAddr string `yaml:"http_addr"`

	// Alerting (NATS optional, JSONL log optional)
	NATSURL           string        `yaml:"nats_url"`
	NATSSubjectPrefix string        `yaml:"nats_subject_prefix"`
	AlertLogPath      string        `yaml:"alert_log_path"`
	AlertLogMaxBytes  int64         `yaml:"alert_log_max_bytes"`
	AlertCooldown     time.Duration `yaml:"alert_cooldown"`

	// Archive (sqlite, optional)
	ArchivePath string `yaml:"archive_path"`

	Detection DetectionConfig `yaml:"detection"`
	Anomaly   AnomalyConfig   `yaml:"anomaly"`
}

// Default returns the coded configuration defaults.
func Default() *Config {
	return &Config{
		LogLevel:          "info",
		ScanInterval:      30 * time.Second,
		SignaturePath:     "",
		HistoryPath:       "hostsentry_history.json",
		MaxHistory:        100,
		HTTPAddr:          ":8099",
		NATSURL:           "",
		NATSSubjectPrefix: "hostsentry.alerts",
		AlertLogPath:      "",
		AlertLogMaxBytes:  10 * 1024 * 1024,
		AlertCooldown:     5 * time.Minute,
		ArchivePath:       "",
		Detection: DetectionConfig{
			MeetingConnThreshold: 20,
			GPUDamping:           0.5,
			TimingDamping:        0.5,
			TimingScoreFloor:     0.2,
			TimingMaxVariance:    0.3,
			TimingMaxStdDevRatio: 0.5,
		},
		Anomaly: AnomalyConfig{
			HighConfidence: 0.7,
			SustainedRatio: 0.8,
			SpikeWindow:    5,
			SpikeThreshold: 90.0,
		},
	}
}

// Load builds the configuration: defaults, then the optional YAML file, then
// HOSTSENTRY_* environment overrides, validated once.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	// Default hostname to os.Hostname if not set
	if cfg.Hostname == "" {
		cfg.Hostname, _ = os.Hostname()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyEnv overlays HOSTSENTRY_* environment variables on the current values.
func (c *Config) applyEnv() {
	c.Hostname = getEnv("HOSTSENTRY_HOSTNAME", c.Hostname)
	c.LogLevel = getEnv("HOSTSENTRY_LOG_LEVEL", c.LogLevel)
	c.ScanInterval = getDurationEnv("HOSTSENTRY_SCAN_INTERVAL_SEC", c.ScanInterval)
	c.SignaturePath = getEnv("HOSTSENTRY_SIGNATURES", c.SignaturePath)
	c.HistoryPath = getEnv("HOSTSENTRY_HISTORY_PATH", c.HistoryPath)
	c.MaxHistory = getIntEnv("HOSTSENTRY_MAX_HISTORY", c.MaxHistory)
	c.HTTPAddr = getEnv("HOSTSENTRY_HTTP_ADDR", c.HTTPAddr)
	c.NATSURL = getEnv("HOSTSENTRY_NATS_URL", c.NATSURL)
	c.NATSSubjectPrefix = getEnv("HOSTSENTRY_NATS_SUBJECT_PREFIX", c.NATSSubjectPrefix)
	c.AlertLogPath = getEnv("HOSTSENTRY_ALERT_LOG", c.AlertLogPath)
	c.AlertLogMaxBytes = getInt64Env("HOSTSENTRY_ALERT_LOG_MAX_BYTES", c.AlertLogMaxBytes)
	c.AlertCooldown = getDurationEnv("HOSTSENTRY_ALERT_COOLDOWN_SEC", c.AlertCooldown)
	c.ArchivePath = getEnv("HOSTSENTRY_ARCHIVE_PATH", c.ArchivePath)

	c.Detection.MeetingConnThreshold = getIntEnv("HOSTSENTRY_MEETING_CONN_THRESHOLD", c.Detection.MeetingConnThreshold)
	c.Detection.GPUDamping = getFloat64Env("HOSTSENTRY_GPU_DAMPING", c.Detection.GPUDamping)
	c.Detection.TimingDamping = getFloat64Env("HOSTSENTRY_TIMING_DAMPING", c.Detection.TimingDamping)
	c.Detection.TimingScoreFloor = getFloat64Env("HOSTSENTRY_TIMING_SCORE_FLOOR", c.Detection.TimingScoreFloor)
	c.Detection.TimingMaxVariance = getFloat64Env("HOSTSENTRY_TIMING_MAX_VARIANCE", c.Detection.TimingMaxVariance)
	c.Detection.TimingMaxStdDevRatio = getFloat64Env("HOSTSENTRY_TIMING_MAX_STDDEV_RATIO", c.Detection.TimingMaxStdDevRatio)

	c.Anomaly.HighConfidence = getFloat64Env("HOSTSENTRY_ANOMALY_HIGH_CONFIDENCE", c.Anomaly.HighConfidence)
	c.Anomaly.SustainedRatio = getFloat64Env("HOSTSENTRY_ANOMALY_SUSTAINED_RATIO", c.Anomaly.SustainedRatio)
	c.Anomaly.SpikeWindow = getIntEnv("HOSTSENTRY_ANOMALY_SPIKE_WINDOW", c.Anomaly.SpikeWindow)
	c.Anomaly.SpikeThreshold = getFloat64Env("HOSTSENTRY_ANOMALY_SPIKE_THRESHOLD", c.Anomaly.SpikeThreshold)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ScanInterval <= 0 {
		return fmt.Errorf("scan_interval must be positive")
	}
	if c.MaxHistory <= 0 {
		return fmt.Errorf("max_history must be positive")
	}
	if c.AlertLogPath != "" && c.AlertLogMaxBytes <= 0 {
		return fmt.Errorf("alert_log_max_bytes must be positive")
	}
	if c.AlertCooldown < 0 {
		return fmt.Errorf("alert_cooldown cannot be negative")
	}
	if c.Detection.MeetingConnThreshold <= 0 {
		return fmt.Errorf("meeting_conn_threshold must be positive")
	}
	if c.Detection.GPUDamping <= 0 || c.Detection.GPUDamping > 1 {
		return fmt.Errorf("gpu_damping must be in (0, 1]")
	}
	if c.Detection.TimingDamping <= 0 || c.Detection.TimingDamping > 1 {
		return fmt.Errorf("timing_damping must be in (0, 1]")
	}
	if c.Detection.TimingScoreFloor < 0 || c.Detection.TimingScoreFloor >= 1 {
		return fmt.Errorf("timing_score_floor must be in [0, 1)")
	}
	if c.Detection.TimingMaxVariance <= 0 {
		return fmt.Errorf("timing_max_variance must be positive")
	}
	if c.Detection.TimingMaxStdDevRatio <= 0 {
		return fmt.Errorf("timing_max_stddev_ratio must be positive")
	}
	if c.Anomaly.HighConfidence <= 0 || c.Anomaly.HighConfidence > 1 {
		return fmt.Errorf("anomaly high_confidence must be in (0, 1]")
	}
	if c.Anomaly.SustainedRatio <= 0 || c.Anomaly.SustainedRatio > 1 {
		return fmt.Errorf("anomaly sustained_ratio must be in (0, 1]")
	}
	if c.Anomaly.SpikeWindow < 2 {
		return fmt.Errorf("anomaly spike_window must be at least 2")
	}
	if c.Anomaly.SpikeThreshold <= 0 || c.Anomaly.SpikeThreshold > 100 {
		return fmt.Errorf("anomaly spike_threshold must be in (0, 100]")
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable with a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getInt64Env gets an int64 environment variable with a default value
func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable (in seconds) with a
// default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

// getFloat64Env gets a float64 environment variable with a default value
func getFloat64Env(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
