package logging

import (
	"io"
	"log/slog"
	"os"
)

// Logger provides structured logging with systemd integration
type Logger struct {
	*slog.Logger
}

// New creates a structured JSON logger. Under systemd the journal captures
// stderr and supplies its own metadata, so output moves there and source
// annotation is dropped.
func New(level, hostname string) *Logger {
	var output io.Writer = os.Stdout
	addSource := true

	if isSystemd() {
		output = os.Stderr
		addSource = false
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level:     parseLogLevel(level),
		AddSource: addSource,
	})

	logger := slog.New(handler).With(
		"host", hostname,
		"service", "hostsentry",
	)

	return &Logger{Logger: logger}
}

// parseLogLevel parses log level string
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// isSystemd checks if running under systemd
func isSystemd() bool {
	if os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getenv("NOTIFY_SOCKET") != "" {
		return true
	}
	return os.Getpid() == 1
}

// WithComponent creates a logger with component context
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With("component", component)}
}

// LogSystemEvent logs lifecycle events
func (l *Logger) LogSystemEvent(event string, additional ...any) {
	args := []any{"event", event}
	args = append(args, additional...)

	switch event {
	case "monitor_started":
		l.Info("Monitor started", args...)
	case "monitor_stopped":
		l.Info("Monitor stopped", args...)
	case "shutdown_signal":
		l.Info("Shutdown signal received", args...)
	case "config_loaded":
		l.Info("Configuration loaded", args...)
	case "http_server_started":
		l.Info("HTTP server started", args...)
	case "http_server_stopped":
		l.Info("HTTP server stopped", args...)
	default:
		l.Info("System event", args...)
	}
}

// LogDetectionEvent logs per-category detection outcomes
func (l *Logger) LogDetectionEvent(category string, detected bool, confidence float64, additional ...any) {
	args := []any{
		"category", category,
		"detected", detected,
		"confidence", confidence,
	}
	args = append(args, additional...)

	if detected {
		l.Warn("Detection raised", args...)
	} else {
		l.Debug("Category clear", args...)
	}
}
