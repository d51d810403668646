// Package observability provides structured logging, metrics, and tracing
// for event dispatch.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"io"
	"log/slog"
	"strings"
	"time"
)

// NewLogger builds a slog logger writing to w. format is "json" or "text";
// level is one of debug, info, warn, error and defaults to info.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// EnrichLogger adds dispatch context to a logger.
// Returns a new logger with event_id, event_type, and group_id fields.
func EnrichLogger(logger *slog.Logger, eventID, eventType, groupID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("event_id", eventID),
		slog.String("event_type", eventType),
		slog.String("group_id", groupID),
	)
}

// LogDispatch logs that an event was accepted for fan-out.
func LogDispatch(logger *slog.Logger, integrationID string, deferred bool) {
	if logger == nil {
		return
	}
	logger.Debug("event dispatched",
		slog.String("integration_id", integrationID),
		slog.Bool("deferred", deferred),
	)
}

// LogFanOutComplete logs the end of a fan-out with per-outcome counts.
func LogFanOutComplete(logger *slog.Logger, durationMs float64, delivered, skipped, failed int) {
	if logger == nil {
		return
	}
	logger.Info("event fan-out completed",
		slog.Float64("duration_ms", durationMs),
		slog.Int("delivered", delivered),
		slog.Int("skipped", skipped),
		slog.Int("failed", failed),
	)
}

// LogListenerSkipped logs a listener that had no subscribers.
func LogListenerSkipped(logger *slog.Logger, listener string) {
	if logger == nil {
		return
	}
	logger.Debug("listener has no subscribers",
		slog.String("listener", listener),
	)
}

// LogListenerDelivered logs successful delivery through a listener.
func LogListenerDelivered(logger *slog.Logger, listener string, subscribers int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("listener delivered event",
		slog.String("listener", listener),
		slog.Int("subscribers", subscribers),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogListenerError logs a contained listener failure.
// Failures are not fatal to the dispatch, so they log at WARN.
func LogListenerError(logger *slog.Logger, listener, phase string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("listener failed",
		slog.String("listener", listener),
		slog.String("phase", phase),
		slog.String("error", err.Error()),
	)
}

// LogSchedulerTick logs one webhook scheduler pass.
func LogSchedulerTick(logger *slog.Logger, start, end time.Time, groups int) {
	if logger == nil {
		return
	}
	logger.Info("webhook scheduler tick",
		slog.Time("window_start", start),
		slog.Time("window_end", end),
		slog.Int("groups", groups),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
