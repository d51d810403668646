package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcome is the result of one listener step during fan-out.
type Outcome string

// Listener outcomes.
const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// MetricsRecorder records dispatch metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordDispatch records an accepted dispatch.
	RecordDispatch(ctx context.Context, eventType string, deferred bool)

	// RecordListener records one listener's outcome for one event.
	RecordListener(ctx context.Context, listener, eventType string, outcome Outcome, duration time.Duration)

	// RecordFanOut records the total fan-out latency for one event.
	RecordFanOut(ctx context.Context, eventType string, duration time.Duration)
}

type otelMetrics struct {
	dispatches      metric.Int64Counter
	listenerResults metric.Int64Counter
	listenerLatency metric.Float64Histogram
	fanOutLatency   metric.Float64Histogram
}

// NewMetricsRecorder returns a MetricsRecorder using the global meter
// provider, falling back to NoopMetrics if the instruments can't be created.
func NewMetricsRecorder() MetricsRecorder {
	m, err := NewMetricsRecorderFrom(otel.GetMeterProvider())
	if err != nil {
		slog.Warn("metrics disabled", slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// NewMetricsRecorderFrom creates the grouphub instruments on mp.
func NewMetricsRecorderFrom(mp metric.MeterProvider) (MetricsRecorder, error) {
	meter := mp.Meter(ScopeName)
	m := &otelMetrics{}
	var err error

	if m.dispatches, err = meter.Int64Counter("grouphub.events.dispatched",
		metric.WithDescription("Events accepted for fan-out")); err != nil {
		return nil, fmt.Errorf("create dispatch counter: %w", err)
	}
	if m.listenerResults, err = meter.Int64Counter("grouphub.listener.results",
		metric.WithDescription("Listener outcomes per event")); err != nil {
		return nil, fmt.Errorf("create listener counter: %w", err)
	}
	if m.listenerLatency, err = meter.Float64Histogram("grouphub.listener.latency_ms",
		metric.WithDescription("Time to resolve and notify one listener's subscribers"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("create listener histogram: %w", err)
	}
	if m.fanOutLatency, err = meter.Float64Histogram("grouphub.fanout.latency_ms",
		metric.WithDescription("Time to run every listener for one event"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("create fan-out histogram: %w", err)
	}
	return m, nil
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func (m *otelMetrics) RecordDispatch(ctx context.Context, eventType string, deferred bool) {
	m.dispatches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.Bool("deferred", deferred),
	))
}

func (m *otelMetrics) RecordListener(ctx context.Context, listener, eventType string, outcome Outcome, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("listener", listener),
		attribute.String("event_type", eventType),
		attribute.String("outcome", string(outcome)),
	)
	m.listenerResults.Add(ctx, 1, attrs)
	m.listenerLatency.Record(ctx, millis(duration), attrs)
}

func (m *otelMetrics) RecordFanOut(ctx context.Context, eventType string, duration time.Duration) {
	m.fanOutLatency.Record(ctx, millis(duration),
		metric.WithAttributes(attribute.String("event_type", eventType)))
}
