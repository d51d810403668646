package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	_ MetricsRecorder = NoopMetrics{}
	_ SpanManager     = NoopSpanManager{}
)

// NoopMetrics discards every measurement. It is the bus default.
type NoopMetrics struct{}

func (NoopMetrics) RecordDispatch(context.Context, string, bool)                           {}
func (NoopMetrics) RecordListener(context.Context, string, string, Outcome, time.Duration) {}
func (NoopMetrics) RecordFanOut(context.Context, string, time.Duration)                    {}

// NoopSpanManager hands out non-recording spans and leaves ctx untouched.
type NoopSpanManager struct{}

func (NoopSpanManager) StartDispatchSpan(ctx context.Context, _, _, _ string) (context.Context, trace.Span) {
	return ctx, noop.Span{}
}

func (NoopSpanManager) StartListenerSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, noop.Span{}
}

func (NoopSpanManager) EndSpanWithError(trace.Span, error)                          {}
func (NoopSpanManager) AddSpanEvent(context.Context, string, ...attribute.KeyValue) {}
