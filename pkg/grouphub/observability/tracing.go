package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ScopeName is the instrumentation scope of grouphub spans and metrics.
const ScopeName = "grouphub"

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartDispatchSpan starts the parent span for delivering one event.
	StartDispatchSpan(ctx context.Context, eventID, eventType, groupID string) (context.Context, trace.Span)

	// StartListenerSpan starts a child span for one listener.
	StartListenerSpan(ctx context.Context, listener string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct {
	tracer trace.Tracer
}

// NewSpanManager returns a SpanManager using the global tracer provider.
// Set the provider with otel.SetTracerProvider before calling.
func NewSpanManager() SpanManager {
	return NewSpanManagerFrom(otel.GetTracerProvider())
}

// NewSpanManagerFrom returns a SpanManager using tp.
func NewSpanManagerFrom(tp trace.TracerProvider) SpanManager {
	return &otelSpanManager{tracer: tp.Tracer(ScopeName)}
}

// StartDispatchSpan names the span grouphub.dispatch.
func (m *otelSpanManager) StartDispatchSpan(ctx context.Context, eventID, eventType, groupID string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "grouphub.dispatch",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("event.id", eventID),
			attribute.String("event.type", eventType),
			attribute.String("group.id", groupID),
		),
	)
}

// StartListenerSpan names the span grouphub.listener.<listener>.
func (m *otelSpanManager) StartListenerSpan(ctx context.Context, listener string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "grouphub.listener."+listener,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.String("listener", listener)),
	)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

// EndSpanWithError sets the span status from err and ends it.
// A nil span is ignored.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err == nil {
		span.SetStatus(codes.Ok, "")
	} else {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// AddSpanEvent adds an event to the recording span in ctx, if any.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}
