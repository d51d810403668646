// Package bus builds event envelopes and fans them out to a group's
// listeners.
//
// Fan-out is best effort. Within one dispatch the listeners run one after
// another in a fixed order (webhook, then notification). A failure, timeout,
// or panic in one listener is logged and counted, then the next listener
// runs. Listener failures never reach the caller of Dispatch.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gherrors "github.com/randalmurphal/grouphub/pkg/grouphub/errors"
	"github.com/randalmurphal/grouphub/pkg/grouphub/event"
	"github.com/randalmurphal/grouphub/pkg/grouphub/listener"
	"github.com/randalmurphal/grouphub/pkg/grouphub/notify"
	"github.com/randalmurphal/grouphub/pkg/grouphub/observability"
	"github.com/randalmurphal/grouphub/pkg/grouphub/store"
)

// DefaultListenerTimeout bounds one listener's resolve and deliver steps.
const DefaultListenerTimeout = 30 * time.Second

// ListenerFactory builds a listener scoped to a group.
type ListenerFactory func(groupID string) listener.Listener

// Service is the event bus.
type Service struct {
	webhooks      ListenerFactory
	notifications ListenerFactory

	executor        Executor
	listenerTimeout time.Duration
	retry           gherrors.RetryConfig
	registry        *event.TypeRegistry

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

// Option configures a Service.
type Option func(*Service)

// WithListeners sets the factories for the webhook and notification
// listeners. Either may be nil to leave that listener out.
func WithListeners(webhooks, notifications ListenerFactory) Option {
	return func(s *Service) {
		s.webhooks = webhooks
		s.notifications = notifications
	}
}

// WithStore wires the standard listeners: webhooks and notifiers are read
// from st, and notifications are delivered through n.
func WithStore(st store.Store, n notify.Notifier, opts ...listener.WebhookOption) Option {
	return WithListeners(
		func(groupID string) listener.Listener {
			return listener.NewWebhookListener(groupID, st, opts...)
		},
		func(groupID string) listener.Listener {
			return listener.NewNotificationListener(groupID, st, n)
		},
	)
}

// WithExecutor sets how fan-out runs. The default runs it inline.
func WithExecutor(e Executor) Option {
	return func(s *Service) {
		s.executor = e
	}
}

// WithListenerTimeout bounds each listener. Zero disables the bound.
func WithListenerTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.listenerTimeout = d
	}
}

// WithRetry retries transient delivery failures. The default is
// gherrors.NoRetry.
func WithRetry(cfg gherrors.RetryConfig) Option {
	return func(s *Service) {
		s.retry = cfg
	}
}

// WithRegistry validates event types against r instead of
// event.DefaultTypes.
func WithRegistry(r *event.TypeRegistry) Option {
	return func(s *Service) {
		s.registry = r
	}
}

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics enables OpenTelemetry metrics.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracing enables OpenTelemetry spans.
func WithTracing(sm observability.SpanManager) Option {
	return func(s *Service) {
		s.spans = sm
	}
}

// New creates an event bus.
func New(opts ...Option) *Service {
	s := &Service{
		executor:        ImmediateExecutor{},
		listenerTimeout: DefaultListenerTimeout,
		retry:           gherrors.NoRetry,
		registry:        event.DefaultTypes,
		logger:          slog.Default(),
		metrics:         observability.NoopMetrics{},
		spans:           observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dispatch builds an event and fans it out to groupID's listeners.
//
// Invalid input (empty integration or group ID, unknown event type, invalid
// payload) is returned as a *gherrors.ValidationError before any listener
// runs. With a deferred executor Dispatch returns once the fan-out is queued;
// an executor that refuses the task (closed, full) is reported. Listener
// failures are never returned.
func (s *Service) Dispatch(
	ctx context.Context,
	integrationID string,
	groupID string,
	eventType event.EventType,
	data event.DocumentData,
	message string,
) error {
	if groupID == "" {
		return gherrors.Invalid("group_id", "must not be empty")
	}

	evt, err := event.New(integrationID, eventType, data, message, event.WithRegistry(s.registry))
	if err != nil {
		return err
	}

	_, inline := s.executor.(ImmediateExecutor)
	logger := observability.EnrichLogger(s.logger, evt.ID(), string(evt.Type()), groupID)
	observability.LogDispatch(logger, integrationID, !inline)
	s.metrics.RecordDispatch(ctx, string(evt.Type()), !inline)

	err = s.executor.Submit(ctx, func(ctx context.Context) {
		s.publishEvent(ctx, evt, groupID)
	})
	if err != nil {
		logger.Error("event dropped: executor refused fan-out", slog.String("error", err.Error()))
		return fmt.Errorf("submit fan-out for event %s: %w", evt.ID(), err)
	}
	return nil
}

// listeners returns the group's listeners in delivery order.
func (s *Service) listeners(groupID string) []listener.Listener {
	var ls []listener.Listener
	for _, f := range []ListenerFactory{s.webhooks, s.notifications} {
		if f == nil {
			continue
		}
		if l := f(groupID); l != nil {
			ls = append(ls, l)
		}
	}
	return ls
}

// fanOutReport counts listener outcomes for one event.
type fanOutReport struct {
	delivered, skipped, failed int
}

// publishEvent runs every listener of the group for evt, sequentially.
func (s *Service) publishEvent(ctx context.Context, evt *event.Event, groupID string) fanOutReport {
	logger := observability.EnrichLogger(s.logger, evt.ID(), string(evt.Type()), groupID)
	ctx, span := s.spans.StartDispatchSpan(ctx, evt.ID(), string(evt.Type()), groupID)
	elapsed := observability.TimedOperation()
	start := time.Now()

	var report fanOutReport
	for _, l := range s.listeners(groupID) {
		switch s.runListener(ctx, logger, evt, groupID, l) {
		case observability.OutcomeDelivered:
			report.delivered++
		case observability.OutcomeSkipped:
			report.skipped++
		default:
			report.failed++
		}
	}

	observability.LogFanOutComplete(logger, elapsed(), report.delivered, report.skipped, report.failed)
	s.metrics.RecordFanOut(ctx, string(evt.Type()), time.Since(start))
	s.spans.EndSpanWithError(span, nil)
	return report
}

// runListener resolves and notifies one listener's subscribers. Errors are
// contained here.
func (s *Service) runListener(
	ctx context.Context,
	logger *slog.Logger,
	evt *event.Event,
	groupID string,
	l listener.Listener,
) observability.Outcome {
	name := l.Name()
	start := time.Now()

	ctx, span := s.spans.StartListenerSpan(ctx, name)
	if s.listenerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.listenerTimeout)
		defer cancel()
	}

	outcome, phase, delivered, err := s.deliver(ctx, evt, l)

	s.metrics.RecordListener(ctx, name, string(evt.Type()), outcome, time.Since(start))
	switch outcome {
	case observability.OutcomeDelivered:
		observability.LogListenerDelivered(logger, name, delivered, float64(time.Since(start).Microseconds())/1000)
	case observability.OutcomeSkipped:
		observability.LogListenerSkipped(logger, name)
		s.spans.AddSpanEvent(ctx, "listener.skipped")
	case observability.OutcomeFailed:
		err = &gherrors.ListenerError{
			Listener:  name,
			Phase:     phase,
			EventID:   evt.ID(),
			EventType: string(evt.Type()),
			GroupID:   groupID,
			Err:       err,
		}
		observability.LogListenerError(logger, name, phase, err)
	}
	s.spans.EndSpanWithError(span, err)
	return outcome
}

// Listener phases, reported in errors and logs.
const (
	phaseSubscribers = "subscribers"
	phasePublish     = "publish"
)

// deliver returns the outcome, the failing phase, and the number of
// subscribers delivered to.
func (s *Service) deliver(ctx context.Context, evt *event.Event, l listener.Listener) (observability.Outcome, string, int, error) {
	var subs []listener.Subscriber
	err := s.guard(ctx, l.Name(), phaseSubscribers, func(ctx context.Context) error {
		var err error
		subs, err = l.GetSubscribers(ctx, evt)
		return err
	})
	if err != nil {
		return observability.OutcomeFailed, phaseSubscribers, 0, err
	}
	if len(subs) == 0 {
		return observability.OutcomeSkipped, "", 0, nil
	}

	// Retries go only to subscribers whose failure is retryable; the rest
	// are settled after the attempt that reported them.
	pending := subs
	var settled []error
	err = gherrors.Do(ctx, s.retry, func(ctx context.Context) error {
		err := s.guard(ctx, l.Name(), phasePublish, func(ctx context.Context) error {
			return l.PublishToSubscribers(ctx, evt, pending)
		})
		var pubErr *listener.PublishError
		if !errors.As(err, &pubErr) {
			return err
		}

		pending = nil
		var retry []error
		for _, f := range pubErr.Failures {
			if s.retry.ShouldRetry(f.Err) {
				pending = append(pending, f.Subscriber)
				retry = append(retry, f.Err)
			} else {
				settled = append(settled, f.Err)
			}
		}
		return errors.Join(retry...)
	})
	if err = errors.Join(append(settled, err)...); err != nil {
		return observability.OutcomeFailed, phasePublish, 0, err
	}
	return observability.OutcomeDelivered, "", len(subs), nil
}

// guard runs fn on its own goroutine so a listener that ignores ctx is
// abandoned when ctx ends, and converts panics into errors. An abandoned
// call keeps running until it returns on its own.
func (s *Service) guard(ctx context.Context, name, phase string, fn func(context.Context) error) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("listener %s panicked during %s: %v", name, phase, r)
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return &gherrors.TimeoutError{
				Operation: fmt.Sprintf("listener %s %s", name, phase),
				After:     s.listenerTimeout,
			}
		}
		return ctx.Err()
	}
}
