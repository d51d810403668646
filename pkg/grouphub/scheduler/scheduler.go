// Package scheduler periodically dispatches webhook_task events so each
// group's webhooks fire at their scheduled time of day.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/grouphub/pkg/grouphub/event"
	"github.com/randalmurphal/grouphub/pkg/grouphub/observability"
	"github.com/randalmurphal/grouphub/pkg/grouphub/store"
)

// IntegrationID is the integration label of scheduler events.
const IntegrationID = "scheduler"

// DefaultInterval is the time between ticks.
const DefaultInterval = 5 * time.Minute

// Dispatcher is the part of the event bus the scheduler uses.
type Dispatcher interface {
	Dispatch(ctx context.Context, integrationID, groupID string, eventType event.EventType, data event.DocumentData, message string) error
}

// Scheduler emits one webhook_task event per group with webhooks on every
// tick. Consecutive windows are contiguous: each starts where the last ended.
type Scheduler struct {
	store    store.Store
	bus      Dispatcher
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	last time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the tick interval.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// New creates a scheduler. The first window starts now.
func New(st store.Store, d Dispatcher, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    st,
		bus:      d,
		interval: DefaultInterval,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.last = s.now().UTC()
	return s
}

// Run ticks until ctx is cancelled, then returns ctx's error.
// Tick failures are logged and do not stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Warn("webhook scheduler tick failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Tick dispatches webhook_task for the window since the previous tick.
// The window advances even if some dispatches fail, so no webhook fires twice.
func (s *Scheduler) Tick(ctx context.Context) error {
	s.mu.Lock()
	start := s.last
	end := s.now().UTC()
	if !start.Before(end) {
		s.mu.Unlock()
		return nil
	}
	s.last = end
	s.mu.Unlock()

	groups, err := s.store.Groups(ctx)
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}
	observability.LogSchedulerTick(s.logger, start, end, len(groups))

	data := event.WebhookData{WebhookStartDT: start, WebhookEndDT: end}
	var errs []error
	for _, g := range groups {
		if err := s.bus.Dispatch(ctx, IntegrationID, g, event.TypeWebhookTask, data, ""); err != nil {
			errs = append(errs, fmt.Errorf("group %s: %w", g, err))
		}
	}
	return errors.Join(errs...)
}
