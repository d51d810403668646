// Package listener resolves the subscribers interested in an event and
// delivers the event to them.
//
// The bus calls every listener of a group in a fixed order. For each one it
// first asks GetSubscribers, then, only if the result is non-empty, calls
// PublishToSubscribers with exactly that set.
package listener

import (
	"context"
	"fmt"
	"strings"

	"github.com/randalmurphal/grouphub/pkg/grouphub/event"
)

// Listener names, used in logs, metrics, and span names.
const (
	NameWebhook      = "webhook"
	NameNotification = "notification"
)

// Subscriber is one delivery destination resolved from the subscription
// store.
type Subscriber struct {
	ID     string
	Name   string
	Target string // webhook URL or Apprise URL
	Method string // HTTP method, webhooks only
}

// Listener resolves and notifies the subscribers of one group.
type Listener interface {
	// Name identifies the listener in logs and metrics.
	Name() string

	// GetSubscribers returns the subscribers that want evt.
	// It has no side effects. "None" is an empty result, not an error;
	// errors mean the subscription store could not be read.
	GetSubscribers(ctx context.Context, evt *event.Event) ([]Subscriber, error)

	// PublishToSubscribers delivers evt to subscribers. Delivery continues
	// past individual failures. Listeners that call each subscriber
	// separately report those failures as a *PublishError so only the
	// failed subscribers are tried again.
	PublishToSubscribers(ctx context.Context, evt *event.Event, subscribers []Subscriber) error
}

// Failure is one subscriber's failed delivery.
type Failure struct {
	Subscriber Subscriber
	Err        error
}

// PublishError lists the subscribers a publish did not reach. Subscribers
// not listed were delivered to.
type PublishError struct {
	Listener string
	Failures []Failure
}

func (e *PublishError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = fmt.Sprintf("%s %s: %v", e.Listener, f.Subscriber.Name, f.Err)
	}
	return strings.Join(msgs, "\n")
}

// Unwrap returns the per-subscriber errors.
func (e *PublishError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}
