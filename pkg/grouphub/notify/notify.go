// Package notify delivers push notifications produced by the notification
// listener.
//
// Three transports are provided:
//   - AppriseNotifier posts to an Apprise API server, which fans out to the
//     Apprise URLs carried by the notification.
//   - NATSNotifier publishes the notification to JetStream on notify.<group>.
//   - AMQPNotifier publishes to the "notifications" topic exchange on
//     RabbitMQ with routing key notify.<event_type>.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/randalmurphal/grouphub/pkg/grouphub/event"
)

// Notification is one message addressed to a set of Apprise URLs.
type Notification struct {
	GroupID string       `json:"group_id"`
	Title   string       `json:"title"`
	Body    string       `json:"body"`
	URLs    []string     `json:"urls"`
	Event   *event.Event `json:"event,omitempty"`
}

// EventType returns the type of the carried event, or "" if none.
func (n Notification) EventType() event.EventType {
	if n.Event == nil {
		return ""
	}
	return n.Event.Type()
}

// Notifier delivers notifications.
// Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify calls f(ctx, n).
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

func encode(n Notification) ([]byte, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal notification: %w", err)
	}
	return data, nil
}
