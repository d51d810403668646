package notify

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	gherrors "github.com/randalmurphal/grouphub/pkg/grouphub/errors"
)

// ExchangeName is the topic exchange notifications are published to.
const ExchangeName = "notifications"

// amqpChannel is the subset of *amqp.Channel used for publishing.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes notifications to a RabbitMQ topic exchange with
// routing key notify.<event_type>.
type AMQPNotifier struct {
	conn    *amqp.Connection
	channel amqpChannel
	timeout time.Duration
}

// NewAMQPNotifier dials url and declares the notifications exchange.
func NewAMQPNotifier(url string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &AMQPNotifier{conn: conn, channel: ch, timeout: 10 * time.Second}, nil
}

// RoutingKey returns the routing key for a notification.
func RoutingKey(n Notification) string {
	t := string(n.EventType())
	if t == "" {
		t = "generic"
	}
	return "notify." + t
}

// Notify implements Notifier.
func (p *AMQPNotifier) Notify(ctx context.Context, n Notification) error {
	body, err := encode(n)
	if err != nil {
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	}
	if n.Event != nil {
		msg.MessageId = n.Event.ID()
		msg.Type = string(n.Event.Type())
	}

	if err := p.channel.PublishWithContext(pubCtx, ExchangeName, RoutingKey(n), false, false, msg); err != nil {
		return gherrors.Transient(fmt.Errorf("publish notification: %w", err), ExchangeName)
	}
	return nil
}

// Close closes the channel and connection.
func (p *AMQPNotifier) Close() error {
	var err error
	if p.channel != nil {
		err = p.channel.Close()
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
