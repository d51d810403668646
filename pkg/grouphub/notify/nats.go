package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	gherrors "github.com/randalmurphal/grouphub/pkg/grouphub/errors"
)

// StreamName is the JetStream stream notifications are published to.
const StreamName = "NOTIFICATIONS"

// jsPublisher is the subset of jetstream.JetStream used for publishing.
type jsPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSNotifier publishes notifications to NATS JetStream on the subject
// notify.<group>.
type NATSNotifier struct {
	js      jsPublisher
	nc      *nats.Conn
	timeout time.Duration
	logger  *slog.Logger
}

// NewNATSNotifier connects to natsURL and ensures the NOTIFICATIONS stream
// exists.
func NewNATSNotifier(ctx context.Context, natsURL string, logger *slog.Logger) (*NATSNotifier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(natsURL, nats.Name("grouphub"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream: %w", err)
	}

	streamCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(streamCtx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"notify.>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		logger.Warn("failed to create notification stream (may already exist)",
			slog.String("stream", StreamName),
			slog.String("error", err.Error()))
	}

	return &NATSNotifier{
		js:      js,
		nc:      nc,
		timeout: 5 * time.Second,
		logger:  logger,
	}, nil
}

// Subject returns the subject a group's notifications are published on.
func Subject(groupID string) string {
	return "notify." + groupID
}

// Notify implements Notifier.
func (p *NATSNotifier) Notify(ctx context.Context, n Notification) error {
	data, err := encode(n)
	if err != nil {
		return err
	}

	subject := Subject(n.GroupID)
	pubCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if _, err := p.js.Publish(pubCtx, subject, data); err != nil {
		return gherrors.Transient(fmt.Errorf("publish notification: %w", err), subject)
	}

	p.logger.Debug("published notification",
		slog.String("subject", subject),
		slog.String("title", n.Title))
	return nil
}

// Close drains and closes the NATS connection.
func (p *NATSNotifier) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
