package listener

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gherrors "github.com/randalmurphal/grouphub/pkg/grouphub/errors"
	"github.com/randalmurphal/grouphub/pkg/grouphub/event"
	"github.com/randalmurphal/grouphub/pkg/grouphub/store"
)

// DefaultWebhookTimeout bounds a single webhook call.
const DefaultWebhookTimeout = 10 * time.Second

// WebhookListener calls the group's scheduled webhooks for webhook_task
// events.
type WebhookListener struct {
	groupID string
	store   store.Store
	client  *http.Client
}

// WebhookOption configures a WebhookListener.
type WebhookOption func(*WebhookListener)

// WithWebhookClient sets the HTTP client used for webhook calls.
func WithWebhookClient(c *http.Client) WebhookOption {
	return func(l *WebhookListener) {
		l.client = c
	}
}

// NewWebhookListener creates a webhook listener scoped to groupID.
func NewWebhookListener(groupID string, s store.Store, opts ...WebhookOption) *WebhookListener {
	l := &WebhookListener{
		groupID: groupID,
		store:   s,
		client:  &http.Client{Timeout: DefaultWebhookTimeout},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name implements Listener.
func (l *WebhookListener) Name() string { return NameWebhook }

// GetSubscribers implements Listener.
// Only webhook_task events carrying WebhookData have subscribers: the enabled
// webhooks whose daily scheduled time falls inside the event's window.
func (l *WebhookListener) GetSubscribers(ctx context.Context, evt *event.Event) ([]Subscriber, error) {
	if evt.Type() != event.TypeWebhookTask {
		return nil, nil
	}
	data, ok := evt.DocumentData().(event.WebhookData)
	if !ok {
		return nil, nil
	}

	hooks, err := l.store.ListWebhooks(ctx, l.groupID)
	if err != nil {
		return nil, fmt.Errorf("list webhooks for group %s: %w", l.groupID, err)
	}

	var subs []Subscriber
	for _, h := range hooks {
		if !h.Enabled {
			continue
		}
		tod, err := h.TimeOfDay()
		if err != nil {
			// Rows are validated on write; skip anything that slipped through.
			continue
		}
		if !FiresBetween(tod, data.WebhookStartDT, data.WebhookEndDT) {
			continue
		}
		subs = append(subs, Subscriber{
			ID:     h.ID,
			Name:   h.Name,
			Target: h.URL,
			Method: h.Method,
		})
	}
	return subs, nil
}

// FiresBetween reports whether a daily schedule at offset tod from midnight
// UTC fires within [start, end), on any calendar day the window touches.
func FiresBetween(tod time.Duration, start, end time.Time) bool {
	start, end = start.UTC(), end.UTC()
	if !start.Before(end) {
		return false
	}

	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	for !day.After(end) {
		fire := day.Add(tod)
		if !fire.Before(start) && fire.Before(end) {
			return true
		}
		day = day.AddDate(0, 0, 1)
	}
	return false
}

// PublishToSubscribers implements Listener.
// The event JSON is sent as the request body to every subscriber.
func (l *WebhookListener) PublishToSubscribers(ctx context.Context, evt *event.Event, subscribers []Subscriber) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var failures []Failure
	for _, sub := range subscribers {
		if err := l.call(ctx, evt, sub, body); err != nil {
			failures = append(failures, Failure{Subscriber: sub, Err: err})
		}
	}
	if len(failures) > 0 {
		return &PublishError{Listener: NameWebhook, Failures: failures}
	}
	return nil
}

func (l *WebhookListener) call(ctx context.Context, evt *event.Event, sub Subscriber, body []byte) error {
	method := sub.Method
	if method == "" {
		method = http.MethodPost
	}

	var reqBody io.Reader
	if method != http.MethodGet {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, sub.Target, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Grouphub-Event-Id", evt.ID())
	req.Header.Set("X-Grouphub-Event-Type", string(evt.Type()))

	resp, err := l.client.Do(req)
	if err != nil {
		return gherrors.Transient(err, sub.Target)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &gherrors.HTTPError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(msg)),
			Endpoint:   sub.Target,
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
