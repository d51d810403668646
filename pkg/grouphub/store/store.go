// Package store persists the webhook and notifier subscriptions that
// listeners resolve subscribers from.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gherrors "github.com/randalmurphal/grouphub/pkg/grouphub/errors"
	"github.com/randalmurphal/grouphub/pkg/grouphub/event"
	"github.com/randalmurphal/grouphub/pkg/grouphub/pagination"
)

// Store persists group subscriptions.
// Implementations must be safe for concurrent use.
type Store interface {
	// CreateWebhook validates and stores a webhook, assigning its ID and
	// creation time.
	CreateWebhook(ctx context.Context, w Webhook) (Webhook, error)

	// ListWebhooks returns all webhooks of a group ordered by creation.
	// Returns an empty slice (not error) if the group has none.
	ListWebhooks(ctx context.Context, groupID string) ([]Webhook, error)

	// ListWebhooksPage returns one page of a group's webhooks.
	ListWebhooksPage(ctx context.Context, groupID string, q pagination.Query) (pagination.Page[Webhook], error)

	// DeleteWebhook removes a webhook.
	// Returns ErrNotFound if the group has no webhook with that ID.
	DeleteWebhook(ctx context.Context, groupID, id string) error

	// CreateNotifier validates and stores a notifier.
	CreateNotifier(ctx context.Context, n Notifier) (Notifier, error)

	// ListNotifiers returns all notifiers of a group ordered by creation.
	ListNotifiers(ctx context.Context, groupID string) ([]Notifier, error)

	// DeleteNotifier removes a notifier.
	// Returns ErrNotFound if the group has no notifier with that ID.
	DeleteNotifier(ctx context.Context, groupID, id string) error

	// Groups returns the distinct IDs of groups that have webhooks, sorted.
	Groups(ctx context.Context) ([]string, error)

	// Close releases any resources (connections, files).
	Close() error
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates a subscription doesn't exist.
	ErrNotFound = errors.New("subscription not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("subscription store closed")
)

// Webhook is a URL called once a day at ScheduledTime (HH:MM, UTC) with the
// webhook_task event.
type Webhook struct {
	ID            string    `json:"id"`
	GroupID       string    `json:"groupId"`
	Name          string    `json:"name"`
	URL           string    `json:"url"`
	Method        string    `json:"method"`
	Enabled       bool      `json:"enabled"`
	ScheduledTime string    `json:"scheduledTime"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Validate checks required fields and normalizes Method.
func (w *Webhook) Validate() error {
	if w.GroupID == "" {
		return gherrors.Invalid("groupId", "must not be empty")
	}
	if err := validateHTTPURL("url", w.URL); err != nil {
		return err
	}

	w.Method = strings.ToUpper(w.Method)
	switch w.Method {
	case "":
		w.Method = http.MethodPost
	case http.MethodPost, http.MethodPut, http.MethodGet:
	default:
		return gherrors.Invalid("method", "unsupported method %q", w.Method)
	}

	if _, err := ParseTimeOfDay(w.ScheduledTime); err != nil {
		return err
	}
	return nil
}

// TimeOfDay returns ScheduledTime as an offset from midnight UTC.
func (w Webhook) TimeOfDay() (time.Duration, error) {
	return ParseTimeOfDay(w.ScheduledTime)
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS" into an offset from midnight.
func ParseTimeOfDay(s string) (time.Duration, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, gherrors.Invalid("scheduledTime", "must be HH:MM, got %q", s)
}

// Notifier is an Apprise URL that receives notifications for the event
// types switched on in Options.
type Notifier struct {
	ID         string                   `json:"id"`
	GroupID    string                   `json:"groupId"`
	Name       string                   `json:"name"`
	AppriseURL string                   `json:"appriseUrl"`
	Enabled    bool                     `json:"enabled"`
	Options    map[event.EventType]bool `json:"options"`
	CreatedAt  time.Time                `json:"createdAt"`
}

// Validate checks required fields.
func (n *Notifier) Validate() error {
	if n.GroupID == "" {
		return gherrors.Invalid("groupId", "must not be empty")
	}
	if n.AppriseURL == "" {
		return gherrors.Invalid("appriseUrl", "must not be empty")
	}
	if !strings.Contains(n.AppriseURL, "://") {
		return gherrors.Invalid("appriseUrl", "must be a URL, got %q", n.AppriseURL)
	}
	for t := range n.Options {
		if !t.Valid() {
			return gherrors.Invalid("options", "unknown event type %q", t)
		}
	}
	return nil
}

// Wants reports whether the notifier should receive events of type t.
func (n Notifier) Wants(t event.EventType) bool {
	return n.Enabled && n.Options[t]
}

func validateHTTPURL(field, raw string) error {
	if raw == "" {
		return gherrors.Invalid(field, "must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return gherrors.Invalid(field, "%v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return gherrors.Invalid(field, "scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return gherrors.Invalid(field, "missing host")
	}
	return nil
}

// sortColumns maps accepted orderBy values to webhook columns.
var sortColumns = map[string]string{
	"":              "created_at",
	"createdAt":     "created_at",
	"name":          "name",
	"scheduledTime": "scheduled_time",
}

func webhookSortColumn(orderBy string) (string, error) {
	col, ok := sortColumns[pagination.Camelize(orderBy)]
	if !ok {
		return "", gherrors.Invalid("orderBy", "cannot order by %q", orderBy)
	}
	return col, nil
}

func matchesFilter(w Webhook, filter string) bool {
	if filter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(w.Name), strings.ToLower(filter))
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
