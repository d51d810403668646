package listener

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/randalmurphal/grouphub/pkg/grouphub/event"
	"github.com/randalmurphal/grouphub/pkg/grouphub/notify"
	"github.com/randalmurphal/grouphub/pkg/grouphub/pagination"
	"github.com/randalmurphal/grouphub/pkg/grouphub/store"
)

// customSchemes are the Apprise schemes that forward arbitrary key/value
// payloads, so event metadata is attached to them as ":key" parameters.
var customSchemes = map[string]bool{
	"json":  true,
	"jsons": true,
	"form":  true,
	"forms": true,
	"xml":   true,
	"xmls":  true,
}

// NotificationListener sends Apprise notifications to the group's notifiers
// that opted into the event's type.
type NotificationListener struct {
	groupID  string
	store    store.Store
	notifier notify.Notifier
}

// NewNotificationListener creates a notification listener scoped to groupID.
func NewNotificationListener(groupID string, s store.Store, n notify.Notifier) *NotificationListener {
	return &NotificationListener{
		groupID:  groupID,
		store:    s,
		notifier: n,
	}
}

// Name implements Listener.
func (l *NotificationListener) Name() string { return NameNotification }

// GetSubscribers implements Listener.
func (l *NotificationListener) GetSubscribers(ctx context.Context, evt *event.Event) ([]Subscriber, error) {
	notifiers, err := l.store.ListNotifiers(ctx, l.groupID)
	if err != nil {
		return nil, fmt.Errorf("list notifiers for group %s: %w", l.groupID, err)
	}

	var subs []Subscriber
	for _, n := range notifiers {
		if !n.Wants(evt.Type()) {
			continue
		}
		subs = append(subs, Subscriber{
			ID:     n.ID,
			Name:   n.Name,
			Target: n.AppriseURL,
		})
	}
	return subs, nil
}

// PublishToSubscribers implements Listener.
// All subscribers are sent in one notification.
func (l *NotificationListener) PublishToSubscribers(ctx context.Context, evt *event.Event, subscribers []Subscriber) error {
	params, err := eventParams(evt)
	if err != nil {
		return err
	}

	urls := make([]string, 0, len(subscribers))
	for _, sub := range subscribers {
		u, err := DecorateURL(sub.Target, params)
		if err != nil {
			return fmt.Errorf("notifier %s: %w", sub.Name, err)
		}
		urls = append(urls, u)
	}

	msg := evt.Message()
	return l.notifier.Notify(ctx, notify.Notification{
		GroupID: l.groupID,
		Title:   msg.Title,
		Body:    msg.Body,
		URLs:    urls,
		Event:   evt,
	})
}

func eventParams(evt *event.Event) (map[string]string, error) {
	data, err := event.MarshalDocumentData(evt.DocumentData())
	if err != nil {
		return nil, fmt.Errorf("marshal document data: %w", err)
	}
	return map[string]string{
		":event_type":     string(evt.Type()),
		":integration_id": evt.IntegrationID(),
		":document_data":  string(data),
		":event_id":       evt.ID(),
		":timestamp":      evt.Timestamp().Format(time.RFC3339Nano),
	}, nil
}

// DecorateURL merges params into appriseURL when its scheme is one of the
// custom payload schemes. Other URLs are returned unchanged.
func DecorateURL(appriseURL string, params map[string]string) (string, error) {
	scheme, _, found := strings.Cut(appriseURL, "://")
	if !found || !customSchemes[strings.ToLower(scheme)] {
		return appriseURL, nil
	}
	return pagination.MergeQuery(appriseURL, params)
}
