package store

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/grouphub/pkg/grouphub/pagination"
)

// MemoryStore is an in-memory subscription store for testing.
// Data is lost when the process exits.
type MemoryStore struct {
	mu        sync.RWMutex
	webhooks  map[string][]Webhook  // groupID -> webhooks in creation order
	notifiers map[string][]Notifier // groupID -> notifiers in creation order
	closed    bool

	// now is swappable so tests can control creation order.
	now func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory subscription store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		webhooks:  make(map[string][]Webhook),
		notifiers: make(map[string][]Notifier),
		now:       time.Now,
	}
}

// CreateWebhook implements Store.
func (m *MemoryStore) CreateWebhook(_ context.Context, w Webhook) (Webhook, error) {
	if err := w.Validate(); err != nil {
		return Webhook{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Webhook{}, ErrStoreClosed
	}

	w.ID = uuid.New().String()
	w.CreatedAt = m.now().UTC()
	m.webhooks[w.GroupID] = append(m.webhooks[w.GroupID], w)
	return w, nil
}

// ListWebhooks implements Store.
func (m *MemoryStore) ListWebhooks(_ context.Context, groupID string) ([]Webhook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	return slices.Clone(m.webhooks[groupID]), nil
}

// ListWebhooksPage implements Store.
func (m *MemoryStore) ListWebhooksPage(ctx context.Context, groupID string, q pagination.Query) (pagination.Page[Webhook], error) {
	q = q.Normalize()
	col, err := webhookSortColumn(q.OrderBy)
	if err != nil {
		return pagination.Page[Webhook]{}, err
	}

	all, err := m.ListWebhooks(ctx, groupID)
	if err != nil {
		return pagination.Page[Webhook]{}, err
	}

	filtered := make([]Webhook, 0, len(all))
	for _, w := range all {
		if matchesFilter(w, q.QueryFilter) {
			filtered = append(filtered, w)
		}
	}

	less := func(a, b Webhook) bool {
		switch col {
		case "name":
			return a.Name < b.Name
		case "scheduled_time":
			return a.ScheduledTime < b.ScheduledTime
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if q.OrderDirection == pagination.Desc {
			return less(filtered[j], filtered[i])
		}
		return less(filtered[i], filtered[j])
	})

	return pagination.Paginate(filtered, q), nil
}

// DeleteWebhook implements Store.
func (m *MemoryStore) DeleteWebhook(_ context.Context, groupID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	hooks := m.webhooks[groupID]
	i := slices.IndexFunc(hooks, func(w Webhook) bool { return w.ID == id })
	if i < 0 {
		return ErrNotFound
	}
	m.webhooks[groupID] = slices.Delete(hooks, i, i+1)
	if len(m.webhooks[groupID]) == 0 {
		delete(m.webhooks, groupID)
	}
	return nil
}

// CreateNotifier implements Store.
func (m *MemoryStore) CreateNotifier(_ context.Context, n Notifier) (Notifier, error) {
	if err := n.Validate(); err != nil {
		return Notifier{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Notifier{}, ErrStoreClosed
	}

	n.ID = uuid.New().String()
	n.CreatedAt = m.now().UTC()
	// Copy options to avoid retaining caller's map
	n.Options = maps.Clone(n.Options)
	m.notifiers[n.GroupID] = append(m.notifiers[n.GroupID], n)
	return n, nil
}

// ListNotifiers implements Store.
func (m *MemoryStore) ListNotifiers(_ context.Context, groupID string) ([]Notifier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	src := m.notifiers[groupID]
	out := make([]Notifier, len(src))
	for i, n := range src {
		n.Options = maps.Clone(n.Options)
		out[i] = n
	}
	return out, nil
}

// DeleteNotifier implements Store.
func (m *MemoryStore) DeleteNotifier(_ context.Context, groupID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	ns := m.notifiers[groupID]
	i := slices.IndexFunc(ns, func(n Notifier) bool { return n.ID == id })
	if i < 0 {
		return ErrNotFound
	}
	m.notifiers[groupID] = slices.Delete(ns, i, i+1)
	return nil
}

// Groups implements Store.
func (m *MemoryStore) Groups(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	groups := slices.Collect(maps.Keys(m.webhooks))
	slices.Sort(groups)
	return groups, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.webhooks = nil
	m.notifiers = nil
	return nil
}
