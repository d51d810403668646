package store_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gherrors "github.com/randalmurphal/grouphub/pkg/grouphub/errors"
	"github.com/randalmurphal/grouphub/pkg/grouphub/event"
	"github.com/randalmurphal/grouphub/pkg/grouphub/pagination"
	"github.com/randalmurphal/grouphub/pkg/grouphub/store"
)

// storeFactory creates a store instance for testing.
type storeFactory func(t *testing.T) store.Store

func memoryFactory(t *testing.T) store.Store {
	return store.NewMemoryStore()
}

func sqliteFactory(t *testing.T) store.Store {
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	return s
}

func webhook(group, name, at string) store.Webhook {
	return store.Webhook{
		GroupID:       group,
		Name:          name,
		URL:           "https://hooks.example.com/" + name,
		Enabled:       true,
		ScheduledTime: at,
	}
}

// storeContractTest runs contract tests against any Store implementation.
func storeContractTest(t *testing.T, name string, factory storeFactory) {
	ctx := context.Background()

	t.Run(name+"/CreateWebhook_and_List", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		created, err := s.CreateWebhook(ctx, webhook("g1", "dinner", "17:30"))
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, "POST", created.Method)
		assert.False(t, created.CreatedAt.IsZero())

		hooks, err := s.ListWebhooks(ctx, "g1")
		require.NoError(t, err)
		require.Len(t, hooks, 1)
		assert.Equal(t, created, hooks[0])
	})

	t.Run(name+"/ListWebhooks_Empty", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		hooks, err := s.ListWebhooks(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, hooks)
	})

	t.Run(name+"/ListWebhooks_GroupScoped", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		_, err := s.CreateWebhook(ctx, webhook("g1", "a", "08:00"))
		require.NoError(t, err)
		_, err = s.CreateWebhook(ctx, webhook("g2", "b", "09:00"))
		require.NoError(t, err)

		hooks, err := s.ListWebhooks(ctx, "g1")
		require.NoError(t, err)
		require.Len(t, hooks, 1)
		assert.Equal(t, "a", hooks[0].Name)
	})

	t.Run(name+"/CreateWebhook_Invalid", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		bad := []store.Webhook{
			{URL: "https://x.example.com", ScheduledTime: "10:00"},
			{GroupID: "g", URL: "ftp://x.example.com", ScheduledTime: "10:00"},
			{GroupID: "g", URL: "https://x.example.com", ScheduledTime: "25:00"},
			{GroupID: "g", URL: "https://x.example.com", ScheduledTime: "10:00", Method: "PATCH"},
		}
		for _, w := range bad {
			_, err := s.CreateWebhook(ctx, w)
			assert.True(t, gherrors.IsInvalid(err), "webhook %+v: %v", w, err)
		}
	})

	t.Run(name+"/ListWebhooksPage_FilterLiteral", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		for i, n := range []string{"axb", "100% done", `back\slash`} {
			w := webhook("g1", "w", "12:00")
			w.Name = n
			w.URL = fmt.Sprintf("https://hooks.example.com/%d", i)
			_, err := s.CreateWebhook(ctx, w)
			require.NoError(t, err)
		}

		tests := []struct {
			filter string
			want   int
		}{
			{"a_b", 0},
			{"%", 1},
			{"0% D", 1},
			{`\`, 1},
			{"x", 1},
		}
		for _, tt := range tests {
			page, err := s.ListWebhooksPage(ctx, "g1", pagination.Query{PerPage: 10, QueryFilter: tt.filter})
			require.NoError(t, err)
			assert.Equal(t, tt.want, page.Total, "filter %q", tt.filter)
		}
	})

	t.Run(name+"/DeleteWebhook", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		w, err := s.CreateWebhook(ctx, webhook("g1", "a", "08:00"))
		require.NoError(t, err)

		assert.ErrorIs(t, s.DeleteWebhook(ctx, "other-group", w.ID), store.ErrNotFound)
		require.NoError(t, s.DeleteWebhook(ctx, "g1", w.ID))
		assert.ErrorIs(t, s.DeleteWebhook(ctx, "g1", w.ID), store.ErrNotFound)

		hooks, err := s.ListWebhooks(ctx, "g1")
		require.NoError(t, err)
		assert.Empty(t, hooks)
	})

	t.Run(name+"/ListWebhooksPage", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		for _, n := range []string{"e", "c", "a", "d", "b"} {
			_, err := s.CreateWebhook(ctx, webhook("g1", n, "12:00"))
			require.NoError(t, err)
		}

		page, err := s.ListWebhooksPage(ctx, "g1", pagination.Query{Page: 2, PerPage: 2, OrderBy: "name"})
		require.NoError(t, err)
		assert.Equal(t, 5, page.Total)
		assert.Equal(t, 3, page.TotalPages)
		require.Len(t, page.Items, 2)
		assert.Equal(t, "c", page.Items[0].Name)
		assert.Equal(t, "d", page.Items[1].Name)

		page, err = s.ListWebhooksPage(ctx, "g1", pagination.Query{Page: 1, PerPage: 2, OrderBy: "name", OrderDirection: pagination.Desc})
		require.NoError(t, err)
		assert.Equal(t, "e", page.Items[0].Name)

		page, err = s.ListWebhooksPage(ctx, "g1", pagination.Query{PerPage: pagination.All, OrderBy: "name"})
		require.NoError(t, err)
		assert.Len(t, page.Items, 5)
		assert.Equal(t, 1, page.TotalPages)
	})

	t.Run(name+"/ListWebhooksPage_Filter", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		for _, n := range []string{"Dinner bell", "breakfast", "dinner prep"} {
			_, err := s.CreateWebhook(ctx, webhook("g1", n, "12:00"))
			require.NoError(t, err)
		}

		page, err := s.ListWebhooksPage(ctx, "g1", pagination.Query{QueryFilter: "DINNER", OrderBy: "name"})
		require.NoError(t, err)
		assert.Equal(t, 2, page.Total)
	})

	t.Run(name+"/ListWebhooksPage_BadOrder", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		_, err := s.ListWebhooksPage(ctx, "g1", pagination.Query{OrderBy: "url; DROP TABLE webhooks"})
		assert.True(t, gherrors.IsInvalid(err))
	})

	t.Run(name+"/Notifiers", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		created, err := s.CreateNotifier(ctx, store.Notifier{
			GroupID:    "g1",
			Name:       "phones",
			AppriseURL: "ntfy://grouphub",
			Enabled:    true,
			Options:    map[event.EventType]bool{event.TypeUserSignup: true, event.TypeTestMessage: false},
		})
		require.NoError(t, err)

		ns, err := s.ListNotifiers(ctx, "g1")
		require.NoError(t, err)
		require.Len(t, ns, 1)
		assert.Equal(t, created.ID, ns[0].ID)
		assert.True(t, ns[0].Wants(event.TypeUserSignup))
		assert.False(t, ns[0].Wants(event.TypeTestMessage))
		assert.False(t, ns[0].Wants(event.TypeWebhookTask))

		require.NoError(t, s.DeleteNotifier(ctx, "g1", created.ID))
		assert.ErrorIs(t, s.DeleteNotifier(ctx, "g1", created.ID), store.ErrNotFound)
	})

	t.Run(name+"/CreateNotifier_Invalid", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		_, err := s.CreateNotifier(ctx, store.Notifier{GroupID: "g1"})
		assert.True(t, gherrors.IsInvalid(err))

		_, err = s.CreateNotifier(ctx, store.Notifier{
			GroupID:    "g1",
			AppriseURL: "json://localhost",
			Options:    map[event.EventType]bool{"not_a_type": true},
		})
		assert.True(t, gherrors.IsInvalid(err))
	})

	t.Run(name+"/Groups", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		for _, g := range []string{"g2", "g1", "g2"} {
			_, err := s.CreateWebhook(ctx, webhook(g, "h", "10:00"))
			require.NoError(t, err)
		}

		groups, err := s.Groups(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"g1", "g2"}, groups)
	})

	t.Run(name+"/Closed", func(t *testing.T) {
		s := factory(t)
		require.NoError(t, s.Close())

		_, err := s.ListWebhooks(ctx, "g1")
		assert.ErrorIs(t, err, store.ErrStoreClosed)
		_, err = s.CreateWebhook(ctx, webhook("g1", "a", "10:00"))
		assert.ErrorIs(t, err, store.ErrStoreClosed)
		_, err = s.Groups(ctx)
		assert.ErrorIs(t, err, store.ErrStoreClosed)
		assert.ErrorIs(t, s.DeleteNotifier(ctx, "g1", "x"), store.ErrStoreClosed)

		assert.NoError(t, s.Close())
	})

	t.Run(name+"/Concurrent", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		const workers = 20
		var wg sync.WaitGroup
		wg.Add(workers)
		for i := 0; i < workers; i++ {
			go func(id int) {
				defer wg.Done()
				group := "g" + string(rune('a'+id%4))
				_, _ = s.CreateWebhook(ctx, webhook(group, "h", "10:00"))
				_, _ = s.ListWebhooks(ctx, group)
				_, _ = s.Groups(ctx)
			}(i)
		}
		wg.Wait()

		groups, err := s.Groups(ctx)
		require.NoError(t, err)
		assert.Len(t, groups, 4)
	})
}

func TestStoreContract(t *testing.T) {
	storeContractTest(t, "Memory", memoryFactory)
	storeContractTest(t, "SQLite", sqliteFactory)
}

func TestSQLiteStore_Persistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "grouphub.db")
	ctx := context.Background()

	s1, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	created, err := s1.CreateWebhook(ctx, webhook("g1", "persistent", "06:15"))
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s2.Close()

	hooks, err := s2.ListWebhooks(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	assert.Equal(t, created, hooks[0])
}

func TestSQLiteStore_InvalidPath(t *testing.T) {
	_, err := store.NewSQLiteStore("/nonexistent/path/db.sqlite")
	assert.Error(t, err)
}

func TestSQLiteStore_Ping(t *testing.T) {
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)

	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Ping(context.Background()), store.ErrStoreClosed)
}

func TestDialectRebind(t *testing.T) {
	q := `SELECT * FROM webhooks WHERE group_id = ? AND id = ? LIMIT ?`

	assert.Equal(t, q, store.SQLite.Rebind(q))
	assert.Equal(t,
		`SELECT * FROM webhooks WHERE group_id = $1 AND id = $2 LIMIT $3`,
		store.Postgres.Rebind(q))
}

func TestParseTimeOfDay(t *testing.T) {
	d, err := store.ParseTimeOfDay("17:30")
	require.NoError(t, err)
	assert.Equal(t, "17h30m0s", d.String())

	d, err = store.ParseTimeOfDay("00:00:45")
	require.NoError(t, err)
	assert.Equal(t, "45s", d.String())

	for _, bad := range []string{"", "5pm", "24:00", "12:60"} {
		_, err := store.ParseTimeOfDay(bad)
		assert.True(t, gherrors.IsInvalid(err), bad)
	}
}
