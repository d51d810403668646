package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/grouphub/pkg/grouphub/event"
	"github.com/randalmurphal/grouphub/pkg/grouphub/pagination"
)

// Dialect captures the differences between the supported SQL backends.
type Dialect struct {
	// Driver is the database/sql driver name.
	Driver string

	// Numbered placeholders ($1, $2, ...) instead of ?.
	Numbered bool

	// Setup statements run once after opening, before the schema.
	Setup []string
}

// Dialects for the supported backends.
var (
	SQLite = Dialect{
		Driver: "sqlite",
		Setup:  []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"},
	}
	Postgres = Dialect{
		Driver:   "postgres",
		Numbered: true,
	}
)

// Rebind rewrites ? placeholders for the dialect.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS webhooks (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		name TEXT NOT NULL,
		url TEXT NOT NULL,
		method TEXT NOT NULL,
		enabled INTEGER NOT NULL,
		scheduled_time TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_webhooks_group_id ON webhooks(group_id)`,
	`CREATE TABLE IF NOT EXISTS notifiers (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		name TEXT NOT NULL,
		apprise_url TEXT NOT NULL,
		enabled INTEGER NOT NULL,
		options TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifiers_group_id ON notifiers(group_id)`,
}

// SQLStore persists subscriptions through database/sql.
// It is suitable for production use with SQLite or Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	mu      sync.RWMutex
	closed  bool
}

var _ Store = (*SQLStore)(nil)

// Open opens a database with the dialect's driver and creates the schema.
func Open(ctx context.Context, d Dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s, err := newSQLStore(ctx, db, d)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func newSQLStore(ctx context.Context, db *sql.DB, d Dialect) (*SQLStore, error) {
	for _, stmt := range d.Setup {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("setup %q: %w", stmt, err)
		}
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &SQLStore{db: db, dialect: d}, nil
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
}

// CreateWebhook implements Store.
func (s *SQLStore) CreateWebhook(ctx context.Context, w Webhook) (Webhook, error) {
	if err := w.Validate(); err != nil {
		return Webhook{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Webhook{}, ErrStoreClosed
	}

	w.ID = uuid.New().String()
	w.CreatedAt = time.Now().UTC()

	_, err := s.exec(ctx, `
		INSERT INTO webhooks (id, group_id, name, url, method, enabled, scheduled_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, w.ID, w.GroupID, w.Name, w.URL, w.Method, boolToInt(w.Enabled), w.ScheduledTime, formatTime(w.CreatedAt))
	if err != nil {
		return Webhook{}, fmt.Errorf("create webhook: %w", err)
	}

	// Round-trip through the stored precision.
	w.CreatedAt, _ = parseTime(formatTime(w.CreatedAt))
	return w, nil
}

const webhookColumns = `id, group_id, name, url, method, enabled, scheduled_time, created_at`

// ListWebhooks implements Store.
func (s *SQLStore) ListWebhooks(ctx context.Context, groupID string) ([]Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.query(ctx, `
		SELECT `+webhookColumns+`
		FROM webhooks
		WHERE group_id = ?
		ORDER BY created_at, id
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	return scanWebhooks(rows)
}

// ListWebhooksPage implements Store.
func (s *SQLStore) ListWebhooksPage(ctx context.Context, groupID string, q pagination.Query) (pagination.Page[Webhook], error) {
	q = q.Normalize()
	col, err := webhookSortColumn(q.OrderBy)
	if err != nil {
		return pagination.Page[Webhook]{}, err
	}
	dir := "ASC"
	if q.OrderDirection == pagination.Desc {
		dir = "DESC"
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return pagination.Page[Webhook]{}, ErrStoreClosed
	}

	where := `WHERE group_id = ?`
	args := []any{groupID}
	if q.QueryFilter != "" {
		where += ` AND LOWER(name) LIKE ? ESCAPE '\'`
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(q.QueryFilter))+"%")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`SELECT COUNT(*) FROM webhooks `+where), args...).Scan(&total); err != nil {
		return pagination.Page[Webhook]{}, fmt.Errorf("count webhooks: %w", err)
	}

	// col and dir come from fixed whitelists.
	stmt := `SELECT ` + webhookColumns + ` FROM webhooks ` + where +
		` ORDER BY ` + col + ` ` + dir + `, id ` + dir
	if q.PerPage != pagination.All {
		stmt += ` LIMIT ? OFFSET ?`
		args = append(args, q.PerPage, q.Offset())
	}

	rows, err := s.query(ctx, stmt, args...)
	if err != nil {
		return pagination.Page[Webhook]{}, fmt.Errorf("page webhooks: %w", err)
	}
	items, err := scanWebhooks(rows)
	if err != nil {
		return pagination.Page[Webhook]{}, err
	}

	return pagination.Page[Webhook]{
		Page:       q.Page,
		PerPage:    q.PerPage,
		Total:      total,
		TotalPages: pagination.TotalPages(total, q.PerPage),
		Items:      items,
	}, nil
}

func scanWebhooks(rows *sql.Rows) ([]Webhook, error) {
	defer rows.Close()

	hooks := []Webhook{}
	for rows.Next() {
		var w Webhook
		var enabled int64
		var created string
		if err := rows.Scan(&w.ID, &w.GroupID, &w.Name, &w.URL, &w.Method, &enabled, &w.ScheduledTime, &created); err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		w.Enabled = enabled != 0
		var err error
		if w.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		hooks = append(hooks, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhooks: %w", err)
	}
	return hooks, nil
}

// DeleteWebhook implements Store.
func (s *SQLStore) DeleteWebhook(ctx context.Context, groupID, id string) error {
	return s.deleteRow(ctx, "webhooks", groupID, id)
}

// CreateNotifier implements Store.
func (s *SQLStore) CreateNotifier(ctx context.Context, n Notifier) (Notifier, error) {
	if err := n.Validate(); err != nil {
		return Notifier{}, err
	}

	options, err := json.Marshal(n.Options)
	if err != nil {
		return Notifier{}, fmt.Errorf("encode notifier options: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Notifier{}, ErrStoreClosed
	}

	n.ID = uuid.New().String()
	n.CreatedAt = time.Now().UTC()

	_, err = s.exec(ctx, `
		INSERT INTO notifiers (id, group_id, name, apprise_url, enabled, options, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.GroupID, n.Name, n.AppriseURL, boolToInt(n.Enabled), string(options), formatTime(n.CreatedAt))
	if err != nil {
		return Notifier{}, fmt.Errorf("create notifier: %w", err)
	}

	n.CreatedAt, _ = parseTime(formatTime(n.CreatedAt))
	return n, nil
}

// ListNotifiers implements Store.
func (s *SQLStore) ListNotifiers(ctx context.Context, groupID string) ([]Notifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.query(ctx, `
		SELECT id, group_id, name, apprise_url, enabled, options, created_at
		FROM notifiers
		WHERE group_id = ?
		ORDER BY created_at, id
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list notifiers: %w", err)
	}
	defer rows.Close()

	notifiers := []Notifier{}
	for rows.Next() {
		var n Notifier
		var enabled int64
		var options, created string
		if err := rows.Scan(&n.ID, &n.GroupID, &n.Name, &n.AppriseURL, &enabled, &options, &created); err != nil {
			return nil, fmt.Errorf("scan notifier: %w", err)
		}
		n.Enabled = enabled != 0
		n.Options = map[event.EventType]bool{}
		if err := json.Unmarshal([]byte(options), &n.Options); err != nil {
			return nil, fmt.Errorf("decode notifier options: %w", err)
		}
		if n.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifiers: %w", err)
	}
	return notifiers, nil
}

// DeleteNotifier implements Store.
func (s *SQLStore) DeleteNotifier(ctx context.Context, groupID, id string) error {
	return s.deleteRow(ctx, "notifiers", groupID, id)
}

func (s *SQLStore) deleteRow(ctx context.Context, table, groupID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	res, err := s.exec(ctx, `DELETE FROM `+table+` WHERE group_id = ? AND id = ?`, groupID, id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Groups implements Store.
func (s *SQLStore) Groups(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.query(ctx, `SELECT DISTINCT group_id FROM webhooks ORDER BY group_id`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	groups := []string{}
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return groups, nil
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}
	return s.db.PingContext(ctx)
}

// Close implements Store.
func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

// likeEscaper makes LIKE wildcards in a filter match literally, so the
// filter behaves as a plain substring match.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
