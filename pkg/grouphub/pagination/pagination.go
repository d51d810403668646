// Package pagination implements page/per-page slicing and the next/previous
// link guides attached to paginated API responses.
//
// Guide links are built by merging parameters into the request route's query
// string. Merging replaces existing keys rather than appending, so rebuilding a
// link from a link is idempotent.
package pagination

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	gherrors "github.com/randalmurphal/grouphub/pkg/grouphub/errors"
)

// DefaultPerPage is used when a query does not set PerPage.
const DefaultPerPage = 50

// All as PerPage returns every item on a single page.
const All = -1

// Direction is a sort direction.
type Direction string

// Sort directions.
const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Query holds the pagination parameters of a list request.
type Query struct {
	Page           int       `json:"page"`
	PerPage        int       `json:"perPage"`
	OrderBy        string    `json:"orderBy,omitempty"`
	OrderDirection Direction `json:"orderDirection,omitempty"`
	QueryFilter    string    `json:"queryFilter,omitempty"`
}

// Normalize returns q with defaults applied: page at least 1, PerPage
// defaulted, direction defaulted to ascending.
func (q Query) Normalize() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage == 0 || q.PerPage < All {
		q.PerPage = DefaultPerPage
	}
	if q.OrderDirection == "" {
		q.OrderDirection = Asc
	}
	return q
}

// Offset is the index of the first item on the query's page.
func (q Query) Offset() int {
	q = q.Normalize()
	if q.PerPage == All {
		return 0
	}
	return (q.Page - 1) * q.PerPage
}

// Params returns the query as guide parameters, omitting empty values.
// Keys are camelCase as they appear on the wire.
func (q Query) Params() map[string]string {
	params := map[string]string{
		"page":    strconv.Itoa(q.Page),
		"perPage": strconv.Itoa(q.PerPage),
	}
	if q.OrderBy != "" {
		params["orderBy"] = q.OrderBy
	}
	if q.OrderDirection != "" {
		params["orderDirection"] = string(q.OrderDirection)
	}
	if q.QueryFilter != "" {
		params["queryFilter"] = q.QueryFilter
	}
	return params
}

// ParseQuery reads pagination parameters from request query values.
// Both camelCase and snake_case keys are accepted.
func ParseQuery(values url.Values) (Query, error) {
	get := func(key string) string {
		if v := values.Get(key); v != "" {
			return v
		}
		return values.Get(Camelize(key))
	}

	var q Query
	var err error
	if v := get("page"); v != "" {
		if q.Page, err = strconv.Atoi(v); err != nil {
			return Query{}, gherrors.Invalid("page", "must be an integer")
		}
	}
	if v := get("per_page"); v != "" {
		if q.PerPage, err = strconv.Atoi(v); err != nil {
			return Query{}, gherrors.Invalid("perPage", "must be an integer")
		}
	}
	q.OrderBy = get("order_by")
	q.QueryFilter = get("query_filter")

	switch d := Direction(strings.ToLower(get("order_direction"))); d {
	case "", Asc, Desc:
		q.OrderDirection = d
	default:
		return Query{}, gherrors.Invalid("orderDirection", "must be asc or desc, got %q", d)
	}

	return q.Normalize(), nil
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Page       int    `json:"page"`
	PerPage    int    `json:"perPage"`
	Total      int    `json:"total"`
	TotalPages int    `json:"totalPages"`
	Items      []T    `json:"items"`
	Next       string `json:"next,omitempty"`
	Previous   string `json:"previous,omitempty"`
}

// TotalPages returns the number of pages needed for total items.
func TotalPages(total, perPage int) int {
	if perPage == All {
		if total == 0 {
			return 0
		}
		return 1
	}
	if perPage <= 0 || total <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}

// Paginate slices items according to q. Pages past the end are empty.
func Paginate[T any](items []T, q Query) Page[T] {
	q = q.Normalize()
	total := len(items)

	p := Page[T]{
		Page:       q.Page,
		PerPage:    q.PerPage,
		Total:      total,
		TotalPages: TotalPages(total, q.PerPage),
		Items:      []T{},
	}

	if q.PerPage == All {
		p.Items = append(p.Items, items...)
		return p
	}

	start := q.Offset()
	if start >= total {
		return p
	}
	end := min(start+q.PerPage, total)
	p.Items = append(p.Items, items[start:end]...)
	return p
}

// SetGuides fills Next and Previous from route and params.
// Param keys are camelized; the page number is clamped to at least 1.
func (p *Page[T]) SetGuides(route string, params map[string]string) error {
	merged := make(map[string]string, len(params)+1)
	for k, v := range params {
		merged[Camelize(k)] = v
	}

	if p.Page < 1 {
		p.Page = 1
	}

	if p.Page < p.TotalPages {
		merged["page"] = strconv.Itoa(p.Page + 1)
		next, err := MergeQuery(route, merged)
		if err != nil {
			return err
		}
		p.Next = next
	}

	if p.Page > 1 {
		merged["page"] = strconv.Itoa(p.Page - 1)
		prev, err := MergeQuery(route, merged)
		if err != nil {
			return err
		}
		p.Previous = prev
	}

	return nil
}

// MergeQuery sets params on the query string of rawURL. Keys already present
// in rawURL are replaced, so merging the same params twice yields the same URL.
// Other parts of the URL are left untouched.
func MergeQuery(rawURL string, params map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse route %q: %w", rawURL, err)
	}

	values := u.Query()
	for k, v := range params {
		values.Set(k, v)
	}
	u.RawQuery = values.Encode()

	return u.String(), nil
}

// Camelize converts a snake_case key to camelCase. Keys without
// underscores are returned unchanged.
func Camelize(key string) string {
	if !strings.Contains(key, "_") {
		return key
	}

	parts := strings.Split(key, "_")
	var b strings.Builder
	b.WriteString(parts[0])
	for _, part := range parts[1:] {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}
