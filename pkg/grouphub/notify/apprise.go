package notify

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
)

// DefaultHTTPTimeout bounds a single Apprise API call.
const DefaultHTTPTimeout = 10 * time.Second

// AppriseNotifier sends notifications through an Apprise API server's
// stateless notify endpoint.
type AppriseNotifier struct {
	baseURL string
	client  *http.Client
}

// AppriseOption configures an AppriseNotifier.
type AppriseOption func(*AppriseNotifier)

// WithHTTPClient sets the HTTP client used for Apprise calls.
func WithHTTPClient(c *http.Client) AppriseOption {
	return func(a *AppriseNotifier) {
		a.client = c
	}
}

// NewAppriseNotifier creates a notifier for the Apprise API at baseURL
// (e.g., "http://apprise:8000").
func NewAppriseNotifier(baseURL string, opts ...AppriseOption) *AppriseNotifier {
	a := &AppriseNotifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type appriseRequest struct {
	URLs  string `json:"urls"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Notify implements Notifier.
func (a *AppriseNotifier) Notify(ctx context.Context, n Notification) error {
	if len(n.URLs) == 0 {
		return nil
	}

	payload, err := json.Marshal(appriseRequest{
		URLs:  strings.Join(n.URLs, ","),
		Title: n.Title,
		Body:  n.Body,
	})
	if err != nil {
		return fmt.Errorf("marshal apprise request: %w", err)
	}

	endpoint := a.baseURL + "/notify/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create apprise request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return gherrors.Transient(fmt.Errorf("apprise notify: %w", err), endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &gherrors.HTTPError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			Endpoint:   endpoint,
		}
	}
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
