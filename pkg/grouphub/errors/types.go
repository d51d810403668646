package errors

import (
	"fmt"
	"strings"
	"time"
)

// HTTPError is a non-2xx response from a webhook or notification endpoint.
type HTTPError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *HTTPError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP %d", e.StatusCode)
	if e.Endpoint != "" {
		b.WriteString(" from " + e.Endpoint)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	return b.String()
}

// ValidationError reports caller input that can never succeed as given:
// an unknown event type, an empty group, a payload missing a field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid: " + e.Message
	}
	return "invalid " + e.Field + ": " + e.Message
}

// Invalid builds a ValidationError for field.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TimeoutError is returned when a bounded step outlives its deadline.
type TimeoutError struct {
	Operation string
	After     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s", e.Operation, e.After)
}

// ListenerError ties a listener failure to the event and group it was
// handling. Phase is "subscribers" or "publish".
type ListenerError struct {
	Listener  string
	Phase     string
	EventID   string
	EventType string
	GroupID   string
	Err       error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("%s listener (%s) on %s event %s for group %s: %v",
		e.Listener, e.Phase, e.EventType, e.EventID, e.GroupID, e.Err)
}

func (e *ListenerError) Unwrap() error { return e.Err }
