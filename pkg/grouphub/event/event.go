package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	gherrors "github.com/randalmurphal/grouphub/pkg/grouphub/errors"
)

// Event is the immutable envelope handed to listeners.
// Fields are set once by New and exposed through accessors only.
type Event struct {
	id            string
	timestamp     time.Time
	eventType     EventType
	integrationID string
	message       Message
	data          DocumentData
}

// ID returns the unique event identifier.
func (e *Event) ID() string {
	return e.id
}

// Timestamp returns the UTC creation time.
func (e *Event) Timestamp() time.Time {
	return e.timestamp
}

// Type returns the event type.
func (e *Event) Type() EventType {
	return e.eventType
}

// IntegrationID returns the label of the subsystem that dispatched the event.
func (e *Event) IntegrationID() string {
	return e.integrationID
}

// Message returns the title and body.
func (e *Event) Message() Message {
	return e.message
}

// DocumentData returns the payload, or nil for type-only events.
// Payloads implementing Cloner are returned as a fresh copy.
func (e *Event) DocumentData() DocumentData {
	return detach(e.data)
}

// Cloner is implemented by payloads with slice or map fields. The event
// keeps its own copy so holders of the payload cannot change it.
type Cloner interface {
	Clone() DocumentData
}

func detach(d DocumentData) DocumentData {
	if c, ok := d.(Cloner); ok {
		return c.Clone()
	}
	return d
}

// Option configures event creation.
type Option func(*eventConfig)

type eventConfig struct {
	id        string
	timestamp time.Time
	registry  *TypeRegistry
}

// WithEventID sets a specific event ID (default: random UUID).
func WithEventID(id string) Option {
	return func(cfg *eventConfig) {
		cfg.id = id
	}
}

// WithTimestamp sets a specific timestamp (default: time.Now()).
// The value is stored in UTC.
func WithTimestamp(t time.Time) Option {
	return func(cfg *eventConfig) {
		cfg.timestamp = t
	}
}

// WithRegistry validates the event type against r instead of DefaultTypes.
func WithRegistry(r *TypeRegistry) Option {
	return func(cfg *eventConfig) {
		cfg.registry = r
	}
}

// New validates its input and builds an event.
// The message title is derived from eventType; an empty body becomes
// PlaceholderBody.
func New(
	integrationID string,
	eventType EventType,
	data DocumentData,
	body string,
	opts ...Option,
) (*Event, error) {
	cfg := &eventConfig{
		registry: DefaultTypes,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if integrationID == "" {
		return nil, gherrors.Invalid("integration_id", "must not be empty")
	}
	if !cfg.registry.Has(eventType) {
		return nil, gherrors.Invalid("event_type", "unknown event type %q", eventType)
	}
	if data != nil {
		if !cfg.registry.HasDocumentType(data.DocumentType()) {
			return nil, gherrors.Invalid("document_type", "unknown document type %q", data.DocumentType())
		}
		if !data.Operation().Valid() {
			return nil, gherrors.Invalid("operation", "unknown operation %q", data.Operation())
		}
		if err := data.Validate(); err != nil {
			return nil, err
		}
	}

	if cfg.id == "" {
		cfg.id = uuid.New().String()
	}
	if cfg.timestamp.IsZero() {
		cfg.timestamp = time.Now()
	}

	return &Event{
		id:            cfg.id,
		timestamp:     cfg.timestamp.UTC(),
		eventType:     eventType,
		integrationID: integrationID,
		message:       MessageFromType(eventType, body),
		data:          detach(data),
	}, nil
}

// wireEvent is the JSON form of an Event.
type wireEvent struct {
	ID            string          `json:"event_id"`
	Timestamp     time.Time       `json:"timestamp"`
	EventType     EventType       `json:"event_type"`
	IntegrationID string          `json:"integration_id"`
	Message       Message         `json:"message"`
	DocumentData  json.RawMessage `json:"document_data"`
}

// MarshalJSON implements json.Marshaler.
func (e *Event) MarshalJSON() ([]byte, error) {
	data, err := MarshalDocumentData(e.data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEvent{
		ID:            e.id,
		Timestamp:     e.timestamp,
		EventType:     e.eventType,
		IntegrationID: e.integrationID,
		Message:       e.message,
		DocumentData:  data,
	})
}

// UnmarshalJSON implements json.Unmarshaler. The payload is rebuilt as its
// registered variant. The event type is not checked against a registry, so
// consumers can read events from newer producers.
func (e *Event) UnmarshalJSON(b []byte) error {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if w.ID == "" {
		return fmt.Errorf("decode event: missing event_id")
	}
	data, err := UnmarshalDocumentData(w.DocumentData)
	if err != nil {
		return fmt.Errorf("decode event %s: %w", w.ID, err)
	}
	*e = Event{
		id:            w.ID,
		timestamp:     w.Timestamp.UTC(),
		eventType:     w.EventType,
		integrationID: w.IntegrationID,
		message:       w.Message,
		data:          data,
	}
	return nil
}
