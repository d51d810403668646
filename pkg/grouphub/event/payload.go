package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	gherrors "github.com/randalmurphal/grouphub/pkg/grouphub/errors"
)

// DocumentData is the polymorphic payload carried by an event.
//
// Each variant fixes its document type and operation; Kind is the
// discriminator used to rebuild the right variant from JSON.
// Variants are value types and are copied on every hand-off, so a listener
// cannot change what another listener sees.
type DocumentData interface {
	Kind() string
	DocumentType() DocumentType
	Operation() Operation
	Validate() error
}

// Payload kinds for the core variants.
const (
	KindTokenRefresh = "token_refresh"
	KindUserSignup   = "user_signup"
	KindWebhook      = "webhook"
	KindGroup        = "group"
)

// TokenRefreshData accompanies token_refresh events.
type TokenRefreshData struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

func (TokenRefreshData) Kind() string               { return KindTokenRefresh }
func (TokenRefreshData) DocumentType() DocumentType { return DocumentGeneric }
func (TokenRefreshData) Operation() Operation       { return OperationInfo }

// Validate implements DocumentData.
func (d TokenRefreshData) Validate() error {
	if d.Username == "" {
		return gherrors.Invalid("username", "must not be empty")
	}
	if d.Token == "" {
		return gherrors.Invalid("token", "must not be empty")
	}
	return nil
}

// UserSignupData accompanies user_signup events.
type UserSignupData struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (UserSignupData) Kind() string               { return KindUserSignup }
func (UserSignupData) DocumentType() DocumentType { return DocumentUser }
func (UserSignupData) Operation() Operation       { return OperationCreate }

// Validate implements DocumentData.
func (d UserSignupData) Validate() error {
	if d.Username == "" {
		return gherrors.Invalid("username", "must not be empty")
	}
	if d.Email == "" {
		return gherrors.Invalid("email", "must not be empty")
	}
	return nil
}

// WebhookData describes the scheduling window of a webhook_task event.
// WebhookBody is optional content forwarded verbatim to webhook targets.
type WebhookData struct {
	WebhookStartDT time.Time       `json:"webhook_start_dt"`
	WebhookEndDT   time.Time       `json:"webhook_end_dt"`
	WebhookBody    json.RawMessage `json:"webhook_body,omitempty"`
}

func (WebhookData) Kind() string               { return KindWebhook }
func (WebhookData) DocumentType() DocumentType { return DocumentGeneric }
func (WebhookData) Operation() Operation       { return OperationInfo }

// Clone returns a copy of d that does not share WebhookBody.
func (d WebhookData) Clone() DocumentData {
	d.WebhookBody = bytes.Clone(d.WebhookBody)
	return d
}

// Validate implements DocumentData.
func (d WebhookData) Validate() error {
	if d.WebhookStartDT.IsZero() {
		return gherrors.Invalid("webhook_start_dt", "must be set")
	}
	if d.WebhookEndDT.IsZero() {
		return gherrors.Invalid("webhook_end_dt", "must be set")
	}
	if d.WebhookStartDT.After(d.WebhookEndDT) {
		return gherrors.Invalid("webhook_start_dt", "must not be after webhook_end_dt")
	}
	if len(d.WebhookBody) > 0 && !json.Valid(d.WebhookBody) {
		return gherrors.Invalid("webhook_body", "must be valid JSON")
	}
	return nil
}

// GroupData accompanies group_created, group_updated and group_deleted events.
type GroupData struct {
	GroupID string    `json:"group_id"`
	Name    string    `json:"name"`
	Op      Operation `json:"op"`
}

func (GroupData) Kind() string               { return KindGroup }
func (GroupData) DocumentType() DocumentType { return DocumentGroup }

// Operation implements DocumentData.
func (d GroupData) Operation() Operation { return d.Op }

// Validate implements DocumentData.
func (d GroupData) Validate() error {
	if d.GroupID == "" {
		return gherrors.Invalid("group_id", "must not be empty")
	}
	switch d.Op {
	case OperationCreate, OperationUpdate, OperationDelete:
		return nil
	default:
		return gherrors.Invalid("op", "must be create, update or delete, got %q", d.Op)
	}
}

// Compile-time interface checks.
var (
	_ DocumentData = TokenRefreshData{}
	_ DocumentData = UserSignupData{}
	_ DocumentData = WebhookData{}
	_ DocumentData = GroupData{}
)

// payloadDecoder rebuilds one variant from its JSON fields.
type payloadDecoder func(data []byte) (DocumentData, error)

var (
	payloadMu       sync.RWMutex
	payloadDecoders = map[string]payloadDecoder{}
)

func init() {
	RegisterPayload[TokenRefreshData](KindTokenRefresh)
	RegisterPayload[UserSignupData](KindUserSignup)
	RegisterPayload[WebhookData](KindWebhook)
	RegisterPayload[GroupData](KindGroup)
}

// RegisterPayload makes a payload variant decodable by kind.
// Plugins call this for their own DocumentData types.
func RegisterPayload[T DocumentData](kind string) {
	payloadMu.Lock()
	defer payloadMu.Unlock()
	payloadDecoders[kind] = func(data []byte) (DocumentData, error) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// envelopeFields are the discriminator fields written alongside a variant.
type envelopeFields struct {
	Kind         string       `json:"kind"`
	DocumentType DocumentType `json:"document_type"`
	Operation    Operation    `json:"operation"`
}

// MarshalDocumentData encodes a payload with its discriminator fields.
func MarshalDocumentData(d DocumentData) ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}

	body, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", d.Kind(), err)
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("payload %s must encode as a JSON object: %w", d.Kind(), err)
	}

	meta, err := json.Marshal(envelopeFields{
		Kind:         d.Kind(),
		DocumentType: d.DocumentType(),
		Operation:    d.Operation(),
	})
	if err != nil {
		return nil, err
	}
	var metaFields map[string]json.RawMessage
	if err := json.Unmarshal(meta, &metaFields); err != nil {
		return nil, err
	}
	for k, v := range metaFields {
		fields[k] = v
	}
	return json.Marshal(fields)
}

// UnmarshalDocumentData decodes a payload written by MarshalDocumentData.
// A JSON null yields a nil payload.
func UnmarshalDocumentData(data []byte) (DocumentData, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var meta envelopeFields
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode payload header: %w", err)
	}

	payloadMu.RLock()
	decode, ok := payloadDecoders[meta.Kind]
	payloadMu.RUnlock()
	if !ok {
		return nil, gherrors.Invalid("kind", "unknown payload kind %q", meta.Kind)
	}

	d, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", meta.Kind, err)
	}

	if meta.DocumentType != "" && meta.DocumentType != d.DocumentType() {
		return nil, gherrors.Invalid("document_type", "%q does not match %s payload (%q)",
			meta.DocumentType, meta.Kind, d.DocumentType())
	}
	if meta.Operation != "" && meta.Operation != d.Operation() {
		return nil, gherrors.Invalid("operation", "%q does not match %s payload (%q)",
			meta.Operation, meta.Kind, d.Operation())
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}
