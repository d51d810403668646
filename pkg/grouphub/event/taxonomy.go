package event

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sync"
)

// EventType identifies the semantic kind of an event.
//
// Values are persisted in subscriber option rows, so renaming or removing
// one is a breaking change.
type EventType string

// Core event types.
const (
	TypeTestMessage       EventType = "test_message"
	TypeWebhookTask       EventType = "webhook_task"
	TypeTokenRefresh      EventType = "token_refresh"
	TypeUserSignup        EventType = "user_signup"
	TypeUserAuthenticated EventType = "user_authenticated"
	TypeUserUpdated       EventType = "user_updated"
	TypeUserDeleted       EventType = "user_deleted"
	TypeGroupCreated      EventType = "group_created"
	TypeGroupUpdated      EventType = "group_updated"
	TypeGroupDeleted      EventType = "group_deleted"
)

// String returns the wire name of the event type.
func (t EventType) String() string {
	return string(t)
}

// Valid reports whether t is registered in DefaultTypes.
func (t EventType) Valid() bool {
	return DefaultTypes.Has(t)
}

// DocumentType classifies the subject a payload is about.
type DocumentType string

// Core document types.
const (
	DocumentGeneric DocumentType = "generic"
	DocumentUser    DocumentType = "user"
	DocumentGroup   DocumentType = "group"
)

// Operation is the CRUD-like nature of an occurrence.
type Operation string

// Operations. This set is closed.
const (
	OperationInfo   Operation = "info"
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Valid reports whether op is one of the four known operations.
func (op Operation) Valid() bool {
	switch op {
	case OperationInfo, OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// Sentinel errors for taxonomy registration.
var (
	ErrInvalidName   = errors.New("name must be lower snake_case")
	ErrDuplicateType = errors.New("already registered")
)

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9]*(_[a-z0-9]+)*$`)

// TypeDefinition describes a registered event type.
type TypeDefinition struct {
	// Type is the wire name, e.g. "user_signup".
	Type EventType

	// Owner names who contributed the type: "core" or a plugin name.
	Owner string

	// Description explains when the event is emitted.
	Description string

	// Deprecated marks types kept only so stored subscriptions still load.
	Deprecated bool
}

// TypeRegistry holds the open set of event and document types.
// Core values are registered at construction; plugins add their own.
type TypeRegistry struct {
	mu        sync.RWMutex
	types     map[EventType]TypeDefinition
	order     []EventType
	documents map[DocumentType]string
}

// NewTypeRegistry creates a registry pre-populated with the core taxonomy.
func NewTypeRegistry() *TypeRegistry {
	r := &TypeRegistry{
		types:     make(map[EventType]TypeDefinition),
		documents: make(map[DocumentType]string),
	}
	for _, def := range coreTypes {
		def.Owner = "core"
		r.types[def.Type] = def
		r.order = append(r.order, def.Type)
	}
	for _, dt := range []DocumentType{DocumentGeneric, DocumentUser, DocumentGroup} {
		r.documents[dt] = "core"
	}
	return r
}

var coreTypes = []TypeDefinition{
	{Type: TypeTestMessage, Description: "manual test notification"},
	{Type: TypeWebhookTask, Description: "scheduled webhook window elapsed"},
	{Type: TypeTokenRefresh, Description: "api token refreshed"},
	{Type: TypeUserSignup, Description: "user registered"},
	{Type: TypeUserAuthenticated, Description: "user logged in"},
	{Type: TypeUserUpdated, Description: "user profile changed"},
	{Type: TypeUserDeleted, Description: "user removed"},
	{Type: TypeGroupCreated, Description: "group created"},
	{Type: TypeGroupUpdated, Description: "group settings changed"},
	{Type: TypeGroupDeleted, Description: "group removed"},
}

// Register adds a plugin event type. Existing types cannot be redefined.
func (r *TypeRegistry) Register(def TypeDefinition) error {
	if !namePattern.MatchString(string(def.Type)) {
		return fmt.Errorf("event type %q: %w", def.Type, ErrInvalidName)
	}
	if def.Owner == "" {
		return fmt.Errorf("event type %q: owner is required", def.Type)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.types[def.Type]; ok {
		return fmt.Errorf("event type %q (owner %s): %w", def.Type, existing.Owner, ErrDuplicateType)
	}
	r.types[def.Type] = def
	r.order = append(r.order, def.Type)
	return nil
}

// RegisterDocumentType adds a plugin document type.
func (r *TypeRegistry) RegisterDocumentType(dt DocumentType, owner string) error {
	if !namePattern.MatchString(string(dt)) {
		return fmt.Errorf("document type %q: %w", dt, ErrInvalidName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.documents[dt]; ok {
		return fmt.Errorf("document type %q (owner %s): %w", dt, existing, ErrDuplicateType)
	}
	r.documents[dt] = owner
	return nil
}

// Has returns true if the event type is registered.
func (r *TypeRegistry) Has(t EventType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[t]
	return ok
}

// HasDocumentType returns true if the document type is registered.
func (r *TypeRegistry) HasDocumentType(dt DocumentType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.documents[dt]
	return ok
}

// Get returns the definition of an event type.
func (r *TypeRegistry) Get(t EventType) (TypeDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.types[t]
	return def, ok
}

// Types returns all registered event types in registration order.
func (r *TypeRegistry) Types() []EventType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// ListByOwner returns the types contributed by one owner.
func (r *TypeRegistry) ListByOwner(owner string) []TypeDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var defs []TypeDefinition
	for _, t := range r.order {
		if def := r.types[t]; def.Owner == owner {
			defs = append(defs, def)
		}
	}
	return defs
}

// DefaultTypes is the process-wide taxonomy.
var DefaultTypes = NewTypeRegistry()

// RegisterType adds a plugin event type to DefaultTypes.
func RegisterType(def TypeDefinition) error {
	return DefaultTypes.Register(def)
}

// MustRegisterType is like RegisterType but panics on error.
// Intended for plugin init functions.
func MustRegisterType(def TypeDefinition) {
	if err := DefaultTypes.Register(def); err != nil {
		panic(fmt.Sprintf("failed to register event type: %v", err))
	}
}
