// Package event defines the application event model: the taxonomy of event
// types, the typed payloads they carry and the immutable envelope handed to
// listeners.
//
// # Taxonomy
//
// EventType and DocumentType are open sets. The core values are registered
// in DefaultTypes; plugins add their own from an init function:
//
//	func init() {
//	    event.MustRegisterType(event.TypeDefinition{
//	        Type:  "shopping_list_shared",
//	        Owner: "shopping",
//	    })
//	}
//
// Operation is closed: info, create, update, delete.
//
// # Payloads
//
// DocumentData is a tagged union. Each variant reports a Kind used as the
// JSON discriminator, so decoding rebuilds the right Go type:
//
//	b, _ := event.MarshalDocumentData(event.UserSignupData{Username: "ann", Email: "ann@example.com"})
//	// {"document_type":"user","email":"ann@example.com","kind":"user_signup","operation":"create","username":"ann"}
//	d, _ := event.UnmarshalDocumentData(b) // d.(event.UserSignupData)
//
// # Envelope
//
// New validates its input and stamps a fresh UUID and UTC timestamp:
//
//	evt, err := event.New("auth", event.TypeUserAuthenticated, nil, "")
//	// evt.Message().Title == "User Authenticated"
//	// evt.Message().Body  == "generic"
//
// Validation failures are *errors.ValidationError values; they signal a bug
// in the caller and are returned rather than logged.
package event
