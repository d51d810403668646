package event

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// PlaceholderBody replaces empty message bodies. Some notification
// channels drop messages with no body.
const PlaceholderBody = "generic"

// Message is the human-readable part of an event.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// MessageFromType builds a Message whose title is derived from the event
// type name: "user_signup" becomes "User Signup".
func MessageFromType(t EventType, body string) Message {
	return Message{
		Title: TitleFor(t),
		Body:  normalizeBody(body),
	}
}

// TitleFor returns the human-readable form of an event type name.
func TitleFor(t EventType) string {
	// cases.Caser is stateful; one per call.
	caser := cases.Title(language.English)
	return caser.String(strings.ReplaceAll(string(t), "_", " "))
}

func normalizeBody(body string) string {
	if strings.TrimSpace(body) == "" {
		return PlaceholderBody
	}
	return body
}
