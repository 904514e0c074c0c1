package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// Type names a console event.
type Type string

const (
	DocumentSaved Type = "DocumentSaved"
	UserLoggedIn  Type = "UserLoggedIn"
	UserLoggedOut Type = "UserLoggedOut"
)

// Event is something that happened in the console.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	// Actor is the ERP login of the user who caused the event.
	Actor string `json:"actor"`
	// Doctype and Name identify the document of a DocumentSaved event.
	Doctype string `json:"doctype,omitempty"`
	Name    string `json:"name,omitempty"`
	// Fields lists the fields a save changed.
	Fields []string `json:"fields,omitempty"`
}

// NewEvent stamps an event with a fresh ID and the current time.
func NewEvent(t Type, actor string) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Actor:      actor,
	}
}

// DocumentSavedEvent describes a successful save.
func DocumentSavedEvent(actor, doctype, name string, fields []string) Event {
	e := NewEvent(DocumentSaved, actor)
	e.Doctype = doctype
	e.Name = name
	e.Fields = fields
	return e
}
