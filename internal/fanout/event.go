// Package fanout delivers collaboration events to the connections watching a
// document. Hub delivers inside one process; Redis relays through Redis
// pub/sub so workers and connection servers can live in different processes.
package fanout

import (
	"encoding/json"

	"github.com/rzbill/coedit/internal/ot"
	"github.com/rzbill/coedit/internal/store"
)

// EventType names an event on the wire.
type EventType string

const (
	EventDoc        EventType = "doc"
	EventAck        EventType = "ack"
	EventOperation  EventType = "operation"
	EventSelection  EventType = "selection"
	EventClientLeft EventType = "client_left"
	EventResync     EventType = "resync"
	EventSetName    EventType = "set_name"
)

// Event is one message to document subscribers. Which fields are encoded
// depends on Type.
type Event struct {
	Type      EventType
	ClientID  string
	Str       string
	Revision  int
	Clients   map[string]store.Presence
	Operation *ot.Operation
	Selection *ot.Selection
	Name      string
}

// Doc is the full state sent to a client that joins or resyncs.
func Doc(clientID, doc string, revision int, clients map[string]store.Presence) Event {
	return Event{Type: EventDoc, ClientID: clientID, Str: doc, Revision: revision, Clients: clients}
}

func Ack(clientID string) Event { return Event{Type: EventAck, ClientID: clientID} }

// Operation carries a transformed edit to every client but its author.
func Operation(clientID string, e ot.Edit) Event {
	return Event{Type: EventOperation, ClientID: clientID, Operation: e.Op, Selection: e.Meta}
}

func Selection(clientID string, sel *ot.Selection) Event {
	return Event{Type: EventSelection, ClientID: clientID, Selection: sel}
}

func ClientLeft(clientID string) Event { return Event{Type: EventClientLeft, ClientID: clientID} }

// Resync asks clients to refetch the document. An empty clientID addresses
// everyone.
func Resync(clientID string) Event { return Event{Type: EventResync, ClientID: clientID} }

func SetName(clientID, name string) Event {
	return Event{Type: EventSetName, ClientID: clientID, Name: name}
}

// ShouldDeliver reports whether the subscriber identified by clientID
// receives e.
func (e Event) ShouldDeliver(clientID string) bool {
	switch e.Type {
	case EventAck, EventDoc:
		return e.ClientID == clientID
	case EventOperation:
		return e.ClientID != clientID
	case EventResync:
		return e.ClientID == "" || e.ClientID == clientID
	}
	return true
}

type wireEvent struct {
	Type      EventType                 `json:"type"`
	ClientID  string                    `json:"client_id,omitempty"`
	Str       *string                   `json:"str,omitempty"`
	Revision  *int                      `json:"revision,omitempty"`
	Clients   map[string]store.Presence `json:"clients,omitempty"`
	Operation *ot.Operation             `json:"operation,omitempty"`
	Selection *ot.Selection             `json:"selection,omitempty"`
	Name      string                    `json:"name,omitempty"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{Type: e.Type, ClientID: e.ClientID}
	switch e.Type {
	case EventDoc:
		w.Str, w.Revision = &e.Str, &e.Revision
		w.Clients = e.Clients
		if w.Clients == nil {
			w.Clients = map[string]store.Presence{}
		}
		// keep "clients" even when empty
		type docWire struct {
			wireEvent
			Clients map[string]store.Presence `json:"clients"`
		}
		return json.Marshal(docWire{wireEvent: w, Clients: w.Clients})
	case EventOperation:
		w.Operation, w.Selection = e.Operation, e.Selection
	case EventSelection:
		w.Selection = e.Selection
	case EventSetName:
		w.Name = e.Name
	}
	return json.Marshal(w)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = Event{Type: w.Type, ClientID: w.ClientID, Clients: w.Clients, Operation: w.Operation, Selection: w.Selection, Name: w.Name}
	if w.Str != nil {
		e.Str = *w.Str
	}
	if w.Revision != nil {
		e.Revision = *w.Revision
	}
	return nil
}
