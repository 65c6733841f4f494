package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rzbill/coedit/internal/fanout"
)

// sseSink writes fan-out events as Server-Sent Events.
type sseSink struct {
	w http.ResponseWriter
}

// Send writes one event with the "data: " prefix followed by two newlines.
func (s sseSink) Send(ev fanout.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	return nil
}

func (s sseSink) Flush() {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}

// EventsController streams a document's events to read-only observers.
type EventsController struct {
	bus fanout.Broadcaster
}

func NewEventsController(bus fanout.Broadcaster) *EventsController {
	return &EventsController{bus: bus}
}

func (c *EventsController) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/v1/events/global", c.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/v1/events/{room:[0-9]+}/{path:.+}", c.handleEvents).Methods(http.MethodGet)
}

// handleEvents relays the events an observer with the optional client_id
// query parameter would receive.
func (c *EventsController) handleEvents(w http.ResponseWriter, r *http.Request) {
	key, err := docKey(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	clientID := r.URL.Query().Get("client_id")
	sub, err := c.bus.Subscribe(r.Context(), key.Channel())
	if err != nil {
		writeErr(w, err)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	sink := sseSink{w: w}
	sink.Flush()
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if !ev.ShouldDeliver(clientID) {
				continue
			}
			if err := sink.Send(ev); err != nil {
				return
			}
			sink.Flush()
		}
	}
}
