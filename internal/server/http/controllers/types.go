package controllers

import (
	"encoding/json"

	"github.com/rzbill/coedit/internal/store"
)

// docResp is the persisted state of a document and who is editing it.
type docResp struct {
	Str          string                    `json:"str"`
	Revision     int                       `json:"revision"`
	BaseRevision int                       `json:"base_revision"`
	Clients      map[string]store.Presence `json:"clients"`
}

// submitReq submits an operation over plain HTTP.
type submitReq struct {
	ClientID  string          `json:"client_id"`
	Revision  int             `json:"revision"`
	Operation json.RawMessage `json:"operation"`
	Selection json.RawMessage `json:"selection,omitempty"`
}

type submitResp struct {
	ID    string `json:"id"`
	Shard int    `json:"shard"`
}

// clientMsg is an action sent by a websocket client.
type clientMsg struct {
	Action    string          `json:"action"`
	Revision  int             `json:"revision"`
	Operation json.RawMessage `json:"operation,omitempty"`
	Selection json.RawMessage `json:"selection,omitempty"`
	Name      string          `json:"name,omitempty"`
}

// errorMsg reports a refused action to a websocket client.
type errorMsg struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
