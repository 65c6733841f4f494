package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rzbill/coedit/internal/collab"
	"github.com/rzbill/coedit/internal/docstore"
	"github.com/rzbill/coedit/internal/store"
)

// DocsController reads documents and accepts operations over plain HTTP.
type DocsController struct {
	svc    *collab.Service
	shards int
}

func NewDocsController(svc *collab.Service, shards int) *DocsController {
	return &DocsController{svc: svc, shards: shards}
}

func (c *DocsController) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/v1/global", c.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/v1/global", c.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/v1/docs/{room:[0-9]+}/{path:.+}", c.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/v1/docs/{room:[0-9]+}/{path:.+}", c.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/v1/rooms/{room:[0-9]+}/files", c.handleFiles).Methods(http.MethodGet)
}

func (c *DocsController) handleGet(w http.ResponseWriter, r *http.Request) {
	key, err := docKey(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	st, clients, err := c.svc.State(r.Context(), key)
	if err != nil {
		writeErr(w, err)
		return
	}
	if clients == nil {
		clients = map[string]store.Presence{}
	}
	writeJSON(w, docResp{Str: st.Doc, Revision: st.Revision, BaseRevision: st.BaseRevision, Clients: clients})
}

// handleSubmit enqueues an operation. The edit is applied asynchronously;
// 202 only means it reached its shard stream.
func (c *DocsController) handleSubmit(w http.ResponseWriter, r *http.Request) {
	key, err := docKey(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var req submitReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	id, err := c.svc.Submit(r.Context(), key, req.ClientID, collab.Submission{
		Revision:  req.Revision,
		Operation: req.Operation,
		Selection: req.Selection,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeAccepted(w, submitResp{ID: id, Shard: store.ShardFor(key, c.shards)})
}

func (c *DocsController) handleFiles(w http.ResponseWriter, r *http.Request) {
	room, err := parseRoom(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	files, err := c.svc.Files(r.Context(), room)
	if err != nil {
		writeErr(w, err)
		return
	}
	if files == nil {
		files = []docstore.File{}
	}
	writeJSON(w, map[string]any{"files": files})
}
