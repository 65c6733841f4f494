package controllers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rzbill/coedit/internal/runtime"
)

// GeneralController serves health and shard status.
type GeneralController struct {
	rt *runtime.Runtime
}

func NewGeneralController(rt *runtime.Runtime) *GeneralController {
	return &GeneralController{rt: rt}
}

func (c *GeneralController) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/v1/healthz", c.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/shards", c.handleShards).Methods(http.MethodGet)
}

// handleHealth returns 200 {"status":"ok"} when the store answers, 503
// otherwise.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.rt.CheckHealth(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_serving")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (c *GeneralController) handleShards(w http.ResponseWriter, r *http.Request) {
	shards, err := c.rt.Shards(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]any{"shards": shards})
}
