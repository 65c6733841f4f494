package controllers

import (
	"github.com/gorilla/mux"

	"github.com/rzbill/coedit/internal/collab"
	"github.com/rzbill/coedit/internal/runtime"
	logpkg "github.com/rzbill/coedit/pkg/log"
)

// ControllerRegistry holds every HTTP controller.
type ControllerRegistry struct {
	general *GeneralController
	docs    *DocsController
	events  *EventsController
	ws      *WSController
}

// NewControllerRegistry builds the controllers over one runtime.
func NewControllerRegistry(rt *runtime.Runtime, svc *collab.Service, logger logpkg.Logger) *ControllerRegistry {
	cfg := rt.Config()
	return &ControllerRegistry{
		general: NewGeneralController(rt),
		docs:    NewDocsController(svc, cfg.Shards),
		events:  NewEventsController(rt.Broadcaster()),
		ws: NewWSController(svc, rt.Broadcaster(), rt.Metrics(), logger, WSOptions{
			RateLimit: cfg.ClientRateLimit,
			RateBurst: cfg.ClientRateBurst,
			MaxFrame:  int64(cfg.MaxOperationBytes) + 4096,
		}),
	}
}

// RegisterAllRoutes registers every controller's routes.
func (r *ControllerRegistry) RegisterAllRoutes(router *mux.Router) {
	r.general.RegisterRoutes(router)
	r.docs.RegisterRoutes(router)
	r.events.RegisterRoutes(router)
	r.ws.RegisterRoutes(router)
}
