package handler

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"cardoctor/internal/catalog/service"
	httputil "cardoctor/pkg/http"
	"cardoctor/pkg/logger"
)

type ServiceHandler struct {
	service service.CatalogService
	log     *logger.Logger
}

func NewServiceHandler(service service.CatalogService, log *logger.Logger) *ServiceHandler {
	return &ServiceHandler{
		service: service,
		log:     log,
	}
}

func (h *ServiceHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()

	services, err := h.service.List(r.Context(), query.Get("sort"), query.Get("search"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "List", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, services); err != nil {
		h.log.Error("failed to write success response", "handler", "List", "operation", "WriteSuccess", "error", err)
	}
}

// GetByID answers JSON null when the service does not exist.
func (h *ServiceHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	svc, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetByID", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, svc); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ServiceHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/services", h.List)
	router.GET("/services/:id", h.GetByID)
}
