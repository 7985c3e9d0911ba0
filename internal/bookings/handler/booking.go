package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"cardoctor/internal/auth"
	"cardoctor/internal/bookings/service"
	apperrors "cardoctor/pkg/errors"
	httputil "cardoctor/pkg/http"
	"cardoctor/pkg/logger"
	"cardoctor/pkg/model"
)

type BookingHandler struct {
	service  service.BookingService
	guard    *auth.Guard
	guardAll bool
	log      *logger.Logger
}

// NewBookingHandler wires the booking routes. The list route is always
// guarded; guardAll extends the guard to create, update and delete.
func NewBookingHandler(service service.BookingService, guard *auth.Guard, guardAll bool, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service:  service,
		guard:    guard,
		guardAll: guardAll,
		log:      log,
	}
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	claims, _ := auth.ClaimsFromContext(r.Context())

	var email *string
	if value, ok := httputil.QueryParam(r, "email"); ok {
		email = &value
	}

	bookings, err := h.service.List(r.Context(), claims, email)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	if err := httputil.WriteSuccess(w, bookings); err != nil {
		h.log.Error("failed to write success response", "handler", "List", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	booking := model.Booking{}
	if err := decodeBody(r, &booking); err != nil || booking == nil {
		h.writeError(w, "Create", apperrors.InvalidInput("Invalid request body"))
		return
	}

	result, err := h.service.Create(r.Context(), booking)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", "Create", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) Delete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	result, err := h.service.Delete(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "Delete", err)
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", "Delete", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var update model.StatusUpdate
	if err := decodeBody(r, &update); err != nil {
		h.writeError(w, "UpdateStatus", apperrors.InvalidInput("Invalid request body"))
		return
	}

	result, err := h.service.UpdateStatus(r.Context(), ps.ByName("id"), update)
	if err != nil {
		h.writeError(w, "UpdateStatus", err)
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", "UpdateStatus", "operation", "WriteSuccess", "error", err)
	}
}

// decodeBody treats an empty body as an empty JSON object.
func decodeBody(r *http.Request, target any) error {
	if err := httputil.DecodeJSON(r, target); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (h *BookingHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *BookingHandler) protect(next httprouter.Handle) httprouter.Handle {
	if h.guardAll {
		return h.guard.Protect(next)
	}
	return next
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/bookings", h.guard.Protect(h.List))
	router.POST("/bookings", h.protect(h.Create))
	router.PATCH("/bookings/:id", h.protect(h.UpdateStatus))
	router.DELETE("/bookings/:id", h.protect(h.Delete))
}
