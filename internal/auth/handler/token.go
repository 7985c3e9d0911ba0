package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apperrors "cardoctor/pkg/errors"
	httputil "cardoctor/pkg/http"
	"cardoctor/pkg/logger"
)

type TokenIssuer interface {
	Issue(claims map[string]any) (string, error)
}

type TokenHandler struct {
	issuer TokenIssuer
	log    *logger.Logger
}

func NewTokenHandler(issuer TokenIssuer, log *logger.Logger) *TokenHandler {
	return &TokenHandler{
		issuer: issuer,
		log:    log,
	}
}

// Issue signs whatever JSON object the client sends. An empty body signs {}.
func (h *TokenHandler) Issue(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body any
	err := httputil.DecodeJSON(r, &body)
	switch {
	case errors.Is(err, io.EOF):
		body = map[string]any{}
	case err != nil:
		h.writeError(w, apperrors.InvalidInput("Invalid request body"))
		return
	}

	claims, ok := body.(map[string]any)
	if !ok {
		h.writeError(w, apperrors.InvalidInput("Token payload must be a JSON object"))
		return
	}

	token, err := h.issuer.Issue(claims)
	if err != nil {
		h.log.Error("Failed to issue token", "error", err)
		h.writeError(w, apperrors.Internal("Internal server error", err))
		return
	}

	if err := httputil.WriteSuccess(w, httputil.TokenResponse{Token: token}); err != nil {
		h.log.Error("failed to write success response", "handler", "Issue", "operation", "WriteSuccess", "error", err)
	}
}

func (h *TokenHandler) writeError(w http.ResponseWriter, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", "Issue", "operation", "WriteError", "error", writeErr)
	}
}

func (h *TokenHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/jwt", h.Issue)
}
