package auth

import (
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	apperrors "cardoctor/pkg/errors"
	httputil "cardoctor/pkg/http"
	"cardoctor/pkg/logger"
	"cardoctor/pkg/middleware"
)

const (
	headerAuthorization = "Authorization"
	msgUnauthorized     = "unauthorized access"
)

type TokenVerifier interface {
	Verify(token string) (Claims, error)
}

// Guard rejects requests without a valid bearer token. A missing header is
// 401, a present but unusable one is 403.
type Guard struct {
	verifier TokenVerifier
	log      *logger.Logger
}

func NewGuard(verifier TokenVerifier, log *logger.Logger) *Guard {
	return &Guard{
		verifier: verifier,
		log:      log,
	}
}

func (g *Guard) Protect(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		header := r.Header.Get(headerAuthorization)
		if header == "" {
			g.reject(w, r, apperrors.Unauthorized(msgUnauthorized), "missing authorization header")
			return
		}

		// The scheme word is not checked; the token is the second field.
		parts := strings.Split(header, " ")
		if len(parts) < 2 || parts[1] == "" {
			g.reject(w, r, apperrors.Forbidden(msgUnauthorized), "malformed authorization header")
			return
		}

		claims, err := g.verifier.Verify(parts[1])
		if err != nil {
			g.reject(w, r, apperrors.Forbidden(msgUnauthorized), "token verification failed")
			return
		}

		next(w, r.WithContext(WithClaims(r.Context(), claims)), ps)
	}
}

func (g *Guard) reject(w http.ResponseWriter, r *http.Request, err *apperrors.AppError, reason string) {
	g.log.Warn("Request rejected by guard",
		"request_id", middleware.RequestIDFrom(r.Context()),
		"path", r.URL.Path,
		"reason", reason,
	)
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		g.log.Error("failed to write error response", "handler", "Guard", "operation", "WriteError", "error", writeErr)
	}
}
