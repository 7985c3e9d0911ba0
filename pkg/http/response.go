package http

import (
	"encoding/json"
	"net/http"

	apperrors "cardoctor/pkg/errors"
)

type ErrorResponse = apperrors.ErrorResponse

type TokenResponse struct {
	Token string `json:"token"`
}

func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError renders err as {"error": true, "message": ...} with the status
// carried by the AppError, or 500 for anything else.
func WriteError(w http.ResponseWriter, err error) error {
	appErr := apperrors.AsAppError(err)
	return WriteJSON(w, appErr.StatusCode(), appErr.Response())
}

func WriteSuccess(w http.ResponseWriter, data any) error {
	return WriteJSON(w, http.StatusOK, data)
}

func WriteText(w http.ResponseWriter, statusCode int, text string) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	_, err := w.Write([]byte(text))
	return err
}

func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}

// QueryParam reports whether key was present in the query string, so that
// "?email=" and no email at all can be told apart.
func QueryParam(r *http.Request, key string) (string, bool) {
	values, ok := r.URL.Query()[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}
