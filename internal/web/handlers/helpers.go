package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ormea-systems/maildesk/internal/apperr"
)

// errorResponse is the envelope for API error bodies.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON serialises v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

// writeError maps a service error onto an HTTP status and JSON body.
// Unclassified errors are logged and reported as 500 without detail.
func writeError(w http.ResponseWriter, err error) {
	kind, ok := apperr.KindOf(err)
	if !ok {
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}
	switch kind {
	case apperr.KindValidation:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case apperr.KindNotFound:
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case apperr.KindConflict:
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case apperr.KindForbidden:
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	}
}

// decodeJSON reads the request body into dst, rejecting malformed JSON.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return apperr.Validationf("invalid JSON body")
	}
	return nil
}
