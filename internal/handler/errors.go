package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"tripbook/internal/domain"
)

// errorBody is the JSON shape of every non-2xx response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON encodes v with the given status. Encoding failures are logged
// and otherwise dropped; the status line has already been written.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", "error", err)
	}
}

// writeError maps a domain sentinel to its HTTP status and JSON body.
// Unknown errors become 500 with a generic message; the detail goes to the
// log, not the client.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, errorBody{errorDetail{Code: "not_found", Message: "not found"}})
	case errors.Is(err, domain.ErrValidation):
		s.writeJSON(w, http.StatusUnprocessableEntity, errorBody{errorDetail{Code: "validation_error", Message: unwrapMessage(err)}})
	case errors.Is(err, domain.ErrUnauthenticated):
		s.writeJSON(w, http.StatusUnauthorized, errorBody{errorDetail{Code: "unauthenticated", Message: "not signed in"}})
	case errors.Is(err, domain.ErrPermissionDenied):
		s.writeJSON(w, http.StatusForbidden, errorBody{errorDetail{Code: "permission_denied", Message: "notifications are not permitted"}})
	default:
		s.log.Error("internal error", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorBody{errorDetail{Code: "internal", Message: "internal server error"}})
	}
}

// badRequest rejects a request before it reaches the sync layer
// (e.g. malformed body or id).
func (s *Server) badRequest(w http.ResponseWriter, message string) {
	s.writeJSON(w, http.StatusUnprocessableEntity, errorBody{errorDetail{Code: "validation_error", Message: message}})
}

// unwrapMessage extracts the human-readable tail from a wrapped sentinel,
// e.g. "handler.Server.CreateTrip: validation error: name is required"
// becomes "name is required".
func unwrapMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if i := strings.LastIndex(msg, domain.ErrValidation.Error()+": "); i >= 0 {
		return msg[i+len(domain.ErrValidation.Error())+2:]
	}
	return msg
}
