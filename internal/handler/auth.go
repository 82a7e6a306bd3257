package handler

import (
	"encoding/json"
	"net/http"

	"tripbook/internal/auth"
)

// CreateToken handles POST /auth/token. It mints a bearer token for the
// given user id. There is no password check: identity is delegated to the
// reverse proxy or mobile auth provider in front of this service, and this
// endpoint exists for local development and tests.
func (s *Server) CreateToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		s.badRequest(w, "userId is required")
		return
	}
	token, err := auth.CreateToken(s.secret, req.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Logout handles POST /api/auth/logout. Dropping the session discards the
// user's in-memory mirror; a later request rebuilds it from the store.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Drop(auth.UserID(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}
