package handler

import (
	"encoding/json"
	"net/http"

	"tripbook/internal/auth"
	"tripbook/internal/push"
)

// GetPushKey handles GET /api/push/key. Clients need the VAPID public key
// to create a browser push subscription.
func (s *Server) GetPushKey(w http.ResponseWriter, r *http.Request) {
	if s.push == nil {
		s.pushUnavailable(w)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"publicKey": s.push.VAPIDPublicKey()})
}

// pushSubscriptionRequest mirrors the browser PushSubscription.toJSON shape.
type pushSubscriptionRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// CreatePushSubscription handles POST /api/push/subscriptions.
func (s *Server) CreatePushSubscription(w http.ResponseWriter, r *http.Request) {
	if s.push == nil {
		s.pushUnavailable(w)
		return
	}
	var req pushSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body")
		return
	}
	if req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		s.badRequest(w, "endpoint and keys are required")
		return
	}

	sub, err := s.push.Subscribe(r.Context(), push.Subscription{
		UserID:   auth.UserID(r.Context()),
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sub)
}

// DeletePushSubscription handles DELETE /api/push/subscriptions.
// The endpoint to remove is passed in the body: endpoints are URLs and do
// not survive a path segment.
func (s *Server) DeletePushSubscription(w http.ResponseWriter, r *http.Request) {
	if s.push == nil {
		s.pushUnavailable(w)
		return
	}
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		s.badRequest(w, "endpoint is required")
		return
	}
	if err := s.push.Unsubscribe(r.Context(), req.Endpoint); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) pushUnavailable(w http.ResponseWriter) {
	s.writeJSON(w, http.StatusServiceUnavailable,
		errorBody{errorDetail{Code: "unavailable", Message: "push delivery is not configured"}})
}
