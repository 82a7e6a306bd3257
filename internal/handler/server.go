// Package handler implements the HTTP surface of the tripbook API. All
// handlers are methods on Server, split into domain-specific files (trip.go,
// step.go, alerts.go, ...) but sharing one struct so they can reach its
// dependencies.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tripbook/internal/auth"
	"tripbook/internal/geocode"
	"tripbook/internal/push"
	"tripbook/internal/tripsync"
)

// Geocoder resolves a free-text place to coordinates. Nil results mean no
// match. Defined here so handler tests can stub geocoding without HTTP.
type Geocoder interface {
	Forward(ctx context.Context, place string) (*geocode.Result, error)
}

// Server holds the dependencies shared by all HTTP handlers.
type Server struct {
	sessions *tripsync.Manager
	geo      Geocoder
	push     *push.Service
	ws       http.Handler
	secret   []byte
	log      *slog.Logger

	// now is swapped in tests to pin status and alert derivation.
	now func() time.Time
}

// NewServer constructs the Server with all its dependencies. geo, pushSvc,
// and ws may be nil; the corresponding endpoints then degrade gracefully
// (no geocoding, 503 for push, 404 for the websocket).
func NewServer(sessions *tripsync.Manager, geo Geocoder, pushSvc *push.Service, ws http.Handler, secret []byte, log *slog.Logger) *Server {
	return &Server{
		sessions: sessions,
		geo:      geo,
		push:     pushSvc,
		ws:       ws,
		secret:   secret,
		log:      log,
		now:      time.Now,
	}
}

// Routes assembles the router. Everything under /api requires a bearer
// token; /healthz and /auth/token are public.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", s.GetHealth)
	r.Post("/auth/token", s.CreateToken)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireUser(s.secret))

		r.Post("/auth/logout", s.Logout)

		r.Get("/trips", s.ListTrips)
		r.Post("/trips", s.CreateTrip)
		r.Get("/trips/{tripID}", s.GetTrip)
		r.Patch("/trips/{tripID}", s.UpdateTrip)
		r.Delete("/trips/{tripID}", s.DeleteTrip)

		r.Post("/trips/{tripID}/steps", s.CreateStep)
		r.Patch("/trips/{tripID}/steps/{stepID}", s.UpdateStep)
		r.Delete("/trips/{tripID}/steps/{stepID}", s.DeleteStep)

		r.Get("/alerts", s.ListAlerts)
		r.Get("/export", s.GetExport)

		r.Get("/push/key", s.GetPushKey)
		r.Post("/push/subscriptions", s.CreatePushSubscription)
		r.Delete("/push/subscriptions", s.DeletePushSubscription)

		if s.ws != nil {
			r.Handle("/ws", s.ws)
		}
	})

	return r
}

// session resolves the per-user sync service for the authenticated request.
func (s *Server) session(r *http.Request) (*tripsync.Service, error) {
	return s.sessions.Session(r.Context(), auth.UserID(r.Context()))
}
