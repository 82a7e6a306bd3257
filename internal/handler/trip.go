package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"tripbook/internal/domain"
	"tripbook/internal/store"
)

// createTripRequest is the body of POST /api/trips.
type createTripRequest struct {
	Name           string             `json:"name"`
	Summary        string             `json:"summary"`
	StartDate      *time.Time         `json:"startDate"`
	EndDate        *time.Time         `json:"endDate"`
	Privacy        domain.TripPrivacy `json:"privacy"`
	TrackerEnabled bool               `json:"trackerEnabled"`
}

// CreateTrip handles POST /api/trips.
func (s *Server) CreateTrip(w http.ResponseWriter, r *http.Request) {
	var req createTripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body")
		return
	}

	trip := domain.Trip{
		Name:           strings.TrimSpace(req.Name),
		Summary:        req.Summary,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		Privacy:        req.Privacy,
		TrackerEnabled: req.TrackerEnabled,
	}
	if trip.Privacy == "" {
		trip.Privacy = domain.PrivacyPrivate
	}
	if err := validateTrip(trip.Name, trip.StartDate, trip.EndDate, trip.Privacy); err != nil {
		s.writeError(w, err)
		return
	}

	svc, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	id, err := svc.AddTrip(r.Context(), trip)
	denied := errors.Is(err, domain.ErrPermissionDenied)
	if err != nil && !denied {
		s.writeError(w, err)
		return
	}

	created, ok := svc.TripByID(id)
	if !ok {
		s.writeError(w, fmt.Errorf("handler.Server.CreateTrip: created trip missing: %w", domain.ErrNotFound))
		return
	}
	payload := tripResponse(created, s.now())
	if denied {
		payload.Warning = reminderPermissionWarning
	}
	s.writeJSON(w, http.StatusCreated, payload)
}

// ListTrips handles GET /api/trips.
// Supports ?status=future|current|past and ?page=/?limit= (defaults 1/20,
// limit capped at 100).
func (s *Server) ListTrips(w http.ResponseWriter, r *http.Request) {
	svc, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	now := s.now()
	var trips []domain.Trip
	switch status := domain.TripStatus(r.URL.Query().Get("status")); status {
	case "":
		trips = svc.Trips()
	case domain.StatusFuture, domain.StatusCurrent, domain.StatusPast:
		trips = svc.TripsByStatus(status, now)
	default:
		s.badRequest(w, "unknown status filter")
		return
	}

	params := domain.NewPaginationParams(queryInt(r, "page"), queryInt(r, "limit"))
	total := len(trips)
	trips = paginate(trips, params)

	data := make([]tripPayload, len(trips))
	for i, t := range trips {
		data[i] = tripResponse(t, now)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"data": data,
		"pagination": map[string]int{
			"page":  params.Page,
			"limit": params.Limit,
			"total": total,
		},
	})
}

// GetTrip handles GET /api/trips/{tripID}.
func (s *Server) GetTrip(w http.ResponseWriter, r *http.Request) {
	svc, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "tripID"))
	if err != nil {
		s.badRequest(w, "invalid trip id")
		return
	}
	trip, ok := svc.TripByID(id)
	if !ok {
		s.writeError(w, domain.ErrNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, tripResponse(trip, s.now()))
}

// UpdateTrip handles PATCH /api/trips/{tripID}. Only keys present in the
// body are touched; an explicit null on startDate or endDate clears it.
func (s *Server) UpdateTrip(w http.ResponseWriter, r *http.Request) {
	svc, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "tripID"))
	if err != nil {
		s.badRequest(w, "invalid trip id")
		return
	}

	patch, err := decodeTripPatch(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if patch.IsZero() {
		s.badRequest(w, "empty patch")
		return
	}

	err = svc.UpdateTrip(r.Context(), id, patch)
	denied := errors.Is(err, domain.ErrPermissionDenied)
	if err != nil && !denied {
		s.writeError(w, err)
		return
	}
	trip, ok := svc.TripByID(id)
	if !ok {
		s.writeError(w, domain.ErrNotFound)
		return
	}
	payload := tripResponse(trip, s.now())
	if denied {
		payload.Warning = reminderPermissionWarning
	}
	s.writeJSON(w, http.StatusOK, payload)
}

// DeleteTrip handles DELETE /api/trips/{tripID}.
func (s *Server) DeleteTrip(w http.ResponseWriter, r *http.Request) {
	svc, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "tripID"))
	if err != nil {
		s.badRequest(w, "invalid trip id")
		return
	}
	if err := svc.RemoveTrip(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- mapping helpers --------------------------------------------------------

// reminderPermissionWarning is attached to an otherwise successful mutation
// when reminder scheduling was skipped for lack of notification permission.
// The write itself has committed; only the reminder schedule is stale.
const reminderPermissionWarning = "notifications are not permitted; trip reminders were left unchanged"

// tripPayload is a domain.Trip plus the derived status, which only the HTTP
// layer computes: status depends on "now" and is never stored.
type tripPayload struct {
	domain.Trip
	Status  domain.TripStatus `json:"status"`
	Warning string            `json:"warning,omitempty"`
}

func tripResponse(t domain.Trip, now time.Time) tripPayload {
	if t.Steps == nil {
		t.Steps = []domain.Step{}
	}
	return tripPayload{Trip: t, Status: domain.Status(t.StartDate, t.EndDate, now)}
}

// decodeTripPatch builds a store.TripPatch from a partial JSON body.
// Decoding into raw messages first lets us distinguish an absent key
// (leave unchanged) from an explicit null (clear the field).
func decodeTripPatch(r *http.Request) (store.TripPatch, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return store.TripPatch{}, fmt.Errorf("handler: %w: invalid request body", domain.ErrValidation)
	}

	var patch store.TripPatch
	for key, val := range raw {
		isNull := string(val) == "null"
		switch key {
		case "name":
			if err := unmarshalField(val, &patch.Name); err != nil {
				return store.TripPatch{}, err
			}
			if patch.Name != nil {
				trimmed := strings.TrimSpace(*patch.Name)
				if trimmed == "" {
					return store.TripPatch{}, fmt.Errorf("handler: %w: name is required", domain.ErrValidation)
				}
				patch.Name = &trimmed
			}
		case "summary":
			if err := unmarshalField(val, &patch.Summary); err != nil {
				return store.TripPatch{}, err
			}
		case "startDate":
			if isNull {
				patch.ClearStartDate = true
			} else if err := unmarshalField(val, &patch.StartDate); err != nil {
				return store.TripPatch{}, err
			}
		case "endDate":
			if isNull {
				patch.ClearEndDate = true
			} else if err := unmarshalField(val, &patch.EndDate); err != nil {
				return store.TripPatch{}, err
			}
		case "privacy":
			if err := unmarshalField(val, &patch.Privacy); err != nil {
				return store.TripPatch{}, err
			}
			if patch.Privacy != nil && !patch.Privacy.Valid() {
				return store.TripPatch{}, fmt.Errorf("handler: %w: unknown privacy value", domain.ErrValidation)
			}
		case "trackerEnabled":
			if err := unmarshalField(val, &patch.TrackerEnabled); err != nil {
				return store.TripPatch{}, err
			}
		default:
			// Unknown keys are ignored so older clients keep working.
		}
	}

	if patch.StartDate != nil && patch.EndDate != nil && patch.EndDate.Before(*patch.StartDate) {
		return store.TripPatch{}, fmt.Errorf("handler: %w: end date must not be before start date", domain.ErrValidation)
	}
	return patch, nil
}

func unmarshalField[T any](raw json.RawMessage, dst **T) error {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("handler: %w: invalid field value", domain.ErrValidation)
	}
	*dst = &v
	return nil
}

func validateTrip(name string, start, end *time.Time, privacy domain.TripPrivacy) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("handler: %w: name is required", domain.ErrValidation)
	}
	if start != nil && end != nil && end.Before(*start) {
		return fmt.Errorf("handler: %w: end date must not be before start date", domain.ErrValidation)
	}
	if !privacy.Valid() {
		return fmt.Errorf("handler: %w: unknown privacy value", domain.ErrValidation)
	}
	return nil
}

func queryInt(r *http.Request, key string) *int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &n
}

func paginate(trips []domain.Trip, p domain.PaginationParams) []domain.Trip {
	off := p.Offset()
	if off >= len(trips) {
		return nil
	}
	end := off + p.Limit
	if end > len(trips) {
		end = len(trips)
	}
	return trips[off:end]
}
