package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"tripbook/internal/domain"
	"tripbook/internal/geocode"
	"tripbook/internal/store"
)

// createStepRequest is the body of POST /api/trips/{tripID}/steps.
type createStepRequest struct {
	Title     string     `json:"title"`
	Note      string     `json:"note"`
	VisitedAt *time.Time `json:"visitedAt"`
	EndAt     *time.Time `json:"endAt"`
	Lat       *float64   `json:"lat"`
	Lng       *float64   `json:"lng"`
	Photos    []string   `json:"photos"`
}

// CreateStep handles POST /api/trips/{tripID}/steps. When the client sends
// no coordinates, the title is forward-geocoded; a failed or empty geocode
// just leaves the step unpinned.
func (s *Server) CreateStep(w http.ResponseWriter, r *http.Request) {
	svc, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	tripID, err := uuid.Parse(chi.URLParam(r, "tripID"))
	if err != nil {
		s.badRequest(w, "invalid trip id")
		return
	}

	var req createStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body")
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		s.writeError(w, fmt.Errorf("handler: %w: title is required", domain.ErrValidation))
		return
	}
	if req.VisitedAt != nil && req.EndAt != nil && req.EndAt.Before(*req.VisitedAt) {
		s.writeError(w, fmt.Errorf("handler: %w: end must not be before the visit date", domain.ErrValidation))
		return
	}

	step := domain.Step{
		Title:     title,
		Note:      req.Note,
		VisitedAt: req.VisitedAt,
		EndAt:     req.EndAt,
		Lat:       req.Lat,
		Lng:       req.Lng,
		Photos:    req.Photos,
	}
	if step.Lat == nil && step.Lng == nil {
		s.geocodeStep(r, &step)
	}

	id, err := svc.AddStep(r.Context(), tripID, step)
	if err != nil {
		s.writeError(w, err)
		return
	}

	trip, ok := svc.TripByID(tripID)
	if !ok {
		s.writeError(w, domain.ErrNotFound)
		return
	}
	for _, st := range trip.Steps {
		if st.ID == id {
			s.writeJSON(w, http.StatusCreated, st)
			return
		}
	}
	s.writeError(w, fmt.Errorf("handler.Server.CreateStep: created step missing: %w", domain.ErrNotFound))
}

// UpdateStep handles PATCH /api/trips/{tripID}/steps/{stepID}.
func (s *Server) UpdateStep(w http.ResponseWriter, r *http.Request) {
	svc, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	tripID, err := uuid.Parse(chi.URLParam(r, "tripID"))
	if err != nil {
		s.badRequest(w, "invalid trip id")
		return
	}
	stepID, err := uuid.Parse(chi.URLParam(r, "stepID"))
	if err != nil {
		s.badRequest(w, "invalid step id")
		return
	}

	patch, retitled, err := decodeStepPatch(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if patch.IsZero() {
		s.badRequest(w, "empty patch")
		return
	}

	// A renamed step with no explicit coordinates gets re-geocoded so the
	// pin follows the new place name.
	if retitled && patch.Lat == nil && patch.Lng == nil {
		if res := s.forward(r, *patch.Title); res != nil {
			patch.Lat = &res.Lat
			patch.Lng = &res.Lng
		}
	}

	if err := svc.UpdateStep(r.Context(), tripID, stepID, patch); err != nil {
		s.writeError(w, err)
		return
	}

	trip, ok := svc.TripByID(tripID)
	if !ok {
		s.writeError(w, domain.ErrNotFound)
		return
	}
	for _, st := range trip.Steps {
		if st.ID == stepID {
			s.writeJSON(w, http.StatusOK, st)
			return
		}
	}
	s.writeError(w, domain.ErrNotFound)
}

// DeleteStep handles DELETE /api/trips/{tripID}/steps/{stepID}.
func (s *Server) DeleteStep(w http.ResponseWriter, r *http.Request) {
	svc, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	tripID, err := uuid.Parse(chi.URLParam(r, "tripID"))
	if err != nil {
		s.badRequest(w, "invalid trip id")
		return
	}
	stepID, err := uuid.Parse(chi.URLParam(r, "stepID"))
	if err != nil {
		s.badRequest(w, "invalid step id")
		return
	}
	if err := svc.RemoveStep(r.Context(), tripID, stepID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// geocodeStep fills in coordinates from the step title, best effort.
func (s *Server) geocodeStep(r *http.Request, step *domain.Step) {
	if res := s.forward(r, step.Title); res != nil {
		step.Lat = &res.Lat
		step.Lng = &res.Lng
	}
}

func (s *Server) forward(r *http.Request, place string) *geocode.Result {
	if s.geo == nil {
		return nil
	}
	res, err := s.geo.Forward(r.Context(), place)
	if err != nil {
		s.log.Warn("geocode failed", "place", place, "error", err)
		return nil
	}
	return res
}

// decodeStepPatch builds a store.StepPatch from a partial JSON body.
// retitled reports whether the patch changes the title.
func decodeStepPatch(r *http.Request) (patch store.StepPatch, retitled bool, err error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return store.StepPatch{}, false, fmt.Errorf("handler: %w: invalid request body", domain.ErrValidation)
	}

	for key, val := range raw {
		isNull := string(val) == "null"
		switch key {
		case "title":
			if err := unmarshalField(val, &patch.Title); err != nil {
				return store.StepPatch{}, false, err
			}
			if patch.Title != nil {
				trimmed := strings.TrimSpace(*patch.Title)
				if trimmed == "" {
					return store.StepPatch{}, false, fmt.Errorf("handler: %w: title is required", domain.ErrValidation)
				}
				patch.Title = &trimmed
			}
			retitled = patch.Title != nil
		case "note":
			if err := unmarshalField(val, &patch.Note); err != nil {
				return store.StepPatch{}, false, err
			}
		case "visitedAt":
			if isNull {
				patch.ClearVisitedAt = true
			} else if err := unmarshalField(val, &patch.VisitedAt); err != nil {
				return store.StepPatch{}, false, err
			}
		case "endAt":
			if isNull {
				patch.ClearEndAt = true
			} else if err := unmarshalField(val, &patch.EndAt); err != nil {
				return store.StepPatch{}, false, err
			}
		case "lat":
			if err := unmarshalField(val, &patch.Lat); err != nil {
				return store.StepPatch{}, false, err
			}
		case "lng":
			if err := unmarshalField(val, &patch.Lng); err != nil {
				return store.StepPatch{}, false, err
			}
		case "photos":
			if err := unmarshalField(val, &patch.Photos); err != nil {
				return store.StepPatch{}, false, err
			}
		default:
			// Unknown keys are ignored so older clients keep working.
		}
	}
	if patch.VisitedAt != nil && patch.EndAt != nil && patch.EndAt.Before(*patch.VisitedAt) {
		return store.StepPatch{}, false, fmt.Errorf("handler: %w: end must not be before the visit date", domain.ErrValidation)
	}
	return patch, retitled, nil
}
