// Package tripsync maintains an in-memory mirror of one signed-in user's
// trips and steps, kept consistent with the remote store.
//
// The contract is deliberately simple: a full fetch when a user is bound,
// then remote-write-then-mirror-patch for every mutation. There is no
// optimistic UI: the mirror changes only after the remote write succeeds,
// so a failed write always leaves it in its pre-operation state. There is no
// retry, no offline queue, and no reconciliation protocol.
package tripsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tripbook/internal/alert"
	"tripbook/internal/domain"
	"tripbook/internal/store"
)

// Rescheduler is the reminder-scheduling collaborator, invoked on every
// trip-relevant mutation. Implemented by notify.Scheduler; defining the
// interface here (in the consumer package) lets tests inject a fake.
type Rescheduler interface {
	Reschedule(ctx context.Context, userID string, trip domain.Trip, now time.Time) ([]string, error)
	CancelAll(ids []string)
}

// Service is the synchronization context for a single user. Exactly one
// logical owner (the Service) writes the mirror; consumers only read.
// Concurrent mutations of the same entity are not serialized beyond the
// mirror mutex; the remote store is the arbiter of such races.
type Service struct {
	userID    string
	store     store.TripStore
	reminders Rescheduler
	log       *slog.Logger

	// Clock supplies "now" for status/alert derivation and reminder
	// scheduling. Overridable in tests; defaults to time.Now.
	Clock func() time.Time

	mu      sync.RWMutex
	trips   []domain.Trip
	loading bool

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int
}

// New constructs a Service bound to userID. The mirror starts empty; call
// Refresh to perform the initial full fetch. reminders may be nil, in which
// case no reminder scheduling happens (useful in tests).
func New(userID string, st store.TripStore, reminders Rescheduler, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		userID:    userID,
		store:     st,
		reminders: reminders,
		log:       log,
		Clock:     time.Now,
		subs:      make(map[int]func()),
	}
}

// UserID returns the bound user identifier.
func (s *Service) UserID() string { return s.userID }

// Subscribe registers fn to run after every mirror change and returns an
// unsubscribe function. Callbacks run synchronously on the mutating
// goroutine and must not call back into the Service.
func (s *Service) Subscribe(fn func()) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Service) notify() {
	s.subMu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Refresh replaces the mirror with a full fetch of the user's trips and
// steps. An unbound user yields an empty mirror without a remote call.
func (s *Service) Refresh(ctx context.Context) error {
	if s.userID == "" {
		s.mu.Lock()
		s.trips = nil
		s.mu.Unlock()
		s.notify()
		return nil
	}

	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	trips, err := s.store.ListTrips(ctx, s.userID)
	if err != nil {
		s.log.Error("failed to load trips", "user_id", s.userID, "error", err)
		return fmt.Errorf("tripsync.Service.Refresh: %w", err)
	}

	s.mu.Lock()
	s.trips = trips
	s.mu.Unlock()
	s.notify()
	return nil
}

// Loading reports whether the initial bulk fetch is in flight.
func (s *Service) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// AddTrip creates a trip remotely, prepends it to the mirror, and schedules
// its reminders. Returns the store-assigned identifier. When reminder
// scheduling is refused, the identifier is valid, the trip exists, and the
// error wraps domain.ErrPermissionDenied.
func (s *Service) AddTrip(ctx context.Context, trip domain.Trip) (uuid.UUID, error) {
	if s.userID == "" {
		s.log.Warn("add trip rejected: no signed-in user")
		return uuid.Nil, fmt.Errorf("tripsync.Service.AddTrip: %w", domain.ErrUnauthenticated)
	}

	created, err := s.store.CreateTrip(ctx, s.userID, trip)
	if err != nil {
		s.log.Error("failed to create trip", "user_id", s.userID, "error", err)
		return uuid.Nil, fmt.Errorf("tripsync.Service.AddTrip: %w", err)
	}

	s.mu.Lock()
	s.trips = append([]domain.Trip{created}, s.trips...)
	s.mu.Unlock()
	s.notify()

	if err := s.refreshReminders(ctx, created.ID); err != nil {
		return created.ID, err
	}
	return created.ID, nil
}

// UpdateTrip applies a partial update remotely, then patches the mirror.
// When the patch can change the reminder schedule (start date or name), the
// trip's reminders are recomputed afterwards; a denial there leaves the
// update committed and returns the wrapped domain.ErrPermissionDenied.
func (s *Service) UpdateTrip(ctx context.Context, tripID uuid.UUID, patch store.TripPatch) error {
	if err := s.store.UpdateTrip(ctx, s.userID, tripID, patch); err != nil {
		s.log.Error("failed to update trip", "user_id", s.userID, "trip_id", tripID, "error", err)
		return fmt.Errorf("tripsync.Service.UpdateTrip: %w", err)
	}

	s.mu.Lock()
	for i := range s.trips {
		if s.trips[i].ID == tripID {
			patch.Apply(&s.trips[i])
			break
		}
	}
	s.mu.Unlock()
	s.notify()

	if patch.TouchesSchedule() {
		return s.refreshReminders(ctx, tripID)
	}
	return nil
}

// RemoveTrip deletes a trip and all of its steps in one atomic remote
// operation, removes it from the mirror, and cancels its reminders.
func (s *Service) RemoveTrip(ctx context.Context, tripID uuid.UUID) error {
	if err := s.store.DeleteTrip(ctx, s.userID, tripID); err != nil {
		s.log.Error("failed to delete trip", "user_id", s.userID, "trip_id", tripID, "error", err)
		return fmt.Errorf("tripsync.Service.RemoveTrip: %w", err)
	}

	var cancelled []string
	s.mu.Lock()
	kept := s.trips[:0]
	for _, t := range s.trips {
		if t.ID == tripID {
			cancelled = t.NotificationIDs
			continue
		}
		kept = append(kept, t)
	}
	s.trips = kept
	s.mu.Unlock()
	s.notify()

	if s.reminders != nil && len(cancelled) > 0 {
		s.reminders.CancelAll(cancelled)
	}
	return nil
}

// AddStep creates a step remotely and prepends it to the trip's step list in
// the mirror. Returns the store-assigned identifier.
func (s *Service) AddStep(ctx context.Context, tripID uuid.UUID, step domain.Step) (uuid.UUID, error) {
	if s.userID == "" {
		s.log.Warn("add step rejected: no signed-in user")
		return uuid.Nil, fmt.Errorf("tripsync.Service.AddStep: %w", domain.ErrUnauthenticated)
	}

	created, err := s.store.CreateStep(ctx, s.userID, tripID, step)
	if err != nil {
		s.log.Error("failed to add step", "user_id", s.userID, "trip_id", tripID, "error", err)
		return uuid.Nil, fmt.Errorf("tripsync.Service.AddStep: %w", err)
	}

	s.mu.Lock()
	for i := range s.trips {
		if s.trips[i].ID == tripID {
			s.trips[i].Steps = append([]domain.Step{created}, s.trips[i].Steps...)
			break
		}
	}
	s.mu.Unlock()
	s.notify()

	return created.ID, nil
}

// UpdateStep applies a partial update remotely, then patches the mirror.
func (s *Service) UpdateStep(ctx context.Context, tripID, stepID uuid.UUID, patch store.StepPatch) error {
	if err := s.store.UpdateStep(ctx, s.userID, tripID, stepID, patch); err != nil {
		s.log.Error("failed to update step", "user_id", s.userID, "trip_id", tripID, "step_id", stepID, "error", err)
		return fmt.Errorf("tripsync.Service.UpdateStep: %w", err)
	}

	s.mu.Lock()
	for i := range s.trips {
		if s.trips[i].ID != tripID {
			continue
		}
		steps := append([]domain.Step(nil), s.trips[i].Steps...)
		for j := range steps {
			if steps[j].ID == stepID {
				patch.Apply(&steps[j])
				break
			}
		}
		s.trips[i].Steps = steps
		break
	}
	s.mu.Unlock()
	s.notify()

	return nil
}

// RemoveStep deletes a step remotely and drops it from the mirror. Sibling
// steps and trip-level fields are unaffected.
func (s *Service) RemoveStep(ctx context.Context, tripID, stepID uuid.UUID) error {
	if err := s.store.DeleteStep(ctx, s.userID, tripID, stepID); err != nil {
		s.log.Error("failed to delete step", "user_id", s.userID, "trip_id", tripID, "step_id", stepID, "error", err)
		return fmt.Errorf("tripsync.Service.RemoveStep: %w", err)
	}

	s.mu.Lock()
	for i := range s.trips {
		if s.trips[i].ID != tripID {
			continue
		}
		steps := make([]domain.Step, 0, len(s.trips[i].Steps))
		for _, st := range s.trips[i].Steps {
			if st.ID != stepID {
				steps = append(steps, st)
			}
		}
		s.trips[i].Steps = steps
		break
	}
	s.mu.Unlock()
	s.notify()

	return nil
}

// TripByID looks a trip up in the mirror. No remote call.
func (s *Service) TripByID(id uuid.UUID) (domain.Trip, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.trips {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Trip{}, false
}

// Trips returns a snapshot of the mirror.
func (s *Service) Trips() []domain.Trip {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Trip(nil), s.trips...)
}

// TripsByStatus returns the mirror filtered to one derived status.
func (s *Service) TripsByStatus(status domain.TripStatus, now time.Time) []domain.Trip {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Trip
	for _, t := range s.trips {
		if t.Status(now) == status {
			out = append(out, t)
		}
	}
	return out
}

// Alerts derives the sorted upcoming-trip alert list from the mirror.
func (s *Service) Alerts(now time.Time) []alert.Alert {
	return alert.ForAll(s.Trips(), now)
}

// refreshReminders recomputes a trip's reminder schedule and persists the
// new identifier set through the store and the mirror.
//
// Permission denial is soft: the prior schedule is kept and the triggering
// mutation has already committed. The wrapped domain.ErrPermissionDenied is
// still returned so callers can show the denial to the user. Any other
// scheduling failure propagates; there is no compensation path for a
// half-finished reschedule.
func (s *Service) refreshReminders(ctx context.Context, tripID uuid.UUID) error {
	if s.reminders == nil {
		return nil
	}

	trip, ok := s.TripByID(tripID)
	if !ok {
		return nil
	}

	ids, err := s.reminders.Reschedule(ctx, s.userID, trip, s.Clock())
	if errors.Is(err, domain.ErrPermissionDenied) {
		// Prior schedule preserved; the sentinel travels up so the denial
		// can be surfaced alongside the committed mutation.
		return fmt.Errorf("tripsync.Service.refreshReminders: %w", err)
	}
	if err != nil {
		return fmt.Errorf("tripsync.Service.refreshReminders: %w", err)
	}

	patch := store.TripPatch{NotificationIDs: &ids}
	if err := s.store.UpdateTrip(ctx, s.userID, tripID, patch); err != nil {
		s.log.Error("failed to persist notification ids", "user_id", s.userID, "trip_id", tripID, "error", err)
		return fmt.Errorf("tripsync.Service.refreshReminders: %w", err)
	}

	s.mu.Lock()
	for i := range s.trips {
		if s.trips[i].ID == tripID {
			patch.Apply(&s.trips[i])
			break
		}
	}
	s.mu.Unlock()
	s.notify()
	return nil
}
