// Package store is the trip-document store adapter: the only component that
// performs I/O for domain data. It exposes the six operations the sync layer
// needs (create-with-generated-id for trips and steps, get-all, partial
// update, delete, and atomic cascade delete) behind an interface, with a
// Postgres implementation. No business logic lives here.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tripbook/internal/domain"
)

// TripStore defines the persistence operations for a user's trips and steps.
// Every operation is scoped by userID: the store is a per-user hierarchy
// (users → trips → steps) and one user can never touch another's documents.
type TripStore interface {
	// CreateTrip inserts a new trip and returns the persisted record with the
	// store-assigned id, created_at, and updated_at populated. The Steps
	// field of the input is ignored; a new trip always starts with none.
	CreateTrip(ctx context.Context, userID string, trip domain.Trip) (domain.Trip, error)

	// ListTrips returns all of the user's trips with their steps nested,
	// newest-created first (trips and steps both).
	ListTrips(ctx context.Context, userID string) ([]domain.Trip, error)

	// UpdateTrip applies a partial update: only the fields set on the patch
	// are touched. Returns domain.ErrNotFound if the trip does not exist
	// under this user.
	UpdateTrip(ctx context.Context, userID string, tripID uuid.UUID, patch TripPatch) error

	// DeleteTrip removes a trip and all of its steps in a single transaction.
	// Either the trip and every child step go together, or nothing does: a
	// trip must never exist with orphaned steps, nor steps without a parent.
	// Returns domain.ErrNotFound if the trip does not exist under this user.
	DeleteTrip(ctx context.Context, userID string, tripID uuid.UUID) error

	// CreateStep inserts a new step under the given trip and returns the
	// persisted record with the store-assigned id populated.
	// Returns domain.ErrNotFound if the trip does not exist under this user.
	CreateStep(ctx context.Context, userID string, tripID uuid.UUID, step domain.Step) (domain.Step, error)

	// UpdateStep applies a partial update to a step, scoped by trip.
	// Returns domain.ErrNotFound if no such step exists under that trip.
	UpdateStep(ctx context.Context, userID string, tripID, stepID uuid.UUID, patch StepPatch) error

	// DeleteStep removes a single step. Sibling steps and trip-level fields
	// are unaffected. Returns domain.ErrNotFound if no such step exists.
	DeleteStep(ctx context.Context, userID string, tripID, stepID uuid.UUID) error
}

// TripPatch is a partial update of a trip's mutable fields. A nil pointer
// means "leave unchanged". The Clear flags express "set to NULL" for the
// nullable date columns, which a pointer alone cannot distinguish from
// "leave unchanged".
type TripPatch struct {
	Name            *string
	Summary         *string
	StartDate       *time.Time
	ClearStartDate  bool
	EndDate         *time.Time
	ClearEndDate    bool
	Privacy         *domain.TripPrivacy
	TrackerEnabled  *bool
	NotificationIDs *[]string
}

// IsZero reports whether the patch would touch nothing.
func (p TripPatch) IsZero() bool {
	return p.Name == nil && p.Summary == nil &&
		p.StartDate == nil && !p.ClearStartDate &&
		p.EndDate == nil && !p.ClearEndDate &&
		p.Privacy == nil && p.TrackerEnabled == nil && p.NotificationIDs == nil
}

// TouchesSchedule reports whether applying the patch can change the trip's
// reminder schedule (its start date or its displayed name).
func (p TripPatch) TouchesSchedule() bool {
	return p.StartDate != nil || p.ClearStartDate || p.Name != nil
}

// Apply patches an in-memory trip the same way UpdateTrip patches the stored
// row. The sync layer uses this to reconcile its mirror after a successful
// remote write.
func (p TripPatch) Apply(t *domain.Trip) {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Summary != nil {
		t.Summary = *p.Summary
	}
	if p.ClearStartDate {
		t.StartDate = nil
	} else if p.StartDate != nil {
		d := *p.StartDate
		t.StartDate = &d
	}
	if p.ClearEndDate {
		t.EndDate = nil
	} else if p.EndDate != nil {
		d := *p.EndDate
		t.EndDate = &d
	}
	if p.Privacy != nil {
		t.Privacy = *p.Privacy
	}
	if p.TrackerEnabled != nil {
		t.TrackerEnabled = *p.TrackerEnabled
	}
	if p.NotificationIDs != nil {
		t.NotificationIDs = append([]string(nil), (*p.NotificationIDs)...)
	}
}

// StepPatch is a partial update of a step's mutable fields, with the same
// nil-means-unchanged and Clear-means-NULL conventions as TripPatch.
type StepPatch struct {
	Title          *string
	Note           *string
	VisitedAt      *time.Time
	ClearVisitedAt bool
	EndAt          *time.Time
	ClearEndAt     bool
	Lat            *float64
	Lng            *float64
	Photos         *[]string
}

// IsZero reports whether the patch would touch nothing.
func (p StepPatch) IsZero() bool {
	return p.Title == nil && p.Note == nil &&
		p.VisitedAt == nil && !p.ClearVisitedAt &&
		p.EndAt == nil && !p.ClearEndAt &&
		p.Lat == nil && p.Lng == nil && p.Photos == nil
}

// Apply patches an in-memory step the same way UpdateStep patches the stored
// row.
func (p StepPatch) Apply(s *domain.Step) {
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.Note != nil {
		s.Note = *p.Note
	}
	if p.ClearVisitedAt {
		s.VisitedAt = nil
	} else if p.VisitedAt != nil {
		d := *p.VisitedAt
		s.VisitedAt = &d
	}
	if p.ClearEndAt {
		s.EndAt = nil
	} else if p.EndAt != nil {
		d := *p.EndAt
		s.EndAt = &d
	}
	if p.Lat != nil {
		v := *p.Lat
		s.Lat = &v
	}
	if p.Lng != nil {
		v := *p.Lng
		s.Lng = &v
	}
	if p.Photos != nil {
		s.Photos = append([]string(nil), (*p.Photos)...)
	}
}
