// Package domain contains the core data types for Tripbook.
// This package has zero external dependencies beyond uuid and is imported by
// every other internal package (store, tripsync, notify, handler).
package domain

import (
	"time"

	"github.com/google/uuid"
)

// TripPrivacy controls who can see a trip.
type TripPrivacy string

const (
	PrivacyPrivate TripPrivacy = "private"
	PrivacyFriends TripPrivacy = "friends"
	PrivacyPublic  TripPrivacy = "public"
)

// Valid reports whether p is one of the known privacy levels.
func (p TripPrivacy) Valid() bool {
	switch p {
	case PrivacyPrivate, PrivacyFriends, PrivacyPublic:
		return true
	}
	return false
}

// TripStatus is the derived classification of a trip relative to a point in time.
type TripStatus string

const (
	StatusPast    TripStatus = "past"
	StatusCurrent TripStatus = "current"
	StatusFuture  TripStatus = "future"
)

// Trip is the top-level aggregate: an itinerary owned by a single user,
// holding an ordered list of steps (newest-created first).
//
// NotificationIDs is owned by the reminder scheduler: at any point in time it
// must match exactly the set of live scheduled reminders for this trip.
type Trip struct {
	ID              uuid.UUID   `json:"id"`
	Name            string      `json:"name"`
	Summary         string      `json:"summary,omitempty"`
	StartDate       *time.Time  `json:"startDate,omitempty"`
	EndDate         *time.Time  `json:"endDate,omitempty"` // nil when unknown or open-ended
	Privacy         TripPrivacy `json:"privacy"`
	TrackerEnabled  bool        `json:"trackerEnabled"`
	NotificationIDs []string    `json:"notificationIds,omitempty"`
	Steps           []Step      `json:"steps"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// Status classifies the trip relative to now. See the package-level Status
// function for the rules.
func (t Trip) Status(now time.Time) TripStatus {
	return Status(t.StartDate, t.EndDate, now)
}

// Status is a pure, total classification of a date range against now:
// future when a start date exists and lies strictly ahead of now, past when
// an end date exists and lies strictly behind now, current otherwise.
// A trip with no start date is never future.
func Status(start, end *time.Time, now time.Time) TripStatus {
	if start != nil && start.After(now) {
		return StatusFuture
	}
	if end != nil && end.Before(now) {
		return StatusPast
	}
	return StatusCurrent
}
