package domain

import (
	"time"

	"github.com/google/uuid"
)

// Step is a single destination within a trip. A step belongs to exactly one
// trip for its whole life; TripID is a relation, not an ownership link.
//
// Note is free text. The mobile client encodes structured sub-fields as
// newline-delimited prefixed lines ("Stay: ...", "To do: ..."); that is a
// display convention, not a schema, and the server never parses it.
//
// Lat/Lng are nil until the destination has been geocoded.
type Step struct {
	ID        uuid.UUID  `json:"id"`
	TripID    uuid.UUID  `json:"tripId"`
	Title     string     `json:"title"`
	Note      string     `json:"note,omitempty"`
	VisitedAt *time.Time `json:"visitedAt,omitempty"`
	EndAt     *time.Time `json:"endAt,omitempty"`
	Lat       *float64   `json:"lat,omitempty"`
	Lng       *float64   `json:"lng,omitempty"`
	Photos    []string   `json:"photos,omitempty"` // opaque remote URLs
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}
