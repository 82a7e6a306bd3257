package domain

import "time"

// ExportRow is a single row in the full-itinerary export.
// It is a flat, denormalized view: one row per step, with trip fields
// repeated for every step on that trip. Trips with no steps yield one row
// with zero values for all step fields.
type ExportRow struct {
	// Trip fields, repeated for every step on the trip.
	TripID        string
	TripName      string
	TripStatus    string
	TripStartDate string // RFC 3339, empty when unset
	TripEndDate   string // empty when unset
	Privacy       string

	// Step fields, zero values when the trip has no steps.
	StepTitle  string
	StepNote   string
	VisitedAt  *time.Time
	EndAt      *time.Time
	Lat        *float64
	Lng        *float64
	PhotoCount int
}
