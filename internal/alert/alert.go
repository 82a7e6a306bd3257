// Package alert derives upcoming-trip reminders from trip start dates.
// Everything in here is a pure function of (trips, now) so the sync layer and
// the reminder scheduler can share one classification.
package alert

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"tripbook/internal/domain"
)

// Kind distinguishes imminent alerts (today/tomorrow) from week-out ones.
// Day-kind alerts always sort before week-kind alerts.
type Kind string

const (
	KindDay  Kind = "day"
	KindWeek Kind = "week"
)

// WindowDays is the look-ahead horizon: trips starting more than this many
// days out produce no alert and hold no live reminder schedules.
const WindowDays = 7

// fallbackName is used when a trip somehow has an empty name.
const fallbackName = "Upcoming trip"

// Alert describes a single upcoming trip within the alerting window.
type Alert struct {
	TripID    uuid.UUID `json:"tripId"`
	TripName  string    `json:"tripName"`
	StartDate time.Time `json:"startDate"`
	DaysUntil int       `json:"daysUntil"`
	Kind      Kind      `json:"kind"`
}

// DaysUntil returns the whole-day difference between a trip's start date and
// now, and ok=false when there is no start date.
//
// The start is treated as beginning one day after its literal instant: a trip
// dated 2025-06-01 counts as 1 day away at noon on 2025-05-31, not 0. This
// off-by-one is compatibility behavior the existing alert timing depends on;
// do not "fix" it.
func DaysUntil(start *time.Time, now time.Time) (int, bool) {
	if start == nil {
		return 0, false
	}
	diff := start.AddDate(0, 0, 1).Sub(now).Hours() / 24
	return int(math.Floor(diff)), true
}

// For classifies a single trip: nil outside the [0, WindowDays] window or
// when the trip has no start date, kind=day at 0 or 1 days out, kind=week
// from 2 through WindowDays days out.
func For(t domain.Trip, now time.Time) *Alert {
	d, ok := DaysUntil(t.StartDate, now)
	if !ok || d < 0 || d > WindowDays {
		return nil
	}

	kind := KindWeek
	if d <= 1 {
		kind = KindDay
	}

	name := t.Name
	if name == "" {
		name = fallbackName
	}

	return &Alert{
		TripID:    t.ID,
		TripName:  name,
		StartDate: *t.StartDate,
		DaysUntil: d,
		Kind:      kind,
	}
}

// ForAll maps every trip through For, drops the nils, and sorts the result:
// all day-kind alerts first, then week-kind, ascending DaysUntil within each
// kind. Each trip appears at most once.
func ForAll(trips []domain.Trip, now time.Time) []Alert {
	var alerts []Alert
	for _, t := range trips {
		if a := For(t, now); a != nil {
			alerts = append(alerts, *a)
		}
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Kind != alerts[j].Kind {
			return alerts[i].Kind == KindDay
		}
		return alerts[i].DaysUntil < alerts[j].DaysUntil
	})

	return alerts
}
