package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tripbook/internal/domain"
)

var now = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name  string
		start *time.Time
		end   *time.Time
		want  domain.TripStatus
	}{
		{"start in future", ts("2025-06-11T00:00:00Z"), nil, domain.StatusFuture},
		{"start in future with future end", ts("2025-06-11T00:00:00Z"), ts("2025-06-20T00:00:00Z"), domain.StatusFuture},
		{"ended yesterday", ts("2025-06-01T00:00:00Z"), ts("2025-06-09T00:00:00Z"), domain.StatusPast},
		{"in progress", ts("2025-06-01T00:00:00Z"), ts("2025-06-20T00:00:00Z"), domain.StatusCurrent},
		{"started, open-ended", ts("2025-06-01T00:00:00Z"), nil, domain.StatusCurrent},
		{"no dates at all", nil, nil, domain.StatusCurrent},
		{"no start, past end", nil, ts("2025-06-01T00:00:00Z"), domain.StatusPast},
		{"no start, future end", nil, ts("2025-07-01T00:00:00Z"), domain.StatusCurrent},
		{"start exactly now", &now, nil, domain.StatusCurrent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.Status(tt.start, tt.end, now))
		})
	}
}

// A trip with no start date must never classify as future, whatever its end
// date looks like.
func TestStatus_NoStartNeverFuture(t *testing.T) {
	ends := []*time.Time{nil, ts("2020-01-01T00:00:00Z"), ts("2030-01-01T00:00:00Z")}
	for _, end := range ends {
		assert.NotEqual(t, domain.StatusFuture, domain.Status(nil, end, now))
	}
}

func TestTrip_Status(t *testing.T) {
	trip := domain.Trip{Name: "Rome", StartDate: ts("2025-06-15T00:00:00Z")}
	assert.Equal(t, domain.StatusFuture, trip.Status(now))
}
