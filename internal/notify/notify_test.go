package notify_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripbook/internal/alert"
	"tripbook/internal/domain"
	"tripbook/internal/notify"
)

// recordingSender collects delivered reminders.
type recordingSender struct {
	mu   sync.Mutex
	sent []notify.Content
}

func (r *recordingSender) Send(_ context.Context, _ string, c notify.Content) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, c)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

// allowAll grants every permission check.
type allowAll struct{}

func (allowAll) HasPermission(context.Context, string) (bool, error) { return true, nil }

// denyAll rejects every permission check.
type denyAll struct{}

func (denyAll) HasPermission(context.Context, string) (bool, error) { return false, nil }

func newScheduler(t *testing.T, perms notify.PermissionChecker) (*notify.Scheduler, *recordingSender) {
	t.Helper()
	sender := &recordingSender{}
	s := notify.NewScheduler(sender, perms, nil)
	t.Cleanup(s.Stop)
	return s, sender
}

func tripDaysOut(days int, now time.Time) domain.Trip {
	// Midnight "days" days ahead; with the +1-day normalization this trip
	// reads as exactly "days" days out at noon.
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, days)
	return domain.Trip{ID: uuid.New(), Name: "Rome", StartDate: &start}
}

var noon = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestReschedule_TenDaysOut_NothingScheduled(t *testing.T) {
	s, _ := newScheduler(t, allowAll{})

	ids, err := s.Reschedule(context.Background(), "u1", tripDaysOut(10, noon), noon)

	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, 0, s.Pending())
}

func TestReschedule_TwoDaysOut_ImmediatePlusOneDayBefore(t *testing.T) {
	s, _ := newScheduler(t, allowAll{})

	ids, err := s.Reschedule(context.Background(), "u1", tripDaysOut(2, noon), noon)

	require.NoError(t, err)
	assert.Len(t, ids, 2) // immediate + 1-day-before; 3-day-before skipped
	assert.Equal(t, 2, s.Pending())
}

func TestReschedule_FiveDaysOut_AllThree(t *testing.T) {
	s, _ := newScheduler(t, allowAll{})

	ids, err := s.Reschedule(context.Background(), "u1", tripDaysOut(5, noon), noon)

	require.NoError(t, err)
	assert.Len(t, ids, 3)
}

func TestReschedule_StartsToday_ImmediateOnly(t *testing.T) {
	s, _ := newScheduler(t, allowAll{})

	ids, err := s.Reschedule(context.Background(), "u1", tripDaysOut(0, noon), noon)

	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestReschedule_NoStartDate_ClearsExisting(t *testing.T) {
	s, _ := newScheduler(t, allowAll{})

	trip := tripDaysOut(2, noon)
	ids, err := s.Reschedule(context.Background(), "u1", trip, noon)
	require.NoError(t, err)
	require.NotEmpty(t, ids)

	trip.StartDate = nil
	trip.NotificationIDs = ids

	got, err := s.Reschedule(context.Background(), "u1", trip, noon)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, s.Pending(), "old timers must be cancelled")
}

// Calling Reschedule twice with an unchanged start date must not accumulate
// timers: the old set is fully cancelled before the new set is created.
func TestReschedule_Twice_NoDuplicateAccumulation(t *testing.T) {
	s, _ := newScheduler(t, allowAll{})

	trip := tripDaysOut(5, noon)
	first, err := s.Reschedule(context.Background(), "u1", trip, noon)
	require.NoError(t, err)

	trip.NotificationIDs = first
	second, err := s.Reschedule(context.Background(), "u1", trip, noon)
	require.NoError(t, err)

	assert.Len(t, second, len(first))
	assert.Equal(t, len(second), s.Pending())
	assert.Equal(t, 0, s.PendingFor(first))
}

func TestReschedule_PermissionDenied_KeepsExistingSchedule(t *testing.T) {
	allowed, _ := newScheduler(t, allowAll{})
	trip := tripDaysOut(5, noon)

	// Build an existing schedule first, then flip permission off by using a
	// denying scheduler sharing nothing. The point is the contract: denied
	// permission returns the trip's current ids untouched.
	existing, err := allowed.Reschedule(context.Background(), "u1", trip, noon)
	require.NoError(t, err)
	trip.NotificationIDs = existing

	denied, _ := newScheduler(t, denyAll{})
	got, err := denied.Reschedule(context.Background(), "u1", trip, noon)

	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Equal(t, existing, got)
	assert.Equal(t, len(existing), allowed.PendingFor(existing), "no cancellation on denial")
}

func TestReschedule_ImmediateReminderFires(t *testing.T) {
	s, sender := newScheduler(t, allowAll{})

	_, err := s.Reschedule(context.Background(), "u1", tripDaysOut(0, noon), noon)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return sender.count() == 1 },
		3*time.Second, 20*time.Millisecond)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	c := sender.sent[0]
	assert.Equal(t, "Trip starts today", c.Title)
	assert.Equal(t, alert.KindDay, c.Data.Kind)
	assert.Equal(t, 0, c.Data.DaysUntil)
	assert.Equal(t, 0, s.Pending(), "fired reminder must retire its identifier")
}

func TestReschedule_ForcedFramingOfEarlyReminders(t *testing.T) {
	s, _ := newScheduler(t, allowAll{})

	trip := tripDaysOut(6, noon)
	ids, err := s.Reschedule(context.Background(), "u1", trip, noon)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	// The 3-days-before and 1-day-before reminders carry fixed framing
	// regardless of the current distance; the immediate one reflects it.
	// Delivery content is verified through the fired immediate reminder in
	// TestReschedule_ImmediateReminderFires; here we pin the counts only.
	assert.Equal(t, 3, s.PendingFor(ids))
}

func TestCancelAll_Idempotent(t *testing.T) {
	s, _ := newScheduler(t, allowAll{})

	ids, err := s.Reschedule(context.Background(), "u1", tripDaysOut(5, noon), noon)
	require.NoError(t, err)

	s.CancelAll(ids)
	s.CancelAll(ids) // second cancel is a no-op
	s.CancelAll([]string{"never-existed"})

	assert.Equal(t, 0, s.Pending())
}
