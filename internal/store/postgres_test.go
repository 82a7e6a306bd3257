package store_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripbook/internal/domain"
	"tripbook/internal/store"
	"tripbook/testutil"
)

const testUser = "store-test-user"

// newTestStore opens a transaction against the test database and returns a
// TripStore backed by it. The transaction is rolled back when the test
// finishes, giving free per-test isolation. DeleteTrip's inner transaction
// becomes a savepoint inside the test transaction, so the cascade semantics
// are exercised for real.
func newTestStore(t *testing.T) store.TripStore {
	s, _ := newTestStoreTx(t)
	return s
}

// newTestStoreTx additionally exposes the enclosing transaction, for tests
// that need to doctor rows behind the store's back.
func newTestStoreTx(t *testing.T) (store.TripStore, pgx.Tx) {
	t.Helper()
	pool := testutil.NewPool(t)

	tx, err := pool.Begin(context.Background())
	require.NoError(t, err, "begin transaction")

	t.Cleanup(func() {
		_ = tx.Rollback(context.Background())
	})

	return store.NewTripStore(tx), tx
}

func tripFixture() domain.Trip {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	return domain.Trip{
		Name:      "Summer Tour",
		Summary:   "Test summary",
		StartDate: &start,
		EndDate:   &end,
		Privacy:   domain.PrivacyPrivate,
	}
}

func TestTripStore_CreateTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	input := tripFixture()
	got, err := s.CreateTrip(ctx, testUser, input)

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, got.ID, "ID should be DB-generated")
	assert.Equal(t, input.Name, got.Name)
	assert.Equal(t, input.Summary, got.Summary)
	require.NotNil(t, got.StartDate)
	assert.True(t, got.StartDate.Equal(*input.StartDate), "StartDate mismatch")
	require.NotNil(t, got.EndDate)
	assert.True(t, got.EndDate.Equal(*input.EndDate), "EndDate mismatch")
	assert.Equal(t, domain.PrivacyPrivate, got.Privacy)
	assert.False(t, got.CreatedAt.IsZero(), "CreatedAt should be set by DB")
	assert.False(t, got.UpdatedAt.IsZero(), "UpdatedAt should be set by DB")
}

func TestTripStore_CreateTrip_NilDates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	input := tripFixture()
	input.StartDate = nil
	input.EndDate = nil

	got, err := s.CreateTrip(ctx, testUser, input)

	require.NoError(t, err)
	assert.Nil(t, got.StartDate)
	assert.Nil(t, got.EndDate)
}

func TestTripStore_ListTrips_NewestFirstWithNestedSteps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateTrip(ctx, testUser, tripFixture())
	require.NoError(t, err)

	in := tripFixture()
	in.Name = "Second Trip"
	second, err := s.CreateTrip(ctx, testUser, in)
	require.NoError(t, err)

	older, err := s.CreateStep(ctx, testUser, first.ID, domain.Step{Title: "Older"})
	require.NoError(t, err)
	newer, err := s.CreateStep(ctx, testUser, first.ID, domain.Step{Title: "Newer"})
	require.NoError(t, err)

	trips, err := s.ListTrips(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, trips, 2)

	assert.Equal(t, second.ID, trips[0].ID, "newest trip first")
	assert.Equal(t, first.ID, trips[1].ID)

	require.Len(t, trips[1].Steps, 2)
	assert.Equal(t, newer.ID, trips[1].Steps[0].ID, "newest step first")
	assert.Equal(t, older.ID, trips[1].Steps[1].ID)
}

func TestTripStore_ListTrips_StableOrderOnEqualTimestamps(t *testing.T) {
	s, tx := newTestStoreTx(t)
	ctx := context.Background()

	a, err := s.CreateTrip(ctx, testUser, tripFixture())
	require.NoError(t, err)
	b, err := s.CreateTrip(ctx, testUser, tripFixture())
	require.NoError(t, err)

	// Force identical creation timestamps; the id tiebreaker must then give
	// the same order on every read.
	stamp := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	_, err = tx.Exec(ctx, `UPDATE trips SET created_at = $1 WHERE user_id = $2`, stamp, testUser)
	require.NoError(t, err)

	wantFirst, wantSecond := a.ID, b.ID
	if bytes.Compare(b.ID[:], a.ID[:]) > 0 {
		wantFirst, wantSecond = b.ID, a.ID
	}

	for i := 0; i < 3; i++ {
		trips, err := s.ListTrips(ctx, testUser)
		require.NoError(t, err)
		require.Len(t, trips, 2)
		assert.Equal(t, wantFirst, trips[0].ID)
		assert.Equal(t, wantSecond, trips[1].ID)
	}
}

func TestTripStore_ListTrips_OtherUserInvisible(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateTrip(ctx, testUser, tripFixture())
	require.NoError(t, err)

	trips, err := s.ListTrips(ctx, "someone-else")
	require.NoError(t, err)
	assert.Empty(t, trips)
}

func TestTripStore_UpdateTrip_PartialAndClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateTrip(ctx, testUser, tripFixture())
	require.NoError(t, err)

	name := "Renamed"
	err = s.UpdateTrip(ctx, testUser, created.ID, store.TripPatch{Name: &name})
	require.NoError(t, err)

	trips, err := s.ListTrips(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Equal(t, "Renamed", trips[0].Name)
	assert.NotNil(t, trips[0].StartDate, "untouched fields survive a partial update")
	assert.NotNil(t, trips[0].EndDate)

	err = s.UpdateTrip(ctx, testUser, created.ID, store.TripPatch{ClearEndDate: true})
	require.NoError(t, err)

	trips, err = s.ListTrips(ctx, testUser)
	require.NoError(t, err)
	assert.Nil(t, trips[0].EndDate, "ClearEndDate nulls the column")
	assert.NotNil(t, trips[0].StartDate)
}

func TestTripStore_UpdateTrip_NotificationIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateTrip(ctx, testUser, tripFixture())
	require.NoError(t, err)

	ids := []string{"n-1", "n-2"}
	err = s.UpdateTrip(ctx, testUser, created.ID, store.TripPatch{NotificationIDs: &ids})
	require.NoError(t, err)

	trips, err := s.ListTrips(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, ids, trips[0].NotificationIDs)

	empty := []string{}
	err = s.UpdateTrip(ctx, testUser, created.ID, store.TripPatch{NotificationIDs: &empty})
	require.NoError(t, err)

	trips, err = s.ListTrips(ctx, testUser)
	require.NoError(t, err)
	assert.Empty(t, trips[0].NotificationIDs)
}

func TestTripStore_UpdateTrip_NotFound(t *testing.T) {
	s := newTestStore(t)
	name := "ghost"

	err := s.UpdateTrip(context.Background(), testUser, uuid.New(), store.TripPatch{Name: &name})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTripStore_UpdateTrip_WrongUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateTrip(ctx, testUser, tripFixture())
	require.NoError(t, err)

	name := "stolen"
	err = s.UpdateTrip(ctx, "someone-else", created.ID, store.TripPatch{Name: &name})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTripStore_DeleteTrip_CascadesAtomically(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateTrip(ctx, testUser, tripFixture())
	require.NoError(t, err)
	_, err = s.CreateStep(ctx, testUser, created.ID, domain.Step{Title: "Stop one"})
	require.NoError(t, err)
	_, err = s.CreateStep(ctx, testUser, created.ID, domain.Step{Title: "Stop two"})
	require.NoError(t, err)

	keeper, err := s.CreateTrip(ctx, testUser, tripFixture())
	require.NoError(t, err)
	kept, err := s.CreateStep(ctx, testUser, keeper.ID, domain.Step{Title: "Keeper stop"})
	require.NoError(t, err)

	err = s.DeleteTrip(ctx, testUser, created.ID)
	require.NoError(t, err)

	trips, err := s.ListTrips(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Equal(t, keeper.ID, trips[0].ID)
	require.Len(t, trips[0].Steps, 1, "sibling trips keep their steps")
	assert.Equal(t, kept.ID, trips[0].Steps[0].ID)
}

func TestTripStore_DeleteTrip_NotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.DeleteTrip(context.Background(), testUser, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTripStore_CreateStep(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	trip, err := s.CreateTrip(ctx, testUser, tripFixture())
	require.NoError(t, err)

	visited := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	lat, lng := 49.2827, -123.1207
	got, err := s.CreateStep(ctx, testUser, trip.ID, domain.Step{
		Title:     "Vancouver",
		Note:      "stanley park",
		VisitedAt: &visited,
		Lat:       &lat,
		Lng:       &lng,
		Photos:    []string{"a.jpg"},
	})

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, got.ID)
	assert.Equal(t, trip.ID, got.TripID)
	assert.Equal(t, "Vancouver", got.Title)
	require.NotNil(t, got.VisitedAt)
	assert.True(t, got.VisitedAt.Equal(visited))
	require.NotNil(t, got.Lat)
	assert.InDelta(t, lat, *got.Lat, 1e-9)
	assert.Equal(t, []string{"a.jpg"}, got.Photos)
}

func TestTripStore_CreateStep_UnknownTrip(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateStep(context.Background(), testUser, uuid.New(), domain.Step{Title: "Orphan"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTripStore_UpdateStep(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	trip, err := s.CreateTrip(ctx, testUser, tripFixture())
	require.NoError(t, err)
	visited := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	step, err := s.CreateStep(ctx, testUser, trip.ID, domain.Step{Title: "Before", VisitedAt: &visited})
	require.NoError(t, err)

	title := "After"
	err = s.UpdateStep(ctx, testUser, trip.ID, step.ID, store.StepPatch{Title: &title, ClearVisitedAt: true})
	require.NoError(t, err)

	trips, err := s.ListTrips(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, trips[0].Steps, 1)
	assert.Equal(t, "After", trips[0].Steps[0].Title)
	assert.Nil(t, trips[0].Steps[0].VisitedAt)
}

func TestTripStore_UpdateStep_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	trip, err := s.CreateTrip(ctx, testUser, tripFixture())
	require.NoError(t, err)

	title := "ghost"
	err = s.UpdateStep(ctx, testUser, trip.ID, uuid.New(), store.StepPatch{Title: &title})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTripStore_DeleteStep(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	trip, err := s.CreateTrip(ctx, testUser, tripFixture())
	require.NoError(t, err)
	keep, err := s.CreateStep(ctx, testUser, trip.ID, domain.Step{Title: "Keep"})
	require.NoError(t, err)
	drop, err := s.CreateStep(ctx, testUser, trip.ID, domain.Step{Title: "Drop"})
	require.NoError(t, err)

	err = s.DeleteStep(ctx, testUser, trip.ID, drop.ID)
	require.NoError(t, err)

	trips, err := s.ListTrips(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, trips[0].Steps, 1)
	assert.Equal(t, keep.ID, trips[0].Steps[0].ID)

	err = s.DeleteStep(ctx, testUser, trip.ID, drop.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
