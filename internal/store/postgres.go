package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"tripbook/internal/domain"
)

// db is the minimal interface satisfied by *pgxpool.Pool, *pgx.Conn, and
// pgx.Tx. Accepting this interface instead of *pgxpool.Pool directly allows
// integration tests to pass a transaction that is rolled back after each
// test, giving free per-test isolation without any manual cleanup.
// Begin on a pgx.Tx opens a savepoint, so DeleteTrip stays transactional in
// that setup too.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// pgTripStore is the Postgres implementation of TripStore.
type pgTripStore struct {
	db db
}

// NewTripStore constructs a TripStore backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback
// isolation.
func NewTripStore(db db) TripStore {
	return &pgTripStore{db: db}
}

const tripColumns = `id, name, summary, start_date, end_date, privacy, tracker_enabled, notification_ids, created_at, updated_at`

const stepColumns = `id, trip_id, title, note, visited_at, end_at, lat, lng, photos, created_at, updated_at`

// CreateTrip inserts a new trip row and returns the full persisted record.
func (s *pgTripStore) CreateTrip(ctx context.Context, userID string, trip domain.Trip) (domain.Trip, error) {
	if trip.Privacy == "" {
		trip.Privacy = domain.PrivacyPrivate
	}

	q := `
		INSERT INTO trips (user_id, name, summary, start_date, end_date, privacy, tracker_enabled, notification_ids)
		VALUES (@user_id, @name, @summary, @start_date, @end_date, @privacy, @tracker_enabled, @notification_ids)
		RETURNING ` + tripColumns

	args := pgx.NamedArgs{
		"user_id":          userID,
		"name":             trip.Name,
		"summary":          trip.Summary,
		"start_date":       trip.StartDate, // nil becomes NULL
		"end_date":         trip.EndDate,
		"privacy":          string(trip.Privacy),
		"tracker_enabled":  trip.TrackerEnabled,
		"notification_ids": notNilStrings(trip.NotificationIDs),
	}

	row := s.db.QueryRow(ctx, q, args)
	created, err := scanTrip(row)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("store.TripStore.CreateTrip: %w", err)
	}
	created.Steps = []domain.Step{}
	return created, nil
}

// ListTrips returns the user's trips with steps nested, newest-created
// first. The id tiebreaker keeps the order stable when timestamps collide.
func (s *pgTripStore) ListTrips(ctx context.Context, userID string) ([]domain.Trip, error) {
	q := `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE user_id = @user_id
		ORDER BY created_at DESC, id DESC`

	rows, err := s.db.Query(ctx, q, pgx.NamedArgs{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("store.TripStore.ListTrips: %w", err)
	}
	defer rows.Close()

	var trips []domain.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("store.TripStore.ListTrips: scan: %w", err)
		}
		t.Steps = []domain.Step{}
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store.TripStore.ListTrips: rows: %w", err)
	}

	steps, err := s.listSteps(ctx, userID)
	if err != nil {
		return nil, err
	}
	byTrip := make(map[uuid.UUID][]domain.Step, len(trips))
	for _, st := range steps {
		byTrip[st.TripID] = append(byTrip[st.TripID], st)
	}
	for i := range trips {
		if sts, ok := byTrip[trips[i].ID]; ok {
			trips[i].Steps = sts
		}
	}

	return trips, nil
}

// listSteps loads every step of every trip the user owns in one query,
// newest-created first.
func (s *pgTripStore) listSteps(ctx context.Context, userID string) ([]domain.Step, error) {
	q := `
		SELECT s.id, s.trip_id, s.title, s.note, s.visited_at, s.end_at, s.lat, s.lng, s.photos, s.created_at, s.updated_at
		FROM steps s
		JOIN trips t ON t.id = s.trip_id
		WHERE t.user_id = @user_id
		ORDER BY s.created_at DESC, s.id DESC`

	rows, err := s.db.Query(ctx, q, pgx.NamedArgs{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("store.TripStore.ListTrips: steps: %w", err)
	}
	defer rows.Close()

	var steps []domain.Step
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("store.TripStore.ListTrips: scan step: %w", err)
		}
		steps = append(steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store.TripStore.ListTrips: step rows: %w", err)
	}
	return steps, nil
}

// UpdateTrip applies a partial update, touching only the fields set on the
// patch.
func (s *pgTripStore) UpdateTrip(ctx context.Context, userID string, tripID uuid.UUID, patch TripPatch) error {
	sets := []string{"updated_at = now()"}
	args := pgx.NamedArgs{"id": tripID, "user_id": userID}

	if patch.Name != nil {
		sets = append(sets, "name = @name")
		args["name"] = *patch.Name
	}
	if patch.Summary != nil {
		sets = append(sets, "summary = @summary")
		args["summary"] = *patch.Summary
	}
	if patch.ClearStartDate {
		sets = append(sets, "start_date = NULL")
	} else if patch.StartDate != nil {
		sets = append(sets, "start_date = @start_date")
		args["start_date"] = *patch.StartDate
	}
	if patch.ClearEndDate {
		sets = append(sets, "end_date = NULL")
	} else if patch.EndDate != nil {
		sets = append(sets, "end_date = @end_date")
		args["end_date"] = *patch.EndDate
	}
	if patch.Privacy != nil {
		sets = append(sets, "privacy = @privacy")
		args["privacy"] = string(*patch.Privacy)
	}
	if patch.TrackerEnabled != nil {
		sets = append(sets, "tracker_enabled = @tracker_enabled")
		args["tracker_enabled"] = *patch.TrackerEnabled
	}
	if patch.NotificationIDs != nil {
		sets = append(sets, "notification_ids = @notification_ids")
		args["notification_ids"] = notNilStrings(*patch.NotificationIDs)
	}

	q := fmt.Sprintf(`UPDATE trips SET %s WHERE id = @id AND user_id = @user_id`, strings.Join(sets, ", "))

	tag, err := s.db.Exec(ctx, q, args)
	if err != nil {
		return fmt.Errorf("store.TripStore.UpdateTrip: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store.TripStore.UpdateTrip: %w", domain.ErrNotFound)
	}
	return nil
}

// DeleteTrip removes a trip and all of its steps in one transaction.
// The step deletes and the trip delete commit together or not at all.
func (s *pgTripStore) DeleteTrip(ctx context.Context, userID string, tripID uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store.TripStore.DeleteTrip: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	const delSteps = `
		DELETE FROM steps
		WHERE trip_id = @id
		  AND EXISTS (SELECT 1 FROM trips WHERE id = @id AND user_id = @user_id)`

	args := pgx.NamedArgs{"id": tripID, "user_id": userID}
	if _, err := tx.Exec(ctx, delSteps, args); err != nil {
		return fmt.Errorf("store.TripStore.DeleteTrip: steps: %w", err)
	}

	const delTrip = `DELETE FROM trips WHERE id = @id AND user_id = @user_id`
	tag, err := tx.Exec(ctx, delTrip, args)
	if err != nil {
		return fmt.Errorf("store.TripStore.DeleteTrip: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store.TripStore.DeleteTrip: %w", domain.ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store.TripStore.DeleteTrip: commit: %w", err)
	}
	return nil
}

// CreateStep inserts a new step under the given trip. The INSERT ... SELECT
// form makes trip ownership part of the same statement: no matching trip,
// no row, ErrNotFound.
func (s *pgTripStore) CreateStep(ctx context.Context, userID string, tripID uuid.UUID, step domain.Step) (domain.Step, error) {
	q := `
		INSERT INTO steps (trip_id, title, note, visited_at, end_at, lat, lng, photos)
		SELECT t.id, @title, @note, @visited_at, @end_at, @lat, @lng, @photos
		FROM trips t
		WHERE t.id = @trip_id AND t.user_id = @user_id
		RETURNING ` + stepColumns

	args := pgx.NamedArgs{
		"trip_id":    tripID,
		"user_id":    userID,
		"title":      step.Title,
		"note":       step.Note,
		"visited_at": step.VisitedAt,
		"end_at":     step.EndAt,
		"lat":        step.Lat,
		"lng":        step.Lng,
		"photos":     notNilStrings(step.Photos),
	}

	row := s.db.QueryRow(ctx, q, args)
	created, err := scanStep(row)
	if err != nil {
		return domain.Step{}, fmt.Errorf("store.TripStore.CreateStep: %w", err)
	}
	return created, nil
}

// UpdateStep applies a partial update to a step, scoped by trip and owner.
func (s *pgTripStore) UpdateStep(ctx context.Context, userID string, tripID, stepID uuid.UUID, patch StepPatch) error {
	sets := []string{"updated_at = now()"}
	args := pgx.NamedArgs{"id": stepID, "trip_id": tripID, "user_id": userID}

	if patch.Title != nil {
		sets = append(sets, "title = @title")
		args["title"] = *patch.Title
	}
	if patch.Note != nil {
		sets = append(sets, "note = @note")
		args["note"] = *patch.Note
	}
	if patch.ClearVisitedAt {
		sets = append(sets, "visited_at = NULL")
	} else if patch.VisitedAt != nil {
		sets = append(sets, "visited_at = @visited_at")
		args["visited_at"] = *patch.VisitedAt
	}
	if patch.ClearEndAt {
		sets = append(sets, "end_at = NULL")
	} else if patch.EndAt != nil {
		sets = append(sets, "end_at = @end_at")
		args["end_at"] = *patch.EndAt
	}
	if patch.Lat != nil {
		sets = append(sets, "lat = @lat")
		args["lat"] = *patch.Lat
	}
	if patch.Lng != nil {
		sets = append(sets, "lng = @lng")
		args["lng"] = *patch.Lng
	}
	if patch.Photos != nil {
		sets = append(sets, "photos = @photos")
		args["photos"] = notNilStrings(*patch.Photos)
	}

	q := fmt.Sprintf(`
		UPDATE steps SET %s
		WHERE id = @id
		  AND trip_id = @trip_id
		  AND EXISTS (SELECT 1 FROM trips WHERE id = @trip_id AND user_id = @user_id)`,
		strings.Join(sets, ", "))

	tag, err := s.db.Exec(ctx, q, args)
	if err != nil {
		return fmt.Errorf("store.TripStore.UpdateStep: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store.TripStore.UpdateStep: %w", domain.ErrNotFound)
	}
	return nil
}

// DeleteStep removes a single step, scoped by trip and owner.
func (s *pgTripStore) DeleteStep(ctx context.Context, userID string, tripID, stepID uuid.UUID) error {
	const q = `
		DELETE FROM steps
		WHERE id = @id
		  AND trip_id = @trip_id
		  AND EXISTS (SELECT 1 FROM trips WHERE id = @trip_id AND user_id = @user_id)`

	tag, err := s.db.Exec(ctx, q, pgx.NamedArgs{"id": stepID, "trip_id": tripID, "user_id": userID})
	if err != nil {
		return fmt.Errorf("store.TripStore.DeleteStep: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store.TripStore.DeleteStep: %w", domain.ErrNotFound)
	}
	return nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows, allowing the scan
// helpers to be reused for QueryRow and Query calls.
type scanner interface {
	Scan(dest ...any) error
}

// scanTrip maps a single trips row into a domain.Trip.
// It handles the UUID and nullable timestamp conversions.
func scanTrip(s scanner) (domain.Trip, error) {
	var (
		t       domain.Trip
		id      pgtype.UUID
		start   pgtype.Timestamptz
		end     pgtype.Timestamptz
		privacy string
	)

	err := s.Scan(&id, &t.Name, &t.Summary, &start, &end, &privacy,
		&t.TrackerEnabled, &t.NotificationIDs, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trip{}, domain.ErrNotFound
		}
		return domain.Trip{}, err
	}

	t.ID = uuid.UUID(id.Bytes)
	t.Privacy = domain.TripPrivacy(privacy)
	if start.Valid {
		v := start.Time
		t.StartDate = &v
	}
	if end.Valid {
		v := end.Time
		t.EndDate = &v
	}

	return t, nil
}

// scanStep maps a single steps row into a domain.Step.
func scanStep(s scanner) (domain.Step, error) {
	var (
		st        domain.Step
		id        pgtype.UUID
		tripID    pgtype.UUID
		visitedAt pgtype.Timestamptz
		endAt     pgtype.Timestamptz
		lat       pgtype.Float8
		lng       pgtype.Float8
	)

	err := s.Scan(&id, &tripID, &st.Title, &st.Note, &visitedAt, &endAt,
		&lat, &lng, &st.Photos, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Step{}, domain.ErrNotFound
		}
		return domain.Step{}, err
	}

	st.ID = uuid.UUID(id.Bytes)
	st.TripID = uuid.UUID(tripID.Bytes)
	if visitedAt.Valid {
		v := visitedAt.Time
		st.VisitedAt = &v
	}
	if endAt.Valid {
		v := endAt.Time
		st.EndAt = &v
	}
	if lat.Valid {
		v := lat.Float64
		st.Lat = &v
	}
	if lng.Valid {
		v := lng.Float64
		st.Lng = &v
	}

	return st, nil
}

// notNilStrings keeps NOT NULL array columns happy when the caller passes a
// nil slice.
func notNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
