package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"tripbook/internal/auth"
	"tripbook/internal/domain"
	"tripbook/internal/geocode"
	"tripbook/internal/handler"
	"tripbook/internal/store"
	"tripbook/internal/tripsync"
)

var testSecret = []byte("handler-test-secret")

// memStore is an in-memory store.TripStore. It mimics the Postgres
// implementation's ordering contract: ListTrips returns newest-created
// first, steps likewise.
type memStore struct {
	mu    sync.Mutex
	trips map[string][]domain.Trip // keyed by user, oldest first
}

var _ store.TripStore = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{trips: map[string][]domain.Trip{}}
}

func (m *memStore) CreateTrip(_ context.Context, userID string, trip domain.Trip) (domain.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trip.ID = uuid.New()
	trip.Steps = nil
	trip.CreatedAt = time.Now().UTC()
	trip.UpdatedAt = trip.CreatedAt
	m.trips[userID] = append(m.trips[userID], trip)
	return trip, nil
}

func (m *memStore) ListTrips(_ context.Context, userID string) ([]domain.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.trips[userID]
	out := make([]domain.Trip, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
	}
	return out, nil
}

func (m *memStore) UpdateTrip(_ context.Context, userID string, tripID uuid.UUID, patch store.TripPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.trips[userID] {
		if m.trips[userID][i].ID == tripID {
			patch.Apply(&m.trips[userID][i])
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memStore) DeleteTrip(_ context.Context, userID string, tripID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.trips[userID] {
		if m.trips[userID][i].ID == tripID {
			m.trips[userID] = append(m.trips[userID][:i], m.trips[userID][i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memStore) CreateStep(_ context.Context, userID string, tripID uuid.UUID, step domain.Step) (domain.Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.trips[userID] {
		if m.trips[userID][i].ID == tripID {
			step.ID = uuid.New()
			step.TripID = tripID
			step.CreatedAt = time.Now().UTC()
			step.UpdatedAt = step.CreatedAt
			m.trips[userID][i].Steps = append([]domain.Step{step}, m.trips[userID][i].Steps...)
			return step, nil
		}
	}
	return domain.Step{}, domain.ErrNotFound
}

func (m *memStore) UpdateStep(_ context.Context, userID string, tripID, stepID uuid.UUID, patch store.StepPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.trips[userID] {
		if m.trips[userID][i].ID != tripID {
			continue
		}
		for j := range m.trips[userID][i].Steps {
			if m.trips[userID][i].Steps[j].ID == stepID {
				patch.Apply(&m.trips[userID][i].Steps[j])
				return nil
			}
		}
	}
	return domain.ErrNotFound
}

func (m *memStore) DeleteStep(_ context.Context, userID string, tripID, stepID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.trips[userID] {
		if m.trips[userID][i].ID != tripID {
			continue
		}
		steps := m.trips[userID][i].Steps
		for j := range steps {
			if steps[j].ID == stepID {
				m.trips[userID][i].Steps = append(steps[:j], steps[j+1:]...)
				return nil
			}
		}
	}
	return domain.ErrNotFound
}

// noopRescheduler satisfies tripsync.Rescheduler without side effects.
type noopRescheduler struct{}

func (noopRescheduler) Reschedule(context.Context, string, domain.Trip, time.Time) ([]string, error) {
	return nil, nil
}
func (noopRescheduler) CancelAll([]string) {}

// denyingRescheduler refuses every Reschedule, as a scheduler does when the
// user has notifications blocked.
type denyingRescheduler struct{}

func (denyingRescheduler) Reschedule(context.Context, string, domain.Trip, time.Time) ([]string, error) {
	return nil, domain.ErrPermissionDenied
}
func (denyingRescheduler) CancelAll([]string) {}

// stubGeocoder returns a fixed result for every lookup.
type stubGeocoder struct {
	result *geocode.Result
	calls  int
}

func (g *stubGeocoder) Forward(context.Context, string) (*geocode.Result, error) {
	g.calls++
	return g.result, nil
}

// ---- helpers ---------------------------------------------------------------

func newTestHandler(t *testing.T, geo handler.Geocoder) http.Handler {
	t.Helper()
	return newTestHandlerWith(t, geo, noopRescheduler{})
}

func newTestHandlerWith(t *testing.T, geo handler.Geocoder, rem tripsync.Rescheduler) http.Handler {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := tripsync.NewManager(newMemStore(), rem, log)
	srv := handler.NewServer(mgr, geo, nil, nil, testSecret, log)
	return srv.Routes()
}

func authedRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	return authedRequestAs(t, "user-1", method, target, body)
}

func authedRequestAs(t *testing.T, userID, method, target string, body any) *http.Request {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rd)
	token, err := auth.CreateToken(testSecret, userID)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}
