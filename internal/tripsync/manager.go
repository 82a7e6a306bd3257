package tripsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"tripbook/internal/domain"
	"tripbook/internal/store"
)

// Manager hands out one Service per signed-in user. The first request for a
// user performs the initial full fetch; later requests reuse the cached
// mirror. Dropping a user (sign-out) discards the mirror entirely, so the
// next sign-in starts with a fresh full fetch: the "refetch on identity
// change" contract.
type Manager struct {
	store     store.TripStore
	reminders Rescheduler
	log       *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// session pairs a Service with its first-use initialization state. ready is
// closed once the initial fetch finished, err holding its outcome; callers
// never see the Service before that.
type session struct {
	svc   *Service
	ready chan struct{}
	err   error
}

// NewManager constructs a Manager creating sessions over st and reminders.
func NewManager(st store.TripStore, reminders Rescheduler, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		store:     st,
		reminders: reminders,
		log:       log,
		sessions:  make(map[string]*session),
	}
}

// Session returns the Service bound to userID, creating it and running the
// initial full fetch on first use. Concurrent callers for the same user wait
// for that fetch rather than seeing an empty mirror. A failed initial fetch
// leaves no session behind, so the next call retries from scratch.
func (m *Manager) Session(ctx context.Context, userID string) (*Service, error) {
	if userID == "" {
		return nil, fmt.Errorf("tripsync.Manager.Session: %w", domain.ErrUnauthenticated)
	}

	m.mu.Lock()
	entry, ok := m.sessions[userID]
	if !ok {
		entry = &session{
			svc:   New(userID, m.store, m.reminders, m.log),
			ready: make(chan struct{}),
		}
		m.sessions[userID] = entry
	}
	m.mu.Unlock()

	if !ok {
		entry.err = entry.svc.Refresh(ctx)
		if entry.err != nil {
			m.mu.Lock()
			if m.sessions[userID] == entry {
				delete(m.sessions, userID)
			}
			m.mu.Unlock()
		} else {
			m.log.Info("session created", "user_id", userID)
		}
		close(entry.ready)
	} else {
		select {
		case <-entry.ready:
		case <-ctx.Done():
			return nil, fmt.Errorf("tripsync.Manager.Session: %w", ctx.Err())
		}
	}

	if entry.err != nil {
		return nil, fmt.Errorf("tripsync.Manager.Session: %w", entry.err)
	}
	return entry.svc, nil
}

// Drop discards the user's session, if any. The mirror is thrown away; a
// later Session call refetches everything.
func (m *Manager) Drop(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}
