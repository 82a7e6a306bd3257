// Package notify schedules trip reminders as one-shot timers and hands the
// fired reminders to a delivery channel (web push in production).
//
// The scheduler owns the lifecycle of reminder identifiers: Reschedule
// cancels every identifier the trip currently holds before creating new
// ones, so a trip never accumulates duplicate reminders. Persisting the
// returned identifiers back onto the trip is the caller's job; the
// scheduler never writes storage.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tripbook/internal/alert"
	"tripbook/internal/domain"
)

// immediateDelay is the nominal delay of the "right now" reminder created on
// every reschedule inside the alerting window.
const immediateDelay = time.Second

// Payload is the structured data carried with every reminder so the client
// can deep-link to the trip when the notification is tapped.
type Payload struct {
	TripID    string     `json:"tripId"`
	StartDate string     `json:"startDate"`
	DaysUntil int        `json:"daysUntil"`
	Kind      alert.Kind `json:"kind"`
}

// Content is a rendered reminder: what the user sees plus the deep-link
// payload.
type Content struct {
	Title string  `json:"title"`
	Body  string  `json:"body"`
	Data  Payload `json:"data"`
}

// Sender delivers a fired reminder to the user. Implemented by push.Service.
type Sender interface {
	Send(ctx context.Context, userID string, c Content) error
}

// PermissionChecker answers whether the user can receive reminders at all.
// Implemented by push.Service as "has at least one active subscription".
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID string) (bool, error)
}

// pending is one live one-shot timer.
type pending struct {
	userID string
	timer  *time.Timer
}

// Scheduler keeps a registry of live one-shot reminder timers keyed by
// opaque identifier.
type Scheduler struct {
	sender Sender
	perms  PermissionChecker
	log    *slog.Logger

	mu      sync.Mutex
	timers  map[string]*pending
	stopped bool
}

// NewScheduler constructs a Scheduler delivering through sender and gating
// on perms.
func NewScheduler(sender Sender, perms PermissionChecker, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		sender: sender,
		perms:  perms,
		log:    log,
		timers: make(map[string]*pending),
	}
}

// Reschedule recomputes the reminders for one trip:
//
//  1. If the user has no notification channel, nothing is touched: the
//     trip's existing identifiers come back unchanged alongside
//     domain.ErrPermissionDenied.
//  2. Every identifier the trip currently holds is cancelled (cancelling an
//     already-fired or unknown identifier is a no-op).
//  3. A trip with no start date, or one outside the [0, alert.WindowDays]
//     window, ends up with no reminders at all.
//  4. Otherwise up to three one-shot timers are created, all relative to
//     now: an immediate one reflecting the trip's current classification, a
//     3-days-before reminder when at least 3 days remain, and a
//     1-day-before reminder when at least 1 day remains.
//
// The returned identifiers are the trip's new NotificationIDs; the caller
// must persist them onto the trip.
func (s *Scheduler) Reschedule(ctx context.Context, userID string, trip domain.Trip, now time.Time) ([]string, error) {
	ok, err := s.perms.HasPermission(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("notify.Scheduler.Reschedule: %w", err)
	}
	if !ok {
		s.log.Warn("reminders not scheduled: no notification channel",
			"user_id", userID, "trip_id", trip.ID)
		return trip.NotificationIDs, domain.ErrPermissionDenied
	}

	s.CancelAll(trip.NotificationIDs)

	d, hasStart := alert.DaysUntil(trip.StartDate, now)
	if !hasStart || d < 0 || d > alert.WindowDays {
		return []string{}, nil
	}

	name := trip.Name
	startISO := trip.StartDate.Format(time.RFC3339)
	tripID := trip.ID.String()

	ids := []string{
		s.schedule(userID, immediateDelay, contentFor(tripID, name, startISO, d)),
	}
	if d >= 3 {
		delay := time.Duration(d-3) * 24 * time.Hour
		ids = append(ids, s.schedule(userID, delay, render(alert.KindWeek, 3, tripID, name, startISO)))
	}
	if d >= 1 {
		delay := time.Duration(d-1) * 24 * time.Hour
		ids = append(ids, s.schedule(userID, delay, render(alert.KindDay, 1, tripID, name, startISO)))
	}

	return ids, nil
}

// schedule registers one one-shot timer and returns its opaque identifier.
func (s *Scheduler) schedule(userID string, delay time.Duration, c Content) string {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return id
	}

	p := &pending{userID: userID}
	p.timer = time.AfterFunc(delay, func() { s.fire(id, c) })
	s.timers[id] = p
	return id
}

// fire delivers one reminder and retires its identifier.
func (s *Scheduler) fire(id string, c Content) {
	s.mu.Lock()
	p, ok := s.timers[id]
	delete(s.timers, id)
	s.mu.Unlock()
	if !ok {
		return
	}

	if err := s.sender.Send(context.Background(), p.userID, c); err != nil {
		s.log.Error("reminder delivery failed",
			"user_id", p.userID, "trip_id", c.Data.TripID, "error", err)
	}
}

// CancelAll stops every timer in ids. Unknown identifiers are ignored, so
// cancelling twice, or cancelling ids whose timers already fired, is safe.
func (s *Scheduler) CancelAll(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if p, ok := s.timers[id]; ok {
			p.timer.Stop()
			delete(s.timers, id)
		}
	}
}

// Pending returns the number of live timers across all users.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// PendingFor returns how many of ids still have a live timer.
func (s *Scheduler) PendingFor(ids []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := s.timers[id]; ok {
			n++
		}
	}
	return n
}

// Stop cancels every live timer and rejects new ones. Used on shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, p := range s.timers {
		p.timer.Stop()
		delete(s.timers, id)
	}
}

// contentFor renders the immediate reminder for a trip currently d days out.
func contentFor(tripID, name, startISO string, d int) Content {
	kind := alert.KindWeek
	if d <= 1 {
		kind = alert.KindDay
	}
	return render(kind, d, tripID, name, startISO)
}

// render produces the user-visible strings from the fixed phrasing table.
func render(kind alert.Kind, d int, tripID, name, startISO string) Content {
	if name == "" {
		name = "Your trip"
	}

	var title, body string
	switch {
	case kind == alert.KindDay && d == 0:
		title = "Trip starts today"
		body = fmt.Sprintf("%s starts today. Have a great trip!", name)
	case kind == alert.KindDay:
		title = "Trip starts tomorrow"
		body = fmt.Sprintf("%s starts tomorrow. Time to pack!", name)
	default:
		title = "Trip coming up"
		body = fmt.Sprintf("%s starts in %d days.", name, d)
	}

	return Content{
		Title: title,
		Body:  body,
		Data: Payload{
			TripID:    tripID,
			StartDate: startISO,
			DaysUntil: d,
			Kind:      kind,
		},
	}
}
