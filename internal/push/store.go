package push

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"tripbook/internal/domain"
)

// Subscription is one browser/device push endpoint registered by a user.
type Subscription struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"-"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"-"`
	Auth      string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// SubscriptionStore defines persistence for push subscriptions.
type SubscriptionStore interface {
	// Create registers a subscription; re-registering an existing endpoint
	// reassigns it to the given user.
	Create(ctx context.Context, sub Subscription) (Subscription, error)

	// ListByUser returns all subscriptions the user holds.
	ListByUser(ctx context.Context, userID string) ([]Subscription, error)

	// DeleteByEndpoint removes a subscription by its endpoint URL.
	// Unknown endpoints are a no-op.
	DeleteByEndpoint(ctx context.Context, endpoint string) error

	// ExistsForUser reports whether the user has any subscription.
	ExistsForUser(ctx context.Context, userID string) (bool, error)
}

// db mirrors the minimal pgx interface used across the storage packages.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgSubscriptionStore is the Postgres implementation of SubscriptionStore.
type pgSubscriptionStore struct {
	db db
}

// NewSubscriptionStore constructs a SubscriptionStore backed by db.
func NewSubscriptionStore(db db) SubscriptionStore {
	return &pgSubscriptionStore{db: db}
}

func (s *pgSubscriptionStore) Create(ctx context.Context, sub Subscription) (Subscription, error) {
	const q = `
		INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth)
		VALUES (@user_id, @endpoint, @p256dh, @auth)
		ON CONFLICT (endpoint) DO UPDATE SET user_id = @user_id, p256dh = @p256dh, auth = @auth
		RETURNING id, user_id, endpoint, p256dh, auth, created_at`

	args := pgx.NamedArgs{
		"user_id":  sub.UserID,
		"endpoint": sub.Endpoint,
		"p256dh":   sub.P256dh,
		"auth":     sub.Auth,
	}

	created, err := scanSubscription(s.db.QueryRow(ctx, q, args))
	if err != nil {
		return Subscription{}, fmt.Errorf("push.SubscriptionStore.Create: %w", err)
	}
	return created, nil
}

func (s *pgSubscriptionStore) ListByUser(ctx context.Context, userID string) ([]Subscription, error) {
	const q = `
		SELECT id, user_id, endpoint, p256dh, auth, created_at
		FROM push_subscriptions
		WHERE user_id = @user_id
		ORDER BY created_at`

	rows, err := s.db.Query(ctx, q, pgx.NamedArgs{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("push.SubscriptionStore.ListByUser: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("push.SubscriptionStore.ListByUser: scan: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("push.SubscriptionStore.ListByUser: rows: %w", err)
	}
	return subs, nil
}

func (s *pgSubscriptionStore) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	const q = `DELETE FROM push_subscriptions WHERE endpoint = @endpoint`
	if _, err := s.db.Exec(ctx, q, pgx.NamedArgs{"endpoint": endpoint}); err != nil {
		return fmt.Errorf("push.SubscriptionStore.DeleteByEndpoint: %w", err)
	}
	return nil
}

func (s *pgSubscriptionStore) ExistsForUser(ctx context.Context, userID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM push_subscriptions WHERE user_id = @user_id)`

	var exists bool
	if err := s.db.QueryRow(ctx, q, pgx.NamedArgs{"user_id": userID}).Scan(&exists); err != nil {
		return false, fmt.Errorf("push.SubscriptionStore.ExistsForUser: %w", err)
	}
	return exists, nil
}

func scanSubscription(row pgx.Row) (Subscription, error) {
	var (
		sub Subscription
		id  pgtype.UUID
	)
	err := row.Scan(&id, &sub.UserID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &sub.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Subscription{}, domain.ErrNotFound
		}
		return Subscription{}, err
	}
	sub.ID = uuid.UUID(id.Bytes)
	return sub, nil
}
