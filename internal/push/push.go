// Package push delivers trip reminders over web push (VAPID).
// It implements both collaborator interfaces the scheduler needs: Sender
// (delivery) and PermissionChecker ("permission" means the user has at least
// one active subscription).
package push

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"tripbook/internal/notify"
)

// ErrExpired is returned when a push subscription is no longer valid
// (410 Gone). Expired subscriptions are pruned on send.
var ErrExpired = errors.New("push subscription expired")

// Service sends reminder content to every active subscription of a user.
type Service struct {
	subs       SubscriptionStore
	publicKey  string
	privateKey string
	subscriber string // mailto: contact sent to the push service
	log        *slog.Logger
}

// NewService constructs a push Service with the given VAPID key pair.
func NewService(subs SubscriptionStore, publicKey, privateKey, subscriber string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		subs:       subs,
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: subscriber,
		log:        log,
	}
}

// VAPIDPublicKey returns the public key clients need to subscribe.
func (s *Service) VAPIDPublicKey() string {
	return s.publicKey
}

// Subscribe registers a browser push subscription for the user. Re-posting
// the same endpoint re-binds it (a browser may rotate users on one device).
func (s *Service) Subscribe(ctx context.Context, sub Subscription) (Subscription, error) {
	created, err := s.subs.Create(ctx, sub)
	if err != nil {
		return Subscription{}, fmt.Errorf("push.Service.Subscribe: %w", err)
	}
	return created, nil
}

// Unsubscribe removes a subscription by endpoint. Removing an endpoint that
// was never registered is not an error.
func (s *Service) Unsubscribe(ctx context.Context, endpoint string) error {
	if err := s.subs.DeleteByEndpoint(ctx, endpoint); err != nil {
		return fmt.Errorf("push.Service.Unsubscribe: %w", err)
	}
	return nil
}

// HasPermission reports whether the user can receive reminders at all:
// true when at least one active subscription exists.
func (s *Service) HasPermission(ctx context.Context, userID string) (bool, error) {
	ok, err := s.subs.ExistsForUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("push.Service.HasPermission: %w", err)
	}
	return ok, nil
}

// Send delivers one reminder to every subscription the user holds.
// A 410 from the push service prunes that subscription; other per-endpoint
// failures are logged and the remaining endpoints still get the message.
func (s *Service) Send(ctx context.Context, userID string, c notify.Content) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("push.Service.Send: marshal: %w", err)
	}

	subs, err := s.subs.ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("push.Service.Send: %w", err)
	}

	for _, sub := range subs {
		if err := s.sendOne(&sub, data); err != nil {
			if errors.Is(err, ErrExpired) {
				if derr := s.subs.DeleteByEndpoint(ctx, sub.Endpoint); derr != nil {
					s.log.Error("failed to prune expired subscription", "error", derr)
				}
				continue
			}
			s.log.Error("push delivery failed", "user_id", userID, "error", err)
		}
	}
	return nil
}

func (s *Service) sendOne(sub *Subscription, data []byte) error {
	resp, err := webpush.SendNotification(data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		Subscriber:      s.subscriber,
		TTL:             86400,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		return ErrExpired
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}
	return nil
}

// GenerateVAPIDKeys generates a new ECDSA P-256 key pair for VAPID.
// Used at startup when no keys are configured.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ECDSA key: %w", err)
	}

	pubBytes := elliptic.Marshal(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y)
	publicKey = base64.RawURLEncoding.EncodeToString(pubBytes)
	privateKey = base64.RawURLEncoding.EncodeToString(key.D.Bytes())

	return publicKey, privateKey, nil
}
