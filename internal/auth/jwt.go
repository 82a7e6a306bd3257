// Package auth issues and validates the bearer tokens that bind a request
// to a user identity.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tripbook/internal/domain"
)

const tokenTTL = 60 * time.Minute

// CreateToken signs a short-lived HS256 token for the given user.
func CreateToken(secret []byte, userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("auth.CreateToken: %w", err)
	}
	return signed, nil
}

// ValidateToken parses a token and returns the user id it carries. Any
// parse or signature failure maps to domain.ErrUnauthenticated so callers
// do not leak verifier internals.
func ValidateToken(secret []byte, tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("auth.ValidateToken: %w", domain.ErrUnauthenticated)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("auth.ValidateToken: empty subject: %w", domain.ErrUnauthenticated)
	}
	return claims.Subject, nil
}
