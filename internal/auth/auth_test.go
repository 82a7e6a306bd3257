package auth_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripbook/internal/auth"
	"tripbook/internal/domain"
)

var secret = []byte("test-secret")

func TestTokenRoundTrip(t *testing.T) {
	token, err := auth.CreateToken(secret, "user-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := auth.ValidateToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := auth.CreateToken(secret, "user-1")
	require.NoError(t, err)

	_, err = auth.ValidateToken([]byte("other-secret"), token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthenticated))
}

func TestValidateRejectsGarbage(t *testing.T) {
	_, err := auth.ValidateToken(secret, "not.a.token")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthenticated))
}

func TestRequireUserPutsUserInContext(t *testing.T) {
	token, err := auth.CreateToken(secret, "user-42")
	require.NoError(t, err)

	var gotUser string
	h := auth.RequireUser(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = auth.UserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/trips", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-42", gotUser)
}

func TestRequireUserAcceptsQueryToken(t *testing.T) {
	token, err := auth.CreateToken(secret, "user-ws")
	require.NoError(t, err)

	var gotUser string
	h := auth.RequireUser(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = auth.UserID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/ws?token="+token, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "user-ws", gotUser)
}

func TestRequireUserRejectsMissingToken(t *testing.T) {
	h := auth.RequireUser(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/trips", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"not signed in"}`, rec.Body.String())
}

func TestUserIDEmptyWithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", auth.UserID(req.Context()))
}
