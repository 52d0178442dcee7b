package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestParseUsername(t *testing.T) {
	auth := NewAuthenticator("secret")

	token := signToken(t, "secret", jwt.MapClaims{
		"username": "alice",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	username, err := auth.ParseUsername(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)
}

func TestParseUsernameRejectsBadTokens(t *testing.T) {
	auth := NewAuthenticator("secret")

	testCases := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", signToken(t, "other-secret", jwt.MapClaims{"username": "alice"})},
		{"expired", signToken(t, "secret", jwt.MapClaims{
			"username": "alice",
			"exp":      time.Now().Add(-time.Hour).Unix(),
		})},
		{"missing username claim", signToken(t, "secret", jwt.MapClaims{"user_id": 7})},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := auth.ParseUsername(tc.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestAuthenticateMiddleware(t *testing.T) {
	auth := NewAuthenticator("secret")

	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, ok := UsernameFromContext(r.Context())
		require.True(t, ok)
		seen = username
	})

	token := signToken(t, "secret", jwt.MapClaims{
		"username": "bob",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	auth.Authenticate(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bob", seen)
}

func TestAuthenticateRejectsMissingHeader(t *testing.T) {
	auth := NewAuthenticator("secret")
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	auth.Authenticate(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Authorization")
}
