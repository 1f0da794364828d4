// ABOUTME: Tests for JWT token verification, password hashing, and the HTTP middleware
// ABOUTME: Covers round trips, expiry, tampering, and identity propagation

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	token, err := v.Generate("user-123", time.Hour)
	require.NoError(t, err)

	userID, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", userID)
}

func TestJWTExpired(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	token, err := v.Generate("user-123", -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTWrongSecret(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))
	other := NewJWTVerifier([]byte("other-secret"))

	token, err := v.Generate("user-123", time.Hour)
	require.NoError(t, err)

	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTGarbage(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	_, err := v.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)

	require.NoError(t, CheckPassword(hash, "correct horse battery staple"))
	assert.ErrorIs(t, CheckPassword(hash, "wrong"), ErrWrongPassword)
}

func TestPasswordLongerThanBcryptLimit(t *testing.T) {
	// bcrypt truncates at 72 bytes; the sha256 normalization means long
	// passwords still differ past that point
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'a'
	}
	hash, err := HashPassword(string(long))
	require.NoError(t, err)

	long[99] = 'b'
	assert.ErrorIs(t, CheckPassword(hash, string(long)), ErrWrongPassword)
}

func TestMiddleware(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	var gotIdentity *Identity
	handler := Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdentity = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid token", func(t *testing.T) {
		token, err := v.Generate("user-42", time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, gotIdentity)
		assert.Equal(t, "user-42", gotIdentity.UserID)
	})

	t.Run("missing header", func(t *testing.T) {
		gotIdentity = nil
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Nil(t, gotIdentity)
	})

	t.Run("bad token", func(t *testing.T) {
		gotIdentity = nil
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Nil(t, gotIdentity)
	})
}
