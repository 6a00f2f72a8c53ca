package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novaline-edu/enrollgate/internal/api/middleware"
	"github.com/novaline-edu/enrollgate/internal/auth"
)

func TestAuthMiddleware_RejectsMissingHeader(t *testing.T) {
	provider := auth.NewJWTProvider("secret", time.Hour)
	h := middleware.AuthMiddleware(provider)(passthrough())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthMiddleware_RejectsMalformedHeader(t *testing.T) {
	provider := auth.NewJWTProvider("secret", time.Hour)
	h := middleware.AuthMiddleware(provider)(passthrough())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "not-bearer-format")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthMiddleware_RejectsInvalidToken(t *testing.T) {
	provider := auth.NewJWTProvider("secret", time.Hour)
	h := middleware.AuthMiddleware(provider)(passthrough())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthMiddleware_InjectsIdentityOnValidToken(t *testing.T) {
	provider := auth.NewJWTProvider("secret", time.Hour)
	token, err := provider.GenerateAccessToken(99, "student")
	require.NoError(t, err)

	var gotUserID int64
	var gotRole string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = middleware.GetUserID(r.Context())
		gotRole, _ = middleware.GetRole(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	h := middleware.AuthMiddleware(provider)(next)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(99), gotUserID)
	assert.Equal(t, "student", gotRole)
}
