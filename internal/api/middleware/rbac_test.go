package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/novaline-edu/enrollgate/internal/api/middleware"
)

func withIdentity(ctx context.Context, userID int64, role string) context.Context {
	ctx = context.WithValue(ctx, middleware.UserIDKey, userID)
	return context.WithValue(ctx, middleware.RoleKey, role)
}

func passthrough() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRBACMiddleware_AllowsRoleAtOrAboveRequired(t *testing.T) {
	for _, role := range []string{"teacher", "admin"} {
		h := middleware.RBACMiddleware("teacher")(passthrough())
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(withIdentity(req.Context(), 1, role))
		rr := httptest.NewRecorder()

		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code, "role %q should satisfy the teacher requirement", role)
	}
}

func TestRBACMiddleware_RejectsRoleBelowRequired(t *testing.T) {
	h := middleware.RBACMiddleware("admin")(passthrough())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(withIdentity(req.Context(), 1, "student"))
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRBACMiddleware_RejectsMissingUserID(t *testing.T) {
	h := middleware.RBACMiddleware("student")(passthrough())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRBACMiddleware_RejectsMissingRole(t *testing.T) {
	h := middleware.RBACMiddleware("student")(passthrough())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.UserIDKey, int64(1)))
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}
