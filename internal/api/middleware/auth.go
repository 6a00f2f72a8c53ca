package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/novaline-edu/enrollgate/internal/auth"
)

// AuthMiddleware validates the bearer access token and injects the
// resolved user ID and role into the request context for downstream
// handlers and RBACMiddleware.
func AuthMiddleware(provider auth.TokenProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
				return
			}

			claims, err := provider.ValidateToken(parts[1])
			if err != nil {
				slog.Warn("invalid access token", "error", err, "ip", r.RemoteAddr)
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, RoleKey, claims.Role)
			SetSentryUser(ctx, strconv.FormatInt(claims.UserID, 10), claims.Role, r.RemoteAddr)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
